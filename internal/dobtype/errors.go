// Package dobtype holds the error taxonomy and wire-level value types
// shared across every DOB decode component: the chain client, the decoder
// resolver, the spore/cluster reader, the RISC-V host, the syscalls, the
// decode pipeline, and the render cache.
//
// Every failure the system can surface carries a stable Kind so the RPC
// layer (and batch-decode error strings) can distinguish failure classes
// without parsing messages.
package dobtype

import (
	"errors"
	"fmt"
)

// Kind is a closed set of error classes. New values must not be added
// without updating every switch over Kind in this module.
type Kind int

const (
	KindUnknown Kind = iota

	KindDnaLengthMismatch
	KindSporeIdLengthInvalid
	KindSporeIdNotFound
	KindClusterIdNotFound
	KindDecoderIdNotFound
	KindSporeDataUncompatible
	KindClusterDataUncompatible
	KindDOBVersionUnexpected
	KindDOBVersionNumberUndefined
	KindDOBContentUnexpected
	KindDOBMetadataUnexpected
	KindClusterIdNotSet
	KindNativeDecoderNotFound
	KindDecoderBinaryHashInvalid
	KindDecoderBinaryNotFoundInCell
	KindDecoderExecutionError
	KindDecoderExecutionInternalError
	KindDecoderOutputInvalid
	KindDecoderChainIsEmpty
	KindFetchLiveCellsError
	KindFetchTransactionError
	KindJsonRpcRequestError
	KindDOBRenderCacheModified
	KindDOBRenderCacheNotFound
	KindFetchFromBtcNodeError
	KindFetchFromIpfsError
	KindInvalidBtcTransactionFormat
	KindInvalidInscriptionFormat
	KindInvalidInscriptionContentHexFormat
	KindEmptyInscriptionContent
	KindInvalidOnchainFsuriFormat
	KindFsuriNotFoundInConfig
	KindInvalidNextDobRingPointer
	KindDobRingUncirclelized
	KindCellOutputNotFound
	KindSystemTimeError
)

var kindNames = map[Kind]string{
	KindUnknown:                            "Unknown",
	KindDnaLengthMismatch:                   "DnaLengthMismatch",
	KindSporeIdLengthInvalid:                "SporeIdLengthInvalid",
	KindSporeIdNotFound:                     "SporeIdNotFound",
	KindClusterIdNotFound:                   "ClusterIdNotFound",
	KindDecoderIdNotFound:                   "DecoderIdNotFound",
	KindSporeDataUncompatible:               "SporeDataUncompatible",
	KindClusterDataUncompatible:             "ClusterDataUncompatible",
	KindDOBVersionUnexpected:                "DOBVersionUnexpected",
	KindDOBVersionNumberUndefined:           "DOBVersionNumberUndefined",
	KindDOBContentUnexpected:                "DOBContentUnexpected",
	KindDOBMetadataUnexpected:               "DOBMetadataUnexpected",
	KindClusterIdNotSet:                     "ClusterIdNotSet",
	KindNativeDecoderNotFound:               "NativeDecoderNotFound",
	KindDecoderBinaryHashInvalid:            "DecoderBinaryHashInvalid",
	KindDecoderBinaryNotFoundInCell:         "DecoderBinaryNotFoundInCell",
	KindDecoderExecutionError:               "DecoderExecutionError",
	KindDecoderExecutionInternalError:       "DecoderExecutionInternalError",
	KindDecoderOutputInvalid:                "DecoderOutputInvalid",
	KindDecoderChainIsEmpty:                 "DecoderChainIsEmpty",
	KindFetchLiveCellsError:                 "FetchLiveCellsError",
	KindFetchTransactionError:               "FetchTransactionError",
	KindJsonRpcRequestError:                 "JsonRpcRequestError",
	KindDOBRenderCacheModified:              "DOBRenderCacheModified",
	KindDOBRenderCacheNotFound:              "DOBRenderCacheNotFound",
	KindFetchFromBtcNodeError:               "FetchFromBtcNodeError",
	KindFetchFromIpfsError:                  "FetchFromIpfsError",
	KindInvalidBtcTransactionFormat:         "InvalidBtcTransactionFormat",
	KindInvalidInscriptionFormat:            "InvalidInscriptionFormat",
	KindInvalidInscriptionContentHexFormat:  "InvalidInscriptionContentHexFormat",
	KindEmptyInscriptionContent:             "EmptyInscriptionContent",
	KindInvalidOnchainFsuriFormat:           "InvalidOnchainFsuriFormat",
	KindFsuriNotFoundInConfig:               "FsuriNotFoundInConfig",
	KindInvalidNextDobRingPointer:           "InvalidNextDobRingPointer",
	KindDobRingUncirclelized:                "DobRingUncirclelized",
	KindCellOutputNotFound:                  "CellOutputNotFound",
	KindSystemTimeError:                     "SystemTimeError",
}

// String renders the Kind's stable name, used both in error messages and
// by the RPC layer when tagging batch-decode results.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Error wraps a Kind with the underlying cause, if any, and a free-form
// message. It implements the standard error interface and supports
// errors.Is/errors.As via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, allowing
// errors.Is(err, dobtype.New(KindSporeIdNotFound, "")) style checks.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error carrying an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error; otherwise returns KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
