package dobtype

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessageFormatting(t *testing.T) {
	bare := New(KindSporeIdNotFound, "")
	if bare.Error() != "SporeIdNotFound" {
		t.Errorf("got %q", bare.Error())
	}

	withMessage := New(KindSporeIdNotFound, "id abc")
	if withMessage.Error() != "SporeIdNotFound: id abc" {
		t.Errorf("got %q", withMessage.Error())
	}

	cause := fmt.Errorf("boom")
	withCause := Wrap(KindFetchLiveCellsError, "fetching cell", cause)
	if withCause.Error() != "FetchLiveCellsError: fetching cell: boom" {
		t.Errorf("got %q", withCause.Error())
	}

	bareCause := Wrap(KindFetchLiveCellsError, "", cause)
	if bareCause.Error() != "FetchLiveCellsError: boom" {
		t.Errorf("got %q", bareCause.Error())
	}
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	inner := New(KindDecoderChainIsEmpty, "no stages")
	outer := fmt.Errorf("decode failed: %w", inner)
	if KindOf(outer) != KindDecoderChainIsEmpty {
		t.Errorf("got %v, want KindDecoderChainIsEmpty", KindOf(outer))
	}
}

func TestKindOfUnknownForPlainErrors(t *testing.T) {
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("expected KindUnknown for a plain error")
	}
	if KindOf(nil) != KindUnknown {
		t.Error("expected KindUnknown for a nil error")
	}
}

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	a := New(KindDecoderOutputInvalid, "first message")
	b := New(KindDecoderOutputInvalid, "different message entirely")
	if !errors.Is(a, b) {
		t.Error("expected errors with the same Kind to match via Is")
	}

	c := New(KindDecoderExecutionError, "first message")
	if errors.Is(a, c) {
		t.Error("expected errors with different Kinds not to match")
	}
}

func TestKindStringFallsBackToUnknown(t *testing.T) {
	var bogus Kind = 9999
	if bogus.String() != "Unknown" {
		t.Errorf("got %q, want Unknown", bogus.String())
	}
}
