package imagefetch

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
)

// uriKind discriminates the parsed forms of the image-source URI grammar
// (spec §4.B).
type uriKind int

const (
	uriKindBtcfs uriKind = iota
	uriKindIPFS
)

type parsedURI struct {
	kind      uriKind
	raw       string
	txHash    string // btcfs
	vinIndex  int    // btcfs
	cid       string // ipfs
}

// parseURI classifies a URI into its tagged-variant form, or fails with
// dobtype.KindInvalidOnchainFsuriFormat if the scheme is unrecognized.
func parseURI(uri string) (*parsedURI, error) {
	switch {
	case strings.HasPrefix(uri, "btcfs://"):
		rest := strings.TrimPrefix(uri, "btcfs://")
		idx := strings.IndexByte(rest, 'i')
		if idx < 0 {
			return nil, dobtype.New(dobtype.KindInvalidOnchainFsuriFormat, fmt.Sprintf("btcfs uri missing vin index: %s", uri))
		}
		vin, err := strconv.Atoi(rest[idx+1:])
		if err != nil {
			return nil, dobtype.Wrap(dobtype.KindInvalidOnchainFsuriFormat, fmt.Sprintf("btcfs uri vin index: %s", uri), err)
		}
		return &parsedURI{kind: uriKindBtcfs, raw: uri, txHash: rest[:idx], vinIndex: vin}, nil

	case strings.HasPrefix(uri, "ipfs://"):
		cid := strings.TrimPrefix(uri, "ipfs://")
		if cid == "" {
			return nil, dobtype.New(dobtype.KindInvalidOnchainFsuriFormat, fmt.Sprintf("ipfs uri missing cid: %s", uri))
		}
		return &parsedURI{kind: uriKindIPFS, raw: uri, cid: cid}, nil

	default:
		return nil, dobtype.New(dobtype.KindInvalidOnchainFsuriFormat, fmt.Sprintf("unrecognized uri scheme: %s", uri))
	}
}

// requiredInscriptionHeader is the literal token sequence that must
// precede an inscription's image payload within an OP_IF...OP_ENDIF
// envelope (spec §4.B): push "DOB", push protocol byte 0x01, push
// content-type "image/png", then the OP_0 / OP_PUSHDATA2 data marker.
var requiredInscriptionHeader = []string{
	"OP_PUSHBYTES_3", "444f42",
	"OP_PUSHBYTES_1", "01",
	"OP_PUSHBYTES_9", "696d6167652f706e67",
	"OP_0", "OP_PUSHDATA2",
}

// extractInscriptionImages scans a witness-script ASM string for
// inscription envelopes and returns the decoded image bytes of each one
// that carries the required DOB image header, in order of appearance.
func extractInscriptionImages(asm string) ([][]byte, error) {
	tokens := strings.Fields(asm)

	var images [][]byte
	i := 0
	for i < len(tokens) {
		if tokens[i] != "OP_IF" {
			i++
			continue
		}
		end := indexOf(tokens, "OP_ENDIF", i+1)
		if end < 0 {
			return nil, dobtype.New(dobtype.KindInvalidInscriptionFormat, "unterminated OP_IF envelope")
		}
		envelope := tokens[i+1 : end]

		if headerAt := findSubsequence(envelope, requiredInscriptionHeader); headerAt >= 0 {
			payloadTokens := envelope[headerAt+len(requiredInscriptionHeader):]
			img, err := decodePayloadTokens(payloadTokens)
			if err != nil {
				return nil, err
			}
			images = append(images, img)
		}
		i = end + 1
	}
	return images, nil
}

// extractInscriptionImageAt returns the image bytes for the vinIndex'th
// inscription envelope found in the ASM. Callers pass the ASM of the input
// the uri's vin_index selects, so this index counts envelopes within that
// one input's witness, not transaction inputs.
func extractInscriptionImageAt(asm string, vinIndex int) ([]byte, error) {
	images, err := extractInscriptionImages(asm)
	if err != nil {
		return nil, err
	}
	if vinIndex < 0 || vinIndex >= len(images) {
		return nil, dobtype.New(dobtype.KindInvalidInscriptionFormat,
			fmt.Sprintf("inscription index %d out of range (found %d)", vinIndex, len(images)))
	}
	return images[vinIndex], nil
}

func decodePayloadTokens(tokens []string) ([]byte, error) {
	var hexPayload strings.Builder
	for _, t := range tokens {
		if strings.HasPrefix(t, "OP_") {
			continue
		}
		hexPayload.WriteString(t)
	}
	if hexPayload.Len() == 0 {
		return nil, dobtype.New(dobtype.KindEmptyInscriptionContent, "inscription envelope has no payload bytes")
	}
	data, err := hex.DecodeString(hexPayload.String())
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindInvalidInscriptionContentHexFormat, "hex-decode inscription payload", err)
	}
	return data, nil
}

func indexOf(tokens []string, target string, from int) int {
	for i := from; i < len(tokens); i++ {
		if tokens[i] == target {
			return i
		}
	}
	return -1
}

func findSubsequence(haystack, needle []string) int {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
