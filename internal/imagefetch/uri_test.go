package imagefetch

import (
	"testing"

	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
)

func TestParseURI(t *testing.T) {
	btc, err := parseURI("btcfs://abc123i2")
	if err != nil {
		t.Fatalf("parseURI btcfs: %v", err)
	}
	if btc.kind != uriKindBtcfs || btc.txHash != "abc123" || btc.vinIndex != 2 {
		t.Errorf("got %+v", btc)
	}

	ipfs, err := parseURI("ipfs://QmXYZ")
	if err != nil {
		t.Fatalf("parseURI ipfs: %v", err)
	}
	if ipfs.kind != uriKindIPFS || ipfs.cid != "QmXYZ" {
		t.Errorf("got %+v", ipfs)
	}

	if _, err := parseURI("http://example.com"); dobtype.KindOf(err) != dobtype.KindInvalidOnchainFsuriFormat {
		t.Errorf("unrecognized scheme should yield InvalidOnchainFsuriFormat, got %v", err)
	}
}

func TestExtractInscriptionImages(t *testing.T) {
	// envelope: OP_IF <header tokens> <payload hex bytes> OP_ENDIF
	asm := "OP_IF OP_PUSHBYTES_3 444f42 OP_PUSHBYTES_1 01 OP_PUSHBYTES_9 696d6167652f706e67 OP_0 OP_PUSHDATA2 deadbeef OP_ENDIF"

	images, err := extractInscriptionImages(asm)
	if err != nil {
		t.Fatalf("extractInscriptionImages: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("got %d images, want 1", len(images))
	}
	if got := images[0]; len(got) != 4 || got[0] != 0xde {
		t.Errorf("got %x, want deadbeef", got)
	}
}

func TestExtractInscriptionImagesUnterminated(t *testing.T) {
	asm := "OP_IF OP_PUSHBYTES_3 444f42"
	if _, err := extractInscriptionImages(asm); dobtype.KindOf(err) != dobtype.KindInvalidInscriptionFormat {
		t.Errorf("expected InvalidInscriptionFormat, got %v", err)
	}
}

func TestExtractInscriptionImageAtOutOfRange(t *testing.T) {
	asm := "OP_IF OP_PUSHBYTES_3 444f42 OP_PUSHBYTES_1 01 OP_PUSHBYTES_9 696d6167652f706e67 OP_0 OP_PUSHDATA2 ab OP_ENDIF"
	if _, err := extractInscriptionImageAt(asm, 5); err == nil {
		t.Error("expected out-of-range error")
	}
}
