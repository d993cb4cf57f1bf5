package spore

import (
	"encoding/binary"
	"testing"

	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
)

func encBytes(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

func encOptionalBytes(payload []byte) []byte {
	if payload == nil {
		return nil
	}
	return encBytes(payload)
}

func encTable(fields ...[]byte) []byte {
	headerSize := uint32(4 + 4*len(fields))
	cursor := headerSize
	offsets := make([]uint32, len(fields))
	for i, f := range fields {
		offsets[i] = cursor
		cursor += uint32(len(f))
	}
	total := cursor

	buf := make([]byte, 0, total)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], total)
	buf = append(buf, tmp[:]...)
	for _, off := range offsets {
		binary.LittleEndian.PutUint32(tmp[:], off)
		buf = append(buf, tmp[:]...)
	}
	for _, f := range fields {
		buf = append(buf, f...)
	}
	return buf
}

func TestExtractDNARawForm(t *testing.T) {
	dna, err := extractDNA([]byte{0x00, 0xab, 0xcd})
	if err != nil {
		t.Fatalf("extractDNA: %v", err)
	}
	if dna != "abcd" {
		t.Errorf("got %q, want abcd", dna)
	}
}

func TestExtractDNAStringForm(t *testing.T) {
	dna, err := extractDNA([]byte(`"deadbeef"`))
	if err != nil {
		t.Fatalf("extractDNA: %v", err)
	}
	if dna != "deadbeef" {
		t.Errorf("got %q, want deadbeef", dna)
	}
}

func TestExtractDNAArrayForm(t *testing.T) {
	dna, err := extractDNA([]byte(`["aabb", "other"]`))
	if err != nil {
		t.Fatalf("extractDNA: %v", err)
	}
	if dna != "aabb" {
		t.Errorf("got %q, want aabb", dna)
	}
}

func TestExtractDNAObjectForm(t *testing.T) {
	dna, err := extractDNA([]byte(`{"dna":"ccdd"}`))
	if err != nil {
		t.Fatalf("extractDNA: %v", err)
	}
	if dna != "ccdd" {
		t.Errorf("got %q, want ccdd", dna)
	}
}

func TestExtractDNAUnrecognizedShape(t *testing.T) {
	if _, err := extractDNA([]byte(`12345`)); dobtype.KindOf(err) != dobtype.KindDOBContentUnexpected {
		t.Errorf("expected KindDOBContentUnexpected, got %v", err)
	}
}

func TestDecodeCellDataHappyPath(t *testing.T) {
	data := encTable(
		encBytes([]byte("dob/0")),
		encBytes([]byte(`"aabbcc"`)),
		encBytes([]byte{0x00, 0x00, 0x00, 0x01}),
	)
	content, err := DecodeCellData(data)
	if err != nil {
		t.Fatalf("DecodeCellData: %v", err)
	}
	if content.ContentType != "dob/0" || content.DNA != "aabbcc" {
		t.Errorf("got %+v", content)
	}
	if content.ClusterID != "00000001" {
		t.Errorf("got cluster id %q", content.ClusterID)
	}
}

func TestDecodeClusterCellDataV0(t *testing.T) {
	description := `{"description":"test cluster","dob":{"decoder":{"location":"type_id","hash":"0xaa"},"pattern":"p"}}`
	data := encTable(
		encBytes([]byte("cluster name")),
		encBytes([]byte(description)),
	)
	desc, err := DecodeClusterCellData(data)
	if err != nil {
		t.Fatalf("DecodeClusterCellData: %v", err)
	}
	if desc.Version != DOBVersionV0 {
		t.Errorf("got version %v, want V0", desc.Version)
	}
	if desc.V0 == nil || desc.V0.Decoder.Hash != "0xaa" {
		t.Errorf("got %+v", desc.V0)
	}
}

func TestDecodeClusterCellDataV1(t *testing.T) {
	description := `{"description":"test cluster","dob":{"ver":1,"decoders":[{"decoder":{"location":"type_id","hash":"0xaa"},"pattern":"p1"},{"decoder":{"location":"type_id","hash":"0xbb"},"pattern":"p2"}]}}`
	data := encTable(
		encBytes([]byte("cluster name")),
		encBytes([]byte(description)),
	)
	desc, err := DecodeClusterCellData(data)
	if err != nil {
		t.Fatalf("DecodeClusterCellData: %v", err)
	}
	if desc.Version != DOBVersionV1 {
		t.Errorf("got version %v, want V1", desc.Version)
	}
	if len(desc.V1) != 2 {
		t.Fatalf("got %d stages, want 2", len(desc.V1))
	}
}

func TestDecodeClusterCellDataUnsupportedVersion(t *testing.T) {
	description := `{"description":"x","dob":{"ver":2}}`
	data := encTable(
		encBytes([]byte("cluster name")),
		encBytes([]byte(description)),
	)
	_, err := DecodeClusterCellData(data)
	if dobtype.KindOf(err) != dobtype.KindDOBVersionNumberUndefined {
		t.Errorf("expected KindDOBVersionNumberUndefined, got %v", err)
	}
}
