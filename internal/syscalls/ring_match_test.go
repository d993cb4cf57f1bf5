package syscalls

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/sporeprotocol/dob-decoder-go/internal/chainrpc"
	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
)

func moleculeBytes(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

func moleculeTable(fields ...[]byte) []byte {
	offsets := make([]uint32, len(fields))
	headerSize := uint32(4 + 4*len(fields))
	cursor := headerSize
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

func sporeCellData(t *testing.T, contentType, dnaJSON, clusterIDHex string) string {
	t.Helper()
	clusterRaw, err := hex.DecodeString(clusterIDHex)
	if err != nil {
		t.Fatalf("decode cluster id: %v", err)
	}
	data := moleculeTable(
		moleculeBytes([]byte(contentType)),
		moleculeBytes([]byte(dnaJSON)),
		moleculeBytes(clusterRaw),
	)
	return "0x" + hex.EncodeToString(data)
}

// fakeLiveCellFetcher serves a fixed sequence of cells keyed by (tx_hash,
// index), modeling a two-hop ring: seed -> middle -> terminator.
type fakeLiveCellFetcher struct {
	cells map[string]*chainrpc.CellWithStatus
}

func (f *fakeLiveCellFetcher) GetLiveCell(_ context.Context, out chainrpc.OutPoint, _ bool) (*chainrpc.CellWithStatus, error) {
	key := string(out.TxHash) + out.Index
	cell, ok := f.cells[key]
	if !ok {
		return nil, fmt.Errorf("no such cell: %s", key)
	}
	return cell, nil
}

func TestRingMatchWalkTwoHopRing(t *testing.T) {
	terminatorHash := "ff" + hex2(31)
	seedTx := "aa" + hex2(31)
	midTx := "bb" + hex2(31)

	midOutPointArgs, _ := hex.DecodeString(midTx + "00000000")

	seedCell := &chainrpc.CellWithStatus{
		Status: "live",
		Cell: &chainrpc.CellInfo{
			Output: chainrpc.CellOutput{
				Lock: chainrpc.Script{Args: chainrpc.HexBytes("0x" + hex.EncodeToString(midOutPointArgs))},
				Type: &chainrpc.Script{},
			},
			Data: &chainrpc.CellData{Content: chainrpc.HexBytes(sporeCellData(t, "dob/0", `"aa"`, "0001"))},
		},
	}
	midCell := &chainrpc.CellWithStatus{
		Status: "live",
		Cell: &chainrpc.CellInfo{
			Output: chainrpc.CellOutput{
				Lock: chainrpc.Script{Args: chainrpc.HexBytes("0x" + terminatorHash)},
				Type: &chainrpc.Script{},
			},
			Data: &chainrpc.CellData{Content: chainrpc.HexBytes(sporeCellData(t, "dob/0", `"bb"`, "0002"))},
		},
	}

	fetcher := &fakeLiveCellFetcher{cells: map[string]*chainrpc.CellWithStatus{
		string(chainrpc.Hex32("0x"+seedTx)) + "0x0": seedCell,
		string(chainrpc.Hex32("0x"+midTx)) + "0x0":  midCell,
	}}

	rm := RingMatch{Chain: fetcher, SeedTailTypeHash: terminatorHash}

	seedOutPoint, _ := hex.DecodeString(seedTx + "00000000")
	mapping, err := rm.walk(context.Background(), seedOutPoint)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if got := mapping["0001"]; len(got) != 1 || got[0] != "aa" {
		t.Errorf("cluster 0001 dnas = %v, want [\"aa\"]", got)
	}
	if got := mapping["0002"]; len(got) != 1 || got[0] != "bb" {
		t.Errorf("cluster 0002 dnas = %v, want [\"bb\"]", got)
	}
}

func TestRingMatchWalkTerminatorMismatch(t *testing.T) {
	wrongHash := "11" + hex2(31)
	expectedHash := "22" + hex2(31)
	seedTx := "aa" + hex2(31)

	seedCell := &chainrpc.CellWithStatus{
		Status: "live",
		Cell: &chainrpc.CellInfo{
			Output: chainrpc.CellOutput{
				Lock: chainrpc.Script{Args: chainrpc.HexBytes("0x" + wrongHash)},
				Type: &chainrpc.Script{},
			},
			Data: &chainrpc.CellData{Content: chainrpc.HexBytes(sporeCellData(t, "dob/0", `"aa"`, "0001"))},
		},
	}
	fetcher := &fakeLiveCellFetcher{cells: map[string]*chainrpc.CellWithStatus{
		string(chainrpc.Hex32("0x"+seedTx)) + "0x0": seedCell,
	}}
	rm := RingMatch{Chain: fetcher, SeedTailTypeHash: expectedHash}

	seedOutPoint, _ := hex.DecodeString(seedTx + "00000000")
	if _, err := rm.walk(context.Background(), seedOutPoint); dobtype.KindOf(err) != dobtype.KindDobRingUncirclelized {
		t.Errorf("expected DobRingUncirclelized, got %v", err)
	}
}

// hex2 returns n bytes of a repeating hex digit pair, used to pad test
// hashes out to 32 bytes without hand-writing 64 hex characters.
func hex2(n int) string {
	out := make([]byte, n*2)
	for i := range out {
		out[i] = '0'
	}
	return string(out)
}
