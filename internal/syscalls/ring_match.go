package syscalls

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sporeprotocol/dob-decoder-go/internal/chainrpc"
	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
	"github.com/sporeprotocol/dob-decoder-go/internal/riscv"
	"github.com/sporeprotocol/dob-decoder-go/internal/spore"
)

// LiveCellFetcher is the subset of chainrpc.Client the ring-traversal
// syscall needs, narrowed for test injection.
type LiveCellFetcher interface {
	GetLiveCell(ctx context.Context, out chainrpc.OutPoint, withData bool) (*chainrpc.CellWithStatus, error)
}

// RingMatch implements the DOB-ring traversal syscall (spec §4.F.3). It
// shares CombineImages's A7 dispatch value: a host is built with exactly
// one of the two registered, never both, matching the variant it serves.
type RingMatch struct {
	Chain           LiveCellFetcher
	SeedTailTypeHash string // the expected ring terminator, fixed at host construction
}

func (RingMatch) Number() int64 { return CombineImagesSyscallNumber }

func (r RingMatch) Handle(m *riscv.Machine) (bool, error) {
	mem := m.Memory()

	bufferAddr := m.Reg(riscv.RegA0)
	bufferLenAddr := m.Reg(riscv.RegA1)
	outPointAddr := m.Reg(riscv.RegA2)
	clusterTypeHashAddr := m.Reg(riscv.RegA3)

	bufferLen, err := mem.Load64(bufferLenAddr)
	if err != nil {
		return false, err
	}

	outPointBytes, err := mem.LoadBytes(outPointAddr, 36) // tx_hash(32) + index(4)
	if err != nil {
		return false, err
	}
	clusterTypeHashBytes, err := mem.LoadBytes(clusterTypeHashAddr, 32)
	if err != nil {
		return false, err
	}
	requestedCluster := hex.EncodeToString(clusterTypeHashBytes)

	mapping, err := r.walk(context.Background(), outPointBytes)
	if err != nil {
		return false, err
	}

	dnas, found := mapping[requestedCluster]
	var stream string
	if found {
		stream = strings.Join(dnas, "|")
	}

	streamBytes := []byte(stream)
	if bufferLen == 0 {
		return true, mem.Store64(bufferLenAddr, uint64(len(streamBytes)))
	}

	writeLen := bufferLen
	if uint64(len(streamBytes)) < writeLen {
		writeLen = uint64(len(streamBytes))
	}
	if err := mem.StoreBytes(bufferAddr, streamBytes[:writeLen]); err != nil {
		return false, err
	}
	if err := mem.Store64(bufferLenAddr, writeLen); err != nil {
		return false, err
	}
	return true, nil
}

// walk follows the lock-script args chain from the seed out-point,
// collecting (cluster_id -> []dna) in order of insertion, until the
// terminator type-hash is reached.
func (r RingMatch) walk(ctx context.Context, seedOutPoint []byte) (map[string][]string, error) {
	mapping := make(map[string][]string)

	txHash := hex.EncodeToString(seedOutPoint[:32])
	index := seedOutPoint[32:36]

	for {
		cell, err := r.Chain.GetLiveCell(ctx, chainrpc.OutPoint{
			TxHash: chainrpc.Hex32("0x" + txHash),
			Index:  fmt.Sprintf("0x%x", leUint32(index)),
		}, true)
		if err != nil {
			return nil, err
		}
		if !cell.Live() || cell.Cell.Output.Type == nil || cell.Cell.Data == nil {
			return nil, dobtype.New(dobtype.KindInvalidNextDobRingPointer, "ring cell missing type script or data")
		}

		data, err := hexDecodeTrimmed(string(cell.Cell.Data.Content))
		if err != nil {
			return nil, dobtype.Wrap(dobtype.KindInvalidNextDobRingPointer, "decode ring cell data", err)
		}
		content, err := spore.DecodeCellData(data)
		if err != nil {
			return nil, dobtype.Wrap(dobtype.KindInvalidNextDobRingPointer, "parse ring cell spore content", err)
		}
		mapping[content.ClusterID] = append(mapping[content.ClusterID], content.DNA)

		args, err := hexDecodeTrimmed(string(cell.Cell.Output.Lock.Args))
		if err != nil {
			return nil, dobtype.Wrap(dobtype.KindInvalidNextDobRingPointer, "decode lock script args", err)
		}

		switch len(args) {
		case 36: // next hop: another out-point
			txHash = hex.EncodeToString(args[:32])
			index = args[32:36]
		case 32: // ring terminator: a type hash
			if hex.EncodeToString(args) != r.SeedTailTypeHash {
				return nil, dobtype.New(dobtype.KindDobRingUncirclelized,
					"ring terminator type hash does not match the seed confirmation hash")
			}
			return mapping, nil
		default:
			return nil, dobtype.New(dobtype.KindInvalidNextDobRingPointer,
				fmt.Sprintf("lock script args has unexpected length %d (want 36 or 32)", len(args)))
		}
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func hexDecodeTrimmed(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
