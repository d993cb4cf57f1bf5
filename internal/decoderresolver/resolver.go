// Package decoderresolver resolves a DecoderDescriptor to a local file
// path, fetching and caching the decoder binary from chain on first
// demand (spec §4.C).
package decoderresolver

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/sporeprotocol/dob-decoder-go/internal/chainrpc"
	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
	"github.com/sporeprotocol/dob-decoder-go/internal/spore"
)

// typeIDCodeHash is the standard CKB type-id script's code_hash, used to
// build a search key when Location is LocationTypeID.
const typeIDCodeHash = "0x00000000000000000000000000000000000000000000000000545950455f4944"

// DecoderDeployment pins a pre-declared on-chain decoder deployment by
// its content hash, mirroring config.DecoderDeployment without importing
// the config package (keeps this package's dependency surface narrow and
// test-friendly).
type DecoderDeployment struct {
	CodeHash string
	TxHash   string
	OutIndex uint32
}

// Resolver resolves decoder descriptors to cached binary paths on disk.
// A single Resolver is safe for concurrent use: concurrent resolves of
// the same descriptor are deduplicated via singleflight so only one
// fetch hits the chain.
type Resolver struct {
	chain       *chainrpc.Client
	cacheDir    string
	deployments []DecoderDeployment
	group       singleflight.Group
}

// New builds a Resolver. cacheDir is not touched here; it is created on the
// first write of a fetched decoder binary.
func New(chain *chainrpc.Client, cacheDir string, deployments []DecoderDeployment) *Resolver {
	return &Resolver{chain: chain, cacheDir: cacheDir, deployments: deployments}
}

// Resolve returns the on-disk path to the decoder binary named by
// descriptor, fetching and caching it on first demand.
func (r *Resolver) Resolve(ctx context.Context, descriptor spore.DecoderDescriptor) (string, error) {
	path, err := r.cachePath(descriptor)
	if err != nil {
		return "", err
	}

	if _, statErr := os.Stat(path); statErr == nil {
		return path, nil
	}

	v, err, _ := r.group.Do(path, func() (interface{}, error) {
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
		data, fetchErr := r.fetch(ctx, descriptor)
		if fetchErr != nil {
			return nil, fetchErr
		}
		if writeErr := writeFileAtomic(path, data); writeErr != nil {
			return nil, dobtype.Wrap(dobtype.KindDecoderBinaryNotFoundInCell, "persist decoder binary to cache", writeErr)
		}
		return path, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// cachePath computes the deterministic cache filename for a descriptor,
// per spec §4.C step 1.
func (r *Resolver) cachePath(descriptor spore.DecoderDescriptor) (string, error) {
	var name string
	switch descriptor.Location {
	case spore.LocationCodeHash:
		name = "code_hash_" + normalizeHex(descriptor.Hash) + ".bin"
	case spore.LocationTypeID:
		name = "type_id_" + normalizeHex(descriptor.Hash) + ".bin"
	case spore.LocationTypeScript:
		if descriptor.Script == nil {
			return "", dobtype.New(dobtype.KindDecoderIdNotFound, "type_script descriptor missing script")
		}
		name = "type_script_" + normalizeHex(scriptHash(*descriptor.Script)) + ".bin"
	default:
		return "", dobtype.New(dobtype.KindDecoderIdNotFound, fmt.Sprintf("unknown decoder location %q", descriptor.Location))
	}
	return filepath.Join(r.cacheDir, name), nil
}

func (r *Resolver) fetch(ctx context.Context, descriptor spore.DecoderDescriptor) ([]byte, error) {
	switch descriptor.Location {
	case spore.LocationCodeHash:
		return r.fetchByCodeHash(ctx, descriptor)
	case spore.LocationTypeID:
		return r.fetchByTypeID(ctx, descriptor)
	case spore.LocationTypeScript:
		return r.fetchByTypeScript(ctx, descriptor)
	default:
		return nil, dobtype.New(dobtype.KindDecoderIdNotFound, fmt.Sprintf("unknown decoder location %q", descriptor.Location))
	}
}

func (r *Resolver) fetchByCodeHash(ctx context.Context, descriptor spore.DecoderDescriptor) ([]byte, error) {
	var dep *DecoderDeployment
	for i := range r.deployments {
		if strings.EqualFold(r.deployments[i].CodeHash, descriptor.Hash) {
			dep = &r.deployments[i]
			break
		}
	}
	if dep == nil {
		return nil, dobtype.New(dobtype.KindNativeDecoderNotFound,
			fmt.Sprintf("no onchain_decoder_deployment entry for code_hash %s", descriptor.Hash))
	}

	cell, err := r.chain.GetLiveCell(ctx, chainrpc.OutPoint{
		TxHash: chainrpc.Hex32(dep.TxHash),
		Index:  fmt.Sprintf("0x%x", dep.OutIndex),
	}, true)
	if err != nil {
		return nil, err
	}
	if !cell.Live() || cell.Cell.Data == nil {
		return nil, dobtype.New(dobtype.KindDecoderBinaryNotFoundInCell,
			fmt.Sprintf("decoder deployment cell %s:%d not live or has no data", dep.TxHash, dep.OutIndex))
	}

	data, err := decodeHexBytes(cell.Cell.Data.Content)
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindDecoderBinaryNotFoundInCell, "decode decoder cell data", err)
	}

	sum := blake2b.Sum256(data)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), normalizeHex(descriptor.Hash)) {
		return nil, dobtype.New(dobtype.KindDecoderBinaryHashInvalid,
			fmt.Sprintf("blake2b_256(data)=%x does not match declared hash %s", sum, descriptor.Hash))
	}
	return data, nil
}

func (r *Resolver) fetchByTypeID(ctx context.Context, descriptor spore.DecoderDescriptor) ([]byte, error) {
	key := chainrpc.SearchKey{
		Script: chainrpc.Script{
			CodeHash: chainrpc.Hex32(typeIDCodeHash),
			HashType: chainrpc.HashTypeType,
			Args:     chainrpc.HexBytes("0x" + normalizeHex(descriptor.Hash)),
		},
		ScriptType: chainrpc.ScriptRoleType,
	}
	page, err := r.chain.GetCells(ctx, key, 1, "")
	if err != nil {
		return nil, err
	}
	if len(page.Objects) == 0 {
		return nil, dobtype.New(dobtype.KindDecoderIdNotFound,
			fmt.Sprintf("no cell with type-id args %s", descriptor.Hash))
	}
	data, err := decodeHexBytes(page.Objects[0].OutputData)
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindDecoderBinaryNotFoundInCell, "decode type-id decoder cell data", err)
	}
	return data, nil
}

func (r *Resolver) fetchByTypeScript(ctx context.Context, descriptor spore.DecoderDescriptor) ([]byte, error) {
	if descriptor.Script == nil {
		return nil, dobtype.New(dobtype.KindDecoderIdNotFound, "type_script descriptor missing script")
	}
	key := chainrpc.SearchKey{
		Script: chainrpc.Script{
			CodeHash: chainrpc.Hex32(descriptor.Script.CodeHash),
			HashType: chainrpc.HashType(descriptor.Script.HashType),
			Args:     chainrpc.HexBytes(descriptor.Script.Args),
		},
		ScriptType: chainrpc.ScriptRoleType,
	}
	page, err := r.chain.GetCells(ctx, key, 1, "")
	if err != nil {
		return nil, err
	}
	if len(page.Objects) == 0 {
		return nil, dobtype.New(dobtype.KindDecoderIdNotFound, "no cell matching type_script descriptor")
	}
	data, err := decodeHexBytes(page.Objects[0].OutputData)
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindDecoderBinaryNotFoundInCell, "decode type_script decoder cell data", err)
	}
	return data, nil
}

func decodeHexBytes(h chainrpc.HexBytes) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(string(h), "0x"))
}

func normalizeHex(h string) string {
	return strings.ToLower(strings.TrimPrefix(h, "0x"))
}

// scriptHash stands in for the chain's script-hash function: decoder
// cache-filename purposes only require a stable, collision-resistant
// name, so blake2b-256 over the script's canonical fields is sufficient.
func scriptHash(s spore.DescriptorScript) string {
	sum := blake2b.Sum256([]byte(s.CodeHash + "|" + s.HashType + "|" + s.Args))
	return hex.EncodeToString(sum[:])
}

// writeFileAtomic writes data to path via a temp file in the same
// directory followed by a rename, so a crash mid-write never leaves a
// partially-written decoder binary at the final path.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".decoder-tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpName) //nolint:errcheck
		return writeErr
	}
	if closeErr != nil {
		os.Remove(tmpName) //nolint:errcheck
		return closeErr
	}
	return os.Rename(tmpName, path)
}
