package spore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sporeprotocol/dob-decoder-go/internal/chainrpc"
	"github.com/sporeprotocol/dob-decoder-go/internal/config"
	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
	"github.com/sporeprotocol/dob-decoder-go/internal/molecule"
)

// Reader resolves spore and cluster cells against the chain client, using
// the configured allow-lists of (code_hash, hash_type) pairs that validly
// produce spore / cluster cells (spec §3 Invariants, §4.D).
type Reader struct {
	chain    *chainrpc.Client
	settings *config.Settings
}

// New builds a Reader over a chain client and the resolved settings.
func New(chain *chainrpc.Client, settings *config.Settings) *Reader {
	return &Reader{chain: chain, settings: settings}
}

// FetchSpore locates the spore cell for spore_id and parses its content.
func (r *Reader) FetchSpore(ctx context.Context, sporeID string) (*SporeCellContent, error) {
	data, err := r.findCellData(ctx, r.settings.AvailableSpores, sporeID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, dobtype.New(dobtype.KindSporeIdNotFound, fmt.Sprintf("no spore cell found for id %s", sporeID))
	}

	content, err := decodeSporeData(data)
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindSporeDataUncompatible, "decode spore cell data", err)
	}

	if len(r.settings.ProtocolVersions) > 0 && !hasProtocolPrefix(content.ContentType, r.settings.ProtocolVersions) {
		return nil, dobtype.New(dobtype.KindDOBVersionUnexpected,
			fmt.Sprintf("content_type %q matches none of the configured protocol_versions", content.ContentType))
	}
	if content.ClusterID == "" {
		return nil, dobtype.New(dobtype.KindClusterIdNotSet, "spore cell data has no cluster_id")
	}
	return content, nil
}

// FetchCluster locates the cluster cell for clusterID and parses its
// description into a ClusterDescription.
func (r *Reader) FetchCluster(ctx context.Context, clusterID string) (*ClusterDescription, error) {
	data, err := r.findCellData(ctx, r.settings.AvailableClusters, clusterID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, dobtype.New(dobtype.KindClusterIdNotFound, fmt.Sprintf("no cluster cell found for id %s", clusterID))
	}
	return DecodeClusterCellData(data)
}

// DecodeClusterCellData parses a cluster cell's raw data blob into its
// description, without the on-chain lookup FetchCluster performs —
// exported for dob_raw_decode (spec §6.3), which is handed the cluster
// cell data directly rather than a cluster id to resolve.
func DecodeClusterCellData(data []byte) (*ClusterDescription, error) {
	fields, err := molecule.DecodeTable(data)
	if err != nil || len(fields) < 2 {
		return nil, dobtype.Wrap(dobtype.KindClusterDataUncompatible, "decode cluster cell data as molecule table", err)
	}
	descriptionBytes, err := molecule.DecodeBytes(fields[1])
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindClusterDataUncompatible, "decode cluster description bytes", err)
	}

	var wire clusterDescriptionWire
	if err := json.Unmarshal(descriptionBytes, &wire); err != nil {
		return nil, dobtype.Wrap(dobtype.KindClusterDataUncompatible, "parse cluster description JSON", err)
	}

	desc := &ClusterDescription{Description: wire.Description}
	ver := 0
	if wire.Dob.Ver != nil {
		ver = *wire.Dob.Ver
	}
	switch ver {
	case 0:
		desc.Version = DOBVersionV0
		if wire.Dob.Decoder == nil {
			return nil, dobtype.New(dobtype.KindClusterDataUncompatible, "V0 cluster description missing decoder")
		}
		desc.V0 = &DecoderStage{Decoder: *wire.Dob.Decoder, Pattern: wire.Dob.Pattern}
	case 1:
		desc.Version = DOBVersionV1
		desc.V1 = wire.Dob.Decoders
	default:
		return nil, dobtype.New(dobtype.KindDOBVersionNumberUndefined, fmt.Sprintf("unsupported dob.ver %d", ver))
	}
	return desc, nil
}

// findCellData iterates the configured script templates, building a
// search key typed with (code_hash, hash_type, args=idHex) and stopping
// at the first indexer hit. Returns nil data if no script template
// produces a hit.
func (r *Reader) findCellData(ctx context.Context, scripts []config.AvailableScript, idHex string) ([]byte, error) {
	args := "0x" + strings.TrimPrefix(idHex, "0x")
	for _, s := range scripts {
		key := chainrpc.SearchKey{
			Script: chainrpc.Script{
				CodeHash: chainrpc.Hex32(s.CodeHash),
				HashType: chainrpc.HashType(s.HashType),
				Args:     chainrpc.HexBytes(args),
			},
			ScriptType: chainrpc.ScriptRoleType,
		}
		page, err := r.chain.GetCells(ctx, key, 1, "")
		if err != nil {
			return nil, err
		}
		if len(page.Objects) == 0 {
			continue
		}
		data, err := hex.DecodeString(strings.TrimPrefix(string(page.Objects[0].OutputData), "0x"))
		if err != nil {
			return nil, dobtype.Wrap(dobtype.KindSporeDataUncompatible, "decode cell output_data hex", err)
		}
		return data, nil
	}
	return nil, nil
}

// DecodeCellData parses a spore cell's raw data blob into its content,
// without the allow-list / protocol-version validation FetchSpore applies
// — exported for callers (the dob_ring_match syscall) that already hold
// cell data from a different traversal and only need the parse step.
func DecodeCellData(data []byte) (*SporeCellContent, error) {
	return decodeSporeData(data)
}

// decodeSporeData parses a spore cell's molecule table into its three
// logical fields and extracts the DNA per the four permissive content
// shapes in spec §3.
func decodeSporeData(data []byte) (*SporeCellContent, error) {
	fields, err := molecule.DecodeTable(data)
	if err != nil || len(fields) < 2 {
		return nil, fmt.Errorf("decode spore molecule table: %w", err)
	}

	contentTypeBytes, err := molecule.DecodeBytes(fields[0])
	if err != nil {
		return nil, fmt.Errorf("decode content_type field: %w", err)
	}
	contentBytes, err := molecule.DecodeBytes(fields[1])
	if err != nil {
		return nil, fmt.Errorf("decode content field: %w", err)
	}

	var clusterIDHex string
	if len(fields) >= 3 {
		if raw, present, err := molecule.DecodeOptionalBytes(fields[2]); err == nil && present {
			clusterIDHex = hex.EncodeToString(raw)
		} else if err == nil {
			clusterIDHex = ""
		} else {
			// permissive fallback: some encoders store cluster_id as a
			// raw fixed-size field rather than a nested Bytes.
			clusterIDHex = hex.EncodeToString(fields[2])
		}
	}

	dna, err := extractDNA(contentBytes)
	if err != nil {
		return nil, err
	}

	return &SporeCellContent{
		ContentType: string(contentTypeBytes),
		DNA:         dna,
		ClusterID:   clusterIDHex,
	}, nil
}

// extractDNA implements the permissive parser from spec §3 / Testable
// Property 7: a 0x00-prefixed raw form, or one of three JSON shapes
// (string, array-of-which-first-is-DNA, object with a "dna" key).
func extractDNA(content []byte) (string, error) {
	if len(content) > 0 && content[0] == 0x00 {
		return hex.EncodeToString(content[1:]), nil
	}

	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return asString, nil
	}

	var asArray []json.RawMessage
	if err := json.Unmarshal(content, &asArray); err == nil && len(asArray) > 0 {
		var first string
		if err := json.Unmarshal(asArray[0], &first); err == nil {
			return first, nil
		}
	}

	var asObject struct {
		DNA string `json:"dna"`
	}
	if err := json.Unmarshal(content, &asObject); err == nil && asObject.DNA != "" {
		return asObject.DNA, nil
	}

	return "", dobtype.New(dobtype.KindDOBContentUnexpected, "spore content matches none of the recognized DNA shapes")
}

func hasProtocolPrefix(contentType string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(contentType, p) {
			return true
		}
	}
	return false
}
