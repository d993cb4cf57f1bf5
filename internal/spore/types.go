// Package spore resolves spore and cluster cells on chain and parses
// their molecule-encoded payloads into the structures the decode
// pipeline needs (spec §4.D).
package spore

import "encoding/json"

// SporeCellContent is the parsed data blob of a spore cell.
type SporeCellContent struct {
	ContentType string
	DNA         string // hex, no 0x prefix
	ClusterID   string // hex, no 0x prefix
}

// DecoderLocation names how a DecoderDescriptor should be resolved.
type DecoderLocation string

const (
	LocationTypeID     DecoderLocation = "type_id"
	LocationCodeHash   DecoderLocation = "code_hash"
	LocationTypeScript DecoderLocation = "type_script"
)

// DecoderDescriptor names a decoder binary and how to fetch it.
type DecoderDescriptor struct {
	Location DecoderLocation `json:"location"`
	Hash     string          `json:"hash,omitempty"`
	Script   *DescriptorScript `json:"script,omitempty"`
}

// DescriptorScript is the raw script form used by location=type_script.
type DescriptorScript struct {
	CodeHash string `json:"code_hash"`
	HashType string `json:"hash_type"`
	Args     string `json:"args"`
}

// DecoderStage is one V0-shaped entry: a decoder plus the pattern it is
// invoked with. A V0 ClusterDescription has exactly one implicit stage;
// a V1 ClusterDescription is an ordered sequence of these.
type DecoderStage struct {
	Decoder DecoderDescriptor `json:"decoder"`
	Pattern json.RawMessage   `json:"pattern"`
}

// DOBVersion discriminates the V0/V1 tagged union inside ClusterDescription.
type DOBVersion int

const (
	DOBVersionV0 DOBVersion = 0
	DOBVersionV1 DOBVersion = 1
)

// ClusterDescription is the parsed JSON of a cluster cell's description.
type ClusterDescription struct {
	Description string
	Version     DOBVersion
	// V0 holds the single stage when Version == DOBVersionV0.
	V0 *DecoderStage
	// V1 holds the ordered stage chain when Version == DOBVersionV1.
	V1 []DecoderStage
}

// clusterDescriptionWire is the on-chain JSON shape: {description, dob: {...}}
// where dob carries an optional "ver" tag (absent => V0) and either a
// {decoder, pattern} pair (V0) or a {decoders: [...]} list (V1).
type clusterDescriptionWire struct {
	Description string `json:"description"`
	Dob         struct {
		Ver      *int              `json:"ver,omitempty"`
		Decoder  *DecoderDescriptor `json:"decoder,omitempty"`
		Pattern  json.RawMessage    `json:"pattern,omitempty"`
		Decoders []DecoderStage     `json:"decoders,omitempty"`
	} `json:"dob"`
}
