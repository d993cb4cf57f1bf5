package pipeline

import "encoding/json"

// Trait is one named trait a decoder emits, serialized as
// {"type_tag": value} where the tag is the JSON object's single key
// (spec §4.G StandardDOBOutput).
type Trait map[string]json.RawMessage

// StandardDOBOutput is one element of a decoder's rendered output list.
type StandardDOBOutput struct {
	Name   string  `json:"name"`
	Traits []Trait `json:"traits"`
}

// DecodeResult is what decode_dna returns to the RPC surface: the
// rendered output line and the dob content it was computed from (spec
// §6.3 dob_decode's {render_output, dob_content} shape).
type DecodeResult struct {
	RenderOutput string          `json:"render_output"`
	DobContent   json.RawMessage `json:"dob_content"`
}
