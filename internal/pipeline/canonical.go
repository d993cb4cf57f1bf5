package pipeline

import "encoding/json"

// canonicalJSON re-serializes arbitrary JSON with map keys in sorted
// order — Go's encoding/json already does this for map[string]any, so
// round-tripping through a generic value is sufficient to obtain the
// deterministic encoding the pipeline needs for pattern/output chaining
// (spec §4.G "canonical JSON serialization").
func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// patternArgument renders a ClusterDescription stage's pattern the way
// the decoder guest expects it as an argv string: if the pattern is a
// bare JSON string, its unquoted value is used verbatim; otherwise its
// canonical JSON serialization is used (spec §4.G V0 branch).
func patternArgument(pattern json.RawMessage) (string, error) {
	var asString string
	if err := json.Unmarshal(pattern, &asString); err == nil {
		return asString, nil
	}
	canon, err := canonicalJSON(pattern)
	if err != nil {
		return "", err
	}
	return string(canon), nil
}
