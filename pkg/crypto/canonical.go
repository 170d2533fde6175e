package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalJSON re-encodes a JSON object into its canonical form: keys
// sorted lexicographically, compact separators, numbers preserved verbatim.
// Signers and the verifier must agree on this encoding byte-for-byte, so
// the payload is round-tripped through a map (Go sorts map keys when
// marshaling) with json.Number to avoid float re-formatting.
func CanonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode canonical payload: %w", err)
	}
	return out, nil
}
