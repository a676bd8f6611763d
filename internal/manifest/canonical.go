package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize renders the manifest as JSON with sorted mapping keys and no
// insignificant whitespace. The manifest is marshaled through its JSON tag
// set, decoded into generic maps (numbers kept as literals), and marshaled
// again: encoding/json sorts map keys and emits minimal whitespace via
// Marshal (as opposed to MarshalIndent), so the byte sequence is
// deterministic and independent of the original YAML key order or
// formatting.
func Canonicalize(m *Manifest) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("canonicalize manifest: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize manifest: %w", err)
	}
	sorted, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize manifest: %w", err)
	}
	return sorted, nil
}

// Hash computes the SHA-256 hex digest of the manifest's canonical form.
func Hash(m *Manifest) (string, error) {
	canonical, err := Canonicalize(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
