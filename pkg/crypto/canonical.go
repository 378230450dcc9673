package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Signature components separators and prefixes.
const (
	SigSeparator     = ":"
	SigPrefixEd25519 = "ed25519"
)

// CanonicalMarshal marshals v into canonical JSON (RFC 8785 / JCS): object
// keys sorted, no insignificant whitespace, no HTML escaping, no trailing
// newline. The stdlib encoder already sorts map keys and gives us a
// compact encoding; gowebpki/jcs.Transform is then applied to normalize
// number and string formatting to the JCS spec, which the stdlib encoder
// does not guarantee on its own.
func CanonicalMarshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "")

	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical encoding failed: %w", err)
	}

	ret := buf.Bytes()
	if len(ret) > 0 && ret[len(ret)-1] == '\n' {
		ret = ret[:len(ret)-1]
	}

	transformed, err := jcs.Transform(ret)
	if err != nil {
		return nil, fmt.Errorf("jcs transform failed: %w", err)
	}
	return transformed, nil
}

// CanonicalEqual reports whether two values produce byte-identical
// canonical encodings (the canonicalize∘parse∘canonicalize round-trip law).
func CanonicalEqual(a, b interface{}) (bool, error) {
	ab, err := CanonicalMarshal(a)
	if err != nil {
		return false, err
	}
	bb, err := CanonicalMarshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}
