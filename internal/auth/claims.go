package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Wildcard is the claims key that acts as a fallback for namespaces without
// an explicit entry.
const Wildcard = "*"

// Access is the requested access mode of an operation.
type Access string

const (
	AccessRead  Access = "r"
	AccessWrite Access = "w"
)

// Claims maps a namespace (or the wildcard) to an access mode: r, w or rw.
type Claims map[string]string

func (c Claims) validate() error {
	if len(c) == 0 {
		return fmt.Errorf("scoped token requires at least one claims entry")
	}
	for ns, mode := range c {
		if ns == "" {
			return fmt.Errorf("claims entry has an empty namespace")
		}
		if !validModes[mode] {
			return fmt.Errorf("claims entry %q has invalid mode %q (want r, w or rw)", ns, mode)
		}
	}
	return nil
}

// canonicalJSON serializes the claims deterministically: keys sorted
// lexicographically by byte value, no whitespace. The verifier trusts
// whatever bytes the MAC covers; the generator always emits this form.
func (c Claims) canonicalJSON() []byte {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		val, _ := json.Marshal(c[k])
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func parseClaims(raw []byte) (Claims, error) {
	var c Claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Permits reports whether the token grants the requested access on the
// namespace. Full-access tokens permit everything. Scoped tokens look up
// the namespace, falling back to the wildcard entry; absence denies.
func (t *Token) Permits(namespace string, access Access) bool {
	if t.FullAccess() {
		return true
	}
	mode, ok := t.Claims[namespace]
	if !ok {
		mode, ok = t.Claims[Wildcard]
	}
	if !ok {
		return false
	}
	return strings.Contains(mode, string(access))
}
