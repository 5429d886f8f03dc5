package state

import (
	"encoding/json"
	"strings"
)

// Key addresses a cache entry: an entity kind followed by identifying
// parameters. Keys compare by their serialized form.
type Key []string

// NewKey builds a Key from its parts.
func NewKey(parts ...string) Key {
	return Key(append([]string(nil), parts...))
}

// String returns the canonical serialization used for equality and map keys.
func (k Key) String() string {
	if len(k) == 0 {
		return "[]"
	}
	b, err := json.Marshal([]string(k))
	if err != nil {
		return "[" + strings.Join(k, ",") + "]"
	}
	return string(b)
}

// Kind returns the entity kind, the first element.
func (k Key) Kind() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// Equal reports whether both keys serialize identically.
func (k Key) Equal(other Key) bool {
	return k.HasPrefix(other) && len(k) == len(other)
}

// HasPrefix reports whether prefix matches the leading elements of k.
// The empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Append returns a new key extended by parts; k is not modified.
func (k Key) Append(parts ...string) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}
