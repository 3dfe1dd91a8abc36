package directory

import (
	"bytes"
	"encoding/json"
)

// Entry is a normalized directory entry: attribute name to value. Values are
// strings, []string for multi-valued attributes, []byte for opaque binary
// attributes, time.Time for timestamp attributes and []Entry for resolved
// groups.
type Entry map[string]any

// DN returns the entry's distinguished name, already lower-cased by the
// normalizer.
func (e Entry) DN() string {
	dn, _ := e["dn"].(string)
	return dn
}

// AccountName returns the entry's account name (sAMAccountName or uid),
// already lower-cased by the normalizer. Attribute names are stored as the
// server returned them, so the lookup folds name casing.
func (e Entry) AccountName() string {
	for _, attr := range accountNameAttributes {
		if name, ok := e[attr].(string); ok && name != "" {
			return name
		}
	}

	for key, value := range e {
		if !attributeInClass(key, accountNameAttributes) {
			continue
		}
		if name, ok := value.(string); ok && name != "" {
			return name
		}
	}

	return ""
}

// Equal reports whether two entries hold the same values. Comparison goes
// through JSON so that entries restored from the cache compare equal to live
// ones regardless of concrete value types.
func (e Entry) Equal(other Entry) bool {
	a, err := json.Marshal(e)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}
