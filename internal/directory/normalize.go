package directory

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
)

// Attribute classes recognized by the normalizer. All other attributes pass
// through unchanged.
var (
	accountNameAttributes = []string{"sAMAccountName", "uid"}
	timestampAttributes   = []string{"whenCreated", "whenChanged"}
	binaryAttributes      = []string{"thumbnailPhoto", "jpegPhoto", "photo"}
)

// binarySuffix is the transport suffix carried by binary-valued attribute
// names, stripped before normalization.
const binarySuffix = ";binary"

const guidLength = 16

// generalizedTimePattern matches the leading seven digit pairs of an LDAP
// generalized-time string (YYYYMMDDHHMMSS).
var generalizedTimePattern = regexp.MustCompile(`^\d{14}`)

// NormalizeEntry converts a raw directory entry into a canonical Entry. The
// distinguished name and account-name attributes are lower-cased, objectGUID
// is rendered in the mixed-endian display format, objectSid is rendered as an
// S-1-... string, timestamp attributes are parsed to UTC instants and photo
// attributes are kept as opaque bytes. The function never fails; malformed
// values degrade to empty or absent.
func NormalizeEntry(raw *ldap.Entry) Entry {
	entry := Entry{"dn": strings.ToLower(raw.DN)}

	for _, attr := range raw.Attributes {
		name := strings.TrimSuffix(attr.Name, binarySuffix)

		switch {
		case strings.EqualFold(name, "objectGUID"):
			entry[name] = normalizeGUID(firstByteValue(attr))
		case strings.EqualFold(name, "objectSid"):
			entry[name] = normalizeSID(firstByteValue(attr))
		case attributeInClass(name, timestampAttributes):
			if t, ok := parseGeneralizedTime(firstValue(attr)); ok {
				entry[name] = t
			}
		case strings.EqualFold(name, "distinguishedName"):
			entry[name] = strings.ToLower(firstValue(attr))
		case attributeInClass(name, accountNameAttributes):
			entry[name] = strings.ToLower(firstValue(attr))
		case attributeInClass(name, binaryAttributes):
			if len(attr.ByteValues) > 0 {
				entry[name] = attr.ByteValues[0]
			}
		default:
			if len(attr.Values) == 1 {
				entry[name] = attr.Values[0]
			} else {
				entry[name] = append([]string(nil), attr.Values...)
			}
		}
	}

	return entry
}

// normalizeGUID renders a raw 16-byte objectGUID in the mixed-endian display
// convention: the first three groups are byte-swapped, the last two are not.
// Input of any other length yields an empty string.
func normalizeGUID(b []byte) string {
	if len(b) != guidLength {
		return ""
	}

	guid := fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		b[3], b[2], b[1], b[0],
		b[5], b[4],
		b[7], b[6],
		b[8], b[9],
		b[10], b[11], b[12], b[13], b[14], b[15])

	return strings.ToUpper(guid)
}

// normalizeSID renders a raw binary objectSid as its S-1-... string form.
// Malformed input yields an empty string.
func normalizeSID(b []byte) string {
	// Revision byte, subauthority count, 6-byte authority, then one 4-byte
	// word per subauthority.
	if len(b) < 8 || len(b) != 8+4*int(b[1]) {
		return ""
	}

	return objectsid.Decode(b).String()
}

// parseGeneralizedTime parses a generalized-time string of the form
// YYYYMMDDHHMMSS...Z into a UTC instant. The second return value is false
// when the string does not carry seven leading digit pairs.
func parseGeneralizedTime(s string) (time.Time, bool) {
	if !generalizedTimePattern.MatchString(s) {
		return time.Time{}, false
	}

	t, err := time.Parse("20060102150405", s[:14])
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

func attributeInClass(name string, class []string) bool {
	for _, attr := range class {
		if strings.EqualFold(name, attr) {
			return true
		}
	}
	return false
}

func firstValue(attr *ldap.EntryAttribute) string {
	if len(attr.Values) == 0 {
		return ""
	}
	return attr.Values[0]
}

func firstByteValue(attr *ldap.EntryAttribute) []byte {
	if len(attr.ByteValues) > 0 {
		return attr.ByteValues[0]
	}
	if len(attr.Values) > 0 {
		return []byte(attr.Values[0])
	}
	return nil
}
