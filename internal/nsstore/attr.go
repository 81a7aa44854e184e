package nsstore

import "strings"

// userAttrPrefix namespaces caller-set attributes (Coordinator §4.1
// attr_set/attr_get/attr_del) away from the reserved lock.generation
// attribute so a client can never overwrite lock state via attr_set.
const userAttrPrefix = "user."

// UserAttrName returns the on-disk xattr name for a caller-visible attribute.
func UserAttrName(name string) string { return userAttrPrefix + name }

// IsUserAttrName reports whether raw is a caller-visible attribute name and
// returns its unprefixed form.
func IsUserAttrName(raw string) (string, bool) {
	if !strings.HasPrefix(raw, userAttrPrefix) {
		return "", false
	}
	return strings.TrimPrefix(raw, userAttrPrefix), true
}
