package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// EscapeDNValue escapes special characters in a DN attribute value according to RFC 4514.
//
//   - "Doe, John" → "Doe\, John"
//   - " John " → "\ John\ "
//   - "#123" → "\#123"
func EscapeDNValue(value string) string {
	if !NeedsDNEscaping(value) {
		return value
	}

	var result strings.Builder
	result.Grow(len(value) + 10)

	for i, r := range value {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';', '=':
			result.WriteRune('\\')
			result.WriteRune(r)
		case '#':
			if i == 0 {
				result.WriteRune('\\')
			}
			result.WriteRune(r)
		case ' ':
			if i == 0 || i == len(value)-1 {
				result.WriteRune('\\')
			}
			result.WriteRune(r)
		case 0:
			result.WriteString("\\00")
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// NeedsDNEscaping checks if a value contains characters that need DN escaping.
func NeedsDNEscaping(value string) bool {
	if value == "" {
		return false
	}

	if value[0] == ' ' || value[len(value)-1] == ' ' || value[0] == '#' {
		return true
	}

	return strings.ContainsAny(value, ",+\"\\<>;=\x00")
}

// formatRDN renders a parsed RDN with lower-case attribute types, the form
// eDirectory returns in entry DNs.
func formatRDN(rdn *ldap.RelativeDN) string {
	parts := make([]string, 0, len(rdn.Attributes))
	for _, attr := range rdn.Attributes {
		parts = append(parts, strings.ToLower(attr.Type)+"="+EscapeDNValue(attr.Value))
	}
	return strings.Join(parts, "+")
}

func formatRDNs(rdns []*ldap.RelativeDN) string {
	parts := make([]string, 0, len(rdns))
	for _, rdn := range rdns {
		parts = append(parts, formatRDN(rdn))
	}
	return strings.Join(parts, ",")
}

// NormalizeDN re-renders a DN with lower-case attribute types and canonical
// escaping. Values keep their case.
//
//	"CN=jdoe, OU=Users, O=Org" → "cn=jdoe,ou=Users,o=Org"
func NormalizeDN(dn string) (string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return "", nil
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	return formatRDNs(parsed.RDNs), nil
}

// ValidateDNSyntax validates that a string is a properly formatted Distinguished Name.
func ValidateDNSyntax(dn string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	if _, err := ldap.ParseDN(dn); err != nil {
		return fmt.Errorf("invalid DN syntax: %w", err)
	}

	return nil
}

// SplitDN separates a DN into its leading RDN and the parent DN.
//
//	"cn=jdoe,ou=users,o=org" → "cn=jdoe", "ou=users,o=org"
func SplitDN(dn string) (rdn, parent string, err error) {
	if dn == "" {
		return "", "", fmt.Errorf("DN cannot be empty")
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	if len(parsed.RDNs) == 0 {
		return "", "", fmt.Errorf("DN has no RDN: %s", dn)
	}

	return formatRDN(parsed.RDNs[0]), formatRDNs(parsed.RDNs[1:]), nil
}

// GetDNParent returns the parent DN by removing the first RDN component.
func GetDNParent(dn string) (string, error) {
	_, parent, err := SplitDN(dn)
	if err != nil {
		return "", err
	}

	if parent == "" {
		return "", fmt.Errorf("DN has no parent: %s", dn)
	}

	return parent, nil
}

// ExtractRDNValue returns the value of the leading RDN attribute of the given type.
// "cn" on "cn=jdoe,ou=users,o=org" returns "jdoe".
func ExtractRDNValue(dn, attrType string) (string, error) {
	if dn == "" {
		return "", fmt.Errorf("DN cannot be empty")
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	if len(parsed.RDNs) > 0 {
		for _, attr := range parsed.RDNs[0].Attributes {
			if strings.EqualFold(attr.Type, attrType) {
				return attr.Value, nil
			}
		}
	}

	return "", fmt.Errorf("attribute type '%s' not found in RDN of '%s'", attrType, dn)
}

// EqualDN reports whether two DNs name the same entry, ignoring case and
// insignificant whitespace.
func EqualDN(a, b string) bool {
	parsedA, err := ldap.ParseDN(a)
	if err != nil {
		return false
	}

	parsedB, err := ldap.ParseDN(b)
	if err != nil {
		return false
	}

	return parsedA.EqualFold(parsedB)
}
