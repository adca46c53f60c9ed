package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/isometry/terraform-provider-edir/internal/edir"
)

// managedAttributes are owned by dedicated schema attributes and may not
// appear in the free-form attributes map.
var managedAttributes = []string{
	edir.AttrCN,
	edir.AttrUID,
	edir.AttrGivenName,
	edir.AttrSN,
	edir.AttrMail,
	edir.AttrUserPassword,
	edir.AttrObjectClass,
}

// reservedAttributeKeys are the keys rejected in the attributes map: the
// managed attributes and the field aliases that resolve onto them.
var reservedAttributeKeys = append(slices.Clone(managedAttributes),
	edir.AliasUsername,
	edir.AliasFirstname,
	edir.AliasLastname,
	edir.AliasEmail,
	edir.AliasPassword,
)

func isReservedAttribute(name string) bool {
	return slices.ContainsFunc(reservedAttributeKeys, func(a string) bool {
		return strings.EqualFold(a, name)
	})
}

// extraAttributes reads the attributes map, rejecting reserved keys.
func extraAttributes(ctx context.Context, m types.Map) (map[string]string, diag.Diagnostics) {
	attributes, diags := stringMapFromTerraform(ctx, m)

	for _, name := range sortedKeys(attributes) {
		if isReservedAttribute(name) {
			diags.AddAttributeError(
				path.Root("attributes").AtMapKey(name),
				"Reserved Attribute Name",
				fmt.Sprintf("%q is managed by a dedicated argument and cannot be set in attributes.", name),
			)
		}
	}

	return attributes, diags
}

// entryValue returns the first value of attribute name, matched case-insensitively.
func entryValue(entry *ldap.Entry, name string) string {
	for _, a := range entry.Attributes {
		if strings.EqualFold(a.Name, name) && len(a.Values) > 0 {
			return a.Values[0]
		}
	}
	return ""
}

// stringOrNull maps "" to null.
func stringOrNull(v string) types.String {
	if v == "" {
		return types.StringNull()
	}
	return types.StringValue(v)
}

// stringMapFromTerraform converts a map(string) value; null and unknown
// yield an empty map.
func stringMapFromTerraform(ctx context.Context, m types.Map) (map[string]string, diag.Diagnostics) {
	result := make(map[string]string)
	if m.IsNull() || m.IsUnknown() {
		return result, nil
	}

	diags := m.ElementsAs(ctx, &result, false)
	return result, diags
}

// entryAttributesMap returns every attribute of entry as a map of string lists.
func entryAttributesMap(ctx context.Context, entry *ldap.Entry) (types.Map, diag.Diagnostics) {
	var diags diag.Diagnostics

	elements := make(map[string]attr.Value, len(entry.Attributes))
	for _, a := range entry.Attributes {
		if isSensitiveAttribute(a.Name) {
			continue
		}
		values, d := types.ListValueFrom(ctx, types.StringType, a.Values)
		diags.Append(d...)
		elements[a.Name] = values
	}

	m, d := types.MapValue(types.ListType{ElemType: types.StringType}, elements)
	diags.Append(d...)

	return m, diags
}

func isSensitiveAttribute(name string) bool {
	return strings.EqualFold(name, edir.AttrUserPassword)
}

// sortedKeys returns the keys of m in order.
func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
