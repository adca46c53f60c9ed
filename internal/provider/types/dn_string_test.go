package types

import (
	"context"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/types/basetypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDNStringValue_StringSemanticEquals(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		oldValue DNStringValue
		newValue DNStringValue
		want     bool
	}{
		{"identical", DNString("cn=jdoe,ou=users,o=example"), DNString("cn=jdoe,ou=users,o=example"), true},
		{"case differs", DNString("CN=JDoe,OU=Users,O=Example"), DNString("cn=jdoe,ou=users,o=example"), true},
		{"whitespace after comma", DNString("cn=jdoe, ou=users, o=example"), DNString("cn=jdoe,ou=users,o=example"), true},
		{"different entry", DNString("cn=jdoe,ou=users,o=example"), DNString("cn=asmith,ou=users,o=example"), false},
		{"different container", DNString("cn=jdoe,ou=users,o=example"), DNString("cn=jdoe,ou=staff,o=example"), false},
		{"unparseable falls back to case folding", DNString("not a dn"), DNString("NOT A DN"), true},
		{"null and value", DNStringNull(), DNString("o=example"), false},
		{"both unknown", DNStringUnknown(), DNStringUnknown(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, diags := tt.oldValue.StringSemanticEquals(ctx, tt.newValue)
			require.False(t, diags.HasError())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDNStringValue_StringSemanticEquals_WrongType(t *testing.T) {
	_, diags := DNString("o=example").StringSemanticEquals(context.Background(), basetypes.NewStringValue("o=example"))
	assert.True(t, diags.HasError())
}

func TestDNStringSetValue_SetSemanticEquals(t *testing.T) {
	ctx := context.Background()

	set := func(dns ...string) DNStringSetValue {
		v, diags := DNStringSet(ctx, dns)
		require.False(t, diags.HasError())
		return v
	}

	tests := []struct {
		name     string
		oldValue DNStringSetValue
		newValue DNStringSetValue
		want     bool
	}{
		{
			name:     "same members in different case and order",
			oldValue: set("cn=a,ou=users,o=example", "cn=b,ou=users,o=example"),
			newValue: set("CN=B,OU=Users,O=Example", "CN=A,OU=Users,O=Example"),
			want:     true,
		},
		{
			name:     "different members",
			oldValue: set("cn=a,ou=users,o=example"),
			newValue: set("cn=c,ou=users,o=example"),
			want:     false,
		},
		{
			name:     "different sizes",
			oldValue: set("cn=a,ou=users,o=example"),
			newValue: set("cn=a,ou=users,o=example", "cn=b,ou=users,o=example"),
			want:     false,
		},
		{
			name:     "empty sets",
			oldValue: set(),
			newValue: set(),
			want:     true,
		},
		{
			name:     "null and empty",
			oldValue: DNStringSetNull(ctx),
			newValue: set(),
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, diags := tt.oldValue.SetSemanticEquals(ctx, tt.newValue)
			require.False(t, diags.HasError())
			assert.Equal(t, tt.want, got)
		})
	}
}
