package validators_test

import (
	"context"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/stretchr/testify/assert"

	"github.com/isometry/terraform-provider-edir/internal/provider/validators"
)

func TestDNValidator(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		val         types.String
		expectError bool
	}{
		"organization": {
			val: types.StringValue("o=example"),
		},
		"user container": {
			val: types.StringValue("ou=users,o=example"),
		},
		"user": {
			val: types.StringValue("cn=jdoe,ou=users,ou=staff,o=example"),
		},
		"upper-case types": {
			val: types.StringValue("CN=John Doe,OU=Users,O=Example"),
		},
		"escaped comma": {
			val: types.StringValue(`cn=Doe\, John,ou=users,o=example`),
		},
		"domain components": {
			val: types.StringValue("cn=admin,dc=example,dc=com"),
		},
		"empty": {
			val:         types.StringValue(""),
			expectError: true,
		},
		"not a dn": {
			val:         types.StringValue("not a dn"),
			expectError: true,
		},
		"null": {
			val: types.StringNull(),
		},
		"unknown": {
			val: types.StringUnknown(),
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			req := validator.StringRequest{
				Path:        path.Root("base_dn"),
				ConfigValue: tc.val,
			}
			resp := &validator.StringResponse{}

			validators.IsValidDN().ValidateString(context.Background(), req, resp)

			assert.Equal(t, tc.expectError, resp.Diagnostics.HasError(), "diagnostics: %v", resp.Diagnostics)
			if tc.expectError {
				assert.Equal(t, "Invalid Distinguished Name", resp.Diagnostics.Errors()[0].Summary())
			}
		})
	}
}

func TestDNValidator_Description(t *testing.T) {
	t.Parallel()

	v := validators.IsValidDN()
	assert.Contains(t, v.Description(context.Background()), "Distinguished Name")
	assert.Contains(t, v.MarkdownDescription(context.Background()), "`ou=users,o=example`")
}
