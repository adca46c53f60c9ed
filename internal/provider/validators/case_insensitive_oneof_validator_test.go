package validators

import (
	"context"
	"strings"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

func TestCaseInsensitiveOneOf(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		validator validator.String
		input     types.String
		expectErr bool
	}{
		"valid-exact-match": {
			validator: CaseInsensitiveOneOf("cn", "uid"),
			input:     types.StringValue("cn"),
		},
		"valid-uppercase": {
			validator: CaseInsensitiveOneOf("cn", "uid"),
			input:     types.StringValue("CN"),
		},
		"valid-mixed-case": {
			validator: CaseInsensitiveOneOf("cn", "uid"),
			input:     types.StringValue("Uid"),
		},
		"valid-with-whitespace": {
			validator: CaseInsensitiveOneOf("cn", "uid"),
			input:     types.StringValue("  uid  "),
		},
		"valid-canonical-mixed-case": {
			validator: CaseInsensitiveOneOf("givenName", "sn"),
			input:     types.StringValue("GIVENNAME"),
		},
		"invalid-value": {
			validator: CaseInsensitiveOneOf("cn", "uid"),
			input:     types.StringValue("mail"),
			expectErr: true,
		},
		"invalid-partial-match": {
			validator: CaseInsensitiveOneOf("cn", "uid"),
			input:     types.StringValue("u"),
			expectErr: true,
		},
		"invalid-empty": {
			validator: CaseInsensitiveOneOf("cn", "uid"),
			input:     types.StringValue(""),
			expectErr: true,
		},
		"null-value": {
			validator: CaseInsensitiveOneOf("cn", "uid"),
			input:     types.StringNull(),
		},
		"unknown-value": {
			validator: CaseInsensitiveOneOf("cn", "uid"),
			input:     types.StringUnknown(),
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			req := validator.StringRequest{
				Path:        path.Root("test"),
				ConfigValue: testCase.input,
			}
			resp := validator.StringResponse{}

			testCase.validator.ValidateString(context.Background(), req, &resp)

			if testCase.expectErr && !resp.Diagnostics.HasError() {
				t.Fatal("expected error, got none")
			}

			if !testCase.expectErr && resp.Diagnostics.HasError() {
				t.Fatalf("unexpected error: %s", resp.Diagnostics)
			}
		})
	}
}

func TestCaseInsensitiveOneOf_Description(t *testing.T) {
	t.Parallel()

	v := CaseInsensitiveOneOf("cn", "uid")
	desc := v.Description(context.Background())

	if desc == "" {
		t.Fatal("expected non-empty description")
	}

	// Check that description contains the valid values
	containsValues := false
	for _, expected := range []string{"cn", "uid"} {
		if strings.Contains(desc, expected) {
			containsValues = true
			break
		}
	}

	if !containsValues {
		t.Fatalf("expected description to contain valid values, got: %s", desc)
	}
}

func TestCaseInsensitiveOneOf_MarkdownDescription(t *testing.T) {
	t.Parallel()

	v := CaseInsensitiveOneOf("cn", "uid")
	mdDesc := v.MarkdownDescription(context.Background())
	desc := v.Description(context.Background())

	if mdDesc != desc {
		t.Fatalf("expected markdown description to match description, got: %s vs %s", mdDesc, desc)
	}
}
