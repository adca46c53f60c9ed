package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/function"

	"github.com/isometry/terraform-provider-edir/internal/edir"
)

var _ function.Function = &AddresslessFilterFunction{}

func NewAddresslessFilterFunction() function.Function {
	return &AddresslessFilterFunction{}
}

// AddresslessFilterFunction implements the addressless_filter function.
type AddresslessFilterFunction struct{}

func (f AddresslessFilterFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "addressless_filter"
}

func (f AddresslessFilterFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:             "Build the LDAP filter for users without an email-style common name",
		Description:         "Returns (&(cn=<prefix>*)(!(cn=*@*))) with the prefix escaped, the filter used by the edir_addressless_users data source.",
		MarkdownDescription: "Returns `(&(cn=<prefix>*)(!(cn=*@*)))` with the prefix escaped, the filter used by the `edir_addressless_users` data source.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:                "prefix",
				Description:         "Common name prefix.",
				MarkdownDescription: "Common name prefix.",
			},
		},
		Return: function.StringReturn{},
	}
}

func (f AddresslessFilterFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var prefix string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &prefix))
	if resp.Error != nil {
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, edir.EmailAddresslessFilter(prefix)))
}
