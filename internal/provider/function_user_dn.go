package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/function"

	"github.com/isometry/terraform-provider-edir/internal/edir"
	ldapclient "github.com/isometry/terraform-provider-edir/internal/ldap"
)

var _ function.Function = &UserDNFunction{}

func NewUserDNFunction() function.Function {
	return &UserDNFunction{}
}

// UserDNFunction implements the user_dn function.
type UserDNFunction struct{}

// Metadata returns the function name.
func (f UserDNFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "user_dn"
}

// Definition returns the function schema.
func (f UserDNFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:     "Build the distinguished name of an eDirectory user",
		Description: "Returns cn=<username>,<base_dn>, the distinguished name the provider gives a user created with that username.",
		MarkdownDescription: "Returns `cn=<username>,<base_dn>`, the distinguished name the provider gives a user created with that username.\n\n" +
			"The username is used verbatim and must not contain DN special characters.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:                "username",
				Description:         "Common name of the user.",
				MarkdownDescription: "Common name of the user.",
			},
			function.StringParameter{
				Name:                "base_dn",
				Description:         "Container the user lives in.",
				MarkdownDescription: "Container the user lives in.",
			},
		},
		Return: function.StringReturn{},
	}
}

// Run implements the function logic.
func (f UserDNFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var username, baseDN string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &username, &baseDN))
	if resp.Error != nil {
		return
	}

	if username == "" {
		resp.Error = function.NewArgumentFuncError(0, "username cannot be empty")
		return
	}

	if err := ldapclient.ValidateDNSyntax(baseDN); err != nil {
		resp.Error = function.NewArgumentFuncError(1, fmt.Sprintf("invalid base_dn: %s", err.Error()))
		return
	}

	dn := edir.UserDN(username, baseDN)
	if err := ldapclient.ValidateDNSyntax(dn); err != nil {
		resp.Error = function.NewArgumentFuncError(0, fmt.Sprintf("username does not form a valid DN: %s", err.Error()))
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, dn))
}
