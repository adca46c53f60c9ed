package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-edir/internal/edir"
	ldapclient "github.com/isometry/terraform-provider-edir/internal/ldap"
	customtypes "github.com/isometry/terraform-provider-edir/internal/provider/types"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &AddresslessUsersDataSource{}

func NewAddresslessUsersDataSource() datasource.DataSource {
	return &AddresslessUsersDataSource{}
}

// AddresslessUsersDataSource lists users whose common name is not an email address.
type AddresslessUsersDataSource struct {
	adapter *edir.Adapter
}

// AddresslessUsersDataSourceModel describes the data source data model.
type AddresslessUsersDataSourceModel struct {
	Prefix    types.String                 `tfsdk:"prefix"`
	ID        types.String                 `tfsdk:"id"`
	Filter    types.String                 `tfsdk:"filter"`
	Usernames types.List                   `tfsdk:"usernames"`
	DNs       customtypes.DNStringSetValue `tfsdk:"dns"`
	Users     types.List                   `tfsdk:"users"`
	UserCount types.Int64                  `tfsdk:"user_count"`
}

// addresslessUserModel is one element of users.
type addresslessUserModel struct {
	Username  types.String `tfsdk:"username"`
	DN        types.String `tfsdk:"dn"`
	UID       types.String `tfsdk:"uid"`
	Firstname types.String `tfsdk:"firstname"`
	Lastname  types.String `tfsdk:"lastname"`
}

var addresslessUserAttrTypes = map[string]attr.Type{
	"username":  types.StringType,
	"dn":        types.StringType,
	"uid":       types.StringType,
	"firstname": types.StringType,
	"lastname":  types.StringType,
}

func (d *AddresslessUsersDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_addressless_users"
}

func (d *AddresslessUsersDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists eDirectory users whose common name starts with `prefix` and does not contain `@`, " +
			"i.e. accounts that are not yet named by an email address.",

		Attributes: map[string]schema.Attribute{
			"prefix": schema.StringAttribute{
				MarkdownDescription: "Common name prefix to match. An empty prefix matches every user without `@` in its common name.",
				Required:            true,
			},
			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier of this lookup (the search filter).",
				Computed:            true,
			},
			"filter": schema.StringAttribute{
				MarkdownDescription: "The LDAP filter used for the search.",
				Computed:            true,
			},
			"usernames": schema.ListAttribute{
				MarkdownDescription: "Common names of the matching users, sorted.",
				Computed:            true,
				ElementType:         types.StringType,
			},
			"dns": schema.SetAttribute{
				MarkdownDescription: "Distinguished names of the matching users.",
				Computed:            true,
				ElementType:         types.StringType,
				CustomType:          customtypes.NewDNStringSetType(),
			},
			"users": schema.ListNestedAttribute{
				MarkdownDescription: "The matching users, sorted by common name.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"username": schema.StringAttribute{
							MarkdownDescription: "The common name of the user.",
							Computed:            true,
						},
						"dn": schema.StringAttribute{
							MarkdownDescription: "The distinguished name of the user.",
							Computed:            true,
						},
						"uid": schema.StringAttribute{
							MarkdownDescription: "The uid of the user.",
							Computed:            true,
						},
						"firstname": schema.StringAttribute{
							MarkdownDescription: "The given name of the user.",
							Computed:            true,
						},
						"lastname": schema.StringAttribute{
							MarkdownDescription: "The surname of the user.",
							Computed:            true,
						},
					},
				},
			},
			"user_count": schema.Int64Attribute{
				MarkdownDescription: "Number of matching users.",
				Computed:            true,
			},
		},
	}
}

func (d *AddresslessUsersDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	providerData := providerDataFrom(req.ProviderData, "Data Source", &resp.Diagnostics)
	if providerData == nil {
		return
	}

	d.adapter = providerData.Adapter
}

func (d *AddresslessUsersDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data AddresslessUsersDataSourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	prefix := data.Prefix.ValueString()
	logCompletion := ldapclient.LogDataSourceOperation(ctx, "edir_addressless_users", "read", map[string]any{
		"prefix": prefix,
	})

	entries, err := d.adapter.FindAllEmailAddressless(ctx, prefix)
	logCompletion(err)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Searching Users",
			fmt.Sprintf("Could not search eDirectory users with prefix %q: %s", prefix, err.Error()),
		)
		return
	}

	tflog.Debug(ctx, "Found addressless users", map[string]any{
		"prefix": prefix,
		"count":  len(entries),
	})

	filter := edir.EmailAddresslessFilter(prefix)
	data.ID = types.StringValue(filter)
	data.Filter = types.StringValue(filter)

	resp.Diagnostics.Append(d.mapEntriesToModel(ctx, entries, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// mapEntriesToModel fills the result attributes from entries, ordered by common name.
func (d *AddresslessUsersDataSource) mapEntriesToModel(ctx context.Context, entries []*ldap.Entry, data *AddresslessUsersDataSourceModel) diag.Diagnostics {
	var diags diag.Diagnostics

	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b *ldap.Entry) int {
		return strings.Compare(entryValue(a, edir.AttrCN), entryValue(b, edir.AttrCN))
	})

	usernames := make([]string, 0, len(sorted))
	dns := make([]string, 0, len(sorted))
	users := make([]addresslessUserModel, 0, len(sorted))

	for _, entry := range sorted {
		cn := entryValue(entry, edir.AttrCN)
		usernames = append(usernames, cn)
		dns = append(dns, entry.DN)
		users = append(users, addresslessUserModel{
			Username:  types.StringValue(cn),
			DN:        types.StringValue(entry.DN),
			UID:       stringOrNull(entryValue(entry, edir.AttrUID)),
			Firstname: stringOrNull(entryValue(entry, edir.AttrGivenName)),
			Lastname:  stringOrNull(entryValue(entry, edir.AttrSN)),
		})
	}

	var listDiags diag.Diagnostics
	data.Usernames, listDiags = types.ListValueFrom(ctx, types.StringType, usernames)
	diags.Append(listDiags...)

	data.DNs, listDiags = customtypes.DNStringSet(ctx, dns)
	diags.Append(listDiags...)

	data.Users, listDiags = types.ListValueFrom(ctx, types.ObjectType{AttrTypes: addresslessUserAttrTypes}, users)
	diags.Append(listDiags...)

	data.UserCount = types.Int64Value(int64(len(sorted)))

	return diags
}
