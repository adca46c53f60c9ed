package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-edir/internal/ldap"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &WhoAmIDataSource{}

func NewWhoAmIDataSource() datasource.DataSource {
	return &WhoAmIDataSource{}
}

// WhoAmIDataSource defines the data source implementation.
type WhoAmIDataSource struct {
	client ldapclient.Client
}

// WhoAmIDataSourceModel describes the data source data model.
type WhoAmIDataSourceModel struct {
	ID            types.String `tfsdk:"id"`             // Set to authz_id for state tracking
	AuthzID       types.String `tfsdk:"authz_id"`       // Raw authorization ID from server
	DN            types.String `tfsdk:"dn"`             // Populated for DN identities
	Username      types.String `tfsdk:"username"`       // Populated for u: identities
	Format        types.String `tfsdk:"format"`         // "dn", "username" or "empty"
	TreeName      types.String `tfsdk:"tree_name"`      // directoryTreeName from the root DSE
	VendorName    types.String `tfsdk:"vendor_name"`    // vendorName from the root DSE
	VendorVersion types.String `tfsdk:"vendor_version"` // vendorVersion from the root DSE
}

func (d *WhoAmIDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_whoami"
}

func (d *WhoAmIDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Retrieves the identity the provider is bound as using the LDAP \"Who Am I?\" extended operation (RFC 4532), " +
			"together with the eDirectory tree and server version advertised by the root DSE. This data source requires no configuration.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Unique identifier for this data source (same as authz_id).",
				Computed:            true,
			},
			"authz_id": schema.StringAttribute{
				MarkdownDescription: "The raw authorization ID returned by the server, e.g. `dn:cn=admin,o=example`. Empty for anonymous sessions.",
				Computed:            true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the bound identity, when the authorization ID is a DN.",
				Computed:            true,
			},
			"username": schema.StringAttribute{
				MarkdownDescription: "The user name of the bound identity, when the authorization ID has the `u:` form.",
				Computed:            true,
			},
			"format": schema.StringAttribute{
				MarkdownDescription: "The format of the authorization ID: `dn`, `username` or `empty`.",
				Computed:            true,
			},
			"tree_name": schema.StringAttribute{
				MarkdownDescription: "The eDirectory tree name (`directoryTreeName`).",
				Computed:            true,
			},
			"vendor_name": schema.StringAttribute{
				MarkdownDescription: "The directory vendor (`vendorName`).",
				Computed:            true,
			},
			"vendor_version": schema.StringAttribute{
				MarkdownDescription: "The directory server version (`vendorVersion`).",
				Computed:            true,
			},
		},
	}
}

func (d *WhoAmIDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	providerData := providerDataFrom(req.ProviderData, "Data Source", &resp.Diagnostics)
	if providerData == nil {
		return
	}

	d.client = providerData.Client
}

func (d *WhoAmIDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data WhoAmIDataSourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "edir_whoami", "read", nil)
	defer func() {
		var err error
		for _, diag := range resp.Diagnostics.Errors() {
			err = fmt.Errorf("%s: %s", diag.Summary(), diag.Detail())
			break
		}
		logCompletion(err)
	}()

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	result, err := d.client.WhoAmI(ctx)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Performing WhoAmI Operation",
			fmt.Sprintf("Could not perform LDAP Who Am I? operation: %s", err.Error()),
		)
		return
	}

	if result == nil {
		resp.Diagnostics.AddError(
			"WhoAmI Operation Returned Nil",
			"The LDAP Who Am I? operation returned a nil result, which should not happen. Please report this issue to the provider developers.",
		)
		return
	}

	tflog.Debug(ctx, "Successfully performed WhoAmI operation", map[string]any{
		"authz_id": result.AuthzID,
		"format":   result.Format,
	})

	// Server details are informational; a restricted root DSE is not an error.
	info, err := d.client.GetServerInfo(ctx)
	if err != nil {
		tflog.Warn(ctx, "Could not read root DSE", map[string]any{
			"error": err.Error(),
		})
		info = nil
	}

	mapWhoAmIToModel(result, info, &data)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// mapWhoAmIToModel maps the Who Am I? result and root DSE details to the model.
func mapWhoAmIToModel(result *ldapclient.WhoAmIResult, info map[string]string, data *WhoAmIDataSourceModel) {
	data.ID = types.StringValue(result.AuthzID)
	data.AuthzID = types.StringValue(result.AuthzID)
	data.Format = types.StringValue(result.Format)
	data.DN = stringOrNull(result.DN)
	data.Username = stringOrNull(result.Name)

	data.TreeName = stringOrNull(info["directoryTreeName"])
	data.VendorName = stringOrNull(info["vendorName"])
	data.VendorVersion = stringOrNull(info["vendorVersion"])
}
