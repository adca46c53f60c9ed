package provider

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-edir/internal/edir"
	ldapclient "github.com/isometry/terraform-provider-edir/internal/ldap"
	customtypes "github.com/isometry/terraform-provider-edir/internal/provider/types"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &UserDataSource{}

func NewUserDataSource() datasource.DataSource {
	return &UserDataSource{}
}

// UserDataSource defines the data source implementation.
type UserDataSource struct {
	directory edir.DirectoryClient
}

// UserDataSourceModel describes the data source data model.
type UserDataSourceModel struct {
	Username types.String `tfsdk:"username"` // Lookup key

	ID            types.String              `tfsdk:"id"`             // Common name
	DN            customtypes.DNStringValue `tfsdk:"dn"`             // Distinguished Name
	UID           types.String              `tfsdk:"uid"`            // uid
	Firstname     types.String              `tfsdk:"firstname"`      // givenName
	Lastname      types.String              `tfsdk:"lastname"`       // sn
	Email         types.String              `tfsdk:"email"`          // mail
	FullName      types.String              `tfsdk:"full_name"`      // fullName
	LoginDisabled types.Bool                `tfsdk:"login_disabled"` // loginDisabled
	ObjectClasses types.List                `tfsdk:"object_classes"` // objectClass values
	Attributes    types.Map                 `tfsdk:"attributes"`     // Every returned attribute except the password
}

func (d *UserDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_user"
}

func (d *UserDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Retrieves an eDirectory user by username. The username is matched against the provider's " +
			"`username_attribute` (`cn` by default) anywhere below the base DN.",

		Attributes: map[string]schema.Attribute{
			"username": schema.StringAttribute{
				MarkdownDescription: "The username of the user to retrieve.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"id": schema.StringAttribute{
				MarkdownDescription: "The common name of the user.",
				Computed:            true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the user.",
				Computed:            true,
				CustomType:          customtypes.DNStringType{},
			},
			"uid": schema.StringAttribute{
				MarkdownDescription: "The uid of the user.",
				Computed:            true,
			},
			"firstname": schema.StringAttribute{
				MarkdownDescription: "The given name (`givenName`) of the user.",
				Computed:            true,
			},
			"lastname": schema.StringAttribute{
				MarkdownDescription: "The surname (`sn`) of the user.",
				Computed:            true,
			},
			"email": schema.StringAttribute{
				MarkdownDescription: "The email address (`mail`) of the user.",
				Computed:            true,
			},
			"full_name": schema.StringAttribute{
				MarkdownDescription: "The full name (`fullName`) of the user.",
				Computed:            true,
			},
			"login_disabled": schema.BoolAttribute{
				MarkdownDescription: "Whether login is disabled for the user (`loginDisabled`).",
				Computed:            true,
			},
			"object_classes": schema.ListAttribute{
				MarkdownDescription: "The object classes of the user.",
				Computed:            true,
				ElementType:         types.StringType,
			},
			"attributes": schema.MapAttribute{
				MarkdownDescription: "All attributes returned for the user, keyed by attribute name. `userPassword` is never included.",
				Computed:            true,
				ElementType:         types.ListType{ElemType: types.StringType},
			},
		},
	}
}

func (d *UserDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	providerData := providerDataFrom(req.ProviderData, "Data Source", &resp.Diagnostics)
	if providerData == nil {
		return
	}

	d.directory = providerData.Directory
}

func (d *UserDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data UserDataSourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	username := data.Username.ValueString()
	logCompletion := ldapclient.LogDataSourceOperation(ctx, "edir_user", "read", map[string]any{
		"username": username,
	})

	entry, err := d.directory.FindUser(ctx, username)
	logCompletion(err)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading User",
			fmt.Sprintf("Could not read eDirectory user %q: %s", username, err.Error()),
		)
		return
	}

	if entry == nil {
		resp.Diagnostics.AddError(
			"User Not Found",
			fmt.Sprintf("No eDirectory user with username %q could be found.", username),
		)
		return
	}

	tflog.Debug(ctx, "Successfully retrieved eDirectory user", map[string]any{
		"dn": entry.DN,
	})

	resp.Diagnostics.Append(d.mapEntryToModel(ctx, entry, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// mapEntryToModel maps a directory entry to the Terraform model.
func (d *UserDataSource) mapEntryToModel(ctx context.Context, entry *ldap.Entry, data *UserDataSourceModel) diag.Diagnostics {
	var diags diag.Diagnostics

	data.ID = types.StringValue(entryValue(entry, edir.AttrCN))
	data.DN = customtypes.DNString(entry.DN)
	data.UID = stringOrNull(entryValue(entry, edir.AttrUID))
	data.Firstname = stringOrNull(entryValue(entry, edir.AttrGivenName))
	data.Lastname = stringOrNull(entryValue(entry, edir.AttrSN))
	data.Email = stringOrNull(entryValue(entry, edir.AttrMail))
	data.FullName = stringOrNull(entryValue(entry, "fullName"))

	data.LoginDisabled = types.BoolValue(false)
	if v := entryValue(entry, "loginDisabled"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			diags.AddWarning(
				"Unexpected loginDisabled Value",
				fmt.Sprintf("Could not parse loginDisabled value %q of %s: %s", v, entry.DN, err.Error()),
			)
		}
		data.LoginDisabled = types.BoolValue(disabled)
	}

	objectClasses := entry.GetEqualFoldAttributeValues(edir.AttrObjectClass)
	if objectClasses == nil {
		objectClasses = []string{}
	}
	list, listDiags := types.ListValueFrom(ctx, types.StringType, objectClasses)
	diags.Append(listDiags...)
	data.ObjectClasses = list

	attributes, mapDiags := entryAttributesMap(ctx, entry)
	diags.Append(mapDiags...)
	data.Attributes = attributes

	return diags
}
