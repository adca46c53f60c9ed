package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework-validators/mapvalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-edir/internal/edir"
	ldapclient "github.com/isometry/terraform-provider-edir/internal/ldap"
	customtypes "github.com/isometry/terraform-provider-edir/internal/provider/types"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &UserResource{}
var _ resource.ResourceWithImportState = &UserResource{}

// Common names are placed into DNs unescaped.
var commonNameRegex = regexp.MustCompile(`^[^"\\#+,;<=>\r\n/]+$`)

func NewUserResource() resource.Resource {
	return &UserResource{}
}

// UserResource defines the resource implementation.
type UserResource struct {
	adapter   *edir.Adapter
	directory edir.DirectoryClient
}

// UserResourceModel describes the resource data model.
type UserResourceModel struct {
	ID         types.String              `tfsdk:"id"`         // Common name (computed)
	DN         customtypes.DNStringValue `tfsdk:"dn"`         // Computed
	UID        types.String              `tfsdk:"uid"`        // Computed
	Username   types.String              `tfsdk:"username"`   // Required - cn
	Firstname  types.String              `tfsdk:"firstname"`  // Optional - givenName
	Lastname   types.String              `tfsdk:"lastname"`   // Optional - sn
	Email      types.String              `tfsdk:"email"`      // Optional - mail
	Password   types.String              `tfsdk:"password"`   // Optional, write-only in practice
	Attributes types.Map                 `tfsdk:"attributes"` // Optional - extra single-valued attributes
}

func (r *UserResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_user"
}

func (r *UserResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages an eDirectory user. The user is created as `cn=<username>,<base_dn>` with the object classes " +
			"`inetOrgPerson`, `organizationalPerson`, `Person`, `ndsLoginProperties` and `Top`, and its `uid` follows its common name.",

		Attributes: map[string]schema.Attribute{
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
				MarkdownDescription: "The uid of the user. Set to the common name on creation and on rename.",
				Computed:            true,
			},
			"username": schema.StringAttribute{
				MarkdownDescription: "The common name (`cn`) of the user. Changing it renames the entry in place.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthBetween(1, 64),
					stringvalidator.RegexMatches(
						commonNameRegex,
						"username cannot contain double quotes, backslashes, hash, plus, comma, semicolon, angle brackets, equals, carriage return, newline, or forward slash",
					),
				},
			},
			"firstname": schema.StringAttribute{
				MarkdownDescription: "The given name (`givenName`) of the user.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"lastname": schema.StringAttribute{
				MarkdownDescription: "The surname (`sn`) of the user. eDirectory requires a surname for `inetOrgPerson` entries.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"email": schema.StringAttribute{
				MarkdownDescription: "The email address (`mail`) of the user.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "The password (`userPassword`) of the user. The directory never returns it, so changes made outside Terraform are not detected.",
				Optional:            true,
				Sensitive:           true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"attributes": schema.MapAttribute{
				MarkdownDescription: "Additional single-valued LDAP attributes of the user, keyed by attribute name. " +
					"Attributes managed by other arguments (`cn`, `uid`, `givenName`, `sn`, `mail`, `userPassword`, `objectClass`) " +
					"and their aliases (`username`, `firstname`, `lastname`, `email`, `password`) are not allowed.",
				Optional:    true,
				ElementType: types.StringType,
				Validators: []validator.Map{
					mapvalidator.KeysAre(
						stringvalidator.NoneOfCaseInsensitive(reservedAttributeKeys...),
						stringvalidator.LengthAtLeast(1),
					),
					mapvalidator.ValueStringsAre(stringvalidator.LengthAtLeast(1)),
				},
			},
		},
	}
}

func (r *UserResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	providerData := providerDataFrom(req.ProviderData, "Resource", &resp.Diagnostics)
	if providerData == nil {
		return
	}

	r.adapter = providerData.Adapter
	r.directory = providerData.Directory
}

func (r *UserResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data UserResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	username := data.Username.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "edir_user", "create", map[string]any{
		"username": username,
	})

	fields, diags := r.fieldsFromModel(ctx, &data)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		logCompletion(errors.New("invalid plan"))
		return
	}

	if err := r.adapter.CreateUser(ctx, fields); err != nil {
		logCompletion(err)
		if ldapclient.IsConflictError(err) {
			resp.Diagnostics.AddError(
				"User Already Exists",
				fmt.Sprintf("A user with username %q already exists. Import it with `terraform import` to manage it.", username),
			)
			return
		}
		resp.Diagnostics.AddError(
			"Error Creating User",
			"Could not create eDirectory user, unexpected error: "+err.Error(),
		)
		return
	}

	entry, err := r.directory.FindUser(ctx, username)
	if err == nil && entry == nil {
		err = fmt.Errorf("%w: %s", edir.ErrUserNotFound, username)
	}
	logCompletion(err)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading Created User",
			fmt.Sprintf("User %q was created but could not be read back: %s", username, err.Error()),
		)
		return
	}

	resp.Diagnostics.Append(r.updateModelFromEntry(ctx, &data, entry)...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *UserResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data UserResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	username := data.Username.ValueString()
	tflog.Debug(ctx, "Reading eDirectory user", map[string]any{
		"username": username,
	})

	entry, err := r.directory.FindUser(ctx, username)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading User",
			fmt.Sprintf("Could not read eDirectory user %q: %s", username, err.Error()),
		)
		return
	}

	if entry == nil {
		tflog.Warn(ctx, "eDirectory user not found, removing from state", map[string]any{
			"username": username,
		})
		resp.State.RemoveResource(ctx)
		return
	}

	resp.Diagnostics.Append(r.updateModelFromEntry(ctx, &data, entry)...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *UserResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state UserResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	username := state.Username.ValueString()
	newUsername := plan.Username.ValueString()

	fields, removed, diags := r.changedFields(ctx, &plan, &state)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	logCompletion := ldapclient.LogResourceOperation(ctx, "edir_user", "update", map[string]any{
		"username":     username,
		"new_username": newUsername,
		"changed":      sortedKeys(fields),
		"removed":      removed,
	})

	if err := r.adapter.ModifyUser(ctx, username, fields); err != nil {
		logCompletion(err)
		resp.Diagnostics.AddError(
			"Error Updating User",
			fmt.Sprintf("Could not update eDirectory user %q: %s", username, err.Error()),
		)
		return
	}

	entry, err := r.directory.FindUser(ctx, newUsername)
	if err == nil && entry == nil {
		err = fmt.Errorf("%w: %s", edir.ErrUserNotFound, newUsername)
	}
	if err != nil {
		logCompletion(err)
		resp.Diagnostics.AddError(
			"Error Reading Updated User",
			fmt.Sprintf("User %q was updated but could not be read back: %s", newUsername, err.Error()),
		)
		return
	}

	if len(removed) > 0 {
		changes := make([]ldapclient.Change, 0, len(removed))
		for _, name := range removed {
			// A replace without values deletes the attribute.
			changes = append(changes, ldapclient.NewReplaceChange(name))
		}

		if err := r.directory.Modify(ctx, entry.DN, changes); err != nil {
			logCompletion(err)
			resp.Diagnostics.AddError(
				"Error Removing User Attributes",
				fmt.Sprintf("Could not remove attributes %v from eDirectory user %q: %s", removed, newUsername, err.Error()),
			)
			return
		}

		entry, err = r.directory.FindUser(ctx, newUsername)
		if err == nil && entry == nil {
			err = fmt.Errorf("%w: %s", edir.ErrUserNotFound, newUsername)
		}
		if err != nil {
			logCompletion(err)
			resp.Diagnostics.AddError(
				"Error Reading Updated User",
				fmt.Sprintf("User %q was updated but could not be read back: %s", newUsername, err.Error()),
			)
			return
		}
	}

	logCompletion(nil)

	resp.Diagnostics.Append(r.updateModelFromEntry(ctx, &plan, entry)...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *UserResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data UserResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	username := data.Username.ValueString()
	logCompletion := ldapclient.LogResourceOperation(ctx, "edir_user", "delete", map[string]any{
		"username": username,
	})

	err := r.adapter.DeleteUser(ctx, username)
	if err != nil && ldapclient.IsNotFoundError(err) {
		tflog.Warn(ctx, "eDirectory user already deleted", map[string]any{
			"username": username,
		})
		err = nil
	}
	logCompletion(err)

	if err != nil {
		resp.Diagnostics.AddError(
			"Error Deleting User",
			fmt.Sprintf("Could not delete eDirectory user %q: %s", username, err.Error()),
		)
	}
}

// ImportState imports a user by common name.
func (r *UserResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	tflog.Debug(ctx, "Importing eDirectory user", map[string]any{
		"username": req.ID,
	})

	resource.ImportStatePassthroughID(ctx, path.Root("username"), req, resp)
}

// fieldsFromModel collects the configured user fields for creation.
func (r *UserResource) fieldsFromModel(ctx context.Context, data *UserResourceModel) (edir.Fields, diag.Diagnostics) {
	attributes, diags := extraAttributes(ctx, data.Attributes)
	if diags.HasError() {
		return nil, diags
	}

	fields := make(edir.Fields, len(attributes)+5)
	for k, v := range attributes {
		fields[k] = v
	}

	fields[edir.AliasUsername] = data.Username.ValueString()
	fields[edir.AliasFirstname] = data.Firstname.ValueString()
	fields[edir.AliasLastname] = data.Lastname.ValueString()
	fields[edir.AliasEmail] = data.Email.ValueString()
	fields[edir.AliasPassword] = data.Password.ValueString()

	return fields, diags
}

// changedFields returns the fields whose planned value differs from state and
// the attributes that were removed from configuration.
func (r *UserResource) changedFields(ctx context.Context, plan, state *UserResourceModel) (edir.Fields, []string, diag.Diagnostics) {
	var diags diag.Diagnostics

	fields := make(edir.Fields)
	var removed []string

	if !plan.Username.Equal(state.Username) {
		fields[edir.AliasUsername] = plan.Username.ValueString()
	}

	for _, f := range []struct {
		alias     string
		attribute string
		plan      types.String
		state     types.String
	}{
		{edir.AliasFirstname, edir.AttrGivenName, plan.Firstname, state.Firstname},
		{edir.AliasLastname, edir.AttrSN, plan.Lastname, state.Lastname},
		{edir.AliasEmail, edir.AttrMail, plan.Email, state.Email},
		{edir.AliasPassword, edir.AttrUserPassword, plan.Password, state.Password},
	} {
		if f.plan.Equal(f.state) {
			continue
		}
		if f.plan.IsNull() {
			// Unsetting the password leaves the directory's copy in place.
			if f.alias != edir.AliasPassword {
				removed = append(removed, f.attribute)
			}
			continue
		}
		fields[f.alias] = f.plan.ValueString()
	}

	planAttrs, d := extraAttributes(ctx, plan.Attributes)
	diags.Append(d...)
	stateAttrs, d := stringMapFromTerraform(ctx, state.Attributes)
	diags.Append(d...)
	if diags.HasError() {
		return nil, nil, diags
	}

	for _, name := range sortedKeys(planAttrs) {
		if value := planAttrs[name]; stateAttrs[name] != value {
			fields[name] = value
		}
	}

	for _, name := range sortedKeys(stateAttrs) {
		if _, ok := planAttrs[name]; !ok {
			removed = append(removed, name)
		}
	}

	return fields, removed, diags
}

// updateModelFromEntry refreshes the model from a directory entry. The
// password is never read back, and only attribute keys already tracked in
// the model are refreshed.
func (r *UserResource) updateModelFromEntry(ctx context.Context, model *UserResourceModel, entry *ldap.Entry) diag.Diagnostics {
	var diags diag.Diagnostics

	cn := entryValue(entry, edir.AttrCN)
	if cn == "" {
		cn = model.Username.ValueString()
	}

	model.ID = types.StringValue(cn)
	model.Username = types.StringValue(cn)
	model.DN = customtypes.DNString(entry.DN)
	model.UID = stringOrNull(entryValue(entry, edir.AttrUID))
	model.Firstname = stringOrNull(entryValue(entry, edir.AttrGivenName))
	model.Lastname = stringOrNull(entryValue(entry, edir.AttrSN))
	model.Email = stringOrNull(entryValue(entry, edir.AttrMail))

	if model.Attributes.IsNull() || model.Attributes.IsUnknown() {
		model.Attributes = types.MapNull(types.StringType)
		return diags
	}

	tracked, d := stringMapFromTerraform(ctx, model.Attributes)
	diags.Append(d...)

	current := make(map[string]string, len(tracked))
	for name := range tracked {
		if v := entryValue(entry, name); v != "" {
			current[name] = v
		}
	}

	model.Attributes, d = types.MapValueFrom(ctx, types.StringType, current)
	diags.Append(d...)

	return diags
}
