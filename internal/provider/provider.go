package provider

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/providervalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/ephemeral"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-edir/internal/edir"
	ldapclient "github.com/isometry/terraform-provider-edir/internal/ldap"
	"github.com/isometry/terraform-provider-edir/internal/provider/validators"
)

// Ensure EDirectoryProvider satisfies various provider interfaces.
var _ provider.Provider = &EDirectoryProvider{}
var _ provider.ProviderWithFunctions = &EDirectoryProvider{}
var _ provider.ProviderWithEphemeralResources = &EDirectoryProvider{}
var _ provider.ProviderWithConfigValidators = &EDirectoryProvider{}

// EDirectoryProvider defines the provider implementation.
type EDirectoryProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and ran locally, and "test" when running acceptance
	// testing.
	version string
}

// EDirectoryProviderModel describes the provider data model.
type EDirectoryProviderModel struct {
	// Connection settings - mutually exclusive
	Host    types.String `tfsdk:"host"`
	LdapURL types.String `tfsdk:"ldap_url"`
	BaseDN  types.String `tfsdk:"base_dn"`

	// Authentication settings
	Username types.String `tfsdk:"username"`
	Password types.String `tfsdk:"password"`

	// User settings
	UsernameAttribute types.String `tfsdk:"username_attribute"`

	// Zombie (service) account
	ZombieUsername types.String `tfsdk:"zombie_username"`
	ZombiePassword types.String `tfsdk:"zombie_password"`
	ZombieDN       types.String `tfsdk:"zombie_dn"`
	BindAsZombie   types.Bool   `tfsdk:"bind_as_zombie"`

	// TLS settings
	UseTLS            types.Bool   `tfsdk:"use_tls"`
	SkipTLS           types.Bool   `tfsdk:"skip_tls"`
	SkipTLSVerify     types.Bool   `tfsdk:"skip_tls_verify"`
	TLSCACertFile     types.String `tfsdk:"tls_ca_cert_file"`
	TLSCACert         types.String `tfsdk:"tls_ca_cert"`
	TLSClientCertFile types.String `tfsdk:"tls_client_cert_file"`
	TLSClientKeyFile  types.String `tfsdk:"tls_client_key_file"`

	// Connection pool settings
	MaxConnections types.Int64 `tfsdk:"max_connections"`
	MaxIdleTime    types.Int64 `tfsdk:"max_idle_time"`
	ConnectTimeout types.Int64 `tfsdk:"connect_timeout"`

	// Retry settings
	MaxRetries     types.Int64 `tfsdk:"max_retries"`
	InitialBackoff types.Int64 `tfsdk:"initial_backoff"`
	MaxBackoff     types.Int64 `tfsdk:"max_backoff"`

	// Search settings
	PageSize types.Int64 `tfsdk:"page_size"`
}

func (p *EDirectoryProvider) Metadata(ctx context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "edir"
	resp.Version = p.version
}

func (p *EDirectoryProvider) Schema(ctx context.Context, req provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The eDirectory provider manages user accounts in a NetIQ (Novell) eDirectory tree via LDAP/LDAPS. " +
			"Users are created as `cn=<username>,<base_dn>` with the standard eDirectory user object classes.",
		Attributes: map[string]schema.Attribute{
			// Connection settings - mutually exclusive
			"host": schema.StringAttribute{
				MarkdownDescription: "eDirectory server host name, optionally with a port (e.g., `edir.example.com` or `edir.example.com:636`). " +
					"Mutually exclusive with `ldap_url`. Can be set via the `EDIR_HOST` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"ldap_url": schema.StringAttribute{
				MarkdownDescription: "Direct LDAP/LDAPS URL (e.g., `ldaps://edir.example.com:636`). " +
					"Mutually exclusive with `host`. Can be set via the `EDIR_LDAP_URL` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "Container that user entries live in (e.g., `ou=users,o=example`). " +
					"Can be set via the `EDIR_BASE_DN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},

			// Authentication settings
			"username": schema.StringAttribute{
				MarkdownDescription: "Bind DN for LDAP authentication (e.g., `cn=admin,o=example`). " +
					"Can be set via the `EDIR_USERNAME` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "Password for LDAP authentication. " +
					"Can be set via the `EDIR_PASSWORD` environment variable.",
				Optional:  true,
				Sensitive: true,
			},

			// User settings
			"username_attribute": schema.StringAttribute{
				MarkdownDescription: "Attribute users are looked up by, `cn` or `uid`. Both hold the username of users this provider manages. Defaults to `cn`. " +
					"Can be set via the `EDIR_USERNAME_ATTRIBUTE` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.CaseInsensitiveOneOf("cn", "uid"),
				},
			},

			// Zombie account
			"zombie_username": schema.StringAttribute{
				MarkdownDescription: "Common name of the zombie (service) account used when `bind_as_zombie` is set. " +
					"Can be set via the `EDIR_ZOMBIE_USERNAME` environment variable.",
				Optional: true,
			},
			"zombie_password": schema.StringAttribute{
				MarkdownDescription: "Password of the zombie account. " +
					"Can be set via the `EDIR_ZOMBIE_PASSWORD` environment variable.",
				Optional:  true,
				Sensitive: true,
			},
			"zombie_dn": schema.StringAttribute{
				MarkdownDescription: "Container of the zombie account. Defaults to `base_dn`. " +
					"Can be set via the `EDIR_ZOMBIE_DN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"bind_as_zombie": schema.BoolAttribute{
				MarkdownDescription: "Authenticate as `cn=<zombie_username>,<zombie_dn>` instead of `username`. Defaults to `false`. " +
					"Can be set via the `EDIR_BIND_AS_ZOMBIE` environment variable.",
				Optional: true,
			},

			// TLS settings
			"use_tls": schema.BoolAttribute{
				MarkdownDescription: "Use LDAPS when connecting by `host` without an explicit port. Defaults to `true`. " +
					"Can be set via the `EDIR_USE_TLS` environment variable.",
				Optional: true,
			},
			"skip_tls": schema.BoolAttribute{
				MarkdownDescription: "Do not upgrade plain LDAP connections with StartTLS. Not recommended. Defaults to `false`. " +
					"Can be set via the `EDIR_SKIP_TLS` environment variable.",
				Optional: true,
			},
			"skip_tls_verify": schema.BoolAttribute{
				MarkdownDescription: "Skip TLS certificate verification. Not recommended for production. Defaults to `false`. " +
					"Can be set via the `EDIR_SKIP_TLS_VERIFY` environment variable.",
				Optional: true,
			},
			"tls_ca_cert_file": schema.StringAttribute{
				MarkdownDescription: "Path to custom CA certificate file for TLS verification. " +
					"Can be set via the `EDIR_TLS_CA_CERT_FILE` environment variable.",
				Optional: true,
			},
			"tls_ca_cert": schema.StringAttribute{
				MarkdownDescription: "Custom CA certificate content for TLS verification. " +
					"Can be set via the `EDIR_TLS_CA_CERT` environment variable.",
				Optional:  true,
				Sensitive: true,
			},
			"tls_client_cert_file": schema.StringAttribute{
				MarkdownDescription: "Path to client certificate file for mutual TLS (SASL EXTERNAL) authentication. " +
					"Can be set via the `EDIR_TLS_CLIENT_CERT_FILE` environment variable.",
				Optional: true,
			},
			"tls_client_key_file": schema.StringAttribute{
				MarkdownDescription: "Path to client private key file for mutual TLS authentication. " +
					"Can be set via the `EDIR_TLS_CLIENT_KEY_FILE` environment variable.",
				Optional:  true,
				Sensitive: true,
			},

			// Connection pool settings
			"max_connections": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of connections in the connection pool. Defaults to `10`. " +
					"Can be set via the `EDIR_MAX_CONNECTIONS` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.Between(1, ldapclient.MaxConnectionPoolLimit),
				},
			},
			"max_idle_time": schema.Int64Attribute{
				MarkdownDescription: "Maximum idle time for connections in seconds. Defaults to `300` (5 minutes). " +
					"Can be set via the `EDIR_MAX_IDLE_TIME` environment variable.",
				Optional: true,
			},
			"connect_timeout": schema.Int64Attribute{
				MarkdownDescription: "Connection timeout in seconds. Defaults to `30`. " +
					"Can be set via the `EDIR_CONNECT_TIMEOUT` environment variable.",
				Optional: true,
			},

			// Retry settings
			"max_retries": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of retry attempts for failed operations. Defaults to `3`. " +
					"Can be set via the `EDIR_MAX_RETRIES` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(0),
				},
			},
			"initial_backoff": schema.Int64Attribute{
				MarkdownDescription: "Initial backoff delay in milliseconds for retry attempts. Defaults to `500`. " +
					"Can be set via the `EDIR_INITIAL_BACKOFF` environment variable.",
				Optional: true,
			},
			"max_backoff": schema.Int64Attribute{
				MarkdownDescription: "Maximum backoff delay in seconds for retry attempts. Defaults to `30`. " +
					"Can be set via the `EDIR_MAX_BACKOFF` environment variable.",
				Optional: true,
			},

			"page_size": schema.Int64Attribute{
				MarkdownDescription: "Page size for paged searches. Defaults to `500`. " +
					"Can be set via the `EDIR_PAGE_SIZE` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.Between(1, 10000),
				},
			},
		},
	}
}

// ConfigValidators implements provider.ProviderWithConfigValidators.
func (p *EDirectoryProvider) ConfigValidators(ctx context.Context) []provider.ConfigValidator {
	return []provider.ConfigValidator{
		providervalidator.Conflicting(
			path.MatchRoot("host"),
			path.MatchRoot("ldap_url"),
		),
		providervalidator.Conflicting(
			path.MatchRoot("tls_ca_cert_file"),
			path.MatchRoot("tls_ca_cert"),
		),
		providervalidator.RequiredTogether(
			path.MatchRoot("tls_client_cert_file"),
			path.MatchRoot("tls_client_key_file"),
		),
	}
}

func (p *EDirectoryProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var data EDirectoryProviderModel

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	ctx = p.configureLogging(ctx)

	tflog.Info(ctx, "Configuring eDirectory provider", map[string]any{
		"version": p.version,
	})

	config := p.buildLDAPConfig(&data, &resp.Diagnostics)
	edirConfig := p.buildEDirConfig(&data, config)
	bindAsZombie := p.getBoolValue(data.BindAsZombie, "EDIR_BIND_AS_ZOMBIE", false)

	if !bindAsZombie && !config.HasAuthentication() {
		resp.Diagnostics.AddError(
			"Missing Authentication Configuration",
			"Either username/password authentication, a TLS client certificate, or bind_as_zombie must be configured. "+
				"For username/password: provide 'username' and 'password' attributes or set EDIR_USERNAME and EDIR_PASSWORD environment variables. "+
				"For the zombie account: set 'bind_as_zombie' with 'zombie_username' and 'zombie_password'.",
		)
	}

	if bindAsZombie && (edirConfig.ZombieUsername == "" || edirConfig.ZombiePassword == "") {
		resp.Diagnostics.AddError(
			"Missing Zombie Account Configuration",
			"bind_as_zombie requires 'zombie_username' and 'zombie_password' "+
				"(or the EDIR_ZOMBIE_USERNAME and EDIR_ZOMBIE_PASSWORD environment variables).",
		)
	}

	if resp.Diagnostics.HasError() {
		return
	}

	start := time.Now()
	client, err := ldapclient.NewClientWithContext(ctx, config)
	if err != nil {
		tflog.Error(ctx, "Failed to create LDAP client", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		resp.Diagnostics.AddError(
			"Unable to Create LDAP Client",
			"An unexpected error occurred when creating the LDAP client. "+
				"If the error is not clear, please contact the provider developers.\n\n"+
				"LDAP Client Error: "+err.Error(),
		)
		return
	}

	start = time.Now()
	if err := client.Connect(ctx); err != nil {
		tflog.Error(ctx, "Connection test failed", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		resp.Diagnostics.AddError(
			"Unable to Connect to eDirectory",
			"The provider could not establish a connection to eDirectory. "+
				"Please verify your configuration settings.\n\n"+
				"Connection Error: "+err.Error(),
		)
		_ = client.Close()
		return
	}

	tflog.Info(ctx, "Connection established successfully", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	})

	providerData, err := NewProviderData(client, edirConfig)
	if err != nil {
		resp.Diagnostics.AddError(
			"Invalid eDirectory Configuration",
			"The eDirectory configuration could not be applied.\n\nError: "+err.Error(),
		)
		_ = client.Close()
		return
	}

	start = time.Now()
	if bindAsZombie {
		err = providerData.Adapter.BindAsZombie(ctx, "", "", "")
	} else {
		err = client.BindWithConfig(ctx)
	}
	if err != nil {
		tflog.Error(ctx, "Authentication test failed", map[string]any{
			"error":          err.Error(),
			"bind_as_zombie": bindAsZombie,
			"duration_ms":    time.Since(start).Milliseconds(),
		})
		resp.Diagnostics.AddError(
			"Authentication Failed",
			"The provider could not authenticate with eDirectory. "+
				"Please verify your authentication credentials and settings.\n\n"+
				"Authentication Error: "+err.Error(),
		)
		_ = client.Close()
		return
	}

	if err := providerData.ValidateConnection(ctx); err != nil {
		resp.Diagnostics.AddError(
			"Unable to Use eDirectory Connection",
			"The provider authenticated but the connection failed its health check.\n\n"+
				"Error: "+err.Error(),
		)
		_ = providerData.Close()
		return
	}

	tflog.Info(ctx, "eDirectory provider configured successfully", map[string]any{
		"base_dn":            edirConfig.BaseDN,
		"username_attribute": providerData.Adapter.Config().UsernameAttribute,
		"bind_as_zombie":     bindAsZombie,
		"duration_ms":        time.Since(start).Milliseconds(),
		"pool":               providerData.PoolStats(),
	})

	resp.DataSourceData = providerData
	resp.ResourceData = providerData
}

// configureLogging sets up the logging subsystems and provider-wide fields.
func (p *EDirectoryProvider) configureLogging(ctx context.Context) context.Context {
	ctx = initializeSubsystems(ctx)
	ctx = tflog.SetField(ctx, "provider", "edir")
	ctx = tflog.SetField(ctx, "provider_version", p.version)

	tflog.Debug(ctx, "eDirectory provider logging configured")

	return ctx
}

// buildLDAPConfig constructs the LDAP client configuration from provider config and environment variables.
func (p *EDirectoryProvider) buildLDAPConfig(data *EDirectoryProviderModel, diags *diag.Diagnostics) *ldapclient.ConnectionConfig {
	config := ldapclient.DefaultConfig()

	config.Host = p.getStringValue(data.Host, "EDIR_HOST")

	if ldapURL := p.getStringValue(data.LdapURL, "EDIR_LDAP_URL"); ldapURL != "" {
		config.LDAPURLs = []string{ldapURL}
	}

	if config.Host == "" && len(config.LDAPURLs) == 0 {
		diags.AddError(
			"Missing Connection Configuration",
			"Either 'host' or 'ldap_url' must be configured, or set the EDIR_HOST or EDIR_LDAP_URL environment variable.",
		)
	}

	config.BaseDN = p.getStringValue(data.BaseDN, "EDIR_BASE_DN")
	if config.BaseDN == "" {
		diags.AddError(
			"Missing Base DN",
			"'base_dn' must be configured, or set the EDIR_BASE_DN environment variable.",
		)
	}

	config.Username = p.getStringValue(data.Username, "EDIR_USERNAME")
	config.Password = p.getStringValue(data.Password, "EDIR_PASSWORD")

	// TLS settings
	if useTLS := p.getBoolValue(data.UseTLS, "EDIR_USE_TLS", true); !useTLS {
		config.UseTLS = false
	}

	config.SkipTLS = p.getBoolValue(data.SkipTLS, "EDIR_SKIP_TLS", false)

	if skipTLSVerify := p.getBoolValue(data.SkipTLSVerify, "EDIR_SKIP_TLS_VERIFY", false); skipTLSVerify {
		if config.TLSConfig == nil {
			config.TLSConfig = &tls.Config{}
		}
		config.TLSConfig.InsecureSkipVerify = true
	}

	config.TLSCACertFile = p.getStringValue(data.TLSCACertFile, "EDIR_TLS_CA_CERT_FILE")
	config.TLSCACert = p.getStringValue(data.TLSCACert, "EDIR_TLS_CA_CERT")
	config.TLSClientCertFile = p.getStringValue(data.TLSClientCertFile, "EDIR_TLS_CLIENT_CERT_FILE")
	config.TLSClientKeyFile = p.getStringValue(data.TLSClientKeyFile, "EDIR_TLS_CLIENT_KEY_FILE")

	// Connection pool settings
	if maxConnections := p.getInt64Value(data.MaxConnections, "EDIR_MAX_CONNECTIONS", 10); maxConnections > 0 {
		config.MaxConnections = int(maxConnections)
	}

	if maxIdleTime := p.getInt64Value(data.MaxIdleTime, "EDIR_MAX_IDLE_TIME", 300); maxIdleTime > 0 {
		config.MaxIdleTime = time.Duration(maxIdleTime) * time.Second
	}

	if connectTimeout := p.getInt64Value(data.ConnectTimeout, "EDIR_CONNECT_TIMEOUT", 30); connectTimeout > 0 {
		config.Timeout = time.Duration(connectTimeout) * time.Second
	}

	// Retry settings
	if maxRetries := p.getInt64Value(data.MaxRetries, "EDIR_MAX_RETRIES", 3); maxRetries >= 0 {
		config.MaxRetries = int(maxRetries)
	}

	if initialBackoff := p.getInt64Value(data.InitialBackoff, "EDIR_INITIAL_BACKOFF", 500); initialBackoff > 0 {
		config.InitialBackoff = time.Duration(initialBackoff) * time.Millisecond
	}

	if maxBackoff := p.getInt64Value(data.MaxBackoff, "EDIR_MAX_BACKOFF", 30); maxBackoff > 0 {
		config.MaxBackoff = time.Duration(maxBackoff) * time.Second
	}

	if pageSize := p.getInt64Value(data.PageSize, "EDIR_PAGE_SIZE", 500); pageSize > 0 {
		config.PageSize = uint32(pageSize)
	}

	return config
}

// buildEDirConfig constructs the adapter configuration.
func (p *EDirectoryProvider) buildEDirConfig(data *EDirectoryProviderModel, config *ldapclient.ConnectionConfig) edir.Config {
	host := config.Host
	if host == "" && len(config.LDAPURLs) > 0 {
		host = config.LDAPURLs[0]
	}

	return edir.Config{
		Host:              host,
		BaseDN:            config.BaseDN,
		UsernameAttribute: p.getStringValue(data.UsernameAttribute, "EDIR_USERNAME_ATTRIBUTE"),
		ZombieUsername:    p.getStringValue(data.ZombieUsername, "EDIR_ZOMBIE_USERNAME"),
		ZombiePassword:    p.getStringValue(data.ZombiePassword, "EDIR_ZOMBIE_PASSWORD"),
		ZombieDN:          p.getStringValue(data.ZombieDN, "EDIR_ZOMBIE_DN"),
	}
}

// Helper functions for configuration value resolution

func (p *EDirectoryProvider) getStringValue(configValue types.String, envVar string) string {
	if !configValue.IsNull() && configValue.ValueString() != "" {
		return configValue.ValueString()
	}
	return os.Getenv(envVar)
}

func (p *EDirectoryProvider) getBoolValue(configValue types.Bool, envVar string, defaultValue bool) bool {
	if !configValue.IsNull() {
		return configValue.ValueBool()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseBool(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *EDirectoryProvider) getInt64Value(configValue types.Int64, envVar string, defaultValue int64) int64 {
	if !configValue.IsNull() {
		return configValue.ValueInt64()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *EDirectoryProvider) Resources(ctx context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewUserResource,
	}
}

func (p *EDirectoryProvider) EphemeralResources(ctx context.Context) []func() ephemeral.EphemeralResource {
	return []func() ephemeral.EphemeralResource{}
}

func (p *EDirectoryProvider) DataSources(ctx context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewUserDataSource,
		NewAddresslessUsersDataSource,
		NewWhoAmIDataSource,
	}
}

func (p *EDirectoryProvider) Functions(ctx context.Context) []func() function.Function {
	return []func() function.Function{
		NewUserDNFunction,
		NewAddresslessFilterFunction,
	}
}

func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &EDirectoryProvider{
			version: version,
		}
	}
}
