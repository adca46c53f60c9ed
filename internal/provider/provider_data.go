package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-edir/internal/edir"
	ldapclient "github.com/isometry/terraform-provider-edir/internal/ldap"
)

// ProviderData is handed to every resource and data source by Configure.
type ProviderData struct {
	Client    ldapclient.Client     // Pooled LDAP client
	Directory *ldapclient.Directory // Generic directory operations on Client
	Adapter   *edir.Adapter         // eDirectory user conventions on Directory
}

// NewProviderData wires an adapter onto client.
func NewProviderData(client ldapclient.Client, config edir.Config) (*ProviderData, error) {
	if client == nil {
		return nil, fmt.Errorf("LDAP client is not initialized")
	}

	if err := config.SetDefaults(); err != nil {
		return nil, err
	}

	directory := ldapclient.NewDirectory(client, config.BaseDN, config.UsernameAttribute)

	adapter, err := edir.New(directory, config)
	if err != nil {
		return nil, err
	}

	return &ProviderData{
		Client:    client,
		Directory: directory,
		Adapter:   adapter,
	}, nil
}

// ValidateConnection checks that the client can reach the directory.
func (pd *ProviderData) ValidateConnection(ctx context.Context) error {
	if pd.Client == nil {
		return fmt.Errorf("LDAP client is not initialized")
	}

	if err := pd.Client.Ping(ctx); err != nil {
		return fmt.Errorf("LDAP client connection failed: %w", err)
	}

	tflog.Debug(ctx, "Provider data validation successful")

	return nil
}

// PoolStats returns a loggable view of the connection pool statistics.
func (pd *ProviderData) PoolStats() map[string]any {
	if pd.Client == nil {
		return nil
	}

	stats := pd.Client.Stats()
	return map[string]any{
		"total":          stats.Total,
		"active":         stats.Active,
		"idle":           stats.Idle,
		"unhealthy":      stats.Unhealthy,
		"created":        stats.Created,
		"errors":         stats.Errors,
		"uptime_seconds": stats.Uptime.Seconds(),
	}
}

// Close closes the client's connections.
func (pd *ProviderData) Close() error {
	if pd.Client == nil {
		return nil
	}

	if err := pd.Client.Close(); err != nil {
		return fmt.Errorf("failed to close LDAP client: %w", err)
	}

	return nil
}

// providerDataFrom extracts *ProviderData from the value passed to a resource
// or data source Configure method. A nil value means the provider is not yet
// configured and yields nil without diagnostics.
func providerDataFrom(data any, kind string, diags *diag.Diagnostics) *ProviderData {
	if data == nil {
		return nil
	}

	providerData, ok := data.(*ProviderData)
	if !ok {
		diags.AddError(
			fmt.Sprintf("Unexpected %s Configure Type", kind),
			fmt.Sprintf("Expected *provider.ProviderData, got: %T. Please report this issue to the provider developers.", data),
		)
		return nil
	}

	return providerData
}
