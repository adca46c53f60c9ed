package provider

import (
	"context"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Logging subsystems, each with its level taken from
// TF_LOG_PROVIDER_EDIR_<SUBSYSTEM>.
var subsystems = []string{"provider", "edir", "ldap", "pool"}

// initializeLogging prepares a request context. This should be called at the
// beginning of each data source Read method and resource
// Create/Read/Update/Delete method, so that adapter and client logs emitted
// on the request context reach their subsystems.
func initializeLogging(ctx context.Context) context.Context {
	return initializeSubsystems(ctx)
}

// initializeSubsystems registers every subsystem on ctx. The returned context
// is retained by the LDAP client for its own logging.
func initializeSubsystems(ctx context.Context) context.Context {
	for _, name := range subsystems {
		ctx = tflog.NewSubsystem(ctx, name,
			tflog.WithLevelFromEnv("TF_LOG_PROVIDER_EDIR_"+strings.ToUpper(name)))
	}
	return ctx
}
