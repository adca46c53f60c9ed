package ldap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Paged search guards.
const (
	maxSearchDuration = 30 * time.Minute
	maxPagesPerSearch = 1000
)

// client implements the Client interface.
type client struct {
	pool       ConnectionPool
	config     *ConnectionConfig
	logContext context.Context // Context with configured subsystems for logging
}

// NewClient creates a new LDAP client with connection pooling.
func NewClient(config *ConnectionConfig) (Client, error) {
	return NewClientWithContext(context.Background(), config)
}

// NewClientWithContext creates a new LDAP client with connection pooling and logging context.
func NewClientWithContext(ctx context.Context, config *ConnectionConfig) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	tflog.SubsystemDebug(ctx, "ldap", "Creating new LDAP client", map[string]any{
		"host":            config.Host,
		"ldap_urls_count": len(config.LDAPURLs),
		"auth_method":     config.GetAuthMethod().String(),
		"use_tls":         config.UseTLS,
		"max_connections": config.MaxConnections,
	})

	start := time.Now()
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		tflog.SubsystemError(ctx, "ldap", "Failed to create connection pool", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	tflog.SubsystemInfo(ctx, "ldap", "LDAP client created successfully", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
		"pool_size":   config.MaxConnections,
		"auth_method": config.GetAuthMethod().String(),
	})

	return newClientWithPool(ctx, config, pool), nil
}

func newClientWithPool(ctx context.Context, config *ConnectionConfig, pool ConnectionPool) *client {
	return &client{
		pool:       pool,
		config:     config,
		logContext: ctx,
	}
}

// loggingContext returns the context carrying the provider's subsystem loggers.
// Operation contexts handed in by the framework do not always carry them.
func (c *client) loggingContext() context.Context {
	if c.logContext != nil {
		return c.logContext
	}
	return context.Background()
}

// Connect initializes the client (tests initial connection).
func (c *client) Connect(ctx context.Context) error {
	logCtx := c.loggingContext()
	return LogOperation(logCtx, "ldap", "connection_test", map[string]any{
		"host": c.config.Host,
	}, func() error {
		conn, err := c.pool.Get(ctx)
		if err != nil {
			tflog.SubsystemError(logCtx, "ldap", "Failed to get connection from pool", map[string]any{
				"error": err.Error(),
			})
			return fmt.Errorf("connection test failed: %w", err)
		}
		defer conn.Close()

		if err := c.ping(ctx, conn); err != nil {
			tflog.SubsystemError(logCtx, "ldap", "Ping test failed", map[string]any{
				"error": err.Error(),
			})
			return err
		}

		return nil
	})
}

// Close closes the client and all its connections.
func (c *client) Close() error {
	return c.pool.Close()
}

// Bind authenticates as username and makes that identity current for every
// subsequent operation issued through the client.
func (c *client) Bind(ctx context.Context, username, password string) error {
	logCtx := c.loggingContext()
	fields := map[string]any{"username": username}

	return LogOperation(logCtx, "ldap", "bind", fields, func() error {
		conn, err := c.pool.Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to get connection: %w", err)
		}
		defer conn.Close()

		err = c.withRetry(ctx, func() error {
			return conn.Conn().Bind(username, password)
		})
		if err != nil {
			LogLDAPError(logCtx, "ldap", "bind", err, fields)
			return WrapError("bind", err)
		}

		c.pool.SetCredentials(username, password)
		return nil
	})
}

// BindWithConfig performs authentication using the client's configuration.
func (c *client) BindWithConfig(ctx context.Context) error {
	logCtx := c.loggingContext()

	switch c.config.GetAuthMethod() {
	case AuthMethodSimpleBind:
		return c.Bind(ctx, c.config.Username, c.config.Password)
	case AuthMethodExternal:
		return LogOperation(logCtx, "ldap", "external_bind", nil, func() error {
			conn, err := c.pool.Get(ctx)
			if err != nil {
				return fmt.Errorf("failed to get connection: %w", err)
			}
			defer conn.Close()

			return c.withRetry(ctx, func() error {
				return conn.Conn().ExternalBind()
			})
		})
	default:
		tflog.SubsystemError(logCtx, "ldap", "No authentication configuration available")
		return fmt.Errorf("no authentication configuration available")
	}
}

// performSearch wraps a search with timing and result logging.
func (c *client) performSearch(operation string, fields map[string]any, searchFunc func() (*SearchResult, error)) (*SearchResult, error) {
	logCtx := c.loggingContext()
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	tflog.SubsystemDebug(logCtx, "ldap", "Starting search operation", fields)

	result, err := searchFunc()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		tflog.SubsystemError(logCtx, "ldap", "Search operation failed", fields)
		return nil, err
	}

	fields["entries_found"] = len(result.Entries)
	tflog.SubsystemDebug(logCtx, "ldap", "Search operation completed successfully", fields)

	return result, nil
}

func toLDAPSearchRequest(req *SearchRequest, sizeLimit int, controls []ldap.Control) *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		int(req.DerefAliases),
		sizeLimit,
		int(req.TimeLimit.Seconds()),
		false, // TypesOnly
		req.Filter,
		req.Attributes,
		controls,
	)
}

// Search performs an LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	searchFields := map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
		"size_limit": req.SizeLimit,
		"time_limit": req.TimeLimit.String(),
	}

	return c.performSearch("search", searchFields, func() (*SearchResult, error) {
		conn, err := c.pool.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get connection: %w", err)
		}
		defer conn.Close()

		ldapReq := toLDAPSearchRequest(req, req.SizeLimit, nil)

		var result *ldap.SearchResult
		err = c.withRetry(ctx, func() error {
			var searchErr error
			result, searchErr = conn.Conn().Search(ldapReq)
			return searchErr
		})

		if err != nil {
			LogLDAPError(c.loggingContext(), "ldap", "search", err, searchFields)
			return nil, fmt.Errorf("search failed: %w", err)
		}

		// Exactly SizeLimit entries means the server may have more
		hasMore := req.SizeLimit > 0 && len(result.Entries) >= req.SizeLimit

		return &SearchResult{
			Entries: result.Entries,
			Total:   len(result.Entries),
			HasMore: hasMore,
		}, nil
	})
}

// SearchWithPaging performs an LDAP search with automatic pagination.
func (c *client) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	logCtx := c.loggingContext()

	pageSize := c.config.PageSize
	if pageSize == 0 {
		pageSize = DefaultConfig().PageSize
	}

	start := time.Now()
	fields := map[string]any{
		"base_dn":   req.BaseDN,
		"filter":    req.Filter,
		"scope":     req.Scope.String(),
		"page_size": pageSize,
	}

	tflog.SubsystemDebug(logCtx, "ldap", "Starting paged search", fields)

	conn, err := c.pool.Get(ctx)
	if err != nil {
		LogLDAPError(logCtx, "ldap", "get_connection", err, fields)
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var allEntries []*ldap.Entry
	pagingControl := ldap.NewControlPaging(pageSize)
	pageNum := 0

	partial := func() *SearchResult {
		return &SearchResult{
			Entries: allEntries,
			Total:   len(allEntries),
			HasMore: true,
		}
	}

	for {
		if elapsed := time.Since(start); elapsed > maxSearchDuration {
			tflog.SubsystemError(logCtx, "ldap", "Paged search exceeded maximum duration, terminating", map[string]any{
				"base_dn":         req.BaseDN,
				"filter":          req.Filter,
				"elapsed_minutes": int(elapsed.Minutes()),
				"pages_completed": pageNum,
				"entries_found":   len(allEntries),
			})
			return partial(), nil
		}

		if pageNum >= maxPagesPerSearch {
			tflog.SubsystemError(logCtx, "ldap", "Paged search exceeded maximum page limit, terminating", map[string]any{
				"base_dn":         req.BaseDN,
				"filter":          req.Filter,
				"pages_completed": pageNum,
				"entries_found":   len(allEntries),
			})
			return partial(), nil
		}

		select {
		case <-ctx.Done():
			tflog.SubsystemWarn(logCtx, "ldap", "Paged search cancelled by context", map[string]any{
				"pages_completed": pageNum,
				"entries_found":   len(allEntries),
				"context_error":   ctx.Err().Error(),
			})
			return partial(), ctx.Err()
		default:
		}

		pageNum++
		pageStart := time.Now()

		ldapReq := toLDAPSearchRequest(req, 0, []ldap.Control{pagingControl})

		var result *ldap.SearchResult
		err = c.withRetry(ctx, func() error {
			var searchErr error
			result, searchErr = conn.Conn().Search(ldapReq)
			return searchErr
		})

		pageFields := map[string]any{
			"page_number": pageNum,
			"duration_ms": time.Since(pageStart).Milliseconds(),
		}

		if err != nil {
			pageFields["error"] = err.Error()
			LogLDAPError(logCtx, "ldap", "paged_search", err, pageFields)
			return nil, fmt.Errorf("paged search failed: %w", err)
		}

		allEntries = append(allEntries, result.Entries...)
		pageFields["entries_in_page"] = len(result.Entries)
		pageFields["total_entries"] = len(allEntries)
		tflog.SubsystemTrace(logCtx, "ldap", "Completed search page", pageFields)

		responseControl, ok := ldap.FindControl(result.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
		if !ok || len(responseControl.Cookie) == 0 {
			break
		}
		pagingControl.SetCookie(responseControl.Cookie)
	}

	LogPerformance(logCtx, "ldap", "paged_search", time.Since(start), map[string]any{
		"base_dn":         req.BaseDN,
		"filter":          req.Filter,
		"total_entries":   len(allEntries),
		"pages_processed": pageNum,
	})

	return &SearchResult{
		Entries: allEntries,
		Total:   len(allEntries),
		HasMore: false,
	}, nil
}

// Add creates a new LDAP entry.
func (c *client) Add(ctx context.Context, req *AddRequest) error {
	if req == nil {
		return fmt.Errorf("add request cannot be nil")
	}

	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewAddRequest(req.DN, nil)
	for attr, values := range req.Attributes {
		ldapReq.Attribute(attr, values)
	}

	return c.withRetry(ctx, func() error {
		return conn.Conn().Add(ldapReq)
	})
}

// toLDAPModifyRequest converts changes in order; the server applies them atomically.
func toLDAPModifyRequest(req *ModifyRequest) (*ldap.ModifyRequest, error) {
	ldapReq := ldap.NewModifyRequest(req.DN, nil)

	for _, change := range req.Changes {
		if change.Attribute == "" {
			return nil, fmt.Errorf("change attribute cannot be empty")
		}

		switch change.Operation {
		case ChangeAdd:
			ldapReq.Add(change.Attribute, change.Values)
		case ChangeDelete:
			ldapReq.Delete(change.Attribute, change.Values)
		case ChangeReplace:
			ldapReq.Replace(change.Attribute, change.Values)
		default:
			return nil, fmt.Errorf("unsupported change operation %d for attribute %s", change.Operation, change.Attribute)
		}
	}

	return ldapReq, nil
}

// Modify modifies an existing LDAP entry.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return fmt.Errorf("modify request cannot be nil")
	}

	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	ldapReq, err := toLDAPModifyRequest(req)
	if err != nil {
		return err
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return c.withRetry(ctx, func() error {
		return conn.Conn().Modify(ldapReq)
	})
}

// ModifyDN moves or renames an LDAP entry.
func (c *client) ModifyDN(ctx context.Context, req *ModifyDNRequest) error {
	if req == nil {
		return fmt.Errorf("modify DN request cannot be nil")
	}

	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	if req.NewRDN == "" {
		return fmt.Errorf("new RDN cannot be empty")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewModifyDNRequest(req.DN, req.NewRDN, req.DeleteOldRDN, req.NewSuperior)

	return c.withRetry(ctx, func() error {
		return conn.Conn().ModifyDN(ldapReq)
	})
}

// Delete removes an LDAP entry.
func (c *client) Delete(ctx context.Context, dn string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewDelRequest(dn, nil)

	return c.withRetry(ctx, func() error {
		return conn.Conn().Del(ldapReq)
	})
}

// Ping tests connectivity to the LDAP server.
func (c *client) Ping(ctx context.Context) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return c.ping(ctx, conn)
}

// ping reads the root DSE.
func (c *client) ping(_ context.Context, conn *PooledConnection) error {
	searchReq := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 5, false,
		"(objectClass=*)",
		[]string{"vendorName"},
		nil,
	)

	_, err := conn.Conn().Search(searchReq)
	return err
}

// Stats returns pool statistics.
func (c *client) Stats() PoolStats {
	return c.pool.Stats()
}

// withRetry executes an operation with retry logic.
func (c *client) withRetry(ctx context.Context, operation func() error) error {
	logCtx := c.loggingContext()
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			tflog.SubsystemDebug(logCtx, "ldap", "Retrying operation", map[string]any{
				"attempt":    attempt,
				"max_retry":  c.config.MaxRetries,
				"backoff_ms": backoff.Milliseconds(),
				"last_error": lastErr.Error(),
			})
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryableError(err) {
			return err
		}

		if attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			tflog.SubsystemWarn(logCtx, "ldap", "Operation cancelled during retry", map[string]any{
				"context_error": ctx.Err().Error(),
				"attempt":       attempt + 1,
			})
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	tflog.SubsystemError(logCtx, "ldap", "Operation failed after all retries exhausted", map[string]any{
		"total_attempts": c.config.MaxRetries + 1,
		"final_error":    lastErr.Error(),
	})

	return NewConnectionError("operation failed after retries", false, lastErr)
}

// isRetryableError determines if an error should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if ldap.IsErrorWithCode(err, ldap.LDAPResultBusy) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnavailable) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultServerDown) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultTimeout) {
		return true
	}

	// Anything the server answered with a result code is final
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) && ldapErr.ResultCode != 0 && ldapErr.ResultCode < ldap.ErrorNetwork {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "broken pipe")
}

// WhoAmI performs the LDAP Who Am I? extended operation.
func (c *client) WhoAmI(ctx context.Context) (*WhoAmIResult, error) {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var result *ldap.WhoAmIResult
	err = c.withRetry(ctx, func() error {
		var whoamiErr error
		result, whoamiErr = conn.Conn().WhoAmI(nil)
		return whoamiErr
	})

	if err != nil {
		return nil, fmt.Errorf("WhoAmI operation failed: %w", err)
	}

	if result == nil {
		return nil, fmt.Errorf("WhoAmI operation returned nil result")
	}

	return ParseAuthzID(result.AuthzID), nil
}

// ParseAuthzID splits an RFC 4532 authorization identity into its form.
// eDirectory answers "dn:cn=admin,o=org" for bound sessions and "" for anonymous ones.
func ParseAuthzID(authzID string) *WhoAmIResult {
	result := &WhoAmIResult{AuthzID: authzID}

	switch {
	case authzID == "":
		result.Format = "empty"
	case strings.HasPrefix(strings.ToLower(authzID), "dn:"):
		result.Format = "dn"
		result.DN = strings.TrimSpace(authzID[len("dn:"):])
	case strings.HasPrefix(strings.ToLower(authzID), "u:"):
		result.Format = "username"
		result.Name = strings.TrimSpace(authzID[len("u:"):])
	case strings.Contains(authzID, "="):
		result.Format = "dn"
		result.DN = authzID
	default:
		result.Format = "username"
		result.Name = authzID
	}

	return result
}

// GetBaseDN returns the configured base DN, or the first naming context
// advertised by the root DSE.
func (c *client) GetBaseDN(ctx context.Context) (string, error) {
	if c.config.BaseDN != "" {
		return c.config.BaseDN, nil
	}

	info, err := c.GetServerInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get base DN: %w", err)
	}

	baseDN := info["namingContexts"]
	if baseDN == "" {
		return "", fmt.Errorf("no namingContexts found in root DSE")
	}

	return baseDN, nil
}

// GetServerInfo reads identifying attributes from the root DSE.
func (c *client) GetServerInfo(ctx context.Context) (map[string]string, error) {
	searchReq := &SearchRequest{
		BaseDN: "",
		Scope:  ScopeBaseObject,
		Filter: "(objectClass=*)",
		Attributes: []string{
			"namingContexts",
			"vendorName",
			"vendorVersion",
			"directoryTreeName",
			"supportedLDAPVersion",
			"supportedSASLMechanisms",
		},
		SizeLimit: 1,
		TimeLimit: 10 * time.Second,
	}

	result, err := c.Search(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("failed to get server info: %w", err)
	}

	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("no root DSE found")
	}

	info := make(map[string]string)
	entry := result.Entries[0]

	for _, attr := range searchReq.Attributes {
		if value := entry.GetAttributeValue(attr); value != "" {
			info[attr] = value
		}
	}

	return info, nil
}
