package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Connection pool limits.
const (
	// MaxConnectionPoolLimit is the maximum allowed connections in a pool.
	//
	// eDirectory servers commonly cap concurrent LDAP connections per client
	// address; 100 stays well below that while leaving room for parallel
	// Terraform operations.
	MaxConnectionPoolLimit = 100

	// maxAuthAge is how long a bind is trusted before the connection re-binds.
	maxAuthAge = 5 * time.Minute
)

// dialFunc opens a raw LDAP connection. Swapped out in tests.
type dialFunc func(url string, opts ...ldap.DialOpt) (*ldap.Conn, error)

// connectionPool implements ConnectionPool interface.
type connectionPool struct {
	ctx         context.Context // Logging context with LDAP subsystem
	config      *ConnectionConfig
	tlsConfig   *tls.Config
	servers     []*ServerInfo
	connections chan *PooledConnection
	mu          sync.RWMutex
	closed      bool
	dial        dialFunc

	// Bind identity, replaced by SetCredentials
	credMu         sync.RWMutex
	username       string
	password       string
	credGeneration uint64

	// Statistics
	activeConns  int64
	totalCreated int64
	totalErrors  int64
	startTime    time.Time

	// Health checking
	healthTicker *time.Ticker
	healthStop   chan struct{}
	healthWg     sync.WaitGroup
}

// NewConnectionPool creates a new connection pool.
func NewConnectionPool(ctx context.Context, config *ConnectionConfig) (ConnectionPool, error) {
	return newConnectionPool(ctx, config, ldap.DialURL)
}

func newConnectionPool(ctx context.Context, config *ConnectionConfig, dial dialFunc) (*connectionPool, error) {
	start := time.Now()
	tflog.SubsystemDebug(ctx, "pool", "Creating new connection pool")

	if config == nil {
		config = DefaultConfig()
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	servers, err := resolveServers(config)
	if err != nil {
		return nil, fmt.Errorf("server resolution failed: %w", err)
	}

	tlsConfig, err := BuildTLSConfig(config)
	if err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	pool := &connectionPool{
		ctx:         ctx, // Store context for logging
		config:      config,
		tlsConfig:   tlsConfig,
		servers:     servers,
		connections: make(chan *PooledConnection, config.MaxConnections),
		dial:        dial,
		username:    config.Username,
		password:    config.Password,
		startTime:   time.Now(),
		healthStop:  make(chan struct{}),
	}

	// Start health checking if enabled
	if config.HealthCheck > 0 {
		pool.startHealthChecker()
	}

	LogPoolEvent(ctx, "pool_initialized", map[string]any{
		"server_count":    len(servers),
		"max_connections": config.MaxConnections,
		"duration_ms":     time.Since(start).Milliseconds(),
	})
	return pool, nil
}

// SetCredentials changes the bind identity. Idle connections bound as the
// previous identity re-bind the next time they are handed out.
func (p *connectionPool) SetCredentials(username, password string) {
	p.credMu.Lock()
	defer p.credMu.Unlock()

	p.username = username
	p.password = password
	p.credGeneration++

	tflog.SubsystemDebug(p.ctx, "pool", "Bind identity changed", map[string]any{
		"username":   username,
		"generation": p.credGeneration,
	})
}

// credentials returns the current bind identity and its generation.
func (p *connectionPool) credentials() (string, string, uint64) {
	p.credMu.RLock()
	defer p.credMu.RUnlock()
	return p.username, p.password, p.credGeneration
}

// hasAuthentication reports whether connections must bind before use.
func (p *connectionPool) hasAuthentication() bool {
	username, _, _ := p.credentials()
	if username != "" {
		return true
	}
	return p.config.TLSClientCertFile != "" && p.config.TLSClientKeyFile != ""
}

// Get retrieves a connection from the pool.
func (p *connectionPool) Get(ctx context.Context) (*PooledConnection, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, errors.New("connection pool is closed")
	}
	p.mu.RUnlock()

	// Try to get an existing connection from the pool
	select {
	case conn := <-p.connections:
		if p.isConnectionHealthy(conn) {
			// Check if authentication is still valid or if we need to re-authenticate
			if p.hasAuthentication() && p.needsReAuthentication(conn) {
				if err := p.authenticateConnection(conn); err != nil {
					// Re-authentication failed, close connection and create new one
					p.closeConnection(conn)
					break
				}
			}
			conn.lastUsed = time.Now()
			atomic.AddInt64(&p.activeConns, 1)
			LogPoolEvent(p.ctx, "connection_reused", map[string]any{
				"server": conn.serverInfo.Host,
			})
			return conn, nil
		}
		// Connection is unhealthy, close it and create a new one
		p.closeConnection(conn)
	default:
		// No connections available, create a new one
	}

	// Create a new connection with retry logic
	return p.createConnection(ctx)
}

// createConnection creates a new connection with retry logic.
func (p *connectionPool) createConnection(ctx context.Context) (*PooledConnection, error) {
	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		for _, server := range p.servers {
			conn, err := p.createSingleConnection(ctx, server)
			if err != nil {
				lastErr = err
				atomic.AddInt64(&p.totalErrors, 1)
				LogPoolEvent(p.ctx, "connection_failed", map[string]any{
					"server":  server.Host,
					"attempt": attempt + 1,
					"error":   err.Error(),
				})
				continue
			}

			atomic.AddInt64(&p.totalCreated, 1)
			atomic.AddInt64(&p.activeConns, 1)
			LogPoolEvent(p.ctx, "connection_acquired", map[string]any{
				"server": server.Host,
				"port":   server.Port,
			})
			return conn, nil
		}

		// All servers failed, wait before retrying
		if attempt < p.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*p.config.BackoffFactor), p.config.MaxBackoff)
			}
		}
	}

	LogPoolEvent(p.ctx, "all_connections_failed", map[string]any{
		"servers": len(p.servers),
		"error":   lastErr.Error(),
	})
	return nil, NewConnectionError("failed to create connection after retries", true, lastErr)
}

// createSingleConnection creates a connection to a specific server.
func (p *connectionPool) createSingleConnection(_ context.Context, server *ServerInfo) (*PooledConnection, error) {
	url := ServerInfoToURL(server)

	var conn *ldap.Conn
	var err error

	if server.UseTLS {
		// Direct TLS connection (LDAPS)
		conn, err = p.dial(url, ldap.DialWithTLSConfig(p.tlsConfig))
	} else {
		// Plain connection, will use StartTLS if needed
		conn, err = p.dial(url)
		if err == nil && p.config.UseTLS && !p.config.SkipTLS {
			tlsConfig := p.tlsConfig.Clone()
			if tlsConfig.ServerName == "" {
				tlsConfig.ServerName = server.Host
			}
			if err = conn.StartTLS(tlsConfig); err != nil {
				conn.Close()
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	// Set connection timeout
	conn.SetTimeout(p.config.Timeout)

	pooledConn := &PooledConnection{
		conn:         conn,
		lastUsed:     time.Now(),
		healthy:      true,
		serverInfo:   server,
		returnToPool: p.returnConnection,
	}

	// Authenticate the connection immediately if authentication is configured
	if p.hasAuthentication() {
		if err := p.authenticateConnection(pooledConn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to authenticate connection to %s: %w", url, err)
		}
	}

	return pooledConn, nil
}

// authenticateConnection binds a pooled connection as the current identity.
func (p *connectionPool) authenticateConnection(pooledConn *PooledConnection) error {
	if pooledConn == nil || pooledConn.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	username, password, generation := p.credentials()

	var err error
	switch {
	case username != "":
		err = pooledConn.conn.Bind(username, password)
	case p.config.TLSClientCertFile != "" && p.config.TLSClientKeyFile != "":
		err = pooledConn.conn.ExternalBind()
	default:
		return nil
	}

	if err != nil {
		pooledConn.authenticated = false
		pooledConn.authTime = time.Time{}
		LogConnectionEvent(p.ctx, "authentication_failed", map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		return err
	}

	p.markAuthenticated(pooledConn, generation)
	return nil
}

// markAuthenticated records that a connection is bound as the given identity generation.
func (p *connectionPool) markAuthenticated(conn *PooledConnection, generation uint64) {
	conn.authenticated = true
	conn.authTime = time.Now()
	conn.authGeneration = generation
}

// needsReAuthentication determines if a connection needs to be re-authenticated.
func (p *connectionPool) needsReAuthentication(conn *PooledConnection) bool {
	if conn == nil {
		return true
	}

	// If connection was never authenticated, it needs authentication
	if !conn.authenticated {
		return true
	}

	// Bound as an identity that has since been replaced
	if _, _, generation := p.credentials(); conn.authGeneration != generation {
		return true
	}

	return time.Since(conn.authTime) > maxAuthAge
}

// returnConnection returns a connection to the pool.
func (p *connectionPool) returnConnection(conn *PooledConnection) {
	if conn == nil {
		return
	}

	atomic.AddInt64(&p.activeConns, -1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.closeConnection(conn)
		return
	}

	// Check if connection is still healthy and not too old
	if p.isConnectionHealthy(conn) {
		select {
		case p.connections <- conn:
			LogPoolEvent(p.ctx, "connection_released", nil)
		default:
			// Pool is full, close the connection
			p.closeConnection(conn)
		}
	} else {
		p.closeConnection(conn)
	}
}

// isConnectionHealthy checks if a connection is healthy.
func (p *connectionPool) isConnectionHealthy(conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil || !conn.IsHealthy() {
		return false
	}

	if conn.conn.IsClosing() {
		return false
	}

	// Check if connection is too old
	if time.Since(conn.LastUsed()) >= p.config.MaxIdleTime {
		return false
	}

	// If authentication is configured but connection has never been authenticated, consider unhealthy
	if p.hasAuthentication() && !conn.authenticated {
		return false
	}

	return true
}

// closeConnection closes a pooled connection.
func (p *connectionPool) closeConnection(conn *PooledConnection) {
	if conn != nil && conn.conn != nil {
		conn.conn.Close()
		conn.healthy = false
		conn.authenticated = false
		conn.authTime = time.Time{}
	}
}

// Close closes all connections and shuts down the pool.
func (p *connectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	// Stop health checker
	if p.healthTicker != nil {
		close(p.healthStop)
		p.healthWg.Wait()
		p.healthTicker.Stop()
	}

	// Close all connections in the pool
	close(p.connections)
	for conn := range p.connections {
		p.closeConnection(conn)
	}

	return nil
}

// Stats returns pool statistics.
func (p *connectionPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	idle := len(p.connections)
	active := atomic.LoadInt64(&p.activeConns)

	return PoolStats{
		Total:   idle + int(active),
		Active:  active,
		Idle:    idle,
		Created: atomic.LoadInt64(&p.totalCreated),
		Errors:  atomic.LoadInt64(&p.totalErrors),
		Uptime:  time.Since(p.startTime),
	}
}

// HealthCheck performs health checks on all connections.
func (p *connectionPool) HealthCheck(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	if closed {
		return errors.New("pool is closed")
	}

	p.performHealthCheck(ctx)
	return nil
}

// startHealthChecker starts the periodic health checker.
func (p *connectionPool) startHealthChecker() {
	p.healthTicker = time.NewTicker(p.config.HealthCheck)

	p.healthWg.Go(func() {
		for {
			select {
			case <-p.healthTicker.C:
				ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
				p.performHealthCheck(ctx)
				cancel()
			case <-p.healthStop:
				return
			}
		}
	})
}

// performHealthCheck tests up to three idle connections.
func (p *connectionPool) performHealthCheck(ctx context.Context) {
	var toCheck []*PooledConnection

healthCheckLoop:
	for range 3 {
		select {
		case conn, ok := <-p.connections:
			if !ok {
				break healthCheckLoop
			}
			toCheck = append(toCheck, conn)
		default:
			break healthCheckLoop
		}
	}

	// Test each connection and return healthy ones to pool
	for _, conn := range toCheck {
		if p.testConnection(ctx, conn) {
			// returnConnection decrements the active count
			atomic.AddInt64(&p.activeConns, 1)
			p.returnConnection(conn)
		} else {
			LogPoolEvent(p.ctx, "health_check_failed", map[string]any{
				"server": conn.serverInfo.Host,
			})
			p.closeConnection(conn)
		}
	}
}

// testConnection tests if a connection is working and properly authenticated.
func (p *connectionPool) testConnection(_ context.Context, conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil {
		return false
	}

	if p.hasAuthentication() && p.needsReAuthentication(conn) {
		if err := p.authenticateConnection(conn); err != nil {
			return false
		}
	}

	// Root DSE read works on every eDirectory version, bound or not
	searchReq := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		[]string{"vendorName"},
		nil,
	)

	if _, err := conn.conn.Search(searchReq); err != nil {
		conn.authenticated = false
		conn.authTime = time.Time{}
		return false
	}

	return true
}

// validateConfig validates the connection configuration.
func validateConfig(config *ConnectionConfig) error {
	if config.MaxConnections <= 0 {
		return errors.New("MaxConnections must be positive")
	}

	if config.MaxConnections > MaxConnectionPoolLimit {
		return fmt.Errorf("MaxConnections too high (max %d)", MaxConnectionPoolLimit)
	}

	if config.MaxIdleTime <= 0 {
		return errors.New("MaxIdleTime must be positive")
	}

	if config.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if config.MaxRetries < 0 {
		return errors.New("MaxRetries cannot be negative")
	}

	if config.BackoffFactor <= 1.0 {
		return errors.New("BackoffFactor must be greater than 1.0")
	}

	return nil
}

// Close returns the connection to its pool.
func (pc *PooledConnection) Close() {
	if pc.returnToPool != nil {
		pc.returnToPool(pc)
	}
}

func (pc *PooledConnection) Conn() *ldap.Conn {
	return pc.conn
}

func (pc *PooledConnection) ServerInfo() *ServerInfo {
	return pc.serverInfo
}

func (pc *PooledConnection) IsHealthy() bool {
	return pc.healthy
}

func (pc *PooledConnection) LastUsed() time.Time {
	return pc.lastUsed
}
