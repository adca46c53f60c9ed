package ldap

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoolConfig() *ConnectionConfig {
	config := DefaultConfig()
	config.Host = "edir.example.com"
	config.HealthCheck = 0
	return config
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig() returned nil")
	}

	if !config.UseTLS {
		t.Error("Default config should use TLS")
	}

	if config.SkipTLS {
		t.Error("Default config should not skip TLS")
	}

	if config.TLSConfig == nil || config.TLSConfig.InsecureSkipVerify {
		t.Error("Default config should validate certificates")
	}

	if config.MaxConnections != 10 {
		t.Errorf("MaxConnections = %d, want 10", config.MaxConnections)
	}

	if config.MaxIdleTime != 5*time.Minute {
		t.Errorf("MaxIdleTime = %v, want 5m", config.MaxIdleTime)
	}

	if config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", config.Timeout)
	}

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}

	if config.PageSize != 500 {
		t.Errorf("PageSize = %d, want 500", config.PageSize)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func(mutate func(*ConnectionConfig)) *ConnectionConfig {
		c := &ConnectionConfig{
			MaxConnections: 10,
			MaxIdleTime:    5 * time.Minute,
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			BackoffFactor:  2.0,
		}
		if mutate != nil {
			mutate(c)
		}
		return c
	}

	tests := []struct {
		name    string
		config  *ConnectionConfig
		wantErr bool
	}{
		{"valid config", valid(nil), false},
		{"default config", DefaultConfig(), false},
		{"zero max connections", valid(func(c *ConnectionConfig) { c.MaxConnections = 0 }), true},
		{"too many max connections", valid(func(c *ConnectionConfig) { c.MaxConnections = MaxConnectionPoolLimit + 1 }), true},
		{"zero max idle time", valid(func(c *ConnectionConfig) { c.MaxIdleTime = 0 }), true},
		{"zero timeout", valid(func(c *ConnectionConfig) { c.Timeout = 0 }), true},
		{"negative max retries", valid(func(c *ConnectionConfig) { c.MaxRetries = -1 }), true},
		{"invalid backoff factor", valid(func(c *ConnectionConfig) { c.BackoffFactor = 1.0 }), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConnectionPool_CreateWithoutServers(t *testing.T) {
	config := testPoolConfig()
	config.Host = ""
	config.LDAPURLs = nil

	_, err := NewConnectionPool(context.Background(), config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either host or LDAP URLs must be specified")
}

func TestConnectionPool_CreateWithHost(t *testing.T) {
	pool, err := newConnectionPool(context.Background(), testPoolConfig(), ldap.DialURL)
	require.NoError(t, err)
	defer pool.Close()

	require.Len(t, pool.servers, 1)
	assert.Equal(t, "edir.example.com", pool.servers[0].Host)
	assert.Equal(t, 636, pool.servers[0].Port)
	assert.True(t, pool.servers[0].UseTLS)
}

func TestConnectionPool_URLsOverrideHost(t *testing.T) {
	config := testPoolConfig()
	config.LDAPURLs = []string{"ldaps://edir1.example.com:636", "ldap://edir2.example.com:389"}

	pool, err := newConnectionPool(context.Background(), config, ldap.DialURL)
	require.NoError(t, err)
	defer pool.Close()

	require.Len(t, pool.servers, 2)
	assert.Equal(t, "edir1.example.com", pool.servers[0].Host)
	assert.Equal(t, "edir2.example.com", pool.servers[1].Host)
}

func TestConnectionPool_CreateWithInvalidURL(t *testing.T) {
	config := testPoolConfig()
	config.LDAPURLs = []string{"invalid://edir.example.com"}

	_, err := NewConnectionPool(context.Background(), config)
	assert.Error(t, err)
}

func TestConnectionPool_CreateWithInvalidTLS(t *testing.T) {
	config := testPoolConfig()
	config.TLSClientCertFile = "/tmp/client.pem"

	_, err := NewConnectionPool(context.Background(), config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid TLS configuration")
}

func TestConnectionPool_Stats(t *testing.T) {
	pool, err := NewConnectionPool(context.Background(), testPoolConfig())
	require.NoError(t, err)
	defer pool.Close()

	stats := pool.Stats()
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, 0, stats.Idle)
	assert.Equal(t, int64(0), stats.Created)
	assert.GreaterOrEqual(t, stats.Uptime, time.Duration(0))
}

func TestConnectionPool_GetAfterClose(t *testing.T) {
	pool, err := NewConnectionPool(context.Background(), testPoolConfig())
	require.NoError(t, err)

	require.NoError(t, pool.Close())

	_, err = pool.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	assert.Error(t, pool.HealthCheck(context.Background()))
}

func TestConnectionPool_DoubleClose(t *testing.T) {
	config := testPoolConfig()
	config.HealthCheck = time.Hour

	pool, err := NewConnectionPool(context.Background(), config)
	require.NoError(t, err)

	assert.NoError(t, pool.Close())
	assert.NoError(t, pool.Close())
}

func TestConnectionPool_DialFailureRetries(t *testing.T) {
	config := testPoolConfig()
	config.LDAPURLs = []string{"ldap://edir1.example.com:389", "ldap://edir2.example.com:389"}
	config.MaxRetries = 1
	config.InitialBackoff = time.Millisecond
	config.MaxBackoff = time.Millisecond

	var dials int32
	var dialed []string
	dial := func(url string, _ ...ldap.DialOpt) (*ldap.Conn, error) {
		atomic.AddInt32(&dials, 1)
		dialed = append(dialed, url)
		return nil, errors.New("connection refused")
	}

	pool, err := newConnectionPool(context.Background(), config, dial)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Get(context.Background())
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, connErr.IsRetryable())

	// every server on every attempt, in order
	assert.Equal(t, int32(4), atomic.LoadInt32(&dials))
	assert.Equal(t, []string{
		"ldap://edir1.example.com:389",
		"ldap://edir2.example.com:389",
		"ldap://edir1.example.com:389",
		"ldap://edir2.example.com:389",
	}, dialed)
	assert.Equal(t, int64(4), pool.Stats().Errors)
}

func TestConnectionPool_DialHonoursContext(t *testing.T) {
	config := testPoolConfig()
	config.MaxRetries = 5
	config.InitialBackoff = time.Hour

	dial := func(string, ...ldap.DialOpt) (*ldap.Conn, error) {
		return nil, errors.New("connection refused")
	}

	pool, err := newConnectionPool(context.Background(), config, dial)
	require.NoError(t, err)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pool.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectionPool_SetCredentials(t *testing.T) {
	config := testPoolConfig()
	config.Username = "cn=admin,o=org"
	config.Password = "secret"

	pool, err := newConnectionPool(context.Background(), config, ldap.DialURL)
	require.NoError(t, err)
	defer pool.Close()

	username, password, generation := pool.credentials()
	assert.Equal(t, "cn=admin,o=org", username)
	assert.Equal(t, "secret", password)
	assert.Equal(t, uint64(0), generation)

	conn := &PooledConnection{healthy: true, lastUsed: time.Now()}
	pool.markAuthenticated(conn, generation)
	assert.False(t, pool.needsReAuthentication(conn))

	pool.SetCredentials("cn=zombie,o=org", "braaains")

	username, password, generation = pool.credentials()
	assert.Equal(t, "cn=zombie,o=org", username)
	assert.Equal(t, "braaains", password)
	assert.Equal(t, uint64(1), generation)

	// bound as the previous identity
	assert.True(t, pool.needsReAuthentication(conn))

	pool.markAuthenticated(conn, generation)
	assert.False(t, pool.needsReAuthentication(conn))
}

func TestConnectionPool_NeedsReAuthentication(t *testing.T) {
	pool, err := newConnectionPool(context.Background(), testPoolConfig(), ldap.DialURL)
	require.NoError(t, err)
	defer pool.Close()

	assert.True(t, pool.needsReAuthentication(nil))
	assert.True(t, pool.needsReAuthentication(&PooledConnection{}))

	stale := &PooledConnection{authenticated: true, authTime: time.Now().Add(-2 * maxAuthAge)}
	assert.True(t, pool.needsReAuthentication(stale))

	fresh := &PooledConnection{authenticated: true, authTime: time.Now()}
	assert.False(t, pool.needsReAuthentication(fresh))
}

func TestConnectionPool_HasAuthentication(t *testing.T) {
	pool, err := newConnectionPool(context.Background(), testPoolConfig(), ldap.DialURL)
	require.NoError(t, err)
	defer pool.Close()

	assert.False(t, pool.hasAuthentication())

	pool.SetCredentials("cn=admin,o=org", "secret")
	assert.True(t, pool.hasAuthentication())

	pool.SetCredentials("", "")
	assert.False(t, pool.hasAuthentication())
}

func TestConnectionPool_IsConnectionHealthy(t *testing.T) {
	pool, err := newConnectionPool(context.Background(), testPoolConfig(), ldap.DialURL)
	require.NoError(t, err)
	defer pool.Close()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	conn := ldap.NewConn(client, false)

	fresh := &PooledConnection{conn: conn, healthy: true, lastUsed: time.Now()}
	assert.True(t, pool.isConnectionHealthy(fresh))

	unhealthy := &PooledConnection{conn: conn, healthy: false, lastUsed: time.Now()}
	assert.False(t, pool.isConnectionHealthy(unhealthy))

	idle := &PooledConnection{conn: conn, healthy: true, lastUsed: time.Now().Add(-2 * pool.config.MaxIdleTime)}
	assert.False(t, pool.isConnectionHealthy(idle))

	assert.False(t, pool.isConnectionHealthy(nil))
	assert.False(t, pool.isConnectionHealthy(&PooledConnection{healthy: true, lastUsed: time.Now()}))

	pool.SetCredentials("cn=admin,o=org", "secret")
	assert.False(t, pool.isConnectionHealthy(fresh), "unauthenticated connections are unhealthy once credentials are set")
}

func TestPooledConnection_Methods(t *testing.T) {
	server := &ServerInfo{Host: "edir.example.com", Port: 636, UseTLS: true}
	now := time.Now()

	var returned *PooledConnection
	conn := &PooledConnection{
		lastUsed:   now,
		healthy:    true,
		serverInfo: server,
		returnToPool: func(pc *PooledConnection) {
			returned = pc
		},
	}

	assert.Nil(t, conn.Conn())
	assert.Same(t, server, conn.ServerInfo())
	assert.True(t, conn.IsHealthy())
	assert.Equal(t, now, conn.LastUsed())

	conn.Close()
	assert.Same(t, conn, returned)
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewConnectionError("failed to connect", true, cause)

	assert.Equal(t, "failed to connect: dial tcp: connection refused", err.Error())
	assert.True(t, err.IsRetryable())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "no cause", NewConnectionError("no cause", false, nil).Error())
}

func BenchmarkValidateConfig(b *testing.B) {
	config := DefaultConfig()
	for b.Loop() {
		_ = validateConfig(config)
	}
}
