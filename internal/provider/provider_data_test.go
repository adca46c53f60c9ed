package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-edir/internal/edir"
	ldapclient "github.com/isometry/terraform-provider-edir/internal/ldap"
)

// MockLDAPClient is a testify mock of ldapclient.Client.
type MockLDAPClient struct {
	mock.Mock
}

var _ ldapclient.Client = (*MockLDAPClient)(nil)

func (m *MockLDAPClient) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockLDAPClient) Close() error {
	return m.Called().Error(0)
}

func (m *MockLDAPClient) Bind(ctx context.Context, username, password string) error {
	return m.Called(ctx, username, password).Error(0)
}

func (m *MockLDAPClient) BindWithConfig(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockLDAPClient) Search(ctx context.Context, req *ldapclient.SearchRequest) (*ldapclient.SearchResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*ldapclient.SearchResult)
	return result, args.Error(1)
}

func (m *MockLDAPClient) SearchWithPaging(ctx context.Context, req *ldapclient.SearchRequest) (*ldapclient.SearchResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*ldapclient.SearchResult)
	return result, args.Error(1)
}

func (m *MockLDAPClient) Add(ctx context.Context, req *ldapclient.AddRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockLDAPClient) Modify(ctx context.Context, req *ldapclient.ModifyRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockLDAPClient) ModifyDN(ctx context.Context, req *ldapclient.ModifyDNRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockLDAPClient) Delete(ctx context.Context, dn string) error {
	return m.Called(ctx, dn).Error(0)
}

func (m *MockLDAPClient) WhoAmI(ctx context.Context) (*ldapclient.WhoAmIResult, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*ldapclient.WhoAmIResult)
	return result, args.Error(1)
}

func (m *MockLDAPClient) GetBaseDN(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockLDAPClient) GetServerInfo(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(map[string]string)
	return info, args.Error(1)
}

func (m *MockLDAPClient) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockLDAPClient) Stats() ldapclient.PoolStats {
	return m.Called().Get(0).(ldapclient.PoolStats)
}

func TestNewProviderData(t *testing.T) {
	client := &MockLDAPClient{}

	pd, err := NewProviderData(client, edir.Config{BaseDN: "ou=users,o=example"})
	require.NoError(t, err)

	assert.Same(t, client, pd.Client)
	assert.Equal(t, "ou=users,o=example", pd.Directory.BaseDN())
	assert.Equal(t, "cn", pd.Directory.UsernameAttribute())
	assert.Equal(t, "ou=users,o=example", pd.Adapter.Config().ZombieDN)

	_, err = NewProviderData(nil, edir.Config{BaseDN: "ou=users,o=example"})
	assert.Error(t, err)

	_, err = NewProviderData(client, edir.Config{BaseDN: "not a dn"})
	assert.Error(t, err)
}

func TestProviderData_ValidateConnection(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		client := &MockLDAPClient{}
		client.On("Ping", mock.Anything).Return(nil).Once()

		pd := &ProviderData{Client: client}
		assert.NoError(t, pd.ValidateConnection(context.Background()))
		client.AssertExpectations(t)
	})

	t.Run("ping fails", func(t *testing.T) {
		client := &MockLDAPClient{}
		client.On("Ping", mock.Anything).Return(errors.New("server down")).Once()

		pd := &ProviderData{Client: client}
		err := pd.ValidateConnection(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server down")
	})

	t.Run("no client", func(t *testing.T) {
		pd := &ProviderData{}
		assert.Error(t, pd.ValidateConnection(context.Background()))
	})
}

func TestProviderData_PoolStats(t *testing.T) {
	client := &MockLDAPClient{}
	client.On("Stats").Return(ldapclient.PoolStats{
		Total:   3,
		Active:  1,
		Idle:    2,
		Created: 4,
		Errors:  1,
		Uptime:  90 * time.Second,
	})

	stats := (&ProviderData{Client: client}).PoolStats()
	assert.Equal(t, 3, stats["total"])
	assert.Equal(t, int64(1), stats["active"])
	assert.Equal(t, 2, stats["idle"])
	assert.Equal(t, int64(4), stats["created"])
	assert.Equal(t, 90.0, stats["uptime_seconds"])

	assert.Nil(t, (&ProviderData{}).PoolStats())
}

func TestProviderData_Close(t *testing.T) {
	client := &MockLDAPClient{}
	client.On("Close").Return(errors.New("boom")).Once()

	err := (&ProviderData{Client: client}).Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close LDAP client")

	assert.NoError(t, (&ProviderData{}).Close())
}

func TestProviderDataFrom(t *testing.T) {
	var diags diag.Diagnostics

	assert.Nil(t, providerDataFrom(nil, "Resource", &diags))
	assert.False(t, diags.HasError())

	pd := &ProviderData{}
	assert.Same(t, pd, providerDataFrom(pd, "Resource", &diags))
	assert.False(t, diags.HasError())

	assert.Nil(t, providerDataFrom("wrong", "Resource", &diags))
	assert.True(t, diags.HasError())
}
