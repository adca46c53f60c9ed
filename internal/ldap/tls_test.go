package ldap

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedPEM returns a throwaway CA certificate and its key, PEM encoded.
func selfSignedPEM(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Tree CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestBuildTLSConfig_Defaults(t *testing.T) {
	cfg, err := BuildTLSConfig(&ConnectionConfig{})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Nil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)
}

func TestBuildTLSConfig_ClonesBase(t *testing.T) {
	base := &tls.Config{MinVersion: tls.VersionTLS13, ServerName: "edir.example.com"}
	certPEM, _ := selfSignedPEM(t)

	cfg, err := BuildTLSConfig(&ConnectionConfig{TLSConfig: base, TLSCACert: string(certPEM)})
	require.NoError(t, err)

	assert.NotSame(t, base, cfg)
	assert.Equal(t, "edir.example.com", cfg.ServerName)
	assert.NotNil(t, cfg.RootCAs)
	assert.Nil(t, base.RootCAs, "caller's TLS config must not be modified")
}

func TestBuildTLSConfig_CAFromFile(t *testing.T) {
	certPEM, _ := selfSignedPEM(t)
	path := writeTemp(t, "ca.pem", certPEM)

	cfg, err := BuildTLSConfig(&ConnectionConfig{TLSCACertFile: path})
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	certPEM, _ := selfSignedPEM(t)

	tests := []struct {
		name    string
		config  *ConnectionConfig
		wantErr string
	}{
		{
			name:    "file and content",
			config:  &ConnectionConfig{TLSCACertFile: "/tmp/ca.pem", TLSCACert: string(certPEM)},
			wantErr: "mutually exclusive",
		},
		{
			name:    "missing CA file",
			config:  &ConnectionConfig{TLSCACertFile: "/nonexistent/ca.pem"},
			wantErr: "failed to read CA certificate file",
		},
		{
			name:    "invalid PEM",
			config:  &ConnectionConfig{TLSCACert: "this is not valid PEM content"},
			wantErr: "no valid certificates",
		},
		{
			name:    "cert without key",
			config:  &ConnectionConfig{TLSClientCertFile: "/tmp/client.pem"},
			wantErr: "must be configured together",
		},
		{
			name:    "unreadable key pair",
			config:  &ConnectionConfig{TLSClientCertFile: "/nonexistent/c.pem", TLSClientKeyFile: "/nonexistent/k.pem"},
			wantErr: "failed to load client certificate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildTLSConfig(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildTLSConfig_ClientCertificate(t *testing.T) {
	certPEM, keyPEM := selfSignedPEM(t)

	cfg, err := BuildTLSConfig(&ConnectionConfig{
		TLSClientCertFile: writeTemp(t, "client.pem", certPEM),
		TLSClientKeyFile:  writeTemp(t, "client.key", keyPEM),
	})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
}
