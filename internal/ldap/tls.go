package ldap

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// BuildTLSConfig assembles the TLS configuration used for LDAPS and StartTLS.
// The configured TLSConfig is cloned; CA and client certificates are layered on top.
func BuildTLSConfig(config *ConnectionConfig) (*tls.Config, error) {
	var tlsConfig *tls.Config
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if config.TLSCACertFile != "" && config.TLSCACert != "" {
		return nil, errors.New("TLS CA certificate file and content are mutually exclusive")
	}

	var caPEM []byte
	switch {
	case config.TLSCACertFile != "":
		data, err := os.ReadFile(config.TLSCACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		caPEM = data
	case config.TLSCACert != "":
		caPEM = []byte(config.TLSCACert)
	}

	if len(caPEM) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.New("no valid certificates found in CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if (config.TLSClientCertFile == "") != (config.TLSClientKeyFile == "") {
		return nil, errors.New("TLS client certificate and key must be configured together")
	}

	if config.TLSClientCertFile != "" {
		cert, err := tls.LoadX509KeyPair(config.TLSClientCertFile, config.TLSClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
