package ldap

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultLDAPPort  = 389
	defaultLDAPSPort = 636
)

// ValidateServerInfo validates server information.
func ValidateServerInfo(server *ServerInfo) error {
	if server == nil {
		return fmt.Errorf("server info cannot be nil")
	}

	if server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", server.Port)
	}

	return nil
}

// ServerInfoToURL converts ServerInfo to LDAP URL.
func ServerInfoToURL(server *ServerInfo) string {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}

	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(server.Host, strconv.Itoa(server.Port)))
}

// ParseLDAPURL parses an LDAP URL into ServerInfo.
func ParseLDAPURL(rawURL string) (*ServerInfo, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}

	var useTLS bool
	switch strings.ToLower(u.Scheme) {
	case "ldaps":
		useTLS = true
	case "ldap":
		useTLS = false
	default:
		return nil, fmt.Errorf("unsupported scheme, must be ldap:// or ldaps://")
	}

	port := defaultLDAPPort
	if useTLS {
		port = defaultLDAPSPort
	}

	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", p)
		}
	}

	server := &ServerInfo{
		Host:   u.Hostname(),
		Port:   port,
		UseTLS: useTLS,
		Source: "url",
	}

	return server, ValidateServerInfo(server)
}

// ParseHost turns a bare host or host:port into ServerInfo.
// Port 636 implies LDAPS; any other port, or none, follows useTLS.
func ParseHost(host string, useTLS bool) (*ServerInfo, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("host cannot be empty")
	}

	if strings.Contains(host, "://") {
		return ParseLDAPURL(host)
	}

	port := 0
	if h, p, err := net.SplitHostPort(host); err == nil {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", p)
		}
		host = h
	}

	if port == 0 {
		port = defaultLDAPPort
		if useTLS {
			port = defaultLDAPSPort
		}
	}

	server := &ServerInfo{
		Host:   host,
		Port:   port,
		UseTLS: port == defaultLDAPSPort,
		Source: "host",
	}

	return server, ValidateServerInfo(server)
}

// resolveServers returns the servers a configuration points at, URLs first.
func resolveServers(config *ConnectionConfig) ([]*ServerInfo, error) {
	var servers []*ServerInfo

	for _, u := range config.LDAPURLs {
		server, err := ParseLDAPURL(u)
		if err != nil {
			return nil, fmt.Errorf("invalid LDAP URL %s: %w", u, err)
		}
		servers = append(servers, server)
	}

	if len(servers) == 0 && config.Host != "" {
		server, err := ParseHost(config.Host, config.UseTLS)
		if err != nil {
			return nil, fmt.Errorf("invalid host %s: %w", config.Host, err)
		}
		servers = append(servers, server)
	}

	if len(servers) == 0 {
		return nil, fmt.Errorf("either host or LDAP URLs must be specified")
	}

	return servers, nil
}
