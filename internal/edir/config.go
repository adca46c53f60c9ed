package edir

import (
	"fmt"

	"github.com/creasty/defaults"

	ldapclient "github.com/isometry/terraform-provider-edir/internal/ldap"
)

// Config holds the eDirectory conventions an Adapter applies.
type Config struct {
	// Host is informational; connections are owned by the DirectoryClient.
	Host string

	// BaseDN is the container user entries live in.
	BaseDN string

	// UsernameAttribute names the attribute users are looked up by.
	UsernameAttribute string `default:"cn"`

	// Zombie (service) account used by BindAsZombie when no identity is given.
	ZombieUsername string
	ZombiePassword string

	// ZombieDN is the container of the zombie account; BaseDN when empty.
	ZombieDN string
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("applying defaults: %w", err)
	}

	if c.ZombieDN == "" {
		c.ZombieDN = c.BaseDN
	}

	return nil
}

// Validate checks that the configured DNs parse.
func (c *Config) Validate() error {
	if err := ldapclient.ValidateDNSyntax(c.BaseDN); err != nil {
		return fmt.Errorf("base DN: %w", err)
	}

	if c.ZombieDN != "" {
		if err := ldapclient.ValidateDNSyntax(c.ZombieDN); err != nil {
			return fmt.Errorf("zombie DN: %w", err)
		}
	}

	return nil
}
