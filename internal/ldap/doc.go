/*
Package ldap provides the pooled LDAP client and the generic directory
operations the eDirectory adapter is built on.

# Architecture Overview

  - Client: connection management with pooling, health checks and retries
  - Directory: user-level operations (bind, add, delete, find, search,
    modify, rename) scoped to one base DN
  - DN helpers: parsing, splitting, normalising and escaping
  - LDAPError: categorised errors, including eDirectory's native NDS codes

# Connection Management

The Client interface hides a connection pool:

  - servers from ldap:// or ldaps:// URLs, or a bare host
  - LDAPS or StartTLS, custom CA and client certificates
  - idle expiry and periodic health checks against the root DSE
  - automatic retry with exponential backoff for transient failures

Bind changes the identity of the whole pool. Idle connections bound as an
earlier identity re-bind the next time they are handed out, so every
operation after a successful Bind runs as the new identity.

# Error Handling

Server errors are wrapped in LDAPError. eDirectory reports its own error in
the diagnostic message ("NDS error: no such entry (-601)"); the NDS code is
extracted and refines the category where the LDAP result code is too coarse.

# Example Usage

	config := ldap.DefaultConfig()
	config.Host = "edir.example.com"
	config.Username = "cn=admin,o=org"
	config.Password = "secret"

	client, err := ldap.NewClientWithContext(ctx, config)
	if err != nil {
		return err
	}
	defer client.Close()

	dir := ldap.NewDirectory(client, "ou=users,o=org", "cn")
	entry, err := dir.FindUser(ctx, "jdoe")
*/
package ldap
