// Package edir manages user entries in a Novell/NetIQ eDirectory tree.
//
// An Adapter knows eDirectory conventions: users live at cn=<name>,<base DN>,
// carry a fixed set of object classes and have a uid equal to their common
// name. Callers may use the aliases username, firstname, lastname, email and
// password in place of cn, givenName, sn, mail and userPassword.
//
// All directory access goes through a DirectoryClient, normally an
// *ldap.Directory backed by a pooled connection:
//
//	client, err := ldapclient.NewClientWithContext(ctx, ldapConfig)
//	if err != nil {
//		return err
//	}
//	dir := ldapclient.NewDirectory(client, baseDN, "cn")
//	adapter, err := edir.New(dir, edir.Config{BaseDN: baseDN})
//	if err != nil {
//		return err
//	}
//	err = adapter.ModifyUser(ctx, "jdoe", edir.Fields{"email": "jdoe@example.com"})
package edir
