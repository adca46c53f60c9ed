package edir

import (
	"strings"
)

// Fields is the caller-facing form of a user: aliases or LDAP attribute
// names mapped to single values. Empty values are treated as absent.
type Fields map[string]string

// Entry is the LDAP attribute form of a user.
type Entry map[string][]string

// Field aliases and the attribute each stands for.
const (
	AliasUsername  = "username"
	AliasFirstname = "firstname"
	AliasLastname  = "lastname"
	AliasEmail     = "email"
	AliasPassword  = "password"
)

// Attribute names used by eDirectory user entries.
const (
	AttrCN           = "cn"
	AttrUID          = "uid"
	AttrGivenName    = "givenName"
	AttrSN           = "sn"
	AttrMail         = "mail"
	AttrUserPassword = "userPassword"
	AttrObjectClass  = "objectClass"
)

var fieldAliases = []struct {
	alias     string
	attribute string
}{
	{AliasUsername, AttrCN},
	{AliasFirstname, AttrGivenName},
	{AliasLastname, AttrSN},
	{AliasEmail, AttrMail},
	{AliasPassword, AttrUserPassword},
}

func isAlias(name string) bool {
	for _, a := range fieldAliases {
		if a.alias == name {
			return true
		}
	}
	return false
}

// lookup finds attr in e ignoring case, returning the key it is stored under.
func (e Entry) lookup(attr string) (string, bool) {
	if _, ok := e[attr]; ok {
		return attr, true
	}
	for k := range e {
		if strings.EqualFold(k, attr) {
			return k, true
		}
	}
	return "", false
}

// ResolveAliases maps fields onto LDAP attribute names.
//
// username, firstname, lastname, email and password become cn, givenName, sn,
// mail and userPassword. An attribute given under its own name wins over its
// alias. The common name is returned separately and is not part of the entry.
func ResolveAliases(fields Fields) (Entry, string) {
	entry := make(Entry, len(fields))

	for name, value := range fields {
		if value == "" || isAlias(name) {
			continue
		}
		entry[name] = []string{value}
	}

	for _, a := range fieldAliases {
		value := fields[a.alias]
		if value == "" {
			continue
		}
		if _, ok := entry.lookup(a.attribute); ok {
			continue
		}
		entry[a.attribute] = []string{value}
	}

	var cn string
	if key, ok := entry.lookup(AttrCN); ok {
		cn = entry[key][0]
		delete(entry, key)
	}

	return entry, cn
}
