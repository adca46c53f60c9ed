package edir

import "slices"

// objectClasses is attached to every user entry created by the adapter.
var objectClasses = []string{
	"inetOrgPerson",
	"organizationalPerson",
	"Person",
	"ndsLoginProperties",
	"Top",
}

// BuildDN returns cn=<cn>,<baseDN>. An empty baseDN selects the configured
// base DN.
func (a *Adapter) BuildDN(cn, baseDN string) string {
	if baseDN == "" {
		baseDN = a.config.BaseDN
	}
	return UserDN(cn, baseDN)
}

// UserDN returns cn=<cn>,<baseDN>. The value is used as given; callers are
// trusted not to pass DN special characters.
func UserDN(cn, baseDN string) string {
	return "cn=" + cn + "," + baseDN
}

// BuildObjectClass returns the object classes of an eDirectory user.
func BuildObjectClass() []string {
	return slices.Clone(objectClasses)
}

// BuildUserEntry copies fields, attaches the object classes and sets uid to cn.
func BuildUserEntry(fields Entry) Entry {
	entry := make(Entry, len(fields)+2)
	for k, v := range fields {
		entry[k] = slices.Clone(v)
	}

	if key, ok := entry.lookup(AttrObjectClass); ok {
		delete(entry, key)
	}
	entry[AttrObjectClass] = BuildObjectClass()

	if key, ok := entry.lookup(AttrCN); ok {
		if uidKey, ok := entry.lookup(AttrUID); ok {
			delete(entry, uidKey)
		}
		entry[AttrUID] = slices.Clone(entry[key])
	}

	return entry
}
