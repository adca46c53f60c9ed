package ldap

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// DefaultUsernameAttribute names the attribute FindUser matches on.
const DefaultUsernameAttribute = "cn"

// Directory exposes the user-level operations a directory adapter builds on:
// bind, add, delete, find, search, modify and rename, scoped to one base DN.
type Directory struct {
	client            Client
	baseDN            string
	usernameAttribute string
}

// NewDirectory creates a Directory over client. An empty usernameAttribute
// selects cn.
func NewDirectory(client Client, baseDN, usernameAttribute string) *Directory {
	if usernameAttribute == "" {
		usernameAttribute = DefaultUsernameAttribute
	}

	return &Directory{
		client:            client,
		baseDN:            baseDN,
		usernameAttribute: usernameAttribute,
	}
}

// BaseDN returns the DN searches are rooted at.
func (d *Directory) BaseDN() string {
	return d.baseDN
}

// UsernameAttribute returns the attribute FindUser matches on.
func (d *Directory) UsernameAttribute() string {
	return d.usernameAttribute
}

// NewReplaceChange returns a change replacing every value of attr.
func NewReplaceChange(attr string, values ...string) Change {
	return Change{
		Operation: ChangeReplace,
		Attribute: attr,
		Values:    values,
	}
}

// BindAsUser binds as dn. The identity is used by every later operation.
func (d *Directory) BindAsUser(ctx context.Context, dn, password string) error {
	return d.client.Bind(ctx, dn, password)
}

// CreateUser adds an entry at dn.
func (d *Directory) CreateUser(ctx context.Context, dn string, entry map[string][]string) error {
	return d.client.Add(ctx, &AddRequest{
		DN:         dn,
		Attributes: entry,
	})
}

// DeleteUser removes the entry at dn.
func (d *Directory) DeleteUser(ctx context.Context, dn string) error {
	return d.client.Delete(ctx, dn)
}

// FindUser returns the entry whose username attribute equals username,
// or nil when there is none.
func (d *Directory) FindUser(ctx context.Context, username string) (*ldap.Entry, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}

	filter := fmt.Sprintf("(%s=%s)", d.usernameAttribute, ldap.EscapeFilter(username))

	result, err := d.client.Search(ctx, &SearchRequest{
		BaseDN:     d.baseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     filter,
		Attributes: []string{"*"},
	})
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError("find user", err)
	}

	if len(result.Entries) == 0 {
		return nil, nil
	}

	if len(result.Entries) > 1 {
		tflog.SubsystemWarn(ctx, "ldap", "Username matched more than one entry, using the first", map[string]any{
			"filter":  filter,
			"matches": len(result.Entries),
			"dn":      result.Entries[0].DN,
		})
	}

	return result.Entries[0], nil
}

// Search runs a paged subtree search under the base DN.
// No attributes means all user attributes.
func (d *Directory) Search(ctx context.Context, filter string, attributes ...string) ([]*ldap.Entry, error) {
	result, err := d.client.SearchWithPaging(ctx, &SearchRequest{
		BaseDN:     d.baseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     filter,
		Attributes: attributes,
	})
	if err != nil {
		return nil, err
	}

	return result.Entries, nil
}

// Modify applies changes to the entry at dn in a single request.
func (d *Directory) Modify(ctx context.Context, dn string, changes []Change) error {
	return d.client.Modify(ctx, &ModifyRequest{
		DN:      dn,
		Changes: changes,
	})
}

// Rename moves the entry at dn to newDN. The old RDN value is removed; the
// entry changes container only when newDN's parent differs from dn's.
func (d *Directory) Rename(ctx context.Context, dn, newDN string) error {
	_, oldParent, err := SplitDN(dn)
	if err != nil {
		return fmt.Errorf("invalid DN %q: %w", dn, err)
	}

	newRDN, newParent, err := SplitDN(newDN)
	if err != nil {
		return fmt.Errorf("invalid new DN %q: %w", newDN, err)
	}

	req := &ModifyDNRequest{
		DN:           dn,
		NewRDN:       newRDN,
		DeleteOldRDN: true,
	}

	if newParent != "" && !EqualDN(oldParent, newParent) {
		req.NewSuperior = newParent
	}

	return d.client.ModifyDN(ctx, req)
}
