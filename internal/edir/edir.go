package edir

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-edir/internal/ldap"
)

// DirectoryClient is the directory capability the adapter is built on.
// *ldapclient.Directory implements it.
type DirectoryClient interface {
	BindAsUser(ctx context.Context, dn, password string) error
	CreateUser(ctx context.Context, dn string, entry map[string][]string) error
	DeleteUser(ctx context.Context, dn string) error
	// FindUser returns nil, nil when no entry matches.
	FindUser(ctx context.Context, username string) (*ldap.Entry, error)
	Search(ctx context.Context, filter string, attributes ...string) ([]*ldap.Entry, error)
	Modify(ctx context.Context, dn string, changes []ldapclient.Change) error
	Rename(ctx context.Context, dn, newDN string) error
}

var _ DirectoryClient = (*ldapclient.Directory)(nil)

// Adapter applies eDirectory user conventions on top of a DirectoryClient.
// It holds no state beyond its configuration; errors from the client are
// returned as they are.
type Adapter struct {
	dir    DirectoryClient
	config Config
}

// New creates an Adapter. Unset configuration takes its defaults.
func New(dir DirectoryClient, config Config) (*Adapter, error) {
	if dir == nil {
		return nil, fmt.Errorf("directory client cannot be nil")
	}

	if err := config.SetDefaults(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid eDirectory configuration: %w", err)
	}

	return &Adapter{dir: dir, config: config}, nil
}

// Config returns the adapter's configuration with defaults applied.
func (a *Adapter) Config() Config {
	return a.config
}

// BindAsZombie binds as the zombie account, making it the identity for later
// operations. Empty arguments take the configured zombie username, password
// and container.
func (a *Adapter) BindAsZombie(ctx context.Context, username, password, dn string) error {
	username = cmpOr(username, a.config.ZombieUsername)
	password = cmpOr(password, a.config.ZombiePassword)
	dn = cmpOr(dn, a.config.ZombieDN, a.config.BaseDN)

	bindDN := a.BuildDN(username, dn)

	return ldapclient.LogOperation(ctx, "edir", "bind_as_zombie", map[string]any{
		"bind_dn": bindDN,
	}, func() error {
		return a.dir.BindAsUser(ctx, bindDN, password)
	})
}

// CreateUser adds a user at cn=<cn>,<base DN>. Aliases are resolved first.
func (a *Adapter) CreateUser(ctx context.Context, fields Fields) error {
	attrs, cn := ResolveAliases(fields)
	if cn != "" {
		attrs[AttrCN] = []string{cn}
	}

	entry := BuildUserEntry(attrs)
	dn := a.BuildDN(cn, "")

	return ldapclient.LogOperation(ctx, "edir", "create_user", map[string]any{
		"dn":         dn,
		"attributes": slices.Sorted(maps.Keys(entry)),
	}, func() error {
		return a.dir.CreateUser(ctx, dn, entry)
	})
}

// DeleteUser removes the user cn=<cn>,<base DN>.
func (a *Adapter) DeleteUser(ctx context.Context, cn string) error {
	dn := a.BuildDN(cn, "")

	return ldapclient.LogOperation(ctx, "edir", "delete_user", map[string]any{
		"dn": dn,
	}, func() error {
		return a.dir.DeleteUser(ctx, dn)
	})
}

// ModifyUser replaces the given attributes of the user found by cn and, when
// a new common name is given, renames the entry afterwards. uid follows the
// new common name unless set explicitly. Empty fields are ignored.
//
// A missing user yields ErrUserNotFound and no writes.
func (a *Adapter) ModifyUser(ctx context.Context, cn string, fields Fields) error {
	user, err := a.dir.FindUser(ctx, cn)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: %s", ErrUserNotFound, cn)
	}

	attrs, newCN := ResolveAliases(fields)
	if newCN != "" {
		if _, ok := attrs.lookup(AttrUID); !ok {
			attrs[AttrUID] = []string{newCN}
		}
	}

	names := slices.Sorted(maps.Keys(attrs))
	changes := make([]ldapclient.Change, 0, len(names))
	for _, name := range names {
		changes = append(changes, ldapclient.NewReplaceChange(name, attrs[name]...))
	}

	logFields := map[string]any{
		"dn":         user.DN,
		"attributes": names,
	}

	if len(changes) > 0 {
		values := make(map[string]any, len(attrs))
		for name, v := range attrs {
			values[name] = v[0]
		}
		tflog.SubsystemTrace(ctx, "edir", "Replacing user attributes", ldapclient.SanitizeFields(values))

		err := ldapclient.LogOperation(ctx, "edir", "modify_user", logFields, func() error {
			return a.dir.Modify(ctx, user.DN, changes)
		})
		if err != nil {
			return err
		}
	}

	if newCN == "" {
		return nil
	}

	newDN := a.BuildDN(newCN, "")
	// A cn naming the same entry (differing only in case) is not renamed.
	if ldapclient.EqualDN(user.DN, newDN) {
		return nil
	}

	return ldapclient.LogOperation(ctx, "edir", "rename_user", map[string]any{
		"dn":     user.DN,
		"new_dn": newDN,
	}, func() error {
		return a.dir.Rename(ctx, user.DN, newDN)
	})
}

// FindAllEmailAddressless returns the users whose common name starts with
// prefix and contains no "@".
func (a *Adapter) FindAllEmailAddressless(ctx context.Context, prefix string) ([]*ldap.Entry, error) {
	filter := EmailAddresslessFilter(prefix)

	var entries []*ldap.Entry
	err := ldapclient.LogOperation(ctx, "edir", "find_email_addressless", map[string]any{
		"filter": filter,
	}, func() error {
		var err error
		entries, err = a.dir.Search(ctx, filter)
		return err
	})

	return entries, err
}

// EmailAddresslessFilter builds (&(cn=<prefix>*)(!(cn=*@*))). The prefix is
// filter-escaped, so it always matches literally: "*" is not a wildcard.
func EmailAddresslessFilter(prefix string) string {
	return fmt.Sprintf("(&(cn=%s*)(!(cn=*@*)))", ldap.EscapeFilter(prefix))
}

func cmpOr(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
