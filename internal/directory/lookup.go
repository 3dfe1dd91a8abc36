package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// groupResolver enriches a user entry with its group membership. The variant
// is selected once at construction: a template-driven search when group
// search is configured, otherwise an identity passthrough so callers never
// branch on whether group resolution is active.
type groupResolver func(user Entry) (Entry, error)

// Lookup performs admin-bound directory searches.
type Lookup struct {
	config  *Config
	log     *zap.Logger
	session *Session
	cache   *Cache
	groups  groupResolver
}

func newLookup(config *Config, log *zap.Logger, session *Session, cache *Cache) *Lookup {
	l := &Lookup{
		config:  config,
		log:     log,
		session: session,
		cache:   cache,
	}

	if config.groupSearchConfigured() {
		l.groups = l.resolveGroupsBySearch
	} else {
		l.groups = passthroughGroups
	}

	return l
}

// escapeFilterValue escapes directory-filter metacharacters in user-supplied
// input before substitution into a filter template. Beyond the RFC 4515 set
// handled by go-ldap, forward slashes are escaped as well.
func escapeFilterValue(value string) string {
	return strings.ReplaceAll(ldap.EscapeFilter(value), "/", `\2f`)
}

// escapeDNForFilter escapes the parentheses of a DN substituted into a group
// filter template.
func escapeDNForFilter(dn string) string {
	dn = strings.ReplaceAll(dn, "(", `\28`)
	return strings.ReplaceAll(dn, ")", `\29`)
}

// FindUserByUsername resolves a single user entry by account name. With
// useCache set, the cache is consulted first; a miss falls back to a live
// admin-bound search. Zero matches fail with ErrNotFound, multiple matches
// with ErrAmbiguousResult. Cache population is the caller's responsibility.
func (l *Lookup) FindUserByUsername(ctx context.Context, username string, useCache bool) (Entry, error) {
	if useCache {
		if entry, ok := l.cache.Read(ctx, UserKey(username)); ok {
			l.log.Debug("user lookup served from cache", zap.String("username", username))
			return entry, nil
		}
	}

	filter := strings.ReplaceAll(l.config.SearchFilter, "{{username}}", escapeFilterValue(username))
	req := ldap.NewSearchRequest(
		l.config.SearchBase,
		scopeValue(l.config.SearchScope), ldap.NeverDerefAliases, 0, int(l.config.OperationTimeout.Seconds()), false,
		filter,
		l.config.SearchAttributes,
		nil,
	)

	result, err := l.session.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for user %q: %w", username, err)
	}

	return l.singleEntry(result)
}

// FindUserByDN resolves a single user entry by distinguished name with a
// base-object read of the DN. The configured search scope does not apply
// here: a subtree read from an exact DN would also match subordinate entries
// and break the single-entry contract.
func (l *Lookup) FindUserByDN(ctx context.Context, dn string, useCache bool) (Entry, error) {
	if useCache {
		if entry, ok := l.cache.Read(ctx, DNKey(dn)); ok {
			l.log.Debug("dn lookup served from cache", zap.String("dn", dn))
			return entry, nil
		}
	}

	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, int(l.config.OperationTimeout.Seconds()), false,
		"(objectClass=*)",
		l.config.SearchAttributes,
		nil,
	)

	result, err := l.session.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for dn %q: %w", dn, err)
	}

	return l.singleEntry(result)
}

// ResolveGroups enriches the user entry with its group membership, or
// returns it unchanged when group search is not configured.
func (l *Lookup) ResolveGroups(user Entry) (Entry, error) {
	return l.groups(user)
}

func passthroughGroups(user Entry) (Entry, error) {
	return user, nil
}

func (l *Lookup) resolveGroupsBySearch(user Entry) (Entry, error) {
	filter := strings.ReplaceAll(l.config.GroupSearchFilter, "{{dn}}", escapeDNForFilter(user.DN()))
	filter = strings.ReplaceAll(filter, "{{username}}", escapeFilterValue(user.AccountName()))

	req := ldap.NewSearchRequest(
		l.config.GroupSearchBase,
		scopeValue(l.config.GroupSearchScope), ldap.NeverDerefAliases, 0, int(l.config.OperationTimeout.Seconds()), false,
		filter,
		l.config.GroupSearchAttributes,
		nil,
	)

	result, err := l.session.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search groups for %q: %w", user.DN(), err)
	}

	groups := make([]Entry, 0, len(result.Entries))
	for _, raw := range result.Entries {
		groups = append(groups, NormalizeEntry(raw))
	}

	user["groups"] = groups
	return user, nil
}

// SynchronizeAllUsers returns every user entry with groups resolved.
// Per-entry group-resolution failures are collected rather than aborting the
// pass; affected users are returned without the groups attribute.
func (l *Lookup) SynchronizeAllUsers(_ context.Context) ([]Entry, error) {
	req := ldap.NewSearchRequest(
		l.config.SearchBase,
		scopeValue(l.config.SearchScope), ldap.NeverDerefAliases, 0, int(l.config.OperationTimeout.Seconds()), false,
		l.config.AllUsersFilter,
		l.config.SearchAttributes,
		nil,
	)

	result, err := l.session.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to synchronize users: %w", err)
	}

	var errs error
	users := make([]Entry, 0, len(result.Entries))
	for _, raw := range result.Entries {
		user := NormalizeEntry(raw)

		enriched, err := l.groups(user)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("resolve groups for %q: %w", user.DN(), err))
			users = append(users, user)
			continue
		}

		users = append(users, enriched)
	}

	return users, errs
}

// SynchronizeAllGroups returns every group entry under the group search base
// (the user search base when group search is not configured).
func (l *Lookup) SynchronizeAllGroups(_ context.Context) ([]Entry, error) {
	base := l.config.GroupSearchBase
	if base == "" {
		base = l.config.SearchBase
	}

	req := ldap.NewSearchRequest(
		base,
		scopeValue(l.config.GroupSearchScope), ldap.NeverDerefAliases, 0, int(l.config.OperationTimeout.Seconds()), false,
		l.config.AllGroupsFilter,
		l.config.GroupSearchAttributes,
		nil,
	)

	result, err := l.session.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to synchronize groups: %w", err)
	}

	groups := make([]Entry, 0, len(result.Entries))
	for _, raw := range result.Entries {
		groups = append(groups, NormalizeEntry(raw))
	}

	return groups, nil
}

// singleEntry applies the exactly-one-match contract to a search result.
func (l *Lookup) singleEntry(result *ldap.SearchResult) (Entry, error) {
	switch len(result.Entries) {
	case 0:
		return nil, ErrNotFound
	case 1:
		entry := NormalizeEntry(result.Entries[0])
		if l.config.IncludeRaw {
			entry["raw"] = rawAttributes(result.Entries[0])
		}
		return entry, nil
	default:
		return nil, ErrAmbiguousResult
	}
}

// rawAttributes preserves the server's unnormalized attribute values.
func rawAttributes(entry *ldap.Entry) map[string][]string {
	raw := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		raw[attr.Name] = append([]string(nil), attr.Values...)
	}
	return raw
}
