package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// Change describes a single attribute modification. Op is one of add,
// replace or delete; replace is the default.
type Change struct {
	Op        string   `json:"op"`
	Attribute string   `json:"attribute"`
	Values    []string `json:"values"`
}

// Service is the top-level directory authentication service. It composes the
// admin session, the lookup layer and the cache, and owns the dedicated
// short-lived connections used for per-user binds.
type Service struct {
	config  *Config
	log     *zap.Logger
	session *Session
	lookup  *Lookup
	cache   *Cache
	dial    dialFunc
}

// NewService builds a service from configuration. The cache backend is
// constructed from the configured cache URL; without one, caching is
// disabled and every lookup goes live. A nil logger disables logging.
func NewService(config *Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return newService(config, log, NewCacheFromURL(config.CacheURL, config.CacheTTL, log), dialDirectory)
}

// NewServiceWithStore builds a service over an already-constructed cache
// store handle instead of a connection URL.
func NewServiceWithStore(config *Config, log *zap.Logger, store Store) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return newService(config, log, NewCache(store, config.CacheTTL, log), dialDirectory)
}

func newService(config *Config, log *zap.Logger, cache *Cache, dial dialFunc) *Service {
	session := newSession(config, log, dial)
	return &Service{
		config:  config,
		log:     log,
		session: session,
		lookup:  newLookup(config, log, session, cache),
		cache:   cache,
		dial:    dial,
	}
}

// Lookup exposes the search layer.
func (s *Service) Lookup() *Lookup {
	return s.lookup
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// Authenticate verifies a user's credentials and returns the resolved entry.
// An empty password fails immediately without contacting the directory. On a
// cache hit the cached entry is returned synchronously and a full live
// re-authentication runs in the background, overwriting the cache when the
// live result differs or the record lacked a concrete password proof.
// Background failures are logged, never surfaced.
func (s *Service) Authenticate(ctx context.Context, username, password string, useCache bool) (Entry, error) {
	if password == "" {
		return nil, ErrMissingPassword
	}

	if useCache {
		if cached, proof, ok := s.cache.ReadAuthenticated(ctx, UserKey(username), password); ok {
			s.log.Debug("authentication served from cache", zap.String("username", username))

			snapshot, err := json.Marshal(cached)
			if err != nil {
				snapshot = nil
			}
			go s.refreshCachedUser(username, password, string(snapshot), proof)

			return cached, nil
		}
	}

	user, err := s.authenticateLive(ctx, username, password)
	if err != nil {
		return nil, err
	}

	s.writeUserCache(ctx, username, user, password)
	return user, nil
}

// FindUser resolves a user by account name without verifying credentials.
// A live hit populates both cache keys with the no-password marker: the
// record is trusted by later lookups but never validates a password on its
// own, so the first authentication for the account still goes live.
func (s *Service) FindUser(ctx context.Context, username string, useCache bool) (Entry, error) {
	if useCache {
		if entry, ok := s.cache.Read(ctx, UserKey(username)); ok {
			s.log.Debug("user lookup served from cache", zap.String("username", username))
			return entry, nil
		}
	}

	user, err := s.lookup.FindUserByUsername(ctx, username, false)
	if err != nil {
		return nil, err
	}

	s.cache.Write(ctx, UserKey(username), user, noPasswordProof)
	if dn := user.DN(); dn != "" {
		s.cache.Write(ctx, DNKey(dn), user, noPasswordProof)
	}

	return user, nil
}

// authenticateLive resolves the user via the admin session, then verifies
// the password by binding a dedicated short-lived connection as the resolved
// identity. The cache is not touched here.
func (s *Service) authenticateLive(ctx context.Context, username, password string) (Entry, error) {
	user, err := s.lookup.FindUserByUsername(ctx, username, false)
	if err != nil {
		return nil, err
	}

	identity := s.bindIdentity(user)
	if identity == "" {
		return nil, fmt.Errorf("user %q has no %s attribute to bind with", username, s.config.BindProperty)
	}

	conn, err := s.dial(s.config)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Bind(identity, password); err != nil {
		s.log.Debug("user bind rejected",
			zap.String("username", username),
			zap.String("identity", identity),
			zap.Error(err))
		return nil, ErrInvalidCredentials
	}

	return s.lookup.ResolveGroups(user)
}

// refreshCachedUser re-authenticates in the background after a cache hit.
// It shares nothing mutable with the foreground return path: the cached
// entry travels as a JSON snapshot.
func (s *Service) refreshCachedUser(username, password, snapshot, proof string) {
	ctx := context.Background()

	live, err := s.authenticateLive(ctx, username, password)
	if err != nil {
		s.log.Error("background re-authentication failed",
			zap.String("username", username),
			zap.Error(err))
		return
	}

	liveJSON, err := json.Marshal(live)
	if err != nil {
		s.log.Error("background re-authentication encode failed", zap.Error(err))
		return
	}

	if proof == noPasswordProof || string(liveJSON) != snapshot {
		s.log.Debug("cache entry refreshed from live directory", zap.String("username", username))
		s.writeUserCache(ctx, username, live, password)
	}
}

// writeUserCache stores the entry under both lookup keys with a fresh
// password proof so either key hits thereafter.
func (s *Service) writeUserCache(ctx context.Context, username string, user Entry, password string) {
	if !s.cache.Enabled() {
		return
	}

	proof := hashPassword(password, s.log)
	s.cache.Write(ctx, UserKey(username), user, proof)
	if dn := user.DN(); dn != "" {
		s.cache.Write(ctx, DNKey(dn), user, proof)
	}
}

// bindIdentity picks the attribute the user connection binds with,
// defaulting to the distinguished name.
func (s *Service) bindIdentity(user Entry) string {
	if s.config.BindProperty == "" || s.config.BindProperty == "dn" {
		return user.DN()
	}
	identity, _ := user[s.config.BindProperty].(string)
	return identity
}

// Modify applies attribute changes to an entry. With credentials supplied,
// the modification runs on a dedicated connection bound as (dn, password),
// enforcing self-service semantics; otherwise it runs on the admin session.
// On success the cache records for the DN and, when given, the username are
// invalidated. Directory errors surface unmodified.
func (s *Service) Modify(ctx context.Context, dn string, changes []Change, username, password string) error {
	req := ldap.NewModifyRequest(dn, nil)
	for _, change := range changes {
		switch strings.ToLower(change.Op) {
		case "add":
			req.Add(change.Attribute, change.Values)
		case "delete":
			req.Delete(change.Attribute, change.Values)
		default:
			req.Replace(change.Attribute, change.Values)
		}
	}

	var err error
	if password != "" {
		err = s.modifyAsUser(dn, password, req)
	} else {
		err = s.session.Modify(req)
	}

	if err != nil {
		s.log.Error("modify failed",
			zap.String("dn", dn),
			zap.Strings("changes", redactChanges(changes)),
			zap.Error(err))
		return err
	}

	s.log.Debug("modify applied",
		zap.String("dn", dn),
		zap.Strings("changes", redactChanges(changes)))

	keys := []string{DNKey(dn)}
	if username != "" {
		keys = append(keys, UserKey(username))
	}
	s.cache.Invalidate(ctx, keys...)

	return nil
}

// modifyAsUser performs a modification on a dedicated connection bound as
// the entry being modified.
func (s *Service) modifyAsUser(dn, password string, req *ldap.ModifyRequest) error {
	conn, err := s.dial(s.config)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Bind(dn, password); err != nil {
		return ErrInvalidCredentials
	}

	return conn.Modify(req)
}

// redactChanges renders changes for logging with binary photo payloads
// stripped.
func redactChanges(changes []Change) []string {
	rendered := make([]string, 0, len(changes))
	for _, change := range changes {
		if attributeInClass(change.Attribute, binaryAttributes) {
			rendered = append(rendered, fmt.Sprintf("%s %s [binary value redacted]", change.Op, change.Attribute))
			continue
		}
		rendered = append(rendered, fmt.Sprintf("%s %s %s", change.Op, change.Attribute, strings.Join(change.Values, ",")))
	}
	return rendered
}

// Add creates a new entry under the configured creation base and returns the
// server's canonical view of it, re-fetched by DN. It fails fast when no
// creation base is configured.
func (s *Service) Add(ctx context.Context, attributes map[string][]string) (Entry, error) {
	if s.config.NewObjectBase == "" {
		return nil, ErrOperationNotSupported
	}

	cnValues := attributes["cn"]
	if len(cnValues) == 0 || cnValues[0] == "" {
		return nil, fmt.Errorf("a cn attribute is required to create an entry")
	}

	dn := fmt.Sprintf("cn=%s,%s", ldap.EscapeDN(cnValues[0]), s.config.NewObjectBase)

	req := ldap.NewAddRequest(dn, nil)
	for attr, values := range attributes {
		req.Attribute(attr, values)
	}

	if err := s.session.Add(req); err != nil {
		return nil, err
	}

	s.log.Debug("entry created", zap.String("dn", dn))
	return s.lookup.FindUserByDN(ctx, dn, false)
}

// HealthCheck probes the directory with a base-scope search on the admin
// session.
func (s *Service) HealthCheck() error {
	req := ldap.NewSearchRequest(
		s.config.SearchBase,
		ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, int(s.config.OperationTimeout.Seconds()), false,
		"(objectClass=*)",
		[]string{"dn"},
		nil,
	)

	_, err := s.session.Search(req)
	return err
}

// Close releases the admin connection. Per-user connections are short-lived
// and closed by their operations; Close never fails the caller.
func (s *Service) Close() {
	s.session.Close()
}
