package directory

import (
	"fmt"
	"sync"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// Session owns the administrative connection and its bound/unbound state. It
// is the only component that mutates connection state; all admin-bound
// operations go through it. Operations are not retried here: a connection
// failure flips the session back to unbound and the next operation rebinds.
type Session struct {
	config *Config
	log    *zap.Logger
	dial   dialFunc

	mu     sync.Mutex
	conn   ldap.Client
	bound  bool
	dialed bool
}

func newSession(config *Config, log *zap.Logger, dial dialFunc) *Session {
	return &Session{
		config: config,
		log:    log,
		dial:   dial,
	}
}

// ensureBound returns a connection bound as the configured admin identity.
// When the session is already bound this is a no-op. The lock is held across
// the bind so concurrent callers racing on an unbound session coalesce into a
// single bind round trip.
func (s *Session) ensureBound() (ldap.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bound && s.conn != nil {
		return s.conn, nil
	}

	if s.config.BindDN == "" {
		return nil, ErrMissingCredentials
	}

	if s.conn == nil {
		// dialed latches after the first physical connection; a lost
		// connection is only re-established when reconnect is enabled.
		if s.dialed && !s.config.Reconnect {
			return nil, fmt.Errorf("directory connection lost and reconnect is disabled")
		}

		conn, err := s.dial(s.config)
		if err != nil {
			return nil, err
		}
		s.conn = conn
		s.dialed = true
	}

	if err := s.conn.Bind(s.config.BindDN, s.config.BindPassword); err != nil {
		s.log.Error("admin bind failed", zap.String("bind_dn", s.config.BindDN), zap.Error(err))
		s.conn.Close()
		s.conn = nil
		return nil, fmt.Errorf("admin bind failed: %w", err)
	}

	s.bound = true
	s.log.Debug("admin bind established", zap.String("bind_dn", s.config.BindDN))
	return s.conn, nil
}

// invalidate flips the session back to unbound after a connection-class
// error so the next operation rebinds. Reset-class errors are an expected
// consequence of idle-timeout disconnects and are logged at debug severity.
func (s *Session) invalidate(err error) {
	if isResetError(err) {
		s.log.Debug("directory connection reset", zap.Error(err))
	} else {
		s.log.Error("directory connection error", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.bound = false
}

// Search performs an admin-bound search.
func (s *Session) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	conn, err := s.ensureBound()
	if err != nil {
		return nil, err
	}

	result, err := conn.Search(req)
	if err != nil {
		if isConnectionError(err) {
			s.invalidate(err)
		}
		return nil, err
	}

	return result, nil
}

// Modify performs an admin-bound modify.
func (s *Session) Modify(req *ldap.ModifyRequest) error {
	conn, err := s.ensureBound()
	if err != nil {
		return err
	}

	if err := conn.Modify(req); err != nil {
		if isConnectionError(err) {
			s.invalidate(err)
		}
		return err
	}

	return nil
}

// Add performs an admin-bound add.
func (s *Session) Add(req *ldap.AddRequest) error {
	conn, err := s.ensureBound()
	if err != nil {
		return err
	}

	if err := conn.Add(req); err != nil {
		if isConnectionError(err) {
			s.invalidate(err)
		}
		return err
	}

	return nil
}

// Close releases the admin connection. Safe to call on a session that never
// bound.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.bound = false
}
