package directory

import (
	"context"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// fakeConn implements the slice of ldap.Client the service touches. The
// embedded interface covers the rest; anything unexpected panics loudly.
type fakeConn struct {
	ldap.Client

	bindFunc   func(username, password string) error
	searchFunc func(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	modifyFunc func(req *ldap.ModifyRequest) error
	addFunc    func(req *ldap.AddRequest) error

	mu       sync.Mutex
	binds    [][2]string
	searches []*ldap.SearchRequest
	closed   bool
}

var _ ldap.Client = (*fakeConn)(nil)

func (f *fakeConn) Bind(username, password string) error {
	f.mu.Lock()
	f.binds = append(f.binds, [2]string{username, password})
	f.mu.Unlock()

	if f.bindFunc != nil {
		return f.bindFunc(username, password)
	}
	return nil
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.mu.Lock()
	f.searches = append(f.searches, req)
	f.mu.Unlock()

	if f.searchFunc != nil {
		return f.searchFunc(req)
	}
	return &ldap.SearchResult{}, nil
}

func (f *fakeConn) Modify(req *ldap.ModifyRequest) error {
	if f.modifyFunc != nil {
		return f.modifyFunc(req)
	}
	return nil
}

func (f *fakeConn) Add(req *ldap.AddRequest) error {
	if f.addFunc != nil {
		return f.addFunc(req)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) bindCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.binds)
}

func (f *fakeConn) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

// fakeDirectory hands out fakeConn connections through a dialFunc, sharing
// the configured behavior across every dialed connection.
type fakeDirectory struct {
	bindFunc   func(username, password string) error
	searchFunc func(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	modifyFunc func(req *ldap.ModifyRequest) error
	addFunc    func(req *ldap.AddRequest) error
	dialErr    error

	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDirectory) dial(_ *Config) (ldap.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dialErr != nil {
		return nil, d.dialErr
	}

	conn := &fakeConn{
		bindFunc:   d.bindFunc,
		searchFunc: d.searchFunc,
		modifyFunc: d.modifyFunc,
		addFunc:    d.addFunc,
	}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDirectory) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDirectory) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// memStore is an in-memory Store for cache tests. TTLs are ignored.
type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	return value, ok, nil
}

func (s *memStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

func testConfig() *Config {
	return &Config{
		URL:              "ldaps://directory.example.com:636",
		BindDN:           "cn=service,dc=example,dc=com",
		BindPassword:     "service-secret",
		Reconnect:        true,
		ConnectTimeout:   5 * time.Second,
		IdleTimeout:      5 * time.Second,
		OperationTimeout: 5 * time.Second,
		SearchBase:       "dc=example,dc=com",
		SearchFilter:     "(&(objectClass=user)(sAMAccountName={{username}}))",
		SearchScope:      "sub",
		AllUsersFilter:   "(objectClass=user)",
		AllGroupsFilter:  "(objectClass=group)",
		GroupSearchScope: "sub",
		BindProperty:     "dn",
		CacheTTL:         600 * time.Second,
	}
}

func singleEntryResult(dn string, attrs map[string][]string) *ldap.SearchResult {
	return &ldap.SearchResult{Entries: []*ldap.Entry{ldap.NewEntry(dn, attrs)}}
}
