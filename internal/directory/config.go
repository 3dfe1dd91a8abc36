package directory

import (
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds directory service configuration.
type Config struct {
	URL              string        `envconfig:"DIRECTORY_URL" default:"ldaps://localhost:636" validate:"required"`
	SkipTLSVerify    bool          `envconfig:"DIRECTORY_SKIP_TLS_VERIFY" default:"false"`
	BindDN           string        `envconfig:"DIRECTORY_BIND_DN"`
	BindPassword     string        `envconfig:"DIRECTORY_BIND_PASSWORD"`
	Reconnect        bool          `envconfig:"DIRECTORY_RECONNECT" default:"true"`
	ConnectTimeout   time.Duration `envconfig:"DIRECTORY_CONNECT_TIMEOUT" default:"5s"`
	IdleTimeout      time.Duration `envconfig:"DIRECTORY_IDLE_TIMEOUT" default:"5s"`
	OperationTimeout time.Duration `envconfig:"DIRECTORY_OPERATION_TIMEOUT" default:"5s"`

	// Single-user search.
	SearchBase       string   `envconfig:"DIRECTORY_SEARCH_BASE" validate:"required"`
	SearchFilter     string   `envconfig:"DIRECTORY_SEARCH_FILTER" default:"(&(objectClass=user)(sAMAccountName={{username}}))"`
	SearchScope      string   `envconfig:"DIRECTORY_SEARCH_SCOPE" default:"sub" validate:"oneof=base one sub"`
	SearchAttributes []string `envconfig:"DIRECTORY_SEARCH_ATTRIBUTES"`

	// Bulk synchronization.
	AllUsersFilter  string `envconfig:"DIRECTORY_ALL_USERS_FILTER" default:"(objectClass=user)"`
	AllGroupsFilter string `envconfig:"DIRECTORY_ALL_GROUPS_FILTER" default:"(objectClass=group)"`

	// Group resolution. Group search is active only when both base and filter
	// are set; the filter template recognizes {{dn}} and {{username}}.
	GroupSearchBase       string   `envconfig:"DIRECTORY_GROUP_SEARCH_BASE"`
	GroupSearchFilter     string   `envconfig:"DIRECTORY_GROUP_SEARCH_FILTER"`
	GroupSearchScope      string   `envconfig:"DIRECTORY_GROUP_SEARCH_SCOPE" default:"sub" validate:"oneof=base one sub"`
	GroupSearchAttributes []string `envconfig:"DIRECTORY_GROUP_SEARCH_ATTRIBUTES"`

	// BindProperty names the resolved attribute used as the bind identity for
	// per-user authentication binds. The default is the distinguished name.
	BindProperty string `envconfig:"DIRECTORY_BIND_PROPERTY" default:"dn"`

	// NewObjectBase is the DN under which Add creates entries. Add is refused
	// when unset.
	NewObjectBase string `envconfig:"DIRECTORY_NEW_OBJECT_BASE"`

	// Cache backend. Left empty, caching is disabled and every lookup goes
	// live.
	CacheURL string        `envconfig:"DIRECTORY_CACHE_URL" validate:"omitempty,uri"`
	CacheTTL time.Duration `envconfig:"DIRECTORY_CACHE_TTL" default:"600s"`

	// IncludeRaw attaches the raw server entry to lookup results.
	IncludeRaw bool `envconfig:"DIRECTORY_INCLUDE_RAW" default:"false"`

	// AdminGroup names the group whose members get the admin session flag on
	// the API surface.
	AdminGroup string `envconfig:"DIRECTORY_ADMIN_GROUP"`
}

// LoadConfig loads and validates directory configuration from environment
// variables.
func LoadConfig() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process directory configuration: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid directory configuration: %w", err)
	}

	return &config, nil
}

// scopeValue maps a configured scope name to its go-ldap constant.
func scopeValue(scope string) int {
	switch scope {
	case "base":
		return ldap.ScopeBaseObject
	case "one":
		return ldap.ScopeSingleLevel
	default:
		return ldap.ScopeWholeSubtree
	}
}

// groupSearchConfigured reports whether group resolution is active.
func (c *Config) groupSearchConfigured() bool {
	return c.GroupSearchBase != "" && c.GroupSearchFilter != ""
}
