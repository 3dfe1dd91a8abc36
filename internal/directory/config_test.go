package directory

import (
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DIRECTORY_SEARCH_BASE", "dc=example,dc=com")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ldaps://localhost:636", config.URL)
	assert.Equal(t, "dc=example,dc=com", config.SearchBase)
	assert.Equal(t, "(&(objectClass=user)(sAMAccountName={{username}}))", config.SearchFilter)
	assert.Equal(t, "sub", config.SearchScope)
	assert.Equal(t, "dn", config.BindProperty)
	assert.Equal(t, 5*time.Second, config.ConnectTimeout)
	assert.Equal(t, 600*time.Second, config.CacheTTL)
	assert.True(t, config.Reconnect)
}

func TestLoadConfigRejectsMissingSearchBase(t *testing.T) {
	t.Setenv("DIRECTORY_SEARCH_BASE", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadScope(t *testing.T) {
	t.Setenv("DIRECTORY_SEARCH_BASE", "dc=example,dc=com")
	t.Setenv("DIRECTORY_SEARCH_SCOPE", "everything")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestScopeValue(t *testing.T) {
	assert.Equal(t, ldap.ScopeBaseObject, scopeValue("base"))
	assert.Equal(t, ldap.ScopeSingleLevel, scopeValue("one"))
	assert.Equal(t, ldap.ScopeWholeSubtree, scopeValue("sub"))
	assert.Equal(t, ldap.ScopeWholeSubtree, scopeValue(""))
}

func TestGroupSearchConfigured(t *testing.T) {
	config := testConfig()
	assert.False(t, config.groupSearchConfigured())

	config.GroupSearchBase = "ou=groups,dc=example,dc=com"
	assert.False(t, config.groupSearchConfigured())

	config.GroupSearchFilter = "(member={{dn}})"
	assert.True(t, config.groupSearchConfigured())
}
