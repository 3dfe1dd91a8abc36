package directory

import (
	"errors"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Sentinel errors surfaced by the lookup and authentication paths. Transport
// errors from go-ldap are passed through unmodified.
var (
	// ErrMissingCredentials is returned when an admin bind is attempted but no
	// service identity is configured. Anonymous binds are not supported for
	// the admin connection.
	ErrMissingCredentials = errors.New("no admin bind credentials configured")

	// ErrMissingPassword is returned by Authenticate when the supplied
	// password is empty, before the directory is contacted.
	ErrMissingPassword = errors.New("empty password")

	// ErrNotFound is returned when a single-entry lookup matches nothing.
	ErrNotFound = errors.New("no matching directory entry")

	// ErrAmbiguousResult is returned when a single-entry lookup matches more
	// than one entry.
	ErrAmbiguousResult = errors.New("more than one matching directory entry")

	// ErrInvalidCredentials is returned when the per-user bind is rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrOperationNotSupported is returned by Add when no creation base is
	// configured.
	ErrOperationNotSupported = errors.New("operation not supported without a creation base")
)

// isConnectionError reports whether an error indicates the underlying
// connection is unusable and the session must rebind before the next
// operation.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if ldap.IsErrorWithCode(err, ldap.LDAPResultServerDown) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultOperationsError) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnavailable) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "network error") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "successful bind must be completed")
}

// isResetError reports whether an error is the benign forcible-reset class
// seen when the server drops idle connections. These are expected and logged
// at debug severity.
func isResetError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "econnreset")
}
