package directory

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// dialFunc opens a raw, unbound connection to the directory server. It is a
// seam so tests can substitute a fake connection.
type dialFunc func(config *Config) (ldap.Client, error)

// directoryDialer builds the net dialer for directory connections. The idle
// timeout becomes the TCP keep-alive period so a dead peer on an otherwise
// idle admin connection is detected instead of waiting for the next
// operation to fail.
func directoryDialer(config *Config) *net.Dialer {
	return &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: config.IdleTimeout,
	}
}

// dialDirectory connects to the configured directory server. ldap://,
// ldaps:// and ldapi:// (unix socket) URLs are supported.
func dialDirectory(config *Config) (ldap.Client, error) {
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(directoryDialer(config)),
	}

	if strings.HasPrefix(config.URL, "ldaps://") {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
			MinVersion:         tls.VersionTLS12,
		}))
	}

	conn, err := ldap.DialURL(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to directory server: %w", err)
	}

	conn.SetTimeout(config.OperationTimeout)
	return conn, nil
}
