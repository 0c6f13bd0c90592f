package connection

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfiguration indicates invalid connection settings. It is fatal at
// startup and never retried.
var ErrConfiguration = errors.New("invalid connection configuration")

// Default values applied by Build when the corresponding option is zero.
const (
	DefaultPort    = 9200
	DefaultTimeout = 30 * time.Second
)

// Options holds the raw endpoint settings supplied by the configuration
// loader.
type Options struct {
	Hostname     string
	Port         int
	Username     string
	Password     string
	AuthEnabled  bool
	Timeout      time.Duration
	DefaultIndex string
}

// Descriptor is a normalized, immutable connection descriptor. It is built
// once at startup and reused by all store clients; all fields are unexported
// so a descriptor cannot be mutated after construction.
type Descriptor struct {
	scheme       string
	host         string
	port         int
	username     string
	password     string
	authEnabled  bool
	timeout      time.Duration
	defaultIndex string
}

// Build validates and normalizes raw options into a Descriptor. It is a pure
// function: no side effects, no network access.
func Build(opts Options) (Descriptor, error) {
	hostname := strings.TrimSpace(opts.Hostname)
	if hostname == "" {
		return Descriptor{}, fmt.Errorf("%w: hostname is required", ErrConfiguration)
	}

	if opts.AuthEnabled {
		if opts.Username == "" {
			return Descriptor{}, fmt.Errorf("%w: username is required when auth is enabled", ErrConfiguration)
		}
		if opts.Password == "" {
			return Descriptor{}, fmt.Errorf("%w: password is required when auth is enabled", ErrConfiguration)
		}
	}

	// Derive the scheme from the original string, default http.
	scheme := "http"
	switch {
	case strings.HasPrefix(hostname, "https://"):
		scheme = "https"
		hostname = strings.TrimPrefix(hostname, "https://")
	case strings.HasPrefix(hostname, "http://"):
		hostname = strings.TrimPrefix(hostname, "http://")
	}
	hostname = strings.TrimSuffix(hostname, "/")
	if hostname == "" {
		return Descriptor{}, fmt.Errorf("%w: hostname is required", ErrConfiguration)
	}

	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	if port < 1 || port > 65535 {
		return Descriptor{}, fmt.Errorf("%w: port %d out of range", ErrConfiguration, port)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return Descriptor{
		scheme:       scheme,
		host:         hostname,
		port:         port,
		username:     opts.Username,
		password:     opts.Password,
		authEnabled:  opts.AuthEnabled,
		timeout:      timeout,
		defaultIndex: opts.DefaultIndex,
	}, nil
}

// Scheme returns the connection scheme (http or https).
func (d Descriptor) Scheme() string { return d.scheme }

// Host returns the bare hostname without scheme or port.
func (d Descriptor) Host() string { return d.host }

// Port returns the connection port.
func (d Descriptor) Port() int { return d.port }

// Addr returns "host:port".
func (d Descriptor) Addr() string {
	return fmt.Sprintf("%s:%d", d.host, d.port)
}

// URL returns the full connection URL. Credentials are embedded only when
// auth is enabled.
func (d Descriptor) URL() string {
	if d.authEnabled {
		return fmt.Sprintf("%s://%s:%s@%s", d.scheme, d.username, d.password, d.Addr())
	}
	return fmt.Sprintf("%s://%s", d.scheme, d.Addr())
}

// AuthEnabled reports whether basic auth credentials should be sent.
func (d Descriptor) AuthEnabled() bool { return d.authEnabled }

// Username returns the configured username (empty when auth is disabled).
func (d Descriptor) Username() string { return d.username }

// Password returns the configured password (empty when auth is disabled).
func (d Descriptor) Password() string { return d.password }

// Timeout returns the per-call timeout.
func (d Descriptor) Timeout() time.Duration { return d.timeout }

// DefaultIndex returns the optional default index name used by connection
// tests; empty when none is configured.
func (d Descriptor) DefaultIndex() string { return d.defaultIndex }
