package types

import (
	"fmt"
	"net/url"
)

// EndpointKind distinguishes the two endpoint pools
type EndpointKind string

const (
	// KindSolver is a remote audio transcription server
	KindSolver EndpointKind = "solver"
	// KindProxy is a forward proxy used for outbound fetches
	KindProxy EndpointKind = "proxy"
)

// Valid reports whether the kind is one of the known pools
func (k EndpointKind) Valid() bool {
	return k == KindSolver || k == KindProxy
}

// Endpoint represents a single solver server or forward proxy
type Endpoint struct {
	// Address is the normalized host:port and identifies the
	// endpoint within its kind
	Address  string
	Host     string
	Port     string
	Username string
	Password string
	Kind     EndpointKind
}

// HasAuth reports whether credentials were provided
func (e *Endpoint) HasAuth() bool {
	return e.Username != ""
}

// String re-serializes the endpoint to its compact form
func (e *Endpoint) String() string {
	if e.HasAuth() {
		return fmt.Sprintf("%s:%s:%s:%s", e.Host, e.Port, e.Username, e.Password)
	}
	return e.Address
}

// BaseURL returns the root URL used for solver calls and probes
func (e *Endpoint) BaseURL() string {
	return "http://" + e.Address
}

// ProxyURL builds the proxy URL for the given scheme (http or socks5),
// embedding credentials when present
func (e *Endpoint) ProxyURL(scheme string) string {
	if scheme == "" {
		scheme = "http"
	}
	if e.HasAuth() {
		u := url.URL{
			Scheme: scheme,
			User:   url.UserPassword(e.Username, e.Password),
			Host:   e.Address,
		}
		return u.String()
	}
	return scheme + "://" + e.Address
}
