package chain

import (
	"strings"

	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Role marks what an endpoint may be used for.
type Role uint8

// Endpoint roles.
const (
	RoleQuery Role = 1 << iota
	RoleBroadcast

	RoleAll = RoleQuery | RoleBroadcast
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleQuery:
		return "query"
	case RoleBroadcast:
		return "broadcast"
	case RoleAll:
		return "all"
	default:
		return "none"
	}
}

// ParseRole parses "query", "broadcast", or "all". Empty means all.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "both":
		return RoleAll, nil
	case "query", "data":
		return RoleQuery, nil
	case "broadcast":
		return RoleBroadcast, nil
	default:
		return 0, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"role": s})
	}
}

// Endpoint is a provider base URL. The esplora paths (/api/..., /blocks/...)
// are appended to URL.
type Endpoint struct {
	URL  string `json:"url"`
	Role Role   `json:"role"`
}

// NewEndpoint normalizes the URL by dropping trailing slashes.
func NewEndpoint(url string, role Role) Endpoint {
	return Endpoint{URL: strings.TrimRight(strings.TrimSpace(url), "/"), Role: role}
}

// Serves reports whether the endpoint carries the role.
func (e Endpoint) Serves(role Role) bool {
	return e.Role&role == role
}

// EndpointsFromURLs builds endpoints with a shared role, skipping blanks.
func EndpointsFromURLs(urls []string, role Role) []Endpoint {
	out := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		ep := NewEndpoint(u, role)
		if ep.URL == "" {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// FilterEndpoints returns the endpoints serving role, preserving order.
func FilterEndpoints(endpoints []Endpoint, role Role) []Endpoint {
	out := make([]Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Serves(role) {
			out = append(out, ep)
		}
	}
	return out
}
