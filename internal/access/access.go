// Package access resolves the advisory operator role. Roles gate which
// actions the dashboard offers; they are not an authentication mechanism.
package access

import (
	"errors"
	"net/http"
	"strings"
)

// Role is an operator role.
type Role string

const (
	SiteAdmin       Role = "site-admin"
	BasicUser       Role = "basic-user"
	GovtAuthorities Role = "govt-authorities"

	// HeaderName carries the role on HTTP requests.
	HeaderName = "X-Role"
	// QueryParam is the fallback when the header is absent.
	QueryParam = "role"
)

// ErrForbidden is returned when a role may not run an action.
var ErrForbidden = errors.New("you do not have permissions to execute this command")

// Roles lists every known role.
var Roles = []Role{SiteAdmin, BasicUser, GovtAuthorities}

// ParseRole maps a raw value to a role. Empty means site-admin; any other
// unrecognized value is treated as basic-user.
func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SiteAdmin
	}
	for _, r := range Roles {
		if string(r) == s {
			return r
		}
	}
	return BasicUser
}

// FromRequest reads the role from the X-Role header or the role query param.
func FromRequest(r *http.Request) Role {
	if v := r.Header.Get(HeaderName); v != "" {
		return ParseRole(v)
	}
	return ParseRole(r.URL.Query().Get(QueryParam))
}

// CanRunModels reports whether role may trigger model runs.
func CanRunModels(role Role) bool {
	return role != BasicUser
}

// RequireModels returns ErrForbidden when role may not run models.
func RequireModels(role Role) error {
	if !CanRunModels(role) {
		return ErrForbidden
	}
	return nil
}
