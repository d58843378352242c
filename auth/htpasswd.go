// Package auth wraps the gateway's two authentication paths: HTTP Basic
// auth against an htpasswd file (via github.com/abbot/go-http-auth, a
// dependency the teacher's go.mod already pins) and mutual TLS client
// certificate verification.
package auth

import (
	"net/http"

	goauth "github.com/abbot/go-http-auth"
)

// Htpasswd checks "Authorization: Basic" credentials against an htpasswd
// file. A nil *Htpasswd means auth is disabled for the listener.
type Htpasswd struct {
	basic *goauth.BasicAuth
}

// NewHtpasswd loads htfile and builds a Htpasswd checker for the given realm.
func NewHtpasswd(realm, htfile string) *Htpasswd {
	secrets := goauth.HtpasswdFileProvider(htfile)
	return &Htpasswd{basic: goauth.NewBasicAuthenticator(realm, secrets)}
}

// CheckAuth validates the request's credentials and returns the
// authenticated username, or "" if authentication failed.
func (h *Htpasswd) CheckAuth(r *http.Request) string {
	if h == nil {
		return ""
	}
	return h.basic.CheckAuth(r)
}

// RequireAuth writes a 401 response with the WWW-Authenticate challenge.
func (h *Htpasswd) RequireAuth(w http.ResponseWriter, r *http.Request) {
	h.basic.RequireAuth(w, r)
}
