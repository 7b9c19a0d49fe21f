package auth

import (
	"net/http"
	"strings"
)

// TokenFromRequest reads the bearer token of an upgrade request. Browsers
// cannot set headers on a websocket handshake, so the "token" query
// parameter is accepted as well.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
