package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Origins decides which browser origins may open a connection.
type Origins struct {
	allowed  map[string]struct{}
	allowAll bool
}

// NewOrigins normalizes the configured origins; "*" allows every origin.
// Invalid entries are logged and skipped.
func NewOrigins(log *slog.Logger, origins []string) *Origins {
	o := &Origins{allowed: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			o.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		o.allowed[normalized] = struct{}{}
	}
	return o
}

// Allowed reports whether r may be upgraded. Requests without an Origin
// header do not come from a browser and are accepted.
func (o *Origins) Allowed(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || o.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	_, exists := o.allowed[normalized]
	return exists
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
