package repositories

import "net/url"

// segment escapes an identifier used inside a colon separated key so that
// ids containing ':' cannot collide with another id's prefix.
func segment(id string) string {
	return url.QueryEscape(id)
}

func unsegment(raw string) (string, error) {
	return url.QueryUnescape(raw)
}
