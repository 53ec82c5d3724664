// Package server normalizes and validates HTTP origins for WebSocket
// requests to enforce configured access control.
package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

// parseAllowedOrigins canonicalizes the configured origin list. A bare "*"
// entry switches the allow-list off entirely; invalid entries are logged and
// skipped.
func parseAllowedOrigins(configured []string) ([]string, bool) {
	var parsed []string
	allowAll := false

	for _, entry := range configured {
		switch trimmed := strings.TrimSpace(entry); {
		case trimmed == "":
		case trimmed == "*":
			allowAll = true
		default:
			canonical, ok := canonicalOrigin(trimmed)
			if !ok {
				log.Printf("Ignoring invalid origin in configuration: %q", entry)
				continue
			}
			parsed = append(parsed, canonical)
		}
	}

	return parsed, allowAll
}

// canonicalOrigin reduces an origin to lowercase scheme://host so that
// configured entries and request headers compare reliably.
func canonicalOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// checkOrigin is the upgrader's origin policy. Browser clients always send
// an Origin header; requests without one are rejected rather than trusted.
func checkOrigin(r *http.Request) bool {
	header := r.Header.Get("Origin")
	canonical, ok := canonicalOrigin(header)
	if ok {
		configMu.RLock()
		if allowAllOrigins {
			ok = true
		} else {
			_, ok = allowedOrigins[canonical]
		}
		configMu.RUnlock()
	}

	if !ok {
		log.Printf("Blocked WebSocket connection from disallowed origin: %q", header)
	}
	return ok
}
