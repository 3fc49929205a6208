package execute

import (
	"net/url"
	"strings"
)

// trackingParams are query parameters stripped during URL normalization.
// utm_* is matched by prefix.
var trackingParams = map[string]bool{
	"ref":    true,
	"source": true,
}

// NormalizeURL strips tracking query parameters so the same listing
// reached through different campaigns keys to one record. Normalization
// is idempotent; malformed input falls back to the trimmed original
// string rather than erroring.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return trimmed
	}

	query := u.Query()
	for key := range query {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") {
			query.Del(key)
		}
	}
	u.RawQuery = query.Encode()
	u.Fragment = ""
	return u.String()
}
