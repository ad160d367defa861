package feeds

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeURL returns the canonical form of a feed URL, which is what identifies a feed
// Scheme and host are lowercased, fragments are removed, and the string is NFC-normalized
// Only absolute http(s) URLs are accepted
func NormalizeURL(raw string) (string, error) {
	raw = norm.NFC.String(strings.TrimSpace(raw))
	if raw == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if u.Host == "" {
		return "", ErrInvalidURL
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}
