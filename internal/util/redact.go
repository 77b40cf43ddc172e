// Package util holds small helpers shared by the server packages.
package util

import (
	"net/url"
	"strings"
)

// MaskSecret keeps only the edges of a secret, e.g. "abcd...wxyz".
func MaskSecret(secret string) string {
	switch n := len(secret); {
	case n > 8:
		return secret[:4] + "..." + secret[n-4:]
	case n > 4:
		return secret[:2] + "..." + secret[n-2:]
	case n > 0:
		return "***"
	default:
		return ""
	}
}

// RedactURL masks the password of a connection URL such as
// rediss://default:pw@host:6379 or postgres://user:pw@host/db.
// Values that do not parse as URLs with a host are returned masked whole.
func RedactURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if strings.Contains(raw, "password=") {
			masked := MaskSensitiveQuery(strings.ReplaceAll(raw, " ", "&"))
			return strings.ReplaceAll(masked, "&", " ")
		}
		return raw
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	if u.RawQuery != "" {
		u.RawQuery = MaskSensitiveQuery(u.RawQuery)
	}
	return u.String()
}

// MaskSensitiveQuery masks token, secret and password parameters in a raw query string.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	changed := false
	for i, part := range parts {
		keyPart, valuePart, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		decodedKey, err := url.QueryUnescape(keyPart)
		if err != nil {
			decodedKey = keyPart
		}
		if !isSensitiveKey(decodedKey) {
			continue
		}
		decodedValue, err := url.QueryUnescape(valuePart)
		if err != nil {
			decodedValue = valuePart
		}
		parts[i] = keyPart + "=" + url.QueryEscape(MaskSecret(strings.TrimSpace(decodedValue)))
		changed = true
	}
	if !changed {
		return raw
	}
	return strings.Join(parts, "&")
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	for _, marker := range []string{"token", "secret", "password", "passwd", "api_key", "apikey"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}
