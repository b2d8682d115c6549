package trace

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RedactionProfile controls how payloads are sanitized on read.
type RedactionProfile struct {
	// MaxValueLen caps any string value's length; 0 uses DefaultMaxValueLen.
	MaxValueLen int
}

// DefaultMaxValueLen is the default truncation cap applied to string
// values on read: longer than this, and a value is truncated.
const DefaultMaxValueLen = 500

const redactedPlaceholder = "<redacted>"

// sensitiveKeys lists substrings that mark an object key as secret-like.
// Matching is case-insensitive, mirroring the common
// audit.sensitiveKeywords convention.
var sensitiveKeys = []string{
	"authorization", "api_key", "apikey", "token", "secret", "password",
}

var (
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.=]+`)
	jwtPattern    = regexp.MustCompile(`\b[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeys {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// RedactPayload applies profile's redaction rules to a decoded JSON value
// and returns the sanitized re-encoding. Keys matching sensitiveKeys are
// replaced wholesale; remaining string values have Bearer tokens,
// JWT-shaped substrings, and email addresses masked, then are truncated
// to MaxValueLen.
func RedactPayload(payload json.RawMessage, profile RedactionProfile) (json.RawMessage, error) {
	capLen := profile.MaxValueLen
	if capLen <= 0 {
		capLen = DefaultMaxValueLen
	}
	if len(payload) == 0 {
		return payload, nil
	}
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return payload, err
	}
	scrubbed := redactValue("", v, capLen)
	out, err := json.Marshal(scrubbed)
	if err != nil {
		return payload, err
	}
	return out, nil
}

func redactValue(key string, v interface{}, capLen int) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if isSensitiveKey(k) {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = redactValue(k, val, capLen)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = redactValue(key, e, capLen)
		}
		return out
	case string:
		return redactString(t, capLen)
	default:
		return v
	}
}

func redactString(s string, capLen int) string {
	s = bearerPattern.ReplaceAllString(s, redactedPlaceholder)
	s = jwtPattern.ReplaceAllString(s, redactedPlaceholder)
	s = emailPattern.ReplaceAllString(s, redactedPlaceholder)
	if len(s) > capLen {
		s = s[:capLen] + "..."
	}
	return s
}

// ScrubSecrets applies the same substring rules as RedactPayload to a
// plain error/log string, used to scrub provider/tool output and error
// messages before they cross the HTTP boundary.
func ScrubSecrets(s string, maxLen int) (string, bool) {
	scrubbed := bearerPattern.ReplaceAllString(s, redactedPlaceholder)
	scrubbed = jwtPattern.ReplaceAllString(scrubbed, redactedPlaceholder)
	scrubbed = emailPattern.ReplaceAllString(scrubbed, redactedPlaceholder)
	truncated := false
	if maxLen > 0 && len(scrubbed) > maxLen {
		scrubbed = scrubbed[:maxLen]
		truncated = true
	}
	return scrubbed, truncated
}
