package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// sensitiveFragments mark JSON keys whose values must never be stored
// in clear text. Matching is case-insensitive on key substrings.
var sensitiveFragments = []string{
	"password", "passwd", "pwd", "secret", "token", "api_key", "apikey",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// HashValue replaces a secret with a deterministic fingerprint that
// still lets analysts correlate repeated values across requests.
func HashValue(v string) string {
	if v == "" {
		return "hash_empty"
	}
	sum := sha256.Sum256([]byte(v))
	return fmt.Sprintf("hash_%s_len%d", hex.EncodeToString(sum[:])[:16], len(v))
}

// SanitizeBody parses a JSON body and hashes every sensitive field,
// recursing into nested objects. Non-JSON bodies are returned as-is;
// they are stored raw anyway and carry no parsed credentials.
func SanitizeBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return string(body)
	}
	sanitized := sanitizeValue(parsed)
	out, err := json.Marshal(sanitized)
	if err != nil {
		return string(body)
	}
	return string(out)
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if isSensitiveKey(k) {
				out[k] = HashValue(fmt.Sprintf("%v", inner))
				continue
			}
			out[k] = sanitizeValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = sanitizeValue(inner)
		}
		return out
	default:
		return v
	}
}

// SanitizeAuthorization fingerprints an Authorization header value so
// credential reuse stays visible without retaining the credential.
func SanitizeAuthorization(header string) string {
	if header == "" {
		return ""
	}
	return HashValue(header)
}

// SanitizePath prepares a request path for safe logging by removing
// control characters and truncating long values. It does not include
// query parameters.
func SanitizePath(p string) string {
	// remove query string
	if i := strings.Index(p, "?"); i != -1 {
		p = p[:i]
	}
	p = sanitizeForLog(p)
	if len(p) > 200 {
		p = p[:200]
	}
	return p
}

func sanitizeForLog(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
