package middleware

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeBody_HashesSensitiveFields(t *testing.T) {
	body := []byte(`{"username":"alice","password":"hunter22","note":"hi"}`)
	out := SanitizeBody(body)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "alice", parsed["username"])
	assert.Equal(t, "hi", parsed["note"])

	pw, _ := parsed["password"].(string)
	assert.Regexp(t, `^hash_[0-9a-f]{16}_len8$`, pw)
	assert.NotContains(t, out, "hunter22")
}

func TestSanitizeBody_Deterministic(t *testing.T) {
	a := SanitizeBody([]byte(`{"password":"same-secret"}`))
	b := SanitizeBody([]byte(`{"password":"same-secret"}`))
	assert.Equal(t, a, b, "identical secrets must hash identically for spam correlation")

	c := SanitizeBody([]byte(`{"password":"other-secret"}`))
	assert.NotEqual(t, a, c)
}

func TestSanitizeBody_KeyVariants(t *testing.T) {
	body := []byte(`{"Passwd":"x","API_KEY":"y","refreshToken":"z","user_pwd":"w"}`)
	out := SanitizeBody(body)
	for _, secret := range []string{`"x"`, `"y"`, `"z"`, `"w"`} {
		assert.NotContains(t, out, secret)
	}
}

func TestSanitizeBody_Nested(t *testing.T) {
	body := []byte(`{"credentials":{"secret":"deep-value"},"list":[{"token":"tok-1"}]}`)
	out := SanitizeBody(body)
	assert.NotContains(t, out, "deep-value")
	assert.NotContains(t, out, "tok-1")
}

func TestSanitizeBody_EmptySecret(t *testing.T) {
	out := SanitizeBody([]byte(`{"password":""}`))
	assert.Contains(t, out, "hash_empty")
}

func TestSanitizeBody_NonJSONPassthrough(t *testing.T) {
	assert.Equal(t, "not json at all", SanitizeBody([]byte("not json at all")))
	assert.Equal(t, "", SanitizeBody(nil))
}

func TestSanitizeAuthorization(t *testing.T) {
	assert.Empty(t, SanitizeAuthorization(""))

	h := SanitizeAuthorization("Bearer abc123")
	assert.Regexp(t, `^hash_[0-9a-f]{16}_len13$`, h)
	assert.Equal(t, h, SanitizeAuthorization("Bearer abc123"))
}

func TestSanitizePath(t *testing.T) {
	assert.Equal(t, "/api/search", SanitizePath("/api/search?q=drop+table"))
	assert.Equal(t, "/clean", SanitizePath("/clean\x00\x1b"))
}
