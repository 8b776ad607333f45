package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Verifier checks a challenge-response token with an external service.
// Implementations must return an error (not false,nil) for transport
// failures so callers can distinguish "invalid" from "unverifiable".
// Both fail closed, but they are logged differently.
type Verifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// HTTPVerifier verifies tokens against a reCAPTCHA-style siteverify
// endpoint: form-encoded secret+response in, {"success": bool} out.
type HTTPVerifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

// NewHTTPVerifier creates a verifier for the given endpoint and secret.
func NewHTTPVerifier(verifyURL, secret string) *HTTPVerifier {
	return &HTTPVerifier{
		secret:    secret,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (bool, error) {
	if token == "" || v.secret == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("challenge verification returned status %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}

	return result.Success, nil
}
