package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// IdentityVerifier validates an external identity token and returns the
// service-account email it asserts.
type IdentityVerifier interface {
	Verify(ctx context.Context, identityToken string) (email string, err error)
}

// googleTokenInfoURL is the tokeninfo endpoint used to validate GCP identity
// tokens.
const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// GoogleVerifier validates GCP identity tokens against the tokeninfo
// endpoint and checks the audience claim.
type GoogleVerifier struct {
	audience   string
	httpClient *http.Client
}

// NewGoogleVerifier creates a verifier requiring the given audience.
func NewGoogleVerifier(audience string) *GoogleVerifier {
	return &GoogleVerifier{
		audience:   audience,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify checks the token and returns the verified email.
func (v *GoogleVerifier) Verify(ctx context.Context, identityToken string) (string, error) {
	reqURL := googleTokenInfoURL + "?id_token=" + url.QueryEscape(identityToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("verify identity token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity token rejected with HTTP %d", resp.StatusCode)
	}

	var info struct {
		Audience      string `json:"aud"`
		Email         string `json:"email"`
		EmailVerified string `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode tokeninfo response: %w", err)
	}
	if info.Audience != v.audience {
		return "", fmt.Errorf("identity token audience %q does not match %q", info.Audience, v.audience)
	}
	if info.EmailVerified != "true" || info.Email == "" {
		return "", fmt.Errorf("identity token has no verified email")
	}
	return info.Email, nil
}
