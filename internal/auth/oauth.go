// Package auth implements the PKCE OAuth flow and credential storage used
// by HTTP providers that support browser-based login (Anthropic Console,
// OpenAI), alongside plain static API keys.
package auth

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// OAuthProviderConfig describes one provider's OAuth endpoints and PKCE
// parameters.
type OAuthProviderConfig struct {
	Issuer           string
	AuthorizeBaseURL string // overrides Issuer for the /authorize step only
	TokenEndpoint    string // path appended to Issuer; defaults to /oauth/token
	ClientID         string
	Scopes           string
	Originator       string
	Port             int
	Provider         string
}

func (c OAuthProviderConfig) tokenEndpointURL() string {
	ep := c.TokenEndpoint
	if ep == "" {
		ep = "/oauth/token"
	}
	return strings.TrimRight(c.Issuer, "/") + ep
}

func (c OAuthProviderConfig) authorizeBaseURL() string {
	if c.AuthorizeBaseURL != "" {
		return c.AuthorizeBaseURL
	}
	return c.Issuer
}

// PKCECodes is a verifier/challenge pair for the PKCE exchange.
type PKCECodes struct {
	CodeVerifier  string
	CodeChallenge string
}

// AuthCredential is the persisted shape of one provider's credentials.
type AuthCredential struct {
	Provider     string    `json:"provider"`
	AuthMethod   string    `json:"auth_method"` // "oauth" | "api_key"
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	AccountID    string    `json:"account_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// NeedsRefresh reports whether the access token is expired or about to
// expire within the next 60 seconds.
func (c *AuthCredential) NeedsRefresh() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(60 * time.Second).After(c.ExpiresAt)
}

// OpenAIOAuthConfig returns the OAuth config for ChatGPT-subscription
// login, following the codex-cli flow.
func OpenAIOAuthConfig() OAuthProviderConfig {
	return OAuthProviderConfig{
		Issuer:     "https://auth.openai.com",
		ClientID:   "app_EMoamEEZ73f0CkXaXp7hrann",
		Scopes:     "openid profile email offline_access",
		Originator: "codex_cli_rs",
		Port:       1455,
		Provider:   "openai",
	}
}

// AnthropicOAuthConfig returns the OAuth config for Claude Max/Pro
// subscription login.
func AnthropicOAuthConfig() OAuthProviderConfig {
	return OAuthProviderConfig{
		Issuer:           "https://console.anthropic.com",
		AuthorizeBaseURL: "https://claude.ai",
		TokenEndpoint:    "/v1/oauth/token",
		ClientID:         "9d1c250a-e61b-44d9-88ed-5944d1962f5e",
		Scopes:           "org:create_api_key user:profile user:inference",
		Port:             8080,
		Provider:         "anthropic",
	}
}

// BuildAuthorizeURL builds the /authorize URL for the PKCE flow. Anthropic
// omits the OpenAI-specific simplified-flow/originator/organization params.
func BuildAuthorizeURL(cfg OAuthProviderConfig, pkce PKCECodes, state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", cfg.Scopes)
	q.Set("code_challenge", pkce.CodeChallenge)
	q.Set("code_challenge_method", "S256")
	q.Set("state", state)

	if cfg.Provider == "anthropic" {
		return cfg.authorizeBaseURL() + "/oauth/authorize?" + q.Encode()
	}

	q.Set("id_token_add_organizations", "true")
	q.Set("codex_cli_simplified_flow", "true")
	if cfg.Originator != "" {
		q.Set("originator", cfg.Originator)
	}
	return cfg.authorizeBaseURL() + "/oauth/authorize?" + q.Encode()
}

// exchangeCodeForTokens trades an authorization code for tokens. Anthropic
// expects a JSON body; other providers expect form-urlencoded.
func exchangeCodeForTokens(cfg OAuthProviderConfig, code, codeVerifier, redirectURI string) (*AuthCredential, error) {
	endpoint := cfg.tokenEndpointURL()

	var req *http.Request
	var err error
	if cfg.Provider == "anthropic" {
		body, _ := json.Marshal(map[string]string{
			"grant_type":    "authorization_code",
			"code":          code,
			"code_verifier": codeVerifier,
			"client_id":     cfg.ClientID,
			"redirect_uri":  redirectURI,
		})
		req, err = http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		form := url.Values{}
		form.Set("grant_type", "authorization_code")
		form.Set("code", code)
		form.Set("code_verifier", codeVerifier)
		form.Set("client_id", cfg.ClientID)
		form.Set("redirect_uri", redirectURI)
		req, err = http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed: %s: %s", resp.Status, string(body))
	}

	return parseTokenResponse(body, cfg.Provider)
}

// RefreshAccessToken exchanges cred's refresh token for a new access token.
func RefreshAccessToken(cred *AuthCredential, cfg OAuthProviderConfig) (*AuthCredential, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available for provider %s", cred.Provider)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_id", cfg.ClientID)

	req, err := http.NewRequest(http.MethodPost, cfg.tokenEndpointURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh failed: %s: %s", resp.Status, string(body))
	}

	refreshed, err := parseTokenResponse(body, cred.Provider)
	if err != nil {
		return nil, err
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}
	return refreshed, nil
}

func parseTokenResponse(body []byte, provider string) (*AuthCredential, error) {
	var raw struct {
		AccessToken  string      `json:"access_token"`
		RefreshToken string      `json:"refresh_token"`
		ExpiresIn    int64       `json:"expires_in"`
		IDToken      string      `json:"id_token"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if raw.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	cred := &AuthCredential{
		Provider:     provider,
		AuthMethod:   "oauth",
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
	}
	if raw.ExpiresIn > 0 {
		cred.ExpiresAt = time.Now().Add(time.Duration(raw.ExpiresIn) * time.Second)
	} else {
		cred.ExpiresAt = time.Now().Add(time.Hour)
	}
	if raw.IDToken != "" {
		if accountID := accountIDFromIDToken(raw.IDToken); accountID != "" {
			cred.AccountID = accountID
		}
	}
	return cred, nil
}

// accountIDFromIDToken extracts a ChatGPT account id from an unverified
// JWT payload; the id token is already bound to a TLS-protected exchange,
// so signature verification is not required to merely read this claim.
func accountIDFromIDToken(idToken string) string {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var claims struct {
		Auth struct {
			ChatGPTAccountID string `json:"chatgpt_account_id"`
		} `json:"https://api.openai.com/auth"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return claims.Auth.ChatGPTAccountID
}

// DeviceCodeResponse is the RFC 8628 device-authorization response shape,
// with a tolerant Interval field (some providers send it as a string).
type DeviceCodeResponse struct {
	DeviceAuthID string
	UserCode     string
	Interval     int
}

func parseDeviceCodeResponse(body []byte) (*DeviceCodeResponse, error) {
	var raw struct {
		DeviceAuthID string      `json:"device_auth_id"`
		UserCode     string      `json:"user_code"`
		Interval     interface{} `json:"interval"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding device code response: %w", err)
	}

	resp := &DeviceCodeResponse{DeviceAuthID: raw.DeviceAuthID, UserCode: raw.UserCode}
	switch v := raw.Interval.(type) {
	case float64:
		resp.Interval = int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", v, err)
		}
		resp.Interval = n
	case nil:
		resp.Interval = 5
	default:
		return nil, fmt.Errorf("unsupported interval type %T", v)
	}
	return resp, nil
}
