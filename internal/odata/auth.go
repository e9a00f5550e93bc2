package odata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultClientID is the public OIDC client of Copernicus Data Space.
const DefaultClientID = "cdse-public"

// expiryMargin renews tokens this long before they expire.
const expiryMargin = 60 * time.Second

// TokenSource obtains access tokens with the OIDC password grant and caches
// them until shortly before they expire.
type TokenSource struct {
	tokenURL   string
	clientID   string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource creates a token source for the given identity endpoint.
func NewTokenSource(tokenURL, clientID, username, password string) *TokenSource {
	if clientID == "" {
		clientID = DefaultClientID
	}
	return &TokenSource{
		tokenURL:   tokenURL,
		clientID:   clientID,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// WithLogger sets a custom logger for the token source
func (ts *TokenSource) WithLogger(logger *slog.Logger) *TokenSource {
	ts.logger = logger
	return ts
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Token returns a valid access token, requesting a new one when the cached
// token is missing or about to expire.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expires) {
		return ts.token, nil
	}

	if ts.username == "" || ts.password == "" {
		return "", fmt.Errorf("download credentials are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", ts.clientID)
	form.Set("username", ts.username)
	form.Set("password", ts.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	ts.token = tr.AccessToken
	ts.expires = ts.now().Add(time.Duration(tr.ExpiresIn)*time.Second - expiryMargin)

	ts.logger.DebugContext(ctx, "obtained access token",
		slog.Int("expires_in", tr.ExpiresIn),
	)

	return ts.token, nil
}

// Invalidate drops the cached token.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
}
