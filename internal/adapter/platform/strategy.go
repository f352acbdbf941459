// Package platform holds one refresh strategy per supported social
// platform. A strategy knows its token endpoint contract, how to sign
// requests, and how to map the remote error payload into the shared
// failure taxonomy. Strategies never retry and never touch the store.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/social-connect/internal/domain"
)

// App carries the per-platform application credentials from config.
type App struct {
	ClientID     string
	ClientSecret string
}

// AuthorizeRequest is the input for building an authorization URL.
type AuthorizeRequest struct {
	RedirectURI   string
	State         string
	CodeChallenge string
	Scopes        []string
}

// ExchangeRequest is the input for the authorization-code exchange.
type ExchangeRequest struct {
	Code         string
	CodeVerifier string
	RedirectURI  string
}

// TokenGrant is the normalized result of a token endpoint call.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Scope        string
}

// AccountIdentity is the platform account behind an access token.
type AccountIdentity struct {
	ID   string
	Name string
}

// Strategy is the per-platform capability consumed by the refresh
// coordinator and the connect flow.
type Strategy interface {
	Platform() domain.Platform
	AuthorizeURL(in AuthorizeRequest) (string, error)
	ExchangeCode(ctx context.Context, in ExchangeRequest) (*TokenGrant, error)
	Refresh(ctx context.Context, cred domain.Credential) (*TokenGrant, error)
	Identity(ctx context.Context, accessToken string) (*AccountIdentity, error)
}

// tokenClient is the shared outbound HTTP layer. Transport failures are
// classified as Transient so no raw error escapes a strategy.
type tokenClient struct {
	platform   domain.Platform
	httpClient *http.Client
}

func newTokenClient(platform domain.Platform, client *http.Client) tokenClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return tokenClient{platform: platform, httpClient: client}
}

// tokenResponse is the decoded remote payload plus transport metadata.
type tokenResponse struct {
	status     int
	retryAfter time.Duration
	raw        map[string]any
}

func (c tokenClient) postForm(ctx context.Context, endpoint string, form url.Values, header http.Header) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindMalformed, c.platform, "build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}
	return c.do(req)
}

func (c tokenClient) getJSON(ctx context.Context, rawURL string, header http.Header) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindMalformed, c.platform, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}
	return c.do(req)
}

func (c tokenClient) do(req *http.Request) (*tokenResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindTransient, c.platform, "token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindTransient, c.platform, "read token response", err)
	}

	out := &tokenResponse{status: resp.StatusCode, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	if len(body) > 0 {
		raw := map[string]any{}
		if err := json.Unmarshal(body, &raw); err != nil {
			if resp.StatusCode < 300 {
				return nil, domain.WrapRefreshError(domain.KindMalformed, c.platform, "decode token response", err)
			}
			// Non-JSON error bodies fall through to status-based classification.
		}
		out.raw = raw
	}
	return out, nil
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// classifyOAuth maps a standard RFC 6749 error payload into the shared
// taxonomy. Platform strategies with bespoke error shapes override this.
func classifyOAuth(platform domain.Platform, resp *tokenResponse) *domain.RefreshError {
	code := stringValue(resp.raw["error"])
	desc := stringValue(resp.raw["error_description"])

	switch {
	case resp.status == http.StatusTooManyRequests:
		rerr := domain.NewRefreshError(domain.KindRateLimited, platform, "token endpoint rate limited")
		rerr.RetryAfter = resp.retryAfter
		return rerr
	case resp.status >= 500:
		return domain.NewRefreshError(domain.KindTransient, platform, fmt.Sprintf("token endpoint status %d", resp.status))
	}

	switch strings.ToLower(code) {
	case "invalid_grant", "expired_token", "invalid_token":
		return domain.NewRefreshError(domain.KindExpiredRefreshToken, platform, firstNonEmpty(desc, "refresh token no longer valid"))
	case "access_denied":
		return domain.NewRefreshError(domain.KindRevokedByUser, platform, firstNonEmpty(desc, "access revoked by user"))
	case "slow_down":
		return domain.NewRefreshError(domain.KindRateLimited, platform, firstNonEmpty(desc, "token endpoint asked to slow down"))
	case "temporarily_unavailable":
		return domain.NewRefreshError(domain.KindTransient, platform, firstNonEmpty(desc, "token endpoint temporarily unavailable"))
	}
	return domain.NewRefreshError(domain.KindMalformed, platform,
		fmt.Sprintf("token endpoint rejected request: status=%d error=%s", resp.status, firstNonEmpty(code, "unknown")))
}

func grantFromRaw(platform domain.Platform, raw map[string]any) (*TokenGrant, error) {
	grant := &TokenGrant{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		ExpiresIn:    int64Value(raw["expires_in"]),
		Scope:        stringValue(raw["scope"]),
	}
	if grant.AccessToken == "" {
		return nil, domain.NewRefreshError(domain.KindMalformed, platform, "token response missing access_token")
	}
	return grant, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
