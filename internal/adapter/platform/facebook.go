package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/social-connect/internal/domain"
)

const (
	facebookAuthorizeURL = "https://www.facebook.com/v19.0/dialog/oauth"
	facebookGraphURL     = "https://graph.facebook.com/v19.0"
)

// Graph API error codes. See the Meta error reference.
const (
	fbCodeAPIUnknown     = 1
	fbCodeAPIService     = 2
	fbCodeAPITooManyCall = 4
	fbCodeUserTooMany    = 17
	fbCodeOAuthToken     = 190
	fbCodePageTooMany    = 32
	fbSubcodeRevoked     = 460
	fbSubcodeExpired     = 463
	fbSubcodeInvalidated = 464
)

// FacebookStrategy implements the Meta Graph long-lived token exchange.
// The Graph API has no refresh_token grant: a still-valid access token
// is traded for a fresh ~60 day one via grant_type=fb_exchange_token.
// Instagram and Meta Ads accounts ride on the same contract, so the
// registry aliases them to this strategy under their own platform tag.
type FacebookStrategy struct {
	platform     domain.Platform
	app          App
	client       tokenClient
	authorizeURL string
	graphURL     string
}

var _ Strategy = (*FacebookStrategy)(nil)

func NewFacebookStrategy(platform domain.Platform, app App, httpClient *http.Client) *FacebookStrategy {
	return &FacebookStrategy{
		platform:     platform,
		app:          app,
		client:       newTokenClient(platform, httpClient),
		authorizeURL: facebookAuthorizeURL,
		graphURL:     facebookGraphURL,
	}
}

func (s *FacebookStrategy) Platform() domain.Platform {
	return s.platform
}

func (s *FacebookStrategy) AuthorizeURL(in AuthorizeRequest) (string, error) {
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = []string{"pages_manage_posts", "pages_read_engagement", "business_management"}
	}
	authURL, err := url.Parse(s.authorizeURL)
	if err != nil {
		return "", domain.WrapRefreshError(domain.KindMalformed, s.platform, "parse authorize url", err)
	}
	params := authURL.Query()
	params.Set("response_type", "code")
	params.Set("client_id", s.app.ClientID)
	params.Set("redirect_uri", in.RedirectURI)
	// Graph wants comma-separated scopes, not space-separated.
	params.Set("scope", strings.Join(scopes, ","))
	params.Set("state", in.State)
	params.Set("code_challenge", in.CodeChallenge)
	params.Set("code_challenge_method", "S256")
	authURL.RawQuery = params.Encode()
	return authURL.String(), nil
}

func (s *FacebookStrategy) ExchangeCode(ctx context.Context, in ExchangeRequest) (*TokenGrant, error) {
	params := url.Values{}
	params.Set("client_id", s.app.ClientID)
	params.Set("client_secret", s.app.ClientSecret)
	params.Set("redirect_uri", in.RedirectURI)
	params.Set("code", in.Code)
	params.Set("code_verifier", in.CodeVerifier)
	grant, err := s.tokenCall(ctx, params)
	if err != nil {
		return nil, err
	}
	// Immediately trade the short-lived token for a long-lived one so
	// the stored credential starts with the full lifetime.
	longLived, err := s.exchangeLongLived(ctx, grant.AccessToken)
	if err != nil {
		return nil, err
	}
	return longLived, nil
}

// Refresh exchanges the current access token for a new long-lived one.
// An already-expired token cannot be exchanged; the Graph reports that
// as OAuth error 190, which maps to a terminal kind.
func (s *FacebookStrategy) Refresh(ctx context.Context, cred domain.Credential) (*TokenGrant, error) {
	return s.exchangeLongLived(ctx, cred.AccessToken)
}

func (s *FacebookStrategy) exchangeLongLived(ctx context.Context, accessToken string) (*TokenGrant, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", s.app.ClientID)
	params.Set("client_secret", s.app.ClientSecret)
	params.Set("fb_exchange_token", accessToken)
	return s.tokenCall(ctx, params)
}

func (s *FacebookStrategy) tokenCall(ctx context.Context, params url.Values) (*TokenGrant, error) {
	endpoint := s.graphURL + "/oauth/access_token?" + params.Encode()
	resp, err := s.client.getJSON(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if resp.status >= 300 {
		return nil, s.classify(resp)
	}
	return grantFromRaw(s.platform, resp.raw)
}

// classify maps the Graph error envelope {"error": {code, error_subcode,
// message}} into the shared taxonomy.
func (s *FacebookStrategy) classify(resp *tokenResponse) *domain.RefreshError {
	graphErr, _ := resp.raw["error"].(map[string]any)
	code := int64Value(graphErr["code"])
	subcode := int64Value(graphErr["error_subcode"])
	message := firstNonEmpty(stringValue(graphErr["message"]), fmt.Sprintf("graph status %d", resp.status))

	switch code {
	case fbCodeOAuthToken:
		if subcode == fbSubcodeRevoked || subcode == fbSubcodeInvalidated {
			return domain.NewRefreshError(domain.KindRevokedByUser, s.platform, message)
		}
		// Subcode 463 (expired) and any other 190 variant require re-auth.
		return domain.NewRefreshError(domain.KindExpiredRefreshToken, s.platform, message)
	case fbCodeAPITooManyCall, fbCodeUserTooMany, fbCodePageTooMany:
		rerr := domain.NewRefreshError(domain.KindRateLimited, s.platform, message)
		rerr.RetryAfter = resp.retryAfter
		return rerr
	case fbCodeAPIUnknown, fbCodeAPIService:
		return domain.NewRefreshError(domain.KindTransient, s.platform, message)
	}
	if resp.status >= 500 {
		return domain.NewRefreshError(domain.KindTransient, s.platform, message)
	}
	return domain.NewRefreshError(domain.KindMalformed, s.platform, message)
}

func (s *FacebookStrategy) Identity(ctx context.Context, accessToken string) (*AccountIdentity, error) {
	params := url.Values{}
	params.Set("fields", "id,name")
	params.Set("access_token", accessToken)
	params.Set("appsecret_proof", s.AppSecretProof(accessToken))
	resp, err := s.client.getJSON(ctx, s.graphURL+"/me?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if resp.status >= 300 {
		return nil, s.classify(resp)
	}
	identity := &AccountIdentity{
		ID:   stringValue(resp.raw["id"]),
		Name: stringValue(resp.raw["name"]),
	}
	if identity.ID == "" {
		return nil, domain.NewRefreshError(domain.KindMalformed, s.platform, "identity response missing id")
	}
	return identity, nil
}

// AppSecretProof computes the HMAC-SHA256 proof Meta requires on server
// to server Graph calls made with a user access token.
func (s *FacebookStrategy) AppSecretProof(accessToken string) string {
	mac := hmac.New(sha256.New, []byte(s.app.ClientSecret))
	mac.Write([]byte(accessToken))
	return hex.EncodeToString(mac.Sum(nil))
}
