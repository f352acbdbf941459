package platform

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/social-connect/internal/domain"
)

const (
	twitterAuthorizeURL = "https://twitter.com/i/oauth2/authorize"
	twitterTokenURL     = "https://api.twitter.com/2/oauth2/token"
	twitterIdentityURL  = "https://api.twitter.com/2/users/me"
)

// TwitterStrategy implements the X/Twitter OAuth 2.0 user-context
// contract. Refresh tokens rotate on every grant.
type TwitterStrategy struct {
	app          App
	client       tokenClient
	authorizeURL string
	tokenURL     string
	identityURL  string
}

var _ Strategy = (*TwitterStrategy)(nil)

func NewTwitterStrategy(app App, httpClient *http.Client) *TwitterStrategy {
	return &TwitterStrategy{
		app:          app,
		client:       newTokenClient(domain.PlatformTwitter, httpClient),
		authorizeURL: twitterAuthorizeURL,
		tokenURL:     twitterTokenURL,
		identityURL:  twitterIdentityURL,
	}
}

func (s *TwitterStrategy) Platform() domain.Platform {
	return domain.PlatformTwitter
}

func (s *TwitterStrategy) AuthorizeURL(in AuthorizeRequest) (string, error) {
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}
	}
	return buildAuthorizeURL(s.authorizeURL, s.app.ClientID, in, scopes)
}

func (s *TwitterStrategy) ExchangeCode(ctx context.Context, in ExchangeRequest) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", in.Code)
	form.Set("redirect_uri", in.RedirectURI)
	form.Set("client_id", s.app.ClientID)
	form.Set("code_verifier", in.CodeVerifier)
	return s.tokenCall(ctx, form)
}

func (s *TwitterStrategy) Refresh(ctx context.Context, cred domain.Credential) (*TokenGrant, error) {
	if strings.TrimSpace(cred.RefreshToken) == "" {
		return nil, domain.NewRefreshError(domain.KindExpiredRefreshToken, s.Platform(), "no refresh token on record")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_id", s.app.ClientID)
	return s.tokenCall(ctx, form)
}

func (s *TwitterStrategy) tokenCall(ctx context.Context, form url.Values) (*TokenGrant, error) {
	header := http.Header{}
	// Confidential clients authenticate with basic auth on top of PKCE.
	if s.app.ClientSecret != "" {
		basic := base64.StdEncoding.EncodeToString([]byte(s.app.ClientID + ":" + s.app.ClientSecret))
		header.Set("Authorization", "Basic "+basic)
	}
	resp, err := s.client.postForm(ctx, s.tokenURL, form, header)
	if err != nil {
		return nil, err
	}
	if resp.status >= 300 {
		return nil, classifyOAuth(s.Platform(), resp)
	}
	return grantFromRaw(s.Platform(), resp.raw)
}

func (s *TwitterStrategy) Identity(ctx context.Context, accessToken string) (*AccountIdentity, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)
	resp, err := s.client.getJSON(ctx, s.identityURL, header)
	if err != nil {
		return nil, err
	}
	if resp.status >= 300 {
		return nil, classifyOAuth(s.Platform(), resp)
	}
	data, _ := resp.raw["data"].(map[string]any)
	identity := &AccountIdentity{
		ID:   stringValue(data["id"]),
		Name: firstNonEmpty(stringValue(data["name"]), stringValue(data["username"])),
	}
	if identity.ID == "" {
		return nil, domain.NewRefreshError(domain.KindMalformed, s.Platform(), "identity response missing id")
	}
	return identity, nil
}

// buildAuthorizeURL assembles a standard authorization-code URL with
// PKCE parameters. Shared by the strategies whose authorize endpoints
// follow RFC 6749 query conventions.
func buildAuthorizeURL(endpoint, clientID string, in AuthorizeRequest, scopes []string) (string, error) {
	authURL, err := url.Parse(endpoint)
	if err != nil {
		return "", domain.WrapRefreshError(domain.KindMalformed, "", "parse authorize url", err)
	}
	params := authURL.Query()
	params.Set("response_type", "code")
	params.Set("client_id", clientID)
	params.Set("redirect_uri", in.RedirectURI)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("state", in.State)
	params.Set("code_challenge", in.CodeChallenge)
	params.Set("code_challenge_method", "S256")
	authURL.RawQuery = params.Encode()
	return authURL.String(), nil
}
