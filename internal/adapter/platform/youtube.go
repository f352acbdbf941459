package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/social-connect/internal/domain"
)

const (
	youtubeAuthorizeURL = "https://accounts.google.com/o/oauth2/v2/auth"
	youtubeTokenURL     = "https://oauth2.googleapis.com/token"
	youtubeIdentityURL  = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// YouTubeStrategy implements the Google OAuth refresh contract. Google
// does not rotate refresh tokens; the grant omits refresh_token and the
// stored one stays valid until the user revokes access.
type YouTubeStrategy struct {
	app          App
	client       tokenClient
	authorizeURL string
	tokenURL     string
	identityURL  string
}

var _ Strategy = (*YouTubeStrategy)(nil)

func NewYouTubeStrategy(app App, httpClient *http.Client) *YouTubeStrategy {
	return &YouTubeStrategy{
		app:          app,
		client:       newTokenClient(domain.PlatformYouTube, httpClient),
		authorizeURL: youtubeAuthorizeURL,
		tokenURL:     youtubeTokenURL,
		identityURL:  youtubeIdentityURL,
	}
}

func (s *YouTubeStrategy) Platform() domain.Platform {
	return domain.PlatformYouTube
}

func (s *YouTubeStrategy) AuthorizeURL(in AuthorizeRequest) (string, error) {
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = []string{"https://www.googleapis.com/auth/youtube.upload", "openid"}
	}
	raw, err := buildAuthorizeURL(s.authorizeURL, s.app.ClientID, in, scopes)
	if err != nil {
		return "", err
	}
	// Google only issues a refresh token for offline access with consent.
	authURL, _ := url.Parse(raw)
	params := authURL.Query()
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	authURL.RawQuery = params.Encode()
	return authURL.String(), nil
}

func (s *YouTubeStrategy) ExchangeCode(ctx context.Context, in ExchangeRequest) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", in.Code)
	form.Set("redirect_uri", in.RedirectURI)
	form.Set("client_id", s.app.ClientID)
	form.Set("client_secret", s.app.ClientSecret)
	form.Set("code_verifier", in.CodeVerifier)
	return s.tokenCall(ctx, form)
}

func (s *YouTubeStrategy) Refresh(ctx context.Context, cred domain.Credential) (*TokenGrant, error) {
	if strings.TrimSpace(cred.RefreshToken) == "" {
		return nil, domain.NewRefreshError(domain.KindExpiredRefreshToken, s.Platform(), "no refresh token on record")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_id", s.app.ClientID)
	form.Set("client_secret", s.app.ClientSecret)
	return s.tokenCall(ctx, form)
}

func (s *YouTubeStrategy) tokenCall(ctx context.Context, form url.Values) (*TokenGrant, error) {
	resp, err := s.client.postForm(ctx, s.tokenURL, form, nil)
	if err != nil {
		return nil, err
	}
	if resp.status >= 300 {
		return nil, s.classify(resp)
	}
	return grantFromRaw(s.Platform(), resp.raw)
}

// classify distinguishes Google's invalid_grant variants: a revoked
// grant carries "revoked" or "disabled" in the description.
func (s *YouTubeStrategy) classify(resp *tokenResponse) *domain.RefreshError {
	code := strings.ToLower(stringValue(resp.raw["error"]))
	desc := strings.ToLower(stringValue(resp.raw["error_description"]))
	if code == "invalid_grant" && (strings.Contains(desc, "revoked") || strings.Contains(desc, "disabled")) {
		return domain.NewRefreshError(domain.KindRevokedByUser, s.Platform(), "grant revoked by user")
	}
	return classifyOAuth(s.Platform(), resp)
}

func (s *YouTubeStrategy) Identity(ctx context.Context, accessToken string) (*AccountIdentity, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)
	resp, err := s.client.getJSON(ctx, s.identityURL, header)
	if err != nil {
		return nil, err
	}
	if resp.status >= 300 {
		return nil, classifyOAuth(s.Platform(), resp)
	}
	identity := &AccountIdentity{
		ID:   stringValue(resp.raw["sub"]),
		Name: stringValue(resp.raw["name"]),
	}
	if identity.ID == "" {
		return nil, domain.NewRefreshError(domain.KindMalformed, s.Platform(), "identity response missing sub")
	}
	return identity, nil
}
