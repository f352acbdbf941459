package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/social-connect/internal/domain"
)

const (
	linkedinAuthorizeURL = "https://www.linkedin.com/oauth/v2/authorization"
	linkedinTokenURL     = "https://www.linkedin.com/oauth/v2/accessToken"
	linkedinIdentityURL  = "https://api.linkedin.com/v2/userinfo"
)

// LinkedInStrategy implements LinkedIn's refresh_token grant. Refresh
// tokens are long-lived and are only rotated when LinkedIn decides to.
type LinkedInStrategy struct {
	app          App
	client       tokenClient
	authorizeURL string
	tokenURL     string
	identityURL  string
}

var _ Strategy = (*LinkedInStrategy)(nil)

func NewLinkedInStrategy(app App, httpClient *http.Client) *LinkedInStrategy {
	return &LinkedInStrategy{
		app:          app,
		client:       newTokenClient(domain.PlatformLinkedIn, httpClient),
		authorizeURL: linkedinAuthorizeURL,
		tokenURL:     linkedinTokenURL,
		identityURL:  linkedinIdentityURL,
	}
}

func (s *LinkedInStrategy) Platform() domain.Platform {
	return domain.PlatformLinkedIn
}

func (s *LinkedInStrategy) AuthorizeURL(in AuthorizeRequest) (string, error) {
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "w_member_social"}
	}
	return buildAuthorizeURL(s.authorizeURL, s.app.ClientID, in, scopes)
}

func (s *LinkedInStrategy) ExchangeCode(ctx context.Context, in ExchangeRequest) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", in.Code)
	form.Set("redirect_uri", in.RedirectURI)
	form.Set("client_id", s.app.ClientID)
	form.Set("client_secret", s.app.ClientSecret)
	form.Set("code_verifier", in.CodeVerifier)
	return s.tokenCall(ctx, form)
}

func (s *LinkedInStrategy) Refresh(ctx context.Context, cred domain.Credential) (*TokenGrant, error) {
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

func (s *LinkedInStrategy) tokenCall(ctx context.Context, form url.Values) (*TokenGrant, error) {
	resp, err := s.client.postForm(ctx, s.tokenURL, form, nil)
	if err != nil {
		return nil, err
	}
	if resp.status >= 300 {
		return nil, s.classify(resp)
	}
	return grantFromRaw(s.Platform(), resp.raw)
}

// classify narrows LinkedIn's error payload. "revoked" surfaces in the
// description rather than the error code.
func (s *LinkedInStrategy) classify(resp *tokenResponse) *domain.RefreshError {
	desc := strings.ToLower(stringValue(resp.raw["error_description"]))
	if strings.Contains(desc, "revoked") {
		return domain.NewRefreshError(domain.KindRevokedByUser, s.Platform(), "member revoked application access")
	}
	return classifyOAuth(s.Platform(), resp)
}

func (s *LinkedInStrategy) Identity(ctx context.Context, accessToken string) (*AccountIdentity, error) {
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
