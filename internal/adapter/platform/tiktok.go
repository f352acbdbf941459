package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/social-connect/internal/domain"
)

const (
	tiktokAuthorizeURL = "https://www.tiktok.com/v2/auth/authorize/"
	tiktokTokenURL     = "https://open.tiktokapis.com/v2/oauth/token/"
	tiktokIdentityURL  = "https://open.tiktokapis.com/v2/user/info/?fields=open_id,display_name"
)

// TikTokStrategy implements TikTok's OAuth contract. TikTok rotates the
// refresh token on every grant and names the client id "client_key".
type TikTokStrategy struct {
	app          App
	client       tokenClient
	authorizeURL string
	tokenURL     string
	identityURL  string
}

var _ Strategy = (*TikTokStrategy)(nil)

func NewTikTokStrategy(app App, httpClient *http.Client) *TikTokStrategy {
	return &TikTokStrategy{
		app:          app,
		client:       newTokenClient(domain.PlatformTikTok, httpClient),
		authorizeURL: tiktokAuthorizeURL,
		tokenURL:     tiktokTokenURL,
		identityURL:  tiktokIdentityURL,
	}
}

func (s *TikTokStrategy) Platform() domain.Platform {
	return domain.PlatformTikTok
}

func (s *TikTokStrategy) AuthorizeURL(in AuthorizeRequest) (string, error) {
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = []string{"user.info.basic", "video.publish"}
	}
	authURL, err := url.Parse(s.authorizeURL)
	if err != nil {
		return "", domain.WrapRefreshError(domain.KindMalformed, s.Platform(), "parse authorize url", err)
	}
	params := authURL.Query()
	params.Set("response_type", "code")
	params.Set("client_key", s.app.ClientID)
	params.Set("redirect_uri", in.RedirectURI)
	params.Set("scope", strings.Join(scopes, ","))
	params.Set("state", in.State)
	params.Set("code_challenge", in.CodeChallenge)
	params.Set("code_challenge_method", "S256")
	authURL.RawQuery = params.Encode()
	return authURL.String(), nil
}

func (s *TikTokStrategy) ExchangeCode(ctx context.Context, in ExchangeRequest) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", in.Code)
	form.Set("redirect_uri", in.RedirectURI)
	form.Set("client_key", s.app.ClientID)
	form.Set("client_secret", s.app.ClientSecret)
	form.Set("code_verifier", in.CodeVerifier)
	return s.tokenCall(ctx, form)
}

func (s *TikTokStrategy) Refresh(ctx context.Context, cred domain.Credential) (*TokenGrant, error) {
	if strings.TrimSpace(cred.RefreshToken) == "" {
		return nil, domain.NewRefreshError(domain.KindExpiredRefreshToken, s.Platform(), "no refresh token on record")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_key", s.app.ClientID)
	form.Set("client_secret", s.app.ClientSecret)
	return s.tokenCall(ctx, form)
}

func (s *TikTokStrategy) tokenCall(ctx context.Context, form url.Values) (*TokenGrant, error) {
	resp, err := s.client.postForm(ctx, s.tokenURL, form, nil)
	if err != nil {
		return nil, err
	}
	// TikTok answers 200 with an error field on grant failures.
	if code := stringValue(resp.raw["error"]); resp.status >= 300 || code != "" {
		return nil, classifyOAuth(s.Platform(), resp)
	}
	return grantFromRaw(s.Platform(), resp.raw)
}

func (s *TikTokStrategy) Identity(ctx context.Context, accessToken string) (*AccountIdentity, error) {
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
	user, _ := data["user"].(map[string]any)
	identity := &AccountIdentity{
		ID:   stringValue(user["open_id"]),
		Name: stringValue(user["display_name"]),
	}
	if identity.ID == "" {
		return nil, domain.NewRefreshError(domain.KindMalformed, s.Platform(), "identity response missing open_id")
	}
	return identity, nil
}
