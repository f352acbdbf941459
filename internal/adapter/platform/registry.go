package platform

import (
	"fmt"
	"net/http"

	"github.com/smallbiznis/social-connect/internal/domain"
)

// Apps groups the per-platform application credentials. Facebook,
// Instagram, and Meta Ads share one Meta app registration.
type Apps struct {
	Twitter  App
	LinkedIn App
	Meta     App
	TikTok   App
	YouTube  App
}

// Registry binds every supported platform to its strategy at
// construction time. Lookups after that are pure map reads.
type Registry struct {
	strategies map[domain.Platform]Strategy
}

// NewRegistry wires one strategy per supported platform.
func NewRegistry(apps Apps, httpClient *http.Client) *Registry {
	strategies := map[domain.Platform]Strategy{
		domain.PlatformTwitter:   NewTwitterStrategy(apps.Twitter, httpClient),
		domain.PlatformLinkedIn:  NewLinkedInStrategy(apps.LinkedIn, httpClient),
		domain.PlatformFacebook:  NewFacebookStrategy(domain.PlatformFacebook, apps.Meta, httpClient),
		domain.PlatformInstagram: NewFacebookStrategy(domain.PlatformInstagram, apps.Meta, httpClient),
		domain.PlatformMetaAds:   NewFacebookStrategy(domain.PlatformMetaAds, apps.Meta, httpClient),
		domain.PlatformTikTok:    NewTikTokStrategy(apps.TikTok, httpClient),
		domain.PlatformYouTube:   NewYouTubeStrategy(apps.YouTube, httpClient),
	}
	return &Registry{strategies: strategies}
}

// Strategy returns the strategy bound to the platform.
func (r *Registry) Strategy(p domain.Platform) (Strategy, error) {
	strategy, ok := r.strategies[p]
	if !ok {
		return nil, fmt.Errorf("strategy for %s: %w", p, domain.ErrUnsupportedPlatform)
	}
	return strategy, nil
}
