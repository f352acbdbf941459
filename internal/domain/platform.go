package domain

import (
	"fmt"
	"strings"
)

// Platform identifies a supported external social platform.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	// PlatformMetaAds rides on the Facebook Graph token contract.
	PlatformMetaAds Platform = "meta_ads"
)

var supportedPlatforms = []Platform{
	PlatformTwitter,
	PlatformLinkedIn,
	PlatformFacebook,
	PlatformInstagram,
	PlatformTikTok,
	PlatformYouTube,
	PlatformMetaAds,
}

// Platforms returns the supported platform set in stable order.
func Platforms() []Platform {
	return append([]Platform{}, supportedPlatforms...)
}

// ParsePlatform normalizes and validates a platform name.
func ParsePlatform(name string) (Platform, error) {
	cleaned := Platform(strings.ToLower(strings.TrimSpace(name)))
	for _, p := range supportedPlatforms {
		if p == cleaned {
			return p, nil
		}
	}
	return "", fmt.Errorf("platform %q: %w", name, ErrUnsupportedPlatform)
}

func (p Platform) String() string {
	return string(p)
}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	_, err := ParsePlatform(string(p))
	return err == nil
}
