package domain

import "strings"

// Platform represents the source platform for downloads
type Platform string

const (
	PlatformYouTube     Platform = "youtube"
	PlatformInstagram   Platform = "instagram"
	PlatformUnsupported Platform = "unsupported"
)

// hostMarkers maps URL substrings to the platform they identify.
// Order matters: the first match wins.
var hostMarkers = []struct {
	marker   string
	platform Platform
}{
	{"youtube.com", PlatformYouTube},
	{"youtu.be", PlatformYouTube},
	{"instagram.com", PlatformInstagram},
}

// ClassifyPlatform detects the platform from a URL.
// It never performs I/O and returns PlatformUnsupported for anything it does
// not recognise.
func ClassifyPlatform(url string) Platform {
	lower := strings.ToLower(url)
	for _, hm := range hostMarkers {
		if strings.Contains(lower, hm.marker) {
			return hm.platform
		}
	}
	return PlatformUnsupported
}

// ParsePlatform maps an endpoint path segment to a platform
func ParsePlatform(name string) Platform {
	switch Platform(strings.ToLower(strings.TrimSpace(name))) {
	case PlatformYouTube:
		return PlatformYouTube
	case PlatformInstagram:
		return PlatformInstagram
	default:
		return PlatformUnsupported
	}
}

// IsSupported reports whether jobs can run for the platform
func (p Platform) IsSupported() bool {
	return p == PlatformYouTube || p == PlatformInstagram
}

// SupportedPlatforms lists the platforms with a registered strategy
func SupportedPlatforms() []Platform {
	return []Platform{PlatformYouTube, PlatformInstagram}
}
