// Package platform maps raw user input to a source platform and a canonical URL.
package platform

import (
	"net/url"
	"regexp"
	"strings"

	"songbird/internal/core"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	schemeRegex     = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.\-]*://`)
	youtubeIDRegex  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

	// bareHostRegex matches platform links pasted without a scheme.
	bareHostRegex = regexp.MustCompile(
		`(?i)^(?:[a-z0-9-]+\.)*(?:tiktok\.com|instagram\.com|youtube\.com|youtu\.be)(?:/|$)`)

	instagramKinds = map[string]bool{
		"p":     true,
		"reel":  true,
		"reels": true,
		"tv":    true,
	}

	youtubeHosts = map[string]bool{
		"youtube.com":       true,
		"www.youtube.com":   true,
		"m.youtube.com":     true,
		"music.youtube.com": true,
	}

	youtubePathKinds = map[string]bool{
		"shorts": true,
		"live":   true,
		"embed":  true,
		"v":      true,
	}
)

// Classify determines the platform of raw and canonicalizes the first
// recognized platform URL found anywhere in it. It performs no I/O.
func Classify(raw string) core.Classification {
	text := normalizeText(raw)
	if text == "" {
		return core.Classification{Platform: core.PlatformUnknown}
	}

	hasScheme := false
	for _, token := range strings.Fields(text) {
		candidate := trimToken(token)
		if candidate == "" {
			continue
		}

		withScheme := schemeRegex.MatchString(candidate)
		if withScheme {
			hasScheme = true
		} else if bareHostRegex.MatchString(candidate) {
			candidate = "https://" + candidate
		} else {
			continue
		}

		u, err := url.Parse(candidate)
		if err != nil || u.Host == "" {
			continue
		}

		if c, ok := classifyURL(u); ok {
			return c
		}
	}

	if hasScheme {
		return core.Classification{Platform: core.PlatformUnknown}
	}
	return core.Classification{Platform: core.PlatformQuery}
}

// classifyURL applies the platform precedence to one parsed URL.
func classifyURL(u *url.URL) (core.Classification, bool) {
	host := strings.ToLower(u.Hostname())

	if isTikTokHost(host) {
		return core.Classification{
			Platform:      core.PlatformTikTok,
			NormalizedURL: canonicalPath(host, u.Path),
		}, true
	}

	if isInstagramHost(host) && hasInstagramPostPath(u.Path) {
		return core.Classification{
			Platform:      core.PlatformInstagram,
			NormalizedURL: canonicalPath(host, u.Path),
		}, true
	}

	if id := youtubeIDFromURL(u); id != "" {
		return core.Classification{
			Platform:      core.PlatformYouTube,
			NormalizedURL: WatchURL(id),
		}, true
	}

	return core.Classification{}, false
}

// IsShortLink reports whether rawURL is a TikTok short link that needs
// redirect resolution before extraction.
func IsShortLink(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if !isTikTokHost(host) {
		return false
	}

	return strings.HasPrefix(host, "vm.") || strings.HasPrefix(host, "vt.") ||
		strings.HasPrefix(u.Path, "/t/")
}

// YouTubeID extracts the 11 character video ID from any supported YouTube URL form.
func YouTubeID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return youtubeIDFromURL(u)
}

// WatchURL builds the canonical watch URL for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// TikTokVideoID returns the numeric video ID of a long-form TikTok URL.
func TikTokVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	segments := pathSegments(u.Path)
	for i, segment := range segments {
		if (segment == "video" || segment == "photo") && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}

// InstagramShortcode returns the post or reel identifier of an Instagram URL.
func InstagramShortcode(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	segments := pathSegments(u.Path)
	for i, segment := range segments {
		if instagramKinds[segment] && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}

func youtubeIDFromURL(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	segments := pathSegments(u.Path)

	var id string
	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		if len(segments) > 0 {
			id = segments[0]
		}
	case youtubeHosts[host]:
		if len(segments) == 1 && segments[0] == "watch" {
			id = u.Query().Get("v")
		} else if len(segments) >= 2 && youtubePathKinds[segments[0]] {
			id = segments[1]
		}
	}

	if !youtubeIDRegex.MatchString(id) {
		return ""
	}
	return id
}

func isTikTokHost(host string) bool {
	return host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com")
}

func isInstagramHost(host string) bool {
	return host == "instagram.com" || strings.HasSuffix(host, ".instagram.com")
}

func hasInstagramPostPath(path string) bool {
	segments := pathSegments(path)
	for i, segment := range segments {
		if instagramKinds[segment] {
			return i+1 < len(segments)
		}
	}
	return false
}

func canonicalPath(host, path string) string {
	return "https://" + host + strings.TrimRight(path, "/")
}

func pathSegments(path string) []string {
	var segments []string
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

func normalizeText(text string) string {
	text = norm.NFKC.String(text)
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func trimToken(token string) string {
	token = strings.TrimLeft(token, "(<\"'")
	return strings.TrimRight(token, ".,!?;:)>\"'")
}
