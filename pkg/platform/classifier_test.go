package platform

import (
	"testing"

	"songbird/internal/core"
)

// getClassifyTestData returns test cases for the Classify function.
func getClassifyTestData() []struct {
	name     string
	input    string
	platform core.Platform
	url      string
} {
	return []struct {
		name     string
		input    string
		platform core.Platform
		url      string
	}{
		{
			"YouTube watch with playlist",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123&index=4",
			core.PlatformYouTube,
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			"YouTube short link with tracking",
			"https://youtu.be/dQw4w9WgXcQ?si=abc123",
			core.PlatformYouTube,
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{"YouTube shorts", "https://youtube.com/shorts/dQw4w9WgXcQ", core.PlatformYouTube,
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"YouTube Music", "https://music.youtube.com/watch?v=dQw4w9WgXcQ&feature=share", core.PlatformYouTube,
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"YouTube without video ID", "https://www.youtube.com/@channel", core.PlatformUnknown, ""},
		{
			"TikTok video",
			"https://www.TikTok.com/@user/video/7234567890123456789?lang=en&is_from_webapp=1",
			core.PlatformTikTok,
			"https://www.tiktok.com/@user/video/7234567890123456789",
		},
		{"TikTok short link", "https://vm.tiktok.com/ZMabc123/", core.PlatformTikTok, "https://vm.tiktok.com/ZMabc123"},
		{"TikTok without scheme inside text", "lol tiktok.com/@user/video/123 what song is this",
			core.PlatformTikTok, "https://tiktok.com/@user/video/123"},
		{"Instagram reel", "https://www.instagram.com/reel/Cx1AbC2dEf3/?igsh=xyz", core.PlatformInstagram,
			"https://www.instagram.com/reel/Cx1AbC2dEf3"},
		{"Instagram post", "https://instagram.com/p/Cx1AbC2dEf3", core.PlatformInstagram,
			"https://instagram.com/p/Cx1AbC2dEf3"},
		{"Instagram profile", "https://www.instagram.com/someartist/", core.PlatformUnknown, ""},
		{"URL after caption text", "this slaps (https://youtu.be/dQw4w9WgXcQ)", core.PlatformYouTube,
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"First recognized URL wins", "https://example.com https://youtu.be/dQw4w9WgXcQ https://vm.tiktok.com/x",
			core.PlatformYouTube, "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"Free text query", "Billie Eilish bad guy", core.PlatformQuery, ""},
		{"Unrelated URL", "https://example.com/song.mp3", core.PlatformUnknown, ""},
		{"Empty input", "   ", core.PlatformUnknown, ""},
	}
}

func TestClassify(t *testing.T) {
	for _, tt := range getClassifyTestData() {
		t.Run(tt.name, func(t *testing.T) {
			result := Classify(tt.input)

			if result.Platform != tt.platform {
				t.Errorf("Classify() platform = %v, want %v", result.Platform, tt.platform)
			}

			if result.NormalizedURL != tt.url {
				t.Errorf("Classify() url = %q, want %q", result.NormalizedURL, tt.url)
			}
		})
	}
}

func TestClassify_CanonicalizationIsIdempotent(t *testing.T) {
	for _, tt := range getClassifyTestData() {
		if tt.url == "" {
			continue
		}
		t.Run(tt.name, func(t *testing.T) {
			first := Classify(tt.input)
			second := Classify(first.NormalizedURL)

			if second.NormalizedURL != first.NormalizedURL || second.Platform != first.Platform {
				t.Errorf("Classify() not idempotent: %+v then %+v", first, second)
			}
		})
	}
}

func TestIsShortLink(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"vm short link", "https://vm.tiktok.com/ZMabc123/", true},
		{"vt short link", "https://vt.tiktok.com/ZSabc123/", true},
		{"t path short link", "https://www.tiktok.com/t/ZTabc123/", true},
		{"Long TikTok URL", "https://www.tiktok.com/@user/video/123", false},
		{"YouTube short link", "https://youtu.be/dQw4w9WgXcQ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := IsShortLink(tt.input); result != tt.expected {
				t.Errorf("IsShortLink() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestYouTubeID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Watch URL", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"Embed URL", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"Live URL", "https://www.youtube.com/live/dQw4w9WgXcQ?feature=share", "dQw4w9WgXcQ"},
		{"Invalid ID length", "https://www.youtube.com/watch?v=short", ""},
		{"Not YouTube", "https://vimeo.com/123456", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := YouTubeID(tt.input); result != tt.expected {
				t.Errorf("YouTubeID() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestNativeIDHelpers(t *testing.T) {
	if id := TikTokVideoID("https://www.tiktok.com/@user/video/7234567890123456789"); id != "7234567890123456789" {
		t.Errorf("TikTokVideoID() = %q", id)
	}

	if id := InstagramShortcode("https://www.instagram.com/reels/Cx1AbC2dEf3"); id != "Cx1AbC2dEf3" {
		t.Errorf("InstagramShortcode() = %q", id)
	}
}
