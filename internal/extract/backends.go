package extract

import (
	"context"
	"regexp"
	"strings"

	"songbird/internal/core"
	"songbird/pkg/metadata"
	"songbird/pkg/platform"

	"go.uber.org/zap"
)

const (
	tiktokReferer   = "https://www.tiktok.com/"
	tiktokUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

	youtubeUserAgent   = "com.google.android.youtube/17.36.4"
	instagramUserAgent = "Instagram 238.0.0.16.120"
)

var onTikTokRegex = regexp.MustCompile(`(?i)\s*on tiktok\s*$`)

// YouTubeBackend extracts YouTube videos.
type YouTubeBackend struct {
	downloader *Downloader
}

func NewYouTubeBackend(downloader *Downloader) *YouTubeBackend {
	return &YouTubeBackend{downloader: downloader}
}

func (b *YouTubeBackend) Platform() core.Platform {
	return core.PlatformYouTube
}

// Extract downloads target and derives the artist from music tags, an
// "Artist - Title" video title or the channel, in that order.
func (b *YouTubeBackend) Extract(ctx context.Context, ws core.Workspace, target string) core.ExtractionResult {
	dl, kind := b.downloader.Download(ctx, ws, core.PlatformYouTube, target, requestOptions{UserAgent: youtubeUserAgent})
	if dl == nil {
		return core.Failed(core.PlatformYouTube, kind)
	}

	info := dl.Info
	artist, track := info.Artist, info.Track

	if track == "" || artist == "" {
		splitArtist, splitTitle := metadata.SplitArtistTitle(info.Title)
		if splitArtist != metadata.UnknownArtist {
			artist = firstNonEmpty(artist, splitArtist)
			track = firstNonEmpty(track, splitTitle)
		}
	}
	artist = firstNonEmpty(artist, metadata.ArtistFromChannel(info.Uploader))
	track = firstNonEmpty(track, info.Title)

	nativeID := firstNonEmpty(info.ID, platform.YouTubeID(target))

	return core.ExtractionResult{
		Success:      true,
		MediaPath:    dl.Path,
		RawTitle:     info.Title,
		RawUploader:  info.Uploader,
		Artist:       artist,
		Track:        track,
		Duration:     info.Duration,
		ThumbnailURL: info.ThumbnailURL,
		NativeID:     nativeID,
		SourceURL:    platform.WatchURL(nativeID),
		Platform:     core.PlatformYouTube,
	}
}

// ShortLinkResolver expands shortened URLs.
type ShortLinkResolver interface {
	Resolve(ctx context.Context, rawURL string) string
}

// TikTokBackend extracts TikTok videos, expanding short links first.
type TikTokBackend struct {
	downloader *Downloader
	redirects  ShortLinkResolver
	logger     *zap.Logger
}

func NewTikTokBackend(downloader *Downloader, redirects ShortLinkResolver, logger *zap.Logger) *TikTokBackend {
	return &TikTokBackend{downloader: downloader, redirects: redirects, logger: logger}
}

func (b *TikTokBackend) Platform() core.Platform {
	return core.PlatformTikTok
}

// Extract downloads target. Only the music tags count as artist and track;
// the caption is kept as the raw title.
func (b *TikTokBackend) Extract(ctx context.Context, ws core.Workspace, target string) core.ExtractionResult {
	if platform.IsShortLink(target) {
		resolved := b.redirects.Resolve(ctx, target)
		if resolved != target {
			b.logger.Debug("Resolved short link", zap.String("from", target), zap.String("to", resolved))
			if c := platform.Classify(resolved); c.Platform == core.PlatformTikTok {
				resolved = c.NormalizedURL
			}
		}
		target = resolved
	}

	dl, kind := b.downloader.Download(ctx, ws, core.PlatformTikTok, target, requestOptions{
		UserAgent: tiktokUserAgent,
		Referer:   tiktokReferer,
	})
	if dl == nil {
		result := core.Failed(core.PlatformTikTok, kind)
		result.SourceURL = target
		return result
	}

	info := dl.Info
	return core.ExtractionResult{
		Success:      true,
		MediaPath:    dl.Path,
		RawTitle:     strings.TrimSpace(onTikTokRegex.ReplaceAllString(info.Title, "")),
		RawUploader:  info.Uploader,
		Artist:       info.Artist,
		Track:        info.Track,
		Duration:     info.Duration,
		ThumbnailURL: info.ThumbnailURL,
		NativeID:     firstNonEmpty(info.ID, platform.TikTokVideoID(target)),
		SourceURL:    firstNonEmpty(info.WebpageURL, target),
		Platform:     core.PlatformTikTok,
	}
}

// InstagramBackend extracts Instagram reels and posts.
type InstagramBackend struct {
	downloader *Downloader
}

func NewInstagramBackend(downloader *Downloader) *InstagramBackend {
	return &InstagramBackend{downloader: downloader}
}

func (b *InstagramBackend) Platform() core.Platform {
	return core.PlatformInstagram
}

func (b *InstagramBackend) Extract(ctx context.Context, ws core.Workspace, target string) core.ExtractionResult {
	dl, kind := b.downloader.Download(ctx, ws, core.PlatformInstagram, target, requestOptions{
		UserAgent: instagramUserAgent,
	})
	if dl == nil {
		result := core.Failed(core.PlatformInstagram, kind)
		result.SourceURL = target
		return result
	}

	info := dl.Info
	return core.ExtractionResult{
		Success:      true,
		MediaPath:    dl.Path,
		RawTitle:     info.Title,
		RawUploader:  info.Uploader,
		Artist:       info.Artist,
		Track:        info.Track,
		Duration:     info.Duration,
		ThumbnailURL: info.ThumbnailURL,
		NativeID:     firstNonEmpty(platform.InstagramShortcode(target), info.ID),
		SourceURL:    target,
		Platform:     core.PlatformInstagram,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
