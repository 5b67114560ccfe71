// Package oembed looks up public post captions through platform oEmbed endpoints.
package oembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"songbird/internal/core"

	"github.com/tidwall/gjson"
)

const (
	// TikTokEndpoint is the TikTok oEmbed API endpoint.
	TikTokEndpoint = "https://www.tiktok.com/oembed"
	// YouTubeEndpoint is the YouTube oEmbed API endpoint.
	YouTubeEndpoint = "https://www.youtube.com/oembed"
	// DefaultTimeout is the timeout for oEmbed requests.
	DefaultTimeout = 10 * time.Second
	// maxResponseSize caps how much of an oEmbed response is read.
	maxResponseSize = 256 * 1024
	// maxRedirects is the maximum number of HTTP redirects to follow.
	maxRedirects = 3
	userAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	// ErrUnsupportedPlatform is returned for platforms without a public oEmbed endpoint.
	ErrUnsupportedPlatform = errors.New("no oembed endpoint for platform")
	// ErrTooManyRedirects is returned when too many redirects are encountered.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrEmptyCaption is returned when the endpoint answers without a title.
	ErrEmptyCaption = errors.New("oembed response has no title")
)

// Client fetches captions. Endpoints can be overridden for tests.
type Client struct {
	client    *http.Client
	endpoints map[core.Platform]string
}

func NewClient() *Client {
	return &Client{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		endpoints: map[core.Platform]string{
			core.PlatformTikTok:  TikTokEndpoint,
			core.PlatformYouTube: YouTubeEndpoint,
		},
	}
}

// WithEndpoint replaces the oEmbed endpoint used for platform.
func (c *Client) WithEndpoint(platform core.Platform, endpoint string) *Client {
	c.endpoints[platform] = endpoint
	return c
}

// Caption returns the post title (for TikTok, the caption) of targetURL.
func (c *Client) Caption(ctx context.Context, platform core.Platform, targetURL string) (string, error) {
	endpoint, ok := c.endpoints[platform]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}

	body, err := c.fetch(ctx, endpoint, targetURL)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(gjson.GetBytes(body, "title").String())
	if title == "" {
		return "", ErrEmptyCaption
	}

	return title, nil
}

func (c *Client) fetch(ctx context.Context, endpoint, targetURL string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s?url=%s&format=json", endpoint, url.QueryEscape(targetURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oEmbed API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read oEmbed response: %w", err)
	}

	if !gjson.ValidBytes(body) {
		return nil, errors.New("failed to decode oEmbed response")
	}

	return body, nil
}
