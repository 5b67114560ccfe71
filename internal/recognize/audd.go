// Package recognize identifies songs from short audio clips through the AudD API.
package recognize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"songbird/internal/core"

	"github.com/tidwall/gjson"
)

const (
	// DefaultAPIURL is the AudD recognition endpoint.
	DefaultAPIURL = "https://api.audd.io/"
	// RequestTimeout bounds one recognition request.
	RequestTimeout = 30 * time.Second
	// maxResponseSize caps how much of a response is read.
	maxResponseSize = 1 << 20
	// fullScore is the AudD score of a certain match.
	fullScore = 100.0
)

var (
	// ErrNoMatch is returned when AudD answers successfully without a track.
	ErrNoMatch = errors.New("no match")
	// ErrAPI is returned for non-success AudD statuses.
	ErrAPI = errors.New("audd api error")
)

// AudDClient sends clips to AudD as multipart uploads.
type AudDClient struct {
	client *http.Client
	url    string
	token  string
}

func NewAudDClient(apiURL, token string) *AudDClient {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &AudDClient{
		client: &http.Client{Timeout: RequestTimeout},
		url:    apiURL,
		token:  token,
	}
}

// Recognize uploads clipPath. Humming mode uses recognize_with_offset.
func (c *AudDClient) Recognize(ctx context.Context, clipPath string, mode core.RecognitionMode) (*core.RecognitionResult, error) {
	body, contentType, err := c.buildForm(clipPath, mode)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audd request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrAPI, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read audd response: %w", err)
	}

	return parseResponse(data)
}

func (c *AudDClient) buildForm(clipPath string, mode core.RecognitionMode) (io.Reader, string, error) {
	file, err := os.Open(clipPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open clip: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"api_token": c.token,
		"return":    "spotify,youtube",
	}
	if mode == core.RecognitionModeHumming {
		fields["method"] = "recognize_with_offset"
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	part, err := writer.CreateFormFile("file", filepath.Base(clipPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to read clip: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}

// parseResponse handles both the plain result object and the list returned
// by recognize_with_offset. A missing score means AudD's plain endpoint
// reported a match without one, which it only does for certain matches.
func parseResponse(data []byte) (*core.RecognitionResult, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrAPI)
	}

	root := gjson.ParseBytes(data)
	if status := root.Get("status").String(); status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrAPI, root.Get("error.error_message").String())
	}

	track := root.Get("result")
	if list := track.Get("list"); list.IsArray() {
		track = list.Get("0")
	}
	if !track.Exists() || track.Type == gjson.Null {
		return nil, ErrNoMatch
	}

	score := fullScore
	if s := track.Get("score"); s.Exists() {
		score = s.Float()
	}

	result := &core.RecognitionResult{
		Title:      strings.TrimSpace(track.Get("title").String()),
		Artist:     strings.TrimSpace(track.Get("artist").String()),
		Album:      track.Get("album").String(),
		ISRC:       track.Get("isrc").String(),
		YouTubeID:  track.Get("youtube.id").String(),
		Duration:   time.Duration(track.Get("spotify.duration_ms").Int()) * time.Millisecond,
		Confidence: min(max(score/fullScore, 0), 1),
	}
	if result.ISRC == "" {
		result.ISRC = track.Get("spotify.external_ids.isrc").String()
	}

	return result, nil
}
