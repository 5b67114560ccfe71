package extract

import (
	"bytes"
	"time"

	"github.com/tidwall/gjson"
)

// mediaInfo is the subset of the downloader's info JSON we use.
type mediaInfo struct {
	ID           string
	Title        string
	Uploader     string
	Artist       string
	Track        string
	Duration     time.Duration
	ThumbnailURL string
	WebpageURL   string
}

// parseInfo reads the last JSON object printed by the downloader.
func parseInfo(stdout []byte) (mediaInfo, bool) {
	line := lastJSONLine(stdout)
	if line == nil {
		return mediaInfo{}, false
	}

	return infoFromResult(gjson.ParseBytes(line)), true
}

func infoFromResult(r gjson.Result) mediaInfo {
	return mediaInfo{
		ID:           r.Get("id").String(),
		Title:        r.Get("title").String(),
		Uploader:     firstString(r, "uploader", "channel", "creator"),
		Artist:       firstString(r, "artist", "artists.0"),
		Track:        firstString(r, "track", "alt_title"),
		Duration:     time.Duration(r.Get("duration").Float() * float64(time.Second)),
		ThumbnailURL: r.Get("thumbnail").String(),
		WebpageURL:   firstString(r, "webpage_url", "original_url", "url"),
	}
}

func firstString(r gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := r.Get(path).String(); v != "" {
			return v
		}
	}
	return ""
}

func lastJSONLine(stdout []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) > 0 && line[0] == '{' && gjson.ValidBytes(line) {
			return line
		}
	}
	return nil
}

// jsonLines returns every valid JSON object line, in order.
func jsonLines(stdout []byte) []gjson.Result {
	var results []gjson.Result
	for _, line := range bytes.Split(stdout, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 && line[0] == '{' && gjson.ValidBytes(line) {
			results = append(results, gjson.ParseBytes(line))
		}
	}
	return results
}
