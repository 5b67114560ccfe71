package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"songbird/internal/audio"
	"songbird/internal/core"
	"songbird/internal/workerpool"

	"go.uber.org/zap"
)

// testWorkspace is a directory-backed core.Workspace.
type testWorkspace struct {
	dir string
}

func (w testWorkspace) Dir() string { return w.dir }

func (w testWorkspace) Path(name string) (string, error) {
	return filepath.Join(w.dir, name), nil
}

type step func(args []string) (audio.Output, error)

// scriptedRunner plays one step per invocation; the last step repeats.
type scriptedRunner struct {
	mu    sync.Mutex
	calls [][]string
	steps []step
}

func (r *scriptedRunner) Run(_ context.Context, _ string, args ...string) (audio.Output, error) {
	r.mu.Lock()
	r.calls = append(r.calls, args)
	idx := min(len(r.calls)-1, len(r.steps)-1)
	r.mu.Unlock()
	return r.steps[idx](args)
}

func (r *scriptedRunner) formats() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var formats []string
	for _, args := range r.calls {
		formats = append(formats, argValue(args, "--format"))
	}
	return formats
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func succeed(ext, infoJSON string) step {
	return func(args []string) (audio.Output, error) {
		path := strings.ReplaceAll(argValue(args, "--output"), "%(ext)s", ext)
		if err := os.WriteFile(path, []byte("media"), 0o600); err != nil {
			return audio.Output{}, err
		}
		return audio.Output{Stdout: []byte("[info] noise\n" + infoJSON + "\n")}, nil
	}
}

func fail(stderr string) step {
	return func([]string) (audio.Output, error) {
		return audio.Output{Stderr: []byte(stderr)}, errors.New("exit status 1")
	}
}

// fakeConverter writes the destination file or returns err.
type fakeConverter struct {
	err error
	src string
}

func (c *fakeConverter) Convert(_ context.Context, src, dst string, _ time.Duration) error {
	c.src = src
	if c.err != nil {
		return c.err
	}
	return os.WriteFile(dst, []byte("mp3"), 0o600)
}

func newTestDownloader(runner audio.Runner, converter Converter) *Downloader {
	return NewDownloader(
		DownloaderConfig{Backoff: time.Millisecond},
		runner, workerpool.New(2), converter, nil, zap.NewNop(),
	)
}

const youtubeInfo = `{"id":"dQw4w9WgXcQ","title":"Rick Astley - Never Gonna Give You Up (Official Music Video)",` +
	`"uploader":"Rick Astley","duration":213.0,"thumbnail":"https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg",` +
	`"webpage_url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`

func TestYouTubeBackend_Extract(t *testing.T) {
	ws := testWorkspace{dir: t.TempDir()}
	runner := &scriptedRunner{steps: []step{succeed("webm", youtubeInfo)}}
	converter := &fakeConverter{}
	backend := NewYouTubeBackend(newTestDownloader(runner, converter))

	result := backend.Extract(context.Background(), ws, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")

	if !result.Success {
		t.Fatalf("Extract() failed with %s", result.ErrorKind)
	}
	if result.NativeID != "dQw4w9WgXcQ" {
		t.Errorf("NativeID = %q", result.NativeID)
	}
	if result.Artist != "Rick Astley" {
		t.Errorf("Artist = %q, want Rick Astley", result.Artist)
	}
	if result.Track != "Never Gonna Give You Up (Official Music Video)" {
		t.Errorf("Track = %q", result.Track)
	}
	if result.Duration != 213*time.Second {
		t.Errorf("Duration = %v", result.Duration)
	}
	if result.MediaPath != filepath.Join(ws.dir, OutputName) {
		t.Errorf("MediaPath = %q", result.MediaPath)
	}
	if converter.src != filepath.Join(ws.dir, "source.webm") {
		t.Errorf("Converter got %q, want the discovered source.webm", converter.src)
	}
}

func TestDownloader_RetryPolicy(t *testing.T) {
	tests := []struct {
		name        string
		steps       []step
		convertErr  error
		wantKind    core.ErrorKind
		wantFormats []string
	}{
		{
			name:        "Rate limited then success with degraded format",
			steps:       []step{fail("ERROR: HTTP Error 429: Too Many Requests"), succeed("m4a", youtubeInfo)},
			wantKind:    core.ErrorKindNone,
			wantFormats: []string{"bestaudio/best", "worstaudio/worst"},
		},
		{
			name:        "Format miss walks the whole chain",
			steps:       []step{fail("ERROR: Requested format is not available"), fail("ERROR: Requested format is not available"), succeed("mp4", youtubeInfo)},
			wantKind:    core.ErrorKindNone,
			wantFormats: []string{"bestaudio/best", "worstaudio/worst", "best"},
		},
		{
			name:        "Not found is terminal",
			steps:       []step{fail("ERROR: [youtube] xyz: Video unavailable")},
			wantKind:    core.ErrorKindNotFound,
			wantFormats: []string{"bestaudio/best"},
		},
		{
			name:        "Network errors exhaust the budget",
			steps:       []step{fail("ERROR: Unable to download webpage: connection reset")},
			wantKind:    core.ErrorKindNetwork,
			wantFormats: []string{"bestaudio/best", "worstaudio/worst", "best"},
		},
		{
			name: "Nothing discovered is not found",
			steps: []step{func([]string) (audio.Output, error) {
				return audio.Output{Stdout: []byte(youtubeInfo)}, nil
			}},
			wantKind:    core.ErrorKindNotFound,
			wantFormats: []string{"bestaudio/best"},
		},
		{
			name:        "Conversion timeout is terminal",
			steps:       []step{succeed("webm", youtubeInfo)},
			convertErr:  audio.ErrTimeout,
			wantKind:    core.ErrorKindTimeout,
			wantFormats: []string{"bestaudio/best"},
		},
		{
			name:        "Conversion failure is unsupported format",
			steps:       []step{succeed("webm", youtubeInfo)},
			convertErr:  audio.ErrConversion,
			wantKind:    core.ErrorKindUnsupportedFormat,
			wantFormats: []string{"bestaudio/best"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{steps: tt.steps}
			d := newTestDownloader(runner, &fakeConverter{err: tt.convertErr})
			ws := testWorkspace{dir: t.TempDir()}

			dl, kind := d.Download(context.Background(), ws, core.PlatformYouTube, "https://youtu.be/x", requestOptions{})

			if kind != tt.wantKind {
				t.Errorf("Download() kind = %q, want %q", kind, tt.wantKind)
			}
			if (dl != nil) != (tt.wantKind == core.ErrorKindNone) {
				t.Errorf("Download() result = %v with kind %q", dl, kind)
			}

			formats := runner.formats()
			if strings.Join(formats, ",") != strings.Join(tt.wantFormats, ",") {
				t.Errorf("formats = %v, want %v", formats, tt.wantFormats)
			}
		})
	}
}

func TestDiscover_Order(t *testing.T) {
	ws := testWorkspace{dir: t.TempDir()}

	if _, ok := Discover(ws, "source"); ok {
		t.Fatal("Discover() found a file in an empty workspace")
	}

	for name, content := range map[string]string{
		"source.webm": "webm",
		"source.m4a":  "",
		"source.mp4":  "mp4",
	} {
		if err := os.WriteFile(filepath.Join(ws.dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	path, ok := Discover(ws, "source")
	if !ok || filepath.Base(path) != "source.webm" {
		t.Errorf("Discover() = %q, %v; want the first non-empty file source.webm", path, ok)
	}
}

// staticResolver expands every link to one URL.
type staticResolver struct {
	to    string
	calls int
}

func (r *staticResolver) Resolve(_ context.Context, _ string) string {
	r.calls++
	return r.to
}

func TestTikTokBackend_ExpandsShortLinks(t *testing.T) {
	ws := testWorkspace{dir: t.TempDir()}
	info := `{"id":"7234567890123456789","title":"wait for the drop #fyp on TikTok","uploader":"dj_user",` +
		`"track":"original sound - dj_user","duration":15}`
	runner := &scriptedRunner{steps: []step{succeed("mp4", info)}}
	resolver := &staticResolver{to: "https://www.tiktok.com/@dj_user/video/7234567890123456789?_r=1"}
	backend := NewTikTokBackend(newTestDownloader(runner, &fakeConverter{}), resolver, zap.NewNop())

	result := backend.Extract(context.Background(), ws, "https://vm.tiktok.com/ZMabc123")

	if !result.Success {
		t.Fatalf("Extract() failed with %s", result.ErrorKind)
	}
	if resolver.calls != 1 {
		t.Errorf("Expected one short link resolution, got %d", resolver.calls)
	}

	target := runner.calls[0][len(runner.calls[0])-1]
	if target != "https://www.tiktok.com/@dj_user/video/7234567890123456789" {
		t.Errorf("Downloader target = %q, want the canonical long URL", target)
	}
	if argValue(runner.calls[0], "--add-header") != "Referer:"+tiktokReferer {
		t.Errorf("Expected TikTok referer header, got args %v", runner.calls[0])
	}
	if result.RawTitle != "wait for the drop #fyp" {
		t.Errorf("RawTitle = %q", result.RawTitle)
	}
	if result.Artist != "" || result.NativeID != "7234567890123456789" {
		t.Errorf("Unexpected metadata: artist=%q native=%q", result.Artist, result.NativeID)
	}
}

func TestSearchBackend_Search(t *testing.T) {
	rawResults := `{"id":"aaaaaaaaaaa","title":"Billie Eilish - bad guy","channel":"BillieEilishVEVO","duration":205}
{"id":"bbbbbbbbbbb","title":"bad guy (lyrics)","channel":"Lyrics Hub","duration":194}`
	cleanResults := `{"id":"bbbbbbbbbbb","title":"bad guy (lyrics)","channel":"Lyrics Hub"}
{"id":"ccccccccccc","title":"bad guy live","channel":"Live Sessions"}`

	runner := &scriptedRunner{steps: []step{
		func([]string) (audio.Output, error) { return audio.Output{Stdout: []byte(rawResults)}, nil },
		func([]string) (audio.Output, error) { return audio.Output{Stdout: []byte(cleanResults)}, nil },
	}}
	search := NewSearchBackend("yt-dlp", runner, workerpool.New(1), nil, zap.NewNop())

	candidates, kind := search.Search(context.Background(), "Billie Eilish - bad guy!", 3)
	if kind != core.ErrorKindNone {
		t.Fatalf("Search() kind = %q", kind)
	}

	var ids []string
	for _, c := range candidates {
		ids = append(ids, c.VideoID)
	}
	if strings.Join(ids, ",") != "aaaaaaaaaaa,bbbbbbbbbbb,ccccccccccc" {
		t.Errorf("Search() ids = %v, want provider order without duplicates", ids)
	}

	if got := runner.calls[1][len(runner.calls[1])-1]; got != "ytsearch3:Billie Eilish bad guy" {
		t.Errorf("Second variant = %q, want the cleaned query", got)
	}
	if candidates[0].URL != "https://www.youtube.com/watch?v=aaaaaaaaaaa" {
		t.Errorf("Candidate URL = %q", candidates[0].URL)
	}
}

func TestSearchBackend_EmptyResultsAreNotFound(t *testing.T) {
	runner := &scriptedRunner{steps: []step{
		func([]string) (audio.Output, error) { return audio.Output{}, nil },
	}}
	search := NewSearchBackend("yt-dlp", runner, workerpool.New(1), nil, zap.NewNop())

	result := search.Resolve(context.Background(), testWorkspace{dir: t.TempDir()}, "zzzz qqqq")
	if result.Success || result.ErrorKind != core.ErrorKindNotFound {
		t.Errorf("Resolve() = %+v, want not_found", result)
	}
}

func TestRegistry_Get(t *testing.T) {
	registry := NewRegistry(NewYouTubeBackend(nil), NewInstagramBackend(nil))

	if b, err := registry.Get(core.PlatformYouTube); err != nil || b.Platform() != core.PlatformYouTube {
		t.Errorf("Get(youtube) = %v, %v", b, err)
	}
	if _, err := registry.Get(core.PlatformTikTok); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Errorf("Get(tiktok) error = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestRedirector_Resolve(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ZMabc123/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/@user/video/123?is_from_webapp=1", http.StatusFound)
	})
	mux.HandleFunc("/@user/video/123", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	redirector := NewRedirector(zap.NewNop())

	got := redirector.Resolve(context.Background(), server.URL+"/ZMabc123/")
	if got != server.URL+"/@user/video/123?is_from_webapp=1" {
		t.Errorf("Resolve() = %q", got)
	}

	unreachable := "http://127.0.0.1:1/ZMabc123/"
	if got := redirector.Resolve(context.Background(), unreachable); got != unreachable {
		t.Errorf("Resolve() on failure = %q, want the original URL", got)
	}
}
