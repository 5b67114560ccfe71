package library

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDiskLibrary_Store(t *testing.T) {
	lib, err := NewDiskLibrary(filepath.Join(t.TempDir(), "downloads"), zap.NewNop())
	require.NoError(t, err)

	src := writeSource(t, "audio.mp3", "mp3-bytes")
	location, err := lib.Store(context.Background(), src, "youtube/dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(lib.dir, "youtube", "dQw4w9WgXcQ.mp3"), location)
	assert.True(t, lib.Exists(context.Background(), location))

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", string(data))

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source should be moved out of the workspace")
}

func TestDiskLibrary_StoreRejectsEscapingKeys(t *testing.T) {
	lib, err := NewDiskLibrary(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	for _, key := range []string{"", ".", "..", "../outside", "/etc/passwd"} {
		t.Run(key, func(t *testing.T) {
			src := writeSource(t, "audio.mp3", "x")
			_, err := lib.Store(context.Background(), src, key)
			require.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestDiskLibrary_Exists(t *testing.T) {
	lib, err := NewDiskLibrary(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	assert.False(t, lib.Exists(context.Background(), ""))
	assert.False(t, lib.Exists(context.Background(), filepath.Join(lib.dir, "missing.mp3")))
	assert.False(t, lib.Exists(context.Background(), lib.dir), "directories are not library files")
}

func TestCopyFile(t *testing.T) {
	src := writeSource(t, "audio.mp3", "payload")
	dst := filepath.Join(t.TempDir(), "copy.mp3")

	require.NoError(t, copyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be renamed away")
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		bucket   string
		key      string
		ok       bool
	}{
		{"Valid", "s3://songs/youtube/abc.mp3", "songs", "youtube/abc.mp3", true},
		{"Missing key", "s3://songs", "", "", false},
		{"Empty key", "s3://songs/", "", "", false},
		{"Local path", "/data/downloads/abc.mp3", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, ok := ParseLocation(tt.location)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

// fakeS3 answers the handful of path-style S3 calls the object library makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case key == "" && r.Method == http.MethodHead && bucket == "songs":
		w.WriteHeader(http.StatusOK)
	case key != "" && r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case key != "" && r.Method == http.MethodHead:
		body, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestObjectLibrary_StoreAndExists(t *testing.T) {
	fake := &fakeS3{objects: make(map[string][]byte)}
	server := httptest.NewServer(fake)
	defer server.Close()

	lib, err := NewObjectLibrary(context.Background(), ObjectConfig{
		Endpoint:  server.URL,
		Bucket:    "songs",
		AccessKey: "access",
		SecretKey: "secret",
		Region:    "us-east-1",
	}, zap.NewNop())
	require.NoError(t, err)

	src := writeSource(t, "audio.mp3", "mp3-bytes")
	location, err := lib.Store(context.Background(), src, "tiktok/7234567890123456789")
	require.NoError(t, err)
	assert.Equal(t, "s3://songs/tiktok/7234567890123456789.mp3", location)

	fake.mu.Lock()
	_, uploaded := fake.objects["tiktok/7234567890123456789.mp3"]
	fake.mu.Unlock()
	assert.True(t, uploaded)

	assert.True(t, lib.Exists(context.Background(), location))
	assert.False(t, lib.Exists(context.Background(), "s3://songs/missing.mp3"))
	assert.False(t, lib.Exists(context.Background(), "/local/path.mp3"))
}

func TestNewObjectLibrary_RequiresEndpointAndBucket(t *testing.T) {
	_, err := NewObjectLibrary(context.Background(), ObjectConfig{Bucket: "songs"}, zap.NewNop())
	require.Error(t, err)

	_, err = NewObjectLibrary(context.Background(), ObjectConfig{Endpoint: "localhost:9000"}, zap.NewNop())
	require.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/mpeg", contentType("a.MP3"))
	assert.Equal(t, "audio/ogg", contentType("a.opus"))
	assert.Equal(t, "application/octet-stream", contentType("a.bin"))
}
