package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"songbird/internal/chat"
)

type sentText struct {
	chatID  string
	replyTo string
	text    string
}

type fakeFrontend struct {
	mutex     sync.Mutex
	texts     []sentText
	edits     map[string]string
	reactions []chat.Reaction
	audio     []string
	fetched   []byte
	fetchErr  error
	editErr   error
	deleted   []string
	messages  []*chat.Message
	nextID    int
}

func newFakeFrontend() *fakeFrontend {
	return &fakeFrontend{edits: make(map[string]string)}
}

func (f *fakeFrontend) Start(context.Context) error {
	return nil
}

func (f *fakeFrontend) Listen(_ context.Context, handler func(*chat.Message)) error {
	for _, msg := range f.messages {
		handler(msg)
	}
	return nil
}

func (f *fakeFrontend) SendText(_ context.Context, chatID, replyToID, text string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.nextID++
	f.texts = append(f.texts, sentText{chatID: chatID, replyTo: replyToID, text: text})
	return "p" + strconv.Itoa(f.nextID), nil
}

func (f *fakeFrontend) EditMessage(_ context.Context, _, messageID, text string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.editErr != nil {
		return f.editErr
	}
	f.edits[messageID] = text
	return nil
}

func (f *fakeFrontend) DeleteMessage(_ context.Context, _, messageID string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeFrontend) React(_ context.Context, _, _ string, r chat.Reaction) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.reactions = append(f.reactions, r)
	return nil
}

func (f *fakeFrontend) SendAudio(_ context.Context, _, _, path, _, _ string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.audio = append(f.audio, path)
	return nil
}

func (f *fakeFrontend) FetchAttachment(_ context.Context, _ *chat.Message, dst string) error {
	if f.fetchErr != nil {
		return f.fetchErr
	}
	return os.WriteFile(dst, f.fetched, 0o600)
}

func (f *fakeFrontend) lastText() string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1].text
}

type fakeResolver struct {
	mutex      sync.Mutex
	resolution *Resolution
	err        error
	requests   []ResolutionRequest
	uploads    []bool
	candidates []SearchCandidate
	kind       ErrorKind
	panics     bool
}

func (f *fakeResolver) Resolve(_ context.Context, req ResolutionRequest) (*Resolution, error) {
	if f.panics {
		panic("boom")
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.requests = append(f.requests, req)
	if req.Kind == InputKindFile {
		_, err := os.Stat(req.RawInput)
		f.uploads = append(f.uploads, err == nil)
	}
	return f.resolution, f.err
}

func (f *fakeResolver) Candidates(context.Context, string, int) ([]SearchCandidate, ErrorKind) {
	return f.candidates, f.kind
}

type fakeLimiter struct {
	allowed bool
}

func (f *fakeLimiter) Allow(string, string) (bool, time.Duration) {
	return f.allowed, 1500 * time.Millisecond
}

func newTestDispatcher(t *testing.T, frontend *fakeFrontend, resolver *fakeResolver) (*Dispatcher, *fakeRepository) {
	t.Helper()

	dispatcher, songs, _ := newTestDispatcherWithWorkspaces(t, frontend, resolver)
	return dispatcher, songs
}

func newTestDispatcherWithWorkspaces(
	t *testing.T,
	frontend *fakeFrontend,
	resolver *fakeResolver,
) (*Dispatcher, *fakeRepository, *fakeWorkspaces) {
	t.Helper()

	config := DefaultConfig()
	config.Extract.WorkspaceRoot = t.TempDir()
	songs := newFakeRepository()
	workspaces := &fakeWorkspaces{root: config.Extract.WorkspaceRoot}

	dispatcher := NewDispatcher(config, frontend, resolver, workspaces, songs, &fakeLimiter{allowed: true}, zap.NewNop())
	return dispatcher, songs, workspaces
}

func textMessage(text string, urls ...string) *chat.Message {
	return &chat.Message{ID: "10", ChatID: "-100", SenderID: "42", SenderName: "@alice", Text: text, URLs: urls}
}

func TestDispatcher_ResolvesLinkAndSendsAudio(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "song.m4a")
	require.NoError(t, os.WriteFile(audioPath, []byte("audio"), 0o600))

	frontend := newFakeFrontend()
	resolver := &fakeResolver{resolution: &Resolution{
		Song:   &CanonicalSong{ID: 7, Title: "Bohemian Rhapsody", Artist: "Queen", FilePath: audioPath},
		Source: SourceExtractor,
	}}
	dispatcher, songs := newTestDispatcher(t, frontend, resolver)

	dispatcher.handleMessage(context.Background(),
		textMessage("listen to this https://youtu.be/dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ"))

	require.Len(t, resolver.requests, 1)
	req := resolver.requests[0]
	assert.Equal(t, "listen to this https://youtu.be/dQw4w9WgXcQ", req.RawInput)
	assert.Equal(t, InputKindURL, req.Kind)
	assert.Equal(t, "42", req.Requester)
	assert.Equal(t, "-100:10", req.MessageID)

	require.Len(t, frontend.texts, 1, "only the progress message is sent as text")
	assert.Equal(t, "10", frontend.texts[0].replyTo)
	assert.Equal(t, "🎵 Queen - Bohemian Rhapsody", frontend.edits["p1"])
	assert.Equal(t, []string{audioPath}, frontend.audio)
	assert.Equal(t, []chat.Reaction{chat.ReactionEyes, chat.ReactionThumbsUp}, frontend.reactions)
	assert.Equal(t, 1, songs.played[7])
}

func TestDispatcher_FreeTextQuery(t *testing.T) {
	frontend := newFakeFrontend()
	resolver := &fakeResolver{resolution: &Resolution{
		Song:   &CanonicalSong{ID: 1, Title: "bad guy", Artist: "Billie Eilish", FilePath: "s3://songs/youtube/x.m4a"},
		Reused: true,
	}}
	dispatcher, _ := newTestDispatcher(t, frontend, resolver)

	dispatcher.handleMessage(context.Background(), textMessage("  billie eilish bad guy "))

	require.Len(t, resolver.requests, 1)
	assert.Equal(t, "billie eilish bad guy", resolver.requests[0].RawInput)
	assert.Contains(t, frontend.edits["p1"], "already in the library")
	assert.Empty(t, frontend.audio, "remote files are not uploaded")
}

func TestDispatcher_PlatformLinkAfterUnrelatedLink(t *testing.T) {
	frontend := newFakeFrontend()
	resolver := &fakeResolver{resolution: &Resolution{
		Failure: &Failure{Kind: ErrorKindNotFound, Platform: PlatformTikTok},
	}}
	dispatcher, _ := newTestDispatcher(t, frontend, resolver)

	text := "source https://example.com/blog song https://www.tiktok.com/@u/video/7234567890123456789"
	dispatcher.handleMessage(context.Background(),
		textMessage(text, "https://example.com/blog", "https://www.tiktok.com/@u/video/7234567890123456789"))

	require.Len(t, resolver.requests, 1)
	assert.Equal(t, text, resolver.requests[0].RawInput)
	assert.Equal(t, PlatformTikTok, testClassify(resolver.requests[0].RawInput).Platform)
}

func TestDispatcher_FailureIsLocalized(t *testing.T) {
	frontend := newFakeFrontend()
	resolver := &fakeResolver{resolution: &Resolution{
		Failure: &Failure{Kind: ErrorKindRateLimited, Platform: PlatformTikTok},
	}}
	dispatcher, songs := newTestDispatcher(t, frontend, resolver)

	dispatcher.handleMessage(context.Background(), textMessage("https://vm.tiktok.com/x", "https://vm.tiktok.com/x"))

	assert.Equal(t, "TikTok is rate limiting me. Please try again in a minute.", frontend.edits["p1"])
	assert.Contains(t, frontend.reactions, chat.ReactionThumbsDown)
	assert.Empty(t, songs.played)
}

func TestDispatcher_ResolverErrorFallsBackToReply(t *testing.T) {
	frontend := newFakeFrontend()
	frontend.editErr = errors.New("message to edit not found")
	resolver := &fakeResolver{err: errors.New("database is locked")}
	dispatcher, _ := newTestDispatcher(t, frontend, resolver)

	dispatcher.handleMessage(context.Background(), textMessage("queen"))

	assert.Equal(t, "Something went wrong. Please try again.", frontend.lastText())
	assert.Equal(t, []string{"p1"}, frontend.deleted)
}

func TestDispatcher_VoiceAttachment(t *testing.T) {
	frontend := newFakeFrontend()
	frontend.fetched = []byte("OggS")
	resolver := &fakeResolver{resolution: &Resolution{
		Song:   &CanonicalSong{ID: 3, Title: "Song", Artist: "Artist"},
		Source: SourceRecognition,
	}}
	dispatcher, _, workspaces := newTestDispatcherWithWorkspaces(t, frontend, resolver)

	msg := textMessage("")
	msg.Attachment = &chat.Attachment{Kind: chat.AttachmentVoice, FileID: "f1", FileName: "voice.ogg"}
	dispatcher.handleMessage(context.Background(), msg)

	require.Len(t, resolver.requests, 1)
	req := resolver.requests[0]
	assert.Equal(t, InputKindFile, req.Kind)
	assert.Equal(t, HintVoice, req.Hint)
	assert.Equal(t, "voice.ogg", filepath.Base(req.RawInput))
	require.Len(t, workspaces.dirs, 1, "uploads are fetched into a managed workspace")
	assert.Equal(t, workspaces.dirs[0], filepath.Dir(req.RawInput))
	assert.NoDirExists(t, workspaces.dirs[0])
	assert.Equal(t, []bool{true}, resolver.uploads, "upload must exist during resolution")
	assert.NoFileExists(t, req.RawInput, "upload directory must be removed afterwards")

	assert.Equal(t, "🎧 Listening...", frontend.texts[0].text)
	assert.Equal(t, "🎧 Recognized: Artist - Song", frontend.edits["p1"])
}

func TestDispatcher_AttachmentFetchFailure(t *testing.T) {
	frontend := newFakeFrontend()
	frontend.fetchErr = errors.New("file is too big")
	resolver := &fakeResolver{}
	dispatcher, _ := newTestDispatcher(t, frontend, resolver)

	msg := textMessage("")
	msg.Attachment = &chat.Attachment{Kind: chat.AttachmentVideo, FileID: "f1"}
	dispatcher.handleMessage(context.Background(), msg)

	assert.Empty(t, resolver.requests)
	assert.Equal(t, "I couldn't download your file. Please send it again.", frontend.lastText())
}

func TestAttachmentName(t *testing.T) {
	tests := []struct {
		name       string
		attachment *chat.Attachment
		expected   string
	}{
		{"File name kept", &chat.Attachment{Kind: chat.AttachmentAudio, FileName: "song.mp3"}, "song.mp3"},
		{"Directories dropped", &chat.Attachment{Kind: chat.AttachmentAudio, FileName: "../../etc/song.mp3"}, "song.mp3"},
		{"Missing name uses kind", &chat.Attachment{Kind: chat.AttachmentVoice}, "voice"},
		{"Parent reference uses kind", &chat.Attachment{Kind: chat.AttachmentVideo, FileName: ".."}, "video"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := attachmentName(tt.attachment); got != tt.expected {
				t.Errorf("attachmentName() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDispatcher_Commands(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		contains string
	}{
		{"Help", "/help", "/search"},
		{"Start with mention", "/start@songbird_bot", "/search"},
		{"Search without query", "/search", "Usage: /search"},
		{"Unknown command", "/dance", "Send me a link"},
		{"Empty message", "   ", "Send me a link"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frontend := newFakeFrontend()
			resolver := &fakeResolver{}
			dispatcher, _ := newTestDispatcher(t, frontend, resolver)

			dispatcher.handleMessage(context.Background(), textMessage(tt.text))

			assert.Contains(t, frontend.lastText(), tt.contains)
			assert.Empty(t, resolver.requests)
		})
	}
}

func TestDispatcher_SearchListsCandidates(t *testing.T) {
	frontend := newFakeFrontend()
	resolver := &fakeResolver{candidates: []SearchCandidate{
		{Title: "Queen – Bohemian Rhapsody (Official Video)", Channel: "Queen Official", Duration: 359 * time.Second},
		{Title: "Bohemian Rhapsody (Live Aid)", Channel: "Queen Official"},
	}}
	dispatcher, _ := newTestDispatcher(t, frontend, resolver)

	dispatcher.handleMessage(context.Background(), textMessage("/search bohemian rhapsody"))

	expected := "Results for \"bohemian rhapsody\":\n" +
		"1. Queen – Bohemian Rhapsody (Official Video) (Queen Official) [5:59]\n" +
		"2. Bohemian Rhapsody (Live Aid) (Queen Official)"
	assert.Equal(t, expected, frontend.lastText())
}

func TestDispatcher_SearchWithoutResults(t *testing.T) {
	frontend := newFakeFrontend()
	resolver := &fakeResolver{kind: ErrorKindNetwork}
	dispatcher, _ := newTestDispatcher(t, frontend, resolver)

	dispatcher.handleMessage(context.Background(), textMessage("/search nothing"))

	assert.Equal(t, "YouTube search is not reachable right now. Please try again later.", frontend.lastText())
}

func TestDispatcher_FloodLimit(t *testing.T) {
	frontend := newFakeFrontend()
	resolver := &fakeResolver{}
	dispatcher, _ := newTestDispatcher(t, frontend, resolver)
	dispatcher.limiter = &fakeLimiter{allowed: false}

	dispatcher.handleMessage(context.Background(), textMessage("queen"))

	assert.Empty(t, resolver.requests)
	assert.Equal(t, "⏳ Slow down a little. Try again in 2 seconds.", frontend.lastText())

	dispatcher.handleMessage(context.Background(), textMessage("/help"))
	assert.Contains(t, frontend.lastText(), "/search", "help is not rate limited")
}

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	frontend := newFakeFrontend()
	dispatcher, _ := newTestDispatcher(t, frontend, &fakeResolver{panics: true})

	assert.NotPanics(t, func() {
		dispatcher.handleMessage(context.Background(), textMessage("queen"))
	})
	assert.Equal(t, "Something went wrong. Please try again.", frontend.lastText())
}

func TestDispatcher_StartWaitsForMessages(t *testing.T) {
	frontend := newFakeFrontend()
	frontend.messages = []*chat.Message{textMessage("/help"), textMessage("/help")}
	dispatcher, _ := newTestDispatcher(t, frontend, &fakeResolver{})

	require.NoError(t, dispatcher.Start(context.Background()))
	assert.Len(t, frontend.texts, 2)
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		input   string
		command string
		args    string
	}{
		{"/search queen  ", "/search", "queen"},
		{"/Search@songbird_bot bad guy", "/search", "bad guy"},
		{"/help", "/help", ""},
		{"just text", "", "just text"},
	}

	for _, tt := range tests {
		command, args := splitCommand(tt.input)
		assert.Equal(t, tt.command, command, tt.input)
		assert.Equal(t, tt.args, args, tt.input)
	}
}
