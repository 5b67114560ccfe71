package core

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"songbird/internal/chat"
	"songbird/internal/i18n"
)

const (
	commandStart  = "/start"
	commandHelp   = "/help"
	commandSearch = "/search"
)

// Resolver is the part of the Orchestrator the dispatcher talks to.
type Resolver interface {
	Resolve(ctx context.Context, req ResolutionRequest) (*Resolution, error)
	Candidates(ctx context.Context, query string, n int) ([]SearchCandidate, ErrorKind)
}

// RateLimiter decides whether a user may send another request.
type RateLimiter interface {
	Allow(chatID, userID string) (bool, time.Duration)
}

// Dispatcher handles messages from any chat frontend using the unified interface.
type Dispatcher struct {
	config     *Config
	frontend   chat.Frontend
	resolver   Resolver
	workspaces WorkspaceProvider
	songs      SongRepository
	limiter    RateLimiter
	localizer  *i18n.Localizer
	logger     *zap.Logger

	inflight sync.WaitGroup
}

// NewDispatcher creates a new dispatcher with the provided chat frontend.
func NewDispatcher(
	config *Config,
	frontend chat.Frontend,
	resolver Resolver,
	workspaces WorkspaceProvider,
	songs SongRepository,
	limiter RateLimiter,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		config:     config,
		frontend:   frontend,
		resolver:   resolver,
		workspaces: workspaces,
		songs:      songs,
		limiter:    limiter,
		localizer:  i18n.NewLocalizer(config.App.Language),
		logger:     logger.Named("dispatcher"),
	}
}

// Start starts the frontend and handles messages until ctx is cancelled.
// Messages are processed concurrently; Start returns once all of them have
// finished.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("Starting message dispatcher")

	if err := d.frontend.Start(ctx); err != nil {
		return fmt.Errorf("failed to start chat frontend: %w", err)
	}

	err := d.frontend.Listen(ctx, func(msg *chat.Message) {
		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			d.handleMessage(ctx, msg)
		}()
	})

	d.inflight.Wait()
	d.logger.Info("Message dispatcher stopped")
	return err
}

// handleMessage routes one message. A panic is logged and answered with a
// generic error rather than taking the process down.
func (d *Dispatcher) handleMessage(ctx context.Context, msg *chat.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic while handling message",
				zap.String("messageID", msg.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			d.reply(ctx, msg, d.localizer.T("error.generic"))
		}
	}()

	d.logger.Debug("Received message",
		zap.String("messageID", msg.ID),
		zap.String("sender", msg.SenderName),
		zap.String("text", msg.Text),
		zap.Strings("urls", msg.URLs),
		zap.Bool("attachment", msg.Attachment != nil))

	text := strings.TrimSpace(msg.Text)
	command, args := splitCommand(text)

	switch command {
	case commandStart, commandHelp:
		d.reply(ctx, msg, d.localizer.T("bot.help"))
		return
	}

	if !d.admit(ctx, msg) {
		return
	}

	switch {
	case command == commandSearch:
		d.handleSearch(ctx, msg, args)
	case msg.Attachment != nil:
		d.handleAttachment(ctx, msg)
	case text != "" && !strings.HasPrefix(text, "/"):
		// The whole text goes through, so a platform link after an unrelated
		// one is still found.
		d.resolve(ctx, msg, ResolutionRequest{RawInput: text, Kind: InputKindURL}, d.localizer.T("prompt.working"))
	default:
		d.reply(ctx, msg, d.localizer.T("error.unsupported_input"))
	}
}

// admit applies the flood limit and tells the user how long to wait.
func (d *Dispatcher) admit(ctx context.Context, msg *chat.Message) bool {
	if d.limiter == nil {
		return true
	}

	allowed, retryAfter := d.limiter.Allow(msg.ChatID, msg.SenderID)
	if allowed {
		return true
	}

	d.logger.Info("Flood limit reached",
		zap.String("sender", msg.SenderID),
		zap.Duration("retry_after", retryAfter))
	d.reply(ctx, msg, d.localizer.T("error.flood", int(math.Ceil(retryAfter.Seconds()))))
	return false
}

func (d *Dispatcher) handleSearch(ctx context.Context, msg *chat.Message, query string) {
	if query == "" {
		d.reply(ctx, msg, d.localizer.T("prompt.search_usage"))
		return
	}

	candidates, kind := d.resolver.Candidates(ctx, query, 0)
	if len(candidates) == 0 {
		if kind == ErrorKindNone {
			kind = ErrorKindNotFound
		}
		d.reply(ctx, msg, d.failureText(&Failure{Kind: kind, Platform: PlatformQuery}))
		return
	}

	d.reply(ctx, msg, d.formatCandidates(query, candidates))
}

func (d *Dispatcher) formatCandidates(query string, candidates []SearchCandidate) string {
	var b strings.Builder
	b.WriteString(d.localizer.T("prompt.search_results", query))

	for i, candidate := range candidates {
		b.WriteString("\n")
		b.WriteString(d.localizer.T("format.candidate", i+1, candidate.Title, candidate.Channel))
		if candidate.Duration > 0 {
			b.WriteString(d.localizer.T("format.duration", formatDuration(candidate.Duration)))
		}
	}

	return b.String()
}

// handleAttachment downloads an uploaded file into a workspace and resolves
// it. The workspace is removed when resolution ends, or swept after a crash.
func (d *Dispatcher) handleAttachment(ctx context.Context, msg *chat.Message) {
	err := d.workspaces.With(ctx, func(ws Workspace) error {
		dst, err := ws.Path(attachmentName(msg.Attachment))
		if err != nil {
			return err
		}

		if err := d.frontend.FetchAttachment(ctx, msg, dst); err != nil {
			d.logger.Warn("Failed to fetch attachment",
				zap.String("messageID", msg.ID),
				zap.String("kind", string(msg.Attachment.Kind)),
				zap.Error(err))
			d.reply(ctx, msg, d.localizer.T("error.attachment"))
			return nil
		}

		req := ResolutionRequest{RawInput: dst, Kind: InputKindFile}
		prompt := d.localizer.T("prompt.working")
		if msg.Attachment.Kind == chat.AttachmentVoice {
			req.Hint = HintVoice
			prompt = d.localizer.T("prompt.listening")
		}

		d.resolve(ctx, msg, req, prompt)
		return nil
	})
	if err != nil {
		d.logger.Error("Failed to prepare upload workspace", zap.Error(err))
		d.reply(ctx, msg, d.localizer.T("error.generic"))
	}
}

// resolve runs the pipeline for msg, keeping the user informed through a
// progress message that is replaced by the outcome.
func (d *Dispatcher) resolve(ctx context.Context, msg *chat.Message, req ResolutionRequest, prompt string) {
	req.Requester = msg.SenderID
	req.MessageID = msg.ChatID + ":" + msg.ID

	if err := d.frontend.React(ctx, msg.ChatID, msg.ID, chat.ReactionEyes); err != nil {
		d.logger.Debug("Failed to add processing reaction", zap.Error(err))
	}

	progressID, err := d.frontend.SendText(ctx, msg.ChatID, msg.ID, prompt)
	if err != nil {
		d.logger.Debug("Failed to send progress message", zap.Error(err))
	}

	resolution, err := d.resolver.Resolve(ctx, req)
	switch {
	case err != nil:
		d.logger.Error("Failed to resolve request",
			zap.String("messageID", msg.ID),
			zap.Error(err))
		d.finish(ctx, msg, progressID, d.localizer.T("error.generic"))
		d.react(ctx, msg, chat.ReactionThumbsDown)

	case resolution.Failure != nil:
		d.finish(ctx, msg, progressID, d.failureText(resolution.Failure))
		d.react(ctx, msg, chat.ReactionThumbsDown)

	default:
		d.deliver(ctx, msg, progressID, resolution)
		d.react(ctx, msg, chat.ReactionThumbsUp)
	}
}

// deliver announces a resolved song and uploads its audio when the library
// keeps it on local disk.
func (d *Dispatcher) deliver(ctx context.Context, msg *chat.Message, progressID string, resolution *Resolution) {
	song := resolution.Song

	key := "success.song"
	switch {
	case resolution.Reused:
		key = "success.song_reused"
	case resolution.Source == SourceRecognition:
		key = "success.recognized"
	}
	d.finish(ctx, msg, progressID, d.localizer.T(key, song.Artist, song.Title))

	if info, err := os.Stat(song.FilePath); err == nil && info.Mode().IsRegular() {
		if err := d.frontend.SendAudio(ctx, msg.ChatID, msg.ID, song.FilePath, song.Title, song.Artist); err != nil {
			d.logger.Warn("Failed to send audio",
				zap.Int64("songID", song.ID),
				zap.Error(err))
			return
		}
	}

	if d.songs == nil {
		return
	}
	if err := d.songs.MarkPlayed(ctx, song.ID); err != nil {
		d.logger.Warn("Failed to mark song as played", zap.Int64("songID", song.ID), zap.Error(err))
	}
}

// finish replaces the progress message with text. When the edit fails the
// progress message is removed and text is sent as a reply.
func (d *Dispatcher) finish(ctx context.Context, msg *chat.Message, progressID, text string) {
	if progressID != "" {
		err := d.frontend.EditMessage(ctx, msg.ChatID, progressID, text)
		if err == nil {
			return
		}
		d.logger.Debug("Failed to edit progress message", zap.Error(err))

		if err := d.frontend.DeleteMessage(ctx, msg.ChatID, progressID); err != nil {
			d.logger.Debug("Failed to delete progress message", zap.Error(err))
		}
	}
	d.reply(ctx, msg, text)
}

func (d *Dispatcher) reply(ctx context.Context, msg *chat.Message, text string) {
	if _, err := d.frontend.SendText(ctx, msg.ChatID, msg.ID, text); err != nil {
		d.logger.Warn("Failed to send reply", zap.String("messageID", msg.ID), zap.Error(err))
	}
}

func (d *Dispatcher) react(ctx context.Context, msg *chat.Message, r chat.Reaction) {
	if err := d.frontend.React(ctx, msg.ChatID, msg.ID, r); err != nil {
		d.logger.Debug("Failed to add reaction", zap.Error(err))
	}
}

func (d *Dispatcher) failureText(failure *Failure) string {
	return d.localizer.T("failure."+string(failure.Kind), d.localizer.T("platform."+string(failure.Platform)))
}

// splitCommand separates a leading bot command from its arguments. Commands
// addressed to a bot ("/search@songbird_bot") lose the mention.
func splitCommand(text string) (command, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	command, args, _ = strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command), strings.TrimSpace(args)
}

func attachmentName(attachment *chat.Attachment) string {
	name := filepath.Base(attachment.FileName)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		name = string(attachment.Kind)
	}
	return name
}

func formatDuration(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
