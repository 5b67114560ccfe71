// Package telegram provides Telegram Bot API integration using go-telegram/bot library.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf16"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"songbird/internal/chat"
)

const (
	entityTypeURL      = "url"
	chatTypeGroup      = "group"
	chatTypeSuperGroup = "supergroup"
	// maxDownloadBytes is the Bot API limit for getFile downloads.
	maxDownloadBytes = 20 << 20
)

var (
	errDisabled     = errors.New("telegram frontend is disabled")
	errNoAttachment = errors.New("message has no attachment")
	errFileTooLarge = errors.New("attachment exceeds download limit")
	errNotStarted   = errors.New("telegram frontend not started")
)

// Config holds Telegram-specific configuration
type Config struct {
	BotToken string
	GroupID  int64 // Restricts the bot to one chat; 0 accepts every chat
	Enabled  bool
}

// Frontend implements the chat.Frontend interface for Telegram
type Frontend struct {
	config     *Config
	logger     *zap.Logger
	bot        *bot.Bot
	httpClient *http.Client
	options    []bot.Option

	messageHandler func(*chat.Message)
}

// NewFrontend creates a new Telegram frontend. Extra bot options are applied
// after the defaults.
func NewFrontend(config *Config, logger *zap.Logger, options ...bot.Option) *Frontend {
	return &Frontend{
		config:     config,
		logger:     logger.Named("telegram"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		options:    options,
	}
}

// Start creates the bot client and verifies access to the configured group.
func (f *Frontend) Start(ctx context.Context) error {
	if !f.config.Enabled {
		f.logger.Info("Telegram frontend is disabled, skipping initialization")
		return nil
	}

	f.logger.Info("Starting Telegram frontend", zap.Int64("group_id", f.config.GroupID))

	opts := append([]bot.Option{bot.WithDefaultHandler(f.handleUpdate)}, f.options...)

	b, err := bot.New(f.config.BotToken, opts...)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}

	f.bot = b

	if f.config.GroupID != 0 {
		if err := f.verifyGroupAccess(ctx); err != nil {
			return fmt.Errorf("failed to verify group access: %w", err)
		}
	}

	f.logger.Info("Telegram frontend started successfully")
	return nil
}

// Listen polls for updates until ctx is cancelled.
func (f *Frontend) Listen(ctx context.Context, handler func(*chat.Message)) error {
	if !f.config.Enabled {
		return nil
	}
	if f.bot == nil {
		return errNotStarted
	}

	f.messageHandler = handler
	f.bot.Start(ctx)

	return nil
}

// SendText sends a text message to the specified chat, optionally as a reply
func (f *Frontend) SendText(ctx context.Context, chatID, replyToID, text string) (string, error) {
	if !f.config.Enabled {
		return "", errDisabled
	}

	chatIDInt, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}

	params := &bot.SendMessageParams{
		ChatID: chatIDInt,
		Text:   text,
	}

	disabled := true
	params.LinkPreviewOptions = &models.LinkPreviewOptions{
		IsDisabled: &disabled,
	}

	if params.ReplyParameters, err = replyParameters(replyToID); err != nil {
		return "", err
	}

	msg, err := f.bot.SendMessage(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	return strconv.Itoa(msg.ID), nil
}

// EditMessage replaces the text of a message sent earlier
func (f *Frontend) EditMessage(ctx context.Context, chatID, messageID, text string) error {
	if !f.config.Enabled {
		return errDisabled
	}

	chatIDInt, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	msgID, err := parseMessageID(messageID)
	if err != nil {
		return err
	}

	if _, err := f.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatIDInt,
		MessageID: msgID,
		Text:      text,
	}); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}

	return nil
}

// DeleteMessage deletes a message by its ID
func (f *Frontend) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	if !f.config.Enabled {
		return errDisabled
	}

	chatIDInt, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	msgID, err := parseMessageID(messageID)
	if err != nil {
		return err
	}

	if _, err := f.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatIDInt,
		MessageID: msgID,
	}); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}

// React adds an emoji reaction to a message. Chats without reaction support
// are not an error.
func (f *Frontend) React(ctx context.Context, chatID, messageID string, r chat.Reaction) error {
	if !f.config.Enabled {
		return errDisabled
	}

	chatIDInt, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	msgID, err := parseMessageID(messageID)
	if err != nil {
		return err
	}

	_, err = f.bot.SetMessageReaction(ctx, &bot.SetMessageReactionParams{
		ChatID:    chatIDInt,
		MessageID: msgID,
		Reaction: []models.ReactionType{
			{
				Type: models.ReactionTypeTypeEmoji,
				ReactionTypeEmoji: &models.ReactionTypeEmoji{
					Emoji: string(r),
				},
			},
		},
	})
	if err != nil {
		f.logger.Debug("Failed to set reaction, reactions may not be supported", zap.Error(err))
	}

	return nil
}

// SendAudio uploads a local audio file as a reply with track metadata.
func (f *Frontend) SendAudio(ctx context.Context, chatID, replyToID, path, title, performer string) error {
	if !f.config.Enabled {
		return errDisabled
	}

	chatIDInt, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	reply, err := replyParameters(replyToID)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open audio: %w", err)
	}
	defer func() { _ = file.Close() }()

	_, err = f.bot.SendAudio(ctx, &bot.SendAudioParams{
		ChatID:          chatIDInt,
		Audio:           &models.InputFileUpload{Filename: filepath.Base(path), Data: file},
		Title:           title,
		Performer:       performer,
		ReplyParameters: reply,
	})
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}

	return nil
}

// FetchAttachment downloads the attachment of msg to dst through the Bot API
// file endpoint.
func (f *Frontend) FetchAttachment(ctx context.Context, msg *chat.Message, dst string) error {
	if !f.config.Enabled {
		return errDisabled
	}
	if msg.Attachment == nil {
		return errNoAttachment
	}

	file, err := f.bot.GetFile(ctx, &bot.GetFileParams{FileID: msg.Attachment.FileID})
	if err != nil {
		return fmt.Errorf("failed to get file: %w", err)
	}
	if file.FileSize > maxDownloadBytes {
		return errFileTooLarge
	}

	return f.download(ctx, f.bot.FileDownloadLink(file), dst)
}

func (f *Frontend) download(ctx context.Context, link, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, io.LimitReader(resp.Body, maxDownloadBytes+1)); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write attachment: %w", err)
	}

	return out.Close()
}

// handleUpdate processes incoming Telegram updates
func (f *Frontend) handleUpdate(_ context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	message := f.toMessage(update.Message)
	if message == nil || f.messageHandler == nil {
		return
	}

	f.messageHandler(message)
}

// toMessage converts a Telegram message, dropping messages from bots and
// from chats other than the configured group.
func (f *Frontend) toMessage(msg *models.Message) *chat.Message {
	if f.config.GroupID != 0 && msg.Chat.ID != f.config.GroupID {
		return nil
	}

	if msg.From == nil || msg.From.IsBot {
		return nil
	}

	text := msg.Text
	entities := msg.Entities
	if text == "" {
		text = msg.Caption
		entities = msg.CaptionEntities
	}

	return &chat.Message{
		ID:         strconv.Itoa(msg.ID),
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		SenderName: getUserDisplayName(msg.From),
		Text:       text,
		URLs:       extractURLs(text, entities),
		IsGroup:    msg.Chat.Type == chatTypeGroup || msg.Chat.Type == chatTypeSuperGroup,
		Attachment: attachmentOf(msg),
		Raw:        msg,
	}
}

func attachmentOf(msg *models.Message) *chat.Attachment {
	switch {
	case msg.Voice != nil:
		return &chat.Attachment{
			Kind:     chat.AttachmentVoice,
			FileID:   msg.Voice.FileID,
			FileName: "voice.ogg",
			Duration: seconds(msg.Voice.Duration),
		}
	case msg.Audio != nil:
		return &chat.Attachment{
			Kind:     chat.AttachmentAudio,
			FileID:   msg.Audio.FileID,
			FileName: msg.Audio.FileName,
			Duration: seconds(msg.Audio.Duration),
		}
	case msg.Video != nil:
		return &chat.Attachment{
			Kind:     chat.AttachmentVideo,
			FileID:   msg.Video.FileID,
			FileName: msg.Video.FileName,
			Duration: seconds(msg.Video.Duration),
		}
	case msg.VideoNote != nil:
		return &chat.Attachment{
			Kind:     chat.AttachmentVideoNote,
			FileID:   msg.VideoNote.FileID,
			FileName: "video_note.mp4",
			Duration: seconds(msg.VideoNote.Duration),
		}
	}
	return nil
}

// verifyGroupAccess checks if the bot has access to the configured group
func (f *Frontend) verifyGroupAccess(ctx context.Context) error {
	chat, err := f.bot.GetChat(ctx, &bot.GetChatParams{
		ChatID: f.config.GroupID,
	})
	if err != nil {
		return fmt.Errorf("cannot access group %d: %w", f.config.GroupID, err)
	}

	f.logger.Info("Bot has access to group",
		zap.String("group_title", chat.Title),
		zap.String("group_type", string(chat.Type)))

	return nil
}

// extractURLs extracts URLs from message entities. Entity offsets count
// UTF-16 code units.
func extractURLs(text string, entities []models.MessageEntity) []string {
	var urls []string
	units := utf16.Encode([]rune(text))

	for _, entity := range entities {
		if entity.Type != entityTypeURL {
			continue
		}
		if entity.Offset < 0 || entity.Offset+entity.Length > len(units) {
			continue
		}
		urls = append(urls, string(utf16.Decode(units[entity.Offset:entity.Offset+entity.Length])))
	}

	return urls
}

// getUserDisplayName creates a display name for the user
func getUserDisplayName(user *models.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}

	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}

	return name
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat ID: %w", err)
	}
	return id, nil
}

func parseMessageID(messageID string) (int, error) {
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return 0, fmt.Errorf("invalid message ID: %w", err)
	}
	return id, nil
}

func replyParameters(replyToID string) (*models.ReplyParameters, error) {
	if replyToID == "" {
		return nil, nil
	}

	msgID, err := strconv.Atoi(replyToID)
	if err != nil {
		return nil, fmt.Errorf("invalid reply message ID: %w", err)
	}
	return &models.ReplyParameters{MessageID: msgID}, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
