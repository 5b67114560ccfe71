// Package chat provides the interface between chat front ends and the resolver.
package chat

import (
	"context"
	"time"
)

// AttachmentKind is the kind of media attached to a message.
type AttachmentKind string

const (
	AttachmentVoice     AttachmentKind = "voice"
	AttachmentAudio     AttachmentKind = "audio"
	AttachmentVideo     AttachmentKind = "video"
	AttachmentVideoNote AttachmentKind = "video_note"
)

// Attachment describes media sent with a message. The content is fetched on
// demand with Frontend.FetchAttachment.
type Attachment struct {
	Kind     AttachmentKind
	FileID   string
	FileName string
	Duration time.Duration
}

// Message represents a normalized chat message from any frontend
type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	SenderName string
	Text       string
	URLs       []string
	IsGroup    bool
	Attachment *Attachment
	Raw        any // underlying library message struct
}

// Reaction represents standard emoji reactions
type Reaction string

const (
	ReactionThumbsUp   Reaction = "👍"
	ReactionThumbsDown Reaction = "👎"
	ReactionEyes       Reaction = "👀"
)

// Frontend defines the unified interface for all chat integrations
type Frontend interface {
	// Start initializes the chat frontend
	Start(ctx context.Context) error

	// Listen blocks, calling handler for each incoming message until ctx is done
	Listen(ctx context.Context, handler func(*Message)) error

	// SendText sends a text message to the specified chat, optionally as a reply
	SendText(ctx context.Context, chatID, replyToID, text string) (string, error)

	// EditMessage replaces the text of a message sent earlier
	EditMessage(ctx context.Context, chatID, messageID, text string) error

	// DeleteMessage deletes a message by its ID
	DeleteMessage(ctx context.Context, chatID, messageID string) error

	// React adds an emoji reaction to a message
	React(ctx context.Context, chatID, messageID string, r Reaction) error

	// SendAudio uploads a local audio file with its track metadata
	SendAudio(ctx context.Context, chatID, replyToID, path, title, performer string) error

	// FetchAttachment downloads the attachment of msg to dst
	FetchAttachment(ctx context.Context, msg *Message, dst string) error
}
