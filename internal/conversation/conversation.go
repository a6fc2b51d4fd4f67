// Package conversation persists chat conversations as one JSON document per
// conversation plus an index document used for listing.
package conversation

import (
	"context"
	"errors"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageType describes the content of a turn.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeAudio MessageType = "audio"
	TypeVideo MessageType = "video"
	TypeError MessageType = "error"
)

// Errors returned by stores.
var (
	ErrConversationNotFound = errors.New("conversation: not found")
	ErrEmptyName            = errors.New("conversation: name must not be empty")
)

// Message is one conversation turn. Media turns reference a stored file
// through Path and, when mirrored, URL.
type Message struct {
	Role     Role        `json:"role"`
	Content  string      `json:"content"`
	At       int64       `json:"at"`
	Type     MessageType `json:"type"`
	Path     string      `json:"path,omitempty"`
	URL      string      `json:"url,omitempty"`
	Filename string      `json:"filename,omitempty"`
	MIMEType string      `json:"mimeType,omitempty"`
}

// Attachment points a turn at stored media.
type Attachment struct {
	Path     string
	URL      string
	Filename string
	MIMEType string
}

// Summary is an index entry.
type Summary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Conversation is a full conversation document. Timestamps are Unix milliseconds.
type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// Summary returns the index entry for c.
func (c *Conversation) Summary() Summary {
	return Summary{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

// Store is the conversation persistence port.
type Store interface {
	// List returns all conversations, most recently updated first.
	List(ctx context.Context) ([]Summary, error)
	// Create makes a new empty conversation. An empty name gets a timestamped default.
	Create(ctx context.Context, name string) (*Conversation, error)
	// Load returns the conversation with id or ErrConversationNotFound.
	Load(ctx context.Context, id string) (*Conversation, error)
	// AppendMessage persists a text turn and updates conv in place.
	AppendMessage(ctx context.Context, conv *Conversation, role Role, content string, typ MessageType) error
	// AppendAttachment persists a turn referencing stored media and updates conv in place.
	AppendAttachment(ctx context.Context, conv *Conversation, role Role, content string, typ MessageType, att Attachment) error
	// Rename changes a conversation's name.
	Rename(ctx context.Context, id, name string) (*Conversation, error)
}
