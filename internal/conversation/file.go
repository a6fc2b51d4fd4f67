package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	conversationsDir = "conversations"
	indexFile        = "conversations.index.json"
)

type index struct {
	Conversations []Summary `json:"conversations"`
}

// FileStore implements Store on the local filesystem:
//
//	{dataDir}/conversations/{id}.json
//	{dataDir}/conversations.index.json
//
// Every document write is paired with an index update under one mutex, and
// both files are replaced by write-temp-then-rename.
type FileStore struct {
	mu      sync.Mutex
	dataDir string
	now     func() time.Time
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock replaces time.Now, typically in tests.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewFileStore creates a FileStore rooted at dataDir, creating directories as needed.
func NewFileStore(dataDir string, opts ...Option) (*FileStore, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(filepath.Join(dataDir, conversationsDir), 0750); err != nil {
		return nil, fmt.Errorf("conversation: create data directory: %w", err)
	}
	s := &FileStore{dataDir: dataDir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns all conversations, most recently updated first.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	idx := s.readIndex()
	s.mu.Unlock()

	out := idx.Conversations
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt > out[j].UpdatedAt
	})
	return out, nil
}

// Create makes a new conversation.
func (s *FileStore) Create(ctx context.Context, name string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Conversation " + now.Format("2006-01-02 15:04:05")
	}

	ts := now.UnixMilli()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: ts,
		UpdatedAt: ts,
		Messages:  []Message{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Load returns the conversation with id.
func (s *FileStore) Load(ctx context.Context, id string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

// AppendMessage persists a text turn.
func (s *FileStore) AppendMessage(ctx context.Context, conv *Conversation, role Role, content string, typ MessageType) error {
	return s.AppendAttachment(ctx, conv, role, content, typ, Attachment{})
}

// AppendAttachment persists a turn. The stored document is reloaded under the
// lock so turns appended through another copy of conv are never lost; conv is
// then refreshed from it.
func (s *FileStore) AppendAttachment(ctx context.Context, conv *Conversation, role Role, content string, typ MessageType, att Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if typ == "" {
		typ = TypeText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(conv.ID)
	if err != nil {
		return err
	}

	ts := s.now().UnixMilli()
	stored.Messages = append(stored.Messages, Message{
		Role:     role,
		Content:  content,
		At:       ts,
		Type:     typ,
		Path:     att.Path,
		URL:      att.URL,
		Filename: att.Filename,
		MIMEType: att.MIMEType,
	})
	stored.UpdatedAt = ts

	if err := s.save(stored); err != nil {
		return err
	}
	*conv = *stored
	return nil
}

// Rename changes a conversation's name.
func (s *FileStore) Rename(ctx context.Context, id, name string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.load(id)
	if err != nil {
		return nil, err
	}
	conv.Name = name
	conv.UpdatedAt = s.now().UnixMilli()
	if err := s.save(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *FileStore) docPath(id string) string {
	return filepath.Join(s.dataDir, conversationsDir, id+".json")
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dataDir, indexFile)
}

// load must be called with mu held.
func (s *FileStore) load(id string) (*Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrConversationNotFound
	}
	data, err := os.ReadFile(s.docPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: read %s: %w", id, err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("conversation: decode %s: %w", id, err)
	}
	if conv.Messages == nil {
		conv.Messages = []Message{}
	}
	return &conv, nil
}

// save writes the document, then its index entry. It must be called with mu held.
func (s *FileStore) save(conv *Conversation) error {
	if err := writeJSONAtomic(s.docPath(conv.ID), conv); err != nil {
		return fmt.Errorf("conversation: write %s: %w", conv.ID, err)
	}

	idx := s.readIndex()
	found := false
	for i := range idx.Conversations {
		if idx.Conversations[i].ID == conv.ID {
			idx.Conversations[i] = conv.Summary()
			found = true
			break
		}
	}
	if !found {
		idx.Conversations = append(idx.Conversations, conv.Summary())
	}

	if err := writeJSONAtomic(s.indexPath(), idx); err != nil {
		return fmt.Errorf("conversation: write index: %w", err)
	}
	return nil
}

// readIndex treats a missing or unreadable index as empty.
func (s *FileStore) readIndex() index {
	var idx index
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		return index{Conversations: []Summary{}}
	}
	if err := json.Unmarshal(data, &idx); err != nil || idx.Conversations == nil {
		return index{Conversations: []Summary{}}
	}
	return idx
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

var _ Store = (*FileStore)(nil)
