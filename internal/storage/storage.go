// Package storage persists generated media (images, audio, video) referenced
// from conversation turns. It defines the Storage interface (port) and
// implementations for local disk and an S3 mirror.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// Errors returned by Storage implementations.
var (
	// ErrInvalidKey is returned for empty keys or keys escaping the storage root.
	ErrInvalidKey = errors.New("storage: invalid key")
	// ErrNotFound is returned when a key has no stored object.
	ErrNotFound = errors.New("storage: object not found")
)

// Object describes a stored file.
type Object struct {
	// Key is the canonical slash-separated key relative to the storage root.
	Key string
	// Path is the local file path.
	Path string
	// URL is set when the object was mirrored to remote storage.
	URL  string
	Size int64
}

// Storage defines the interface for media storage.
type Storage interface {
	// Save stores data under key, replacing any existing object.
	Save(ctx context.Context, key string, data io.Reader) (Object, error)

	// Open returns a reader for the object stored under key.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the given keys. It continues even if some removals
	// fail, returning the first error encountered.
	Delete(ctx context.Context, keys []string) error
}

// Media kinds stored under a conversation.
const (
	KindImages = "images"
	KindAudio  = "audio"
	KindVideos = "videos"
)

// MediaKey builds the key for a conversation attachment, e.g.
// "conversations/{id}/videos/vid123.mp4".
func MediaKey(conversationID, kind, fileName string) string {
	return strings.Join([]string{"conversations", conversationID, kind, fileName}, "/")
}

// AttachmentKey is MediaKey for untrusted input. kind must be one of the
// media kinds and the other parts single path elements, otherwise
// ErrInvalidKey is returned.
func AttachmentKey(conversationID, kind, fileName string) (string, error) {
	switch kind {
	case KindImages, KindAudio, KindVideos:
	default:
		return "", ErrInvalidKey
	}
	for _, part := range []string{conversationID, fileName} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, "/\\") {
			return "", ErrInvalidKey
		}
	}
	return MediaKey(conversationID, kind, fileName), nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(key)))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
