// Package docstore provides the remote document store: JSON documents
// addressed by slash-separated paths, with read, write and push
// subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Read when no document exists at the path.
	ErrNotFound = errors.New("document not found")
	// ErrUnavailable wraps backend failures (connection, timeout, decode).
	ErrUnavailable = errors.New("document store unavailable")
	// ErrInvalidPath is returned for empty paths or paths with dot segments.
	ErrInvalidPath = errors.New("invalid document path")
)

// Store is the contract consumed by the login gate, the credential
// directory and the document endpoints.
type Store interface {
	Read(ctx context.Context, path string) (json.RawMessage, error)
	Write(ctx context.Context, path string, doc any) error
	// Subscribe calls fn with the new document after every write to path.
	// The returned function stops the subscription and is safe to call twice.
	Subscribe(path string, fn func(doc json.RawMessage)) (unsubscribe func())
}

// ReadInto reads the document at path and decodes it into out.
func ReadInto(ctx context.Context, s Store, path string, out any) error {
	raw, err := s.Read(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	return nil
}

// CleanPath trims surrounding slashes and rejects empty or dot segments.
func CleanPath(path string) (string, error) {
	p := strings.Trim(strings.TrimSpace(path), "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return p, nil
}

func encode(path string, doc any) ([]byte, error) {
	if raw, ok := doc.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("encode %s: invalid JSON", path)
		}
		return raw, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	return data, nil
}
