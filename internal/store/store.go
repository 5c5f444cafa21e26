// Package store persists JSON-like documents addressed by collection and id.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the document does not exist.
var ErrNotFound = errors.New("document not found")

// Collections and well-known ids used by prism.
const (
	CollectionSessions      = "sessions"
	CollectionConversations = "conversations"
	CollectionProfiles      = "profiles"

	ActiveSessionID  = "active"
	ConversationID   = "full_conversation"
	CurrentProfileID = "current_user"
)

// Document is a JSON object.
type Document map[string]any

// Store is a key-value document store. No multi-document transactions are offered.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, doc Document) error
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

// ToDocument converts any JSON-serializable value into a Document.
func ToDocument(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document is not a json object: %w", err)
	}
	return doc, nil
}

func validKey(collection, id string) error {
	if collection == "" || id == "" {
		return fmt.Errorf("collection and id are required (collection=%q id=%q)", collection, id)
	}
	return nil
}

func encode(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}
