package interview

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/prism/internal/store"
)

const activeSessionField = "session_id"

// Journal persists sessions to the document store and mirrors them to the local
// progress snapshot.
type Journal struct {
	store        store.Store
	snapshotPath string
	logger       *zap.Logger
}

// NewJournal builds a Journal. An empty snapshotPath disables the snapshot file.
func NewJournal(st store.Store, snapshotPath string, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{store: st, snapshotPath: snapshotPath, logger: logger}
}

// Save writes the session, points sessions/active at it and refreshes the snapshot.
func (j *Journal) Save(ctx context.Context, s *Session) error {
	doc, err := store.ToDocument(s)
	if err != nil {
		return err
	}
	if err := j.store.Set(ctx, store.CollectionSessions, s.ID, doc); err != nil {
		return fmt.Errorf("store session %s: %w", s.ID, err)
	}
	if err := j.store.Set(ctx, store.CollectionSessions, store.ActiveSessionID, store.Document{activeSessionField: s.ID}); err != nil {
		return fmt.Errorf("store active session pointer: %w", err)
	}

	if j.snapshotPath != "" {
		if err := writeSnapshot(j.snapshotPath, newSnapshot(s)); err != nil {
			return err
		}
	}
	return nil
}

// Load finds a session by id, or the active session when id is empty or names
// the active pointer itself. When the store has nothing the snapshot is used if
// it matches.
func (j *Journal) Load(ctx context.Context, id string) (*Session, error) {
	lookup := id
	if lookup == store.ActiveSessionID {
		lookup = ""
	}
	if lookup == "" {
		pointer, err := j.store.Get(ctx, store.CollectionSessions, store.ActiveSessionID)
		switch {
		case err == nil:
			lookup, _ = pointer[activeSessionField].(string)
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("load active session pointer: %w", err)
		}
	}

	if lookup != "" {
		doc, err := j.store.Get(ctx, store.CollectionSessions, lookup)
		if err == nil {
			return DecodeSession(doc)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load session %s: %w", lookup, err)
		}
	}

	return j.loadSnapshot(lookup)
}

func (j *Journal) loadSnapshot(id string) (*Session, error) {
	if j.snapshotPath == "" {
		return nil, store.ErrNotFound
	}

	sn, err := readSnapshot(j.snapshotPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if id != "" && sn.SessionID != id {
		j.logger.Debug("snapshot belongs to another session",
			zap.String("requested_id", id),
			zap.String("snapshot_id", sn.SessionID),
		)
		return nil, store.ErrNotFound
	}

	j.logger.Warn("session restored from local snapshot; answers may be truncated",
		zap.String("session_id", sn.SessionID),
		zap.String("path", j.snapshotPath),
	)
	return sn.session(), nil
}

// Complete stores the finished transcript under conversations/full_conversation,
// saves the completed session and clears the active pointer and the snapshot.
func (j *Journal) Complete(ctx context.Context, s *Session) error {
	doc, err := store.ToDocument(struct {
		Conversation []Turn `json:"conversation"`
	}{Conversation: s.Transcript})
	if err != nil {
		return err
	}
	if err := j.store.Set(ctx, store.CollectionConversations, store.ConversationID, doc); err != nil {
		return fmt.Errorf("store conversation: %w", err)
	}

	sessionDoc, err := store.ToDocument(s)
	if err != nil {
		return err
	}
	if err := j.store.Set(ctx, store.CollectionSessions, s.ID, sessionDoc); err != nil {
		return fmt.Errorf("store session %s: %w", s.ID, err)
	}
	if err := j.store.Delete(ctx, store.CollectionSessions, store.ActiveSessionID); err != nil {
		return fmt.Errorf("clear active session pointer: %w", err)
	}

	if j.snapshotPath != "" {
		return removeSnapshot(j.snapshotPath)
	}
	return nil
}

// LoadConversation returns the finished transcript stored by Complete.
func LoadConversation(ctx context.Context, st store.Store) ([]Turn, error) {
	doc, err := st.Get(ctx, store.CollectionConversations, store.ConversationID)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Conversation []Turn `json:"conversation"`
	}
	if err := decode(doc, &payload); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return payload.Conversation, nil
}

// DecodeSession converts a stored document back into a Session.
func DecodeSession(doc store.Document) (*Session, error) {
	var s Session
	if err := decode(doc, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.ID == "" {
		return nil, errors.New("decode session: missing id")
	}
	if s.Transcript == nil {
		s.Transcript = []Turn{}
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	return &s, nil
}

func decode(doc store.Document, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]any(doc))
}
