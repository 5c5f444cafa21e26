package interview

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spigell/prism/internal/utils"
)

const (
	snapshotQuestionPrefix = 150
	snapshotAnswerPrefix   = 500
)

type snapshotTurn struct {
	Q     string `json:"q"`
	A     string `json:"a"`
	Phase string `json:"phase"`
}

// snapshot is the local progress file. It survives loss of the document store at
// the price of truncated turns.
type snapshot struct {
	SessionID string         `json:"session_id"`
	Cursor    Cursor         `json:"cursor"`
	Pending   string         `json:"pending,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
	Turns     []snapshotTurn `json:"turns"`
}

func newSnapshot(s *Session) snapshot {
	turns := make([]snapshotTurn, 0, len(s.Transcript))
	for _, t := range s.Transcript {
		turns = append(turns, snapshotTurn{
			Q:     utils.Prefix(t.Question, snapshotQuestionPrefix),
			A:     utils.Prefix(t.Answer, snapshotAnswerPrefix),
			Phase: t.Phase,
		})
	}
	return snapshot{
		SessionID: s.ID,
		Cursor:    s.Cursor,
		Pending:   s.Pending,
		UpdatedAt: s.UpdatedAt,
		Turns:     turns,
	}
}

func (sn snapshot) session() *Session {
	transcript := make([]Turn, 0, len(sn.Turns))
	for _, t := range sn.Turns {
		transcript = append(transcript, Turn{Question: t.Q, Answer: t.A, Phase: t.Phase})
	}
	return &Session{
		ID:         sn.SessionID,
		Cursor:     sn.Cursor,
		Pending:    sn.Pending,
		Transcript: transcript,
		Status:     StatusActive,
		UpdatedAt:  sn.UpdatedAt,
	}
}

// writeSnapshot replaces path atomically.
func writeSnapshot(path string, sn snapshot) error {
	data, err := json.MarshalIndent(sn, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", path, err)
	}
	return nil
}

// readSnapshot returns fs.ErrNotExist when there is no snapshot.
func readSnapshot(path string) (snapshot, error) {
	var sn snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return sn, err
	}
	if err := json.Unmarshal(data, &sn); err != nil {
		return sn, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if sn.SessionID == "" {
		return sn, fmt.Errorf("snapshot %s has no session id", path)
	}
	return sn, nil
}

func removeSnapshot(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot %s: %w", path, err)
	}
	return nil
}
