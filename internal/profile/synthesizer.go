// Package profile compresses a finished interview transcript into a structured
// JSON profile and keeps it in the document store.
package profile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/prism/internal/ai"
	"github.com/spigell/prism/internal/interview"
)

const (
	defaultChunkSize      = 10
	defaultMaxChunkTokens = 3000

	synthesisTemperature = 0.2
	purposeProfile       = "profile"

	systemPrompt = "You're a biographer extracting key user insights from interviews."
)

// ErrEmptyTranscript is returned when there is nothing to summarize.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Profile is the structured summary of an interview.
type Profile map[string]any

// Config controls how the transcript is split into prompts.
type Config struct {
	// PerPhase summarizes every phase separately and keys the profile by phase name.
	PerPhase       bool
	ChunkSize      int
	MaxChunkTokens int
}

// Synthesizer turns transcripts into profiles.
type Synthesizer struct {
	llm     ai.Completer
	cfg     Config
	counter Counter
	logger  *zap.Logger
}

// NewSynthesizer builds a synthesizer. counter may be nil, which disables the
// token budget and leaves only the turn count limit.
func NewSynthesizer(llm ai.Completer, cfg Config, counter Counter, logger *zap.Logger) *Synthesizer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MaxChunkTokens <= 0 {
		cfg.MaxChunkTokens = defaultMaxChunkTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{llm: llm, cfg: cfg, counter: counter, logger: logger}
}

// Synthesize builds a profile. Any unit whose output cannot be parsed fails the
// whole synthesis with ErrUnparseable.
func (s *Synthesizer) Synthesize(ctx context.Context, transcript []interview.Turn) (Profile, error) {
	if len(transcript) == 0 {
		return nil, ErrEmptyTranscript
	}

	if !s.cfg.PerPhase {
		obj, err := s.summarize(ctx, transcript)
		if err != nil {
			return nil, fmt.Errorf("summarize transcript: %w", err)
		}
		s.logger.Info("profile synthesized", zap.Int("turns", len(transcript)), zap.Int("sections", len(obj)))
		return Profile(obj), nil
	}

	profile := make(Profile)
	for _, group := range groupByPhase(transcript) {
		chunks := chunkTurns(group.turns, s.cfg.ChunkSize, s.cfg.MaxChunkTokens, s.counter)
		s.logger.Debug("summarizing phase",
			zap.String("phase", group.name),
			zap.Int("turns", len(group.turns)),
			zap.Int("chunks", len(chunks)),
		)

		if len(chunks) == 1 {
			obj, err := s.summarize(ctx, chunks[0])
			if err != nil {
				return nil, fmt.Errorf("summarize phase %q: %w", group.name, err)
			}
			profile[group.name] = obj
			continue
		}

		parts := make(map[string]any, len(chunks))
		for i, chunk := range chunks {
			obj, err := s.summarize(ctx, chunk)
			if err != nil {
				return nil, fmt.Errorf("summarize phase %q part %d: %w", group.name, i+1, err)
			}
			parts[fmt.Sprintf("part_%d", i+1)] = obj
		}
		profile[group.name] = parts
	}

	s.logger.Info("profile synthesized", zap.Int("turns", len(transcript)), zap.Int("sections", len(profile)))
	return profile, nil
}

func (s *Synthesizer) summarize(ctx context.Context, turns []interview.Turn) (map[string]any, error) {
	raw, err := s.llm.Complete(ctx, ai.Request{
		Purpose: purposeProfile,
		Messages: []ai.Message{
			ai.System(systemPrompt),
			ai.User(synthesisPrompt(render(turns))),
		},
		Temperature: synthesisTemperature,
	})
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func synthesisPrompt(data string) string {
	return fmt.Sprintf(`Analyze this interview data and extract key information to create a comprehensive user profile.
Structure the output in JSON format with these characteristics:

1. Include only sections with available data
2. Use natural groupings (e.g., life story, values, preferences)
3. Prioritize concrete facts over assumptions
4. Keep summaries concise but meaningful

Interview Data:
%s

Return ONLY valid JSON (no commentary):`, data)
}
