package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/prism/internal/ai"
	"github.com/spigell/prism/internal/ai/anthropic"
	"github.com/spigell/prism/internal/ai/gemini"
	"github.com/spigell/prism/internal/ai/openai"
	"github.com/spigell/prism/internal/elaboration"
	"github.com/spigell/prism/internal/logger"
	"github.com/spigell/prism/internal/metrics"
	"github.com/spigell/prism/internal/profile"
	"github.com/spigell/prism/internal/search"
	"github.com/spigell/prism/internal/secrets"
	"github.com/spigell/prism/internal/store"
)

const (
	providerGemini    = "gemini"
	providerOpenAI    = "openai"
	providerAnthropic = "anthropic"

	driverSQLite = "sqlite"
	driverRedis  = "redis"
	driverMemory = "memory"
)

var providerKeyEnv = map[string]string{
	providerGemini:    "GEMINI_API_KEY",
	providerOpenAI:    "OPENAI_API_KEY",
	providerAnthropic: "ANTHROPIC_API_KEY",
}

// deps holds everything a command may need. The LLM is built on first use so
// commands that only touch the store work without an API key.
type deps struct {
	config  *Config
	logger  *zap.Logger
	store   store.Store
	metrics *metrics.Recorder
	llm     *ai.Retrying
}

// setup mirrors the start of every command: logger, config, store.
func setup(ctx context.Context) *deps {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Debug("starting prism",
		zap.String("version", version),
		zap.String("llm_provider", config.LLM.Provider),
		zap.String("store_driver", config.Store.Driver),
	)

	st, err := newStore(ctx, config.Store)
	if err != nil {
		logger.Fatal("opening the document store", zap.Error(err), zap.String("driver", config.Store.Driver))
	}

	return &deps{
		config:  config,
		logger:  logger,
		store:   st,
		metrics: metrics.NewRecorder(),
	}
}

func (d *deps) close() {
	if err := d.store.Close(); err != nil {
		d.logger.Warn("closing the document store", zap.Error(err))
	}

	if path := strings.TrimSpace(d.config.Metrics.Textfile); path != "" {
		if err := d.metrics.WriteTextfile(path); err != nil {
			d.logger.Warn("writing metrics", zap.Error(err))
		} else {
			d.logger.Debug("metrics written", zap.String("path", path))
		}
	}

	_ = d.logger.Sync()
}

// completer returns the retrying LLM client, building it on first use.
func (d *deps) completer(ctx context.Context) (ai.Completer, error) {
	if d.llm != nil {
		return d.llm, nil
	}

	provider, err := newProvider(ctx, d.config.LLM)
	if err != nil {
		return nil, err
	}

	d.llm = ai.NewRetrying(provider, ai.RetryConfig{
		MaxAttempts:  d.config.LLM.MaxRetries,
		Timeout:      d.config.LLM.Timeout,
		MaxLogLength: d.config.LLM.MaxLogLength,
	}, d.logger, d.metrics)

	return d.llm, nil
}

func (d *deps) mustCompleter(ctx context.Context) ai.Completer {
	llm, err := d.completer(ctx)
	if err != nil {
		d.logger.Fatal("building the language model client",
			zap.Error(err),
			zap.String("hint", "set llm.api-key-file, PRISM_LLM_API_KEY_FILE or the provider api key environment variable"),
		)
	}
	return llm
}

func (d *deps) assessmentPolicy() elaboration.Policy {
	if d.config.Interview.StrictAssessment {
		return elaboration.PolicyStrict
	}
	return elaboration.PolicyFailOpen
}

func (d *deps) synthesizer(ctx context.Context) *profile.Synthesizer {
	var counter profile.Counter
	if tc, err := profile.NewTokenCounter(); err != nil {
		d.logger.Warn("token counter unavailable, prompt size budget disabled", zap.Error(err))
	} else {
		counter = tc
	}

	return profile.NewSynthesizer(d.mustCompleter(ctx), profile.Config{
		PerPhase:       d.config.Profile.PerPhase,
		ChunkSize:      d.config.Profile.ChunkSize,
		MaxChunkTokens: d.config.Profile.MaxChunkTokens,
	}, counter, d.logger)
}

// searcher returns nil when web search is disabled or has no key.
func (d *deps) searcher() search.Searcher {
	if !d.config.Search.Enabled {
		return nil
	}

	key, err := secrets.Load(secrets.Source{
		Name: "tavily api key",
		File: d.config.Search.APIKeyFile,
		Env:  "TAVILY_API_KEY",
	})
	if err != nil {
		d.logger.Info("web search disabled", zap.Error(err))
		return nil
	}

	return search.NewTavily(key, search.WithLogger(d.logger))
}

func newProvider(ctx context.Context, cfg *LLMConfig) (ai.Provider, error) {
	name := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if name == "" {
		name = providerGemini
	}

	env, ok := providerKeyEnv[name]
	if !ok {
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: name + " api key",
		File: cfg.APIKeyFile,
		Env:  env,
	})
	if err != nil {
		return nil, err
	}

	switch name {
	case providerOpenAI:
		return openai.NewClient(apiKey, cfg.Model)
	case providerAnthropic:
		return anthropic.NewClient(apiKey, cfg.Model)
	default:
		return gemini.NewGenerator(ctx, apiKey, cfg.Model)
	}
}

func newStore(ctx context.Context, cfg *StoreConfig) (store.Store, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Driver)) {
	case "", driverSQLite:
		return store.OpenSQLite(ctx, cfg.SQLite.Path)
	case driverRedis:
		return store.OpenRedis(ctx, store.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	case driverMemory:
		return store.NewMemory(), nil
	default:
		return nil, errors.New("unsupported store driver: " + cfg.Driver)
	}
}
