package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "prism"
)

type Config struct {
	PlanFile     string           `mapstructure:"plan-file"`
	SnapshotFile string           `mapstructure:"snapshot-file"`
	LLM          *LLMConfig       `mapstructure:"llm"`
	Interview    *InterviewConfig `mapstructure:"interview"`
	Store        *StoreConfig     `mapstructure:"store"`
	Profile      *ProfileConfig   `mapstructure:"profile"`
	Search       *SearchConfig    `mapstructure:"search"`
	Metrics      *MetricsConfig   `mapstructure:"metrics"`
}

type LLMConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	APIKeyFile   string        `mapstructure:"api-key-file"`
	MaxRetries   int           `mapstructure:"max-retries"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxLogLength int           `mapstructure:"max-log-length"`
}

type InterviewConfig struct {
	StrictAssessment bool `mapstructure:"strict-assessment"`
}

type StoreConfig struct {
	Driver string             `mapstructure:"driver"`
	SQLite *SQLiteStoreConfig `mapstructure:"sqlite"`
	Redis  *RedisStoreConfig  `mapstructure:"redis"`
}

type SQLiteStoreConfig struct {
	Path string `mapstructure:"path"`
}

type RedisStoreConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type ProfileConfig struct {
	PerPhase       bool `mapstructure:"per-phase"`
	ChunkSize      int  `mapstructure:"chunk-size"`
	MaxChunkTokens int  `mapstructure:"max-chunk-tokens"`
}

type SearchConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	APIKeyFile string `mapstructure:"api-key-file"`
	MaxResults int    `mapstructure:"max-results"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "prism interviews you once and turns the answers into personalized recommendations",
		Long: "Without a subcommand prism starts (or resumes) the interview when no profile is stored,\n" +
			"and offers recommendations or profile deletion once a profile exists.",
		Run: func(cmd *cobra.Command, _ []string) {
			home(cmd)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envBindings := map[string]string{
		"llm.api-key-file":    "PRISM_LLM_API_KEY_FILE",
		"search.api-key-file": "PRISM_SEARCH_API_KEY_FILE",
		"store.driver":        "PRISM_STORE_DRIVER",
		"store.redis.addr":    "REDIS_ADDR",
	}
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is prism.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	viper.SetDefault("snapshot-file", "interview_progress.json")
	viper.SetDefault("llm.provider", providerGemini)
	viper.SetDefault("llm.max-retries", 3)
	viper.SetDefault("llm.timeout", 60*time.Second)
	viper.SetDefault("llm.max-log-length", 200)
	viper.SetDefault("store.driver", driverSQLite)
	viper.SetDefault("store.sqlite.path", "prism.db")
	viper.SetDefault("store.redis.prefix", app)
	viper.SetDefault("profile.per-phase", true)
	viper.SetDefault("profile.chunk-size", 10)
	viper.SetDefault("profile.max-chunk-tokens", 3000)
	viper.SetDefault("search.enabled", true)
	viper.SetDefault("search.max-results", 3)
}

func initConfig() {
	if versionCmd.CalledAs() != "" {
		return
	}

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// Defaults are enough when no config file exists, but a broken or
		// explicitly requested file is fatal.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}
	if config.LLM == nil {
		config.LLM = &LLMConfig{}
	}
	if config.Interview == nil {
		config.Interview = &InterviewConfig{}
	}
	if config.Store == nil {
		config.Store = &StoreConfig{}
	}
	if config.Store.SQLite == nil {
		config.Store.SQLite = &SQLiteStoreConfig{}
	}
	if config.Store.Redis == nil {
		config.Store.Redis = &RedisStoreConfig{}
	}
	if config.Profile == nil {
		config.Profile = &ProfileConfig{}
	}
	if config.Search == nil {
		config.Search = &SearchConfig{}
	}
	if config.Metrics == nil {
		config.Metrics = &MetricsConfig{}
	}

	return config, nil
}
