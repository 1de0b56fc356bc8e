package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/cache"
	"github.com/ppiankov/concord/internal/coordinator"
	"github.com/ppiankov/concord/internal/logging"
	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/pipeline"
)

// Version is set at build time with -ldflags "-X .../cli.Version=..."
var Version = "v0.1.0"

var (
	cfgFile    string
	verbose    bool
	logLevel   string
	agentFlags []string
)

// Keys that can be overridden with CONCORD_* environment variables
var envKeys = []string{
	"consensus.min_models_required",
	"consensus.timeout",
	"consensus.fallback_enabled",
	"consensus.continue_on_error",
	"retry.max_retries",
	"retry.base_delay",
	"retry.max_delay",
	"cache.enabled",
	"cache.backend",
	"cache.path",
	"cache.redis_addr",
	"cache.ttl",
	"http.timeout",
	"http.user_agent",
	"http.http_proxy",
	"http.https_proxy",
	"http.no_proxy",
	"concurrency.workers",
	"server.addr",
	"log.level",
	"log.format",
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "concord",
	Short: "Concord - multi-model consensus validation of source documents",
	Long: `Concord asks several language models to extract the factual claims of a
source document, checks every citation against the source text, and reports
which facts the models agree on, where they disagree, and how far the result
can be trusted.

Agreement between models is a signal, not a proof. Concord shows the
evidence; it does not decide what is true.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "concord %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.concord/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringArrayVar(&agentFlags, "agent", nil,
		"add an agent as [id=]provider:model (repeatable; replaces configured agents)")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".concord"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match CONCORD_*
	viper.SetEnvPrefix("CONCORD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig decodes defaults, config file, environment and flags into a Config
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// An empty --log-level flag must not clear the configured level
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if len(agentFlags) > 0 {
		agents, err := parseAgentFlags(agentFlags)
		if err != nil {
			return nil, err
		}
		cfg.Agents = agents
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// parseAgentFlags turns [id=]provider:model values into agent configs
func parseAgentFlags(values []string) ([]model.AgentConfig, error) {
	agents := make([]model.AgentConfig, 0, len(values))
	for _, raw := range values {
		id, rest, named := strings.Cut(raw, "=")
		if !named {
			rest = raw
		}
		provider, modelName, ok := strings.Cut(rest, ":")
		if !ok || provider == "" || modelName == "" {
			return nil, fmt.Errorf("invalid --agent %q: want [id=]provider:model", raw)
		}
		if !named {
			id = provider + "-" + modelName
		}
		agents = append(agents, model.AgentConfig{
			ID:       id,
			Provider: provider,
			Model:    modelName,
		})
	}
	return agents, nil
}

// session is everything a command needs to run validations
type session struct {
	config   *model.Config
	logger   *zap.Logger
	cache    *cache.ResultCache
	pipeline *pipeline.Pipeline
}

func (s *session) Close() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("closing cache", zap.Error(err))
		}
	}
	_ = s.logger.Sync()
}

// newLogger builds the logger for cfg
func newLogger(cfg *model.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Format)
}

// openCache opens the configured result cache, or returns nil if disabled
func openCache(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*cache.ResultCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	store, err := cache.NewStore(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	rc, err := cache.New(ctx, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return rc, nil
}

// newSession loads configuration, applies command overrides and wires
// agents, cache and pipeline
func newSession(ctx context.Context, useCache bool, overrides ...func(*model.Config)) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	if len(cfg.EnabledAgents()) == 0 {
		return nil, fmt.Errorf("no agents configured: add agents to %s or pass --agent provider:model", configPathHint())
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	coord, err := coordinator.FromConfig(cfg, coordinator.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	sess := &session{config: cfg, logger: logger}
	opts := []pipeline.Option{pipeline.WithLogger(logger)}

	if useCache {
		rc, err := openCache(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if rc != nil {
			sess.cache = rc
			opts = append(opts, pipeline.WithCache(rc))
		}
	}

	p, err := pipeline.New(cfg, coord, opts...)
	if err != nil {
		sess.Close()
		return nil, err
	}
	sess.pipeline = p
	return sess, nil
}

func configPathHint() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return "~/.concord/config.yaml"
}
