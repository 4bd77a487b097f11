// Package main is the entrypoint for the lmassist CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/langmartai/lmassist/internal/config"
	"github.com/langmartai/lmassist/internal/embedding"
	"github.com/langmartai/lmassist/internal/hub"
	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/sync"
	"github.com/langmartai/lmassist/internal/vectorstore"
)

// Version is set at build time via ldflags.
var Version = "dev"

// shutdownTimeout bounds how long `lmassist serve` waits for in-flight
// requests to finish on SIGINT/SIGTERM before forcing a close.
const shutdownTimeout = 5 * time.Second

func main() {
	root := &cobra.Command{
		Use:   "lmassist",
		Short: "Give your AI a memory of your project",
		Long: `lmassist extracts durable knowledge from your coding-assistant sub-agent
sessions, indexes it for hybrid search, and surfaces it back into new
sessions through an HTTP API and a prompt-submit hook.

Quick Start:
  lmassist serve     Start the local HTTP API and relay
  lmassist generate  Turn completed sub-agent sessions into knowledge
  lmassist search    Search the knowledge store
  lmassist doctor     Check that the store and index agree

Need help? https://github.com/langmartai/lmassist`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(generateCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(hookCmd())
	root.AddCommand(pinCmd())

	var dataDirOverride string
	root.PersistentFlags().StringVar(&dataDirOverride, "data-dir", "", "Override the data directory (overrides "+config.EnvDataDir+")")
	cobra.OnInitialize(func() {
		if dataDirOverride != "" {
			os.Setenv(config.EnvDataDir, dataDirOverride)
		}
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lmassist version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(Version)
			return nil
		},
	}
}

// newLogger builds the process logger: a development console encoder at info
// level, or debug level when the config's Verbose flag is set.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.DisableStacktrace = true
	if !cfg.Verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zcfg.Build()
}

// newEmbedProvider builds the configured embedding provider.
func newEmbedProvider(cfg *config.Config) (embedding.Provider, error) {
	return embedding.NewProvider(embedding.ProviderConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})
}

// appContext bundles the components every subcommand needs, constructed
// once from the loaded configuration.
type appContext struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    *knowledge.Store
	DB       *vectorstore.DB
	Provider embedding.Provider
}

// newAppContext loads configuration and opens the store, vector database,
// and embedding provider. withEmbedding controls whether an embedding
// provider is constructed at all: commands that never touch the vector
// store (e.g. `lmassist pin`) can skip it so a missing Ollama/OpenAI key
// doesn't block unrelated commands.
func newAppContext(withEmbedding bool) (*appContext, error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := vectorstore.OpenPath(config.VectorDBPath(), config.VectorDim)
	if err != nil {
		return nil, err
	}

	var provider embedding.Provider
	if withEmbedding {
		provider, err = newEmbedProvider(cfg)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return &appContext{
		Config:   cfg,
		Logger:   logger,
		Store:    knowledge.NewStore(),
		DB:       db,
		Provider: provider,
	}, nil
}

func (a *appContext) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	a.Logger.Sync() //nolint:errcheck
}

// newHubClient builds a hub client from the context's configuration, or
// returns nil, nil when no hub URL is configured.
func (a *appContext) newHubClient() (*hub.Client, error) {
	if a.Config.Hub.URL == "" {
		return nil, nil
	}
	return hub.NewClient(a.Config)
}

// newSyncService builds the remote sync service bound to this context's
// store, vector database, and embedding provider.
func (a *appContext) newSyncService() *sync.Service {
	return sync.NewService(a.Store, a.DB, a.Provider, a.Logger)
}
