package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"qvrag/internal/config"
	"qvrag/internal/engine"
	"qvrag/internal/logging"
)

// app carries what the persistent pre-run resolved for the subcommands.
type app struct {
	configPath string
	debug      bool

	cfg    *config.AppConfig
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "qvrag",
		Short: "Ingest documents into a vector store and query them",
		Long: `qvrag loads text, markdown, HTML and JSON files, splits them into
overlapping chunks with provenance metadata and writes them to a vector
store. Queries return the nearest chunks with their cosine distance.

Configuration is read from --config, ./config.yaml or
~/.config/qvrag/config.yaml (created with defaults when missing).`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newIngestCmd(a))
	cmd.AddCommand(newQueryCmd(a))
	cmd.AddCommand(newInfoCmd(a))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newTUICmd(a))
	return cmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var (
		cfg  *config.AppConfig
		path = a.configPath
		err  error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cmd.ErrOrStderr()}
	if a.debug {
		logCfg.Level = "debug"
	}
	a.cfg = cfg
	a.logger = logging.New(logCfg)
	a.logger.Debug("config loaded", "path", path, "config", cfg.String())
	return nil
}

// openEngine wires the configured embedder and store into an engine.
// The caller closes the engine.
func (a *app) openEngine(ctx context.Context) (*engine.Engine, error) {
	emb, err := buildEmbedder(a.cfg)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, a.cfg, emb)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(a.cfg.EngineOptions(), store, engine.WithLogger(a.logger))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return eng, nil
}
