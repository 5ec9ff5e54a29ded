package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/config"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/engine"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/logging"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/storage"
)

const version = "v0.1.0"

// app carries state shared by all subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "whitebox",
		Short:         "Correlate ad-exchange decision traces with historical patterns",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./whitebox.yaml)")
	pf.String("source", "whitebox.log", "path of the active trace log")
	pf.String("archive-dir", "archive", "directory of compressed segments")
	pf.String("timezone", "Local", "IANA zone used to read hours from timestamps")
	pf.String("log-level", "info", "log level (debug|info|warn|error)")
	pf.String("log-format", "console", "log format (console|json)")

	a.bind(root, "source.path", "source")
	a.bind(root, "source.archive_dir", "archive-dir")
	a.bind(root, "engine.timezone", "timezone")
	a.bind(root, "logging.level", "log-level")
	a.bind(root, "logging.format", "log-format")

	root.AddCommand(
		newServeCmd(a),
		newAnalyzeCmd(a),
		newTailCmd(a),
		newFunnelCmd(a),
		newArchiveCmd(a),
		newCleanCmd(a),
		newShipCmd(a),
		newHashTokenCmd(a),
	)
	return root
}

// bind ties a viper key to a flag on cmd. Flags only override the file
// and environment when set explicitly.
func (a *app) bind(cmd *cobra.Command, key, flag string) {
	f := cmd.Flags().Lookup(flag)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(flag)
	}
	if f == nil {
		panic("unknown flag " + flag)
	}
	if err := a.v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// store is the opened backing store plus the engine on top of it.
type store struct {
	source *storage.Source
	writer *storage.Writer
	engine *engine.QueryEngine
}

func (a *app) openStore() (*store, error) {
	qcfg, err := a.cfg.QueryEngineConfig()
	if err != nil {
		return nil, err
	}

	src, err := storage.NewSource(a.cfg.Source.Path, a.cfg.Source.ArchiveDir, a.cfg.Source.MaxLines)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	w, err := storage.NewWriter(a.cfg.Source.Path, a.cfg.Source.ArchiveDir, qcfg.Options.Location)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("open writer: %w", err)
	}

	archiveDir := a.cfg.Source.ArchiveDir
	purge := func(before time.Time) ([]string, error) {
		return storage.PurgeSegments(archiveDir, before)
	}

	qe := engine.NewQueryEngine(qcfg, src.Read, src.Recent, purge, a.logger)
	return &store{source: src, writer: w, engine: qe}, nil
}

func (s *store) Close() {
	s.source.Close()
	s.writer.Close()
}
