package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/reasoncode"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the retention cleaner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}
	cmd.Flags().String("addr", ":8088", "HTTP listen address")
	cmd.Flags().Duration("retention", 168*time.Hour, "retention of archived segments (0 disables cleaning)")
	a.bind(cmd, "server.addr", "addr")
	a.bind(cmd, "retention", "retention")
	return cmd
}

func (a *app) serve() error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	catalog, err := reasoncode.Load(a.cfg.ReasonCodes)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:           a.cfg.Server.Addr,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		RateLimit:      a.cfg.Server.RateLimit,
		RateBurst:      a.cfg.Server.RateBurst,
		TokenHash:      a.cfg.Server.TokenHash,
	}, st.engine, st.writer, catalog, a.logger)

	a.logger.Info().
		Str("source", a.cfg.Source.Path).
		Str("archive", a.cfg.Source.ArchiveDir).
		Dur("retention", a.cfg.Retention).
		Float64("threshold", a.cfg.Engine.Threshold).
		Int("top_n", a.cfg.Engine.TopN).
		Msg("Whitebox started")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go st.engine.RunCleaner(ctx, a.cfg.CleanInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("Server shutdown error")
	}
	if err := <-errCh; err != nil {
		a.logger.Error().Err(err).Msg("Server stopped")
	}

	a.logger.Info().Msg("Whitebox exited gracefully")
	return nil
}

