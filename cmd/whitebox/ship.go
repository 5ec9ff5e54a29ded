package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/emitter"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/pkg/traceql"
)

func newShipCmd(a *app) *cobra.Command {
	var (
		target    string
		token     string
		query     string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "ship",
		Short: "Forward local traces to a remote whitebox server",
		Long: "Read the local trace store (active log and archived segments) and\n" +
			"post it to the ingest endpoint of another whitebox server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return errors.New("--to is required")
			}
			filter, err := traceql.Parse(query)
			if err != nil {
				return err
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			records, scan, err := st.source.Read(cmd.Context())
			if err != nil {
				return err
			}
			records = traceql.Filter(filter, records)

			e := emitter.New(emitter.Options{
				ServerURL: target,
				Token:     token,
				BatchSize: batchSize,
				// Records are already queued; only batch size triggers sends.
				FlushInterval: time.Minute,
				QueueSize:     len(records) + 1,
				Logger:        a.logger,
			})
			for _, rec := range records {
				if err := e.Emit(rec); err != nil {
					a.logger.Warn().Err(err).Str("request_id", rec.RequestID).Msg("Trace not shipped")
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			if err := e.Close(ctx); err != nil {
				return fmt.Errorf("flush: %w", err)
			}

			stats := e.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d lines, skipped %d, sent %d, failed %d, dropped %d\n",
				scan.Lines, scan.Skipped, stats.Sent, stats.Failed, stats.Dropped)
			if stats.Failed > 0 || stats.Dropped > 0 {
				return errors.New("some traces were not shipped")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "base URL of the receiving server, e.g. http://whitebox:8088")
	cmd.Flags().StringVar(&token, "token", "", "bearer token of the receiving server")
	cmd.Flags().StringVarP(&query, "query", "q", "", "only ship traces matching this filter expression")
	cmd.Flags().IntVar(&batchSize, "batch", 500, "records per request")
	return cmd
}
