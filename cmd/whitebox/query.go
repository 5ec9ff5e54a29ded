package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/engine"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/pkg/traceql"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/reasoncode"
)

var errAnalysisFailed = errors.New("analysis failed")

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		pattern string
		hours   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Match a pattern signature against the trace history",
		Long: "Match a pattern signature such as 14h_br_LATENCY_TIMEOUT against the\n" +
			"trace history. Without --pattern the signature is derived from the\n" +
			"dominant rejection reason in the recent traces.",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if pattern == "" {
				pattern, err = st.engine.CurrentPattern(ctx)
				if err != nil {
					return err
				}
				a.logger.Info().Str("pattern", pattern).Msg("Derived current pattern")
			}

			res := st.engine.History(ctx, engine.Request{CurrentPattern: pattern, HoursBack: hours})
			if asJSON {
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), pattern, res)
			}
			if res.Status == engine.StatusError {
				return fmt.Errorf("%w: %s", errAnalysisFailed, res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "pattern signature {hour}h_{region}_{reason}")
	cmd.Flags().IntVar(&hours, "hours", 0, "look-back window in hours (default engine.hours_back)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON result")
	return cmd
}

func printResult(w io.Writer, pattern string, res engine.Result) {
	fmt.Fprintf(w, "pattern: %s\nstatus:  %s\nwindow:  %d records, %d patterns\n\n",
		pattern, res.Status, res.RecentLogsCount, res.TotalPatterns)
	if len(res.Matches) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PATTERN\tSIMILARITY\tFREQUENCY\tAVG LOSS\tFIRST SEEN")
		for _, m := range res.Matches {
			fmt.Fprintf(tw, "%s\t%.3f\t%d\t%.3f\t%s\n", m.PatternType, m.SimilarityScore, m.Frequency, m.AvgLoss, m.Timestamp)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}
	if res.Summary != "" {
		fmt.Fprintln(w, res.Summary)
	}
	if res.Error != "" {
		fmt.Fprintln(w, "error:", res.Error)
	}
}

func newTailCmd(a *app) *cobra.Command {
	var (
		limit  int
		query  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent traces, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := traceql.Parse(query)
			if err != nil {
				return err
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.engine.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			records = traceql.Filter(filter, records)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), records)
			}
			catalog, err := reasoncode.Load(a.cfg.ReasonCodes)
			if err != nil {
				return err
			}
			printTraces(cmd.OutOrStdout(), records, catalog)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of traces (default source.recent_limit)")
	cmd.Flags().StringVarP(&query, "query", "q", "", `filter expression, e.g. "decision:REJECT AND latency_ms>80"`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printTraces(w io.Writer, records []model.TraceRecord, catalog *reasoncode.Catalog) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tREQUEST\tNODE\tACTION\tDECISION\tREASON")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp, r.RequestID, r.Node, r.Action, r.Decision, catalog.Label(r.ReasonCode))
	}
	tw.Flush()
}

func newFunnelCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "funnel",
		Short: "Print request, valid, bid and win counts over the recent traces",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			f, err := st.engine.Funnel(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), f)
			}
			catalog, err := reasoncode.Load(a.cfg.ReasonCodes)
			if err != nil {
				return err
			}
			printFunnel(cmd.OutOrStdout(), f, catalog)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printFunnel(w io.Writer, f engine.Funnel, catalog *reasoncode.Catalog) {
	fmt.Fprintf(w, "request: %d\nvalid:   %d\nbid:     %d\nwin:     %d\nfailed:  %d\n",
		f.Request, f.Valid, f.Bid, f.Win, len(f.FailedRequestIDs))
	if len(f.RejectReasons) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REASON\tLABEL\tCOUNT")
	for _, rc := range f.RejectReasons {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", rc.Code, catalog.Label(rc.Code), rc.Count)
	}
	tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
