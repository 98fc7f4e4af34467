package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cosmos/statetree/logz"
	"github.com/cosmos/statetree/sim"
	"github.com/cosmos/statetree/statetree"
)

var log = logz.Logger.With().Str("module", "statetree-sim").Logger()

type Config struct {
	Profile       string
	Transactions  int
	Seed          int64
	Verify        bool
	OutDir        string
	DotOut        string
	MetricsAddr   string
	LogLevel      string
	LogJSON       bool
	ProgressEvery int
}

func main() {
	var cfg Config
	cmd := &cobra.Command{
		Use:   "statetree-sim",
		Short: "Runs random transactions against a state tree and reports how well their logs compact.",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&cfg.Profile, "profile", "form", "workload profile to use (form|grid)")
	cmd.Flags().IntVar(&cfg.Transactions, "transactions", 1_000, "number of transactions to run")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 0, "seed of the workload generator")
	cmd.Flags().BoolVar(&cfg.Verify, "verify", false, "replay every optimized log on a client replica and compare it with the tree")
	cmd.Flags().StringVar(&cfg.OutDir, "out-dir", "", "if set, write every optimized log and a report.json into this directory")
	cmd.Flags().StringVar(&cfg.DotOut, "dot-out", "", "if set, write the final tree as a Graphviz file")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", "", "if set, serve prometheus metrics on this address")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	cmd.Flags().BoolVar(&cfg.LogJSON, "log-json", false, "log JSON lines instead of console output")
	cmd.Flags().IntVar(&cfg.ProgressEvery, "progress-every", 100, "log progress every n transactions")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := logz.Configure(os.Stderr, cfg.LogJSON, cfg.LogLevel); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return run(ctx, cfg)
	}

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("simulation failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	gen, err := sim.Profile(cfg.Profile, cfg.Seed, cfg.Transactions)
	if err != nil {
		return err
	}
	if cfg.OutDir != "" {
		if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
			return err
		}
	}
	if cfg.MetricsAddr != "" {
		serveMetrics(cfg.MetricsAddr)
	}

	var opts []sim.Option
	if cfg.Verify {
		opts = append(opts, sim.WithVerify())
	}

	log.Info().Str("profile", gen.Name).Int64("seed", gen.Seed).Int("transactions", gen.Transactions).Msg("starting run")
	start := time.Now()
	d, err := gen.Driver(ctx, opts...)
	if d == nil {
		return err
	}
	var last *statetree.Commit
	for ; d.Valid(); err = d.Next(ctx) {
		if err != nil {
			break
		}
		last = d.Commit
		if cfg.OutDir != "" {
			if err := sim.WriteLogFile(cfg.OutDir, last.Version, last.Optimized); err != nil {
				return err
			}
		}
		if cfg.ProgressEvery > 0 && d.Stats.Transactions%cfg.ProgressEvery == 0 {
			logProgress(d, start)
		}
	}
	if err != nil {
		return fmt.Errorf("error at transaction %d: %w", d.Stats.Transactions+1, err)
	}

	logProgress(d, start)
	report := sim.NewReport(d)
	if last != nil {
		report.LastCommit = last.ID.String()
	}
	log.Info().
		Str("tree", report.TreeID).
		Str("raw", humanize.Comma(int64(report.Stats.RawChanges))).
		Str("optimized", humanize.Comma(int64(report.Stats.OptimizedChanges))).
		Str("pruned_nodes", humanize.Comma(int64(report.Stats.PrunedNodes))).
		Float64("ratio", report.Ratio).
		Dur("duration", time.Since(start)).
		Msg("run complete")

	if cfg.OutDir != "" {
		if err := sim.SaveReport(cfg.OutDir, report); err != nil {
			return fmt.Errorf("error writing report: %w", err)
		}
	}
	if cfg.DotOut != "" {
		graph := statetree.RenderDotGraph(d.Tree().Root())
		if err := os.WriteFile(cfg.DotOut, []byte(graph), 0o644); err != nil {
			return fmt.Errorf("error writing dot graph: %w", err)
		}
	}
	return nil
}

func logProgress(d *sim.Driver, start time.Time) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	elapsed := time.Since(start)
	log.Info().
		Int("transactions", d.Stats.Transactions).
		Str("mutations", humanize.Comma(int64(d.Stats.Mutations))).
		Str("rejected", humanize.Comma(int64(d.Stats.Rejected))).
		Str("raw", humanize.Comma(int64(d.Stats.RawChanges))).
		Str("optimized", humanize.Comma(int64(d.Stats.OptimizedChanges))).
		Int("nodes", d.Stats.Nodes).
		Float64("tx_per_sec", float64(d.Stats.Transactions)/elapsed.Seconds()).
		Str("mem_allocs", humanize.Bytes(memStats.Alloc)).
		Str("mem_sys", humanize.Bytes(memStats.Sys)).
		Msg("progress")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
}
