package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scriptreel/internal/assets"
	"scriptreel/internal/cache"
	"scriptreel/internal/config"
	"scriptreel/internal/generation"
	"scriptreel/internal/logging"
	"scriptreel/internal/metrics"
	"scriptreel/internal/orchestrator"
	"scriptreel/internal/preflight"
	"scriptreel/internal/queue"
	"scriptreel/internal/segmentation"
	"scriptreel/internal/telemetry"
	"scriptreel/internal/workflow"
)

// runOptions are the flags shared by generate and retry.
type runOptions struct {
	concurrency   int
	jsonOutput    bool
	metricsAddr   string
	skipPreflight bool
}

func (o *runOptions) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&o.concurrency, "concurrency", "j", 0, "Segments generated in parallel (default orchestrator.concurrency)")
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "Print the run result as JSON")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus /metrics on this address while running")
	cmd.Flags().BoolVar(&o.skipPreflight, "skip-preflight", false, "Start without checking directories and services")
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var flags segmentFlags
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "generate <script>",
		Short: "Segment a script and generate a clip for every segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, ctx, opts, func(runCtx context.Context, cfg *config.Config, runner *workflow.Runner, progress orchestrator.ProgressFunc) (*workflow.Result, error) {
				constraints := flags.constraints(cmd, segmentation.ConstraintsFromConfig(cfg.Segmentation))
				return runner.Run(runCtx, workflow.Request{
					ScriptPath:  args[0],
					Strategy:    segmentation.Strategy(flags.strategy),
					Constraints: &constraints,
					Concurrency: opts.concurrency,
					OnProgress:  progress,
				})
			})
		},
	}

	flags.register(cmd)
	opts.register(cmd)
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "retry <run-id>",
		Short: "Regenerate the failed segments of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, ctx, opts, func(runCtx context.Context, _ *config.Config, runner *workflow.Runner, progress orchestrator.ProgressFunc) (*workflow.Result, error) {
				return runner.Retry(runCtx, workflow.RetryRequest{
					RunID:       args[0],
					Concurrency: opts.concurrency,
					OnProgress:  progress,
				})
			})
		},
	}

	opts.register(cmd)
	return cmd
}

type runFunc func(context.Context, *config.Config, *workflow.Runner, orchestrator.ProgressFunc) (*workflow.Result, error)

// withRunner wires the store, cache, generation client, and asset store into a
// runner, invokes fn, and renders its result.
func withRunner(cmd *cobra.Command, ctx *commandContext, opts runOptions, fn runFunc) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !opts.skipPreflight {
		if err := requirePreflight(runCtx, cfg); err != nil {
			return err
		}
	}

	addr := strings.TrimSpace(opts.metricsAddr)
	if addr == "" {
		addr = strings.TrimSpace(cfg.Metrics.ListenAddr)
	}
	if addr != "" {
		bound, err := metrics.Serve(runCtx, addr, logger)
		if err != nil {
			return fmt.Errorf("serve metrics: %w", err)
		}
		logger.Info("metrics listening", logging.String("addr", bound.String()))
	}

	tracing, err := telemetry.NewProvider(runCtx, cfg)
	if err != nil {
		return fmt.Errorf("start tracing: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(runCtx); err != nil {
			logging.WarnWithContext(logger, "trace flush failed", "telemetry_shutdown_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the OTLP collector at telemetry.endpoint"),
				logging.String(logging.FieldImpact, "spans from this run may be missing"))
		}
	}()
	if tracing.Exporting() {
		logger.Info("trace export enabled",
			logging.String("exporter", cfg.Telemetry.Exporter),
			logging.String("endpoint", cfg.Telemetry.Endpoint))
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer store.Close()

	clips, err := cache.Open(runCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer clips.Close()

	saver, err := assets.NewStore(cfg.Paths.OutputDir)
	if err != nil {
		return err
	}

	runner, err := workflow.NewRunner(cfg, store, clips, generation.NewHTTPClient(generation.ConfigFrom(cfg.Generation)), saver,
		workflow.WithLogger(logger))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var progress orchestrator.ProgressFunc
	if !opts.jsonOutput {
		progress = newProgressPrinter(out, shouldColorize(out)).report
	}

	result, runErr := fn(runCtx, cfg, runner, progress)
	if result == nil {
		return runErr
	}
	if opts.jsonOutput {
		if err := writeJSON(cmd, newRunView(result)); err != nil {
			return err
		}
	} else {
		printRunResult(cmd, result, logger)
	}
	if runErr != nil {
		return runErr
	}
	if result.Run != nil && result.Run.Status != queue.RunCompleted && result.Batch != nil {
		return fmt.Errorf("%d segments failed; rerun with `scriptreel retry %s`", result.Batch.Summary.Failed, shortID(result.Run.ID))
	}
	return nil
}

func requirePreflight(ctx context.Context, cfg *config.Config) error {
	failed := preflight.Failed(preflight.RunAll(ctx, cfg))
	if len(failed) == 0 {
		return nil
	}
	details := make([]string, 0, len(failed))
	for _, r := range failed {
		details = append(details, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return errors.New("preflight failed (run `scriptreel doctor` for details): " + strings.Join(details, "; "))
}

func printRunResult(cmd *cobra.Command, result *workflow.Result, logger *slog.Logger) {
	out := cmd.OutOrStdout()
	run := result.Run
	if result.Batch == nil {
		fmt.Fprintf(out, "Run %s: nothing to regenerate\n", shortID(run.ID))
		return
	}
	rows := make([][]string, 0, len(result.Batch.Outcomes))
	for _, o := range result.Batch.Outcomes {
		rows = append(rows, []string{
			strconv.Itoa(o.SegmentIndex),
			stateLabel(string(o.State)),
			strconv.Itoa(o.Attempts),
			yesNo(o.CacheHit),
			outcomeDetail(o),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "State", "Attempts", "Cached", "Clip / Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	))
	s := result.Batch.Summary
	fmt.Fprintf(out, "Run %s %s: %d generated, %d cached, %d failed in %s\n",
		shortID(run.ID), stateLabel(string(run.Status)), s.Generated, s.CacheHits, s.Failed, s.Duration.Round(time.Millisecond))
	if run.NeedsReview {
		logger.Debug("run flagged for review", logging.String(logging.FieldRunID, run.ID))
		fmt.Fprintln(out, "Segmentation confidence was low; review the segments with `scriptreel runs show`.")
	}
}

func outcomeDetail(o orchestrator.Outcome) string {
	if o.Succeeded() {
		return o.AssetPath
	}
	if o.Err == nil {
		return o.ErrorKind
	}
	return truncate(fmt.Sprintf("%s: %v", o.ErrorKind, o.Err), 80)
}
