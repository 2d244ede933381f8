package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"scriptreel/internal/config"
	"scriptreel/internal/preflight"
	"scriptreel/internal/queue"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, binaries, and service reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				for _, line := range renderSectionHeader("Environment", colorize) {
					fmt.Fprintln(out, line)
				}
				results := preflight.RunAll(cmd.Context(), cfg)
				for _, r := range results {
					fmt.Fprintln(out, preflightLine(r, colorize))
				}

				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Run database", colorize) {
					fmt.Fprintln(out, line)
				}
				storeErr := printStoreHealth(cmd, out, store, colorize)

				failed := preflight.Failed(results)
				switch {
				case len(failed) > 0:
					return fmt.Errorf("%d checks failed", len(failed))
				case storeErr != nil:
					return storeErr
				}
				return nil
			})
		},
	}
}

func preflightLine(r preflight.Result, colorize bool) string {
	switch {
	case r.Passed:
		return renderStatusLine(r.Name, statusOK, r.Detail, colorize)
	case r.Optional:
		return renderStatusLine(r.Name, statusWarn, r.Detail, colorize)
	default:
		return renderStatusLine(r.Name, statusError, r.Detail, colorize)
	}
}

func printStoreHealth(cmd *cobra.Command, out io.Writer, store *queue.Store, colorize bool) error {
	health, err := store.CheckHealth(cmd.Context())
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("Database", statusError, err.Error(), colorize))
		return err
	}
	if len(health.MissingTables) > 0 || !health.IntegrityCheck {
		detail := fmt.Sprintf("missing tables %v, integrity ok: %s", health.MissingTables, yesNo(health.IntegrityCheck))
		fmt.Fprintln(out, renderStatusLine("Database", statusError, detail, colorize))
		return fmt.Errorf("run database %s is unhealthy", health.DBPath)
	}
	fmt.Fprintln(out, renderStatusLine("Database", statusOK, health.DBPath, colorize))

	summary, err := store.Health(cmd.Context())
	if err != nil {
		return err
	}
	detail := fmt.Sprintf("%d total, %d completed, %d partial, %d failed", summary.Runs, summary.Completed, summary.Partial, summary.Failed)
	fmt.Fprintln(out, renderStatusLine("Runs", statusInfo, detail, colorize))
	kind := statusInfo
	if summary.FailedJobs > 0 {
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Segments", kind, fmt.Sprintf("%d recorded, %d failed", summary.Jobs, summary.FailedJobs), colorize))
	return nil
}
