package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scriptreel/internal/config"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
	"scriptreel/internal/workflow"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and manage recorded runs",
	}

	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsExportCommand(ctx))
	runsCmd.AddCommand(newRunsRemoveCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					views := make([]runSummaryView, 0, len(runs))
					for _, run := range runs {
						views = append(views, newRunSummaryView(run))
					}
					return writeJSON(cmd, views)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						shortID(run.ID),
						stateLabel(string(run.Status)),
						strconv.Itoa(run.SegmentCount),
						run.Strategy,
						formatTime(run.CreatedAt),
						truncate(run.ScriptPath, 40),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "Segments", "Strategy", "Created", "Script"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print runs as JSON")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and the state of each segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				run, err := findRun(cmd, store, args[0])
				if err != nil {
					return err
				}
				jobs, err := store.Jobs(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				if jsonOutput {
					view := runDetailView{runSummaryView: newRunSummaryView(*run), Jobs: make([]jobView, 0, len(jobs))}
					for _, job := range jobs {
						view.Jobs = append(view.Jobs, newJobView(job))
					}
					return writeJSON(cmd, view)
				}
				printRunDetail(cmd, run, jobs)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run as JSON")
	return cmd
}

func newRunsExportCommand(ctx *commandContext) *cobra.Command {
	var partial bool

	cmd := &cobra.Command{
		Use:   "export <run-id> <dest-dir>",
		Short: "Copy a run's clips into a directory in segment order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				paths, err := workflow.Export(cmd.Context(), store, args[0], args[1], partial)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d clips to %s\n", len(paths), args[1])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&partial, "partial", false, "Export completed clips even if some segments failed")
	return cmd
}

func newRunsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <run-id>",
		Short: "Delete a run and its job records (clip files are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				run, err := findRun(cmd, store, args[0])
				if err != nil {
					return err
				}
				if run.Status == queue.RunRunning {
					return fmt.Errorf("run %s is still running", shortID(run.ID))
				}
				if err := store.DeleteRun(cmd.Context(), run.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed run %s\n", shortID(run.ID))
				return nil
			})
		},
	}
}

func findRun(cmd *cobra.Command, store *queue.Store, ref string) (*queue.Run, error) {
	run, err := store.FindRun(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, services.Wrap(services.ErrNotFound, "runs", "lookup", fmt.Sprintf("run %q not found", ref), nil)
	}
	return run, nil
}

func printRunDetail(cmd *cobra.Command, run *queue.Run, jobs []queue.JobRecord) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Run "+run.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Script:     %s\n", run.ScriptPath)
	fmt.Fprintf(out, "Status:     %s\n", stateLabel(string(run.Status)))
	fmt.Fprintf(out, "Strategy:   %s\n", run.Strategy)
	fmt.Fprintf(out, "Confidence: %.2f (review: %s)\n", run.Confidence, yesNo(run.NeedsReview))
	fmt.Fprintf(out, "Created:    %s\n", formatTime(run.CreatedAt))
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Message:    %s\n", run.ErrorMessage)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No segments have finished yet")
		return
	}

	rows := make([][]string, 0, len(jobs))
	var cost float64
	for _, job := range jobs {
		cost += job.Cost
		detail := job.AssetPath
		if !job.Succeeded() {
			detail = truncate(strings.TrimSpace(job.ErrorKind+": "+job.LastError), 70)
		}
		rows = append(rows, []string{
			strconv.Itoa(job.Index),
			stateLabel(job.State),
			strconv.Itoa(job.AttemptCount),
			yesNo(job.CacheHit),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "State", "Attempts", "Cached", "Clip / Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	))
	if cost > 0 {
		fmt.Fprintf(out, "Credits spent: %.2f\n", cost)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

type runSummaryView struct {
	ID           string    `json:"id"`
	ScriptPath   string    `json:"script_path"`
	Strategy     string    `json:"strategy"`
	Status       string    `json:"status"`
	SegmentCount int       `json:"segment_count"`
	Confidence   float64   `json:"confidence"`
	NeedsReview  bool      `json:"needs_review"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newRunSummaryView(run queue.Run) runSummaryView {
	return runSummaryView{
		ID:           run.ID,
		ScriptPath:   run.ScriptPath,
		Strategy:     run.Strategy,
		Status:       string(run.Status),
		SegmentCount: run.SegmentCount,
		Confidence:   run.Confidence,
		NeedsReview:  run.NeedsReview,
		Message:      run.ErrorMessage,
		CreatedAt:    run.CreatedAt,
		UpdatedAt:    run.UpdatedAt,
	}
}

type runDetailView struct {
	runSummaryView
	Jobs []jobView `json:"jobs"`
}

type jobView struct {
	Index       int     `json:"index"`
	SegmentID   string  `json:"segment_id"`
	Fingerprint string  `json:"fingerprint"`
	State       string  `json:"state"`
	Attempts    int     `json:"attempts"`
	CacheHit    bool    `json:"cache_hit"`
	AssetPath   string  `json:"asset_path,omitempty"`
	RemoteURL   string  `json:"remote_url,omitempty"`
	Cost        float64 `json:"cost,omitempty"`
	ErrorKind   string  `json:"error_kind,omitempty"`
	Error       string  `json:"error,omitempty"`
}

func newJobView(job queue.JobRecord) jobView {
	return jobView{
		Index:       job.Index,
		SegmentID:   job.SegmentID,
		Fingerprint: job.Fingerprint,
		State:       job.State,
		Attempts:    job.AttemptCount,
		CacheHit:    job.CacheHit,
		AssetPath:   job.AssetPath,
		RemoteURL:   job.RemoteURL,
		Cost:        job.Cost,
		ErrorKind:   job.ErrorKind,
		Error:       job.LastError,
	}
}
