package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"scriptreel/internal/segmentation"
)

type segmentFlags struct {
	strategy     string
	maxSegments  int
	minLength    int
	maxLength    int
	maxTokens    int
	allowEmpty   bool
	noTokenLimit bool
}

func (f *segmentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.strategy, "strategy", "s", "", "Segmentation strategy (by-scenes, by-paragraphs, by-sentences, by-duration, hybrid)")
	cmd.Flags().IntVar(&f.maxSegments, "max-segments", 0, "Maximum number of segments (hybrid only)")
	cmd.Flags().IntVar(&f.minLength, "min-length", -1, "Minimum segment length in characters")
	cmd.Flags().IntVar(&f.maxLength, "max-length", 0, "Maximum segment length in characters")
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "Maximum estimated tokens per segment")
	cmd.Flags().BoolVar(&f.allowEmpty, "allow-empty", false, "Keep empty segments")
	cmd.Flags().BoolVar(&f.noTokenLimit, "no-token-limit", false, "Report token overruns without splitting")
}

// constraints overlays explicitly set flags on the configured constraints.
func (f *segmentFlags) constraints(cmd *cobra.Command, base segmentation.Constraints) segmentation.Constraints {
	c := base
	if cmd.Flags().Changed("max-segments") {
		c.MaxSegments = f.maxSegments
	}
	if cmd.Flags().Changed("min-length") {
		c.MinSegmentLength = f.minLength
	}
	if cmd.Flags().Changed("max-length") {
		c.MaxSegmentLength = f.maxLength
	}
	if cmd.Flags().Changed("max-tokens") {
		c.MaxTokensPerSegment = f.maxTokens
	}
	if f.allowEmpty {
		c.AllowEmptySegments = true
	}
	if f.noTokenLimit {
		c.EnforceTokenLimits = false
	}
	return c
}

func newSegmentCommand(ctx *commandContext) *cobra.Command {
	var flags segmentFlags
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "segment <script>",
		Short: "Split a script into segments without generating clips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			strategy := segmentation.Strategy(flags.strategy)
			if strategy == "" {
				strategy = segmentation.Strategy(cfg.Segmentation.Strategy)
			}
			constraints := flags.constraints(cmd, segmentation.ConstraintsFromConfig(cfg.Segmentation))

			engine := segmentation.EngineFromConfig(cfg, logger)
			result, err := engine.Segment(cmd.Context(), string(data), strategy, constraints)
			if err != nil {
				return err
			}
			result.Segments = segmentation.PlannerFromConfig(cfg).Apply(result.Segments)

			if jsonOutput {
				return writeJSON(cmd, result)
			}
			printSegmentation(cmd, result)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the segmentation result as JSON")
	return cmd
}

func printSegmentation(cmd *cobra.Command, result *segmentation.Result) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(result.Segments))
	var total float64
	for _, seg := range result.Segments {
		total += seg.TargetDurationSeconds
		rows = append(rows, []string{
			strconv.Itoa(seg.OrderIndex),
			strconv.Itoa(seg.WordCount),
			strconv.Itoa(seg.TokenCount),
			strconv.FormatFloat(seg.TargetDurationSeconds, 'f', -1, 64) + "s",
			truncate(seg.Text, 60),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Words", "Tokens", "Clip", "Text"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
	))

	meta := result.Metadata
	strategy := string(meta.Strategy)
	if meta.RequestedStrategy != meta.Strategy {
		strategy = fmt.Sprintf("%s (requested %s)", meta.Strategy, meta.RequestedStrategy)
	}
	fmt.Fprintf(out, "Strategy:   %s\n", strategy)
	fmt.Fprintf(out, "Segments:   %d (%.0fs of clips)\n", meta.SegmentCount, total)
	fmt.Fprintf(out, "Confidence: %.2f\n", meta.Confidence)
	if meta.MergesApplied > 0 {
		fmt.Fprintf(out, "Merges:     %d\n", meta.MergesApplied)
	}
	for _, fb := range meta.FallbacksApplied {
		fmt.Fprintf(out, "Fallback:   %s -> %s (%s)\n", fb.From, fb.To, fb.Reason)
	}
	for _, w := range result.Warnings {
		if w.SegmentIndex >= 0 {
			fmt.Fprintf(out, "Warning:    [%s] segment %d: %s\n", w.Type, w.SegmentIndex, w.Message)
			continue
		}
		fmt.Fprintf(out, "Warning:    [%s] %s\n", w.Type, w.Message)
	}
}
