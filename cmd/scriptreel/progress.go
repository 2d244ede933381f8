package main

import (
	"fmt"
	"io"
	"time"

	"scriptreel/internal/orchestrator"
	"scriptreel/internal/workflow"
)

// progressPrinter writes one line per interesting job transition. Intermediate
// polling transitions are skipped to keep the output readable.
type progressPrinter struct {
	out      io.Writer
	colorize bool
}

func newProgressPrinter(out io.Writer, colorize bool) *progressPrinter {
	return &progressPrinter{out: out, colorize: colorize}
}

func (p *progressPrinter) report(ev orchestrator.Progress) {
	var kind statusKind
	detail := ""
	switch ev.To {
	case orchestrator.StateSubmitting:
		if ev.Attempt <= 1 {
			kind = statusInfo
		} else {
			kind = statusWarn
			detail = fmt.Sprintf("attempt %d", ev.Attempt)
		}
	case orchestrator.StateRetryWait:
		kind = statusWarn
		if ev.Err != nil {
			detail = truncate(ev.Err.Error(), 60)
		}
	case orchestrator.StateCompleted:
		kind = statusOK
		if ev.From == orchestrator.StateCacheLookup {
			detail = "cached"
		} else {
			detail = ev.Elapsed.Round(time.Second).String()
		}
	case orchestrator.StateFailedPermanent:
		kind = statusError
		if ev.Err != nil {
			detail = truncate(ev.Err.Error(), 60)
		}
	default:
		return
	}
	label := fmt.Sprintf("Segment %d: %s", ev.SegmentIndex, stateLabel(string(ev.To)))
	fmt.Fprintln(p.out, renderStatusLine(label, kind, detail, p.colorize))
}

// runView is the JSON shape of a run result.
type runView struct {
	RunID        string        `json:"run_id"`
	Status       string        `json:"status"`
	SegmentCount int           `json:"segment_count"`
	NeedsReview  bool          `json:"needs_review"`
	Generated    int           `json:"generated"`
	CacheHits    int           `json:"cache_hits"`
	Failed       int           `json:"failed"`
	DurationMS   int64         `json:"duration_ms"`
	Outcomes     []outcomeView `json:"outcomes"`
}

type outcomeView struct {
	Index     int     `json:"index"`
	SegmentID string  `json:"segment_id"`
	State     string  `json:"state"`
	Attempts  int     `json:"attempts"`
	CacheHit  bool    `json:"cache_hit"`
	AssetPath string  `json:"asset_path,omitempty"`
	Cost      float64 `json:"cost,omitempty"`
	ErrorKind string  `json:"error_kind,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func newRunView(result *workflow.Result) runView {
	run := result.Run
	view := runView{
		RunID:        run.ID,
		Status:       string(run.Status),
		SegmentCount: run.SegmentCount,
		NeedsReview:  run.NeedsReview,
		Outcomes:     []outcomeView{},
	}
	if result.Batch == nil {
		return view
	}
	s := result.Batch.Summary
	view.Generated = s.Generated
	view.CacheHits = s.CacheHits
	view.Failed = s.Failed
	view.DurationMS = s.Duration.Milliseconds()
	for _, o := range result.Batch.Outcomes {
		ov := outcomeView{
			Index:     o.SegmentIndex,
			SegmentID: o.SegmentID,
			State:     string(o.State),
			Attempts:  o.Attempts,
			CacheHit:  o.CacheHit,
			AssetPath: o.AssetPath,
			Cost:      o.Cost,
			ErrorKind: o.ErrorKind,
		}
		if o.Err != nil && !o.Succeeded() {
			ov.Error = o.Err.Error()
		}
		view.Outcomes = append(view.Outcomes, ov)
	}
	return view
}
