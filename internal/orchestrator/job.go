package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"scriptreel/internal/cache"
	"scriptreel/internal/continuity"
	"scriptreel/internal/credits"
	"scriptreel/internal/fingerprint"
	"scriptreel/internal/generation"
	"scriptreel/internal/logging"
	"scriptreel/internal/metrics"
	"scriptreel/internal/services"
	"scriptreel/internal/textutil"
)

// request is the fully prepared submission for one job.
type request struct {
	prompt   string
	duration float64
	seed     []byte
	note     string
	name     string
}

// produced is what a leader hands to every job sharing its fingerprint.
type produced struct {
	path     string
	remote   string
	cacheHit bool
}

func (o *Orchestrator) runJob(ctx context.Context, s *slot, p *plan) {
	defer close(s.done)
	job, seg := s.job, s.segment

	ctx = services.WithSegment(ctx, seg.OrderIndex, seg.ID)
	ctx, span := o.tracer.Start(ctx, "orchestrator.job", trace.WithAttributes(
		attribute.Int("segment.index", seg.OrderIndex),
		attribute.String("segment.id", seg.ID)))
	defer span.End()

	metrics.BatchInFlight.Inc()
	defer metrics.BatchInFlight.Dec()

	err := o.process(ctx, s, p)
	o.finish(ctx, job, err)
	if job.State == StateFailedPermanent {
		span.RecordError(job.LastError)
		span.SetStatus(codes.Error, services.Kind(job.LastError))
	}
	span.SetAttributes(
		attribute.String("job.state", string(job.State)),
		attribute.Bool("job.cache_hit", job.CacheHit),
		attribute.Int("job.attempts", job.AttemptCount))
}

// process runs the job up to, but not including, its terminal transition.
func (o *Orchestrator) process(ctx context.Context, s *slot, p *plan) error {
	job, seg := s.job, s.segment
	if seg.TargetDurationSeconds <= 0 {
		return &services.ValidationError{Field: "target_duration_seconds", Reason: "must be positive"}
	}

	directive := o.directiveFor(ctx, s, p)
	if ctx.Err() != nil {
		return canceled(ctx)
	}
	req := request{prompt: seg.Text, duration: seg.TargetDurationSeconds}
	if directive != nil {
		req.seed = directive.Consume()
		req.note = directive.Note
	}
	job.Seeded = len(req.seed) > 0
	job.Fingerprint = fingerprint.Compute(fingerprint.Request{
		Prompt:          seg.Text,
		Model:           o.settings.Model,
		ModelVersion:    o.settings.ModelVersion,
		DurationSeconds: req.duration,
		SeedPresent:     job.Seeded,
	})
	req.name = fmt.Sprintf("%03d-%s-%s.mp4", seg.OrderIndex, textutil.SlugFromText(seg.Text, 5), fingerprint.Short(job.Fingerprint))

	if err := o.move(job, StateCacheLookup); err != nil {
		return err
	}

	leader := false
	v, err, _ := o.inflight.Do(job.Fingerprint, func() (any, error) {
		leader = true
		return o.produce(ctx, job, req)
	})
	if !leader {
		job.Coalesced = true
	}
	if err != nil {
		if ctx.Err() != nil {
			return canceled(ctx)
		}
		return err
	}
	out := v.(produced)
	job.ResultAssetLocalPath = out.path
	job.RemoteURL = out.remote
	job.CacheHit = out.cacheHit || !leader
	return nil
}

// directiveFor waits for the predecessor when continuity is on and builds its directive.
func (o *Orchestrator) directiveFor(ctx context.Context, s *slot, p *plan) *continuity.Directive {
	seg := s.segment
	if !o.continuity.Enabled() || !seg.HasPrevious() {
		return nil
	}
	if pred, ok := p.byIndex[seg.PreviousIndex]; ok {
		select {
		case <-pred.done:
		case <-ctx.Done():
			return nil
		}
		return o.continuity.BuildDirective(ctx, &continuity.Previous{
			SegmentID: pred.job.SegmentID,
			Index:     pred.job.SegmentIndex,
			Succeeded: pred.job.State == StateCompleted,
			AssetPath: pred.job.ResultAssetLocalPath,
		})
	}
	if prev, ok := p.predecessors[seg.PreviousIndex]; ok {
		return o.continuity.BuildDirective(ctx, &prev)
	}
	return nil
}

// produce performs the cache lookup and, on a miss, enhancement followed by the
// submit/poll/download loop. The fingerprint covers the segment text, so an enhanced
// rewrite never changes the cache key.
func (o *Orchestrator) produce(ctx context.Context, job *Job, req request) (produced, error) {
	logger := logging.WithContext(ctx, o.logger)

	entry, hit, err := o.cache.Get(ctx, job.Fingerprint)
	switch {
	case err != nil && ctx.Err() != nil:
		return produced{}, canceled(ctx)
	case err != nil:
		logging.WarnWithContext(logger, "cache lookup failed", "cache_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the cache backend"),
			logging.String(logging.FieldImpact, "segment is generated without consulting the cache"))
	case hit && entry.LocalFileExists():
		attrs := append(logging.DecisionAttrs("cache_lookup", "hit", "fingerprint matched a saved clip"),
			logging.String("fingerprint", fingerprint.Short(job.Fingerprint)))
		logger.Info("cache hit", logging.Args(attrs...)...)
		return produced{path: entry.LocalPath, remote: entry.RemoteURL, cacheHit: true}, nil
	case hit:
		logger.Debug("cache entry stale; local file missing",
			logging.String("fingerprint", fingerprint.Short(job.Fingerprint)),
			logging.String("local_path", entry.LocalPath))
	}

	req.prompt, job.Enhanced = o.enhancer.Apply(ctx, req.prompt)
	if ctx.Err() != nil {
		return produced{}, canceled(ctx)
	}

	if err := o.move(job, StateSubmitting); err != nil {
		return produced{}, err
	}
	if err := o.charge(ctx, job, req); err != nil {
		if ctx.Err() != nil {
			return produced{}, canceled(ctx)
		}
		return produced{}, err
	}

	for attempt := 1; ; attempt++ {
		job.AttemptCount = attempt
		if attempt > 1 {
			if err := o.move(job, StateSubmitting); err != nil {
				return produced{}, err
			}
		}
		out, err := o.attempt(ctx, job, req)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return produced{}, canceled(ctx)
		}
		job.LastError = err
		if !services.Retryable(err) {
			return produced{}, err
		}
		if attempt >= o.settings.MaxAttempts {
			return produced{}, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		if err := o.move(job, StateRetryWait); err != nil {
			return produced{}, err
		}
		metrics.JobRetries.Inc()
		delay := o.retryDelay(attempt, err)
		logging.WarnWithContext(logger, "generation attempt failed; retrying", "generation_retry",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", o.settings.MaxAttempts),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient service failure"),
			logging.String(logging.FieldImpact, "segment is resubmitted after the backoff"))
		if err := o.sleep(ctx, delay); err != nil {
			return produced{}, canceled(ctx)
		}
	}
}

// charge debits the estimated cost once per job, before the first submission.
func (o *Orchestrator) charge(ctx context.Context, job *Job, req request) error {
	if o.estimator == nil || o.ledger == nil {
		return nil
	}
	cost := o.estimator.EstimateCost(req.duration, credits.Features(job.Seeded, job.Enhanced))
	if cost <= 0 {
		return nil
	}
	memo := fmt.Sprintf("segment %d (%s)", job.SegmentIndex, fingerprint.Short(job.Fingerprint))
	if err := o.ledger.Charge(ctx, cost, memo); err != nil {
		return err
	}
	job.Cost = cost
	metrics.CreditsCharged.Add(cost)
	logging.WithContext(ctx, o.logger).Debug("credits charged",
		logging.Float64("cost", cost),
		logging.String("memo", memo))
	return nil
}

// attempt performs one submission through to a saved, cached asset.
func (o *Orchestrator) attempt(ctx context.Context, job *Job, req request) (produced, error) {
	handle, err := o.client.Submit(ctx, generation.SubmitRequest{
		Prompt:          req.prompt,
		DurationSeconds: req.duration,
		SeedImage:       req.seed,
		ContinuityNote:  req.note,
	})
	if err != nil {
		return produced{}, err
	}
	submittedAt := o.now()
	if err := o.move(job, StatePolling); err != nil {
		return produced{}, err
	}

	status, err := o.poll(ctx, job, handle, submittedAt)
	if err != nil {
		return produced{}, err
	}
	if err := o.move(job, StateDownloading); err != nil {
		return produced{}, err
	}
	data, err := o.client.Download(ctx, status.AssetURL)
	if err != nil {
		return produced{}, err
	}
	if len(data) == 0 {
		return produced{}, &services.TransientNetworkError{Op: "download", Err: errors.New("asset is empty")}
	}

	if err := o.move(job, StateFinalizing); err != nil {
		return produced{}, err
	}
	path, err := o.saver.SaveAsset(ctx, data, req.name)
	if err != nil {
		if ctx.Err() != nil {
			return produced{}, canceled(ctx)
		}
		return produced{}, fmt.Errorf("save asset: %w", err)
	}
	if ctx.Err() != nil {
		_ = os.Remove(path)
		return produced{}, canceled(ctx)
	}

	entry := cache.Entry{
		Fingerprint:     job.Fingerprint,
		RemoteURL:       status.AssetURL,
		LocalPath:       path,
		DurationSeconds: req.duration,
	}
	if err := o.cache.Put(ctx, entry); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "cache write failed", "cache_put_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the cache backend"),
			logging.String(logging.FieldImpact, "clip is saved but will be regenerated next run"))
	}
	return produced{path: path, remote: status.AssetURL}, nil
}

// poll waits for the job to leave pending. Transient poll errors are tolerated until
// the ceiling, which ends the attempt with a retryable timeout.
func (o *Orchestrator) poll(ctx context.Context, job *Job, handle generation.JobHandle, submittedAt time.Time) (generation.Status, error) {
	logger := logging.WithContext(ctx, o.logger)
	interval := o.settings.PollInitial
	var lastErr error
	for {
		status, err := o.client.PollStatus(ctx, handle)
		switch {
		case err != nil:
			if ctx.Err() != nil || !services.Retryable(err) {
				return generation.Status{}, err
			}
			lastErr = err
			logger.Debug("poll failed; will poll again", logging.String("job_id", handle.ID), logging.Error(err))
		case status.State == generation.StateSucceeded:
			if status.AssetURL == "" {
				return generation.Status{}, &services.PermanentRequestError{Op: "poll", Detail: "job succeeded without an asset url"}
			}
			return status, nil
		case status.State == generation.StateFailed:
			return generation.Status{}, failedStatusError(status)
		}

		elapsed := o.now().Sub(submittedAt)
		if elapsed >= o.settings.PollCeiling {
			cause := fmt.Errorf("%w: job %s still pending after %s", services.ErrTimeout, handle.ID, elapsed.Round(time.Second))
			if lastErr != nil {
				cause = fmt.Errorf("%w (last poll error: %v)", cause, lastErr)
			}
			return generation.Status{}, &services.TransientNetworkError{Op: "poll", Err: cause}
		}
		wait := min(interval, o.settings.PollCeiling-elapsed)
		if err := o.sleep(ctx, wait); err != nil {
			return generation.Status{}, err
		}
		interval = min(interval*3/2, o.settings.PollMax)
		if err := o.move(job, StatePolling); err != nil {
			return generation.Status{}, err
		}
	}
}

func failedStatusError(status generation.Status) error {
	reason := status.Reason
	if reason == "" {
		reason = "generation failed"
	}
	if status.Retryable {
		return &services.TransientNetworkError{Op: "generate", Err: errors.New(reason)}
	}
	return &services.PermanentRequestError{Op: "generate", Detail: reason}
}
