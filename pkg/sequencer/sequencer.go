package sequencer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/pvcship/pvcship/pkg/archive"
	"github.com/pvcship/pvcship/pkg/clock"
	"github.com/pvcship/pvcship/pkg/kubectl"
	"github.com/pvcship/pvcship/pkg/log"
	"github.com/pvcship/pvcship/pkg/metrics"
	"github.com/pvcship/pvcship/pkg/precheck"
	"github.com/pvcship/pvcship/pkg/prompt"
	"github.com/pvcship/pvcship/pkg/quantity"
	"github.com/pvcship/pvcship/pkg/resolve"
	"github.com/pvcship/pvcship/pkg/storage"
	"github.com/pvcship/pvcship/pkg/stream"
	"github.com/pvcship/pvcship/pkg/types"
	"github.com/pvcship/pvcship/pkg/worker"
)

// Options bundles the tunables and optional collaborators of a Sequencer.
type Options struct {
	Worker worker.Config
	Stream stream.Config
	// Store, when non-nil, records every run in the history database.
	Store storage.Store
	// Out receives the final report, os.Stdout when nil.
	Out io.Writer
}

// Sequencer runs a batch of transfer jobs strictly one at a time: exactly
// one worker pod exists at any moment, and every worker is torn down
// before the next job starts, interrupted runs included.
type Sequencer struct {
	gw       kubectl.Gateway
	clk      clock.Clock
	scanner  *precheck.Scanner
	resolver *resolve.Resolver
	workers  *worker.Manager
	engine   *stream.Engine
	store    storage.Store
	out      io.Writer
}

// New wires a sequencer from its collaborators.
func New(gw kubectl.Gateway, clk clock.Clock, prompter prompt.Prompter, opts Options) *Sequencer {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Sequencer{
		gw:       gw,
		clk:      clk,
		scanner:  precheck.NewScanner(gw, prompter),
		resolver: resolve.NewResolver(gw, prompter),
		workers:  worker.NewManager(gw, clk, opts.Worker),
		engine:   stream.NewEngine(gw, clk, opts.Stream),
		store:    opts.Store,
		out:      out,
	}
}

// ResolveImports turns raw import sources into fully determined jobs. A
// source that cannot be resolved becomes a skipped outcome instead of
// aborting the batch.
func (s *Sequencer) ResolveImports(ctx context.Context, sources []string, opts resolve.Options) ([]*types.TransferJob, []types.JobOutcome) {
	var (
		jobs    []*types.TransferJob
		skipped []types.JobOutcome
	)
	for _, src := range sources {
		target, err := s.resolver.Resolve(ctx, src, opts)
		if err != nil {
			log.WithComponent("sequencer").Warn().Str("source", src).Err(err).Msg("import source not resolvable")
			skipped = append(skipped, types.JobOutcome{
				Direction: types.DirectionImport,
				Result:    types.JobSkipped,
				Reason:    fmt.Sprintf("%s: %v", src, err),
			})
			continue
		}

		job := &types.TransferJob{
			ID:             uuid.New().String(),
			Direction:      types.DirectionImport,
			Volume:         target.Volume,
			SourcePath:     src,
			Merge:          target.Merge,
			EstimatedBytes: target.EstimatedBytes,
		}
		if target.NewVolume {
			job.Provision = &types.ProvisionSpec{
				StorageClass:    target.StorageClass,
				CapacityBytes:   target.CapacityBytes,
				CreateNamespace: target.NewNamespace,
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, skipped
}

// Run executes the batch and returns the aggregated report. The pre-check
// covers the whole batch before the first worker exists; cancellation
// stops dispatch, tears down the active worker, and marks the remaining
// jobs interrupted.
func (s *Sequencer) Run(ctx context.Context, jobs []*types.TransferJob, preSkipped ...types.JobOutcome) *types.Report {
	report := &types.Report{
		RunID:     uuid.New().String(),
		StartedAt: s.clk.Now(),
		Outcomes:  preSkipped,
	}
	if len(jobs) > 0 {
		report.Direction = jobs[0].Direction
	}

	accepted, conflicted, err := s.scanner.Scan(ctx, jobs)
	if err != nil {
		if ctx.Err() != nil {
			report.Interrupted = true
		} else {
			// Cluster trouble during the pre-check fails the batch, it is
			// not an interruption.
			log.WithComponent("sequencer").Error().Err(err).Msg("pre-check failed")
			for _, job := range jobs {
				report.Outcomes = append(report.Outcomes, types.JobOutcome{
					Volume:    job.Volume,
					Direction: job.Direction,
					Result:    types.JobFailed,
					Reason:    fmt.Sprintf("pre-check failed: %v", err),
				})
			}
		}
		s.finish(report)
		return report
	}
	for _, sk := range conflicted {
		report.Outcomes = append(report.Outcomes, types.JobOutcome{
			Volume:    sk.Job.Volume,
			Direction: sk.Job.Direction,
			Result:    types.JobSkipped,
			Reason:    sk.Conflict.Detail,
		})
	}

	for i, job := range accepted {
		if ctx.Err() != nil {
			report.Interrupted = true
			for _, rest := range accepted[i:] {
				report.Outcomes = append(report.Outcomes, types.JobOutcome{
					Volume:    rest.Volume,
					Direction: rest.Direction,
					Result:    types.JobInterrupted,
					Reason:    "run interrupted before this job started",
				})
			}
			break
		}

		outcome := s.execute(ctx, job)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Result == types.JobInterrupted {
			report.Interrupted = true
		}
	}

	s.finish(report)
	return report
}

// execute runs one job end to end. The worker is always torn down, no
// matter how the job ends.
func (s *Sequencer) execute(ctx context.Context, job *types.TransferJob) types.JobOutcome {
	outcome := types.JobOutcome{
		Volume:    job.Volume,
		Direction: job.Direction,
		StartedAt: s.clk.Now(),
	}
	defer func() {
		outcome.FinishedAt = s.clk.Now()
		metrics.JobsTotal.WithLabelValues(string(outcome.Result)).Inc()
		metrics.JobDurationSeconds.Observe(outcome.FinishedAt.Sub(outcome.StartedAt).Seconds())
	}()

	if job.Provision != nil {
		if err := s.provision(ctx, job); err != nil {
			return s.fail(ctx, outcome, err)
		}
	}

	w, err := s.workers.Launch(ctx, job)
	if w != nil {
		defer s.workers.Teardown(ctx, w)
	}
	if err != nil {
		return s.fail(ctx, outcome, fmt.Errorf("creating worker: %w", err))
	}

	if err := s.workers.AwaitReady(ctx, w, job.Provision != nil); err != nil {
		if snap := w.Snapshot(); snap != nil {
			log.WithPod(w.PodName).Error().Msg(snap.String())
		}
		return s.fail(ctx, outcome, err)
	}

	res, err := s.engine.Run(ctx, job, w)
	outcome.Bytes = res.Bytes
	if err != nil {
		// Teardown now so the snapshot exists while we still report; the
		// deferred call becomes a no-op.
		s.workers.Teardown(ctx, w)
		if snap := w.Snapshot(); snap != nil && ctx.Err() == nil {
			log.WithPod(w.PodName).Error().Msg(snap.String())
		}
		return s.fail(ctx, outcome, err)
	}

	bytes, files := s.workers.Verify(ctx, w)
	if bytes > 0 {
		outcome.Bytes = bytes
	}
	outcome.Files = files

	if job.Direction == types.DirectionExport && job.Format != types.FormatDirectory {
		if err := archive.Verify(job.DestPath); err != nil {
			log.WithVolume(job.Volume.String()).Warn().Err(err).Msg("artifact failed integrity check")
		}
	}

	outcome.Result = types.JobSucceeded
	log.WithVolume(job.Volume.String()).Info().
		Int64("bytes", outcome.Bytes).
		Int64("files", outcome.Files).
		Msg("transfer complete")
	return outcome
}

// fail classifies a job error, distinguishing interruption from failure.
func (s *Sequencer) fail(ctx context.Context, outcome types.JobOutcome, err error) types.JobOutcome {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		outcome.Result = types.JobInterrupted
		outcome.Reason = "interrupted"
		return outcome
	}
	outcome.Result = types.JobFailed
	outcome.Reason = err.Error()
	log.WithVolume(outcome.Volume.String()).Error().Err(err).Msg("transfer failed")
	return outcome
}

// provision creates the namespace and claim a resolved import target
// still needs.
func (s *Sequencer) provision(ctx context.Context, job *types.TransferJob) error {
	if job.Provision.CreateNamespace {
		if err := s.gw.CreateNamespace(ctx, job.Volume.Namespace); err != nil {
			return fmt.Errorf("creating namespace %s: %w", job.Volume.Namespace, err)
		}
		log.WithComponent("sequencer").Info().Str("namespace", job.Volume.Namespace).Msg("namespace created")
	}

	spec := kubectl.PVCSpec{
		Name:         job.Volume.Name,
		Namespace:    job.Volume.Namespace,
		StorageClass: job.Provision.StorageClass,
		Capacity:     quantity.FormatGi(job.Provision.CapacityBytes),
		AccessModes:  []string{"ReadWriteOnce"},
	}
	if err := s.gw.CreatePVC(ctx, spec); err != nil {
		return fmt.Errorf("creating volume %s: %w", job.Volume, err)
	}
	log.WithVolume(job.Volume.String()).Info().
		Str("capacity", spec.Capacity).
		Str("storage_class", spec.StorageClass).
		Msg("volume created")
	return nil
}

// finish renders the report and persists it to the history store.
func (s *Sequencer) finish(report *types.Report) {
	report.FinishedAt = s.clk.Now()
	renderReport(s.out, report)

	if s.store == nil {
		return
	}
	rec := &storage.RunRecord{
		ID:          report.RunID,
		Direction:   report.Direction,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		Interrupted: report.Interrupted,
		Outcomes:    report.Outcomes,
	}
	if err := s.store.SaveRun(rec); err != nil {
		log.WithComponent("sequencer").Warn().Err(err).Msg("could not record run history")
	}
}
