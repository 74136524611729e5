package precheck

import (
	"context"
	"fmt"
	"os"

	"github.com/pvcship/pvcship/pkg/kubectl"
	"github.com/pvcship/pvcship/pkg/log"
	"github.com/pvcship/pvcship/pkg/prompt"
	"github.com/pvcship/pvcship/pkg/types"
	"github.com/pvcship/pvcship/pkg/worker"
)

// SkippedJob is a job dropped at pre-check, with its reason.
type SkippedJob struct {
	Job      *types.TransferJob
	Conflict types.ConflictRecord
}

// Scanner validates the whole batch before any worker is created.
type Scanner struct {
	gw       kubectl.Gateway
	prompter prompt.Prompter
}

// NewScanner creates a pre-check scanner.
func NewScanner(gw kubectl.Gateway, prompter prompt.Prompter) *Scanner {
	return &Scanner{gw: gw, prompter: prompter}
}

// Scan classifies every requested job and returns the accepted subset plus
// the skipped subset with reasons. Exclusive-attach conflicts and
// destination-exists conflicts are each resolved with one batched decision
// covering all affected jobs — per-job prompting does not scale. In a
// non-interactive run any conflict drops the job; nothing is overwritten
// or force-attached silently.
func (s *Scanner) Scan(ctx context.Context, jobs []*types.TransferJob) ([]*types.TransferJob, []SkippedJob, error) {
	var (
		clean      []*types.TransferJob
		skipped    []SkippedJob
		attachJobs []*types.TransferJob
		attachRecs []types.ConflictRecord
		destJobs   []*types.TransferJob
		destRecs   []types.ConflictRecord
	)

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		rec, err := s.checkVolume(ctx, job)
		if err != nil {
			return nil, nil, err
		}
		if rec != nil && rec.Kind == types.ConflictVolumeMissing {
			skipped = append(skipped, SkippedJob{Job: job, Conflict: *rec})
			continue
		}
		if rec != nil {
			attachJobs = append(attachJobs, job)
			attachRecs = append(attachRecs, *rec)
			continue
		}

		if rec := s.checkDestination(job); rec != nil {
			destJobs = append(destJobs, job)
			destRecs = append(destRecs, *rec)
			continue
		}

		clean = append(clean, job)
	}

	accepted := clean
	accepted, skipped = s.resolveBatch(accepted, skipped, attachJobs, attachRecs,
		fmt.Sprintf("%d volume(s) are exclusively mounted by running pods. Transfer anyway?", len(attachJobs)))
	accepted, skipped = s.resolveBatch(accepted, skipped, destJobs, destRecs,
		fmt.Sprintf("%d destination(s) already exist and would be overwritten. Continue?", len(destJobs)))

	return accepted, skipped, nil
}

// checkVolume verifies existence and exclusive-attach status of the job's
// volume. Freshly provisioned volumes have nothing to check yet.
func (s *Scanner) checkVolume(ctx context.Context, job *types.TransferJob) (*types.ConflictRecord, error) {
	if job.Provision != nil {
		return nil, nil
	}

	pvc, err := s.gw.GetPVC(ctx, job.Volume.Name, job.Volume.Namespace)
	if err != nil {
		return nil, fmt.Errorf("pre-check of %s failed: %w", job.Volume, err)
	}
	if pvc == nil {
		return &types.ConflictRecord{
			Volume: job.Volume,
			Kind:   types.ConflictVolumeMissing,
			Detail: "volume does not exist",
		}, nil
	}

	if !pvc.Exclusive() {
		return nil, nil
	}

	holders, err := s.gw.PodsByClaim(ctx, job.Volume.Namespace, job.Volume.Name)
	if err != nil {
		return nil, fmt.Errorf("pre-check of %s failed: %w", job.Volume, err)
	}
	for _, h := range holders {
		if h.Phase != kubectl.PhaseRunning {
			continue
		}
		// Our own leftover workers are not real consumers.
		if h.Labels[worker.ManagedByLabel] == worker.ManagedByValue {
			continue
		}
		return &types.ConflictRecord{
			Volume: job.Volume,
			Kind:   types.ConflictExclusiveAttach,
			Detail: fmt.Sprintf("exclusively mounted by running pod %s", h.Name),
		}, nil
	}
	return nil, nil
}

// checkDestination looks for an existing local destination on exports.
func (s *Scanner) checkDestination(job *types.TransferJob) *types.ConflictRecord {
	if job.Direction != types.DirectionExport || job.DestPath == "" {
		return nil
	}
	if _, err := os.Stat(job.DestPath); err == nil {
		return &types.ConflictRecord{
			Volume: job.Volume,
			Kind:   types.ConflictDestinationExists,
			Detail: fmt.Sprintf("destination %s already exists", job.DestPath),
		}
	}
	return nil
}

// resolveBatch applies one decision to a whole conflict category.
func (s *Scanner) resolveBatch(accepted []*types.TransferJob, skipped []SkippedJob, jobs []*types.TransferJob, recs []types.ConflictRecord, question string) ([]*types.TransferJob, []SkippedJob) {
	if len(jobs) == 0 {
		return accepted, skipped
	}

	for _, rec := range recs {
		log.WithVolume(rec.Volume.String()).Warn().
			Str("kind", string(rec.Kind)).
			Msg(rec.Detail)
	}

	proceed := false
	if s.prompter.Interactive() {
		answer, err := s.prompter.Confirm(question, false)
		if err == nil {
			proceed = answer
		}
	}

	if proceed {
		return append(accepted, jobs...), skipped
	}
	for i, job := range jobs {
		skipped = append(skipped, SkippedJob{Job: job, Conflict: recs[i]})
	}
	return accepted, skipped
}
