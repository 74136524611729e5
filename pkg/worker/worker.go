package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pvcship/pvcship/pkg/clock"
	"github.com/pvcship/pvcship/pkg/kubectl"
	"github.com/pvcship/pvcship/pkg/log"
	"github.com/pvcship/pvcship/pkg/metrics"
	"github.com/pvcship/pvcship/pkg/quantity"
	"github.com/pvcship/pvcship/pkg/types"
)

// State of a worker pod in its lifecycle.
type State string

const (
	StateRequested     State = "requested"
	StateCreating      State = "creating"
	StateAwaitingReady State = "awaiting-ready"
	StateReady         State = "ready"
	StateRunning       State = "running"
	StateVerifying     State = "verifying"
	StateTerminating   State = "terminating"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// ManagedByLabel marks worker pods so conflict detection can tell our own
// workers apart from real consumers.
const (
	ManagedByLabel = "app.kubernetes.io/managed-by"
	ManagedByValue = "pvcship"
)

// MountPath is where the claim is mounted inside every worker.
const MountPath = "/data"

// ErrNotReady means the worker never reached the ready state within the
// bounded wait.
var ErrNotReady = errors.New("worker pod did not become ready")

// Worker is the ephemeral pod exclusively owned by one transfer job.
type Worker struct {
	PodName   string
	Namespace string
	Volume    types.VolumeRef
	// MemoryLimit is the pod's memory ceiling, reported in OOM diagnostics.
	MemoryLimit int64

	state    State
	snapshot *DiagnosticSnapshot
}

// State returns the lifecycle state.
func (w *Worker) State() State { return w.state }

// Snapshot returns the diagnostic snapshot captured before teardown, nil
// until teardown.
func (w *Worker) Snapshot() *DiagnosticSnapshot { return w.snapshot }

// MarkRunning records the hand-off to the streaming engine.
func (w *Worker) MarkRunning() { w.state = StateRunning }

// DiagnosticSnapshot is what remains of a worker after its pod object is
// gone: status, description, scoped events and a log tail, captured
// strictly before deletion.
type DiagnosticSnapshot struct {
	PodName    string
	Status     kubectl.PodStatus
	Describe   string
	Events     string
	Logs       string
	CapturedAt time.Time
}

// String renders the snapshot for console or log output.
func (s *DiagnosticSnapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- worker %s (phase %s", s.PodName, s.Status.Phase)
	if s.Status.Reason != "" {
		fmt.Fprintf(&b, ", %s", s.Status.Reason)
	}
	b.WriteString(") ---\n")
	if s.Events != "" {
		b.WriteString("events:\n" + s.Events + "\n")
	}
	if s.Logs != "" {
		b.WriteString("log tail:\n" + s.Logs + "\n")
	}
	if s.Describe != "" {
		b.WriteString("describe:\n" + s.Describe + "\n")
	}
	return b.String()
}

// Config tunes the lifecycle manager.
type Config struct {
	Image                   string
	PollInterval            time.Duration
	ReadyTimeout            time.Duration
	FreshVolumeReadyTimeout time.Duration
	LogTailLines            int
	// SleepSeconds caps the worker's lifetime even if cleanup never runs.
	SleepSeconds int
}

// DefaultConfig returns the reference timings: 2s polls, 120s to ready
// (60s for freshly provisioned volumes, which bind faster or not at all),
// a 24h sleep cap.
func DefaultConfig() Config {
	return Config{
		Image:                   "alpine:3.20",
		PollInterval:            2 * time.Second,
		ReadyTimeout:            120 * time.Second,
		FreshVolumeReadyTimeout: 60 * time.Second,
		LogTailLines:            50,
		SleepSeconds:            86400,
	}
}

// Manager owns worker pod lifecycles. Exactly one worker exists per job;
// workers are never reused.
type Manager struct {
	gw  kubectl.Gateway
	clk clock.Clock
	cfg Config
}

// NewManager creates a lifecycle manager.
func NewManager(gw kubectl.Gateway, clk clock.Clock, cfg Config) *Manager {
	if cfg.Image == "" {
		cfg = DefaultConfig()
	}
	return &Manager{gw: gw, clk: clk, cfg: cfg}
}

// PodName derives the worker pod name from the job's volume plus a
// time-based suffix, so concurrent invocations against the same volume
// cannot collide. Pod names are capped at 63 characters.
func PodName(volume types.VolumeRef, now time.Time) string {
	suffix := fmt.Sprintf("%s-%d", uuid.New().String()[:8], now.Unix())
	name := "pvcship-" + volume.Name
	if max := 63 - len(suffix) - 1; len(name) > max {
		name = name[:max]
	}
	return name + "-" + suffix
}

// Launch creates the worker pod bound to the job's volume and returns it
// in the creating state. The memory ceiling is a step function of the
// claim's declared capacity.
func (m *Manager) Launch(ctx context.Context, job *types.TransferJob) (*Worker, error) {
	capacity := m.declaredCapacity(ctx, job.Volume)

	w := &Worker{
		PodName:     PodName(job.Volume, m.clk.Now()),
		Namespace:   job.Volume.Namespace,
		Volume:      job.Volume,
		MemoryLimit: quantity.WorkerMemoryLimit(capacity),
		state:       StateRequested,
	}

	spec := kubectl.PodSpec{
		Name:             w.PodName,
		Namespace:        w.Namespace,
		Image:            m.cfg.Image,
		Command:          []string{"sleep", fmt.Sprintf("%d", m.cfg.SleepSeconds)},
		MemoryLimitBytes: w.MemoryLimit,
		ClaimName:        job.Volume.Name,
		MountPath:        MountPath,
		Labels:           map[string]string{ManagedByLabel: ManagedByValue},
	}

	w.state = StateCreating
	if err := m.gw.CreatePod(ctx, spec); err != nil {
		w.state = StateFailed
		return w, err
	}

	metrics.WorkersCreatedTotal.Inc()
	log.WithPod(w.PodName).Info().
		Str("volume", job.Volume.String()).
		Str("memory_limit", quantity.FormatGi(spec.MemoryLimitBytes)).
		Msg("worker pod created")

	w.state = StateAwaitingReady
	return w, nil
}

func (m *Manager) declaredCapacity(ctx context.Context, vol types.VolumeRef) int64 {
	pvc, err := m.gw.GetPVC(ctx, vol.Name, vol.Namespace)
	if err != nil || pvc == nil {
		return 0
	}
	capacity, err := quantity.Parse(pvc.Capacity)
	if err != nil {
		log.WithVolume(vol.String()).Warn().
			Str("capacity", pvc.Capacity).
			Msg("unparseable claim capacity, using default memory tier")
		return 0
	}
	return capacity
}

// AwaitReady polls pod phase and container readiness until the worker is
// ready, the pod fails, the timeout passes, or the context is cancelled.
// Failure paths capture diagnostics before returning.
func (m *Manager) AwaitReady(ctx context.Context, w *Worker, freshVolume bool) error {
	timeout := m.cfg.ReadyTimeout
	if freshVolume {
		timeout = m.cfg.FreshVolumeReadyTimeout
	}
	deadline := m.clk.Now().Add(timeout)

	ticker := m.clk.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}

		st, err := m.gw.PodStatus(ctx, w.PodName, w.Namespace)
		if err != nil {
			log.WithPod(w.PodName).Debug().Err(err).Msg("status poll failed")
		} else {
			switch {
			case st.Phase == kubectl.PhaseFailed || st.Phase == kubectl.PhaseUnknown:
				w.state = StateFailed
				m.capture(ctx, w)
				return fmt.Errorf("%w: pod entered phase %s (%s)", ErrNotReady, st.Phase, st.Reason)
			case st.Phase == kubectl.PhaseRunning && st.Ready:
				w.state = StateReady
				log.WithPod(w.PodName).Debug().Msg("worker ready")
				return nil
			}
		}

		if m.clk.Now().After(deadline) {
			w.state = StateFailed
			m.capture(ctx, w)
			reason := ""
			if err == nil {
				reason = st.Reason
			}
			return fmt.Errorf("%w: timed out after %s (phase %s %s)", ErrNotReady, timeout, st.Phase, reason)
		}
	}
}

// Verify queries the aggregate size and file count of the mount point
// through the worker. Best-effort: failures are logged, never fatal.
func (m *Manager) Verify(ctx context.Context, w *Worker) (bytes, files int64) {
	w.state = StateVerifying

	var out strings.Builder
	cmd := []string{"sh", "-c",
		fmt.Sprintf("du -sk %s | cut -f1; find %s -type f | wc -l", MountPath, MountPath)}
	if err := m.gw.Exec(ctx, w.PodName, w.Namespace, cmd, nil, &out); err != nil {
		log.WithPod(w.PodName).Warn().Err(err).Msg("post-transfer verification failed")
		return 0, 0
	}

	fields := strings.Fields(out.String())
	if len(fields) >= 1 {
		var kb int64
		fmt.Sscanf(fields[0], "%d", &kb)
		bytes = kb * 1024
	}
	if len(fields) >= 2 {
		fmt.Sscanf(fields[1], "%d", &files)
	}
	return bytes, files
}

// Teardown captures the diagnostic snapshot and deletes the pod. It runs
// on a context detached from the run's cancellation so interrupted runs
// still clean up; deletion tolerates "already gone". Teardown is safe to
// call more than once.
func (m *Manager) Teardown(ctx context.Context, w *Worker) {
	if w.state == StateDone {
		return
	}
	failed := w.state == StateFailed
	w.state = StateTerminating

	// Detached from run cancellation, bounded on its own.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 60*time.Second)
	defer cancel()

	m.capture(cleanupCtx, w)

	if err := m.gw.DeletePod(cleanupCtx, w.PodName, w.Namespace); err != nil {
		log.WithPod(w.PodName).Error().Err(err).Msg("failed to delete worker pod")
	} else {
		metrics.WorkersDeletedTotal.Inc()
		log.WithPod(w.PodName).Info().Msg("worker pod deleted")
	}

	if failed {
		w.state = StateFailed
	} else {
		w.state = StateDone
	}
}

// capture snapshots status, description, events and log tail. Events and
// logs vanish with the pod object, so this always runs before deletion.
func (m *Manager) capture(ctx context.Context, w *Worker) {
	if w.snapshot != nil {
		return
	}

	snap := &DiagnosticSnapshot{PodName: w.PodName, CapturedAt: m.clk.Now()}
	snap.Status, _ = m.gw.PodStatus(ctx, w.PodName, w.Namespace)
	snap.Describe, _ = m.gw.DescribePod(ctx, w.PodName, w.Namespace)
	snap.Events, _ = m.gw.Events(ctx, w.Namespace, w.PodName)
	snap.Logs, _ = m.gw.Logs(ctx, w.PodName, w.Namespace, m.cfg.LogTailLines)
	w.snapshot = snap

	log.WithPod(w.PodName).Debug().Msg("diagnostic snapshot captured")
}
