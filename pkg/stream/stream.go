package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pvcship/pvcship/pkg/archive"
	"github.com/pvcship/pvcship/pkg/clock"
	"github.com/pvcship/pvcship/pkg/kubectl"
	"github.com/pvcship/pvcship/pkg/log"
	"github.com/pvcship/pvcship/pkg/metrics"
	"github.com/pvcship/pvcship/pkg/types"
	"github.com/pvcship/pvcship/pkg/worker"
)

// Config tunes the streaming engine's sampling.
type Config struct {
	// SampleInterval is the progress polling tick.
	SampleInterval time.Duration
	// HealthCheckEvery re-queries pod phase every Nth tick.
	HealthCheckEvery int
}

// DefaultConfig returns the reference sampling: 1s ticks, health check
// every 5th.
func DefaultConfig() Config {
	return Config{SampleInterval: time.Second, HealthCheckEvery: 5}
}

// Engine drives the actual byte movement through a ready worker, in one
// of three mutually exclusive modes: archived export, plain-directory
// export, or import.
type Engine struct {
	gw  kubectl.Gateway
	clk clock.Clock
	cfg Config
}

// NewEngine creates a streaming engine.
func NewEngine(gw kubectl.Gateway, clk clock.Clock, cfg Config) *Engine {
	if cfg.SampleInterval == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{gw: gw, clk: clk, cfg: cfg}
}

// Result is what the stream moved, as observed locally.
type Result struct {
	Bytes int64
}

// Run executes the job's transfer through the worker. The worker must be
// ready; the caller owns its teardown regardless of the outcome.
func (e *Engine) Run(ctx context.Context, job *types.TransferJob, w *worker.Worker) (Result, error) {
	w.MarkRunning()

	switch {
	case job.Direction == types.DirectionExport && job.Format == types.FormatDirectory:
		return e.exportDirectory(ctx, job, w)
	case job.Direction == types.DirectionExport:
		return e.exportArchive(ctx, job, w)
	case job.Direction == types.DirectionImport:
		return e.importStream(ctx, job, w)
	}
	return Result{}, fmt.Errorf("unsupported transfer: %s/%s", job.Direction, job.Format)
}

// supervise runs the blocking data movement in the background while the
// engine samples progress and health on ticks. Cancelling the run context
// kills the underlying kubectl process; a vanished worker fails the
// transfer immediately, its terminal status discarded, because it will
// never produce EOF.
func (e *Engine) supervise(ctx context.Context, w *worker.Worker, probe func() (bytes, files int64), run func(context.Context) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(runCtx) }()

	logger := log.WithPod(w.PodName)
	ticker := e.clk.NewTicker(e.cfg.SampleInterval)
	defer ticker.Stop()

	var tracker Tracker
	tick := 0
	for {
		select {
		case err := <-errCh:
			return err

		case <-ctx.Done():
			cancel()
			<-errCh
			return ctx.Err()

		case <-ticker.C():
			tick++
			bytes, files := probe()
			tracker.Add(sampleAt(e.clk.Now(), bytes, files))
			if rate := tracker.Throughput(); rate > 0 {
				ev := logger.Info().
					Int64("bytes", tracker.Last().Bytes).
					Float64("bytes_per_sec", rate)
				if files > 0 {
					ev = ev.Int64("files", files)
				}
				ev.Msg("transfer progress")
			}

			if tick%e.cfg.HealthCheckEvery == 0 {
				st, err := e.gw.PodStatus(ctx, w.PodName, w.Namespace)
				if err == nil && st.Phase != kubectl.PhaseRunning {
					logger.Error().Str("phase", st.Phase).Msg("worker left running phase mid-transfer")
					cancel()
					<-errCh
					return ErrWorkerGone
				}
			}
		}
	}
}

func remoteTarCreate(compressed bool) []string {
	flags := "-cf"
	if compressed {
		flags = "-czf"
	}
	return []string{"tar", "-C", worker.MountPath, flags, "-", "."}
}

func remoteTarExtract(compressed bool) []string {
	flags := "-xf"
	if compressed {
		flags = "-xzf"
	}
	return []string{"tar", "-C", worker.MountPath, flags, "-"}
}

// exportArchive streams a tar of the mount point out of the worker into
// the destination file, counting bytes as they land.
func (e *Engine) exportArchive(ctx context.Context, job *types.TransferJob, w *worker.Worker) (Result, error) {
	f, err := os.Create(job.DestPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create %s: %w", job.DestPath, err)
	}
	defer f.Close()

	cw := &countingWriter{w: f}
	cmd := remoteTarCreate(job.Format.Compressed())

	probe := func() (int64, int64) { return cw.Count(), 0 }
	err = e.supervise(ctx, w, probe, func(runCtx context.Context) error {
		return e.gw.Exec(runCtx, w.PodName, w.Namespace, cmd, nil, cw)
	})

	res := Result{Bytes: cw.Count()}
	metrics.BytesStreamedTotal.WithLabelValues(string(types.DirectionExport)).Add(float64(res.Bytes))
	if err != nil {
		return res, e.classifyStream(ctx, w, err)
	}
	if err := f.Sync(); err != nil {
		return res, fmt.Errorf("failed to sync %s: %w", job.DestPath, err)
	}
	return res, nil
}

// exportDirectory copies the mount point straight into a local directory,
// deriving progress from destination size rather than stream position.
func (e *Engine) exportDirectory(ctx context.Context, job *types.TransferJob, w *worker.Worker) (Result, error) {
	if err := os.MkdirAll(job.DestPath, 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create %s: %w", job.DestPath, err)
	}

	probe := func() (int64, int64) {
		bytes, files, err := archive.DirUsage(job.DestPath)
		if err != nil {
			return 0, 0
		}
		return bytes, files
	}

	err := e.supervise(ctx, w, probe, func(runCtx context.Context) error {
		return e.gw.CopyFromPod(runCtx, w.PodName, w.Namespace, worker.MountPath, job.DestPath)
	})

	bytes, _ := probe()
	res := Result{Bytes: bytes}
	metrics.BytesStreamedTotal.WithLabelValues(string(types.DirectionExport)).Add(float64(res.Bytes))
	if err != nil {
		return res, e.classifyStream(ctx, w, err)
	}
	return res, nil
}

// importStream pipes the local source into the worker's extraction
// command. A "clear" merge policy wipes the mount point first, as its own
// step: a wipe failure must stay distinguishable from a transfer failure.
func (e *Engine) importStream(ctx context.Context, job *types.TransferJob, w *worker.Worker) (Result, error) {
	if job.Merge == types.MergePolicyClear {
		if err := e.ClearMount(ctx, w); err != nil {
			metrics.TransferFailuresTotal.WithLabelValues("clear").Inc()
			return Result{}, err
		}
	}

	src, compressed, cleanup, err := e.openSource(job)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	cr := &countingReader{r: src}
	cmd := remoteTarExtract(compressed)

	probe := func() (int64, int64) { return cr.Count(), 0 }
	err = e.supervise(ctx, w, probe, func(runCtx context.Context) error {
		if starter, ok := src.(interface{ start(context.Context) }); ok {
			starter.start(runCtx)
		}
		return e.gw.Exec(runCtx, w.PodName, w.Namespace, cmd, cr, io.Discard)
	})

	res := Result{Bytes: cr.Count()}
	metrics.BytesStreamedTotal.WithLabelValues(string(types.DirectionImport)).Add(float64(res.Bytes))
	if err != nil {
		return res, e.classifyStream(ctx, w, err)
	}
	return res, nil
}

// dirSource tars a local directory on the fly into the pipe the remote
// extraction reads from.
type dirSource struct {
	dir string
	pr  *io.PipeReader
	pw  *io.PipeWriter
}

func newDirSource(dir string) *dirSource {
	pr, pw := io.Pipe()
	return &dirSource{dir: dir, pr: pr, pw: pw}
}

func (d *dirSource) Read(p []byte) (int, error) { return d.pr.Read(p) }

func (d *dirSource) start(ctx context.Context) {
	go func() {
		d.pw.CloseWithError(archive.TarDir(ctx, d.dir, d.pw))
	}()
}

// openSource opens the import source: an archive file as-is, a directory
// as an on-the-fly tar stream.
func (e *Engine) openSource(job *types.TransferJob) (io.Reader, bool, func(), error) {
	info, err := os.Stat(job.SourcePath)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to stat source %s: %w", job.SourcePath, err)
	}

	if info.IsDir() {
		src := newDirSource(job.SourcePath)
		return src, false, func() { src.pr.Close() }, nil
	}

	f, err := os.Open(job.SourcePath)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to open source %s: %w", job.SourcePath, err)
	}
	return f, archive.IsCompressed(job.SourcePath), func() { f.Close() }, nil
}

// ClearMount deletes everything under the mount point, leaving the mount
// point itself in place.
func (e *Engine) ClearMount(ctx context.Context, w *worker.Worker) error {
	cmd := []string{"sh", "-c", fmt.Sprintf("find %s -mindepth 1 -delete", worker.MountPath)}
	if err := e.gw.Exec(ctx, w.PodName, w.Namespace, cmd, nil, io.Discard); err != nil {
		return fmt.Errorf("%w: %v", ErrClearFailed, err)
	}
	log.WithPod(w.PodName).Info().Msg("volume contents cleared before import")
	return nil
}

// classifyStream maps a failed stream to its error class, pulling
// OOM-flavored events for the memory-exhaustion branch.
func (e *Engine) classifyStream(ctx context.Context, w *worker.Worker, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrWorkerGone) {
		metrics.TransferFailuresTotal.WithLabelValues("worker-gone").Inc()
		return err
	}

	classified := classify(err, w.MemoryLimit, e.oomEvents(ctx, w))
	if _, ok := classified.(*OOMError); ok {
		metrics.TransferFailuresTotal.WithLabelValues("oom").Inc()
	} else {
		metrics.TransferFailuresTotal.WithLabelValues("generic").Inc()
	}
	return classified
}

func (e *Engine) oomEvents(ctx context.Context, w *worker.Worker) string {
	events, err := e.gw.Events(ctx, w.Namespace, w.PodName)
	if err != nil {
		return ""
	}
	var oom []string
	for _, line := range strings.Split(events, "\n") {
		if strings.Contains(line, "OOM") || strings.Contains(line, "oom") || strings.Contains(line, "MemoryPressure") {
			oom = append(oom, line)
		}
	}
	return strings.Join(oom, "\n")
}
