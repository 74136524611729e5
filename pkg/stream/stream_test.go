package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvcship/pvcship/pkg/archive"
	"github.com/pvcship/pvcship/pkg/clock"
	"github.com/pvcship/pvcship/pkg/kubectl"
	"github.com/pvcship/pvcship/pkg/log"
	"github.com/pvcship/pvcship/pkg/quantity"
	"github.com/pvcship/pvcship/pkg/types"
	"github.com/pvcship/pvcship/pkg/worker"
)

func newTestEngine(fake *kubectl.Fake, fc *clock.Fake) *Engine {
	return NewEngine(fake, fc, Config{SampleInterval: time.Second, HealthCheckEvery: 5})
}

func readyWorker() *worker.Worker {
	return &worker.Worker{
		PodName:     "pvcship-pgdata-test",
		Namespace:   "prod",
		Volume:      types.VolumeRef{Name: "pgdata", Namespace: "prod"},
		MemoryLimit: 2 * quantity.GiB,
	}
}

func TestTrackerThroughput(t *testing.T) {
	var tr Tracker
	start := time.Unix(0, 0)

	assert.Zero(t, tr.Throughput(), "no samples yet")

	tr.Add(sampleAt(start, 0, 0))
	tr.Add(sampleAt(start.Add(time.Second), 100, 0))
	assert.InDelta(t, 100.0, tr.Throughput(), 0.01)

	tr.Add(sampleAt(start.Add(2*time.Second), 400, 0))
	assert.InDelta(t, 200.0, tr.Throughput(), 0.01)
}

func TestTrackerWindow(t *testing.T) {
	var tr Tracker
	start := time.Unix(0, 0)

	// 20 samples at 100 B/s for the first ten, then 1000 B/s: only the
	// last ten should shape the average.
	bytesTotal := int64(0)
	for i := 0; i < 20; i++ {
		rate := int64(100)
		if i >= 10 {
			rate = 1000
		}
		bytesTotal += rate
		tr.Add(sampleAt(start.Add(time.Duration(i)*time.Second), bytesTotal, 0))
	}

	assert.InDelta(t, 1000.0, tr.Throughput(), 0.01)
}

func TestExportArchiveStreamsToFile(t *testing.T) {
	fake := kubectl.NewFake()
	payload := []byte("tar-stream-bytes")
	fake.ExecFunc = func(ctx context.Context, pod string, command []string, stdin io.Reader, stdout io.Writer) error {
		_, err := stdout.Write(payload)
		return err
	}

	job := &types.TransferJob{
		Direction: types.DirectionExport,
		Format:    types.FormatArchiveGz,
		Volume:    types.VolumeRef{Name: "pgdata", Namespace: "prod"},
		DestPath:  filepath.Join(t.TempDir(), "pgdata@prod.tgz"),
	}

	e := newTestEngine(fake, clock.NewFake(time.Unix(0, 0)))
	res, err := e.Run(context.Background(), job, readyWorker())
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), res.Bytes)

	got, err := os.ReadFile(job.DestPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.Len(t, fake.ExecCommands, 1)
	assert.Equal(t, []string{"tar", "-C", "/data", "-czf", "-", "."}, fake.ExecCommands[0])
}

func TestExportUncompressedCommand(t *testing.T) {
	fake := kubectl.NewFake()
	job := &types.TransferJob{
		Direction: types.DirectionExport,
		Format:    types.FormatArchive,
		Volume:    types.VolumeRef{Name: "pgdata", Namespace: "prod"},
		DestPath:  filepath.Join(t.TempDir(), "pgdata@prod.tar"),
	}

	e := newTestEngine(fake, clock.NewFake(time.Unix(0, 0)))
	_, err := e.Run(context.Background(), job, readyWorker())
	require.NoError(t, err)

	require.Len(t, fake.ExecCommands, 1)
	assert.Equal(t, []string{"tar", "-C", "/data", "-cf", "-", "."}, fake.ExecCommands[0])
}

func TestImportClearsBeforeStreaming(t *testing.T) {
	fake := kubectl.NewFake()
	src := filepath.Join(t.TempDir(), "pgdata@prod.tar")
	require.NoError(t, os.WriteFile(src, []byte("archive"), 0644))

	job := &types.TransferJob{
		Direction:  types.DirectionImport,
		Format:     types.FormatArchive,
		Volume:     types.VolumeRef{Name: "pgdata", Namespace: "prod"},
		SourcePath: src,
		Merge:      types.MergePolicyClear,
	}

	e := newTestEngine(fake, clock.NewFake(time.Unix(0, 0)))
	_, err := e.Run(context.Background(), job, readyWorker())
	require.NoError(t, err)

	require.Len(t, fake.ExecCommands, 2)
	assert.Contains(t, strings.Join(fake.ExecCommands[0], " "), "-mindepth 1 -delete")
	assert.Equal(t, []string{"tar", "-C", "/data", "-xf", "-"}, fake.ExecCommands[1])
}

func TestImportClearFailureIsDistinct(t *testing.T) {
	fake := kubectl.NewFake()
	fake.ExecFunc = func(ctx context.Context, pod string, command []string, stdin io.Reader, stdout io.Writer) error {
		return &kubectl.ExitError{Code: 1, Stderr: "read-only file system"}
	}

	src := filepath.Join(t.TempDir(), "x.tar")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0644))

	job := &types.TransferJob{
		Direction:  types.DirectionImport,
		Format:     types.FormatArchive,
		Volume:     types.VolumeRef{Name: "pgdata", Namespace: "prod"},
		SourcePath: src,
		Merge:      types.MergePolicyClear,
	}

	e := newTestEngine(fake, clock.NewFake(time.Unix(0, 0)))
	_, err := e.Run(context.Background(), job, readyWorker())
	assert.ErrorIs(t, err, ErrClearFailed)
	assert.Len(t, fake.ExecCommands, 1, "stream never started after clear failure")
}

func TestImportMergeSkipsClear(t *testing.T) {
	fake := kubectl.NewFake()
	src := filepath.Join(t.TempDir(), "x.tgz")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0644))

	job := &types.TransferJob{
		Direction:  types.DirectionImport,
		Format:     types.FormatArchiveGz,
		Volume:     types.VolumeRef{Name: "pgdata", Namespace: "prod"},
		SourcePath: src,
		Merge:      types.MergePolicyMerge,
	}

	e := newTestEngine(fake, clock.NewFake(time.Unix(0, 0)))
	_, err := e.Run(context.Background(), job, readyWorker())
	require.NoError(t, err)

	require.Len(t, fake.ExecCommands, 1)
	assert.Equal(t, []string{"tar", "-C", "/data", "-xzf", "-"}, fake.ExecCommands[0])
}

func TestImportDirectorySourceIsTarred(t *testing.T) {
	fake := kubectl.NewFake()
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "f.txt"), []byte("content"), 0644))

	var received bytes.Buffer
	fake.ExecFunc = func(ctx context.Context, pod string, command []string, stdin io.Reader, stdout io.Writer) error {
		_, err := io.Copy(&received, stdin)
		return err
	}

	job := &types.TransferJob{
		Direction:  types.DirectionImport,
		Format:     types.FormatArchive,
		Volume:     types.VolumeRef{Name: "pgdata", Namespace: "prod"},
		SourcePath: srcDir,
		Merge:      types.MergePolicyMerge,
	}

	e := newTestEngine(fake, clock.NewFake(time.Unix(0, 0)))
	res, err := e.Run(context.Background(), job, readyWorker())
	require.NoError(t, err)
	assert.Positive(t, res.Bytes)

	// The received stream is a readable tar containing the file.
	dst := t.TempDir()
	require.NoError(t, archive.Extract(context.Background(), &received, dst))
	got, err := os.ReadFile(filepath.Join(dst, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
}

func TestSuperviseSamplesFileCount(t *testing.T) {
	var buf bytes.Buffer
	log.Init(log.Config{Level: log.DebugLevel, JSONOutput: true, Output: &buf})

	fake := kubectl.NewFake()
	fc := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(fake, fc)

	// Probe reports growing byte counts so throughput is nonzero, plus a
	// file count the way the directory export does.
	var n int64
	probe := func() (int64, int64) {
		n += 100
		return n, n / 50
	}

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- e.supervise(context.Background(), readyWorker(), probe, func(ctx context.Context) error {
			<-release
			return nil
		})
	}()

	for i := 0; i < 3; i++ {
		time.Sleep(10 * time.Millisecond)
		fc.Advance(time.Second)
	}
	close(release)
	require.NoError(t, <-done)

	assert.Contains(t, buf.String(), `"files":`)
	assert.Contains(t, buf.String(), "transfer progress")
}

func TestOOMExitReportedAsMemoryExhaustion(t *testing.T) {
	fake := kubectl.NewFake()
	fake.ExecFunc = func(ctx context.Context, pod string, command []string, stdin io.Reader, stdout io.Writer) error {
		return &kubectl.ExitError{Code: 137}
	}

	job := &types.TransferJob{
		Direction: types.DirectionExport,
		Format:    types.FormatArchiveGz,
		Volume:    types.VolumeRef{Name: "pgdata", Namespace: "prod"},
		DestPath:  filepath.Join(t.TempDir(), "out.tgz"),
	}

	e := newTestEngine(fake, clock.NewFake(time.Unix(0, 0)))
	_, err := e.Run(context.Background(), job, readyWorker())

	var oom *OOMError
	require.ErrorAs(t, err, &oom)
	assert.Equal(t, 2*quantity.GiB, oom.MemoryLimit)
	assert.Contains(t, oom.Error(), "137")
	assert.Contains(t, oom.Error(), "2Gi")
}

func TestGenericExitIsNotOOM(t *testing.T) {
	fake := kubectl.NewFake()
	fake.ExecFunc = func(ctx context.Context, pod string, command []string, stdin io.Reader, stdout io.Writer) error {
		return &kubectl.ExitError{Code: 2, Stderr: "tar: short read"}
	}

	job := &types.TransferJob{
		Direction: types.DirectionExport,
		Format:    types.FormatArchive,
		Volume:    types.VolumeRef{Name: "pgdata", Namespace: "prod"},
		DestPath:  filepath.Join(t.TempDir(), "out.tar"),
	}

	e := newTestEngine(fake, clock.NewFake(time.Unix(0, 0)))
	_, err := e.Run(context.Background(), job, readyWorker())

	require.Error(t, err)
	var oom *OOMError
	assert.False(t, errors.As(err, &oom))
}

func TestVanishedWorkerFailsStream(t *testing.T) {
	fake := kubectl.NewFake()
	w := readyWorker()
	fake.SetPodStatus(w.PodName, w.Namespace, kubectl.PodStatus{Phase: kubectl.PhaseFailed})

	// The stream blocks until its context is cancelled by the health check.
	fake.ExecFunc = func(ctx context.Context, pod string, command []string, stdin io.Reader, stdout io.Writer) error {
		<-ctx.Done()
		return ctx.Err()
	}

	job := &types.TransferJob{
		Direction: types.DirectionExport,
		Format:    types.FormatArchive,
		Volume:    w.Volume,
		DestPath:  filepath.Join(t.TempDir(), "out.tar"),
	}

	fc := clock.NewFake(time.Unix(0, 0))
	e := newTestEngine(fake, fc)

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), job, w)
		done <- err
	}()

	// Five ticks trigger the health check, which sees the dead pod.
	for i := 0; i < 8; i++ {
		time.Sleep(10 * time.Millisecond)
		fc.Advance(time.Second)
	}

	assert.ErrorIs(t, <-done, ErrWorkerGone)
}

func TestCancellationKillsStream(t *testing.T) {
	fake := kubectl.NewFake()
	fake.ExecFunc = func(ctx context.Context, pod string, command []string, stdin io.Reader, stdout io.Writer) error {
		<-ctx.Done()
		return ctx.Err()
	}

	job := &types.TransferJob{
		Direction: types.DirectionExport,
		Format:    types.FormatArchive,
		Volume:    types.VolumeRef{Name: "pgdata", Namespace: "prod"},
		DestPath:  filepath.Join(t.TempDir(), "out.tar"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := newTestEngine(fake, clock.NewFake(time.Unix(0, 0)))

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(ctx, job, readyWorker())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}
