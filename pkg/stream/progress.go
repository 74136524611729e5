package stream

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/pvcship/pvcship/pkg/types"
)

// throughputWindow is how many samples the moving average covers.
const throughputWindow = 10

// Tracker accumulates fixed-interval progress samples and computes a
// moving-average throughput over the last few. Samples are display-only;
// nothing is persisted.
type Tracker struct {
	samples []types.ProgressSample
}

// Add records one sample, keeping only the window the average needs.
func (t *Tracker) Add(s types.ProgressSample) {
	t.samples = append(t.samples, s)
	if len(t.samples) > throughputWindow {
		t.samples = t.samples[len(t.samples)-throughputWindow:]
	}
}

// Throughput returns the average bytes/second across the sample window,
// zero until two samples exist.
func (t *Tracker) Throughput() float64 {
	if len(t.samples) < 2 {
		return 0
	}
	first := t.samples[0]
	last := t.samples[len(t.samples)-1]
	elapsed := last.At.Sub(first.At).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.Bytes-first.Bytes) / elapsed
}

// Last returns the most recent sample.
func (t *Tracker) Last() types.ProgressSample {
	if len(t.samples) == 0 {
		return types.ProgressSample{}
	}
	return t.samples[len(t.samples)-1]
}

// countingWriter counts bytes written through it; safe for concurrent
// reads of the count while the stream goroutine writes.
type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingWriter) Count() int64 { return c.n.Load() }

// countingReader is the inbound twin of countingWriter.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingReader) Count() int64 { return c.n.Load() }

// sampleAt builds a sample from a byte count at an instant.
func sampleAt(at time.Time, bytes, files int64) types.ProgressSample {
	return types.ProgressSample{At: at, Bytes: bytes, Files: files}
}
