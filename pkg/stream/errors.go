package stream

import (
	"errors"
	"fmt"

	"github.com/pvcship/pvcship/pkg/kubectl"
	"github.com/pvcship/pvcship/pkg/quantity"
)

// OOMExitCode is the abnormal-termination code the node's memory
// controller produces when it kills the streaming process (128 + SIGKILL).
const OOMExitCode = 137

// ErrWorkerGone means the worker pod left the running phase mid-transfer.
// A vanished worker never delivers EOF, so the health check kills the
// stream instead of waiting for one.
var ErrWorkerGone = errors.New("worker pod is no longer running")

// ErrClearFailed wraps a failure of the pre-import wipe step, which must
// stay distinguishable from a transfer failure.
var ErrClearFailed = errors.New("failed to clear volume contents")

// OOMError reports a stream killed by the distinguished abnormal code,
// with the context a human needs to act on it.
type OOMError struct {
	MemoryLimit int64
	Events      string
}

func (e *OOMError) Error() string {
	return fmt.Sprintf(
		"stream killed with code %d, likely out of memory (worker limit %s); "+
			"retry with the uncompressed (tar) or plain-directory format",
		OOMExitCode, quantity.FormatGi(e.MemoryLimit))
}

// classify turns a stream exit into the reported error class: exit 137 is
// the memory-exhaustion branch, every other failure is generic. Nothing is
// retried.
func classify(err error, memoryLimit int64, events string) error {
	var exitErr *kubectl.ExitError
	if errors.As(err, &exitErr) && exitErr.Code == OOMExitCode {
		return &OOMError{MemoryLimit: memoryLimit, Events: events}
	}
	return fmt.Errorf("stream failed: %w", err)
}
