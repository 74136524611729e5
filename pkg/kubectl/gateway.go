package kubectl

import (
	"context"
	"fmt"
	"io"
)

// PodSpec describes the ephemeral worker pod bound to one volume. The pod
// carries no application logic; it exists to expose the claim's mount point
// to exec and cp.
type PodSpec struct {
	Name             string
	Namespace        string
	Image            string
	Command          []string
	MemoryLimitBytes int64
	ClaimName        string
	MountPath        string
	Labels           map[string]string
}

// PodStatus is the subset of pod state the lifecycle manager polls.
type PodStatus struct {
	Phase  string // Pending, Running, Succeeded, Failed, Unknown
	Ready  bool   // container readiness probe
	Reason string // waiting/terminated reason when not running
}

const (
	PhasePending   = "Pending"
	PhaseRunning   = "Running"
	PhaseSucceeded = "Succeeded"
	PhaseFailed    = "Failed"
	PhaseUnknown   = "Unknown"
)

// PodInfo identifies a pod holding a claim, for conflict detection.
type PodInfo struct {
	Name   string
	Phase  string
	Labels map[string]string
}

// PVC is the claim state relevant to pre-check and provisioning.
type PVC struct {
	Name        string
	Namespace   string
	Phase       string   // Bound, Pending, Lost
	AccessModes []string // ReadWriteOnce, ReadWriteMany, ...
	Capacity    string   // declared size, e.g. "50Gi"
}

// Exclusive reports whether the claim's access mode allows only one
// attached consumer at a time.
func (p *PVC) Exclusive() bool {
	for _, m := range p.AccessModes {
		if m == "ReadWriteMany" || m == "ReadOnlyMany" {
			return false
		}
	}
	return true
}

// PVCSpec describes a claim to provision.
type PVCSpec struct {
	Name         string
	Namespace    string
	StorageClass string
	Capacity     string
	AccessModes  []string
}

// StorageClass is a provisionable class, with the cluster default marked.
type StorageClass struct {
	Name    string
	Default bool
}

// ExitError carries the remote command's exit code out of Exec.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command exited with code %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// Gateway is the narrow contract against the cluster control plane. The
// production implementation drives the kubectl binary; tests substitute the
// Fake.
type Gateway interface {
	CreatePod(ctx context.Context, spec PodSpec) error
	PodStatus(ctx context.Context, name, namespace string) (PodStatus, error)
	// DeletePod is idempotent: deleting an already-gone pod is not an error.
	DeletePod(ctx context.Context, name, namespace string) error

	// Exec runs a command inside the pod, streaming stdin/stdout. A non-zero
	// remote exit code surfaces as *ExitError.
	Exec(ctx context.Context, pod, namespace string, command []string, stdin io.Reader, stdout io.Writer) error
	// CopyFromPod recursively copies a pod path to a local path.
	CopyFromPod(ctx context.Context, pod, namespace, podPath, localPath string) error

	DescribePod(ctx context.Context, name, namespace string) (string, error)
	Events(ctx context.Context, namespace, object string) (string, error)
	Logs(ctx context.Context, pod, namespace string, tailLines int) (string, error)

	// GetPVC returns nil (and no error) when the claim does not exist.
	GetPVC(ctx context.Context, name, namespace string) (*PVC, error)
	CreatePVC(ctx context.Context, spec PVCSpec) error
	PodsByClaim(ctx context.Context, namespace, claim string) ([]PodInfo, error)

	ListNamespaces(ctx context.Context) ([]string, error)
	CreateNamespace(ctx context.Context, name string) error
	ListStorageClasses(ctx context.Context) ([]StorageClass, error)
}
