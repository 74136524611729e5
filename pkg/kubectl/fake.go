package kubectl

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Fake is an in-memory Gateway for tests. Cluster state is plain maps;
// behaviors that tests need to script (exec results, readiness flips) hang
// off function hooks.
type Fake struct {
	mu sync.Mutex

	PVCs           map[string]*PVC      // keyed "namespace/name"
	Namespaces     []string
	StorageClasses []StorageClass
	ClaimHolders   map[string][]PodInfo // keyed "namespace/claim"

	Pods map[string]PodStatus // keyed "namespace/name"

	// ExecFunc, when set, handles Exec calls. Return *ExitError for non-zero
	// remote exits. The context is the per-call exec context, so hooks can
	// block until cancellation.
	ExecFunc func(ctx context.Context, pod string, command []string, stdin io.Reader, stdout io.Writer) error
	// StatusFunc, when set, overrides PodStatus lookups.
	StatusFunc func(name string) (PodStatus, error)
	// GetPVCErr, when set, fails every GetPVC call. Simulates an
	// unreachable cluster during the pre-check.
	GetPVCErr error

	CreatedPods   []PodSpec
	DeletedPods   []string
	CreatedPVCs   []PVCSpec
	CreatedNS     []string
	ExecCommands  [][]string
	SnapshotCalls int
}

// NewFake returns an empty fake cluster.
func NewFake() *Fake {
	return &Fake{
		PVCs:         map[string]*PVC{},
		ClaimHolders: map[string][]PodInfo{},
		Pods:         map[string]PodStatus{},
	}
}

func key(namespace, name string) string { return namespace + "/" + name }

func (f *Fake) CreatePod(ctx context.Context, spec PodSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreatedPods = append(f.CreatedPods, spec)
	if _, ok := f.Pods[key(spec.Namespace, spec.Name)]; !ok {
		f.Pods[key(spec.Namespace, spec.Name)] = PodStatus{Phase: PhaseRunning, Ready: true}
	}
	return nil
}

func (f *Fake) PodStatus(ctx context.Context, name, namespace string) (PodStatus, error) {
	f.mu.Lock()
	statusFunc := f.StatusFunc
	st, ok := f.Pods[key(namespace, name)]
	f.mu.Unlock()

	if statusFunc != nil {
		return statusFunc(name)
	}
	if !ok {
		return PodStatus{}, fmt.Errorf("pod %s/%s not found", namespace, name)
	}
	return st, nil
}

// SetPodStatus scripts the status a pod reports.
func (f *Fake) SetPodStatus(name, namespace string, st PodStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pods[key(namespace, name)] = st
}

func (f *Fake) DeletePod(ctx context.Context, name, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedPods = append(f.DeletedPods, key(namespace, name))
	delete(f.Pods, key(namespace, name))
	return nil
}

func (f *Fake) Exec(ctx context.Context, pod, namespace string, command []string, stdin io.Reader, stdout io.Writer) error {
	f.mu.Lock()
	f.ExecCommands = append(f.ExecCommands, command)
	execFunc := f.ExecFunc
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if execFunc != nil {
		return execFunc(ctx, pod, command, stdin, stdout)
	}
	return nil
}

func (f *Fake) CopyFromPod(ctx context.Context, pod, namespace, podPath, localPath string) error {
	return ctx.Err()
}

func (f *Fake) DescribePod(ctx context.Context, name, namespace string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SnapshotCalls++
	return "Name: " + name, nil
}

func (f *Fake) Events(ctx context.Context, namespace, object string) (string, error) {
	return "", nil
}

func (f *Fake) Logs(ctx context.Context, pod, namespace string, tailLines int) (string, error) {
	return "", nil
}

func (f *Fake) GetPVC(ctx context.Context, name, namespace string) (*PVC, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetPVCErr != nil {
		return nil, f.GetPVCErr
	}
	return f.PVCs[key(namespace, name)], nil
}

func (f *Fake) CreatePVC(ctx context.Context, spec PVCSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreatedPVCs = append(f.CreatedPVCs, spec)
	f.PVCs[key(spec.Namespace, spec.Name)] = &PVC{
		Name:        spec.Name,
		Namespace:   spec.Namespace,
		Phase:       "Bound",
		AccessModes: spec.AccessModes,
		Capacity:    spec.Capacity,
	}
	return nil
}

func (f *Fake) PodsByClaim(ctx context.Context, namespace, claim string) ([]PodInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ClaimHolders[key(namespace, claim)], nil
}

func (f *Fake) ListNamespaces(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.Namespaces...)
	sort.Strings(out)
	return out, nil
}

func (f *Fake) CreateNamespace(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreatedNS = append(f.CreatedNS, name)
	f.Namespaces = append(f.Namespaces, name)
	return nil
}

func (f *Fake) ListStorageClasses(ctx context.Context) ([]StorageClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StorageClass(nil), f.StorageClasses...), nil
}
