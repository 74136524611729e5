package kubectl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pvcship/pvcship/pkg/log"
	"github.com/pvcship/pvcship/pkg/quantity"
)

// CLI implements Gateway by driving the kubectl binary. Every call is a
// fresh process under the caller's context, so cancellation kills the
// in-flight command.
type CLI struct {
	// Binary is the kubectl executable, "kubectl" by default.
	Binary string
	// Context selects a kubeconfig context, empty for the current one.
	Context string
}

// NewCLI creates a gateway around the kubectl binary.
func NewCLI(binary, kubeContext string) *CLI {
	if binary == "" {
		binary = "kubectl"
	}
	return &CLI{Binary: binary, Context: kubeContext}
}

func (c *CLI) args(extra ...string) []string {
	var args []string
	if c.Context != "" {
		args = append(args, "--context", c.Context)
	}
	return append(args, extra...)
}

// run executes kubectl, returning stdout. Stderr is folded into the error.
func (c *CLI) run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Binary, c.args(args...)...)
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithComponent("kubectl").Debug().Strs("args", args).Msg("running kubectl")

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), &ExitError{
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return stdout.Bytes(), fmt.Errorf("kubectl %s: %w", args[0], err)
	}
	return stdout.Bytes(), nil
}

// Manifest structs for pod and PVC creation. Only the fields this tool
// sets are present.

type objectMeta struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

type podManifest struct {
	APIVersion string     `json:"apiVersion"`
	Kind       string     `json:"kind"`
	Metadata   objectMeta `json:"metadata"`
	Spec       podSpec    `json:"spec"`
}

type podSpec struct {
	RestartPolicy string        `json:"restartPolicy"`
	Containers    []container   `json:"containers"`
	Volumes       []podVolume   `json:"volumes"`
	Tolerations   []interface{} `json:"tolerations,omitempty"`
}

type container struct {
	Name         string        `json:"name"`
	Image        string        `json:"image"`
	Command      []string      `json:"command"`
	Resources    resources     `json:"resources"`
	VolumeMounts []volumeMount `json:"volumeMounts"`
}

type resources struct {
	Limits map[string]string `json:"limits,omitempty"`
}

type volumeMount struct {
	Name      string `json:"name"`
	MountPath string `json:"mountPath"`
}

type podVolume struct {
	Name string        `json:"name"`
	PVC  *pvcVolumeSrc `json:"persistentVolumeClaim,omitempty"`
}

type pvcVolumeSrc struct {
	ClaimName string `json:"claimName"`
}

type pvcManifest struct {
	APIVersion string     `json:"apiVersion"`
	Kind       string     `json:"kind"`
	Metadata   objectMeta `json:"metadata"`
	Spec       pvcSpec    `json:"spec"`
}

type pvcSpec struct {
	AccessModes      []string     `json:"accessModes"`
	StorageClassName string       `json:"storageClassName,omitempty"`
	Resources        pvcResources `json:"resources"`
}

type pvcResources struct {
	Requests map[string]string `json:"requests"`
}

// renderPodManifest builds the worker pod manifest JSON.
func renderPodManifest(spec PodSpec) ([]byte, error) {
	m := podManifest{
		APIVersion: "v1",
		Kind:       "Pod",
		Metadata: objectMeta{
			Name:      spec.Name,
			Namespace: spec.Namespace,
			Labels:    spec.Labels,
		},
		Spec: podSpec{
			RestartPolicy: "Never",
			Containers: []container{{
				Name:    "worker",
				Image:   spec.Image,
				Command: spec.Command,
				Resources: resources{
					Limits: map[string]string{
						"memory": quantity.FormatGi(spec.MemoryLimitBytes),
					},
				},
				VolumeMounts: []volumeMount{{
					Name:      "data",
					MountPath: spec.MountPath,
				}},
			}},
			Volumes: []podVolume{{
				Name: "data",
				PVC:  &pvcVolumeSrc{ClaimName: spec.ClaimName},
			}},
		},
	}
	return json.Marshal(m)
}

// CreatePod applies the worker pod manifest.
func (c *CLI) CreatePod(ctx context.Context, spec PodSpec) error {
	manifest, err := renderPodManifest(spec)
	if err != nil {
		return fmt.Errorf("failed to render pod manifest: %w", err)
	}
	if _, err := c.run(ctx, bytes.NewReader(manifest), "create", "-f", "-"); err != nil {
		return fmt.Errorf("failed to create pod %s/%s: %w", spec.Namespace, spec.Name, err)
	}
	return nil
}

// Structs for parsing `kubectl get -o json` output.

type podJSON struct {
	Metadata struct {
		Name   string            `json:"name"`
		Labels map[string]string `json:"labels"`
	} `json:"metadata"`
	Spec struct {
		Volumes []struct {
			PVC *struct {
				ClaimName string `json:"claimName"`
			} `json:"persistentVolumeClaim"`
		} `json:"volumes"`
	} `json:"spec"`
	Status struct {
		Phase             string `json:"phase"`
		ContainerStatuses []struct {
			Ready bool `json:"ready"`
			State struct {
				Waiting *struct {
					Reason string `json:"reason"`
				} `json:"waiting"`
				Terminated *struct {
					Reason   string `json:"reason"`
					ExitCode int    `json:"exitCode"`
				} `json:"terminated"`
			} `json:"state"`
		} `json:"containerStatuses"`
	} `json:"status"`
}

func (p *podJSON) toStatus() PodStatus {
	st := PodStatus{Phase: p.Status.Phase, Ready: true}
	if len(p.Status.ContainerStatuses) == 0 {
		st.Ready = false
	}
	for _, cs := range p.Status.ContainerStatuses {
		if !cs.Ready {
			st.Ready = false
		}
		if cs.State.Waiting != nil && st.Reason == "" {
			st.Reason = cs.State.Waiting.Reason
		}
		if cs.State.Terminated != nil && st.Reason == "" {
			st.Reason = cs.State.Terminated.Reason
		}
	}
	return st
}

// PodStatus queries phase and container readiness.
func (c *CLI) PodStatus(ctx context.Context, name, namespace string) (PodStatus, error) {
	out, err := c.run(ctx, nil, "get", "pod", name, "-n", namespace, "-o", "json")
	if err != nil {
		return PodStatus{}, fmt.Errorf("failed to get pod %s/%s: %w", namespace, name, err)
	}
	var p podJSON
	if err := json.Unmarshal(out, &p); err != nil {
		return PodStatus{}, fmt.Errorf("failed to parse pod status: %w", err)
	}
	return p.toStatus(), nil
}

// DeletePod removes the pod; "not found" is treated as already deleted.
func (c *CLI) DeletePod(ctx context.Context, name, namespace string) error {
	_, err := c.run(ctx, nil, "delete", "pod", name, "-n", namespace, "--wait=false", "--ignore-not-found")
	if err != nil {
		return fmt.Errorf("failed to delete pod %s/%s: %w", namespace, name, err)
	}
	return nil
}

// Exec runs a command in the pod with streamed stdin/stdout. The remote
// exit code comes back through kubectl's own exit code as *ExitError.
func (c *CLI) Exec(ctx context.Context, pod, namespace string, command []string, stdin io.Reader, stdout io.Writer) error {
	args := []string{"exec"}
	if stdin != nil {
		args = append(args, "-i")
	}
	args = append(args, pod, "-n", namespace, "--")
	args = append(args, command...)

	cmd := exec.CommandContext(ctx, c.Binary, c.args(args...)...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return fmt.Errorf("kubectl exec: %w", err)
	}
	return nil
}

// CopyFromPod recursively copies pod files to a local path.
func (c *CLI) CopyFromPod(ctx context.Context, pod, namespace, podPath, localPath string) error {
	src := fmt.Sprintf("%s/%s:%s", namespace, pod, podPath)
	if _, err := c.run(ctx, nil, "cp", src, localPath, "--retries", "3"); err != nil {
		return fmt.Errorf("failed to copy from %s: %w", src, err)
	}
	return nil
}

// DescribePod captures the human-readable pod description.
func (c *CLI) DescribePod(ctx context.Context, name, namespace string) (string, error) {
	out, err := c.run(ctx, nil, "describe", "pod", name, "-n", namespace)
	return string(out), err
}

// Events returns recent events scoped to one object, oldest first.
func (c *CLI) Events(ctx context.Context, namespace, object string) (string, error) {
	out, err := c.run(ctx, nil, "get", "events", "-n", namespace,
		"--field-selector", "involvedObject.name="+object,
		"--sort-by", ".lastTimestamp")
	return string(out), err
}

// Logs returns the last tailLines of the pod's container log.
func (c *CLI) Logs(ctx context.Context, pod, namespace string, tailLines int) (string, error) {
	out, err := c.run(ctx, nil, "logs", pod, "-n", namespace, "--tail", strconv.Itoa(tailLines))
	return string(out), err
}

type pvcJSON struct {
	Metadata struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace"`
	} `json:"metadata"`
	Spec struct {
		AccessModes []string `json:"accessModes"`
		Resources   struct {
			Requests struct {
				Storage string `json:"storage"`
			} `json:"requests"`
		} `json:"resources"`
	} `json:"spec"`
	Status struct {
		Phase string `json:"phase"`
	} `json:"status"`
}

// GetPVC fetches one claim; a missing claim returns nil without error.
func (c *CLI) GetPVC(ctx context.Context, name, namespace string) (*PVC, error) {
	out, err := c.run(ctx, nil, "get", "pvc", name, "-n", namespace, "-o", "json")
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) && strings.Contains(exitErr.Stderr, "not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pvc %s/%s: %w", namespace, name, err)
	}
	var p pvcJSON
	if err := json.Unmarshal(out, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pvc: %w", err)
	}
	return &PVC{
		Name:        p.Metadata.Name,
		Namespace:   p.Metadata.Namespace,
		Phase:       p.Status.Phase,
		AccessModes: p.Spec.AccessModes,
		Capacity:    p.Spec.Resources.Requests.Storage,
	}, nil
}

// CreatePVC provisions a new claim.
func (c *CLI) CreatePVC(ctx context.Context, spec PVCSpec) error {
	modes := spec.AccessModes
	if len(modes) == 0 {
		modes = []string{"ReadWriteOnce"}
	}
	m := pvcManifest{
		APIVersion: "v1",
		Kind:       "PersistentVolumeClaim",
		Metadata:   objectMeta{Name: spec.Name, Namespace: spec.Namespace},
		Spec: pvcSpec{
			AccessModes:      modes,
			StorageClassName: spec.StorageClass,
			Resources: pvcResources{
				Requests: map[string]string{"storage": spec.Capacity},
			},
		},
	}
	manifest, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to render pvc manifest: %w", err)
	}
	if _, err := c.run(ctx, bytes.NewReader(manifest), "create", "-f", "-"); err != nil {
		return fmt.Errorf("failed to create pvc %s/%s: %w", spec.Namespace, spec.Name, err)
	}
	return nil
}

// PodsByClaim lists pods in the namespace mounting the named claim.
func (c *CLI) PodsByClaim(ctx context.Context, namespace, claim string) ([]PodInfo, error) {
	out, err := c.run(ctx, nil, "get", "pods", "-n", namespace, "-o", "json")
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}
	var list struct {
		Items []podJSON `json:"items"`
	}
	if err := json.Unmarshal(out, &list); err != nil {
		return nil, fmt.Errorf("failed to parse pod list: %w", err)
	}

	var holders []PodInfo
	for _, p := range list.Items {
		for _, v := range p.Spec.Volumes {
			if v.PVC != nil && v.PVC.ClaimName == claim {
				holders = append(holders, PodInfo{
					Name:   p.Metadata.Name,
					Phase:  p.Status.Phase,
					Labels: p.Metadata.Labels,
				})
				break
			}
		}
	}
	return holders, nil
}

// ListNamespaces returns the cluster's namespace names.
func (c *CLI) ListNamespaces(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, nil, "get", "namespaces", "-o", "jsonpath={.items[*].metadata.name}")
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	return strings.Fields(string(out)), nil
}

// CreateNamespace creates a namespace.
func (c *CLI) CreateNamespace(ctx context.Context, name string) error {
	if _, err := c.run(ctx, nil, "create", "namespace", name); err != nil {
		return fmt.Errorf("failed to create namespace %s: %w", name, err)
	}
	return nil
}

type scJSON struct {
	Items []struct {
		Metadata struct {
			Name        string            `json:"name"`
			Annotations map[string]string `json:"annotations"`
		} `json:"metadata"`
	} `json:"items"`
}

const defaultClassAnnotation = "storageclass.kubernetes.io/is-default-class"

// ListStorageClasses returns the provisionable classes with the cluster
// default marked.
func (c *CLI) ListStorageClasses(ctx context.Context) ([]StorageClass, error) {
	out, err := c.run(ctx, nil, "get", "storageclasses", "-o", "json")
	if err != nil {
		return nil, fmt.Errorf("failed to list storage classes: %w", err)
	}
	var list scJSON
	if err := json.Unmarshal(out, &list); err != nil {
		return nil, fmt.Errorf("failed to parse storage classes: %w", err)
	}

	classes := make([]StorageClass, 0, len(list.Items))
	for _, item := range list.Items {
		classes = append(classes, StorageClass{
			Name:    item.Metadata.Name,
			Default: item.Metadata.Annotations[defaultClassAnnotation] == "true",
		})
	}
	return classes, nil
}
