package kubectl

import (
	"encoding/json"
	"testing"

	"github.com/pvcship/pvcship/pkg/quantity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPodManifest(t *testing.T) {
	manifest, err := renderPodManifest(PodSpec{
		Name:             "pvcship-pgdata-abc123",
		Namespace:        "prod",
		Image:            "alpine:3.20",
		Command:          []string{"sleep", "86400"},
		MemoryLimitBytes: 2 * quantity.GiB,
		ClaimName:        "pgdata",
		MountPath:        "/data",
		Labels:           map[string]string{"app.kubernetes.io/managed-by": "pvcship"},
	})
	require.NoError(t, err)

	var m podManifest
	require.NoError(t, json.Unmarshal(manifest, &m))

	assert.Equal(t, "v1", m.APIVersion)
	assert.Equal(t, "Pod", m.Kind)
	assert.Equal(t, "pvcship-pgdata-abc123", m.Metadata.Name)
	assert.Equal(t, "prod", m.Metadata.Namespace)
	assert.Equal(t, "Never", m.Spec.RestartPolicy)

	require.Len(t, m.Spec.Containers, 1)
	c := m.Spec.Containers[0]
	assert.Equal(t, "2Gi", c.Resources.Limits["memory"])
	require.Len(t, c.VolumeMounts, 1)
	assert.Equal(t, "/data", c.VolumeMounts[0].MountPath)

	require.Len(t, m.Spec.Volumes, 1)
	require.NotNil(t, m.Spec.Volumes[0].PVC)
	assert.Equal(t, "pgdata", m.Spec.Volumes[0].PVC.ClaimName)
}

func TestPodJSONToStatus(t *testing.T) {
	raw := `{
		"metadata": {"name": "w1"},
		"status": {
			"phase": "Running",
			"containerStatuses": [{"ready": true, "state": {}}]
		}
	}`
	var p podJSON
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	st := p.toStatus()
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.True(t, st.Ready)
}

func TestPodJSONToStatusWaiting(t *testing.T) {
	raw := `{
		"status": {
			"phase": "Pending",
			"containerStatuses": [{
				"ready": false,
				"state": {"waiting": {"reason": "ImagePullBackOff"}}
			}]
		}
	}`
	var p podJSON
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	st := p.toStatus()
	assert.Equal(t, PhasePending, st.Phase)
	assert.False(t, st.Ready)
	assert.Equal(t, "ImagePullBackOff", st.Reason)
}

func TestPodJSONToStatusNoContainers(t *testing.T) {
	var p podJSON
	require.NoError(t, json.Unmarshal([]byte(`{"status":{"phase":"Pending"}}`), &p))

	st := p.toStatus()
	assert.False(t, st.Ready, "a pod with no container statuses is not ready")
}

func TestPVCExclusive(t *testing.T) {
	rwo := &PVC{AccessModes: []string{"ReadWriteOnce"}}
	rwx := &PVC{AccessModes: []string{"ReadWriteMany"}}
	empty := &PVC{}

	assert.True(t, rwo.Exclusive())
	assert.False(t, rwx.Exclusive())
	assert.True(t, empty.Exclusive())
}

func TestCLIArgsIncludeContext(t *testing.T) {
	c := NewCLI("", "staging-cluster")
	assert.Equal(t, "kubectl", c.Binary)
	assert.Equal(t, []string{"--context", "staging-cluster", "get", "pods"}, c.args("get", "pods"))

	noCtx := NewCLI("/usr/local/bin/kubectl", "")
	assert.Equal(t, []string{"get", "pods"}, noCtx.args("get", "pods"))
}

func TestExitError(t *testing.T) {
	err := &ExitError{Code: 137, Stderr: "killed"}
	assert.Contains(t, err.Error(), "137")
	assert.Contains(t, err.Error(), "killed")
}
