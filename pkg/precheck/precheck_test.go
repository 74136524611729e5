package precheck

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvcship/pvcship/pkg/kubectl"
	"github.com/pvcship/pvcship/pkg/log"
	"github.com/pvcship/pvcship/pkg/prompt"
	"github.com/pvcship/pvcship/pkg/types"
	"github.com/pvcship/pvcship/pkg/worker"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, Output: os.Stderr})
}

func exportJob(volume, namespace, dest string) *types.TransferJob {
	return &types.TransferJob{
		Direction: types.DirectionExport,
		Format:    types.FormatArchiveGz,
		Volume:    types.VolumeRef{Name: volume, Namespace: namespace},
		DestPath:  dest,
	}
}

func boundPVC(name, namespace string, modes ...string) *kubectl.PVC {
	if len(modes) == 0 {
		modes = []string{"ReadWriteOnce"}
	}
	return &kubectl.PVC{Name: name, Namespace: namespace, Phase: "Bound", AccessModes: modes, Capacity: "10Gi"}
}

func TestScanAcceptsCleanJobs(t *testing.T) {
	gw := kubectl.NewFake()
	gw.PVCs["prod/data"] = boundPVC("data", "prod")

	s := NewScanner(gw, &prompt.Fake{})
	accepted, skipped, err := s.Scan(context.Background(), []*types.TransferJob{
		exportJob("data", "prod", filepath.Join(t.TempDir(), "data.tgz")),
	})
	require.NoError(t, err)
	assert.Len(t, accepted, 1)
	assert.Empty(t, skipped)
}

func TestScanDropsMissingVolume(t *testing.T) {
	gw := kubectl.NewFake()

	s := NewScanner(gw, &prompt.Fake{})
	accepted, skipped, err := s.Scan(context.Background(), []*types.TransferJob{
		exportJob("ghost", "prod", filepath.Join(t.TempDir(), "ghost.tgz")),
	})
	require.NoError(t, err)
	assert.Empty(t, accepted)
	require.Len(t, skipped, 1)
	assert.Equal(t, types.ConflictVolumeMissing, skipped[0].Conflict.Kind)
}

func TestScanExclusiveAttachConflict(t *testing.T) {
	gw := kubectl.NewFake()
	gw.PVCs["prod/data"] = boundPVC("data", "prod", "ReadWriteOnce")
	gw.ClaimHolders["prod/data"] = []kubectl.PodInfo{
		{Name: "app-0", Phase: kubectl.PhaseRunning},
	}

	t.Run("declined", func(t *testing.T) {
		p := &prompt.Fake{ConfirmAnswers: []bool{false}}
		s := NewScanner(gw, p)
		accepted, skipped, err := s.Scan(context.Background(), []*types.TransferJob{
			exportJob("data", "prod", filepath.Join(t.TempDir(), "data.tgz")),
		})
		require.NoError(t, err)
		assert.Empty(t, accepted)
		require.Len(t, skipped, 1)
		assert.Equal(t, types.ConflictExclusiveAttach, skipped[0].Conflict.Kind)
	})

	t.Run("confirmed", func(t *testing.T) {
		p := &prompt.Fake{ConfirmAnswers: []bool{true}}
		s := NewScanner(gw, p)
		accepted, skipped, err := s.Scan(context.Background(), []*types.TransferJob{
			exportJob("data", "prod", filepath.Join(t.TempDir(), "data.tgz")),
		})
		require.NoError(t, err)
		assert.Len(t, accepted, 1)
		assert.Empty(t, skipped)
	})
}

func TestScanIgnoresHarmlessHolders(t *testing.T) {
	gw := kubectl.NewFake()
	gw.PVCs["prod/data"] = boundPVC("data", "prod", "ReadWriteOnce")
	gw.ClaimHolders["prod/data"] = []kubectl.PodInfo{
		{Name: "done-pod", Phase: kubectl.PhaseSucceeded},
		{Name: "pvcship-data-old", Phase: kubectl.PhaseRunning,
			Labels: map[string]string{worker.ManagedByLabel: worker.ManagedByValue}},
	}

	s := NewScanner(gw, &prompt.Fake{})
	accepted, skipped, err := s.Scan(context.Background(), []*types.TransferJob{
		exportJob("data", "prod", filepath.Join(t.TempDir(), "data.tgz")),
	})
	require.NoError(t, err)
	assert.Len(t, accepted, 1)
	assert.Empty(t, skipped)
}

func TestScanSharedVolumeSkipsHolderCheck(t *testing.T) {
	gw := kubectl.NewFake()
	gw.PVCs["prod/shared"] = boundPVC("shared", "prod", "ReadWriteMany")
	gw.ClaimHolders["prod/shared"] = []kubectl.PodInfo{
		{Name: "app-0", Phase: kubectl.PhaseRunning},
	}

	s := NewScanner(gw, &prompt.Fake{})
	accepted, skipped, err := s.Scan(context.Background(), []*types.TransferJob{
		exportJob("shared", "prod", filepath.Join(t.TempDir(), "shared.tgz")),
	})
	require.NoError(t, err)
	assert.Len(t, accepted, 1)
	assert.Empty(t, skipped)
}

func TestScanDestinationExists(t *testing.T) {
	gw := kubectl.NewFake()
	gw.PVCs["prod/data"] = boundPVC("data", "prod")

	dest := filepath.Join(t.TempDir(), "data.tgz")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0644))

	p := &prompt.Fake{ConfirmAnswers: []bool{false}}
	s := NewScanner(gw, p)
	accepted, skipped, err := s.Scan(context.Background(), []*types.TransferJob{
		exportJob("data", "prod", dest),
	})
	require.NoError(t, err)
	assert.Empty(t, accepted)
	require.Len(t, skipped, 1)
	assert.Equal(t, types.ConflictDestinationExists, skipped[0].Conflict.Kind)
}

func TestScanNonInteractiveDropsConflicts(t *testing.T) {
	gw := kubectl.NewFake()
	gw.PVCs["prod/data"] = boundPVC("data", "prod", "ReadWriteOnce")
	gw.ClaimHolders["prod/data"] = []kubectl.PodInfo{
		{Name: "app-0", Phase: kubectl.PhaseRunning},
	}

	// Even with --yes, a conflict never force-attaches.
	s := NewScanner(gw, prompt.NonInteractive{AssumeYes: true})
	accepted, skipped, err := s.Scan(context.Background(), []*types.TransferJob{
		exportJob("data", "prod", filepath.Join(t.TempDir(), "data.tgz")),
	})
	require.NoError(t, err)
	assert.Empty(t, accepted)
	require.Len(t, skipped, 1)
	assert.Equal(t, types.ConflictExclusiveAttach, skipped[0].Conflict.Kind)
}

func TestScanBatchesConflictsIntoOnePrompt(t *testing.T) {
	gw := kubectl.NewFake()
	for _, name := range []string{"a", "b", "c"} {
		gw.PVCs["prod/"+name] = boundPVC(name, "prod", "ReadWriteOnce")
		gw.ClaimHolders["prod/"+name] = []kubectl.PodInfo{
			{Name: name + "-holder", Phase: kubectl.PhaseRunning},
		}
	}

	p := &prompt.Fake{ConfirmAnswers: []bool{true}}
	s := NewScanner(gw, p)
	dir := t.TempDir()
	accepted, skipped, err := s.Scan(context.Background(), []*types.TransferJob{
		exportJob("a", "prod", filepath.Join(dir, "a.tgz")),
		exportJob("b", "prod", filepath.Join(dir, "b.tgz")),
		exportJob("c", "prod", filepath.Join(dir, "c.tgz")),
	})
	require.NoError(t, err)
	assert.Len(t, accepted, 3)
	assert.Empty(t, skipped)
	assert.Len(t, p.Questions, 1)
}

func TestScanSkipsChecksForProvisionedVolume(t *testing.T) {
	gw := kubectl.NewFake()

	job := &types.TransferJob{
		Direction: types.DirectionImport,
		Volume:    types.VolumeRef{Name: "fresh", Namespace: "new-ns"},
		Provision: &types.ProvisionSpec{CapacityBytes: 1 << 30, CreateNamespace: true},
	}
	s := NewScanner(gw, &prompt.Fake{})
	accepted, skipped, err := s.Scan(context.Background(), []*types.TransferJob{job})
	require.NoError(t, err)
	assert.Len(t, accepted, 1)
	assert.Empty(t, skipped)
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScanner(kubectl.NewFake(), &prompt.Fake{})
	_, _, err := s.Scan(ctx, []*types.TransferJob{exportJob("data", "prod", "x.tgz")})
	assert.ErrorIs(t, err, context.Canceled)
}
