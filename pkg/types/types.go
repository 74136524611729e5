package types

import (
	"time"
)

// Direction of a transfer relative to the cluster.
type Direction string

const (
	DirectionExport Direction = "export"
	DirectionImport Direction = "import"
)

// Format selects how bytes move between the volume and the local side.
type Format string

const (
	// FormatArchiveGz is a gzip-compressed tar stream.
	FormatArchiveGz Format = "tgz"
	// FormatArchive is an uncompressed tar stream.
	FormatArchive Format = "tar"
	// FormatDirectory is a direct recursive file copy (export only).
	FormatDirectory Format = "dir"
)

// ParseFormat validates a format selector from the command line.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatArchiveGz, FormatArchive, FormatDirectory:
		return Format(s), nil
	}
	return "", &ResolutionError{Reason: "unknown format " + s + " (want tgz, tar or dir)"}
}

// Ext returns the artifact file extension for the format, empty for the
// plain-directory format.
func (f Format) Ext() string {
	switch f {
	case FormatArchiveGz:
		return "tgz"
	case FormatArchive:
		return "tar"
	default:
		return ""
	}
}

// Compressed reports whether the format gzip-frames the archive stream.
func (f Format) Compressed() bool {
	return f == FormatArchiveGz
}

// MergePolicy controls what happens to existing volume data on import.
type MergePolicy string

const (
	// MergePolicyMerge adds files without deleting existing ones.
	MergePolicyMerge MergePolicy = "merge"
	// MergePolicyClear wipes the mount point before writing.
	MergePolicyClear MergePolicy = "clear"
	// MergePolicyNone applies to exports, where no merge decision exists.
	MergePolicyNone MergePolicy = "none"
)

// TransferJob is the unit of work the sequencer executes. It is immutable
// once accepted into the execution queue.
type TransferJob struct {
	ID        string
	Direction Direction
	Format    Format

	// Volume is the cluster-side endpoint of the transfer.
	Volume VolumeRef

	// SourcePath is the local source for imports (archive file or directory).
	SourcePath string

	// DestPath is the local destination for exports (file or directory,
	// named by the artifact convention).
	DestPath string

	// Merge applies to imports only.
	Merge MergePolicy

	// EstimatedBytes is the resolved size estimate of the source, zero when
	// unknown (exports).
	EstimatedBytes int64

	// Provision describes a PVC that must be created before the transfer,
	// nil when the volume already exists.
	Provision *ProvisionSpec
}

// ProvisionSpec captures the parameters for creating a fresh volume during
// import.
type ProvisionSpec struct {
	StorageClass    string
	CapacityBytes   int64
	CreateNamespace bool
}

// ResolvedTarget is the fully determined outcome of target resolution for
// one import source. No ambiguity remains by the time it is produced.
type ResolvedTarget struct {
	Volume         VolumeRef
	NewVolume      bool
	NewNamespace   bool
	StorageClass   string
	CapacityBytes  int64
	Merge          MergePolicy
	EstimatedBytes int64
}

// ConflictKind classifies why a job was flagged during pre-check.
type ConflictKind string

const (
	// ConflictExclusiveAttach means another running consumer holds a
	// single-attach volume.
	ConflictExclusiveAttach ConflictKind = "exclusive-attach"
	// ConflictDestinationExists means the computed destination path already
	// exists.
	ConflictDestinationExists ConflictKind = "destination-exists"
	// ConflictVolumeMissing means the requested volume does not exist.
	ConflictVolumeMissing ConflictKind = "volume-missing"
)

// ConflictRecord is produced by the batch pre-check and never persisted
// beyond the run.
type ConflictRecord struct {
	Volume VolumeRef
	Kind   ConflictKind
	Detail string
}

// ProgressSample is one point of the fixed-interval progress poll. Samples
// exist only to compute throughput for display.
type ProgressSample struct {
	At    time.Time
	Bytes int64
	Files int64
}

// JobResult classifies how a job ended.
type JobResult string

const (
	JobSucceeded   JobResult = "succeeded"
	JobFailed      JobResult = "failed"
	JobSkipped     JobResult = "skipped"
	JobInterrupted JobResult = "interrupted"
)

// JobOutcome is the per-job record aggregated into the final report.
type JobOutcome struct {
	Volume     VolumeRef
	Direction  Direction
	Result     JobResult
	Reason     string
	Bytes      int64
	Files      int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Report aggregates a whole run.
type Report struct {
	RunID       string
	Direction   Direction
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcomes    []JobOutcome
	Interrupted bool
}

// Succeeded returns the outcomes that completed successfully.
func (r *Report) Succeeded() []JobOutcome { return r.filter(JobSucceeded) }

// Failed returns the outcomes that failed or were interrupted mid-flight.
func (r *Report) Failed() []JobOutcome {
	out := r.filter(JobFailed)
	return append(out, r.filter(JobInterrupted)...)
}

// Skipped returns the outcomes dropped at pre-check.
func (r *Report) Skipped() []JobOutcome { return r.filter(JobSkipped) }

func (r *Report) filter(res JobResult) []JobOutcome {
	var out []JobOutcome
	for _, o := range r.Outcomes {
		if o.Result == res {
			out = append(out, o)
		}
	}
	return out
}

// ExitCode maps the run outcome to the process exit code: 0 on full
// success, 130 on interruption, 1 otherwise.
func (r *Report) ExitCode() int {
	if r.Interrupted {
		return 130
	}
	if len(r.Failed()) > 0 || len(r.Succeeded()) == 0 {
		return 1
	}
	return 0
}

// ResolutionError is raised when a request cannot be turned into a valid
// job; the job never enters the queue.
type ResolutionError struct {
	Reason string
}

func (e *ResolutionError) Error() string { return e.Reason }
