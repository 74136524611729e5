package sequencer

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/pvcship/pvcship/pkg/types"
)

var (
	okMark   = color.New(color.FgGreen)
	failMark = color.New(color.FgRed)
	skipMark = color.New(color.FgYellow)
)

// renderReport prints the per-job outcomes and a one-line summary.
func renderReport(w io.Writer, report *types.Report) {
	fmt.Fprintf(w, "\n%s run %s (%s)\n",
		directionTitle(report.Direction), report.RunID,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Second))

	for _, o := range report.Outcomes {
		switch o.Result {
		case types.JobSucceeded:
			okMark.Fprintf(w, "  ✓ %s", o.Volume)
			fmt.Fprintf(w, "  %s", formatBytes(o.Bytes))
			if o.Files > 0 {
				fmt.Fprintf(w, ", %d files", o.Files)
			}
			fmt.Fprintln(w)
		case types.JobSkipped:
			skipMark.Fprintf(w, "  - %s", volumeOrReason(o))
			fmt.Fprintf(w, "  skipped: %s\n", o.Reason)
		default:
			failMark.Fprintf(w, "  ✗ %s", o.Volume)
			fmt.Fprintf(w, "  %s: %s\n", o.Result, o.Reason)
		}
	}

	fmt.Fprintf(w, "%d succeeded, %d failed, %d skipped\n",
		len(report.Succeeded()), len(report.Failed()), len(report.Skipped()))
}

// volumeOrReason copes with skips recorded before a volume was resolved.
func volumeOrReason(o types.JobOutcome) string {
	if o.Volume.Name != "" {
		return o.Volume.String()
	}
	return "(unresolved)"
}

func directionTitle(d types.Direction) string {
	switch d {
	case types.DirectionExport:
		return "Export"
	case types.DirectionImport:
		return "Import"
	}
	return "Transfer"
}

// formatBytes renders a byte count in the largest binary unit that keeps
// the number readable.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
