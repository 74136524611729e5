package quantity

import (
	"fmt"
	"strconv"
	"strings"
)

// Binary and decimal unit multipliers accepted by Parse.
const (
	KiB int64 = 1 << 10
	MiB int64 = 1 << 20
	GiB int64 = 1 << 30
	TiB int64 = 1 << 40
)

// Suffixes are matched longest-first so "Ki" wins over "K".
var suffixes = []struct {
	unit string
	mult int64
}{
	{"Ki", KiB},
	{"Mi", MiB},
	{"Gi", GiB},
	{"Ti", TiB},
	{"K", 1_000},
	{"M", 1_000_000},
	{"G", 1_000_000_000},
	{"T", 1_000_000_000_000},
}

// Parse converts a capacity string with an optional unit suffix into bytes.
// A bare number is taken as bytes. Unknown suffixes are an error rather
// than a silent gibibyte assumption.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	num := s
	var mult int64 = 1
	for _, sx := range suffixes {
		if strings.HasSuffix(s, sx.unit) {
			num = strings.TrimSuffix(s, sx.unit)
			mult = sx.mult
			break
		}
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative quantity %q", s)
	}

	return int64(v * float64(mult)), nil
}

// FormatGi renders bytes as whole gibibytes with a "Gi" suffix, rounding
// up. Used for PVC specs and worker memory limits, which are always whole
// gibibyte quantities in this tool.
func FormatGi(bytes int64) string {
	if bytes <= 0 {
		return "0Gi"
	}
	gi := (bytes + GiB - 1) / GiB
	return strconv.FormatInt(gi, 10) + "Gi"
}

// WorkerMemoryLimit returns the worker pod memory ceiling for a volume of
// the declared capacity. Archive compression buffers stream backlog in
// worker memory, so bigger volumes get a bigger ceiling; undersizing gets
// the worker OOM-killed by the node.
func WorkerMemoryLimit(capacityBytes int64) int64 {
	switch {
	case capacityBytes > 1024*GiB:
		return 16 * GiB
	case capacityBytes > 500*GiB:
		return 8 * GiB
	case capacityBytes > 100*GiB:
		return 4 * GiB
	default:
		return 2 * GiB
	}
}

// SuggestCapacity proposes a PVC size for an import source of the given
// estimated uncompressed size: 20% headroom, ceil to whole gibibytes
// (minimum 1), then round up to a readable boundary.
func SuggestCapacity(estimatedBytes int64) int64 {
	padded := int64(float64(estimatedBytes) * 1.2)
	gi := (padded + GiB - 1) / GiB
	if gi < 1 {
		gi = 1
	}

	switch {
	case gi <= 5:
		// small sizes stay as-is
	case gi <= 20:
		gi = roundUpTo(gi, 5)
	case gi <= 100:
		gi = roundUpTo(gi, 10)
	default:
		gi = roundUpTo(gi, 50)
	}

	return gi * GiB
}

func roundUpTo(v, step int64) int64 {
	return (v + step - 1) / step * step
}
