package quantity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1Ki", KiB, false},
		{"2Mi", 2 * MiB, false},
		{"50Gi", 50 * GiB, false},
		{"1Ti", TiB, false},
		{"1K", 1_000, false},
		{"3G", 3_000_000_000, false},
		{"1.5Gi", GiB + GiB/2, false},
		{"1024", 1024, false}, // bare number is bytes
		{"", 0, true},
		{"abcGi", 0, true},
		{"-1Gi", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatGi(t *testing.T) {
	assert.Equal(t, "1Gi", FormatGi(GiB))
	assert.Equal(t, "2Gi", FormatGi(GiB+1)) // rounds up
	assert.Equal(t, "300Gi", FormatGi(300*GiB))
	assert.Equal(t, "0Gi", FormatGi(0))
}

func TestWorkerMemoryLimit(t *testing.T) {
	tests := []struct {
		capacity int64
		want     int64
	}{
		{50 * GiB, 2 * GiB},
		{100 * GiB, 2 * GiB}, // boundary stays in default tier
		{150 * GiB, 4 * GiB},
		{500 * GiB, 4 * GiB},
		{600 * GiB, 8 * GiB},
		{1024 * GiB, 8 * GiB},
		{2048 * GiB, 16 * GiB},
		{0, 2 * GiB},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, WorkerMemoryLimit(tt.capacity), "capacity %d", tt.capacity)
	}
}

func TestSuggestCapacity(t *testing.T) {
	tests := []struct {
		name      string
		estimated int64
		wantGi    int64
	}{
		{"3Gi source pads to 4Gi", 3 * GiB, 4},
		{"240Gi source rounds to 300Gi", 240 * GiB, 300},
		{"tiny source floors at 1Gi", 10 * MiB, 1},
		{"zero floors at 1Gi", 0, 1},
		{"7Gi source rounds to 10Gi", 7 * GiB, 10}, // 8.4 -> 9 -> nearest 5 above... 10
		{"30Gi source rounds to 40Gi", 30 * GiB, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantGi*GiB, SuggestCapacity(tt.estimated))
		})
	}
}

func TestSuggestCapacityMonotonic(t *testing.T) {
	var prev int64
	for est := int64(0); est < 400*GiB; est += 3 * GiB {
		got := SuggestCapacity(est)
		assert.GreaterOrEqual(t, got, prev, "estimate %d", est)
		assert.GreaterOrEqual(t, got, GiB)
		prev = got
	}
}
