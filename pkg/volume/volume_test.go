package volume

import (
	"path/filepath"
	"testing"

	"diskfiller/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSProberUsage(t *testing.T) {
	dir := t.TempDir()

	u, err := OSProber{}.Usage(dir)
	require.NoError(t, err)

	assert.Greater(t, u.Total, uint64(0))
	assert.LessOrEqual(t, u.Free, u.Total)
	assert.LessOrEqual(t, u.Used, u.Total)
}

func TestOSProberMissingJobDir(t *testing.T) {
	dir := t.TempDir()

	// The job directory does not exist before a run starts.
	u, err := OSProber{}.Usage(filepath.Join(dir, "filler", "nested"))
	require.NoError(t, err)
	assert.Greater(t, u.Total, uint64(0))
}

func TestOSProberNoVolume(t *testing.T) {
	_, err := OSProber{}.Usage("")
	assert.ErrorIs(t, err, ErrNoVolume)
}

func TestUsageFloor(t *testing.T) {
	tests := []struct {
		name  string
		free  uint64
		below bool
	}{
		{"empty", 0, true},
		{"one byte short", uint64(types.LowSpaceFloor) - 1, true},
		{"exactly the floor", uint64(types.LowSpaceFloor), false},
		{"plenty", uint64(100 * types.MiB), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.below, Usage{Free: tt.free}.BelowFloor())
		})
	}
}

func TestUsageFreeMiB(t *testing.T) {
	assert.Equal(t, int64(3), Usage{Free: uint64(3*types.MiB + 5)}.FreeMiB())
}
