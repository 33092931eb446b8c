package core

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetValueTimeoutMillisGrowsLinearlyWithRound(t *testing.T) {
	cfg := Defaults
	base := cfg.GetValueTimeoutMillis(0)
	require.Equal(t, uint64(cfg.TimeoutPropose.Milliseconds()), base)

	next := cfg.GetValueTimeoutMillis(1)
	require.Equal(t, base+uint64(cfg.TimeoutDelta.Milliseconds()), next)
}

func TestTimeoutForEachKindAddsDeltaPerRound(t *testing.T) {
	cfg := Defaults

	require.Equal(t, cfg.TimeoutPropose, cfg.timeoutFor(TimeoutPropose, 0))
	require.Equal(t, cfg.TimeoutPrevote, cfg.timeoutFor(TimeoutPrevote, 0))
	require.Equal(t, cfg.TimeoutPrecommit, cfg.timeoutFor(TimeoutPrecommit, 0))

	require.Equal(t, cfg.TimeoutPrevote+2*cfg.TimeoutDelta, cfg.timeoutFor(TimeoutPrevote, 2))
}

func TestLoadConfigOverridesDefaultsFromTOML(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.toml")
	require.NoError(t, err)
	_, err = f.WriteString(`
SyncParallelRequests = 9
VoteExtensionsEnabled = true
`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := LoadConfig(f.Name())
	require.NoError(t, err)
	require.Equal(t, 9, cfg.SyncParallelRequests)
	require.True(t, cfg.VoteExtensionsEnabled)
	// unspecified fields fall back to Defaults.
	require.Equal(t, Defaults.TimeoutPropose, cfg.TimeoutPropose)
}

func TestLoadConfigMissingFileReturnsError(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/to/config.toml")
	require.Error(t, err)
}
