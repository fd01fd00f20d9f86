package throttle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileStoreWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "frequency.yaml")
	fs, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), fs.Current())
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestFileStoreSaveValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frequency.yaml")
	fs, err := OpenFileStore(path)
	require.NoError(t, err)
	before := fs.Snapshot().Version

	bad := DefaultConfig()
	bad.Slabs[1].MinCapital = 70000
	assert.ErrorIs(t, fs.Save(bad), ErrConfiguration)
	assert.Equal(t, before, fs.Snapshot().Version)

	good := DefaultConfig()
	good.MaxHourlyCap = 6
	good.Slabs[2].MaxTradesPerHour = 6
	var notified Snapshot
	fs.OnChange(func(s Snapshot) { notified = s })
	require.NoError(t, fs.Save(good))
	assert.Equal(t, 6, fs.Current().MaxHourlyCap)
	assert.Equal(t, 6, notified.Config.MaxHourlyCap)

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, good, reopened.Current())
}

func TestOpenFileStoreRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frequency.yaml")
	content := `frequency:
  slabs:
    - {min_capital: 0, max_capital: 1000, max_trades_per_hour: 2}
    - {min_capital: 2000, max_capital: 0, max_trades_per_hour: 2}
  max_hourly_cap: 3
  drawdown_trigger_pct: 0.02
  hard_drawdown_trigger_pct: 0.05
  drawdown_reduce_pct: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	_, err := OpenFileStore(path)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestOpenFileStoreRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frequency.yaml")
	require.NoError(t, os.WriteFile(path, []byte("frequency:\n  bogus: 1\n"), 0o644))
	_, err := OpenFileStore(path)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestCurrentReturnsCopy(t *testing.T) {
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "frequency.yaml"))
	require.NoError(t, err)
	cfg := fs.Current()
	cfg.Slabs[0].MaxTradesPerHour = 99
	assert.Equal(t, 2, fs.Current().Slabs[0].MaxTradesPerHour)
}
