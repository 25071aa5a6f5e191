package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardNoPIDFile(t *testing.T) {
	g := NewGuard(t.TempDir())
	assert.NoError(t, g.Check())
}

func TestGuardAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	g := NewGuard(dir)

	require.NoError(t, g.Acquire())

	data, err := os.ReadFile(filepath.Join(dir, PIDFileName))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	g.Release()
	_, err = os.Stat(filepath.Join(dir, PIDFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestGuardDetectsRunningProcess(t *testing.T) {
	dir := t.TempDir()
	g := NewGuard(dir)

	// Our own PID is guaranteed to be alive.
	require.NoError(t, g.Acquire())

	err := g.Check()
	require.Error(t, err)

	var running *AlreadyRunningError
	require.ErrorAs(t, err, &running)
	assert.Equal(t, os.Getpid(), running.PID)
	assert.Contains(t, err.Error(), "server already running")
}

func TestGuardCleansStalePIDFile(t *testing.T) {
	dir := t.TempDir()
	g := NewGuard(dir)

	// A PID that cannot exist on Linux (beyond pid_max).
	stale := filepath.Join(dir, PIDFileName)
	require.NoError(t, os.WriteFile(stale, []byte("4999999"), 0o644))

	assert.NoError(t, g.Check())
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale pid file should be removed")
}

func TestGuardCleansInvalidPIDFile(t *testing.T) {
	dir := t.TempDir()
	g := NewGuard(dir)

	bad := filepath.Join(dir, PIDFileName)
	require.NoError(t, os.WriteFile(bad, []byte("not-a-pid"), 0o644))

	assert.NoError(t, g.Check())
	_, err := os.Stat(bad)
	assert.True(t, os.IsNotExist(err), "invalid pid file should be removed")
}

func TestGuardCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", ".enso")
	g := NewGuard(dir)

	require.NoError(t, g.Acquire())
	defer g.Release()

	_, err := os.Stat(filepath.Join(dir, PIDFileName))
	assert.NoError(t, err)
}

func TestReleaseWithoutAcquire(t *testing.T) {
	g := NewGuard(t.TempDir())
	// Must not panic or create anything.
	g.Release()
}
