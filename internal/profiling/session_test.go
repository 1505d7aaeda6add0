package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Inactive(t *testing.T) {
	var s Session
	assert.False(t, s.Active())
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
}

func TestSession_CPUProfile(t *testing.T) {
	dir := t.TempDir()
	s := Session{CPUPath: filepath.Join(dir, "cpu.pprof")}
	assert.True(t, s.Active())

	require.NoError(t, s.Start())

	// Burn a little CPU so the profile has samples.
	x := 0
	for i := 0; i < 1_000_000; i++ {
		x += i
	}
	_ = x

	require.NoError(t, s.Stop())

	info, err := os.Stat(s.CPUPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSession_HeapProfile(t *testing.T) {
	dir := t.TempDir()
	s := Session{HeapPath: filepath.Join(dir, "heap.pprof")}

	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())

	info, err := os.Stat(s.HeapPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSession_Trace(t *testing.T) {
	dir := t.TempDir()
	s := Session{TracePath: filepath.Join(dir, "trace.out")}

	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())

	info, err := os.Stat(s.TracePath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSession_BadCPUPath(t *testing.T) {
	s := Session{CPUPath: filepath.Join(t.TempDir(), "missing", "cpu.pprof")}
	assert.Error(t, s.Start())
	assert.NoError(t, s.Stop())
}

func TestSession_StopIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := Session{CPUPath: filepath.Join(dir, "cpu.pprof")}
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
