package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRotator(t *testing.T, cfg *RotationConfig) *LogRotator {
	t.Helper()

	lr, err := NewLogRotator(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lr.Close() })

	// distinct, increasing backup names regardless of clock resolution
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lr.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return lr
}

func TestNewLogRotator(t *testing.T) {
	_, err := NewLogRotator(nil)
	assert.Error(t, err)

	_, err = NewLogRotator(&RotationConfig{})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "nested", "harness.log")
	newTestRotator(t, &RotationConfig{Filename: path})
	_, err = os.Stat(path)
	assert.NoError(t, err, "file and parent directory are created")
}

func TestLogRotator_SizeBasedRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harness.log")
	lr := newTestRotator(t, &RotationConfig{Filename: path, MaxSize: 1})

	chunk := []byte(strings.Repeat("x", 600*1024))
	n, err := lr.Write(chunk)
	require.NoError(t, err)
	assert.Equal(t, len(chunk), n)

	_, err = lr.Write(chunk)
	require.NoError(t, err)

	backups, err := lr.backups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "harness-2024-01-01T00-00-01.000.log", backups[0])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), info.Size())
}

func TestLogRotator_OversizedFirstWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.log")
	lr := newTestRotator(t, &RotationConfig{Filename: path, MaxSize: 1})

	_, err := lr.Write([]byte(strings.Repeat("y", 2*1024*1024)))
	require.NoError(t, err)

	backups, err := lr.backups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestLogRotator_MaxBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.log")
	lr := newTestRotator(t, &RotationConfig{Filename: path, MaxBackups: 2})

	for i := 0; i < 5; i++ {
		_, err := lr.Write([]byte("line\n"))
		require.NoError(t, err)
		require.NoError(t, lr.Rotate())
	}

	backups, err := lr.backups()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"harness-2024-01-01T00-00-04.000.log",
		"harness-2024-01-01T00-00-05.000.log",
	}, backups)
}

func TestLogRotator_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.log")
	lr, err := NewLogRotator(&RotationConfig{Filename: path})
	require.NoError(t, err)

	require.NoError(t, lr.Close())
	require.NoError(t, lr.Close())

	_, err = lr.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
