package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWriteAndRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thermavip.log")

	var mirror bytes.Buffer
	l, err := NewLogger(path, &mirror)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Write([]byte("first\n"))
	require.NoError(t, err)

	// simulate logrotate moving the file away
	require.NoError(t, os.Rename(path, path+".1"))
	require.NoError(t, l.Rotate())
	assert.Equal(t, 1, l.Rotations())

	_, err = l.Write([]byte("second\n"))
	require.NoError(t, err)

	old, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(old))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(current))

	assert.Equal(t, "first\nsecond\n", mirror.String())
}

func TestLoggerClosedIsSilent(t *testing.T) {
	l, err := NewLogger(filepath.Join(t.TempDir(), "x.log"), nil)
	require.NoError(t, err)
	l.Close()

	n, err := l.Write([]byte("ignored"))
	assert.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, l.Rotate())
}

func TestSetLoggerClosesPrevious(t *testing.T) {
	dir := t.TempDir()
	a, err := NewLogger(filepath.Join(dir, "a.log"), nil)
	require.NoError(t, err)
	b, err := NewLogger(filepath.Join(dir, "b.log"), nil)
	require.NoError(t, err)

	SetLogger(a)
	SetLogger(b)
	defer SetLogger(nil)

	assert.Same(t, b, GetLogger())
	assert.Nil(t, a.file)
}
