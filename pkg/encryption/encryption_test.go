// Copyright (c) 2025 A Bit of Help, Inc.

package encryption

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	customErrors "github.com/abitofhelp/compresso/pkg/errors"
	"github.com/google/tink/go/tink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestAEAD(t *testing.T) tink.AEAD {
	t.Helper()

	kh, err := NewKeysetHandle()
	require.NoError(t, err)
	a, err := NewAEAD(kh)
	require.NoError(t, err)
	return a
}

func TestSealAndOpen(t *testing.T) {
	a := newTestAEAD(t)
	container := []byte{1, 2, 0, 1, 'p', 'a', 'y', 'l', 'o', 'a', 'd'}

	sealed, err := SealWithContext(context.Background(), a, container)
	require.NoError(t, err)

	assert.True(t, IsSealed(sealed))
	assert.Greater(t, len(sealed), len(container))
	assert.False(t, bytes.Contains(sealed, []byte("payload")))

	opened, err := OpenWithContext(context.Background(), a, sealed)
	require.NoError(t, err)
	assert.Equal(t, container, opened)
}

func TestIsSealed(t *testing.T) {
	assert.False(t, IsSealed(nil))
	assert.False(t, IsSealed([]byte{1, 0}))
	assert.False(t, IsSealed([]byte("CMP")))
	assert.True(t, IsSealed([]byte("CMPS")))
}

func TestOpen_NotSealed(t *testing.T) {
	_, err := OpenWithContext(context.Background(), newTestAEAD(t), []byte{1, 0, 'x'})
	assert.ErrorIs(t, err, customErrors.ErrNotSealed)
}

func TestOpen_WrongKey(t *testing.T) {
	sealed, err := SealWithContext(context.Background(), newTestAEAD(t), []byte("container"))
	require.NoError(t, err)

	_, err = OpenWithContext(context.Background(), newTestAEAD(t), sealed)
	assert.ErrorIs(t, err, customErrors.ErrOpenFailed)
}

func TestOpen_Tampered(t *testing.T) {
	a := newTestAEAD(t)
	sealed, err := SealWithContext(context.Background(), a, []byte("container"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff

	_, err = OpenWithContext(context.Background(), a, sealed)
	assert.ErrorIs(t, err, customErrors.ErrOpenFailed)
}

func TestSeal_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sealed, err := SealWithContext(ctx, newTestAEAD(t), []byte("test data"))
	assert.Nil(t, sealed)
	assert.ErrorIs(t, err, customErrors.ErrCanceled)
}

func TestSeal_Timeout(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	sealed, err := SealWithContext(ctx, newTestAEAD(t), make([]byte, 1024*1024))
	assert.Nil(t, sealed)
	assert.True(t, customErrors.IsTimeoutError(err))
}

func TestGenerateAndLoadKeysetFile(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "compresso.keyset.json")

	require.NoError(t, GenerateKeysetFile(logger, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	first, err := LoadAEAD(logger, path)
	require.NoError(t, err)
	second, err := LoadAEAD(logger, path)
	require.NoError(t, err)

	// The same keyset loaded twice must open what the other sealed
	sealed, err := SealWithContext(context.Background(), first, []byte("shared key"))
	require.NoError(t, err)
	opened, err := OpenWithContext(context.Background(), second, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("shared key"), opened)
}

func TestGenerateKeysetFile_DoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.json")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o600))

	err := GenerateKeysetFile(nil, path)
	assert.True(t, customErrors.IsIOError(err))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(content))
}

func TestGenerateKeysetFile_FailedWriteLeavesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyset.json")

	original := writeKeysetBytes
	writeKeysetBytes = func(io.Writer, []byte) error { return errors.New("disk full") }
	t.Cleanup(func() { writeKeysetBytes = original })

	err := GenerateKeysetFile(nil, path)
	assert.True(t, customErrors.IsIOError(err))
	assert.NoFileExists(t, path)

	// A retry is not blocked by a leftover file
	writeKeysetBytes = original
	require.NoError(t, GenerateKeysetFile(nil, path))
	_, err = LoadAEAD(nil, path)
	assert.NoError(t, err)
}

func TestLoadAEAD_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadAEAD(nil, filepath.Join(dir, "missing.json"))
	assert.True(t, customErrors.IsIOError(err))

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("not a keyset"), 0o600))
	_, err = LoadAEAD(nil, garbage)
	assert.Error(t, err)
}
