package store

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePage(t *testing.T, s *DirStore, index int, ext, content string) {
	t.Helper()
	pipe := s.OpenOutputPipe(index, ext)
	require.NotNil(t, pipe)
	pipe.Obtain()
	defer pipe.Release()
	w, err := pipe.Open()
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	pipe.Close()
}

func TestDirStoreWriteReadRemove(t *testing.T) {
	s := NewDirStore(filepath.Join(t.TempDir(), "dl"), filepath.Join(t.TempDir(), "cache"))

	assert.False(t, s.Contains(0))
	writePage(t, s, 0, "jpg", "image bytes")
	assert.True(t, s.Contains(0))

	pipe := s.OpenInputPipe(0)
	require.NotNil(t, pipe)
	pipe.Obtain()
	r, err := pipe.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))
	pipe.Close()
	pipe.Release()

	assert.True(t, s.Remove(0))
	assert.False(t, s.Contains(0))
	assert.Nil(t, s.OpenInputPipe(0))
}

func TestDirStoreModeSelectsTier(t *testing.T) {
	dl := filepath.Join(t.TempDir(), "dl")
	cache := filepath.Join(t.TempDir(), "cache")
	s := NewDirStore(dl, cache)

	// Read mode writes into the cache tier
	writePage(t, s, 0, "jpg", "a")
	cacheFiles, _ := filepath.Glob(filepath.Join(cache, "*.jpg"))
	assert.Len(t, cacheFiles, 1)

	s.SetMode(ModeDownload)
	writePage(t, s, 1, "jpg", "b")
	dlFiles, _ := filepath.Glob(filepath.Join(dl, "*.jpg"))
	assert.Len(t, dlFiles, 1)

	// Contains sees both tiers
	assert.True(t, s.Contains(0))
	assert.True(t, s.Contains(1))
}

func TestDirStoreDoubleOpenFails(t *testing.T) {
	s := NewDirStore(t.TempDir(), "")
	s.SetMode(ModeDownload)

	pipe := s.OpenOutputPipe(0, "jpg")
	require.NotNil(t, pipe)
	pipe.Obtain()
	defer pipe.Release()
	defer pipe.Close()

	_, err := pipe.Open()
	require.NoError(t, err)
	_, err = pipe.Open()
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestDirStoreNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s := NewDirStore(dir, "")
	s.SetMode(ModeDownload)

	writePage(t, s, 3, "png", "data")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "temp file %s left behind", e.Name())
	}
	assert.True(t, s.Contains(3))
}

func TestDirStoreNoTarget(t *testing.T) {
	s := NewDirStore("", "")
	assert.Nil(t, s.OpenOutputPipe(0, "jpg"))
	assert.Equal(t, "", s.DownloadDir())
}

func TestPageFilename(t *testing.T) {
	assert.Equal(t, "00000001.jpg", pageFilename(0, "jpg"))
	assert.Equal(t, "00000042.webp", pageFilename(41, "webp"))
	assert.Equal(t, "00000002.jpg", pageFilename(1, ""), "missing extension defaults to jpg")
}
