package storage

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery-spider/internal/spider"
)

func TestRecorderWritesThrough(t *testing.T) {
	st := newTestStorage(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := NewRecorder(st, logger, spider.GalleryInfo{GID: 618395, Token: "0439fa3666", Title: "test"})

	rec.OnGetPages(2)
	got, err := st.GetGallery(618395)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Pages)
	assert.Equal(t, "downloading", got.Status)

	rec.OnDownload(0, 100, 50, 50)
	rec.OnSuccess(0)
	rec.OnSuccess(1)

	got, err = st.GetGallery(618395)
	require.NoError(t, err)
	assert.Equal(t, 2, got.FinishedPages)
	assert.Equal(t, "finished", got.Status)

	bytes, err := st.GetTotalLifetime()
	require.NoError(t, err)
	assert.Equal(t, int64(50), bytes)
}
