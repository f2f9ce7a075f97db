package storage

import (
	"image"
	"log/slog"
	"sync/atomic"

	"gallery-spider/internal/spider"
)

// Recorder is a spider listener that writes download bookkeeping
// through to the database: the gallery record on page-count discovery,
// finished-page counters, and daily transfer stats.
type Recorder struct {
	storage *Storage
	logger  *slog.Logger
	gallery spider.GalleryInfo

	pages    atomic.Int64
	finished atomic.Int64
}

// NewRecorder creates a recorder for one gallery.
func NewRecorder(storage *Storage, logger *slog.Logger, gallery spider.GalleryInfo) *Recorder {
	return &Recorder{storage: storage, logger: logger, gallery: gallery}
}

func (r *Recorder) OnGetPages(pages int) {
	r.pages.Store(int64(pages))
	rec := GalleryRecord{
		GID:    r.gallery.GID,
		Token:  r.gallery.Token,
		Title:  r.gallery.Title,
		Pages:  pages,
		Status: "downloading",
	}
	if err := r.storage.SaveGallery(rec); err != nil {
		r.logger.Error("failed to save gallery record", "gid", r.gallery.GID, "error", err)
	}
}

func (r *Recorder) OnGet509(index int) {
	r.logger.Warn("rate limited by image server", "gid", r.gallery.GID, "index", index)
}

func (r *Recorder) OnDownload(index int, contentLength, receivedSize int64, bytesRead int) {
	if err := r.storage.IncrementDailyBytes(int64(bytesRead)); err != nil {
		r.logger.Debug("failed to update daily bytes", "error", err)
	}
}

func (r *Recorder) OnSuccess(index int) {
	finished := r.finished.Add(1)
	if err := r.storage.IncrementGalleryFinished(r.gallery.GID); err != nil {
		r.logger.Error("failed to update gallery record", "gid", r.gallery.GID, "error", err)
	}
	if err := r.storage.IncrementDailyPages(); err != nil {
		r.logger.Debug("failed to update daily pages", "error", err)
	}
	if pages := r.pages.Load(); pages > 0 && finished >= pages {
		if err := r.storage.UpdateGalleryStatus(r.gallery.GID, "finished"); err != nil {
			r.logger.Error("failed to finish gallery record", "gid", r.gallery.GID, "error", err)
		}
	}
}

func (r *Recorder) OnFailure(index int, err string) {
	r.logger.Debug("page failed", "gid", r.gallery.GID, "index", index, "error", err)
}

func (r *Recorder) OnGetImageSuccess(index int, img image.Image) {}

func (r *Recorder) OnGetImageFailure(index int, err string) {}
