package spider

import (
	"errors"
	"sync"

	"gallery-spider/internal/store"
)

// ErrInvalidState is returned for lifecycle misuse: a second download
// reference or a refcount underflow.
var ErrInvalidState = errors.New("invalid spider state")

// Registry is the process-wide map from gallery id to its live
// coordinator. Each gallery has two independent reference counts, one
// per usage mode; the coordinator starts with the first reference and
// stops when both drop to zero.
type Registry struct {
	mu      sync.Mutex
	opts    Options
	spiders map[uint64]*Spider
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:    opts,
		spiders: make(map[uint64]*Spider),
	}
}

// Acquire returns the coordinator for a gallery, constructing and
// starting it on first use, and takes one reference in the given mode.
func (r *Registry) Acquire(gallery GalleryInfo, mode store.Mode) (*Spider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.spiders[gallery.GID]
	if !ok {
		s = newSpider(gallery, r.opts)
		r.spiders[gallery.GID] = s
		if err := s.setMode(mode); err != nil {
			delete(r.spiders, gallery.GID)
			return nil, err
		}
		s.start()
		return s, nil
	}

	if err := s.setMode(mode); err != nil {
		return nil, err
	}
	return s, nil
}

// Release drops one reference in the given mode. When both refcounts
// reach zero the coordinator is stopped and unregistered.
func (r *Registry) Release(s *Spider, mode store.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := s.clearMode(mode); err != nil {
		return err
	}

	if s.readRef == 0 && s.downloadRef == 0 {
		s.stop()
		delete(r.spiders, s.gallery.GID)
	}
	return nil
}

// Get returns the live coordinator for gid, or nil.
func (r *Registry) Get(gid uint64) *Spider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spiders[gid]
}

// Galleries snapshots the live coordinators.
func (r *Registry) Galleries() []*Spider {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Spider, 0, len(r.spiders))
	for _, s := range r.spiders {
		out = append(out, s)
	}
	return out
}

// Shutdown stops every live coordinator regardless of references.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for gid, s := range r.spiders {
		s.stop()
		delete(r.spiders, gid)
	}
}

// setMode takes one reference and re-derives the usage mode. Called
// with the registry lock held.
func (s *Spider) setMode(mode store.Mode) error {
	switch mode {
	case store.ModeRead:
		s.readRef++
	case store.ModeDownload:
		s.downloadRef++
	}

	if s.downloadRef > 1 {
		s.downloadRef--
		return ErrInvalidState
	}

	s.updateMode()
	return nil
}

// clearMode drops one reference and re-derives the usage mode. Called
// with the registry lock held.
func (s *Spider) clearMode(mode store.Mode) error {
	switch mode {
	case store.ModeRead:
		s.readRef--
	case store.ModeDownload:
		s.downloadRef--
	}

	if s.readRef < 0 || s.downloadRef < 0 {
		switch mode {
		case store.ModeRead:
			s.readRef++
		case store.ModeDownload:
			s.downloadRef++
		}
		return ErrInvalidState
	}

	s.updateMode()
	return nil
}

func (s *Spider) updateMode() {
	mode := store.ModeRead
	if s.downloadRef > 0 {
		mode = store.ModeDownload
	}
	s.mode.Store(int32(mode))

	if den := s.getDen(); den != nil {
		den.SetMode(mode)
	}

	// Update the bulk download cursor
	s.queuesMu.Lock()
	s.queues.setDownloadMode(mode == store.ModeDownload)
	s.queuesMu.Unlock()
}
