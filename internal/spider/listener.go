package spider

import "image"

// Listener observes page lifecycle and decode events. Callbacks run on
// spider threads and must return quickly.
type Listener interface {
	OnGetPages(pages int)
	OnGet509(index int)

	// OnDownload reports streaming progress. contentLength is -1 when
	// the server did not declare one.
	OnDownload(index int, contentLength, receivedSize int64, bytesRead int)

	OnSuccess(index int)
	OnFailure(index int, err string)

	OnGetImageSuccess(index int, img image.Image)
	OnGetImageFailure(index int, err string)
}

func (s *Spider) AddListener(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Spider) RemoveListener(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for i, have := range s.listeners {
		if have == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Spider) notifyGetPages(pages int) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, l := range s.listeners {
		l.OnGetPages(pages)
	}
}

func (s *Spider) notifyGet509(index int) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, l := range s.listeners {
		l.OnGet509(index)
	}
}

func (s *Spider) notifyDownload(index int, contentLength, receivedSize int64, bytesRead int) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, l := range s.listeners {
		l.OnDownload(index, contentLength, receivedSize, bytesRead)
	}
}

func (s *Spider) notifySuccess(index int) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, l := range s.listeners {
		l.OnSuccess(index)
	}
}

func (s *Spider) notifyFailure(index int, err string) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, l := range s.listeners {
		l.OnFailure(index, err)
	}
}

func (s *Spider) notifyGetImageSuccess(index int, img image.Image) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, l := range s.listeners {
		l.OnGetImageSuccess(index, img)
	}
}

func (s *Spider) notifyGetImageFailure(index int, err string) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, l := range s.listeners {
		l.OnGetImageFailure(index, err)
	}
}
