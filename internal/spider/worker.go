package spider

import (
	"errors"
	"io"
	"math"
	"strings"

	"gallery-spider/internal/client"
)

// spiderWorker converts page indices into downloaded files. Up to
// numSpiderWorkers run per spider, identified by slot.
type spiderWorker struct {
	spider *Spider
	slot   int
}

func (w *spiderWorker) run() {
	s := w.spider
	s.logger.Debug("spider worker start", "slot", w.slot)

	for s.ctx.Err() == nil && w.runInternal() {
	}

	// Clear our slot unless a replacement already took it
	s.workersMu.Lock()
	if s.workers != nil && w.slot < len(s.workers) && s.workers[w.slot] == w {
		s.workers[w.slot] = nil
	}
	s.workersMu.Unlock()

	s.logger.Debug("spider worker end", "slot", w.slot)
}

// runInternal handles one dequeued index. false stops the worker.
func (w *spiderWorker) runInternal() bool {
	s := w.spider

	s.stateMu.Lock()
	size := len(s.pageStates)
	s.stateMu.Unlock()
	if size == 0 {
		return false
	}

	s.queuesMu.Lock()
	index, force, ok := s.queues.pop(size)
	s.queuesMu.Unlock()
	if !ok {
		// No index any more, stop
		return false
	}
	if index < 0 || index >= size {
		// Invalid index
		return true
	}

	// Another worker owns the page, or it is already settled
	if !s.claimPage(index, force) {
		return true
	}

	// The store may already have the page
	if !force && s.getDen().Contains(index) {
		s.updatePageState(index, StateFinished, "")
		return true
	}

	// A forced request retries an exhausted token
	if force {
		s.tokenMu.Lock()
		if s.info.PTokenMap[index] == TokenFailed {
			delete(s.info.PTokenMap, index)
		}
		s.tokenMu.Unlock()
	}

	// Get token
	var pToken string
	for s.ctx.Err() == nil {
		s.tokenMu.Lock()
		pToken = s.info.PTokenMap[index]
		s.tokenMu.Unlock()
		if pToken != "" {
			break
		}

		// Ask the queen and wait for any pTokenMap change. The wait
		// lock is held across the enqueue so the wake-up cannot be
		// missed.
		s.workerMu.Lock()
		s.enqueueTokenRequest(index)
		if s.ctx.Err() == nil {
			s.workerCond.Wait()
		}
		s.workerMu.Unlock()
	}

	if pToken == "" {
		// Interrupted
		s.updatePageState(index, StateFailed, "")
		return false
	}
	if pToken == TokenFailed {
		s.updatePageState(index, StateFailed, client.ErrorText(client.ErrPToken))
		return true
	}

	return w.downloadImage(index, pToken)
}

// getImageURL resolves a page to its image URL, detecting the 509
// rate-limit sentinel.
func (w *spiderWorker) getImageURL(index int, pToken, skipHathKey string) (*client.PageResult, error) {
	s := w.spider

	url := client.PageURL(s.client.BaseURL, s.gallery.GID, index, pToken, skipHathKey)
	s.logger.Debug("fetch page", "url", url)
	body, err := s.client.GetHTML(s.ctx, url)
	if err != nil {
		return nil, err
	}
	result, err := client.ParseGalleryPage(body)
	if err != nil {
		return nil, err
	}
	for _, suffix := range url509Suffixes {
		if strings.HasSuffix(result.ImageURL, suffix) {
			s.notifyGet509(index)
			return nil, client.Err509
		}
	}
	return result, nil
}

type streamStatus int

const (
	streamOK streamStatus = iota
	streamRetry
	streamBadURL
	streamWriteFailed
	streamInterrupted
)

// downloadImage fetches the page image with up to two attempts. Only a
// stream-phase I/O error consumes a retry; the second attempt carries
// the skipHathKey handed back by the first. false stops the worker.
func (w *spiderWorker) downloadImage(index int, pToken string) bool {
	s := w.spider

	var skipHathKey string
	var errText string
	interrupted := false

	for i := 0; i < 2; i++ {
		result, err := w.getImageURL(index, pToken, skipHathKey)
		if err != nil {
			errText = client.ErrorText(err)
			break
		}
		if s.ctx.Err() != nil {
			interrupted = true
			break
		}

		skipHathKey = result.SkipHathKey
		s.logger.Debug("start download image", "index", index, "url", result.ImageURL)

		status := w.streamImage(index, result.ImageURL)
		s.logger.Debug("end download image", "index", index)

		if status == streamOK {
			s.updatePageState(index, StateFinished, "")
			return true
		}
		if status == streamInterrupted {
			interrupted = true
			break
		}
		if status == streamWriteFailed {
			errText = client.ErrorText(client.ErrWriteFailed)
			break
		}
		if status == streamBadURL {
			errText = client.ErrorText(client.ErrInvalidURL)
			break
		}
		errText = client.ErrorText(client.ErrSocket)
	}

	// Remove the partial page
	s.getDen().Remove(index)

	s.updatePageState(index, StateFailed, errText)
	return !interrupted
}

// streamImage copies the image body into the store in 4 KiB chunks,
// publishing progress along the way.
func (w *spiderWorker) streamImage(index int, imageURL string) streamStatus {
	s := w.spider

	pipe := s.getDen().OpenOutputPipe(index, client.FileExtension(imageURL))
	if pipe == nil {
		return streamWriteFailed
	}
	pipe.Obtain()
	defer pipe.Release()
	defer pipe.Close()

	body, contentLength, err := s.client.OpenImage(s.ctx, imageURL)
	if err != nil {
		if errors.Is(err, client.ErrInvalidURL) {
			return streamBadURL
		}
		return streamRetry
	}
	defer body.Close()

	out, err := pipe.Open()
	if err != nil {
		return streamWriteFailed
	}

	buf := make([]byte, chunkSize)
	var received int64
	for s.ctx.Err() == nil {
		if err := s.client.WaitBytes(s.ctx, chunkSize); err != nil {
			return streamInterrupted
		}
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return streamRetry
			}
			received += int64(n)
			if contentLength > 0 {
				percent := float64(received) / float64(contentLength)
				s.pagePercents.Store(index, math.Min(percent, 1))
			}
			s.notifyDownload(index, contentLength, received, n)
		}
		if readErr != nil {
			if readErr == io.EOF {
				return streamOK
			}
			return streamRetry
		}
	}
	return streamInterrupted
}
