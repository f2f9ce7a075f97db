// Package spider implements the gallery page fetch coordinator: a
// queen goroutine resolving page tokens, a small worker pool
// downloading images into a store, and a decoder serving images back
// to consumers.
package spider

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"gallery-spider/internal/client"
	"gallery-spider/internal/store"
)

// PageState is the per-index download state.
type PageState int

const (
	StateNone PageState = iota
	StateDownloading
	StateFinished
	StateFailed
)

func (p PageState) String() string {
	switch p {
	case StateNone:
		return "none"
	case StateDownloading:
		return "downloading"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Size sentinels returned by Spider.Size while the page count is not
// yet known (SizeWait) or once the queen is gone (SizeError).
const (
	SizeError = -1
	SizeWait  = -2
)

const (
	numSpiderWorkers = 3
	numPreload       = 5
	chunkSize        = 4 * 1024
)

var url509Suffixes = []string{"/509.gif", "/509s.gif"}

// GalleryInfo identifies one gallery.
type GalleryInfo struct {
	GID   uint64
	Token string
	Title string
}

// Options wires a Spider's collaborators.
type Options struct {
	Logger *slog.Logger
	Client *client.Client

	// NewStore builds the page store for a gallery.
	NewStore func(gallery GalleryInfo) store.Store

	// InfoCacheDir holds the cache tier of SpiderInfo records, one file
	// per gid.
	InfoCacheDir string
}

// Spider coordinates all fetch work for one gallery. Obtain instances
// through a Registry.
type Spider struct {
	logger  *slog.Logger
	client  *client.Client
	opts    Options
	gallery GalleryInfo

	ctx    context.Context
	cancel context.CancelFunc

	// alive is cleared when the queen exits or stop is called; a dead
	// spider answers SizeError and ignores requests.
	alive atomic.Bool

	mode atomic.Int32

	// refcounts, guarded by the owning Registry
	readRef     int
	downloadRef int

	denMu sync.Mutex
	den   store.Store

	queuesMu sync.Mutex
	queues   *requestQueues

	stateMu         sync.Mutex
	pageStates      []PageState
	downloadedPages atomic.Int32
	finishedPages   atomic.Int32

	pageErrors   sync.Map // index -> string
	pagePercents sync.Map // index -> float64

	tokenMu sync.Mutex
	info    *SpiderInfo

	queenMu       sync.Mutex
	queenCond     *sync.Cond
	tokenRequests []int

	previewMu       sync.Mutex
	previewFetching map[int]struct{}

	workerMu   sync.Mutex
	workerCond *sync.Cond

	workersMu sync.Mutex
	workers   []*spiderWorker

	decodeMu    sync.Mutex
	decodeCond  *sync.Cond
	decodeStack []int

	listenersMu sync.Mutex
	listeners   []Listener
}

func newSpider(gallery GalleryInfo, opts Options) *Spider {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Spider{
		logger:          opts.Logger.With("gid", gallery.GID),
		client:          opts.Client,
		opts:            opts,
		gallery:         gallery,
		ctx:             ctx,
		cancel:          cancel,
		queues:          newRequestQueues(),
		previewFetching: make(map[int]struct{}),
	}
	s.queenCond = sync.NewCond(&s.queenMu)
	s.workerCond = sync.NewCond(&s.workerMu)
	s.decodeCond = sync.NewCond(&s.decodeMu)
	return s
}

func (s *Spider) start() {
	s.alive.Store(true)
	go s.run()
}

// stop interrupts the queen; the queen's exit path tears down the
// decoder and workers.
func (s *Spider) stop() {
	s.alive.Store(false)
	s.cancel()
	s.broadcastAll()
}

func (s *Spider) broadcastAll() {
	s.queenMu.Lock()
	s.queenCond.Broadcast()
	s.queenMu.Unlock()
	s.wakeWorkers()
	s.decodeMu.Lock()
	s.decodeCond.Broadcast()
	s.decodeMu.Unlock()
}

// Gallery returns the identity this spider serves.
func (s *Spider) Gallery() GalleryInfo {
	return s.gallery
}

// Mode returns the current usage mode.
func (s *Spider) Mode() store.Mode {
	return store.Mode(s.mode.Load())
}

// Size returns the page count, SizeWait while it is still being
// discovered, or SizeError when the queen is gone.
func (s *Spider) Size() int {
	if !s.alive.Load() {
		return SizeError
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.pageStates == nil {
		return SizeWait
	}
	return len(s.pageStates)
}

// DownloadedPages counts indices whose state left NONE.
func (s *Spider) DownloadedPages() int {
	return int(s.downloadedPages.Load())
}

// FinishedPages counts indices in FINISHED state.
func (s *Spider) FinishedPages() int {
	return int(s.finishedPages.Load())
}

// State returns the page state for index, StateNone when out of range.
func (s *Spider) State(index int) PageState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.pageStates == nil || index < 0 || index >= len(s.pageStates) {
		return StateNone
	}
	return s.pageStates[index]
}

// Request schedules interactive work for a page.
//
// The result is a string (error text of a failed page), a float64
// (download progress of an in-flight page), or nil (scheduled or
// decoding; wait for listener events).
func (s *Spider) Request(index int) any {
	return s.request(index, false)
}

// ForceRequest re-requests a page even if it already finished or
// failed.
func (s *Spider) ForceRequest(index int) any {
	return s.request(index, true)
}

func (s *Spider) request(index int, force bool) any {
	if !s.alive.Load() {
		return nil
	}

	state := StateNone
	published := false
	size := math.MaxInt
	s.stateMu.Lock()
	if s.pageStates != nil {
		published = true
		size = len(s.pageStates)
		if index >= 0 && index < size {
			state = s.pageStates[index]
		}
	}
	s.stateMu.Unlock()

	if force && (state == StateFinished || state == StateFailed) {
		state = StateNone
	}

	switch state {
	case StateDownloading:
		if percent, ok := s.pagePercents.Load(index); ok {
			return percent
		}
		return nil
	case StateFailed:
		if err, ok := s.pageErrors.Load(index); ok {
			return err
		}
		return client.ErrorText(nil)
	case StateFinished:
		s.decodeMu.Lock()
		s.decodeStack = append(s.decodeStack, index)
		s.decodeCond.Signal()
		s.decodeMu.Unlock()
		return nil
	default:
		s.queuesMu.Lock()
		if force {
			s.queues.pushForce(index)
		} else {
			s.queues.pushRequest(index, size, numPreload)
		}
		s.queuesMu.Unlock()
		// Only ensure workers once the page count is known
		if published {
			s.ensureWorkers()
		}
		return nil
	}
}

func (s *Spider) ensureWorkers() {
	s.workersMu.Lock()
	defer s.workersMu.Unlock()
	if s.workers == nil {
		s.workers = make([]*spiderWorker, numSpiderWorkers)
	}
	for i := range s.workers {
		if s.workers[i] == nil {
			w := &spiderWorker{spider: s, slot: i}
			s.workers[i] = w
			go w.run()
		}
	}
}

func (s *Spider) wakeWorkers() {
	s.workerMu.Lock()
	s.workerCond.Broadcast()
	s.workerMu.Unlock()
}

func (s *Spider) setDen(den store.Store) {
	s.denMu.Lock()
	s.den = den
	s.denMu.Unlock()
}

func (s *Spider) getDen() store.Store {
	s.denMu.Lock()
	defer s.denMu.Unlock()
	return s.den
}

// infoCachePath is the cache tier copy, keyed by gid.
func (s *Spider) infoCachePath() string {
	if s.opts.InfoCacheDir == "" {
		return ""
	}
	return filepath.Join(s.opts.InfoCacheDir, strconv.FormatUint(s.gallery.GID, 10))
}

func (s *Spider) readSpiderInfoFromLocal() *SpiderInfo {
	// Download dir first
	if dir := s.getDen().DownloadDir(); dir != "" {
		si, err := ReadSpiderInfo(filepath.Join(dir, InfoFilename), s.gallery.GID, s.gallery.Token)
		if err == nil {
			return si
		}
		if !os.IsNotExist(err) {
			s.logger.Debug("spider info rejected", "tier", "download", "error", err)
		}
	}

	// Cache tier
	if path := s.infoCachePath(); path != "" {
		si, err := ReadSpiderInfo(path, s.gallery.GID, s.gallery.Token)
		if err == nil {
			return si
		}
		if !os.IsNotExist(err) {
			s.logger.Debug("spider info rejected", "tier", "cache", "error", err)
		}
	}

	return nil
}

func (s *Spider) readSpiderInfoFromInternet() (*SpiderInfo, error) {
	url := client.DetailURL(s.client.BaseURL, s.gallery.GID, s.gallery.Token, 0)
	body, err := s.client.GetHTML(s.ctx, url)
	if err != nil {
		return nil, err
	}

	si := &SpiderInfo{GID: s.gallery.GID, Token: s.gallery.Token}
	if si.Pages, err = client.ParsePages(body); err != nil {
		return nil, err
	}
	if si.PreviewPages, err = client.ParsePreviewPages(body); err != nil {
		return nil, err
	}
	previewSet, err := client.ParsePreviewSet(body)
	if err != nil {
		return nil, err
	}
	si.PreviewPerPage = len(previewSet)
	si.PTokenMap = make(map[int]string, si.Pages)
	for _, item := range previewSet {
		if item.Page >= 0 && item.Page < si.Pages {
			si.PTokenMap[item.Page] = item.PToken
		}
	}
	return si, nil
}

// writeSpiderInfoToLocal persists the record to both tiers,
// best-effort. Callers hold the pToken mutex.
func (s *Spider) writeSpiderInfoToLocal(si *SpiderInfo) {
	if dir := s.getDen().DownloadDir(); dir != "" {
		if err := si.Write(filepath.Join(dir, InfoFilename)); err != nil {
			s.logger.Debug("spider info write failed", "tier", "download", "error", err)
		}
	}
	if path := s.infoCachePath(); path != "" {
		if err := si.Write(path); err != nil {
			s.logger.Debug("spider info write failed", "tier", "cache", "error", err)
		}
	}
}

func (s *Spider) run() {
	s.logger.Info("spider queen start")

	if err := s.runInternal(); err != nil {
		s.logger.Error("spider queen failed", "error", err)
	}

	// Dead queen: Size answers SizeError from here on
	s.alive.Store(false)

	// Interrupt the decoder and all workers
	s.cancel()
	s.broadcastAll()

	s.workersMu.Lock()
	s.workers = nil
	s.workersMu.Unlock()

	s.logger.Info("spider queen end")
}

func (s *Spider) runInternal() error {
	den := s.opts.NewStore(s.gallery)
	den.SetMode(s.Mode())
	s.setDen(den)

	// Read spider info
	si := s.readSpiderInfoFromLocal()

	if s.ctx.Err() != nil {
		return nil
	}

	// Spider info from internet
	if si == nil {
		var err error
		si, err = s.readSpiderInfoFromInternet()
		if err != nil {
			return fmt.Errorf("get spider info: %w", err)
		}
	}

	s.tokenMu.Lock()
	s.info = si
	s.tokenMu.Unlock()

	if s.ctx.Err() != nil {
		return nil
	}

	// Write spider info to file
	s.tokenMu.Lock()
	s.writeSpiderInfoToLocal(si)
	s.tokenMu.Unlock()

	if s.ctx.Err() != nil {
		return nil
	}

	// Setup page state
	s.stateMu.Lock()
	s.pageStates = make([]PageState, si.Pages)
	s.stateMu.Unlock()

	s.notifyGetPages(si.Pages)

	// Ensure workers for work queued before the page count was known
	s.queuesMu.Lock()
	startWorkers := s.queues.pending(si.Pages)
	s.queuesMu.Unlock()
	if startWorkers {
		s.ensureWorkers()
	}

	// Start spider decoder
	go s.runDecoder()

	// Handle pToken requests
	for s.ctx.Err() == nil {
		index, ok := s.popTokenRequest()
		if !ok {
			break
		}

		// Check it in spider info first
		s.tokenMu.Lock()
		_, have := s.info.PTokenMap[index]
		s.tokenMu.Unlock()
		if have {
			s.wakeWorkers()
			continue
		}

		pToken := s.getPTokenFromInternet(index)

		if pToken == "" {
			// Exhausted; let workers fail the page
			s.tokenMu.Lock()
			s.info.PTokenMap[index] = TokenFailed
			s.tokenMu.Unlock()
		}
		if pToken != TokenWait {
			s.wakeWorkers()
		}
	}
	return nil
}

func (s *Spider) popTokenRequest() (int, bool) {
	s.queenMu.Lock()
	defer s.queenMu.Unlock()
	for len(s.tokenRequests) == 0 && s.ctx.Err() == nil {
		s.queenCond.Wait()
	}
	if s.ctx.Err() != nil {
		return 0, false
	}
	index := s.tokenRequests[0]
	s.tokenRequests = s.tokenRequests[1:]
	return index, true
}

func (s *Spider) enqueueTokenRequest(index int) {
	s.queenMu.Lock()
	s.tokenRequests = append(s.tokenRequests, index)
	s.queenCond.Signal()
	s.queenMu.Unlock()
}

// getPTokenFromInternet fetches the preview page covering index and
// merges every pToken it carries. Returns TokenWait when another fetch
// of the same preview page is in flight, "" on failure or when the
// preview page did not cover index.
func (s *Spider) getPTokenFromInternet(index int) string {
	s.tokenMu.Lock()
	previewPerPage := s.info.PreviewPerPage
	s.tokenMu.Unlock()
	previewIndex := index / previewPerPage

	s.previewMu.Lock()
	if _, fetching := s.previewFetching[previewIndex]; fetching {
		s.previewMu.Unlock()
		return TokenWait
	}
	s.previewFetching[previewIndex] = struct{}{}
	s.previewMu.Unlock()

	defer func() {
		s.previewMu.Lock()
		delete(s.previewFetching, previewIndex)
		s.previewMu.Unlock()
	}()

	url := client.DetailURL(s.client.BaseURL, s.gallery.GID, s.gallery.Token, previewIndex)
	s.logger.Debug("fetch preview page", "url", url)
	body, err := s.client.GetHTML(s.ctx, url)
	if err != nil {
		s.logger.Warn("preview page fetch failed", "previewIndex", previewIndex, "error", err)
		return ""
	}
	previewSet, err := client.ParsePreviewSet(body)
	if err != nil {
		s.logger.Warn("preview page parse failed", "previewIndex", previewIndex, "error", err)
		return ""
	}

	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	for _, item := range previewSet {
		if item.Page >= 0 && item.Page < s.info.Pages {
			s.info.PTokenMap[item.Page] = item.PToken
		}
	}
	s.writeSpiderInfoToLocal(s.info)
	return s.info.PTokenMap[index]
}

// updatePageState transitions one page and maintains the derived
// counters, progress/error maps, and listener notifications.
func (s *Spider) updatePageState(index int, state PageState, errText string) {
	s.stateMu.Lock()
	old := s.pageStates[index]
	s.pageStates[index] = state
	s.stateMu.Unlock()
	s.applyTransition(index, old, state, errText)
}

// claimPage transitions index to DOWNLOADING unless another worker
// owns it, or the state is terminal and the request is not forced.
func (s *Spider) claimPage(index int, force bool) bool {
	s.stateMu.Lock()
	old := s.pageStates[index]
	if old == StateDownloading || (!force && (old == StateFinished || old == StateFailed)) {
		s.stateMu.Unlock()
		return false
	}
	s.pageStates[index] = StateDownloading
	s.stateMu.Unlock()
	s.applyTransition(index, old, StateDownloading, "")
	return true
}

func (s *Spider) applyTransition(index int, old, state PageState, errText string) {
	if old == StateNone && state != StateNone {
		s.downloadedPages.Add(1)
	} else if old != StateNone && state == StateNone {
		s.downloadedPages.Add(-1)
	}
	if old != StateFinished && state == StateFinished {
		s.finishedPages.Add(1)
	} else if old == StateFinished && state != StateFinished {
		s.finishedPages.Add(-1)
	}

	// Clear stale bookkeeping
	if state == StateDownloading {
		s.pageErrors.Delete(index)
	} else if state == StateFinished || state == StateFailed {
		s.pagePercents.Delete(index)
	}

	if state == StateFailed {
		if errText == "" {
			errText = client.ErrorText(nil)
		}
		s.pageErrors.Store(index, errText)
		s.notifyFailure(index, errText)
	} else if state == StateFinished {
		s.notifySuccess(index)
	}
}
