// Package api exposes the loopback control surface over the gallery
// registry: acquire and release coordinators, post page requests, and
// read status.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"gallery-spider/internal/config"
	"gallery-spider/internal/security"
	"gallery-spider/internal/spider"
	"gallery-spider/internal/storage"
	"gallery-spider/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ControlServer struct {
	logger   *slog.Logger
	registry *spider.Registry
	storage  *storage.Storage
	cfg      *config.ConfigManager
	audit    *security.AuditLogger
	router   *chi.Mux
}

func NewControlServer(logger *slog.Logger, registry *spider.Registry, st *storage.Storage, cfg *config.ConfigManager, audit *security.AuditLogger) *ControlServer {
	s := &ControlServer{
		logger:   logger,
		registry: registry,
		storage:  st,
		cfg:      cfg,
		audit:    audit,
		router:   chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *ControlServer) Start(port int) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	s.logger.Info("Control Server listening", "addr", addr)

	go func() {
		// Enforce loopback for the listener itself as an extra layer
		conn, err := net.Listen("tcp", addr)
		if err != nil {
			s.logger.Error("Control Server failed to bind", "error", err)
			return
		}

		if err := http.Serve(conn, s.router); err != nil {
			s.logger.Error("Control Server failed", "error", err)
		}
	}()
}

func (s *ControlServer) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.securityMiddleware)

	s.router.Post("/v1/galleries", s.handleAcquire)
	s.router.Delete("/v1/galleries/{gid}", s.handleRelease)
	s.router.Get("/v1/galleries", s.handleListGalleries)
	s.router.Get("/v1/galleries/{gid}", s.handleGetGallery)
	s.router.Post("/v1/galleries/{gid}/pages/{index}", s.handlePageRequest)
	s.router.Get("/v1/stats", s.handleGetStats)
}

func (s *ControlServer) securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sourceIP, _, _ := net.SplitHostPort(r.RemoteAddr)
		userAgent := r.UserAgent()
		action := fmt.Sprintf("%s %s", r.Method, r.URL.Path)

		// Localhost enforcement
		if sourceIP != "127.0.0.1" && sourceIP != "::1" {
			s.audit.Log(sourceIP, userAgent, action, http.StatusForbidden, "External Access Denied")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		// Token auth
		token := r.Header.Get("X-Spider-Token")
		if token != s.cfg.GetControlToken() {
			s.audit.Log(sourceIP, userAgent, action, http.StatusUnauthorized, "Invalid Token")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		s.audit.Log(sourceIP, userAgent, action, http.StatusOK, "Authorized")
		next.ServeHTTP(w, r)
	})
}

// Request/Response Models

type AcquireRequest struct {
	GID   uint64 `json:"gid"`
	Token string `json:"token"`
	Title string `json:"title"`
	Mode  string `json:"mode"` // "read" or "download"
}

type GalleryStatus struct {
	GID        uint64 `json:"gid"`
	Size       int    `json:"size"`
	Mode       string `json:"mode"`
	Downloaded int    `json:"downloaded_pages"`
	Finished   int    `json:"finished_pages"`
}

type PageRequestResponse struct {
	Result  string   `json:"result"` // "wait", "downloading", "failed"
	Percent *float64 `json:"percent,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func parseMode(mode string) (store.Mode, error) {
	switch mode {
	case "", "read":
		return store.ModeRead, nil
	case "download":
		return store.ModeDownload, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", mode)
	}
}

func (s *ControlServer) handleAcquire(w http.ResponseWriter, r *http.Request) {
	var req AcquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	gallery := spider.GalleryInfo{GID: req.GID, Token: req.Token, Title: req.Title}
	fresh := s.registry.Get(req.GID) == nil

	sp, err := s.registry.Acquire(gallery, mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if fresh && s.storage != nil {
		sp.AddListener(storage.NewRecorder(s.storage, s.logger, gallery))
	}

	writeJSON(w, s.statusOf(sp))
}

func (s *ControlServer) handleRelease(w http.ResponseWriter, r *http.Request) {
	gid, err := strconv.ParseUint(chi.URLParam(r, "gid"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := parseMode(r.URL.Query().Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sp := s.registry.Get(gid)
	if sp == nil {
		http.Error(w, "gallery not found", http.StatusNotFound)
		return
	}
	if err := s.registry.Release(sp, mode); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *ControlServer) handleListGalleries(w http.ResponseWriter, r *http.Request) {
	recs, err := s.storage.GetAllGalleries()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, recs)
}

func (s *ControlServer) handleGetGallery(w http.ResponseWriter, r *http.Request) {
	gid, err := strconv.ParseUint(chi.URLParam(r, "gid"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sp := s.registry.Get(gid)
	if sp == nil {
		http.Error(w, "gallery not found", http.StatusNotFound)
		return
	}
	writeJSON(w, s.statusOf(sp))
}

func (s *ControlServer) handlePageRequest(w http.ResponseWriter, r *http.Request) {
	gid, err := strconv.ParseUint(chi.URLParam(r, "gid"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sp := s.registry.Get(gid)
	if sp == nil {
		http.Error(w, "gallery not found", http.StatusNotFound)
		return
	}

	var result any
	if r.URL.Query().Get("force") != "" {
		result = sp.ForceRequest(index)
	} else {
		result = sp.Request(index)
	}

	resp := PageRequestResponse{Result: "wait"}
	switch v := result.(type) {
	case float64:
		resp.Result = "downloading"
		resp.Percent = &v
	case string:
		resp.Result = "failed"
		resp.Error = v
	}
	writeJSON(w, resp)
}

func (s *ControlServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	bytes, _ := s.storage.GetTotalLifetime()
	pages, _ := s.storage.GetTotalPages()
	writeJSON(w, map[string]int64{
		"lifetime_bytes": bytes,
		"lifetime_pages": pages,
	})
}

func (s *ControlServer) statusOf(sp *spider.Spider) GalleryStatus {
	return GalleryStatus{
		GID:        sp.Gallery().GID,
		Size:       sp.Size(),
		Mode:       sp.Mode().String(),
		Downloaded: sp.DownloadedPages(),
		Finished:   sp.FinishedPages(),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
