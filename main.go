package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"gallery-spider/internal/api"
	"gallery-spider/internal/client"
	"gallery-spider/internal/config"
	"gallery-spider/internal/logger"
	"gallery-spider/internal/security"
	"gallery-spider/internal/spider"
	"gallery-spider/internal/storage"
	"gallery-spider/internal/store"
	"gallery-spider/internal/updater"
)

const appVersion = "v0.1.0"

func main() {
	log, err := logger.New(os.Stdout)
	if err != nil {
		println("Error initializing logger:", err.Error())
		os.Exit(1)
	}

	appData, err := os.UserConfigDir()
	if err != nil {
		log.Error("Failed to locate config dir", "error", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(appData, "gallery-spider")

	st, err := storage.NewStorage(baseDir)
	if err != nil {
		log.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	cfg := config.NewConfigManager(st)

	cl := client.New()
	if ua := cfg.GetUserAgent(); ua != "" {
		cl.SetUserAgent(ua)
	}
	if cookies := cfg.GetCookies(); cookies != "" {
		cl.SetCookies(cookies)
	}
	cl.SetRateLimit(cfg.GetRateLimit())

	home, err := os.UserHomeDir()
	if err != nil {
		log.Error("Failed to locate home dir", "error", err)
		os.Exit(1)
	}
	downloadRoot := filepath.Join(home, "Downloads", "gallery-spider")
	cacheRoot := filepath.Join(baseDir, "cache")

	registry := spider.NewRegistry(spider.Options{
		Logger:       log,
		Client:       cl,
		InfoCacheDir: filepath.Join(cacheRoot, "spider-info"),
		NewStore: func(g spider.GalleryInfo) store.Store {
			return store.NewDirStore(
				filepath.Join(downloadRoot, galleryDirName(g)),
				filepath.Join(cacheRoot, "image", strconv.FormatUint(g.GID, 10)),
			)
		},
	})

	audit := security.NewAuditLogger(log, filepath.Join(baseDir, "logs"))
	server := api.NewControlServer(log, registry, st, cfg, audit)
	server.Start(cfg.GetControlPort())

	log.Info("gallery-spider started", "version", appVersion, "downloads", downloadRoot)

	go func() {
		rel, err := updater.CheckForUpdates(appVersion, "gallery-spider", "gallery-spider")
		if err != nil {
			log.Debug("Update check failed", "error", err)
			return
		}
		if rel != nil {
			log.Info("Update available", "version", rel.TagName, "url", rel.HTMLURL)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down...")
	registry.Shutdown()
	if err := st.Checkpoint(); err != nil {
		log.Error("Failed to checkpoint DB", "error", err)
	}
	st.Close()
	audit.Close()
	log.Info("Shutdown complete")
}

// galleryDirName builds a filesystem-safe download directory name,
// "<gid>-<title>".
func galleryDirName(g spider.GalleryInfo) string {
	name := strconv.FormatUint(g.GID, 10)
	title := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(g.Title))
	if title != "" {
		name += "-" + title
	}
	return name
}
