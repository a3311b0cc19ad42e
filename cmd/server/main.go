package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-library/internal/catalog"
	"media-library/internal/platform/auth"
	"media-library/internal/platform/config"
	"media-library/internal/platform/logger"
	"media-library/internal/platform/metrics"
	"media-library/internal/scanner"
	"media-library/internal/stream"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	videoRoot := config.GetEnv("VIDEO_ROOT", "./videos")
	cacheRoot := config.GetEnv("CACHE_ROOT", "./cache")
	dbPath := config.GetEnv("DB_PATH", "./media-library.db")
	segmentSeconds := config.GetEnvInt("SEGMENT_DURATION_SECONDS", 10)
	maxAgeHours := config.GetEnvInt("CACHE_MAX_AGE_HOURS", 7*24)
	cleanupMinutes := config.GetEnvInt("CLEANUP_INTERVAL_MINUTES", 60)
	generationMinutes := config.GetEnvInt("GENERATION_TIMEOUT_MINUTES", 10)
	ffmpegPath := config.GetEnv("FFMPEG_PATH", "ffmpeg")
	ffprobePath := config.GetEnv("FFPROBE_PATH", "ffprobe")
	scanOnStart := config.GetEnvBool("SCAN_ON_START", true)
	watchLibrary := config.GetEnvBool("WATCH_LIBRARY", true)
	apiToken := config.GetEnv("API_TOKEN", "")
	rateLimitRPS := config.GetEnvInt("RATE_LIMIT_RPS", 30)

	log := logger.New(logLevel, logFormat)

	if err := os.MkdirAll(cacheRoot, 0o755); err != nil {
		log.Error("creating cache root failed", "error", err)
		os.Exit(1)
	}

	store, err := catalog.OpenStore(dbPath)
	if err != nil {
		log.Error("opening catalogue failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	met := metrics.New()
	library := catalog.NewService(store, log)
	transcoder := stream.NewFFmpeg(ffmpegPath, log)
	files := stream.NewFileStreamer(videoRoot, log, met)
	clips := stream.NewClipStreamer(transcoder, log, met)
	cache := stream.NewSegmentCache(stream.SegmentCacheConfig{
		Root:              cacheRoot,
		SegmentDuration:   time.Duration(segmentSeconds) * time.Second,
		MaxAge:            time.Duration(maxAgeHours) * time.Hour,
		GenerationTimeout: time.Duration(generationMinutes) * time.Minute,
	}, library, transcoder, stream.NewDirStore(cacheRoot), log, met)

	streamHandler := stream.NewHandler(library, files, clips, cache, log, met)
	catalogHandler := catalog.NewHandler(library, cache, log)

	prober := scanner.NewFFProbe(ffprobePath)
	libScanner := scanner.New(videoRoot, store, prober, cache, log)
	scanHandler := scanner.NewHandler(libScanner, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if scanOnStart {
		go func() {
			if _, err := libScanner.Scan(ctx); err != nil {
				log.Error("startup scan failed", "error", err)
			}
		}()
	}
	if watchLibrary {
		watcher := scanner.NewWatcher(videoRoot, store, prober, cache, log)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Error("library watcher stopped", "error", err)
			}
		}()
	}

	// The eviction sweep is scheduled here; the cache itself never
	// self-schedules.
	go func() {
		ticker := time.NewTicker(time.Duration(cleanupMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := cache.CleanupOldCache()
				if err != nil {
					log.Error("cache cleanup failed", "error", err)
					continue
				}
				if removed > 0 {
					log.Info("cache cleanup finished", slog.Int("removed", removed))
				}
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetCacheEntries(cache.EntryCount()) }).ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := store.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireToken(apiToken))
			catalogHandler.Routes(r)
			r.Post("/library/scan", scanHandler.ScanNow)
		})
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(rateLimitRPS, time.Second))
			streamHandler.Routes(r)
		})
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"video_root", videoRoot,
		"cache_root", cacheRoot,
		"segment_duration_seconds", segmentSeconds,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
