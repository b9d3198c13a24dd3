package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "sessioncore/internal/api/http"
	"sessioncore/internal/app"
	"sessioncore/internal/controller"
	"sessioncore/internal/domain"
	"sessioncore/internal/engine/anacrolix"
	"sessioncore/internal/metrics"
	"sessioncore/internal/peerfilter"
	"sessioncore/internal/resume"
	"sessioncore/internal/rss"
	"sessioncore/internal/settings"
	"sessioncore/internal/telemetry"
)

func main() {
	os.Exit(run())
}

// run wires the whole process and blocks until shutdown completes, returning
// the process exit code. Kept separate from main so deferred cleanup always
// runs before os.Exit.
func run() int {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "sessioncore")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("configRoot", cfg.ConfigRoot),
		slog.String("dataDir", cfg.TorrentDataDir),
	)

	if err := os.MkdirAll(cfg.ConfigRoot, 0o755); err != nil {
		logger.Error("config root unwritable", slog.String("error", err.Error()))
		return 1
	}
	if err := os.MkdirAll(cfg.TorrentDataDir, 0o755); err != nil {
		logger.Error("data dir unwritable", slog.String("error", err.Error()))
		return 1
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// runCtx governs the controller loop and background timers. It is
	// canceled only after Shutdown has drained the engine, not on the first
	// signal, so a pending resume save or engine close is never cut short.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	ctx := sigCtx

	settingsStore, err := settings.Open(ctx, filepath.Join(cfg.ConfigRoot, "settings.db"), cfg.TorrentDataDir)
	if err != nil {
		logger.Error("settings store open failed", slog.String("error", err.Error()))
		return 1
	}
	defer settingsStore.Close()

	if cfg.IPBlocklistPath != "" {
		if err := settingsStore.Set(ctx, domain.KeyIPBlocklistPath, cfg.IPBlocklistPath); err != nil {
			logger.Warn("seeding ip blocklist path failed", slog.String("error", err.Error()))
		}
	}

	resumeStore, err := resume.Open(ctx, filepath.Join(cfg.ConfigRoot, "resume.db"))
	if err != nil {
		logger.Error("resume store open failed", slog.String("error", err.Error()))
		return 1
	}
	defer resumeStore.Close()

	history, err := rss.OpenHistory(ctx, filepath.Join(cfg.ConfigRoot, "rss_history.db"))
	if err != nil {
		logger.Error("rss history open failed", slog.String("error", err.Error()))
		return 1
	}
	defer history.Close()

	engine, err := anacrolix.New(anacrolix.Config{DataDir: cfg.TorrentDataDir})
	if err != nil {
		logger.Error("torrent engine init failed", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := engine.Close(closeCtx); err != nil {
			logger.Warn("engine close error", slog.String("error", err.Error()))
		}
	}()

	filter := peerfilter.New(domain.PeerFilterConfig{})

	commands := make(chan domain.Command, 64)
	ctrl := controller.New(logger, engine, resumeStore, settingsStore, filter, commands)
	go ctrl.Run(runCtx)

	rssEvents := make(chan domain.Event, 64)
	rssClient := &http.Client{Timeout: time.Duration(cfg.RSSFetchTimeoutSeconds) * time.Second}
	rssMgr := rss.NewManager(logger, rss.NewFetcher(rssClient, cfg.RSSMaxConcurrentFetch), history, commands, rssEvents)
	defer rssMgr.Close()
	go forwardEvents(rssEvents, ctrl)
	go purgeHistoryLoop(runCtx, rssMgr, logger)

	server := apihttp.NewServer(logger, ctrl, rssMgr, settingsStore, apihttp.WithCORSOrigins(cfg.CORSAllowedOrigins))
	defer server.Close()

	ctrl.Post(domain.InitializeCmd{})
	handleCLIArg(ctrl)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	logger.Info("sessioncore started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", slog.String("error", err.Error()))
			return 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}

	ctrl.Shutdown(shutdownCtx)
	cancelRun()

	logger.Info("sessioncore stopped")
	return 0
}

// forwardEvents relays the RSS Ingester's independently emitted events onto
// the controller's hub, which is the one place every Observer (websocket
// clients, the HTTP cache) actually listens.
func forwardEvents(events <-chan domain.Event, ctrl *controller.Controller) {
	for ev := range events {
		ctrl.Broadcast(ev)
	}
}

func purgeHistoryLoop(ctx context.Context, mgr *rss.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := mgr.PurgeHistory(ctx); err != nil {
				logger.Warn("rss history purge failed", slog.String("error", err.Error()))
			}
		}
	}
}

// handleCLIArg implements the minimal optional entry point: a single
// argument ending ".torrent" or beginning "magnet:" is queued right after
// Initialize.
func handleCLIArg(ctrl *controller.Controller) {
	if len(os.Args) != 2 {
		return
	}
	arg := strings.TrimSpace(os.Args[1])
	switch {
	case strings.HasPrefix(arg, "magnet:"):
		ctrl.Post(domain.AddMagnetCmd{Magnet: arg})
	case strings.HasSuffix(arg, ".torrent"):
		ctrl.Post(domain.AddTorrentFileCmd{Path: arg})
	}
}

func newLogger(formatRaw, levelRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
