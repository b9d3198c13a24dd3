package rss

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"sessioncore/internal/domain"
	"sessioncore/internal/metrics"
)

const historyPurgeAge = 90 * 24 * time.Hour

// Manager owns per-feed polling timers, filtering, de-duplication, and
// emission of add-torrent commands and feed events. Each feed gets a 2s
// warm-up delay before its first check, then a repeating timer at its
// configured interval, cancelled and restarted on reconfigure.
type Manager struct {
	log     *slog.Logger
	fetcher *Fetcher
	history *HistoryStore

	commands chan<- domain.Command
	events   chan<- domain.Event

	mu      sync.Mutex
	feeds   map[string]domain.FeedConfig
	cancels map[string]context.CancelFunc
}

func NewManager(log *slog.Logger, fetcher *Fetcher, history *HistoryStore, commands chan<- domain.Command, events chan<- domain.Event) *Manager {
	return &Manager{
		log:      log,
		fetcher:  fetcher,
		history:  history,
		commands: commands,
		events:   events,
		feeds:    make(map[string]domain.FeedConfig),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// AddFeed registers or replaces a feed and (re)starts its polling timer.
func (m *Manager) AddFeed(ctx context.Context, cfg domain.FeedConfig) {
	cfg = cfg.Normalize()

	m.mu.Lock()
	if cancel, ok := m.cancels[cfg.URL]; ok {
		cancel()
	}
	m.feeds[cfg.URL] = cfg
	m.mu.Unlock()

	if !cfg.Enabled {
		return
	}

	feedCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancels[cfg.URL] = cancel
	m.mu.Unlock()

	go m.runTimer(feedCtx, cfg.URL)
}

func (m *Manager) RemoveFeed(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[url]; ok {
		cancel()
		delete(m.cancels, url)
	}
	delete(m.feeds, url)
}

func (m *Manager) Feeds() []domain.FeedConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.FeedConfig, 0, len(m.feeds))
	for _, f := range m.feeds {
		out = append(out, f)
	}
	return out
}

// CheckAllNow triggers an immediate check of every enabled feed, bypassing
// the interval timer.
func (m *Manager) CheckAllNow(ctx context.Context) {
	for _, f := range m.Feeds() {
		if f.Enabled {
			go m.checkFeed(ctx, f.URL)
		}
	}
}

func (m *Manager) runTimer(ctx context.Context, url string) {
	warmup := time.NewTimer(2 * time.Second)
	defer warmup.Stop()
	select {
	case <-ctx.Done():
		return
	case <-warmup.C:
	}
	m.checkFeed(ctx, url)

	cfg, ok := m.lookupFeed(url)
	if !ok {
		return
	}
	ticker := time.NewTicker(time.Duration(cfg.IntervalMinutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkFeed(ctx, url)
		}
	}
}

func (m *Manager) lookupFeed(url string) (domain.FeedConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feeds[url]
	return f, ok
}

func (m *Manager) checkFeed(ctx context.Context, url string) {
	cfg, ok := m.lookupFeed(url)
	if !ok || !cfg.Enabled {
		return
	}

	body, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		metrics.RSSFeedChecksTotal.WithLabelValues("fetch_error").Inc()
		m.emitEvent(domain.FeedErrorEvent{URL: url, Message: err.Error()})
		m.log.Warn("rss fetch failed", "url", url, "error", err)
		return
	}
	m.log.Debug("rss feed fetched", "url", url, "size", humanize.Bytes(uint64(len(body))))

	items, err := parseFeed(body)
	if err != nil {
		metrics.RSSFeedChecksTotal.WithLabelValues("parse_error").Inc()
		m.emitEvent(domain.FeedErrorEvent{URL: url, Message: err.Error()})
		m.log.Warn("rss parse failed", "url", url, "error", err)
		return
	}

	include := compileOrNil(cfg.IncludePattern)
	exclude := compileOrNil(cfg.ExcludePattern)

	newCount := 0
	for _, item := range items {
		if item.DownloadURL() == "" {
			continue
		}
		if !matchesFilters(item.Title, cfg.IncludePattern, include, cfg.ExcludePattern, exclude) {
			continue
		}

		id := item.UniqueID()
		seen, err := m.history.IsSeen(ctx, id)
		if err != nil {
			m.log.Warn("rss history lookup failed", "url", url, "error", err)
			continue
		}
		if seen {
			continue
		}
		if err := m.history.MarkSeen(ctx, id, url, item.Title, time.Now().Unix()); err != nil {
			m.log.Warn("rss mark-seen failed", "url", url, "error", err)
		}
		newCount++

		if cfg.AutoDownload {
			m.emitAddTorrent(ctx, item.DownloadURL(), cfg, item.Title, url)
		}
	}

	metrics.RSSFeedChecksTotal.WithLabelValues("ok").Inc()
	if newCount > 0 {
		metrics.RSSItemsNewTotal.Add(float64(newCount))
	}
	m.emitEvent(domain.FeedCheckedEvent{URL: url, TotalItems: len(items), NewItems: newCount})
}

// matchesFilters applies include-then-exclude title regex rules. A broken
// include pattern fails closed (item never matches); a broken exclude
// pattern fails open (never excludes). The feed itself stays enabled either
// way.
func matchesFilters(title, includeSrc string, include *regexp.Regexp, excludeSrc string, exclude *regexp.Regexp) bool {
	if includeSrc != "" {
		if include == nil || !include.MatchString(title) {
			return false
		}
	}
	if excludeSrc != "" && exclude != nil {
		if exclude.MatchString(title) {
			return false
		}
	}
	return true
}

func compileOrNil(pattern string) *regexp.Regexp {
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil
	}
	return re
}

// emitAddTorrent turns an accepted item's download_url into the right
// command: a magnet URI goes straight to AddMagnetCmd, while an http(s) URL
// (the enclosure .torrent link, or a bare link recognized as one) must first
// be fetched and handed to the engine as a local file, since AddTorrentFile
// only accepts a path. A fetch failure is a TransientIOError: it is logged
// and the item is not added. checkFeed has already marked the item seen, so
// later checks do not retry it.
func (m *Manager) emitAddTorrent(ctx context.Context, downloadURL string, cfg domain.FeedConfig, title, feedURL string) {
	if strings.HasPrefix(downloadURL, "magnet:") {
		m.emitCommand(domain.AddMagnetCmd{
			Magnet:   downloadURL,
			SavePath: cfg.SavePath,
			Category: cfg.Category,
		})
		m.log.Info("rss auto-download", "title", title, "feed", feedURL)
		return
	}

	body, err := m.fetcher.Fetch(ctx, downloadURL)
	if err != nil {
		m.log.Warn("rss torrent download failed", "url", downloadURL, "feed", feedURL, "error", err)
		return
	}
	f, err := os.CreateTemp("", "sessioncore-rss-*.torrent")
	if err != nil {
		m.log.Warn("rss temp file create failed", "url", downloadURL, "error", err)
		return
	}
	path := f.Name()
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(path)
		m.log.Warn("rss temp file write failed", "url", downloadURL, "error", err)
		return
	}
	f.Close()

	m.emitCommand(domain.AddTorrentFileCmd{
		Path:     path,
		SavePath: cfg.SavePath,
		Category: cfg.Category,
		Cleanup:  true,
	})
	m.log.Info("rss auto-download", "title", title, "feed", feedURL)
}

func (m *Manager) emitCommand(cmd domain.Command) {
	select {
	case m.commands <- cmd:
	default:
	}
}

func (m *Manager) emitEvent(ev domain.Event) {
	select {
	case m.events <- ev:
	default:
	}
}

// PurgeHistory removes seen-item rows older than the 90-day retention
// window; callers invoke this periodically (see cmd/sessiond's maintenance
// loop).
func (m *Manager) PurgeHistory(ctx context.Context) error {
	return m.history.PurgeOlderThan(ctx, time.Now().Unix()-int64(historyPurgeAge.Seconds()))
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cancel := range m.cancels {
		cancel()
	}
}
