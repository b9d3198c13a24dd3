package controller

import (
	"context"
	"os"
	"strings"
	"time"

	"sessioncore/internal/domain"
	"sessioncore/internal/domain/ports"
	"sessioncore/internal/metrics"
	"sessioncore/internal/peerfilter"
)

// dispatch processes one command on the controller loop. It returns true
// only for Shutdown, telling Run to stop the loop once the shutdown
// protocol has completed.
func (c *Controller) dispatch(ctx context.Context, cmd domain.Command) (shuttingDown bool) {
	switch v := cmd.(type) {
	case domain.InitializeCmd:
		c.safeCall("Initialize", func() error { return c.handleInitialize(ctx) })
	case domain.ShutdownCmd:
		c.handleShutdown(ctx)
		return true
	case domain.AddTorrentFileCmd:
		c.safeCall("AddTorrentFile", func() error { return c.handleAddTorrentFile(ctx, v) })
	case domain.AddMagnetCmd:
		c.safeCall("AddMagnet", func() error { return c.handleAddMagnet(ctx, v) })
	case domain.RemoveCmd:
		c.safeCall("Remove", func() error { return c.handleRemove(ctx, v) })
	case domain.PauseCmd:
		c.safeCall("Pause", func() error { return c.handlePause(ctx, v.InfoHash) })
	case domain.ResumeCmd:
		c.safeCall("Resume", func() error { return c.handleResume(ctx, v.InfoHash) })
	case domain.ForceResumeCmd:
		c.safeCall("ForceResume", func() error { return c.handleForceResume(ctx, v.InfoHash) })
	case domain.ForceRecheckCmd:
		c.safeCall("ForceRecheck", func() error { return c.engine.ForceRecheck(ctx, v.InfoHash) })
	case domain.ForceReannounceCmd:
		c.safeCall("ForceReannounce", func() error { return c.engine.ForceReannounce(ctx, v.InfoHash) })
	case domain.SetSpeedLimitCmd:
		c.safeCall("SetSpeedLimit", func() error { return c.handleSetSpeedLimit(ctx, v) })
	case domain.QueueActionCmd:
		c.safeCall("QueueAction", func() error { c.handleQueueAction(v); return nil })
	case domain.SetSequentialCmd:
		c.safeCall("SetSequential", func() error { return c.handleSetSequential(ctx, v) })
	case domain.SetFilePriorityCmd:
		c.safeCall("SetFilePriority", func() error {
			return c.engine.SetFilePriority(ctx, v.InfoHash, v.FileIndex, v.Priority)
		})
	case domain.AddTrackerCmd:
		c.safeCall("AddTracker", func() error { return c.engine.AddTracker(ctx, v.InfoHash, v.URL) })
	case domain.RemoveTrackerCmd:
		c.safeCall("RemoveTracker", func() error { return c.engine.RemoveTracker(ctx, v.InfoHash, v.URL) })
	case domain.RequestMagnetURICmd:
		c.safeCall("RequestMagnetUri", func() error { return c.handleRequestMagnetURI(ctx, v.InfoHash) })
	case domain.PauseAllCmd:
		c.safeCall("PauseAll", func() error { return c.handlePauseAll(ctx) })
	case domain.ResumeAllCmd:
		c.safeCall("ResumeAll", func() error { return c.handleResumeAll(ctx) })
	case domain.ApplySettingsCmd:
		c.safeCall("ApplySettings", func() error { return c.handleApplySettings(ctx, v) })
	case domain.SetFocusedTorrentCmd:
		c.focused = v.InfoHash
	default:
		c.log.Warn("unrecognized command", "type", v)
	}
	return false
}

func (c *Controller) handleInitialize(ctx context.Context) error {
	cfg, err := c.loadSettingsSnapshot(ctx)
	if err != nil {
		return err
	}
	c.cfg = cfg

	ranges, err := peerfilter.LoadBlocklistFile(cfg.IPBlocklistPath)
	if err != nil {
		c.log.Warn("ip blocklist load failed", "path", cfg.IPBlocklistPath, "error", err)
	} else {
		cfg.PeerFilter.Blocklist = ranges
		c.cfg.PeerFilter.Blocklist = ranges
	}
	c.filter.Configure(cfg.PeerFilter)

	if err := c.engine.ApplySettings(ctx, engineSettingsFrom(cfg)); err != nil {
		c.log.Warn("engine apply settings failed", "error", err)
	}
	if err := c.engine.SetDownloadRateLimit(ctx, cfg.MaxDownloadSpeed); err != nil {
		c.log.Warn("set download rate limit failed", "error", err)
	}
	if err := c.engine.SetUploadRateLimit(ctx, cfg.MaxUploadSpeed); err != nil {
		c.log.Warn("set upload rate limit failed", "error", err)
	}

	c.restoreFromResume(ctx)

	c.started = true
	c.emit(domain.StartedEvent{})
	return nil
}

// restoreFromResume repopulates the torrent table from the Resume Store.
// anacrolix/torrent has no libtorrent-style opaque resume-data restore API;
// the Resume Store's blob is the bencoded metainfo the engine handed back
// on save (see internal/engine/anacrolix.Engine.SaveResumeData), so restore
// writes it to a temp .torrent file and re-adds it the normal way. Restored
// torrents always start unpaused and auto-managed: the schema has no
// persisted paused flag.
func (c *Controller) restoreFromResume(ctx context.Context) {
	rows, err := c.resume.LoadAll(ctx)
	if err != nil {
		c.log.Error("resume store load_all failed", "error", err)
		return
	}
	for _, row := range rows {
		if err := c.restoreOne(ctx, row); err != nil {
			c.log.Warn("failed to restore torrent from resume row", "info_hash", row.InfoHash, "error", err)
		}
	}
}

func (c *Controller) restoreOne(ctx context.Context, row domain.ResumeRow) error {
	f, err := os.CreateTemp("", "sessioncore-resume-*.torrent")
	if err != nil {
		return err
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(row.ResumeBlob); err != nil {
		f.Close()
		return err
	}
	f.Close()

	hash, err := c.engine.AddTorrentFile(ctx, path, row.SavePath, false)
	if err != nil {
		return err
	}

	rec := domain.NewTorrentRecord(hash, row.Name, row.SavePath, row.Category, row.Tags, row.AddedTime)
	rec.DownloadLimit = row.DLLimit
	rec.UploadLimit = row.ULLimit
	c.records[hash] = &trackedTorrent{rec: rec}
	c.queue = append(c.queue, hash)
	if row.DLLimit != 0 || row.ULLimit != 0 {
		if err := c.engine.SetSpeedLimit(ctx, hash, row.DLLimit, row.ULLimit); err != nil {
			c.log.Warn("restore: set per-torrent speed limit failed", "info_hash", hash, "error", err)
		}
	}
	return nil
}

func (c *Controller) handleAddTorrentFile(ctx context.Context, cmd domain.AddTorrentFileCmd) error {
	if cmd.Cleanup {
		defer os.Remove(cmd.Path)
	}
	savePath := cmd.SavePath
	if savePath == "" {
		savePath = c.cfg.DefaultSavePath
	}
	hash, err := c.engine.AddTorrentFile(ctx, cmd.Path, savePath, cmd.Paused)
	if err != nil {
		c.emit(domain.AddFailedEvent{Reason: err.Error()})
		return nil
	}
	return c.finishAdd(ctx, hash, savePath, cmd.Category, cmd.Tags, cmd.Sequential)
}

func (c *Controller) handleAddMagnet(ctx context.Context, cmd domain.AddMagnetCmd) error {
	if !strings.HasPrefix(cmd.Magnet, "magnet:") {
		c.emit(domain.AddFailedEvent{Reason: "not a magnet uri"})
		return nil
	}
	savePath := cmd.SavePath
	if savePath == "" {
		savePath = c.cfg.DefaultSavePath
	}
	hash, err := c.engine.AddMagnet(ctx, cmd.Magnet, savePath, cmd.Paused)
	if err != nil {
		c.emit(domain.AddFailedEvent{Reason: err.Error()})
		return nil
	}
	return c.finishAdd(ctx, hash, savePath, cmd.Category, cmd.Tags, false)
}

func (c *Controller) finishAdd(ctx context.Context, hash domain.InfoHash, savePath, category string, tags []string, sequential bool) error {
	if _, exists := c.records[hash]; exists {
		// Duplicate add: the engine returned the handle of an
		// already-registered torrent, a no-op per the command contract.
		return nil
	}
	rec := domain.NewTorrentRecord(hash, string(hash), savePath, category, tags, time.Now().Unix())
	rec.Sequential = sequential
	c.records[hash] = &trackedTorrent{rec: rec}
	c.queue = append(c.queue, hash)
	if sequential {
		if err := c.engine.SetSequential(ctx, hash, true); err != nil {
			c.log.Warn("set sequential failed on add", "info_hash", hash, "error", err)
		}
	}
	metrics.TorrentsAddedTotal.Inc()
	c.emit(domain.TorrentAddedEvent{InfoHash: hash})
	return nil
}

func (c *Controller) handleRemove(ctx context.Context, cmd domain.RemoveCmd) error {
	if _, ok := c.records[cmd.InfoHash]; !ok {
		return domain.ErrNotFound
	}
	if err := c.engine.Remove(ctx, cmd.InfoHash, cmd.DeleteFiles); err != nil {
		return err
	}
	c.forgetTorrent(ctx, cmd.InfoHash)
	return nil
}

func (c *Controller) handlePause(ctx context.Context, hash domain.InfoHash) error {
	tt, ok := c.lookup(hash)
	if !ok {
		return domain.ErrNotFound
	}
	tt.rec.AutoManaged = false
	return c.engine.Pause(ctx, hash)
}

func (c *Controller) handleResume(ctx context.Context, hash domain.InfoHash) error {
	tt, ok := c.lookup(hash)
	if !ok {
		return domain.ErrNotFound
	}
	tt.rec.AutoManaged = true
	return c.engine.Resume(ctx, hash)
}

func (c *Controller) handleForceResume(ctx context.Context, hash domain.InfoHash) error {
	tt, ok := c.lookup(hash)
	if !ok {
		return domain.ErrNotFound
	}
	tt.rec.AutoManaged = false
	tt.errorMessage = ""
	return c.engine.ForceResume(ctx, hash)
}

func (c *Controller) handleSetSpeedLimit(ctx context.Context, cmd domain.SetSpeedLimitCmd) error {
	tt, ok := c.lookup(cmd.InfoHash)
	if !ok {
		return domain.ErrNotFound
	}
	if err := c.engine.SetSpeedLimit(ctx, cmd.InfoHash, cmd.DL, cmd.UL); err != nil {
		return err
	}
	tt.rec.DownloadLimit = cmd.DL
	tt.rec.UploadLimit = cmd.UL
	return nil
}

// handleQueueAction reorders the in-memory queue slice used to sequence
// StatsUpdated's torrent listing. anacrolix/torrent has no native queue
// position concept; ordering is a controller-level, display-only property.
func (c *Controller) handleQueueAction(cmd domain.QueueActionCmd) {
	idx := indexOf(c.queue, cmd.InfoHash)
	if idx < 0 {
		return
	}
	switch cmd.Action {
	case domain.QueueTop:
		moveTo(c.queue, idx, 0)
	case domain.QueueBottom:
		moveTo(c.queue, idx, len(c.queue)-1)
	case domain.QueueUp:
		if idx > 0 {
			moveTo(c.queue, idx, idx-1)
		}
	case domain.QueueDown:
		if idx < len(c.queue)-1 {
			moveTo(c.queue, idx, idx+1)
		}
	}
}

func (c *Controller) handleSetSequential(ctx context.Context, cmd domain.SetSequentialCmd) error {
	tt, ok := c.lookup(cmd.InfoHash)
	if !ok {
		return domain.ErrNotFound
	}
	if err := c.engine.SetSequential(ctx, cmd.InfoHash, cmd.Enabled); err != nil {
		return err
	}
	tt.rec.Sequential = cmd.Enabled
	return nil
}

func (c *Controller) handleRequestMagnetURI(ctx context.Context, hash domain.InfoHash) error {
	if _, ok := c.lookup(hash); !ok {
		return domain.ErrNotFound
	}
	uri, err := c.engine.MagnetURI(ctx, hash)
	if err != nil {
		return err
	}
	c.emit(domain.MagnetURIReadyEvent{InfoHash: hash, URI: uri})
	return nil
}

func (c *Controller) handlePauseAll(ctx context.Context) error {
	for _, tt := range c.records {
		tt.rec.AutoManaged = false
	}
	return c.engine.PauseAll(ctx)
}

func (c *Controller) handleResumeAll(ctx context.Context) error {
	for _, tt := range c.records {
		tt.rec.AutoManaged = true
	}
	return c.engine.ResumeAll(ctx)
}

func (c *Controller) handleApplySettings(ctx context.Context, cmd domain.ApplySettingsCmd) error {
	for k, v := range cmd.Settings {
		if err := c.store.Set(ctx, k, v); err != nil {
			c.log.Warn("settings set failed", "key", k, "error", err)
		}
	}
	cfg, err := c.loadSettingsSnapshot(ctx)
	if err != nil {
		return err
	}

	ranges, err := peerfilter.LoadBlocklistFile(cfg.IPBlocklistPath)
	if err != nil {
		c.log.Warn("ip blocklist reload failed", "path", cfg.IPBlocklistPath, "error", err)
	} else {
		cfg.PeerFilter.Blocklist = ranges
	}
	c.filter.Configure(cfg.PeerFilter)
	c.cfg = cfg

	if err := c.engine.ApplySettings(ctx, engineSettingsFrom(cfg)); err != nil {
		c.log.Warn("engine apply settings failed", "error", err)
	}
	if err := c.engine.SetDownloadRateLimit(ctx, cfg.MaxDownloadSpeed); err != nil {
		c.log.Warn("set download rate limit failed", "error", err)
	}
	if err := c.engine.SetUploadRateLimit(ctx, cfg.MaxUploadSpeed); err != nil {
		c.log.Warn("set upload rate limit failed", "error", err)
	}
	return nil
}

func (c *Controller) loadSettingsSnapshot(ctx context.Context) (sessionConfig, error) {
	values, err := c.store.GetAll(ctx)
	if err != nil {
		return sessionConfig{}, err
	}
	return buildSessionConfig(values), nil
}

func engineSettingsFrom(cfg sessionConfig) ports.EngineSettings {
	return ports.EngineSettings{
		ListenPort:               cfg.ListenPort,
		UPnPEnabled:              cfg.UPnPEnabled,
		NATPMPEnabled:            cfg.NATPMPEnabled,
		DHTEnabled:               cfg.DHTEnabled,
		PEXEnabled:               cfg.PEXEnabled,
		LSDEnabled:               cfg.LSDEnabled,
		EncryptionMode:           cfg.Encryption,
		MaxConnections:           cfg.MaxConnections,
		MaxConnectionsPerTorrent: cfg.MaxConnectionsPerTorrent,
		MaxUploads:               cfg.MaxUploads,
		MaxUploadsPerTorrent:     cfg.MaxUploadsPerTorrent,
		MaxDownloadSpeed:         cfg.MaxDownloadSpeed,
		MaxUploadSpeed:           cfg.MaxUploadSpeed,
		DataDir:                  cfg.DefaultSavePath,
		IPBlocklist:              cfg.PeerFilter.Blocklist,
	}
}

func indexOf(s []domain.InfoHash, v domain.InfoHash) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func moveTo(s []domain.InfoHash, from, to int) {
	if from == to {
		return
	}
	v := s[from]
	if from < to {
		copy(s[from:to], s[from+1:to+1])
	} else {
		copy(s[to+1:from+1], s[to:from])
	}
	s[to] = v
}
