package controller

import (
	"context"
	"time"

	"sessioncore/internal/domain"
	"sessioncore/internal/metrics"
)

// snapshotTick captures exactly one TorrentSnapshot per torrent per tick,
// the engine's single per-torrent status query (ports.Engine.Status),
// appends rate samples to the per-torrent and session-wide history, and
// publishes StatsUpdated. If a torrent is focused, it also captures and
// publishes DetailData.
func (c *Controller) snapshotTick(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.SnapshotTickDuration.Observe(time.Since(start).Seconds()) }()

	if !c.started {
		return
	}

	var sessionDL, sessionUL int64
	var totalPeers int
	snapshots := make([]domain.TorrentSnapshot, 0, len(c.queue))

	for _, hash := range c.queue {
		tt, ok := c.records[hash]
		if !ok {
			continue
		}
		snap := c.captureOne(ctx, tt)
		tt.rec.LatestSnapshot = snap
		tt.rec.DownloadHistory.Append(snap.DownloadSpeed)
		tt.rec.UploadHistory.Append(snap.UploadSpeed)
		sessionDL += snap.DownloadSpeed
		sessionUL += snap.UploadSpeed
		totalPeers += snap.NumPeers
		snapshots = append(snapshots, snap)
	}

	c.sessionDL.Append(sessionDL)
	c.sessionUL.Append(sessionUL)
	dhtNodes := c.engine.DHTNodes(ctx)

	metrics.TorrentCount.Set(float64(len(snapshots)))
	metrics.DownloadRateBytes.Set(float64(sessionDL))
	metrics.UploadRateBytes.Set(float64(sessionUL))
	metrics.DHTNodes.Set(float64(dhtNodes))
	metrics.PeersConnected.Set(float64(totalPeers))

	c.emit(domain.StatsUpdatedEvent{Stats: domain.SessionStats{
		DownloadRate:    sessionDL,
		UploadRate:      sessionUL,
		DHTNodes:        dhtNodes,
		DownloadHistory: c.sessionDL.Values(),
		UploadHistory:   c.sessionUL.Values(),
		TorrentCount:    len(snapshots),
		Torrents:        snapshots,
	}})

	if c.focused != nil {
		c.captureDetail(ctx, *c.focused)
	}
}

// captureOne performs the single Status query for one torrent, isolated so
// an engine error on one torrent reports as an InvalidSnapshot rather than
// aborting the rest of the tick.
func (c *Controller) captureOne(ctx context.Context, tt *trackedTorrent) (snap domain.TorrentSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("recovered panic capturing snapshot", "info_hash", tt.rec.InfoHash, "panic", r)
			snap = domain.InvalidSnapshot(tt.rec.InfoHash, tt.rec.Name)
		}
	}()

	status, err := c.engine.Status(ctx, tt.rec.InfoHash)
	if err != nil {
		c.log.Warn("status query failed", "info_hash", tt.rec.InfoHash, "error", err)
		return domain.InvalidSnapshot(tt.rec.InfoHash, tt.rec.Name)
	}

	errorCode := 0
	if tt.errorMessage != "" {
		errorCode = 1
	}
	state := domain.ResolveState(errorCode, status.Paused, tt.rec.AutoManaged, status.State, status.DownloadRate, status.NumSeeds)

	var progress float64
	if status.TotalSize > 0 {
		progress = float64(status.CompletedSize) / float64(status.TotalSize)
	}

	return domain.TorrentSnapshot{
		InfoHash:        tt.rec.InfoHash,
		Name:            tt.rec.Name,
		SavePath:        tt.rec.SavePath,
		Valid:           true,
		HasMetadata:     status.HasMetadata,
		State:           state,
		ErrorMessage:    tt.errorMessage,
		Progress:        progress,
		TotalSize:       status.TotalSize,
		CompletedSize:   status.CompletedSize,
		DownloadSpeed:   status.DownloadRate,
		UploadSpeed:     status.UploadRate,
		TotalDownloaded: status.TotalDownload,
		TotalUploaded:   status.TotalUpload,
		ETASeconds:      domain.ETASeconds(status.TotalSize, status.CompletedSize, status.DownloadRate),
		Ratio:           domain.Ratio(status.TotalUpload, status.TotalDownload),
		NumSeeds:        status.NumSeeds,
		NumPeers:        status.NumPeers,
		NumConnections:  status.NumConnections,
		DownloadLimit:   tt.rec.DownloadLimit,
		UploadLimit:     tt.rec.UploadLimit,
		Category:        tt.rec.Category,
		Tags:            tt.rec.Tags,
		AddedTime:       tt.rec.AddedTime,
	}
}

func (c *Controller) captureDetail(ctx context.Context, hash domain.InfoHash) {
	tt, ok := c.records[hash]
	if !ok {
		return
	}
	detail, err := c.engine.Detail(ctx, hash)
	if err != nil {
		c.log.Warn("detail query failed", "info_hash", hash, "error", err)
		return
	}
	detail.DLHistory = tt.rec.DownloadHistory.Values()
	detail.ULHistory = tt.rec.UploadHistory.Values()
	c.emit(domain.DetailUpdatedEvent{Detail: detail})
}

// resumeSaveTick asks the engine to persist every valid torrent's resume
// blob; acknowledgements arrive asynchronously through the notification
// pipeline (save_resume_ok/save_resume_failed) and are handled there.
func (c *Controller) resumeSaveTick(ctx context.Context) {
	for hash, tt := range c.records {
		if tt.savePending {
			continue // at most one outstanding save-resume per torrent
		}
		tt.savePending = true
		if err := c.engine.SaveResumeData(ctx, hash); err != nil {
			tt.savePending = false
			c.log.Warn("resume save request failed", "info_hash", hash, "error", err)
		}
	}
}

// bandwidthTick evaluates the configured schedule against the current
// wall-clock hour, applying the first matching rule's limits (first match
// in rule order wins) or reverting to the settings-configured limits when
// no rule matches.
func (c *Controller) bandwidthTick(ctx context.Context) {
	if !c.cfg.BandwidthSchedule.Enabled {
		return
	}
	hour := time.Now().Hour()
	rule, ok := c.cfg.BandwidthSchedule.Match(hour)
	dl, ul := c.cfg.MaxDownloadSpeed, c.cfg.MaxUploadSpeed
	if ok {
		dl, ul = rule.DL, rule.UL
	}
	if err := c.engine.SetDownloadRateLimit(ctx, dl); err != nil {
		c.log.Warn("bandwidth schedule: set download rate failed", "error", err)
	}
	if err := c.engine.SetUploadRateLimit(ctx, ul); err != nil {
		c.log.Warn("bandwidth schedule: set upload rate failed", "error", err)
	}
}
