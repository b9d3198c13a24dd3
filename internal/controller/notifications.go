package controller

import (
	"context"

	"sessioncore/internal/domain"
	"sessioncore/internal/domain/ports"
	"sessioncore/internal/metrics"
)

// drainNotifications pulls everything currently queued on the engine's
// notification channel, per the "engine drain" timer. Each notification
// runs inside its own failure-isolated frame so a single bad notification
// never blocks the rest of the drain.
func (c *Controller) drainNotifications(ctx context.Context) {
	for {
		select {
		case n := <-c.engine.Notifications():
			c.safeCall("notification:"+notificationName(n.Kind), func() error {
				return c.handleNotification(ctx, n)
			})
		default:
			return
		}
	}
}

func (c *Controller) handleNotification(ctx context.Context, n ports.EngineNotification) error {
	switch n.Kind {
	case ports.NotifyFinished:
		return c.handleFinished(ctx, n.InfoHash)
	case ports.NotifyError:
		return c.handleError(n.InfoHash, n.Message)
	case ports.NotifyMetadataReceived:
		c.emit(domain.MetadataReceivedEvent{InfoHash: n.InfoHash})
	case ports.NotifySaveResumeOK:
		return c.handleSaveResumeOK(ctx, n)
	case ports.NotifySaveResumeFailed:
		if tt, ok := c.lookup(n.InfoHash); ok {
			tt.savePending = false
		}
		metrics.ResumeSaveFailuresTotal.Inc()
		c.log.Warn("resume save failed", "info_hash", n.InfoHash, "message", n.Message)
	case ports.NotifyPeerConnected:
		return c.handlePeerConnected(ctx, n)
	case ports.NotifyListenSucceeded:
		c.log.Info("engine listen succeeded", "message", n.Message)
	case ports.NotifyListenFailed:
		c.log.Warn("engine listen failed", "message", n.Message)
	case ports.NotifyPortMapped:
		c.log.Info("engine port mapped", "message", n.Message)
	default:
		c.log.Debug("unclassified engine notification", "kind", n.Kind)
	}
	return nil
}

func (c *Controller) handleFinished(ctx context.Context, hash domain.InfoHash) error {
	tt, ok := c.lookup(hash)
	if !ok {
		return nil
	}
	if tt.completedOnce {
		return nil
	}
	tt.completedOnce = true
	c.emit(domain.TorrentFinishedEvent{InfoHash: hash})

	switch c.cfg.OnCompleteAction {
	case domain.OnCompletePause:
		tt.rec.AutoManaged = false
		if err := c.engine.Pause(ctx, hash); err != nil {
			c.log.Warn("on_complete pause failed", "info_hash", hash, "error", err)
		}
	case domain.OnCompleteRemove:
		if err := c.engine.Remove(ctx, hash, false); err != nil {
			c.log.Warn("on_complete remove failed", "info_hash", hash, "error", err)
		} else {
			c.forgetTorrent(ctx, hash)
			return nil
		}
	}

	if c.cfg.MaxRatio > 0 {
		status, err := c.engine.Status(ctx, hash)
		if err == nil && status.HasMetadata {
			ratio := domain.Ratio(status.TotalUpload, status.TotalDownload)
			if ratio >= c.cfg.MaxRatio {
				c.applyRatioAction(ctx, hash, tt)
			}
		}
	}
	return nil
}

func (c *Controller) applyRatioAction(ctx context.Context, hash domain.InfoHash, tt *trackedTorrent) {
	switch c.cfg.RatioAction {
	case domain.RatioActionPause:
		tt.rec.AutoManaged = false
		if err := c.engine.Pause(ctx, hash); err != nil {
			c.log.Warn("ratio_action pause failed", "info_hash", hash, "error", err)
		}
	case domain.RatioActionRemove:
		if err := c.engine.Remove(ctx, hash, false); err != nil {
			c.log.Warn("ratio_action remove failed", "info_hash", hash, "error", err)
			return
		}
		c.forgetTorrent(ctx, hash)
	}
}

// forgetTorrent drops every trace of a torrent the engine has already
// released: the record, its queue slot, its resume row, and focus if it was
// the focused torrent. Callers have already called engine.Remove.
func (c *Controller) forgetTorrent(ctx context.Context, hash domain.InfoHash) {
	delete(c.records, hash)
	if idx := indexOf(c.queue, hash); idx >= 0 {
		c.queue = append(c.queue[:idx], c.queue[idx+1:]...)
	}
	if err := c.resume.Delete(ctx, hash); err != nil {
		c.log.Warn("resume delete failed", "info_hash", hash, "error", err)
	}
	if c.focused != nil && *c.focused == hash {
		c.focused = nil
	}
	metrics.TorrentsRemovedTotal.Inc()
	c.emit(domain.TorrentRemovedEvent{InfoHash: hash})
}

func (c *Controller) handleError(hash domain.InfoHash, message string) error {
	if tt, ok := c.lookup(hash); ok {
		tt.errorMessage = message
	}
	metrics.TorrentErrorsTotal.Inc()
	c.emit(domain.TorrentErrorEvent{InfoHash: hash, Message: message})
	return nil
}

func (c *Controller) handleSaveResumeOK(ctx context.Context, n ports.EngineNotification) error {
	tt, ok := c.lookup(n.InfoHash)
	if !ok {
		return nil
	}
	tt.savePending = false
	row := domain.ResumeRow{
		InfoHash:   n.InfoHash,
		ResumeBlob: n.Blob,
		Name:       tt.rec.Name,
		Category:   tt.rec.Category,
		Tags:       tt.rec.Tags,
		AddedTime:  tt.rec.AddedTime,
		SavePath:   tt.rec.SavePath,
		DLLimit:    tt.rec.DownloadLimit,
		ULLimit:    tt.rec.UploadLimit,
	}
	if err := c.resume.Upsert(ctx, row); err != nil {
		c.log.Warn("resume store upsert failed", "info_hash", n.InfoHash, "error", err)
	}
	return nil
}

func (c *Controller) handlePeerConnected(ctx context.Context, n ports.EngineNotification) error {
	if n.Peer == nil {
		return nil
	}
	ban, reason := c.filter.Check(n.Peer.PeerIDPrefix, n.Peer.ClientName, hostOf(n.Peer.Address))
	if !ban {
		return nil
	}
	if err := c.engine.BanAddress(ctx, n.Peer.Address); err != nil {
		return err
	}
	metrics.PeersBannedTotal.WithLabelValues(reason).Inc()
	c.emit(domain.PeerBannedEvent{Address: n.Peer.Address, Reason: reason})
	return nil
}

// hostOf strips a trailing ":port" from an "ip:port" address; the Peer
// Filter's blocklist check operates on bare IPs.
func hostOf(address string) string {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == ':' {
			return address[:i]
		}
	}
	return address
}

func notificationName(k ports.NotificationKind) string {
	switch k {
	case ports.NotifyFinished:
		return "finished"
	case ports.NotifyError:
		return "error"
	case ports.NotifyMetadataReceived:
		return "metadata_received"
	case ports.NotifySaveResumeOK:
		return "save_resume_ok"
	case ports.NotifySaveResumeFailed:
		return "save_resume_failed"
	case ports.NotifyPeerConnected:
		return "peer_connected"
	case ports.NotifyListenSucceeded:
		return "listen_succeeded"
	case ports.NotifyListenFailed:
		return "listen_failed"
	case ports.NotifyPortMapped:
		return "port_mapped"
	default:
		return "unknown"
	}
}
