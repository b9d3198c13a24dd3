package controller

import (
	"context"
	"time"

	"sessioncore/internal/domain"
	"sessioncore/internal/domain/ports"
)

// handleShutdown pauses the engine, requests a resume save for every
// torrent, drains acknowledgements for up to 10s, then tears everything
// down. It runs on the controller loop itself -- no further command can
// interleave since Run's select loop is blocked inside this call until it
// returns. Timers are implicitly stopped once Run returns and their
// deferred Stop calls fire.
func (c *Controller) handleShutdown(ctx context.Context) {
	if err := c.engine.PauseAll(ctx); err != nil {
		c.log.Warn("shutdown: pause all failed", "error", err)
	}

	outstanding := make(map[domain.InfoHash]bool, len(c.records))
	for hash := range c.records {
		if err := c.engine.SaveResumeData(ctx, hash); err != nil {
			c.log.Warn("shutdown: save resume request failed", "info_hash", hash, "error", err)
			continue
		}
		outstanding[hash] = true
	}

	deadline := time.NewTimer(shutdownDrainTimeout)
	defer deadline.Stop()

drain:
	for len(outstanding) > 0 {
		select {
		case n := <-c.engine.Notifications():
			switch n.Kind {
			case ports.NotifySaveResumeOK:
				if err := c.persistResumeRow(ctx, n); err != nil {
					c.log.Warn("shutdown: resume upsert failed", "info_hash", n.InfoHash, "error", err)
				}
				delete(outstanding, n.InfoHash)
			case ports.NotifySaveResumeFailed:
				delete(outstanding, n.InfoHash)
			}
		case <-deadline.C:
			c.log.Warn("shutdown: resume save drain timed out", "outstanding", len(outstanding))
			break drain
		}
	}

	if err := c.engine.Close(ctx); err != nil {
		c.log.Warn("shutdown: engine close failed", "error", err)
	}
	if err := c.resume.Close(); err != nil {
		c.log.Warn("shutdown: resume store close failed", "error", err)
	}
	c.records = make(map[domain.InfoHash]*trackedTorrent)
	c.queue = nil
	c.started = false

	c.emit(domain.StoppedEvent{})
}

func (c *Controller) persistResumeRow(ctx context.Context, n ports.EngineNotification) error {
	tt, ok := c.lookup(n.InfoHash)
	if !ok {
		return nil
	}
	return c.resume.Upsert(ctx, domain.ResumeRow{
		InfoHash:   n.InfoHash,
		ResumeBlob: n.Blob,
		Name:       tt.rec.Name,
		Category:   tt.rec.Category,
		Tags:       tt.rec.Tags,
		AddedTime:  tt.rec.AddedTime,
		SavePath:   tt.rec.SavePath,
		DLLimit:    tt.rec.DownloadLimit,
		ULLimit:    tt.rec.UploadLimit,
	})
}
