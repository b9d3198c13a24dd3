// Package controller implements the session controller: the single
// goroutine that serializes every mutation of the BitTorrent transfer
// engine, drains its asynchronous notifications, and periodically
// publishes immutable snapshots to subscribers. External code never
// touches engine objects directly.
package controller

import (
	"context"
	"log/slog"
	"time"

	"sessioncore/internal/domain"
	"sessioncore/internal/domain/ports"
	"sessioncore/internal/peerfilter"
)

const (
	engineDrainInterval    = 500 * time.Millisecond
	snapshotInterval       = 1 * time.Second
	resumeSaveInterval     = 5 * time.Minute
	bandwidthCheckInterval = 60 * time.Second
	shutdownDrainTimeout   = 10 * time.Second
)

// trackedTorrent bundles the durable domain.TorrentRecord with the
// controller-only bookkeeping that never leaves this package.
type trackedTorrent struct {
	rec           *domain.TorrentRecord
	errorMessage  string
	savePending   bool
	completedOnce bool
}

// Controller is the Session Controller. All of its fields are touched only
// from the single goroutine running Run; there is deliberately no mutex
// guarding them, per the "owned by the controller loop" invariant.
type Controller struct {
	log    *slog.Logger
	engine ports.Engine
	resume ports.ResumeStore
	store  ports.SettingsStore
	filter *peerfilter.Filter

	hub *eventHub

	commands chan domain.Command

	records map[domain.InfoHash]*trackedTorrent
	queue   []domain.InfoHash // display/processing order, mutated by QueueAction
	focused *domain.InfoHash

	cfg sessionConfig

	sessionDL *domain.RateHistory
	sessionUL *domain.RateHistory

	started bool
}

// New constructs a Controller. The commands channel is owned by the caller
// (typically main and the HTTP API layer share it); Run must be started in
// its own goroutine before any command is posted.
func New(log *slog.Logger, engine ports.Engine, resume ports.ResumeStore, store ports.SettingsStore, filter *peerfilter.Filter, commands chan domain.Command) *Controller {
	return &Controller{
		log:       log,
		engine:    engine,
		resume:    resume,
		store:     store,
		filter:    filter,
		hub:       newEventHub(log),
		commands:  commands,
		records:   make(map[domain.InfoHash]*trackedTorrent),
		sessionDL: domain.NewRateHistory(domain.SessionHistoryLen),
		sessionUL: domain.NewRateHistory(domain.SessionHistoryLen),
	}
}

// Post enqueues a command. It never blocks the engine; callers that need to
// observe the outcome subscribe to the event hub first.
func (c *Controller) Post(cmd domain.Command) {
	c.commands <- cmd
}

// Subscribe registers an Observer on the event hub.
func (c *Controller) Subscribe() (<-chan domain.Event, func()) {
	return c.hub.Subscribe()
}

// Broadcast publishes an event to every Observer without going through the
// command queue. It exists so callers that own their own event source (the
// RSS Ingester emits FeedChecked/FeedError independently of any command)
// can still reach the one hub every subscriber listens on.
func (c *Controller) Broadcast(ev domain.Event) {
	c.hub.Broadcast(ev)
}

// Shutdown posts ShutdownCmd and blocks the caller until Stopped is
// observed or ctx is canceled, matching the command table's "Blocks the
// caller until Stopped" contract.
func (c *Controller) Shutdown(ctx context.Context) {
	events, cancel := c.Subscribe()
	defer cancel()
	c.Post(domain.ShutdownCmd{})
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, stopped := ev.(domain.StoppedEvent); stopped {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Run is the controller loop: one goroutine servicing the command queue and
// the four periodic timers until Shutdown is processed or ctx is canceled.
func (c *Controller) Run(ctx context.Context) {
	go c.hub.run()
	defer c.hub.Stop()

	drainTicker := time.NewTicker(engineDrainInterval)
	defer drainTicker.Stop()
	snapshotTicker := time.NewTicker(snapshotInterval)
	defer snapshotTicker.Stop()
	resumeTicker := time.NewTicker(resumeSaveInterval)
	defer resumeTicker.Stop()
	bandwidthTicker := time.NewTicker(bandwidthCheckInterval)
	defer bandwidthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.commands:
			shuttingDown := c.dispatch(ctx, cmd)
			if shuttingDown {
				return
			}
		case <-drainTicker.C:
			c.drainNotifications(ctx)
		case <-snapshotTicker.C:
			c.snapshotTick(ctx)
		case <-resumeTicker.C:
			c.resumeSaveTick(ctx)
		case <-bandwidthTicker.C:
			c.bandwidthTick(ctx)
		}
	}
}

// safeCall isolates one unit of work (a notification handler, a command
// handler) from panics so that one failure never brings down the loop or
// discards the units of work queued behind it.
func (c *Controller) safeCall(op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("recovered panic", "op", op, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		c.log.Warn("operation failed", "op", op, "error", err)
	}
}

func (c *Controller) emit(ev domain.Event) {
	c.hub.Broadcast(ev)
}

func (c *Controller) lookup(hash domain.InfoHash) (*trackedTorrent, bool) {
	tt, ok := c.records[hash]
	return tt, ok
}
