package controller

import (
	"log/slog"

	"sessioncore/internal/domain"
)

// eventHub fans events out to any number of subscribers: one goroutine
// owns the subscriber set, register/unregister/broadcast all cross through
// channels so nothing about subscription needs a mutex.
type eventHub struct {
	log *slog.Logger

	subscribe   chan *subscriber
	unsubscribe chan *subscriber
	publish     chan domain.Event
	done        chan struct{}
}

type subscriber struct {
	events chan domain.Event
}

func newEventHub(log *slog.Logger) *eventHub {
	return &eventHub{
		log:         log,
		subscribe:   make(chan *subscriber),
		unsubscribe: make(chan *subscriber),
		publish:     make(chan domain.Event, 256),
		done:        make(chan struct{}),
	}
}

func (h *eventHub) run() {
	subs := make(map[*subscriber]bool)
	for {
		select {
		case <-h.done:
			for s := range subs {
				close(s.events)
			}
			return
		case s := <-h.subscribe:
			subs[s] = true
		case s := <-h.unsubscribe:
			if subs[s] {
				delete(subs, s)
				close(s.events)
			}
		case ev := <-h.publish:
			for s := range subs {
				select {
				case s.events <- ev:
				default:
					h.log.Warn("dropping event for slow subscriber", "event", eventName(ev))
				}
			}
		}
	}
}

// Subscribe registers a new listener and returns a receive-only channel plus
// a cancel function. The channel is closed once cancel is called or the hub
// itself is stopped.
func (h *eventHub) Subscribe() (<-chan domain.Event, func()) {
	s := &subscriber{events: make(chan domain.Event, 64)}
	select {
	case h.subscribe <- s:
	case <-h.done:
	}
	cancel := func() {
		select {
		case h.unsubscribe <- s:
		case <-h.done:
		}
	}
	return s.events, cancel
}

func (h *eventHub) Broadcast(ev domain.Event) {
	select {
	case h.publish <- ev:
	case <-h.done:
	}
}

func (h *eventHub) Stop() {
	close(h.done)
}

func eventName(ev domain.Event) string {
	switch ev.(type) {
	case domain.StartedEvent:
		return "Started"
	case domain.StoppedEvent:
		return "Stopped"
	case domain.TorrentAddedEvent:
		return "TorrentAdded"
	case domain.AddFailedEvent:
		return "AddFailed"
	case domain.TorrentRemovedEvent:
		return "TorrentRemoved"
	case domain.TorrentFinishedEvent:
		return "TorrentFinished"
	case domain.TorrentErrorEvent:
		return "TorrentError"
	case domain.MetadataReceivedEvent:
		return "MetadataReceived"
	case domain.StatsUpdatedEvent:
		return "StatsUpdated"
	case domain.DetailUpdatedEvent:
		return "DetailUpdated"
	case domain.PeerBannedEvent:
		return "PeerBanned"
	case domain.MagnetURIReadyEvent:
		return "MagnetUriReady"
	case domain.FeedCheckedEvent:
		return "FeedChecked"
	case domain.FeedErrorEvent:
		return "FeedError"
	default:
		return "unknown"
	}
}
