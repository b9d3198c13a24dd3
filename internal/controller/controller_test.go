package controller

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"sessioncore/internal/domain"
	"sessioncore/internal/domain/ports"
	"sessioncore/internal/peerfilter"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fake ports.Engine -------------------------------------------------

type fakeEngine struct {
	nextHash int

	torrents map[domain.InfoHash]bool
	paused   map[domain.InfoHash]bool
	status   map[domain.InfoHash]ports.EngineStatus

	statusErr map[domain.InfoHash]error

	notifications chan ports.EngineNotification

	bannedAddresses []string
	appliedSettings ports.EngineSettings
	dlLimit, ulLimit int64
	closed bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		torrents:      make(map[domain.InfoHash]bool),
		paused:        make(map[domain.InfoHash]bool),
		status:        make(map[domain.InfoHash]ports.EngineStatus),
		statusErr:     make(map[domain.InfoHash]error),
		notifications: make(chan ports.EngineNotification, 64),
	}
}

func (e *fakeEngine) AddTorrentFile(ctx context.Context, path, savePath string, paused bool) (domain.InfoHash, error) {
	e.nextHash++
	hash := domain.InfoHash(strings.Repeat("b", 39) + string(rune('0'+e.nextHash)))
	e.torrents[hash] = true
	e.paused[hash] = paused
	if _, ok := e.status[hash]; !ok {
		e.status[hash] = ports.EngineStatus{HasMetadata: true, State: domain.EngineDownloading}
	}
	return hash, nil
}

func (e *fakeEngine) AddMagnet(ctx context.Context, magnet, savePath string, paused bool) (domain.InfoHash, error) {
	idx := strings.Index(magnet, "btih:")
	if idx < 0 {
		return "", domain.ErrInvalidMagnet
	}
	raw := magnet[idx+len("btih:"):]
	if amp := strings.IndexByte(raw, '&'); amp >= 0 {
		raw = raw[:amp]
	}
	hash, err := domain.NewInfoHash(raw)
	if err != nil {
		return "", err
	}
	e.torrents[hash] = true
	e.paused[hash] = paused
	if _, ok := e.status[hash]; !ok {
		e.status[hash] = ports.EngineStatus{HasMetadata: true, State: domain.EngineDownloading}
	}
	return hash, nil
}

func (e *fakeEngine) Remove(ctx context.Context, hash domain.InfoHash, deleteFiles bool) error {
	delete(e.torrents, hash)
	delete(e.paused, hash)
	delete(e.status, hash)
	return nil
}

func (e *fakeEngine) Pause(ctx context.Context, hash domain.InfoHash) error  { e.paused[hash] = true; return nil }
func (e *fakeEngine) Resume(ctx context.Context, hash domain.InfoHash) error { e.paused[hash] = false; return nil }
func (e *fakeEngine) ForceResume(ctx context.Context, hash domain.InfoHash) error {
	e.paused[hash] = false
	return nil
}
func (e *fakeEngine) ForceRecheck(ctx context.Context, hash domain.InfoHash) error    { return nil }
func (e *fakeEngine) ForceReannounce(ctx context.Context, hash domain.InfoHash) error { return nil }

func (e *fakeEngine) SetSpeedLimit(ctx context.Context, hash domain.InfoHash, dl, ul int64) error {
	return nil
}
func (e *fakeEngine) SetSequential(ctx context.Context, hash domain.InfoHash, enabled bool) error {
	return nil
}
func (e *fakeEngine) SetFilePriority(ctx context.Context, hash domain.InfoHash, fileIndex int, prio domain.Priority) error {
	return nil
}

func (e *fakeEngine) AddTracker(ctx context.Context, hash domain.InfoHash, url string) error    { return nil }
func (e *fakeEngine) RemoveTracker(ctx context.Context, hash domain.InfoHash, url string) error { return nil }
func (e *fakeEngine) MagnetURI(ctx context.Context, hash domain.InfoHash) (string, error) {
	return "magnet:?xt=urn:btih:" + string(hash), nil
}

func (e *fakeEngine) PauseAll(ctx context.Context) error {
	for h := range e.torrents {
		e.paused[h] = true
	}
	return nil
}
func (e *fakeEngine) ResumeAll(ctx context.Context) error {
	for h := range e.torrents {
		e.paused[h] = false
	}
	return nil
}

func (e *fakeEngine) SetDownloadRateLimit(ctx context.Context, bytesPerSec int64) error {
	e.dlLimit = bytesPerSec
	return nil
}
func (e *fakeEngine) SetUploadRateLimit(ctx context.Context, bytesPerSec int64) error {
	e.ulLimit = bytesPerSec
	return nil
}

func (e *fakeEngine) ApplySettings(ctx context.Context, cfg ports.EngineSettings) error {
	e.appliedSettings = cfg
	return nil
}

func (e *fakeEngine) Status(ctx context.Context, hash domain.InfoHash) (ports.EngineStatus, error) {
	if err, ok := e.statusErr[hash]; ok {
		return ports.EngineStatus{}, err
	}
	s, ok := e.status[hash]
	if !ok {
		return ports.EngineStatus{}, domain.ErrNotFound
	}
	s.Paused = e.paused[hash]
	return s, nil
}

func (e *fakeEngine) Detail(ctx context.Context, hash domain.InfoHash) (domain.DetailData, error) {
	return domain.DetailData{InfoHash: hash}, nil
}

func (e *fakeEngine) SaveResumeData(ctx context.Context, hash domain.InfoHash) error {
	e.notifications <- ports.EngineNotification{Kind: ports.NotifySaveResumeOK, InfoHash: hash, Blob: []byte("blob:" + string(hash))}
	return nil
}

func (e *fakeEngine) Notifications() <-chan ports.EngineNotification { return e.notifications }

func (e *fakeEngine) BanAddress(ctx context.Context, address string) error {
	e.bannedAddresses = append(e.bannedAddresses, address)
	return nil
}

func (e *fakeEngine) DHTNodes(ctx context.Context) int { return 0 }

func (e *fakeEngine) Close(ctx context.Context) error { e.closed = true; return nil }

// --- fake ports.ResumeStore ---------------------------------------------

type fakeResumeStore struct {
	rows   map[domain.InfoHash]domain.ResumeRow
	closed bool
}

func newFakeResumeStore() *fakeResumeStore {
	return &fakeResumeStore{rows: make(map[domain.InfoHash]domain.ResumeRow)}
}

func (s *fakeResumeStore) LoadAll(ctx context.Context) ([]domain.ResumeRow, error) {
	out := make([]domain.ResumeRow, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	return out, nil
}
func (s *fakeResumeStore) Upsert(ctx context.Context, row domain.ResumeRow) error {
	s.rows[row.InfoHash] = row
	return nil
}
func (s *fakeResumeStore) Delete(ctx context.Context, hash domain.InfoHash) error {
	delete(s.rows, hash)
	return nil
}
func (s *fakeResumeStore) SchemaVersion(ctx context.Context) (int, error) { return domain.ResumeSchemaVersion, nil }
func (s *fakeResumeStore) Close() error                                  { s.closed = true; return nil }

// --- fake ports.SettingsStore --------------------------------------------

type fakeSettingsStore struct {
	values     map[string]any
	categories []domain.Category
	tags       []string
}

func newFakeSettingsStore(defaults map[string]any) *fakeSettingsStore {
	values := make(map[string]any, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}
	return &fakeSettingsStore{values: values}
}

func (s *fakeSettingsStore) Get(ctx context.Context, key string) (any, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}
func (s *fakeSettingsStore) Set(ctx context.Context, key string, value any) error {
	s.values[key] = value
	return nil
}
func (s *fakeSettingsStore) GetAll(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}
func (s *fakeSettingsStore) GetCategories(ctx context.Context) ([]domain.Category, error) {
	return s.categories, nil
}
func (s *fakeSettingsStore) AddCategory(ctx context.Context, c domain.Category) error {
	s.categories = append(s.categories, c)
	return nil
}
func (s *fakeSettingsStore) RemoveCategory(ctx context.Context, name string) error { return nil }
func (s *fakeSettingsStore) GetTags(ctx context.Context) ([]string, error)         { return s.tags, nil }
func (s *fakeSettingsStore) AddTag(ctx context.Context, name string) error {
	s.tags = append(s.tags, name)
	return nil
}
func (s *fakeSettingsStore) RemoveTag(ctx context.Context, name string) error { return nil }
func (s *fakeSettingsStore) Close() error                                    { return nil }

// --- helpers --------------------------------------------------------------

func newTestController(t *testing.T, defaults map[string]any) (*Controller, *fakeEngine, *fakeResumeStore, *fakeSettingsStore) {
	t.Helper()
	eng := newFakeEngine()
	resume := newFakeResumeStore()
	settings := newFakeSettingsStore(defaults)
	filter := peerfilter.New(domain.PeerFilterConfig{})
	ctrl := New(testLogger(), eng, resume, settings, filter, make(chan domain.Command, 8))
	go ctrl.hub.run()
	t.Cleanup(ctrl.hub.Stop)
	return ctrl, eng, resume, settings
}

func recvEvent(t *testing.T, events <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// --- Scenario A: resume round-trip ----------------------------------------

func TestResumeRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctrl, _, resume, _ := newTestController(t, domain.Defaults("/tmp/downloads"))
	events, cancel := ctrl.Subscribe()
	defer cancel()

	if shuttingDown := ctrl.dispatch(ctx, domain.InitializeCmd{}); shuttingDown {
		t.Fatal("initialize should not request shutdown")
	}
	if _, ok := recvEvent(t, events).(domain.StartedEvent); !ok {
		t.Fatal("expected Started event")
	}

	hash := domain.InfoHash(strings.Repeat("a", 40))
	ctrl.dispatch(ctx, domain.AddMagnetCmd{
		Magnet:   "magnet:?xt=urn:btih:" + string(hash),
		SavePath: "/tmp/x",
		Category: "Movies",
		Tags:     []string{"hd"},
	})
	added, ok := recvEvent(t, events).(domain.TorrentAddedEvent)
	if !ok || added.InfoHash != hash {
		t.Fatalf("expected TorrentAdded(%s), got %#v", hash, added)
	}

	ctrl.snapshotTick(ctx)
	stats, ok := recvEvent(t, events).(domain.StatsUpdatedEvent)
	if !ok {
		t.Fatal("expected StatsUpdated event")
	}
	if len(stats.Stats.Torrents) != 1 || stats.Stats.Torrents[0].InfoHash != hash {
		t.Fatalf("expected one snapshot for %s, got %#v", hash, stats.Stats.Torrents)
	}
	if stats.Stats.Torrents[0].Category != "Movies" {
		t.Fatalf("expected category Movies, got %q", stats.Stats.Torrents[0].Category)
	}

	ctrl.resumeSaveTick(ctx)
	ctrl.drainNotifications(ctx)
	if _, ok := resume.rows[hash]; !ok {
		t.Fatal("expected resume row to be persisted")
	}

	ctrl.handleShutdown(ctx)
	if _, ok := recvEvent(t, events).(domain.StoppedEvent); !ok {
		t.Fatal("expected Stopped event")
	}
	if !resume.closed {
		t.Fatal("expected resume store closed on shutdown")
	}

	// Re-Initialize: the restored torrent reappears with its category/tags.
	ctrl2, _, _, _ := func() (*Controller, *fakeEngine, *fakeResumeStore, *fakeSettingsStore) {
		eng2 := newFakeEngine()
		filter2 := peerfilter.New(domain.PeerFilterConfig{})
		settings2 := newFakeSettingsStore(domain.Defaults("/tmp/downloads"))
		c2 := New(testLogger(), eng2, resume, settings2, filter2, make(chan domain.Command, 8))
		go c2.hub.run()
		t.Cleanup(c2.hub.Stop)
		return c2, eng2, resume, settings2
	}()
	events2, cancel2 := ctrl2.Subscribe()
	defer cancel2()
	ctrl2.dispatch(ctx, domain.InitializeCmd{})
	recvEvent(t, events2) // Started

	ctrl2.snapshotTick(ctx)
	stats2, ok := recvEvent(t, events2).(domain.StatsUpdatedEvent)
	if !ok {
		t.Fatal("expected StatsUpdated after restore")
	}
	if len(stats2.Stats.Torrents) != 1 || stats2.Stats.Torrents[0].Category != "Movies" {
		t.Fatalf("expected restored torrent with category Movies, got %#v", stats2.Stats.Torrents)
	}
}

// --- Scenario B: peer-id ban -----------------------------------------------

func TestPeerConnectedBan(t *testing.T) {
	ctx := context.Background()
	ctrl, eng, _, _ := newTestController(t, domain.Defaults("/tmp/downloads"))
	events, cancel := ctrl.Subscribe()
	defer cancel()

	ctrl.dispatch(ctx, domain.InitializeCmd{})
	recvEvent(t, events) // Started

	err := ctrl.handleNotification(ctx, ports.EngineNotification{
		Kind: ports.NotifyPeerConnected,
		Peer: &ports.PeerConnection{
			Address:      "203.0.113.5:6881",
			PeerIDPrefix: "-XL3000",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	banned, ok := recvEvent(t, events).(domain.PeerBannedEvent)
	if !ok || banned.Address != "203.0.113.5:6881" {
		t.Fatalf("expected PeerBanned for the xunlei client, got %#v", banned)
	}
	if len(eng.bannedAddresses) != 1 || eng.bannedAddresses[0] != "203.0.113.5:6881" {
		t.Fatalf("expected engine.BanAddress to be called, got %v", eng.bannedAddresses)
	}
}

// --- Scenario D: failure isolation during a snapshot tick -------------------

func TestSnapshotTickIsolatesPerTorrentFailure(t *testing.T) {
	ctx := context.Background()
	ctrl, eng, _, _ := newTestController(t, domain.Defaults("/tmp/downloads"))
	events, cancel := ctrl.Subscribe()
	defer cancel()

	ctrl.dispatch(ctx, domain.InitializeCmd{})
	recvEvent(t, events) // Started

	good := domain.InfoHash(strings.Repeat("1", 40))
	bad := domain.InfoHash(strings.Repeat("2", 40))
	ctrl.dispatch(ctx, domain.AddMagnetCmd{Magnet: "magnet:?xt=urn:btih:" + string(good)})
	recvEvent(t, events)
	ctrl.dispatch(ctx, domain.AddMagnetCmd{Magnet: "magnet:?xt=urn:btih:" + string(bad)})
	recvEvent(t, events)

	eng.statusErr[bad] = domain.ErrStorageCorrupt

	ctrl.snapshotTick(ctx)
	stats, ok := recvEvent(t, events).(domain.StatsUpdatedEvent)
	if !ok {
		t.Fatal("expected StatsUpdated despite one torrent's status query failing")
	}
	if len(stats.Stats.Torrents) != 2 {
		t.Fatalf("expected both torrents represented, got %d", len(stats.Stats.Torrents))
	}
	for _, snap := range stats.Stats.Torrents {
		if snap.InfoHash == bad && snap.Valid {
			t.Fatal("expected the failing torrent's snapshot to be marked invalid")
		}
		if snap.InfoHash == good && !snap.Valid {
			t.Fatal("expected the healthy torrent's snapshot to remain valid")
		}
	}
}

// --- Scenario E: ratio action removes the torrent ---------------------------

func TestRatioActionRemovesTorrent(t *testing.T) {
	ctx := context.Background()
	defaults := domain.Defaults("/tmp/downloads")
	defaults[domain.KeyMaxRatio] = 0.5
	defaults[domain.KeyRatioAction] = int(domain.RatioActionRemove)
	defaults[domain.KeyOnCompleteAction] = int(domain.OnCompleteNothing)

	ctrl, eng, resume, _ := newTestController(t, defaults)
	events, cancel := ctrl.Subscribe()
	defer cancel()

	ctrl.dispatch(ctx, domain.InitializeCmd{})
	recvEvent(t, events) // Started

	hash := domain.InfoHash(strings.Repeat("c", 40))
	ctrl.dispatch(ctx, domain.AddMagnetCmd{Magnet: "magnet:?xt=urn:btih:" + string(hash)})
	recvEvent(t, events) // TorrentAdded

	eng.status[hash] = ports.EngineStatus{
		HasMetadata:   true,
		State:         domain.EngineFinished,
		TotalSize:     1000,
		CompletedSize: 1000,
		TotalDownload: 1000,
		TotalUpload:   800, // ratio 0.8 > 0.5 threshold
	}
	resume.rows[hash] = domain.ResumeRow{InfoHash: hash}

	if err := ctrl.handleFinished(ctx, hash); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	finished, ok := recvEvent(t, events).(domain.TorrentFinishedEvent)
	if !ok || finished.InfoHash != hash {
		t.Fatalf("expected TorrentFinished, got %#v", finished)
	}
	removed, ok := recvEvent(t, events).(domain.TorrentRemovedEvent)
	if !ok || removed.InfoHash != hash {
		t.Fatalf("expected TorrentRemoved from the ratio action, got %#v", removed)
	}
	if _, ok := ctrl.records[hash]; ok {
		t.Fatal("expected the torrent record to be gone after ratio-triggered removal")
	}
}

// --- Scenario H: bandwidth schedule precedence ------------------------------

func TestBandwidthSchedulePrecedence(t *testing.T) {
	ctx := context.Background()
	ctrl, eng, _, _ := newTestController(t, domain.Defaults("/tmp/downloads"))

	// The first rule spans the full day so this test's outcome does not
	// depend on the wall-clock hour; it only exercises first-match-wins
	// precedence against the overlapping second rule.
	ctrl.cfg.BandwidthSchedule = domain.BandwidthSchedule{
		Enabled: true,
		Rules: []domain.BandwidthRule{
			{Start: 0, End: 24, DL: 100, UL: 50},
			{Start: 6, End: 18, DL: 200, UL: 150},
		},
	}

	rule, ok := ctrl.cfg.BandwidthSchedule.Match(8)
	if !ok || rule.DL != 100 {
		t.Fatalf("expected first-match precedence to pick dl=100 at hour 8, got %+v", rule)
	}

	ctrl.bandwidthTick(ctx)
	if eng.dlLimit != 100 || eng.ulLimit != 50 {
		t.Fatalf("expected engine limits 100/50 applied, got %d/%d", eng.dlLimit, eng.ulLimit)
	}
}

// --- no-op on unknown info_hash invariant -----------------------------------

func TestCommandsNoopOnUnknownInfoHash(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _, _ := newTestController(t, domain.Defaults("/tmp/downloads"))
	ctrl.dispatch(ctx, domain.InitializeCmd{})

	unknown := domain.InfoHash(strings.Repeat("9", 40))
	if err := ctrl.handlePause(ctx, unknown); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound pausing an unknown torrent, got %v", err)
	}
	if err := ctrl.handleRemove(ctx, domain.RemoveCmd{InfoHash: unknown}); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound removing an unknown torrent, got %v", err)
	}
}
