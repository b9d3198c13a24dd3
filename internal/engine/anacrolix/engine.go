// Package anacrolix adapts github.com/anacrolix/torrent's *torrent.Client
// into the ports.Engine interface the session controller drives. anacrolix
// exposes no unified notification stream, so per-torrent watcher goroutines
// (metadata, peers, completion) synthesize notifications onto one bounded
// channel; progress is tracked as a high-water mark since piece
// re-verification can transiently lower the raw completed-byte count.
package anacrolix

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/dht/v2"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/iplist"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"golang.org/x/time/rate"

	"sessioncore/internal/domain"
	"sessioncore/internal/domain/ports"
)

// notificationQueueCapacity bounds the engine's async notification FIFO;
// once full, new notifications are dropped rather than blocking the
// goroutine that produced them (peer connect callbacks, write handlers).
const notificationQueueCapacity = 1024

const defaultMaxConns = 50

type Config struct {
	DataDir string
}

type Engine struct {
	client  *torrent.Client
	dataDir string

	dlLimiter *rate.Limiter
	ulLimiter *rate.Limiter

	mu                 sync.RWMutex
	torrents           map[domain.InfoHash]*torrent.Torrent
	paused             map[domain.InfoHash]bool
	sequential         map[domain.InfoHash]bool
	maxConnsPerTorrent int
	applied            appliedToggles

	speedMu sync.Mutex
	speeds  map[domain.InfoHash]speedSample

	peakMu      sync.Mutex
	peak        map[domain.InfoHash]int64
	detailPeaks map[domain.InfoHash]*detailPeak

	blocklist *dynamicBlocklist

	notifications chan ports.EngineNotification
}

// appliedToggles is the subset of ports.EngineSettings that anacrolix/torrent
// only accepts at torrent.NewClient construction time; ApplySettings diffs
// against this to decide whether the client needs rebuilding under
// rebuildClient, instead of rebuilding on every settings save.
type appliedToggles struct {
	listenPort    int
	upnpEnabled   bool
	natpmpEnabled bool
	dhtEnabled    bool
	pexEnabled    bool
	encryption    domain.EncryptionMode
	totalHalfOpen int
}

type speedSample struct {
	at          time.Time
	bytesRead   int64
	bytesWrite  int64
}

// detailPeak is the per-torrent high-water mark of the piece bitfield and
// per-file completed bytes. A recheck (VerifyData) makes the live values
// regress while pieces re-verify from disk; Detail reports the peak so the
// bitfield and file fractions never move backwards, consistent with the
// trackPeak smoothing Status applies to the scalar completed-byte count.
type detailPeak struct {
	pieces    []domain.PieceState
	fileBytes []int64
}

func New(cfg Config) (*Engine, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}

	blocklist := newDynamicBlocklist(nil)
	clientConfig.IPBlocklist = blocklist

	// Rate limiters are mutable (SetLimit/SetBurst) and must be the same
	// *rate.Limiter instance the client was built with: torrent.Client reads
	// it on every connection's read/write, so swapping the pointer after
	// construction would leave the running client on the old limiter.
	dlLimiter := rate.NewLimiter(rate.Inf, 1<<20)
	ulLimiter := rate.NewLimiter(rate.Inf, 1<<20)
	clientConfig.DownloadRateLimiter = dlLimiter
	clientConfig.UploadRateLimiter = ulLimiter

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("start torrent client: %w", err)
	}

	return &Engine{
		client:             client,
		dataDir:            clientConfig.DataDir,
		dlLimiter:          dlLimiter,
		ulLimiter:          ulLimiter,
		torrents:           make(map[domain.InfoHash]*torrent.Torrent),
		paused:             make(map[domain.InfoHash]bool),
		sequential:         make(map[domain.InfoHash]bool),
		maxConnsPerTorrent: defaultMaxConns,
		speeds:             make(map[domain.InfoHash]speedSample),
		peak:               make(map[domain.InfoHash]int64),
		detailPeaks:        make(map[domain.InfoHash]*detailPeak),
		blocklist:          blocklist,
		notifications:      make(chan ports.EngineNotification, notificationQueueCapacity),
	}, nil
}

func (e *Engine) AddTorrentFile(ctx context.Context, path, savePath string, paused bool) (domain.InfoHash, error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return "", fmt.Errorf("load torrent file: %w", err)
	}
	spec := torrent.TorrentSpecFromMetaInfo(mi)
	applySavePath(spec, savePath)
	t, _, err := e.client.AddTorrentSpec(spec)
	if err != nil {
		return "", fmt.Errorf("add torrent: %w", err)
	}
	return e.registerTorrent(t, paused)
}

func (e *Engine) AddMagnet(ctx context.Context, magnet, savePath string, paused bool) (domain.InfoHash, error) {
	spec, err := torrent.TorrentSpecFromMagnetUri(magnet)
	if err != nil {
		return "", fmt.Errorf("parse magnet: %w", err)
	}
	applySavePath(spec, savePath)
	t, _, err := e.client.AddTorrentSpec(spec)
	if err != nil {
		return "", fmt.Errorf("add magnet: %w", err)
	}
	return e.registerTorrent(t, paused)
}

// applySavePath points a torrent at its own on-disk location via a per-spec
// storage.ClientImpl; an empty savePath leaves Storage nil so the torrent
// falls back to the client's DataDir, as before.
func applySavePath(spec *torrent.TorrentSpec, savePath string) {
	if savePath == "" {
		return
	}
	spec.Storage = storage.NewFile(savePath)
}

func (e *Engine) registerTorrent(t *torrent.Torrent, paused bool) (domain.InfoHash, error) {
	hash, err := domain.NewInfoHash(t.InfoHash().HexString())
	if err != nil {
		t.Drop()
		return "", err
	}

	e.mu.Lock()
	e.torrents[hash] = t
	e.paused[hash] = paused
	e.mu.Unlock()

	if paused {
		e.hardPause(t)
	} else {
		e.allow(t)
	}

	go e.watchMetadata(t, hash)
	go e.watchPeers(t, hash)
	go e.watchCompletion(t, hash)

	return hash, nil
}

// completionScanInterval paces watchCompletion's progress poll; completion
// is a one-way transition, so a coarse interval is enough.
const completionScanInterval = 2 * time.Second

// watchCompletion emits NotifyFinished exactly once, when the torrent's
// completed byte count first reaches its total. anacrolix/torrent has no
// finished callback, so this polls the same way watchPeers does.
func (e *Engine) watchCompletion(t *torrent.Torrent, hash domain.InfoHash) {
	ticker := time.NewTicker(completionScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.Closed():
			return
		case <-ticker.C:
			if !torrentInfoReady(t) {
				continue
			}
			total := t.Length()
			if total > 0 && t.BytesCompleted() >= total {
				e.emit(ports.EngineNotification{Kind: ports.NotifyFinished, InfoHash: hash})
				return
			}
		}
	}
}

// peerScanInterval governs how often watchPeers diffs a torrent's current
// connections against the set it has already reported, synthesizing a
// NotifyPeerConnected for each address seen for the first time. anacrolix/
// torrent has no new-connection callback exposed on *torrent.Torrent, so
// polling PeerConns() is the same workaround the engine already uses for
// metadata-ready (watchMetadata) and progress (sampleSpeed/trackPeak).
const peerScanInterval = 2 * time.Second

func (e *Engine) watchPeers(t *torrent.Torrent, hash domain.InfoHash) {
	seen := make(map[string]struct{})
	ticker := time.NewTicker(peerScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.Closed():
			return
		case <-ticker.C:
			for _, pc := range t.PeerConns() {
				addr := pc.RemoteAddr.String()
				if _, ok := seen[addr]; ok {
					continue
				}
				seen[addr] = struct{}{}
				e.emit(ports.EngineNotification{
					Kind:     ports.NotifyPeerConnected,
					InfoHash: hash,
					Peer: &ports.PeerConnection{
						InfoHash:     hash,
						Address:      addr,
						PeerIDPrefix: peerIDPrefix(pc.PeerID),
					},
				})
			}
		}
	}
}

// peerIDPrefix takes the first 8 raw bytes of the handshake peer-id, the
// same prefix the Peer Filter's built-in rule table matches against.
func peerIDPrefix(id torrent.PeerID) string {
	n := 8
	if len(id) < n {
		n = len(id)
	}
	return string(id[:n])
}

// watchMetadata emits NotifyMetadataReceived once the torrent's info dict is
// available, then starts the default full download if the torrent was added
// unpaused.
func (e *Engine) watchMetadata(t *torrent.Torrent, hash domain.InfoHash) {
	select {
	case <-t.GotInfo():
	case <-t.Closed():
		return
	}
	e.emit(ports.EngineNotification{Kind: ports.NotifyMetadataReceived, InfoHash: hash})

	e.mu.RLock()
	paused := e.paused[hash]
	e.mu.RUnlock()
	if !paused {
		t.DownloadAll()
	}
}

func (e *Engine) Remove(ctx context.Context, hash domain.InfoHash, deleteFiles bool) error {
	t, err := e.lookup(hash)
	if err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.torrents, hash)
	delete(e.paused, hash)
	delete(e.sequential, hash)
	e.mu.Unlock()
	e.forgetSpeed(hash)
	e.forgetPeak(hash)

	name := t.Name()
	t.Drop()
	if deleteFiles && name != "" {
		_ = os.RemoveAll(filepath.Join(e.dataDir, name))
	}
	runtime.GC()
	debug.FreeOSMemory()
	return nil
}

func (e *Engine) Pause(ctx context.Context, hash domain.InfoHash) error {
	t, err := e.lookup(hash)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.paused[hash] = true
	e.mu.Unlock()
	e.hardPause(t)
	return nil
}

func (e *Engine) Resume(ctx context.Context, hash domain.InfoHash) error {
	t, err := e.lookup(hash)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.paused[hash] = false
	e.mu.Unlock()
	e.allow(t)
	if torrentInfoReady(t) {
		t.DownloadAll()
	}
	return nil
}

// ForceResume does the same as Resume: it re-allows transfer and, once
// metadata is present, restarts the full download. It clears no other
// engine state.
func (e *Engine) ForceResume(ctx context.Context, hash domain.InfoHash) error {
	return e.Resume(ctx, hash)
}

func (e *Engine) ForceRecheck(ctx context.Context, hash domain.InfoHash) error {
	t, err := e.lookup(hash)
	if err != nil {
		return err
	}
	if torrentInfoReady(t) {
		t.VerifyData()
	}
	return nil
}

// ForceReannounce has no direct anacrolix/torrent API; re-submitting the same
// announce list is the documented workaround to nudge the client's tracker
// scraper into an immediate retry.
func (e *Engine) ForceReannounce(ctx context.Context, hash domain.InfoHash) error {
	t, err := e.lookup(hash)
	if err != nil {
		return err
	}
	t.AddTrackers(t.Metainfo().AnnounceList)
	return nil
}

func (e *Engine) hardPause(t *torrent.Torrent) {
	if t == nil {
		return
	}
	t.DisallowDataDownload()
	t.DisallowDataUpload()
	t.SetMaxEstablishedConns(0)
}

func (e *Engine) allow(t *torrent.Torrent) {
	if t == nil {
		return
	}
	e.mu.RLock()
	maxConns := e.maxConnsPerTorrent
	e.mu.RUnlock()
	t.SetMaxEstablishedConns(maxConns)
	t.AllowDataDownload()
	t.AllowDataUpload()
}

func (e *Engine) SetSpeedLimit(ctx context.Context, hash domain.InfoHash, dl, ul int64) error {
	if _, err := e.lookup(hash); err != nil {
		return err
	}
	// anacrolix/torrent has no per-torrent throughput cap: enforcement
	// happens only at the session-wide limiters, while the per-torrent
	// values are tracked by the controller and surfaced in snapshots.
	_, _ = dl, ul
	return nil
}

func (e *Engine) SetSequential(ctx context.Context, hash domain.InfoHash, enabled bool) error {
	t, err := e.lookup(hash)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.sequential[hash] = enabled
	e.mu.Unlock()
	if enabled && torrentInfoReady(t) {
		applySequentialPriority(t)
	}
	return nil
}

// applySequentialPriority ramps piece priority down from first to last
// piece so pieces are requested roughly in file order; anacrolix has no
// single sequential-download bit.
func applySequentialPriority(t *torrent.Torrent) {
	defer func() { recover() }()
	pieces := t.NumPieces()
	for i := 0; i < pieces; i++ {
		switch {
		case i < 4:
			t.Piece(i).SetPriority(torrent.PiecePriorityNow)
		case i < 32:
			t.Piece(i).SetPriority(torrent.PiecePriorityHigh)
		default:
			t.Piece(i).SetPriority(torrent.PiecePriorityNormal)
		}
	}
}

func (e *Engine) SetFilePriority(ctx context.Context, hash domain.InfoHash, fileIndex int, prio domain.Priority) error {
	t, err := e.lookup(hash)
	if err != nil {
		return err
	}
	if !torrentInfoReady(t) {
		return nil
	}
	files := t.Files()
	if fileIndex < 0 || fileIndex >= len(files) {
		return domain.ErrNotFound
	}
	files[fileIndex].SetPriority(mapFilePriority(prio))
	return nil
}

func mapFilePriority(p domain.Priority) torrent.PiecePriority {
	switch p {
	case domain.PrioritySkip:
		return torrent.PiecePriorityNone
	case domain.PriorityLow:
		return torrent.PiecePriorityNormal
	case domain.PriorityHigh:
		return torrent.PiecePriorityHigh
	default:
		return torrent.PiecePriorityNormal
	}
}

func (e *Engine) AddTracker(ctx context.Context, hash domain.InfoHash, trackerURL string) error {
	t, err := e.lookup(hash)
	if err != nil {
		return err
	}
	t.AddTrackers([][]string{{trackerURL}})
	return nil
}

// RemoveTracker has no anacrolix/torrent equivalent: the library only
// supports adding announce URLs. The command is accepted for a known
// torrent and otherwise has no effect.
func (e *Engine) RemoveTracker(ctx context.Context, hash domain.InfoHash, trackerURL string) error {
	if _, err := e.lookup(hash); err != nil {
		return err
	}
	return nil
}

func (e *Engine) MagnetURI(ctx context.Context, hash domain.InfoHash) (string, error) {
	t, err := e.lookup(hash)
	if err != nil {
		return "", err
	}

	values := url.Values{}
	values.Set("xt", "urn:btih:"+string(hash))
	if name := t.Name(); name != "" {
		values.Set("dn", name)
	}
	for _, tier := range t.Metainfo().AnnounceList {
		for _, tr := range tier {
			values.Add("tr", tr)
		}
	}
	return "magnet:?" + values.Encode(), nil
}

func (e *Engine) PauseAll(ctx context.Context) error {
	for _, hash := range e.listHashes() {
		if err := e.Pause(ctx, hash); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (e *Engine) ResumeAll(ctx context.Context) error {
	for _, hash := range e.listHashes() {
		if err := e.Resume(ctx, hash); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (e *Engine) SetDownloadRateLimit(ctx context.Context, bytesPerSec int64) error {
	setRateLimiter(e.dlLimiter, bytesPerSec)
	return nil
}

func (e *Engine) SetUploadRateLimit(ctx context.Context, bytesPerSec int64) error {
	setRateLimiter(e.ulLimiter, bytesPerSec)
	return nil
}

// setRateLimiter mutates limiter in place rather than replacing it: the
// running client's connections were constructed against this exact pointer
// (see the rate limiter comment in New), so swapping in a new
// rate.Limiter would leave every in-flight transfer reading the old one.
func setRateLimiter(limiter *rate.Limiter, bytesPerSec int64) {
	limit := rate.Inf
	burst := 1 << 20
	if bytesPerSec > 0 {
		limit = rate.Limit(bytesPerSec)
		burst = int(bytesPerSec)
		if burst < 4096 {
			burst = 4096
		}
	}
	limiter.SetLimit(limit)
	limiter.SetBurst(burst)
}

// ApplySettings re-reads the full connection/encryption/DHT/limit surface.
// The IP blocklist and per-torrent connection cap take effect immediately
// against already-running torrents; the rest (listen port, UPnP/NAT-PMP,
// DHT, PEX, encryption policy, session-wide connection cap) are only
// accepted by anacrolix/torrent at torrent.NewClient construction time, so a
// change to any of them triggers rebuildClient.
func (e *Engine) ApplySettings(ctx context.Context, cfg ports.EngineSettings) error {
	if len(cfg.IPBlocklist) > 0 {
		ranges := make([]iplist.Range, 0, len(cfg.IPBlocklist))
		for _, r := range cfg.IPBlocklist {
			ranges = append(ranges, iplist.Range{
				Description: r.Description,
				First:       uint32ToIP(r.Start),
				Last:        uint32ToIP(r.End),
			})
		}
		e.blocklist.setStatic(iplist.New(ranges))
	}

	// anacrolix/torrent has no independent upload-slot limiter: established
	// connections serve both directions. MaxUploads/MaxUploadsPerTorrent are
	// wired in as an additional cap on the same knobs MaxConnections/
	// MaxConnectionsPerTorrent drive, tightening them when the upload limit
	// is the stricter of the two rather than being silently dropped.
	perTorrentCap := effectiveCap(cfg.MaxConnectionsPerTorrent, cfg.MaxUploadsPerTorrent, defaultMaxConns)

	e.mu.Lock()
	e.maxConnsPerTorrent = perTorrentCap
	active := make([]*torrent.Torrent, 0, len(e.torrents))
	for hash, t := range e.torrents {
		if !e.paused[hash] {
			active = append(active, t)
		}
	}
	e.mu.Unlock()
	for _, t := range active {
		t.SetMaxEstablishedConns(perTorrentCap)
	}

	// LSD (local service discovery) has no anacrolix/torrent implementation;
	// the setting is accepted but has no effect, the same treatment
	// RemoveTracker gets for an operation the library doesn't support.
	_ = cfg.LSDEnabled

	next := appliedToggles{
		listenPort:    cfg.ListenPort,
		upnpEnabled:   cfg.UPnPEnabled,
		natpmpEnabled: cfg.NATPMPEnabled,
		dhtEnabled:    cfg.DHTEnabled,
		pexEnabled:    cfg.PEXEnabled,
		encryption:    cfg.EncryptionMode,
		totalHalfOpen: effectiveCap(cfg.MaxConnections, cfg.MaxUploads, 0),
	}
	e.mu.RLock()
	unchanged := next == e.applied
	e.mu.RUnlock()
	if unchanged {
		return nil
	}
	return e.rebuildClient(next)
}

// effectiveCap folds an upload-slot setting into a connection-count setting:
// the smaller of the two non-zero values wins, since a torrent or session
// can never upload through more peers than it is connected to. 0 on either
// side means "no limit" from that setting. fallback applies when neither
// setting is configured.
func effectiveCap(conns, uploads, fallback int) int {
	limit := conns
	if limit <= 0 {
		limit = fallback
	}
	if uploads > 0 && (limit <= 0 || uploads < limit) {
		limit = uploads
	}
	return limit
}

// rebuildClient swaps in a torrent.Client built with the settings anacrolix/
// torrent only reads at construction time, migrating every tracked torrent
// across via its metainfo. A torrent whose metadata hasn't arrived yet
// cannot be reconstructed (AddTorrentSpec needs TorrentSpecFromMetaInfo) and
// is dropped with a NotifyError instead of silently vanishing.
func (e *Engine) rebuildClient(next appliedToggles) error {
	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.DataDir = e.dataDir
	clientConfig.IPBlocklist = e.blocklist
	clientConfig.DownloadRateLimiter = e.dlLimiter
	clientConfig.UploadRateLimiter = e.ulLimiter
	if next.listenPort != 0 {
		clientConfig.ListenPort = next.listenPort
	}
	clientConfig.NoDefaultPortForwarding = !(next.upnpEnabled || next.natpmpEnabled)
	clientConfig.NoDHT = !next.dhtEnabled
	clientConfig.DisablePEX = !next.pexEnabled
	clientConfig.HeaderObfuscationPolicy = torrent.HeaderObfuscationPolicy{
		Preferred:        next.encryption >= domain.EncryptionPrefer,
		RequirePreferred: next.encryption >= domain.EncryptionRequire,
	}
	if next.totalHalfOpen > 0 {
		clientConfig.TotalHalfOpenConns = next.totalHalfOpen
	}

	newClient, err := torrent.NewClient(clientConfig)
	if err != nil {
		return fmt.Errorf("rebuild torrent client: %w", err)
	}

	e.mu.Lock()
	oldClient := e.client
	oldTorrents := e.torrents
	oldPaused := e.paused
	oldSequential := e.sequential
	e.client = newClient
	e.torrents = make(map[domain.InfoHash]*torrent.Torrent, len(oldTorrents))
	e.paused = make(map[domain.InfoHash]bool, len(oldPaused))
	e.sequential = make(map[domain.InfoHash]bool, len(oldSequential))
	e.applied = next

	type migrated struct {
		hash   domain.InfoHash
		t      *torrent.Torrent
		paused bool
		seq    bool
	}
	var resumed []migrated
	for hash, t := range oldTorrents {
		if !torrentInfoReady(t) {
			e.emit(ports.EngineNotification{Kind: ports.NotifyError, InfoHash: hash, Message: "dropped on reconfigure: metadata was not yet available"})
			continue
		}
		mi := t.Metainfo()
		spec := torrent.TorrentSpecFromMetaInfo(&mi)
		nt, _, err := newClient.AddTorrentSpec(spec)
		if err != nil {
			e.emit(ports.EngineNotification{Kind: ports.NotifyError, InfoHash: hash, Message: fmt.Sprintf("dropped on reconfigure: %v", err)})
			continue
		}
		e.torrents[hash] = nt
		e.paused[hash] = oldPaused[hash]
		e.sequential[hash] = oldSequential[hash]
		resumed = append(resumed, migrated{hash: hash, t: nt, paused: oldPaused[hash], seq: oldSequential[hash]})
	}
	e.mu.Unlock()

	// hardPause/allow/watch* all take e.mu themselves, so they run after the
	// write lock above is released rather than nested inside it.
	for _, m := range resumed {
		if m.paused {
			e.hardPause(m.t)
		} else {
			e.allow(m.t)
			if m.seq {
				applySequentialPriority(m.t)
			}
		}
		go e.watchMetadata(m.t, m.hash)
		go e.watchPeers(m.t, m.hash)
		go e.watchCompletion(m.t, m.hash)
	}

	oldClient.Close()
	return nil
}

func uint32ToIP(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (e *Engine) Status(ctx context.Context, hash domain.InfoHash) (ports.EngineStatus, error) {
	t, err := e.lookup(hash)
	if err != nil {
		return ports.EngineStatus{}, err
	}

	e.mu.RLock()
	paused := e.paused[hash]
	e.mu.RUnlock()

	if !torrentInfoReady(t) {
		return ports.EngineStatus{
			HasMetadata: false,
			Paused:      paused,
			State:       domain.EngineMetadata,
		}, nil
	}

	stats := t.Stats()
	total := t.Length()
	completed := e.trackPeak(hash, t.BytesCompleted())

	dl, ul := e.sampleSpeed(hash, stats.BytesReadUsefulData.Int64(), stats.BytesWrittenData.Int64(), time.Now())

	state := domain.EngineDownloading
	switch {
	case completed >= total && total > 0:
		state = domain.EngineFinished
		if t.Seeding() {
			state = domain.EngineSeeding
		}
	case t.Seeding():
		state = domain.EngineSeeding
	}

	return ports.EngineStatus{
		HasMetadata:    true,
		Paused:         paused,
		State:          state,
		TotalSize:      total,
		CompletedSize:  completed,
		DownloadRate:   dl,
		UploadRate:     ul,
		TotalDownload:  stats.BytesReadUsefulData.Int64(),
		TotalUpload:    stats.BytesWrittenData.Int64(),
		NumSeeds:       stats.ConnectedSeeders,
		NumPeers:       stats.ActivePeers,
		NumConnections: stats.TotalPeers,
	}, nil
}

func (e *Engine) Detail(ctx context.Context, hash domain.InfoHash) (domain.DetailData, error) {
	t, err := e.lookup(hash)
	if err != nil {
		return domain.DetailData{}, err
	}
	if !torrentInfoReady(t) {
		return domain.DetailData{InfoHash: hash}, nil
	}

	files := t.Files()
	liveFileBytes := make([]int64, len(files))
	for i, f := range files {
		liveFileBytes[i] = f.BytesCompleted()
	}

	numPieces := t.NumPieces()
	livePieces := make([]domain.PieceState, 0, numPieces)
	for i := 0; i < numPieces; i++ {
		ps := t.PieceState(i)
		switch {
		case ps.Complete:
			livePieces = append(livePieces, domain.PieceHave)
		case ps.Partial:
			livePieces = append(livePieces, domain.PieceDownloading)
		default:
			livePieces = append(livePieces, domain.PieceMissing)
		}
	}

	pieces, fileBytes := e.mergeDetailPeak(hash, livePieces, liveFileBytes)

	fileDetails := make([]domain.FileDetail, 0, len(files))
	for i, f := range files {
		length := f.Length()
		var fraction float64
		if length > 0 {
			fraction = float64(fileBytes[i]) / float64(length)
		}
		fileDetails = append(fileDetails, domain.FileDetail{
			Index:    i,
			Path:     f.Path(),
			Size:     length,
			Fraction: fraction,
		})
	}

	// anacrolix/torrent's PeerConn exposes connection-level fields (remote
	// address, stats) but not a stable typed client-name accessor across
	// versions; address is the one field reported with confidence here.
	peers := make([]domain.PeerDetail, 0)
	for _, pc := range t.PeerConns() {
		peers = append(peers, domain.PeerDetail{
			Address: pc.RemoteAddr.String(),
		})
	}

	trackers := make([]domain.TrackerDetail, 0)
	for _, tier := range t.Metainfo().AnnounceList {
		for _, u := range tier {
			trackers = append(trackers, domain.TrackerDetail{URL: u, Status: domain.TrackerNotContacted})
		}
	}

	var pieceLength int64
	if info := t.Info(); info != nil {
		pieceLength = info.PieceLength
	}

	return domain.DetailData{
		InfoHash:    hash,
		Files:       fileDetails,
		Peers:       peers,
		Trackers:    trackers,
		Pieces:      pieces,
		PieceLength: pieceLength,
	}, nil
}

func (e *Engine) SaveResumeData(ctx context.Context, hash domain.InfoHash) error {
	t, err := e.lookup(hash)
	if err != nil {
		return err
	}
	if !torrentInfoReady(t) {
		e.emit(ports.EngineNotification{Kind: ports.NotifySaveResumeFailed, InfoHash: hash, Message: "metadata not ready"})
		return nil
	}
	// anacrolix/torrent persists piece-completion state through its Storage
	// implementation rather than a libtorrent-style resume blob; the
	// "blob" we hand back is the bencoded metainfo, enough for the Resume
	// Store to reconstruct AddTorrentSpec on restart.
	mi := t.Metainfo()
	var buf strings.Builder
	if err := mi.Write(&buf); err != nil {
		e.emit(ports.EngineNotification{Kind: ports.NotifySaveResumeFailed, InfoHash: hash, Message: err.Error()})
		return nil
	}
	e.emit(ports.EngineNotification{Kind: ports.NotifySaveResumeOK, InfoHash: hash, Blob: []byte(buf.String())})
	return nil
}

func (e *Engine) Notifications() <-chan ports.EngineNotification {
	return e.notifications
}

func (e *Engine) emit(n ports.EngineNotification) {
	select {
	case e.notifications <- n:
	default:
	}
}

func (e *Engine) BanAddress(ctx context.Context, address string) error {
	e.blocklist.ban(address)
	return nil
}

func (e *Engine) DHTNodes(ctx context.Context) int {
	total := 0
	for _, srv := range e.client.DhtServers() {
		if stats, ok := srv.Stats().(dht.ServerStats); ok {
			total += stats.Nodes
		}
	}
	return total
}

func (e *Engine) Close(ctx context.Context) error {
	errs := e.client.Close()
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ---------------------------------------------------------------------------
// internal helpers
// ---------------------------------------------------------------------------

func (e *Engine) lookup(hash domain.InfoHash) (*torrent.Torrent, error) {
	e.mu.RLock()
	t, ok := e.torrents[hash]
	e.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (e *Engine) listHashes() []domain.InfoHash {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.InfoHash, 0, len(e.torrents))
	for h := range e.torrents {
		out = append(out, h)
	}
	return out
}

func torrentInfoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}

func (e *Engine) sampleSpeed(hash domain.InfoHash, read, written int64, now time.Time) (int64, int64) {
	e.speedMu.Lock()
	defer e.speedMu.Unlock()

	prev, ok := e.speeds[hash]
	e.speeds[hash] = speedSample{at: now, bytesRead: read, bytesWrite: written}
	if !ok || prev.at.IsZero() {
		return 0, 0
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0, 0
	}
	dlDelta := read - prev.bytesRead
	ulDelta := written - prev.bytesWrite
	if dlDelta < 0 {
		dlDelta = 0
	}
	if ulDelta < 0 {
		ulDelta = 0
	}
	return int64(float64(dlDelta) / dt), int64(float64(ulDelta) / dt)
}

func (e *Engine) forgetSpeed(hash domain.InfoHash) {
	e.speedMu.Lock()
	delete(e.speeds, hash)
	e.speedMu.Unlock()
}

func (e *Engine) trackPeak(hash domain.InfoHash, completed int64) int64 {
	e.peakMu.Lock()
	defer e.peakMu.Unlock()
	if completed > e.peak[hash] {
		e.peak[hash] = completed
	}
	return e.peak[hash]
}

// mergeDetailPeak raises the stored piece-state and per-file high-water
// marks elementwise against the live values and returns the result. A
// length change (metadata just arrived, or a different info dict after a
// reconfigure) invalidates the stored peaks and resets them to the live
// values.
func (e *Engine) mergeDetailPeak(hash domain.InfoHash, livePieces []domain.PieceState, liveFileBytes []int64) ([]domain.PieceState, []int64) {
	e.peakMu.Lock()
	defer e.peakMu.Unlock()

	dp, ok := e.detailPeaks[hash]
	if !ok || len(dp.pieces) != len(livePieces) || len(dp.fileBytes) != len(liveFileBytes) {
		dp = &detailPeak{
			pieces:    make([]domain.PieceState, len(livePieces)),
			fileBytes: make([]int64, len(liveFileBytes)),
		}
		copy(dp.pieces, livePieces)
		copy(dp.fileBytes, liveFileBytes)
		e.detailPeaks[hash] = dp
	} else {
		for i, s := range livePieces {
			if s > dp.pieces[i] {
				dp.pieces[i] = s
			}
		}
		for i, b := range liveFileBytes {
			if b > dp.fileBytes[i] {
				dp.fileBytes[i] = b
			}
		}
	}

	pieces := make([]domain.PieceState, len(dp.pieces))
	copy(pieces, dp.pieces)
	fileBytes := make([]int64, len(dp.fileBytes))
	copy(fileBytes, dp.fileBytes)
	return pieces, fileBytes
}

func (e *Engine) forgetPeak(hash domain.InfoHash) {
	e.peakMu.Lock()
	delete(e.peak, hash)
	delete(e.detailPeaks, hash)
	e.peakMu.Unlock()
}
