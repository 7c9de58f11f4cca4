// Package manager implements TorrentManager: the top-level object that
// wires LocalStore, the Pipeliner, the Downloader, and the Seeder together
// and drives them through a single cooperative event loop (spec §4.8/§5).
package manager

import (
	"context"
	"sync"
	"time"

	anacrolixlog "github.com/anacrolix/log"
	"github.com/spf13/afero"

	"github.com/Eric-lightning/nTorrent/download"
	"github.com/Eric-lightning/nTorrent/face"
	"github.com/Eric-lightning/nTorrent/ndn"
	"github.com/Eric-lightning/nTorrent/pipeline"
	"github.com/Eric-lightning/nTorrent/seed"
	"github.com/Eric-lightning/nTorrent/statstable"
	"github.com/Eric-lightning/nTorrent/store"
)

// Config carries every tunable spec §4.4/§4.8 requires. See package config
// for how these are loaded from file/env/flags.
type Config struct {
	AppdataPath       string
	DataPath          string
	WindowSize        int
	MaxNumOfRetries   int
	SortingInterval   int
	LifetimeSeconds   float64
	SeedEnabled       bool
	AliveProbeSeconds float64 // 0 disables the ALIVE-probe UpdateHandler entirely
}

// TorrentManager owns one torrent download/seed session end to end.
type TorrentManager struct {
	cfg  Config
	face face.Face

	store      *store.LocalStore
	table      *statstable.Table
	pipe       *pipeline.Pipeliner
	downloader *download.Downloader
	seeder     *seed.Seeder

	mu   sync.Mutex
	done chan struct{}
}

// New wires every collaborator. Downloading and seeding do not start until
// Run is called. ownPrefix names this peer for the optional ALIVE-probe
// UpdateHandler (spec §4.4); it is only consulted when
// cfg.AliveProbeSeconds > 0.
func New(f face.Face, fs afero.Fs, keychain face.KeyChain, ownPrefix ndn.Name, cfg Config) *TorrentManager {
	m := &TorrentManager{
		cfg:   cfg,
		face:  f,
		store: store.NewLocalStore(fs, cfg.AppdataPath, cfg.DataPath, keychain),
		table: statstable.New(),
		done:  make(chan struct{}, 1),
	}
	var updater face.UpdateHandler
	if cfg.AliveProbeSeconds > 0 {
		updater = face.NewAliveUpdateHandler(f, ownPrefix, time.Duration(cfg.AliveProbeSeconds*float64(time.Second)))
	}
	m.pipe = pipeline.New(f, m.table, updater, pipeline.Config{
		WindowSize:      cfg.WindowSize,
		MaxNumOfRetries: cfg.MaxNumOfRetries,
		SortingInterval: cfg.SortingInterval,
		LifetimeSeconds: cfg.LifetimeSeconds,
	})
	m.seeder = seed.New(f, m.store, func(prefix ndn.Name, reason string) {
		anacrolixlog.Printf("manager: registration failed for %s: %s, shutting down", prefix, reason)
		m.Shutdown()
	})
	m.downloader = download.New(m.store, m.pipe, download.Options{
		OnTorrentSegment: func(t ndn.TorrentFile) {
			m.seeder.Seed(t.Name)
			m.checkIdle()
		},
		OnFileManifest: func(fileKey string, fm ndn.FileManifest) {
			m.seeder.Seed(fm.Name())
			m.checkIdle()
		},
		OnDataPacket: func(fileKey string, fm ndn.FileManifest, index int) {
			m.checkIdle()
		},
		OnTorrentDone: func() {
			m.checkIdle()
		},
	})
	return m
}

// AddPeer registers a candidate peer in the rotation table (spec §4.4).
func (m *TorrentManager) AddPeer(name ndn.Name) {
	m.table.Add(name)
}

// Store exposes the reconstructed LocalStore, e.g. for a CLI to report
// progress.
func (m *TorrentManager) Store() *store.LocalStore { return m.store }

// Run reconstructs on-disk state, starts the download for
// initialSegmentName, then blocks until either ctx is canceled or the
// manager determines it is idle (queue and pending interests empty, and
// seeding disabled). Shutdown always happens here, in the outer loop, never
// from inside a completion callback (spec §9's redesign flag).
func (m *TorrentManager) Run(ctx context.Context, initialSegmentName ndn.Name) error {
	if err := m.store.Load(initialSegmentName); err != nil {
		anacrolixlog.Printf("manager: load failed: %v", err)
		return err
	}
	m.seedExistingContent()
	m.downloader.DownloadTorrent(ctx, initialSegmentName)
	m.checkIdle()

	select {
	case <-ctx.Done():
		m.face.Stop()
		return ctx.Err()
	case <-m.done:
		m.face.Stop()
		return nil
	}
}

// seedExistingContent registers every segment and manifest already held on
// disk at startup for seeding, mirroring the original's Initialize() loop
// over m_torrentSegments/m_fileManifests. Without this, content
// reconstructed by store.Load rather than freshly downloaded would never
// answer requests.
func (m *TorrentManager) seedExistingContent() {
	for _, seg := range m.store.TorrentSegments() {
		m.seeder.Seed(seg.Name)
	}
	for _, fileKey := range m.store.FileKeys() {
		for _, fm := range m.store.FileManifests(fileKey) {
			m.seeder.Seed(fm.Name())
		}
	}
}

// Shutdown triggers the same idle-deferred stop Run's outer loop performs
// on its own, but fatally: called when prefix registration fails (spec
// §4.7/§7), since a peer that can never answer a request under a prefix it
// claimed has nothing left to do.
func (m *TorrentManager) Shutdown() {
	select {
	case m.done <- struct{}{}:
	default:
	}
}

// checkIdle is called after every completion. It never stops anything
// itself: it only signals Run's outer select, which performs the actual
// face.Stop().
func (m *TorrentManager) checkIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.SeedEnabled {
		return
	}
	if m.pipe.Pending() != 0 || !m.pipe.QueueEmpty() {
		return
	}
	select {
	case m.done <- struct{}{}:
	default:
	}
}
