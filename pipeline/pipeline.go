// Package pipeline implements the Pipeliner: a WINDOW_SIZE-bounded set of
// outstanding interests drained from a strict FIFO queue.InterestQueue,
// forwarded toward the peer a statstable.Cursor currently selects, with
// retry-triggered peer rotation and periodic re-sorting of the peer table
// (spec §4.4/§4.5).
package pipeline

import (
	"context"
	"sync"

	anacrolixlog "github.com/anacrolix/log"

	"github.com/Eric-lightning/nTorrent/face"
	"github.com/Eric-lightning/nTorrent/ndn"
	"github.com/Eric-lightning/nTorrent/queue"
	"github.com/Eric-lightning/nTorrent/statstable"
)

// Config carries the tunables spec §4.4/§4.5 name explicitly.
type Config struct {
	WindowSize      int
	MaxNumOfRetries int
	SortingInterval int
	LifetimeSeconds float64
}

type pendingEntry struct {
	entry queue.Entry
	peer  ndn.Name
}

// Pipeliner owns one outbound request pipeline for one torrent download.
type Pipeliner struct {
	face    face.Face
	table   *statstable.Table
	cur     *statstable.Cursor
	updater face.UpdateHandler
	cfg     Config

	mu            sync.Mutex
	queue         *queue.InterestQueue
	pending       map[string]*pendingEntry
	sentSinceSort int
	// retries is process-wide, not per-name: spec §4.5 counts timeouts in
	// aggregate across every outstanding request in the window, so peer
	// rotation can fire from many different names each timing out once,
	// not just one name timing out repeatedly.
	retries int
}

// New builds a Pipeliner forwarding toward peers in table. updater may be
// nil, in which case the ALIVE-probe step of the resort boundary is
// skipped entirely (spec §4.4 calls it optional).
func New(f face.Face, table *statstable.Table, updater face.UpdateHandler, cfg Config) *Pipeliner {
	return &Pipeliner{
		face:    f,
		table:   table,
		cur:     statstable.NewCursor(table),
		updater: updater,
		cfg:     cfg,
		queue:   queue.New(),
		pending: make(map[string]*pendingEntry),
	}
}

// SendInterest enqueues a request for name and drains the window right
// away; onData fires once data arrives. A timeout or NACK re-queues the
// request inside the pipeliner, so onTimeout is stored but never called.
// The caller must not enqueue a Name already queued or
// pending (queue.InterestQueue's own FIFO contract).
func (p *Pipeliner) SendInterest(ctx context.Context, name ndn.Name, mustBeFresh bool, onData face.DataCallback, onTimeout face.TimeoutCallback) {
	p.mu.Lock()
	p.queue.Push(queue.Entry{
		Request:   face.Request{Name: name, MustBeFresh: mustBeFresh, LifetimeSeconds: p.cfg.LifetimeSeconds},
		OnData:    onData,
		OnTimeout: onTimeout,
	})
	p.mu.Unlock()
	p.drain(ctx)
}

// Pending reports how many interests are currently outstanding.
func (p *Pipeliner) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// QueueEmpty reports whether anything is still waiting to be sent.
func (p *Pipeliner) QueueEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Empty()
}

// drain sends as many queued entries as the window allows, each toward the
// peer the cursor currently selects.
func (p *Pipeliner) drain(ctx context.Context) {
	for {
		p.mu.Lock()
		if len(p.pending) >= p.cfg.WindowSize || p.queue.Empty() {
			p.mu.Unlock()
			return
		}
		entry := p.queue.Pop()
		peer, havePeer := p.cur.Current()
		var peerName ndn.Name
		if havePeer {
			peerName = peer.Name()
			entry.Request.ForwardingHint = peerName
			peer.IncrementSentInterests()
		}
		key := entry.Request.Name.String()
		p.pending[key] = &pendingEntry{entry: entry, peer: peerName}
		// Every construction, success or retry, counts toward the resort
		// boundary (spec §4.4) — this is the only call site, so a request
		// that never times out or gets NACKed still drives it.
		p.maybeResort()
		p.mu.Unlock()

		p.face.ExpressInterest(ctx, entry.Request,
			p.dataHandler(ctx, entry.Request.Name),
			p.nackHandler(ctx, entry.Request.Name),
			p.timeoutHandler(ctx, entry.Request.Name),
		)
	}
}

func (p *Pipeliner) dataHandler(ctx context.Context, name ndn.Name) face.DataCallback {
	return func(req ndn.Name, data ndn.DataPacket) {
		p.mu.Lock()
		pe, ok := p.pending[name.String()]
		if ok {
			delete(p.pending, name.String())
			p.retries = 0
		}
		p.mu.Unlock()
		if !ok {
			return
		}
		if peer, found := p.table.Find(pe.peer); found {
			peer.IncrementReceivedData()
		}
		if pe.entry.OnData != nil {
			pe.entry.OnData(req, data)
		}
		p.drain(ctx)
	}
}

// timeoutHandler retries the request, rotating to the next peer once the
// process-wide retries counter reaches MaxNumOfRetries (spec §4.5): a
// timeout on any outstanding name counts toward the same threshold, not
// just repeated timeouts of one name.
func (p *Pipeliner) timeoutHandler(ctx context.Context, name ndn.Name) face.TimeoutCallback {
	return func(req ndn.Name) {
		p.mu.Lock()
		pe, ok := p.pending[name.String()]
		if !ok {
			p.mu.Unlock()
			return
		}
		delete(p.pending, name.String())
		p.retries++
		rotated := p.retries >= p.cfg.MaxNumOfRetries
		if rotated {
			p.cur.Advance()
			p.retries = 0
		}
		p.queue.Push(pe.entry)
		p.mu.Unlock()

		if rotated {
			anacrolixlog.Printf("pipeline: %s timed out against %s, rotating peer", name, pe.peer)
		}
		p.drain(ctx)
	}
}

// nackHandler re-expresses on NACK exactly like a timeout, but only if the
// request is still tracked as pending: spec §9 flags the source's unchecked
// pending-map index on NACK as a bug this port must not repeat. A NACK
// from the currently selected peer rotates immediately rather than
// counting toward the shared threshold.
func (p *Pipeliner) nackHandler(ctx context.Context, name ndn.Name) face.NackCallback {
	return func(req ndn.Name, reason string) {
		p.mu.Lock()
		pe, ok := p.pending[name.String()]
		if !ok {
			p.mu.Unlock()
			return
		}
		delete(p.pending, name.String())
		if cur, ok := p.cur.Current(); ok && cur.Name().Equal(pe.peer) {
			p.cur.Advance()
		}
		p.retries = 0
		p.queue.Push(pe.entry)
		p.mu.Unlock()

		anacrolixlog.Printf("pipeline: %s nacked by %s: %s", name, pe.peer, reason)
		p.drain(ctx)
	}
}

// maybeResort re-sorts the peer table and resets the cursor to its head
// every SortingInterval interests sent, per spec §4.4, optionally probing
// the current peer's liveness first, and clears the retries counter.
// Callers must hold p.mu.
func (p *Pipeliner) maybeResort() {
	p.sentSinceSort++
	if p.cfg.SortingInterval <= 0 || p.sentSinceSort < p.cfg.SortingInterval {
		return
	}
	if p.updater != nil && p.updater.NeedsUpdate() {
		if peer, ok := p.cur.Current(); ok {
			p.updater.SendAliveInterest(peer.Name())
		}
	}
	p.table.Sort()
	p.cur.Reset()
	p.sentSinceSort = 0
	p.retries = 0
	anacrolixlog.Printf("pipeline: resorted peer table (generation %d)", p.table.Generation())
}
