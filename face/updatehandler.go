package face

import (
	"context"
	"sync"
	"time"

	"github.com/Eric-lightning/nTorrent/ndn"
)

// AliveUpdateHandler is the one concrete UpdateHandler this module ships:
// it rate-limits ALIVE probes to at most one per Interval, and sends them
// as ordinary zero-content interests over the same Face the pipeliner
// already uses, addressed under an ALIVE-marked child of the peer's name.
type AliveUpdateHandler struct {
	face      Face
	ownPrefix ndn.Name
	interval  time.Duration

	mu   sync.Mutex
	last time.Time
}

// AliveMarker distinguishes a liveness probe from an ordinary content
// request under the same peer prefix.
var AliveMarker = ndn.Component("ALIVE")

// NewAliveUpdateHandler builds a handler that reports NeedsUpdate() at most
// once per interval and identifies this peer as ownPrefix when probed.
func NewAliveUpdateHandler(f Face, ownPrefix ndn.Name, interval time.Duration) *AliveUpdateHandler {
	return &AliveUpdateHandler{face: f, ownPrefix: ownPrefix, interval: interval}
}

// NeedsUpdate reports whether interval has elapsed since the last probe.
func (h *AliveUpdateHandler) NeedsUpdate() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Since(h.last) >= h.interval
}

// SendAliveInterest expresses a fire-and-forget interest at peer's ALIVE
// name; no caller waits on the result, so every callback is nil.
func (h *AliveUpdateHandler) SendAliveInterest(peer ndn.Name) {
	h.mu.Lock()
	h.last = time.Now()
	h.mu.Unlock()

	name := peer.Append(AliveMarker)
	h.face.ExpressInterest(context.Background(), Request{
		Name:            name,
		MustBeFresh:     true,
		ForwardingHint:  peer,
		LifetimeSeconds: 2,
	}, nil, nil, nil)
}

// OwnRoutablePrefix returns the name this peer advertises itself under.
func (h *AliveUpdateHandler) OwnRoutablePrefix() ndn.Name { return h.ownPrefix }
