// Package face declares the narrow external-collaborator interfaces spec
// §6 lists as consumed rather than implemented by the core: the NDN
// transport (Face), signature verification (KeyChain), and the peer
// liveness prober (UpdateHandler). It also ships the concrete pieces this
// module needs to run end to end without a real NDN forwarder or CA:
// Sha256KeyChain and AliveUpdateHandler. The in-memory Face test double
// lives in the facetest subpackage.
package face

import (
	"context"
	"errors"

	"github.com/Eric-lightning/nTorrent/ndn"
)

// ErrRegistrationFailed is returned/logged when SetInterestFilter fails;
// per spec §4.7/§7 this is fatal and triggers manager shutdown.
var ErrRegistrationFailed = errors.New("face: prefix registration failed")

// DataCallback is invoked when an outstanding request is satisfied.
type DataCallback func(req ndn.Name, data ndn.DataPacket)

// NackCallback is invoked when the network returns a NACK for an
// outstanding request instead of data or a timeout.
type NackCallback func(req ndn.Name, reason string)

// TimeoutCallback is invoked when a request's lifetime elapses unanswered.
type TimeoutCallback func(req ndn.Name)

// OnInterest is invoked for every inbound request under a registered
// prefix filter.
type OnInterest func(prefix ndn.Name, req ndn.Name)

// RegSuccessCallback and RegFailureCallback report the outcome of a
// SetInterestFilter call.
type RegSuccessCallback func(prefix ndn.Name)
type RegFailureCallback func(prefix ndn.Name, reason string)

// Request is an outgoing pull for a Name, carrying the fixed policy spec
// §4.4 requires: a lifetime, a freshness requirement, and a forwarding
// hint naming the currently selected peer.
type Request struct {
	Name            ndn.Name
	MustBeFresh     bool
	ForwardingHint  ndn.Name
	LifetimeSeconds float64
}

// Face is the NDN transport: one-shot request/response, publishing locally
// held content, and registering to serve a name prefix.
type Face interface {
	ExpressInterest(ctx context.Context, req Request, onData DataCallback, onNack NackCallback, onTimeout TimeoutCallback)
	Put(data ndn.DataPacket)
	SetInterestFilter(prefix ndn.Name, onInterest OnInterest, onSuccess RegSuccessCallback, onFailure RegFailureCallback)
	Stop()
}

// KeyChain validates and attaches signatures. Spec §9 flags the source's
// habit of calling Sign() on already-loaded objects as a bug in the
// original; this port's store package calls Verify, never Sign, when
// reconstructing from disk.
type KeyChain interface {
	Sign(content []byte) ([]byte, error)
	Verify(content []byte, signature []byte) error
}

// UpdateHandler probes peer liveness opportunistically at peer-rotation
// boundaries (spec §4.4).
type UpdateHandler interface {
	NeedsUpdate() bool
	SendAliveInterest(peer ndn.Name)
	OwnRoutablePrefix() ndn.Name
}
