// Package facetest provides a scriptable, in-memory face.Face double for
// exercising the download/seed/pipeline state machines without a real NDN
// forwarder. Scripting happens through the Responder closure, not
// testify/mock expectations, since a request's outcome usually depends on
// how many times it has already been asked (NACK-then-data, timeout
// sequences) rather than a fixed argument match.
package facetest

import (
	"context"
	"sync"

	"github.com/Eric-lightning/nTorrent/face"
	"github.com/Eric-lightning/nTorrent/ndn"
)

// Face is a cooperative, single-threaded fake transport. Tests script its
// behavior by installing a Responder closure for dynamic behavior (e.g.
// "reply once with a NACK, then with data").
type Face struct {
	mu         sync.Mutex
	Responder  func(req face.Request) Outcome
	Registered []ndn.Name
	PutLog     []ndn.DataPacket
	Stopped    bool
}

// Outcome tells ExpressInterest how to resolve a given request.
type Outcome struct {
	Data    *ndn.DataPacket
	Nack    string // non-empty means "NACK with this reason"
	Timeout bool
}

func New() *Face {
	return &Face{}
}

func (f *Face) ExpressInterest(ctx context.Context, req face.Request, onData face.DataCallback, onNack face.NackCallback, onTimeout face.TimeoutCallback) {
	f.mu.Lock()
	responder := f.Responder
	f.mu.Unlock()
	if responder == nil {
		if onTimeout != nil {
			onTimeout(req.Name)
		}
		return
	}
	outcome := responder(req)
	switch {
	case outcome.Timeout:
		if onTimeout != nil {
			onTimeout(req.Name)
		}
	case outcome.Nack != "":
		if onNack != nil {
			onNack(req.Name, outcome.Nack)
		}
	case outcome.Data != nil:
		if onData != nil {
			onData(req.Name, *outcome.Data)
		}
	default:
		if onTimeout != nil {
			onTimeout(req.Name)
		}
	}
}

func (f *Face) Put(data ndn.DataPacket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PutLog = append(f.PutLog, data)
}

func (f *Face) SetInterestFilter(prefix ndn.Name, onInterest face.OnInterest, onSuccess face.RegSuccessCallback, onFailure face.RegFailureCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.Registered {
		if p.Equal(prefix) {
			if onSuccess != nil {
				onSuccess(prefix)
			}
			return
		}
	}
	f.Registered = append(f.Registered, prefix)
	if onSuccess != nil {
		onSuccess(prefix)
	}
}

func (f *Face) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped = true
}

// RegisteredCount returns how many entries of Registered equal prefix.
// SetInterestFilter never appends a prefix that is already there, so the
// result is 0 or 1 (spec §8 scenario 1's "registered exactly once").
func (f *Face) RegisteredCount(prefix ndn.Name) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.Registered {
		if p.Equal(prefix) {
			n++
		}
	}
	return n
}
