// Package netface is the one concrete, swappable face.Face this module
// ships for running end to end over a real network: peers dial each other
// directly over TCP and exchange length-prefixed, bencode-framed
// interest/data/nack messages, grounded on the teacher's
// go-torrent/server.Server accept loop and go-torrent/wire.Wire framing
// (a 4-byte big-endian length prefix ahead of a typed payload). Production
// deployments normally sit behind a real NDN forwarder; this stands in for
// one over plain sockets so the rest of the module never has to know the
// difference.
package netface

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	bencode "github.com/jackpal/bencode-go"

	"github.com/Eric-lightning/nTorrent/face"
	"github.com/Eric-lightning/nTorrent/ndn"
)

const (
	frameInterest = 1
	frameData     = 2
	frameNack     = 3
)

type interestFrame struct {
	Name           []string `bencode:"name"`
	MustBeFresh    bool     `bencode:"mustBeFresh"`
	LifetimeMillis int64    `bencode:"lifetimeMillis"`
}

type dataFrame struct {
	Name    []string `bencode:"name"`
	Content []byte   `bencode:"content"`
}

type nackFrame struct {
	Name   []string `bencode:"name"`
	Reason string   `bencode:"reason"`
}

func nameToParts(n ndn.Name) []string {
	parts := make([]string, len(n))
	for i, c := range n {
		parts[i] = string(c)
	}
	return parts
}

func partsToName(parts []string) ndn.Name {
	n := make(ndn.Name, len(parts))
	for i, p := range parts {
		n[i] = ndn.Component(p)
	}
	return n
}

type pendingRequest struct {
	onData    face.DataCallback
	onNack    face.NackCallback
	onTimeout face.TimeoutCallback
	timer     *time.Timer
	fired     bool
}

type filterEntry struct {
	prefix     ndn.Name
	onInterest face.OnInterest
}

// PeerResolver maps a forwarding-hint Name to the "host:port" address the
// peer it names is listening on. The mapping is out of band, the same way
// a real NDN forwarder's FIB is populated by routing rather than by the
// application.
type PeerResolver func(peer ndn.Name) (addr string, ok bool)

// Face dials peers directly over TCP; ListenAddr is where it accepts
// inbound interests for prefixes it has registered.
type Face struct {
	listenAddr string
	resolve    PeerResolver

	mu      sync.Mutex
	pending map[string]*pendingRequest // outstanding local interest, keyed by Name.String()
	serving map[string]net.Conn        // inbound interest awaiting Put(), keyed by Name.String()
	conns   map[string]net.Conn        // dialed-peer cache, keyed by addr
	filters []filterEntry

	listener net.Listener
	stopOnce sync.Once
}

// New builds a Face that will listen on listenAddr once Start is called,
// resolving forwarding hints to dial addresses via resolve.
func New(listenAddr string, resolve PeerResolver) *Face {
	return &Face{
		listenAddr: listenAddr,
		resolve:    resolve,
		pending:    make(map[string]*pendingRequest),
		serving:    make(map[string]net.Conn),
		conns:      make(map[string]net.Conn),
	}
}

// Start opens the listening socket and begins accepting peer connections.
func (f *Face) Start() error {
	ln, err := net.Listen("tcp4", f.listenAddr)
	if err != nil {
		return fmt.Errorf("netface: listen %s: %w", f.listenAddr, err)
	}
	f.listener = ln
	go f.acceptLoop()
	return nil
}

func (f *Face) acceptLoop() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		go f.readLoop(conn)
	}
}

// ExpressInterest dials (or reuses a dialed connection to) the peer named
// by req.ForwardingHint and sends the interest, arranging for exactly one
// of onData/onNack/onTimeout to fire once.
func (f *Face) ExpressInterest(ctx context.Context, req face.Request, onData face.DataCallback, onNack face.NackCallback, onTimeout face.TimeoutCallback) {
	key := req.Name.String()
	pr := &pendingRequest{onData: onData, onNack: onNack, onTimeout: onTimeout}

	f.mu.Lock()
	f.pending[key] = pr
	f.mu.Unlock()

	addr, ok := f.resolve(req.ForwardingHint)
	if !ok {
		f.fireTimeout(key, pr)
		return
	}
	conn, err := f.dial(addr)
	if err != nil {
		f.fireTimeout(key, pr)
		return
	}

	lifetime := time.Duration(req.LifetimeSeconds * float64(time.Second))
	pr.timer = time.AfterFunc(lifetime, func() { f.fireTimeout(key, pr) })

	frame := interestFrame{
		Name:           nameToParts(req.Name),
		MustBeFresh:    req.MustBeFresh,
		LifetimeMillis: lifetime.Milliseconds(),
	}
	if err := writeFrame(conn, frameInterest, frame); err != nil {
		f.fireTimeout(key, pr)
	}
}

func (f *Face) fireTimeout(key string, pr *pendingRequest) {
	f.mu.Lock()
	cur, ok := f.pending[key]
	if !ok || cur != pr || pr.fired {
		f.mu.Unlock()
		return
	}
	pr.fired = true
	delete(f.pending, key)
	f.mu.Unlock()
	if pr.timer != nil {
		pr.timer.Stop()
	}
	if pr.onTimeout != nil {
		pr.onTimeout(partsToName(splitKey(key)))
	}
}

// Put publishes data in response to whichever inbound interest is still
// waiting on it; unsolicited Put calls (no matching pending server-side
// interest) are dropped, matching how a real forwarder would have nothing
// to do with data nobody asked for.
func (f *Face) Put(data ndn.DataPacket) {
	key := data.Name.String()
	f.mu.Lock()
	conn, ok := f.serving[key]
	if ok {
		delete(f.serving, key)
	}
	f.mu.Unlock()
	if !ok {
		return
	}
	writeFrame(conn, frameData, dataFrame{Name: nameToParts(data.Name), Content: data.Content})
}

// SetInterestFilter registers prefix for inbound interest dispatch. Because
// registration here is purely local bookkeeping (no round trip to a
// forwarder), onSuccess always fires unless the listener itself failed to
// start.
func (f *Face) SetInterestFilter(prefix ndn.Name, onInterest face.OnInterest, onSuccess face.RegSuccessCallback, onFailure face.RegFailureCallback) {
	if f.listener == nil {
		if onFailure != nil {
			onFailure(prefix, "netface: listener not started")
		}
		return
	}
	f.mu.Lock()
	f.filters = append(f.filters, filterEntry{prefix: prefix, onInterest: onInterest})
	f.mu.Unlock()
	if onSuccess != nil {
		onSuccess(prefix)
	}
}

// Stop closes the listener and every connection this Face opened.
func (f *Face) Stop() {
	f.stopOnce.Do(func() {
		if f.listener != nil {
			f.listener.Close()
		}
		f.mu.Lock()
		for _, c := range f.conns {
			c.Close()
		}
		f.mu.Unlock()
	})
}

func (f *Face) dial(addr string) (net.Conn, error) {
	f.mu.Lock()
	if c, ok := f.conns[addr]; ok {
		f.mu.Unlock()
		return c, nil
	}
	f.mu.Unlock()

	conn, err := net.Dial("tcp4", addr)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.conns[addr] = conn
	f.mu.Unlock()
	go f.readLoop(conn)
	return conn, nil
}

func (f *Face) readLoop(conn net.Conn) {
	for {
		kind, payload, err := readFrame(conn)
		if err != nil {
			return
		}
		switch kind {
		case frameInterest:
			var fr interestFrame
			if err := bencode.Unmarshal(bytes.NewReader(payload), &fr); err != nil {
				continue
			}
			f.handleInboundInterest(conn, partsToName(fr.Name))
		case frameData:
			var fr dataFrame
			if err := bencode.Unmarshal(bytes.NewReader(payload), &fr); err != nil {
				continue
			}
			f.handleInboundData(partsToName(fr.Name), fr.Content)
		case frameNack:
			var fr nackFrame
			if err := bencode.Unmarshal(bytes.NewReader(payload), &fr); err != nil {
				continue
			}
			f.handleInboundNack(partsToName(fr.Name), fr.Reason)
		}
	}
}

func (f *Face) handleInboundInterest(conn net.Conn, name ndn.Name) {
	f.mu.Lock()
	f.serving[name.String()] = conn
	var match *filterEntry
	for i := range f.filters {
		if f.filters[i].prefix.IsPrefixOf(name) {
			match = &f.filters[i]
			break
		}
	}
	f.mu.Unlock()
	if match != nil && match.onInterest != nil {
		match.onInterest(match.prefix, name)
	}
}

func (f *Face) handleInboundData(name ndn.Name, content []byte) {
	key := name.String()
	f.mu.Lock()
	pr, ok := f.pending[key]
	if ok {
		pr.fired = true
		delete(f.pending, key)
	}
	f.mu.Unlock()
	if !ok {
		return
	}
	if pr.timer != nil {
		pr.timer.Stop()
	}
	if pr.onData != nil {
		pr.onData(name, ndn.DataPacket{Name: name, Content: content})
	}
}

func (f *Face) handleInboundNack(name ndn.Name, reason string) {
	key := name.String()
	f.mu.Lock()
	pr, ok := f.pending[key]
	if ok {
		pr.fired = true
		delete(f.pending, key)
	}
	f.mu.Unlock()
	if !ok {
		return
	}
	if pr.timer != nil {
		pr.timer.Stop()
	}
	if pr.onNack != nil {
		pr.onNack(name, reason)
	}
}

// writeFrame encodes v as bencode and writes it behind a 4-byte big-endian
// length prefix plus a one-byte kind tag, the same shape as the teacher's
// wire.sendMessage framing.
func writeFrame(conn net.Conn, kind byte, v interface{}) error {
	var body bytes.Buffer
	if err := bencode.Marshal(&body, v); err != nil {
		return err
	}
	var hdr bytes.Buffer
	binary.Write(&hdr, binary.BigEndian, int32(body.Len()+1))
	hdr.WriteByte(kind)
	if _, err := conn.Write(hdr.Bytes()); err != nil {
		return err
	}
	_, err := conn.Write(body.Bytes())
	return err
}

func readFrame(conn net.Conn) (byte, []byte, error) {
	var length int32
	if err := binary.Read(conn, binary.BigEndian, &length); err != nil {
		return 0, nil, err
	}
	if length < 1 {
		return 0, nil, fmt.Errorf("netface: invalid frame length %d", length)
	}
	kind := make([]byte, 1)
	if _, err := io.ReadFull(conn, kind); err != nil {
		return 0, nil, err
	}
	payload := make([]byte, length-1)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return 0, nil, err
	}
	return kind[0], payload, nil
}

// splitKey rebuilds a Name's parts from its String() form, used only to
// hand ExpressInterest's timeout callback back a Name built the same way
// its caller built the original. Names round-trip through pending's map
// key exactly because Name.String() is injective over the ordinary
// (non-digest) names this Face carries.
func splitKey(key string) []string {
	if key == "/" || key == "" {
		return nil
	}
	parts := make([]string, 0)
	cur := []byte{}
	for i := 1; i < len(key); i++ {
		if key[i] == '/' {
			parts = append(parts, string(cur))
			cur = []byte{}
			continue
		}
		cur = append(cur, key[i])
	}
	parts = append(parts, string(cur))
	return parts
}
