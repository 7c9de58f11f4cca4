package netface

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eric-lightning/nTorrent/face"
	"github.com/Eric-lightning/nTorrent/ndn"
)

func startFace(t *testing.T, addr string) *Face {
	t.Helper()
	f := New(addr, func(ndn.Name) (string, bool) { return "", false })
	require.NoError(t, f.Start())
	t.Cleanup(f.Stop)
	return f
}

func TestExpressInterestRoundTripsAgainstPeerFace(t *testing.T) {
	server := startFace(t, "127.0.0.1:0")
	serverAddr := server.listener.Addr().String()

	name := ndn.NameFromStrings("greeting.txt")
	served := make(chan struct{})
	server.SetInterestFilter(name, func(prefix, req ndn.Name) {
		server.Put(ndn.DataPacket{Name: req, Content: []byte("hello")})
		close(served)
	}, func(ndn.Name) {}, func(ndn.Name, string) { t.Fatal("registration should not fail") })

	client := New("127.0.0.1:0", func(ndn.Name) (string, bool) { return serverAddr, true })
	require.NoError(t, client.Start())
	t.Cleanup(client.Stop)

	got := make(chan ndn.DataPacket, 1)
	client.ExpressInterest(context.Background(), face.Request{Name: name, LifetimeSeconds: 2},
		func(req ndn.Name, data ndn.DataPacket) { got <- data },
		func(req ndn.Name, reason string) { t.Fatalf("unexpected nack: %s", reason) },
		func(req ndn.Name) { t.Fatal("unexpected timeout") },
	)

	select {
	case <-served:
	case <-time.After(time.Second):
		t.Fatal("interest never reached server")
	}
	select {
	case d := <-got:
		assert.Equal(t, []byte("hello"), d.Content)
	case <-time.After(time.Second):
		t.Fatal("data never reached client")
	}
}

func TestExpressInterestTimesOutOnUnresolvedHint(t *testing.T) {
	client := New("127.0.0.1:0", func(ndn.Name) (string, bool) { return "", false })
	require.NoError(t, client.Start())
	t.Cleanup(client.Stop)

	timedOut := make(chan struct{})
	client.ExpressInterest(context.Background(), face.Request{Name: ndn.NameFromStrings("x"), LifetimeSeconds: 1},
		func(ndn.Name, ndn.DataPacket) { t.Fatal("unexpected data") },
		func(ndn.Name, string) { t.Fatal("unexpected nack") },
		func(ndn.Name) { close(timedOut) },
	)

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("onTimeout never fired")
	}
}

func TestStopClosesListenerAndConnections(t *testing.T) {
	f := New("127.0.0.1:0", func(ndn.Name) (string, bool) { return "", false })
	require.NoError(t, f.Start())
	f.Stop()
	_, err := f.dial(f.listener.Addr().String())
	assert.Error(t, err)
}
