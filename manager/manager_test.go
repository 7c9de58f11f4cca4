package manager

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eric-lightning/nTorrent/face"
	"github.com/Eric-lightning/nTorrent/face/facetest"
	"github.com/Eric-lightning/nTorrent/ioutil"
	"github.com/Eric-lightning/nTorrent/ndn"
)

func TestRunCompletesAndStopsFaceWhenNotSeeding(t *testing.T) {
	kc := face.NewSha256KeyChain()
	fs := afero.NewMemMapFs()

	torrentName := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(0))
	segment := ndn.TorrentFile{Name: torrentName}
	segRaw, err := ioutil.EncodeTorrentFile(segment, nil)
	require.NoError(t, err)
	segment.SetRaw(segRaw)
	sig, err := kc.Sign(segment.Raw())
	require.NoError(t, err)
	segWire, err := ioutil.EncodeTorrentFile(segment, sig)
	require.NoError(t, err)

	f := facetest.New()
	f.Responder = func(req face.Request) facetest.Outcome {
		if req.Name.Equal(torrentName) {
			d := ndn.DataPacket{Name: req.Name, Content: segWire}
			return facetest.Outcome{Data: &d}
		}
		return facetest.Outcome{Timeout: true}
	}

	m := New(f, fs, kc, ndn.NameFromStrings("me"), Config{
		AppdataPath:     "/appdata",
		DataPath:        "/data",
		WindowSize:      4,
		MaxNumOfRetries: 3,
		SortingInterval: 0,
		LifetimeSeconds: 2,
		SeedEnabled:     false,
	})
	m.AddPeer(ndn.NameFromStrings("peerA"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = m.Run(ctx, torrentName)
	require.NoError(t, err)
	assert.True(t, f.Stopped)
	assert.True(t, m.Store().HasAllTorrentSegments())
}

// TestRunSeedsContentAlreadyHeldOnDisk covers the resume path: a torrent
// segment reconstructed by store.Load at startup, never freshly
// downloaded this run, must still be registered for seeding.
func TestRunSeedsContentAlreadyHeldOnDisk(t *testing.T) {
	kc := face.NewSha256KeyChain()
	fs := afero.NewMemMapFs()

	torrentName := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(0))
	segment := ndn.TorrentFile{Name: torrentName}
	segRaw, err := ioutil.EncodeTorrentFile(segment, nil)
	require.NoError(t, err)
	segment.SetRaw(segRaw)
	sig, err := kc.Sign(segment.Raw())
	require.NoError(t, err)
	require.NoError(t, ioutil.WriteTorrentSegment(fs, "/appdata", segment, sig))

	f := facetest.New()
	f.Responder = func(req face.Request) facetest.Outcome {
		return facetest.Outcome{Timeout: true}
	}

	m := New(f, fs, kc, ndn.NameFromStrings("me"), Config{
		AppdataPath:     "/appdata",
		DataPath:        "/data",
		WindowSize:      4,
		MaxNumOfRetries: 1,
		SortingInterval: 0,
		LifetimeSeconds: 2,
		SeedEnabled:     true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = m.Run(ctx, torrentName)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, f.RegisteredCount(ndn.TorrentFileName(torrentName)))
}

func TestRunKeepsFaceAliveWhenSeeding(t *testing.T) {
	kc := face.NewSha256KeyChain()
	fs := afero.NewMemMapFs()

	torrentName := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(0))
	segment := ndn.TorrentFile{Name: torrentName}
	segRaw, err := ioutil.EncodeTorrentFile(segment, nil)
	require.NoError(t, err)
	segment.SetRaw(segRaw)
	sig, err := kc.Sign(segment.Raw())
	require.NoError(t, err)
	segWire, err := ioutil.EncodeTorrentFile(segment, sig)
	require.NoError(t, err)

	f := facetest.New()
	f.Responder = func(req face.Request) facetest.Outcome {
		if req.Name.Equal(torrentName) {
			d := ndn.DataPacket{Name: req.Name, Content: segWire}
			return facetest.Outcome{Data: &d}
		}
		return facetest.Outcome{Timeout: true}
	}

	m := New(f, fs, kc, ndn.NameFromStrings("me"), Config{
		AppdataPath:     "/appdata",
		DataPath:        "/data",
		WindowSize:      4,
		MaxNumOfRetries: 3,
		SortingInterval: 0,
		LifetimeSeconds: 2,
		SeedEnabled:     true,
	})
	m.AddPeer(ndn.NameFromStrings("peerA"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = m.Run(ctx, torrentName)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, f.Stopped)
	assert.True(t, m.Store().HasAllTorrentSegments())
	// With seeding enabled the torrent-file prefix should have been
	// registered once the chain completed.
	assert.Equal(t, 1, f.RegisteredCount(ndn.TorrentFileName(torrentName)))
}
