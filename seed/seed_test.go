package seed

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eric-lightning/nTorrent/face"
	"github.com/Eric-lightning/nTorrent/face/facetest"
	"github.com/Eric-lightning/nTorrent/ndn"
	"github.com/Eric-lightning/nTorrent/store"
)

func newTestSeeder(t *testing.T) (*Seeder, *store.LocalStore, *facetest.Face) {
	t.Helper()
	fs := afero.NewMemMapFs()
	kc := face.NewSha256KeyChain()
	st := store.NewLocalStore(fs, "/appdata", "/data", kc)
	f := facetest.New()
	return New(f, st, nil), st, f
}

func TestSeedDoesNotRegisterIncompleteTorrentChain(t *testing.T) {
	s, st, f := newTestSeeder(t)

	torrentName := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(0))
	seg := ndn.TorrentFile{Name: torrentName, HasNext: true}
	seg.SetRaw([]byte("seg"))
	require.NoError(t, st.WriteTorrentSegment(seg, []byte("sig")))

	s.Seed(torrentName)
	assert.Empty(t, f.Registered)
}

func TestSeedRegistersTorrentPrefixOnceComplete(t *testing.T) {
	s, st, f := newTestSeeder(t)

	torrentName := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(0))
	seg := ndn.TorrentFile{Name: torrentName, HasNext: false}
	seg.SetRaw([]byte("seg"))
	require.NoError(t, st.WriteTorrentSegment(seg, []byte("sig")))

	s.Seed(torrentName)
	s.Seed(torrentName) // second call must not double-register

	prefix := ndn.TorrentFileName(torrentName)
	assert.Equal(t, 1, f.RegisteredCount(prefix))
}

func TestOnInterestServesHeldTorrentSegment(t *testing.T) {
	s, st, f := newTestSeeder(t)

	torrentName := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(0))
	seg := ndn.TorrentFile{Name: torrentName, HasNext: false}
	seg.SetRaw([]byte("segment-bytes"))
	require.NoError(t, st.WriteTorrentSegment(seg, []byte("sig")))
	s.Seed(torrentName)

	prefix := ndn.TorrentFileName(torrentName)
	s.onInterest(prefix, torrentName)

	require.Len(t, f.PutLog, 1)
	assert.True(t, f.PutLog[0].Name.Equal(torrentName))
	assert.Equal(t, []byte("segment-bytes"), f.PutLog[0].Content)
}

// failingFace always fails registration, letting a test exercise the fatal
// registration-failure callback without a real forwarder.
type failingFace struct {
	*facetest.Face
	reason string
}

func (f *failingFace) SetInterestFilter(prefix ndn.Name, onInterest face.OnInterest, onSuccess face.RegSuccessCallback, onFailure face.RegFailureCallback) {
	onFailure(prefix, f.reason)
}

func TestSeedInvokesRegistrationFailureCallback(t *testing.T) {
	fs := afero.NewMemMapFs()
	kc := face.NewSha256KeyChain()
	st := store.NewLocalStore(fs, "/appdata", "/data", kc)
	f := &failingFace{Face: facetest.New(), reason: "no route"}

	var gotPrefix ndn.Name
	var gotReason string
	s := New(f, st, func(prefix ndn.Name, reason string) {
		gotPrefix = prefix
		gotReason = reason
	})

	torrentName := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(0))
	seg := ndn.TorrentFile{Name: torrentName, HasNext: false}
	seg.SetRaw([]byte("seg"))
	require.NoError(t, st.WriteTorrentSegment(seg, []byte("sig")))

	s.Seed(torrentName)

	prefix := ndn.TorrentFileName(torrentName)
	assert.True(t, gotPrefix.Equal(prefix))
	assert.Equal(t, "no route", gotReason)
}

func TestOnInterestServesDataPacketFromDisk(t *testing.T) {
	s, st, f := newTestSeeder(t)

	fileName := ndn.NameFromStrings("greeting.txt")
	packetName := ndn.DataPacketName(fileName, 0, 0)
	packet := ndn.DataPacket{Name: packetName, Content: []byte("hi!!")}

	m := ndn.FileManifest{FileName: fileName, SubManifestNumber: 0, DataPacketSize: 4, Catalog: []ndn.FullName{packet.FullName()}}
	m.SetRaw([]byte(m.Name().String()))
	require.NoError(t, st.WriteFileManifest(m, []byte("sig")))
	require.NoError(t, st.WriteData(m, fileName.String(), packet))

	s.Seed(m.Name())
	prefix := ndn.ManifestPrefix(m.Name())
	s.onInterest(prefix, packetName)

	require.Len(t, f.PutLog, 1)
	assert.True(t, f.PutLog[0].Name.Equal(packetName))
	assert.Equal(t, []byte("hi!!"), f.PutLog[0].Content)
}
