package store

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eric-lightning/nTorrent/face"
	"github.com/Eric-lightning/nTorrent/ioutil"
	"github.com/Eric-lightning/nTorrent/ndn"
)

func newTestStore() (*LocalStore, afero.Fs) {
	fs := afero.NewMemMapFs()
	s := NewLocalStore(fs, "/appdata", "/data", face.NewSha256KeyChain())
	return s, fs
}

func segment(name ndn.Name, catalog []ndn.Name, next ndn.FullName, hasNext bool) ndn.TorrentFile {
	t := ndn.TorrentFile{Name: name, Catalog: catalog, Next: next, HasNext: hasNext}
	t.SetRaw([]byte(name.String()))
	return t
}

func TestLoadWalksTorrentChainInOrder(t *testing.T) {
	s, fs := newTestStore()
	kc := face.NewSha256KeyChain()

	seg1Name := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(1))
	seg1 := segment(seg1Name, nil, ndn.FullName{}, false)
	sig1, err := kc.Sign(seg1.Raw())
	require.NoError(t, err)

	seg0Name := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(0))
	seg0 := segment(seg0Name, nil, seg1.FullName(), true)
	sig0, err := kc.Sign(seg0.Raw())
	require.NoError(t, err)

	require.NoError(t, ioutil.WriteTorrentSegment(fs, "/appdata", seg0, sig0))
	require.NoError(t, ioutil.WriteTorrentSegment(fs, "/appdata", seg1, sig1))

	require.NoError(t, s.Load(seg0Name))

	segs := s.TorrentSegments()
	require.Len(t, segs, 2)
	assert.True(t, segs[0].Name.Equal(seg0Name))
	assert.True(t, segs[1].Name.Equal(seg1Name))
	assert.True(t, s.HasAllTorrentSegments())
}

func TestLoadTruncatesChainOnFullNameMismatch(t *testing.T) {
	s, fs := newTestStore()
	kc := face.NewSha256KeyChain()

	seg1Name := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(1))
	seg1 := segment(seg1Name, nil, ndn.FullName{}, false)
	sig1, err := kc.Sign(seg1.Raw())
	require.NoError(t, err)

	// seg0 claims a Next FullName that does not match what seg1 actually
	// hashes to, simulating a torn/corrupted write.
	bogusNext := ndn.FullName{Name: seg1Name, Digest: ndn.Component("not-the-real-digest")}
	seg0Name := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(0))
	seg0 := segment(seg0Name, nil, bogusNext, true)
	sig0, err := kc.Sign(seg0.Raw())
	require.NoError(t, err)

	require.NoError(t, ioutil.WriteTorrentSegment(fs, "/appdata", seg0, sig0))
	require.NoError(t, ioutil.WriteTorrentSegment(fs, "/appdata", seg1, sig1))

	require.NoError(t, s.Load(seg0Name))

	segs := s.TorrentSegments()
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Name.Equal(seg0Name))
	assert.False(t, s.HasAllTorrentSegments())
}

func TestLoadTruncatesChainOnBadSignature(t *testing.T) {
	s, fs := newTestStore()

	segName := ndn.NameFromStrings("torrent", "root").Append(ndn.TorrentFileMarker, ndn.SequenceComponent(0))
	seg := segment(segName, nil, ndn.FullName{}, false)

	require.NoError(t, ioutil.WriteTorrentSegment(fs, "/appdata", seg, []byte("wrong-signature")))

	require.NoError(t, s.Load(segName))
	assert.Empty(t, s.TorrentSegments())
}

func TestWriteDataIsIdempotentOnAlreadySetBit(t *testing.T) {
	s, _ := newTestStore()

	filePrefix := ndn.NameFromStrings("f.txt")
	m := ndn.FileManifest{FileName: filePrefix, SubManifestNumber: 0, DataPacketSize: 4,
		Catalog: []ndn.FullName{{}, {}}}
	require.NoError(t, s.WriteFileManifest(withRaw(m), nil))

	packet := ndn.DataPacket{Name: ndn.DataPacketName(filePrefix, 0, 0), Content: []byte("abcd")}
	require.NoError(t, s.WriteData(m, "f.txt", packet))
	assert.True(t, s.HasDataPacket(m, 0))

	// second write of the same packet must not error and must remain a
	// no-op against the already-set bit.
	require.NoError(t, s.WriteData(m, "f.txt", packet))
	assert.True(t, s.HasDataPacket(m, 0))
}

func withRaw(m ndn.FileManifest) ndn.FileManifest {
	m.SetRaw([]byte(m.Name().String()))
	return m
}

func TestFileStateReconstructionOnlySetsMatchingPackets(t *testing.T) {
	s, fs := newTestStore()

	filePrefix := ndn.NameFromStrings("f.txt")
	content := []byte("ABCDEFGH") // two 4-byte packets
	require.NoError(t, afero.WriteFile(fs, "/data/f.txt", content, 0644))

	packets, err := ioutil.PacketizeFile(fs, "/data/f.txt", filePrefix, 0, 4, 2)
	require.NoError(t, err)
	require.Len(t, packets, 2)

	m := withRaw(ndn.FileManifest{
		FileName:          filePrefix,
		SubManifestNumber: 0,
		DataPacketSize:    4,
		Catalog:           []ndn.FullName{packets[0].FullName(), {Name: packets[1].Name, Digest: ndn.Component("stale")}},
	})

	require.NoError(t, s.reconstructFileState("f.txt", m))
	assert.True(t, s.HasDataPacket(m, 0))
	assert.False(t, s.HasDataPacket(m, 1))
}
