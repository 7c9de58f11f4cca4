// Package store implements LocalStore, the on-disk state a TorrentManager
// reconstructs at startup and consults/mutates as segments and packets
// arrive: spec §4.1's intializeTorrentSegments, intializeFileManifests,
// initializeDataPackets/initializeFileState, plus the write/lookup paths
// used once running.
package store

import (
	"fmt"
	"sync"

	anacrolixlog "github.com/anacrolix/log"
	"github.com/spf13/afero"

	"github.com/Eric-lightning/nTorrent/face"
	"github.com/Eric-lightning/nTorrent/ioutil"
	"github.com/Eric-lightning/nTorrent/ndn"
)

// LocalStore holds every torrent-file segment, file-manifest segment, and
// per-submanifest packet bitmap this peer has verified and persisted, plus
// the filesystem that packet bytes are read from and written to.
type LocalStore struct {
	fs          afero.Fs
	appdataPath string
	dataPath    string
	keychain    face.KeyChain

	mu sync.Mutex

	torrentSegments  []ndn.TorrentFile
	fileManifests    map[string][]ndn.FileManifest // keyed by FileName.String()
	fileStates       map[string]*bitmapFileState    // keyed by FileManifest.FullName().String()
	subManifestSizes map[string]int                 // keyed by FileName.String(), from submanifest 0's catalog length
}

// NewLocalStore constructs an empty store rooted at appdataPath (segments
// and manifests) and dataPath (raw file bytes). Call Load to populate it
// from whatever is already on disk.
func NewLocalStore(fs afero.Fs, appdataPath, dataPath string, keychain face.KeyChain) *LocalStore {
	return &LocalStore{
		fs:               fs,
		appdataPath:      appdataPath,
		dataPath:         dataPath,
		keychain:         keychain,
		fileManifests:    make(map[string][]ndn.FileManifest),
		fileStates:       make(map[string]*bitmapFileState),
		subManifestSizes: make(map[string]int),
	}
}

// Load reconstructs in-memory state from whatever was previously persisted
// under appdataPath, per spec §4.1. Verification failures or FullName
// mismatches truncate the affected chain at the first bad segment rather
// than failing outright: a peer that crashed mid-write should recover
// everything it safely can, not discard the whole store.
func (s *LocalStore) Load(initialSegmentName ndn.Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loadedSegments, err := ioutil.LoadTorrentSegments(s.fs, s.appdataPath)
	if err != nil {
		return fmt.Errorf("store: load torrent segments: %w", err)
	}
	s.torrentSegments = s.verifyTorrentChain(loadedSegments, initialSegmentName)

	loadedManifests, err := ioutil.LoadFileManifests(s.fs, s.appdataPath)
	if err != nil {
		return fmt.Errorf("store: load file manifests: %w", err)
	}
	s.fileManifests = s.verifyManifestChains(loadedManifests)

	for fileKey, chain := range s.fileManifests {
		if len(chain) > 0 {
			s.subManifestSizes[fileKey] = len(chain[0].Catalog)
		}
		for _, m := range chain {
			if err := s.reconstructFileState(fileKey, m); err != nil {
				return fmt.Errorf("store: reconstruct file state for %s submanifest %d: %w", fileKey, m.SubManifestNumber, err)
			}
		}
	}
	return nil
}

// verifyTorrentChain walks loaded segments starting from the one whose Name
// equals initialSegmentName, verifying each segment's signature and that
// its FullName matches the FullName the previous segment's Next pointer
// named. The chain is truncated at the first segment that fails either
// check.
func (s *LocalStore) verifyTorrentChain(loaded []ioutil.LoadedTorrentSegment, initialSegmentName ndn.Name) []ndn.TorrentFile {
	byName := make(map[string]ioutil.LoadedTorrentSegment, len(loaded))
	for _, l := range loaded {
		byName[l.Segment.Name.String()] = l
	}

	var out []ndn.TorrentFile
	expectedName := initialSegmentName
	var expectedFull *ndn.FullName
	for {
		l, ok := byName[expectedName.String()]
		if !ok {
			break
		}
		if err := s.keychain.Verify(l.Segment.Raw(), l.Signature); err != nil {
			break
		}
		full := l.Segment.FullName()
		if expectedFull != nil && !full.Equal(*expectedFull) {
			break
		}
		out = append(out, l.Segment)
		if !l.Segment.HasNext {
			break
		}
		expectedName = l.Segment.Next.Name
		next := l.Segment.Next
		expectedFull = &next
	}
	return out
}

// verifyManifestChains walks each file's manifest chain the same way
// verifyTorrentChain walks the torrent-file chain, independently per file.
func (s *LocalStore) verifyManifestChains(loaded []ioutil.LoadedFileManifest) map[string][]ndn.FileManifest {
	byName := make(map[string]ioutil.LoadedFileManifest, len(loaded))
	roots := make(map[string]ndn.Name)
	for _, l := range loaded {
		byName[l.Manifest.Name().String()] = l
		key := l.Manifest.FileName.String()
		if l.Manifest.SubManifestNumber == 0 {
			roots[key] = l.Manifest.FileName
		}
	}

	result := make(map[string][]ndn.FileManifest, len(roots))
	for fileKey, fileName := range roots {
		var chain []ndn.FileManifest
		expectedName := fileName.Append(ndn.FileManifestMarker, ndn.SequenceComponent(0))
		var expectedFull *ndn.FullName
		for {
			l, ok := byName[expectedName.String()]
			if !ok {
				break
			}
			if err := s.keychain.Verify(l.Manifest.Raw(), l.Signature); err != nil {
				break
			}
			full := l.Manifest.FullName()
			if expectedFull != nil && !full.Equal(*expectedFull) {
				break
			}
			chain = append(chain, l.Manifest)
			if !l.Manifest.HasNext {
				break
			}
			expectedName = l.Manifest.Next.Name
			next := l.Manifest.Next
			expectedFull = &next
		}
		if len(chain) > 0 {
			result[fileKey] = chain
		}
	}
	return result
}

// reconstructFileState recomputes m's packet bitmap by packetizing the file
// on disk and comparing each produced packet's FullName against m's
// catalog. A bit is set only when the on-disk bytes at that offset actually
// hash to the FullName the manifest claims for that packet: partially
// written or stale bytes never register as present.
func (s *LocalStore) reconstructFileState(fileKey string, m ndn.FileManifest) error {
	filePath := s.dataPath + "/" + fileKey
	exists, err := afero.Exists(s.fs, filePath)
	if err != nil {
		return err
	}
	state := newFileState(len(m.Catalog))
	full := m.FullName().String()
	s.fileStates[full] = state
	if !exists {
		return nil
	}

	packets, err := ioutil.PacketizeFile(s.fs, filePath, m.FileName, m.SubManifestNumber, m.DataPacketSize, s.subManifestSize(fileKey, m))
	if err != nil {
		return err
	}
	for i, p := range packets {
		if i >= len(m.Catalog) {
			break
		}
		if p.FullName().Equal(m.Catalog[i]) {
			state.Set(i)
		}
	}
	return nil
}

// WriteTorrentSegment persists t along with the signature it already
// carries — the signature of whoever originally published it, verified by
// the caller before this is invoked — and records it as the new tail of
// the in-memory chain. LocalStore never signs on t's behalf: it is not the
// publisher of torrent metadata (spec §1's construction-tooling Non-goal).
func (s *LocalStore) WriteTorrentSegment(t ndn.TorrentFile, signature []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ioutil.WriteTorrentSegment(s.fs, s.appdataPath, t, signature); err != nil {
		anacrolixlog.Printf("store: write torrent segment %s: %v", t.Name, err)
		return err
	}
	for _, existing := range s.torrentSegments {
		if existing.Name.Equal(t.Name) {
			return nil
		}
	}
	s.torrentSegments = append(s.torrentSegments, t)
	return nil
}

// WriteFileManifest persists m with its already-verified signature, then
// records it in that file's in-memory chain and initializes its (empty)
// packet bitmap.
func (s *LocalStore) WriteFileManifest(m ndn.FileManifest, signature []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ioutil.WriteFileManifest(s.fs, s.appdataPath, m, signature); err != nil {
		anacrolixlog.Printf("store: write file manifest %s: %v", m.Name(), err)
		return err
	}
	key := m.FileName.String()
	for _, existing := range s.fileManifests[key] {
		if existing.SubManifestNumber == m.SubManifestNumber {
			return nil
		}
	}
	s.fileManifests[key] = append(s.fileManifests[key], m)
	if _, ok := s.fileStates[m.FullName().String()]; !ok {
		s.fileStates[m.FullName().String()] = newFileState(len(m.Catalog))
	}
	if m.SubManifestNumber == 0 {
		s.subManifestSizes[key] = len(m.Catalog)
	}
	return nil
}

// subManifestSize returns the byte-offset stride for fileKey: submanifest
// 0's catalog length, cached once it is known. Every submanifest of a file
// shares this constant regardless of how many packets its own catalog
// holds (spec §3) — only submanifest 0, or a value already cached from a
// prior load/write of it, may be used as len(m.Catalog) would silently
// shrink the stride for a short terminal submanifest.
func (s *LocalStore) subManifestSize(fileKey string, m ndn.FileManifest) int {
	if size, ok := s.subManifestSizes[fileKey]; ok {
		return size
	}
	return len(m.Catalog)
}

// VerifySignature exposes the keychain check a caller must perform before
// handing freshly received content to WriteTorrentSegment/WriteFileManifest.
func (s *LocalStore) VerifySignature(content, signature []byte) error {
	return s.keychain.Verify(content, signature)
}

// WriteData writes packet's bytes to disk and marks its bit in m's
// FileState, unless that bit is already set (spec §8 invariant 7:
// duplicate writes are no-ops).
func (s *LocalStore) WriteData(m ndn.FileManifest, fileKey string, packet ndn.DataPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	packetNum, ok := ndn.PacketNumber(packet.Name)
	if !ok {
		return fmt.Errorf("store: %s has no packet-number suffix", packet.Name)
	}
	state, ok := s.fileStates[m.FullName().String()]
	if !ok {
		state = newFileState(len(m.Catalog))
		s.fileStates[m.FullName().String()] = state
	}
	if state.Get(int(packetNum)) {
		return nil
	}
	filePath := s.dataPath + "/" + fileKey
	if err := ioutil.WriteData(s.fs, filePath, m, s.subManifestSize(fileKey, m), packet); err != nil {
		anacrolixlog.Printf("store: write data packet %s: %v", packet.Name, err)
		return err
	}
	state.Set(int(packetNum))
	return nil
}

// ReadDataPacket reads back the bytes for packet packetNum of m from disk,
// for seeding: the same offset computation WriteData used to place it.
func (s *LocalStore) ReadDataPacket(fileKey string, m ndn.FileManifest, packetNum uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.dataPath + "/" + fileKey
	packetName := ndn.DataPacketName(m.FileName, m.SubManifestNumber, packetNum)
	packet, err := ioutil.ReadDataPacket(s.fs, filePath, m, s.subManifestSize(fileKey, m), packetName)
	if err != nil {
		return nil, err
	}
	return packet.Content, nil
}

// HasDataPacket reports whether the packet at index within m's submanifest
// is present on disk.
func (s *LocalStore) HasDataPacket(m ndn.FileManifest, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.fileStates[m.FullName().String()]
	if !ok {
		return false
	}
	return state.Get(index)
}

// TorrentSegments returns the verified torrent-file chain held so far.
func (s *LocalStore) TorrentSegments() []ndn.TorrentFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ndn.TorrentFile, len(s.torrentSegments))
	copy(out, s.torrentSegments)
	return out
}

// HasAllTorrentSegments reports whether the last held segment is terminal
// (HasNext == false): the whole torrent-file chain is complete.
func (s *LocalStore) HasAllTorrentSegments() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.torrentSegments) == 0 {
		return false
	}
	return !s.torrentSegments[len(s.torrentSegments)-1].HasNext
}

// FileKeys returns every file key with at least one verified manifest
// segment held, letting a caller enumerate all known files without already
// knowing their names (e.g. to re-seed everything reconstructed at
// startup).
func (s *LocalStore) FileKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.fileManifests))
	for k := range s.fileManifests {
		out = append(out, k)
	}
	return out
}

// FileManifests returns the verified manifest chain held for fileKey.
func (s *LocalStore) FileManifests(fileKey string) []ndn.FileManifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.fileManifests[fileKey]
	out := make([]ndn.FileManifest, len(chain))
	copy(out, chain)
	return out
}

// HasAllManifestSegments reports whether fileKey's manifest chain is
// complete (last held segment is terminal).
func (s *LocalStore) HasAllManifestSegments(fileKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.fileManifests[fileKey]
	if len(chain) == 0 {
		return false
	}
	return !chain[len(chain)-1].HasNext
}

// FileState returns the packet-presence bitmap for m, if any packets have
// been reconstructed or written for it.
func (s *LocalStore) FileState(m ndn.FileManifest) (ndn.FileState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.fileStates[m.FullName().String()]
	return state, ok
}
