// Package seed implements the Seeder: classifying newly complete content by
// name shape, registering prefix filters once completeness allows the
// registration to be answered, and servicing inbound interests against
// LocalStore (spec §4.7).
package seed

import (
	"errors"
	"fmt"

	anacrolixlog "github.com/anacrolix/log"
	mapset "github.com/deckarep/golang-set"

	"github.com/Eric-lightning/nTorrent/face"
	"github.com/Eric-lightning/nTorrent/ndn"
	"github.com/Eric-lightning/nTorrent/store"
)

// ErrNoSuchContent is returned by OnInterestReceived when the requested
// name matches nothing held locally.
var ErrNoSuchContent = errors.New("seed: no such content")

// Seeder registers prefix filters for content this peer can now answer
// requests under, and answers those requests from LocalStore.
type Seeder struct {
	face  face.Face
	store *store.LocalStore

	registered mapset.Set // of ndn.Name.String()

	onRegistrationFailure func(prefix ndn.Name, reason string)
}

// New builds a Seeder publishing over f and answering from st.
// onRegistrationFailure is invoked whenever face.SetInterestFilter fails;
// per spec §4.7/§7 this is fatal, so the caller (typically manager) is
// expected to shut the whole session down from it. It may be nil, in
// which case a registration failure is only logged.
func New(f face.Face, st *store.LocalStore, onRegistrationFailure func(prefix ndn.Name, reason string)) *Seeder {
	return &Seeder{face: f, store: st, registered: mapset.NewSet(), onRegistrationFailure: onRegistrationFailure}
}

// Seed classifies name by its trailing structure and registers the
// appropriate prefix, but only once completeness allows every request
// under that prefix to be answered: a torrent-file prefix once every
// segment is held, a file-manifest prefix once every submanifest for that
// file is held. Data packets are never separately registered — they are
// served by inference under their owning manifest prefix.
func (s *Seeder) Seed(name ndn.Name) {
	switch ndn.FindType(name) {
	case ndn.TorrentFileType:
		s.maybeRegisterTorrentPrefix(ndn.TorrentFileName(name))
	case ndn.FileManifestType:
		s.maybeRegisterManifestPrefix(ndn.ManifestPrefix(name))
	}
}

func (s *Seeder) maybeRegisterTorrentPrefix(prefix ndn.Name) {
	if !s.store.HasAllTorrentSegments() {
		return
	}
	s.registerOnce(prefix)
}

func (s *Seeder) maybeRegisterManifestPrefix(fileName ndn.Name) {
	if !s.store.HasAllManifestSegments(fileName.String()) {
		return
	}
	s.registerOnce(fileName)
}

func (s *Seeder) registerOnce(prefix ndn.Name) {
	key := prefix.String()
	if s.registered.Contains(key) {
		return
	}
	s.face.SetInterestFilter(prefix,
		s.onInterest,
		func(ndn.Name) { s.registered.Add(key) },
		func(p ndn.Name, reason string) {
			anacrolixlog.Printf("seed: %v: %s: %s", face.ErrRegistrationFailed, p, reason)
			if s.onRegistrationFailure != nil {
				s.onRegistrationFailure(p, reason)
			}
		},
	)
}

// onInterest answers one inbound request from whatever prefix it arrived
// under, trying an exact torrent-segment match, then an exact manifest
// match, then inferring a data packet from a manifest prefix and its
// FileState bitmap.
func (s *Seeder) onInterest(prefix ndn.Name, req ndn.Name) {
	data, err := s.lookup(req)
	if err != nil {
		anacrolixlog.Printf("seed: lookup %s: %v", req, err)
		return
	}
	s.face.Put(data)
}

func (s *Seeder) lookup(req ndn.Name) (ndn.DataPacket, error) {
	switch ndn.FindType(req) {
	case ndn.TorrentFileType:
		for _, seg := range s.store.TorrentSegments() {
			if seg.Name.Equal(req) {
				return ndn.DataPacket{Name: seg.Name, Content: seg.Raw()}, nil
			}
		}
	case ndn.FileManifestType:
		fileName := ndn.ManifestPrefix(req)
		for _, m := range s.store.FileManifests(fileName.String()) {
			if m.Name().Equal(req) {
				return ndn.DataPacket{Name: m.Name(), Content: m.Raw()}, nil
			}
		}
	case ndn.DataPacketType:
		return s.lookupDataPacket(req)
	}
	return ndn.DataPacket{}, ErrNoSuchContent
}

// lookupDataPacket resolves req to its owning file and submanifest, checks
// the corresponding FileState bit, and re-derives the packet's bytes from
// disk via the same packetizer used to build FileState in the first place.
func (s *Seeder) lookupDataPacket(req ndn.Name) (ndn.DataPacket, error) {
	fileName := req.GetSubName(0, len(req)-2)
	subManifestNum, ok := ndn.SubManifestNumber(req)
	if !ok {
		return ndn.DataPacket{}, ErrNoSuchContent
	}
	packetNum, ok := ndn.PacketNumber(req)
	if !ok {
		return ndn.DataPacket{}, ErrNoSuchContent
	}
	for _, m := range s.store.FileManifests(fileName.String()) {
		if m.SubManifestNumber != subManifestNum {
			continue
		}
		if !s.store.HasDataPacket(m, int(packetNum)) {
			return ndn.DataPacket{}, ErrNoSuchContent
		}
		content, err := s.readPacketBytes(fileName, m, packetNum)
		if err != nil {
			return ndn.DataPacket{}, err
		}
		return ndn.DataPacket{Name: req, Content: content}, nil
	}
	return ndn.DataPacket{}, ErrNoSuchContent
}

func (s *Seeder) readPacketBytes(fileName ndn.Name, m ndn.FileManifest, packetNum uint64) ([]byte, error) {
	content, err := s.store.ReadDataPacket(fileName.String(), m, packetNum)
	if err != nil {
		return nil, fmt.Errorf("seed: read packet: %w", err)
	}
	return content, nil
}
