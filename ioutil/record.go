// Package ioutil implements the on-disk layout and (de)serialization spec
// §6 calls IoUtil: load_directory, writeTorrentSegment, writeFileManifest,
// writeData, readDataPacket, packetize_file, create_directories. Grounded
// on the teacher's storage/randomAccessStorage.go (byte-range file I/O
// against afero.File handles) and metainfo.go (bencode-encoded on-disk
// records).
package ioutil

import (
	"bytes"

	"github.com/jackpal/bencode-go"

	"github.com/Eric-lightning/nTorrent/ndn"
)

// fullNameRecord is the bencode-safe wire shape of an ndn.FullName.
type fullNameRecord struct {
	Name   [][]byte `bencode:"name"`
	Digest []byte   `bencode:"digest"`
}

func toFullNameRecord(f ndn.FullName) fullNameRecord {
	return fullNameRecord{Name: toComponents(f.Name), Digest: []byte(f.Digest)}
}

func (r fullNameRecord) toFullName() ndn.FullName {
	return ndn.FullName{Name: fromComponents(r.Name), Digest: ndn.Component(r.Digest)}
}

func toComponents(n ndn.Name) [][]byte {
	out := make([][]byte, len(n))
	for i, c := range n {
		out[i] = []byte(c)
	}
	return out
}

func fromComponents(cs [][]byte) ndn.Name {
	out := make(ndn.Name, len(cs))
	for i, c := range cs {
		out[i] = ndn.Component(c)
	}
	return out
}

// torrentFileRecord is the on-disk bencode dictionary for one TorrentFile
// segment.
type torrentFileRecord struct {
	Name       [][]byte   `bencode:"name"`
	Catalog    [][][]byte `bencode:"catalog"`
	HasNext    bool       `bencode:"has_next"`
	NextName   [][]byte   `bencode:"next_name"`
	NextDigest []byte     `bencode:"next_digest"`
	Signature  []byte     `bencode:"signature"`
}

// EncodeTorrentFile serializes t's content fields plus a detached
// signature supplied by the caller (store passes the publisher's signature,
// checked with face.KeyChain.Verify) — signing is an external collaborator
// (spec §1); ioutil only carries the bytes alongside the record.
func EncodeTorrentFile(t ndn.TorrentFile, signature []byte) ([]byte, error) {
	rec := torrentFileRecord{
		Name:      toComponents(t.Name),
		Catalog:   make([][][]byte, len(t.Catalog)),
		HasNext:   t.HasNext,
		Signature: signature,
	}
	for i, n := range t.Catalog {
		rec.Catalog[i] = toComponents(n)
	}
	if t.HasNext {
		rec.NextName = toComponents(t.Next.Name)
		rec.NextDigest = []byte(t.Next.Digest)
	}
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeTorrentFile(raw []byte) (ndn.TorrentFile, []byte, error) {
	var rec torrentFileRecord
	if err := bencode.Unmarshal(bytes.NewReader(raw), &rec); err != nil {
		return ndn.TorrentFile{}, nil, err
	}
	t := ndn.TorrentFile{
		Name:    fromComponents(rec.Name),
		Catalog: make([]ndn.Name, len(rec.Catalog)),
		HasNext: rec.HasNext,
	}
	for i, n := range rec.Catalog {
		t.Catalog[i] = fromComponents(n)
	}
	if rec.HasNext {
		t.Next = ndn.FullName{Name: fromComponents(rec.NextName), Digest: ndn.Component(rec.NextDigest)}
	}
	// The signed content is the record without its own signature field;
	// re-encoding without a signature reproduces exactly what the writer
	// signed.
	contentOnly, err := EncodeTorrentFile(t, nil)
	if err != nil {
		return ndn.TorrentFile{}, nil, err
	}
	t.SetRaw(contentOnly)
	return t, rec.Signature, nil
}

// fileManifestRecord is the on-disk bencode dictionary for one FileManifest
// segment.
type fileManifestRecord struct {
	FileName          [][]byte         `bencode:"file_name"`
	SubManifestNumber uint64           `bencode:"submanifest_number"`
	DataPacketSize    int              `bencode:"data_packet_size"`
	Catalog           []fullNameRecord `bencode:"catalog"`
	HasNext           bool             `bencode:"has_next"`
	NextName          [][]byte         `bencode:"next_name"`
	NextDigest        []byte           `bencode:"next_digest"`
	Signature         []byte           `bencode:"signature"`
}

func EncodeFileManifest(m ndn.FileManifest, signature []byte) ([]byte, error) {
	rec := fileManifestRecord{
		FileName:          toComponents(m.FileName),
		SubManifestNumber: m.SubManifestNumber,
		DataPacketSize:    m.DataPacketSize,
		Catalog:           make([]fullNameRecord, len(m.Catalog)),
		HasNext:           m.HasNext,
		Signature:         signature,
	}
	for i, f := range m.Catalog {
		rec.Catalog[i] = toFullNameRecord(f)
	}
	if m.HasNext {
		rec.NextName = toComponents(m.Next.Name)
		rec.NextDigest = []byte(m.Next.Digest)
	}
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeFileManifest(raw []byte) (ndn.FileManifest, []byte, error) {
	var rec fileManifestRecord
	if err := bencode.Unmarshal(bytes.NewReader(raw), &rec); err != nil {
		return ndn.FileManifest{}, nil, err
	}
	m := ndn.FileManifest{
		FileName:          fromComponents(rec.FileName),
		SubManifestNumber: rec.SubManifestNumber,
		DataPacketSize:    rec.DataPacketSize,
		Catalog:           make([]ndn.FullName, len(rec.Catalog)),
		HasNext:           rec.HasNext,
	}
	for i, f := range rec.Catalog {
		m.Catalog[i] = f.toFullName()
	}
	if rec.HasNext {
		m.Next = ndn.FullName{Name: fromComponents(rec.NextName), Digest: ndn.Component(rec.NextDigest)}
	}
	contentOnly, err := EncodeFileManifest(m, nil)
	if err != nil {
		return ndn.FileManifest{}, nil, err
	}
	m.SetRaw(contentOnly)
	return m, rec.Signature, nil
}
