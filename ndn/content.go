package ndn

// TorrentFile is one segment of the torrent metadata chain (spec §3).
type TorrentFile struct {
	Name Name
	// Catalog lists the first-segment Name of every FileManifest chain
	// this torrent covers.
	Catalog []Name
	// Next is the FullName of the next TorrentFile segment, or the zero
	// value when this segment is terminal.
	Next    FullName
	HasNext bool
	raw     []byte
}

// FullName is the identity of this segment once its bytes are known.
func (t TorrentFile) FullName() FullName {
	return ComputeFullName(t.Name, t.raw)
}

// SegmentNumber reads the trailing sequence-number component.
func (t TorrentFile) SegmentNumber() (uint64, bool) {
	return t.Name.At(-1).Sequence()
}

// TorrentFileName returns the chain-common prefix (everything before the
// segment-number/marker suffix), the prefix a Seeder registers once every
// segment is held.
func TorrentFileName(name Name) Name {
	if len(name) < 2 {
		return name
	}
	return name.GetSubName(0, len(name)-2)
}

// SetRaw records the encoded bytes this segment was built from/for, used
// to compute its FullName. Populated by ioutil on load or before seeding.
func (t *TorrentFile) SetRaw(b []byte) { t.raw = b }

// Raw returns the encoded bytes, if set.
func (t TorrentFile) Raw() []byte { return t.raw }

// FileManifest is one segment describing a contiguous range of data-packet
// names belonging to one file (spec §3).
type FileManifest struct {
	// FileName is the Name prefix identifying the file this manifest
	// describes (not including the "manifest" marker or submanifest#).
	FileName Name
	// SubManifestNumber is this segment's 0-based index within the file's
	// manifest chain.
	SubManifestNumber uint64
	// DataPacketSize is the size in bytes of one data packet under this
	// submanifest (except possibly the last, per PacketizeFile).
	DataPacketSize int
	// Catalog is the ordered list of FullNames of data packets covered by
	// this submanifest.
	Catalog []FullName
	Next    FullName
	HasNext bool
	raw     []byte
}

// Name is this segment's own (non-full) Name:
// <file-prefix>/manifest/<submanifest#>.
func (m FileManifest) Name() Name {
	return m.FileName.Append(FileManifestMarker, SequenceComponent(m.SubManifestNumber))
}

// FullName is the identity of this segment once its bytes are known.
func (m FileManifest) FullName() FullName {
	return ComputeFullName(m.Name(), m.raw)
}

// SetRaw records the encoded bytes this segment was built from/for.
func (m *FileManifest) SetRaw(b []byte) { m.raw = b }

// Raw returns the encoded bytes, if set.
func (m FileManifest) Raw() []byte { return m.raw }

// ManifestPrefix returns the file-prefix given any Name belonging to a
// manifest chain for that file (a manifest segment Name or a full
// manifest-chain Name including the marker/submanifest# suffix).
func ManifestPrefix(name Name) Name {
	if len(name) >= 2 && string(name.At(-2)) == string(FileManifestMarker) {
		return name.GetSubName(0, len(name)-2)
	}
	return name
}

// DataPacket is a signed content object addressed by
// <file-prefix>/<submanifest#>/<packet#>.
type DataPacket struct {
	Name    Name
	Content []byte
}

// FullName is the identity of this packet.
func (d DataPacket) FullName() FullName {
	return ComputeFullName(d.Name, d.Content)
}

// SubManifestNumber and PacketNumber read the two trailing sequence
// components of a data-packet Name.
func SubManifestNumber(name Name) (uint64, bool) { return name.At(-2).Sequence() }
func PacketNumber(name Name) (uint64, bool)      { return name.At(-1).Sequence() }

// DataPacketName builds a data packet's Name from its owning file prefix
// and the two positional sequence numbers.
func DataPacketName(filePrefix Name, subManifest, packet uint64) Name {
	return filePrefix.Append(SequenceComponent(subManifest), SequenceComponent(packet))
}

// FileState is a boolean vector of length len(catalog) indexed by packet
// sequence number, indicating which packets of a submanifest are present
// on disk (spec §3). The concrete bit storage lives in package store,
// backed by github.com/boljen/go-bitmap; this type is the read-only view
// operations reason about.
type FileState interface {
	Get(index int) bool
	Len() int
}
