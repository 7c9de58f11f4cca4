package ioutil

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/afero"

	"github.com/Eric-lightning/nTorrent/ndn"
)

// CreateDirectories creates path and any missing parents.
func CreateDirectories(fs afero.Fs, path string) error {
	return fs.MkdirAll(path, 0755)
}

// torrentSegmentFilename zero-pads the segment number so lexicographic
// directory order equals chain order (spec §4.1: "Load all torrent-file
// segments from disk in directory order").
func torrentSegmentFilename(seg uint64) string {
	return fmt.Sprintf("%020d.seg", seg)
}

// manifestFilename groups a file's submanifests together and orders them
// ascending, matching the manifest-reconstruction walk in spec §4.1.
func manifestFilename(fileName ndn.Name, subManifest uint64) string {
	return fmt.Sprintf("%s-%020d.mf", hex.EncodeToString([]byte(fileName.String())), subManifest)
}

// LoadedTorrentSegment pairs a decoded segment with the detached signature
// it was persisted with, so store.Load can re-verify it against a
// face.KeyChain before trusting the segment's FullName.
type LoadedTorrentSegment struct {
	Segment   ndn.TorrentFile
	Signature []byte
}

// LoadedFileManifest is LoadedTorrentSegment's counterpart for manifests.
type LoadedFileManifest struct {
	Manifest  ndn.FileManifest
	Signature []byte
}

// WriteTorrentSegment serializes and writes one torrent-file segment under
// dir/torrent_files, alongside the signature the caller passes in (store
// passes the publisher's already-verified signature; neither store nor
// ioutil signs).
func WriteTorrentSegment(fs afero.Fs, dir string, t ndn.TorrentFile, signature []byte) error {
	seg, ok := t.SegmentNumber()
	if !ok {
		return fmt.Errorf("ioutil: torrent segment %s has no sequence-number suffix", t.Name)
	}
	path := dir + "/torrent_files"
	if err := CreateDirectories(fs, path); err != nil {
		return err
	}
	raw, err := EncodeTorrentFile(t, signature)
	if err != nil {
		return fmt.Errorf("ioutil: encode torrent segment: %w", err)
	}
	return afero.WriteFile(fs, path+"/"+torrentSegmentFilename(seg), raw, 0644)
}

// WriteFileManifest serializes and writes one file-manifest segment under
// dir/manifests, alongside its detached signature.
func WriteFileManifest(fs afero.Fs, dir string, m ndn.FileManifest, signature []byte) error {
	path := dir + "/manifests"
	if err := CreateDirectories(fs, path); err != nil {
		return err
	}
	raw, err := EncodeFileManifest(m, signature)
	if err != nil {
		return fmt.Errorf("ioutil: encode file manifest: %w", err)
	}
	return afero.WriteFile(fs, path+"/"+manifestFilename(m.FileName, m.SubManifestNumber), raw, 0644)
}

// LoadTorrentSegments loads every torrent-file segment under
// dir/torrent_files, in directory order.
func LoadTorrentSegments(fs afero.Fs, dir string) ([]LoadedTorrentSegment, error) {
	path := dir + "/torrent_files"
	exists, err := afero.DirExists(fs, path)
	if err != nil || !exists {
		return nil, err
	}
	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	out := make([]LoadedTorrentSegment, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := afero.ReadFile(fs, path+"/"+e.Name())
		if err != nil {
			return nil, err
		}
		t, sig, err := DecodeTorrentFile(raw)
		if err != nil {
			return nil, fmt.Errorf("ioutil: decode %s: %w", e.Name(), err)
		}
		out = append(out, LoadedTorrentSegment{Segment: t, Signature: sig})
	}
	return out, nil
}

// LoadFileManifests loads every file-manifest segment under
// dir/manifests, in directory order (file-grouped, submanifest-ascending).
func LoadFileManifests(fs afero.Fs, dir string) ([]LoadedFileManifest, error) {
	path := dir + "/manifests"
	exists, err := afero.DirExists(fs, path)
	if err != nil || !exists {
		return nil, err
	}
	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	out := make([]LoadedFileManifest, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := afero.ReadFile(fs, path+"/"+e.Name())
		if err != nil {
			return nil, err
		}
		m, sig, err := DecodeFileManifest(raw)
		if err != nil {
			return nil, fmt.Errorf("ioutil: decode %s: %w", e.Name(), err)
		}
		out = append(out, LoadedFileManifest{Manifest: m, Signature: sig})
	}
	return out, nil
}

// PacketizeFile deterministically slices the file at path into the data
// packets one submanifest describes, per (file-prefix, submanifest#,
// packet-size, submanifest-size). This is the authoritative definition of
// on-disk packet layout (spec §4.1): identical inputs always yield
// identical packet Names and bytes.
func PacketizeFile(fs afero.Fs, path string, filePrefix ndn.Name, subManifest uint64, packetSize int, subManifestSize int) ([]ndn.DataPacket, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make([]ndn.DataPacket, 0, subManifestSize)
	buf := make([]byte, packetSize)
	offset := int64(subManifest) * int64(subManifestSize) * int64(packetSize)
	for i := 0; i < subManifestSize; i++ {
		n, err := f.ReadAt(buf, offset)
		if n == 0 && err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		content := make([]byte, n)
		copy(content, buf[:n])
		name := ndn.DataPacketName(filePrefix, subManifest, uint64(i))
		out = append(out, ndn.DataPacket{Name: name, Content: content})
		offset += int64(n)
		if n < packetSize {
			break
		}
	}
	return out, nil
}

// WriteData writes packet's content at its computed offset within the
// file at filePath, per (manifest, subManifestSize). Spec §4.6/§7: a
// duplicate write (bit already set) is the caller's responsibility to
// avoid re-invoking; this function always writes.
func WriteData(fs afero.Fs, filePath string, manifest ndn.FileManifest, subManifestSize int, packet ndn.DataPacket) error {
	packetNum, ok := ndn.PacketNumber(packet.Name)
	if !ok {
		return fmt.Errorf("ioutil: %s has no packet-number suffix", packet.Name)
	}
	offset := (int64(manifest.SubManifestNumber)*int64(subManifestSize) + int64(packetNum)) * int64(manifest.DataPacketSize)

	f, err := fs.OpenFile(filePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(packet.Content, offset)
	return err
}

// ReadDataPacket reads back the bytes for packetName from filePath,
// reconstructing the packet the same way PacketizeFile would have
// produced it (spec §8 invariant 8: packetize/read round-trip).
func ReadDataPacket(fs afero.Fs, filePath string, manifest ndn.FileManifest, subManifestSize int, packetName ndn.Name) (ndn.DataPacket, error) {
	packetNum, ok := ndn.PacketNumber(packetName)
	if !ok {
		return ndn.DataPacket{}, fmt.Errorf("ioutil: %s has no packet-number suffix", packetName)
	}
	offset := (int64(manifest.SubManifestNumber)*int64(subManifestSize) + int64(packetNum)) * int64(manifest.DataPacketSize)

	f, err := fs.Open(filePath)
	if err != nil {
		return ndn.DataPacket{}, err
	}
	defer f.Close()

	buf := make([]byte, manifest.DataPacketSize)
	n, err := f.ReadAt(buf, offset)
	if n == 0 && err != nil && err != io.EOF {
		return ndn.DataPacket{}, err
	}
	return ndn.DataPacket{Name: packetName, Content: buf[:n]}, nil
}
