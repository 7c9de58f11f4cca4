// Package download implements the Downloader: the three state machines
// that pull a torrent-file chain, each file's manifest chain, and each
// manifest's data packets, driven through pipeline.Pipeliner completions
// (spec §4.6). Each continuation calls Pipeliner.SendInterest from inside
// the completion callback, and SendInterest drains the window at once, so
// with a face that answers synchronously the callbacks nest on one stack.
package download

import (
	"context"

	underscore "github.com/ahl5esoft/golang-underscore"

	"github.com/Eric-lightning/nTorrent/ioutil"
	"github.com/Eric-lightning/nTorrent/ndn"
	"github.com/Eric-lightning/nTorrent/pipeline"
	"github.com/Eric-lightning/nTorrent/store"
)

// Downloader owns one torrent's download: the torrent-file segment chain,
// every file's manifest chain, and every manifest's data packets.
type Downloader struct {
	store *store.LocalStore
	pipe  *pipeline.Pipeliner

	onTorrentSegment func(ndn.TorrentFile)
	onFileManifest   func(fileKey string, m ndn.FileManifest)
	onDataPacket     func(fileKey string, m ndn.FileManifest, index int)
	onTorrentDone    func()
}

// Options lets a caller (manager) observe download progress without the
// Downloader depending on manager's own types.
type Options struct {
	OnTorrentSegment func(ndn.TorrentFile)
	OnFileManifest   func(fileKey string, m ndn.FileManifest)
	OnDataPacket     func(fileKey string, m ndn.FileManifest, index int)
	OnTorrentDone    func()
}

// New builds a Downloader persisting verified content to st and pulling
// through pipe.
func New(st *store.LocalStore, pipe *pipeline.Pipeliner, opts Options) *Downloader {
	return &Downloader{
		store:            st,
		pipe:             pipe,
		onTorrentSegment: opts.OnTorrentSegment,
		onFileManifest:   opts.OnFileManifest,
		onDataPacket:     opts.OnDataPacket,
		onTorrentDone:    opts.OnTorrentDone,
	}
}

// DownloadTorrent starts (or resumes) pulling the torrent-file chain
// beginning at initialSegmentName. If the store already holds a complete
// chain, this fans straight out to manifest downloads for every catalog
// entry (spec §4.1's "skip what's already verified on disk").
func (d *Downloader) DownloadTorrent(ctx context.Context, initialSegmentName ndn.Name) {
	if d.store.HasAllTorrentSegments() {
		d.fanOutManifestDownloads(ctx)
		return
	}
	d.downloadNextTorrentSegment(ctx, d.findNextTorrentSegmentToDownload(initialSegmentName))
}

// findNextTorrentSegmentToDownload resumes a partially-held chain from the
// Next pointer of the last verified segment, rather than restarting at
// initialSegmentName, per spec §4.6: a chain with any segments already held
// must not re-fetch them.
func (d *Downloader) findNextTorrentSegmentToDownload(initialSegmentName ndn.Name) ndn.Name {
	segs := d.store.TorrentSegments()
	if len(segs) == 0 {
		return initialSegmentName
	}
	return segs[len(segs)-1].Next.Name
}

func (d *Downloader) downloadNextTorrentSegment(ctx context.Context, name ndn.Name) {
	d.pipe.SendInterest(ctx, name, true,
		func(req ndn.Name, data ndn.DataPacket) { d.onTorrentSegmentData(ctx, data) },
		func(req ndn.Name) { d.downloadNextTorrentSegment(ctx, req) },
	)
}

func (d *Downloader) onTorrentSegmentData(ctx context.Context, data ndn.DataPacket) {
	segment, sig, err := ioutil.DecodeTorrentFile(data.Content)
	if err != nil {
		return
	}
	if err := d.store.VerifySignature(segment.Raw(), sig); err != nil {
		return
	}
	if err := d.store.WriteTorrentSegment(segment, sig); err != nil {
		return
	}
	if d.onTorrentSegment != nil {
		d.onTorrentSegment(segment)
	}
	if segment.HasNext {
		d.downloadNextTorrentSegment(ctx, segment.Next.Name)
		return
	}
	d.fanOutManifestDownloads(ctx)
}

// fanOutManifestDownloads folds every torrent segment's catalog into one
// flat list of manifest-chain roots and kicks off a download for each,
// through the same window (spec §4.6's multi-file supplement). Every
// already-held manifest in a file's chain has its missing data packets
// re-requested too, so a resumed download picks back up mid-file instead of
// only continuing the manifest chain itself.
func (d *Downloader) fanOutManifestDownloads(ctx context.Context) {
	segments := d.store.TorrentSegments()
	catalogReduce := func(acc []ndn.Name, seg ndn.TorrentFile, _ int) []ndn.Name {
		return append(acc, seg.Catalog...)
	}
	var roots []ndn.Name
	underscore.Chain(segments).Reduce([]ndn.Name{}, catalogReduce).Value(&roots)

	for _, fileName := range roots {
		fileKey := fileName.String()
		for _, m := range d.store.FileManifests(fileKey) {
			d.requestMissingDataPackets(ctx, fileKey, m)
		}
		if d.store.HasAllManifestSegments(fileKey) {
			continue
		}
		d.downloadNextManifestSegment(ctx, fileKey, d.findManifestSegmentToDownload(fileKey, fileName))
	}
	if d.onTorrentDone != nil {
		d.onTorrentDone()
	}
}

// findManifestSegmentToDownload resumes fileKey's manifest chain from the
// Next pointer of the last verified submanifest already held, rather than
// restarting at submanifest 0, per spec §4.6.
func (d *Downloader) findManifestSegmentToDownload(fileKey string, fileName ndn.Name) ndn.Name {
	chain := d.store.FileManifests(fileKey)
	if len(chain) == 0 {
		return fileName.Append(ndn.FileManifestMarker, ndn.SequenceComponent(0))
	}
	return chain[len(chain)-1].Next.Name
}

func (d *Downloader) downloadNextManifestSegment(ctx context.Context, fileKey string, name ndn.Name) {
	d.pipe.SendInterest(ctx, name, true,
		func(req ndn.Name, data ndn.DataPacket) { d.onFileManifestData(ctx, fileKey, data) },
		func(req ndn.Name) { d.downloadNextManifestSegment(ctx, fileKey, req) },
	)
}

func (d *Downloader) onFileManifestData(ctx context.Context, fileKey string, data ndn.DataPacket) {
	m, sig, err := ioutil.DecodeFileManifest(data.Content)
	if err != nil {
		return
	}
	if err := d.store.VerifySignature(m.Raw(), sig); err != nil {
		return
	}
	if err := d.store.WriteFileManifest(m, sig); err != nil {
		return
	}
	if d.onFileManifest != nil {
		d.onFileManifest(fileKey, m)
	}
	d.requestMissingDataPackets(ctx, fileKey, m)
	if m.HasNext {
		d.downloadNextManifestSegment(ctx, fileKey, m.Next.Name)
	}
}

// requestMissingDataPackets requests every not-yet-held packet named by m's
// catalog.
func (d *Downloader) requestMissingDataPackets(ctx context.Context, fileKey string, m ndn.FileManifest) {
	for i, full := range m.Catalog {
		if d.store.HasDataPacket(m, i) {
			continue
		}
		d.downloadDataPacket(ctx, fileKey, m, i, full.Name)
	}
}

func (d *Downloader) downloadDataPacket(ctx context.Context, fileKey string, m ndn.FileManifest, index int, name ndn.Name) {
	d.pipe.SendInterest(ctx, name, true,
		func(req ndn.Name, data ndn.DataPacket) { d.onDataPacketData(fileKey, m, index, data) },
		func(req ndn.Name) { d.downloadDataPacket(ctx, fileKey, m, index, req) },
	)
}

func (d *Downloader) onDataPacketData(fileKey string, m ndn.FileManifest, index int, data ndn.DataPacket) {
	if !data.FullName().Equal(m.Catalog[index]) {
		return
	}
	if err := d.store.WriteData(m, fileKey, data); err != nil {
		return
	}
	if d.onDataPacket != nil {
		d.onDataPacket(fileKey, m, index)
	}
}

// HasDataPacket reports whether the packet at index within m is already
// held (spec §4.6's hasDataPacket).
func (d *Downloader) HasDataPacket(m ndn.FileManifest, index int) bool {
	return d.store.HasDataPacket(m, index)
}
