package store

import (
	"github.com/boljen/go-bitmap"

	"github.com/Eric-lightning/nTorrent/ndn"
)

// bitmapFileState backs one manifest's ndn.FileState with a
// github.com/boljen/go-bitmap bitmap, the same library the teacher uses
// for its piece bitfield (piece/rarestFirstPieceManager.go).
type bitmapFileState struct {
	bm  bitmap.Bitmap
	len int
}

func newFileState(length int) *bitmapFileState {
	return &bitmapFileState{bm: bitmap.New(length), len: length}
}

func (s *bitmapFileState) Get(index int) bool {
	if index < 0 || index >= s.len {
		return false
	}
	return s.bm.Get(index)
}

func (s *bitmapFileState) Set(index int) {
	if index < 0 || index >= s.len {
		return
	}
	s.bm.Set(index, true)
}

func (s *bitmapFileState) Len() int { return s.len }

var _ ndn.FileState = (*bitmapFileState)(nil)
