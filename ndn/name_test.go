package ndn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceComponentRoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 1, 42, 1 << 40} {
		c := SequenceComponent(n)
		got, ok := c.Sequence()
		assert.True(t, ok)
		assert.Equal(t, n, got)
	}
}

func TestNameAtNegativeIndex(t *testing.T) {
	n := NameFromStrings("a", "b", "c")
	assert.Equal(t, Component("c"), n.At(-1))
	assert.Equal(t, Component("b"), n.At(-2))
	assert.Nil(t, n.At(-10))
}

func TestIsPrefixOf(t *testing.T) {
	prefix := NameFromStrings("a", "b")
	full := NameFromStrings("a", "b", "c")
	assert.True(t, prefix.IsPrefixOf(full))
	assert.True(t, full.IsPrefixOf(full))
	assert.False(t, full.IsPrefixOf(prefix))
}

func TestFullNameEquality(t *testing.T) {
	name := NameFromStrings("file", "manifest")
	a := ComputeFullName(name, []byte("hello"))
	b := ComputeFullName(name, []byte("hello"))
	c := ComputeFullName(name, []byte("world"))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestFindType(t *testing.T) {
	tf := Name{Component("torrent"), TorrentFileMarker, SequenceComponent(0)}
	assert.Equal(t, TorrentFileType, FindType(tf))

	fm := Name{Component("file.txt"), FileManifestMarker, SequenceComponent(0)}
	assert.Equal(t, FileManifestType, FindType(fm))

	dp := Name{Component("file.txt"), SequenceComponent(0), SequenceComponent(3)}
	assert.Equal(t, DataPacketType, FindType(dp))

	unknown := Name{Component("just"), Component("generic")}
	assert.Equal(t, UnknownType, FindType(unknown))
}
