// Package statstable implements the peer-preference table the pipeliner
// rotates through on failure (spec §6's StatsTable) and the rotating
// cursor into it (spec §9: "model it as an index plus a generation
// counter, not a raw pointer").
package statstable

import (
	"sort"
	"sync"

	"github.com/Eric-lightning/nTorrent/ndn"
)

// PeerRecord scores one candidate peer by routable Name, mirroring the
// teacher's stats.PeerStat rate accounting repurposed as a preference
// signal (fewer outstanding sent-but-unanswered interests and more
// received data ranks a peer higher).
type PeerRecord struct {
	name          ndn.Name
	sentInterests int
	receivedData  int
}

func NewPeerRecord(name ndn.Name) *PeerRecord { return &PeerRecord{name: name} }

func (r *PeerRecord) Name() ndn.Name { return r.name }

func (r *PeerRecord) IncrementSentInterests() { r.sentInterests++ }

func (r *PeerRecord) IncrementReceivedData() { r.receivedData++ }

func (r *PeerRecord) SentInterests() int { return r.sentInterests }

func (r *PeerRecord) ReceivedData() int { return r.receivedData }

// preference ranks higher received-data-per-sent-interest first; a peer
// that has answered more of what it was asked sorts earlier.
func (r *PeerRecord) preference() float64 {
	if r.sentInterests == 0 {
		return 0
	}
	return float64(r.receivedData) / float64(r.sentInterests)
}

// Table is a sortable container of peer records keyed by routable Name.
type Table struct {
	mu         sync.Mutex
	records    []*PeerRecord
	generation int
}

func New() *Table { return &Table{} }

// Add inserts a new peer record if one for this Name does not already
// exist.
func (t *Table) Add(name ndn.Name) *PeerRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.records {
		if r.name.Equal(name) {
			return r
		}
	}
	r := NewPeerRecord(name)
	t.records = append(t.records, r)
	t.generation++
	return r
}

// Sort re-orders records by preference, highest first. Any Cursor pointing
// into this table must be reseated afterward (spec §9); Sort bumps the
// generation counter so a stale Cursor can detect this.
func (t *Table) Sort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	sort.SliceStable(t.records, func(i, j int) bool {
		return t.records[i].preference() > t.records[j].preference()
	})
	t.generation++
}

// Find returns the record for name, if present.
func (t *Table) Find(name ndn.Name) (*PeerRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.records {
		if r.name.Equal(name) {
			return r, true
		}
	}
	return nil, false
}

// Erase removes the record for name, if present, and reports whether one
// was removed.
func (t *Table) Erase(name ndn.Name) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, r := range t.records {
		if r.name.Equal(name) {
			t.records = append(t.records[:i], t.records[i+1:]...)
			t.generation++
			return true
		}
	}
	return false
}

// Len reports the number of peer records.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

func (t *Table) at(i int) (*PeerRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.records) {
		return nil, false
	}
	return t.records[i], true
}

func (t *Table) currentGeneration() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

// Generation exposes the mutation counter Sort/Erase/Add bump, letting a
// caller observe that a re-sort actually happened without depending on
// resulting peer order (which may be unchanged if scores tie).
func (t *Table) Generation() int {
	return t.currentGeneration()
}

// Cursor is a rotating index into a Table, re-seated to the head whenever
// the table's generation changes underneath it (mutation via Sort/Erase),
// rather than a raw iterator that a mutation could invalidate.
type Cursor struct {
	table      *Table
	index      int
	generation int
}

// NewCursor seats a cursor at the head of table.
func NewCursor(table *Table) *Cursor {
	return &Cursor{table: table, generation: table.currentGeneration()}
}

func (c *Cursor) reseatIfStale() {
	gen := c.table.currentGeneration()
	if gen != c.generation {
		c.index = 0
		c.generation = gen
	}
}

// Current returns the peer record the cursor currently points at, or
// false if the table is empty.
func (c *Cursor) Current() (*PeerRecord, bool) {
	c.reseatIfStale()
	r, ok := c.table.at(c.index)
	return r, ok
}

// Advance moves the cursor to the next record, wrapping to the head at the
// end (spec §4.5: "the peer iterator advances, wrapping on end").
func (c *Cursor) Advance() {
	c.reseatIfStale()
	if c.table.Len() == 0 {
		return
	}
	c.index = (c.index + 1) % c.table.Len()
}

// Reset seats the cursor at the table head, per spec §4.4's re-sort
// boundary ("reset the current peer iterator to the table head").
func (c *Cursor) Reset() {
	c.generation = c.table.currentGeneration()
	c.index = 0
}
