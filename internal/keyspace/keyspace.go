// Package keyspace implements the process-wide key/value store: an
// open-addressed hash table with linear probing, tombstones, dynamic
// resizing, lazy TTL expiration, and stable iteration.
//
// The table is not safe for concurrent use. It is owned exclusively by
// the single-threaded event loop and mutated only from command
// handlers; no locking is needed or provided.
package keyspace

import (
	"github.com/miniredis-io/miniredis/internal/bytestr"
	"github.com/miniredis-io/miniredis/internal/clock"
)

const (
	initialCapacity = 64
	loadFactor      = 0.7
	// NoExpiry marks an entry with no TTL.
	NoExpiry int64 = -1
)

type slotState int

const (
	stateEmpty slotState = iota
	stateOccupied
	stateTombstone
)

type slot struct {
	state    slotState
	key      bytestr.ByteString
	value    bytestr.ByteString
	expireAt int64 // NoExpiry, or absolute ms on the table's clock
}

// Table is the open-addressed hash map described in the package doc.
type Table struct {
	slots    []slot
	capacity int
	count    int // occupied, live entries
	used     int // occupied + tombstone
	clock    clock.Clock
}

// New creates an empty table with the initial capacity, using clk as the
// source of the current time for TTL arithmetic.
func New(clk clock.Clock) *Table {
	t := &Table{clock: clk}
	t.reset(initialCapacity)
	return t
}

func (t *Table) reset(capacity int) {
	t.slots = make([]slot, capacity)
	t.capacity = capacity
	t.count = 0
	t.used = 0
}

// Count returns the number of live entries.
func (t *Table) Count() int {
	return t.count
}

// Capacity returns the current table capacity (power of two).
func (t *Table) Capacity() int {
	return t.capacity
}

// Used returns the number of occupied-or-tombstone slots.
func (t *Table) Used() int {
	return t.used
}

func hash(key []byte) uint32 {
	var h uint32 = 2166136261
	for _, b := range key {
		h ^= uint32(b)
		h *= 16777619
	}
	return h
}

func (t *Table) isExpired(s *slot) bool {
	if s.expireAt == NoExpiry {
		return false
	}
	return t.clock.NowMillis() >= s.expireAt
}

// probeResult is what a probe chain walk found.
type probeResult struct {
	found     bool
	slot      int // index of the match (found) or the insertion point
}

// probe walks the linear probe chain for key, lazily expiring any
// occupied-but-expired slot it passes over. It never mutates count/used
// for any reason other than that lazy expiration.
func (t *Table) probe(key bytestr.ByteString) probeResult {
	idx := int(hash(key)) & (t.capacity - 1)
	firstTombstone := -1

	for i := 0; i < t.capacity; i++ {
		at := (idx + i) & (t.capacity - 1)
		s := &t.slots[at]

		switch s.state {
		case stateEmpty:
			if firstTombstone != -1 {
				return probeResult{found: false, slot: firstTombstone}
			}
			return probeResult{found: false, slot: at}

		case stateTombstone:
			if firstTombstone == -1 {
				firstTombstone = at
			}
			continue

		case stateOccupied:
			if !s.key.Equal(key) {
				continue
			}
			if t.isExpired(s) {
				s.key = nil
				s.value = nil
				s.state = stateTombstone
				s.expireAt = NoExpiry
				t.count--
				if firstTombstone == -1 {
					firstTombstone = at
				}
				continue
			}
			return probeResult{found: true, slot: at}
		}
	}

	// Table fully probed without finding Empty: every slot is
	// Occupied or Tombstone. Only reachable transiently, just before a
	// resize, since resize triggers at 0.7 load.
	if firstTombstone != -1 {
		return probeResult{found: false, slot: firstTombstone}
	}
	return probeResult{found: false, slot: 0}
}

func (t *Table) maybeResize() {
	if float64(t.used) >= float64(t.capacity)*loadFactor {
		t.resize()
	}
}

func (t *Table) resize() {
	old := t.slots
	newCap := t.capacity * 2
	t.slots = make([]slot, newCap)
	t.capacity = newCap

	for i := range old {
		s := &old[i]
		if s.state != stateOccupied {
			continue
		}
		if t.isExpiredAt(s) {
			t.count-- // logically absent; dropped silently
			continue
		}
		idx := int(hash(s.key)) & (newCap - 1)
		for t.slots[idx].state == stateOccupied {
			idx = (idx + 1) & (newCap - 1)
		}
		t.slots[idx] = *s
	}
	t.used = t.count
}

// isExpiredAt checks expiry without mutating state, for use during
// resize where a fresh probe chain makes lazy-expiry bookkeeping moot.
func (t *Table) isExpiredAt(s *slot) bool {
	if s.expireAt == NoExpiry {
		return false
	}
	return t.clock.NowMillis() >= s.expireAt
}

// Set stores key/value, clearing any previous expiry. It reports
// whether the key was newly inserted (false means an existing key was
// overwritten).
func (t *Table) Set(key, value bytestr.ByteString) bool {
	t.maybeResize()

	r := t.probe(key)
	s := &t.slots[r.slot]

	if r.found {
		s.key = key.Clone()
		s.value = value.Clone()
		s.expireAt = NoExpiry
		return false
	}

	wasEmpty := s.state == stateEmpty
	s.state = stateOccupied
	s.key = key.Clone()
	s.value = value.Clone()
	s.expireAt = NoExpiry
	t.count++
	if wasEmpty {
		t.used++
	}
	return true
}

// Get returns the live value for key, if present.
func (t *Table) Get(key bytestr.ByteString) (bytestr.ByteString, bool) {
	r := t.probe(key)
	if !r.found {
		return nil, false
	}
	return t.slots[r.slot].value, true
}

// Exists reports whether key is present and unexpired.
func (t *Table) Exists(key bytestr.ByteString) bool {
	r := t.probe(key)
	return r.found
}

// Delete removes key, writing a tombstone in its place so later probe
// chains stay intact. It reports whether a live entry was removed.
func (t *Table) Delete(key bytestr.ByteString) bool {
	r := t.probe(key)
	if !r.found {
		return false
	}
	s := &t.slots[r.slot]
	s.key = nil
	s.value = nil
	s.state = stateTombstone
	s.expireAt = NoExpiry
	t.count--
	return true
}

// SetExpire sets the absolute expiry timestamp (ms) for key, if present.
// It is a no-op if key is absent.
func (t *Table) SetExpire(key bytestr.ByteString, expireAtMs int64) {
	r := t.probe(key)
	if r.found {
		t.slots[r.slot].expireAt = expireAtMs
	}
}

// GetExpire returns the absolute expiry timestamp for key, or NoExpiry
// if key has no expiry or is absent. Callers that need to distinguish
// "no expiry" from "absent" should call Exists first.
func (t *Table) GetExpire(key bytestr.ByteString) int64 {
	r := t.probe(key)
	if !r.found {
		return NoExpiry
	}
	return t.slots[r.slot].expireAt
}

// Iterator scans the table in storage order, lazily expiring any
// occupied-but-expired slot it crosses. Iteration order is
// implementation-defined and must not be relied on by callers.
type Iterator struct {
	t   *Table
	idx int
}

// Iterate returns a fresh Iterator positioned before the first slot.
func (t *Table) Iterate() *Iterator {
	return &Iterator{t: t}
}

// Next advances the iterator and reports the next live (key, value)
// pair, or ok=false once the table is exhausted.
func (it *Iterator) Next() (key, value bytestr.ByteString, ok bool) {
	t := it.t
	for it.idx < t.capacity {
		s := &t.slots[it.idx]
		it.idx++

		if s.state != stateOccupied {
			continue
		}
		if t.isExpired(s) {
			s.key = nil
			s.value = nil
			s.state = stateTombstone
			s.expireAt = NoExpiry
			t.count--
			continue
		}
		return s.key, s.value, true
	}
	return nil, nil, false
}
