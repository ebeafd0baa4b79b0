// Package txlog implements the per-transaction write log: an
// append-only buffer of pending writes of arbitrary value types, an
// approximate membership filter answering "is this cell already in my
// write set?" in O(1) for the dominant negative case, and the
// lock/validate/apply/publish commit protocol over the buffered set.
//
// A WriteLog belongs to exactly one in-flight transaction attempt and
// is never shared between goroutines; all cross-thread interaction
// happens through the target cells' version words.
package txlog

import (
	"math/bits"
	"unsafe"

	"github.com/google/btree"

	"github.com/l-stm/dynvec"
	"github.com/l-stm/tcell"
)

// Contained is the membership filter's answer. No is a strict guarantee
// of absence; Maybe demands a slow-path lookup and may prove to be a
// filter collision.
type Contained int

const (
	ContainedNo Contained = iota
	ContainedMaybe
)

// bloomShift drops the always-zero alignment bits of a cell address
// before folding it into the filter word. The extra +1 measurably
// lowers collision rates for realistically sized cells.
var bloomShift = func() uint {
	var c tcell.Erased
	return uint(bits.TrailingZeros(uint(unsafe.Alignof(c)))) + 1
}()

func bloomHash(c *tcell.Erased) uintptr {
	raw := uintptr(unsafe.Pointer(c)) >> bloomShift
	return 1 << (raw & (bits.UintSize - 1))
}

// overflowEntry maps a cell identity to the exact index of its record,
// sparing re-scans once a filter collision has been confirmed.
type overflowEntry struct {
	addr  uintptr
	index int
}

func overflowLess(a, b overflowEntry) bool { return a.addr < b.addr }

// A WriteLog buffers a transaction's pending writes.
//
// Invariant: the filter and the record container agree — the filter is
// zero exactly when the container is empty, and a cell's filter bit is
// set whenever a record for it exists. The overflow map only ever
// holds cells whose records were confirmed behind a shared filter bit.
type WriteLog struct {
	filter   uintptr
	overflow *btree.BTreeG[overflowEntry]
	data     dynvec.Vec
}

// New returns an empty write log. The zero WriteLog is also valid.
func New() *WriteLog { return &WriteLog{} }

// Len returns the number of records, active or deactivated.
func (l *WriteLog) Len() int { return l.data.Len() }

// WordLen returns the write set's payload footprint in words.
func (l *WriteLog) WordLen() int { return l.data.WordLen() }

// IsEmpty reports whether the log holds no records, checking the
// filter/container agreement invariant on the way.
func (l *WriteLog) IsEmpty() bool {
	if (l.filter == 0) != l.data.IsEmpty() {
		panic("txlog: bloom filter and container out of sync")
	}
	return l.filter == 0
}

// Contained is the O(1) membership test. ContainedNo is authoritative;
// ContainedMaybe may be a false positive and never a false negative.
func (l *WriteLog) Contained(c *tcell.Erased) Contained {
	bloomChecks.Inc()
	if l.filter&bloomHash(c) != 0 {
		return ContainedMaybe
	}
	return ContainedNo
}

// Find returns the active record targeting c, if any. Biased against
// finding one: the common case across transactions is distinct cells,
// answered by the filter without touching the container.
func (l *WriteLog) Find(c *tcell.Erased) (Entry, bool) {
	if l.Contained(c) == ContainedNo {
		return Entry{}, false
	}
	e, _, ok := l.findSlow(c)
	return e, ok
}

// findSlow resolves a filter hit: exact overflow lookup first, then a
// linear scan. A miss here is a filter collision, counted but not an
// error. A scan hit registers the record in the overflow map so the
// next lookup for c is O(1).
func (l *WriteLog) findSlow(c *tcell.Erased) (Entry, int, bool) {
	slowLookups.Inc()
	addr := uintptr(unsafe.Pointer(c))
	if l.overflow != nil {
		if oe, ok := l.overflow.Get(overflowEntry{addr: addr}); ok {
			e := l.at(oe.index)
			if e.IsTarget(c) {
				return e, oe.index, true
			}
		}
	}
	for i := 0; i < l.data.Len(); i++ {
		e := l.at(i)
		if e.IsTarget(c) {
			l.noteOverflow(c, i)
			return e, i, true
		}
	}
	bloomCollisions.Inc()
	return Entry{}, 0, false
}

func (l *WriteLog) at(i int) Entry { return Entry{elem: l.data.At(i)} }

// noteOverflow records c's exact index, replacing any stale mapping for
// the same address. Reports whether a mapping was replaced.
func (l *WriteLog) noteOverflow(c *tcell.Erased, index int) bool {
	if l.overflow == nil {
		l.overflow = btree.NewG(8, overflowLess)
	}
	_, replaced := l.overflow.ReplaceOrInsert(overflowEntry{
		addr:  uintptr(unsafe.Pointer(c)),
		index: index,
	})
	return replaced
}

// An EntryHandle is the result of a write-set lookup with intent to
// insert: either occupied, exposing the existing record for in-place
// update, or vacant, carrying the precomputed filter hash so the
// insert skips re-hashing and re-validating absence.
type EntryHandle struct {
	log      *WriteLog
	cell     *tcell.Erased
	hash     uintptr
	index    int
	occupied bool
}

// Occupied reports whether a record for the cell already exists.
func (h EntryHandle) Occupied() bool { return h.occupied }

// Record returns the existing record. Panics on a vacant handle.
func (h EntryHandle) Record() Entry {
	if !h.occupied {
		panic("txlog: no record behind a vacant entry handle")
	}
	return h.log.at(h.index)
}

// Entry looks c up with the same fast/slow split as Find, but returns a
// handle supporting insert-or-update. A second write to the same cell
// goes through the occupied arm and overwrites in place.
func (l *WriteLog) Entry(c *tcell.Erased) EntryHandle {
	hash := bloomHash(c)
	bloomChecks.Inc()
	if l.filter&hash == 0 {
		return EntryHandle{log: l, cell: c, hash: hash}
	}
	if _, i, ok := l.findSlow(c); ok {
		doubleWrites.Inc()
		return EntryHandle{log: l, cell: c, hash: hash, index: i, occupied: true}
	}
	return EntryHandle{log: l, cell: c, hash: hash}
}

// Insert records val behind a vacant handle. Panics on an occupied one.
func Insert[T any](h EntryHandle, val T) {
	if h.occupied {
		panic("txlog: insert through an occupied entry handle")
	}
	RecordUnchecked(h.log, h.cell, val, h.hash)
}

// RecordUpdate inserts a new record for c holding val, updating the
// filter and, on a genuine collision (the filter bit was already owned
// by a different cell), the overflow map. Returns whether an existing
// overflow mapping for c was replaced, which signals a write-after-
// write to instrumentation.
//
// The log holds at most one active record per cell; calling this while
// an active record for c exists is a fatal programmer error.
func RecordUpdate[T any](l *WriteLog, c *tcell.Erased, val T) bool {
	hash := bloomHash(c)
	if l.filter&hash != 0 {
		if _, _, ok := l.findSlow(c); ok {
			panic("txlog: second active record for one cell")
		}
		index := push(l, c, val)
		l.filter |= hash
		return l.noteOverflow(c, index)
	}
	push(l, c, val)
	l.filter |= hash
	return false
}

// RecordUnchecked is the fast-path insert for callers that have already
// established absence through Entry; it skips the duplicate check. hash
// must be bloomHash(c), normally carried by the vacant handle.
func RecordUnchecked[T any](l *WriteLog, c *tcell.Erased, val T, hash uintptr) {
	collision := l.filter&hash != 0
	index := push(l, c, val)
	l.filter |= hash
	if collision {
		l.noteOverflow(c, index)
	}
}

func push[T any](l *WriteLog, c *tcell.Erased, val T) int {
	if n := tcell.SizeWords[T](); n == 0 || n != c.Words() {
		panic("txlog: pending value does not fit the target cell")
	}
	return dynvec.Push(&l.data, c, val)
}

// NextPushAllocates reports whether recording a T would grow the
// underlying container.
func NextPushAllocates[T any](l *WriteLog) bool {
	return dynvec.NextPushAllocates[T](&l.data)
}

// Clear resets the log for the next transaction attempt: filter zeroed,
// overflow map emptied, records dropped with their cell references
// released. Storage is retained.
func (l *WriteLog) Clear() {
	l.reset()
	l.data.Clear()
}

// ClearNoDrop resets the log without tearing down record contents, for
// callers that have already moved the pending values elsewhere and must
// not see them destroyed twice.
func (l *WriteLog) ClearNoDrop() {
	l.reset()
	l.data.ClearNoDrop()
}

func (l *WriteLog) reset() {
	writeWords.Observe(float64(l.data.WordLen()))
	l.filter = 0
	if l.overflow != nil {
		l.overflow.Clear(false)
	}
}
