package txlog

import (
	"github.com/l-stm/dynvec"
	"github.com/l-stm/epoch"
	"github.com/l-stm/tcell"
)

// An Entry is the narrow capability view of one pending write. Every
// operation below tolerates a deactivated record: a record whose target
// has been cleared is inert, and locking, writing and publishing
// through it are no-ops. That is how the log removes a record logically
// without disturbing the offsets and indices handed to the filter.
//
// An Entry is valid until the owning log's next record or Clear.
type Entry struct {
	elem dynvec.Elem
}

// Target returns the record's cell, or nil if deactivated.
func (e Entry) Target() *tcell.Erased { return e.elem.Target() }

// Deactivate makes the record inert. Panics on a record that already
// was; that is a broken upstream contract, not a runtime condition.
func (e Entry) Deactivate() { e.elem.Deactivate() }

// IsTarget reports whether the record is active and aimed at c.
func (e Entry) IsTarget(c *tcell.Erased) bool { return e.elem.IsTarget(c) }

// ReadPending copies the pending value back out as a T. The record
// stays logically owned by the log. Panics if T's word footprint does
// not match the record's; a mismatched T is caller error.
func ReadPending[T any](e Entry) T {
	words := e.elem.Words()
	if tcell.SizeWords[T]() != len(words) {
		panic("txlog: pending value size mismatch")
	}
	return tcell.UnmarshalWords[T](words)
}

// SetPending overwrites the pending value in place. The record keeps
// its offset; this is how a second write to the same cell coalesces
// instead of appending a duplicate.
func SetPending[T any](e Entry, v T) {
	words := e.elem.Words()
	if tcell.SizeWords[T]() != len(words) {
		panic("txlog: pending value size mismatch")
	}
	tcell.MarshalWords(&v, words)
}

// TryLock attempts to acquire the target cell's version lock against
// the transaction's pin epoch. A deactivated record trivially
// succeeds. Failure means contention and leaves nothing to undo.
func (e Entry) TryLock(pin epoch.Epoch) bool {
	t := e.elem.Target()
	if t == nil {
		return true
	}
	return t.Lock.TryLock(pin)
}

// Unlock releases the target cell's lock. No-op if deactivated.
func (e Entry) Unlock() {
	if t := e.elem.Target(); t != nil {
		t.Lock.Unlock()
	}
}

// PerformWrite copies the pending words into the target cell's
// storage. Visibility ordering comes from the later Publish, not from
// the copy. No-op if deactivated. Caller must hold the cell's lock.
func (e Entry) PerformWrite() {
	if t := e.elem.Target(); t != nil {
		t.StoreRelease(e.elem.Words())
	}
}

// Publish stamps the target cell with the commit epoch and releases its
// lock in one atomic release-ordered store. No-op if deactivated.
func (e Entry) Publish(commit epoch.Epoch) {
	if t := e.elem.Target(); t != nil {
		t.Lock.UnlockAsEpoch(commit)
	}
}
