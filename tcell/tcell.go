// Package tcell provides the transactional memory cell: an addressable
// shared location guarded by a version/lock word, read and written only
// under the commit protocol in package txlog.
//
// Erased is the address-identified view the runtime works with; cells
// are identified by pointer, never copied, and must outlive any
// transaction attempt holding a reference. TCell adds the typed
// user-facing surface.
package tcell

import (
	"sync/atomic"

	"github.com/l-stm/epoch"
)

// Erased is a memory cell stripped of its value type: a version/lock
// word plus word-granularity value storage.
//
// Value words are individually atomic so that optimistic readers racing
// a committer never tear; consistency of a multi-word read is
// established by re-checking the version word around it, not by the
// stores themselves.
type Erased struct {
	Lock  epoch.Lock
	store []atomic.Uintptr
}

// NewErased returns a cell with capacity for words value words, stamped
// at the First epoch.
func NewErased(words int) *Erased {
	if words <= 0 {
		panic("tcell: cell with no value storage")
	}
	e := &Erased{store: make([]atomic.Uintptr, words)}
	e.Lock.Init()
	return e
}

// Words returns the cell's value footprint in words.
func (e *Erased) Words() int { return len(e.store) }

// StoreRelease copies src into the cell's value storage. The stores
// themselves carry no consistency guarantee; visibility and ordering
// come from the subsequent publish of the version word (release), which
// a reader pairs with an acquire read of the same word. Caller must
// hold the cell's lock.
func (e *Erased) StoreRelease(src []uintptr) {
	if len(src) != len(e.store) {
		panic("tcell: store of wrong-sized value")
	}
	for i, w := range src {
		e.store[i].Store(w)
	}
}

// LoadWords copies the cell's value words into dst. Callers must
// bracket the copy with version reads to detect a racing commit.
func (e *Erased) LoadWords(dst []uintptr) {
	if len(dst) != len(e.store) {
		panic("tcell: load into wrong-sized buffer")
	}
	for i := range e.store {
		dst[i] = e.store[i].Load()
	}
}

// A TCell is a typed transactional cell. Transactional access goes
// through stm.Read and stm.Write; the methods here exist for seeding
// and inspection outside any transaction.
type TCell[T any] struct {
	erased *Erased
}

// New returns a cell holding v. T must be non-zero sized and
// pointer-free.
func New[T any](v T) *TCell[T] {
	CheckValueType[T]()
	c := &TCell[T]{erased: NewErased(SizeWords[T]())}
	buf := make([]uintptr, SizeWords[T]())
	MarshalWords(&v, buf)
	c.erased.StoreRelease(buf)
	return c
}

// Erased returns the cell's address-identified runtime view.
func (c *TCell[T]) Erased() *Erased { return c.erased }

// Load returns the cell's current committed value, retrying while a
// concurrent commit is in flight. Intended for use outside
// transactions; inside one, stm.Read is the consistent path.
func (c *TCell[T]) Load() T {
	buf := make([]uintptr, len(c.erased.store))
	for {
		before := c.erased.Lock.Read()
		if before.Locked() {
			continue
		}
		c.erased.LoadWords(buf)
		if c.erased.Lock.Read() == before {
			return UnmarshalWords[T](buf)
		}
	}
}

// Set stores v outside any transaction, advancing the cell's version
// through the global clock so concurrent snapshots cannot mistake the
// new value for their own epoch's. Not linearizable against running
// transactions; seeding and tests only.
func (c *TCell[T]) Set(v T) {
	buf := make([]uintptr, len(c.erased.store))
	MarshalWords(&v, buf)
	for {
		pin := epoch.GlobalClock.Now()
		if c.erased.Lock.TryLock(pin) {
			break
		}
	}
	c.erased.StoreRelease(buf)
	c.erased.Lock.UnlockAsEpoch(epoch.GlobalClock.Tick())
}
