package epoch

import "sync/atomic"

// A Lock is a cell's combined version and writer-lock word. The word
// holds the epoch of the last published write, with bit 0 set while a
// committing transaction owns the cell.
//
// Legal transitions:
//
//	V     -> V|1   TryLock (CAS; acquire)
//	V|1   -> V     Unlock (release)
//	V|1   -> E     UnlockAsEpoch, E a newer unlocked epoch (release)
//
// Go's sync/atomic provides sequentially consistent operations, which
// subsume the acquire/release contracts documented per method; the
// contracts state what callers may rely on, not what the hardware is
// asked for.
//
// The zero Lock reads as the zero (invalid) epoch; NewLock seeds it
// with First.
type Lock struct {
	word atomic.Uint64
}

// NewLock returns a lock stamped with the First epoch, the version of a
// never-published cell.
func NewLock() *Lock {
	l := new(Lock)
	l.Init()
	return l
}

// Init stamps an embedded, zero-value Lock with the First epoch. Must
// happen before the owning cell is shared.
func (l *Lock) Init() {
	l.word.Store(uint64(First))
}

// Read returns the current version word. Acquire: a caller that
// observes an unlocked epoch E also observes every store made by the
// transaction that published E.
func (l *Lock) Read() Epoch {
	return Epoch(l.word.Load())
}

// TryLock attempts to acquire the writer lock on behalf of a
// transaction pinned at pin. It succeeds only if the word holds an
// unlocked epoch no newer than pin, in which case the lock flag is set
// and the underlying epoch preserved. Acquire on success; a failed
// attempt carries no ordering and leaves no trace.
//
// TryLock never blocks and never retries internally; contention,
// including a benign CAS race, reads as failure.
func (l *Lock) TryLock(pin Epoch) bool {
	v := Epoch(l.word.Load())
	if !v.ValidAsOf(pin) {
		return false
	}
	return l.word.CompareAndSwap(uint64(v), uint64(v|lockBit))
}

// Unlock releases the writer lock, restoring the pre-lock epoch.
// Release ordering. Caller must hold the lock.
func (l *Lock) Unlock() {
	v := Epoch(l.word.Load())
	if !v.Locked() {
		panic("epoch: unlock of an unlocked version word")
	}
	l.word.Store(uint64(v.WithoutLock()))
}

// UnlockAsEpoch publishes: it stamps the word with the commit epoch e
// and clears the lock flag in one release-ordered store, so the new
// version becomes visible and unlocked simultaneously. Caller must hold
// the lock, and e must be a fresh unlocked epoch newer than the held
// one.
func (l *Lock) UnlockAsEpoch(e Epoch) {
	if e.Locked() {
		panic("epoch: publishing a locked epoch")
	}
	l.word.Store(uint64(e))
}

// HeldSince returns the epoch underlying a held lock. Owner only.
func (l *Lock) HeldSince() Epoch {
	return Epoch(l.word.Load()).WithoutLock()
}
