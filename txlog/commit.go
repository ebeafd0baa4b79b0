package txlog

import (
	"github.com/l-stm/epoch"
)

// Commit protocol, in strict phase order over the full record set:
// TryLockEntries, ValidateWrites, PerformWrites, Publish, then Clear.
// The only way back out of the locking phase without progressing is the
// built-in unlock-until-failure rollback or an explicit UnlockEntries.

// TryLockEntries attempts to lock every record's target cell, in
// insertion order, against the transaction's pin epoch. On the first
// failure it unlocks exactly the records locked so far and returns
// false, leaving nothing held. All transactions acquiring in their own
// insertion order with immediate rollback on failure is what keeps
// overlapping write sets from deadlocking each other.
func (l *WriteLog) TryLockEntries(pin epoch.Epoch) bool {
	if l.IsEmpty() {
		panic("txlog: locking an empty write set")
	}
	for i := 0; i < l.data.Len(); i++ {
		if !l.at(i).TryLock(pin) {
			lockFails.Inc()
			l.unlockUntil(i)
			return false
		}
	}
	return true
}

// unlockUntil releases the locked prefix [0, end). Cold path.
func (l *WriteLog) unlockUntil(end int) {
	for i := 0; i < end; i++ {
		l.at(i).Unlock()
	}
}

// UnlockEntries releases every record's lock: the abort path out of a
// fully locked write set.
func (l *WriteLog) UnlockEntries() {
	for i := 0; i < l.data.Len(); i++ {
		l.at(i).Unlock()
	}
}

// ValidateWrites confirms, for every active record, that the target
// cell is still held by this transaction and that no other transaction
// published past the snapshot. It does not unlock on failure; the
// caller owns the rollback via UnlockEntries.
func (l *WriteLog) ValidateWrites(pin epoch.Epoch) bool {
	for i := 0; i < l.data.Len(); i++ {
		e := l.at(i)
		t := e.Target()
		if t == nil {
			continue
		}
		v := t.Lock.Read()
		if !v.Locked() || v.WithoutLock() > pin {
			validateFails.Inc()
			return false
		}
	}
	return true
}

// PerformWrites copies every pending value into its target cell. Legal
// only with all locks held; it performs no ordering of its own — the
// subsequent Publish provides it.
func (l *WriteLog) PerformWrites() {
	for i := 0; i < l.data.Len(); i++ {
		l.at(i).PerformWrite()
	}
}

// Publish stamps every target cell with the commit epoch and releases
// its lock, atomically per cell. After Publish returns, any reader that
// observes a cell's new version also observes its new value.
func (l *WriteLog) Publish(commit epoch.Epoch) {
	for i := 0; i < l.data.Len(); i++ {
		l.at(i).Publish(commit)
	}
}
