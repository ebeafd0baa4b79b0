package stm

import (
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/l-stm/epoch"
	"github.com/l-stm/pkg/traceutil"
	"github.com/l-stm/tcell"
	"github.com/l-stm/txlog"
)

// A Tx is one transaction attempt: a pin epoch defining its snapshot, a
// read log for validation and a write log buffering pending writes. A
// Tx is owned by a single goroutine and reused across attempts; it is
// only valid inside the Atomically call that handed it out.
type Tx struct {
	engine *Engine
	pin    epoch.Epoch
	reads  []readRecord
	writes txlog.WriteLog
	rng    uint64
	active bool
}

// readRecord remembers the version under which a cell was read; commit
// re-checks it so a transaction never commits against a snapshot some
// other transaction invalidated.
type readRecord struct {
	cell *tcell.Erased
	seen epoch.Epoch
}

// retrySignal aborts the current attempt via panic; recovered by run.
type retrySignal struct{}

// Retry abandons the current attempt and reruns the transaction against
// a fresh snapshot. For transaction bodies that observe a state they
// cannot proceed from.
func (tx *Tx) Retry() {
	tx.assertActive()
	panic(retrySignal{})
}

func (tx *Tx) assertActive() {
	if !tx.active {
		panic("stm: use of a transaction outside its Atomically call")
	}
}

// Read returns c's value as of the transaction's snapshot. A cell
// already in the write set reads back its pending value.
func Read[T any](tx *Tx, c *tcell.TCell[T]) T {
	tx.assertActive()
	er := c.Erased()
	if e, ok := tx.writes.Find(er); ok {
		return txlog.ReadPending[T](e)
	}

	buf := make([]uintptr, er.Words())
	before := er.Lock.Read()
	if !before.ValidAsOf(tx.pin) {
		panic(retrySignal{})
	}
	er.LoadWords(buf)
	if er.Lock.Read() != before {
		panic(retrySignal{})
	}
	tx.reads = append(tx.reads, readRecord{cell: er, seen: before})
	return tcell.UnmarshalWords[T](buf)
}

// Write buffers v as c's pending value. Nothing becomes visible before
// commit; a second write to the same cell overwrites the first in
// place.
func Write[T any](tx *Tx, c *tcell.TCell[T], v T) {
	tx.assertActive()
	h := tx.writes.Entry(c.Erased())
	if h.Occupied() {
		txlog.SetPending(h.Record(), v)
	} else {
		txlog.Insert(h, v)
	}
}

func (tx *Tx) begin(pin epoch.Epoch) {
	tx.pin = pin
	tx.active = true
}

// run executes the body, converting a retry panic into a conflict.
func (tx *Tx) run(fn func(*Tx) error) (err error, conflicted bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(retrySignal); ok {
				conflicted = true
				return
			}
			panic(r)
		}
	}()
	return fn(tx), false
}

// commit drives the write log through the protocol: lock in insertion
// order, validate the snapshot, apply, publish under a fresh epoch.
// Returns false on any contention, holding no locks.
func (tx *Tx) commit() bool {
	e := tx.engine

	if tx.writes.IsEmpty() {
		ok := tx.validateReads()
		if ok {
			tx.finish()
		}
		return ok
	}

	trace := traceutil.TODO()
	if e.cfg.TraceThreshold > 0 {
		trace = traceutil.New("commit", e.lg,
			traceutil.Field{Key: "writes", Value: tx.writes.Len()},
			traceutil.Field{Key: "reads", Value: len(tx.reads)})
	}

	if !tx.writes.TryLockEntries(tx.pin) {
		return false
	}
	trace.Step("locked write set")

	if !tx.validateReads() || !tx.writes.ValidateWrites(tx.pin) {
		tx.writes.UnlockEntries()
		return false
	}
	trace.Step("validated snapshot")

	tx.writes.PerformWrites()
	trace.Step("applied pending writes")

	commitEpoch := e.clock.Tick()
	tx.writes.Publish(commitEpoch)
	trace.Step("published", traceutil.Field{Key: "epoch", Value: commitEpoch})
	trace.LogIfLong(e.cfg.TraceThreshold)

	if words := tx.writes.WordLen(); words >= e.cfg.LargeWriteSet {
		e.largeOnce.Do(func() {
			e.lg.Warn("large write set defeats the membership filter",
				zap.Int("records", tx.writes.Len()),
				zap.String("size", humanize.IBytes(uint64(words)*uint64(wordBytes))),
			)
		})
	}

	tx.finish()
	return true
}

// validateReads re-checks every read cell's version against the pin.
// A cell locked by this transaction's own write set still validates;
// anything else that moved is a conflict.
func (tx *Tx) validateReads() bool {
	for _, rr := range tx.reads {
		v := rr.cell.Lock.Read()
		if v == rr.seen {
			continue
		}
		if v.Locked() && v.WithoutLock() == rr.seen {
			if _, ok := tx.writes.Find(rr.cell); ok {
				continue
			}
		}
		return false
	}
	return true
}

// finish resets after a successful commit. The pending values were just
// byte-copied into their cells, so the no-drop reset is the right one.
func (tx *Tx) finish() {
	tx.reads = tx.reads[:0]
	tx.writes.ClearNoDrop()
	tx.active = false
}

// abort resets between attempts, dropping buffered writes.
func (tx *Tx) abort() {
	tx.reads = tx.reads[:0]
	if !tx.writes.IsEmpty() {
		tx.writes.Clear()
	}
	tx.active = false
}

// nextRand is a per-transaction xorshift; backoff jitter needs cheap,
// not good.
func (tx *Tx) nextRand() uint64 {
	if tx.rng == 0 {
		tx.rng = uint64(time.Now().UnixNano()) | 1
	}
	tx.rng ^= tx.rng << 13
	tx.rng ^= tx.rng >> 7
	tx.rng ^= tx.rng << 17
	return tx.rng
}
