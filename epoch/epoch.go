// Package epoch implements the logical clock driving snapshot validation
// and the per-cell version/lock word used by the commit protocol.
//
// An Epoch is a 64-bit logical timestamp:
//   - Bit 0 is the writer lock flag.
//   - Bits 1..63 hold the clock value, so epochs proper are even and
//     totally ordered by plain integer comparison.
//
// A cell's version word holds the epoch of the transaction that last
// published to it, possibly with the lock flag set while a committer
// holds the cell. A transaction pinned at snapshot S may rely on any
// cell whose version word is unlocked and at most S.
package epoch

import (
	"strconv"
	"sync/atomic"
)

// Epoch is a logical timestamp. The zero Epoch is invalid and never
// handed out by a Clock.
type Epoch uint64

const (
	lockBit = Epoch(1)
	tick    = Epoch(2)

	// First is the epoch of freshly constructed cells and the initial
	// reading of a Clock.
	First = tick
)

// Locked reports whether the writer lock flag is set.
func (e Epoch) Locked() bool { return e&lockBit != 0 }

// WithoutLock strips the lock flag, yielding the underlying epoch.
func (e Epoch) WithoutLock() Epoch { return e &^ lockBit }

// ValidAsOf reports whether a cell stamped with e is readable under the
// snapshot pin: the cell must be unlocked and must not have been
// published after the snapshot was taken.
func (e Epoch) ValidAsOf(pin Epoch) bool {
	return e&lockBit == 0 && e <= pin
}

// Next returns the epoch following e. Only meaningful for unlocked
// epochs.
func (e Epoch) Next() Epoch { return e + tick }

func (e Epoch) String() string {
	s := strconv.FormatUint(uint64(e.WithoutLock()>>1), 10)
	if e.Locked() {
		return s + "+locked"
	}
	return s
}

// A Clock hands out monotonically increasing epochs. The zero Clock is
// ready to use and reads First before its first Tick.
//
// Now is the snapshot ("pin") source; Tick mints commit timestamps.
// Both are safe for concurrent use from any number of goroutines.
type Clock struct {
	// ticks counts Tick calls; the current epoch is First + 2*ticks.
	ticks atomic.Uint64
}

// Now returns the current epoch without advancing the clock.
func (c *Clock) Now() Epoch {
	return Epoch(c.ticks.Load())*tick + First
}

// Tick advances the clock and returns the new epoch. The returned epoch
// is strictly greater than any epoch previously returned by Now or Tick
// on this clock.
func (c *Clock) Tick() Epoch {
	return Epoch(c.ticks.Add(1))*tick + First
}

// GlobalClock is the process-wide epoch source. Runtimes that need
// isolated clocks (tests, mostly) construct their own.
var GlobalClock Clock
