package txlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l-stm/epoch"
	"github.com/l-stm/tcell"
)

func TestLockUnlockSymmetryOnFailure(t *testing.T) {
	var clock epoch.Clock
	pin := clock.Now()

	cells := make([]*tcell.Erased, 4)
	l := New()
	for i := range cells {
		cells[i] = tcell.NewErased(1)
		RecordUpdate(l, cells[i], uint64(i))
	}

	// Another transaction already holds the third cell.
	require.True(t, cells[2].Lock.TryLock(pin))

	assert.False(t, l.TryLockEntries(pin))

	// The locked prefix was rolled back, the failing cell still
	// belongs to its owner, and the one after it was never attempted.
	assert.False(t, cells[0].Lock.Read().Locked())
	assert.False(t, cells[1].Lock.Read().Locked())
	assert.True(t, cells[2].Lock.Read().Locked())
	assert.False(t, cells[3].Lock.Read().Locked())

	cells[2].Lock.Unlock()
}

func TestWritePublishRoundTrip(t *testing.T) {
	var clock epoch.Clock
	pin := clock.Now()

	c := tcell.New(uint64(0))
	l := New()
	RecordUpdate(l, c.Erased(), uint64(1234))

	require.True(t, l.TryLockEntries(pin))
	require.True(t, l.ValidateWrites(pin))
	l.PerformWrites()

	commit := clock.Tick()
	l.Publish(commit)
	l.Clear()

	assert.Equal(t, uint64(1234), c.Load())
	assert.Equal(t, commit, c.Erased().Lock.Read())
	assert.True(t, l.IsEmpty())
}

func TestMultiWordWritePublish(t *testing.T) {
	type quad struct{ A, B, C, D uint64 }

	var clock epoch.Clock
	pin := clock.Now()

	c := tcell.New(quad{})
	l := New()
	RecordUpdate(l, c.Erased(), quad{A: 1, B: 2, C: 3, D: 4})

	require.True(t, l.TryLockEntries(pin))
	require.True(t, l.ValidateWrites(pin))
	l.PerformWrites()
	l.Publish(clock.Tick())
	l.Clear()

	assert.Equal(t, quad{A: 1, B: 2, C: 3, D: 4}, c.Load())
}

func TestValidateWritesSeesForeignUnlock(t *testing.T) {
	var clock epoch.Clock
	pin := clock.Now()

	c := tcell.NewErased(1)
	l := New()
	RecordUpdate(l, c, uint64(1))

	require.True(t, l.TryLockEntries(pin))

	// Simulate a bug handing the lock away: validation must notice the
	// cell is no longer held.
	c.Lock.Unlock()
	assert.False(t, l.ValidateWrites(pin))

	require.True(t, c.Lock.TryLock(pin))
	l.UnlockEntries()
}

func TestUnlockEntriesRollsBackFully(t *testing.T) {
	var clock epoch.Clock
	pin := clock.Now()

	cells := []*tcell.Erased{tcell.NewErased(1), tcell.NewErased(1)}
	l := New()
	for i, c := range cells {
		RecordUpdate(l, c, uint64(i))
	}

	require.True(t, l.TryLockEntries(pin))
	l.UnlockEntries()

	for _, c := range cells {
		assert.False(t, c.Lock.Read().Locked())
		assert.Equal(t, epoch.First, c.Lock.Read())
	}
	// The same set locks cleanly again.
	require.True(t, l.TryLockEntries(pin))
	l.UnlockEntries()
}

func TestRacingLogsSingleWinner(t *testing.T) {
	var clock epoch.Clock

	for round := 0; round < 200; round++ {
		x := tcell.NewErased(1)
		pin := clock.Now()

		l1, l2 := New(), New()
		RecordUpdate(l1, x, uint64(1))
		RecordUpdate(l2, x, uint64(2))

		var (
			start sync.WaitGroup
			done  sync.WaitGroup
			got1  bool
			got2  bool
		)
		start.Add(1)
		done.Add(2)
		go func() {
			defer done.Done()
			start.Wait()
			got1 = l1.TryLockEntries(pin)
		}()
		go func() {
			defer done.Done()
			start.Wait()
			got2 = l2.TryLockEntries(pin)
		}()
		start.Done()
		done.Wait()

		require.False(t, got1 && got2, "two owners of one cell")
		require.True(t, got1 || got2, "an uncontended-in-the-end lock must land")
		if got1 {
			l1.UnlockEntries()
		} else {
			l2.UnlockEntries()
		}
		require.False(t, x.Lock.Read().Locked(), "loser holds zero locks, winner rolled back")
	}
}

func TestLockEmptyWriteSetPanics(t *testing.T) {
	l := New()
	assert.Panics(t, func() { l.TryLockEntries(epoch.First) })
}
