// Package stm drives transactions over transactional memory cells:
// optimistic execution against a pinned snapshot, a buffered write set,
// and a lock/validate/apply/publish commit, retried with backoff on
// contention.
//
// The classic shape:
//
//	acct := tcell.New(100)
//	err := engine.Atomically(func(tx *stm.Tx) error {
//		bal := stm.Read(tx, acct)
//		stm.Write(tx, acct, bal-10)
//		return nil
//	})
//
// Transaction bodies may run more than once and must be free of side
// effects other than cell reads and writes.
package stm

import (
	"errors"
	"sync"
	"time"
	"unsafe"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/l-stm/epoch"
)

// ErrRetryBudget is returned by Atomically when a transaction lost to
// contention more times than Config.MaxRetries allows.
var ErrRetryBudget = errors.New("stm: transaction retry budget exhausted")

const wordBytes = int(unsafe.Sizeof(uintptr(0)))

var (
	defaultBackoffBase   = time.Microsecond
	defaultBackoffCap    = time.Millisecond
	defaultLargeWriteSet = 1 << 16 // words
)

type Config struct {
	// MaxRetries bounds how many times one Atomically call is rerun
	// after losing to contention. 0 means retry until it commits.
	MaxRetries int

	// BackoffBase and BackoffCap bound the jittered exponential sleep
	// between attempts.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// TraceThreshold enables commit-path step tracing for commits that
	// take at least this long. 0 disables tracing.
	TraceThreshold time.Duration

	// LargeWriteSet is the write-set size in words above which the
	// engine logs a one-time warning. Write sets that large defeat the
	// filter's point.
	LargeWriteSet int

	// Clock overrides the process-wide epoch clock. Tests mostly.
	Clock *epoch.Clock
}

// An Engine runs transactions. Engines sharing a clock (by default, the
// global one) are serializable against each other; every goroutine may
// call Atomically concurrently.
type Engine struct {
	cfg   Config
	lg    *zap.Logger
	clock *epoch.Clock

	txs       sync.Pool
	largeOnce sync.Once
}

// New returns an engine. A nil logger and a zero config are usable.
func New(lg *zap.Logger, cfg Config) *Engine {
	if lg == nil {
		lg = zap.NewNop()
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap == 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if cfg.LargeWriteSet == 0 {
		cfg.LargeWriteSet = defaultLargeWriteSet
	}
	if cfg.Clock == nil {
		cfg.Clock = &epoch.GlobalClock
	}

	e := &Engine{
		cfg:   cfg,
		lg:    lg,
		clock: cfg.Clock,
	}
	e.txs.New = func() interface{} { return &Tx{engine: e} }

	lg.Info("stm engine ready",
		zap.Duration("backoff-base", cfg.BackoffBase),
		zap.Duration("backoff-cap", cfg.BackoffCap),
		zap.String("large-write-set", humanize.IBytes(uint64(cfg.LargeWriteSet)*uint64(wordBytes))),
	)
	return e
}

// Atomically runs fn as a transaction: every Read observes one
// consistent snapshot and either every Write becomes visible at a
// single commit epoch or none does. On contention fn is rerun against a
// fresh snapshot after a jittered backoff. A non-nil error from fn
// aborts the transaction, discards its writes and is returned as is.
func (e *Engine) Atomically(fn func(*Tx) error) error {
	tx := e.txs.Get().(*Tx)
	defer func() {
		if tx.active {
			tx.abort()
		}
		e.txs.Put(tx)
	}()

	for attempt := 0; ; attempt++ {
		if e.cfg.MaxRetries > 0 && attempt > e.cfg.MaxRetries {
			budgetExceeded.Inc()
			return ErrRetryBudget
		}
		tx.begin(e.clock.Now())
		err, conflicted := tx.run(fn)
		if err != nil {
			tx.abort()
			return err
		}
		if !conflicted && tx.commit() {
			commits.Inc()
			return nil
		}
		retries.Inc()
		tx.abort()
		e.backoff(tx, attempt)
	}
}

// backoff sleeps for a jittered exponential duration: somewhere in
// [base<<n/2, base<<n], capped.
func (e *Engine) backoff(tx *Tx, attempt int) {
	shift := attempt
	if shift > 16 {
		shift = 16
	}
	d := e.cfg.BackoffBase << shift
	if d > e.cfg.BackoffCap {
		d = e.cfg.BackoffCap
	}
	half := d / 2
	if half > 0 {
		d = half + time.Duration(tx.nextRand()%uint64(half)+1)
	}
	time.Sleep(d)
}
