// services/archiver.go
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/models"
	"github.com/wfunc/tagserver/monitor"
	"github.com/wfunc/tagserver/persistence"
)

const (
	DefaultArchiveQueue      = 64
	DefaultArchiveMaxElapsed = 30 * time.Second
)

var ErrArchiverStopped = errors.New("archiver stopped")

// Archiver writes ended games to the database from a single background worker.
type Archiver struct {
	db         persistence.Database
	queue      chan models.GameRecord
	maxElapsed time.Duration
	initial    time.Duration
	metrics    *monitor.Metrics

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ArchiverOption configures an Archiver.
type ArchiverOption func(*Archiver)

// WithRetryInterval sets the first backoff interval.
func WithRetryInterval(d time.Duration) ArchiverOption {
	return func(a *Archiver) { a.initial = d }
}

// WithArchiveMetrics records archive results.
func WithArchiveMetrics(m *monitor.Metrics) ArchiverOption {
	return func(a *Archiver) { a.metrics = m }
}

func NewArchiver(db persistence.Database, queueSize int, maxElapsed time.Duration, opts ...ArchiverOption) *Archiver {
	if queueSize <= 0 {
		queueSize = DefaultArchiveQueue
	}
	if maxElapsed <= 0 {
		maxElapsed = DefaultArchiveMaxElapsed
	}
	a := &Archiver{
		db:         db,
		queue:      make(chan models.GameRecord, queueSize),
		maxElapsed: maxElapsed,
		initial:    backoff.DefaultInitialInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the worker. ctx cancels in-flight retries.
func (a *Archiver) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for rec := range a.queue {
			a.save(ctx, rec)
		}
	}()
}

// Submit queues rec without blocking. A full queue drops the record.
func (a *Archiver) Submit(rec models.GameRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return ErrArchiverStopped
	}
	select {
	case a.queue <- rec:
		return nil
	default:
		logger.Log.Errorw("archive queue full, dropping game", "game_id", rec.ID)
		a.metrics.ObserveArchive(false)
		return errors.New("archive queue full")
	}
}

// Stop drains queued records and waits for the worker.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *Archiver) save(ctx context.Context, rec models.GameRecord) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.initial
	b.MaxElapsedTime = a.maxElapsed

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return a.db.SaveGameRecord(ctx, rec)
	}, backoff.WithContext(b, ctx))

	if err != nil {
		logger.Log.Errorw("archive game failed", "game_id", rec.ID, "attempts", attempts, "error", err)
		a.metrics.ObserveArchive(false)
		return
	}
	logger.Log.Infow("game archived", "game_id", rec.ID, "attempts", attempts)
	a.metrics.ObserveArchive(true)
}
