package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/page"
	"github.com/dgnsrekt/reviewsync/internal/telemetry"
)

// ErrInvalidPeriod is returned by Watch for a non-positive period.
var ErrInvalidPeriod = errors.New("watch period must be positive")

// PollFunc performs one poll for the given entries query.
type PollFunc func(ctx context.Context, entriesQuery string) error

type registration struct {
	entry  page.Entry
	period time.Duration
}

// Manager polls for updates to watched entries. The poll interval is the
// shortest period among current registrations, and polls never overlap.
type Manager struct {
	poll   PollFunc
	clock  Clock
	logger *zap.Logger

	mu       sync.Mutex
	watches  map[string]registration
	period   time.Duration
	timer    Timer
	gen      uint64
	dueAt    time.Time
	polling  bool
	running  bool
	ctx      context.Context
	stopped  chan struct{}
	onPolled func(err error)
}

// NewManager creates a Manager. A nil clock means RealClock.
func NewManager(poll PollFunc, clock Clock, logger *zap.Logger) *Manager {
	if clock == nil {
		clock = RealClock
	}
	return &Manager{
		poll:    poll,
		clock:   clock,
		logger:  logger,
		watches: make(map[string]registration),
	}
}

// OnPolled registers a callback invoked after every poll with its result.
func (m *Manager) OnPolled(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPolled = fn
}

// watchKey keys registrations by entry id, like the page's entry collection.
func watchKey(e page.Entry) string {
	return e.ID()
}

// Watch registers entry to be checked at least every period. Registering an
// entry again replaces its period.
func (m *Manager) Watch(entry page.Entry, period time.Duration) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.watches[watchKey(entry)] = registration{entry: entry, period: period}
	m.period = m.minPeriod()

	if !m.running || m.polling {
		return nil
	}

	if m.timer == nil {
		m.arm()
		return nil
	}

	// A shorter period that would fire before the pending timer replaces it.
	if m.clock.Now().Add(m.period).Before(m.dueAt) {
		m.timer.Stop()
		m.arm()
	}
	return nil
}

// Unwatch removes entry. Removing the last watcher cancels any pending poll.
func (m *Manager) Unwatch(entry page.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.watches, watchKey(entry))
	if len(m.watches) == 0 {
		m.cancel()
		m.period = 0
		return
	}
	m.period = m.minPeriod()
}

// Period returns the current effective poll period, or zero when nothing is
// watched.
func (m *Manager) Period() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.period
}

// Len returns the number of watched entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watches)
}

// Scheduled reports whether a poll timer is pending.
func (m *Manager) Scheduled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Query returns the entries query for the current watch set.
func (m *Manager) Query() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.query()
}

// Start begins scheduling polls until ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.ctx = ctx
	stopped := make(chan struct{})
	m.stopped = stopped
	if len(m.watches) > 0 {
		m.arm()
	}
	m.mu.Unlock()

	m.logger.Info("watch manager started",
		zap.Int("watches", m.Len()),
		zap.Duration("period", m.Period()),
	)

	// Only this run's context may stop it; Stop releases the goroutine.
	go func() {
		select {
		case <-ctx.Done():
			m.stopRun(stopped)
		case <-stopped:
		}
	}()
}

// Stop cancels any pending poll. An in-flight poll finishes but is not
// rescheduled.
func (m *Manager) Stop() {
	m.stopRun(nil)
}

// stopRun stops the current run. A non-nil run only matches the run it was
// started with.
func (m *Manager) stopRun(run chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || (run != nil && run != m.stopped) {
		return
	}
	m.running = false
	m.cancel()
	close(m.stopped)
	m.stopped = nil
	m.logger.Info("watch manager stopped")
}

func (m *Manager) minPeriod() time.Duration {
	var p time.Duration
	for _, w := range m.watches {
		if p == 0 || w.period < p {
			p = w.period
		}
	}
	return p
}

func (m *Manager) query() string {
	entries := make([]page.Entry, 0, len(m.watches))
	for _, w := range m.watches {
		entries = append(entries, w.entry)
	}
	return EntriesQuery(entries)
}

// arm schedules the next poll. Callers hold mu.
func (m *Manager) arm() {
	m.gen++
	gen := m.gen
	m.dueAt = m.clock.Now().Add(m.period)
	m.timer = m.clock.AfterFunc(m.period, func() { m.tick(gen) })
}

// cancel clears the pending timer. Callers hold mu.
func (m *Manager) cancel() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.gen++
	m.timer = nil
	m.dueAt = time.Time{}
}

func (m *Manager) tick(gen uint64) {
	m.mu.Lock()
	// A timer replaced or cancelled after it fired must not poll.
	if gen != m.gen || !m.running || len(m.watches) == 0 {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.dueAt = time.Time{}
	m.polling = true
	ctx := m.ctx
	q := m.query()
	m.mu.Unlock()

	telemetry.Incr(telemetry.MetricPolls)
	err := m.poll(ctx, q)
	if err != nil {
		telemetry.Incr(telemetry.MetricPollErrors)
		m.logger.Warn("poll failed",
			zap.String("entries", q),
			zap.Error(err),
		)
	}

	m.mu.Lock()
	m.polling = false
	if m.running && len(m.watches) > 0 {
		m.arm()
	}
	onPolled := m.onPolled
	m.mu.Unlock()

	if onPolled != nil {
		onPolled(err)
	}
}
