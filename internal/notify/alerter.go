package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Alerter turns a stream of poll results into notifications. It alerts once
// when consecutive failures reach the threshold and once more on the first
// success after that.
type Alerter struct {
	notifier  Notifier
	threshold int
	report    Report
	now       func() time.Time
	logger    *zap.Logger

	mu      sync.Mutex
	alerted bool
}

// NewAlerter creates an Alerter for one watched review request.
func NewAlerter(n Notifier, threshold int, reviewRequest, entries string, logger *zap.Logger) *Alerter {
	if threshold < 1 {
		threshold = 1
	}
	return &Alerter{
		notifier:  n,
		threshold: threshold,
		report:    Report{ReviewRequest: reviewRequest, Entries: entries},
		now:       time.Now,
		logger:    logger,
	}
}

// Observe records one poll result and sends a notification when the watch
// crosses into or out of the failing state.
func (a *Alerter) Observe(ctx context.Context, err error) {
	a.mu.Lock()
	var send func() error
	if err != nil {
		if a.report.Failures == 0 {
			a.report.Since = a.now()
		}
		a.report.Failures++
		if !a.alerted && a.report.Failures >= a.threshold {
			a.alerted = true
			report := a.report
			send = func() error { return a.notifier.SendFailure(ctx, report, err) }
		}
	} else {
		if a.alerted {
			report := a.report
			send = func() error { return a.notifier.SendRecovered(ctx, report) }
		}
		a.alerted = false
		a.report.Failures = 0
		a.report.Since = time.Time{}
	}
	a.mu.Unlock()

	if send == nil {
		return
	}
	if err := send(); err != nil {
		a.logger.Warn("failed to send watch notification", zap.Error(err))
	}
}

// Failures returns the current run of consecutive failures.
func (a *Alerter) Failures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report.Failures
}
