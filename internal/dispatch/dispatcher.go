package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/page"
	"github.com/dgnsrekt/reviewsync/internal/telemetry"
	"github.com/dgnsrekt/reviewsync/internal/update"
)

// Outcome is what Apply did with an update.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	// OutcomeUnknownTarget: the entry or component is not on this page (yet).
	OutcomeUnknownTarget
	// OutcomeStale: the update is not newer than what the target holds.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeUnknownTarget:
		return "unknown_target"
	case OutcomeStale:
		return "stale"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Dispatcher routes decoded updates to the page model they address.
// Applies are serialized so the page sees one mutation at a time.
// Subscribers of the applying and applied-model phases run under that
// serialization and must not call Apply; applied subscribers run after it is
// released and may.
type Dispatcher struct {
	page   *page.Page
	mu     sync.Mutex
	logger *zap.Logger
}

func New(p *page.Page, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{page: p, logger: logger}
}

// ApplyFunc adapts the dispatcher for update.Processor.
func (d *Dispatcher) ApplyFunc() update.ApplyFunc {
	return func(ctx context.Context, u update.Update, html string) error {
		_, err := d.Apply(ctx, u, html)
		return err
	}
}

// Apply applies one update. Unknown targets and stale updates are dropped
// without error.
func (d *Dispatcher) Apply(ctx context.Context, u update.Update, html string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	applied, outcome, err := d.mutate(u, html)
	d.mu.Unlock()
	if applied == nil {
		return outcome, err
	}

	d.emit(page.PhaseApplied, applied.scopes, applied.event)

	telemetry.Incr(telemetry.MetricUpdatesApplied, telemetry.LabelKind.M(u.Scope()))
	d.logger.Debug("update applied", zap.String("scope", u.Scope()))
	return OutcomeApplied, nil
}

type appliedEvent struct {
	scopes [][]string
	event  page.Event
}

// mutate runs every phase up to the applied notification. Callers hold mu.
func (d *Dispatcher) mutate(u update.Update, html string) (*appliedEvent, Outcome, error) {
	var (
		target page.Model
		scopes [][]string
	)

	switch u := u.(type) {
	case *update.EntryUpdate:
		entry, ok := d.page.Entries().Get(u.EntryID)
		if !ok {
			return nil, d.drop(u, OutcomeUnknownTarget, zap.String("entryID", u.EntryID)), nil
		}
		if u.EntryType != "" && u.EntryType != entry.TypeID() {
			return nil, d.drop(u, OutcomeUnknownTarget,
				zap.String("entryID", u.EntryID),
				zap.String("entryType", entry.TypeID()),
			), nil
		}
		if !u.UpdatedTimestamp.After(entry.UpdatedTimestamp()) {
			return nil, d.drop(u, OutcomeStale,
				zap.String("entryID", u.EntryID),
				zap.Time("incoming", u.UpdatedTimestamp),
				zap.Time("current", entry.UpdatedTimestamp()),
			), nil
		}
		target = entry
		scopes = [][]string{{entry.TypeID()}, {entry.TypeID(), entry.ID()}}

	case *update.ComponentUpdate:
		m, ok := d.page.Component(u.Name)
		if !ok {
			return nil, d.drop(u, OutcomeUnknownTarget), nil
		}
		if !u.UpdatedTimestamp.IsZero() && !u.UpdatedTimestamp.After(m.UpdatedTimestamp()) {
			return nil, d.drop(u, OutcomeStale, zap.Time("incoming", u.UpdatedTimestamp)), nil
		}
		target = m
		scopes = [][]string{{u.Name}}

	default:
		return nil, 0, fmt.Errorf("unhandled update type %T", u)
	}

	d.applyPhases(target, u, scopes)
	return &appliedEvent{
		scopes: scopes,
		event:  page.Event{Update: u, HTML: html, Target: target},
	}, OutcomeApplied, nil
}

func (d *Dispatcher) applyPhases(target page.Model, u update.Update, scopes [][]string) {
	d.emit(page.PhaseApplying, scopes, page.Event{Update: u, Target: target})

	if h, ok := target.(page.BeforeUpdater); ok {
		h.BeforeApplyUpdate(u)
	}

	if m := u.Model(); len(m) > 0 {
		target.MergeAttributes(m)
	}
	if ts := u.Timestamp(); !ts.IsZero() {
		target.SetUpdatedTimestamp(ts)
	}
	d.emit(page.PhaseAppliedModel, scopes, page.Event{Update: u, Target: target})

	if h, ok := target.(page.AfterUpdater); ok {
		h.AfterApplyUpdate(u)
	}
}

func (d *Dispatcher) emit(phase page.Phase, scopes [][]string, ev page.Event) {
	ev.Phase = phase
	for _, scope := range scopes {
		d.page.Events().Emit(page.Topic(phase, scope...), ev)
	}
}

func (d *Dispatcher) drop(u update.Update, o Outcome, fields ...zap.Field) Outcome {
	telemetry.Incr(telemetry.MetricUpdatesDropped, telemetry.LabelReason.M(o.String()))
	d.logger.Debug("update dropped",
		append([]zap.Field{zap.String("scope", u.Scope()), zap.Stringer("reason", o)}, fields...)...)
	return o
}
