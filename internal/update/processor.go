package update

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/telemetry"
	"github.com/dgnsrekt/reviewsync/internal/wire"
)

// ApplyFunc applies one decoded record.
type ApplyFunc func(ctx context.Context, u Update, html string) error

// Summary counts what happened to the records of one payload.
type Summary struct {
	Records int
	Applied int
	Failed  int
}

// Processor decodes update payloads and hands each record to an ApplyFunc.
type Processor struct {
	reader      *wire.Reader
	concurrency int
	logger      *zap.Logger

	// OnComplete, when set, is called once per pass after every scanned
	// record has been decoded and applied (or has failed).
	OnComplete func(Summary)
}

// NewProcessor creates a Processor. concurrency <= 0 means unbounded.
func NewProcessor(mat *wire.Materializer, concurrency int, logger *zap.Logger) *Processor {
	return &Processor{
		reader:      wire.NewReader(wire.UpdateSchema, mat),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Pass is one in-flight run over a payload.
type Pass struct {
	mu        sync.Mutex
	records   int
	completed int
	failed    int
	scanDone  bool

	done       chan struct{}
	onComplete func(Summary)
	tasks      *pool.ErrorPool
}

// Done is closed once scanning has finished and every scanned record has
// completed.
func (p *Pass) Done() <-chan struct{} {
	return p.done
}

// Records returns the number of records found by the scan.
func (p *Pass) Records() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records
}

// Wait blocks until the pass completes and returns the joined per-record errors.
func (p *Pass) Wait() (Summary, error) {
	var err error
	if p.tasks != nil {
		err = p.tasks.Wait()
	}
	<-p.done
	return p.summary(), err
}

func (p *Pass) summary() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Summary{
		Records: p.records,
		Applied: p.completed - p.failed,
		Failed:  p.failed,
	}
}

// complete records one finished record and fires completion when the last
// one arrives.
func (p *Pass) complete(ok bool) {
	p.mu.Lock()
	p.completed++
	if !ok {
		p.failed++
	}
	fire := p.scanDone && p.completed == p.records
	p.mu.Unlock()

	if fire {
		p.finish()
	}
}

func (p *Pass) finish() {
	if p.onComplete != nil {
		p.onComplete(p.summary())
	}
	close(p.done)
}

// Start scans payload synchronously and starts decoding every record.
// A malformed payload fails the whole pass before anything is applied.
func (pr *Processor) Start(ctx context.Context, payload []byte, apply ApplyFunc) (*Pass, error) {
	var (
		pos      = 0
		scanDone = len(payload) == 0
		records  []wire.Record
	)
	for !scanDone {
		rec, err := pr.reader.ReadRecord(payload, pos)
		if err != nil {
			return nil, fmt.Errorf("scanning update payload: %w", err)
		}
		records = append(records, rec)
		pos = rec.Next
		scanDone = pos >= len(payload)
	}

	pass := &Pass{
		records:    len(records),
		scanDone:   true,
		done:       make(chan struct{}),
		onComplete: pr.OnComplete,
	}

	if len(records) == 0 {
		pass.finish()
		return pass, nil
	}

	tasks := pool.New().WithErrors()
	if pr.concurrency > 0 {
		tasks = tasks.WithMaxGoroutines(pr.concurrency)
	}
	pass.tasks = tasks

	for i, rec := range records {
		tasks.Go(func() error {
			err := pr.safeApplyRecord(ctx, rec, apply)
			pass.complete(err == nil)
			if err != nil {
				pr.logger.Warn("update record failed", zap.Int("record", i), zap.Error(err))
				return fmt.Errorf("record %d: %w", i, err)
			}
			return nil
		})
	}

	return pass, nil
}

// Process runs a full pass and waits for it.
func (pr *Processor) Process(ctx context.Context, payload []byte, apply ApplyFunc) (Summary, error) {
	pass, err := pr.Start(ctx, payload, apply)
	if err != nil {
		return Summary{}, err
	}
	return pass.Wait()
}

// safeApplyRecord turns a panic while decoding or applying into a record
// failure.
func (pr *Processor) safeApplyRecord(ctx context.Context, rec wire.Record, apply ApplyFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Incr(telemetry.MetricRecordsFailed, telemetry.LabelReason.M("panic"))
			err = fmt.Errorf("%w: %v", ErrApplyPanic, r)
		}
	}()
	return pr.applyRecord(ctx, rec, apply)
}

func (pr *Processor) applyRecord(ctx context.Context, rec wire.Record, apply ApplyFunc) error {
	fields, err := rec.Load(ctx)
	if err != nil {
		telemetry.Incr(telemetry.MetricRecordsFailed, telemetry.LabelReason.M("decode"))
		return fmt.Errorf("decoding fields: %w", err)
	}
	if len(fields) < 2 {
		return ErrShortRecord
	}

	u, err := DecodeMetadata(fields[0])
	if err != nil {
		telemetry.Incr(telemetry.MetricRecordsFailed, telemetry.LabelReason.M("metadata"))
		return err
	}
	telemetry.Incr(telemetry.MetricRecordsDecoded)

	if err := apply(ctx, u, fields[1]); err != nil {
		return fmt.Errorf("applying %s update: %w", u.Scope(), err)
	}
	return nil
}
