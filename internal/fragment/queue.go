package fragment

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/telemetry"
	"github.com/dgnsrekt/reviewsync/internal/view"
	"github.com/dgnsrekt/reviewsync/internal/wire"
)

// DefaultQueueName is the sequential queue shared by diff fragment loads.
const DefaultQueueName = "diff_fragments"

// DefaultBatchContainerPrefix prefixes a batch key to form the id of the
// element holding that batch (usually one file's diff).
const DefaultBatchContainerPrefix = "file_container_"

// Fetcher retrieves a fragment payload.
type Fetcher interface {
	FetchFragments(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) FetchFragments(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// Options configures a Queue.
type Options struct {
	QueueName            string
	BasePath             string
	ContainerPrefix      string
	BatchContainerPrefix string
	LinesOfContext       []int
	TemplateSerial       string

	// OnError is called when a batch cannot be fetched or decoded.
	OnError func(batchKey string, ids []uint32, err error)
}

type request struct {
	commentID  uint32
	onRendered func()
}

type rendered struct {
	commentID uint32
	html      string
	err       error
}

// Queue coalesces fragment requests by batch key and loads each batch with a
// single fetch. Batches run one at a time on a named FuncQueue. Fragments
// saved with SaveForReuse are rendered from memory once and then forgotten.
type Queue struct {
	opts     Options
	fetcher  Fetcher
	doc      view.Document
	renderer *Renderer
	queues   *Registry
	reader   *wire.Reader
	logger   *zap.Logger

	mu      sync.Mutex
	keys    []string
	pending map[string][]request
	saved   map[uint32]string
}

func NewQueue(opts Options, fetcher Fetcher, doc view.Document, queues *Registry, logger *zap.Logger) *Queue {
	if opts.QueueName == "" {
		opts.QueueName = DefaultQueueName
	}
	if opts.BatchContainerPrefix == "" {
		opts.BatchContainerPrefix = DefaultBatchContainerPrefix
	}
	if queues == nil {
		queues = NewRegistry(logger)
	}
	return &Queue{
		opts:     opts,
		fetcher:  fetcher,
		doc:      doc,
		renderer: NewRenderer(doc, opts.ContainerPrefix, logger),
		queues:   queues,
		reader:   wire.NewReader(wire.FragmentSchema, nil),
		logger:   logger,
		pending:  make(map[string][]request),
		saved:    make(map[uint32]string),
	}
}

// Renderer returns the renderer used for this queue's containers.
func (q *Queue) Renderer() *Renderer { return q.renderer }

// Enqueue records a request for commentID in the batch named batchKey.
// onRendered may be nil.
func (q *Queue) Enqueue(commentID uint32, batchKey string, onRendered func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[batchKey]; !ok {
		q.keys = append(q.keys, batchKey)
	}
	q.pending[batchKey] = append(q.pending[batchKey], request{commentID: commentID, onRendered: onRendered})
}

// SaveForReuse snapshots the current HTML of commentID's container so the next
// load of that comment skips the network. Empty or missing containers are
// not saved.
func (q *Queue) SaveForReuse(commentID uint32) {
	el, ok := q.renderer.Element(commentID)
	if !ok {
		return
	}
	html := el.HTML()
	if html == "" {
		return
	}

	q.mu.Lock()
	q.saved[commentID] = html
	q.mu.Unlock()
}

// Saved reports whether commentID has HTML saved for reuse.
func (q *Queue) Saved(commentID uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.saved[commentID]
	return ok
}

// Pending returns the number of queued requests not yet flushed.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, reqs := range q.pending {
		n += len(reqs)
	}
	return n
}

// Flush schedules one job per batch key on the named queue, followed by a job
// calling onAllDone, and starts the queue. Pending requests are cleared.
func (q *Queue) Flush(ctx context.Context, onAllDone func()) {
	q.mu.Lock()
	keys := q.keys
	pending := q.pending
	q.keys = nil
	q.pending = make(map[string][]request)
	q.mu.Unlock()

	fq := q.queues.Get(q.opts.QueueName)
	for _, key := range keys {
		key, batch := key, pending[key]
		fq.Add(func(next func()) {
			q.loadBatch(ctx, key, batch, next)
		})
	}
	fq.Add(func(next func()) {
		defer next()
		if onAllDone != nil {
			onAllDone()
		}
	})
	fq.Start()
}

// loadBatch renders cached fragments, then fetches the rest in one request.
// next is called on every path.
func (q *Queue) loadBatch(ctx context.Context, key string, batch []request, next func()) {
	defer next()

	misses := q.renderSaved(batch)
	if len(misses) == 0 {
		return
	}

	ids := uniqueIDs(misses)
	if err := ctx.Err(); err != nil {
		q.fail(key, ids, err)
		return
	}

	u := BuildURL(URLOptions{
		BasePath:       q.opts.BasePath,
		LinesOfContext: q.opts.LinesOfContext,
		AllowExpansion: q.allowExpansion(key),
		TemplateSerial: q.opts.TemplateSerial,
	}, ids)

	telemetry.Incr(telemetry.MetricFragmentFetches, telemetry.LabelQueue.M(q.opts.QueueName))
	payload, err := q.fetcher.FetchFragments(ctx, u)
	if err != nil {
		q.fail(key, ids, fmt.Errorf("fetching fragments: %w", err))
		return
	}

	frags, err := q.decode(ctx, payload)
	if err != nil {
		q.fail(key, ids, err)
		return
	}

	callbacks := make(map[uint32][]func(), len(misses))
	for _, r := range misses {
		callbacks[r.commentID] = append(callbacks[r.commentID], r.onRendered)
	}

	for _, f := range frags {
		if f.err != nil {
			q.logger.Warn("could not decode diff fragment",
				zap.Uint32("commentID", f.commentID),
				zap.Error(f.err),
			)
			q.renderer.RenderError(f.commentID)
			continue
		}
		cbs := callbacks[f.commentID]
		delete(callbacks, f.commentID)
		if !q.renderer.Render(f.commentID, f.html, "network") {
			continue
		}
		for _, cb := range cbs {
			if cb != nil {
				cb()
			}
		}
	}

	for id := range callbacks {
		q.logger.Debug("diff fragment missing from response",
			zap.String("batch", key),
			zap.Uint32("commentID", id),
		)
	}
}

// renderSaved renders every request that has saved HTML, consuming the saved
// entry, and returns the requests that still need fetching.
func (q *Queue) renderSaved(batch []request) []request {
	type hit struct {
		req  request
		html string
	}

	var hits []hit
	var misses []request

	q.mu.Lock()
	for _, r := range batch {
		if html, ok := q.saved[r.commentID]; ok {
			delete(q.saved, r.commentID)
			hits = append(hits, hit{req: r, html: html})
			continue
		}
		misses = append(misses, r)
	}
	q.mu.Unlock()

	for _, h := range hits {
		if q.renderer.Render(h.req.commentID, h.html, "cache") && h.req.onRendered != nil {
			h.req.onRendered()
		}
	}
	return misses
}

// decode scans the whole payload before materializing any fragment, so a
// malformed payload renders nothing.
func (q *Queue) decode(ctx context.Context, payload []byte) ([]rendered, error) {
	records, err := q.reader.Scan(payload)
	if err != nil {
		return nil, fmt.Errorf("reading fragment payload: %w", err)
	}

	return iter.Map(records, func(rec *wire.Record) rendered {
		id, err := rec.Uint(0)
		if err != nil {
			return rendered{err: err}
		}
		fields, err := rec.Load(ctx)
		if err != nil {
			return rendered{commentID: id, err: err}
		}
		return rendered{commentID: id, html: fields[0]}
	}), nil
}

func (q *Queue) allowExpansion(key string) bool {
	el, ok := q.doc.Element(q.opts.BatchContainerPrefix + key)
	if !ok {
		return true
	}
	return !el.HasClass(DraftClass)
}

func (q *Queue) fail(key string, ids []uint32, err error) {
	telemetry.Incr(telemetry.MetricFragmentFetchError, telemetry.LabelQueue.M(q.opts.QueueName))
	q.logger.Error("failed to load diff fragments",
		zap.String("batch", key),
		zap.Int("comments", len(ids)),
		zap.Error(err),
	)
	for _, id := range ids {
		q.renderer.RenderError(id)
	}
	if q.opts.OnError != nil {
		q.opts.OnError(key, ids, err)
	}
}

func uniqueIDs(reqs []request) []uint32 {
	seen := make(map[uint32]bool, len(reqs))
	ids := make([]uint32, 0, len(reqs))
	for _, r := range reqs {
		if seen[r.commentID] {
			continue
		}
		seen[r.commentID] = true
		ids = append(ids, r.commentID)
	}
	return ids
}
