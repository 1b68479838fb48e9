package watch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/telemetry"
	"github.com/dgnsrekt/reviewsync/internal/update"
)

// UpdateFetcher retrieves an update payload.
type UpdateFetcher interface {
	FetchUpdates(ctx context.Context, url string) ([]byte, error)
}

// Poller fetches update payloads and feeds them through a processor to an
// apply function. Its Poll method is a PollFunc.
type Poller struct {
	fetcher   UpdateFetcher
	updateURL string
	processor *update.Processor
	apply     update.ApplyFunc
	logger    *zap.Logger
}

// NewPoller creates a Poller for the endpoint at updateURL.
func NewPoller(fetcher UpdateFetcher, updateURL string, processor *update.Processor, apply update.ApplyFunc, logger *zap.Logger) *Poller {
	return &Poller{
		fetcher:   fetcher,
		updateURL: updateURL,
		processor: processor,
		apply:     apply,
		logger:    logger,
	}
}

// URL returns the poll URL for an entries query. An empty query polls page
// components only.
func (p *Poller) URL(entriesQuery string) string {
	if entriesQuery == "" {
		return p.updateURL
	}
	sep := "?"
	if strings.Contains(p.updateURL, "?") {
		sep = "&"
	}
	return p.updateURL + sep + url.Values{"entries": {entriesQuery}}.Encode()
}

// Poll fetches and applies one update payload.
func (p *Poller) Poll(ctx context.Context, entriesQuery string) error {
	payload, err := p.fetcher.FetchUpdates(ctx, p.URL(entriesQuery))
	if err != nil {
		return fmt.Errorf("fetching updates: %w", err)
	}
	_, err = p.Handle(ctx, payload, "poll")
	return err
}

// Handle applies an update payload received by any transport.
func (p *Poller) Handle(ctx context.Context, payload []byte, source string) (update.Summary, error) {
	telemetry.Sample(telemetry.MetricPayloadBytes, float32(len(payload)), telemetry.LabelSource.M(source))

	summary, err := p.processor.Process(ctx, payload, p.apply)
	if err != nil {
		return summary, fmt.Errorf("processing update payload: %w", err)
	}

	p.logger.Debug("update payload processed",
		telemetry.LabelSource.L(source),
		zap.Int("records", summary.Records),
		zap.Int("applied", summary.Applied),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}
