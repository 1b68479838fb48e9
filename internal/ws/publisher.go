package ws

import (
	"context"

	"go.uber.org/zap"
)

// PayloadBuilder builds the update payload for a review request restricted to
// an entries query.
type PayloadBuilder func(reviewRequestID, entriesQuery string) ([]byte, error)

// Publisher pushes fresh update payloads to subscribers whenever a review
// request changes.
type Publisher struct {
	hub     *Hub
	build   PayloadBuilder
	encoder *Encoder
	changes chan []string
	logger  *zap.Logger
}

// NewPublisher creates a new Publisher.
func NewPublisher(hub *Hub, build PayloadBuilder, logger *zap.Logger) (*Publisher, error) {
	enc, err := NewEncoder()
	if err != nil {
		return nil, err
	}

	return &Publisher{
		hub:     hub,
		build:   build,
		encoder: enc,
		changes: make(chan []string, 16),
		logger:  logger,
	}, nil
}

// Notify queues changed review request ids for publishing. It never blocks;
// when the queue is full the notification is dropped and logged.
func (p *Publisher) Notify(reviewRequestIDs []string) {
	select {
	case p.changes <- reviewRequestIDs:
	default:
		p.logger.Warn("publisher queue full, dropping notification",
			zap.Strings("reviewRequests", reviewRequestIDs),
		)
	}
}

// Run publishes queued changes. Call in a goroutine.
// Returns when context is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("publisher started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("publisher stopping")
			p.encoder.Close()
			return

		case ids := <-p.changes:
			for _, id := range ids {
				p.Publish(id)
			}
		}
	}
}

// Publish sends every subscriber of reviewRequestID its current payload.
// Empty payloads are not sent.
func (p *Publisher) Publish(reviewRequestID string) int {
	if p.hub.GroupSize(reviewRequestID) == 0 {
		return 0
	}

	sent := p.hub.BroadcastEach(reviewRequestID, func(c *Client) []byte {
		payload, err := p.build(reviewRequestID, c.Entries())
		if err != nil {
			p.logger.Debug("failed to build push payload",
				zap.String("reviewRequest", reviewRequestID),
				zap.String("connID", c.ConnID()),
				zap.Error(err),
			)
			return nil
		}
		if len(payload) == 0 {
			return nil
		}
		if c.Compress() {
			return p.encoder.Encode(payload)
		}
		return payload
	})

	p.logger.Debug("published updates",
		zap.String("reviewRequest", reviewRequestID),
		zap.Int("clients", sent),
	)
	return sent
}
