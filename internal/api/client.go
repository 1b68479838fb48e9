package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ContentTypeBinary is the content type of update and fragment payloads.
const ContentTypeBinary = "application/octet-stream"

// Client interface for testability
type Client interface {
	FetchUpdates(ctx context.Context, url string) ([]byte, error)
	FetchFragments(ctx context.Context, url string) ([]byte, error)
	Subscribe(ctx context.Context, url string, handler func(payload []byte)) error
}

type HTTPClient struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	baseURL    string
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	zstd       *zstd.Decoder
	logger     *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

func NewClient(baseURL string, ratePerSec int, timeout, retryDelay time.Duration, retryCount int, logger *zap.Logger) (*HTTPClient, error) {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	if ratePerSec <= 0 {
		ratePerSec = 1
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		retryCount: retryCount,
		retryDelay: retryDelay,
		zstd:       dec,
		logger:     logger,
	}, nil
}

// Close releases the zstd decoder.
func (c *HTTPClient) Close() {
	c.zstd.Close()
}

// Resolve prefixes path-only URLs with the client's base URL.
func (c *HTTPClient) Resolve(url string) string {
	if strings.HasPrefix(url, "/") {
		return c.baseURL + url
	}
	return url
}

// FetchUpdates retrieves an update payload from the poll endpoint.
func (c *HTTPClient) FetchUpdates(ctx context.Context, url string) ([]byte, error) {
	return c.fetchBinary(ctx, url)
}

// FetchFragments retrieves a diff fragment payload.
func (c *HTTPClient) FetchFragments(ctx context.Context, url string) ([]byte, error) {
	return c.fetchBinary(ctx, url)
}

func (c *HTTPClient) fetchBinary(ctx context.Context, rawURL string) ([]byte, error) {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	url := c.Resolve(rawURL)
	c.logger.Debug("requesting", zap.String("url", url))

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Accept", ContentTypeBinary)
		req.Header.Set("Accept-Encoding", "zstd")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrNotFound
		case resp.StatusCode == http.StatusForbidden:
			return nil, ErrForbidden
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		if resp.Header.Get("Content-Encoding") == "zstd" {
			decoded, err := c.zstd.DecodeAll(body, nil)
			if err != nil {
				return nil, fmt.Errorf("decompressing response: %w", err)
			}
			c.logger.Debug("decompressed payload",
				zap.Int("compressed", len(body)),
				zap.Int("size", len(decoded)),
			)
			body = decoded
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Subscribe connects to a push endpoint and calls handler with every binary
// payload until ctx is cancelled or the connection drops.
func (c *HTTPClient) Subscribe(ctx context.Context, rawURL string, handler func(payload []byte)) error {
	url := wsURL(c.Resolve(rawURL))

	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("dialing %s: %w", url, err)
	}
	defer func() { _ = conn.Close() }()

	c.logger.Info("subscribed to updates", zap.String("url", url))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading message: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			c.logger.Debug("ignoring non-binary message", zap.Int("type", msgType))
			continue
		}

		if len(data) > 0 && isZstdFrame(data) {
			decoded, err := c.zstd.DecodeAll(data, nil)
			if err != nil {
				c.logger.Warn("failed to decompress pushed payload", zap.Error(err))
				continue
			}
			data = decoded
		}
		handler(data)
	}
}

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func isZstdFrame(b []byte) bool {
	return len(b) >= 4 && string(b[:4]) == string(zstdMagic)
}

func wsURL(u string) string {
	switch {
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return u
}
