package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-metrics"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/config"
	"github.com/dgnsrekt/reviewsync/internal/store"
	"github.com/dgnsrekt/reviewsync/internal/update"
	"github.com/dgnsrekt/reviewsync/internal/wire"
	"github.com/dgnsrekt/reviewsync/internal/ws"
)

const testFixture = `
review_requests:
  - id: "42"
    entries:
      - id: "1"
        type: review
        updated_timestamp: 2024-05-01T12:00:00Z
        model_data:
          shipIt: false
        html: <div>review one</div>
      - id: "2"
        type: review
        updated_timestamp: 2024-05-01T12:00:00Z
        html: <div>review two</div>
    components:
      - name: issue-summary
        updated_timestamp: 2024-05-01T12:00:00Z
        html: <div>issues</div>
    fragments:
      - comment_id: 100
        file_id: "7"
        html: <table>c100</table>
      - comment_id: 101
        file_id: "7"
        html: <table>c101</table>
`

type testEnv struct {
	path   string
	store  *store.ReloadableStore
	hub    *ws.Hub
	server *Server
	http   *httptest.Server
}

func newTestEnv(t *testing.T, cfg *config.ServerConfig) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testFixture), 0o644))

	mem, err := OpenStore(path, logger)
	require.NoError(t, err)
	rs := store.NewReloadableStore(mem)

	if cfg == nil {
		cfg = &config.ServerConfig{Compression: "zstd", WSEnabled: true, TemplateSerial: "s1"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var hub *ws.Hub
	if cfg.WSEnabled {
		hub = ws.NewHub("updates", logger)
		go hub.Run(ctx)
	}

	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	reload := NewReloadManager(rs, path, 10*time.Millisecond, nil, logger)

	srv, err := NewServer(rs, hub, sink, reload, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	hs := httptest.NewServer(NewRouter(srv, logger))
	t.Cleanup(hs.Close)

	return &testEnv{path: path, store: rs, hub: hub, server: srv, http: hs}
}

func get(t *testing.T, url string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decodeUpdates(t *testing.T, payload []byte) []update.Update {
	t.Helper()
	records, err := wire.NewReader(wire.UpdateSchema, nil).Scan(payload)
	require.NoError(t, err)

	var out []update.Update
	for _, rec := range records {
		fields, err := rec.Load(context.Background())
		require.NoError(t, err)
		u, err := update.DecodeMetadata(fields[0])
		require.NoError(t, err)
		out = append(out, u)
	}
	return out
}

func TestGetHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := get(t, env.http.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
	assert.Contains(t, string(body), `"review_requests":1`)
}

func TestGetUpdates_FiltersEntries(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := get(t, env.http.URL+"/r/42/_updates/?entries=review%3A2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, contentTypeBinary, resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Content-Encoding"))

	updates := decodeUpdates(t, body)
	require.Len(t, updates, 2)

	comp, ok := updates[0].(*update.ComponentUpdate)
	require.True(t, ok)
	assert.Equal(t, "issue-summary", comp.Name)

	entry, ok := updates[1].(*update.EntryUpdate)
	require.True(t, ok)
	assert.Equal(t, "2", entry.EntryID)
	assert.Equal(t, "review", entry.EntryType)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), entry.UpdatedTimestamp.UTC())
}

func TestGetUpdates_NoEntriesQuery(t *testing.T) {
	env := newTestEnv(t, nil)

	_, body := get(t, env.http.URL+"/r/42/_updates/", nil)
	updates := decodeUpdates(t, body)
	require.Len(t, updates, 1)
	assert.Equal(t, "issue-summary", updates[0].Scope())
}

func TestGetUpdates_UnknownReviewRequest(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := get(t, env.http.URL+"/r/404/_updates/", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetUpdates_Zstd(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := get(t, env.http.URL+"/r/42/_updates/?entries=review%3A1%2C2", http.Header{"Accept-Encoding": {"zstd"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "zstd", resp.Header.Get("Content-Encoding"))

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	raw, err := dec.DecodeAll(body, nil)
	require.NoError(t, err)

	assert.Len(t, decodeUpdates(t, raw), 3)
}

func TestGetUpdates_CompressionDisabled(t *testing.T) {
	env := newTestEnv(t, &config.ServerConfig{Compression: "none"})

	resp, _ := get(t, env.http.URL+"/r/42/_updates/", http.Header{"Accept-Encoding": {"zstd"}})
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
}

func TestGetFragments(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := get(t, env.http.URL+"/r/42/_fragments/diff-comments/101,999,100/?lines_of_context=3,5&allow_expansion=1&_=s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "immutable")

	records, err := wire.NewReader(wire.FragmentSchema, nil).Scan(body)
	require.NoError(t, err)
	require.Len(t, records, 2)

	id, err := records[0].Uint(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(101), id)

	fields, err := records[1].Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<table>c100</table>", fields[0])
}

func TestGetFragments_InvalidIDs(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := get(t, env.http.URL+"/r/42/_fragments/diff-comments/abc/", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := get(t, env.http.URL+"/debug/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetPush_Disabled(t *testing.T) {
	env := newTestEnv(t, &config.ServerConfig{Compression: "none"})

	resp, _ := get(t, env.http.URL+"/r/42/ws", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPushAfterReload(t *testing.T) {
	env := newTestEnv(t, nil)
	logger := zap.NewNop()

	pub, err := ws.NewPublisher(env.hub, func(id, entries string) ([]byte, error) {
		return BuildUpdatePayload(env.store, id, entries)
	}, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)

	reload := NewReloadManager(env.store, env.path, time.Millisecond, pub.Notify, logger)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/r/42/ws?entries=review%3A1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.GroupSize("42") == 1 }, time.Second, 5*time.Millisecond)

	modified := strings.Replace(testFixture, "<div>review one</div>", "<div>review one, shipped</div>", 1)
	require.NoError(t, os.WriteFile(env.path, []byte(modified), 0o644))

	result, err := reload.Reload(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, []string{"review:1"}, result.Changes[0].Entries)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)

	updates := decodeUpdates(t, payload)
	require.Len(t, updates, 2)
	entry, ok := updates[1].(*update.EntryUpdate)
	require.True(t, ok)
	assert.Equal(t, "1", entry.EntryID)
	assert.True(t, entry.UpdatedTimestamp.After(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestReload_InvalidFixtureKeepsStore(t *testing.T) {
	env := newTestEnv(t, nil)
	reload := NewReloadManager(env.store, env.path, time.Millisecond, nil, zap.NewNop())

	require.NoError(t, os.WriteFile(env.path, []byte("review_requests: [: broken"), 0o644))

	_, err := reload.Reload(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{"42"}, env.store.ReviewRequestIDs())
}
