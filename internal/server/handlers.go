package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-metrics"
	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/config"
	"github.com/dgnsrekt/reviewsync/internal/fragment"
	"github.com/dgnsrekt/reviewsync/internal/store"
	"github.com/dgnsrekt/reviewsync/internal/telemetry"
	"github.com/dgnsrekt/reviewsync/internal/ws"
)

const contentTypeBinary = "application/octet-stream"

type Server struct {
	store   store.Store
	hub     *ws.Hub
	sink    *metrics.InmemSink
	encoder *ws.Encoder
	reload  *ReloadManager
	config  *config.ServerConfig
	logger  *zap.Logger
}

// NewServer creates a Server. hub, sink and reload may be nil when push,
// metrics or fixture reloading are disabled.
func NewServer(s store.Store, hub *ws.Hub, sink *metrics.InmemSink, reload *ReloadManager, cfg *config.ServerConfig, logger *zap.Logger) (*Server, error) {
	srv := &Server{
		store:  s,
		hub:    hub,
		sink:   sink,
		reload: reload,
		config: cfg,
		logger: logger,
	}
	if cfg.Compression == "zstd" {
		enc, err := ws.NewEncoder()
		if err != nil {
			return nil, err
		}
		srv.encoder = enc
	}
	return srv, nil
}

// Close releases the response encoder.
func (s *Server) Close() {
	if s.encoder != nil {
		s.encoder.Close()
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	ReviewRequests int    `json:"review_requests"`
	Push           bool   `json:"push"`
	PushGroups     int    `json:"push_groups"`
	Compression    string `json:"compression"`
	LoadedAt       string `json:"loaded_at,omitempty"`
	IsReloading    bool   `json:"is_reloading"`
}

// GetHealth reports server status.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:         "ok",
		ReviewRequests: len(s.store.ReviewRequestIDs()),
		Push:           s.hub != nil,
		Compression:    s.config.Compression,
	}
	if s.hub != nil {
		resp.PushGroups = len(s.hub.ActiveGroups())
	}
	if s.reload != nil {
		resp.LoadedAt = s.reload.LoadedAt().UTC().Format("2006-01-02T15:04:05Z")
		resp.IsReloading = s.reload.IsReloading()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetUpdates serves the update payload for the watched entries of a review
// request.
func (s *Server) GetUpdates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reviewRequestID")
	entries := r.URL.Query().Get("entries")

	s.logger.Debug("updates request",
		zap.String("reviewRequest", id),
		zap.String("entries", entries),
	)

	payload, err := BuildUpdatePayload(s.store, id, entries)
	if err != nil {
		s.writeStoreError(w, id, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	s.writeBinary(w, r, payload)
}

// GetFragments serves the diff fragments for a comma separated list of
// comment ids.
func (s *Server) GetFragments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reviewRequestID")
	ids, err := fragment.ParseIDs(chi.URLParam(r, "commentIDs"))
	if err != nil || len(ids) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid comment ids"})
		return
	}

	q := r.URL.Query()
	s.logger.Debug("fragments request",
		zap.String("reviewRequest", id),
		zap.Int("comments", len(ids)),
		zap.String("linesOfContext", q.Get("lines_of_context")),
		zap.Bool("allowExpansion", q.Get("allow_expansion") == "1"),
	)

	payload, n, err := BuildFragmentPayload(s.store, id, ids)
	if err != nil {
		s.writeStoreError(w, id, err)
		return
	}
	if n < len(ids) {
		s.logger.Debug("some fragments not found",
			zap.String("reviewRequest", id),
			zap.Int("requested", len(ids)),
			zap.Int("found", n),
		)
	}

	// Responses keyed by the current template serial never change.
	if serial := s.config.TemplateSerial; serial != "" && q.Get("_") == serial {
		w.Header().Set("Cache-Control", "max-age=31536000, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	s.writeBinary(w, r, payload)
}

// GetPush upgrades to a websocket subscription for a review request.
func (s *Server) GetPush(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "push is disabled"})
		return
	}

	id := chi.URLParam(r, "reviewRequestID")
	if _, err := s.store.Components(id); err != nil {
		s.writeStoreError(w, id, err)
		return
	}
	s.hub.HandleWS(w, r, id)
}

// GetMetrics dumps the in-memory metrics sink.
func (s *Server) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "metrics are disabled"})
		return
	}
	summary, err := s.sink.DisplayMetrics(w, r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "review request " + id + " not found"})
		return
	}
	s.logger.Error("store error", zap.String("reviewRequest", id), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// writeBinary writes a payload, compressing it when the client accepts zstd.
func (s *Server) writeBinary(w http.ResponseWriter, r *http.Request, payload []byte) {
	telemetry.Sample(telemetry.MetricPayloadBytes, float32(len(payload)), telemetry.LabelSource.M("server"))

	w.Header().Set("Content-Type", contentTypeBinary)
	w.Header().Add("Vary", "Accept-Encoding")
	if s.encoder != nil && acceptsZstd(r) && len(payload) > 0 {
		payload = s.encoder.Encode(payload)
		w.Header().Set("Content-Encoding", "zstd")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func acceptsZstd(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if enc == "zstd" {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
