package store

import (
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type reviewState struct {
	req       *ReviewRequest
	fragments map[uint32]*Fragment
}

type MemoryStore struct {
	fixture  *Fixture
	requests map[string]*reviewState
	logger   *zap.Logger
}

var _ Store = (*MemoryStore)(nil)

// LoadFixture reads and parses a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}

	var fx Fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	return &fx, nil
}

// NewMemoryStoreFromFile loads a fixture file into a MemoryStore.
func NewMemoryStoreFromFile(path string, logger *zap.Logger) (*MemoryStore, error) {
	fx, err := LoadFixture(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(fx, logger)
}

func NewMemoryStore(fx *Fixture, logger *zap.Logger) (*MemoryStore, error) {
	s := &MemoryStore{
		fixture:  fx,
		requests: make(map[string]*reviewState, len(fx.ReviewRequests)),
		logger:   logger,
	}

	for i := range fx.ReviewRequests {
		req := &fx.ReviewRequests[i]
		if _, ok := s.requests[req.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, req.ID)
		}

		st := &reviewState{req: req, fragments: make(map[uint32]*Fragment, len(req.Fragments))}
		for j := range req.Fragments {
			f := &req.Fragments[j]
			st.fragments[f.CommentID] = f
		}
		s.requests[req.ID] = st

		logger.Info("loaded review request",
			zap.String("reviewRequest", req.ID),
			zap.Int("entries", len(req.Entries)),
			zap.Int("components", len(req.Components)),
			zap.Int("fragments", len(req.Fragments)),
		)
	}

	return s, nil
}

func (m *MemoryStore) get(id string) (*reviewState, error) {
	st, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return st, nil
}

func (m *MemoryStore) Entries(reviewRequestID string, filter map[string][]string) ([]Entry, error) {
	st, err := m.get(reviewRequestID)
	if err != nil {
		return nil, err
	}

	if filter == nil {
		return append([]Entry(nil), st.req.Entries...), nil
	}

	wanted := make(map[string]bool)
	for typeID, ids := range filter {
		for _, id := range ids {
			wanted[EntryKey(typeID, id)] = true
		}
	}

	var out []Entry
	for _, e := range st.req.Entries {
		if wanted[EntryKey(e.Type, e.ID)] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) Components(reviewRequestID string) ([]Component, error) {
	st, err := m.get(reviewRequestID)
	if err != nil {
		return nil, err
	}
	return append([]Component(nil), st.req.Components...), nil
}

func (m *MemoryStore) Fragments(reviewRequestID string, commentIDs []uint32) ([]Fragment, error) {
	st, err := m.get(reviewRequestID)
	if err != nil {
		return nil, err
	}

	out := make([]Fragment, 0, len(commentIDs))
	for _, id := range commentIDs {
		if f, ok := st.fragments[id]; ok {
			out = append(out, *f)
		}
	}
	return out, nil
}

// ReviewRequestIDs returns all loaded review request ids, sorted.
func (m *MemoryStore) ReviewRequestIDs() []string {
	ids := make([]string, 0, len(m.requests))
	for id := range m.requests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *MemoryStore) Fixture() *Fixture {
	return m.fixture
}

func (m *MemoryStore) Close() error {
	m.requests = nil
	return nil
}
