// Package subscription persists digest requests and allocates their ids.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"pr_digest_bot/internal/model"
	"pr_digest_bot/internal/storage"
)

// Storage keys.
const (
	KeyRequests = "digest-requests"
	KeyNextID   = "digest-requests:next-id"
)

// ErrNotFound is returned when no request matches an id.
var ErrNotFound = errors.New("subscription not found")

// Store is the single in-memory view of persisted digest requests. Every
// mutation is written to durable storage before it returns.
type Store struct {
	kv  storage.Storage
	log *slog.Logger

	mu     sync.Mutex
	loaded bool
	reqs   []*model.DigestRequest
}

// New creates a Store over kv. Nothing is read until Load.
func New(kv storage.Storage, log *slog.Logger) *Store {
	return &Store{kv: kv, log: log}
}

// Load reads the persisted requests. The first call rehydrates them as
// paused requests; later calls return the same live collection.
func (s *Store) Load(ctx context.Context) ([]*model.DigestRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	return s.snapshotLocked(), nil
}

// Add appends r and persists the collection.
func (s *Store) Add(ctx context.Context, r *model.DigestRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return err
	}
	for _, existing := range s.reqs {
		if existing.ID == r.ID {
			return fmt.Errorf("subscription %d already exists", r.ID)
		}
	}

	s.reqs = append(s.reqs, r)
	if err := s.saveLocked(ctx); err != nil {
		s.reqs = s.reqs[:len(s.reqs)-1]
		return err
	}
	return nil
}

// Remove deletes the request with id and persists the collection.
func (s *Store) Remove(ctx context.Context, id int64) (*model.DigestRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}

	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}
	removed := s.reqs[idx]
	prev := s.reqs
	s.reqs = append(append([]*model.DigestRequest(nil), prev[:idx]...), prev[idx+1:]...)
	if err := s.saveLocked(ctx); err != nil {
		s.reqs = prev
		return nil, err
	}
	return removed, nil
}

// Get returns the request with id.
func (s *Store) Get(ctx context.Context, id int64) (*model.DigestRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}
	return s.reqs[idx], nil
}

// List returns every request in insertion order.
func (s *Store) List(ctx context.Context) ([]*model.DigestRequest, error) {
	return s.Load(ctx)
}

// ListRoom returns the requests owned by room.
func (s *Store) ListRoom(ctx context.Context, room int64) ([]*model.DigestRequest, error) {
	all, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.DigestRequest
	for _, r := range all {
		if r.Room == room {
			out = append(out, r)
		}
	}
	return out, nil
}

// NextID allocates a new request id. The counter is persisted before the
// id is returned, so ids are never reused across restarts.
func (s *Store) NextID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	raw, ok, err := s.kv.Get(ctx, KeyNextID)
	if err != nil {
		return 0, fmt.Errorf("read id counter: %w", err)
	}
	if ok {
		current, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse id counter %q: %w", raw, err)
		}
	}

	next := current + 1
	if err := s.kv.Set(ctx, KeyNextID, strconv.FormatInt(next, 10)); err != nil {
		return 0, fmt.Errorf("write id counter: %w", err)
	}
	return next, nil
}

func (s *Store) loadLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	raw, ok, err := s.kv.Get(ctx, KeyRequests)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	if !ok {
		s.reqs = nil
		if err := s.saveLocked(ctx); err != nil {
			return err
		}
		s.loaded = true
		return nil
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return err
	}

	seen := make(map[int64]bool, len(doc.Requests))
	reqs := make([]*model.DigestRequest, 0, len(doc.Requests))
	for _, rec := range doc.Requests {
		if seen[rec.ID] {
			s.log.Warn("skip duplicate subscription", "request_id", rec.ID)
			continue
		}
		r, err := rehydrate(rec)
		if err != nil {
			s.log.Warn("skip invalid subscription", "request_id", rec.ID, "error", err)
			continue
		}
		seen[rec.ID] = true
		reqs = append(reqs, r)
	}

	s.reqs = reqs
	s.loaded = true
	s.log.Info("subscriptions loaded", "count", len(reqs))
	return nil
}

func (s *Store) saveLocked(ctx context.Context) error {
	raw, err := encodeDocument(s.reqs)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, KeyRequests, raw); err != nil {
		return fmt.Errorf("save subscriptions: %w", err)
	}
	return nil
}

func (s *Store) indexLocked(id int64) int {
	for i, r := range s.reqs {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []*model.DigestRequest {
	out := make([]*model.DigestRequest, len(s.reqs))
	copy(out, s.reqs)
	return out
}
