// Package service ties the subscription store, the scheduler and the digest
// producer together.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"pr_digest_bot/internal/digest"
	"pr_digest_bot/internal/model"
	"pr_digest_bot/internal/reach"
	"pr_digest_bot/internal/schedule"
	"pr_digest_bot/internal/scheduler"
	"pr_digest_bot/internal/subscription"
)

// Producer renders the digest of a request.
type Producer interface {
	Produce(ctx context.Context, req *model.DigestRequest) (string, error)
}

// Resolver turns filter names into tracker identities.
type Resolver interface {
	ResolveOrg(ctx context.Context, login string) (*model.Org, error)
	Scope(ctx context.Context, org *model.Org) ([]model.Org, error)
	ResolveTeam(ctx context.Context, name string, scope []model.Org) (*model.Team, error)
	ResolveUser(ctx context.Context, login string, scope []model.Org) (*model.User, error)
}

// Query is a digest request as typed by a user, before validation.
type Query struct {
	User string
	Team string
	Org  string
	Cron string
}

// Service owns the process-wide subscription state.
type Service struct {
	store    *subscription.Store
	engine   *scheduler.Engine
	rooms    *reach.Tracker
	producer Producer
	resolver Resolver
	log      *slog.Logger

	out    chan model.Digest
	ctx    context.Context
	cancel context.CancelFunc

	// mu serialises arm and disarm decisions.
	mu sync.Mutex
}

// New creates a Service. Digests from scheduled fires are published on
// Digests until Close.
func New(store *subscription.Store, engine *scheduler.Engine, rooms *reach.Tracker, producer Producer, resolver Resolver, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:    store,
		engine:   engine,
		rooms:    rooms,
		producer: producer,
		resolver: resolver,
		log:      log,
		out:      make(chan model.Digest, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Digests returns the stream of digests produced by scheduled fires.
func (s *Service) Digests() <-chan model.Digest {
	return s.out
}

// Close stops publishing digests. In-flight fires give up delivery.
func (s *Service) Close() {
	s.cancel()
}

// Restore loads persisted subscriptions and arms those whose room is
// already reachable. The rest stay paused until their room is observed.
func (s *Service) Restore(ctx context.Context) error {
	reqs, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore subscriptions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	armed := 0
	for _, r := range reqs {
		if r.Active() || !s.rooms.IsReachable(r.Room) {
			continue
		}
		if err := s.armLocked(r); err != nil {
			return err
		}
		armed++
	}
	s.log.Info("subscriptions restored", "total", len(reqs), "armed", armed)
	return nil
}

// ObserveRoom records activity in room. The first observation of a room
// arms its paused subscriptions; it returns how many were armed.
func (s *Service) ObserveRoom(ctx context.Context, room int64) (int, error) {
	if !s.rooms.MarkReachable(room) {
		return 0, nil
	}
	s.log.Debug("room reachable", "room", room)
	n, err := s.resubscribe(ctx, room)
	if err != nil {
		// Leave the room unseen so the next message retries.
		s.rooms.Forget(room)
		return n, err
	}
	return n, nil
}

func (s *Service) resubscribe(ctx context.Context, room int64) (int, error) {
	reqs, err := s.store.ListRoom(ctx, room)
	if err != nil {
		return 0, fmt.Errorf("resubscribe room %d: %w", room, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	armed := 0
	for _, r := range reqs {
		if r.Active() {
			continue
		}
		if err := s.armLocked(r); err != nil {
			return armed, err
		}
		armed++
	}
	if armed > 0 {
		s.log.Info("subscriptions resumed", "room", room, "count", armed)
	}
	return armed, nil
}

// Build validates q and returns an unsaved request for it.
func (s *Service) Build(ctx context.Context, q Query) (*model.DigestRequest, error) {
	var spec *schedule.Spec
	if strings.TrimSpace(q.Cron) != "" {
		parsed, err := schedule.Parse(q.Cron)
		if err != nil {
			return nil, &ValidationError{Err: err}
		}
		spec = &parsed
	}

	var (
		org  *model.Org
		team *model.Team
		user *model.User
		err  error
	)
	if q.Org != "" {
		if org, err = s.resolver.ResolveOrg(ctx, q.Org); err != nil {
			return nil, classify(err)
		}
	}
	if q.Team != "" || q.User != "" {
		scope, err := s.resolver.Scope(ctx, org)
		if err != nil {
			return nil, classify(err)
		}
		if q.Team != "" {
			if team, err = s.resolver.ResolveTeam(ctx, q.Team, scope); err != nil {
				return nil, classify(err)
			}
		}
		if q.User != "" {
			if user, err = s.resolver.ResolveUser(ctx, q.User, scope); err != nil {
				return nil, classify(err)
			}
		}
	}

	r := model.NewDigestRequest(user, team, org)
	r.Schedule = spec
	return r, nil
}

// Subscribe validates q, persists it for room and arms it when the room is
// reachable.
func (s *Service) Subscribe(ctx context.Context, room int64, requestedBy string, q Query) (*model.DigestRequest, error) {
	r, err := s.Build(ctx, q)
	if err != nil {
		return nil, err
	}

	id, err := s.store.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate id: %w", err)
	}
	r.ID = id
	r.Room = room
	r.RequestedBy = requestedBy

	// Held across save and arm so an Unsubscribe of the new id cannot land
	// in between and leave a job on a removed request.
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Add(ctx, r); err != nil {
		return nil, fmt.Errorf("save subscription: %w", err)
	}
	if s.rooms.IsReachable(room) && !r.Active() {
		if err := s.armLocked(r); err != nil {
			return r, err
		}
	}

	s.log.Info("subscribed", "request_id", r.ID, "room", room, "requested_by", requestedBy)
	return r, nil
}

// Unsubscribe cancels and removes subscription id on behalf of room.
func (s *Service) Unsubscribe(ctx context.Context, room, id int64) (*model.DigestRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Room != room {
		return nil, fmt.Errorf("subscription %d: %w", id, ErrForbidden)
	}

	if _, err := s.store.Remove(ctx, id); err != nil {
		return nil, err
	}
	if r.Active() {
		if err := s.engine.Disarm(r); err != nil {
			return r, err
		}
	}

	s.log.Info("unsubscribed", "request_id", id, "room", room)
	return r, nil
}

// List returns the subscriptions owned by room.
func (s *Service) List(ctx context.Context, room int64) ([]*model.DigestRequest, error) {
	return s.store.ListRoom(ctx, room)
}

// ListAll returns every subscription.
func (s *Service) ListAll(ctx context.Context) ([]*model.DigestRequest, error) {
	return s.store.List(ctx)
}

// Run produces the digest of req now.
func (s *Service) Run(ctx context.Context, req *model.DigestRequest) (string, error) {
	text, err := s.producer.Produce(ctx, req)
	if err != nil {
		return "", &FetchError{RequestID: req.ID, Err: err}
	}
	return text, nil
}

func (s *Service) armLocked(r *model.DigestRequest) error {
	if err := s.engine.Arm(r, func() { s.fire(r) }); err != nil {
		return fmt.Errorf("arm subscription %d: %w", r.ID, err)
	}
	return nil
}

// fire builds the digest of r and publishes it. Failures are published as
// a short message tagged with the request id.
func (s *Service) fire(r *model.DigestRequest) {
	s.log.Debug("digest fired", "request_id", r.ID, "room", r.Room)

	text, err := s.Run(s.ctx, r)
	if err != nil {
		s.log.Error("build digest", "request_id", r.ID, "room", r.Room, "error", err)
		text = fmt.Sprintf("Failed to build digest #%d: %v", r.ID, errors.Unwrap(err))
	}

	select {
	case s.out <- model.Digest{RequestID: r.ID, Room: r.Room, Text: text}:
	case <-s.ctx.Done():
		s.log.Warn("digest dropped", "request_id", r.ID, "reason", "shutting down")
	}
}

// classify marks lookup misses as validation errors; anything else is a
// tracker failure.
func classify(err error) error {
	if errors.Is(err, digest.ErrUnknownOrg) || errors.Is(err, digest.ErrUnknownTeam) || errors.Is(err, digest.ErrUnknownUser) {
		return &ValidationError{Err: err}
	}
	return &FetchError{Err: err}
}
