// Package threads maintains threaded comment forests: it serializes tree
// mutations per commentable, answers paginated and depth-limited queries,
// and keeps cached pages consistent with committed mutations.
package threads

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alfredjeanlab/threads/internal/cache"
	"github.com/alfredjeanlab/threads/internal/events"
	"github.com/alfredjeanlab/threads/internal/idgen"
	"github.com/alfredjeanlab/threads/internal/logger"
	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/store"
)

// DefaultCacheTTL is how long a cached page lives without a mutation.
const DefaultCacheTTL = time.Hour

// Service is the application API over a comment store.
type Service struct {
	store     store.Store
	cache     cache.Cache
	ttl       time.Duration
	publisher events.Publisher
	origin    string
	log       *logger.Logger
	now       func() time.Time
	newID     idgen.Func

	flight singleflight.Group

	// generations counts invalidations per forest prefix; a page computed
	// across an invalidation is returned but not cached.
	genMu       sync.Mutex
	generations map[string]uint64
}

type Option func(*Service)

// WithCache caches read aggregates in c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPublisher emits mutation and invalidation events. origin identifies
// this instance so it can ignore its own invalidations.
func WithPublisher(p events.Publisher, origin string) Option {
	return func(s *Service) {
		s.publisher = p
		s.origin = origin
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs overrides comment ID generation.
func WithIDs(f idgen.Func) Option {
	return func(s *Service) { s.newID = f }
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:       st,
		cache:       cache.NoopCache{},
		ttl:         DefaultCacheTTL,
		publisher:   &events.NoopPublisher{},
		log:         logger.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       idgen.Comment,
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "threads")
	return s
}

// Store returns the underlying store.
func (s *Service) Store() store.Store {
	return s.store
}

// classify passes typed errors through and wraps anything else as a
// *model.StorageError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if model.IsValidation(err) || model.IsNotFound(err) || model.IsConflict(err) ||
		model.IsConsistency(err) || model.IsStorage(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &model.StorageError{Op: op, Err: err}
}

// resultLabel maps an error to the metrics result label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case model.IsValidation(err):
		return "validation"
	case model.IsNotFound(err):
		return "not_found"
	case model.IsConflict(err):
		return "conflict"
	case model.IsConsistency(err):
		return "inconsistent"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}
