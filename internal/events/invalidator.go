package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/threads/internal/cache"
	"github.com/alfredjeanlab/threads/internal/logger"
	"github.com/alfredjeanlab/threads/internal/metrics"
)

// Invalidator drops locally cached pages when a peer instance reports a
// mutation. Events from its own origin are ignored; that instance already
// invalidated before publishing.
type Invalidator struct {
	cache  cache.Cache
	origin string
	log    *logger.Logger
}

func NewInvalidator(c cache.Cache, origin string, log *logger.Logger) *Invalidator {
	return &Invalidator{cache: c, origin: origin, log: log.With("component", "invalidator")}
}

// Run consumes TopicCacheInvalidated for every forest until ctx is done or
// the subscription closes.
func (iv *Invalidator) Run(ctx context.Context, sub Subscriber) error {
	ch, cancel, err := sub.Subscribe(TopicFilter(TopicCacheInvalidated))
	if err != nil {
		return fmt.Errorf("invalidator: subscribe: %w", err)
	}
	defer cancel()

	iv.log.Info("invalidator started", "origin", iv.origin)

	for {
		select {
		case <-ctx.Done():
			iv.log.Info("invalidator stopping")
			return nil
		case raw, ok := <-ch:
			if !ok {
				iv.log.Info("invalidator: subscription channel closed")
				return nil
			}

			var event CacheInvalidated
			if err := json.Unmarshal(raw, &event); err != nil {
				iv.log.Warn("invalidator: bad event payload", "err", err)
				continue
			}
			iv.Handle(ctx, event)
		}
	}
}

// Handle purges the event's prefixes and returns how many entries went.
func (iv *Invalidator) Handle(ctx context.Context, event CacheInvalidated) int {
	if event.Origin == iv.origin {
		return 0
	}
	total := 0
	for _, prefix := range event.Prefixes {
		n, err := iv.cache.DeleteByPrefix(ctx, prefix)
		if err != nil {
			metrics.CacheErrors.WithLabelValues("invalidate").Inc()
			iv.log.Warn("invalidator: delete by prefix failed", "prefix", prefix, "err", err)
			continue
		}
		metrics.CacheInvalidations.WithLabelValues("peer").Inc()
		total += n
	}
	iv.log.Debug("peer invalidation applied", "event_id", event.EventID, "from", event.Origin, "removed", total)
	return total
}
