package threads

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/threads/internal/metrics"
	"github.com/alfredjeanlab/threads/internal/model"
)

// computeTimeout bounds a shared cache-miss compute.
const computeTimeout = 30 * time.Second

// keyEscaper keeps scope components from forging a ':' separator.
var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// forestPrefix is the prefix every cached page of scope lives under.
func forestPrefix(scope model.Scope) string {
	return "threads:" + keyEscaper.Replace(scope.Type) + ":" + keyEscaper.Replace(scope.ID) + ":"
}

// pageKey names one cached page of scope. extra carries query specific
// parts such as depth or order.
func pageKey(scope model.Scope, op string, req model.PageRequest, extra ...string) string {
	var b strings.Builder
	b.WriteString(forestPrefix(scope))
	b.WriteString(op)
	fmt.Fprintf(&b, ":p%d:n%d", req.Page, req.Items)
	for _, e := range extra {
		b.WriteByte(':')
		b.WriteString(keyEscaper.Replace(e))
	}
	return b.String()
}

func (s *Service) generation(prefix string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[prefix]
}

func (s *Service) bumpGeneration(prefix string) {
	s.genMu.Lock()
	s.generations[prefix]++
	s.genMu.Unlock()
}

// cachedPage serves key from the cache or computes it. Cache failures fall
// back to compute. Concurrent misses on one key within one generation of
// prefix share a single compute, which runs detached from any one caller's
// cancellation. A page computed across a local invalidation of prefix never
// stays in the cache.
func (s *Service) cachedPage(ctx context.Context, query, prefix, key string, compute func(context.Context) (*model.Page, error)) (*model.Page, error) {
	raw, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheErrors.WithLabelValues("get").Inc()
		s.log.Warn("cache get failed", "key", key, "err", err)
	case ok:
		var page model.Page
		if err := json.Unmarshal(raw, &page); err == nil {
			metrics.CacheHits.WithLabelValues(query).Inc()
			return &page, nil
		}
		s.log.Warn("discarding undecodable cache entry", "key", key)
	}
	metrics.CacheMisses.WithLabelValues(query).Inc()

	gen := s.generation(prefix)
	ch := s.flight.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		page, err := compute(fctx)
		if err != nil {
			return nil, err
		}
		s.storePage(fctx, prefix, key, gen, page)
		return page, nil
	})

	select {
	case <-ctx.Done():
		return nil, classify(query, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Page), nil
	}
}

// storePage caches page unless prefix was invalidated since gen. The
// generation is checked again after the write: an invalidation that ran
// while Set was in flight may have purged before the write landed, so the
// entry is removed again.
func (s *Service) storePage(ctx context.Context, prefix, key string, gen uint64, page *model.Page) {
	if s.generation(prefix) != gen {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		s.log.Warn("cache set failed", "key", key, "err", err)
		return
	}
	if s.generation(prefix) == gen {
		return
	}
	if _, err := s.cache.DeleteByPrefix(ctx, key); err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		s.log.Warn("cache delete of stale page failed", "key", key, "err", err)
	}
}
