package query

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/log"
)

// Fetcher loads one collection from the server.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Fetch returns the cached value for key while it is fresh, and otherwise
// calls fn. Concurrent fetches of the same key share one call. A result that
// arrives after the key was cancelled is not written; the caller receives the
// current cached value instead (which may be an optimistic write), or the
// fetched value when nothing is cached.
func Fetch[T any](ctx context.Context, s *Store, key Key, fn Fetcher[T]) (T, error) {
	var zero T
	if v, ok := s.fresh(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}

	v, err := s.fetch(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry %s holds %T", key, v)
	}
	return t, nil
}

// Refetch ignores freshness and always calls fn.
func Refetch[T any](ctx context.Context, s *Store, key Key, fn Fetcher[T]) (T, error) {
	s.Invalidate(key.Resource)
	return Fetch(ctx, s, key, fn)
}

func (s *Store) fresh(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.touchLocked(key)
	if e == nil || s.staleLocked(e) {
		return nil, false
	}
	return e.data, true
}

func (s *Store) fetch(ctx context.Context, key Key, fn func(context.Context) (any, error)) (any, error) {
	id := key.id()
	ch := s.group.DoChan(id, func() (any, error) {
		s.mu.Lock()
		gen := s.gens[id]
		s.flightSeq++
		seq := s.flightSeq
		s.inflight[id] = flight{key: key, seq: seq}
		s.mu.Unlock()

		start := s.now()
		v, err := fn(ctx)

		s.mu.Lock()
		if cur, ok := s.inflight[id]; ok && cur.seq == seq {
			delete(s.inflight, id)
		}
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if s.gens[id] != gen {
			// Cancelled while in flight.
			var current any = v
			if el, ok := s.items[id]; ok && el.Value.(*entry).hasData {
				current = el.Value.(*entry).data
			}
			s.mu.Unlock()
			s.logger.DebugContext(ctx, "Discarded cancelled fetch", log.FieldCacheKey, key.String())
			return current, nil
		}
		s.setLocked(key, v)
		s.mu.Unlock()

		s.logger.DebugContext(ctx, "Fetched",
			log.FieldCacheKey, key.String(),
			log.FieldDuration, s.now().Sub(start).Milliseconds())
		s.notify([]Event{{Type: EventUpdated, Key: key, Data: v}})
		return v, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Record is a cache entry exported for persistence.
type Record struct {
	Key       Key
	Data      any
	UpdatedAt time.Time
}

// Records exports every entry holding data, most recently used first.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.items))
	for el := s.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.hasData {
			out = append(out, Record{Key: e.key, Data: e.data, UpdatedAt: e.updatedAt})
		}
	}
	return out
}

// Hydrate seeds an entry from persisted state. Hydrated entries are stale so
// they render immediately but refetch on first use. Existing entries that
// are newer are kept.
func (s *Store) Hydrate(rec Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.Key.id()
	if el, ok := s.items[id]; ok {
		if e := el.Value.(*entry); e.hasData && !e.updatedAt.Before(rec.UpdatedAt) {
			return false
		}
	}
	el, ok := s.items[id]
	if !ok {
		el = s.insertLocked(rec.Key)
	}
	el.Value = &entry{
		key:        rec.Key,
		data:       rec.Data,
		hasData:    true,
		updatedAt:  rec.UpdatedAt,
		accessedAt: s.now(),
		invalid:    true,
	}
	return true
}
