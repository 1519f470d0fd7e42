// Package query implements the process-wide cache of server collections that
// every fetch populates and every optimistic mutation rewrites.
//
// Entries are addressed by structured Keys and grouped into namespaces by
// Key.Resource. All multi-entry operations (snapshot, speculative write,
// cancel, invalidate) act on whole namespaces so that overlapping views of the
// same data, such as budgets/active and budgets, move in lockstep.
//
// Stored values are treated as immutable: updaters must return new values
// instead of editing the ones they receive. Snapshots rely on this to restore
// entries exactly.
package query

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/log"
)

const (
	DefaultStaleTime  = 30 * time.Second
	DefaultGCTime     = 5 * time.Minute
	DefaultMaxEntries = 256
)

// EventType describes what happened to an entry.
type EventType int

const (
	EventUpdated EventType = iota
	EventInvalidated
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventUpdated:
		return "updated"
	case EventInvalidated:
		return "invalidated"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is delivered to namespace subscribers after every change.
type Event struct {
	Type EventType
	Key  Key
	Data any
}

// Updater rewrites one entry's data. Returning false leaves it untouched.
type Updater func(key Key, data any) (any, bool)

type Options struct {
	StaleTime  time.Duration
	GCTime     time.Duration
	MaxEntries int
	Clock      func() time.Time
	Logger     *log.Logger
}

type entry struct {
	key        Key
	data       any
	hasData    bool
	updatedAt  time.Time
	accessedAt time.Time
	invalid    bool
}

type subscriber struct {
	namespace string
	fn        func(Event)
}

// Store is safe for concurrent use. Every exported method takes the lock
// once, so a sequence performed inside a single call (see Optimistic) cannot
// be interleaved with other callers.
type Store struct {
	mu         sync.Mutex
	staleTime  time.Duration
	gcTime     time.Duration
	maxEntries int
	now        func() time.Time
	logger     *log.Logger

	items    map[string]*list.Element
	lru      *list.List
	gens     map[string]uint64
	inflight map[string]flight
	subs     map[int]subscriber
	nextSub  int
	group    singleflight.Group

	flightSeq uint64
}

type flight struct {
	key Key
	seq uint64
}

func NewStore(opts Options) *Store {
	if opts.StaleTime <= 0 {
		opts.StaleTime = DefaultStaleTime
	}
	if opts.GCTime <= 0 {
		opts.GCTime = DefaultGCTime
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	return &Store{
		staleTime:  opts.StaleTime,
		gcTime:     opts.GCTime,
		maxEntries: opts.MaxEntries,
		now:        opts.Clock,
		logger:     opts.Logger.WithComponent(log.ComponentCache),
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		gens:       make(map[string]uint64),
		inflight:   make(map[string]flight),
		subs:       make(map[int]subscriber),
	}
}

// Read returns the entry's data whether fresh or stale.
func (s *Store) Read(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.touchLocked(key)
	if e == nil || !e.hasData {
		return nil, false
	}
	return e.data, true
}

// Get is a typed Read.
func Get[T any](s *Store, key Key) (T, bool) {
	var zero T
	v, ok := s.Read(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Set stores fresh data under key.
func (s *Store) Set(key Key, data any) {
	s.mu.Lock()
	s.setLocked(key, data)
	events := []Event{{Type: EventUpdated, Key: key, Data: data}}
	s.mu.Unlock()
	s.notify(events)
}

// IsStale reports whether key is missing, invalidated or past the stale time.
func (s *Store) IsStale(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key.id()]
	if !ok {
		return true
	}
	return s.staleLocked(el.Value.(*entry))
}

// Keys lists the keys holding data under the namespaces.
func (s *Store) Keys(namespaces ...string) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []Key
	for el := s.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.hasData && e.key.In(namespaces...) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// WriteMany applies fn to every entry with data under the namespaces and
// returns how many entries changed. Timestamps and staleness are preserved.
func (s *Store) WriteMany(namespaces []string, fn Updater) int {
	s.mu.Lock()
	events := s.writeManyLocked(namespaces, fn)
	s.mu.Unlock()
	s.notify(events)
	return len(events)
}

// Snapshot captures every entry under the namespaces.
func (s *Store) Snapshot(namespaces ...string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(namespaces)
}

// Restore puts every snapshotted entry back exactly as captured, including
// its timestamps and staleness.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	events := make([]Event, 0, len(snap.entries))
	for _, se := range snap.entries {
		e := se.entry
		el, ok := s.items[e.key.id()]
		if !ok {
			el = s.insertLocked(e.key)
		}
		restored := e
		el.Value = &restored
		events = append(events, Event{Type: EventUpdated, Key: e.key, Data: e.data})
	}
	s.mu.Unlock()
	s.notify(events)
}

// Cancel stops trusting every in-flight fetch under the namespaces: their
// results are discarded instead of written. It returns how many keys were
// affected.
func (s *Store) Cancel(namespaces ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(namespaces)
}

// Invalidate marks every entry under the namespaces stale so the next Fetch
// goes to the server.
func (s *Store) Invalidate(namespaces ...string) int {
	s.mu.Lock()
	var events []Event
	for el := s.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if !e.key.In(namespaces...) {
			continue
		}
		e.invalid = true
		events = append(events, Event{Type: EventInvalidated, Key: e.key, Data: e.data})
	}
	s.mu.Unlock()
	s.notify(events)
	return len(events)
}

// Optimistic cancels in-flight fetches, snapshots and applies fn to every
// entry under the namespaces as one uninterrupted step. The returned
// snapshot restores the pre-write state.
func (s *Store) Optimistic(namespaces []string, fn Updater) Snapshot {
	s.mu.Lock()
	s.cancelLocked(namespaces)
	snap := s.snapshotLocked(namespaces)
	events := s.writeManyLocked(namespaces, fn)
	s.mu.Unlock()
	s.notify(events)
	return snap
}

// Remove drops a single entry.
func (s *Store) Remove(key Key) {
	s.mu.Lock()
	el, ok := s.items[key.id()]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.removeElement(el)
	s.mu.Unlock()
	s.notify([]Event{{Type: EventRemoved, Key: key}})
}

// Subscribe registers fn for events under namespace. Entries in namespaces
// with subscribers are never garbage-collected.
func (s *Store) Subscribe(namespace string, fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscriber{namespace: namespace, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// CleanExpired removes entries not read or written within the GC time whose
// namespace has no subscribers, and returns how many were removed.
func (s *Store) CleanExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.gcTime)
	var toRemove []*list.Element
	for el := s.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.accessedAt.Before(cutoff) && !s.watchedLocked(e.key.Resource) {
			if _, busy := s.inflight[e.key.id()]; !busy {
				toRemove = append(toRemove, el)
			}
		}
	}
	for _, el := range toRemove {
		s.removeElement(el)
	}
	return len(toRemove)
}

// Size returns the current number of entries
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) touchLocked(key Key) *entry {
	el, ok := s.items[key.id()]
	if !ok {
		return nil
	}
	e := el.Value.(*entry)
	e.accessedAt = s.now()
	s.lru.MoveToFront(el)
	return e
}

func (s *Store) staleLocked(e *entry) bool {
	return !e.hasData || e.invalid || s.now().Sub(e.updatedAt) >= s.staleTime
}

func (s *Store) setLocked(key Key, data any) {
	el, ok := s.items[key.id()]
	if !ok {
		el = s.insertLocked(key)
	}
	now := s.now()
	el.Value = &entry{
		key:        key,
		data:       data,
		hasData:    true,
		updatedAt:  now,
		accessedAt: now,
	}
	s.lru.MoveToFront(el)
}

func (s *Store) insertLocked(key Key) *list.Element {
	el := s.lru.PushFront(&entry{key: key, accessedAt: s.now()})
	s.items[key.id()] = el

	// Evict if over capacity
	for s.lru.Len() > s.maxEntries {
		oldest := s.lru.Back()
		if oldest == nil || oldest == el {
			break
		}
		s.removeElement(oldest)
	}
	return el
}

func (s *Store) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	delete(s.items, e.key.id())
	s.lru.Remove(el)
}

func (s *Store) writeManyLocked(namespaces []string, fn Updater) []Event {
	var events []Event
	for el := s.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if !e.hasData || !e.key.In(namespaces...) {
			continue
		}
		next, changed := fn(e.key, e.data)
		if !changed {
			continue
		}
		updated := *e
		updated.data = next
		el.Value = &updated
		events = append(events, Event{Type: EventUpdated, Key: e.key, Data: next})
	}
	return events
}

func (s *Store) snapshotLocked(namespaces []string) Snapshot {
	var snap Snapshot
	for el := s.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.key.In(namespaces...) {
			snap.entries = append(snap.entries, snapshotEntry{entry: *e})
		}
	}
	return snap
}

func (s *Store) cancelLocked(namespaces []string) int {
	affected := map[string]struct{}{}
	for id, f := range s.inflight {
		if f.key.In(namespaces...) {
			affected[id] = struct{}{}
		}
	}
	for id, el := range s.items {
		if el.Value.(*entry).key.In(namespaces...) {
			affected[id] = struct{}{}
		}
	}
	for id := range affected {
		s.gens[id]++
		s.group.Forget(id)
	}
	return len(affected)
}

func (s *Store) watchedLocked(namespace string) bool {
	for _, sub := range s.subs {
		if sub.namespace == namespace {
			return true
		}
	}
	return false
}

func (s *Store) notify(events []Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	subs := make([]subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, ev := range events {
		for _, sub := range subs {
			if sub.namespace == ev.Key.Resource {
				sub.fn(ev)
			}
		}
	}
}

// Snapshot is an opaque copy of a set of entries taken before a speculative
// write.
type Snapshot struct {
	entries []snapshotEntry
}

type snapshotEntry struct {
	entry entry
}

// Len is the number of captured entries.
func (s Snapshot) Len() int {
	return len(s.entries)
}

// Keys lists the captured keys.
func (s Snapshot) Keys() []Key {
	keys := make([]Key, len(s.entries))
	for i, se := range s.entries {
		keys[i] = se.entry.key
	}
	return keys
}
