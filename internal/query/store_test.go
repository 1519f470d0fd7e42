package query

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fintrack/internal/log"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(Options{
		StaleTime:  time.Minute,
		GCTime:     10 * time.Minute,
		MaxEntries: 10,
		Clock:      clock.Now,
		Logger:     log.Discard(),
	})
	return s, clock
}

func TestKey(t *testing.T) {
	k := NewKey("budgets", "active")
	if k.String() != "budgets/active" {
		t.Errorf("String() = %q", k.String())
	}
	if !k.In("savings", "budgets") || k.In("transactions") {
		t.Errorf("unexpected namespace membership for %s", k)
	}
	if !k.Equal(NewKey("budgets", "active")) || k.Equal(NewKey("budgets")) {
		t.Errorf("unexpected equality for %s", k)
	}
	if k.Param(0) != "active" || k.Param(3) != "" {
		t.Errorf("unexpected params")
	}
	// Param boundaries are part of identity.
	if NewKey("a", "b/c").id() == NewKey("a", "b", "c").id() {
		t.Errorf("distinct keys share an id")
	}
}

func TestFetchCachesWhileFresh(t *testing.T) {
	s, clock := newTestStore(t)
	key := NewKey("budgets")
	var calls int32
	fetch := func(ctx context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"food"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Fetch(context.Background(), s, key, fetch)
		if err != nil || len(got) != 1 {
			t.Fatalf("Fetch() = %v, %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 server call while fresh, got %d", calls)
	}

	clock.Advance(2 * time.Minute)
	if !s.IsStale(key) {
		t.Fatal("expected entry to be stale after stale time")
	}
	if _, err := Fetch(context.Background(), s, key, fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected refetch after stale time, got %d calls", calls)
	}

	s.Invalidate("budgets")
	if _, err := Fetch(context.Background(), s, key, fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("expected refetch after invalidate, got %d calls", calls)
	}
}

func TestFetchDeduplicatesInFlight(t *testing.T) {
	s, _ := newTestStore(t)
	key := NewKey("transactions", "page", "1")
	release := make(chan struct{})
	var calls int32
	fetch := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Fetch(context.Background(), s, key, fetch)
			if err != nil {
				t.Errorf("Fetch: %v", err)
			}
			results[i] = v
		}(i)
	}
	// Let every goroutine join the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected a single in-flight call, got %d", calls)
	}
	for _, v := range results {
		if v != 42 {
			t.Fatalf("unexpected result %v", results)
		}
	}
}

func TestFetchErrorIsNotCached(t *testing.T) {
	s, _ := newTestStore(t)
	key := NewKey("savings")
	boom := errors.New("boom")

	_, err := Fetch(context.Background(), s, key, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok := s.Read(key); ok {
		t.Fatal("failed fetch must not create data")
	}
}

func TestCancelledFetchDoesNotClobberOptimisticWrite(t *testing.T) {
	s, _ := newTestStore(t)
	key := NewKey("budgets", "active")
	s.Set(key, []string{"old"})
	s.Invalidate("budgets")

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan []string)
	go func() {
		v, err := Fetch(context.Background(), s, key, func(ctx context.Context) ([]string, error) {
			close(started)
			<-release
			return []string{"stale server copy"}, nil
		})
		if err != nil {
			t.Errorf("Fetch: %v", err)
		}
		done <- v
	}()
	<-started

	snap := s.Optimistic([]string{"budgets"}, func(k Key, data any) (any, bool) {
		return append([]string{"optimistic"}, data.([]string)...), true
	})
	if snap.Len() != 1 {
		t.Fatalf("expected 1 snapshotted entry, got %d", snap.Len())
	}

	close(release)
	got := <-done

	want := []string{"optimistic", "old"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("fetch caller got %v, want %v", got, want)
	}
	cached, _ := Get[[]string](s, key)
	if !reflect.DeepEqual(cached, want) {
		t.Fatalf("cancelled fetch overwrote optimistic data: %v", cached)
	}
}

func TestSnapshotRestoreIsExact(t *testing.T) {
	s, clock := newTestStore(t)
	all := NewKey("budgets")
	active := NewKey("budgets", "active")
	other := NewKey("savings")
	s.Set(all, []int{1, 2, 3})
	clock.Advance(5 * time.Second)
	s.Set(active, []int{1, 2})
	s.Set(other, []int{9})
	s.Invalidate("budgets")

	before := s.Records()
	snap := s.Optimistic([]string{"budgets"}, func(k Key, data any) (any, bool) {
		return append([]int{-1}, data.([]int)...), true
	})
	if snap.Len() != 2 {
		t.Fatalf("expected both budget entries captured, got %d", snap.Len())
	}
	if v, _ := Get[[]int](s, all); len(v) != 4 {
		t.Fatalf("expected optimistic write on every entry, got %v", v)
	}
	if v, _ := Get[[]int](s, active); len(v) != 3 {
		t.Fatalf("expected optimistic write on every entry, got %v", v)
	}

	s.Restore(snap)
	after := s.Records()
	if !sameRecords(before, after) {
		t.Fatalf("restore is not exact:\nbefore %+v\nafter  %+v", before, after)
	}
	if !s.IsStale(all) {
		t.Fatal("restore must keep invalidation state")
	}

	// Retrying starts from the restored state.
	s.Optimistic([]string{"budgets"}, func(k Key, data any) (any, bool) {
		return append([]int{-2}, data.([]int)...), true
	})
	if v, _ := Get[[]int](s, all); !reflect.DeepEqual(v, []int{-2, 1, 2, 3}) {
		t.Fatalf("retry did not start from restored state: %v", v)
	}
}

func sameRecords(a, b []Record) bool {
	index := func(rs []Record) map[string]Record {
		m := map[string]Record{}
		for _, r := range rs {
			m[r.Key.String()] = r
		}
		return m
	}
	return reflect.DeepEqual(index(a), index(b))
}

func TestWriteManyTouchesOnlyNamespace(t *testing.T) {
	s, _ := newTestStore(t)
	s.Set(NewKey("budgets"), 1)
	s.Set(NewKey("budgets", "active"), 2)
	s.Set(NewKey("savings"), 3)

	n := s.WriteMany([]string{"budgets"}, func(k Key, data any) (any, bool) {
		return data.(int) * 10, true
	})
	if n != 2 {
		t.Fatalf("expected 2 entries changed, got %d", n)
	}
	if v, _ := Get[int](s, NewKey("savings")); v != 3 {
		t.Fatalf("other namespace changed: %v", v)
	}
	if v, _ := Get[int](s, NewKey("budgets", "active")); v != 20 {
		t.Fatalf("unexpected value %v", v)
	}
}

func TestSubscribeReceivesNamespaceEvents(t *testing.T) {
	s, _ := newTestStore(t)
	var got []Event
	unsubscribe := s.Subscribe("budgets", func(ev Event) {
		got = append(got, ev)
	})

	s.Set(NewKey("budgets"), 1)
	s.Set(NewKey("savings"), 1)
	s.Invalidate("budgets")
	unsubscribe()
	s.Set(NewKey("budgets"), 2)

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %+v", got)
	}
	if got[0].Type != EventUpdated || got[1].Type != EventInvalidated {
		t.Fatalf("unexpected event types %v %v", got[0].Type, got[1].Type)
	}
}

func TestLRUEviction(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 12; i++ {
		s.Set(NewKey("transactions", string(rune('a'+i))), i)
	}
	if s.Size() != 10 {
		t.Fatalf("expected size capped at 10, got %d", s.Size())
	}
	if _, ok := s.Read(NewKey("transactions", "a")); ok {
		t.Fatal("expected oldest entry evicted")
	}
}

func TestCleanExpiredSkipsWatchedNamespaces(t *testing.T) {
	s, clock := newTestStore(t)
	s.Set(NewKey("budgets"), 1)
	s.Set(NewKey("savings"), 2)
	unsubscribe := s.Subscribe("savings", func(Event) {})
	defer unsubscribe()

	clock.Advance(11 * time.Minute)

	m := NewManager(log.Discard())
	m.Register(s)
	if n := m.CleanOnce(); n != 1 {
		t.Fatalf("expected 1 collected entry, got %d", n)
	}
	if _, ok := s.Read(NewKey("savings")); !ok {
		t.Fatal("watched entry was collected")
	}
}

func TestHydrateStartsStale(t *testing.T) {
	s, clock := newTestStore(t)
	key := NewKey("categories", "expense")
	if !s.Hydrate(Record{Key: key, Data: []string{"Food"}, UpdatedAt: clock.Now()}) {
		t.Fatal("expected hydrate to seed entry")
	}
	if !s.IsStale(key) {
		t.Fatal("hydrated entry must be stale")
	}
	if v, ok := Get[[]string](s, key); !ok || v[0] != "Food" {
		t.Fatalf("unexpected hydrated data %v", v)
	}

	s.Set(key, []string{"Fresh"})
	if s.Hydrate(Record{Key: key, Data: []string{"Old"}, UpdatedAt: clock.Now().Add(-time.Hour)}) {
		t.Fatal("older record must not replace newer entry")
	}
}

func TestManagerStartStop(t *testing.T) {
	s, _ := newTestStore(t)
	m := NewManager(log.Discard())
	m.Register(s)
	m.StartCleanup(10 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	m.Stop()
	m.Stop() // second stop is a no-op
}
