// Package query implements the client-side query cache: a keyed store of
// remote data with in-flight de-duplication, staleness windows and per-key
// change notification, plus the bindings consumers use to read from it.
package query

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/castwave/client/pkg/observability"
	"github.com/sirupsen/logrus"
)

// Option configures a Store
type Option func(*Store)

// WithDefaultFetcher sets the fetcher used when neither the caller nor the
// record supplies one. Keys are conventionally request URLs.
func WithDefaultFetcher(f Fetcher) Option {
	return func(s *Store) {
		s.fetcher = f
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithCacheTime enables Evict: records without listeners or an in-flight
// fetch are dropped once untouched for longer than d.
func WithCacheTime(d time.Duration) Option {
	return func(s *Store) {
		s.cacheTime = d
	}
}

// WithGenerationGuard discards a fetch result when SetData wrote the record
// while that fetch was in flight. Off by default: the last settled fetch wins.
func WithGenerationGuard() Option {
	return func(s *Store) {
		s.generationGuard = true
	}
}

// WithPersister writes every data change through to p.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// Store is the cache. It is safe for concurrent use. The zero value is not
// usable; create one with NewStore.
type Store struct {
	log logrus.FieldLogger

	mu             sync.Mutex
	entries        map[string]*entry
	nextListenerID uint64

	fetcher         Fetcher
	persister       Persister
	now             func() time.Time
	cacheTime       time.Duration
	generationGuard bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStore creates an empty store
func NewStore(log logrus.FieldLogger, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Store{
		log:     log.WithField("component", "query_store"),
		entries: make(map[string]*entry),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Close cancels the context handed to fetchers. Pending fetches settle with
// whatever their fetcher returns on cancellation.
func (s *Store) Close() {
	s.cancel()
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// GetRecord returns a snapshot of key. It never fetches and never creates.
func (s *Store) GetRecord(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Record{}, false
	}

	return e.snapshot(), true
}

// Records returns snapshots of every record ordered by key.
func (s *Store) Records() []Record {
	s.mu.Lock()
	out := make([]Record, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.snapshot())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})

	return out
}

// SetData force-writes data for key, marking it fresh and successful, and
// notifies the key's listeners. SetData(key, nil) clears the value.
func (s *Store) SetData(key string, data any) {
	var updatedAt time.Time

	data = normalize(data)

	s.apply(key, func(e *entry) bool {
		e.data = data
		e.err = nil
		e.status = StatusSuccess
		e.lastUpdated = s.now()
		e.version++
		e.generation++
		updatedAt = e.lastUpdated

		return true
	})

	observability.RecordSetData()
	s.persist(key, data, updatedAt)
}

// SetFetcher remembers f as the fetcher for key, used by invalidation and by
// fetches that do not pass their own.
func (s *Store) SetFetcher(key string, f Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entryLocked(key).fetcher = f
}

// Invalidate marks key stale without clearing its data. When the key has
// listeners a fetch starts immediately. Reports whether the key existed.
func (s *Store) Invalidate(key string) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false
	}

	e.lastUpdated = time.Time{}
	e.touched = s.now()
	watched := len(e.listeners) > 0
	s.mu.Unlock()

	observability.RecordInvalidation(watched)
	s.log.WithFields(logrus.Fields{
		"key":     key,
		"refetch": watched,
	}).Debug("Invalidated query")

	if watched {
		s.start(key, nil)
	}

	return true
}

// InvalidateMatching invalidates every key for which match returns true and
// returns the number of keys invalidated.
func (s *Store) InvalidateMatching(match func(key string) bool) int {
	s.mu.Lock()
	keys := make([]string, 0)
	for key := range s.entries {
		if match(key) {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()

	sort.Strings(keys)

	n := 0
	for _, key := range keys {
		if s.Invalidate(key) {
			n++
		}
	}

	return n
}

// InvalidatePrefix invalidates every key starting with prefix.
func (s *Store) InvalidatePrefix(prefix string) int {
	return s.InvalidateMatching(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// Fetch returns the value for key, joining the in-flight fetch when there is
// one. Otherwise it starts a fetch with override, the record's fetcher or the
// default fetcher, in that order. Every listener of key has been notified of
// the outcome before Fetch returns it. Cancelling ctx abandons the wait but
// not the shared fetch.
func (s *Store) Fetch(ctx context.Context, key string, override Fetcher) (any, error) {
	c := s.start(key, override)

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers l for changes to key and returns a function removing
// exactly that registration. The returned function is safe to call more than
// once.
//
// Listeners run synchronously in notification order. They may read from and
// write to the store, but must not block waiting on a fetch of the same key.
func (s *Store) Subscribe(key string, l Listener) func() {
	s.mu.Lock()
	e := s.entryLocked(key)
	s.nextListenerID++
	id := s.nextListenerID
	e.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(e.listeners, id)
			e.touched = s.now()
			s.mu.Unlock()
		})
	}
}

// Evict drops records that have no listeners, no in-flight fetch and have not
// been touched within the cache time. It is a no-op unless WithCacheTime was
// given. Returns the number of records dropped.
func (s *Store) Evict() int {
	if s.cacheTime <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0

	for key, e := range s.entries {
		if len(e.listeners) > 0 || e.inFlight != nil || e.emitting {
			continue
		}

		if now.Sub(e.touched) <= s.cacheTime {
			continue
		}

		delete(s.entries, key)
		n++
	}

	if n > 0 {
		observability.RecordEvictions(n)
		observability.SetRecordCount(len(s.entries))
		s.log.WithField("count", n).Debug("Evicted idle queries")
	}

	return n
}

// Hydrate loads persisted records into keys that have never been fetched, so
// consumers see the last known value while the first fetch runs. Hydrated
// records keep their original timestamp and are subject to normal staleness.
func (s *Store) Hydrate(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}

	records, err := s.persister.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load persisted queries: %w", err)
	}

	n := 0

	for _, rec := range records {
		applied := false

		s.apply(rec.Key, func(e *entry) bool {
			if !e.lastUpdated.IsZero() || e.data != nil || e.inFlight != nil || isEmpty(rec.Data) {
				return false
			}

			e.data = rec.Data
			e.status = StatusSuccess
			e.lastUpdated = rec.UpdatedAt
			e.version++
			applied = true

			return true
		})

		if applied {
			n++
		}
	}

	s.log.WithField("count", n).Info("Hydrated queries from persistent cache")

	return n, nil
}

func (s *Store) entryLocked(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = newEntry(key, s.now())
		s.entries[key] = e
		observability.SetRecordCount(len(s.entries))
	}

	return e
}

// start joins or begins the fetch for key. The loading transition and its
// notification happen before start returns; the fetcher runs on its own
// goroutine.
func (s *Store) start(key string, override Fetcher) *call {
	var (
		c       *call
		fetcher Fetcher
		joined  bool
	)

	s.apply(key, func(e *entry) bool {
		if e.inFlight != nil {
			c = e.inFlight
			joined = true

			return false
		}

		fetcher = override
		if fetcher == nil {
			fetcher = e.fetcher
		}
		if fetcher == nil {
			fetcher = s.fetcher
		}

		e.generation++
		c = &call{done: make(chan struct{}), generation: e.generation}
		e.inFlight = c
		e.status = StatusLoading
		e.err = nil

		return true
	})

	if joined {
		observability.RecordFetchDeduplicated()
		return c
	}

	go s.run(key, c, fetcher)

	return c
}

func (s *Store) run(key string, c *call, fetcher Fetcher) {
	started := time.Now()

	val, err := s.invoke(key, fetcher)
	val = normalize(val)

	var (
		updatedAt time.Time
		written   bool
	)

	delivered := s.apply(key, func(e *entry) bool {
		if e.inFlight == c {
			e.inFlight = nil
		}

		if s.generationGuard && e.generation != c.generation {
			return false
		}

		if err != nil {
			e.err = err
			e.status = StatusError

			return true
		}

		e.data = val
		e.status = StatusSuccess
		e.lastUpdated = s.now()
		e.version++
		updatedAt = e.lastUpdated
		written = true

		return true
	})
	<-delivered

	duration := time.Since(started)
	log := s.log.WithFields(logrus.Fields{
		"key":      key,
		"duration": duration,
	})

	if err != nil {
		observability.RecordFetch("error", duration.Seconds())
		log.WithError(err).Warn("Query fetch failed")
	} else {
		observability.RecordFetch("success", duration.Seconds())
		log.Debug("Query fetched")

		if written {
			s.persist(key, val, updatedAt)
		}
	}

	c.val, c.err = val, err
	close(c.done)
}

func (s *Store) invoke(key string, fetcher Fetcher) (val any, err error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFetcher, key)
	}

	defer func() {
		if r := recover(); r != nil {
			val, err = nil, fmt.Errorf("%w: %v", ErrFetcherPanic, r)
		}
	}()

	return fetcher(s.ctx, key)
}

func (s *Store) persist(key string, data any, updatedAt time.Time) {
	if s.persister == nil {
		return
	}

	if err := s.persister.Save(s.ctx, key, data, updatedAt); err != nil {
		observability.RecordError("query_store", "persist")
		s.log.WithError(err).WithField("key", key).Warn("Failed to persist query")
	}
}

// apply mutates the entry for key under the store lock. When fn reports a
// change, a snapshot is queued for the key's listeners. Events for one key are
// delivered in order by whichever goroutine is currently draining that key's
// queue; the returned channel closes once this event has been delivered.
func (s *Store) apply(key string, fn func(e *entry) bool) <-chan struct{} {
	s.mu.Lock()

	e := s.entryLocked(key)
	if !fn(e) {
		s.mu.Unlock()
		return closedChan
	}

	e.touched = s.now()
	ev := event{rec: e.snapshot(), done: make(chan struct{})}
	e.queue = append(e.queue, ev)

	if e.emitting {
		s.mu.Unlock()
		return ev.done
	}

	e.emitting = true
	s.mu.Unlock()

	s.drain(e)

	return ev.done
}

func (s *Store) drain(e *entry) {
	for {
		s.mu.Lock()
		if len(e.queue) == 0 {
			e.emitting = false
			s.mu.Unlock()

			return
		}

		ev := e.queue[0]
		e.queue = e.queue[1:]
		listeners := listenersLocked(e)
		s.mu.Unlock()

		for _, l := range listeners {
			s.notify(e.key, l, ev.rec)
		}

		close(ev.done)
	}
}

func (s *Store) notify(key string, l Listener, rec Record) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordError("query_store", "listener_panic")
			s.log.WithField("key", key).Errorf("Query listener panicked: %v", r)
		}
	}()

	l(rec)
}

func listenersLocked(e *entry) []Listener {
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.listeners[id])
	}

	return out
}

//nolint:gochecknoglobals // shared pre-closed channel
var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)

	return c
}()
