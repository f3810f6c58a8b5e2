package query

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures a Binding.
type Options[T any] struct {
	// Disabled suppresses automatic fetching. Refetch still works.
	Disabled bool
	// StaleTime is how long fetched data counts as fresh. Zero means data is
	// stale as soon as it lands.
	StaleTime time.Duration
	// Fetcher replaces the store's default fetcher for this key.
	Fetcher func(ctx context.Context, key string) (T, error)

	OnSuccess func(T)
	OnError   func(error)
	// OnChange runs synchronously on every change to the bound record. It must
	// not wait on a fetch of the same key.
	OnChange func(State[T])
}

// State is what a consumer renders.
type State[T any] struct {
	Key     string
	Data    T
	HasData bool
	Err     error
	Status  Status
	// IsLoading is true while the first fetch runs and there is nothing to show.
	IsLoading bool
	// IsFetching is true during any fetch, including background refreshes.
	IsFetching  bool
	LastUpdated time.Time
}

// Binding subscribes one consumer to one key and decides when to fetch.
type Binding[T any] struct {
	store *Store
	opts  Options[T]
	log   logrus.FieldLogger

	mu          sync.Mutex
	key         string
	enabled     bool
	unsubscribe func()
	closed      bool

	// evaluated and prevStale track the staleness transition that triggers
	// automatic fetches.
	evaluated bool
	prevStale bool

	decodedKey     string
	decodedVersion uint64
	decoded        T
	decodeErr      error
	decodedOK      bool
}

// Bind subscribes to key and evaluates the binding once, which starts a fetch
// when the record is stale.
func Bind[T any](store *Store, key string, opts Options[T]) *Binding[T] {
	b := &Binding[T]{
		store:   store,
		opts:    opts,
		log:     store.log.WithField("binding", key),
		enabled: !opts.Disabled,
	}

	b.mu.Lock()
	b.attachLocked(key)
	b.mu.Unlock()

	b.evaluate()

	return b
}

// Key returns the bound key.
func (b *Binding[T]) Key() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.key
}

// State evaluates the binding and returns the current view of its record.
func (b *Binding[T]) State() State[T] {
	return b.stateOf(b.evaluate())
}

// Refetch fetches the key regardless of staleness and waits for the outcome.
// OnSuccess or OnError runs before Refetch returns.
func (b *Binding[T]) Refetch(ctx context.Context) (T, error) {
	key := b.Key()

	val, err := b.store.Fetch(ctx, key, nil)

	return b.settle(val, err)
}

// SetData writes value to the bound key without touching the network.
func (b *Binding[T]) SetData(value T) {
	b.store.SetData(b.Key(), value)
}

// SetKey rebinds to key. The new key is evaluated as if freshly bound.
func (b *Binding[T]) SetKey(key string) {
	b.mu.Lock()
	if b.closed || key == b.key {
		b.mu.Unlock()
		return
	}

	b.unsubscribe()
	b.attachLocked(key)
	b.mu.Unlock()

	b.evaluate()
}

// SetEnabled toggles automatic fetching.
func (b *Binding[T]) SetEnabled(enabled bool) {
	b.mu.Lock()
	if b.closed || enabled == b.enabled {
		b.mu.Unlock()
		return
	}

	b.enabled = enabled
	b.evaluated = false
	b.mu.Unlock()

	b.evaluate()
}

// Close unsubscribes the binding. Fetches already started still complete.
func (b *Binding[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	b.unsubscribe()
}

func (b *Binding[T]) attachLocked(key string) {
	b.key = key
	b.evaluated = false

	if b.opts.Fetcher != nil {
		fetch := b.opts.Fetcher
		b.store.SetFetcher(key, func(ctx context.Context, key string) (any, error) {
			return fetch(ctx, key)
		})
	}

	b.unsubscribe = b.store.Subscribe(key, func(rec Record) {
		b.onRecord(rec)
	})
}

// evaluate applies the automatic fetch rule to the current record and returns
// the record as it stands afterwards. The rule fires on first evaluation and
// whenever the record turns stale, never while a fetch is running.
func (b *Binding[T]) evaluate() Record {
	b.mu.Lock()
	if b.closed {
		key := b.key
		b.mu.Unlock()

		rec, _ := b.store.GetRecord(key)

		return rec
	}

	key := b.key
	rec, _ := b.store.GetRecord(key)
	stale := rec.IsStale(b.opts.StaleTime, b.store.Now())
	trigger := b.enabled && stale && rec.Status != StatusLoading &&
		(!b.evaluated || !b.prevStale)
	b.evaluated = true
	b.prevStale = stale
	b.mu.Unlock()

	if !trigger {
		return rec
	}

	c := b.store.start(key, nil)
	go b.await(c)

	rec, _ = b.store.GetRecord(key)

	return rec
}

func (b *Binding[T]) await(c *call) {
	<-c.done

	_, _ = b.settle(c.val, c.err)
}

func (b *Binding[T]) settle(val any, err error) (T, error) {
	var zero T

	if err != nil {
		if b.opts.OnError != nil {
			b.opts.OnError(err)
		}

		return zero, err
	}

	out, err := As[T](val)
	if err != nil {
		b.log.WithError(err).Warn("Failed to decode query result")

		if b.opts.OnError != nil {
			b.opts.OnError(err)
		}

		return zero, err
	}

	if b.opts.OnSuccess != nil {
		b.opts.OnSuccess(out)
	}

	return out, nil
}

func (b *Binding[T]) onRecord(rec Record) {
	b.mu.Lock()
	if b.closed || rec.Key != b.key {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.evaluate()

	if b.opts.OnChange != nil {
		b.opts.OnChange(b.stateOf(rec))
	}
}

func (b *Binding[T]) stateOf(rec Record) State[T] {
	state := State[T]{
		Key:         rec.Key,
		Err:         rec.Err,
		Status:      rec.Status,
		LastUpdated: rec.LastUpdated,
		IsFetching:  rec.Status == StatusLoading,
		IsLoading:   rec.Status == StatusLoading && !rec.HasData(),
		HasData:     rec.HasData(),
	}

	if state.Status == "" {
		state.Status = StatusIdle
	}

	if !rec.HasData() {
		return state
	}

	data, err := b.decode(rec)
	state.Data = data

	if err != nil && state.Err == nil {
		state.Err = err
	}

	return state
}

func (b *Binding[T]) decode(rec Record) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.decodedOK && b.decodedKey == rec.Key && b.decodedVersion == rec.Version {
		return b.decoded, b.decodeErr
	}

	b.decoded, b.decodeErr = As[T](rec.Data)
	b.decodedKey = rec.Key
	b.decodedVersion = rec.Version
	b.decodedOK = true

	return b.decoded, b.decodeErr
}
