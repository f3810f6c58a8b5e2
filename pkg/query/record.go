package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"
)

// Define static errors
var (
	ErrNoFetcher    = errors.New("no fetcher configured for key")
	ErrFetcherPanic = errors.New("fetcher panicked")
)

// Status is the per-key fetch state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Fetcher loads the value for key.
type Fetcher func(ctx context.Context, key string) (any, error)

// Listener receives a snapshot of a record every time it changes.
type Listener func(Record)

// Record is an immutable snapshot of one cache entry.
type Record struct {
	Key    string
	Data   any
	Err    error
	Status Status
	// LastUpdated is the time of the last successful write; zero means never
	// fetched or invalidated.
	LastUpdated time.Time
	// Version increases on every data write.
	Version   uint64
	Listeners int
}

// HasData reports whether the record holds a value.
func (r Record) HasData() bool {
	return !isEmpty(r.Data)
}

// isEmpty reports whether v carries no value: nil, a typed nil such as a nil
// slice decoded from a JSON null, or a raw JSON null.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}

	if raw, ok := v.(json.RawMessage); ok {
		trimmed := bytes.TrimSpace(raw)
		return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// normalize stores empty values as an untyped nil.
func normalize(v any) any {
	if isEmpty(v) {
		return nil
	}

	return v
}

// IsStale reports whether the record needs fetching under staleTime at now.
// A zero staleTime means data is always stale.
func (r Record) IsStale(staleTime time.Duration, now time.Time) bool {
	if r.LastUpdated.IsZero() || staleTime <= 0 {
		return true
	}

	return now.Sub(r.LastUpdated) > staleTime
}

// PersistedRecord is a record's data as held by a Persister.
type PersistedRecord struct {
	Key       string
	Data      json.RawMessage
	UpdatedAt time.Time
}

// Persister is a second-level store for successful record data.
type Persister interface {
	// Save stores data for key; nil data removes it
	Save(ctx context.Context, key string, data any, updatedAt time.Time) error

	// LoadAll returns every persisted record
	LoadAll(ctx context.Context) ([]PersistedRecord, error)
}

// call is one in-flight fetch shared by every caller of a key.
type call struct {
	done       chan struct{}
	val        any
	err        error
	generation uint64
}

// entry is the mutable state behind a Record. It is only touched with
// Store.mu held.
type entry struct {
	key         string
	data        any
	err         error
	status      Status
	lastUpdated time.Time
	version     uint64
	generation  uint64
	touched     time.Time

	inFlight  *call
	fetcher   Fetcher
	listeners map[uint64]Listener

	queue    []event
	emitting bool
}

type event struct {
	rec  Record
	done chan struct{}
}

func newEntry(key string, now time.Time) *entry {
	return &entry{
		key:       key,
		status:    StatusIdle,
		touched:   now,
		listeners: make(map[uint64]Listener),
	}
}

func (e *entry) snapshot() Record {
	return Record{
		Key:         e.key,
		Data:        e.data,
		Err:         e.err,
		Status:      e.status,
		LastUpdated: e.lastUpdated,
		Version:     e.version,
		Listeners:   len(e.listeners),
	}
}
