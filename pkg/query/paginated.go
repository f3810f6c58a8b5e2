package query

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/castwave/client/pkg/observability"
)

// Pages is the cached aggregate of a paginated query. Pages and Params are
// index aligned: Params[i] is the cursor Pages[i] was fetched with.
type Pages[T any] struct {
	Pages  []T   `json:"pages"`
	Params []any `json:"pageParams"`
}

// Len returns the number of loaded pages.
func (p Pages[T]) Len() int {
	return len(p.Pages)
}

// Last returns the most recently appended page.
func (p Pages[T]) Last() (T, bool) {
	var zero T

	if len(p.Pages) == 0 {
		return zero, false
	}

	return p.Pages[len(p.Pages)-1], true
}

func (p Pages[T]) append(page T, param any) Pages[T] {
	return Pages[T]{
		Pages:  append(slices.Clone(p.Pages), page),
		Params: append(slices.Clone(p.Params), param),
	}
}

// PaginatedOptions configures a Paginated binding.
type PaginatedOptions[T any] struct {
	Disabled  bool
	StaleTime time.Duration
	// InitialPageParam is the cursor of the first page.
	InitialPageParam any
	// FetchPage loads one page. When nil, PageKey builds a request key that is
	// handed to the store's default fetcher.
	FetchPage func(ctx context.Context, key string, param any) (T, error)
	PageKey   func(key string, param any) string
	// GetNextPageParam returns the cursor after last, or false when there are
	// no more pages.
	GetNextPageParam func(last T, all []T) (any, bool)

	OnChange func(PaginatedState[T])
	OnError  func(error)
}

// PaginatedState is the consumer view of a paginated query.
type PaginatedState[T any] struct {
	Key         string
	Data        Pages[T]
	Err         error
	Status      Status
	IsLoading   bool
	IsFetching  bool
	HasNextPage bool
}

// Paginated accumulates pages for one key into a single record. Each page is
// appended to the cached aggregate, never replacing it. Invalidating the key
// reloads the first page only.
type Paginated[T any] struct {
	store *Store
	key   string
	opts  PaginatedOptions[T]

	mu          sync.Mutex
	unsubscribe func()
	closed      bool
	evaluated   bool
	prevStale   bool
}

// BindPaginated subscribes to key and loads the first page when nothing is
// cached.
func BindPaginated[T any](store *Store, key string, opts PaginatedOptions[T]) *Paginated[T] {
	p := &Paginated[T]{
		store: store,
		key:   key,
		opts:  opts,
	}

	store.SetFetcher(key, p.fetchFirst)
	p.unsubscribe = store.Subscribe(key, p.onRecord)

	p.evaluate()

	return p
}

// DefaultPageKey adds the cursor to key as the "page" query parameter.
func DefaultPageKey(key string, param any) string {
	if param == nil {
		return key
	}

	sep := "?"
	if strings.Contains(key, "?") {
		sep = "&"
	}

	return key + sep + "page=" + url.QueryEscape(fmt.Sprint(param))
}

// State evaluates the binding and returns the current aggregate.
func (p *Paginated[T]) State() PaginatedState[T] {
	return p.stateOf(p.evaluate())
}

// HasNextPage reports whether FetchNextPage would issue a request.
func (p *Paginated[T]) HasNextPage() bool {
	_, ok := p.next(p.pages())

	return ok
}

// FetchNextPage loads the page after the last one and appends it to the
// aggregate cached when the page arrives. With no pages loaded it fetches the
// first page. It returns the aggregate and whether this call fetched a page;
// when GetNextPageParam reports no more pages nothing is fetched. A call made
// while another fetch of the key is running joins that fetch and reports
// false.
func (p *Paginated[T]) FetchNextPage(ctx context.Context) (Pages[T], bool, error) {
	cur := p.pages()

	param, ok := p.next(cur)
	if !ok {
		return cur, false, nil
	}

	var requested atomic.Bool

	val, err := p.store.Fetch(ctx, p.key, func(ctx context.Context, key string) (any, error) {
		requested.Store(true)

		page, err := p.fetchPage(ctx, param)
		if err != nil {
			return nil, err
		}

		return p.pages().append(page, param), nil
	})
	if err != nil {
		if p.opts.OnError != nil {
			p.opts.OnError(err)
		}

		return p.pages(), requested.Load(), err
	}

	out, err := As[Pages[T]](val)
	if err != nil {
		return cur, requested.Load(), err
	}

	return out, requested.Load(), nil
}

// Refetch drops accumulated pages and reloads the first page.
func (p *Paginated[T]) Refetch(ctx context.Context) (Pages[T], error) {
	val, err := p.store.Fetch(ctx, p.key, nil)
	if err != nil {
		if p.opts.OnError != nil {
			p.opts.OnError(err)
		}

		return Pages[T]{}, err
	}

	return As[Pages[T]](val)
}

// Close unsubscribes the binding.
func (p *Paginated[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	p.unsubscribe()
}

func (p *Paginated[T]) next(cur Pages[T]) (any, bool) {
	last, ok := cur.Last()
	if !ok {
		return p.opts.InitialPageParam, true
	}

	if p.opts.GetNextPageParam == nil {
		return nil, false
	}

	param, ok := p.opts.GetNextPageParam(last, cur.Pages)
	if !ok || param == nil {
		return nil, false
	}

	return param, true
}

func (p *Paginated[T]) pages() Pages[T] {
	rec, _ := p.store.GetRecord(p.key)

	return p.pagesOf(rec)
}

func (p *Paginated[T]) fetchFirst(ctx context.Context, _ string) (any, error) {
	page, err := p.fetchPage(ctx, p.opts.InitialPageParam)
	if err != nil {
		return nil, err
	}

	return Pages[T]{}.append(page, p.opts.InitialPageParam), nil
}

func (p *Paginated[T]) fetchPage(ctx context.Context, param any) (T, error) {
	var zero T

	page, err := p.loadPage(ctx, param)
	if err != nil {
		observability.RecordPage("error")
		return zero, err
	}

	observability.RecordPage("success")

	return page, nil
}

func (p *Paginated[T]) loadPage(ctx context.Context, param any) (T, error) {
	if p.opts.FetchPage != nil {
		return p.opts.FetchPage(ctx, p.key, param)
	}

	var zero T

	pageKey := DefaultPageKey
	if p.opts.PageKey != nil {
		pageKey = p.opts.PageKey
	}

	if p.store.fetcher == nil {
		return zero, fmt.Errorf("%w: %s", ErrNoFetcher, p.key)
	}

	val, err := p.store.fetcher(ctx, pageKey(p.key, param))
	if err != nil {
		return zero, err
	}

	return As[T](val)
}

// evaluate loads the first page when the binding is enabled, nothing is
// cached and the record has turned stale since the last evaluation.
func (p *Paginated[T]) evaluate() Record {
	p.mu.Lock()
	rec, _ := p.store.GetRecord(p.key)

	if p.closed {
		p.mu.Unlock()
		return rec
	}

	stale := rec.IsStale(p.opts.StaleTime, p.store.Now())
	empty := !rec.HasData() || p.pagesOf(rec).Len() == 0
	trigger := !p.opts.Disabled && stale && empty && rec.Status != StatusLoading &&
		(!p.evaluated || !p.prevStale)
	p.evaluated = true
	p.prevStale = stale
	p.mu.Unlock()

	if !trigger {
		return rec
	}

	c := p.store.start(p.key, nil)
	go func() {
		<-c.done

		if c.err != nil && p.opts.OnError != nil {
			p.opts.OnError(c.err)
		}
	}()

	rec, _ = p.store.GetRecord(p.key)

	return rec
}

func (p *Paginated[T]) onRecord(rec Record) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return
	}

	p.evaluate()

	if p.opts.OnChange != nil {
		p.opts.OnChange(p.stateOf(rec))
	}
}

func (p *Paginated[T]) pagesOf(rec Record) Pages[T] {
	if !rec.HasData() {
		return Pages[T]{}
	}

	out, err := As[Pages[T]](rec.Data)
	if err != nil {
		return Pages[T]{}
	}

	return out
}

func (p *Paginated[T]) stateOf(rec Record) PaginatedState[T] {
	data := p.pagesOf(rec)
	_, hasNext := p.next(data)

	status := rec.Status
	if status == "" {
		status = StatusIdle
	}

	return PaginatedState[T]{
		Key:         p.key,
		Data:        data,
		Err:         rec.Err,
		Status:      status,
		IsLoading:   rec.Status == StatusLoading && data.Len() == 0,
		IsFetching:  rec.Status == StatusLoading,
		HasNextPage: hasNext,
	}
}
