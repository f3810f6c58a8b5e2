package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/castwave/client/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type page struct {
	Number int   `json:"number"`
	Items  []int `json:"items"`
	Next   int   `json:"next"`
}

// pagedSource serves pages 1..last. A non-nil gate holds every page until it
// is closed; before runs ahead of serving a page.
type pagedSource struct {
	last   int
	calls  atomic.Int32
	fail   atomic.Bool
	gate   chan struct{}
	before func(n int)
}

func (p *pagedSource) FetchPage(_ context.Context, _ string, param any) (page, error) {
	p.calls.Add(1)

	if p.gate != nil {
		<-p.gate
	}

	if p.fail.Load() {
		return page{}, errors.New("page unavailable")
	}

	n, _ := param.(int)

	if p.before != nil {
		p.before(n)
	}

	out := page{Number: n, Items: []int{n * 10, n*10 + 1}}

	if n < p.last {
		out.Next = n + 1
	}

	return out, nil
}

func nextPage(last page, _ []page) (any, bool) {
	if last.Next == 0 {
		return nil, false
	}

	return last.Next, true
}

func TestPaginatedAppendsPagesInLockstep(t *testing.T) {
	src := &pagedSource{last: 3}
	s := newTestStore(t)
	ctx := context.Background()

	p := BindPaginated(s, "GET /podcasts", PaginatedOptions[page]{
		InitialPageParam: 1,
		FetchPage:        src.FetchPage,
		GetNextPageParam: nextPage,
	})
	defer p.Close()

	waitFor(t, func() bool { return p.State().Data.Len() == 1 })
	assert.True(t, p.HasNextPage())

	for want := 2; want <= 3; want++ {
		data, requested, err := p.FetchNextPage(ctx)
		require.NoError(t, err)
		assert.True(t, requested)
		assert.Equal(t, want, data.Len())
	}

	state := p.State()
	require.Len(t, state.Data.Pages, 3)
	require.Len(t, state.Data.Params, 3)

	for i, pg := range state.Data.Pages {
		assert.Equal(t, state.Data.Params[i], pg.Number)
	}

	assert.False(t, state.HasNextPage)

	_, requested, err := p.FetchNextPage(ctx)
	require.NoError(t, err)
	assert.False(t, requested)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestPaginatedFailedPageKeepsAggregate(t *testing.T) {
	src := &pagedSource{last: 5}
	s := newTestStore(t)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		errs []error
	)

	p := BindPaginated(s, "GET /podcasts", PaginatedOptions[page]{
		Disabled:         true,
		InitialPageParam: 1,
		FetchPage:        src.FetchPage,
		GetNextPageParam: nextPage,
		OnError: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		},
	})
	defer p.Close()

	assert.Equal(t, 0, p.State().Data.Len())

	_, _, err := p.FetchNextPage(ctx)
	require.NoError(t, err)

	src.fail.Store(true)
	data, requested, err := p.FetchNextPage(ctx)
	require.Error(t, err)
	assert.True(t, requested)
	assert.Equal(t, 1, data.Len())

	state := p.State()
	assert.Equal(t, StatusError, state.Status)
	assert.Len(t, state.Data.Pages, 1)
	assert.Len(t, state.Data.Params, 1)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, errs, 1)
}

func TestPaginatedInvalidateReloadsFirstPage(t *testing.T) {
	src := &pagedSource{last: 3}
	s := newTestStore(t)
	ctx := context.Background()

	p := BindPaginated(s, "GET /podcasts", PaginatedOptions[page]{
		InitialPageParam: 1,
		FetchPage:        src.FetchPage,
		GetNextPageParam: nextPage,
	})
	defer p.Close()

	waitFor(t, func() bool { return p.State().Data.Len() == 1 })

	_, _, err := p.FetchNextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.State().Data.Len())

	require.True(t, s.Invalidate("GET /podcasts"))

	waitFor(t, func() bool {
		state := p.State()
		return state.Status == StatusSuccess && state.Data.Len() == 1
	})

	assert.Equal(t, []any{1}, p.State().Data.Params)
}

func TestPaginatedAppendsToLatestAggregate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "GET /podcasts"

	src := &pagedSource{last: 3}
	src.before = func(n int) {
		if n == 2 {
			s.SetData(key, Pages[page]{
				Pages:  []page{{Number: 1, Items: []int{99}, Next: 2}},
				Params: []any{1},
			})
		}
	}

	p := BindPaginated(s, key, PaginatedOptions[page]{
		Disabled:         true,
		InitialPageParam: 1,
		FetchPage:        src.FetchPage,
		GetNextPageParam: nextPage,
	})
	defer p.Close()

	_, requested, err := p.FetchNextPage(ctx)
	require.NoError(t, err)
	require.True(t, requested)

	data, requested, err := p.FetchNextPage(ctx)
	require.NoError(t, err)
	assert.True(t, requested)

	require.Equal(t, 2, data.Len())
	assert.Equal(t, []int{99}, data.Pages[0].Items)
	assert.Equal(t, 2, data.Pages[1].Number)
	assert.Equal(t, []any{1, 2}, data.Params)
	assert.Equal(t, data, p.State().Data)
}

func TestPaginatedJoinedFetchDoesNotReportAppend(t *testing.T) {
	src := &pagedSource{last: 3}
	s := newTestStore(t)
	ctx := context.Background()

	p := BindPaginated(s, "GET /podcasts", PaginatedOptions[page]{
		Disabled:         true,
		InitialPageParam: 1,
		FetchPage:        src.FetchPage,
		GetNextPageParam: nextPage,
	})
	defer p.Close()

	_, _, err := p.FetchNextPage(ctx)
	require.NoError(t, err)

	src.gate = make(chan struct{})

	reloaded := make(chan error, 1)
	go func() {
		_, err := p.Refetch(ctx)
		reloaded <- err
	}()

	waitFor(t, func() bool { return p.State().IsFetching })

	type result struct {
		data      Pages[page]
		requested bool
		err       error
	}

	joins := testutil.ToFloat64(observability.QueryFetchesDeduplicated)

	joined := make(chan result, 1)
	go func() {
		data, requested, err := p.FetchNextPage(ctx)
		joined <- result{data: data, requested: requested, err: err}
	}()

	waitFor(t, func() bool {
		return testutil.ToFloat64(observability.QueryFetchesDeduplicated) > joins
	})
	close(src.gate)

	require.NoError(t, <-reloaded)

	res := <-joined
	require.NoError(t, res.err)
	assert.False(t, res.requested)
	assert.Equal(t, 1, res.data.Len())
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestPaginatedDefaultFetcher(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)

	s := newTestStore(t, WithDefaultFetcher(func(_ context.Context, key string) (any, error) {
		mu.Lock()
		defer mu.Unlock()

		keys = append(keys, key)

		return map[string]any{"number": len(keys), "next": len(keys) + 1}, nil
	}))

	p := BindPaginated(s, "https://api/search?q=jazz", PaginatedOptions[page]{
		Disabled:         true,
		GetNextPageParam: nextPage,
	})
	defer p.Close()

	ctx := context.Background()

	_, _, err := p.FetchNextPage(ctx)
	require.NoError(t, err)
	_, _, err = p.FetchNextPage(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"https://api/search?q=jazz",
		"https://api/search?q=jazz&page=2",
	}, keys)
}

func TestDefaultPageKey(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		param any
		want  string
	}{
		{name: "initial page", key: "https://api/podcasts", param: nil, want: "https://api/podcasts"},
		{name: "no query", key: "https://api/podcasts", param: 2, want: "https://api/podcasts?page=2"},
		{name: "existing query", key: "https://api/podcasts?q=a b", param: "x&y", want: "https://api/podcasts?q=a b&page=x%26y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultPageKey(tt.key, tt.param))
		})
	}
}
