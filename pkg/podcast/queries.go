package podcast

import (
	"context"
	"net/url"
	"strconv"

	"github.com/castwave/client/pkg/query"
)

// bind attaches a typed fetcher unless the caller supplied one. Public
// endpoints are fetched without the session token.
func bind[T any](a *API, key string, auth bool, opts query.Options[T]) *query.Binding[T] {
	if opts.Fetcher == nil {
		opts.Fetcher = get[T](a.client, auth)
	}

	return query.Bind(a.store, key, opts)
}

// Podcasts binds one page of the public podcast list.
func (a *API) Podcasts(limit, offset int, opts query.Options[PodcastList]) *query.Binding[PodcastList] {
	return bind(a, a.PodcastsKey(limit, offset), false, opts)
}

// Search binds a search. An empty term disables fetching.
func (a *API) Search(term string, opts query.Options[PodcastList]) *query.Binding[PodcastList] {
	opts.Disabled = opts.Disabled || term == ""

	return bind(a, a.SearchKey(term), false, opts)
}

// Podcast binds a single podcast. An empty id disables fetching.
func (a *API) Podcast(id string, opts query.Options[PodcastDetail]) *query.Binding[PodcastDetail] {
	opts.Disabled = opts.Disabled || id == ""

	return bind(a, a.PodcastKey(id), false, opts)
}

// Conversation binds a podcast's transcript.
func (a *API) Conversation(id string, opts query.Options[Conversation]) *query.Binding[Conversation] {
	opts.Disabled = opts.Disabled || id == ""

	return bind(a, a.ConversationKey(id), false, opts)
}

// Liked binds one page of the signed-in user's liked podcasts.
func (a *API) Liked(limit, offset int, opts query.Options[LikedList]) *query.Binding[LikedList] {
	return bind(a, a.LikedKey(limit, offset), true, opts)
}

// History binds one page of the signed-in user's listen history.
func (a *API) History(limit, offset int, opts query.Options[[]Podcast]) *query.Binding[[]Podcast] {
	return bind(a, a.HistoryKey(limit, offset), true, opts)
}

// Queue binds the generation queue.
func (a *API) Queue(opts query.Options[Queue]) *query.Binding[Queue] {
	return bind(a, a.QueueKey(), true, opts)
}

// Recommendations binds the signed-in user's recommendations.
func (a *API) Recommendations(opts query.Options[[]Podcast]) *query.Binding[[]Podcast] {
	return bind(a, a.RecommendationsKey(), true, opts)
}

// UserProfile binds a user's profile.
func (a *API) UserProfile(userID string, opts query.Options[UserProfile]) *query.Binding[UserProfile] {
	opts.Disabled = opts.Disabled || userID == ""

	return bind(a, a.UserKey(userID), true, opts)
}

// Questions binds a podcast's live questions.
func (a *API) Questions(podcastID string, opts query.Options[Questions]) *query.Binding[Questions] {
	opts.Disabled = opts.Disabled || podcastID == ""

	return bind(a, a.QuestionsKey(podcastID), true, opts)
}

// PageOptions configures an offset-paginated list.
type PageOptions struct {
	Disabled bool
	// PageSize is the limit sent with every page; DefaultPageSize when zero.
	PageSize int
	OnChange func(query.PaginatedState[PodcastList])
	OnError  func(error)
}

// PodcastPages binds the public podcast list as an accumulating list. The
// record's key carries only the page size; each page adds its offset.
func (a *API) PodcastPages(opts PageOptions) *query.Paginated[PodcastList] {
	limit := pageSize(opts.PageSize)
	key := a.client.URL("podcasts", url.Values{"limit": {strconv.Itoa(limit)}})

	return a.paginated(key, limit, opts)
}

// SearchPages binds a search as an accumulating list.
func (a *API) SearchPages(term string, opts PageOptions) *query.Paginated[PodcastList] {
	limit := pageSize(opts.PageSize)
	key := a.client.URL("podcasts/search", url.Values{
		"query": {term},
		"limit": {strconv.Itoa(limit)},
	})

	opts.Disabled = opts.Disabled || term == ""

	return a.paginated(key, limit, opts)
}

func (a *API) paginated(key string, limit int, opts PageOptions) *query.Paginated[PodcastList] {
	fetch := get[PodcastList](a.client, false)

	return query.BindPaginated(a.store, key, query.PaginatedOptions[PodcastList]{
		Disabled:         opts.Disabled,
		InitialPageParam: 0,
		FetchPage: func(ctx context.Context, key string, param any) (PodcastList, error) {
			return fetch(ctx, withOffset(key, param))
		},
		GetNextPageParam: nextOffset(limit),
		OnChange:         opts.OnChange,
		OnError:          opts.OnError,
	})
}

// nextOffset continues while pages come back full. The cursor is the number
// of results loaded so far.
func nextOffset(limit int) func(last PodcastList, all []PodcastList) (any, bool) {
	return func(last PodcastList, all []PodcastList) (any, bool) {
		if len(last.Results) < limit {
			return nil, false
		}

		total := 0
		for _, page := range all {
			total += len(page.Results)
		}

		return total, true
	}
}

func withOffset(key string, param any) string {
	offset := 0

	switch v := param.(type) {
	case int:
		offset = v
	case float64:
		offset = int(v)
	}

	u, err := url.Parse(key)
	if err != nil {
		return key
	}

	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	return u.String()
}

func pageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}

	return n
}
