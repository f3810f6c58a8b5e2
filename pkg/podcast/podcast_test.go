package podcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/castwave/client/internal/testutil"
	"github.com/castwave/client/pkg/auth"
	"github.com/castwave/client/pkg/query"
	"github.com/castwave/client/pkg/remote"
	"github.com/castwave/client/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) {
	return string(s), nil
}

func newTestAPI(t *testing.T, baseURL string, opts ...Option) *API {
	t.Helper()

	log := testutil.NewLogger()

	client, err := remote.NewClient(&remote.Config{
		BaseURL:   baseURL,
		Timeout:   5 * time.Second,
		UserAgent: "test",
	}, staticTokens("tok"), log)
	require.NoError(t, err)

	store := query.NewStore(log, query.WithDefaultFetcher(client.Fetch))
	t.Cleanup(store.Close)

	return New(client, store, log, opts...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestKeys(t *testing.T) {
	a := newTestAPI(t, "http://api.test")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "podcasts default page", got: a.PodcastsKey(0, -1), want: "http://api.test/podcasts?limit=10&offset=0"},
		{name: "podcasts page", got: a.PodcastsKey(20, 40), want: "http://api.test/podcasts?limit=20&offset=40"},
		{name: "search", got: a.SearchKey("jazz & blues"), want: "http://api.test/podcasts/search?query=jazz+%26+blues"},
		{name: "podcast", got: a.PodcastKey("p1"), want: "http://api.test/podcasts/p1?v2=true"},
		{name: "conversation", got: a.ConversationKey("p1"), want: "http://api.test/podcasts/p1/conversations?v2=true"},
		{name: "liked", got: a.LikedKey(10, 0), want: "http://api.test/podcasts/liked/@me?limit=10&offset=0"},
		{name: "history", got: a.HistoryKey(5, 5), want: "http://api.test/podcasts/history/@me?limit=5&offset=5"},
		{name: "queue", got: a.QueueKey(), want: "http://api.test/queue"},
		{name: "recommendations", got: a.RecommendationsKey(), want: "http://api.test/recommendations/@me"},
		{name: "user", got: a.UserKey("u1"), want: "http://api.test/user/u1"},
		{name: "questions", got: a.QuestionsKey("p1"), want: "http://api.test/live/questions/p1/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestPersonUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Person
		wantErr bool
	}{
		{name: "bare name", input: `"Ann"`, want: Person{Name: "Ann"}},
		{name: "object", input: `{"name":"Bob","country":"NZ","gender":"male"}`, want: Person{Name: "Bob", Country: "NZ", Gender: "male"}},
		{name: "number", input: `42`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Person

			err := json.Unmarshal([]byte(tt.input), &p)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestConversationSegments(t *testing.T) {
	c := Conversation{Conversation: json.RawMessage(`[{"id":"s1","text":"Hello","start_time":0,"end_time":1.5,"speaker":{"name":"Ann"}}]`)}

	segments, err := c.Segments()
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "Ann", segments[0].Speaker.Name)
	assert.InDelta(t, 1.5, segments[0].EndTime, 0.001)

	segments, err = Conversation{}.Segments()
	require.NoError(t, err)
	assert.Nil(t, segments)
}

func TestPodcastIsFetchedWithoutToken(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.JSON("GET", "/podcasts/p1", http.StatusOK, `{"success":true,"message":"","podcast":{"id":"p1","episode_title":"Pilot","interviewer":"Ann","speaker":{"name":"Bob"}}}`)

	a := newTestAPI(t, api.URL)

	b := a.Podcast("p1", query.Options[PodcastDetail]{})
	defer b.Close()

	waitFor(t, func() bool { return b.State().HasData })

	detail := b.State().Data
	assert.Equal(t, "Pilot", detail.Podcast.EpisodeTitle)
	assert.Equal(t, "Ann", detail.Podcast.Interviewer.Name)
	assert.Equal(t, "Bob", detail.Podcast.Speaker.Name)

	reqs := api.Requests("GET", "/podcasts/p1")
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "true", reqs[0].Query.Get("v2"))
}

func TestEmptyIDDisablesFetching(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	a := newTestAPI(t, api.URL)

	b := a.Podcast("", query.Options[PodcastDetail]{})
	defer b.Close()

	s := a.Search("", query.Options[PodcastList]{})
	defer s.Close()

	assert.Equal(t, query.StatusIdle, b.State().Status)
	assert.Equal(t, query.StatusIdle, s.State().Status)
	assert.Equal(t, 0, api.Hits("GET", "/podcasts/"))
	assert.Equal(t, 0, api.Hits("GET", "/podcasts/search"))
}

func TestUserScopedQueriesSendToken(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.JSON("GET", "/podcasts/liked/@me", http.StatusOK, `{"results":[{"id":"p1","liked_at":"2024-05-01"}]}`)
	api.JSON("GET", "/queue", http.StatusOK, `{"tasks":[{"id":"t1","podcast_id":"p2","status":"in_progress","progress":40}]}`)

	a := newTestAPI(t, api.URL)

	liked := a.Liked(10, 0, query.Options[LikedList]{})
	defer liked.Close()

	queue := a.Queue(query.Options[Queue]{})
	defer queue.Close()

	waitFor(t, func() bool { return liked.State().HasData && queue.State().HasData })

	require.Len(t, liked.State().Data.Results, 1)
	assert.Equal(t, "2024-05-01", liked.State().Data.Results[0].LikedAt)
	assert.Equal(t, "p1", liked.State().Data.Results[0].ID)

	require.Len(t, queue.State().Data.Tasks, 1)
	assert.Equal(t, TaskInProgress, queue.State().Data.Tasks[0].Status)

	for _, path := range []string{"/podcasts/liked/@me", "/queue"} {
		reqs := api.Requests("GET", path)
		require.Len(t, reqs, 1, path)
		assert.Equal(t, "Bearer tok", reqs[0].Header.Get("Authorization"), path)
	}
}

func TestPodcastPagesFollowOffsets(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Handle("GET", "/podcasts", func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		count := 2
		if offset >= 4 {
			count = 1
		}

		results := make([]map[string]string, 0, count)
		for i := range count {
			results = append(results, map[string]string{"id": fmt.Sprintf("p%d", offset+i)})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	})

	a := newTestAPI(t, api.URL)
	ctx := context.Background()

	pages := a.PodcastPages(PageOptions{PageSize: 2})
	defer pages.Close()

	waitFor(t, func() bool { return pages.State().Data.Len() == 1 })

	for pages.HasNextPage() {
		_, requested, err := pages.FetchNextPage(ctx)
		require.NoError(t, err)
		require.True(t, requested)
	}

	state := pages.State()
	require.Equal(t, 3, state.Data.Len())
	assert.False(t, state.HasNextPage)

	var ids []string
	for _, page := range state.Data.Pages {
		for _, p := range page.Results {
			ids = append(ids, p.ID)
		}
	}

	assert.Equal(t, []string{"p0", "p1", "p2", "p3", "p4"}, ids)

	var offsets []string
	for _, req := range api.Requests("GET", "/podcasts") {
		offsets = append(offsets, req.Query.Get("offset"))
		assert.Equal(t, "2", req.Query.Get("limit"))
	}

	assert.Equal(t, []string{"0", "2", "4"}, offsets)
}

func TestLikeMutation(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.JSON("POST", "/podcasts/p1/like", http.StatusOK, `{"success":true}`)

	a := newTestAPI(t, api.URL)
	a.Store().SetData(a.LikedKey(10, 0), LikedList{})
	a.Store().SetData(a.PodcastsKey(10, 0), PodcastList{})

	var settled bool

	like, err := a.Like(Hooks[Result]{
		OnSettled: func(_ Result, err error) { settled = err == nil },
	})
	require.NoError(t, err)

	res, err := like.Mutate(context.Background(), LikeBody{PodcastID: "p1", Liked: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, settled)

	reqs := api.Requests("POST", "/podcasts/p1/like")
	require.Len(t, reqs, 1)
	assert.Equal(t, "p1", reqs[0].Query.Get("podcast_id"))
	assert.Equal(t, "true", reqs[0].Query.Get("liked"))
	assert.Equal(t, "Bearer tok", reqs[0].Header.Get("Authorization"))
	assert.JSONEq(t, `{"podcast_id":"p1","liked":true}`, string(reqs[0].Body))

	// The mutation itself leaves the cache alone.
	rec, _ := a.Store().GetRecord(a.LikedKey(10, 0))
	assert.False(t, rec.LastUpdated.IsZero())

	assert.Equal(t, 1, a.InvalidateLiked())

	rec, _ = a.Store().GetRecord(a.LikedKey(10, 0))
	assert.True(t, rec.LastUpdated.IsZero())

	rec, _ = a.Store().GetRecord(a.PodcastsKey(10, 0))
	assert.False(t, rec.LastUpdated.IsZero())
}

func TestApplicationFailureReachesOnFailure(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.JSON("PATCH", "/podcasts/p1/visibility", http.StatusOK, `{"success":false,"message":"Not your podcast"}`)

	a := newTestAPI(t, api.URL)

	var failure error

	m, err := a.UpdateVisibility(Hooks[Result]{
		OnSuccess: func(Result) { t.Error("unexpected success") },
		OnFailure: func(err error) { failure = err },
	})
	require.NoError(t, err)

	_, err = m.Mutate(context.Background(), VisibilityBody{PodcastID: "p1", IsPublic: true})
	require.Error(t, err)
	require.EqualError(t, failure, "Not your podcast")

	kind, ok := remote.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, remote.KindApplication, kind)

	reqs := api.Requests("PATCH", "/podcasts/p1/visibility")
	require.Len(t, reqs, 1)
	assert.Equal(t, "true", reqs[0].Query.Get("is_public"))
}

func TestAnalyticsMutations(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.JSON("POST", "/analytics/podcasts/play", http.StatusOK, `{"success":true}`)
	api.JSON("POST", "/analytics/podcasts/position/p1", http.StatusOK, `{"success":true}`)

	a := newTestAPI(t, api.URL)
	ctx := context.Background()

	play, err := a.PlayPressed(Hooks[Result]{})
	require.NoError(t, err)
	_, err = play.Mutate(ctx, PlayBody{PodcastID: "p1"})
	require.NoError(t, err)

	position, err := a.PositionChanged(Hooks[Result]{})
	require.NoError(t, err)
	_, err = position.Mutate(ctx, PositionBody{PodcastID: "p1", Position: 12.5})
	require.NoError(t, err)

	plays := api.Requests("POST", "/analytics/podcasts/play")
	require.Len(t, plays, 1)
	assert.Equal(t, "p1", plays[0].Query.Get("podcast_id"))
	assert.Empty(t, plays[0].Header.Get("Authorization"))

	positions := api.Requests("POST", "/analytics/podcasts/position/p1")
	require.Len(t, positions, 1)
	assert.Equal(t, "12.5", positions[0].Query.Get("position"))
	assert.Equal(t, "Bearer tok", positions[0].Header.Get("Authorization"))
}

func TestLoginStoresSession(t *testing.T) {
	_, rdb := testutil.NewMiniredisClient(t)
	sessions := auth.NewRedisSessionStore(testutil.NewLogger(), rdb, "castwave:session")

	api := testutil.NewFakeAPI(t)
	api.JSON("POST", "/login", http.StatusOK, `{"success":true,"message":"Welcome","session":{"access_token":"abc","token_type":"bearer"}}`)

	a := newTestAPI(t, api.URL, WithSessionStore(sessions))
	a.Store().SetData(a.RecommendationsKey(), []Podcast{})
	a.Store().SetData(a.QueueKey(), Queue{})
	a.Store().SetData(a.PodcastsKey(10, 0), PodcastList{})

	var welcomed string

	login, err := a.Login(Hooks[LoginResult]{
		OnSuccess: func(res LoginResult) { welcomed = res.Message },
	})
	require.NoError(t, err)

	_, err = login.Mutate(context.Background(), LoginBody{UserName: "ann", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome", welcomed)

	token, err := sessions.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	for _, key := range []string{a.RecommendationsKey(), a.QueueKey()} {
		rec, _ := a.Store().GetRecord(key)
		assert.True(t, rec.LastUpdated.IsZero(), key)
	}

	rec, _ := a.Store().GetRecord(a.PodcastsKey(10, 0))
	assert.False(t, rec.LastUpdated.IsZero())

	require.NoError(t, a.Logout(context.Background()))

	session, err := sessions.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestLogoutWithoutSessionStore(t *testing.T) {
	a := newTestAPI(t, "http://api.test")

	assert.ErrorIs(t, a.Logout(context.Background()), ErrNoSessionStore)
}

func TestBlobs(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Handle("GET", "/images/p1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	api.Handle("GET", "/images/p1/avatar/ann", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("nope"))
	})
	api.Handle("GET", "/audios/p1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ID3"))
	})

	a := newTestAPI(t, api.URL)
	ctx := context.Background()

	img, err := a.Image(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Len(t, img.Data, 4)

	_, err = a.Avatar(ctx, "p1", "ann")
	require.ErrorIs(t, err, ErrNotImage)

	audio, err := a.Audio(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), audio.Data)

	_, err = a.Audio(ctx, "")
	require.ErrorIs(t, err, ErrEmptyPodcastID)

	_, err = a.Image(ctx, "missing")
	kind, ok := remote.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, remote.KindProtocol, kind)

	_, cached := a.Store().GetRecord(api.URL + "/images/p1")
	assert.False(t, cached)
}

func TestImageURL(t *testing.T) {
	resolver, err := storage.NewResolver(&storage.Config{BaseURL: "https://blob.test", Bucket: "podcasts"})
	require.NoError(t, err)

	a := newTestAPI(t, "http://api.test", WithStorage(resolver))
	bare := newTestAPI(t, "http://api.test")

	got, err := a.ImageURL(Podcast{Image: "covers/p1.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://blob.test/storage/v1/object/public/podcasts/covers/p1.png", got)

	got, err = bare.ImageURL(Podcast{Image: "https://cdn.test/p1.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/p1.png", got)

	got, err = bare.ImageURL(Podcast{})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = bare.ImageURL(Podcast{Image: "covers/p1.png"})
	require.ErrorIs(t, err, ErrNoStorage)
}
