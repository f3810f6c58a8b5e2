// Package podcast binds the podcast API's endpoints to the query store and
// mutation layer. Query keys are full request URLs built by the remote
// client, so every binding of the same endpoint shares one record.
package podcast

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/castwave/client/pkg/auth"
	"github.com/castwave/client/pkg/query"
	"github.com/castwave/client/pkg/remote"
	"github.com/castwave/client/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Define static errors
var (
	ErrNotImage       = errors.New("response is not an image")
	ErrNoSessionStore = errors.New("no session store configured")
	ErrNoStorage      = errors.New("no blob storage configured")
	ErrEmptyPodcastID = errors.New("podcast id is required")
	ErrMissingSession = errors.New("login response carried no session")
)

// DefaultPageSize matches the API's default limit.
const DefaultPageSize = 10

// API is the typed podcast API surface.
type API struct {
	client   *remote.Client
	store    *query.Store
	sessions auth.SessionStore
	storage  *storage.Resolver
	log      logrus.FieldLogger
}

// Option configures an API
type Option func(*API)

// WithSessionStore stores sessions issued by Login.
func WithSessionStore(sessions auth.SessionStore) Option {
	return func(a *API) {
		a.sessions = sessions
	}
}

// WithStorage resolves podcast image keys to public URLs.
func WithStorage(resolver *storage.Resolver) Option {
	return func(a *API) {
		a.storage = resolver
	}
}

// New creates the podcast API over client and store.
func New(client *remote.Client, store *query.Store, log logrus.FieldLogger, opts ...Option) *API {
	a := &API{
		client: client,
		store:  store,
		log:    log.WithField("component", "podcast"),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Store returns the query store the API binds to.
func (a *API) Store() *query.Store {
	return a.store
}

// PodcastsKey is the key of one page of the public podcast list.
func (a *API) PodcastsKey(limit, offset int) string {
	return a.client.URL("podcasts", pageQuery(limit, offset))
}

// SearchKey is the key of a search.
func (a *API) SearchKey(term string) string {
	return a.client.URL("podcasts/search", url.Values{"query": {term}})
}

// PodcastKey is the key of a single podcast.
func (a *API) PodcastKey(id string) string {
	return a.client.URL("podcasts/"+id, url.Values{"v2": {"true"}})
}

// ConversationKey is the key of a podcast's transcript.
func (a *API) ConversationKey(id string) string {
	return a.client.URL("podcasts/"+id+"/conversations", url.Values{"v2": {"true"}})
}

// LikedKey is the key of one page of the signed-in user's liked podcasts.
func (a *API) LikedKey(limit, offset int) string {
	return a.client.URL("podcasts/liked/@me", pageQuery(limit, offset))
}

// HistoryKey is the key of one page of the signed-in user's listen history.
func (a *API) HistoryKey(limit, offset int) string {
	return a.client.URL("podcasts/history/@me", pageQuery(limit, offset))
}

// QueueKey is the key of the generation queue.
func (a *API) QueueKey() string {
	return a.client.URL("queue", nil)
}

// RecommendationsKey is the key of the signed-in user's recommendations.
func (a *API) RecommendationsKey() string {
	return a.client.URL("recommendations/@me", nil)
}

// UserKey is the key of a user profile.
func (a *API) UserKey(userID string) string {
	return a.client.URL("user/"+userID, nil)
}

// QuestionsKey is the key of a podcast's live questions.
func (a *API) QuestionsKey(podcastID string) string {
	return a.client.URL("live/questions/"+podcastID+"/", nil)
}

// ImageURL resolves a podcast's image to a fetchable URL. Absolute image
// values pass through; object keys need blob storage configured.
func (a *API) ImageURL(p Podcast) (string, error) {
	if p.Image == "" {
		return "", nil
	}

	if strings.HasPrefix(p.Image, "http://") || strings.HasPrefix(p.Image, "https://") {
		return p.Image, nil
	}

	if a.storage == nil {
		return "", ErrNoStorage
	}

	return a.storage.PublicURL(p.Image)
}

// Image downloads a podcast's cover image. Binary loads bypass the store.
func (a *API) Image(ctx context.Context, podcastID string) (*remote.Blob, error) {
	return a.image(ctx, a.client.URL("images/"+podcastID, nil))
}

// Avatar downloads the avatar of one participant of a podcast.
func (a *API) Avatar(ctx context.Context, podcastID, personID string) (*remote.Blob, error) {
	return a.image(ctx, a.client.URL("images/"+podcastID+"/avatar/"+personID, nil))
}

// Audio downloads a podcast's audio track.
func (a *API) Audio(ctx context.Context, podcastID string) (*remote.Blob, error) {
	if podcastID == "" {
		return nil, ErrEmptyPodcastID
	}

	blob, err := a.client.GetBlob(ctx, a.client.URL("audios/"+podcastID, nil), false)
	if err != nil {
		return nil, err
	}

	if blob.ContentType == "" {
		blob.ContentType = "audio/mpeg"
	}

	return blob, nil
}

func (a *API) image(ctx context.Context, rawURL string) (*remote.Blob, error) {
	blob, err := a.client.GetBlob(ctx, rawURL, false)
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(blob.ContentType, "image/") {
		return nil, ErrNotImage
	}

	return blob, nil
}

// userScoped reports whether key depends on who is signed in.
func (a *API) userScoped(key string) bool {
	return strings.Contains(key, "/@me") || key == a.QueueKey()
}

// InvalidateUser marks every signed-in user's record stale, e.g. after a
// session change.
func (a *API) InvalidateUser() int {
	return a.store.InvalidateMatching(a.userScoped)
}

// InvalidateLiked marks every page of the liked list stale.
func (a *API) InvalidateLiked() int {
	return a.store.InvalidatePrefix(a.client.URL("podcasts/liked/@me", nil))
}

// InvalidatePodcast marks a podcast and its transcript stale.
func (a *API) InvalidatePodcast(id string) int {
	podcast, conversation := a.PodcastKey(id), a.ConversationKey(id)

	return a.store.InvalidateMatching(func(key string) bool {
		return key == podcast || key == conversation
	})
}

// Logout deletes the stored session and marks user-scoped records stale.
func (a *API) Logout(ctx context.Context) error {
	if a.sessions == nil {
		return ErrNoSessionStore
	}

	if err := a.sessions.Delete(ctx); err != nil {
		return err
	}

	n := a.InvalidateUser()
	a.log.WithField("invalidated", n).Info("Signed out")

	return nil
}

// get returns a typed GET fetcher; auth chooses whether the session token is
// attached.
func get[T any](client *remote.Client, auth bool) func(ctx context.Context, key string) (T, error) {
	return func(ctx context.Context, key string) (T, error) {
		raw, err := client.Do(ctx, remote.Request{Method: http.MethodGet, URL: key, Auth: auth})
		if err != nil {
			var zero T
			return zero, err
		}

		return query.As[T](raw)
	}
}

func pageQuery(limit, offset int) url.Values {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
}
