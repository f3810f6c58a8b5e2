package podcast

import (
	"context"
	"net/http"

	"github.com/castwave/client/pkg/mutation"
)

// Hooks are the caller's mutation callbacks.
type Hooks[TResult any] struct {
	OnSuccess func(TResult)
	OnFailure func(error)
	OnSettled func(TResult, error)
}

func newMutation[TBody, TResult any](a *API, cfg mutation.Config[TBody, TResult], hooks Hooks[TResult]) (*mutation.Mutation[TBody, TResult], error) {
	if cfg.OnSuccess == nil {
		cfg.OnSuccess = hooks.OnSuccess
	}

	cfg.OnFailure = hooks.OnFailure
	cfg.OnSettled = hooks.OnSettled

	return mutation.New(a.client, cfg, a.log)
}

// Like likes or unlikes a podcast. The liked list is not refreshed; call
// InvalidateLiked once the mutation settles.
func (a *API) Like(hooks Hooks[Result]) (*mutation.Mutation[LikeBody, Result], error) {
	return newMutation(a, mutation.Config[LikeBody, Result]{
		URL:              mutation.PathURL[LikeBody](a.client.Endpoint("/podcasts/{podcast_id}/like")),
		Method:           http.MethodPost,
		UseQueryEncoding: true,
		Authenticated:    true,
	}, hooks)
}

// Dislike dislikes or undislikes a podcast.
func (a *API) Dislike(hooks Hooks[Result]) (*mutation.Mutation[DislikeBody, Result], error) {
	return newMutation(a, mutation.Config[DislikeBody, Result]{
		URL:              mutation.PathURL[DislikeBody](a.client.Endpoint("/podcasts/{podcast_id}/dislike")),
		Method:           http.MethodPost,
		UseQueryEncoding: true,
		Authenticated:    true,
	}, hooks)
}

// UpdateVisibility makes a podcast public or private.
func (a *API) UpdateVisibility(hooks Hooks[Result]) (*mutation.Mutation[VisibilityBody, Result], error) {
	return newMutation(a, mutation.Config[VisibilityBody, Result]{
		URL:              mutation.PathURL[VisibilityBody](a.client.Endpoint("/podcasts/{podcast_id}/visibility")),
		Method:           http.MethodPatch,
		UseQueryEncoding: true,
		Authenticated:    true,
	}, hooks)
}

// Generate requests a new podcast. Generation is anonymous.
func (a *API) Generate(hooks Hooks[Result]) (*mutation.Mutation[GenerateBody, Result], error) {
	return newMutation(a, mutation.Config[GenerateBody, Result]{
		URL:    mutation.Literal[GenerateBody](a.client.Endpoint("/podcasts")),
		Method: http.MethodPost,
	}, hooks)
}

// AutoFill asks the API to complete a generation form from a topic.
func (a *API) AutoFill(hooks Hooks[TopicSuggestion]) (*mutation.Mutation[TopicBody, TopicSuggestion], error) {
	return newMutation(a, mutation.Config[TopicBody, TopicSuggestion]{
		URL:           mutation.Literal[TopicBody](a.client.Endpoint("/topic/generate")),
		Method:        http.MethodPost,
		Authenticated: true,
	}, hooks)
}

// Login signs in. On success the issued session is stored, user-scoped
// records are marked stale and then hooks.OnSuccess runs.
func (a *API) Login(hooks Hooks[LoginResult]) (*mutation.Mutation[LoginBody, LoginResult], error) {
	return newMutation(a, mutation.Config[LoginBody, LoginResult]{
		URL:    mutation.Literal[LoginBody](a.client.Endpoint("/login")),
		Method: http.MethodPost,
		OnSuccess: func(res LoginResult) {
			if err := a.storeSession(res); err != nil {
				a.log.WithError(err).Warn("Failed to store session")
			}

			if hooks.OnSuccess != nil {
				hooks.OnSuccess(res)
			}
		},
	}, hooks)
}

// Register creates an account.
func (a *API) Register(hooks Hooks[Result]) (*mutation.Mutation[RegisterBody, Result], error) {
	return newMutation(a, mutation.Config[RegisterBody, Result]{
		URL:    mutation.Literal[RegisterBody](a.client.Endpoint("/register")),
		Method: http.MethodPost,
	}, hooks)
}

// AskQuestion sends a live question about a podcast.
func (a *API) AskQuestion(hooks Hooks[QuestionAnswer]) (*mutation.Mutation[QuestionBody, QuestionAnswer], error) {
	return newMutation(a, mutation.Config[QuestionBody, QuestionAnswer]{
		URL:           mutation.PathURL[QuestionBody](a.client.Endpoint("/live/questions/{podcast_id}")),
		Method:        http.MethodPost,
		Authenticated: true,
	}, hooks)
}

// PlayPressed records a playback start.
func (a *API) PlayPressed(hooks Hooks[Result]) (*mutation.Mutation[PlayBody, Result], error) {
	return newMutation(a, mutation.Config[PlayBody, Result]{
		URL:              mutation.Literal[PlayBody](a.client.Endpoint("/analytics/podcasts/play")),
		Method:           http.MethodPost,
		UseQueryEncoding: true,
	}, hooks)
}

// PositionChanged records the playback position.
func (a *API) PositionChanged(hooks Hooks[Result]) (*mutation.Mutation[PositionBody, Result], error) {
	return newMutation(a, mutation.Config[PositionBody, Result]{
		URL:              mutation.PathURL[PositionBody](a.client.Endpoint("/analytics/podcasts/position/{podcast_id}")),
		Method:           http.MethodPost,
		UseQueryEncoding: true,
		Authenticated:    true,
	}, hooks)
}

func (a *API) storeSession(res LoginResult) error {
	if a.sessions == nil {
		return ErrNoSessionStore
	}

	if res.Session.AccessToken == "" {
		return ErrMissingSession
	}

	// The mutation's context may already be gone by the time callbacks run.
	if err := a.sessions.Set(context.Background(), res.Session); err != nil {
		return err
	}

	n := a.InvalidateUser()
	a.log.WithField("invalidated", n).Info("Signed in")

	return nil
}
