package podcast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/castwave/client/pkg/auth"
)

// Person is a podcast participant. The API sends either a bare name or a
// full object.
type Person struct {
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
	Gender  string `json:"gender,omitempty"`
}

// UnmarshalJSON accepts a string or an object.
func (p *Person) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("failed to decode person name: %w", err)
		}

		*p = Person{Name: name}

		return nil
	}

	type plain Person

	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode person: %w", err)
	}

	*p = Person(out)

	return nil
}

// Line is one utterance of an inline transcript.
type Line struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Podcast is a generated podcast episode.
type Podcast struct {
	ID                 string  `json:"id"`
	PodcastTitle       string  `json:"podcast_title"`
	PodcastDescription string  `json:"podcast_description"`
	EpisodeTitle       string  `json:"episode_title"`
	Image              string  `json:"image,omitempty"`
	Duration           float64 `json:"duration"`
	Interviewer        Person  `json:"interviewer"`
	Speaker            Person  `json:"speaker"`
	Conversation       []Line  `json:"conversation,omitempty"`
}

// LikedPodcast is a podcast from the signed-in user's liked list.
type LikedPodcast struct {
	Podcast
	LikedAt string `json:"liked_at"`
}

// PodcastList is a page of podcasts.
type PodcastList struct {
	Results []Podcast `json:"results"`
}

// LikedList is a page of liked podcasts.
type LikedList struct {
	Results []LikedPodcast `json:"results"`
}

// PodcastDetail is the single podcast response.
type PodcastDetail struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Podcast Podcast `json:"podcast"`
}

// Segment is one timed transcript entry of a conversation.
type Segment struct {
	ID        string  `json:"id"`
	EpisodeID string  `json:"episode_id"`
	SpeakerID string  `json:"speaker_id"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`

	PodcastAuthor struct {
		AuthorID  string `json:"author_id"`
		IsHost    bool   `json:"is_host"`
		PodcastID string `json:"podcast_id"`
	} `json:"podcast_author"`

	Speaker struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Bio        string `json:"bio,omitempty"`
		Background string `json:"background,omitempty"`
	} `json:"speaker"`
}

// Conversation is the transcript response of a podcast. Its shape varies
// between API versions, so the payload is kept raw; Segments decodes the
// current one.
type Conversation struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	Conversation json.RawMessage `json:"conversation"`
}

// Segments decodes the conversation as a list of timed segments.
func (c Conversation) Segments() ([]Segment, error) {
	if len(c.Conversation) == 0 || string(c.Conversation) == "null" {
		return nil, nil
	}

	var out []Segment
	if err := json.Unmarshal(c.Conversation, &out); err != nil {
		return nil, fmt.Errorf("failed to decode conversation segments: %w", err)
	}

	return out, nil
}

// TaskStatus is the state of a generation task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// GenTask is a queued podcast generation.
type GenTask struct {
	ID              string     `json:"id"`
	PodcastID       string     `json:"podcast_id"`
	Status          TaskStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	Progress        float64    `json:"progress,omitempty"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	Podcast         Podcast    `json:"podcast"`
}

// Queue is the signed-in user's generation queue.
type Queue struct {
	Tasks []GenTask `json:"tasks"`
}

// UserProfile is a user's public profile with aggregate statistics.
type UserProfile struct {
	User struct {
		ID          string `json:"id"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	} `json:"user"`
	TotalViews    int `json:"total_views"`
	TotalLikes    int `json:"total_likes"`
	TotalDislikes int `json:"total_dislikes"`
	NetLikes      int `json:"net_likes"`
	TotalPodcasts int `json:"total_podcasts"`
}

// Question is a live question asked during playback.
type Question struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Response string `json:"response,omitempty"`
}

// Questions is the live question list of a podcast.
type Questions struct {
	Questions []Question `json:"questions"`
}

// Result is the generic write acknowledgement.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// LikeBody likes or unlikes a podcast.
type LikeBody struct {
	PodcastID string `json:"podcast_id"`
	Liked     bool   `json:"liked"`
}

// DislikeBody dislikes or undislikes a podcast.
type DislikeBody struct {
	PodcastID string `json:"podcast_id"`
	Disliked  bool   `json:"disliked"`
}

// VisibilityBody changes whether a podcast is public.
type VisibilityBody struct {
	PodcastID string `json:"podcast_id"`
	IsPublic  bool   `json:"is_public"`
}

// GenerateBody requests a new podcast.
type GenerateBody struct {
	Topic       string `json:"topic"`
	Language    string `json:"language,omitempty"`
	Style       string `json:"style,omitempty"`
	Description string `json:"description,omitempty"`
}

// TopicBody asks the API to fill in a generation form from a topic.
type TopicBody struct {
	Topic string `json:"topic"`
}

// TopicSuggestion is a filled-in generation form.
type TopicSuggestion struct {
	Topic       string `json:"topic"`
	Language    string `json:"language"`
	Style       string `json:"style"`
	Description string `json:"description"`
}

// LoginBody signs a user in.
type LoginBody struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

// LoginResult carries the session issued on login.
type LoginResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Session auth.Session `json:"session"`
}

// RegisterBody creates an account.
type RegisterBody struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// QuestionBody asks a live question.
type QuestionBody struct {
	PodcastID string `json:"podcast_id"`
	Question  string `json:"question"`
}

// QuestionAnswer is the reply to a live question.
type QuestionAnswer struct {
	Message  string `json:"message"`
	Response string `json:"response,omitempty"`
}

// PlayBody records that playback started.
type PlayBody struct {
	PodcastID string `json:"podcast_id"`
}

// PositionBody records the playback position in seconds.
type PositionBody struct {
	PodcastID string  `json:"podcast_id"`
	Position  float64 `json:"position"`
}
