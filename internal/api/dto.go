package api

import "github.com/starford/agora/internal/models"

// FollowRequest is the optional body of a follow call.
type FollowRequest struct {
	Name string `json:"name,omitempty" example:"Bob"`
}

// VoteRequest is the request body for casting a vote.
type VoteRequest struct {
	Origin      string `json:"origin" example:"dweb://alice" validate:"required"`
	Subject     string `json:"subject" example:"https://example.com" validate:"required"`
	Vote        int    `json:"vote" example:"1"`
	SubjectType string `json:"subjectType,omitempty" example:"page"`
}

// PostRequest is the request body for creating a post.
type PostRequest struct {
	Origin       string           `json:"origin" example:"dweb://alice" validate:"required"`
	Text         string           `json:"text" example:"hello @bob" validate:"required"`
	Mentions     []models.Mention `json:"mentions,omitempty"`
	ThreadParent string           `json:"threadParent,omitempty" example:"dweb://bob/posts/lt4x2a9c.json"`
	ThreadRoot   string           `json:"threadRoot,omitempty" example:"dweb://bob/posts/lt4x2a9c.json"`
}

// PostCreatedResponse is returned after a post is written.
type PostCreatedResponse struct {
	URL string `json:"url" example:"dweb://alice/posts/lt4x2b01.json" validate:"required"`
}

// CountResponse wraps a count query.
type CountResponse struct {
	Count int `json:"count" example:"3"`
}

// BoolResponse wraps a relationship check.
type BoolResponse struct {
	Result bool `json:"result"`
}

// ProfileListResponse wraps a list of profiles.
type ProfileListResponse struct {
	Profiles []*models.Profile `json:"profiles" validate:"required"`
}

// PostListResponse wraps a page of posts.
type PostListResponse struct {
	Posts []*models.Post `json:"posts" validate:"required"`
}

// VoteListResponse wraps the votes on one subject.
type VoteListResponse struct {
	Votes []models.Vote `json:"votes" validate:"required"`
}

// NotificationListResponse wraps a page of notifications.
type NotificationListResponse struct {
	Notifications []*models.Notification `json:"notifications" validate:"required"`
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
