package api

import (
	"net/http"

	"github.com/starford/agora/internal/feed"
)

// Vote handles POST /api/votes.
//
//	@Summary		Cast or replace a vote
//	@Tags			votes
//	@Accept			json
//	@Param			body	body	VoteRequest	true	"Vote"
//	@Success		204
//	@Failure		400	{object}	errResponse
//	@Failure		403	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/votes [post]
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Origin == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("origin is required"))
		return
	}
	err := h.svcs.Feed.Vote(r.Context(), req.Origin, feed.VoteInput{
		Subject:     req.Subject,
		Vote:        req.Vote,
		SubjectType: req.SubjectType,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListVotes handles GET /api/votes.
//
//	@Summary		List the votes on a subject
//	@Tags			votes
//	@Produce		json
//	@Param			subject	query		string	true	"Subject URL"
//	@Success		200		{object}	VoteListResponse
//	@Security		BearerAuth
//	@Router			/votes [get]
func (h *Handler) ListVotes(w http.ResponseWriter, r *http.Request) {
	subject, ok := requiredQuery(w, r, "subject")
	if !ok {
		return
	}
	votes, err := h.svcs.Feed.ListVotesFor(r.Context(), subject)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VoteListResponse{Votes: nonNilSlice(votes)})
}

// CountVotes handles GET /api/votes/tally.
//
//	@Summary		Tally the votes on a subject
//	@Tags			votes
//	@Produce		json
//	@Param			subject	query		string	true	"Subject URL"
//	@Success		200		{object}	models.Tally
//	@Security		BearerAuth
//	@Router			/votes/tally [get]
func (h *Handler) CountVotes(w http.ResponseWriter, r *http.Request) {
	subject, ok := requiredQuery(w, r, "subject")
	if !ok {
		return
	}
	tally, err := h.svcs.Feed.CountVotesFor(r.Context(), subject)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tally)
}

// CreatePost handles POST /api/posts.
//
//	@Summary		Write a new post or reply
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PostRequest	true	"Post"
//	@Success		201		{object}	PostCreatedResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts [post]
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Origin == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("origin is required"))
		return
	}
	url, err := h.svcs.Feed.Post(r.Context(), req.Origin, feed.PostInput{
		Text:         req.Text,
		Mentions:     req.Mentions,
		ThreadParent: req.ThreadParent,
		ThreadRoot:   req.ThreadRoot,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PostCreatedResponse{URL: url})
}

// ListPosts handles GET /api/posts.
//
//	@Summary		List or count posts across all indexed origins
//	@Tags			posts
//	@Produce		json
//	@Param			after			query		string	false	"RFC 3339 lower bound, inclusive"
//	@Param			before			query		string	false	"RFC 3339 upper bound, exclusive"
//	@Param			offset			query		int		false	"Page offset"
//	@Param			limit			query		int		false	"Page size"
//	@Param			reverse			query		bool	false	"Newest first"
//	@Param			rootPostsOnly	query		bool	false	"Skip replies"
//	@Param			fetchAuthor		query		bool	false	"Attach author profiles"
//	@Param			countVotes		query		bool	false	"Attach vote tallies"
//	@Param			countReplies	query		bool	false	"Attach reply counts"
//	@Param			count			query		bool	false	"Return only the count"
//	@Success		200				{object}	PostListResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts [get]
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	opts := feed.ListPostsOptions{
		After:         q.timestamp("after"),
		Before:        q.timestamp("before"),
		Offset:        q.integer("offset"),
		Limit:         q.integer("limit"),
		Reverse:       q.boolean("reverse"),
		RootPostsOnly: q.boolean("rootPostsOnly"),
		FetchAuthor:   q.boolean("fetchAuthor"),
		CountVotes:    q.boolean("countVotes"),
		CountReplies:  q.boolean("countReplies"),
	}
	countOnly := q.boolean("count")
	if q.err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(q.err.Error()))
		return
	}
	if countOnly {
		n, err := h.svcs.Feed.CountPosts(r.Context(), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
		return
	}
	posts, err := h.svcs.Feed.ListPosts(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PostListResponse{Posts: nonNilSlice(posts)})
}

// GetPost handles GET /api/posts/one.
//
//	@Summary		Get a single post with its author
//	@Tags			posts
//	@Produce		json
//	@Param			url	query		string	true	"Post URL"
//	@Success		200	{object}	models.Post
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/one [get]
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	url, ok := requiredQuery(w, r, "url")
	if !ok {
		return
	}
	p, err := h.svcs.Feed.GetPost(r.Context(), url)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetThread handles GET /api/posts/thread.
//
//	@Summary		Reconstruct the thread around a post
//	@Tags			posts
//	@Produce		json
//	@Param			url	query		string	true	"Post URL"
//	@Success		200	{object}	models.Post
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/thread [get]
func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	url, ok := requiredQuery(w, r, "url")
	if !ok {
		return
	}
	p, err := h.svcs.Feed.GetThread(r.Context(), url)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func requiredQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(name+" is required"))
		return "", false
	}
	return v, true
}
