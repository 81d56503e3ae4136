package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svcs Services, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svcs)
	ah := NewAvatarHandler(svcs.Social)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Profiles and the follow graph.
	r.Route("/profiles/{origin}", func(r chi.Router) {
		r.Get("/", h.GetProfile)
		r.Put("/", h.SetProfile)
		r.Get("/avatar", ah.Serve)
		r.Put("/avatar", ah.Upload)
		r.Post("/follows/{target}", h.Follow)
		r.Delete("/follows/{target}", h.Unfollow)
		r.Get("/followers", h.ListFollowers)
		r.Get("/friends", h.ListFriends)
		r.Get("/following/{target}", h.IsFollowing)
		r.Get("/friends/{target}", h.IsFriendsWith)
	})

	// Votes.
	r.Post("/votes", h.Vote)
	r.Get("/votes", h.ListVotes)
	r.Get("/votes/tally", h.CountVotes)

	// Posts and threads.
	r.Post("/posts", h.CreatePost)
	r.Get("/posts", h.ListPosts)
	r.Get("/posts/one", h.GetPost)
	r.Get("/posts/thread", h.GetThread)

	// Notification feed of the local user.
	r.Get("/notifications", h.ListNotifications)
	r.Get("/notifications/count", h.CountNotifications)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
