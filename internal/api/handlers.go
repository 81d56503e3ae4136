package api

import (
	"context"
	"net/http"

	"github.com/starford/agora/internal/social"
)

// Handler holds API route handlers.
type Handler struct {
	svcs Services
}

// NewHandler creates a new Handler.
func NewHandler(svcs Services) *Handler {
	return &Handler{svcs: svcs}
}

// originOrFail reads the named origin path parameter, writing a 400 when it
// is malformed.
func originOrFail(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	origin, err := originParam(r, name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return "", false
	}
	return origin, true
}

// GetProfile handles GET /api/profiles/{origin}.
//
//	@Summary		Get a profile
//	@Tags			profiles
//	@Produce		json
//	@Param			origin	path		string	true	"Origin, path-escaped"
//	@Success		200		{object}	models.Profile
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/profiles/{origin} [get]
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	origin, ok := originOrFail(w, r, "origin")
	if !ok {
		return
	}
	p, err := h.svcs.Social.GetProfile(r.Context(), origin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SetProfile handles PUT /api/profiles/{origin}.
//
//	@Summary		Create or update a profile
//	@Tags			profiles
//	@Accept			json
//	@Produce		json
//	@Param			origin	path		string					true	"Origin, path-escaped"
//	@Param			body	body		social.ProfileFields	true	"Fields to change"
//	@Success		200		{object}	models.Profile
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/profiles/{origin} [put]
func (h *Handler) SetProfile(w http.ResponseWriter, r *http.Request) {
	origin, ok := originOrFail(w, r, "origin")
	if !ok {
		return
	}
	var req social.ProfileFields
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svcs.Social.SetProfile(r.Context(), origin, req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svcs.Social.GetProfile(r.Context(), origin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Follow handles POST /api/profiles/{origin}/follows/{target}.
//
//	@Summary		Follow another origin
//	@Tags			profiles
//	@Accept			json
//	@Param			origin	path	string			true	"Follower origin"
//	@Param			target	path	string			true	"Followed origin"
//	@Param			body	body	FollowRequest	false	"Display name for the target"
//	@Success		204
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/profiles/{origin}/follows/{target} [post]
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	origin, ok := originOrFail(w, r, "origin")
	if !ok {
		return
	}
	target, ok := originOrFail(w, r, "target")
	if !ok {
		return
	}
	var req FollowRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svcs.Social.Follow(r.Context(), origin, target, req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unfollow handles DELETE /api/profiles/{origin}/follows/{target}.
//
//	@Summary		Stop following another origin
//	@Tags			profiles
//	@Param			origin	path	string	true	"Follower origin"
//	@Param			target	path	string	true	"Followed origin"
//	@Success		204
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/profiles/{origin}/follows/{target} [delete]
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	origin, ok := originOrFail(w, r, "origin")
	if !ok {
		return
	}
	target, ok := originOrFail(w, r, "target")
	if !ok {
		return
	}
	if err := h.svcs.Social.Unfollow(r.Context(), origin, target); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFollowers handles GET /api/profiles/{origin}/followers.
//
//	@Summary		List or count the followers of an origin
//	@Tags			profiles
//	@Produce		json
//	@Param			origin	path		string	true	"Origin"
//	@Param			count	query		bool	false	"Return only the count"
//	@Success		200		{object}	ProfileListResponse
//	@Security		BearerAuth
//	@Router			/profiles/{origin}/followers [get]
func (h *Handler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	origin, ok := originOrFail(w, r, "origin")
	if !ok {
		return
	}
	q := newQueryParams(r)
	countOnly := q.boolean("count")
	if q.err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(q.err.Error()))
		return
	}
	if countOnly {
		n, err := h.svcs.Social.CountFollowers(r.Context(), origin)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
		return
	}
	items, err := h.svcs.Social.ListFollowers(r.Context(), origin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileListResponse{Profiles: nonNilSlice(items)})
}

// ListFriends handles GET /api/profiles/{origin}/friends.
//
//	@Summary		List or count mutual follows
//	@Tags			profiles
//	@Produce		json
//	@Param			origin	path		string	true	"Origin"
//	@Param			count	query		bool	false	"Return only the count"
//	@Success		200		{object}	ProfileListResponse
//	@Security		BearerAuth
//	@Router			/profiles/{origin}/friends [get]
func (h *Handler) ListFriends(w http.ResponseWriter, r *http.Request) {
	origin, ok := originOrFail(w, r, "origin")
	if !ok {
		return
	}
	q := newQueryParams(r)
	countOnly := q.boolean("count")
	if q.err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(q.err.Error()))
		return
	}
	if countOnly {
		n, err := h.svcs.Social.CountFriends(r.Context(), origin)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
		return
	}
	items, err := h.svcs.Social.ListFriends(r.Context(), origin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileListResponse{Profiles: nonNilSlice(items)})
}

// IsFollowing handles GET /api/profiles/{origin}/following/{target}.
//
//	@Summary		Check whether origin follows target
//	@Tags			profiles
//	@Produce		json
//	@Param			origin	path		string	true	"Origin"
//	@Param			target	path		string	true	"Target"
//	@Success		200		{object}	BoolResponse
//	@Security		BearerAuth
//	@Router			/profiles/{origin}/following/{target} [get]
func (h *Handler) IsFollowing(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.svcs.Social.IsFollowing)
}

// IsFriendsWith handles GET /api/profiles/{origin}/friends/{target}.
//
//	@Summary		Check whether origin and target follow each other
//	@Tags			profiles
//	@Produce		json
//	@Param			origin	path		string	true	"Origin"
//	@Param			target	path		string	true	"Target"
//	@Success		200		{object}	BoolResponse
//	@Security		BearerAuth
//	@Router			/profiles/{origin}/friends/{target} [get]
func (h *Handler) IsFriendsWith(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.svcs.Social.IsFriendsWith)
}

func (h *Handler) relation(w http.ResponseWriter, r *http.Request, check func(ctx context.Context, a, b string) (bool, error)) {
	origin, ok := originOrFail(w, r, "origin")
	if !ok {
		return
	}
	target, ok := originOrFail(w, r, "target")
	if !ok {
		return
	}
	res, err := check(r.Context(), origin, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BoolResponse{Result: res})
}
