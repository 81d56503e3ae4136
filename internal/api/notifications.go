package api

import (
	"net/http"

	"github.com/starford/agora/internal/notifications"
)

func notificationOptions(q *queryParams) notifications.ListOptions {
	return notifications.ListOptions{
		After:       q.timestamp("after"),
		Before:      q.timestamp("before"),
		Offset:      q.integer("offset"),
		Limit:       q.integer("limit"),
		Reverse:     q.boolean("reverse"),
		FetchAuthor: q.boolean("fetchAuthor"),
		FetchPost:   q.boolean("fetchPost"),
	}
}

// ListNotifications handles GET /api/notifications.
//
//	@Summary		List the local user's notifications
//	@Tags			notifications
//	@Produce		json
//	@Param			after		query		string	false	"RFC 3339 lower bound, inclusive"
//	@Param			before		query		string	false	"RFC 3339 upper bound, exclusive"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			limit		query		int		false	"Page size"
//	@Param			reverse		query		bool	false	"Newest first"
//	@Param			fetchAuthor	query		bool	false	"Attach actor profiles"
//	@Param			fetchPost	query		bool	false	"Attach the post each entry is about"
//	@Success		200			{object}	NotificationListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notifications [get]
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	opts := notificationOptions(q)
	if q.err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(q.err.Error()))
		return
	}
	items, err := h.svcs.Notifications.ListNotifications(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NotificationListResponse{Notifications: nonNilSlice(items)})
}

// CountNotifications handles GET /api/notifications/count.
//
//	@Summary		Count the local user's notifications
//	@Tags			notifications
//	@Produce		json
//	@Param			after	query		string	false	"RFC 3339 lower bound, inclusive"
//	@Param			before	query		string	false	"RFC 3339 upper bound, exclusive"
//	@Success		200		{object}	CountResponse
//	@Security		BearerAuth
//	@Router			/notifications/count [get]
func (h *Handler) CountNotifications(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	opts := notificationOptions(q)
	if q.err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(q.err.Error()))
		return
	}
	n, err := h.svcs.Notifications.CountNotifications(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}
