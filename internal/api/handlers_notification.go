package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ravito/ravito-backend/internal/app"
	"github.com/ravito/ravito-backend/internal/domain"
)

type unsubscribePushRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// ListNotificationsHandler pages the caller's inbox. Supports ?limit, ?offset,
// ?unread=true and ?type.
func (h *Handlers) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	query := r.URL.Query()
	limit, err := parseOptionalPositiveInt(query.Get("limit"), 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit: "+err.Error())
		return
	}
	offset, err := parseOptionalNonNegativeInt(query.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid offset: "+err.Error())
		return
	}

	notifications, err := h.notifications.List(r.Context(), userID, domain.NotificationListOptions{
		Limit:      limit,
		Offset:     offset,
		UnreadOnly: query.Get("unread") == "true",
		Type:       strings.TrimSpace(query.Get("type")),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if notifications == nil {
		notifications = []domain.Notification{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}

func (h *Handlers) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	count, err := h.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

func (h *Handlers) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	notification, err := h.notifications.MarkRead(r.Context(), userID, chi.URLParam(r, "notificationID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, notification)
}

func (h *Handlers) MarkAllNotificationsReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	updated, err := h.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *Handlers) DeleteNotificationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := h.notifications.Delete(r.Context(), userID, chi.URLParam(r, "notificationID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubscribePushHandler stores the browser PushSubscription of the caller.
func (h *Handlers) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req app.PushSubscriptionInput
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if req.UserAgent == nil {
		if ua := r.UserAgent(); ua != "" {
			req.UserAgent = &ua
		}
	}
	subscription, err := h.notifications.SubscribePush(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, subscription)
}

func (h *Handlers) UnsubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req unsubscribePushRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.notifications.UnsubscribePush(r.Context(), userID, req.Endpoint); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
