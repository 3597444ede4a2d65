package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tiffin-tracker-backend/internal/model"
	"tiffin-tracker-backend/internal/mw"
	"tiffin-tracker-backend/internal/parse"
	"tiffin-tracker-backend/internal/store"
)

type putPreferencesRequest struct {
	Enabled          bool                    `json:"enabled"`
	NotificationTime string                  `json:"notification_time"`
	Timezone         string                  `json:"timezone"`
	PushSubscription *model.PushSubscription `json:"push_subscription"`
}

// GetPreferences returns the caller's reminder settings, or the defaults when
// none have been saved.
func (h *Handler) GetPreferences(c *gin.Context) {
	userID := mw.UserID(c)
	pref, err := h.store.GetPreference(c.Request.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusOK, model.NotificationPreference{
			UserID:           userID,
			NotificationTime: model.DefaultNotificationTime,
			Timezone:         h.loc.String(),
		})
		return
	}
	if err != nil {
		h.storeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, pref)
}

// PutPreferences saves the caller's reminder settings.
func (h *Handler) PutPreferences(c *gin.Context) {
	var req putPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	at := model.DefaultNotificationTime
	if req.NotificationTime != "" {
		var err error
		if at, err = parse.TimeOfDay(req.NotificationTime); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	tz := req.Timezone
	if tz == "" {
		tz = h.loc.String()
	}
	if _, err := parse.Timezone(tz); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Enabled && !req.PushSubscription.Complete() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a push subscription with endpoint and keys is required to enable reminders"})
		return
	}

	pref := &model.NotificationPreference{
		UserID:           mw.UserID(c),
		Enabled:          req.Enabled,
		NotificationTime: at,
		Timezone:         tz,
	}
	if err := pref.SetSubscription(req.PushSubscription); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := h.store.UpsertPreference(c.Request.Context(), pref)
	if err != nil {
		h.storeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, saved)
}

// DeleteSubscription forgets the caller's push subscription. Clearing an
// absent subscription is not an error.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	err := h.store.ClearPushSubscription(c.Request.Context(), mw.UserID(c))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.storeError(c, err, "")
		return
	}
	c.Status(http.StatusNoContent)
}
