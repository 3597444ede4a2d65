package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SendReminders runs one reminder pass and reports its summary. The pass is
// not cancelled if the caller disconnects.
func (h *Handler) SendReminders(c *gin.Context) {
	if h.triggerToken != "" {
		got := c.GetHeader("Authorization")
		want := "Bearer " + h.triggerToken
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid trigger token"})
			return
		}
	}

	summary, err := h.reminders.Run(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		h.log.Error("reminder trigger failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, summary)
		return
	}
	c.JSON(http.StatusOK, summary)
}
