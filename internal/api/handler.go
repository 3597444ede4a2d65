package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tiffin-tracker-backend/internal/notification"
	"tiffin-tracker-backend/internal/parse"
	"tiffin-tracker-backend/internal/store"
)

// Reminders runs one reminder dispatch pass.
type Reminders interface {
	Run(ctx context.Context) (*notification.Summary, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	webpush      *webpush.Options
	reminders    Reminders
	loc          *time.Location
	triggerToken string
	now          func() time.Time
	log          *zap.Logger
}

// NewHandler creates a new API handler. Dates such as "today" are evaluated
// in loc.
func NewHandler(s store.Store, webpushOptions *webpush.Options, reminders Reminders, loc *time.Location, triggerToken string, log *zap.Logger) *Handler {
	return &Handler{
		store:        s,
		webpush:      webpushOptions,
		reminders:    reminders,
		loc:          loc,
		triggerToken: triggerToken,
		now:          time.Now,
		log:          log,
	}
}

func (h *Handler) today() string {
	return h.now().In(h.loc).Format(parse.DateLayout)
}

// storeError maps a store error to a response.
func (h *Handler) storeError(c *gin.Context, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMsg})
		return
	}
	h.log.Error("store operation failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// Health reports whether the database is reachable.
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
