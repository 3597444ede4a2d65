package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tiffin-tracker-backend/config"
	"tiffin-tracker-backend/internal/mw"
	"tiffin-tracker-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, reminders Reminders, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(log.Named("http")), mw.CORS(cfg.Server.CORSAllowedOrigin))

	webpushOptions := &webpush.Options{
		VAPIDPublicKey: cfg.Push.PublicKey,
		Subscriber:     cfg.Push.Subscriber(),
		TTL:            cfg.Push.TTL,
	}
	handler := NewHandler(s, webpushOptions, reminders, cfg.Location(), cfg.Reminder.TriggerToken, log)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)
	responseCache := mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second)

	r.GET("/healthz", handler.Health)

	if cfg.Reminder.TriggerToken == "" {
		log.Warn("reminder.trigger_token is not set, anyone who can reach the server may trigger reminder runs")
	}

	// Invoked by the hourly scheduler or an external cron.
	functions := r.Group("/functions/v1")
	functions.Use(rateLimiter)
	{
		functions.POST("/send-tiffin-reminders", handler.SendReminders)
		functions.OPTIONS("/send-tiffin-reminders", func(*gin.Context) {})
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		user := api.Group("")
		user.Use(mw.Auth(cfg.Auth.JWTSecret), responseCache.Middleware())
		{
			user.GET("/entries", handler.ListEntries)
			user.PATCH("/entries/:id", handler.PatchEntry)
			user.DELETE("/entries/:id", handler.DeleteEntry)
			user.GET("/summary", handler.GetSummary)
			user.GET("/days/:date", handler.GetDay)
			user.PUT("/days/:date", handler.PutDay)

			user.GET("/preferences", handler.GetPreferences)
			user.PUT("/preferences", handler.PutPreferences)
			user.DELETE("/preferences/subscription", handler.DeleteSubscription)
		}
	}

	return r
}
