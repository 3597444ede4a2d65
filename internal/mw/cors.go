package mw

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const corsAllowHeaders = "authorization, x-client-info, apikey, content-type"

// CORS adds the cross-origin headers browsers and the scheduler's HTTP
// callers expect, and answers preflight requests with "ok".
func CORS(allowOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.String(http.StatusOK, "ok")
			c.Abort()
			return
		}
		c.Next()
	}
}
