package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schedule-backend/internal/shared/server/respond"
)

const (
	submitterIDKey = "submitterId"
	isGuestKey     = "isGuest"

	// SubmitterHeader carries the caller identity assigned by the gateway.
	SubmitterHeader = "X-Submitter-Id"
	// GuestHeader carries an anonymous, client-generated identity.
	GuestHeader = "X-Guest-Id"
)

// Identity resolves the submitter from trusted gateway headers and stores it
// in context. Requests without any identity are rejected.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		if id := strings.TrimSpace(c.GetHeader(SubmitterHeader)); id != "" {
			c.Set(submitterIDKey, id)
			c.Set(isGuestKey, false)
			c.Next()
			return
		}

		guestID := strings.TrimSpace(c.GetHeader(GuestHeader))
		if guestID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
			return
		}
		c.Set(submitterIDKey, "guest:"+guestID)
		c.Set(isGuestKey, true)
		c.Next()
	}
}

// SubmitterIDFromContext fetches the submitter ID set by Identity.
func SubmitterIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(submitterIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
