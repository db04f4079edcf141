package middleware

import (
	"net/http"

	"github.com/Virstriker/ChatApp/global"
	"github.com/Virstriker/ChatApp/tools/errs"

	"github.com/gin-gonic/gin"
)

// Origin rejects browser requests from an origin the allow func refuses.
// Requests without an Origin header pass. /ws is left to the websocket
// upgrader, which applies the same policy.
func Origin(allow func(origin string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allow == nil || origin == "" || c.Request.URL.Path == "/ws" {
			return
		}
		if !allow(origin) {
			c.AbortWithStatusJSON(http.StatusForbidden, global.Fail(errs.ErrArgs.WithDetail("origin not allowed")))
		}
	}
}

// RequestLog is a Manager-friendly request logger: it logs once the
// request is accepted rather than after the handler.
func RequestLog(log func(method, path, remote string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if log != nil {
			log(c.Request.Method, c.Request.URL.Path, c.ClientIP())
		}
	}
}
