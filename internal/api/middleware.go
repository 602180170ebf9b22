package api

import (
	"fmt"
	"net/http"
	"strconv"

	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// Identity headers are set by the auth gateway in front of the service.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	RoleAdmin      = "admin"

	userIDKey = "userID"
)

func headerUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// requireUser rejects requests without an authenticated user.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := headerUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Message: "Unauthenticated."})
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

// requireAdmin rejects requests from non-admin users. The admin user id, when
// present, is recorded as the actor of history entries.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(HeaderUserRole) != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{Message: "This action is unauthorized."})
			return
		}
		if id, ok := headerUserID(c); ok {
			c.Set(userIDKey, id)
		}
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// tracingMiddleware continues the caller's trace and opens a server span per request.
func tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := util.StartSpan(ctx, fmt.Sprintf("%s %s", c.Request.Method, c.FullPath()),
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		if c.Writer.Status() >= http.StatusInternalServerError {
			util.FailSpan(span, fmt.Errorf("HTTP %d", c.Writer.Status()))
		}
	}
}
