package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-sessions/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure so middleware
// rejections look the same as handler rejections.
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, code, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireAuth validates the Authorization header and stores the verified
// claims on the context.
func RequireAuth(auth *usecase.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "UNAUTHORIZED", "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "UNAUTHORIZED", "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "UNAUTHORIZED", "missing access token"))
			return
		}

		claims, err := auth.ParseAccessToken(token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrSessionExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "SESSION_EXPIRED", "Session expired"))
			case errors.Is(err, usecase.ErrInvalidSession):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "INVALID_SESSION", "Access Denied"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "", "authentication failed"))
			}
			return
		}

		c.Set(OwnerIDKey, claims.Subject)
		c.Set(RoleKey, claims.Role)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.OwnerID = claims.Subject
		}

		c.Next()
	}
}

// RequireRole rejects authenticated callers whose role is not in the allowed set.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get(RoleKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "UNAUTHORIZED", "authentication required"))
			return
		}

		role, _ := roleVal.(string)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "", "insufficient permissions"))
	}
}

// AuthenticatedOwnerID retrieves the owner id stored by RequireAuth.
func AuthenticatedOwnerID(c *gin.Context) (string, bool) {
	ownerID, exists := c.Get(OwnerIDKey)
	if !exists {
		return "", false
	}

	if id, ok := ownerID.(string); ok && id != "" {
		return id, true
	}

	return "", false
}
