package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-sessions/internal/transport/http/middleware"
	"github.com/arklim/social-platform-sessions/internal/usecase"
)

// AuthHandler exposes the session lifecycle endpoints.
type AuthHandler struct {
	auth     *usecase.AuthService
	rotation *usecase.RotationService
}

// NewAuthHandler builds the handler around the auth and rotation services.
func NewAuthHandler(auth *usecase.AuthService, rotation *usecase.RotationService) *AuthHandler {
	return &AuthHandler{auth: auth, rotation: rotation}
}

// RegisterRoutes binds the session endpoints. requireAuth guards the
// endpoints that act on the authenticated account rather than a token body.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.POST("/refresh", h.Refresh)
	r.DELETE("/logout", h.Logout)
	r.DELETE("/logout-all", requireAuth, h.LogoutAll)
	r.PATCH("/password", requireAuth, h.ChangePassword)
	r.DELETE("/account", requireAuth, h.DeleteAccount)
}

// Register creates an account and opens its first session.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "VALIDATION_FAILED", "email and a password of at least 8 characters are required"))
		return
	}

	account, pair, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidEmail, Status: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: "email address is not valid"},
			{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Code: "WEAK_PASSWORD", Message: "password does not meet the strength requirements"},
			{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Code: "EMAIL_TAKEN", Message: "email is already registered"},
		}, http.StatusInternalServerError, "registration failed")
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{
		Account: newAccountSummary(*account),
		Tokens:  newTokenPairResponse(*pair),
	})
}

// Login verifies credentials and opens a new session family.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "VALIDATION_FAILED", "email and password are required"))
		return
	}

	account, pair, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: "invalid email or password"},
			{Err: usecase.ErrAccountPendingDeletion, Status: http.StatusForbidden, Code: "ACCOUNT_PENDING_DELETION", Message: "account is scheduled for deletion"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Account: newAccountSummary(*account),
		Tokens:  newTokenPairResponse(*pair),
	})
}

// Refresh rotates the presented refresh token. Reuse detection is reported to
// the client as an expired session; the alarm goes to the audit bus, not the
// attacker.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "VALIDATION_FAILED", "refresh_token is required"))
		return
	}

	pair, err := h.rotation.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTokenReuse, Status: http.StatusUnauthorized, Code: "SESSION_EXPIRED", Message: "Session expired"},
			{Err: usecase.ErrSessionExpired, Status: http.StatusUnauthorized, Code: "SESSION_EXPIRED", Message: "Session expired"},
			{Err: usecase.ErrInvalidSession, Status: http.StatusUnauthorized, Code: "INVALID_SESSION", Message: "Access Denied"},
			{Err: usecase.ErrAccessDenied, Status: http.StatusUnauthorized, Code: "INVALID_SESSION", Message: "Access Denied"},
			{Err: usecase.ErrAccountPendingDeletion, Status: http.StatusForbidden, Code: "ACCOUNT_PENDING_DELETION", Message: "account is scheduled for deletion"},
		}, http.StatusInternalServerError, "token refresh failed")
		return
	}

	c.JSON(http.StatusOK, newTokenPairResponse(*pair))
}

// Logout ends the family of the presented refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "VALIDATION_FAILED", "refresh_token is required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "", "logout failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// LogoutAll revokes every session of the authenticated account.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	ownerID, ok := middleware.AuthenticatedOwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "UNAUTHORIZED", "authentication required"))
		return
	}

	revoked, err := h.auth.LogoutAll(c.Request.Context(), ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "", "logout failed"))
		return
	}

	c.JSON(http.StatusOK, LogoutAllResponse{RevokedTokens: revoked})
}

// ChangePassword rotates the credential and every session, returning a fresh pair.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	ownerID, ok := middleware.AuthenticatedOwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "UNAUTHORIZED", "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "VALIDATION_FAILED", "current_password and a new_password of at least 8 characters are required"))
		return
	}

	pair, err := h.auth.ChangePassword(c.Request.Context(), ownerID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: "current password is incorrect"},
			{Err: usecase.ErrSamePassword, Status: http.StatusBadRequest, Code: "SAME_PASSWORD", Message: "new password must differ from the current password"},
			{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Code: "WEAK_PASSWORD", Message: "password does not meet the strength requirements"},
		}, http.StatusInternalServerError, "password change failed")
		return
	}

	c.JSON(http.StatusOK, newTokenPairResponse(*pair))
}

// DeleteAccount soft-deletes the authenticated account after password confirmation.
func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	ownerID, ok := middleware.AuthenticatedOwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "UNAUTHORIZED", "authentication required"))
		return
	}

	var req AccountDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "VALIDATION_FAILED", "password is required"))
		return
	}

	if err := h.auth.DeleteAccount(c.Request.Context(), ownerID, req.Password); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: "password is incorrect"},
		}, http.StatusInternalServerError, "account deletion failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "account scheduled for deletion"})
}
