package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/odilabs/odi-auth/internal/http/middleware"
	"github.com/odilabs/odi-auth/internal/service"
)

// AuthHandler exposes the credential lifecycle over HTTP. Responses use a
// {success, message} envelope; business failures carry their own status.
type AuthHandler struct {
	Auth   *service.AuthService
	Logger *zap.Logger
}

// NewAuthHandler wires the handler.
func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &AuthHandler{Auth: auth, Logger: logger}
}

// SendCode handles POST /auth/code.
func (h *AuthHandler) SendCode(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		Type  string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payload."})
		return
	}

	if err := h.Auth.SendCode(c.Request.Context(), req.Email, req.Type); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Verification code sent."})
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email           string `json:"email"`
		Code            string `json:"code"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
		Nickname        string `json:"nickname"`
		Address         string `json:"address"`
		Birthday        string `json:"birthday"`
		Gender          string `json:"gender"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payload."})
		return
	}

	result, err := h.Auth.Register(c.Request.Context(), service.RegisterInput{
		Email:           req.Email,
		Code:            req.Code,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Nickname:        req.Nickname,
		Address:         req.Address,
		Birthday:        req.Birthday,
		Gender:          req.Gender,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Registered.", "odacc": result.Odacc, "id": strconv.FormatInt(result.UserID, 10)})
}

// Login handles POST /auth/login with a password or a login code.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Identifier string `json:"emailOrOdacc"`
		Password   string `json:"password"`
		Code       string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payload."})
		return
	}

	pair, err := h.Auth.Login(c.Request.Context(), service.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		Code:       req.Code,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Logged in.",
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"tokenType":    pair.TokenType,
		"expiresIn":    pair.ExpiresIn,
		"user":         pair.User,
	})
}

// Refresh handles POST /auth/refresh-token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payload."})
		return
	}

	result, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Token refreshed.", "accessToken": result.AccessToken, "expiresIn": result.ExpiresIn})
}

// Logout handles POST /auth/logout. The access token comes from the bearer
// header the auth middleware already validated; the refresh token rides in
// the body and is optional.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	// Body is optional on logout.
	_ = c.ShouldBindJSON(&req)

	if err := h.Auth.Logout(c.Request.Context(), middleware.RawToken(c), req.RefreshToken); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out. Tokens invalidated."})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authenticated."})
		return
	}

	user, err := h.Auth.GetUser(c.Request.Context(), claims.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// AdminPing handles GET /auth/admin/ping, an admin-only liveness probe.
func (h *AuthHandler) AdminPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "pong"})
}

func (h *AuthHandler) respondError(c *gin.Context, err error) {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		if authErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(authErr.RetryAfter.Seconds())))
		}
		c.JSON(authErr.Status, gin.H{"success": false, "message": authErr.Message})
		return
	}
	h.Logger.Error("unexpected handler error", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Unexpected error. Please retry."})
}
