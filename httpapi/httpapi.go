// Package httpapi exposes the auth engine over HTTP with Gin. Responses use
// the `{success, message, data}` envelope the marketplace frontend expects.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tautanid/marketauth"
)

// Server holds the handler dependencies.
type Server struct {
	engine *marketauth.Engine
	logger *slog.Logger
}

// New creates a Server. A nil logger falls back to slog.Default().
func New(engine *marketauth.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger}
}

// Router builds a gin.Engine with all auth routes mounted under /api/auth.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.clientIP())

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", s.handleRegister)
		auth.POST("/login", s.handleLogin)
		auth.POST("/verify-totp", s.handleVerifyTOTP)
		auth.POST("/forgot-password", s.handleForgotPassword)
		auth.POST("/reset-password/:token", s.handleResetPassword)

		authed := auth.Group("", s.Authenticate())
		{
			authed.GET("/me", s.handleMe)
			authed.POST("/logout", s.handleLogout)
			authed.POST("/change-password", s.handleChangePassword)
			authed.POST("/setup-2fa", s.handleSetup2FA)
			authed.POST("/verify-2fa", s.handleVerify2FA)
			authed.POST("/disable-2fa", s.handleDisable2FA)
			authed.POST("/regenerate-backup-codes", s.handleRegenerateBackupCodes)
		}
	}

	admin := r.Group("/api/admin", s.Authenticate(), s.RequireRoles(marketauth.RoleAdmin))
	{
		admin.POST("/accounts/:id/block", s.handleBlockAccount)
		admin.POST("/accounts/:id/unblock", s.handleUnblockAccount)
		admin.POST("/accounts/:id/clear-lock", s.handleClearLock)
	}

	return r
}

// clientIP copies Gin's resolved client IP into the request context so the
// engine's throttles key on it.
func (s *Server) clientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := marketauth.ContextWithClientIP(c.Request.Context(), c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type registerBody struct {
	FullName     string `json:"fullName" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Phone        string `json:"phone" binding:"required"`
	Password     string `json:"password" binding:"required"`
	Role         string `json:"role"`
	BusinessName string `json:"businessName"`
	BusinessType string `json:"businessType"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.engine.Register(c.Request.Context(), marketauth.RegisterRequest{
		FullName:     body.FullName,
		Email:        body.Email,
		Phone:        body.Phone,
		Password:     body.Password,
		Role:         marketauth.Role(body.Role),
		BusinessName: body.BusinessName,
		BusinessType: body.BusinessType,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, envelope{
		Success: true,
		Message: "Registration successful",
		Data: gin.H{
			"userId": res.AccountID,
			"email":  res.Email,
			"role":   res.Role,
		},
	})
}

type loginBody struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.engine.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if res.TwoFactorRequired {
		ok(c, "Two-factor authentication required", gin.H{
			"requires2FA": true,
			"tempToken":   res.ChallengeToken,
		})
		return
	}
	ok(c, "Login successful", gin.H{"token": res.Token})
}

type verifyTOTPBody struct {
	TempToken string `json:"tempToken" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

func (s *Server) handleVerifyTOTP(c *gin.Context) {
	var body verifyTOTPBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.engine.CompleteTwoFactorLogin(c.Request.Context(), body.TempToken, body.Code)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ok(c, "Login successful", gin.H{
		"token":          res.Token,
		"twoFAToken":     res.VerifiedToken,
		"usedBackupCode": res.UsedBackup,
	})
}

func (s *Server) handleMe(c *gin.Context) {
	id := identityFrom(c)
	ok(c, "", gin.H{
		"userId":     id.AccountID,
		"role":       id.Role,
		"membership": id.Membership,
		"has2FA":     id.TwoFactorEnabled,
	})
}

// handleLogout only acknowledges; sessions are stateless JWTs, so the
// client discards the token and the server keeps nothing to revoke.
func (s *Server) handleLogout(c *gin.Context) {
	ok(c, "Logged out. Discard the token on the client.", nil)
}

type changePasswordBody struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var body changePasswordBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := identityFrom(c)
	if err := s.engine.ChangePassword(c.Request.Context(), id.AccountID, body.CurrentPassword, body.NewPassword); err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, "Password changed. Please log in again.", nil)
}

func (s *Server) handleSetup2FA(c *gin.Context) {
	id := identityFrom(c)
	setup, err := s.engine.SetupTwoFactor(c.Request.Context(), id.AccountID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, "Scan the QR code and confirm with a code to enable 2FA", gin.H{
		"secret":      setup.SecretBase32,
		"otpauthUrl":  setup.URI,
		"backupCodes": setup.BackupCodes,
	})
}

type verify2FABody struct {
	Secret      string   `json:"secret" binding:"required"`
	Code        string   `json:"code" binding:"required"`
	BackupCodes []string `json:"backupCodes" binding:"required"`
}

func (s *Server) handleVerify2FA(c *gin.Context) {
	var body verify2FABody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := identityFrom(c)
	if err := s.engine.ActivateTwoFactor(c.Request.Context(), id.AccountID, body.Secret, body.Code, body.BackupCodes); err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, "Two-factor authentication enabled", nil)
}

type codeBody struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) handleDisable2FA(c *gin.Context) {
	var body codeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := identityFrom(c)
	if err := s.engine.DisableTwoFactor(c.Request.Context(), id.AccountID, body.Code); err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, "Two-factor authentication disabled", nil)
}

func (s *Server) handleRegenerateBackupCodes(c *gin.Context) {
	var body codeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := identityFrom(c)
	codes, err := s.engine.RegenerateBackupCodes(c.Request.Context(), id.AccountID, body.Code)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, "New backup codes generated. Previous codes no longer work.", gin.H{
		"backupCodes": codes,
	})
}

type forgotPasswordBody struct {
	Email string `json:"email" binding:"required,email"`
}

func (s *Server) handleForgotPassword(c *gin.Context) {
	var body forgotPasswordBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	raw, err := s.engine.RequestPasswordReset(c.Request.Context(), body.Email)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if raw != "" {
		// Delivery is out of band; the token never appears in the response.
		s.logger.InfoContext(c.Request.Context(), "password reset token issued", "email", body.Email)
	}

	// Same answer for known and unknown emails.
	ok(c, "If that email is registered, a reset link has been sent.", nil)
}

type resetPasswordBody struct {
	NewPassword string `json:"newPassword" binding:"required"`
}

func (s *Server) handleResetPassword(c *gin.Context) {
	var body resetPasswordBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.engine.ResetPassword(c.Request.Context(), c.Param("token"), body.NewPassword); err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, "Password has been reset. Please log in.", nil)
}

type blockBody struct {
	Reason string `json:"reason"`
}

func (s *Server) handleBlockAccount(c *gin.Context) {
	var body blockBody
	_ = c.ShouldBindJSON(&body)

	if err := s.engine.BlockAccount(c.Request.Context(), c.Param("id"), body.Reason); err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, "Account blocked", nil)
}

func (s *Server) handleUnblockAccount(c *gin.Context) {
	if err := s.engine.UnblockAccount(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, "Account unblocked", nil)
}

func (s *Server) handleClearLock(c *gin.Context) {
	if err := s.engine.ClearLock(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, "Login lock cleared", nil)
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, envelope{Success: false, Message: message})
}

// respondError maps engine errors to HTTP statuses. Unknown errors are
// logged and answered with a generic 500 so internals never leak.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, marketauth.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, marketauth.ErrAccountLocked):
		fail(c, http.StatusForbidden, "Account locked due to repeated failed logins. Try again later.")
	case errors.Is(err, marketauth.ErrAccountBlocked):
		fail(c, http.StatusForbidden, "Account blocked. Contact support.")
	case errors.Is(err, marketauth.ErrAccountDisabled):
		fail(c, http.StatusForbidden, "Account is not active")
	case errors.Is(err, marketauth.ErrLoginRateLimited), errors.Is(err, marketauth.ErrResetRateLimited):
		fail(c, http.StatusTooManyRequests, "Too many requests. Slow down.")
	case errors.Is(err, marketauth.ErrTokenExpired):
		fail(c, http.StatusUnauthorized, "Session expired. Please log in again.")
	case errors.Is(err, marketauth.ErrPasswordChanged):
		fail(c, http.StatusUnauthorized, "Password was changed. Please log in again.")
	case errors.Is(err, marketauth.ErrTokenInvalid):
		fail(c, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, marketauth.ErrTwoFactorCodeInvalid):
		fail(c, http.StatusUnauthorized, "Invalid verification code")
	case errors.Is(err, marketauth.ErrTwoFactorNotEnabled):
		fail(c, http.StatusBadRequest, "Two-factor authentication is not enabled")
	case errors.Is(err, marketauth.ErrTwoFactorAlreadyEnabled):
		fail(c, http.StatusBadRequest, "Two-factor authentication is already enabled")
	case errors.Is(err, marketauth.ErrResetTokenInvalid):
		fail(c, http.StatusBadRequest, "Reset link is invalid or has expired")
	case errors.Is(err, marketauth.ErrPasswordReuse):
		fail(c, http.StatusBadRequest, "New password must differ from the current one")
	case errors.Is(err, marketauth.ErrPasswordPolicy):
		fail(c, http.StatusBadRequest, "Password does not meet the minimum requirements")
	case errors.Is(err, marketauth.ErrRoleInvalid):
		fail(c, http.StatusBadRequest, "Invalid role")
	case errors.Is(err, marketauth.ErrAccountExists):
		fail(c, http.StatusConflict, "Email or phone number is already registered")
	case errors.Is(err, marketauth.ErrAccountNotFound):
		fail(c, http.StatusNotFound, "Account not found")
	default:
		s.logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}
