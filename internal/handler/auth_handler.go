package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lmasson/giftwise-api/internal/models"
	"github.com/lmasson/giftwise-api/internal/service"
	"github.com/lmasson/giftwise-api/pkg/config"
	appErrors "github.com/lmasson/giftwise-api/pkg/errors"
	"github.com/lmasson/giftwise-api/pkg/mail"
	"github.com/lmasson/giftwise-api/pkg/response"
)

// refreshCookieName is the HttpOnly cookie carrying the raw refresh token.
// The cookie is scoped to the auth endpoints so the browser never sends it
// anywhere else.
const refreshCookieName = "refresh_token"

// Notifier delivers transactional email.
type Notifier interface {
	Send(ctx context.Context, msg mail.Message) error
}

// AuthHandler wires HTTP endpoints to the auth, reset and verification
// services.
type AuthHandler struct {
	auth          *service.AuthService
	resets        *service.PasswordResetService
	verifications *service.VerificationService
	notifier      Notifier
	logger        *zap.Logger
	cfg           *config.Config
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(auth *service.AuthService, resets *service.PasswordResetService, verifications *service.VerificationService, notifier Notifier, logger *zap.Logger, cfg *config.Config) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		auth:          auth,
		resets:        resets,
		verifications: verifications,
		notifier:      notifier,
		logger:        logger,
		cfg:           cfg,
	}
}

// Register godoc
// @Summary Register a new account
// @Description Create an account and send the verification email
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	challenge, err := h.verifications.Issue(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("failed to issue verification token", zap.Error(err), zap.String("user_id", user.ID))
	} else {
		h.deliver(h.verificationMessage(challenge))
	}

	response.Created(c, models.InfoFromUser(user))
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by email and password; sets the refresh cookie
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, rawRefresh, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, rawRefresh)
	response.JSON(c, http.StatusOK, res)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Rotate the refresh cookie and mint a new access token
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	rawRefresh, err := c.Cookie(refreshCookieName)
	if err != nil || rawRefresh == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidRefresh, "missing refresh token"))
		return
	}

	res, newRaw, err := h.auth.Refresh(c.Request.Context(), rawRefresh)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidRefresh) || appErrors.Is(err, appErrors.ErrRefreshReuse) {
			h.clearRefreshCookie(c)
		}
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, newRaw)
	response.JSON(c, http.StatusOK, res)
}

// Logout godoc
// @Summary Logout
// @Description Revoke every session of the account behind the refresh cookie
// @Tags Authentication
// @Produce json
// @Success 204 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if rawRefresh, err := c.Cookie(refreshCookieName); err == nil {
		if err := h.auth.Logout(c.Request.Context(), rawRefresh); err != nil {
			h.logger.Warn("failed to revoke session on logout", zap.Error(err))
		}
	}

	h.clearRefreshCookie(c)
	response.NoContent(c)
}

// ForgotPassword godoc
// @Summary Forgot password
// @Description Send a reset link if the email exists
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ForgotPasswordRequest true "Forgot password payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	challenge, err := h.resets.Request(c.Request.Context(), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	if challenge != nil {
		h.deliver(h.resetMessage(challenge))
	}

	response.JSON(c, http.StatusAccepted, gin.H{"message": "if the email exists, a reset link will be sent"})
}

// ResetPassword godoc
// @Summary Reset password
// @Description Set a new password using the emailed token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param token query string true "Reset token"
// @Param payload body models.ResetPasswordRequest true "Reset payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidToken, "missing token"))
		return
	}

	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.resets.Redeem(c.Request.Context(), token, req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// VerifyEmail godoc
// @Summary Verify email address
// @Description Confirm ownership of the registered email
// @Tags Authentication
// @Produce json
// @Param token query string true "Verification token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidToken, "missing token"))
		return
	}

	if err := h.verifications.Redeem(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "email verified"})
}

// ResendVerification godoc
// @Summary Resend verification email
// @Description Send a fresh verification link for an unverified account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ForgotPasswordRequest true "Email payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	challenge, err := h.verifications.Resend(c.Request.Context(), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	if challenge != nil {
		h.deliver(h.verificationMessage(challenge))
	}

	response.JSON(c, http.StatusAccepted, gin.H{"message": "if the account needs verification, an email will be sent"})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, raw string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(
		refreshCookieName,
		raw,
		int(h.cfg.Tokens.RefreshExpiration.Seconds()),
		h.cfg.APIPrefix+"/auth",
		"",
		h.cfg.Env == config.EnvProduction,
		true,
	)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, h.cfg.APIPrefix+"/auth", "", h.cfg.Env == config.EnvProduction, true)
}

// deliver sends mail without blocking the request. Failures are logged;
// the user can always ask for a new link.
func (h *AuthHandler) deliver(msg mail.Message) {
	if h.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := h.notifier.Send(ctx, msg); err != nil {
			h.logger.Error("failed to send email", zap.Error(err), zap.String("subject", msg.Subject))
		}
	}()
}

func (h *AuthHandler) verificationMessage(challenge *service.TokenChallenge) mail.Message {
	link := fmt.Sprintf("%s/verify-email?token=%s", h.cfg.Mail.FrontendBaseURL, url.QueryEscape(challenge.Token))
	return mail.Message{
		ToEmail: challenge.UserEmail,
		ToName:  challenge.UserName,
		Subject: "Verify your email address",
		HTML:    fmt.Sprintf(`<p>Hi %s,</p><p>Confirm your email address by clicking <a href="%s">this link</a>. The link is valid for 24 hours.</p>`, challenge.UserName, link),
		Text:    fmt.Sprintf("Hi %s,\n\nConfirm your email address by opening this link: %s\nThe link is valid for 24 hours.", challenge.UserName, link),
	}
}

func (h *AuthHandler) resetMessage(challenge *service.TokenChallenge) mail.Message {
	link := fmt.Sprintf("%s/reset-password?token=%s", h.cfg.Mail.FrontendBaseURL, url.QueryEscape(challenge.Token))
	return mail.Message{
		ToEmail: challenge.UserEmail,
		ToName:  challenge.UserName,
		Subject: "Reset your password",
		HTML:    fmt.Sprintf(`<p>Hi %s,</p><p>You asked to reset your password. Use <a href="%s">this link</a> within 30 minutes. If this was not you, ignore this email.</p>`, challenge.UserName, link),
		Text:    fmt.Sprintf("Hi %s,\n\nYou asked to reset your password. Open this link within 30 minutes: %s\nIf this was not you, ignore this email.", challenge.UserName, link),
	}
}
