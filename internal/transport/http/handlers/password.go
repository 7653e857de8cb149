package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/WyiZhng/dense-platform-iam/internal/transport/http/middleware"
	"github.com/WyiZhng/dense-platform-iam/internal/usecase"
)

// PasswordHandler exposes password change and reset endpoints.
type PasswordHandler struct {
	passwords *usecase.PasswordService
	resets    *usecase.ResetService
}

// NewPasswordHandler constructs a password handler.
func NewPasswordHandler(passwords *usecase.PasswordService, resets *usecase.ResetService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords, resets: resets}
}

// RegisterPublicRoutes binds the reset flow, which by nature runs without an
// authenticated session.
func (h *PasswordHandler) RegisterPublicRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/reset/request", h.RequestReset)
	r.POST("/reset/validate", h.ValidateReset)
	r.POST("/reset/confirm", h.ConfirmReset)
}

// RegisterProtectedRoutes binds the authenticated password change endpoint.
func (h *PasswordHandler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/change", h.ChangePassword)
}

// ChangePassword replaces the authenticated user's password after verifying
// the current one.
func (h *PasswordHandler) ChangePassword(c *gin.Context) {
	if h.passwords == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password service unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current_password and new_password are required"))
		return
	}

	rc := middleware.GetRequestContext(c)
	err := h.passwords.ChangePassword(c.Request.Context(), usecase.ChangePasswordInput{
		UserID:          userID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		IP:              rc.IP,
		UserAgent:       rc.UserAgent,
	})
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrCurrentPasswordInvalid, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
			{Err: usecase.ErrNewPasswordInvalid, Status: http.StatusUnprocessableEntity, Message: newPasswordRejectionMessage(err)},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to change password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed"})
}

// RequestReset issues a single-use reset token for the user. Responses do not
// reveal whether the user exists beyond the mapped status codes used by
// internal clients.
func (h *PasswordHandler) RequestReset(c *gin.Context) {
	if h.resets == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
		return
	}

	var req ResetRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id is required"))
		return
	}

	result, err := h.resets.CreateResetToken(c.Request.Context(), req.UserID)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to create reset token")
		return
	}

	c.JSON(http.StatusOK, ResetRequestResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	})
}

// ValidateReset reports whether a reset token is still redeemable without
// consuming it.
func (h *PasswordHandler) ValidateReset(c *gin.Context) {
	if h.resets == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
		return
	}

	var req ResetValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	userID, err := h.resets.ValidateResetToken(c.Request.Context(), req.Token)
	if err != nil {
		if errors.Is(err, usecase.ErrResetTokenInvalid) || errors.Is(err, usecase.ErrResetTokenExpired) {
			c.JSON(http.StatusOK, ResetValidateResponse{Valid: false})
			return
		}
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to validate reset token")
		return
	}

	c.JSON(http.StatusOK, ResetValidateResponse{Valid: true, UserID: userID})
}

// ConfirmReset consumes a reset token and sets the new password.
func (h *PasswordHandler) ConfirmReset(c *gin.Context) {
	if h.resets == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
		return
	}

	var req ResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token and new_password are required"))
		return
	}

	rc := middleware.GetRequestContext(c)
	err := h.resets.CompleteReset(c.Request.Context(), usecase.CompleteResetInput{
		Token:       req.Token,
		NewPassword: req.NewPassword,
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
	})
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrResetTokenInvalid, Status: http.StatusUnauthorized, Message: "reset token is not valid"},
			{Err: usecase.ErrResetTokenExpired, Status: http.StatusUnauthorized, Message: "reset token expired"},
			{Err: usecase.ErrNewPasswordInvalid, Status: http.StatusUnprocessableEntity, Message: newPasswordRejectionMessage(err)},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password reset"})
}

// newPasswordRejectionMessage surfaces the validator's feedback so clients can
// show why the candidate password was rejected.
func newPasswordRejectionMessage(err error) string {
	if err == nil {
		return "new password is not acceptable"
	}
	return err.Error()
}
