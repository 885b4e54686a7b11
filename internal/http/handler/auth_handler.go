package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/finsight/identity-service/internal/http/middleware"
	"github.com/finsight/identity-service/internal/http/response"
	"github.com/finsight/identity-service/internal/observability"
	"github.com/finsight/identity-service/internal/repository"
	"github.com/finsight/identity-service/internal/security"
	"github.com/finsight/identity-service/internal/service"
)

type AuthHandler struct {
	authSvc   service.AuthServiceInterface
	cookieMgr *security.CookieManager
	validity  time.Duration
}

func NewAuthHandler(authSvc service.AuthServiceInterface, cookieMgr *security.CookieManager, validity time.Duration) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, cookieMgr: cookieMgr, validity: validity}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		status = "failure"
		return
	}

	result, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		status = "failure"
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			observability.Audit(r, "auth.login.failed", "reason", "invalid_credentials")
			observability.RecordAuthLogin(r.Context(), "failure")
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
		case errors.Is(err, service.ErrAccountDisabled):
			observability.Audit(r, "auth.login.failed", "reason", "account_disabled")
			observability.RecordAuthLogin(r.Context(), "disabled")
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "account disabled", nil)
		case errors.Is(err, service.ErrAccountLocked):
			observability.Audit(r, "auth.login.failed", "reason", "account_locked")
			observability.RecordAuthLogin(r.Context(), "locked")
			observability.RecordAuthLockout(r.Context(), "login_rejected")
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "account locked", nil)
		default:
			observability.Audit(r, "auth.login.failed", "reason", "internal")
			observability.RecordAuthLogin(r.Context(), "failure")
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "login failed", nil)
		}
		return
	}

	h.cookieMgr.SetTokenCookie(w, result.Token, h.validity)
	observability.Audit(r, "auth.login.success", "user_id", result.User.ID, "ip", clientIP(r))
	observability.RecordAuthLogin(r.Context(), "success")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"user":       result.User,
		"token":      result.Token,
		"expires_at": result.ExpiresAt,
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "register", status, time.Since(start))
	}()

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		status = "failure"
		return
	}

	user, err := h.authSvc.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		status = "failure"
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			observability.Audit(r, "auth.register.failed", "reason", "duplicate_email")
			observability.RecordAuthRegister(r.Context(), "duplicate")
			response.Error(w, r, http.StatusConflict, "CONFLICT", "email already registered", nil)
		case errors.Is(err, service.ErrWeakPassword):
			observability.Audit(r, "auth.register.failed", "reason", "weak_password")
			observability.RecordAuthRegister(r.Context(), "rejected")
			response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", "password does not meet requirements", nil)
		default:
			observability.Audit(r, "auth.register.failed", "reason", "invalid_input")
			observability.RecordAuthRegister(r.Context(), "rejected")
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		}
		return
	}

	observability.Audit(r, "auth.register.success", "user_id", user.ID)
	observability.RecordAuthRegister(r.Context(), "success")
	response.JSON(w, r, http.StatusCreated, map[string]any{"user": user})
}

func (h *AuthHandler) SendVerifyOTP(w http.ResponseWriter, r *http.Request) {
	h.sendOTP(w, r, service.PurposeVerify)
}

func (h *AuthHandler) SendResetOTP(w http.ResponseWriter, r *http.Request) {
	h.sendOTP(w, r, service.PurposeReset)
}

func (h *AuthHandler) sendOTP(w http.ResponseWriter, r *http.Request, purpose service.OTPPurpose) {
	start := time.Now()
	status := "success"
	endpoint := "send_otp"
	if purpose == service.PurposeReset {
		endpoint = "send_reset_otp"
	}
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), endpoint, status, time.Since(start))
	}()

	var req otpRequest
	if !decodeJSON(w, r, &req) {
		status = "failure"
		return
	}

	var err error
	if purpose == service.PurposeVerify {
		err = h.authSvc.RequestVerifyOTP(r.Context(), req.Email)
	} else {
		err = h.authSvc.RequestResetOTP(r.Context(), req.Email)
	}
	if err != nil {
		status = "failure"
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			observability.Audit(r, "auth.otp.issue.failed", "purpose", string(purpose), "reason", "unknown_email")
			observability.RecordOTPIssued(r.Context(), string(purpose), "unknown_email")
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "account not found", nil)
		case errors.Is(err, service.ErrNotificationFailed):
			observability.Audit(r, "auth.otp.issue.failed", "purpose", string(purpose), "reason", "delivery")
			observability.RecordOTPIssued(r.Context(), string(purpose), "delivery_failure")
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to send otp", nil)
		default:
			observability.Audit(r, "auth.otp.issue.failed", "purpose", string(purpose), "reason", "internal")
			observability.RecordOTPIssued(r.Context(), string(purpose), "failure")
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to send otp", nil)
		}
		return
	}

	observability.Audit(r, "auth.otp.issued", "purpose", string(purpose))
	observability.RecordOTPIssued(r.Context(), string(purpose), "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "otp_sent"})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "verify_otp", status, time.Since(start))
	}()

	var req otpRequest
	if !decodeJSON(w, r, &req) {
		status = "failure"
		return
	}

	if err := h.authSvc.VerifyEmail(r.Context(), req.Email, req.OTP); err != nil {
		status = "failure"
		h.writeOTPConsumeError(w, r, service.PurposeVerify, err)
		return
	}

	observability.Audit(r, "auth.email.verified")
	observability.RecordOTPConsumed(r.Context(), string(service.PurposeVerify), "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "verified"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "reset_password", status, time.Since(start))
	}()

	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		status = "failure"
		return
	}

	if err := h.authSvc.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		status = "failure"
		if errors.Is(err, service.ErrWeakPassword) {
			observability.Audit(r, "auth.password_reset.failed", "reason", "weak_password")
			observability.RecordPasswordReset(r.Context(), "rejected")
			response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", "password does not meet requirements", nil)
			return
		}
		observability.RecordPasswordReset(r.Context(), "failure")
		h.writeOTPConsumeError(w, r, service.PurposeReset, err)
		return
	}

	observability.Audit(r, "auth.password_reset.success")
	observability.RecordPasswordReset(r.Context(), "success")
	observability.RecordOTPConsumed(r.Context(), string(service.PurposeReset), "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_reset"})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "logout", "success", time.Since(start))
	}()

	// Tokens are stateless; logout is cookie removal only. Runs on the public
	// allowlist so an expired session can always log out.
	h.cookieMgr.ClearTokenCookie(w)
	if user, ok := middleware.IdentityFromContext(r.Context()); ok {
		observability.Audit(r, "auth.logout.success", "user_id", user.ID)
	} else {
		observability.Audit(r, "auth.logout.success")
	}
	observability.RecordAuthLogout(r.Context(), "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) writeOTPConsumeError(w http.ResponseWriter, r *http.Request, purpose service.OTPPurpose, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		observability.Audit(r, "auth.otp.consume.failed", "purpose", string(purpose), "reason", "unknown_email")
		observability.RecordOTPConsumed(r.Context(), string(purpose), "unknown_email")
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "account not found", nil)
	case errors.Is(err, service.ErrOTPExpired):
		observability.Audit(r, "auth.otp.consume.failed", "purpose", string(purpose), "reason", "expired")
		observability.RecordOTPConsumed(r.Context(), string(purpose), "expired")
		response.Error(w, r, http.StatusBadRequest, "OTP_EXPIRED", "otp expired", nil)
	case errors.Is(err, service.ErrInvalidCode):
		observability.Audit(r, "auth.otp.consume.failed", "purpose", string(purpose), "reason", "invalid")
		observability.RecordOTPConsumed(r.Context(), string(purpose), "invalid")
		response.Error(w, r, http.StatusBadRequest, "INVALID_OTP", "invalid otp", nil)
	default:
		observability.Audit(r, "auth.otp.consume.failed", "purpose", string(purpose), "reason", "internal")
		observability.RecordOTPConsumed(r.Context(), string(purpose), "failure")
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "request failed", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	return r.RemoteAddr
}
