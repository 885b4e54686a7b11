package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/finsight/identity-service/internal/config"
	"github.com/finsight/identity-service/internal/domain"
	"github.com/finsight/identity-service/internal/repository"
	"github.com/finsight/identity-service/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrAccountLocked      = errors.New("account locked")
	ErrWeakPassword       = errors.New("password does not meet minimum length")
)

// LoginResult carries the issued token; the handler delivers it both in the
// response body and as the session cookie.
type LoginResult struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// AuthService orchestrates credential verification, registration and the
// password-reset flow on top of the OTP and token services.
type AuthService struct {
	cfg      *config.Config
	users    repository.UserRepository
	tokenSvc *TokenService
	otpSvc   *OTPService
	notifier NotificationSender
	logger   *slog.Logger
}

func NewAuthService(
	cfg *config.Config,
	users repository.UserRepository,
	tokenSvc *TokenService,
	otpSvc *OTPService,
	notifier NotificationSender,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		cfg:      cfg,
		users:    users,
		tokenSvc: tokenSvc,
		otpSvc:   otpSvc,
		notifier: notifier,
		logger:   logger,
	}
}

// Login verifies the password and issues a token. Unknown email and wrong
// password both collapse into ErrInvalidCredentials; lock and disabled states
// carry their own sentinels so the handler can choose the status code, but the
// outward message stays generic.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := time.Now().UTC()
	if !user.Enabled {
		return nil, ErrAccountDisabled
	}
	if user.LockActive(now) {
		return nil, ErrAccountLocked
	}

	ok, err := security.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		lockedUntil := now.Add(s.cfg.AuthLockoutCooldown)
		if err := s.users.RecordFailedLogin(user.ID, s.cfg.AuthMaxFailedLogins, lockedUntil); err != nil {
			s.logger.ErrorContext(ctx, "failed to record login failure", "email", email, "error", err)
		}
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.Locked {
		if err := s.users.ResetLoginFailures(user.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login failures", "email", email, "error", err)
		}
	}
	if err := s.users.UpdateLastLogin(user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login", "email", email, "error", err)
	}

	token, expiresAt, err := s.tokenSvc.Issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "login succeeded", "email", email)
	return &LoginResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Register creates a new identity with verified=false. Email uniqueness is
// enforced by the store's unique index, not a pre-read, so concurrent
// registrations cannot both succeed. The welcome notification is
// fire-and-log.
func (s *AuthService) Register(ctx context.Context, email, name, password string) (*domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if len(password) < s.cfg.PasswordMinLength {
		return nil, ErrWeakPassword
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Enabled:      true,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	if err := s.notifier.SendWelcome(ctx, user.Email, user.Name); err != nil {
		s.logger.WarnContext(ctx, "welcome notification failed", "email", user.Email, "error", err)
	}
	s.logger.InfoContext(ctx, "identity registered", "email", user.Email)
	return user, nil
}

// ResetPassword consumes a RESET code and installs the new password hash in
// the same conditional update. The length check runs before any OTP state is
// touched, so a weak password never burns a valid code.
func (s *AuthService) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	if len(newPassword) < s.cfg.PasswordMinLength {
		return ErrWeakPassword
	}
	newHash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.otpSvc.ConsumeReset(ctx, strings.TrimSpace(strings.ToLower(email)), otp, newHash)
}

// RequestVerifyOTP and RequestResetOTP delegate to the OTP lifecycle.
func (s *AuthService) RequestVerifyOTP(ctx context.Context, email string) error {
	return s.otpSvc.Issue(ctx, strings.TrimSpace(strings.ToLower(email)), PurposeVerify)
}

func (s *AuthService) RequestResetOTP(ctx context.Context, email string) error {
	return s.otpSvc.Issue(ctx, strings.TrimSpace(strings.ToLower(email)), PurposeReset)
}

// VerifyEmail consumes a VERIFY code, flipping the identity to verified.
func (s *AuthService) VerifyEmail(ctx context.Context, email, otp string) error {
	return s.otpSvc.ConsumeVerify(ctx, strings.TrimSpace(strings.ToLower(email)), otp)
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email")
	}
	return nil
}
