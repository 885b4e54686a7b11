package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finsight/identity-service/internal/domain"
	"github.com/finsight/identity-service/internal/repository"
	"github.com/finsight/identity-service/internal/security"
)

type OTPPurpose string

const (
	PurposeVerify OTPPurpose = "verify"
	PurposeReset  OTPPurpose = "reset"
)

var (
	ErrInvalidCode        = errors.New("invalid otp")
	ErrOTPExpired         = errors.New("otp expired")
	ErrNotificationFailed = errors.New("notification delivery failed")
)

// OTPService owns the one-time-passcode lifecycle: issuance with per-purpose
// TTLs and single-use consumption against the credential store's conditional
// updates.
type OTPService struct {
	users     repository.UserRepository
	notifier  NotificationSender
	codes     security.OTPSource
	verifyTTL time.Duration
	resetTTL  time.Duration
	logger    *slog.Logger
}

func NewOTPService(
	users repository.UserRepository,
	notifier NotificationSender,
	codes security.OTPSource,
	verifyTTL, resetTTL time.Duration,
	logger *slog.Logger,
) *OTPService {
	return &OTPService{
		users:     users,
		notifier:  notifier,
		codes:     codes,
		verifyTTL: verifyTTL,
		resetTTL:  resetTTL,
		logger:    logger,
	}
}

// Issue generates and stores a fresh code for the given purpose, replacing any
// pending code of the same purpose, then dispatches the notification. Issuing
// a VERIFY code for an already-verified identity is a success no-op. A
// notification failure is surfaced but does not roll back the stored code.
func (s *OTPService) Issue(ctx context.Context, email string, purpose OTPPurpose) error {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		return err
	}
	if purpose == PurposeVerify && user.Verified {
		s.logger.DebugContext(ctx, "identity already verified, skipping otp issue", "email", user.Email)
		return nil
	}

	code, err := s.codes.Code()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	expiresAt := time.Now().UTC().Add(s.ttl(purpose))

	switch purpose {
	case PurposeVerify:
		err = s.users.SetVerifyOTP(user.ID, code, expiresAt)
	case PurposeReset:
		err = s.users.SetResetOTP(user.ID, code, expiresAt)
	default:
		return fmt.Errorf("unknown otp purpose %q", purpose)
	}
	if err != nil {
		return err
	}

	if purpose == PurposeVerify {
		err = s.notifier.SendVerificationCode(ctx, user.Email, code)
	} else {
		err = s.notifier.SendResetCode(ctx, user.Email, code)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "otp notification dispatch failed",
			"email", user.Email, "purpose", string(purpose), "error", err)
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	s.logger.InfoContext(ctx, "otp issued", "email", user.Email, "purpose", string(purpose), "expires_at", expiresAt)
	return nil
}

// ConsumeVerify validates the candidate code and, in one conditional update,
// marks the identity verified and clears the pending pair. Exactly one of any
// set of concurrent consumers can succeed.
func (s *OTPService) ConsumeVerify(ctx context.Context, email, code string) error {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		return err
	}
	if err := s.checkPending(ctx, user, PurposeVerify, code); err != nil {
		return err
	}
	if err := s.users.ConsumeVerifyOTP(user.ID, code, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrStaleOTP) {
			return ErrInvalidCode
		}
		return err
	}
	s.logger.InfoContext(ctx, "identity verified", "email", user.Email)
	return nil
}

// ConsumeReset validates the candidate code and installs newPasswordHash in
// the same conditional update that clears the pair, so the consumed code can
// never authorize a second password change.
func (s *OTPService) ConsumeReset(ctx context.Context, email, code, newPasswordHash string) error {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		return err
	}
	if err := s.checkPending(ctx, user, PurposeReset, code); err != nil {
		return err
	}
	if err := s.users.ConsumeResetOTP(user.ID, code, newPasswordHash, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrStaleOTP) {
			return ErrInvalidCode
		}
		return err
	}
	s.logger.InfoContext(ctx, "password reset via otp", "email", user.Email)
	return nil
}

// checkPending classifies the failure before the conditional consume runs. An
// expired code is cleared here so a stale value cannot keep matching forever.
func (s *OTPService) checkPending(ctx context.Context, user *domain.User, purpose OTPPurpose, candidate string) error {
	var pending *string
	var expiresAt *time.Time
	if purpose == PurposeVerify {
		pending, expiresAt = user.VerifyOTP, user.VerifyOTPExpiresAt
	} else {
		pending, expiresAt = user.ResetOTP, user.ResetOTPExpiresAt
	}

	candidate = strings.TrimSpace(candidate)
	if pending == nil || candidate == "" || *pending != candidate {
		return ErrInvalidCode
	}
	if expiresAt == nil || time.Now().UTC().After(*expiresAt) {
		var err error
		if purpose == PurposeVerify {
			err = s.users.ClearVerifyOTP(user.ID, *pending)
		} else {
			err = s.users.ClearResetOTP(user.ID, *pending)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "failed to clear expired otp", "email", user.Email, "error", err)
		}
		return ErrOTPExpired
	}
	return nil
}

func (s *OTPService) ttl(purpose OTPPurpose) time.Duration {
	if purpose == PurposeReset {
		return s.resetTTL
	}
	return s.verifyTTL
}
