package service

import (
	"context"

	"github.com/finsight/identity-service/internal/domain"
)

// AuthServiceInterface is what the HTTP layer depends on, so handler tests can
// substitute a stub without a database.
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Register(ctx context.Context, email, name, password string) (*domain.User, error)
	ResetPassword(ctx context.Context, email, otp, newPassword string) error
	RequestVerifyOTP(ctx context.Context, email string) error
	RequestResetOTP(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, email, otp string) error
}
