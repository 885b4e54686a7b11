package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/finsight/identity-service/internal/repository"
	"github.com/finsight/identity-service/internal/security"
)

func newAuthFixture(t *testing.T, otpCode string) (*AuthService, *fakeUserStore, *recordingNotifier) {
	t.Helper()
	cfg := testConfig()
	store := newFakeUserStore()
	notifier := &recordingNotifier{}
	jwtMgr, err := security.NewJWTManager(strings.Repeat("k", 32), 10*time.Hour)
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	tokenSvc := NewTokenService(jwtMgr)
	otpSvc := NewOTPService(store, notifier, fixedOTPSource{code: otpCode}, 24*time.Hour, 15*time.Minute, testLogger())
	return NewAuthService(cfg, store, tokenSvc, otpSvc, notifier, testLogger()), store, notifier
}

func TestLoginSuccessIssuesToken(t *testing.T) {
	svc, store, _ := newAuthFixture(t, "482913")
	u := seedAccount(t, store, "user@example.com", "correct-horse", true)

	res, err := svc.Login(context.Background(), " User@Example.com ", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a token")
	}
	if res.User.Email != "user@example.com" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if got := time.Until(res.ExpiresAt); got < 9*time.Hour || got > 10*time.Hour+time.Minute {
		t.Fatalf("unexpected expiry horizon: %v", got)
	}
	if store.lastLoginCalls != 1 {
		t.Fatalf("expected last-login bookkeeping, got %d calls", store.lastLoginCalls)
	}
	if store.users[u.ID].LastLoginAt == nil {
		t.Fatal("last login not recorded")
	}
}

func TestLoginUnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	svc, store, _ := newAuthFixture(t, "482913")
	seedAccount(t, store, "user@example.com", "correct-horse", true)

	_, errUnknown := svc.Login(context.Background(), "missing@example.com", "whatever")
	_, errWrong := svc.Login(context.Background(), "user@example.com", "battery-staple")

	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("both failures must be ErrInvalidCredentials: %v / %v", errUnknown, errWrong)
	}
}

func TestLoginWrongPasswordCountsTowardLockout(t *testing.T) {
	svc, store, _ := newAuthFixture(t, "482913")
	u := seedAccount(t, store, "user@example.com", "correct-horse", true)

	for i := 0; i < 3; i++ {
		if _, err := svc.Login(context.Background(), "user@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	if !store.users[u.ID].Locked {
		t.Fatal("expected lock after reaching the failure threshold")
	}
	if _, err := svc.Login(context.Background(), "user@example.com", "correct-horse"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked even with the right password, got %v", err)
	}
}

func TestLoginLockExpiresAfterCooldown(t *testing.T) {
	svc, store, _ := newAuthFixture(t, "482913")
	u := seedAccount(t, store, "user@example.com", "correct-horse", true)

	past := time.Now().UTC().Add(-time.Minute)
	store.users[u.ID].Locked = true
	store.users[u.ID].LockedUntil = &past
	store.users[u.ID].FailedLoginAttempts = 3

	res, err := svc.Login(context.Background(), "user@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login after cooldown: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a token")
	}
	if store.users[u.ID].Locked || store.users[u.ID].FailedLoginAttempts != 0 {
		t.Fatalf("expected lock state cleared on success: %+v", store.users[u.ID])
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, store, _ := newAuthFixture(t, "482913")
	u := seedAccount(t, store, "user@example.com", "correct-horse", true)
	store.users[u.ID].Enabled = false

	if _, err := svc.Login(context.Background(), "user@example.com", "correct-horse"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestRegisterCreatesUnverifiedIdentity(t *testing.T) {
	svc, store, notifier := newAuthFixture(t, "482913")

	u, err := svc.Register(context.Background(), " New@Example.com ", "New User", "long-enough-password")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "new@example.com" || u.Verified {
		t.Fatalf("unexpected identity: %+v", u)
	}
	if ok, _ := security.VerifyPassword(u.PasswordHash, "long-enough-password"); !ok {
		t.Fatal("stored hash does not verify the password")
	}
	if len(notifier.welcome) != 1 {
		t.Fatalf("expected a welcome notification, got %v", notifier.welcome)
	}
	if _, err := store.FindByEmail("new@example.com"); err != nil {
		t.Fatalf("identity not persisted: %v", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc, _, _ := newAuthFixture(t, "482913")

	cases := []struct {
		name     string
		email    string
		userName string
		password string
		wantErr  error
	}{
		{"short password", "a@example.com", "A", "short", ErrWeakPassword},
		{"missing name", "a@example.com", "  ", "long-enough-password", nil},
		{"bad email", "not-an-email", "A", "long-enough-password", nil},
		{"empty email", "", "A", "long-enough-password", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.email, tc.userName, tc.password)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, store, _ := newAuthFixture(t, "482913")
	seedAccount(t, store, "taken@example.com", "correct-horse", true)

	_, err := svc.Register(context.Background(), "taken@example.com", "Other", "long-enough-password")
	if !errors.Is(err, repository.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestResetPasswordWeakPasswordCheckedBeforeOTP(t *testing.T) {
	svc, store, _ := newAuthFixture(t, "654321")
	u := seedAccount(t, store, "user@example.com", "correct-horse", true)
	if err := svc.RequestResetOTP(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("request reset otp: %v", err)
	}

	err := svc.ResetPassword(context.Background(), "user@example.com", "654321", "short")
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	// The valid code must survive the rejected attempt.
	if store.users[u.ID].ResetOTP == nil {
		t.Fatal("reset code must not be consumed by a weak-password attempt")
	}

	if err := svc.ResetPassword(context.Background(), "user@example.com", "654321", "long-enough-password"); err != nil {
		t.Fatalf("reset with valid password: %v", err)
	}
	if ok, _ := security.VerifyPassword(store.users[u.ID].PasswordHash, "long-enough-password"); !ok {
		t.Fatal("new password does not verify after reset")
	}
}

func TestResetPasswordInvalidCode(t *testing.T) {
	svc, store, _ := newAuthFixture(t, "654321")
	seedAccount(t, store, "user@example.com", "correct-horse", true)
	if err := svc.RequestResetOTP(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("request reset otp: %v", err)
	}

	err := svc.ResetPassword(context.Background(), "user@example.com", "000000", "long-enough-password")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}

func TestVerifyEmailFlow(t *testing.T) {
	svc, store, notifier := newAuthFixture(t, "482913")
	u := seedAccount(t, store, "user@example.com", "correct-horse", false)

	if err := svc.RequestVerifyOTP(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("request verify otp: %v", err)
	}
	if len(notifier.verify) != 1 {
		t.Fatalf("expected one verification notification, got %v", notifier.verify)
	}
	if err := svc.VerifyEmail(context.Background(), "user@example.com", "482913"); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	if !store.users[u.ID].Verified {
		t.Fatal("identity should be verified")
	}
}
