package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/finsight/identity-service/internal/config"
	"github.com/finsight/identity-service/internal/domain"
	"github.com/finsight/identity-service/internal/repository"
	"github.com/finsight/identity-service/internal/security"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		PasswordMinLength:   8,
		AuthMaxFailedLogins: 3,
		AuthLockoutCooldown: 15 * time.Minute,
	}
}

// fakeUserStore mirrors the conditional-update semantics of the real store so
// the services see the same single-use behavior without a database.
type fakeUserStore struct {
	users map[string]*domain.User

	failedLoginCalls  int
	resetFailureCalls int
	lastLoginCalls    int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*domain.User)}
}

func (s *fakeUserStore) add(u *domain.User) *domain.User {
	if u.ID == "" {
		u.ID = "id-" + u.Email
	}
	s.users[u.ID] = u
	return u
}

func (s *fakeUserStore) Create(u *domain.User) error {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
	}
	s.add(u)
	return nil
}

func (s *fakeUserStore) FindByEmail(email string) (*domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *fakeUserStore) FindByID(id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *fakeUserStore) ExistsByEmail(email string) (bool, error) {
	_, err := s.FindByEmail(email)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (s *fakeUserStore) Patch(id string, patch domain.UserPatch) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Email != nil {
		u.Email = strings.TrimSpace(strings.ToLower(*patch.Email))
	}
	return nil
}

func (s *fakeUserStore) SetVerifyOTP(userID, code string, expiresAt time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.VerifyOTP, u.VerifyOTPExpiresAt = &code, &expiresAt
	return nil
}

func (s *fakeUserStore) SetResetOTP(userID, code string, expiresAt time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.ResetOTP, u.ResetOTPExpiresAt = &code, &expiresAt
	return nil
}

func (s *fakeUserStore) ConsumeVerifyOTP(userID, code string, now time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if u.VerifyOTP == nil || *u.VerifyOTP != code || u.VerifyOTPExpiresAt == nil || !u.VerifyOTPExpiresAt.After(now) {
		return repository.ErrStaleOTP
	}
	u.Verified = true
	u.VerifyOTP, u.VerifyOTPExpiresAt = nil, nil
	return nil
}

func (s *fakeUserStore) ConsumeResetOTP(userID, code, newHash string, now time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if u.ResetOTP == nil || *u.ResetOTP != code || u.ResetOTPExpiresAt == nil || !u.ResetOTPExpiresAt.After(now) {
		return repository.ErrStaleOTP
	}
	u.PasswordHash = newHash
	u.ResetOTP, u.ResetOTPExpiresAt = nil, nil
	return nil
}

func (s *fakeUserStore) ClearVerifyOTP(userID, code string) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if u.VerifyOTP != nil && *u.VerifyOTP == code {
		u.VerifyOTP, u.VerifyOTPExpiresAt = nil, nil
	}
	return nil
}

func (s *fakeUserStore) ClearResetOTP(userID, code string) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if u.ResetOTP != nil && *u.ResetOTP == code {
		u.ResetOTP, u.ResetOTPExpiresAt = nil, nil
	}
	return nil
}

func (s *fakeUserStore) UpdatePassword(userID, newHash string) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = newHash
	return nil
}

func (s *fakeUserStore) RecordFailedLogin(userID string, maxAttempts int, lockedUntil time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	s.failedLoginCalls++
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts && !u.Locked {
		u.Locked = true
		u.LockedUntil = &lockedUntil
	}
	return nil
}

func (s *fakeUserStore) ResetLoginFailures(userID string) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	s.resetFailureCalls++
	u.FailedLoginAttempts = 0
	u.Locked = false
	u.LockedUntil = nil
	return nil
}

func (s *fakeUserStore) UpdateLastLogin(userID string, at time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	s.lastLoginCalls++
	u.LastLoginAt = &at
	return nil
}

type fixedOTPSource struct {
	code string
	err  error
}

func (f fixedOTPSource) Code() (string, error) { return f.code, f.err }

// recordingNotifier captures outbound notifications; failSend makes every
// delivery fail.
type recordingNotifier struct {
	verify   []string
	reset    []string
	welcome  []string
	failSend error
}

func (n *recordingNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	if n.failSend != nil {
		return n.failSend
	}
	n.verify = append(n.verify, email+":"+code)
	return nil
}

func (n *recordingNotifier) SendResetCode(_ context.Context, email, code string) error {
	if n.failSend != nil {
		return n.failSend
	}
	n.reset = append(n.reset, email+":"+code)
	return nil
}

func (n *recordingNotifier) SendWelcome(_ context.Context, email, name string) error {
	if n.failSend != nil {
		return n.failSend
	}
	n.welcome = append(n.welcome, email+":"+name)
	return nil
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func seedAccount(t *testing.T, store *fakeUserStore, email, password string, verified bool) *domain.User {
	t.Helper()
	return store.add(&domain.User{
		Email:        email,
		Name:         "Test User",
		PasswordHash: mustHash(t, password),
		Role:         domain.RoleUser,
		Verified:     verified,
		Enabled:      true,
	})
}
