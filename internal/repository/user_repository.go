package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/finsight/identity-service/internal/domain"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrStaleOTP is returned when a conditional OTP update matched no row:
	// the code was already consumed, replaced, or cleared by a concurrent
	// request.
	ErrStaleOTP = errors.New("otp no longer pending")
)

// UserRepository is the credential store contract. Single-use transitions
// (OTP consume, lockout bookkeeping) are conditional updates so that two
// concurrent requests cannot both win the same state change.
type UserRepository interface {
	Create(user *domain.User) error
	FindByEmail(email string) (*domain.User, error)
	FindByID(id string) (*domain.User, error)
	ExistsByEmail(email string) (bool, error)
	Patch(id string, patch domain.UserPatch) error

	SetVerifyOTP(userID, code string, expiresAt time.Time) error
	SetResetOTP(userID, code string, expiresAt time.Time) error
	ConsumeVerifyOTP(userID, code string, now time.Time) error
	ConsumeResetOTP(userID, code, newPasswordHash string, now time.Time) error
	ClearVerifyOTP(userID, code string) error
	ClearResetOTP(userID, code string) error

	UpdatePassword(userID, newHash string) error
	RecordFailedLogin(userID string, maxAttempts int, lockedUntil time.Time) error
	ResetLoginFailures(userID string) error
	UpdateLastLogin(userID string, at time.Time) error
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(user *domain.User) error {
	if err := r.db.Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *GormUserRepository) FindByEmail(email string) (*domain.User, error) {
	var u domain.User
	normalized := strings.TrimSpace(strings.ToLower(email))
	if err := r.db.Where("email = ?", normalized).First(&u).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &u, nil
}

func (r *GormUserRepository) FindByID(id string) (*domain.User, error) {
	var u domain.User
	if err := r.db.Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &u, nil
}

func (r *GormUserRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	normalized := strings.TrimSpace(strings.ToLower(email))
	err := r.db.Model(&domain.User{}).Where("email = ?", normalized).Count(&count).Error
	return count > 0, err
}

func (r *GormUserRepository) Patch(id string, patch domain.UserPatch) error {
	if patch.Empty() {
		return nil
	}
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Email != nil {
		updates["email"] = strings.TrimSpace(strings.ToLower(*patch.Email))
	}
	res := r.db.Model(&domain.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return ErrDuplicateEmail
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *GormUserRepository) SetVerifyOTP(userID, code string, expiresAt time.Time) error {
	return r.setOTP(userID, map[string]any{
		"verify_otp":            code,
		"verify_otp_expires_at": expiresAt,
	})
}

func (r *GormUserRepository) SetResetOTP(userID, code string, expiresAt time.Time) error {
	return r.setOTP(userID, map[string]any{
		"reset_otp":            code,
		"reset_otp_expires_at": expiresAt,
	})
}

func (r *GormUserRepository) setOTP(userID string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.Model(&domain.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ConsumeVerifyOTP flips verified and clears the pending pair in a single
// conditional update keyed on the candidate code still being current and
// unexpired. A zero-row result means a concurrent consume won.
func (r *GormUserRepository) ConsumeVerifyOTP(userID, code string, now time.Time) error {
	res := r.db.Model(&domain.User{}).
		Where("id = ? AND verify_otp = ? AND verify_otp_expires_at > ?", userID, code, now).
		Updates(map[string]any{
			"verified":              true,
			"verify_otp":            nil,
			"verify_otp_expires_at": nil,
			"updated_at":            now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleOTP
	}
	return nil
}

// ConsumeResetOTP installs the new password hash and clears the reset pair in
// the same conditional update, so a consumed code can never be replayed with a
// different password.
func (r *GormUserRepository) ConsumeResetOTP(userID, code, newPasswordHash string, now time.Time) error {
	res := r.db.Model(&domain.User{}).
		Where("id = ? AND reset_otp = ? AND reset_otp_expires_at > ?", userID, code, now).
		Updates(map[string]any{
			"password_hash":        newPasswordHash,
			"reset_otp":            nil,
			"reset_otp_expires_at": nil,
			"updated_at":           now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleOTP
	}
	return nil
}

// ClearVerifyOTP invalidates an expired code. Conditioned on the code value so
// a fresh replacement issued meanwhile is left alone.
func (r *GormUserRepository) ClearVerifyOTP(userID, code string) error {
	return r.db.Model(&domain.User{}).
		Where("id = ? AND verify_otp = ?", userID, code).
		Updates(map[string]any{
			"verify_otp":            nil,
			"verify_otp_expires_at": nil,
			"updated_at":            time.Now().UTC(),
		}).Error
}

func (r *GormUserRepository) ClearResetOTP(userID, code string) error {
	return r.db.Model(&domain.User{}).
		Where("id = ? AND reset_otp = ?", userID, code).
		Updates(map[string]any{
			"reset_otp":            nil,
			"reset_otp_expires_at": nil,
			"updated_at":           time.Now().UTC(),
		}).Error
}

func (r *GormUserRepository) UpdatePassword(userID, newHash string) error {
	res := r.db.Model(&domain.User{}).Where("id = ?", userID).
		Updates(map[string]any{"password_hash": newHash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordFailedLogin increments the failure counter atomically and, once the
// threshold is reached, sets the lock with its cooldown deadline. A lock whose
// cooldown has already passed counts as released, so continued failures push
// the deadline forward instead of leaving a stale one behind.
func (r *GormUserRepository) RecordFailedLogin(userID string, maxAttempts int, lockedUntil time.Time) error {
	now := time.Now().UTC()
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).Where("id = ?", userID).
			Updates(map[string]any{
				"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
				"updated_at":            now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return tx.Model(&domain.User{}).
			Where("id = ? AND failed_login_attempts >= ? AND (locked = ? OR locked_until <= ?)",
				userID, maxAttempts, false, now).
			Updates(map[string]any{
				"locked":       true,
				"locked_until": lockedUntil,
				"updated_at":   now,
			}).Error
	})
}

func (r *GormUserRepository) ResetLoginFailures(userID string) error {
	return r.db.Model(&domain.User{}).Where("id = ?", userID).
		Updates(map[string]any{
			"failed_login_attempts": 0,
			"locked":                false,
			"locked_until":          nil,
			"updated_at":            time.Now().UTC(),
		}).Error
}

func (r *GormUserRepository) UpdateLastLogin(userID string, at time.Time) error {
	return r.db.Model(&domain.User{}).Where("id = ?", userID).
		Updates(map[string]any{"last_login_at": at, "updated_at": at}).Error
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return err
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
