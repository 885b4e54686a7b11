package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the durable identity record. OTP pairs are single-use and cleared by
// the repository's conditional updates; everything else is mutated only through
// the auth and OTP services.
type User struct {
	ID                  string     `gorm:"primaryKey;size:36" json:"id"`
	Email               string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name                string     `gorm:"size:255;not null" json:"name"`
	PasswordHash        string     `gorm:"size:1024;not null" json:"-"`
	Role                string     `gorm:"size:32;not null;default:user" json:"role"`
	Verified            bool       `gorm:"not null;default:false" json:"verified"`
	VerifyOTP           *string    `gorm:"size:6" json:"-"`
	VerifyOTPExpiresAt  *time.Time `json:"-"`
	ResetOTP            *string    `gorm:"size:6" json:"-"`
	ResetOTPExpiresAt   *time.Time `json:"-"`
	Enabled             bool       `gorm:"not null;default:true" json:"enabled"`
	Locked              bool       `gorm:"not null;default:false" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// LockActive reports whether the account lock is still in effect at now.
// A lock with no deadline never expires on its own.
func (u *User) LockActive(now time.Time) bool {
	if !u.Locked {
		return false
	}
	if u.LockedUntil == nil {
		return true
	}
	return now.Before(*u.LockedUntil)
}
