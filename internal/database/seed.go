package database

import (
	"fmt"
	"strings"

	"github.com/finsight/identity-service/internal/domain"
	"github.com/finsight/identity-service/internal/security"

	"gorm.io/gorm"
)

// SeedReport summarizes what a seed run changed, so repeated runs can be
// verified as no-ops.
type SeedReport struct {
	CreatedUsers  int  `json:"created_users"`
	PromotedAdmin bool `json:"promoted_admin"`
	Noop          bool `json:"noop"`
}

// devUsers are the development fixtures. Every account is pre-verified so
// local flows can log in without an OTP round trip.
var devUsers = []struct {
	Email    string
	Name     string
	Password string
}{
	{Email: "alice@example.com", Name: "Alice Doe", Password: "alice-dev-password"},
	{Email: "bob@example.com", Name: "Bob Roe", Password: "bob-dev-password"},
}

func Seed(db *gorm.DB, bootstrapAdminEmail string) error {
	_, err := SeedSync(db, bootstrapAdminEmail)
	return err
}

func SeedSync(db *gorm.DB, bootstrapAdminEmail string) (*SeedReport, error) {
	report := &SeedReport{}

	for _, fixture := range devUsers {
		var existing domain.User
		err := db.Where("email = ?", fixture.Email).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		hash, err := security.HashPassword(fixture.Password)
		if err != nil {
			return nil, fmt.Errorf("hash seed password: %w", err)
		}
		u := domain.User{
			Email:        fixture.Email,
			Name:         fixture.Name,
			PasswordHash: hash,
			Role:         domain.RoleUser,
			Verified:     true,
			Enabled:      true,
		}
		if err := db.Create(&u).Error; err != nil {
			return nil, err
		}
		report.CreatedUsers++
	}

	email := strings.TrimSpace(strings.ToLower(bootstrapAdminEmail))
	if email != "" {
		var u domain.User
		if err := db.Where("email = ?", email).First(&u).Error; err != nil {
			if err != gorm.ErrRecordNotFound {
				return nil, err
			}
		} else if u.Role != domain.RoleAdmin {
			if err := db.Model(&u).Update("role", domain.RoleAdmin).Error; err != nil {
				return nil, fmt.Errorf("promote bootstrap admin: %w", err)
			}
			report.PromotedAdmin = true
		}
	}

	report.Noop = report.CreatedUsers == 0 && !report.PromotedAdmin
	return report, nil
}

// VerifyEmail flips an identity to verified without an OTP round trip. Used
// by the seed tool for local development.
func VerifyEmail(db *gorm.DB, email string) error {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" {
		return fmt.Errorf("email is required")
	}
	tx := db.Model(&domain.User{}).Where("email = ?", normalized).
		Updates(map[string]any{"verified": true, "verify_otp": nil, "verify_otp_expires_at": nil})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
