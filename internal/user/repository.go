package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tasfrl/api/internal/database"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Repository handles user data persistence
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new unverified user with a pending verification code.
func (r *Repository) Create(ctx context.Context, email, passwordHash, otpCode string, otpExpiresAt time.Time) (*User, error) {
	dbUser := &database.User{
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		IsVerified:   false,
		OTPCode:      &otpCode,
		OTPExpiresAt: &otpExpiresAt,
		OTPAttempts:  0,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by email (case-insensitive; emails are
// stored lowercased).
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email = ?", strings.ToLower(email)).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByOTPCode retrieves the user holding the given pending verification
// code. Lookup is by code value, matching the verification-link contract
// where the link carries only the code.
func (r *Repository) GetByOTPCode(ctx context.Context, code string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("otp_code = ?", code).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by otp code: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// RefreshOTP replaces the pending verification code and expiry and resets
// the attempt counter. Only unverified accounts are touched.
func (r *Repository) RefreshOTP(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("otp_code = ?", code).
		Set("otp_expires_at = ?", expiresAt).
		Set("otp_attempts = ?", 0).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Where("is_verified = ?", false).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to refresh otp: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// IncrementOTPAttempts records one failed verification check.
func (r *Repository) IncrementOTPAttempts(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("otp_attempts = otp_attempts + 1").
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to increment otp attempts: %w", err)
	}

	return nil
}

// MarkVerified transitions the account to verified, clearing the code,
// expiry and attempt counter in one statement. The is_verified guard makes
// concurrent verification attempts converge on a single outcome.
func (r *Repository) MarkVerified(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("is_verified = ?", true).
		Set("otp_code = ?", nil).
		Set("otp_expires_at = ?", nil).
		Set("otp_attempts = ?", 0).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Where("is_verified = ?", false).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to mark user as verified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:           dbu.ID,
		Email:        dbu.Email,
		PasswordHash: dbu.PasswordHash,
		IsVerified:   dbu.IsVerified,
		OTPCode:      dbu.OTPCode,
		OTPExpiresAt: dbu.OTPExpiresAt,
		OTPAttempts:  dbu.OTPAttempts,
		CreatedAt:    dbu.CreatedAt,
		UpdatedAt:    dbu.UpdatedAt,
	}
}
