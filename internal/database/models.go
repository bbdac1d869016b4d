package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the database model for a registered account. While a
// verification cycle is pending, OTPCode and OTPExpiresAt are set; a
// verified account has both cleared and OTPAttempts at zero.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Email        string     `bun:"email,notnull,unique"`
	PasswordHash string     `bun:"password_hash,notnull"`
	IsVerified   bool       `bun:"is_verified,notnull,default:false"`
	OTPCode      *string    `bun:"otp_code"`
	OTPExpiresAt *time.Time `bun:"otp_expires_at"`
	OTPAttempts  int        `bun:"otp_attempts,notnull,default:0"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// ContactSubmission is the database model for a contact-form message.
// Rows are immutable after creation.
type ContactSubmission struct {
	bun.BaseModel `bun:"table:contact_submissions,alias:cs"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	Email     string    `bun:"email,notnull"`
	Message   string    `bun:"message,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
