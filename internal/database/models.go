package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the persisted form of an account
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                uuid.UUID  `bun:"id,pk,type:uuid"`
	Name              string     `bun:"name,notnull"`
	Email             string     `bun:"email,notnull,unique"`
	PasswordHash      string     `bun:"password_hash,notnull"`
	PasswordChangedAt *time.Time `bun:"password_changed_at"`
	CreatedAt         time.Time  `bun:"created_at,notnull"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull"`
}

// OTP is the persisted form of a one-time passcode
type OTP struct {
	bun.BaseModel `bun:"table:otps,alias:o"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Email     string    `bun:"email,notnull"`
	Code      string    `bun:"code,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	Used      bool      `bun:"used,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// Timestamp normalizes t for storage: UTC, microsecond precision.
// Both dialects then compare and round-trip values consistently.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
