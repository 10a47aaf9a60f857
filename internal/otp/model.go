package otp

import (
	"time"

	"github.com/google/uuid"
)

// OTP is a one-time passcode issued for an email address
type OTP struct {
	ID        uuid.UUID
	Email     string
	Code      string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// ValidAt reports whether the code could still be redeemed at t
func (o *OTP) ValidAt(t time.Time) bool {
	return !o.Used && o.ExpiresAt.After(t)
}
