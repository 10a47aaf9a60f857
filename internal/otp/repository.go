package otp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/payflow-auth/internal/database"
	"github.com/redmonkez12/payflow-auth/internal/user"
)

var ErrNotFound = errors.New("otp not found")

// Store is the OTP persistence contract consumed by the auth service
type Store interface {
	Create(ctx context.Context, email, code string, expiresAt time.Time) (*OTP, error)
	FindValid(ctx context.Context, email, code string) (*OTP, error)
	MarkUsed(ctx context.Context, id uuid.UUID) (bool, error)
	InvalidateAllUnused(ctx context.Context, email string) (int64, error)
	SweepExpired(ctx context.Context) (int64, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

var _ Store = (*Repository)(nil)

// Repository handles OTP persistence
type Repository struct {
	db  bun.IDB
	now func() time.Time
}

// NewRepository returns a repository over db. A nil clock means time.Now.
func NewRepository(db bun.IDB, now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{db: db, now: now}
}

// RunInTx calls fn with a store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Repository{db: tx, now: r.now})
	})
}

// Create stores a new unused code for email
func (r *Repository) Create(ctx context.Context, email, code string, expiresAt time.Time) (*OTP, error) {
	rec := &database.OTP{
		ID:        uuid.New(),
		Email:     user.CanonicalEmail(email),
		Code:      code,
		ExpiresAt: database.Timestamp(expiresAt),
		Used:      false,
		CreatedAt: database.Timestamp(r.now()),
	}

	if _, err := r.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create otp: %w", err)
	}

	return mapDBOTPToModel(rec), nil
}

// FindValid returns the newest unused, unexpired record matching email and code
func (r *Repository) FindValid(ctx context.Context, email, code string) (*OTP, error) {
	rec := new(database.OTP)
	err := r.db.NewSelect().
		Model(rec).
		Where("email = ?", user.CanonicalEmail(email)).
		Where("code = ?", code).
		Where("used = ?", false).
		Where("expires_at > ?", database.Timestamp(r.now())).
		OrderExpr("created_at DESC, id DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find otp: %w", err)
	}

	return mapDBOTPToModel(rec), nil
}

// MarkUsed consumes the record. It reports whether this call flipped the flag;
// false means the record was already used or does not exist.
func (r *Repository) MarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*database.OTP)(nil)).
		Set("used = ?", true).
		Where("id = ?", id).
		Where("used = ?", false).
		Exec(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to mark otp used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// InvalidateAllUnused marks every unused record for email as used
func (r *Repository) InvalidateAllUnused(ctx context.Context, email string) (int64, error) {
	result, err := r.db.NewUpdate().
		Model((*database.OTP)(nil)).
		Set("used = ?", true).
		Where("email = ?", user.CanonicalEmail(email)).
		Where("used = ?", false).
		Exec(ctx)

	if err != nil {
		return 0, fmt.Errorf("failed to invalidate otps: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// SweepExpired deletes every record whose expiry has passed
func (r *Repository) SweepExpired(ctx context.Context) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*database.OTP)(nil)).
		Where("expires_at <= ?", database.Timestamp(r.now())).
		Exec(ctx)

	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired otps: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func mapDBOTPToModel(rec *database.OTP) *OTP {
	return &OTP{
		ID:        rec.ID,
		Email:     rec.Email,
		Code:      rec.Code,
		ExpiresAt: rec.ExpiresAt,
		Used:      rec.Used,
		CreatedAt: rec.CreatedAt,
	}
}
