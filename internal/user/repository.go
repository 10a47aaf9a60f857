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

	"github.com/redmonkez12/payflow-auth/internal/database"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Repository handles user data persistence
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

type findOptions struct {
	withSecret bool
}

// FindOption adjusts a lookup
type FindOption func(*findOptions)

// WithSecret includes the password hash in the returned user. Only credential
// verification needs it.
func WithSecret() FindOption {
	return func(o *findOptions) { o.withSecret = true }
}

type createInput struct {
	Name         string `json:"name" validate:"required,min=2,max=100,personname"`
	Email        string `json:"email" validate:"required,email,max=254"`
	PasswordHash string `json:"passwordHash" validate:"required"`
}

// Create inserts a new user. Input is validated again here so the table never
// holds a row the API would have rejected.
func (r *Repository) Create(ctx context.Context, name, email, passwordHash string) (*User, error) {
	in := createInput{
		Name:         strings.TrimSpace(name),
		Email:        CanonicalEmail(email),
		PasswordHash: passwordHash,
	}
	if err := Validate(in); err != nil {
		return nil, err
	}

	now := database.Timestamp(r.now())
	dbUser := &database.User{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Exec(ctx)

	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// FindByEmail retrieves a user by canonical email
func (r *Repository) FindByEmail(ctx context.Context, email string, opts ...FindOption) (*User, error) {
	dbUser := new(database.User)
	err := r.selectUser(dbUser, opts).
		Where("email = ?", CanonicalEmail(email)).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// FindByID retrieves a user by ID
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID, opts ...FindOption) (*User, error) {
	dbUser := new(database.User)
	err := r.selectUser(dbUser, opts).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// UpdatePassword replaces a user's password hash and records when it changed
func (r *Repository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	if passwordHash == "" {
		return errors.New("password hash is required")
	}

	now := database.Timestamp(r.now())
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("password_changed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", userID).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
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

func (r *Repository) selectUser(dbUser *database.User, opts []FindOption) *bun.SelectQuery {
	var o findOptions
	for _, opt := range opts {
		opt(&o)
	}

	q := r.db.NewSelect().Model(dbUser)
	if !o.withSecret {
		q = q.ExcludeColumn("password_hash")
	}
	return q
}

func mapDBUserToModel(dbUser *database.User) *User {
	return &User{
		ID:                dbUser.ID,
		Name:              dbUser.Name,
		Email:             dbUser.Email,
		PasswordHash:      dbUser.PasswordHash,
		PasswordChangedAt: dbUser.PasswordChangedAt,
		CreatedAt:         dbUser.CreatedAt,
		UpdatedAt:         dbUser.UpdatedAt,
	}
}
