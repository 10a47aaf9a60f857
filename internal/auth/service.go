package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/payflow-auth/internal/apperror"
	"github.com/redmonkez12/payflow-auth/internal/delivery"
	"github.com/redmonkez12/payflow-auth/internal/metrics"
	"github.com/redmonkez12/payflow-auth/internal/otp"
	"github.com/redmonkez12/payflow-auth/internal/user"
)

// Client-facing messages. Authentication failures never say which input was wrong.
const (
	msgInvalidCredentials = "Invalid credentials. Email or password is incorrect."
	msgInvalidOTP         = "Invalid or expired OTP. Please request a new OTP."
	msgEmailTaken         = "Email already registered. Please use another email or login."
	msgWrongPassword      = "Current password is incorrect."
	msgNoToken            = "Access denied. No token provided."
	msgTokenExpired       = "Token has expired."
	msgInvalidToken       = "Invalid token."
	msgUserGone           = "User not found"
)

// Auth events recorded in metrics
const (
	eventSignup         = "signup"
	eventLogin          = "login"
	eventVerifyOTP      = "verify_otp"
	eventChangePassword = "change_password"
	eventSetPassword    = "set_password"
)

var (
	errInvalidCredentials = apperror.Authentication(apperror.CodeInvalidCredentials, msgInvalidCredentials)
	errInvalidOTP         = apperror.Authentication(apperror.CodeInvalidOTP, msgInvalidOTP)
)

// SignupRequest represents the signup request body
type SignupRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=100,personname" example:"Jane Doe"`
	Email           string `json:"email" validate:"required,email,max=254" example:"jane@example.com"`
	Password        string `json:"password" validate:"required,strongpassword" example:"Abcd12!@"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password" example:"Abcd12!@"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254" example:"jane@example.com"`
	Password string `json:"password" validate:"required" example:"Abcd12!@"`
}

// VerifyOTPRequest represents the second login step
type VerifyOTPRequest struct {
	Email    string `json:"email" validate:"required,email,max=254" example:"jane@example.com"`
	Password string `json:"password" validate:"required" example:"Abcd12!@"`
	OTP      string `json:"otp" validate:"required" example:"482913"`
}

// ChangePasswordRequest represents the change password request body
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

type setPasswordRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,strongpassword"`
}

// Session is returned once a caller is authenticated
type Session struct {
	User  user.PublicUser `json:"user"`
	Token string          `json:"token"`
}

// Challenge is the outcome of a successful first login step
type Challenge struct {
	OTP       string    `json:"otp"`
	ExpiresIn string    `json:"expiresIn"`
	ExpiresAt time.Time `json:"-"`
}

// Options tunes the service
type Options struct {
	TokenTTL time.Duration
	OTPTTL   time.Duration
	Now      func() time.Time
	// GenerateOTP replaces the random code source, for tests
	GenerateOTP func() (string, error)
}

// Service coordinates signup and the two-step login
type Service struct {
	users     UserStore
	otps      otp.Store
	hasher    PasswordHasher
	tokens    TokenService
	deliverer delivery.Deliverer
	metrics   *metrics.Metrics

	tokenTTL time.Duration
	otpTTL   time.Duration
	now      func() time.Time
	generate func() (string, error)

	decoyOnce sync.Once
	decoyHash string
}

func NewService(
	users UserStore,
	otps otp.Store,
	hasher PasswordHasher,
	tokens TokenService,
	deliverer delivery.Deliverer,
	m *metrics.Metrics,
	opts Options,
) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.GenerateOTP == nil {
		opts.GenerateOTP = otp.Generate
	}

	return &Service{
		users:     users,
		otps:      otps,
		hasher:    hasher,
		tokens:    tokens,
		deliverer: deliverer,
		metrics:   m,
		tokenTTL:  opts.TokenTTL,
		otpTTL:    opts.OTPTTL,
		now:       opts.Now,
		generate:  opts.GenerateOTP,
	}
}

// Signup creates an account and returns a session for it right away
func (s *Service) Signup(ctx context.Context, req SignupRequest) (session *Session, err error) {
	defer func() { s.record(eventSignup, err) }()

	req.Name = strings.TrimSpace(req.Name)
	req.Email = user.CanonicalEmail(req.Email)
	if err := user.Validate(req); err != nil {
		return nil, err
	}

	_, err = s.users.FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return nil, apperror.Conflict(apperror.CodeEmailAlreadyExists, msgEmailTaken, nil)
	case !errors.Is(err, user.ErrNotFound):
		return nil, apperror.Infrastructure("failed to register user", err)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperror.Infrastructure("failed to register user", err)
	}

	created, err := s.users.Create(ctx, req.Name, req.Email, passwordHash)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, apperror.Conflict(apperror.CodeEmailAlreadyExists, msgEmailTaken, err)
		}
		if apperror.KindOf(err) == apperror.KindValidation {
			return nil, err
		}
		return nil, apperror.Infrastructure("failed to register user", err)
	}

	return s.issueSession(created)
}

// Login checks credentials and issues a fresh OTP, invalidating any earlier one
func (s *Service) Login(ctx context.Context, req LoginRequest) (challenge *Challenge, err error) {
	defer func() { s.record(eventLogin, err) }()

	req.Email = user.CanonicalEmail(req.Email)
	if err := user.Validate(req); err != nil {
		return nil, err
	}

	u, err := s.verifyCredentials(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	code, err := s.generate()
	if err != nil {
		return nil, apperror.Infrastructure("failed to generate otp", err)
	}
	expiresAt := s.now().Add(s.otpTTL)

	err = s.otps.RunInTx(ctx, func(ctx context.Context, tx otp.Store) error {
		if _, err := tx.InvalidateAllUnused(ctx, u.Email); err != nil {
			return err
		}
		_, err := tx.Create(ctx, u.Email, code, expiresAt)
		return err
	})
	if err != nil {
		return nil, apperror.Infrastructure("failed to issue otp", err)
	}

	if err := s.deliverer.Deliver(ctx, u.Email, code, s.otpTTL); err != nil {
		return nil, apperror.Infrastructure("failed to deliver otp", err)
	}

	return &Challenge{
		OTP:       code,
		ExpiresIn: otp.FormatWindow(s.otpTTL),
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyOTP re-checks credentials, consumes the code and issues a session
func (s *Service) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (session *Session, err error) {
	defer func() { s.record(eventVerifyOTP, err) }()

	req.Email = user.CanonicalEmail(req.Email)
	if err := user.Validate(req); err != nil {
		return nil, err
	}

	u, err := s.verifyCredentials(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.OTP)
	if !otp.ValidFormat(code) {
		return nil, errInvalidOTP
	}

	rec, err := s.otps.FindValid(ctx, u.Email, code)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) {
			return nil, errInvalidOTP
		}
		return nil, apperror.Infrastructure("failed to verify otp", err)
	}

	// Consumed before the token is issued so a failure below cannot leave a
	// replayable code behind.
	consumed, err := s.otps.MarkUsed(ctx, rec.ID)
	if err != nil {
		return nil, apperror.Infrastructure("failed to verify otp", err)
	}
	if !consumed {
		return nil, errInvalidOTP
	}

	return s.issueSession(u)
}

// Authenticate resolves a bearer token to the account it names
func (s *Service) Authenticate(ctx context.Context, token string) (*user.User, error) {
	if token == "" {
		return nil, apperror.Authorization(apperror.CodeMissingAuth, msgNoToken, nil)
	}

	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil, apperror.Authorization(apperror.CodeTokenExpired, msgTokenExpired, err)
		}
		return nil, apperror.Authorization(apperror.CodeInvalidToken, msgInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, apperror.Authorization(apperror.CodeInvalidToken, msgInvalidToken, err)
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, apperror.Authorization(apperror.CodeUserNotFound, msgUserGone, err)
		}
		return nil, apperror.Infrastructure("failed to load user", err)
	}

	return u, nil
}

// GetCurrentUser returns the public projection of the token's account
func (s *Service) GetCurrentUser(ctx context.Context, token string) (*user.PublicUser, error) {
	u, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	public := u.Public()
	return &public, nil
}

// ChangePassword replaces the password of an authenticated account after
// re-checking the current one. Outstanding OTPs are invalidated.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) (err error) {
	defer func() { s.record(eventChangePassword, err) }()

	if err := user.Validate(req); err != nil {
		return err
	}

	u, err := s.users.FindByID(ctx, userID, user.WithSecret())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperror.Authorization(apperror.CodeUserNotFound, msgUserGone, err)
		}
		return apperror.Infrastructure("failed to change password", err)
	}

	ok, err := s.hasher.Verify(req.CurrentPassword, u.PasswordHash)
	if err != nil {
		return apperror.Infrastructure("failed to change password", err)
	}
	if !ok {
		return apperror.Authentication(apperror.CodeInvalidCredentials, msgWrongPassword)
	}

	return s.replacePassword(ctx, u, req.NewPassword)
}

// replacePassword stores a new hash and drops every outstanding OTP, so a
// code issued under the old password cannot complete a login.
func (s *Service) replacePassword(ctx context.Context, u *user.User, password string) error {
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return apperror.Infrastructure("failed to change password", err)
	}

	if err := s.users.UpdatePassword(ctx, u.ID, passwordHash); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperror.Authorization(apperror.CodeUserNotFound, msgUserGone, err)
		}
		return apperror.Infrastructure("failed to change password", err)
	}

	if _, err := s.otps.InvalidateAllUnused(ctx, u.Email); err != nil {
		return apperror.Infrastructure("failed to change password", err)
	}

	return nil
}

// SetPassword replaces the password of the account registered under email
// without the current one. It backs operator tooling, not the HTTP API.
func (s *Service) SetPassword(ctx context.Context, email, password string) (err error) {
	defer func() { s.record(eventSetPassword, err) }()

	req := setPasswordRequest{Email: user.CanonicalEmail(email), Password: password}
	if err := user.Validate(req); err != nil {
		return err
	}

	u, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperror.Authorization(apperror.CodeUserNotFound, msgUserGone, err)
		}
		return apperror.Infrastructure("failed to set password", err)
	}

	return s.replacePassword(ctx, u, req.Password)
}

// verifyCredentials is shared by both login steps. Unknown email and wrong
// password produce the same error, after a comparable amount of hashing work.
func (s *Service) verifyCredentials(ctx context.Context, email, password string) (*user.User, error) {
	u, err := s.users.FindByEmail(ctx, email, user.WithSecret())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.burnDecoy(password)
			return nil, errInvalidCredentials
		}
		return nil, apperror.Infrastructure("failed to verify credentials", err)
	}

	ok, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		return nil, apperror.Infrastructure("failed to verify credentials", err)
	}
	if !ok {
		return nil, errInvalidCredentials
	}

	return u, nil
}

func (s *Service) burnDecoy(password string) {
	s.decoyOnce.Do(func() {
		s.decoyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	if s.decoyHash != "" {
		_, _ = s.hasher.Verify(password, s.decoyHash)
	}
}

func (s *Service) issueSession(u *user.User) (*Session, error) {
	token, err := s.tokens.CreateToken(u.ID, u.Email, s.tokenTTL)
	if err != nil {
		return nil, apperror.Infrastructure("failed to create token", err)
	}
	return &Session{User: u.Public(), Token: token}, nil
}

func (s *Service) record(event string, err error) {
	switch {
	case err == nil:
		s.metrics.AuthEvent(event, metrics.OutcomeSuccess)
	case apperror.KindOf(err) == apperror.KindInfrastructure:
		s.metrics.AuthEvent(event, metrics.OutcomeError)
	default:
		s.metrics.AuthEvent(event, metrics.OutcomeRejected)
	}
}
