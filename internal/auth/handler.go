package auth

import (
	"net/http"

	"github.com/redmonkez12/payflow-auth/internal/apperror"
	"github.com/redmonkez12/payflow-auth/internal/httputil"
	"github.com/redmonkez12/payflow-auth/internal/logging"
	"github.com/redmonkez12/payflow-auth/internal/user"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// SessionResponse represents signup and OTP verification responses
type SessionResponse struct {
	Message string          `json:"message"`
	User    user.PublicUser `json:"user"`
	Token   string          `json:"token"`
}

// ChallengeResponse represents the first login step response
type ChallengeResponse struct {
	Message   string `json:"message" example:"Credentials verified. OTP generated. Please verify OTP to complete login."`
	OTP       string `json:"otp" example:"482913"`
	ExpiresIn string `json:"expiresIn" example:"10 minutes"`
}

// UserResponse represents the current user response
type UserResponse struct {
	Message string          `json:"message"`
	User    user.PublicUser `json:"user"`
}

// Signup handles user registration
// @Summary      Register a new user
// @Description  Create an account and receive a bearer token. No OTP step is required after signup.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body SignupRequest true "Signup details"
// @Success      201 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or validation error"
// @Failure      409 {object} httputil.ErrorResponse "Email already registered"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req SignupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid signup request body")
		httputil.RespondAppError(w, r, err)
		return
	}

	logger = logger.WithFields(map[string]any{"email": user.CanonicalEmail(req.Email)})

	session, err := h.service.Signup(r.Context(), req)
	if err != nil {
		httputil.RespondAppError(w, r, err)
		return
	}

	logger.Info("user registered successfully", "user_id", session.User.ID)

	httputil.RespondJSON(w, r, SessionResponse{
		Message: "User registered successfully",
		User:    session.User,
		Token:   session.Token,
	}, http.StatusCreated)
}

// Login handles the first login step
// @Summary      Verify credentials and issue an OTP
// @Description  Check email and password. On success a six digit OTP is generated and any earlier unused OTP for the account is invalidated.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} ChallengeResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing fields"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid login request body")
		httputil.RespondAppError(w, r, err)
		return
	}

	logger = logger.WithFields(map[string]any{"email": user.CanonicalEmail(req.Email)})

	challenge, err := h.service.Login(r.Context(), req)
	if err != nil {
		httputil.RespondAppError(w, r, err)
		return
	}

	logger.Info("otp issued", "expires_at", challenge.ExpiresAt)

	httputil.RespondJSON(w, r, ChallengeResponse{
		Message:   "Credentials verified. OTP generated. Please verify OTP to complete login.",
		OTP:       challenge.OTP,
		ExpiresIn: challenge.ExpiresIn,
	}, http.StatusOK)
}

// VerifyOTP handles the second login step
// @Summary      Complete login with an OTP
// @Description  Re-check credentials, consume the OTP and receive a bearer token. Each OTP works once.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body VerifyOTPRequest true "Credentials and OTP"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing fields"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials or invalid/expired OTP"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /verify-otp [post]
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req VerifyOTPRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid verify otp request body")
		httputil.RespondAppError(w, r, err)
		return
	}

	logger = logger.WithFields(map[string]any{"email": user.CanonicalEmail(req.Email)})

	session, err := h.service.VerifyOTP(r.Context(), req)
	if err != nil {
		httputil.RespondAppError(w, r, err)
		return
	}

	logger.Info("user logged in successfully", "user_id", session.User.ID)

	httputil.RespondJSON(w, r, SessionResponse{
		Message: "OTP verified successfully. Login complete.",
		User:    session.User,
		Token:   session.Token,
	}, http.StatusOK)
}

// Me returns the current user
// @Summary      Current user
// @Description  Resolve the bearer token to its account
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} UserResponse
// @Failure      401 {object} httputil.ErrorResponse "Missing, invalid or expired token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	token, err := BearerToken(r)
	if err != nil {
		httputil.RespondAppError(w, r, err)
		return
	}

	current, err := h.service.GetCurrentUser(r.Context(), token)
	if err != nil {
		httputil.RespondAppError(w, r, err)
		return
	}

	httputil.RespondJSON(w, r, UserResponse{
		Message: "User data retrieved",
		User:    *current,
	}, http.StatusOK)
}

// ChangePassword handles password changes for the authenticated user
// @Summary      Change password
// @Description  Replace the password after re-checking the current one. Unused OTPs are invalidated.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ChangePasswordRequest true "Current and new password"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Wrong current password or invalid token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /change-password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	current, ok := GetUserFromContext(r.Context())
	if !ok {
		httputil.RespondAppError(w, r, apperror.Authorization(apperror.CodeMissingAuth, msgNoToken, nil))
		return
	}

	var req ChangePasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid change password request body")
		httputil.RespondAppError(w, r, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), current.ID, req); err != nil {
		httputil.RespondAppError(w, r, err)
		return
	}

	logger.Info("password changed", "user_id", current.ID)

	httputil.RespondJSON(w, r, httputil.MessageResponse{Message: "Password changed successfully"}, http.StatusOK)
}
