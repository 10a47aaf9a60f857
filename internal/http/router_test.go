package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/payflow-auth/internal/auth"
	"github.com/redmonkez12/payflow-auth/internal/config"
	"github.com/redmonkez12/payflow-auth/internal/database/databasetest"
	"github.com/redmonkez12/payflow-auth/internal/delivery"
	apihttp "github.com/redmonkez12/payflow-auth/internal/http"
	"github.com/redmonkez12/payflow-auth/internal/httputil"
	"github.com/redmonkez12/payflow-auth/internal/logging"
	"github.com/redmonkez12/payflow-auth/internal/metrics"
	"github.com/redmonkez12/payflow-auth/internal/otp"
	"github.com/redmonkez12/payflow-auth/internal/user"
)

const prefix = "/api/auth"

type testAPI struct {
	t       *testing.T
	handler http.Handler
	router  *chi.Mux
	metrics *metrics.Metrics
	logs    *bytes.Buffer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db := databasetest.NewSQLite(t)
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	tokens, err := auth.NewPasetoService([]byte("0123456789abcdef0123456789abcdef"), nil)
	require.NoError(t, err)

	hasher := auth.NewArgon2Hasher(auth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	service := auth.NewService(
		user.NewRepository(db, nil),
		otp.NewRepository(db, nil),
		hasher,
		tokens,
		delivery.ResponseDeliverer{},
		m,
		auth.Options{TokenTTL: time.Hour, OTPTTL: 10 * time.Minute},
	)

	logs := &bytes.Buffer{}
	cfg := &config.Config{Server: config.ServerConfig{
		Env:            "prod",
		APIPrefix:      prefix,
		TrustedOrigins: []string{"http://localhost:3000"},
	}}

	router := apihttp.NewRouter(apihttp.RouterDeps{
		Config:         cfg,
		AuthHandler:    auth.NewHandler(service),
		AuthMiddleware: auth.NewMiddleware(service),
		Logger:         logging.NewLoggerWithWriter(logs, false),
		Metrics:        m,
		Gatherer:       reg,
	})

	return &testAPI{t: t, handler: router, router: router, metrics: m, logs: logs}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}

	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testAPI) signupJane() auth.SessionResponse {
	a.t.Helper()
	w := a.do(http.MethodPost, prefix+"/signup", "", map[string]string{
		"name":            "Jane Doe",
		"email":           "jane@x.com",
		"password":        "Abcd12!@",
		"confirmPassword": "Abcd12!@",
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[auth.SessionResponse](a.t, w)
}

func (a *testAPI) loginJane() auth.ChallengeResponse {
	a.t.Helper()
	w := a.do(http.MethodPost, prefix+"/login", "", map[string]string{
		"email":    "jane@x.com",
		"password": "Abcd12!@",
	})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return decode[auth.ChallengeResponse](a.t, w)
}

func (a *testAPI) verifyJane(code string) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, prefix+"/verify-otp", "", map[string]string{
		"email":    "jane@x.com",
		"password": "Abcd12!@",
		"otp":      code,
	})
}

func TestScenario_SignupThenMe(t *testing.T) {
	api := newTestAPI(t)

	signup := api.signupJane()
	assert.Equal(t, "User registered successfully", signup.Message)
	assert.NotEmpty(t, signup.Token)

	w := api.do(http.MethodGet, prefix+"/me", signup.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	me := decode[auth.UserResponse](t, w)
	assert.Equal(t, "User data retrieved", me.Message)
	assert.Equal(t, "jane@x.com", me.User.Email)
	assert.Equal(t, signup.User.ID, me.User.ID)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestScenario_LoginVerifyReplay(t *testing.T) {
	api := newTestAPI(t)
	api.signupJane()

	challenge := api.loginJane()
	assert.Regexp(t, `^\d{6}$`, challenge.OTP)
	assert.Equal(t, "10 minutes", challenge.ExpiresIn)

	w := api.verifyJane(challenge.OTP)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := decode[auth.SessionResponse](t, w)
	assert.Equal(t, "OTP verified successfully. Login complete.", session.Message)

	me := api.do(http.MethodGet, prefix+"/me", session.Token, nil)
	assert.Equal(t, http.StatusOK, me.Code)

	w = api.verifyJane(challenge.OTP)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_OTP", decode[httputil.ErrorResponse](t, w).Code)
}

func TestScenario_SecondLoginSupersedesFirst(t *testing.T) {
	api := newTestAPI(t)
	api.signupJane()

	first := api.loginJane()
	second := api.loginJane()

	if first.OTP != second.OTP {
		w := api.verifyJane(first.OTP)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := api.verifyJane(second.OTP)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSignup_Errors(t *testing.T) {
	api := newTestAPI(t)
	api.signupJane()

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{
			name:   "duplicate email",
			body:   map[string]string{"name": "Jane Doe", "email": "JANE@x.com", "password": "Abcd12!@", "confirmPassword": "Abcd12!@"},
			status: http.StatusConflict,
			code:   "EMAIL_ALREADY_EXISTS",
		},
		{
			name:   "weak password",
			body:   map[string]string{"name": "Jane Doe", "email": "j2@x.com", "password": "abcdefgh", "confirmPassword": "abcdefgh"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
		{
			name:   "confirmation mismatch",
			body:   map[string]string{"name": "Jane Doe", "email": "j3@x.com", "password": "Abcd12!@", "confirmPassword": "Abcd12!#"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
		{
			name:   "malformed json",
			body:   "not an object",
			status: http.StatusBadRequest,
			code:   "INVALID_REQUEST_BODY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(http.MethodPost, prefix+"/signup", "", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[httputil.ErrorResponse](t, w).Code)
		})
	}
}

func TestLogin_Errors(t *testing.T) {
	api := newTestAPI(t)
	api.signupJane()

	w := api.do(http.MethodPost, prefix+"/login", "", map[string]string{"email": "jane@x.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	wrong := api.do(http.MethodPost, prefix+"/login", "", map[string]string{"email": "jane@x.com", "password": "Abcd12!#"})
	unknown := api.do(http.MethodPost, prefix+"/login", "", map[string]string{"email": "nobody@x.com", "password": "Abcd12!@"})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
}

func TestMe_TokenErrors(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, prefix+"/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "MISSING_AUTH", decode[httputil.ErrorResponse](t, w).Code)

	w = api.do(http.MethodGet, prefix+"/me", "v4.local.forged", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", decode[httputil.ErrorResponse](t, w).Code)
}

func TestChangePassword(t *testing.T) {
	api := newTestAPI(t)
	signup := api.signupJane()

	body := map[string]string{
		"currentPassword": "Abcd12!@",
		"newPassword":     "Wxyz98?&",
		"confirmPassword": "Wxyz98?&",
	}

	w := api.do(http.MethodPost, prefix+"/change-password", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(http.MethodPost, prefix+"/change-password", signup.Token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(http.MethodPost, prefix+"/login", "", map[string]string{"email": "jane@x.com", "password": "Wxyz98?&"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	api.signupJane()

	w = api.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `payflow_auth_events_total{event="signup",outcome="success"} 1`)
	assert.Contains(t, w.Body.String(), `route="/api/auth/signup"`)
}

func TestSwaggerHiddenInProduction(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/swagger/index.html", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics_UnknownPathsDoNotGrowSeries(t *testing.T) {
	api := newTestAPI(t)

	for i := range 50 {
		w := api.do(http.MethodGet, fmt.Sprintf("/scan/%d", i), "", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(api.metrics.Requests))

	w := api.do(http.MethodGet, "/metrics", "", nil)
	assert.Contains(t, w.Body.String(), `route="unmatched"`)
	assert.NotContains(t, w.Body.String(), "/scan/")
}

func TestRecoveredPanicIsLoggedWithRequestID(t *testing.T) {
	api := newTestAPI(t)
	api.router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	w := api.do(http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var completed map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(api.logs.Bytes()), []byte("\n")) {
		var entry map[string]any
		if json.Unmarshal(line, &entry) == nil && entry["msg"] == "request completed" && entry["path"] == "/boom" {
			completed = entry
		}
	}
	require.NotNil(t, completed, api.logs.String())
	assert.EqualValues(t, http.StatusInternalServerError, completed["status"])
	assert.NotEmpty(t, completed["request_id"])
}
