package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/goph-accounts/internal/admin"
	"github.com/and161185/goph-accounts/internal/authctx"
	"github.com/and161185/goph-accounts/internal/crypto"
	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/metrics"
	"github.com/and161185/goph-accounts/internal/repository/memory"
	"github.com/and161185/goph-accounts/internal/service"
	"github.com/and161185/goph-accounts/internal/token"
)

type testAPI struct {
	router  *gin.Engine
	metrics *metrics.Metrics
}

func newTestAPI(t *testing.T, guard *admin.Guard) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	kdf, err := crypto.NewKDF(crypto.AlgorithmArgon2id,
		crypto.WithArgonParams(crypto.ArgonParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32}))
	require.NoError(t, err)

	store := memory.NewStore()
	issuer := token.NewIssuer(store.Tokens(), store.Accounts())
	m := metrics.New()
	svc := service.NewAccountService(service.Deps{
		Accounts:  store.Accounts(),
		Roles:     store.Roles(),
		Hasher:    crypto.NewPooledHasher(kdf, 2),
		Generator: crypto.NewSecretGenerator(),
		Tokens:    issuer,
		Auth:      authctx.Context{},
		Log:       log,
		Metrics:   m,
	})

	return &testAPI{
		router: NewRouter(Config{
			Accounts: svc,
			Auth:     issuer,
			Guard:    guard,
			Log:      log,
			Metrics:  m,
		}),
		metrics: m,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

// register signs up and verifies an account, returning a bearer token.
func (a *testAPI) register(t *testing.T, username, email, password string) string {
	t.Helper()
	code, body := a.do(t, http.MethodPost, "/api/signup", gin.H{"username": username, "email": email, "password": password})
	require.Equal(t, http.StatusOK, code, body)
	msg := body["message"].(string)
	require.True(t, strings.HasPrefix(msg, service.MsgSignupCode))

	code, body = a.do(t, http.MethodPost, "/api/verify-email",
		gin.H{"email": email, "token": strings.TrimPrefix(msg, service.MsgSignupCode)})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, service.MsgVerified, body["message"])

	code, body = a.do(t, http.MethodPost, "/api/login", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, code, body)
	return body["token"].(string)
}

func TestAccountLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)
	bearer := api.register(t, "alice", "alice@example.com", "Secret1")

	code, body := api.do(t, http.MethodPost, "/api/login", gin.H{"email": "ALICE@example.com", "password": "Secret1"})
	require.Equal(t, http.StatusOK, code)
	user := body["user"].(map[string]any)
	require.Equal(t, "alice", user["username"])
	require.Equal(t, false, body["is_admin"])
	require.Equal(t, false, body["soft_deleted"])
	accountID := user["id"].(string)

	code, body = api.do(t, http.MethodDelete, "/api/account", nil, "Authorization", "Bearer "+bearer)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, service.MsgDeleted, body["message"])

	// tokens were revoked by the deletion
	code, body = api.do(t, http.MethodPost, "/api/logout", nil, "Authorization", "Bearer "+bearer)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, service.MsgUnauthenticated, body["error"])

	code, body = api.do(t, http.MethodPost, "/api/login", gin.H{"email": "alice@example.com", "password": "Secret1"})
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, service.MsgAccountDeleted, body["error"])

	code, body = api.do(t, http.MethodPost, "/api/restore-account", gin.H{"user_id": accountID})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, service.MsgRestored, body["message"])

	code, body = api.do(t, http.MethodPost, "/api/restore-account", gin.H{"user_id": accountID})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, service.MsgNotSoftDeleted, body["error"])

	bearer2 := api.login(t, "alice@example.com", "Secret1")
	code, body = api.do(t, http.MethodPost, "/api/logout", nil, "Authorization", "Bearer "+bearer2)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, service.MsgLoggedOut, body["message"])
}

func (a *testAPI) login(t *testing.T, email, password string) string {
	t.Helper()
	code, body := a.do(t, http.MethodPost, "/api/login", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, code, body)
	return body["token"].(string)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register(t, "bob", "bob@example.com", "Secret1")

	code, body := api.do(t, http.MethodPost, "/api/forgot-password", gin.H{"email": "bob@example.com"})
	require.Equal(t, http.StatusOK, code)
	msg := body["message"].(string)
	require.True(t, strings.HasPrefix(msg, service.MsgResetCode))
	reset := strings.TrimPrefix(msg, service.MsgResetCode)

	code, body = api.do(t, http.MethodPost, "/api/reset-password",
		gin.H{"email": "bob@example.com", "token": "wrong", "password": "Newpass1"})
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, service.MsgResetInvalid, body["error"])

	code, body = api.do(t, http.MethodPost, "/api/reset-password",
		gin.H{"email": "bob@example.com", "token": reset, "password": "Newpass1"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, service.MsgResetDone, body["message"])

	api.login(t, "bob@example.com", "Newpass1")
}

func TestErrorResponses(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register(t, "carol", "carol@example.com", "Secret1")

	t.Run("validation lists every field", func(t *testing.T) {
		code, body := api.do(t, http.MethodPost, "/api/signup", nil)
		require.Equal(t, http.StatusUnprocessableEntity, code)
		require.Len(t, body["errors"], 3)
	})

	t.Run("conflict", func(t *testing.T) {
		code, body := api.do(t, http.MethodPost, "/api/signup",
			gin.H{"username": "carol", "email": "carol@example.com", "password": "Secret1"})
		require.Equal(t, http.StatusUnprocessableEntity, code)
		require.ElementsMatch(t, []any{service.MsgUsernameTaken, service.MsgEmailTaken}, body["errors"])
	})

	t.Run("unknown email", func(t *testing.T) {
		code, body := api.do(t, http.MethodPost, "/api/forgot-password", gin.H{"email": "nobody@example.com"})
		require.Equal(t, http.StatusNotFound, code)
		require.Equal(t, service.MsgUserNotFound, body["error"])
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing bearer", func(t *testing.T) {
		code, body := api.do(t, http.MethodPost, "/api/logout", nil)
		require.Equal(t, http.StatusUnauthorized, code)
		require.Equal(t, service.MsgUnauthenticated, body["error"])
	})

	t.Run("unknown route", func(t *testing.T) {
		code, _ := api.do(t, http.MethodGet, "/api/nope", nil)
		require.Equal(t, http.StatusNotFound, code)
	})
}

func TestRestoreRequiresAdminTokenWhenGuarded(t *testing.T) {
	guard := admin.NewGuard([]byte("operator-key"))
	api := newTestAPI(t, guard)

	code, body := api.do(t, http.MethodPost, "/api/restore-account", gin.H{"user_id": "x"})
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "Forbidden.", body["error"])

	raw, err := guard.Mint("ops", time.Minute)
	require.NoError(t, err)
	code, body = api.do(t, http.MethodPost, "/api/restore-account", gin.H{"user_id": "x"}, AdminTokenHeader, raw)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, service.MsgUserNotFound, body["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, nil)

	code, body := api.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])

	api.do(t, http.MethodPost, "/api/login", gin.H{"email": "x@example.com", "password": "y"})
	require.GreaterOrEqual(t, testutil.CollectAndCount(api.metrics.APILatency), 1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "accounts_operations_total")
}

func TestHealthReportsStorageFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(Config{Ready: func(context.Context) error { return errors.New("db down") }})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(zaptest.NewLogger(t)))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{errs.Validation("a"), http.StatusUnprocessableEntity},
		{errs.Conflict("a"), http.StatusUnprocessableEntity},
		{errs.New(errs.ErrNotFound, "x"), http.StatusNotFound},
		{errs.New(errs.ErrUnauthorized, "x"), http.StatusUnauthorized},
		{errs.New(errs.ErrBadRequest, "x"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", errs.ErrInvalidTransition), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}
