package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spnd/config"
	"spnd/database"
	"spnd/middleware"
	"spnd/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         "file:router_" + t.Name() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	reg := prometheus.NewRegistry()
	ledger := service.NewLedgerService(db, nil, service.NewMetrics(reg))
	t.Cleanup(ledger.WaitNotifications)

	return SetupRouter(Deps{
		Config:   &config.Config{RateLimit: config.RateLimitConfig{LoginAttempts: 5, LoginWindowSeconds: 60}},
		DB:       db,
		Ledger:   ledger,
		JWT:      middleware.NewJWT(config.JWTConfig{Secret: "router-secret", ExpireTime: time.Hour}),
		Google:   service.NewGoogleClient(config.GoogleConfig{}, "http://localhost/api/v1/auth/google/callback"),
		Gatherer: reg,
	})
}

func request(r http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_Infra(t *testing.T) {
	r := setupTestRouter(t)

	w := request(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)

	w = request(r, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(r, http.MethodOptions, "/api/v1/incomes", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = request(r, http.MethodGet, "/api/v1/balance", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, http.MethodGet, "/api/v1/auth/google/url", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetupRouter_RegisterLoginAndRecord(t *testing.T) {
	r := setupTestRouter(t)

	w := request(r, http.MethodPost, "/api/v1/auth/register",
		`{"username":"alice","password":"password123","email":"alice@example.com"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(r, http.MethodPost, "/api/v1/auth/login", `{"username":"alice@example.com","password":"password123"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.Data.Token)

	w = request(r, http.MethodPost, "/api/v1/incomes", `{"amount":"200","source":"公司","category":"工资"}`, login.Data.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(r, http.MethodPost, "/api/v1/expenses", `{"amount":"250","category":"餐饮"}`, login.Data.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_funds")

	w = request(r, http.MethodGet, "/api/v1/balance", "", login.Data.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"200"`)

	w = request(r, http.MethodGet, "/metrics", "", "")
	assert.Contains(t, w.Body.String(), "spnd_")
}

func TestSetupRouter_LoginRateLimit(t *testing.T) {
	r := setupTestRouter(t)

	body := `{"username":"nobody","password":"wrong-password"}`
	for i := 0; i < 5; i++ {
		w := request(r, http.MethodPost, "/api/v1/auth/login", body, "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := request(r, http.MethodPost, "/api/v1/auth/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
