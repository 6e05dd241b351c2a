package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mom-admin-api/internal/auth"
	"mom-admin-api/internal/cache"
	"mom-admin-api/internal/config"
	"mom-admin-api/internal/credentials"
	"mom-admin-api/internal/docstore"
	"mom-admin-api/internal/gate"
	"mom-admin-api/internal/localcache"
	"mom-admin-api/internal/metrics"
	"mom-admin-api/internal/models"
	"mom-admin-api/internal/realtime"
	"mom-admin-api/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type server struct {
	router *gin.Engine
	gate   *gate.Gate
	store  docstore.Store
}

func testDirectory(t *testing.T) models.CredentialDirectory {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	return models.CredentialDirectory{
		"admin":  {Password: string(hash), Name: "Admin", Active: true, Level: models.LevelSuperAdmin},
		"viewer": {Password: string(hash), Name: "Viewer", Active: true, Level: models.LevelViewer},
	}
}

func newServer(t *testing.T) server {
	t.Helper()
	return newServerWith(t, testDirectory(t), nil)
}

// newServerWith stores dir as the credential document unless it is nil,
// and passes seed to the directory as its seed and fallback list.
func newServerWith(t *testing.T, dir, seed models.CredentialDirectory) server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testutil.Logger(t)
	ctx := context.Background()

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Login.MaxAttempts = 2

	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	store := docstore.NewGormStore(db, realtime.NewHub())
	docs := docstore.NewCached(store, cache.New[json.RawMessage](cache.Options{MaxSize: cfg.Cache.MaxSize}))

	if dir != nil {
		require.NoError(t, store.Write(ctx, credentials.DefaultPath, dir))
	}

	g := gate.New(localcache.NewMemoryStore(), docs, gate.Options{MaxAttempts: cfg.Login.MaxAttempts, Logger: log})
	g.Start(ctx)
	t.Cleanup(g.Close)
	<-g.Ready()

	users := credentials.New(docs, "", 0, seed, log)
	t.Cleanup(users.Close)

	r, err := SetupRoutes(Deps{
		Config:    cfg,
		Gate:      g,
		Users:     users,
		Tokens:    auth.NewManager(cfg.JWT),
		Documents: docs,
		Metrics:   metrics.New(),
		Logger:    log,
	})
	require.NoError(t, err)
	return server{router: r, gate: g, store: store}
}

func (s server) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s server) login(t *testing.T, username string) string {
	t.Helper()
	w := s.do(http.MethodPost, "/api/login", "", `{"username":"`+username+`","password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct{ Token string }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"gateReady":true`)
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodOptions, "/api/login", "", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	s.do(http.MethodPost, "/api/login", "", `{"username":"admin","password":"bad"}`)

	w := s.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `mom_admin_login_attempts_total{outcome="failure"} 1`)
}

func TestLoginLockoutAndAdminReset(t *testing.T) {
	s := newServer(t)
	admin := s.login(t, "admin")

	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/login", "", `{"username":"admin","password":"x"}`).Code)
	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/login", "", `{"username":"admin","password":"x"}`).Code)
	require.Equal(t, http.StatusLocked, s.do(http.MethodPost, "/api/login", "", `{"username":"admin","password":"pw"}`).Code)

	status := s.do(http.MethodGet, "/api/login/status", "", "")
	require.JSONEq(t, `{"locked":true,"remainingAttempts":0,"maxAttempts":2,"ready":true}`, status.Body.String())

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/admin/lockout/reset", admin, "").Code)
	s.login(t, "admin")
}

func TestPermissions(t *testing.T) {
	s := newServer(t)
	viewer := s.login(t, "viewer")
	admin := s.login(t, "admin")

	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/session", "", "").Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/session", viewer, "").Code)

	require.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/cache/stats", viewer, "").Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/cache/stats", admin, "").Code)

	require.Equal(t, http.StatusForbidden, s.do(http.MethodPut, "/api/documents/notes/1", viewer, `{"a":1}`).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, "/api/documents/notes/1", admin, `{"a":1}`).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/documents/notes/1", viewer, "").Code)

	require.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/documents/config/credentials", viewer, "").Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/documents/config/credentials", admin, "").Code)

	require.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/api/cache", viewer, "").Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/cache", admin, "").Code)
	require.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/admin/lockout/reset", viewer, "").Code)
}

func TestRemoteLockoutResetReachesLogin(t *testing.T) {
	s := newServer(t)
	admin := s.login(t, "admin")
	s.do(http.MethodPost, "/api/login", "", `{"username":"admin","password":"x"}`)
	s.do(http.MethodPost, "/api/login", "", `{"username":"admin","password":"x"}`)
	require.True(t, s.gate.IsLocked())
	require.Eventually(t, func() bool {
		w := s.do(http.MethodGet, "/api/documents/config/login", admin, "")
		return w.Code == http.StatusOK && bytes.Contains(w.Body.Bytes(), []byte(`"locked":true`))
	}, time.Second, 5*time.Millisecond)

	// another instance clears the shared document
	w := s.do(http.MethodPut, "/api/documents/config/login", admin, `{"maxAttempts":2,"currentAttempts":0,"locked":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Eventually(t, func() bool { return !s.gate.IsLocked() }, time.Second, 5*time.Millisecond)
}

func TestFirstLoginOnFreshStoreUsesSeed(t *testing.T) {
	s := newServerWith(t, nil, testDirectory(t))

	_, err := s.store.Read(context.Background(), credentials.DefaultPath)
	require.ErrorIs(t, err, docstore.ErrNotFound)

	admin := s.login(t, "admin")
	require.False(t, s.gate.IsLocked())
	require.Equal(t, 2, s.gate.RemainingAttempts())

	_, err = s.store.Read(context.Background(), credentials.DefaultPath)
	require.NoError(t, err)
	w := s.do(http.MethodGet, "/api/documents/config/credentials", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"viewer"`)
}

func TestFreshStoreWithoutSeedRejectsLogin(t *testing.T) {
	s := newServerWith(t, nil, nil)
	w := s.do(http.MethodPost, "/api/login", "", `{"username":"admin","password":"pw"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
