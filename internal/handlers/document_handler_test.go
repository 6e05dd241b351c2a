package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mom-admin-api/internal/cache"
	"mom-admin-api/internal/docstore"
	"mom-admin-api/internal/realtime"
	"mom-admin-api/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type docFixture struct {
	router *gin.Engine
	raw    docstore.Store
	cached *docstore.Cached
}

func newDocFixture(t *testing.T) docFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testutil.Logger(t)

	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	raw := docstore.NewGormStore(db, realtime.NewHub())
	cached := docstore.NewCached(raw, cache.New[json.RawMessage](cache.Options{MaxSize: 3}))

	docs := NewDocumentHandler(cached, log)
	caches := NewCacheHandler(cached.Cache())
	ws := NewSocketHandler(cached, log)

	r := gin.New()
	r.GET("/api/documents/*path", docs.GetDocument)
	r.PUT("/api/documents/*path", docs.PutDocument)
	r.GET("/api/cache/stats", caches.GetStats)
	r.DELETE("/api/cache", caches.ClearCache)
	r.GET("/api/ws", ws.WatchDocument)
	return docFixture{router: r, raw: raw, cached: cached}
}

func (f docFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestDocuments_PutThenGet(t *testing.T) {
	f := newDocFixture(t)

	w := f.do(http.MethodPut, "/api/documents/announcements/today", `{"title":"Drill at 10"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/documents/announcements/today", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"title":"Drill at 10"}`, w.Body.String())
}

func TestDocuments_Errors(t *testing.T) {
	f := newDocFixture(t)

	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/documents/missing", "").Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/documents/a/../b", "").Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/documents/a", `{broken`).Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/documents/", `{}`).Code)
}

func TestDocuments_ReadsAreCachedAndWritesInvalidate(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	require.NoError(t, f.raw.Write(ctx, "personnel/1", map[string]string{"name": "Ana"}))

	require.JSONEq(t, `{"name":"Ana"}`, f.do(http.MethodGet, "/api/documents/personnel/1", "").Body.String())
	require.JSONEq(t, `{"name":"Ana"}`, f.do(http.MethodGet, "/api/documents/personnel/1", "").Body.String())
	stats := f.cached.Cache().Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, 1, stats.Size)

	require.Equal(t, http.StatusOK, f.do(http.MethodPut, "/api/documents/personnel/1", `{"name":"Ana Maria"}`).Code)
	require.JSONEq(t, `{"name":"Ana Maria"}`, f.do(http.MethodGet, "/api/documents/personnel/1", "").Body.String())
}

func TestCache_StatsAndClear(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	for _, p := range []string{"a", "b"} {
		require.NoError(t, f.raw.Write(ctx, p, map[string]int{"v": 1}))
		f.do(http.MethodGet, "/api/documents/"+p, "")
	}

	w := f.do(http.MethodGet, "/api/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Stats cache.Stats `json:"stats"`
		Keys  []string    `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Stats.Size)
	require.Equal(t, 3, resp.Stats.MaxSize)
	require.Equal(t, 67, resp.Stats.UsagePercent)
	require.Equal(t, []string{"a", "b"}, resp.Keys)

	w = f.do(http.MethodDelete, "/api/cache", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2, decode(t, w)["cleared"])
	require.Equal(t, 0, f.cached.Cache().Len())
}

func TestWatchDocument(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	require.NoError(t, f.raw.Write(ctx, "config/login", map[string]int{"maxAttempts": 10}))

	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?path=config/login"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	read := func() DocumentEvent {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var evt DocumentEvent
		require.NoError(t, conn.ReadJSON(&evt))
		return evt
	}

	first := read()
	require.Equal(t, "config/login", first.Path)
	require.JSONEq(t, `{"maxAttempts":10}`, string(first.Data))

	require.NoError(t, f.cached.Write(ctx, "config/login", map[string]int{"maxAttempts": 4}))
	next := read()
	require.JSONEq(t, `{"maxAttempts":4}`, string(next.Data))
}

func TestWatchDocument_RequiresPath(t *testing.T) {
	f := newDocFixture(t)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/ws", "").Code)
}
