package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resellboost/internal/config"
	"resellboost/internal/economy"
	"resellboost/internal/model"
	"resellboost/internal/store"
)

type fakeBoards struct {
	field string
	n     int
	err   error
}

func (f *fakeBoards) Leaderboard(_ context.Context, field string, n int) ([]economy.Standing, error) {
	f.field, f.n = field, n
	if f.err != nil {
		return nil, f.err
	}
	return []economy.Standing{{Rank: 1, UserID: "42", Value: 120}}, nil
}

func newTestServer(t *testing.T, boards Leaderboards) *Server {
	t.Helper()
	snap, err := config.ReadDir("../config/testdata")
	require.NoError(t, err)
	if boards == nil {
		boards = &fakeBoards{}
	}
	return NewServer(Options{
		Config:       config.NewStatic(snap),
		Leaderboards: boards,
		Backend:      "json",
		Metrics:      http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("# metrics")) }),
	})
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestIndexAndHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ResellBoost Bot is alive and running!", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/nope", "").Code)

	rec = do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "json", health["backend"])
	assert.NotEmpty(t, health["config_loaded_at"])

	assert.Equal(t, "# metrics", do(t, s, http.MethodGet, "/metrics", "").Body.String())
}

func TestHealthWithoutConfig(t *testing.T) {
	s := NewServer(Options{Config: config.NewStatic(nil), Leaderboards: &fakeBoards{}})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/products", "").Code)
}

func TestDashboardDocuments(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Len(t, decode[[]config.Product](t, rec), 4)

	assert.Len(t, decode[[]config.Achievement](t, do(t, s, http.MethodGet, "/api/achievements", "")), 3)
	assert.Len(t, decode[[]config.CreditShopItem](t, do(t, s, http.MethodGet, "/api/credit-shop", "")), 2)

	g := decode[config.GamificationConfig](t, do(t, s, http.MethodGet, "/api/config/gamification", ""))
	assert.Equal(t, [2]int{15, 25}, g.XPSystem.XPPerMessage)
}

func TestLeaderboardParams(t *testing.T) {
	boards := &fakeBoards{}
	s := newTestServer(t, boards)

	rec := do(t, s, http.MethodGet, "/api/leaderboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, economy.BoardXP, boards.field)
	assert.Equal(t, defaultBoardSize, boards.n)
	rows := decode[[]economy.Standing](t, rec)
	assert.Equal(t, "42", rows[0].UserID)

	do(t, s, http.MethodGet, "/api/leaderboard?type=affiliate&limit=500", "")
	assert.Equal(t, economy.BoardAffiliate, boards.field)
	assert.Equal(t, maxLeaderboard, boards.n)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/leaderboard?type=gold", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/leaderboard?limit=0", "").Code)

	failing := newTestServer(t, &fakeBoards{err: errors.New("disk")})
	assert.Equal(t, http.StatusInternalServerError, do(t, failing, http.MethodGet, "/api/leaderboard", "").Code)
}

func TestSimulate(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/simulate?messages=10&vip_referrals=1&sales=100&level=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[economy.SimResult](t, rec)
	assert.Equal(t, 500, got.XP)
	assert.InDelta(t, 10, got.Credits, 1e-9)
	assert.InDelta(t, 0.1, got.Rate, 1e-9)

	rec = do(t, s, http.MethodPost, "/api/simulate", `{"messages": 1, "sales": 20}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[economy.SimResult](t, rec)
	assert.Equal(t, 20, got.XP)
	assert.InDelta(t, 1, got.Credits, 1e-9)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/simulate?messages=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/simulate?sales=-5", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/simulate", "{").Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/products", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dashboard.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestAPIRateLimitPerIP(t *testing.T) {
	s := newTestServer(t, nil)

	for i := 0; i < APIPolicy.Limit; i++ {
		require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/products", "").Code, "request %d", i)
	}
	rec := do(t, s, http.MethodGet, "/api/products", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other clients and non-API routes are unaffected
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	other := httptest.NewRecorder()
	s.Handler().ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
}

func TestCachedLeaderboards(t *testing.T) {
	js := store.NewJSONStore(t.TempDir()+"/user_data.json", nil)
	ctx := context.Background()
	require.NoError(t, js.Load(ctx))
	cached := store.NewCachedStore(js, store.NewCache(16, time.Minute), nil)

	require.NoError(t, cached.Update(ctx, func(users model.Users) error {
		users.Ensure("1", time.Now(), true).WeeklyXP = 10
		users.Ensure("2", time.Now(), true).WeeklyXP = 30
		return nil
	}))

	boards := CachedLeaderboards{Store: cached}
	rows, err := boards.Leaderboard(ctx, economy.BoardXP, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[0].UserID)

	require.NoError(t, cached.Update(ctx, func(users model.Users) error {
		users["1"].WeeklyXP = 50
		return nil
	}))
	rows, err = boards.Leaderboard(ctx, economy.BoardXP, 5)
	require.NoError(t, err)
	assert.Equal(t, "1", rows[0].UserID, "updates invalidate cached rankings")
}

func TestChallenge(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/challenge", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string]any](t, rec))

	challenges := store.NewChallengeStore(t.TempDir() + "/" + store.ChallengeFile)
	require.NoError(t, challenges.Set(model.CommunityChallenge{"title": "100 ventes", "goal": 100.0}))
	s.opts.Challenges = challenges

	rec = do(t, s, http.MethodGet, "/api/challenge", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "100 ventes", got["title"])
	assert.Equal(t, 100.0, got["goal"])
}
