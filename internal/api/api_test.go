package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/edugame/xpsync/internal/api"
	"github.com/edugame/xpsync/internal/app/engagement"
	"github.com/edugame/xpsync/internal/app/eventbus"
	"github.com/edugame/xpsync/internal/app/gamification"
	"github.com/edugame/xpsync/internal/app/syncer"
	"github.com/edugame/xpsync/internal/domain"
	"github.com/edugame/xpsync/internal/health"
	"github.com/edugame/xpsync/internal/infra/gateway"
	"github.com/edugame/xpsync/internal/infra/sqlite"
)

type fixture struct {
	srv   *httptest.Server
	token string
	svc   *engagement.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := engagement.NewService(db)
	svc.SetBcryptCost(bcrypt.MinCost)
	require.NoError(t, svc.SeedChallenges())
	_, token, err := svc.CreateUser("ada")
	require.NoError(t, err)

	checker := health.NewChecker(db, dir, 0)
	checker.RunOnce(context.Background())

	s := api.NewServer(svc)
	s.EnableMetrics()
	s.SetHealthChecker(checker)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return fixture{srv: ts, token: token, svc: svc}
}

func (f fixture) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// ─── Routing and Auth ───────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "GET", gateway.PathProfile, "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, gateway.CodeUnauthorized, body["code"])

	resp, _ = f.do(t, "GET", gateway.PathProfile, "nobody.secret", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAddXP_PermissiveBody(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "POST", gateway.PathXP, f.token, `{"amount":"40","source":"QUIZ"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 50, body["totalXP"]) // 40 + first_steps reward

	resp, body = f.do(t, "POST", gateway.PathXP, f.token, `{"amount":5000}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, gateway.CodeInvalidAmount, body["code"])
}

func TestStreakFreeze_Conflict(t *testing.T) {
	f := newFixture(t)
	for i := int64(0); i < domain.DefaultStreakFreezes; i++ {
		resp, _ := f.do(t, "POST", gateway.PathStreakFreeze, f.token, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := f.do(t, "POST", gateway.PathStreakFreeze, f.token, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, gateway.CodeNoFreezes, body["code"])
}

func TestListChallengesHidesAnswers(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, "GET", gateway.PathChallenges, f.token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	items, _ := body["challenges"].([]any)
	require.Len(t, items, len(engagement.DefaultChallenges()))
	first := items[0].(map[string]any)
	assert.NotContains(t, first, "answers")
	assert.NotContains(t, first, "Answers")
}

// ─── Client against the reference server ────────────────────────────────────

func TestClientRoundTrip(t *testing.T) {
	f := newFixture(t)
	c := gateway.New(f.srv.URL, f.token, 2*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	award, err := c.AddExperiencePoints(ctx, 100, domain.SourceCourse, map[string]any{"lesson": 3})
	require.NoError(t, err)
	assert.Equal(t, int64(110), award.TotalXP)
	assert.Equal(t, int64(1), award.Rank)

	out, err := c.SubmitChallenge(ctx, "fractions-1", []string{"3/4", "5/6"}, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(100), out.Score)
	assert.Equal(t, int64(100), out.XPGained)
	assert.Contains(t, out.AchievementsUnlocked, "first_challenge")

	_, err = c.SubmitChallenge(ctx, "missing", []string{"x"}, 1)
	assert.ErrorIs(t, err, domain.ErrUnknownChallenge)

	left, err := c.UseStreakFreeze(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultStreakFreezes-1, left)

	d, err := c.FetchDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.ChallengesCompleted)
	assert.NotEmpty(t, d.RecentXP)

	achs, err := c.FetchAchievements(ctx)
	require.NoError(t, err)
	assert.Len(t, achs, len(engagement.AllAchievements()))

	bad := gateway.New(f.srv.URL, "wrong.token", time.Second)
	_, err = bad.FetchProfile(ctx)
	assert.Equal(t, domain.ClassAuthentication, domain.Classify(err))
}

func TestCoordinatorConvergesWithServer(t *testing.T) {
	f := newFixture(t)
	gw := gateway.New(f.srv.URL, f.token, 2*time.Second)

	cfg := syncer.Config{
		XPMinInterval:      200 * time.Millisecond,
		ProfileMinInterval: time.Hour,
		Debounce:           20 * time.Millisecond,
		CallTimeout:        2 * time.Second,
	}
	coord := syncer.New(cfg, gw, gamification.NewStore(domain.StatsSnapshot{}), eventbus.New())
	defer coord.Close()
	ctx := context.Background()

	require.True(t, coord.Bootstrap(ctx).Success)
	for _, amt := range []int64{30, 20, 10} {
		require.True(t, coord.RequestAddXP(ctx, amt, "practice", nil).Success)
	}

	forced := coord.ForceSync(ctx)
	require.True(t, forced.Success, "err: %v", forced.Err)

	server, err := f.svc.Profile(firstUserID(t, f.svc))
	require.NoError(t, err)
	assert.Equal(t, server.TotalXP, forced.State.TotalXP)
	assert.Equal(t, int64(70), server.TotalXP) // 60 + first_steps reward
	assert.NotNil(t, forced.Dashboard)
	assert.Empty(t, forced.Partial)
}

func firstUserID(t *testing.T, svc *engagement.Service) string {
	t.Helper()
	users, err := svc.ListUsers()
	require.NoError(t, err)
	require.NotEmpty(t, users)
	return users[0].ID
}
