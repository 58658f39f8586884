// Package gateway is the HTTP client for the remote stats gateway.
//
// Responses are decoded into generic maps and coerced into domain types, so
// a gateway that sends strings for numbers or omits fields still yields a
// usable snapshot.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/edugame/xpsync/internal/domain"
)

// Route paths shared with the reference server.
const (
	PathHealth       = "/health"
	PathProfile      = "/api/gamification/profile"
	PathXP           = "/api/gamification/xp"
	PathStreakFreeze = "/api/gamification/streak-freeze"
	PathDashboard    = "/api/gamification/dashboard"
	PathAchievements = "/api/gamification/achievements"
	PathChallenges   = "/api/challenges"
)

// Error codes carried in the "code" field of error bodies.
const (
	CodeNoFreezes        = "no_freezes"
	CodeInvalidAmount    = "invalid_amount"
	CodeEmptyAnswers     = "empty_answers"
	CodeUnknownChallenge = "unknown_challenge"
	CodeUnauthorized     = "unauthorized"
)

// Client implements domain.StatsGateway over HTTP/JSON.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *log.Entry
}

var _ domain.StatsGateway = (*Client)(nil)

// New creates a client for baseURL authenticating with a bearer token.
// timeout bounds each request; zero means no client-side bound.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  log.WithField("component", "gateway"),
	}
}

// Ping checks the gateway's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, PathHealth, nil)
	return err
}

// FetchProfile returns the authoritative stats.
func (c *Client) FetchProfile(ctx context.Context) (domain.StatsSnapshot, error) {
	body, err := c.do(ctx, http.MethodGet, PathProfile, nil)
	if err != nil {
		return domain.StatsSnapshot{}, err
	}
	return domain.SnapshotFromMap(body).Normalize(), nil
}

// AddExperiencePoints grants XP.
func (c *Client) AddExperiencePoints(ctx context.Context, amount int64, source domain.XPSource, metadata map[string]any) (domain.XPAward, error) {
	body, err := c.do(ctx, http.MethodPost, PathXP, map[string]any{
		"amount":   amount,
		"source":   source,
		"metadata": metadata,
	})
	if err != nil {
		return domain.XPAward{}, err
	}
	snap := domain.SnapshotFromMap(body)
	return domain.XPAward{
		TotalXP:        max(snap.TotalXP, 0),
		Level:          snap.Level,
		WeeklyProgress: max(snap.WeeklyProgress, 0),
		Rank:           snap.Rank,
		LeveledUp:      domain.CoerceBool(body["leveledUp"]),
	}, nil
}

// SubmitChallenge posts answers for scoring.
func (c *Client) SubmitChallenge(ctx context.Context, challengeID string, answers []string, timeSpentSeconds int64) (domain.ChallengeOutcome, error) {
	path := PathChallenges + "/" + url.PathEscape(challengeID) + "/submit"
	body, err := c.do(ctx, http.MethodPost, path, map[string]any{
		"answers":   answers,
		"timeSpent": timeSpentSeconds,
	})
	if err != nil {
		return domain.ChallengeOutcome{}, err
	}
	stats, _ := body["userStats"].(map[string]any)
	return domain.ChallengeOutcome{
		Score:                domain.CoerceNonNegative(body["score"]),
		XPGained:             domain.CoerceNonNegative(body["xpGained"]),
		UserStats:            domain.SnapshotFromMap(stats).Normalize(),
		LeveledUp:            domain.CoerceBool(body["leveledUp"]),
		AchievementsUnlocked: domain.CoerceStrings(body["achievementsUnlocked"]),
	}, nil
}

// UseStreakFreeze consumes one freeze and returns the remaining count.
func (c *Client) UseStreakFreeze(ctx context.Context) (int64, error) {
	body, err := c.do(ctx, http.MethodPost, PathStreakFreeze, struct{}{})
	if err != nil {
		return 0, err
	}
	return domain.CoerceNonNegative(body["streakFreezeCount"]), nil
}

// FetchDashboard returns the dashboard aggregate.
func (c *Client) FetchDashboard(ctx context.Context) (domain.Dashboard, error) {
	body, err := c.do(ctx, http.MethodGet, PathDashboard, nil)
	if err != nil {
		return domain.Dashboard{}, err
	}
	stats, _ := body["stats"].(map[string]any)
	d := domain.Dashboard{
		Stats:                domain.SnapshotFromMap(stats).Normalize(),
		ChallengesCompleted:  domain.CoerceNonNegative(body["challengesCompleted"]),
		AchievementsUnlocked: domain.CoerceNonNegative(body["achievementsUnlocked"]),
		AchievementsTotal:    domain.CoerceNonNegative(body["achievementsTotal"]),
	}
	recent, _ := body["recentXP"].([]any)
	for _, it := range recent {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		src, _ := domain.NormalizeSource(domain.CoerceString(m["source"]))
		d.RecentXP = append(d.RecentXP, domain.XPEntry{
			ID:        domain.CoerceInt(m["id"]),
			Amount:    domain.CoerceNonNegative(m["amount"]),
			Source:    src,
			CreatedAt: parseTime(m["createdAt"]),
		})
	}
	return d, nil
}

// FetchAchievements returns the achievement catalog with unlock state.
func (c *Client) FetchAchievements(ctx context.Context) ([]domain.Achievement, error) {
	body, err := c.do(ctx, http.MethodGet, PathAchievements, nil)
	if err != nil {
		return nil, err
	}
	items, _ := body["achievements"].([]any)
	out := make([]domain.Achievement, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		id := domain.CoerceString(m["id"])
		if id == "" {
			continue
		}
		out = append(out, domain.Achievement{
			ID:         id,
			Name:       domain.CoerceString(m["name"]),
			Category:   domain.AchievementCategory(domain.CoerceString(m["category"])),
			RewardXP:   domain.CoerceNonNegative(m["rewardXP"]),
			Unlocked:   domain.CoerceBool(m["unlocked"]),
			UnlockedAt: parseTime(m["unlockedAt"]),
		})
	}
	return out, nil
}

// ─── Transport ──────────────────────────────────────────────────────────────

// do issues one request and decodes a JSON object body. A nil payload sends
// no body.
func (c *Client) do(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, c.statusError(resp.StatusCode, body, method, path, reqID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: decode response: %w: %v", method, path, domain.ErrGatewayUnavailable, err)
	}
	return body, nil
}

func (c *Client) statusError(status int, body map[string]any, method, path, reqID string) error {
	msg := domain.CoerceString(body["error"])
	if msg == "" {
		msg = http.StatusText(status)
	}
	c.logger.WithFields(log.Fields{
		"method":     method,
		"path":       path,
		"status":     status,
		"request_id": reqID,
	}).Debug(msg)

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w: %s", method, path, domain.ErrUnauthorized, msg)
	case status == http.StatusConflict && domain.CoerceString(body["code"]) == CodeNoFreezes:
		return domain.ErrNoFreezesAvailable
	case status == http.StatusNotFound && strings.HasPrefix(path, PathChallenges):
		return fmt.Errorf("%w: %s", domain.ErrUnknownChallenge, msg)
	case status == http.StatusBadRequest && domain.CoerceString(body["code"]) == CodeEmptyAnswers:
		return fmt.Errorf("%w: %s", domain.ErrEmptyAnswers, msg)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, msg)
	}
	return fmt.Errorf("%s %s: %w: HTTP %d: %s", method, path, domain.ErrGatewayUnavailable, status, msg)
}

// decodeBody reads a JSON object. An empty body decodes to an empty map.
func decodeBody(r io.Reader) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return map[string]any{}, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return map[string]any{}, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func parseTime(v any) time.Time {
	s := domain.CoerceString(v)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
