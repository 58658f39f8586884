package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/edugame/xpsync/internal/domain"
	"github.com/edugame/xpsync/internal/infra/gateway"
)

type ctxKey int

const userKey ctxKey = iota

// requireAuth resolves the bearer token to a user.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, gateway.CodeUnauthorized, "missing bearer token")
			return
		}
		u, err := s.svc.Authenticate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, gateway.CodeUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func userFrom(r *http.Request) domain.User {
	u, _ := r.Context().Value(userKey).(domain.User)
	return u
}

// decodeMap reads a permissive JSON object body. An empty body is an empty map.
func decodeMap(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Profile(userFrom(r).ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAddXP(w http.ResponseWriter, r *http.Request) {
	body, err := decodeMap(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeInvalidAmount, "invalid JSON body")
		return
	}
	meta, _ := body["metadata"].(map[string]any)
	award, err := s.svc.AddXP(
		userFrom(r).ID,
		domain.CoerceInt(body["amount"]),
		domain.CoerceString(body["source"]),
		meta,
	)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, award)
}

func (s *Server) handleSubmitChallenge(w http.ResponseWriter, r *http.Request) {
	body, err := decodeMap(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeEmptyAnswers, "invalid JSON body")
		return
	}
	out, err := s.svc.SubmitChallenge(
		userFrom(r).ID,
		chi.URLParam(r, "id"),
		domain.CoerceStrings(body["answers"]),
		domain.CoerceNonNegative(body["timeSpent"]),
	)
	if err != nil {
		s.fail(w, err)
		return
	}
	if out.AchievementsUnlocked == nil {
		out.AchievementsUnlocked = []string{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStreakFreeze(w http.ResponseWriter, r *http.Request) {
	left, err := s.svc.UseStreakFreeze(userFrom(r).ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"streakFreezeCount": left})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Dashboard(userFrom(r).ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if d.RecentXP == nil {
		d.RecentXP = []domain.XPEntry{}
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	achs, err := s.svc.Achievements(userFrom(r).ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": achs})
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	chs, err := s.svc.Challenges()
	if err != nil {
		s.fail(w, err)
		return
	}
	if chs == nil {
		chs = []domain.Challenge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": chs})
}

// fail maps a service error onto a status and error code.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, gateway.CodeInvalidAmount, err.Error())
	case errors.Is(err, domain.ErrEmptyAnswers):
		writeError(w, http.StatusBadRequest, gateway.CodeEmptyAnswers, err.Error())
	case errors.Is(err, domain.ErrUnknownChallenge):
		writeError(w, http.StatusNotFound, gateway.CodeUnknownChallenge, err.Error())
	case errors.Is(err, domain.ErrNoFreezesAvailable):
		writeError(w, http.StatusConflict, gateway.CodeNoFreezes, err.Error())
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, gateway.CodeUnauthorized, err.Error())
	default:
		s.logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
