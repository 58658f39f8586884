package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp   int64
		want int64
	}{
		{-5, 1},
		{0, 1},
		{999, 1},
		{1000, 2},
		{2500, 3},
	}
	for _, tt := range tests {
		if got := LevelForXP(tt.xp); got != tt.want {
			t.Errorf("LevelForXP(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestValidateXPAmount(t *testing.T) {
	for _, ok := range []int64{1, 500, 1000} {
		if err := ValidateXPAmount(ok); err != nil {
			t.Errorf("ValidateXPAmount(%d) = %v", ok, err)
		}
	}
	for _, bad := range []int64{0, -1, 1001} {
		if err := ValidateXPAmount(bad); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ValidateXPAmount(%d) = %v, want ErrInvalidAmount", bad, err)
		}
	}
}

func TestNormalizeSource(t *testing.T) {
	if src, ok := NormalizeSource(" Quiz "); src != SourceQuiz || !ok {
		t.Errorf("NormalizeSource(Quiz) = %q, %v", src, ok)
	}
	if src, ok := NormalizeSource("homework"); src != SourceManual || ok {
		t.Errorf("NormalizeSource(homework) = %q, %v, want manual, false", src, ok)
	}
}

func TestCoerceInt(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{nil, 0},
		{42, 42},
		{float64(12.9), 12},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{json.Number("17"), 17},
		{json.Number("2.5"), 2},
		{" 33 ", 33},
		{"4.0", 4},
		{"abc", 0},
		{true, 1},
		{map[string]any{}, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			if got := CoerceInt(tt.in); got != tt.want {
				t.Errorf("CoerceInt(%#v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestCoerceStrings(t *testing.T) {
	got := CoerceStrings([]any{"a", nil, map[string]any{"id": "streak_3"}, map[string]any{"name": "no id"}, 7.0})
	want := []string{"a", "streak_3", "7"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("CoerceStrings() = %v, want %v", got, want)
	}
	if CoerceStrings("not a list") != nil {
		t.Error("CoerceStrings(non-list) should be nil")
	}
}

func TestSnapshotFromMap_Normalizes(t *testing.T) {
	snap := SnapshotFromMap(map[string]any{
		"total_xp":          "1500",
		"currentStreak":     -3,
		"rank":              nil,
		"weeklyGoal":        0,
		"streakFreezeCount": json.Number("1"),
	}).Normalize()

	if snap.TotalXP != 1500 || snap.Level != 2 {
		t.Errorf("TotalXP/Level = %d/%d, want 1500/2", snap.TotalXP, snap.Level)
	}
	if snap.CurrentStreak != 0 {
		t.Errorf("CurrentStreak = %d, want 0", snap.CurrentStreak)
	}
	if snap.Rank != UnknownRank {
		t.Errorf("Rank = %d, want %d", snap.Rank, UnknownRank)
	}
	if snap.WeeklyGoal != DefaultWeeklyGoal {
		t.Errorf("WeeklyGoal = %d, want %d", snap.WeeklyGoal, DefaultWeeklyGoal)
	}
	if snap.StreakFreezeCount != 1 {
		t.Errorf("StreakFreezeCount = %d, want 1", snap.StreakFreezeCount)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{nil, ClassNone},
		{fmt.Errorf("wrap: %w", ErrInvalidAmount), ClassValidation},
		{ErrNoFreezesAvailable, ClassValidation},
		{ErrEmptyAnswers, ClassValidation},
		{fmt.Errorf("GET /x: %w", ErrUnauthorized), ClassAuthentication},
		{ErrGatewayUnavailable, ClassTransient},
		{errors.New("boom"), ClassTransient},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestEventKindValid(t *testing.T) {
	if !EventXPAdded.Valid() || !EventRankImproved.Valid() {
		t.Error("known kinds reported invalid")
	}
	if EventKind("xp_removed").Valid() {
		t.Error("unknown kind reported valid")
	}
}

func TestSyncMetricsSuccessRate(t *testing.T) {
	if (SyncMetrics{}).SuccessRate() != 0 {
		t.Error("idle success rate should be 0")
	}
	m := SyncMetrics{TotalSyncAttempts: 4, SuccessfulSyncAttempts: 3}
	if m.SuccessRate() != 75 {
		t.Errorf("SuccessRate() = %v, want 75", m.SuccessRate())
	}
}
