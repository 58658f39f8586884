package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/edugame/xpsync/internal/domain"
)

func TestParseMeta(t *testing.T) {
	meta, err := parseMeta([]string{"lesson=3", "graded=true", "topic=fractions"})
	if err != nil {
		t.Fatalf("parseMeta() error: %v", err)
	}
	if meta["lesson"] != int64(3) {
		t.Errorf("lesson = %#v, want int64(3)", meta["lesson"])
	}
	if meta["graded"] != true {
		t.Errorf("graded = %#v, want true", meta["graded"])
	}
	if meta["topic"] != "fractions" {
		t.Errorf("topic = %#v", meta["topic"])
	}

	if _, err := parseMeta([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
	if m, _ := parseMeta(nil); m != nil {
		t.Errorf("parseMeta(nil) = %v, want nil", m)
	}
}

func TestPrintState(t *testing.T) {
	var buf bytes.Buffer
	st := domain.GamificationState{
		StatsSnapshot: domain.StatsSnapshot{
			TotalXP: 1250, Level: 2, Rank: domain.UnknownRank,
			WeeklyProgress: 120, WeeklyGoal: 500, StreakFreezeCount: 2,
		},
		Connectivity: domain.Connected,
	}
	lp := domain.LevelProgress{CurrentLevelXP: 250, RequiredXP: 1000, Percentage: 25}
	if err := printState(&buf, st, lp); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"1250", "unranked", "120/500", "connected", "25%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	printEvent(&buf, domain.Event{Kind: domain.EventRankImproved, NewRank: 4})
	printEvent(&buf, domain.Event{Kind: domain.EventAchievementUnlocked, Achievements: []string{"streak_3", "level_5"}})
	out := buf.String()
	if !strings.Contains(out, "#4") || !strings.Contains(out, "streak_3, level_5") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestPrintSyncMetrics(t *testing.T) {
	var buf bytes.Buffer
	printSyncMetrics(&buf, domain.SyncMetrics{})
	if buf.Len() != 0 {
		t.Errorf("idle metrics printed %q", buf.String())
	}

	printSyncMetrics(&buf, domain.SyncMetrics{
		TotalSyncAttempts: 4, SuccessfulSyncAttempts: 3, FailedSyncAttempts: 1,
		LastError: "connection refused",
	})
	out := buf.String()
	for _, want := range []string{"3/4 ok (75%)", "LAST ERROR  connection refused"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
