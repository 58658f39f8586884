package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/edugame/xpsync/internal/domain"
	"github.com/edugame/xpsync/internal/infra/sqlite"
)

func newTestDB(t *testing.T, dir string) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *sqlite.DB) {
	t.Helper()
	if err := db.UpsertChallenge(domain.Challenge{ID: "c1", Title: "t", Answers: []string{"a"}, RewardXP: 10}); err != nil {
		t.Fatal(err)
	}
}

func statusOf(c *Checker, name string) (Status, bool) {
	for _, s := range c.Statuses() {
		if s.Name == name {
			return s, true
		}
	}
	return Status{}, false
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestChecker_RunAllHealthy(t *testing.T) {
	dir := t.TempDir()
	db := newTestDB(t, dir)
	seed(t, db)

	c := NewChecker(db, dir, 0)
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 3 {
		t.Fatalf("Statuses() = %d, want 3", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	dir := t.TempDir()
	c := NewChecker(newTestDB(t, dir), dir, 0)

	// No statuses before the first run, so IsHealthy is vacuously true.
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_EmptyCatalog(t *testing.T) {
	dir := t.TempDir()
	c := NewChecker(newTestDB(t, dir), dir, 0)
	c.RunOnce(context.Background())

	s, ok := statusOf(c, "challenge_catalog")
	if !ok || s.Healthy {
		t.Errorf("challenge_catalog should fail on an empty catalog: %+v", s)
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false")
	}
}

func TestChecker_DataDirIsFile(t *testing.T) {
	dir := t.TempDir()
	db := newTestDB(t, dir)
	seed(t, db)

	file := filepath.Join(t.TempDir(), "data")
	os.WriteFile(file, []byte("not a dir"), 0644)

	c := NewChecker(db, file, 0)
	c.RunOnce(context.Background())

	if s, _ := statusOf(c, "data_dir"); s.Healthy {
		t.Error("data_dir should fail when path is a file")
	}
}

func TestChecker_FailingCheck(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{
				Name: "always_fail",
				CheckFn: func(ctx context.Context) error {
					return os.ErrPermission
				},
			},
		},
	}

	c.runAll(context.Background())

	statuses := c.Statuses()
	if statuses[0].Healthy {
		t.Error("always_fail check should not be healthy")
	}
	if statuses[0].Error == "" {
		t.Error("failing check should carry an error")
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	c := NewChecker(newTestDB(t, dir), dir, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if len(c.Statuses()) != 3 {
		t.Error("Run should evaluate checks immediately")
	}
}
