package daemon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/edugame/xpsync/internal/domain"
	"github.com/edugame/xpsync/internal/infra/gateway"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Server.DataDir = t.TempDir()
	cfg.Server.BcryptCost = bcrypt.MinCost
	cfg.Sync.XPMinInterval = 0
	cfg.Sync.Debounce = 10 * time.Millisecond
	cfg.Gateway.Timeout = 2 * time.Second
	return cfg
}

func TestNewWithConfig_SeedsCatalog(t *testing.T) {
	d, err := NewWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	chs, err := d.Service.Challenges()
	if err != nil {
		t.Fatalf("Challenges() error: %v", err)
	}
	if len(chs) == 0 {
		t.Fatal("challenge catalog not seeded")
	}

	d.Health.RunOnce(context.Background())
	if !d.Health.IsHealthy() {
		t.Errorf("fresh daemon unhealthy: %+v", d.Health.Statuses())
	}
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 18751
	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestOpenSession_AgainstReferenceServer(t *testing.T) {
	cfg := testConfig(t)
	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	ts := httptest.NewServer(d.Server.Handler())
	defer ts.Close()

	_, token, err := d.Service.CreateUser("grace")
	if err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}
	cfg.Gateway.URL = ts.URL
	cfg.Gateway.Token = token

	ctx := context.Background()
	s, err := OpenSession(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenSession() error: %v", err)
	}

	state := s.Coordinator.State()
	if state.Connectivity != domain.Connected {
		t.Errorf("Connectivity = %q, want connected", state.Connectivity)
	}
	if state.StreakFreezeCount != domain.DefaultStreakFreezes {
		t.Errorf("StreakFreezeCount = %d, want %d", state.StreakFreezeCount, domain.DefaultStreakFreezes)
	}

	if res := s.Coordinator.RequestAddXP(ctx, 25, "quiz", nil); !res.Success {
		t.Fatalf("RequestAddXP() failed: %v", res.Err)
	}
	s.Close(ctx)

	if got := s.Coordinator.State().TotalXP; got != 35 { // 25 + first_steps reward
		t.Errorf("TotalXP = %d, want 35", got)
	}
	if s.Scheduler() == nil {
		t.Error("Scheduler() returned nil")
	}
}

func TestOpenSession_Errors(t *testing.T) {
	cfg := testConfig(t)

	if _, err := OpenSession(context.Background(), cfg); !errors.Is(err, ErrNoToken) {
		t.Errorf("OpenSession() without token = %v, want ErrNoToken", err)
	}

	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()
	ts := httptest.NewServer(d.Server.Handler())
	defer ts.Close()

	cfg.Gateway.URL = ts.URL
	cfg.Gateway.Token = "ghost.secret"
	if _, err := OpenSession(context.Background(), cfg); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("OpenSession() with bad token = %v, want ErrUnauthorized", err)
	}
}

func TestOpenSession_ProfileFailureStaysConnected(t *testing.T) {
	cfg := testConfig(t)
	mux := http.NewServeMux()
	mux.HandleFunc(gateway.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc(gateway.PathProfile, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	cfg.Gateway.URL = ts.URL
	cfg.Gateway.Token = "u.secret"

	s, err := OpenSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenSession() error: %v", err)
	}
	defer s.Coordinator.Close()

	st := s.Coordinator.State()
	if st.Connectivity != domain.Connected {
		t.Errorf("Connectivity = %q, want connected", st.Connectivity)
	}
	if !st.LastSyncAt.IsZero() {
		t.Errorf("LastSyncAt = %v, want zero after failed bootstrap", st.LastSyncAt)
	}
}

func TestOpenSession_OfflineStart(t *testing.T) {
	cfg := testConfig(t)
	ts := httptest.NewServer(nil)
	cfg.Gateway.URL = ts.URL
	ts.Close()
	cfg.Gateway.Token = "u.secret"

	s, err := OpenSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenSession() error: %v", err)
	}
	defer s.Coordinator.Close()

	if got := s.Coordinator.State().Connectivity; got != domain.Disconnected {
		t.Errorf("Connectivity = %q, want disconnected", got)
	}
}
