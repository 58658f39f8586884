package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/edugame/xpsync/internal/api"
	"github.com/edugame/xpsync/internal/app/engagement"
	"github.com/edugame/xpsync/internal/app/eventbus"
	"github.com/edugame/xpsync/internal/app/gamification"
	"github.com/edugame/xpsync/internal/app/syncer"
	"github.com/edugame/xpsync/internal/domain"
	"github.com/edugame/xpsync/internal/health"
	"github.com/edugame/xpsync/internal/infra/gateway"
	"github.com/edugame/xpsync/internal/infra/sqlite"
	"github.com/edugame/xpsync/internal/jobs"
)

// ─── Reference gateway server ───────────────────────────────────────────────

// Daemon is the reference stats gateway runtime. It wires storage, the
// engagement rules and the HTTP API together.
type Daemon struct {
	Config  Config
	DB      *sqlite.DB
	Service *engagement.Service
	Health  *health.Checker
	Server  *api.Server
	cancel  context.CancelFunc
	logger  *log.Entry
}

// New creates a Daemon from the on-disk configuration.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	dataDir := cfg.Server.DataDir
	if dataDir == "" {
		dataDir = XpsyncHome()
	}

	db, err := sqlite.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	svc := engagement.NewService(db)
	if cfg.Server.BcryptCost > 0 {
		svc.SetBcryptCost(cfg.Server.BcryptCost)
	}
	if err := svc.SeedChallenges(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed challenges: %w", err)
	}

	checker := health.NewChecker(db, dataDir, cfg.Server.HealthInterval)

	srv := api.NewServer(svc)
	srv.SetHealthChecker(checker)
	if cfg.Server.Metrics {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:  cfg,
		DB:      db,
		Service: svc,
		Health:  checker,
		Server:  srv,
		logger:  log.WithField("component", "daemon"),
	}, nil
}

// Serve starts the HTTP server and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.Health.RunOnce(ctx)
	go d.Health.Run(ctx)

	addr := d.Config.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	d.logger.WithFields(log.Fields{
		"addr":    addr,
		"metrics": d.Config.Server.Metrics,
		"data":    d.Config.Server.DataDir,
	}).Info("stats gateway serving")

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		cancel()
		return err
	}
	cancel()
	<-done
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// ─── Client session ─────────────────────────────────────────────────────────

// Session is one learner's client-side sync session: gateway client, local
// store, event bus and coordinator wired together.
type Session struct {
	Config      Config
	Gateway     *gateway.Client
	Bus         *eventbus.Bus
	Coordinator *syncer.Coordinator
	logger      *log.Entry
}

// ErrNoToken is returned when a session is opened without credentials.
var ErrNoToken = errors.New("no gateway token configured (set gateway.token or XPSYNC_GATEWAY_TOKEN)")

// OpenSession wires a client session and bootstraps the local store from the
// gateway. A failed bootstrap is logged and the session starts from zeroed
// stats. Initial connectivity comes from the gateway health endpoint, not
// from the bootstrap outcome.
func OpenSession(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Gateway.Token == "" {
		return nil, ErrNoToken
	}

	gw := gateway.New(cfg.Gateway.URL, cfg.Gateway.Token, cfg.Gateway.Timeout)
	bus := eventbus.New()
	store := gamification.NewStore(domain.StatsSnapshot{StreakFreezeCount: domain.DefaultStreakFreezes})
	coord := syncer.New(cfg.SyncerConfig(), gw, store, bus)

	s := &Session{
		Config:      cfg,
		Gateway:     gw,
		Bus:         bus,
		Coordinator: coord,
		logger:      log.WithField("component", "session"),
	}

	if res := coord.Bootstrap(ctx); !res.Success {
		if res.Class == domain.ClassAuthentication {
			coord.Close()
			return nil, res.Err
		}
		s.logger.WithError(res.Err).Warn("bootstrap failed, starting from local values")
	}

	conn := domain.Connected
	if err := gw.Ping(ctx); err != nil {
		conn = domain.Disconnected
		s.logger.WithError(err).Debug("gateway health check failed")
	}
	coord.SetConnectivity(conn)
	return s, nil
}

// Scheduler builds the background jobs for a long-lived session.
func (s *Session) Scheduler() *jobs.Scheduler {
	return jobs.NewScheduler(s.Coordinator, s.Gateway, jobs.Specs{
		ProfileSync: s.Config.Jobs.ProfileSync,
		Probe:       s.Config.Jobs.Probe,
	}, s.Config.Sync.CallTimeout)
}

// Close flushes pending XP and releases the coordinator.
func (s *Session) Close(ctx context.Context) {
	if res := s.Coordinator.Flush(ctx); !res.Success {
		s.logger.WithError(res.Err).Warn("pending xp not delivered on close")
	}
	s.Coordinator.Close()
}
