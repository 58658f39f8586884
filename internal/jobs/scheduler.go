// Package jobs runs periodic background work for long-lived client sessions:
// profile re-syncs and a gateway connectivity probe.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/edugame/xpsync/internal/app/syncer"
	"github.com/edugame/xpsync/internal/domain"
	"github.com/edugame/xpsync/internal/infra/metrics"
)

// Session is the part of the sync coordinator the scheduler drives.
type Session interface {
	SyncProfile(ctx context.Context) syncer.Result
	SetConnectivity(conn domain.Connectivity)
}

// Pinger probes gateway reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Specs are cron expressions; descriptors such as "@every 30s" are accepted.
type Specs struct {
	ProfileSync string
	Probe       string
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron    *cron.Cron
	session Session
	pinger  Pinger
	specs   Specs
	timeout time.Duration
	logger  *log.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler in UTC. timeout bounds each job run.
func NewScheduler(session Session, pinger Pinger, specs Specs, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := log.WithField("component", "jobs")
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		session: session,
		pinger:  pinger,
		specs:   specs,
		timeout: timeout,
		logger:  logger,
	}
}

// Start registers the jobs and starts the cron loop. Jobs stop when ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.specs.Probe, func() { s.Probe(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("probe schedule %q: %w", s.specs.Probe, err)
	}
	if _, err := s.cron.AddFunc(s.specs.ProfileSync, func() { s.SyncProfile(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("profile sync schedule %q: %w", s.specs.ProfileSync, err)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.cron.Start()
	s.logger.WithFields(log.Fields{
		"probe":        s.specs.Probe,
		"profile_sync": s.specs.ProfileSync,
	}).Info("scheduler started")
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Probe pings the gateway once and records the outcome as connectivity.
func (s *Scheduler) Probe(ctx context.Context) domain.Connectivity {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn := domain.Connected
	if err := s.pinger.Ping(ctx); err != nil {
		conn = domain.Disconnected
		metrics.ConnectivityProbes.WithLabelValues("failed").Inc()
		s.logger.WithError(err).Debug("probe failed")
	} else {
		metrics.ConnectivityProbes.WithLabelValues("ok").Inc()
	}
	s.session.SetConnectivity(conn)
	return conn
}

// SyncProfile runs one rate-limited profile re-sync.
func (s *Scheduler) SyncProfile(ctx context.Context) syncer.Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := s.session.SyncProfile(ctx)
	switch {
	case res.Skipped:
		s.logger.Debug("profile sync skipped inside rate window")
	case !res.Success:
		s.logger.WithError(res.Err).WithField("class", res.Class).Warn("profile sync failed")
	}
	return res
}
