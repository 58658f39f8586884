// Package syncer decides when the local gamification store talks to the
// stats gateway: optimistic local mutation first, debounced and rate-limited
// gateway calls second, reconciliation with authoritative values last.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/edugame/xpsync/internal/app/eventbus"
	"github.com/edugame/xpsync/internal/app/gamification"
	"github.com/edugame/xpsync/internal/domain"
	"github.com/edugame/xpsync/internal/infra/metrics"
)

// Config tunes the coordinator's rate limiting.
type Config struct {
	XPMinInterval      time.Duration // minimum spacing of XP grant calls
	ProfileMinInterval time.Duration // minimum spacing of profile re-syncs
	Debounce           time.Duration // quiet period before a deferred XP call
	CallTimeout        time.Duration // bound on calls issued from the debounce timer
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		XPMinInterval:      1 * time.Second,
		ProfileMinInterval: 30 * time.Second,
		Debounce:           250 * time.Millisecond,
		CallTimeout:        10 * time.Second,
	}
}

// Result is the uniform outcome of every public operation. Errors never
// escape as panics; they are carried in Err and classified in Class.
type Result struct {
	Success   bool                     `json:"success"`
	LocalOnly bool                     `json:"localOnly,omitempty"` // applied locally, not confirmed
	Deferred  bool                     `json:"deferred,omitempty"`  // waiting behind the debounce timer
	Skipped   bool                     `json:"skipped,omitempty"`   // dropped inside the rate window
	Stale     bool                     `json:"stale,omitempty"`     // response superseded by a newer sync
	Gain      *domain.XPGain           `json:"gain,omitempty"`
	Challenge *domain.ChallengeOutcome `json:"challenge,omitempty"`
	State     domain.GamificationState `json:"state"`
	Err       error                    `json:"-"`
	Class     domain.ErrorClass        `json:"errorClass,omitempty"`
}

// ForceSyncResult adds the secondary resources pulled by ForceSync.
type ForceSyncResult struct {
	Result
	Dashboard    *domain.Dashboard    `json:"dashboard,omitempty"`
	Achievements []domain.Achievement `json:"achievements,omitempty"`
	Partial      map[string]error     `json:"-"` // failures of secondary fetches
}

// pendingXP accumulates XP applied optimistically but not yet sent.
type pendingXP struct {
	amount   int64
	count    int
	source   domain.XPSource
	metadata map[string]any
}

func (p *pendingXP) add(amount int64, source domain.XPSource, metadata map[string]any) {
	p.amount += amount
	p.count++
	p.source = source
	p.metadata = metadata
}

func (p *pendingXP) take() pendingXP {
	out := *p
	*p = pendingXP{}
	return out
}

// Coordinator is the single writer of a gamification.Store.
type Coordinator struct {
	cfg      Config
	gw       domain.StatsGateway
	bus      *eventbus.Bus
	limiter  *Limiter
	debounce Debouncer
	logger   *log.Entry
	now      func() time.Time

	// mu serializes every store mutation. Gateway calls run without it.
	mu         sync.Mutex
	store      *gamification.Store
	pending    pendingXP
	issuedSeq  uint64
	appliedSeq uint64
	stats      domain.SyncMetrics
}

// New creates a coordinator. bus may be nil, in which case a private bus is used.
func New(cfg Config, gw domain.StatsGateway, store *gamification.Store, bus *eventbus.Bus) *Coordinator {
	if bus == nil {
		bus = eventbus.New()
	}
	if store == nil {
		store = gamification.NewStore(domain.StatsSnapshot{})
	}
	return &Coordinator{
		cfg:   cfg,
		gw:    gw,
		bus:   bus,
		store: store,
		limiter: NewLimiter(map[Workflow]time.Duration{
			WorkflowXP:      cfg.XPMinInterval,
			WorkflowProfile: cfg.ProfileMinInterval,
		}),
		logger: log.WithField("component", "syncer"),
		now:    time.Now,
	}
}

// Bus returns the event bus observers register on.
func (c *Coordinator) Bus() *eventbus.Bus { return c.bus }

// State returns a copy of the current local state.
func (c *Coordinator) State() domain.GamificationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.State()
}

// LevelProgress returns progress inside the current level.
func (c *Coordinator) LevelProgress() domain.LevelProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.LevelProgress()
}

// Metrics returns a copy of the sync counters.
func (c *Coordinator) Metrics() domain.SyncMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ResetMetrics zeroes the sync counters.
func (c *Coordinator) ResetMetrics() {
	c.mu.Lock()
	c.stats = domain.SyncMetrics{}
	c.mu.Unlock()
}

// SetConnectivity records an online/offline signal.
func (c *Coordinator) SetConnectivity(conn domain.Connectivity) {
	c.mu.Lock()
	prev := c.store.State().Connectivity
	c.store.SetConnectivity(conn)
	c.mu.Unlock()
	if prev != conn {
		c.logger.WithField("connectivity", conn).Info("connectivity changed")
	}
}

// Close cancels a pending debounced call. In-flight calls are not cancelled;
// their results are applied whenever they resolve.
func (c *Coordinator) Close() {
	if c.debounce.Cancel() {
		c.logger.Debug("pending xp sync dropped on close")
	}
}

// ─── Session bootstrap ──────────────────────────────────────────────────────

// Bootstrap rehydrates the store from the gateway at session start. On
// failure the store keeps its seed values.
func (c *Coordinator) Bootstrap(ctx context.Context) Result {
	c.limiter.Touch(WorkflowProfile)
	seq, start := c.beginSync(WorkflowProfile)
	snap, err := c.gw.FetchProfile(ctx)

	c.mu.Lock()
	c.finishLocked(WorkflowProfile, start, err)
	if err != nil {
		res := c.failureLocked(err, false)
		c.mu.Unlock()
		return res
	}
	c.store.Initialize(snap)
	c.store.OverlayUnsentXP(c.pending.amount)
	c.appliedSeq = max(c.appliedSeq, seq)
	c.store.MarkSynced(c.now())
	res := Result{Success: true, State: c.store.State()}
	c.mu.Unlock()
	return res
}

// ─── XP workflow ────────────────────────────────────────────────────────────

// RequestAddXP applies amount optimistically and syncs it with the gateway,
// either immediately or, inside the XP rate window, through the debounce
// timer. Deferred grants are coalesced into one call carrying their sum.
func (c *Coordinator) RequestAddXP(ctx context.Context, amount int64, source string, metadata map[string]any) Result {
	if err := domain.ValidateXPAmount(amount); err != nil {
		return c.rejected(err)
	}

	c.mu.Lock()
	gain, err := c.store.ApplyOptimisticXPGain(amount, source)
	if err != nil {
		c.mu.Unlock()
		return c.rejected(err)
	}
	c.pending.add(amount, gain.Source, metadata)

	if c.debounce.Pending() || !c.limiter.Allow(WorkflowXP) {
		delay := max(c.cfg.Debounce, c.limiter.Remaining(WorkflowXP))
		c.debounce.Arm(delay, c.flushDeferred)
		if c.pending.count > 1 {
			metrics.XPCoalesced.Inc()
		}
		res := Result{Success: true, LocalOnly: true, Deferred: true, Gain: &gain, State: c.store.State()}
		c.mu.Unlock()
		return res
	}

	batch := c.pending.take()
	c.mu.Unlock()

	res := c.sendXP(ctx, batch)
	res.Gain = &gain
	return res
}

// Flush sends any debounced XP now, bypassing the rate window.
func (c *Coordinator) Flush(ctx context.Context) Result {
	c.debounce.Cancel()
	c.mu.Lock()
	batch := c.pending.take()
	if batch.amount == 0 {
		res := Result{Success: true, State: c.store.State()}
		c.mu.Unlock()
		return res
	}
	c.mu.Unlock()
	c.limiter.Touch(WorkflowXP)
	return c.sendXP(ctx, batch)
}

func (c *Coordinator) flushDeferred() {
	c.mu.Lock()
	batch := c.pending.take()
	c.mu.Unlock()
	if batch.amount == 0 {
		return
	}
	c.limiter.Touch(WorkflowXP)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()
	if res := c.sendXP(ctx, batch); res.Err != nil {
		c.logger.WithError(res.Err).WithField("amount", batch.amount).Warn("deferred xp sync kept local value")
	}
}

// sendXP issues the gateway call(s) for a batch and reconciles the result.
func (c *Coordinator) sendXP(ctx context.Context, batch pendingXP) Result {
	meta := batch.metadata
	if batch.count > 1 {
		meta = make(map[string]any, len(batch.metadata)+1)
		for k, v := range batch.metadata {
			meta[k] = v
		}
		meta["coalesced"] = batch.count
	}

	seq, start := c.beginSync(WorkflowXP)
	var (
		award domain.XPAward
		err   error
	)
	for _, amt := range splitAmount(batch.amount) {
		award, err = c.gw.AddExperiencePoints(ctx, amt, batch.source, meta)
		if err != nil {
			break
		}
	}

	c.mu.Lock()
	c.finishLocked(WorkflowXP, start, err)
	if err != nil {
		res := c.failureLocked(err, true)
		c.mu.Unlock()
		return res
	}

	// The XP window runs from the last successful call.
	c.limiter.Touch(WorkflowXP)

	prev := c.store.Stats()
	snap := prev
	snap.TotalXP = award.TotalXP
	snap.Level = award.Level
	snap.WeeklyProgress = award.WeeklyProgress
	if award.Rank > 0 {
		snap.Rank = award.Rank
	}
	if stale := c.reconcileLocked(seq, snap); stale {
		res := Result{Success: true, Stale: true, State: c.store.State()}
		c.mu.Unlock()
		return res
	}
	state := c.store.State()
	c.mu.Unlock()

	now := c.now().UTC()
	c.bus.Publish(domain.Event{
		Kind:      domain.EventXPAdded,
		Amount:    batch.amount,
		Source:    batch.source,
		NewTotal:  state.TotalXP,
		NewLevel:  state.Level,
		LeveledUp: award.LeveledUp,
		Timestamp: now,
	})
	c.publishProgress(prev, state, award.LeveledUp, now)
	return Result{Success: true, State: state}
}

// splitAmount keeps each gateway call inside the accepted grant bound.
func splitAmount(total int64) []int64 {
	var out []int64
	for total > domain.MaxXPAmount {
		out = append(out, domain.MaxXPAmount)
		total -= domain.MaxXPAmount
	}
	if total > 0 {
		out = append(out, total)
	}
	return out
}

// ─── Profile workflows ──────────────────────────────────────────────────────

// SyncProfile re-reads the profile. Inside its rate window the call is
// dropped and reported as a skipped success.
func (c *Coordinator) SyncProfile(ctx context.Context) Result {
	if !c.limiter.Allow(WorkflowProfile) {
		metrics.SyncsSkipped.Inc()
		return Result{Success: true, Skipped: true, State: c.State()}
	}
	return c.pullProfile(ctx, WorkflowProfile)
}

func (c *Coordinator) pullProfile(ctx context.Context, wf Workflow) Result {
	seq, start := c.beginSync(wf)
	snap, err := c.gw.FetchProfile(ctx)

	c.mu.Lock()
	c.finishLocked(wf, start, err)
	if err != nil {
		res := c.failureLocked(err, false)
		c.mu.Unlock()
		return res
	}
	prev := c.store.Stats()
	stale := c.reconcileLocked(seq, snap)
	state := c.store.State()
	c.mu.Unlock()

	if !stale {
		c.publishRank(prev, state, c.now().UTC())
	}
	return Result{Success: true, Stale: stale, State: state}
}

// ForceSync bypasses every limiter: pending XP is flushed, then profile,
// dashboard and achievements are fetched concurrently. It succeeds iff the
// profile fetch succeeds.
func (c *Coordinator) ForceSync(ctx context.Context) ForceSyncResult {
	if flushed := c.Flush(ctx); flushed.Err != nil {
		c.logger.WithError(flushed.Err).Warn("force sync: pending xp flush failed")
	}
	c.limiter.Touch(WorkflowProfile)

	seq, start := c.beginSync(WorkflowForce)

	var (
		profile      domain.StatsSnapshot
		dashboard    domain.Dashboard
		achievements []domain.Achievement
		dashErr      error
		achErr       error
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		profile, err = c.gw.FetchProfile(ctx)
		return err
	})
	g.Go(func() error {
		dashboard, dashErr = c.gw.FetchDashboard(ctx)
		return nil
	})
	g.Go(func() error {
		achievements, achErr = c.gw.FetchAchievements(ctx)
		return nil
	})
	err := g.Wait()

	c.mu.Lock()
	c.finishLocked(WorkflowForce, start, err)
	if err != nil {
		res := c.failureLocked(err, false)
		c.mu.Unlock()
		return ForceSyncResult{Result: res}
	}
	prev := c.store.Stats()
	stale := c.reconcileLocked(seq, profile)
	state := c.store.State()
	c.mu.Unlock()

	if !stale {
		c.publishRank(prev, state, c.now().UTC())
	}

	out := ForceSyncResult{Result: Result{Success: true, Stale: stale, State: state}}
	out.Partial = make(map[string]error)
	if dashErr != nil {
		out.Partial["dashboard"] = dashErr
		c.logger.WithError(dashErr).Warn("force sync: dashboard unavailable")
	} else {
		out.Dashboard = &dashboard
	}
	if achErr != nil {
		out.Partial["achievements"] = achErr
		c.logger.WithError(achErr).Warn("force sync: achievements unavailable")
	} else {
		out.Achievements = achievements
	}
	return out
}

// ─── Challenge and streak freeze ────────────────────────────────────────────

// SubmitChallenge submits answers and reconciles with the returned stats.
func (c *Coordinator) SubmitChallenge(ctx context.Context, challengeID string, answers []string, timeSpentSeconds int64) Result {
	if challengeID == "" {
		return c.rejected(domain.ErrUnknownChallenge)
	}
	if len(answers) == 0 {
		return c.rejected(domain.ErrEmptyAnswers)
	}

	seq, start := c.beginSync(WorkflowChallenge)
	out, err := c.gw.SubmitChallenge(ctx, challengeID, answers, max(timeSpentSeconds, 0))

	c.mu.Lock()
	c.finishLocked(WorkflowChallenge, start, err)
	if err != nil {
		res := c.failureLocked(err, false)
		c.mu.Unlock()
		return res
	}
	prev := c.store.Stats()
	stale := c.reconcileLocked(seq, out.UserStats)
	state := c.store.State()
	c.mu.Unlock()

	now := c.now().UTC()
	c.bus.Publish(domain.Event{
		Kind:         domain.EventChallengeCompleted,
		Amount:       out.XPGained,
		Source:       domain.SourceChallenge,
		NewTotal:     state.TotalXP,
		NewLevel:     state.Level,
		LeveledUp:    out.LeveledUp,
		Achievements: out.AchievementsUnlocked,
		Timestamp:    now,
	})
	if len(out.AchievementsUnlocked) > 0 {
		c.bus.Publish(domain.Event{
			Kind:         domain.EventAchievementUnlocked,
			Achievements: out.AchievementsUnlocked,
			NewTotal:     state.TotalXP,
			Timestamp:    now,
		})
	}
	if !stale {
		c.publishProgress(prev, state, out.LeveledUp, now)
	}
	return Result{Success: true, Stale: stale, Challenge: &out, State: state}
}

// UseStreakFreeze consumes one freeze. The local balance is decremented
// before the call, so an empty balance never reaches the network, and is
// restored if the gateway fails for any other reason than an empty balance.
func (c *Coordinator) UseStreakFreeze(ctx context.Context) Result {
	c.mu.Lock()
	if err := c.store.ApplyStreakFreezeLocally(); err != nil {
		c.mu.Unlock()
		return c.rejected(err)
	}
	seenSeq := c.appliedSeq
	c.mu.Unlock()

	_, start := c.beginSync(WorkflowFreeze)
	remaining, err := c.gw.UseStreakFreeze(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishLocked(WorkflowFreeze, start, err)
	switch {
	case errors.Is(err, domain.ErrNoFreezesAvailable):
		c.store.SetStreakFreezeCount(0)
		return c.failureLocked(err, false)
	case err != nil:
		// Restore the freeze unless a reconciliation replaced the balance mid-call.
		if c.appliedSeq == seenSeq {
			c.store.SetStreakFreezeCount(c.store.Stats().StreakFreezeCount + 1)
		}
		return c.failureLocked(err, false)
	}
	c.store.SetStreakFreezeCount(remaining)
	return Result{Success: true, State: c.store.State()}
}

// ─── Internals ──────────────────────────────────────────────────────────────

func (c *Coordinator) beginSync(wf Workflow) (uint64, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issuedSeq++
	c.stats.TotalSyncAttempts++
	c.store.BeginSync()
	metrics.SyncAttempts.WithLabelValues(string(wf)).Inc()
	metrics.PendingSyncs.Inc()
	return c.issuedSeq, c.now()
}

// finishLocked updates counters after a gateway call. Caller holds mu.
func (c *Coordinator) finishLocked(wf Workflow, start time.Time, err error) {
	elapsed := c.now().Sub(start)
	c.store.EndSync()
	metrics.PendingSyncs.Dec()
	metrics.SyncLatency.WithLabelValues(string(wf)).Observe(elapsed.Seconds())
	c.stats.LastSyncDurationMs = elapsed.Milliseconds()
	if err != nil {
		c.stats.FailedSyncAttempts++
		c.stats.LastError = err.Error()
		metrics.SyncFailures.WithLabelValues(string(wf), string(domain.Classify(err))).Inc()
		c.logger.WithError(err).WithField("workflow", wf).Warn("gateway call failed")
		return
	}
	c.stats.SuccessfulSyncAttempts++
}

// reconcileLocked applies snap unless a newer sync was already applied, then
// lays XP still waiting behind the debounce timer back on top of it.
// Reports whether snap was discarded as stale. Caller holds mu.
func (c *Coordinator) reconcileLocked(seq uint64, snap domain.StatsSnapshot) bool {
	if seq < c.appliedSeq {
		c.stats.StaleResponses++
		metrics.StaleResponses.Inc()
		c.logger.WithFields(log.Fields{"seq": seq, "applied": c.appliedSeq}).Debug("discarding stale response")
		return true
	}
	c.store.ReconcileWithServer(snap)
	c.store.OverlayUnsentXP(c.pending.amount)
	c.appliedSeq = seq
	c.store.MarkSynced(c.now())
	return false
}

func (c *Coordinator) failureLocked(err error, localOnly bool) Result {
	return Result{
		Success:   false,
		LocalOnly: localOnly,
		State:     c.store.State(),
		Err:       err,
		Class:     domain.Classify(err),
	}
}

func (c *Coordinator) rejected(err error) Result {
	return Result{
		Success: false,
		State:   c.State(),
		Err:     err,
		Class:   domain.Classify(err),
	}
}

// publishProgress emits level_up and rank_improved after a reconciliation.
func (c *Coordinator) publishProgress(prev domain.StatsSnapshot, state domain.GamificationState, leveledUp bool, at time.Time) {
	if leveledUp {
		c.bus.Publish(domain.Event{
			Kind:      domain.EventLevelUp,
			NewTotal:  state.TotalXP,
			NewLevel:  state.Level,
			LeveledUp: true,
			Timestamp: at,
		})
	}
	c.publishRank(prev, state, at)
}

func (c *Coordinator) publishRank(prev domain.StatsSnapshot, state domain.GamificationState, at time.Time) {
	// Leaving the placeholder rank is not an improvement.
	if prev.Rank > 0 && prev.Rank != domain.UnknownRank && state.Rank < prev.Rank {
		c.bus.Publish(domain.Event{
			Kind:      domain.EventRankImproved,
			NewRank:   state.Rank,
			NewTotal:  state.TotalXP,
			Timestamp: at,
		})
	}
}
