package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/studio-platform/internal/pkg/distlock"
	"github.com/ignite/studio-platform/internal/pkg/logger"
)

// =============================================================================
// MEMBERSHIP REFRESH WORKER
// =============================================================================
// Periodically recomputes cached segment memberships for every organization
// that has saved segments. Each organization is refreshed under its own
// distributed lock so that only one replica warms a tenant per cycle.

const (
	// DefaultRefreshInterval is how often the refresh cycle runs.
	DefaultRefreshInterval = 10 * time.Minute

	// DefaultRefreshLockTTL bounds how long a crashed replica can hold a tenant.
	DefaultRefreshLockTTL = 5 * time.Minute

	refreshLockPrefix = "segments:refresh:"
)

// Refresher is the part of the segment service the worker drives.
type Refresher interface {
	Organizations(ctx context.Context) ([]string, error)
	Refresh(ctx context.Context, orgID string) (int, error)
}

// LockFactory returns a fresh lock for key.
type LockFactory func(key string) distlock.DistLock

// RefreshStats summarizes one cycle.
type RefreshStats struct {
	Organizations int
	Refreshed     int
	Skipped       int
	Failed        int
	Contacts      int
}

// MembershipRefreshWorker keeps the membership cache warm.
type MembershipRefreshWorker struct {
	refresher Refresher
	newLock   LockFactory
	interval  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMembershipRefreshWorker creates a worker. newLock may be nil, in which
// case every cycle refreshes every organization unguarded.
func NewMembershipRefreshWorker(refresher Refresher, newLock LockFactory, interval time.Duration) *MembershipRefreshWorker {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &MembershipRefreshWorker{
		refresher: refresher,
		newLock:   newLock,
		interval:  interval,
	}
}

// Start begins the refresh loop in the background.
func (w *MembershipRefreshWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	logger.Info("membership refresh worker starting", "interval", w.interval.String())
	w.wg.Add(1)
	go w.runLoop(runCtx)
}

// Stop cancels the loop and waits for the current cycle to finish.
func (w *MembershipRefreshWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	logger.Info("membership refresh worker stopped")
}

func (w *MembershipRefreshWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()

	// Run once immediately on start
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single refresh cycle across all organizations.
func (w *MembershipRefreshWorker) RunOnce(ctx context.Context) RefreshStats {
	var stats RefreshStats
	start := time.Now()

	orgs, err := w.refresher.Organizations(ctx)
	if err != nil {
		logger.Error("membership refresh: list organizations", "error", err)
		return stats
	}
	stats.Organizations = len(orgs)

	for _, orgID := range orgs {
		if ctx.Err() != nil {
			break
		}
		n, ran, err := w.refreshOrg(ctx, orgID)
		switch {
		case err != nil:
			stats.Failed++
			logger.Warn("membership refresh failed", "org_id", orgID, "error", err)
		case !ran:
			stats.Skipped++
		default:
			stats.Refreshed++
			stats.Contacts += n
		}
	}

	logger.Info("membership refresh cycle complete",
		"organizations", stats.Organizations,
		"refreshed", stats.Refreshed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"contacts", stats.Contacts,
		"duration", time.Since(start).Round(time.Millisecond).String())
	return stats
}

func (w *MembershipRefreshWorker) refreshOrg(ctx context.Context, orgID string) (int, bool, error) {
	var n int
	run := func(ctx context.Context) error {
		var err error
		n, err = w.refresher.Refresh(ctx, orgID)
		return err
	}
	if w.newLock == nil {
		return n, true, run(ctx)
	}
	ran, err := distlock.Do(ctx, w.newLock(refreshLockPrefix+orgID), run)
	return n, ran, err
}
