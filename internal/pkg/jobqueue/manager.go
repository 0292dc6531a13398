package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/roteira-app/roteira/internal/pkg/database"
	"github.com/roteira-app/roteira/internal/pkg/env"
	metrics "github.com/roteira-app/roteira/internal/pkg/metrics/counter"
	"github.com/roteira-app/roteira/internal/pkg/payments"
)

// Manager runs the background tasks: periodic counter flushes from Redis to
// the database and the pending-payment sweep that settles purchase intents
// whose webhook delivery was missed.
type Manager struct {
	reconciler         *payments.Reconciler
	counterFlushTicker *time.Ticker
	pendingSweepTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global background task manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// Start starts the background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Background Manager] Starting background tasks")

	if m.reconciler == nil {
		m.reconciler = payments.NewReconcilerFromDB(database.GetDB())
	}

	// Start counter flush worker (Redis -> DB) every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	// Pending payment sweep - configurable interval
	sweepInterval := 15 * time.Minute
	if v := env.GetEnvInt("PENDING_SWEEP_INTERVAL_MINUTES", 0); v > 0 {
		sweepInterval = time.Duration(v) * time.Minute
	}
	m.pendingSweepTicker = time.NewTicker(sweepInterval)
	m.wg.Add(1)
	go m.pendingSweepWorker()

	log.Info("[Background Manager] Started successfully")
}

// Stop stops the background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Background Manager] Stopping background tasks...")

	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}
	if m.pendingSweepTicker != nil {
		m.pendingSweepTicker.Stop()
	}

	// Signal workers to stop. The channel stays closed until the next Start
	// recreates it, after all workers have exited.
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	log.Info("[Background Manager] Stopped successfully")
}

// counterFlushWorker periodically flushes buffered counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Background Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := m.flushCountersOnce(); err != nil {
				log.Errorf("[Background Manager] Counter flush error: %v", err)
			}
		}
	}
}

// pendingSweepWorker periodically re-checks pending purchase intents against
// the payment provider so a missed webhook cannot strand a paid purchase.
func (m *Manager) pendingSweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Background Manager] Pending sweep worker stopping")
			return
		case <-m.pendingSweepTicker.C:
			log.Debug("[Background Manager] Running pending payment sweep")
			if err := m.runPendingSweepOnce(); err != nil {
				log.Errorf("[Background Manager] Pending sweep error: %v", err)
			}
		}
	}
}

func (m *Manager) flushCountersOnce() error {
	// Flush Redis -> DB (batched CASE update)
	return metrics.FlushAll()
}

func (m *Manager) runPendingSweepOnce() error {
	m.mu.Lock()
	if m.reconciler == nil {
		m.reconciler = payments.NewReconcilerFromDB(database.GetDB())
	}
	rec := m.reconciler
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	// Only intents untouched for 10 minutes; fresh ones are still inside the
	// normal webhook delivery window.
	cutoff := time.Now().Add(-10 * time.Minute)
	return rec.SweepPending(ctx, cutoff, 100)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunPendingSweepOnce exposes a manual trigger for a single sweep (admin use).
func (m *Manager) RunPendingSweepOnce() error {
	return m.runPendingSweepOnce()
}
