// Package services hosts long-running background processors.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"famiglia/internal/core"
	"famiglia/internal/identity"
	"famiglia/internal/log"
)

// FamilyHealer repairs one parent's children list from the directory's
// ParentID pointers. The session manager implements it.
type FamilyHealer interface {
	ReconcileFamily(ctx context.Context, parentID string) error
}

// FamilyReconcilerConfig holds configuration for the family reconciler
type FamilyReconcilerConfig struct {
	// Interval is how often to sweep the directory (default: 5m)
	Interval time.Duration
}

// DefaultFamilyReconcilerConfig returns sensible defaults
func DefaultFamilyReconcilerConfig() FamilyReconcilerConfig {
	return FamilyReconcilerConfig{
		Interval: 5 * time.Minute,
	}
}

// FamilyReconciler periodically recomputes every parent's children list so
// links dropped by races or partial writes heal without operator action.
type FamilyReconciler struct {
	directory identity.Store
	healer    FamilyHealer
	logger    *log.Logger
	config    FamilyReconcilerConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFamilyReconciler creates a new family reconciler
func NewFamilyReconciler(directory identity.Store, healer FamilyHealer, logger *log.Logger, config FamilyReconcilerConfig) *FamilyReconciler {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if config.Interval <= 0 {
		config.Interval = DefaultFamilyReconcilerConfig().Interval
	}
	return &FamilyReconciler{
		directory: directory,
		healer:    healer,
		logger:    logger.WithComponent(log.ComponentReconciler),
		config:    config,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (r *FamilyReconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("family reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	r.logger.InfoContext(ctx, "Family reconciler started",
		log.FieldOperation, log.OpStartup,
		"interval", r.config.Interval)
	return nil
}

// Stop gracefully stops the reconciler and waits for completion.
func (r *FamilyReconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		r.logger.InfoContext(ctx, "Family reconciler stopped",
			log.FieldOperation, log.OpShutdown)
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Family reconciler stop timed out",
			log.FieldOperation, log.OpShutdown)
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

// IsRunning returns whether the reconciler is currently running
func (r *FamilyReconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *FamilyReconciler) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	r.RunOnce(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps every parent in the directory. Per-parent failures are
// logged and skipped so one bad record never stalls the sweep.
func (r *FamilyReconciler) RunOnce(ctx context.Context) {
	parents, err := r.directory.QueryAccounts(ctx, identity.Filter{Role: core.RoleParent})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list parents for sweep",
			log.FieldOperation, log.OpReconcile,
			log.FieldError, err.Error())
		return
	}

	healed := 0
	for _, parent := range parents {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := r.healer.ReconcileFamily(ctx, parent.ID); err != nil {
			r.logger.WarnContext(ctx, "Failed to reconcile family",
				log.FieldOperation, log.OpReconcile,
				log.FieldParentID, parent.ID,
				log.FieldError, err.Error())
			continue
		}
		healed++
	}

	r.logger.DebugContext(ctx, "Family sweep complete",
		log.FieldOperation, log.OpReconcile,
		log.FieldCount, healed)
}
