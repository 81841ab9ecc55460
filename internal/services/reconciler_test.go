package services

import (
	"context"
	"testing"
	"time"

	"famiglia/internal/core"
	idmem "famiglia/internal/identity/memory"
	"famiglia/internal/session"
)

func newReconcilerHarness(t *testing.T) (*FamilyReconciler, *idmem.Store, *session.Manager, core.Account, core.Account) {
	t.Helper()
	ids := idmem.New()
	sess := session.NewManager(ids, nil, nil)
	ctx := context.Background()

	parent, err := sess.Register(ctx, "Dana", "dana@example.com", "secret1", core.RoleParent, "")
	if err != nil {
		t.Fatalf("register parent: %v", err)
	}
	child, err := sess.Register(ctx, "Theo", "theo@example.com", "secret1", core.RoleChild, parent.ID)
	if err != nil {
		t.Fatalf("register child: %v", err)
	}

	config := DefaultFamilyReconcilerConfig()
	config.Interval = 50 * time.Millisecond
	return NewFamilyReconciler(ids, sess, nil, config), ids, sess, parent, child
}

func TestDefaultFamilyReconcilerConfig(t *testing.T) {
	config := DefaultFamilyReconcilerConfig()
	if config.Interval != 5*time.Minute {
		t.Errorf("expected Interval 5m, got %v", config.Interval)
	}
}

func TestFamilyReconcilerRunOnceHealsDroppedLink(t *testing.T) {
	r, ids, _, parent, child := newReconcilerHarness(t)
	ctx := context.Background()

	// Simulate a lost link: wipe the parent's children list directly.
	empty := []string{}
	if err := ids.UpdateAccount(ctx, parent.ID, core.AccountPatch{Children: &empty}); err != nil {
		t.Fatalf("corrupt parent record: %v", err)
	}

	r.RunOnce(ctx)

	healed, err := ids.GetAccount(ctx, parent.ID)
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if len(healed.Children) != 1 || healed.Children[0] != child.ID {
		t.Fatalf("children after sweep = %v, want [%s]", healed.Children, child.ID)
	}
}

func TestFamilyReconcilerStartStop(t *testing.T) {
	r, _, _, _, _ := newReconcilerHarness(t)
	ctx := context.Background()

	if r.IsRunning() {
		t.Error("reconciler should not be running initially")
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.IsRunning() {
		t.Error("reconciler should report running after Start")
	}
	if err := r.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if r.IsRunning() {
		t.Error("reconciler should not report running after Stop")
	}
}

func TestFamilyReconcilerStopWithoutStart(t *testing.T) {
	r, _, _, _, _ := newReconcilerHarness(t)
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop on idle reconciler: %v", err)
	}
}
