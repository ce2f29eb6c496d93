package models_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/fieldops/workorder_backend/models"
)

func applyPlan(t *testing.T, lc models.WorkOrderLifecycle, target models.WorkOrderStatus, now time.Time) (models.WorkOrderLifecycle, models.TransitionPlan) {
	t.Helper()
	plan, err := models.PlanTransition(lc, target, now)
	if err != nil {
		t.Fatalf("PlanTransition(%s -> %s): %v", lc.Status, target, err)
	}
	return plan.Next, plan
}

func TestPlanTransitionStartStampedOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	for run := 0; run < 200; run++ {
		lc := models.WorkOrderLifecycle{Status: models.WorkOrderStatusScheduled}
		var firstStart *time.Time
		var firstCompletion *time.Time
		for step := 0; step < 25; step++ {
			target := models.AllWorkOrderStatuses[rng.Intn(len(models.AllWorkOrderStatuses))]
			now := base.Add(time.Duration(run*100+step) * time.Minute)
			next, plan := applyPlan(t, lc, target, now)

			if target == models.WorkOrderStatusInProgress && firstStart == nil && !plan.Correction {
				at := now
				firstStart = &at
				if !plan.Has(models.EffectStampStart) {
					t.Fatalf("run %d step %d: first in_progress did not stamp start", run, step)
				}
			} else if plan.Has(models.EffectStampStart) {
				t.Fatalf("run %d step %d: start stamped again on %s -> %s", run, step, lc.Status, target)
			}
			if target == models.WorkOrderStatusCompleted && firstCompletion == nil && !plan.Correction {
				at := now
				firstCompletion = &at
			}

			if firstStart == nil {
				if next.StartedAt != nil {
					t.Fatalf("run %d step %d: start set before any in_progress", run, step)
				}
			} else if next.StartedAt == nil || !next.StartedAt.Equal(*firstStart) {
				t.Fatalf("run %d step %d: start = %v, want %v", run, step, next.StartedAt, *firstStart)
			}
			if firstCompletion == nil {
				if next.CompletedAt != nil {
					t.Fatalf("run %d step %d: completion set before any completed", run, step)
				}
			} else if next.CompletedAt == nil || !next.CompletedAt.Equal(*firstCompletion) {
				t.Fatalf("run %d step %d: completion = %v, want %v", run, step, next.CompletedAt, *firstCompletion)
			}
			if !plan.Has(models.EffectAppendAudit) {
				t.Fatalf("run %d step %d: no audit effect", run, step)
			}
			lc = next
		}
	}
}

func TestPlanTransitionLifecycle(t *testing.T) {
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	steps := []models.WorkOrderStatus{
		models.WorkOrderStatusInProgress,
		models.WorkOrderStatusPaused,
		models.WorkOrderStatusInProgress,
		models.WorkOrderStatusCompleted,
	}

	lc := models.WorkOrderLifecycle{Status: models.WorkOrderStatusScheduled}
	audits := 0
	for i, target := range steps {
		now := base.Add(time.Duration(i+1) * time.Hour)
		next, plan := applyPlan(t, lc, target, now)
		if plan.Has(models.EffectAppendAudit) {
			audits++
		}
		switch i {
		case 0:
			if next.StartedAt == nil || !next.StartedAt.Equal(now) {
				t.Fatalf("start = %v, want %v", next.StartedAt, now)
			}
		case 2:
			if plan.Has(models.EffectStampStart) {
				t.Fatalf("re-entering in_progress stamped start again")
			}
		case 3:
			if next.CompletedAt == nil || !next.CompletedAt.Equal(now) {
				t.Fatalf("completion = %v, want %v", next.CompletedAt, now)
			}
		}
		if i < 3 && next.CompletedAt != nil {
			t.Fatalf("step %d: completion set early", i)
		}
		lc = next
	}
	if audits != 4 {
		t.Fatalf("audit effects = %d, want 4", audits)
	}
	if !lc.StartedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("start moved to %v", lc.StartedAt)
	}
}

func TestPlanTransitionCorrection(t *testing.T) {
	started := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	completed := time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		from       models.WorkOrderStatus
		to         models.WorkOrderStatus
		correction bool
	}{
		{"reopen completed", models.WorkOrderStatusCompleted, models.WorkOrderStatusInProgress, true},
		{"revive cancelled", models.WorkOrderStatusCancelled, models.WorkOrderStatusScheduled, true},
		{"reselect completed", models.WorkOrderStatusCompleted, models.WorkOrderStatusCompleted, false},
		{"pause", models.WorkOrderStatusInProgress, models.WorkOrderStatusPaused, false},
		{"cancel", models.WorkOrderStatusBlocked, models.WorkOrderStatusCancelled, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			lc := models.WorkOrderLifecycle{Status: c.from, StartedAt: &started, CompletedAt: &completed}
			plan, err := models.PlanTransition(lc, c.to, now)
			if err != nil {
				t.Fatalf("PlanTransition: %v", err)
			}
			if plan.Correction != c.correction {
				t.Fatalf("correction = %v, want %v", plan.Correction, c.correction)
			}
			if plan.Has(models.EffectStampStart) || plan.Has(models.EffectStampCompletion) {
				t.Fatalf("timestamps re-stamped: %+v", plan.Effects)
			}
			if !plan.Next.StartedAt.Equal(started) || !plan.Next.CompletedAt.Equal(completed) {
				t.Fatalf("timestamps moved: %+v", plan.Next)
			}
			payload := plan.AuditPayload()
			if payload["status"] != string(c.to) || payload["from"] != string(c.from) {
				t.Fatalf("payload = %v", payload)
			}
			if _, ok := payload["correction"]; ok != c.correction {
				t.Fatalf("payload correction present = %v, want %v", ok, c.correction)
			}
		})
	}
}

func TestPlanTransitionCorrectionStampsNothing(t *testing.T) {
	now := time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC)
	completed := time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC)

	lc := models.WorkOrderLifecycle{Status: models.WorkOrderStatusCompleted, CompletedAt: &completed}
	next, plan := applyPlan(t, lc, models.WorkOrderStatusInProgress, now)
	if !plan.Correction || plan.Has(models.EffectStampStart) || next.StartedAt != nil {
		t.Fatalf("reopen stamped start: %+v", plan)
	}

	lc = models.WorkOrderLifecycle{Status: models.WorkOrderStatusCancelled}
	next, plan = applyPlan(t, lc, models.WorkOrderStatusCompleted, now)
	if !plan.Correction || plan.Has(models.EffectStampCompletion) || next.CompletedAt != nil {
		t.Fatalf("cancelled -> completed stamped completion: %+v", plan)
	}
	if !plan.Has(models.EffectAppendAudit) {
		t.Fatal("correction without audit effect")
	}
}

func TestPlanTransitionRejectsUnknownStatus(t *testing.T) {
	lc := models.WorkOrderLifecycle{Status: models.WorkOrderStatusScheduled}
	_, err := models.PlanTransition(lc, models.WorkOrderStatus("archived"), time.Now())
	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Field != "status" {
		t.Fatalf("err = %v, want status ValidationError", err)
	}
}
