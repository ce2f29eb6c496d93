package models

import "time"

// WorkOrderLifecycle is the slice of a work order the state machine reads and writes.
type WorkOrderLifecycle struct {
	Status      WorkOrderStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
}

type EffectKind string

const (
	EffectStampStart      EffectKind = "stamp_start"
	EffectStampCompletion EffectKind = "stamp_completion"
	EffectAppendAudit     EffectKind = "append_audit"
)

type Effect struct {
	Kind EffectKind
	At   time.Time
}

// TransitionPlan is the outcome of a status change before anything is persisted.
type TransitionPlan struct {
	From       WorkOrderStatus
	To         WorkOrderStatus
	Correction bool
	Next       WorkOrderLifecycle
	Effects    []Effect
}

func (p TransitionPlan) Has(kind EffectKind) bool {
	for _, e := range p.Effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// AuditPayload is the structured payload of the status-change event.
func (p TransitionPlan) AuditPayload() map[string]any {
	payload := map[string]any{
		"status": string(p.To),
		"from":   string(p.From),
	}
	if p.Correction {
		payload["correction"] = true
	}
	return payload
}

// PlanTransition decides what moving current to target does.
// Any status may follow any other. Start and completion timestamps are
// stamped on first entry only. A move out of a terminal status is a
// correction and stamps nothing, even when the timestamp was never set.
// Every call, reselection included, yields an audit effect.
func PlanTransition(current WorkOrderLifecycle, target WorkOrderStatus, now time.Time) (TransitionPlan, error) {
	if !target.IsValid() {
		return TransitionPlan{}, newValidationError("status", "unknown status %q", target)
	}

	plan := TransitionPlan{
		From:       current.Status,
		To:         target,
		Correction: current.Status.IsTerminal() && target != current.Status,
		Next:       current,
	}
	plan.Next.Status = target

	if plan.Correction {
		plan.Effects = append(plan.Effects, Effect{Kind: EffectAppendAudit, At: now})
		return plan, nil
	}
	if target == WorkOrderStatusInProgress && current.StartedAt == nil {
		at := now
		plan.Next.StartedAt = &at
		plan.Effects = append(plan.Effects, Effect{Kind: EffectStampStart, At: now})
	}
	if target == WorkOrderStatusCompleted && current.CompletedAt == nil {
		at := now
		plan.Next.CompletedAt = &at
		plan.Effects = append(plan.Effects, Effect{Kind: EffectStampCompletion, At: now})
	}
	plan.Effects = append(plan.Effects, Effect{Kind: EffectAppendAudit, At: now})
	return plan, nil
}

func statusTitle(s WorkOrderStatus) string {
	switch s {
	case WorkOrderStatusScheduled:
		return "Scheduled"
	case WorkOrderStatusConfirmed:
		return "Confirmed"
	case WorkOrderStatusInProgress:
		return "In progress"
	case WorkOrderStatusPaused:
		return "Paused"
	case WorkOrderStatusCompleted:
		return "Completed"
	case WorkOrderStatusCancelled:
		return "Cancelled"
	case WorkOrderStatusBlocked:
		return "Blocked"
	default:
		return string(s)
	}
}
