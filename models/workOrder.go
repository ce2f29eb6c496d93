package models

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldops/workorder_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const workOrderSequenceKey = "work_order"

type WorkOrder struct {
	ID             int                 `gorm:"primary_key" json:"id"`
	Number         string              `gorm:"size:30;uniqueIndex;not null" json:"number"`
	SequenceNo     int64               `gorm:"not null" json:"sequence_no"`
	ClientId       int                 `gorm:"index;not null" json:"client_id"`
	ScheduledDate  time.Time           `gorm:"index;not null" json:"scheduled_date"`
	Status         WorkOrderStatus     `gorm:"size:20;not null;index" json:"status"`
	BilledValue    decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"billed_value"`
	MaterialsValue decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"materials_value"`
	TravelValue    decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"travel_value"`
	ContactPhone   string              `gorm:"size:30" json:"contact_phone"`
	Address        string              `gorm:"size:255" json:"address"`
	CustomerNotes  string              `gorm:"type:text" json:"customer_notes"`
	InternalNotes  string              `gorm:"type:text" json:"internal_notes"`
	StartedAt      *time.Time          `json:"started_at"`
	CompletedAt    *time.Time          `json:"completed_at"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func (wo WorkOrder) lifecycle() WorkOrderLifecycle {
	return WorkOrderLifecycle{Status: wo.Status, StartedAt: wo.StartedAt, CompletedAt: wo.CompletedAt}
}

type NewWorkOrder struct {
	ClientId       int              `json:"client_id" validate:"required,gt=0"`
	ScheduledDate  time.Time        `json:"scheduled_date" validate:"required"`
	BilledValue    *decimal.Decimal `json:"billed_value"`
	MaterialsValue decimal.Decimal  `json:"materials_value"`
	TravelValue    decimal.Decimal  `json:"travel_value"`
	ContactPhone   string           `json:"contact_phone" validate:"max=30"`
	Address        string           `json:"address" validate:"max=255"`
	CustomerNotes  string           `json:"customer_notes"`
	InternalNotes  string           `json:"internal_notes"`
}

func (input *NewWorkOrder) validate() error {
	if err := validateInput(input); err != nil {
		return err
	}
	if err := requireMoneyPtr("billed_value", input.BilledValue); err != nil {
		return err
	}
	if err := requireMoney("materials_value", input.MaterialsValue); err != nil {
		return err
	}
	if err := requireMoney("travel_value", input.TravelValue); err != nil {
		return err
	}
	phone, err := normalizePhone("contact_phone", input.ContactPhone)
	if err != nil {
		return err
	}
	input.ContactPhone = phone
	return nil
}

// WorkOrderUpdate carries the scalar fields to change; nil means unchanged.
// Status is not here; it only moves through TransitionWorkOrder.
type WorkOrderUpdate struct {
	ClientId         *int             `json:"client_id" validate:"omitempty,gt=0"`
	ScheduledDate    *time.Time       `json:"scheduled_date"`
	BilledValue      *decimal.Decimal `json:"billed_value"`
	ClearBilledValue bool             `json:"clear_billed_value"`
	MaterialsValue   *decimal.Decimal `json:"materials_value"`
	TravelValue      *decimal.Decimal `json:"travel_value"`
	ContactPhone     *string          `json:"contact_phone" validate:"omitempty,max=30"`
	Address          *string          `json:"address" validate:"omitempty,max=255"`
	CustomerNotes    *string          `json:"customer_notes"`
	InternalNotes    *string          `json:"internal_notes"`
}

func (input *WorkOrderUpdate) validate() error {
	if err := validateInput(input); err != nil {
		return err
	}
	if input.ScheduledDate != nil && input.ScheduledDate.IsZero() {
		return newValidationError("scheduled_date", "is required")
	}
	if input.BilledValue != nil && input.ClearBilledValue {
		return newValidationError("billed_value", "cannot set and clear at the same time")
	}
	if err := requireMoneyPtr("billed_value", input.BilledValue); err != nil {
		return err
	}
	if err := requireMoneyPtr("materials_value", input.MaterialsValue); err != nil {
		return err
	}
	if err := requireMoneyPtr("travel_value", input.TravelValue); err != nil {
		return err
	}
	if input.ContactPhone != nil {
		phone, err := normalizePhone("contact_phone", *input.ContactPhone)
		if err != nil {
			return err
		}
		input.ContactPhone = &phone
	}
	return nil
}

type WorkOrderFilter struct {
	Status   *WorkOrderStatus
	ClientId *int
	From     *time.Time
	To       *time.Time
}

func formatWorkOrderNumber(seq int64) string {
	return fmt.Sprintf("%s%06d", config.WorkOrderPrefix(), seq)
}

// WorkOrderSequenceSeed reads the highest issued work-order sequence, for seeding a counter.
func WorkOrderSequenceSeed(db *gorm.DB) func(ctx context.Context, key string) (int64, error) {
	return func(ctx context.Context, key string) (int64, error) {
		var maxSeq int64
		err := db.WithContext(ctx).Model(&WorkOrder{}).
			Select("COALESCE(MAX(sequence_no), 0)").
			Scan(&maxSeq).Error
		return maxSeq, err
	}
}

func (e *Engine) CreateWorkOrder(ctx context.Context, actor Actor, input *NewWorkOrder) (*WorkOrder, error) {
	ctx, span := e.startSpan(ctx, "CreateWorkOrder")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}
	if input == nil {
		err = newValidationError("input", "is required")
		return nil, err
	}
	if err = input.validate(); err != nil {
		return nil, err
	}

	seq, err := e.Sequencer.Next(ctx, workOrderSequenceKey)
	if err != nil {
		err = wrapPersistence("next work order number", err)
		return nil, err
	}

	now := e.now()
	wo := WorkOrder{
		Number:         formatWorkOrderNumber(seq),
		SequenceNo:     seq,
		ClientId:       input.ClientId,
		ScheduledDate:  input.ScheduledDate,
		Status:         WorkOrderStatusScheduled,
		MaterialsValue: input.MaterialsValue,
		TravelValue:    input.TravelValue,
		ContactPhone:   input.ContactPhone,
		Address:        input.Address,
		CustomerNotes:  input.CustomerNotes,
		InternalNotes:  input.InternalNotes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.BilledValue != nil {
		wo.BilledValue = decimal.NewNullDecimal(*input.BilledValue)
	}

	err = e.transaction(ctx, "create work order", func(tx *gorm.DB) error {
		if err := tx.Create(&wo).Error; err != nil {
			return err
		}
		_, err := appendHistory(tx, actor, wo.ID, HistoryKindCreation,
			"Work order created",
			fmt.Sprintf("%s scheduled for %s", wo.Number, wo.ScheduledDate.Format("2006-01-02")),
			map[string]any{"number": wo.Number, "status": string(wo.Status)},
			now)
		return err
	})
	if err != nil {
		config.LogError(e.logger(), "WorkOrder", "CreateWorkOrder", "create work order", input, err)
		return nil, err
	}
	return &wo, nil
}

type fieldChange struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

func (e *Engine) UpdateWorkOrder(ctx context.Context, actor Actor, id int, input *WorkOrderUpdate) (*WorkOrder, error) {
	ctx, span := e.startSpan(ctx, "UpdateWorkOrder")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}
	if input == nil {
		err = newValidationError("input", "is required")
		return nil, err
	}
	if err = input.validate(); err != nil {
		return nil, err
	}

	now := e.now()
	var result *WorkOrder
	err = e.transaction(ctx, "update work order", func(tx *gorm.DB) error {
		wo, err := lockWorkOrder(tx, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		changes := map[string]fieldChange{}
		track := func(column string, before any, after any) {
			updates[column] = after
			changes[column] = fieldChange{Before: before, After: after}
		}

		if input.ClientId != nil && *input.ClientId != wo.ClientId {
			track("client_id", wo.ClientId, *input.ClientId)
			wo.ClientId = *input.ClientId
		}
		if input.ScheduledDate != nil && !input.ScheduledDate.Equal(wo.ScheduledDate) {
			track("scheduled_date", wo.ScheduledDate, *input.ScheduledDate)
			wo.ScheduledDate = *input.ScheduledDate
		}
		if input.BilledValue != nil && (!wo.BilledValue.Valid || !wo.BilledValue.Decimal.Equal(*input.BilledValue)) {
			track("billed_value", nullDecimalString(wo.BilledValue), input.BilledValue.String())
			updates["billed_value"] = decimal.NewNullDecimal(*input.BilledValue)
			wo.BilledValue = decimal.NewNullDecimal(*input.BilledValue)
		}
		if input.ClearBilledValue && wo.BilledValue.Valid {
			track("billed_value", nullDecimalString(wo.BilledValue), nil)
			updates["billed_value"] = decimal.NullDecimal{}
			wo.BilledValue = decimal.NullDecimal{}
		}
		if input.MaterialsValue != nil && !input.MaterialsValue.Equal(wo.MaterialsValue) {
			track("materials_value", wo.MaterialsValue.String(), input.MaterialsValue.String())
			updates["materials_value"] = *input.MaterialsValue
			wo.MaterialsValue = *input.MaterialsValue
		}
		if input.TravelValue != nil && !input.TravelValue.Equal(wo.TravelValue) {
			track("travel_value", wo.TravelValue.String(), input.TravelValue.String())
			updates["travel_value"] = *input.TravelValue
			wo.TravelValue = *input.TravelValue
		}
		if input.ContactPhone != nil && *input.ContactPhone != wo.ContactPhone {
			track("contact_phone", wo.ContactPhone, *input.ContactPhone)
			wo.ContactPhone = *input.ContactPhone
		}
		if input.Address != nil && *input.Address != wo.Address {
			track("address", wo.Address, *input.Address)
			wo.Address = *input.Address
		}
		if input.CustomerNotes != nil && *input.CustomerNotes != wo.CustomerNotes {
			track("customer_notes", wo.CustomerNotes, *input.CustomerNotes)
			wo.CustomerNotes = *input.CustomerNotes
		}
		if input.InternalNotes != nil && *input.InternalNotes != wo.InternalNotes {
			track("internal_notes", wo.InternalNotes, *input.InternalNotes)
			wo.InternalNotes = *input.InternalNotes
		}

		result = wo
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = now
		wo.UpdatedAt = now
		if err := tx.Model(&WorkOrder{}).Where("id = ?", wo.ID).Updates(updates).Error; err != nil {
			return err
		}
		_, err = appendHistory(tx, actor, wo.ID, HistoryKindEdit,
			"Work order edited",
			fmt.Sprintf("%d field(s) changed", len(changes)),
			map[string]any{"changes": changes},
			now)
		return err
	})
	if err != nil {
		config.LogError(e.logger(), "WorkOrder", "UpdateWorkOrder", "update work order", id, err)
		return nil, err
	}
	return result, nil
}

func nullDecimalString(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

// TransitionWorkOrder applies PlanTransition; the status update and its audit event commit together.
func (e *Engine) TransitionWorkOrder(ctx context.Context, actor Actor, id int, target WorkOrderStatus) (*WorkOrder, error) {
	ctx, span := e.startSpan(ctx, "TransitionWorkOrder")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}
	if !target.IsValid() {
		err = newValidationError("status", "unknown status %q", target)
		return nil, err
	}

	now := e.now()
	var result *WorkOrder
	err = e.transaction(ctx, "transition work order", func(tx *gorm.DB) error {
		wo, err := lockWorkOrder(tx, id)
		if err != nil {
			return err
		}
		plan, err := PlanTransition(wo.lifecycle(), target, now)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":     plan.To,
			"updated_at": now,
		}
		if plan.Has(EffectStampStart) {
			updates["started_at"] = plan.Next.StartedAt
		}
		if plan.Has(EffectStampCompletion) {
			updates["completed_at"] = plan.Next.CompletedAt
		}
		if err := tx.Model(&WorkOrder{}).Where("id = ?", wo.ID).Updates(updates).Error; err != nil {
			return err
		}

		description := fmt.Sprintf("%s -> %s", statusTitle(plan.From), statusTitle(plan.To))
		if plan.Correction {
			description += " (correction)"
		}
		if _, err := appendHistory(tx, actor, wo.ID, HistoryKindStatusChange,
			"Status changed to "+statusTitle(plan.To),
			description,
			plan.AuditPayload(),
			now); err != nil {
			return err
		}

		wo.Status = plan.Next.Status
		wo.StartedAt = plan.Next.StartedAt
		wo.CompletedAt = plan.Next.CompletedAt
		wo.UpdatedAt = now
		result = wo
		return nil
	})
	if err != nil {
		config.LogError(e.logger(), "WorkOrder", "TransitionWorkOrder", "transition work order", map[string]any{"id": id, "target": target}, err)
		return nil, err
	}
	return result, nil
}

// AddWorkOrderComment records a free-text comment as an audit event.
func (e *Engine) AddWorkOrderComment(ctx context.Context, actor Actor, id int, text string) (*History, error) {
	ctx, span := e.startSpan(ctx, "AddWorkOrderComment")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}
	if text == "" {
		err = newValidationError("text", "is required")
		return nil, err
	}

	now := e.now()
	var result *History
	err = e.transaction(ctx, "add work order comment", func(tx *gorm.DB) error {
		if _, err := lockWorkOrder(tx, id); err != nil {
			return err
		}
		h, err := appendHistory(tx, actor, id, HistoryKindComment, "Comment", text, nil, now)
		result = h
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) GetWorkOrder(ctx context.Context, id int) (*WorkOrder, error) {
	var result WorkOrder
	res := e.DB.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&result)
	if res.Error != nil {
		return nil, wrapPersistence("get work order", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &NotFoundError{Entity: "work order", Id: id}
	}
	return &result, nil
}

func (e *Engine) ListWorkOrders(ctx context.Context, filter WorkOrderFilter) ([]*WorkOrder, error) {
	dbCtx := e.DB.WithContext(ctx).Model(&WorkOrder{})
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.ClientId != nil {
		dbCtx = dbCtx.Where("client_id = ?", *filter.ClientId)
	}
	if filter.From != nil {
		dbCtx = dbCtx.Where("scheduled_date >= ?", *filter.From)
	}
	if filter.To != nil {
		dbCtx = dbCtx.Where("scheduled_date <= ?", *filter.To)
	}
	var results []*WorkOrder
	if err := dbCtx.Order("scheduled_date, id").Limit(config.ListLimit).Find(&results).Error; err != nil {
		return nil, wrapPersistence("list work orders", err)
	}
	return results, nil
}
