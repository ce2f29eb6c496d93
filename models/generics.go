package models

import (
	"context"

	"gorm.io/gorm"
)

// ChildRecord is a row owned by a single work order.
type ChildRecord interface {
	GetWorkOrderId() int
}

// childAudit describes the event written alongside a child-row change.
type childAudit struct {
	Kind        HistoryKind
	Title       string
	Description string
	Payload     any
}

// addChild inserts row under the work-order lock and appends its audit event.
func addChild[T ChildRecord](ctx context.Context, e *Engine, op string, actor Actor, row *T, audit func(*T) childAudit) error {
	now := e.now()
	workOrderId := (*row).GetWorkOrderId()
	return e.transaction(ctx, op, func(tx *gorm.DB) error {
		if _, err := lockWorkOrder(tx, workOrderId); err != nil {
			return err
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		a := audit(row)
		_, err := appendHistory(tx, actor, workOrderId, a.Kind, a.Title, a.Description, a.Payload, now)
		return err
	})
}

// removeChild deletes the row id owned by workOrderId and appends its audit event.
func removeChild[T ChildRecord](ctx context.Context, e *Engine, op string, entity string, actor Actor, workOrderId int, id int, audit func(*T) childAudit) (*T, error) {
	now := e.now()
	var removed T
	err := e.transaction(ctx, op, func(tx *gorm.DB) error {
		if _, err := lockWorkOrder(tx, workOrderId); err != nil {
			return err
		}
		res := tx.Where("id = ? AND work_order_id = ?", id, workOrderId).Limit(1).Find(&removed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: entity, Id: id}
		}
		if err := tx.Where("id = ?", id).Delete(&removed).Error; err != nil {
			return err
		}
		a := audit(&removed)
		_, err := appendHistory(tx, actor, workOrderId, a.Kind, a.Title, a.Description, a.Payload, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

// listChildren returns every T of a work order in insertion order.
func listChildren[T ChildRecord](ctx context.Context, db *gorm.DB, workOrderId int) ([]*T, error) {
	var results []*T
	err := db.WithContext(ctx).Where("work_order_id = ?", workOrderId).Order("id").Find(&results).Error
	return results, err
}
