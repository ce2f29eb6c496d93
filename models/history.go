package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fieldops/workorder_backend/config"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// History is one append-only audit event of a work order.
// Sequence is assigned per work order inside the writing transaction.
type History struct {
	ID          int            `gorm:"primary_key" json:"id"`
	WorkOrderId int            `gorm:"not null;uniqueIndex:idx_history_wo_seq,priority:1" json:"work_order_id"`
	Sequence    int64          `gorm:"not null;uniqueIndex:idx_history_wo_seq,priority:2" json:"sequence"`
	Kind        HistoryKind    `gorm:"size:30;not null;index" json:"kind"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
	ActorId     string         `gorm:"size:100" json:"actor_id"`
	ActorName   string         `gorm:"size:100;not null" json:"actor_name"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	PublishedAt *time.Time     `gorm:"index" json:"published_at,omitempty"`
}

func (History) TableName() string { return config.HistoryTable }

func lockForUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

// lockWorkOrder row-locks the work order so concurrent writers append in turn.
func lockWorkOrder(tx *gorm.DB, workOrderId int) (*WorkOrder, error) {
	var wo WorkOrder
	res := tx.Clauses(lockForUpdate()).Where("id = ?", workOrderId).Limit(1).Find(&wo)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &NotFoundError{Entity: "work order", Id: workOrderId}
	}
	return &wo, nil
}

// appendHistory writes the next audit event; the caller must hold the work-order lock.
func appendHistory(tx *gorm.DB,
	actor Actor,
	workOrderId int,
	kind HistoryKind,
	title string,
	description string,
	payload any,
	now time.Time) (*History, error) {

	var maxSeq int64
	if err := tx.Model(&History{}).
		Select("COALESCE(MAX(sequence), 0)").
		Where("work_order_id = ?", workOrderId).
		Scan(&maxSeq).Error; err != nil {
		return nil, err
	}

	history := History{
		WorkOrderId: workOrderId,
		Sequence:    maxSeq + 1,
		Kind:        kind,
		Title:       title,
		Description: description,
		ActorId:     actor.Id,
		ActorName:   actor.Name,
		CreatedAt:   now,
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		history.Payload = datatypes.JSON(b)
	}

	if err := tx.Create(&history).Error; err != nil {
		return nil, err
	}
	return &history, nil
}

// ListHistories returns the audit trail oldest first, optionally filtered by kind.
func (e *Engine) ListHistories(ctx context.Context, workOrderId int, kind *HistoryKind) ([]*History, error) {
	ctx, span := e.startSpan(ctx, "ListHistories")
	var err error
	defer func() { endSpan(span, err) }()

	if _, err = e.GetWorkOrder(ctx, workOrderId); err != nil {
		return nil, err
	}

	dbCtx := e.DB.WithContext(ctx).Where("work_order_id = ?", workOrderId)
	if kind != nil {
		dbCtx = dbCtx.Where("kind = ?", *kind)
	}
	var results []*History
	if err = dbCtx.Order("sequence, id").Find(&results).Error; err != nil {
		err = wrapPersistence("list histories", err)
		return nil, err
	}
	return results, nil
}

// FetchUnpublishedHistories returns up to limit events not yet handed to the outbox.
func FetchUnpublishedHistories(ctx context.Context, db *gorm.DB, limit int) ([]*History, error) {
	if limit <= 0 {
		limit = 100
	}
	var results []*History
	err := db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id").
		Limit(limit).
		Find(&results).Error
	return results, err
}

// MarkHistoryPublished stamps published_at; it is the only update the audit guard lets through.
func MarkHistoryPublished(ctx context.Context, db *gorm.DB, id int, at time.Time) error {
	return db.WithContext(config.WithAuditPublish(ctx)).
		Model(&History{}).
		Where("id = ? AND published_at IS NULL", id).
		Update("published_at", at).Error
}
