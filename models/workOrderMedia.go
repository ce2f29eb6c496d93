package models

import (
	"context"
	"strings"
	"time"

	"github.com/fieldops/workorder_backend/utils"
)

type WorkOrderPhoto struct {
	ID           int       `gorm:"primary_key" json:"id"`
	WorkOrderId  int       `gorm:"index;not null" json:"work_order_id"`
	Uri          string    `gorm:"size:512;not null" json:"uri"`
	ThumbnailUri string    `gorm:"size:512" json:"thumbnail_uri"`
	Caption      string    `gorm:"size:255" json:"caption"`
	CreatedAt    time.Time `json:"created_at"`
}

func (p WorkOrderPhoto) GetWorkOrderId() int { return p.WorkOrderId }

// WorkOrderSignature is the customer's acceptance of the job as a whole.
type WorkOrderSignature struct {
	ID             int       `gorm:"primary_key" json:"id"`
	WorkOrderId    int       `gorm:"index;not null" json:"work_order_id"`
	Uri            string    `gorm:"size:512;not null" json:"uri"`
	SignerName     string    `gorm:"size:100;not null" json:"signer_name"`
	SignerDocument string    `gorm:"size:20;not null" json:"signer_document"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s WorkOrderSignature) GetWorkOrderId() int { return s.WorkOrderId }

type NewWorkOrderPhoto struct {
	Uri          string `json:"uri" validate:"required,max=512"`
	ThumbnailUri string `json:"thumbnail_uri" validate:"max=512"`
	Caption      string `json:"caption" validate:"max=255"`
}

type NewWorkOrderSignature struct {
	Uri            string `json:"uri" validate:"required,max=512"`
	SignerName     string `json:"signer_name" validate:"required,max=100"`
	SignerDocument string `json:"signer_document" validate:"required"`
}

func (input *NewWorkOrderSignature) validate() error {
	input.SignerName = strings.TrimSpace(input.SignerName)
	if err := validateInput(input); err != nil {
		return err
	}
	if !utils.ValidateNationalId(input.SignerDocument) {
		return newValidationError("signer_document", "invalid national id")
	}
	input.SignerDocument = utils.OnlyDigits(input.SignerDocument)
	return nil
}

func (e *Engine) AddWorkOrderPhoto(ctx context.Context, actor Actor, workOrderId int, input NewWorkOrderPhoto) (*WorkOrderPhoto, error) {
	ctx, span := e.startSpan(ctx, "AddWorkOrderPhoto")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}
	if err = validateInput(input); err != nil {
		return nil, err
	}
	row := WorkOrderPhoto{
		WorkOrderId:  workOrderId,
		Uri:          input.Uri,
		ThumbnailUri: input.ThumbnailUri,
		Caption:      input.Caption,
		CreatedAt:    e.now(),
	}
	err = addChild(ctx, e, "add work order photo", actor, &row, func(p *WorkOrderPhoto) childAudit {
		return childAudit{
			Kind:        HistoryKindPhotoAdded,
			Title:       "Photo added",
			Description: p.Caption,
			Payload:     map[string]any{"photo_id": p.ID, "uri": p.Uri},
		}
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// RemoveWorkOrderPhoto deletes the photo row, then drops its blobs once committed.
func (e *Engine) RemoveWorkOrderPhoto(ctx context.Context, actor Actor, workOrderId int, id int) error {
	if err := actor.validate(); err != nil {
		return err
	}
	removed, err := removeChild(ctx, e, "remove work order photo", "photo", actor, workOrderId, id, func(p *WorkOrderPhoto) childAudit {
		return childAudit{
			Kind:        HistoryKindEdit,
			Title:       "Photo removed",
			Description: p.Caption,
			Payload:     map[string]any{"photo_id": p.ID},
		}
	})
	if err != nil {
		return err
	}
	e.removeBlobs(ctx, "RemoveWorkOrderPhoto", []string{removed.Uri, removed.ThumbnailUri})
	return nil
}

func (e *Engine) AddWorkOrderSignature(ctx context.Context, actor Actor, workOrderId int, input NewWorkOrderSignature) (*WorkOrderSignature, error) {
	ctx, span := e.startSpan(ctx, "AddWorkOrderSignature")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}
	if err = input.validate(); err != nil {
		return nil, err
	}
	row := WorkOrderSignature{
		WorkOrderId:    workOrderId,
		Uri:            input.Uri,
		SignerName:     input.SignerName,
		SignerDocument: input.SignerDocument,
		CreatedAt:      e.now(),
	}
	err = addChild(ctx, e, "add work order signature", actor, &row, func(s *WorkOrderSignature) childAudit {
		return childAudit{
			Kind:        HistoryKindEdit,
			Title:       "Signature collected",
			Description: s.SignerName,
			Payload:     map[string]any{"signature_id": s.ID, "signer_name": s.SignerName},
		}
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (e *Engine) ListWorkOrderPhotos(ctx context.Context, workOrderId int) ([]*WorkOrderPhoto, error) {
	rows, err := listChildren[WorkOrderPhoto](ctx, e.DB, workOrderId)
	return rows, wrapPersistence("list work order photos", err)
}

func (e *Engine) ListWorkOrderSignatures(ctx context.Context, workOrderId int) ([]*WorkOrderSignature, error) {
	rows, err := listChildren[WorkOrderSignature](ctx, e.DB, workOrderId)
	return rows, wrapPersistence("list work order signatures", err)
}
