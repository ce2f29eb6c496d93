package models

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fieldops/workorder_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChecklistInstance is a checklist attached to a work order. Its items are
// copies taken at instantiation; later template edits never reach them.
type ChecklistInstance struct {
	ID              int                     `gorm:"primary_key" json:"id"`
	WorkOrderId     int                     `gorm:"index;not null" json:"work_order_id"`
	TemplateId      *int                    `gorm:"index" json:"template_id"`
	TemplateVersion int                     `json:"template_version"`
	Name            string                  `gorm:"size:150;not null" json:"name"`
	Items           []ChecklistResponseItem `gorm:"foreignKey:InstanceId" json:"items"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

func (c ChecklistInstance) Progress() int {
	return Progress(c.Items)
}

func (c ChecklistInstance) RequiredUnanswered() int {
	return RequiredUnanswered(c.Items)
}

// ChecklistResponseItem is a template item snapshot plus its answer.
// Only the column matching Kind is ever set.
type ChecklistResponseItem struct {
	ID             int            `gorm:"primary_key" json:"id"`
	InstanceId     int            `gorm:"index;not null" json:"instance_id"`
	TemplateItemId *int           `json:"template_item_id"`
	Prompt         string         `gorm:"size:500;not null" json:"prompt"`
	HelpText       string         `gorm:"type:text" json:"help_text"`
	Kind           AnswerKind     `gorm:"size:20;not null" json:"kind"`
	Required       bool           `gorm:"not null" json:"required"`
	Options        datatypes.JSON `json:"options,omitempty"`
	Order          int            `gorm:"column:item_order;not null" json:"order"`

	AnswerBool     *bool               `json:"answer_bool,omitempty"`
	AnswerText     string              `gorm:"type:text" json:"answer_text,omitempty"`
	AnswerNumber   decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"answer_number"`
	AnswerDate     *time.Time          `json:"answer_date,omitempty"`
	AnswerTime     string              `gorm:"size:8" json:"answer_time,omitempty"`
	AnswerOptions  datatypes.JSON      `json:"answer_options,omitempty"`
	PhotoUri       string              `gorm:"size:512" json:"photo_uri,omitempty"`
	SignatureUri   string              `gorm:"size:512" json:"signature_uri,omitempty"`
	SignerName     string              `gorm:"size:100" json:"signer_name,omitempty"`
	SignerDocument string              `gorm:"size:20" json:"signer_document,omitempty"`
	Responded      bool                `gorm:"not null" json:"responded"`
	AnsweredAt     *time.Time          `json:"answered_at,omitempty"`
	AnsweredBy     string              `gorm:"size:100" json:"answered_by,omitempty"`
}

func (item ChecklistResponseItem) OptionList() []string {
	return decodeOptions(item.Options)
}

// Answer rebuilds the typed answer from the stored columns; nil when unanswered.
func (item ChecklistResponseItem) Answer() (Answer, error) {
	switch item.Kind {
	case AnswerKindBoolean:
		if item.AnswerBool == nil {
			return nil, nil
		}
		return BooleanAnswer{Value: *item.AnswerBool}, nil
	case AnswerKindText:
		if item.AnswerText == "" {
			return nil, nil
		}
		return TextAnswer{Value: item.AnswerText}, nil
	case AnswerKindNumber:
		if !item.AnswerNumber.Valid {
			return nil, nil
		}
		return NumberAnswer{Value: item.AnswerNumber.Decimal}, nil
	case AnswerKindCurrency:
		if !item.AnswerNumber.Valid {
			return nil, nil
		}
		return CurrencyAnswer{Value: item.AnswerNumber.Decimal}, nil
	case AnswerKindDate:
		if item.AnswerDate == nil {
			return nil, nil
		}
		d := item.AnswerDate.UTC()
		return DateAnswer{Value: time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)}, nil
	case AnswerKindTime:
		if item.AnswerTime == "" {
			return nil, nil
		}
		return TimeAnswer{Value: item.AnswerTime}, nil
	case AnswerKindSingleChoice:
		selected := decodeOptions(item.AnswerOptions)
		if len(selected) == 0 {
			return nil, nil
		}
		return SingleChoiceAnswer{Option: selected[0]}, nil
	case AnswerKindMultiChoice:
		selected := decodeOptions(item.AnswerOptions)
		if len(selected) == 0 {
			return nil, nil
		}
		return MultiChoiceAnswer{Options: selected}, nil
	case AnswerKindPhoto:
		if item.PhotoUri == "" {
			return nil, nil
		}
		return PhotoAnswer{Uri: item.PhotoUri}, nil
	case AnswerKindSignature:
		if item.SignatureUri == "" {
			return nil, nil
		}
		return SignatureAnswer{Uri: item.SignatureUri, SignerName: item.SignerName, SignerDocument: item.SignerDocument}, nil
	default:
		return nil, fmt.Errorf("unsupported answer kind %q", item.Kind)
	}
}

func (item *ChecklistResponseItem) clearAnswer() {
	item.AnswerBool = nil
	item.AnswerText = ""
	item.AnswerNumber = decimal.NullDecimal{}
	item.AnswerDate = nil
	item.AnswerTime = ""
	item.AnswerOptions = nil
	item.PhotoUri = ""
	item.SignatureUri = ""
	item.SignerName = ""
	item.SignerDocument = ""
	item.Responded = false
}

// setAnswer writes a into the column for its kind and clears the rest.
// A nil answer leaves the item unanswered.
func (item *ChecklistResponseItem) setAnswer(a Answer, legacyBoolean bool) error {
	if a != nil && a.Kind() != item.Kind {
		return fmt.Errorf("answer kind %s does not match item kind %s", a.Kind(), item.Kind)
	}
	item.clearAnswer()
	if a == nil {
		return nil
	}
	switch x := a.(type) {
	case BooleanAnswer:
		v := x.Value
		item.AnswerBool = &v
		// Legacy mode counts only a ticked box as answered.
		item.Responded = v || !legacyBoolean
	case TextAnswer:
		item.AnswerText = x.Value
		item.Responded = x.Value != ""
	case NumberAnswer:
		item.AnswerNumber = decimal.NewNullDecimal(x.Value)
		item.Responded = true
	case CurrencyAnswer:
		item.AnswerNumber = decimal.NewNullDecimal(x.Value)
		item.Responded = true
	case DateAnswer:
		v := x.Value
		item.AnswerDate = &v
		item.Responded = true
	case TimeAnswer:
		item.AnswerTime = x.Value
		item.Responded = x.Value != ""
	case SingleChoiceAnswer:
		item.AnswerOptions = encodeOptions([]string{x.Option})
		item.Responded = x.Option != ""
	case MultiChoiceAnswer:
		item.AnswerOptions = encodeOptions(x.Options)
		item.Responded = len(x.Options) > 0
	case PhotoAnswer:
		item.PhotoUri = x.Uri
		item.Responded = x.Uri != ""
	case SignatureAnswer:
		item.SignatureUri = x.Uri
		item.SignerName = x.SignerName
		item.SignerDocument = x.SignerDocument
		item.Responded = x.Uri != ""
	default:
		return fmt.Errorf("unsupported answer type %T", a)
	}
	return nil
}

func snapshotItem(src ChecklistTemplateItem, order int) ChecklistResponseItem {
	templateItemId := src.ID
	return ChecklistResponseItem{
		TemplateItemId: &templateItemId,
		Prompt:         src.Prompt,
		HelpText:       src.HelpText,
		Kind:           src.Kind,
		Required:       src.Required,
		Options:        append(datatypes.JSON(nil), src.Options...),
		Order:          order,
	}
}

func preloadResponseItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("item_order, id")
	})
}

// InstantiateChecklist copies the template's active items onto the work order.
// A template with no active items yields an empty checklist.
func (e *Engine) InstantiateChecklist(ctx context.Context, actor Actor, workOrderId int, templateId int, name *string) (*ChecklistInstance, error) {
	ctx, span := e.startSpan(ctx, "InstantiateChecklist")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}

	now := e.now()
	var instance ChecklistInstance
	err = e.transaction(ctx, "instantiate checklist", func(tx *gorm.DB) error {
		if _, err := lockWorkOrder(tx, workOrderId); err != nil {
			return err
		}
		var template ChecklistTemplate
		res := preloadTemplateItems(tx).Where("id = ?", templateId).Limit(1).Find(&template)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "checklist template", Id: templateId}
		}
		if !template.IsActive {
			return newValidationError("template_id", "checklist template %d is inactive", templateId)
		}

		active := make([]ChecklistTemplateItem, 0, len(template.Items))
		for _, it := range template.Items {
			if it.IsActive {
				active = append(active, it)
			}
		}
		sort.SliceStable(active, func(i, j int) bool { return active[i].Order < active[j].Order })

		instance = ChecklistInstance{
			WorkOrderId:     workOrderId,
			TemplateId:      &template.ID,
			TemplateVersion: template.Version,
			Name:            template.Name,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if name != nil && strings.TrimSpace(*name) != "" {
			instance.Name = strings.TrimSpace(*name)
		}
		for i, it := range active {
			instance.Items = append(instance.Items, snapshotItem(it, i+1))
		}
		if err := tx.Create(&instance).Error; err != nil {
			return err
		}

		_, err := appendHistory(tx, actor, workOrderId, HistoryKindChecklistChange,
			"Checklist added",
			fmt.Sprintf("%s (%d items)", instance.Name, len(instance.Items)),
			map[string]any{
				"checklist_id":     instance.ID,
				"template_id":      template.ID,
				"template_version": template.Version,
				"items":            len(instance.Items),
			},
			now)
		return err
	})
	if err != nil {
		config.LogError(e.logger(), "ChecklistInstance", "InstantiateChecklist", "instantiate checklist",
			map[string]any{"work_order_id": workOrderId, "template_id": templateId}, err)
		return nil, err
	}
	return &instance, nil
}

// CreateFreeformChecklist attaches a checklist that no template backs.
func (e *Engine) CreateFreeformChecklist(ctx context.Context, actor Actor, workOrderId int, name string, items []NewChecklistTemplateItem) (*ChecklistInstance, error) {
	ctx, span := e.startSpan(ctx, "CreateFreeformChecklist")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		err = newValidationError("name", "is required")
		return nil, err
	}
	if err = validateItemInputs(items); err != nil {
		return nil, err
	}

	now := e.now()
	instance := ChecklistInstance{
		WorkOrderId: workOrderId,
		Name:        name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	order := 0
	for _, in := range items {
		if in.IsActive != nil && !*in.IsActive {
			continue
		}
		order++
		instance.Items = append(instance.Items, ChecklistResponseItem{
			Prompt:   in.Prompt,
			HelpText: in.HelpText,
			Kind:     in.Kind,
			Required: in.Required,
			Options:  encodeOptions(in.Options),
			Order:    order,
		})
	}

	err = e.transaction(ctx, "create freeform checklist", func(tx *gorm.DB) error {
		if _, err := lockWorkOrder(tx, workOrderId); err != nil {
			return err
		}
		if err := tx.Create(&instance).Error; err != nil {
			return err
		}
		_, err := appendHistory(tx, actor, workOrderId, HistoryKindChecklistChange,
			"Checklist added",
			fmt.Sprintf("%s (%d items)", instance.Name, len(instance.Items)),
			map[string]any{"checklist_id": instance.ID, "items": len(instance.Items)},
			now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

// AnswerChecklistItem validates raw for the item's kind and stores it.
// Nothing is written when the answer is rejected or unchanged.
func (e *Engine) AnswerChecklistItem(ctx context.Context, actor Actor, instanceId int, itemId int, raw RawAnswer) (*ChecklistResponseItem, error) {
	ctx, span := e.startSpan(ctx, "AnswerChecklistItem")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}

	now := e.now()
	legacy := config.LegacyBooleanResponded()
	audit := config.AuditChecklistAnswers()
	var (
		result    ChecklistResponseItem
		staleBlob []string
	)
	err = e.transaction(ctx, "answer checklist item", func(tx *gorm.DB) error {
		var instance ChecklistInstance
		res := tx.Where("id = ?", instanceId).Limit(1).Find(&instance)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "checklist", Id: instanceId}
		}
		// Work order first, then the checklist: the same order DeleteChecklistInstance takes.
		if _, err := lockWorkOrder(tx, instance.WorkOrderId); err != nil {
			return err
		}
		res = tx.Clauses(lockForUpdate()).Where("id = ?", instanceId).Limit(1).Find(&instance)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "checklist", Id: instanceId}
		}
		res = tx.Where("id = ? AND instance_id = ?", itemId, instanceId).Limit(1).Find(&result)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "checklist item", Id: itemId}
		}

		answer, err := ParseAnswer(result.ID, result.Kind, result.OptionList(), raw)
		if err != nil {
			return err
		}
		current, err := result.Answer()
		if err != nil {
			return err
		}
		if answersEqual(current, answer) {
			return nil
		}

		if err := result.setAnswer(answer, legacy); err != nil {
			return err
		}
		if answer == nil {
			result.AnsweredAt = nil
			result.AnsweredBy = ""
		} else {
			at := now
			result.AnsweredAt = &at
			result.AnsweredBy = actor.Name
		}
		// Updates never inserts, so an item deleted underneath us stays deleted.
		res = tx.Model(&ChecklistResponseItem{}).Where("id = ? AND instance_id = ?", itemId, instanceId).Select("*").Updates(&result)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "checklist item", Id: itemId}
		}
		if err := tx.Model(&ChecklistInstance{}).Where("id = ?", instanceId).Update("updated_at", now).Error; err != nil {
			return err
		}

		kept := blobHandles(answer)
		for _, uri := range blobHandles(current) {
			if !containsOption(kept, uri) {
				staleBlob = append(staleBlob, uri)
			}
		}

		if !audit {
			return nil
		}
		described, err := DescribeAnswer(answer)
		if err != nil {
			return err
		}
		_, err = appendHistory(tx, actor, instance.WorkOrderId, HistoryKindChecklistChange,
			"Checklist item answered",
			fmt.Sprintf("%s: %s", result.Prompt, described),
			map[string]any{"checklist_id": instanceId, "item_id": itemId, "kind": string(result.Kind), "answer": described},
			now)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.removeBlobs(ctx, "AnswerChecklistItem", staleBlob)
	return &result, nil
}

// DeleteChecklistInstance hard-deletes a checklist and its items, then drops their blobs.
func (e *Engine) DeleteChecklistInstance(ctx context.Context, actor Actor, instanceId int) error {
	ctx, span := e.startSpan(ctx, "DeleteChecklistInstance")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return err
	}

	now := e.now()
	var blobs []string
	err = e.transaction(ctx, "delete checklist", func(tx *gorm.DB) error {
		var instance ChecklistInstance
		res := preloadResponseItems(tx).Where("id = ?", instanceId).Limit(1).Find(&instance)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "checklist", Id: instanceId}
		}
		if _, err := lockWorkOrder(tx, instance.WorkOrderId); err != nil {
			return err
		}
		for _, item := range instance.Items {
			a, err := item.Answer()
			if err != nil {
				return err
			}
			blobs = append(blobs, blobHandles(a)...)
		}
		if err := tx.Where("instance_id = ?", instanceId).Delete(&ChecklistResponseItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", instanceId).Delete(&ChecklistInstance{}).Error; err != nil {
			return err
		}
		_, err := appendHistory(tx, actor, instance.WorkOrderId, HistoryKindChecklistChange,
			"Checklist removed",
			instance.Name,
			map[string]any{"checklist_id": instance.ID, "progress": instance.Progress()},
			now)
		return err
	})
	if err != nil {
		return err
	}
	e.removeBlobs(ctx, "DeleteChecklistInstance", blobs)
	return nil
}

func (e *Engine) GetChecklistInstance(ctx context.Context, id int) (*ChecklistInstance, error) {
	var result ChecklistInstance
	res := preloadResponseItems(e.DB.WithContext(ctx)).Where("id = ?", id).Limit(1).Find(&result)
	if res.Error != nil {
		return nil, wrapPersistence("get checklist", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &NotFoundError{Entity: "checklist", Id: id}
	}
	return &result, nil
}

func (e *Engine) ListChecklistInstances(ctx context.Context, workOrderId int) ([]*ChecklistInstance, error) {
	var results []*ChecklistInstance
	err := preloadResponseItems(e.DB.WithContext(ctx)).
		Where("work_order_id = ?", workOrderId).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, wrapPersistence("list checklists", err)
	}
	return results, nil
}

// MarshalJSON adds the derived completion figures.
func (c ChecklistInstance) MarshalJSON() ([]byte, error) {
	type alias ChecklistInstance
	return json.Marshal(struct {
		alias
		Progress           int `json:"progress"`
		RequiredUnanswered int `json:"required_unanswered"`
	}{alias(c), c.Progress(), c.RequiredUnanswered()})
}
