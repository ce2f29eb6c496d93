package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldops/workorder_backend/config"
	"github.com/fieldops/workorder_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChecklistTemplate is a reusable question schema. Version increases on every update.
type ChecklistTemplate struct {
	ID        int                     `gorm:"primary_key" json:"id"`
	Name      string                  `gorm:"size:150;not null" json:"name"`
	Category  string                  `gorm:"size:100;index" json:"category"`
	Version   int                     `gorm:"not null" json:"version"`
	IsActive  bool                    `gorm:"not null;index" json:"is_active"`
	Items     []ChecklistTemplateItem `gorm:"foreignKey:TemplateId" json:"items"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

type ChecklistTemplateItem struct {
	ID         int            `gorm:"primary_key" json:"id"`
	TemplateId int            `gorm:"index;not null" json:"template_id"`
	Prompt     string         `gorm:"size:500;not null" json:"prompt"`
	HelpText   string         `gorm:"type:text" json:"help_text"`
	Kind       AnswerKind     `gorm:"size:20;not null" json:"kind"`
	Required   bool           `gorm:"not null" json:"required"`
	Options    datatypes.JSON `json:"options,omitempty"`
	Order      int            `gorm:"column:item_order;not null" json:"order"`
	IsActive   bool           `gorm:"not null" json:"is_active"`
}

func (i ChecklistTemplateItem) OptionList() []string {
	return decodeOptions(i.Options)
}

func decodeOptions(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var options []string
	if err := json.Unmarshal(raw, &options); err != nil {
		return nil
	}
	return options
}

func encodeOptions(options []string) datatypes.JSON {
	if len(options) == 0 {
		return nil
	}
	b, _ := json.Marshal(options)
	return datatypes.JSON(b)
}

type NewChecklistTemplateItem struct {
	Prompt   string     `json:"prompt" validate:"required,max=500"`
	HelpText string     `json:"help_text"`
	Kind     AnswerKind `json:"kind" validate:"required"`
	Required bool       `json:"required"`
	Options  []string   `json:"options"`
	// IsActive defaults to true.
	IsActive *bool `json:"is_active"`
}

type NewChecklistTemplate struct {
	Name     string                     `json:"name" validate:"required,max=150"`
	Category string                     `json:"category" validate:"max=100"`
	Items    []NewChecklistTemplateItem `json:"items" validate:"dive"`
}

func (input *NewChecklistTemplate) validate() error {
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)
	if err := validateInput(input); err != nil {
		return err
	}
	return validateItemInputs(input.Items)
}

// validateItemInputs enforces kind and options rules; options of non-choice kinds are dropped.
func validateItemInputs(items []NewChecklistTemplateItem) error {
	for i := range items {
		item := &items[i]
		field := fmt.Sprintf("items[%d]", i)
		item.Prompt = strings.TrimSpace(item.Prompt)
		if item.Prompt == "" {
			return newValidationError(field+".prompt", "is required")
		}
		if !item.Kind.IsValid() {
			return newValidationError(field+".kind", "unknown answer kind %q", item.Kind)
		}
		if !item.Kind.IsChoice() {
			item.Options = nil
			continue
		}
		options := make([]string, 0, len(item.Options))
		for _, opt := range item.Options {
			opt = strings.TrimSpace(opt)
			if opt == "" {
				return newValidationError(field+".options", "options must not be blank")
			}
			options = append(options, opt)
		}
		if len(options) == 0 {
			return newValidationError(field+".options", "%s items need at least one option", item.Kind)
		}
		if len(utils.UniqueSlice(options)) != len(options) {
			return newValidationError(field+".options", "options must be unique")
		}
		item.Options = options
	}
	return nil
}

// buildTemplateItems numbers items 1..N in input order.
func buildTemplateItems(templateId int, inputs []NewChecklistTemplateItem) []ChecklistTemplateItem {
	items := make([]ChecklistTemplateItem, 0, len(inputs))
	for i, in := range inputs {
		items = append(items, ChecklistTemplateItem{
			TemplateId: templateId,
			Prompt:     in.Prompt,
			HelpText:   in.HelpText,
			Kind:       in.Kind,
			Required:   in.Required,
			Options:    encodeOptions(in.Options),
			Order:      i + 1,
			IsActive:   utils.DereferencePtr(in.IsActive, true),
		})
	}
	return items
}

func preloadTemplateItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("item_order, id")
	})
}

func (e *Engine) CreateChecklistTemplate(ctx context.Context, actor Actor, input *NewChecklistTemplate) (*ChecklistTemplate, error) {
	ctx, span := e.startSpan(ctx, "CreateChecklistTemplate")
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
	template := ChecklistTemplate{
		Name:      input.Name,
		Category:  input.Category,
		Version:   1,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = e.transaction(ctx, "create checklist template", func(tx *gorm.DB) error {
		if err := tx.Create(&template).Error; err != nil {
			return err
		}
		template.Items = buildTemplateItems(template.ID, input.Items)
		if len(template.Items) == 0 {
			return nil
		}
		return tx.Create(&template.Items).Error
	})
	if err != nil {
		config.LogError(e.logger(), "ChecklistTemplate", "CreateChecklistTemplate", "create template", input, err)
		return nil, err
	}
	e.logger().WithFields(logrus.Fields{
		"template_id": template.ID,
		"actor":       actor.Name,
	}).Info("checklist template created")
	return &template, nil
}

// UpdateChecklistTemplate replaces metadata and the whole item list.
// Issued instances hold their own copies and are never touched.
func (e *Engine) UpdateChecklistTemplate(ctx context.Context, actor Actor, id int, input *NewChecklistTemplate) (*ChecklistTemplate, error) {
	ctx, span := e.startSpan(ctx, "UpdateChecklistTemplate")
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
	err = e.transaction(ctx, "update checklist template", func(tx *gorm.DB) error {
		var existing ChecklistTemplate
		res := tx.Clauses(lockForUpdate()).Where("id = ?", id).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "checklist template", Id: id}
		}
		if err := tx.Model(&ChecklistTemplate{}).Where("id = ?", id).Updates(map[string]interface{}{
			"name":       input.Name,
			"category":   input.Category,
			"version":    existing.Version + 1,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("template_id = ?", id).Delete(&ChecklistTemplateItem{}).Error; err != nil {
			return err
		}
		items := buildTemplateItems(id, input.Items)
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		config.LogError(e.logger(), "ChecklistTemplate", "UpdateChecklistTemplate", "update template", id, err)
		return nil, err
	}
	return e.GetChecklistTemplate(ctx, id)
}

// DuplicateChecklistTemplate deep-copies a template under a new identity.
// A missing template is not an error: it returns (nil, nil) and logs a warning.
func (e *Engine) DuplicateChecklistTemplate(ctx context.Context, actor Actor, id int) (*ChecklistTemplate, error) {
	ctx, span := e.startSpan(ctx, "DuplicateChecklistTemplate")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}

	source, err := e.GetChecklistTemplate(ctx, id)
	if err != nil {
		var nfe *NotFoundError
		if errors.As(err, &nfe) {
			e.logger().WithFields(logrus.Fields{
				"template_id": id,
				"actor":       actor.Name,
			}).Warn("duplicate requested for missing checklist template")
			err = nil
			return nil, nil
		}
		return nil, err
	}

	now := e.now()
	copied := ChecklistTemplate{
		Name:      source.Name + " (Copy)",
		Category:  source.Category,
		Version:   1,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = e.transaction(ctx, "duplicate checklist template", func(tx *gorm.DB) error {
		if err := tx.Create(&copied).Error; err != nil {
			return err
		}
		for _, item := range source.Items {
			copied.Items = append(copied.Items, ChecklistTemplateItem{
				TemplateId: copied.ID,
				Prompt:     item.Prompt,
				HelpText:   item.HelpText,
				Kind:       item.Kind,
				Required:   item.Required,
				Options:    append(datatypes.JSON(nil), item.Options...),
				Order:      item.Order,
				IsActive:   item.IsActive,
			})
		}
		if len(copied.Items) == 0 {
			return nil
		}
		return tx.Create(&copied.Items).Error
	})
	if err != nil {
		return nil, err
	}
	return &copied, nil
}

// SoftDeleteChecklistTemplate hides a template from listings; it stays loadable by id.
func (e *Engine) SoftDeleteChecklistTemplate(ctx context.Context, actor Actor, id int) error {
	if err := actor.validate(); err != nil {
		return err
	}
	if _, err := e.GetChecklistTemplate(ctx, id); err != nil {
		return err
	}
	err := e.DB.WithContext(ctx).Model(&ChecklistTemplate{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_active":  false,
		"updated_at": e.now(),
	}).Error
	if err != nil {
		return wrapPersistence("soft delete checklist template", err)
	}
	e.logger().WithFields(logrus.Fields{
		"template_id": id,
		"actor":       actor.Name,
	}).Info("checklist template deactivated")
	return nil
}

// GetChecklistTemplate loads a template by id, inactive ones included.
func (e *Engine) GetChecklistTemplate(ctx context.Context, id int) (*ChecklistTemplate, error) {
	var result ChecklistTemplate
	res := preloadTemplateItems(e.DB.WithContext(ctx)).Where("id = ?", id).Limit(1).Find(&result)
	if res.Error != nil {
		return nil, wrapPersistence("get checklist template", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &NotFoundError{Entity: "checklist template", Id: id}
	}
	return &result, nil
}

// ListChecklistTemplates returns active templates, optionally of one category.
func (e *Engine) ListChecklistTemplates(ctx context.Context, category *string) ([]*ChecklistTemplate, error) {
	dbCtx := preloadTemplateItems(e.DB.WithContext(ctx)).Where("is_active = ?", true)
	if category != nil {
		dbCtx = dbCtx.Where("category = ?", *category)
	}
	var results []*ChecklistTemplate
	if err := dbCtx.Order("name, id").Find(&results).Error; err != nil {
		return nil, wrapPersistence("list checklist templates", err)
	}
	return results, nil
}
