package config

import (
	"context"
	"errors"

	"github.com/fieldops/workorder_backend/appctx"
	"gorm.io/gorm"
)

// HistoryTable is the audit trail table guarded by AuditGuardPlugin.
const HistoryTable = "histories"

var ErrAuditImmutable = errors.New("audit trail is append-only")

// AuditGuardPlugin rejects updates and deletes against the audit trail.
//
// NOTE:
// - Raw SQL is not covered.
// - The audit dispatcher stamps published_at under WithAuditPublish.
type AuditGuardPlugin struct{}

func NewAuditGuardPlugin() *AuditGuardPlugin { return &AuditGuardPlugin{} }

func (p *AuditGuardPlugin) Name() string { return "audit_guard" }

func (p *AuditGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Update().Before("gorm:update").Register("audit_guard:update", auditGuardUpdate); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("audit_guard:delete", auditGuardDelete); err != nil {
		return err
	}
	return nil
}

// WithAuditPublish marks ctx as the audit dispatcher, the only writer allowed to touch published_at.
func WithAuditPublish(ctx context.Context) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyAuditPublish, true)
}

func auditGuardUpdate(db *gorm.DB) {
	if !isHistoryStatement(db) {
		return
	}
	if isAuditPublish(db.Statement.Context) && onlyPublishedAt(db) {
		return
	}
	_ = db.AddError(ErrAuditImmutable)
}

func auditGuardDelete(db *gorm.DB) {
	if !isHistoryStatement(db) {
		return
	}
	_ = db.AddError(ErrAuditImmutable)
}

func isHistoryStatement(db *gorm.DB) bool {
	if db == nil || db.Statement == nil {
		return false
	}
	return db.Statement.Table == HistoryTable
}

func isAuditPublish(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, ok := ctx.Value(appctx.ContextKeyAuditPublish).(bool)
	return ok && v
}

func onlyPublishedAt(db *gorm.DB) bool {
	switch dest := db.Statement.Dest.(type) {
	case map[string]interface{}:
		for k := range dest {
			if k != "published_at" && k != "PublishedAt" {
				return false
			}
		}
		return len(dest) > 0
	default:
		return db.Statement.Selects != nil && len(db.Statement.Selects) == 1 &&
			(db.Statement.Selects[0] == "published_at" || db.Statement.Selects[0] == "PublishedAt")
	}
}
