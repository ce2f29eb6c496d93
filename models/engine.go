package models

import (
	"context"
	"strings"
	"time"

	"github.com/fieldops/workorder_backend/config"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/fieldops/workorder_backend/models")

// Actor is the operator a mutation is attributed to in the audit trail.
type Actor struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

func (a Actor) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return newValidationError("actor", "actor name is required")
	}
	return nil
}

// BlobStorage hands out opaque handles for photo and signature bytes.
type BlobStorage interface {
	Store(ctx context.Context, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, uri string) error
}

// Sequencer returns the next number for key; numbers are never reused.
type Sequencer interface {
	Next(ctx context.Context, key string) (int64, error)
}

type Clock func() time.Time

// Engine runs work-order, checklist and cost operations against one store.
type Engine struct {
	DB        *gorm.DB
	Storage   BlobStorage
	Sequencer Sequencer
	Clock     Clock
	Logger    *logrus.Logger
}

func NewEngine(db *gorm.DB, storage BlobStorage, sequencer Sequencer) *Engine {
	if sequencer == nil {
		sequencer = &DBSequencer{DB: db}
	}
	return &Engine{
		DB:        db,
		Storage:   storage,
		Sequencer: sequencer,
		Clock:     time.Now,
		Logger:    config.GetLogger(),
	}
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock().UTC()
}

func (e *Engine) logger() *logrus.Logger {
	if e.Logger == nil {
		return config.GetLogger()
	}
	return e.Logger
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "models."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// transaction runs fn atomically; untyped failures come back as PersistenceError.
func (e *Engine) transaction(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	err := e.DB.WithContext(ctx).Transaction(fn)
	return wrapPersistence(op, err)
}

// removeBlobs drops handles after the owning rows are gone; failures are only logged.
func (e *Engine) removeBlobs(ctx context.Context, op string, uris []string) {
	if e.Storage == nil {
		return
	}
	for _, uri := range uris {
		if uri == "" {
			continue
		}
		if err := e.Storage.Remove(ctx, uri); err != nil {
			config.LogError(e.logger(), "Engine", op, "remove blob", uri, err)
		}
	}
}

// SequenceCounter backs DBSequencer.
type SequenceCounter struct {
	Key   string `gorm:"primaryKey;size:100" json:"key"`
	Value int64  `gorm:"not null" json:"value"`
}

// DBSequencer keeps counters in the sequence_counters table.
// It opens its own transaction, so call it before the caller's transaction starts.
type DBSequencer struct {
	DB *gorm.DB
}

func (s *DBSequencer) Next(ctx context.Context, key string) (int64, error) {
	var next int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter SequenceCounter
		res := tx.Clauses(lockForUpdate()).Where("`key` = ?", key).Limit(1).Find(&counter)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			next = 1
			return tx.Create(&SequenceCounter{Key: key, Value: next}).Error
		}
		next = counter.Value + 1
		return tx.Model(&SequenceCounter{}).Where("`key` = ?", key).Update("value", next).Error
	})
	if err != nil {
		return 0, wrapPersistence("next sequence", err)
	}
	return next, nil
}
