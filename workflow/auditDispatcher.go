package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/fieldops/workorder_backend/config"
	"github.com/fieldops/workorder_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const auditDispatchLockKey = "audit_dispatcher"

type AuditPublisher interface {
	PublishAuditEvent(ctx context.Context, msg config.AuditMessage) (string, error)
}

// AuditDispatcher forwards committed audit events to the publisher and stamps
// them published. Delivery is at least once; events of one work order go out
// in sequence order, and a failure holds back the rest of that work order
// until the next pass.
type AuditDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Publisher    AuditPublisher
	Locker       *redislock.Client
	DispatcherID string

	BatchSize    int
	PollInterval time.Duration
	LockTTL      time.Duration
}

func NewAuditDispatcher(db *gorm.DB, logger *logrus.Logger, publisher AuditPublisher) *AuditDispatcher {
	return &AuditDispatcher{
		DB:           db,
		Logger:       logger,
		Publisher:    publisher,
		DispatcherID: uuid.NewString(),
		BatchSize:    100,
		PollInterval: time.Second,
		LockTTL:      30 * time.Second,
	}
}

func (d *AuditDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			config.LogError(d.Logger, "AuditDispatcher", "Run", "dispatch batch", d.DispatcherID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce publishes one batch and returns how many events were stamped.
// With a Locker set, only the instance holding the lock dispatches.
func (d *AuditDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	if d.DB == nil || d.Publisher == nil {
		return 0, errors.New("audit dispatcher not configured")
	}

	if d.Locker != nil {
		lock, err := d.Locker.Obtain(ctx, auditDispatchLockKey, d.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return 0, nil
		} else if err != nil {
			return 0, err
		}
		defer func() {
			_ = lock.Release(ctx)
		}()
	}

	pending, err := models.FetchUnpublishedHistories(ctx, d.DB, d.BatchSize)
	if err != nil {
		return 0, err
	}

	held := map[int]bool{}
	published := 0
	for _, h := range pending {
		if held[h.WorkOrderId] {
			continue
		}
		msgID, pubErr := d.Publisher.PublishAuditEvent(ctx, ToAuditMessage(h))
		if pubErr != nil {
			held[h.WorkOrderId] = true
			if d.Logger != nil {
				d.Logger.WithFields(logrus.Fields{
					"field":         "AuditDispatcher",
					"history_id":    h.ID,
					"work_order_id": h.WorkOrderId,
					"sequence":      h.Sequence,
				}).Warn("audit publish failed: " + pubErr.Error())
			}
			continue
		}
		if err := models.MarkHistoryPublished(ctx, d.DB, h.ID, time.Now().UTC()); err != nil {
			held[h.WorkOrderId] = true
			config.LogError(d.Logger, "AuditDispatcher", "DispatchOnce", "mark published", map[string]any{
				"history_id": h.ID,
				"message_id": msgID,
			}, err)
			continue
		}
		published++
	}
	return published, nil
}

func ToAuditMessage(h *models.History) config.AuditMessage {
	msg := config.AuditMessage{
		ID:          h.ID,
		WorkOrderId: h.WorkOrderId,
		Sequence:    h.Sequence,
		Kind:        string(h.Kind),
		Title:       h.Title,
		Description: h.Description,
		ActorName:   h.ActorName,
		CreatedAt:   h.CreatedAt,
	}
	if len(h.Payload) > 0 {
		msg.Payload = json.RawMessage(h.Payload)
	}
	return msg
}
