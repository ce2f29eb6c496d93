package models_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fieldops/workorder_backend/config"
	"github.com/fieldops/workorder_backend/models"
	"github.com/fieldops/workorder_backend/testutil"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var testActor = models.Actor{Id: "u-1", Name: "Marina Tech"}

var scheduledFor = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// newTestEngine returns an engine on a fresh database whose clock advances a minute per read.
func newTestEngine(t *testing.T) (*models.Engine, *testutil.MemoryStorage) {
	t.Helper()
	db := testutil.NewTestDB(t)
	storage := testutil.NewMemoryStorage()
	e := models.NewEngine(db, storage, nil)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	e.Clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return e, storage
}

func createWorkOrder(t *testing.T, e *models.Engine, input *models.NewWorkOrder) *models.WorkOrder {
	t.Helper()
	if input == nil {
		input = &models.NewWorkOrder{ClientId: 7, ScheduledDate: scheduledFor}
	}
	wo, err := e.CreateWorkOrder(context.Background(), testActor, input)
	if err != nil {
		t.Fatalf("CreateWorkOrder: %v", err)
	}
	return wo
}

func histories(t *testing.T, e *models.Engine, workOrderId int, kind *models.HistoryKind) []*models.History {
	t.Helper()
	list, err := e.ListHistories(context.Background(), workOrderId, kind)
	if err != nil {
		t.Fatalf("ListHistories: %v", err)
	}
	return list
}

func kindPtr(k models.HistoryKind) *models.HistoryKind { return &k }

func TestCreateWorkOrderNumbersAndAudit(t *testing.T) {
	e, _ := newTestEngine(t)
	first := createWorkOrder(t, e, nil)
	second := createWorkOrder(t, e, nil)

	if first.Number != "OS-000001" || second.Number != "OS-000002" {
		t.Fatalf("numbers = %s, %s", first.Number, second.Number)
	}
	if first.Status != models.WorkOrderStatusScheduled {
		t.Fatalf("initial status = %s", first.Status)
	}
	list := histories(t, e, first.ID, nil)
	if len(list) != 1 || list[0].Kind != models.HistoryKindCreation || list[0].Sequence != 1 {
		t.Fatalf("histories = %+v", list)
	}
	if list[0].ActorName != testActor.Name {
		t.Fatalf("actor = %q", list[0].ActorName)
	}
}

func TestCreateWorkOrderValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	negative := dec("-1")
	huge := dec("1e16")

	cases := []struct {
		name  string
		actor models.Actor
		input *models.NewWorkOrder
		field string
	}{
		{"missing actor", models.Actor{}, &models.NewWorkOrder{ClientId: 1, ScheduledDate: scheduledFor}, "actor"},
		{"missing client", testActor, &models.NewWorkOrder{ScheduledDate: scheduledFor}, "client_id"},
		{"negative billed", testActor, &models.NewWorkOrder{ClientId: 1, ScheduledDate: scheduledFor, BilledValue: &negative}, "billed_value"},
		{"billed beyond column", testActor, &models.NewWorkOrder{ClientId: 1, ScheduledDate: scheduledFor, BilledValue: &huge}, "billed_value"},
		{"travel beyond column", testActor, &models.NewWorkOrder{ClientId: 1, ScheduledDate: scheduledFor, TravelValue: huge}, "travel_value"},
		{"bad phone", testActor, &models.NewWorkOrder{ClientId: 1, ScheduledDate: scheduledFor, ContactPhone: "123"}, "contact_phone"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := e.CreateWorkOrder(ctx, c.actor, c.input)
			var ve *models.ValidationError
			if !errors.As(err, &ve) || ve.Field != c.field {
				t.Fatalf("err = %v, want ValidationError on %s", err, c.field)
			}
		})
	}

	var count int64
	e.DB.Model(&models.WorkOrder{}).Count(&count)
	if count != 0 {
		t.Fatalf("work orders written = %d", count)
	}
}

func TestTransitionWorkOrderLifecycle(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	wo := createWorkOrder(t, e, nil)

	steps := []models.WorkOrderStatus{
		models.WorkOrderStatusInProgress,
		models.WorkOrderStatusPaused,
		models.WorkOrderStatusInProgress,
		models.WorkOrderStatusCompleted,
	}
	var firstStart time.Time
	for i, target := range steps {
		got, err := e.TransitionWorkOrder(ctx, testActor, wo.ID, target)
		if err != nil {
			t.Fatalf("TransitionWorkOrder(%s): %v", target, err)
		}
		if got.StartedAt == nil {
			t.Fatalf("step %d: start not set", i)
		}
		if i == 0 {
			firstStart = *got.StartedAt
		} else if !got.StartedAt.Equal(firstStart) {
			t.Fatalf("step %d: start moved to %v", i, got.StartedAt)
		}
		if (got.CompletedAt != nil) != (i == 3) {
			t.Fatalf("step %d: completion = %v", i, got.CompletedAt)
		}
	}

	reloaded, err := e.GetWorkOrder(ctx, wo.ID)
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if reloaded.Status != models.WorkOrderStatusCompleted || !reloaded.StartedAt.Equal(firstStart) {
		t.Fatalf("reloaded = %+v", reloaded)
	}

	changes := histories(t, e, wo.ID, kindPtr(models.HistoryKindStatusChange))
	if len(changes) != 4 {
		t.Fatalf("status-change events = %d, want 4", len(changes))
	}
	all := histories(t, e, wo.ID, nil)
	for i := 1; i < len(all); i++ {
		if all[i].Sequence <= all[i-1].Sequence {
			t.Fatalf("sequence not increasing: %d then %d", all[i-1].Sequence, all[i].Sequence)
		}
	}
}

func TestTransitionReselectionIsAudited(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	wo := createWorkOrder(t, e, nil)

	calls := []models.WorkOrderStatus{
		models.WorkOrderStatusScheduled,
		models.WorkOrderStatusScheduled,
		models.WorkOrderStatusConfirmed,
		models.WorkOrderStatusCancelled,
		models.WorkOrderStatusCancelled,
		models.WorkOrderStatusScheduled,
	}
	for _, target := range calls {
		if _, err := e.TransitionWorkOrder(ctx, testActor, wo.ID, target); err != nil {
			t.Fatalf("TransitionWorkOrder(%s): %v", target, err)
		}
	}
	changes := histories(t, e, wo.ID, kindPtr(models.HistoryKindStatusChange))
	if len(changes) < len(calls) {
		t.Fatalf("status-change events = %d, want >= %d", len(changes), len(calls))
	}
	last := changes[len(changes)-1]
	if !strings.Contains(string(last.Payload), `"correction":true`) {
		t.Fatalf("revival payload = %s", last.Payload)
	}
}

func TestTransitionIsAtomic(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	wo := createWorkOrder(t, e, nil)

	boom := errors.New("history insert failed")
	err := e.DB.Callback().Create().Before("gorm:create").Register("test:fail_history", func(tx *gorm.DB) {
		if tx.Statement.Table == config.HistoryTable {
			_ = tx.AddError(boom)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err = e.TransitionWorkOrder(ctx, testActor, wo.ID, models.WorkOrderStatusInProgress)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	var pe *models.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T, want PersistenceError", err)
	}

	reloaded, err := e.GetWorkOrder(ctx, wo.ID)
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if reloaded.Status != models.WorkOrderStatusScheduled || reloaded.StartedAt != nil {
		t.Fatalf("work order changed without its audit event: %+v", reloaded)
	}
}

func TestTransitionUnknownWorkOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.TransitionWorkOrder(context.Background(), testActor, 404, models.WorkOrderStatusConfirmed)
	var nfe *models.NotFoundError
	if !errors.As(err, &nfe) || nfe.Id != 404 {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestUpdateWorkOrderAuditsOnlyChanges(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	wo := createWorkOrder(t, e, nil)

	billed := dec("1200.50")
	notes := "gate code 4411"
	updated, err := e.UpdateWorkOrder(ctx, testActor, wo.ID, &models.WorkOrderUpdate{
		BilledValue:   &billed,
		InternalNotes: &notes,
	})
	if err != nil {
		t.Fatalf("UpdateWorkOrder: %v", err)
	}
	if !updated.BilledValue.Valid || !updated.BilledValue.Decimal.Equal(billed) {
		t.Fatalf("billed = %+v", updated.BilledValue)
	}

	if _, err := e.UpdateWorkOrder(ctx, testActor, wo.ID, &models.WorkOrderUpdate{InternalNotes: &notes}); err != nil {
		t.Fatalf("UpdateWorkOrder (no-op): %v", err)
	}
	edits := histories(t, e, wo.ID, kindPtr(models.HistoryKindEdit))
	if len(edits) != 1 {
		t.Fatalf("edit events = %d, want 1", len(edits))
	}

	cleared, err := e.UpdateWorkOrder(ctx, testActor, wo.ID, &models.WorkOrderUpdate{ClearBilledValue: true})
	if err != nil {
		t.Fatalf("UpdateWorkOrder (clear): %v", err)
	}
	if cleared.BilledValue.Valid {
		t.Fatalf("billed value not cleared")
	}
	reloaded, err := e.GetWorkOrder(ctx, wo.ID)
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if reloaded.BilledValue.Valid || reloaded.InternalNotes != notes {
		t.Fatalf("reloaded = %+v", reloaded)
	}
}

func TestAuditTrailIsAppendOnly(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	wo := createWorkOrder(t, e, nil)
	comment, err := e.AddWorkOrderComment(ctx, testActor, wo.ID, "customer asked to call ahead")
	if err != nil {
		t.Fatalf("AddWorkOrderComment: %v", err)
	}
	if comment.Kind != models.HistoryKindComment || comment.Sequence != 2 {
		t.Fatalf("comment = %+v", comment)
	}

	err = e.DB.Model(&models.History{}).Where("id = ?", comment.ID).Update("title", "rewritten").Error
	if !errors.Is(err, config.ErrAuditImmutable) {
		t.Fatalf("update err = %v, want ErrAuditImmutable", err)
	}
	err = e.DB.Where("id = ?", comment.ID).Delete(&models.History{}).Error
	if !errors.Is(err, config.ErrAuditImmutable) {
		t.Fatalf("delete err = %v, want ErrAuditImmutable", err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := models.MarkHistoryPublished(ctx, e.DB, comment.ID, at); err != nil {
		t.Fatalf("MarkHistoryPublished: %v", err)
	}
	pending, err := models.FetchUnpublishedHistories(ctx, e.DB, 10)
	if err != nil {
		t.Fatalf("FetchUnpublishedHistories: %v", err)
	}
	if len(pending) != 1 || pending[0].Kind != models.HistoryKindCreation {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestListWorkOrdersFilter(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a := createWorkOrder(t, e, &models.NewWorkOrder{ClientId: 1, ScheduledDate: scheduledFor})
	createWorkOrder(t, e, &models.NewWorkOrder{ClientId: 2, ScheduledDate: scheduledFor.AddDate(0, 0, 1)})
	if _, err := e.TransitionWorkOrder(ctx, testActor, a.ID, models.WorkOrderStatusConfirmed); err != nil {
		t.Fatalf("TransitionWorkOrder: %v", err)
	}

	confirmed := models.WorkOrderStatusConfirmed
	list, err := e.ListWorkOrders(ctx, models.WorkOrderFilter{Status: &confirmed})
	if err != nil {
		t.Fatalf("ListWorkOrders: %v", err)
	}
	if len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("filtered = %+v", list)
	}
	client := 2
	list, err = e.ListWorkOrders(ctx, models.WorkOrderFilter{ClientId: &client})
	if err != nil {
		t.Fatalf("ListWorkOrders: %v", err)
	}
	if len(list) != 1 || list[0].ClientId != 2 {
		t.Fatalf("by client = %+v", list)
	}
}

func TestWorkOrderCostsFromChildRows(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	billed := dec("1000")
	wo := createWorkOrder(t, e, &models.NewWorkOrder{
		ClientId:       3,
		ScheduledDate:  scheduledFor,
		BilledValue:    &billed,
		MaterialsValue: dec("100"),
	})

	crew, err := e.AddCrewAssignment(ctx, testActor, wo.ID, models.NewCrewAssignment{
		WorkerName: "Joao", Days: dec("2"), DailyRate: dec("120"), Allowance: dec("60"),
	})
	if err != nil {
		t.Fatalf("AddCrewAssignment: %v", err)
	}
	if !crew.TotalValue.Equal(dec("300")) {
		t.Fatalf("crew total = %s", crew.TotalValue)
	}
	vehicle, err := e.AddVehicleAssignment(ctx, testActor, wo.ID, models.NewVehicleAssignment{
		Vehicle: "Van 03", Days: dec("1"), DailyRental: dec("100"), FuelCost: dec("50"),
	})
	if err != nil {
		t.Fatalf("AddVehicleAssignment: %v", err)
	}
	if !vehicle.TotalValue.Equal(dec("150")) {
		t.Fatalf("vehicle total = %s", vehicle.TotalValue)
	}

	summary, err := e.SummarizeWorkOrderCosts(ctx, wo.ID)
	if err != nil {
		t.Fatalf("SummarizeWorkOrderCosts: %v", err)
	}
	if !summary.TotalCost.Equal(dec("550")) || !summary.Margin.Equal(dec("450")) || !summary.MarginPct.Equal(dec("45")) {
		t.Fatalf("summary = %+v", summary)
	}

	extra, err := e.AddExtraCost(ctx, testActor, wo.ID, models.NewExtraCost{Description: "Parking", Value: dec("50")})
	if err != nil {
		t.Fatalf("AddExtraCost: %v", err)
	}
	summary, err = e.SummarizeWorkOrderCosts(ctx, wo.ID)
	if err != nil {
		t.Fatalf("SummarizeWorkOrderCosts: %v", err)
	}
	if !summary.TotalCost.Equal(dec("600")) {
		t.Fatalf("total cost after extra = %s", summary.TotalCost)
	}

	if err := e.RemoveExtraCost(ctx, testActor, wo.ID, extra.ID); err != nil {
		t.Fatalf("RemoveExtraCost: %v", err)
	}
	if err := e.RemoveCrewAssignment(ctx, testActor, wo.ID, crew.ID); err != nil {
		t.Fatalf("RemoveCrewAssignment: %v", err)
	}
	summary, err = e.SummarizeWorkOrderCosts(ctx, wo.ID)
	if err != nil {
		t.Fatalf("SummarizeWorkOrderCosts: %v", err)
	}
	if !summary.TotalCost.Equal(dec("250")) {
		t.Fatalf("total cost after removals = %s", summary.TotalCost)
	}

	crewEvents := histories(t, e, wo.ID, kindPtr(models.HistoryKindCrewChange))
	if len(crewEvents) != 2 {
		t.Fatalf("crew-change events = %d, want 2", len(crewEvents))
	}
	if err := e.RemoveCrewAssignment(ctx, testActor, wo.ID, crew.ID); err == nil {
		t.Fatalf("removing twice succeeded")
	}
}

func TestServiceLinesBackRevenue(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	wo := createWorkOrder(t, e, nil)

	if _, err := e.AddServiceLine(ctx, testActor, wo.ID, models.NewServiceLine{
		Description: "Split AC install", Quantity: dec("2"), UnitPrice: dec("250"),
	}); err != nil {
		t.Fatalf("AddServiceLine: %v", err)
	}
	summary, err := e.SummarizeWorkOrderCosts(ctx, wo.ID)
	if err != nil {
		t.Fatalf("SummarizeWorkOrderCosts: %v", err)
	}
	if summary.RevenueSource != models.RevenueSourceServiceLines || !summary.Revenue.Equal(dec("500")) {
		t.Fatalf("revenue = %s from %s", summary.Revenue, summary.RevenueSource)
	}

	_, err = e.AddServiceLine(ctx, testActor, wo.ID, models.NewServiceLine{Description: "Bad", Quantity: decimal.Zero})
	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Field != "quantity" {
		t.Fatalf("err = %v, want quantity ValidationError", err)
	}
}

func TestCostReportRange(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	billed := dec("400")
	in := createWorkOrder(t, e, &models.NewWorkOrder{ClientId: 1, ScheduledDate: scheduledFor, BilledValue: &billed})
	createWorkOrder(t, e, &models.NewWorkOrder{ClientId: 1, ScheduledDate: scheduledFor.AddDate(0, 1, 0)})

	rows, err := e.CostReport(ctx, scheduledFor.AddDate(0, 0, -1), scheduledFor.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("CostReport: %v", err)
	}
	if len(rows) != 1 || rows[0].WorkOrderId != in.ID || !rows[0].Summary.Revenue.Equal(billed) {
		t.Fatalf("rows = %+v", rows)
	}

	_, err = e.CostReport(ctx, scheduledFor, scheduledFor.AddDate(0, 0, -1))
	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}
