package models

import (
	"context"
	"time"

	"github.com/fieldops/workorder_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RevenueSource string

const (
	RevenueSourceBilled       RevenueSource = "billed"
	RevenueSourceServiceLines RevenueSource = "service_lines"
)

var hundred = decimal.NewFromInt(100)

type CostInputs struct {
	ServiceLines   []ServiceLine
	Crew           []CrewAssignment
	Vehicles       []VehicleAssignment
	Extras         []ExtraCost
	BilledValue    decimal.NullDecimal
	MaterialsValue decimal.Decimal
	TravelValue    decimal.Decimal
}

// CostSummary is derived on every read and never stored.
type CostSummary struct {
	Labor         decimal.Decimal `json:"labor"`
	Vehicle       decimal.Decimal `json:"vehicle"`
	Extra         decimal.Decimal `json:"extra"`
	Materials     decimal.Decimal `json:"materials"`
	Travel        decimal.Decimal `json:"travel"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Revenue       decimal.Decimal `json:"revenue"`
	RevenueSource RevenueSource   `json:"revenue_source"`
	Margin        decimal.Decimal `json:"margin"`
	MarginPct     decimal.Decimal `json:"margin_pct"`
}

// Aggregate computes costs, revenue and margin. The margin may be negative.
func Aggregate(in CostInputs) CostSummary {
	s := CostSummary{
		Labor:     decimal.Zero,
		Vehicle:   decimal.Zero,
		Extra:     decimal.Zero,
		Materials: in.MaterialsValue,
		Travel:    in.TravelValue,
		MarginPct: decimal.Zero,
	}
	for _, c := range in.Crew {
		s.Labor = s.Labor.Add(c.TotalValue)
	}
	for _, v := range in.Vehicles {
		s.Vehicle = s.Vehicle.Add(v.TotalValue)
	}
	for _, x := range in.Extras {
		s.Extra = s.Extra.Add(x.Value)
	}
	s.TotalCost = s.Labor.Add(s.Vehicle).Add(s.Materials).Add(s.Travel).Add(s.Extra)

	if in.BilledValue.Valid {
		s.Revenue = in.BilledValue.Decimal
		s.RevenueSource = RevenueSourceBilled
	} else {
		s.Revenue = decimal.Zero
		for _, l := range in.ServiceLines {
			s.Revenue = s.Revenue.Add(l.TotalValue)
		}
		s.RevenueSource = RevenueSourceServiceLines
	}

	s.Margin = s.Revenue.Sub(s.TotalCost)
	if s.Revenue.IsPositive() {
		s.MarginPct = s.Margin.Mul(hundred).DivRound(s.Revenue, 8).Round(2)
	}
	return s
}

func loadCostInputs(db *gorm.DB, wo *WorkOrder) (CostInputs, error) {
	in := CostInputs{
		BilledValue:    wo.BilledValue,
		MaterialsValue: wo.MaterialsValue,
		TravelValue:    wo.TravelValue,
	}
	if err := db.Where("work_order_id = ?", wo.ID).Order("id").Find(&in.ServiceLines).Error; err != nil {
		return in, err
	}
	if err := db.Where("work_order_id = ?", wo.ID).Order("id").Find(&in.Crew).Error; err != nil {
		return in, err
	}
	if err := db.Where("work_order_id = ?", wo.ID).Order("id").Find(&in.Vehicles).Error; err != nil {
		return in, err
	}
	if err := db.Where("work_order_id = ?", wo.ID).Order("id").Find(&in.Extras).Error; err != nil {
		return in, err
	}
	return in, nil
}

// SummarizeWorkOrderCosts aggregates the work order's current child rows.
func (e *Engine) SummarizeWorkOrderCosts(ctx context.Context, id int) (*CostSummary, error) {
	ctx, span := e.startSpan(ctx, "SummarizeWorkOrderCosts")
	var err error
	defer func() { endSpan(span, err) }()

	var wo *WorkOrder
	wo, err = e.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	in, err := loadCostInputs(e.DB.WithContext(ctx), wo)
	if err != nil {
		err = wrapPersistence("summarize work order costs", err)
		return nil, err
	}
	summary := Aggregate(in)
	return &summary, nil
}

type WorkOrderCostRow struct {
	WorkOrderId   int             `json:"work_order_id"`
	Number        string          `json:"number"`
	ClientId      int             `json:"client_id"`
	ScheduledDate time.Time       `json:"scheduled_date"`
	Status        WorkOrderStatus `json:"status"`
	Summary       CostSummary     `json:"summary"`
}

// CostReport summarizes every work order scheduled within [from, to].
func (e *Engine) CostReport(ctx context.Context, from time.Time, to time.Time) ([]WorkOrderCostRow, error) {
	ctx, span := e.startSpan(ctx, "CostReport")
	var err error
	defer func() { endSpan(span, err) }()

	if to.Before(from) {
		err = newValidationError("to", "must not be before from")
		return nil, err
	}
	db := e.DB.WithContext(ctx)
	var orders []*WorkOrder
	if err = db.Where("scheduled_date >= ? AND scheduled_date <= ?", from, to).
		Order("scheduled_date, id").Find(&orders).Error; err != nil {
		err = wrapPersistence("cost report", err)
		return nil, err
	}

	rows := make([]WorkOrderCostRow, 0, len(orders))
	for _, wo := range orders {
		in, lerr := loadCostInputs(db, wo)
		if lerr != nil {
			err = wrapPersistence("cost report", lerr)
			config.LogError(e.logger(), "CostAggregate", "CostReport", "load cost inputs", wo.ID, lerr)
			return nil, err
		}
		rows = append(rows, WorkOrderCostRow{
			WorkOrderId:   wo.ID,
			Number:        wo.Number,
			ClientId:      wo.ClientId,
			ScheduledDate: wo.ScheduledDate,
			Status:        wo.Status,
			Summary:       Aggregate(in),
		})
	}
	return rows, nil
}
