package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ServiceLine is a billable service; its total feeds revenue when no billed value is set.
type ServiceLine struct {
	ID          int             `gorm:"primary_key" json:"id"`
	WorkOrderId int             `gorm:"index;not null" json:"work_order_id"`
	Description string          `gorm:"size:255;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	TotalValue  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_value"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (l ServiceLine) GetWorkOrderId() int { return l.WorkOrderId }

// CrewAssignment prices a worker's days on the job.
type CrewAssignment struct {
	ID          int             `gorm:"primary_key" json:"id"`
	WorkOrderId int             `gorm:"index;not null" json:"work_order_id"`
	WorkerName  string          `gorm:"size:100;not null" json:"worker_name"`
	Role        string          `gorm:"size:50" json:"role"`
	Days        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"days"`
	DailyRate   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"daily_rate"`
	Allowance   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"allowance"`
	TotalValue  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_value"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (c CrewAssignment) GetWorkOrderId() int { return c.WorkOrderId }

// VehicleAssignment prices a vehicle's days plus fuel and incidentals.
type VehicleAssignment struct {
	ID             int             `gorm:"primary_key" json:"id"`
	WorkOrderId    int             `gorm:"index;not null" json:"work_order_id"`
	Vehicle        string          `gorm:"size:100;not null" json:"vehicle"`
	Days           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"days"`
	DailyRental    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"daily_rental"`
	FuelCost       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"fuel_cost"`
	IncidentalCost decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"incidental_cost"`
	TotalValue     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_value"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (v VehicleAssignment) GetWorkOrderId() int { return v.WorkOrderId }

type ExtraCost struct {
	ID          int             `gorm:"primary_key" json:"id"`
	WorkOrderId int             `gorm:"index;not null" json:"work_order_id"`
	Description string          `gorm:"size:255;not null" json:"description"`
	Value       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value"`
	IncurredOn  *time.Time      `json:"incurred_on"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (x ExtraCost) GetWorkOrderId() int { return x.WorkOrderId }

type NewServiceLine struct {
	Description string          `json:"description" validate:"required,max=255"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type NewCrewAssignment struct {
	WorkerName string          `json:"worker_name" validate:"required,max=100"`
	Role       string          `json:"role" validate:"max=50"`
	Days       decimal.Decimal `json:"days"`
	DailyRate  decimal.Decimal `json:"daily_rate"`
	Allowance  decimal.Decimal `json:"allowance"`
}

type NewVehicleAssignment struct {
	Vehicle        string          `json:"vehicle" validate:"required,max=100"`
	Days           decimal.Decimal `json:"days"`
	DailyRental    decimal.Decimal `json:"daily_rental"`
	FuelCost       decimal.Decimal `json:"fuel_cost"`
	IncidentalCost decimal.Decimal `json:"incidental_cost"`
}

type NewExtraCost struct {
	Description string          `json:"description" validate:"required,max=255"`
	Value       decimal.Decimal `json:"value"`
	IncurredOn  *time.Time      `json:"incurred_on"`
}

func requirePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return newValidationError(field, "must be greater than zero")
	}
	return nil
}

func (input NewServiceLine) validate() error {
	if err := validateInput(input); err != nil {
		return err
	}
	if err := requirePositive("quantity", input.Quantity); err != nil {
		return err
	}
	if err := requireFits("quantity", input.Quantity, moneyPrecision, moneyScale); err != nil {
		return err
	}
	if err := requireMoney("unit_price", input.UnitPrice); err != nil {
		return err
	}
	return requireFits("total_value", input.Quantity.Mul(input.UnitPrice), moneyPrecision, moneyScale)
}

func (input NewCrewAssignment) validate() error {
	if err := validateInput(input); err != nil {
		return err
	}
	if err := requirePositive("days", input.Days); err != nil {
		return err
	}
	if err := requireFits("days", input.Days, daysPrecision, daysScale); err != nil {
		return err
	}
	if err := requireMoney("daily_rate", input.DailyRate); err != nil {
		return err
	}
	if err := requireMoney("allowance", input.Allowance); err != nil {
		return err
	}
	return requireFits("total_value", input.Days.Mul(input.DailyRate).Add(input.Allowance), moneyPrecision, moneyScale)
}

func (input NewVehicleAssignment) validate() error {
	if err := validateInput(input); err != nil {
		return err
	}
	if err := requirePositive("days", input.Days); err != nil {
		return err
	}
	if err := requireFits("days", input.Days, daysPrecision, daysScale); err != nil {
		return err
	}
	if err := requireMoney("daily_rental", input.DailyRental); err != nil {
		return err
	}
	if err := requireMoney("fuel_cost", input.FuelCost); err != nil {
		return err
	}
	if err := requireMoney("incidental_cost", input.IncidentalCost); err != nil {
		return err
	}
	total := input.Days.Mul(input.DailyRental).Add(input.FuelCost).Add(input.IncidentalCost)
	return requireFits("total_value", total, moneyPrecision, moneyScale)
}

func (input NewExtraCost) validate() error {
	if err := validateInput(input); err != nil {
		return err
	}
	return requireMoney("value", input.Value)
}

func (e *Engine) AddServiceLine(ctx context.Context, actor Actor, workOrderId int, input NewServiceLine) (*ServiceLine, error) {
	ctx, span := e.startSpan(ctx, "AddServiceLine")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}
	if err = input.validate(); err != nil {
		return nil, err
	}
	row := ServiceLine{
		WorkOrderId: workOrderId,
		Description: input.Description,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		TotalValue:  input.Quantity.Mul(input.UnitPrice),
		CreatedAt:   e.now(),
	}
	err = addChild(ctx, e, "add service line", actor, &row, func(l *ServiceLine) childAudit {
		return childAudit{
			Kind:        HistoryKindEdit,
			Title:       "Service line added",
			Description: fmt.Sprintf("%s (%s x %s)", l.Description, l.Quantity, l.UnitPrice),
			Payload:     map[string]any{"service_line_id": l.ID, "total_value": l.TotalValue.String()},
		}
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (e *Engine) RemoveServiceLine(ctx context.Context, actor Actor, workOrderId int, id int) error {
	if err := actor.validate(); err != nil {
		return err
	}
	_, err := removeChild(ctx, e, "remove service line", "service line", actor, workOrderId, id, func(l *ServiceLine) childAudit {
		return childAudit{
			Kind:        HistoryKindEdit,
			Title:       "Service line removed",
			Description: l.Description,
			Payload:     map[string]any{"service_line_id": l.ID},
		}
	})
	return err
}

func (e *Engine) AddCrewAssignment(ctx context.Context, actor Actor, workOrderId int, input NewCrewAssignment) (*CrewAssignment, error) {
	ctx, span := e.startSpan(ctx, "AddCrewAssignment")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}
	if err = input.validate(); err != nil {
		return nil, err
	}
	row := CrewAssignment{
		WorkOrderId: workOrderId,
		WorkerName:  input.WorkerName,
		Role:        input.Role,
		Days:        input.Days,
		DailyRate:   input.DailyRate,
		Allowance:   input.Allowance,
		TotalValue:  input.Days.Mul(input.DailyRate).Add(input.Allowance),
		CreatedAt:   e.now(),
	}
	err = addChild(ctx, e, "add crew assignment", actor, &row, func(c *CrewAssignment) childAudit {
		return childAudit{
			Kind:        HistoryKindCrewChange,
			Title:       "Crew member assigned",
			Description: fmt.Sprintf("%s for %s day(s)", c.WorkerName, c.Days),
			Payload:     map[string]any{"crew_assignment_id": c.ID, "worker_name": c.WorkerName, "total_value": c.TotalValue.String()},
		}
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (e *Engine) RemoveCrewAssignment(ctx context.Context, actor Actor, workOrderId int, id int) error {
	if err := actor.validate(); err != nil {
		return err
	}
	_, err := removeChild(ctx, e, "remove crew assignment", "crew assignment", actor, workOrderId, id, func(c *CrewAssignment) childAudit {
		return childAudit{
			Kind:        HistoryKindCrewChange,
			Title:       "Crew member removed",
			Description: c.WorkerName,
			Payload:     map[string]any{"crew_assignment_id": c.ID, "worker_name": c.WorkerName},
		}
	})
	return err
}

func (e *Engine) AddVehicleAssignment(ctx context.Context, actor Actor, workOrderId int, input NewVehicleAssignment) (*VehicleAssignment, error) {
	ctx, span := e.startSpan(ctx, "AddVehicleAssignment")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}
	if err = input.validate(); err != nil {
		return nil, err
	}
	row := VehicleAssignment{
		WorkOrderId:    workOrderId,
		Vehicle:        input.Vehicle,
		Days:           input.Days,
		DailyRental:    input.DailyRental,
		FuelCost:       input.FuelCost,
		IncidentalCost: input.IncidentalCost,
		TotalValue:     input.Days.Mul(input.DailyRental).Add(input.FuelCost).Add(input.IncidentalCost),
		CreatedAt:      e.now(),
	}
	err = addChild(ctx, e, "add vehicle assignment", actor, &row, func(v *VehicleAssignment) childAudit {
		return childAudit{
			Kind:        HistoryKindEdit,
			Title:       "Vehicle assigned",
			Description: fmt.Sprintf("%s for %s day(s)", v.Vehicle, v.Days),
			Payload:     map[string]any{"vehicle_assignment_id": v.ID, "total_value": v.TotalValue.String()},
		}
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (e *Engine) RemoveVehicleAssignment(ctx context.Context, actor Actor, workOrderId int, id int) error {
	if err := actor.validate(); err != nil {
		return err
	}
	_, err := removeChild(ctx, e, "remove vehicle assignment", "vehicle assignment", actor, workOrderId, id, func(v *VehicleAssignment) childAudit {
		return childAudit{
			Kind:        HistoryKindEdit,
			Title:       "Vehicle removed",
			Description: v.Vehicle,
			Payload:     map[string]any{"vehicle_assignment_id": v.ID},
		}
	})
	return err
}

func (e *Engine) AddExtraCost(ctx context.Context, actor Actor, workOrderId int, input NewExtraCost) (*ExtraCost, error) {
	ctx, span := e.startSpan(ctx, "AddExtraCost")
	var err error
	defer func() { endSpan(span, err) }()

	if err = actor.validate(); err != nil {
		return nil, err
	}
	if err = input.validate(); err != nil {
		return nil, err
	}
	row := ExtraCost{
		WorkOrderId: workOrderId,
		Description: input.Description,
		Value:       input.Value,
		IncurredOn:  input.IncurredOn,
		CreatedAt:   e.now(),
	}
	err = addChild(ctx, e, "add extra cost", actor, &row, func(x *ExtraCost) childAudit {
		return childAudit{
			Kind:        HistoryKindEdit,
			Title:       "Extra cost added",
			Description: fmt.Sprintf("%s: %s", x.Description, x.Value),
			Payload:     map[string]any{"extra_cost_id": x.ID, "value": x.Value.String()},
		}
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (e *Engine) RemoveExtraCost(ctx context.Context, actor Actor, workOrderId int, id int) error {
	if err := actor.validate(); err != nil {
		return err
	}
	_, err := removeChild(ctx, e, "remove extra cost", "extra cost", actor, workOrderId, id, func(x *ExtraCost) childAudit {
		return childAudit{
			Kind:        HistoryKindEdit,
			Title:       "Extra cost removed",
			Description: x.Description,
			Payload:     map[string]any{"extra_cost_id": x.ID},
		}
	})
	return err
}

func (e *Engine) ListServiceLines(ctx context.Context, workOrderId int) ([]*ServiceLine, error) {
	rows, err := listChildren[ServiceLine](ctx, e.DB, workOrderId)
	return rows, wrapPersistence("list service lines", err)
}

func (e *Engine) ListCrewAssignments(ctx context.Context, workOrderId int) ([]*CrewAssignment, error) {
	rows, err := listChildren[CrewAssignment](ctx, e.DB, workOrderId)
	return rows, wrapPersistence("list crew assignments", err)
}

func (e *Engine) ListVehicleAssignments(ctx context.Context, workOrderId int) ([]*VehicleAssignment, error) {
	rows, err := listChildren[VehicleAssignment](ctx, e.DB, workOrderId)
	return rows, wrapPersistence("list vehicle assignments", err)
}

func (e *Engine) ListExtraCosts(ctx context.Context, workOrderId int) ([]*ExtraCost, error) {
	rows, err := listChildren[ExtraCost](ctx, e.DB, workOrderId)
	return rows, wrapPersistence("list extra costs", err)
}
