package models_test

import (
	"testing"

	"github.com/fieldops/workorder_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAggregateBilledRevenue(t *testing.T) {
	summary := models.Aggregate(models.CostInputs{
		Crew:           []models.CrewAssignment{{TotalValue: dec("300")}},
		Vehicles:       []models.VehicleAssignment{{TotalValue: dec("150")}},
		BilledValue:    decimal.NewNullDecimal(dec("1000")),
		MaterialsValue: dec("100"),
		TravelValue:    decimal.Zero,
	})

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"labor", summary.Labor, "300"},
		{"vehicle", summary.Vehicle, "150"},
		{"total cost", summary.TotalCost, "550"},
		{"revenue", summary.Revenue, "1000"},
		{"margin", summary.Margin, "450"},
		{"margin pct", summary.MarginPct, "45"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Fatalf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if summary.RevenueSource != models.RevenueSourceBilled {
		t.Fatalf("revenue source = %s", summary.RevenueSource)
	}
}

func TestAggregateFallsBackToServiceLines(t *testing.T) {
	summary := models.Aggregate(models.CostInputs{
		ServiceLines: []models.ServiceLine{
			{TotalValue: dec("200")},
			{TotalValue: dec("100")},
		},
		Extras:         []models.ExtraCost{{Value: dec("40")}},
		MaterialsValue: dec("20"),
		TravelValue:    dec("40"),
	})
	if summary.RevenueSource != models.RevenueSourceServiceLines {
		t.Fatalf("revenue source = %s", summary.RevenueSource)
	}
	if !summary.Revenue.Equal(dec("300")) {
		t.Fatalf("revenue = %s, want 300", summary.Revenue)
	}
	if !summary.TotalCost.Equal(dec("100")) {
		t.Fatalf("total cost = %s, want 100", summary.TotalCost)
	}
	if !summary.MarginPct.Equal(dec("66.67")) {
		t.Fatalf("margin pct = %s, want 66.67", summary.MarginPct)
	}
}

func TestAggregateZeroBilledIgnoresServiceLines(t *testing.T) {
	summary := models.Aggregate(models.CostInputs{
		ServiceLines: []models.ServiceLine{{TotalValue: dec("500")}},
		BilledValue:  decimal.NewNullDecimal(decimal.Zero),
	})
	if !summary.Revenue.IsZero() || summary.RevenueSource != models.RevenueSourceBilled {
		t.Fatalf("revenue = %s from %s, want 0 billed", summary.Revenue, summary.RevenueSource)
	}
}

func TestAggregateMarginPctNeverDividesByZero(t *testing.T) {
	cases := []struct {
		name    string
		in      models.CostInputs
		wantPct string
		margin  string
	}{
		{"empty", models.CostInputs{}, "0", "0"},
		{"zero revenue with costs", models.CostInputs{
			Crew:        []models.CrewAssignment{{TotalValue: dec("80")}},
			BilledValue: decimal.NewNullDecimal(decimal.Zero),
		}, "0", "-80"},
		{"loss", models.CostInputs{
			Crew:        []models.CrewAssignment{{TotalValue: dec("150")}},
			BilledValue: decimal.NewNullDecimal(dec("100")),
		}, "-50", "-50"},
		{"thirds", models.CostInputs{
			Extras:      []models.ExtraCost{{Value: dec("1")}},
			BilledValue: decimal.NewNullDecimal(dec("3")),
		}, "66.67", "2"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			summary := models.Aggregate(c.in)
			if !summary.MarginPct.Equal(dec(c.wantPct)) {
				t.Fatalf("margin pct = %s, want %s", summary.MarginPct, c.wantPct)
			}
			if !summary.Margin.Equal(dec(c.margin)) {
				t.Fatalf("margin = %s, want %s", summary.Margin, c.margin)
			}
		})
	}
}
