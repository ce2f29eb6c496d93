package reports

import (
	"fmt"
	"io"

	"github.com/fieldops/workorder_backend/models"
	"github.com/xuri/excelize/v2"
)

const costSheet = "Costs"

var costHeadings = []string{
	"Number", "ScheduledDate", "Status",
	"Labor", "Vehicle", "Materials", "Travel", "Extra",
	"TotalCost", "Revenue", "RevenueSource", "Margin", "MarginPct",
}

func costCellValues(row models.WorkOrderCostRow) []interface{} {
	s := row.Summary
	return []interface{}{
		row.Number,
		row.ScheduledDate.Format("2006-01-02"),
		string(row.Status),
		s.Labor.InexactFloat64(),
		s.Vehicle.InexactFloat64(),
		s.Materials.InexactFloat64(),
		s.Travel.InexactFloat64(),
		s.Extra.InexactFloat64(),
		s.TotalCost.InexactFloat64(),
		s.Revenue.InexactFloat64(),
		string(s.RevenueSource),
		s.Margin.InexactFloat64(),
		s.MarginPct.InexactFloat64(),
	}
}

// BuildCostWorkbook lays the rows out one work order per line under a header row.
func BuildCostWorkbook(rows []models.WorkOrderCostRow) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", costSheet); err != nil {
		return nil, err
	}

	for i, h := range costHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(costSheet, cell, h); err != nil {
			return nil, err
		}
	}
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		values := costCellValues(row)
		if err := f.SetSheetRow(costSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("row %s: %w", row.Number, err)
		}
	}
	return f, nil
}

func WriteCostWorkbook(w io.Writer, rows []models.WorkOrderCostRow) error {
	f, err := BuildCostWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func SaveCostWorkbook(filename string, rows []models.WorkOrderCostRow) error {
	f, err := BuildCostWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(filename)
}
