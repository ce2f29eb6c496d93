// cost-report writes the cost and margin summary of every work order scheduled
// in a date range to an .xlsx workbook.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/cost-report -from 2026-03-01 -to 2026-03-31
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fieldops/workorder_backend/config"
	"github.com/fieldops/workorder_backend/models"
	"github.com/fieldops/workorder_backend/models/reports"
)

const dateLayout = "2006-01-02"

type reportRange struct {
	From time.Time
	To   time.Time
}

// parseRange reads both bounds as whole days; to covers its full day.
func parseRange(from string, to string) (reportRange, error) {
	if from == "" || to == "" {
		return reportRange{}, errors.New("-from and -to are required (YYYY-MM-DD)")
	}
	f, err := time.Parse(dateLayout, from)
	if err != nil {
		return reportRange{}, fmt.Errorf("invalid -from: %w", err)
	}
	t, err := time.Parse(dateLayout, to)
	if err != nil {
		return reportRange{}, fmt.Errorf("invalid -to: %w", err)
	}
	return reportRange{From: f, To: t.Add(24*time.Hour - time.Second)}, nil
}

func defaultOutput(r reportRange) string {
	return fmt.Sprintf("costs_%s_%s.xlsx", r.From.Format(dateLayout), r.To.Format(dateLayout))
}

func run(ctx context.Context, e *models.Engine, r reportRange, output string) (int, error) {
	rows, err := e.CostReport(ctx, r.From, r.To)
	if err != nil {
		return 0, err
	}
	if err := reports.SaveCostWorkbook(output, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func main() {
	from := flag.String("from", "", "Required: first scheduled date (YYYY-MM-DD)")
	to := flag.String("to", "", "Required: last scheduled date (YYYY-MM-DD)")
	out := flag.String("out", "", "Output file (defaults to costs_<from>_<to>.xlsx)")
	flag.Parse()

	r, err := parseRange(*from, *to)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	output := *out
	if output == "" {
		output = defaultOutput(r)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	n, err := run(context.Background(), models.NewEngine(db, nil, nil), r, output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cost report failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d work orders to %s\n", n, output)
}
