// seed-templates loads the standard checklist templates into an empty install.
// Templates whose name already exists among active templates are left alone.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-templates
//   go run ./cmd/seed-templates -file templates.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/fieldops/workorder_backend/config"
	"github.com/fieldops/workorder_backend/models"
)

var seedActor = models.Actor{Id: "seed", Name: "Template Seeder"}

func defaultTemplates() []models.NewChecklistTemplate {
	return []models.NewChecklistTemplate{
		{
			Name:     "Site safety",
			Category: "safety",
			Items: []models.NewChecklistTemplateItem{
				{Prompt: "Power isolated at the panel?", Kind: models.AnswerKindBoolean, Required: true},
				{Prompt: "PPE in use", Kind: models.AnswerKindMultiChoice, Required: true, Options: []string{"Helmet", "Gloves", "Goggles", "Harness"}},
				{Prompt: "Hazards noted", Kind: models.AnswerKindText},
			},
		},
		{
			Name:     "Installation handover",
			Category: "installation",
			Items: []models.NewChecklistTemplateItem{
				{Prompt: "Equipment condition", Kind: models.AnswerKindSingleChoice, Required: true, Options: []string{"Good", "Fair", "Poor"}},
				{Prompt: "Meter reading", Kind: models.AnswerKindNumber},
				{Prompt: "Photo of finished installation", Kind: models.AnswerKindPhoto, Required: true},
				{Prompt: "Handover date", Kind: models.AnswerKindDate, Required: true},
				{Prompt: "Customer signature", Kind: models.AnswerKindSignature, Required: true},
			},
		},
	}
}

func readTemplates(path string) ([]models.NewChecklistTemplate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var templates []models.NewChecklistTemplate
	if err := json.Unmarshal(b, &templates); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return templates, nil
}

// seedTemplates creates each template whose name is not already active.
func seedTemplates(ctx context.Context, e *models.Engine, templates []models.NewChecklistTemplate) (created int, skipped int, err error) {
	existing, err := e.ListChecklistTemplates(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	names := make(map[string]bool, len(existing))
	for _, t := range existing {
		names[t.Name] = true
	}
	for i := range templates {
		input := templates[i]
		if names[input.Name] {
			skipped++
			continue
		}
		if _, err := e.CreateChecklistTemplate(ctx, seedActor, &input); err != nil {
			return created, skipped, fmt.Errorf("template %q: %w", input.Name, err)
		}
		names[input.Name] = true
		created++
	}
	return created, skipped, nil
}

func main() {
	file := flag.String("file", "", "Optional: JSON array of templates (defaults to the built-in set)")
	flag.Parse()

	templates := defaultTemplates()
	if *file != "" {
		var err error
		templates, err = readTemplates(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read templates: %v\n", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	created, skipped, err := seedTemplates(ctx, models.NewEngine(db, nil, nil), templates)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed after %d templates: %v\n", created, err)
		os.Exit(1)
	}
	fmt.Printf("Seeded checklist templates: created=%d skipped=%d\n", created, skipped)
}
