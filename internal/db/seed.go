package db

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"podvault/internal/models"
)

// defaultPlans is the bootstrap catalog used when no plan file is supplied.
// Amounts are in cents.
var defaultPlans = []models.Plan{
	{Code: "starter", Amount: 5_000, LifecycleWeeks: 12, MaxMembers: 6},
	{Code: "saver", Amount: 10_000, LifecycleWeeks: 12, MaxMembers: 10},
	{Code: "builder", Amount: 25_000, LifecycleWeeks: 24, MaxMembers: 12},
}

type planCatalog struct {
	Plans []struct {
		Code           string `yaml:"code"`
		Amount         int64  `yaml:"amount"`
		LifecycleWeeks int    `yaml:"lifecycle_weeks"`
		MaxMembers     int    `yaml:"max_members"`
	} `yaml:"plans"`
}

// Seed inserts the plan catalog, reading catalogPath when set and falling
// back to the built-in defaults. Existing plans are left untouched, so
// seeding is idempotent and administrative edits survive restarts.
func Seed(ctx context.Context, database *gorm.DB, catalogPath string) error {
	plans := defaultPlans
	if catalogPath != "" {
		loaded, err := loadCatalog(catalogPath)
		if err != nil {
			return err
		}
		plans = loaded
	}

	for _, plan := range plans {
		plan.ID = uuid.New()
		plan.Active = true
		if err := database.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&plan).Error; err != nil {
			return fmt.Errorf("seed plan %s: %w", plan.Code, err)
		}
	}
	return nil
}

func loadCatalog(path string) ([]models.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}

	var catalog planCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}

	plans := make([]models.Plan, 0, len(catalog.Plans))
	for _, p := range catalog.Plans {
		if p.Code == "" || p.Amount <= 0 || p.LifecycleWeeks <= 0 || p.MaxMembers <= 0 {
			return nil, fmt.Errorf("invalid plan entry %q in %s", p.Code, path)
		}
		plans = append(plans, models.Plan{
			Code:           p.Code,
			Amount:         p.Amount,
			LifecycleWeeks: p.LifecycleWeeks,
			MaxMembers:     p.MaxMembers,
		})
	}
	if len(plans) == 0 {
		return nil, fmt.Errorf("plan catalog %s is empty", path)
	}
	return plans, nil
}
