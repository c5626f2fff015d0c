package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/rapidaid/internal/config"
	"github.com/zulandar/rapidaid/internal/identity"
	"github.com/zulandar/rapidaid/internal/lifecycle"
	"github.com/zulandar/rapidaid/internal/models"
)

// AllModels returns every GORM model managed by migrations.
func AllModels() []interface{} {
	return []interface{}{
		&models.SOSRequest{},
		&models.RequestEvent{},
		&models.Responder{},
		&models.ActiveAssignment{},
		&models.Account{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// DropAll drops every table managed by AutoMigrate.
func DropAll(db *gorm.DB) error {
	if err := db.Migrator().DropTable(AllModels()...); err != nil {
		return fmt.Errorf("db: drop tables: %w", err)
	}
	return nil
}

// SeedAccounts upserts Account rows from configuration. Only the token hash
// is stored.
func SeedAccounts(db *gorm.DB, accounts []config.AccountConfig) error {
	for _, ac := range accounts {
		acct := models.Account{
			ID:        ac.ID,
			Name:      ac.Name,
			Email:     ac.Email,
			Role:      ac.Role,
			TokenHash: identity.HashToken(ac.Token),
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "email", "role", "token_hash", "updated_at"}),
		}).Create(&acct)
		if result.Error != nil {
			return fmt.Errorf("db: seed account %q: %w", ac.ID, result.Error)
		}
	}
	return nil
}

// SeedResponders upserts the responder directory from configuration.
// Directory order follows the config order on first insert.
func SeedResponders(db *gorm.DB, responders []config.ResponderConfig) error {
	for _, rc := range responders {
		cats, err := canonicalCategories(rc.Categories)
		if err != nil {
			return fmt.Errorf("db: seed responder %q: %w", rc.ID, err)
		}
		available := true
		if rc.Available != nil {
			available = *rc.Available
		}
		r := models.Responder{
			ID:          rc.ID,
			DisplayName: rc.DisplayName,
			Contact:     rc.Contact,
			Role:        rc.Role,
			Available:   available,
			Latitude:    rc.Latitude,
			Longitude:   rc.Longitude,
			Categories:  cats,
		}
		result := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "contact", "role", "available", "latitude", "longitude", "categories", "updated_at",
			}),
		}).Create(&r)
		if result.Error != nil {
			return fmt.Errorf("db: seed responder %q: %w", rc.ID, result.Error)
		}
	}
	return nil
}

// canonicalCategories normalizes a category list to the stored
// comma-separated form.
func canonicalCategories(in []string) (string, error) {
	out := make([]string, 0, len(in))
	for _, c := range in {
		canon, err := lifecycle.ParseCategory(c)
		if err != nil {
			return "", err
		}
		out = append(out, canon)
	}
	return strings.Join(out, ","), nil
}
