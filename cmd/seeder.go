package cmd

import (
	"fmt"
	"log"
	"time"

	datamodel "github.com/cooperapp/cooperapp/internal/core/datamodel/project"
	userModel "github.com/cooperapp/cooperapp/internal/core/datamodel/user"
	"github.com/cooperapp/cooperapp/internal/permission"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initGorm(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if clearData {
			for _, table := range []string{"project_assignments", "projects", "users"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing seed tables")
		}

		adminRole := string(permission.RoleAdmin)
		coordinatorRole := string(permission.RoleCoordinator)
		countryRole := string(permission.RoleCountryManager)

		users := []userModel.User{
			{
				ID:         uuid.NewString(),
				Email:      "admin@cooperapp.dev",
				GivenName:  "Ada",
				FamilyName: "Admin",
				Role:       &adminRole,
				IsActive:   true,
			},
			{
				ID:         uuid.NewString(),
				Email:      "coordinator@cooperapp.dev",
				GivenName:  "Carla",
				FamilyName: "Coordinator",
				Role:       &coordinatorRole,
				IsActive:   true,
			},
			{
				ID:         uuid.NewString(),
				Email:      "manager@cooperapp.dev",
				GivenName:  "Marco",
				FamilyName: "Manager",
				Role:       &countryRole,
				IsActive:   true,
			},
			{
				// Pending activation until an admin grants a role.
				ID:         uuid.NewString(),
				Email:      "pending@cooperapp.dev",
				GivenName:  "Paula",
				FamilyName: "Pending",
				IsActive:   true,
			},
		}

		for _, u := range users {
			var existing userModel.User
			err := db.Where("email = ?", u.Email).First(&existing).Error
			if err == nil {
				fmt.Println("user already exists:", u.Email)
				continue
			}
			if err != gorm.ErrRecordNotFound {
				log.Fatalf("failed to look up user %s: %v", u.Email, err)
			}
			if err := db.Create(&u).Error; err != nil {
				log.Fatalf("failed to insert user %s: %v", u.Email, err)
			}
			fmt.Println("Seeded user:", u.Email)
		}

		start := time.Now().AddDate(0, -6, 0)
		end := time.Now().AddDate(1, 0, 0)
		projects := []datamodel.Project{
			{Title: "Rural water supply, Tigray", AccountingCode: "ET-2024-003", Country: "Ethiopia", Status: datamodel.StatusExecution, StartDate: &start, EndDate: &end},
			{Title: "Primary education, Cusco", AccountingCode: "PE-2023-011", Country: "Peru", Status: datamodel.StatusJustification, StartDate: &start, EndDate: &end},
			{Title: "Maternal health, Kolda", AccountingCode: "SN-2025-001", Country: "Senegal", Status: datamodel.StatusFormulation},
		}

		for _, p := range projects {
			if err := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "accounting_code"}},
				DoNothing: true,
			}).Create(&p).Error; err != nil {
				log.Fatalf("failed to insert project %s: %v", p.AccountingCode, err)
			}
			fmt.Println("Seeded project:", p.AccountingCode)
		}

		// Scope the country manager to the Ethiopian project.
		var manager userModel.User
		if err := db.Where("email = ?", "manager@cooperapp.dev").First(&manager).Error; err != nil {
			log.Fatalf("failed to look up manager user: %v", err)
		}
		var et datamodel.Project
		if err := db.Where("accounting_code = ?", "ET-2024-003").First(&et).Error; err != nil {
			log.Fatalf("failed to look up project: %v", err)
		}
		assignment := userModel.ProjectAssignment{UserID: manager.ID, ProjectID: et.ID}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&assignment).Error; err != nil {
			log.Fatalf("failed to assign project: %v", err)
		}

		fmt.Println("Seeding completed")
	},
}
