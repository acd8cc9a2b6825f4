package bootstrap

import (
	"context"
	"log"
	"os"

	"github.com/salesdesk/backend/internal/application/services"
	"github.com/salesdesk/backend/internal/infrastructure/persistence"
	"github.com/salesdesk/backend/pkg/auth"
	"github.com/salesdesk/backend/pkg/constants"
	"github.com/salesdesk/backend/pkg/models"
	"github.com/salesdesk/backend/pkg/utils"
)

// defaultOptions seeds the fixed enumerated fields on first start.
var defaultOptions = map[string][]string{
	constants.FieldStatus:   {"New", "Contacted", "Qualified", "Won", "Lost"},
	constants.FieldStage:    {"Prospecting", "Proposal", "Negotiation", "Closed"},
	constants.FieldPriority: {"Low", "Medium", "High"},
	constants.FieldSource:   {"Referral", "Website", "Cold Call", "Event"},
}

// InitializeSystemData seeds the admin account and default dropdown
// options. Idempotent: existing data is left alone.
func InitializeSystemData(svcMgr *services.ServiceManager) error {
	ctx := context.Background()

	count, err := svcMgr.Users.CountUsers(ctx)
	if err != nil {
		return err
	}

	admin := models.UserSession{ID: "system", Name: "System", IsAdmin: true}

	if count == 0 {
		password := os.Getenv("ADMIN_PASSWORD")
		if password == "" {
			password = "admin123"
			log.Println("⚠️  ADMIN_PASSWORD not set, using default credentials")
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}

		adminID := utils.GenerateID()
		if err := svcMgr.Users.Insert(ctx, persistence.User{
			ID:           adminID,
			Name:         "Administrator",
			Email:        "admin@example.com",
			PasswordHash: hash,
			IsAdmin:      true,
		}); err != nil {
			return err
		}
		admin = models.UserSession{ID: adminID, Name: "Administrator", IsAdmin: true}
		log.Println("👤 Admin account created (admin@example.com)")
	}

	for scope, values := range defaultOptions {
		existing, err := svcMgr.Schema.ListOptions(ctx, scope)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		for _, value := range values {
			if _, err := svcMgr.Schema.CreateOption(ctx, scope, value, value, &admin, true); err != nil {
				return err
			}
		}
	}

	return nil
}
