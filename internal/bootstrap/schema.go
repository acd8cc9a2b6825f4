package bootstrap

import (
	"fmt"
	"log"

	"github.com/salesdesk/backend/internal/infrastructure/database"
	"github.com/salesdesk/backend/pkg/constants"
)

// InitializeSchema creates the core tables when they do not exist yet.
// Custom columns are not DDL: they live in the sales_rows JSON document
// and the sales_column_definitions registry.
func InitializeSchema(db *database.Connection) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			company_name VARCHAR(255),
			contact_name VARCHAR(255),
			position VARCHAR(255),
			phone VARCHAR(64),
			email VARCHAR(255),
			website VARCHAR(512),
			region VARCHAR(128),
			industry VARCHAR(128),
			source VARCHAR(128),
			status VARCHAR(128),
			stage VARCHAR(128),
			priority VARCHAR(64),
			owner_id VARCHAR(36),
			amount DECIMAL(18,2),
			probability INT,
			employee_count INT,
			address VARCHAR(512),
			first_contact_date DATETIME NULL,
			next_follow_up_date DATETIME NULL,
			expected_close_date DATETIME NULL,
			notes TEXT,
			custom_fields JSON,
			lock_holder VARCHAR(36) NULL,
			lock_acquired_at DATETIME NULL,
			is_deleted TINYINT DEFAULT 0,
			created_by VARCHAR(36),
			last_modified_by VARCHAR(36),
			created_date DATETIME,
			last_modified_date DATETIME,
			INDEX idx_rows_deleted (is_deleted),
			INDEX idx_rows_lock (lock_holder, lock_acquired_at)
		)`, constants.TableRows),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			col_key VARCHAR(128) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			display_order INT NOT NULL DEFAULT 0,
			visible TINYINT DEFAULT 1,
			created_by VARCHAR(36),
			created_date DATETIME
		)`, constants.TableColumns),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			scope VARCHAR(128) NOT NULL,
			value VARCHAR(255) NOT NULL,
			label VARCHAR(255) NOT NULL,
			display_order INT NOT NULL DEFAULT 0,
			active TINYINT DEFAULT 1,
			created_by VARCHAR(36),
			created_date DATETIME,
			INDEX idx_options_scope (scope, active)
		)`, constants.TableOptions),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			row_id VARCHAR(36) NOT NULL,
			actor_id VARCHAR(36),
			actor_name VARCHAR(255),
			action VARCHAR(32) NOT NULL,
			changes JSON,
			description TEXT,
			ip_address VARCHAR(64),
			user_agent VARCHAR(512),
			created_date DATETIME(6),
			INDEX idx_activity_row (row_id, created_date)
		)`, constants.TableActivity),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			event_type VARCHAR(64) NOT NULL,
			payload JSON,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			retry_count INT NOT NULL DEFAULT 0,
			error_message TEXT,
			created_date DATETIME(6),
			processed_date DATETIME NULL,
			INDEX idx_outbox_status (status, created_date)
		)`, constants.TableOutbox),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			is_admin TINYINT DEFAULT 0,
			created_date DATETIME
		)`, constants.TableUsers),
	}

	for _, stmt := range statements {
		if _, err := db.DB().Exec(stmt); err != nil {
			return fmt.Errorf("schema initialization failed: %w", err)
		}
	}

	log.Println("✅ Core schema initialized")
	return nil
}
