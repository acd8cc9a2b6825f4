package services

import (
	"github.com/salesdesk/backend/internal/infrastructure/database"
	"github.com/salesdesk/backend/internal/infrastructure/persistence"
)

// ServiceManager wires repositories and services together and owns the
// shared event bus and outbox relay.
type ServiceManager struct {
	Bus    *EventBus
	Outbox *OutboxService
	Auth   *AuthService
	Locks  *LockService
	Schema *SchemaService
	Rows   *RowService
	Query  *QueryService
	Import *ImportService

	Activity *persistence.ActivityRepository
	Users    *persistence.UserRepository
}

// NewServiceManager creates the full service graph on one database
// connection.
func NewServiceManager(db *database.Connection) *ServiceManager {
	sqlDB := db.DB()

	rowRepo := persistence.NewRowRepository(sqlDB)
	columnRepo := persistence.NewColumnRepository(sqlDB)
	optionRepo := persistence.NewOptionRepository(sqlDB)
	activityRepo := persistence.NewActivityRepository(sqlDB)
	outboxRepo := persistence.NewOutboxRepository(sqlDB)
	userRepo := persistence.NewUserRepository(sqlDB)
	txManager := persistence.NewTransactionManager(db)

	bus := NewEventBus()
	outbox := NewOutboxService(outboxRepo, bus)

	locks := NewLockService(rowRepo, activityRepo, outbox, userRepo)
	schema := NewSchemaService(columnRepo, optionRepo, rowRepo, txManager, outbox)
	rows := NewRowService(rowRepo, columnRepo, activityRepo, locks, txManager, outbox)

	return &ServiceManager{
		Bus:      bus,
		Outbox:   outbox,
		Auth:     NewAuthService(userRepo),
		Locks:    locks,
		Schema:   schema,
		Rows:     rows,
		Query:    NewQueryService(rowRepo),
		Import:   NewImportService(schema, rows, outbox),
		Activity: activityRepo,
		Users:    userRepo,
	}
}
