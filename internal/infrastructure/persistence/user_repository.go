package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/salesdesk/backend/pkg/constants"
	"github.com/salesdesk/backend/pkg/models"
)

// User is a stored account row.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
}

// UserRepository handles account persistence for actor identity.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail loads one account by email, nil when absent
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	sqlStr := fmt.Sprintf("SELECT `id`, `name`, `email`, `password_hash`, `is_admin` FROM `%s` WHERE `email` = ?",
		constants.TableUsers)

	var u User
	var isAdmin int
	err := r.db.QueryRowContext(ctx, sqlStr, email).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &isAdmin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.IsAdmin = isAdmin != 0
	return &u, nil
}

// FindName resolves a user id to its display name. Missing users resolve
// to an empty name rather than an error; lock conflict messages degrade
// gracefully.
func (r *UserRepository) FindName(ctx context.Context, id string) (string, error) {
	sqlStr := fmt.Sprintf("SELECT `name` FROM `%s` WHERE `id` = ?", constants.TableUsers)

	var name string
	err := r.db.QueryRowContext(ctx, sqlStr, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// Insert persists a new account
func (r *UserRepository) Insert(ctx context.Context, u User) error {
	isAdmin := 0
	if u.IsAdmin {
		isAdmin = 1
	}
	sqlStr := fmt.Sprintf("INSERT INTO `%s` (`id`, `name`, `email`, `password_hash`, `is_admin`, `created_date`) VALUES (?, ?, ?, ?, ?, NOW())",
		constants.TableUsers)
	if _, err := r.db.ExecContext(ctx, sqlStr, u.ID, u.Name, u.Email, u.PasswordHash, isAdmin); err != nil {
		return fmt.Errorf("insert user failed: %w", err)
	}
	return nil
}

// CountUsers returns the total number of accounts
func (r *UserRepository) CountUsers(ctx context.Context) (int, error) {
	sqlStr := fmt.Sprintf("SELECT COUNT(*) FROM `%s`", constants.TableUsers)
	var count int
	err := r.db.QueryRowContext(ctx, sqlStr).Scan(&count)
	return count, err
}

// Session converts a stored user into the request actor shape.
func (u *User) Session() models.UserSession {
	return models.UserSession{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		IsAdmin: u.IsAdmin,
	}
}
