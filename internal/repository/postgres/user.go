package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"syncway/internal/domain"
	"syncway/internal/repository"
)

const userColumns = `id, name, phone, email, role, email_notifications, account_active, created_at`

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

var _ repository.UserRepository = (*UserRepository)(nil)

// Create adds a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Phone, nullString(user.Email), user.Role,
		user.EmailNotifications, user.AccountActive, user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByPhone retrieves a user by phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	return r.getOne(ctx, query, phone)
}

// GetAll retrieves all active users.
func (r *UserRepository) GetAll(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE account_active ORDER BY created_at DESC`
	return r.list(ctx, query)
}

// Update overwrites the mutable fields of an existing user.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET name = $1, email = $2, role = $3, email_notifications = $4, account_active = $5
		WHERE id = $6
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Name, nullString(user.Email), user.Role, user.EmailNotifications, user.AccountActive, user.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireOneRow(result)
}

// SetEmailNotifications toggles the email preference and returns the user.
func (r *UserRepository) SetEmailNotifications(ctx context.Context, id string, enabled bool) (*domain.User, error) {
	query := `UPDATE users SET email_notifications = $1 WHERE id = $2 AND account_active RETURNING ` + userColumns
	return r.getOne(ctx, query, enabled, id)
}

// Deactivate soft-deletes a user: the row stays, the account is marked
// inactive and stops receiving email.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE users SET account_active = FALSE, email_notifications = FALSE WHERE id = $1 AND account_active`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return requireOneRow(result)
}

// ListNotifiableDrivers returns, among ids, the active drivers that accept email.
func (r *UserRepository) ListNotifiableDrivers(ctx context.Context, ids []string) ([]*domain.User, error) {
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE id = ANY($1) AND role = 'driver' AND account_active AND email_notifications
			AND email IS NOT NULL AND email <> ''
		ORDER BY created_at
	`
	return r.list(ctx, query, pq.Array(ids))
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) list(ctx context.Context, query string, args ...any) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var email sql.NullString
	err := row.Scan(
		&user.ID, &user.Name, &user.Phone, &email, &user.Role,
		&user.EmailNotifications, &user.AccountActive, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Email = email.String
	return &user, nil
}

func requireOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
