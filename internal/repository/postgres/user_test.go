package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncway/internal/domain"
	"syncway/internal/repository"
)

var userColumnNames = []string{"id", "name", "phone", "email", "role", "email_notifications", "account_active", "created_at"}

func setupUserRepoTest(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(db), mock
}

func TestUserRepository_Create_DuplicatePhone(t *testing.T) {
	repo, mock := setupUserRepoTest(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := repo.Create(context.Background(), &domain.User{ID: "u1", Name: "Rita", Phone: "5550100", Role: domain.UserRoleUser})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestUserRepository_SetEmailNotifications(t *testing.T) {
	repo, mock := setupUserRepoTest(t)

	mock.ExpectQuery(`UPDATE users SET email_notifications = \$1 WHERE id = \$2 AND account_active RETURNING`).
		WithArgs(false, "u1").
		WillReturnRows(sqlmock.NewRows(userColumnNames).
			AddRow("u1", "Rita", "5550100", "rita@example.com", "user", false, true, time.Now()))

	user, err := repo.SetEmailNotifications(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.False(t, user.EmailNotifications)
	assert.False(t, user.AcceptsEmail())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Deactivate_NotFound(t *testing.T) {
	repo, mock := setupUserRepoTest(t)

	mock.ExpectExec(`UPDATE users SET account_active = FALSE`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deactivate(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserRepository_ListNotifiableDrivers(t *testing.T) {
	t.Run("empty ids skip the query", func(t *testing.T) {
		repo, mock := setupUserRepoTest(t)

		users, err := repo.ListNotifiableDrivers(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, users)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("filters by id set", func(t *testing.T) {
		repo, mock := setupUserRepoTest(t)

		mock.ExpectQuery(`WHERE id = ANY\(\$1\) AND role = 'driver'`).
			WithArgs(pq.Array([]string{"d1", "d2"})).
			WillReturnRows(sqlmock.NewRows(userColumnNames).
				AddRow("d1", "Dan", "5550111", "dan@example.com", "driver", true, true, time.Now()))

		users, err := repo.ListNotifiableDrivers(context.Background(), []string{"d1", "d2"})
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, domain.UserRoleDriver, users[0].Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
