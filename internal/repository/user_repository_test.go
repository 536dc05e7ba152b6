package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ysocial/internal/models"
)

func setupMockGateway(t *testing.T) (*SQLGateway, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { sqlxDB.Close() })

	return NewSQLGateway(sqlxDB), mock
}

func TestUserRepository_CreateUser(t *testing.T) {
	gw, mock := setupMockGateway(t)
	repo := NewUserRepository(gw)
	ctx := context.Background()

	query := `INSERT INTO "users" ("name", "email", "username", "password", "numFollowers") VALUES (?, ?, ?, ?, ?) RETURNING "id"`

	t.Run("Успешное создание пользователя", func(t *testing.T) {
		user := models.NewUserAccount(models.Profile{
			Name: "Alice", Email: "alice@example.com", Username: "alice", Password: "hash",
		})

		mock.ExpectQuery(query).
			WithArgs("Alice", "alice@example.com", "alice", "hash", 0).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

		err := repo.CreateUser(ctx, user)

		assert.NoError(t, err)
		assert.Equal(t, int64(5), user.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Ошибка при дублировании username", func(t *testing.T) {
		user := models.NewUserAccount(models.Profile{
			Name: "Alice", Email: "alice2@example.com", Username: "alice", Password: "hash",
		})

		mock.ExpectQuery(query).
			WithArgs("Alice", "alice2@example.com", "alice", "hash", 0).
			WillReturnError(errors.New("UNIQUE constraint failed: users.username"))

		err := repo.CreateUser(ctx, user)

		assert.ErrorIs(t, err, ErrPersistence)
		assert.Contains(t, err.Error(), "ошибка при создании пользователя")
		assert.Zero(t, user.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_GetAllUsers(t *testing.T) {
	gw, mock := setupMockGateway(t)
	repo := NewUserRepository(gw)
	ctx := context.Background()

	t.Run("Успешное получение", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "name", "email", "username", "password", "numFollowers"}).
			AddRow(int64(1), "Alice", "alice@example.com", "alice", "secret", int64(2)).
			AddRow(int64(2), "Bob", "bob@example.com", "bob", "secret", nil)

		mock.ExpectQuery(`SELECT * FROM "users" ORDER BY "id"`).WillReturnRows(rows)

		users, err := repo.GetAllUsers(ctx)

		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[0].Username)
		assert.Equal(t, 2, users[0].FollowerCount)
		assert.Equal(t, 0, users[1].FollowerCount)
		assert.NotNil(t, users[1].FollowerIDs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Ошибка БД", func(t *testing.T) {
		mock.ExpectQuery(`SELECT * FROM "users" ORDER BY "id"`).WillReturnError(errors.New("database is locked"))

		users, err := repo.GetAllUsers(ctx)

		assert.Nil(t, users)
		assert.ErrorIs(t, err, ErrPersistence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_UpdateFollowerCount(t *testing.T) {
	gw, mock := setupMockGateway(t)
	repo := NewUserRepository(gw)
	ctx := context.Background()

	query := `UPDATE "users" SET "numFollowers" = ? WHERE "id" = ?`

	tests := []struct {
		name    string
		result  int64
		wantErr error
	}{
		{name: "Успешное обновление", result: 1},
		{name: "Пользователь не найден", result: 0, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec(query).WithArgs(3, int64(7)).WillReturnResult(sqlmock.NewResult(0, tt.result))

			err := repo.UpdateFollowerCount(ctx, 7, 3)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_DeleteUser(t *testing.T) {
	gw, mock := setupMockGateway(t)
	repo := NewUserRepository(gw)
	ctx := context.Background()

	t.Run("Успешное удаление", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM "users" WHERE "id" = ?`).WithArgs(int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.DeleteUser(ctx, 4))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Пользователь не найден", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM "users" WHERE "id" = ?`).WithArgs(int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.DeleteUser(ctx, 4), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdminRepository(t *testing.T) {
	gw, mock := setupMockGateway(t)
	repo := NewAdminRepository(gw)
	ctx := context.Background()

	t.Run("Создание администратора", func(t *testing.T) {
		admin := models.NewAdminAccount(models.Profile{
			Name: "Root", Email: "root@example.com", Username: "root", Password: "hash",
		})

		mock.ExpectQuery(`INSERT INTO "admins" ("name", "email", "username", "password") VALUES (?, ?, ?, ?) RETURNING "id"`).
			WithArgs("Root", "root@example.com", "root", "hash").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

		require.NoError(t, repo.CreateAdmin(ctx, admin))
		assert.Equal(t, int64(1), admin.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Получение администраторов", func(t *testing.T) {
		mock.ExpectQuery(`SELECT * FROM "admins" ORDER BY "id"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "username", "password"}).
				AddRow(int64(1), []byte("Root"), []byte("root@example.com"), []byte("root"), []byte("hash")))

		admins, err := repo.GetAllAdmins(ctx)

		require.NoError(t, err)
		require.Len(t, admins, 1)
		assert.Equal(t, "root", admins[0].Username)
		assert.Empty(t, admins[0].AssignedReports)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
