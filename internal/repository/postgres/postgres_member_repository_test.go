package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/eventhub/auth-service/pkg/errors"
)

func TestPostgresMemberRepository_GetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresMemberRepository(db)
	ctx := context.Background()

	columns := []string{"id", "email", "password_hash", "roles", "created_at"}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, email, password_hash, roles, created_at FROM members WHERE email = $1`)).
			WithArgs("member@example.com").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(int64(1), "member@example.com", "bcrypt-hash", "{admin,member}", time.Now()))

		member, err := repo.GetByEmail(ctx, "member@example.com")
		require.NoError(t, err)
		assert.Equal(t, int64(1), member.ID)
		assert.Equal(t, []string{"admin", "member"}, member.Roles)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, email`)).
			WithArgs("missing@example.com").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByEmail(ctx, "missing@example.com")
		assert.ErrorIs(t, err, pkgerrors.ErrMemberNotFound)
	})

	t.Run("EmptyEmail", func(t *testing.T) {
		_, err := repo.GetByEmail(ctx, "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}
