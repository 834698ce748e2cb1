package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/eventhub/auth-service/internal/models"
	pkgerrors "github.com/eventhub/auth-service/pkg/errors"
)

type PostgresMemberRepository struct {
	db *sql.DB
}

func NewPostgresMemberRepository(db *sql.DB) *PostgresMemberRepository {
	return &PostgresMemberRepository{db: db}
}

func (r *PostgresMemberRepository) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	if email == "" {
		return nil, pkgerrors.ErrInvalidInput
	}

	query := `SELECT id, email, password_hash, roles, created_at FROM members WHERE email = $1`

	var member models.Member
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&member.ID,
		&member.Email,
		&member.PasswordHash,
		pq.Array(&member.Roles),
		&member.CreatedAt,
	)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrMemberNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get member by email: %w", err)
	}

	return &member, nil
}

func (r *PostgresMemberRepository) GetByID(ctx context.Context, id int64) (*models.Member, error) {
	query := `SELECT id, email, password_hash, roles, created_at FROM members WHERE id = $1`

	var member models.Member
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&member.ID,
		&member.Email,
		&member.PasswordHash,
		pq.Array(&member.Roles),
		&member.CreatedAt,
	)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrMemberNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get member by id: %w", err)
	}

	return &member, nil
}
