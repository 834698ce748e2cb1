package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/eventhub/auth-service/internal/infrastructure/observability"
	"github.com/eventhub/auth-service/internal/models"
	pkgerrors "github.com/eventhub/auth-service/pkg/errors"
)

type PostgresRefreshTokenRepository struct {
	db *sql.DB
}

func NewPostgresRefreshTokenRepository(db *sql.DB) *PostgresRefreshTokenRepository {
	return &PostgresRefreshTokenRepository{db: db}
}

func (r *PostgresRefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	var err error
	tracer := otel.Tracer("refresh-token-repository")
	ctx, span := tracer.Start(ctx, "CreateRefreshToken")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateRefreshToken", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateRefreshToken").Observe(time.Since(start).Seconds())
	}()

	if token == nil {
		err = pkgerrors.ErrNilToken
		return err
	}

	span.SetAttributes(
		attribute.Int64("member_id", token.MemberID),
		attribute.String("family_id", token.FamilyID.String()),
	)

	query := `
	INSERT INTO refresh_tokens (token_hash, member_id, family_id, user_agent, ip_address, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at
	`
	err = r.db.QueryRowContext(
		ctx,
		query,
		token.TokenHash,
		token.MemberID,
		token.FamilyID,
		token.UserAgent,
		token.IPAddress,
		token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		slog.Error("failed to create refresh token", "method", "Create", "member_id", token.MemberID, "error", err)
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
	SELECT id, token_hash, member_id, family_id, user_agent, ip_address, created_at, expires_at, revoked, replaced_by
	FROM refresh_tokens
	WHERE token_hash = $1
	`

	var token models.RefreshToken
	var replacedBy sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.TokenHash,
		&token.MemberID,
		&token.FamilyID,
		&token.UserAgent,
		&token.IPAddress,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.Revoked,
		&replacedBy,
	)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrTokenNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	if replacedBy.Valid {
		token.ReplacedBy = &replacedBy.Int64
	}
	return &token, nil
}

// Rotate performs the conditional revoke-and-replace in one transaction. The
// first UPDATE is guarded on the token still being active, so two concurrent
// rotations of the same token cannot both succeed: the loser sees zero rows
// affected and the transaction rolls back without inserting anything.
func (r *PostgresRefreshTokenRepository) Rotate(ctx context.Context, oldID int64, successor *models.RefreshToken) (bool, error) {
	var err error
	tracer := otel.Tracer("refresh-token-repository")
	ctx, span := tracer.Start(ctx, "RotateRefreshToken")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("RotateRefreshToken", status).Inc()
		observability.RepositoryDuration.WithLabelValues("RotateRefreshToken").Observe(time.Since(start).Seconds())
	}()

	if successor == nil {
		err = pkgerrors.ErrNilToken
		return false, err
	}

	span.SetAttributes(
		attribute.Int64("old_token_id", oldID),
		attribute.String("family_id", successor.FamilyID.String()),
	)

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Rotate", "error", err)
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	revokeQuery := `
	UPDATE refresh_tokens
	SET revoked = TRUE
	WHERE id = $1 AND revoked = FALSE AND replaced_by IS NULL
	`
	result, err := dbTx.ExecContext(ctx, revokeQuery, oldID)
	if err != nil {
		rollback(dbTx, "Rotate")
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		rollback(dbTx, "Rotate")
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race or the token was already dead. Nothing changed.
		rollback(dbTx, "Rotate")
		return false, nil
	}

	insertQuery := `
	INSERT INTO refresh_tokens (token_hash, member_id, family_id, user_agent, ip_address, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at
	`
	err = dbTx.QueryRowContext(
		ctx,
		insertQuery,
		successor.TokenHash,
		successor.MemberID,
		successor.FamilyID,
		successor.UserAgent,
		successor.IPAddress,
		successor.ExpiresAt,
	).Scan(&successor.ID, &successor.CreatedAt)
	if err != nil {
		rollback(dbTx, "Rotate")
		return false, fmt.Errorf("failed to insert successor token: %w", err)
	}

	linkQuery := `
	UPDATE refresh_tokens
	SET replaced_by = $1
	WHERE id = $2
	`
	if _, err = dbTx.ExecContext(ctx, linkQuery, successor.ID, oldID); err != nil {
		rollback(dbTx, "Rotate")
		return false, fmt.Errorf("failed to link successor token: %w", err)
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit rotation", "method", "Rotate", "old_token_id", oldID, "error", err)
		return false, fmt.Errorf("failed to commit rotation: %w", err)
	}
	return true, nil
}

func (r *PostgresRefreshTokenRepository) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	var err error
	tracer := otel.Tracer("refresh-token-repository")
	ctx, span := tracer.Start(ctx, "RevokeFamily")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("RevokeFamily", status).Inc()
		observability.RepositoryDuration.WithLabelValues("RevokeFamily").Observe(time.Since(start).Seconds())
	}()

	span.SetAttributes(attribute.String("family_id", familyID.String()))

	query := `
	UPDATE refresh_tokens
	SET revoked = TRUE
	WHERE family_id = $1 AND revoked = FALSE
	`
	if _, err = r.db.ExecContext(ctx, query, familyID); err != nil {
		slog.Error("failed to revoke token family", "method", "RevokeFamily", "family_id", familyID, "error", err)
		return fmt.Errorf("failed to revoke token family: %w", err)
	}
	return nil
}

func rollback(tx *sql.Tx, method string) {
	if err := tx.Rollback(); err != nil && !stderrors.Is(err, sql.ErrTxDone) {
		slog.Error("rollback failed", "method", method, "error", err)
	}
}
