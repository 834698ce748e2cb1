package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/eventhub/auth-service/internal/models"
)

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Rotate atomically marks the token identified by oldID as revoked and
	// replaced, and inserts successor, in a single transaction. The update is
	// conditional on the old token still being active; if another rotation
	// already claimed it, Rotate returns rotated=false and no rows change.
	Rotate(ctx context.Context, oldID int64, successor *models.RefreshToken) (rotated bool, err error)

	// RevokeFamily marks every token in the family revoked. Replay defense:
	// called whenever an already-superseded token is presented.
	RevokeFamily(ctx context.Context, familyID uuid.UUID) error
}
