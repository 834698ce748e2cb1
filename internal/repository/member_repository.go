package repository

import (
	"context"

	"github.com/eventhub/auth-service/internal/models"
)

type MemberRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Member, error)
	GetByID(ctx context.Context, id int64) (*models.Member, error)
}
