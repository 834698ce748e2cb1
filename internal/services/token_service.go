package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventhub/auth-service/internal/infrastructure/auth"
	"github.com/eventhub/auth-service/internal/models"
	"github.com/eventhub/auth-service/internal/repository"
	pkgerrors "github.com/eventhub/auth-service/pkg/errors"
)

// TokenService is the single integration point for login, refresh and
// logout endpoints. It orchestrates the access token issuer and the
// rotation engine to produce and refresh token pairs.
type TokenService interface {
	Login(ctx context.Context, email, password string, client models.ClientInfo) (*models.TokenPair, error)
	GenerateTokenPair(ctx context.Context, member *models.Member, client models.ClientInfo) (*models.TokenPair, error)
	RefreshTokenPair(ctx context.Context, presented string, client models.ClientInfo) (*models.TokenPair, error)
	RefreshTokenPairFromCookies(ctx context.Context, r *http.Request, client models.ClientInfo) (*models.TokenPair, error)
	Logout(ctx context.Context, presented string) error
}

type tokenService struct {
	members       repository.MemberRepository
	engine        *RotationEngine
	issuer        *auth.AccessTokenIssuer
	refreshCookie string
}

func NewTokenService(
	members repository.MemberRepository,
	engine *RotationEngine,
	issuer *auth.AccessTokenIssuer,
	refreshCookie string,
) *tokenService {
	return &tokenService{
		members:       members,
		engine:        engine,
		issuer:        issuer,
		refreshCookie: refreshCookie,
	}
}

func (s *tokenService) Login(ctx context.Context, email, password string, client models.ClientInfo) (*models.TokenPair, error) {
	tracer := otel.Tracer("token-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	if email == "" || password == "" {
		span.SetStatus(codes.Error, "empty email or password")
		return nil, pkgerrors.ErrInvalidInput
	}

	member, err := s.members.GetByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrMemberNotFound) {
			return nil, pkgerrors.ErrInvalidCredentials
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "member lookup failed")
		slog.Error("failed to look up member", "email", email, "error", err)
		return nil, fmt.Errorf("%w: failed to look up member", pkgerrors.ErrInternal)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login rejected", "member_id", member.ID, "ip", client.IPAddress)
		return nil, pkgerrors.ErrInvalidCredentials
	}

	return s.GenerateTokenPair(ctx, member, client)
}

// GenerateTokenPair issues an access token and a refresh token in a brand
// new family. Used at login; refresh goes through RefreshTokenPair.
func (s *tokenService) GenerateTokenPair(ctx context.Context, member *models.Member, client models.ClientInfo) (*models.TokenPair, error) {
	tracer := otel.Tracer("token-service")
	ctx, span := tracer.Start(ctx, "GenerateTokenPair")
	defer span.End()

	now := time.Now().UTC()

	accessToken, tokenID, err := s.issuer.Issue(member.ID, member.Email, member.Roles, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "access token issuance failed")
		slog.Error("failed to issue access token", "member_id", member.ID, "error", err)
		return nil, err
	}

	refreshToken, record, err := s.engine.IssueNewFamily(ctx, member.ID, client, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh token issuance failed")
		slog.Error("failed to issue refresh token", "member_id", member.ID, "error", err)
		return nil, fmt.Errorf("%w: failed to issue refresh token", pkgerrors.ErrInternal)
	}

	slog.Info("token pair issued",
		"member_id", member.ID,
		"family_id", record.FamilyID,
		"jti", tokenID)

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.issuer.TTL()),
	}, nil
}

// RefreshTokenPair rotates the presented refresh token and issues a fresh
// pair in the same family. Every rotation failure surfaces as the generic
// ErrRefreshFailed so a caller cannot distinguish a forged token from a
// replayed one.
func (s *tokenService) RefreshTokenPair(ctx context.Context, presented string, client models.ClientInfo) (*models.TokenPair, error) {
	tracer := otel.Tracer("token-service")
	ctx, span := tracer.Start(ctx, "RefreshTokenPair")
	defer span.End()

	if presented == "" {
		return nil, pkgerrors.ErrRefreshFailed
	}

	now := time.Now().UTC()

	refreshToken, record, err := s.engine.Rotate(ctx, presented, client, now)
	if err != nil {
		switch {
		case stderrors.Is(err, pkgerrors.ErrTokenReused),
			stderrors.Is(err, pkgerrors.ErrTokenExpired),
			stderrors.Is(err, pkgerrors.ErrTokenNotFound):
			// Family-wide invalidation for reuse already happened inside the
			// engine; externally all three collapse into one signal.
			return nil, pkgerrors.ErrRefreshFailed
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "rotation failed")
			slog.Error("refresh token rotation failed", "error", err)
			return nil, fmt.Errorf("%w: rotation failed", pkgerrors.ErrInternal)
		}
	}

	member, err := s.members.GetByID(ctx, record.MemberID)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to load member for refresh", "member_id", record.MemberID, "error", err)
		return nil, fmt.Errorf("%w: failed to load member", pkgerrors.ErrInternal)
	}

	accessToken, tokenID, err := s.issuer.Issue(member.ID, member.Email, member.Roles, now)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to issue access token", "member_id", member.ID, "error", err)
		return nil, err
	}

	slog.Info("token pair refreshed",
		"member_id", member.ID,
		"family_id", record.FamilyID,
		"jti", tokenID)

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.issuer.TTL()),
	}, nil
}

// RefreshTokenPairFromCookies reads the refresh token from the configured
// cookie instead of a request body; the contract is otherwise identical to
// RefreshTokenPair.
func (s *tokenService) RefreshTokenPairFromCookies(ctx context.Context, r *http.Request, client models.ClientInfo) (*models.TokenPair, error) {
	cookie, err := r.Cookie(s.refreshCookie)
	if err != nil || cookie.Value == "" {
		return nil, pkgerrors.ErrRefreshFailed
	}
	return s.RefreshTokenPair(ctx, cookie.Value, client)
}

// Logout revokes the presented token's entire family. A missing or unknown
// token is a no-op success: the client ends up logged out either way.
func (s *tokenService) Logout(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}
	return s.engine.Revoke(ctx, presented)
}
