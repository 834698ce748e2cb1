package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/eventhub/auth-service/internal/infrastructure/kafka"
	"github.com/eventhub/auth-service/internal/infrastructure/observability"
	"github.com/eventhub/auth-service/internal/infrastructure/redis"
	"github.com/eventhub/auth-service/internal/models"
	"github.com/eventhub/auth-service/internal/repository"
	pkgerrors "github.com/eventhub/auth-service/pkg/errors"
)

const (
	securityEventsTopic = "security-events"

	// 32 bytes of entropy per refresh token, well above the 128-bit floor.
	refreshTokenBytes = 32
)

// RotationEngine owns the refresh-token lifecycle: new families at login,
// atomic rotation on refresh, and family-wide revocation when an
// already-superseded token is presented again.
type RotationEngine struct {
	tokens   repository.RefreshTokenRepository
	markers  redis.FamilyMarkerStore
	producer kafka.KafkaProducer
	ttl      time.Duration
}

func NewRotationEngine(
	tokens repository.RefreshTokenRepository,
	markers redis.FamilyMarkerStore,
	producer kafka.KafkaProducer,
	ttl time.Duration,
) *RotationEngine {
	return &RotationEngine{
		tokens:   tokens,
		markers:  markers,
		producer: producer,
		ttl:      ttl,
	}
}

// HashToken produces the one-way hash under which a refresh token is
// persisted. The plaintext never reaches storage.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IssueNewFamily creates a fresh token family for the member and returns the
// plaintext token alongside the stored record.
func (e *RotationEngine) IssueNewFamily(ctx context.Context, memberID int64, client models.ClientInfo, now time.Time) (string, *models.RefreshToken, error) {
	tracer := otel.Tracer("rotation-engine")
	ctx, span := tracer.Start(ctx, "IssueNewFamily")
	defer span.End()

	plaintext, err := newOpaqueToken()
	if err != nil {
		span.RecordError(err)
		return "", nil, err
	}

	token := &models.RefreshToken{
		TokenHash: HashToken(plaintext),
		MemberID:  memberID,
		FamilyID:  uuid.New(),
		UserAgent: client.UserAgent,
		IPAddress: client.IPAddress,
		ExpiresAt: now.Add(e.ttl),
	}
	if err := e.tokens.Create(ctx, token); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token creation failed")
		return "", nil, err
	}

	span.SetAttributes(attribute.String("family_id", token.FamilyID.String()))
	slog.Info("refresh token family created",
		"member_id", memberID,
		"family_id", token.FamilyID)
	return plaintext, token, nil
}

// Rotate exchanges an active refresh token for its successor in the same
// family. Outcomes map to the sentinel errors ErrTokenNotFound,
// ErrTokenExpired and ErrTokenReused; reuse revokes the whole family before
// returning.
func (e *RotationEngine) Rotate(ctx context.Context, presented string, client models.ClientInfo, now time.Time) (string, *models.RefreshToken, error) {
	tracer := otel.Tracer("rotation-engine")
	ctx, span := tracer.Start(ctx, "Rotate")
	defer span.End()

	record, err := e.tokens.FindByHash(ctx, HashToken(presented))
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrTokenNotFound) {
			observability.TokenRotations.WithLabelValues("not_found").Inc()
			return "", nil, pkgerrors.ErrTokenNotFound
		}
		span.RecordError(err)
		observability.TokenRotations.WithLabelValues("error").Inc()
		return "", nil, err
	}

	span.SetAttributes(
		attribute.Int64("member_id", record.MemberID),
		attribute.String("family_id", record.FamilyID.String()),
	)

	// A marker means the family was already revoked for reuse;
	// short-circuit without another conditional update.
	revoked, err := e.markers.IsFamilyRevoked(ctx, record.FamilyID)
	if err != nil {
		slog.Warn("revoked family marker lookup failed",
			"family_id", record.FamilyID,
			"error", err)
	}
	if revoked {
		observability.TokenRotations.WithLabelValues("reuse_detected").Inc()
		return "", nil, pkgerrors.ErrTokenReused
	}

	if record.Revoked || record.ReplacedBy != nil {
		e.handleReuse(ctx, record, client)
		observability.TokenRotations.WithLabelValues("reuse_detected").Inc()
		return "", nil, pkgerrors.ErrTokenReused
	}

	if !now.Before(record.ExpiresAt) {
		observability.TokenRotations.WithLabelValues("expired").Inc()
		return "", nil, pkgerrors.ErrTokenExpired
	}

	if drifted(record, client) {
		slog.Warn("client fingerprint changed across rotation",
			"member_id", record.MemberID,
			"family_id", record.FamilyID,
			"old_ip", record.IPAddress,
			"new_ip", client.IPAddress)
		e.emitEvent("fingerprint_changed", record, client)
	}

	plaintext, err := newOpaqueToken()
	if err != nil {
		span.RecordError(err)
		observability.TokenRotations.WithLabelValues("error").Inc()
		return "", nil, err
	}
	successor := &models.RefreshToken{
		TokenHash: HashToken(plaintext),
		MemberID:  record.MemberID,
		FamilyID:  record.FamilyID,
		UserAgent: client.UserAgent,
		IPAddress: client.IPAddress,
		ExpiresAt: now.Add(e.ttl),
	}

	rotated, err := e.tokens.Rotate(ctx, record.ID, successor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rotation failed")
		observability.TokenRotations.WithLabelValues("error").Inc()
		return "", nil, err
	}
	if !rotated {
		// Lost a concurrent rotation of the same token: by the time our
		// conditional update ran, the token was already superseded. Same
		// reuse signature as a replayed token.
		e.handleReuse(ctx, record, client)
		observability.TokenRotations.WithLabelValues("reuse_detected").Inc()
		return "", nil, pkgerrors.ErrTokenReused
	}

	observability.TokenRotations.WithLabelValues("rotated").Inc()
	return plaintext, successor, nil
}

// Revoke invalidates the whole family of the presented token. Used by
// logout; an unknown token is not an error.
func (e *RotationEngine) Revoke(ctx context.Context, presented string) error {
	record, err := e.tokens.FindByHash(ctx, HashToken(presented))
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrTokenNotFound) {
			return nil
		}
		return err
	}
	return e.RevokeFamily(ctx, record)
}

// RevokeFamily marks every token in the record's family revoked, drops a
// marker in Redis so later presentations fail fast, and emits a security
// event.
func (e *RotationEngine) RevokeFamily(ctx context.Context, record *models.RefreshToken) error {
	if err := e.tokens.RevokeFamily(ctx, record.FamilyID); err != nil {
		return err
	}
	if err := e.markers.MarkFamilyRevoked(ctx, record.FamilyID, e.ttl); err != nil {
		slog.Error("failed to set revoked family marker",
			"family_id", record.FamilyID,
			"error", err)
	}
	e.emitEvent("family_revoked", record, models.ClientInfo{})
	return nil
}

func (e *RotationEngine) handleReuse(ctx context.Context, record *models.RefreshToken, client models.ClientInfo) {
	slog.Warn("refresh token reuse detected, revoking family",
		"member_id", record.MemberID,
		"family_id", record.FamilyID,
		"ip", client.IPAddress)
	if err := e.tokens.RevokeFamily(ctx, record.FamilyID); err != nil {
		slog.Error("failed to revoke token family after reuse",
			"family_id", record.FamilyID,
			"error", err)
	}
	if err := e.markers.MarkFamilyRevoked(ctx, record.FamilyID, e.ttl); err != nil {
		slog.Error("failed to set revoked family marker",
			"family_id", record.FamilyID,
			"error", err)
	}
	e.emitEvent("token_reuse_detected", record, client)
}

func drifted(record *models.RefreshToken, client models.ClientInfo) bool {
	return record.UserAgent != client.UserAgent || record.IPAddress != client.IPAddress
}

func (e *RotationEngine) emitEvent(eventType string, record *models.RefreshToken, client models.ClientInfo) {
	event := map[string]interface{}{
		"event_type": eventType,
		"member_id":  record.MemberID,
		"family_id":  record.FamilyID.String(),
		"ip":         client.IPAddress,
		"user_agent": client.UserAgent,
		"at":         time.Now().UTC().Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal security event",
			"event_type", eventType,
			"member_id", record.MemberID,
			"error", err)
		return
	}

	go func() {
		retries := 3
		for i := 0; i < retries; i++ {
			if err := e.producer.Send(context.Background(), securityEventsTopic, record.MemberID, eventBytes); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to send security event after retries",
			"event_type", eventType,
			"member_id", record.MemberID)
	}()
}
