package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FamilyMarkerStore records which refresh-token families have been revoked.
// Markers let a presented member of a dead family fail fast without another
// conditional update against the database; they expire together with the
// longest-lived token the family could still contain.
type FamilyMarkerStore interface {
	MarkFamilyRevoked(ctx context.Context, familyID uuid.UUID, ttl time.Duration) error
	IsFamilyRevoked(ctx context.Context, familyID uuid.UUID) (bool, error)
	Close() error
}

// Client is the Redis-backed FamilyMarkerStore.
type Client struct {
	client *redis.Client
}

func NewClient(addr string) *Client {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("failed to connect to Redis", "addr", addr, "error", err)
		panic(err)
	}

	slog.Info("connected to Redis", "addr", addr)
	return &Client{client: client}
}

func familyKey(familyID uuid.UUID) string {
	return fmt.Sprintf("family:%s:revoked", familyID)
}

func (c *Client) MarkFamilyRevoked(ctx context.Context, familyID uuid.UUID, ttl time.Duration) error {
	return c.client.Set(ctx, familyKey(familyID), "1", ttl).Err()
}

func (c *Client) IsFamilyRevoked(ctx context.Context, familyID uuid.UUID) (bool, error) {
	err := c.client.Get(ctx, familyKey(familyID)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
