package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/johnrirwin/skinlens/internal/models"
)

const (
	defaultRedisPrefix  = "skinlens:report:"
	defaultRedisTimeout = 2 * time.Second
)

// RedisStore keeps reports in Redis with a key TTL matching ExpiresAt.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed report store.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Put(ctx context.Context, report models.StoredReport) (string, error) {
	report.ID = uuid.NewString()
	if report.ExpiresAt.IsZero() {
		report.ExpiresAt = time.Now().Add(defaultReportTTL)
	}
	ttl := time.Until(report.ExpiresAt)
	if ttl <= 0 {
		return "", fmt.Errorf("report already expired")
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultRedisTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(report.ID), payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set: %w", err)
	}
	return report.ID, nil
}

func (s *RedisStore) Get(ctx context.Context, ownerID, id string) (*models.StoredReport, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultRedisTimeout)
	defer cancel()

	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var report models.StoredReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if report.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	if report.ID == "" {
		report.ID = id
	}

	return &report, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultRedisTimeout)
	defer cancel()
	return s.client.Del(ctx, s.key(id)).Err()
}

var _ Store = (*RedisStore)(nil)
