// Package cache puts a Redis read-through cache in front of the working
// hours repository.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"shelf/internal/metrics"
	"shelf/internal/workinghours"
)

const keyPrefix = "shelf:working_hours:"

// WorkingHours caches GetWorkingHours and drops the entry on every write.
// Redis errors fall back to the repository.
type WorkingHours struct {
	repo   workinghours.Repository
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

var _ workinghours.Repository = (*WorkingHours)(nil)

func NewWorkingHours(repo workinghours.Repository, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *WorkingHours {
	return &WorkingHours{
		repo:   repo,
		redis:  rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "hours_cache").Logger(),
	}
}

func key(orgID string) string {
	return keyPrefix + orgID
}

func (c *WorkingHours) GetWorkingHours(ctx context.Context, orgID string) (*workinghours.WorkingHours, error) {
	var wh workinghours.WorkingHours
	if c.readCache(ctx, orgID, &wh) {
		metrics.IncCache("hit")
		return &wh, nil
	}
	metrics.IncCache("miss")

	fresh, err := c.repo.GetWorkingHours(ctx, orgID)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, orgID, fresh)
	return fresh, nil
}

func (c *WorkingHours) SaveWorkingHours(ctx context.Context, wh *workinghours.WorkingHours) error {
	if err := c.repo.SaveWorkingHours(ctx, wh); err != nil {
		return err
	}
	c.Invalidate(ctx, wh.OrganizationID)
	return nil
}

func (c *WorkingHours) CreateOverride(ctx context.Context, orgID string, o *workinghours.Override) error {
	if err := c.repo.CreateOverride(ctx, orgID, o); err != nil {
		return err
	}
	c.Invalidate(ctx, orgID)
	return nil
}

func (c *WorkingHours) UpdateOverride(ctx context.Context, orgID string, o *workinghours.Override) error {
	if err := c.repo.UpdateOverride(ctx, orgID, o); err != nil {
		return err
	}
	c.Invalidate(ctx, orgID)
	return nil
}

func (c *WorkingHours) DeleteOverride(ctx context.Context, orgID, overrideID string) error {
	if err := c.repo.DeleteOverride(ctx, orgID, overrideID); err != nil {
		return err
	}
	c.Invalidate(ctx, orgID)
	return nil
}

// Invalidate drops the cached entry for orgID.
func (c *WorkingHours) Invalidate(ctx context.Context, orgID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, key(orgID)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("organization_id", orgID).Msg("cache invalidate failed")
	}
}

func (c *WorkingHours) readCache(ctx context.Context, orgID string, out *workinghours.WorkingHours) bool {
	if c.redis == nil || c.ttl <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key(orgID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("organization_id", orgID).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		c.logger.Warn().Err(err).Str("organization_id", orgID).Msg("cache entry corrupt")
		return false
	}
	return true
}

func (c *WorkingHours) writeCache(ctx context.Context, orgID string, wh *workinghours.WorkingHours) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(wh)
	if err != nil {
		c.logger.Warn().Err(fmt.Errorf("encode working hours: %w", err)).Msg("cache write skipped")
		return
	}
	if err := c.redis.Set(ctx, key(orgID), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("organization_id", orgID).Msg("cache write failed")
	}
}
