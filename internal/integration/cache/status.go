// Package cache provides a Redis read-through cache for operation status
// queries, keeping hot polling traffic off the operation store.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"istsi/internal/integration/models"
	platformredis "istsi/internal/platform/redis"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

const keyPrefix = "istsi:operation:"

// StatusCache stores terminal operation results. Non-terminal operations
// are never cached; their state is still moving.
type StatusCache struct {
	client *platformredis.Client
	ttl    time.Duration
}

// New returns a cache, or nil when Redis is not configured so callers can
// skip caching with a nil check.
func New(client *platformredis.Client, ttl time.Duration) *StatusCache {
	if client == nil {
		return nil
	}
	return &StatusCache{client: client, ttl: ttl}
}

type cachedResult struct {
	OperationID   string `json:"operation_id"`
	WithdrawalID  string `json:"withdrawal_id,omitempty"`
	State         string `json:"state"`
	FailureReason string `json:"failure_reason,omitempty"`
	Anomaly       bool   `json:"anomaly,omitempty"`
}

// Get returns the cached result, or nil on miss. Cache errors degrade to a
// miss; the store remains authoritative.
func (c *StatusCache) Get(ctx context.Context, opID id.OperationID) *models.Result {
	raw, err := c.client.Client.Get(ctx, keyPrefix+opID.String()).Bytes()
	if err != nil {
		// redis.Nil on miss, anything else means a degraded cache; either
		// way the store stays authoritative
		return nil
	}

	var cached cachedResult
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil
	}
	result, err := decode(cached)
	if err != nil {
		return nil
	}
	return result
}

// Put caches a terminal result. Best effort.
func (c *StatusCache) Put(ctx context.Context, result models.Result) {
	if !result.State.IsTerminal() {
		return
	}
	cached := cachedResult{
		OperationID:   result.OperationID.String(),
		State:         string(result.State),
		FailureReason: string(result.FailureReason),
		Anomaly:       result.Anomaly,
	}
	if !result.WithdrawalID.IsNil() {
		cached.WithdrawalID = result.WithdrawalID.String()
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		return
	}
	c.client.Client.Set(ctx, keyPrefix+result.OperationID.String(), raw, c.ttl)
}

func decode(cached cachedResult) (*models.Result, error) {
	opID, err := id.ParseOperationID(cached.OperationID)
	if err != nil {
		return nil, err
	}
	result := &models.Result{
		OperationID:   opID,
		State:         models.OperationState(cached.State),
		FailureReason: dErrors.Code(cached.FailureReason),
		Anomaly:       cached.Anomaly,
	}
	if cached.WithdrawalID != "" {
		if result.WithdrawalID, err = id.ParseWithdrawalID(cached.WithdrawalID); err != nil {
			return nil, err
		}
	}
	return result, nil
}
