// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the broker at addr, grounded on the teacher's
// internal/config/redis.go env-driven constructor, adapted to take the
// broker address from the explicit Config handle instead of raw env vars
// (Design Note §9: explicit config, not ambient globals).
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
