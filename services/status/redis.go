package status

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is where status records are published
const DefaultChannel = "config_status"

// recordTTL bounds how long a finished run's status stays readable
const recordTTL = 7 * 24 * time.Hour

// Record is one status update as published on the channel
type Record struct {
	ConfigID  string `json:"config_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	UpdatedAt string `json:"updated_at"`
	Items     *int   `json:"items,omitempty"`
}

// RedisReporter writes status to a hash per run and publishes every change
type RedisReporter struct {
	client  *redis.Client
	channel string
	now     func() time.Time
	log     *logger.Logger
}

// NewRedisReporter creates a new Redis reporter
func NewRedisReporter(addr string, db int, channel string) *RedisReporter {
	if channel == "" {
		channel = DefaultChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisReporter{
		client:  client,
		channel: channel,
		now:     time.Now,
		log:     logger.ForStatus(),
	}
}

// Key returns the hash key holding a run's status
func Key(runID string) string {
	return "config_status:" + runID
}

// Ping checks that Redis is reachable
func (r *RedisReporter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Report stores and publishes one status record
func (r *RedisReporter) Report(ctx context.Context, runID, phase, message string, items *int) error {
	rec := Record{
		ConfigID:  runID,
		Status:    phase,
		Message:   message,
		UpdatedAt: r.now().UTC().Format(time.RFC3339),
		Items:     items,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.NewStatus("encode status record", err)
	}

	fields := map[string]interface{}{
		"config_id":  rec.ConfigID,
		"status":     rec.Status,
		"message":    rec.Message,
		"updated_at": rec.UpdatedAt,
	}
	if items != nil {
		fields["items"] = strconv.Itoa(*items)
	}

	key := Key(runID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, recordTTL)
	pipe.Publish(ctx, r.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewStatus("report "+phase+" for "+runID, err)
	}

	r.log.Debug().Str("run_id", runID).Str("status", phase).Msg("Status reported")
	return nil
}

// Close closes the Redis connection
func (r *RedisReporter) Close() error {
	return r.client.Close()
}
