package activity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"agentdesk.io/internal/obs"
)

// LogSink writes events as structured log lines with type=activity.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Write(ctx context.Context, e Event) error {
	if e.Action == "" {
		return errors.New("activity: action is required")
	}
	fields := e.Metadata
	if fields == nil {
		fields = map[string]any{}
	}
	obs.Ctx(ctx).Info().
		Str("type", "activity").
		Str("event_id", e.ID).
		Str("event", e.Action).
		Str("user_id", e.UserID).
		Str("resource", e.Resource).
		Str("resource_id", e.ResourceID).
		Time("occurred_at", e.OccurredAt).
		Interface("fields", fields).
		Msg("activity")
	return nil
}

// DefaultStream is the Redis stream activity events are appended to.
const DefaultStream = "agentdesk:activity"

// RedisSink appends events to a Redis stream.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink creates a sink on client. maxLen > 0 caps the stream approximately.
func NewRedisSink(client *redis.Client, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

// NewRedisSinkWithURL parses a redis:// URL and creates a sink.
func NewRedisSinkWithURL(url, stream string, maxLen int64) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisSink(redis.NewClient(opts), stream, maxLen), nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, e Event) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":          e.ID,
			"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339Nano),
			"user_id":     e.UserID,
			"action":      e.Action,
			"resource":    e.Resource,
			"resource_id": e.ResourceID,
			"request_id":  e.RequestID,
			"metadata":    string(metadata),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}

// Ping checks the Redis connection.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
