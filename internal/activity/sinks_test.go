package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdesk.io/internal/obs"
)

func TestLogSinkWritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	ctx := obs.WithRequestID(context.Background(), "req-123")
	err := LogSink{}.Write(ctx, Event{
		ID:         "01J0000000000000000000000",
		OccurredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UserID:     "user-42",
		Action:     ActionSignOut,
		Metadata:   map[string]any{"foo": "bar"},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "activity" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != ActionSignOut {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogSinkRequiresAction(t *testing.T) {
	if err := (LogSink{}).Write(context.Background(), Event{}); err == nil {
		t.Fatal("expected error for event without action")
	}
}

func setupRedisSink(t *testing.T, maxLen int64) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	sink := NewRedisSink(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", maxLen)
	t.Cleanup(func() {
		_ = sink.Close()
		mr.Close()
	})
	return sink, mr
}

func TestRedisSink_Write(t *testing.T) {
	sink, _ := setupRedisSink(t, 0)
	ctx := context.Background()

	require.NoError(t, sink.Ping(ctx))
	err := sink.Write(ctx, Event{
		ID:         "evt-1",
		OccurredAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		UserID:     "user-1",
		Action:     ActionAccessDenied,
		Resource:   "route",
		ResourceID: "/admin/users",
		RequestID:  "req-1",
		Metadata:   map[string]any{"reason": "insufficient_role"},
	})
	require.NoError(t, err)

	msgs, err := sink.client.XRange(ctx, DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	values := msgs[0].Values
	assert.Equal(t, "evt-1", values["id"])
	assert.Equal(t, ActionAccessDenied, values["action"])
	assert.Equal(t, "/admin/users", values["resource_id"])
	assert.Equal(t, "2026-02-03T04:05:06Z", values["occurred_at"])
	assert.JSONEq(t, `{"reason":"insufficient_role"}`, values["metadata"].(string))
}

func TestRedisSink_WriteFailsWhenRedisDown(t *testing.T) {
	sink, mr := setupRedisSink(t, 0)
	mr.Close()

	err := sink.Write(context.Background(), Event{ID: "evt-2", Action: ActionSignOut})
	assert.Error(t, err)
}

func TestRedisSink_ThroughRecorder(t *testing.T) {
	sink, _ := setupRedisSink(t, 100)
	rec := NewRecorder([]Sink{sink})
	go func() { _ = rec.Run(context.Background()) }()

	for i := 0; i < 3; i++ {
		rec.Record(context.Background(), Event{Action: ActionAccessDenied})
	}
	require.NoError(t, rec.Close(context.Background()))

	n, err := sink.client.XLen(context.Background(), DefaultStream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
