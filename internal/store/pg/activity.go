package pg

import (
	"context"
	"encoding/json"

	"agentdesk.io/internal/activity"
)

// ActivityStore appends activity events to activity_log.
type ActivityStore struct {
	store *Store
}

// Activity returns the store as an activity sink.
func (s *Store) Activity() *ActivityStore { return &ActivityStore{store: s} }

func (a *ActivityStore) Name() string { return "postgres" }

func (a *ActivityStore) Write(ctx context.Context, e activity.Event) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = a.store.db.ExecContext(ctx, `
		insert into activity_log(id, occurred_at, user_id, action, resource, resource_id, request_id, metadata)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.OccurredAt, nullIfEmpty(e.UserID), e.Action, nullIfEmpty(e.Resource),
		nullIfEmpty(e.ResourceID), nullIfEmpty(e.RequestID), metadata)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == "23505" {
		// Event ids are unique; a duplicate is a replay of an event already stored.
		return nil
	}
	return err
}
