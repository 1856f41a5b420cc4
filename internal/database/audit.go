package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

type AuditEvent struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	EventTime time.Time       `json:"event_time"`
	Payload   json.RawMessage `json:"payload"`
}

func (q *Queries) LogAudit(ctx context.Context, userID int64, eventType string, payload interface{}) error {
	eventMsg := map[string]interface{}{
		"event_type": eventType,
		"payload":    payload,
	}
	eventBytes, err := json.Marshal(eventMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	query := `INSERT INTO audit_journal (user_id, event_type, payload) VALUES ($1, $2, $3)`
	_, err = q.db.Exec(ctx, query, userID, eventType, eventBytes)
	return err
}

// LogAudit on the Store also fans the event out to connected websocket
// clients. Journal write failures are the caller's problem; fanout is
// best-effort.
func (s *Store) LogAudit(ctx context.Context, userID int64, eventType string, payload interface{}) error {
	if err := s.Queries.LogAudit(ctx, userID, eventType, payload); err != nil {
		return err
	}

	if s.hub != nil {
		eventBytes, err := json.Marshal(map[string]interface{}{
			"event_type": eventType,
			"payload":    payload,
		})
		if err != nil {
			log.Printf("WARN: failed to marshal audit event for fanout: %v", err)
			return nil
		}
		s.hub.PublishEvent(userID, eventBytes)
	}

	return nil
}

func (q *Queries) GetAuditSince(ctx context.Context, userID int64, sinceID int64) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, event_time, payload
		FROM audit_journal
		WHERE user_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT 100
	`
	rows, err := q.db.Query(ctx, query, userID, sinceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var event AuditEvent
		err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.EventTime,
			&event.Payload,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if events == nil {
		return []AuditEvent{}, nil
	}

	return events, nil
}
