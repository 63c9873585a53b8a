package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"
)

// ArchivedOrder is a row of order_records
type ArchivedOrder struct {
	OrderID   string    `db:"order_id"`
	SessionID string    `db:"session_id"`
	UserID    string    `db:"user_id"`
	Status    string    `db:"status"`
	Total     string    `db:"total"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// Record decodes the archived payload
func (a ArchivedOrder) Record() (models.OrderRecord, error) {
	var rec models.OrderRecord
	if err := json.Unmarshal(a.Payload, &rec); err != nil {
		return rec, fmt.Errorf("decode order %s: %w", a.OrderID, err)
	}
	return rec, nil
}

// SaveOrderRecord archives an order record; duplicates are ignored
func (s *Store) SaveOrderRecord(ctx context.Context, sessionID, userID string, rec models.OrderRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO order_records (order_id, session_id, user_id, status, total, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO NOTHING`,
		rec.ID, sessionID, userID, rec.Status, rec.Summary.Total.StringFixed(2), payload)
	return err
}

// GetOrderRecordsByUserID retrieves archived orders for a user, newest first
func (s *Store) GetOrderRecordsByUserID(ctx context.Context, userID string) ([]ArchivedOrder, error) {
	var orders []ArchivedOrder
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM order_records WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderRecordsBySessionID retrieves archived orders for a visitor session
func (s *Store) GetOrderRecordsBySessionID(ctx context.Context, sessionID string) ([]ArchivedOrder, error) {
	var orders []ArchivedOrder
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM order_records WHERE session_id = $1 ORDER BY created_at DESC", sessionID)
	return orders, err
}

// OrderRecordsForUser returns a user's archived order records, newest first
func (s *Store) OrderRecordsForUser(ctx context.Context, userID string) ([]models.OrderRecord, error) {
	rows, err := s.GetOrderRecordsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return decodeRecords(rows)
}

// OrderRecordsForSession returns a visitor session's archived order records, newest first
func (s *Store) OrderRecordsForSession(ctx context.Context, sessionID string) ([]models.OrderRecord, error) {
	rows, err := s.GetOrderRecordsBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return decodeRecords(rows)
}

func decodeRecords(rows []ArchivedOrder) ([]models.OrderRecord, error) {
	records := make([]models.OrderRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.Record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
