package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/timenest/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const pushCols = `id, user_id, endpoint, p256dh_key, auth_key, device_name, created_at`

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := scanner.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Subscribe registers an endpoint for the user. Registering a known endpoint
// again refreshes its keys and moves it to the user.
func (s *PushStore) Subscribe(userID int64, endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	_, err := s.db.Exec(
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh_key, auth_key, device_name)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
		   user_id = excluded.user_id,
		   p256dh_key = excluded.p256dh_key,
		   auth_key = excluded.auth_key,
		   device_name = excluded.device_name`,
		userID, endpoint, p256dh, auth, deviceName,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert push subscription: %w", err)
	}

	sub, err := scanSubscription(s.db.QueryRow(`SELECT `+pushCols+` FROM push_subscriptions WHERE endpoint = ?`, endpoint))
	if err != nil {
		return nil, fmt.Errorf("reload push subscription: %w", err)
	}
	return sub, nil
}

func (s *PushStore) GetByID(id int64) (*model.PushSubscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(`SELECT `+pushCols+` FROM push_subscriptions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get push subscription %d: %w", id, err)
	}
	return sub, nil
}

func (s *PushStore) ListByUser(userID int64) ([]model.PushSubscription, error) {
	rows, err := s.db.Query(`SELECT `+pushCols+` FROM push_subscriptions WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []model.PushSubscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// ListUserIDs returns the users with at least one subscription.
func (s *PushStore) ListUserIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT DISTINCT user_id FROM push_subscriptions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list subscribed users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PushStore) Delete(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

func (s *PushStore) DeleteByEndpoint(endpoint string) error {
	if _, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}

// WasSent reports whether the user was already reminded of the occurrence
// of eventID starting at start.
func (s *PushStore) WasSent(eventID string, userID int64, start time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sent_reminders WHERE event_id = ? AND user_id = ? AND occurrence_start = ?`,
		eventID, userID, start.Unix(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check sent reminder: %w", err)
	}
	return n > 0, nil
}

func (s *PushStore) RecordSent(eventID string, userID int64, start time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sent_reminders (event_id, user_id, occurrence_start) VALUES (?, ?, ?)`,
		eventID, userID, start.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record sent reminder: %w", err)
	}
	return nil
}

// DeleteSentBefore forgets reminders for occurrences that started before t.
func (s *PushStore) DeleteSentBefore(t time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sent_reminders WHERE occurrence_start < ?`, t.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete sent reminders: %w", err)
	}
	return result.RowsAffected()
}
