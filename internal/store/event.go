package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/timenest/internal/model"
	"github.com/dukerupert/timenest/internal/recurrence"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `e.id, e.title, e.description, e.location, e.start_time, e.end_time, e.recurrence,
	e.is_multi_day, e.is_public, e.created_by, e.created_on, e.updated_at`

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var rule string
	var multiDay, public int
	err := scanner.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Start, &e.End, &rule,
		&multiDay, &public, &e.CreatedBy, &e.CreatedOn, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Recurrence, err = recurrence.ParseString(rule)
	if err != nil {
		// Keep the row but give it a rule that never occurs, so one bad
		// record does not fail every listing it appears in.
		slog.Warn("unparseable event recurrence", "event_id", e.ID, "recurrence", rule, "error", err)
		e.Recurrence = recurrence.Rule{Freq: recurrence.Weekly}
	}
	e.IsMultiDay = multiDay != 0
	e.IsPublic = public != 0
	return &e, nil
}

// Create stores a prepared event and its participants in one transaction.
func (s *EventStore) Create(e *model.Event) (*model.Event, error) {
	created, err := s.CreateAll([]*model.Event{e})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// CreateAll stores a batch of prepared events in one transaction. Either
// every event is stored or none is.
func (s *EventStore) CreateAll(events []*model.Event) ([]model.Event, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		if err := insertEvent(tx, e); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	created := make([]model.Event, 0, len(events))
	for _, e := range events {
		stored, err := s.GetByID(e.ID)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, fmt.Errorf("event %s missing after insert", e.ID)
		}
		created = append(created, *stored)
	}
	return created, nil
}

func insertEvent(tx *sql.Tx, e *model.Event) error {
	_, err := tx.Exec(
		`INSERT INTO events (id, title, description, location, start_time, end_time, recurrence,
		   is_multi_day, is_public, created_by, created_on, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.Location, e.Start.UTC(), e.End.UTC(), e.Recurrence.Encode(),
		boolInt(e.IsMultiDay), boolInt(e.IsPublic), e.CreatedBy, e.CreatedOn.UTC(), e.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	for i, uid := range e.Participants {
		if _, err := tx.Exec(
			`INSERT INTO event_participants (event_id, user_id, position) VALUES (?, ?, ?)`,
			e.ID, uid, i,
		); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return nil
}

func (s *EventStore) GetByID(id string) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(`SELECT `+eventCols+` FROM events e WHERE e.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if err := s.loadParticipants([]*model.Event{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// Update writes the editable fields of e. Participants are changed only
// through AddParticipant and RemoveParticipant.
func (s *EventStore) Update(e *model.Event) (*model.Event, error) {
	_, err := s.db.Exec(
		`UPDATE events
		 SET title = ?, description = ?, location = ?, start_time = ?, end_time = ?, recurrence = ?,
		     is_multi_day = ?, is_public = ?, updated_at = ?
		 WHERE id = ?`,
		e.Title, e.Description, e.Location, e.Start.UTC(), e.End.UTC(), e.Recurrence.Encode(),
		boolInt(e.IsMultiDay), boolInt(e.IsPublic), e.UpdatedAt.UTC(), e.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return s.GetByID(e.ID)
}

func (s *EventStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// ListByCreator returns the events the user owns in creation order.
func (s *EventStore) ListByCreator(userID int64) ([]model.Event, error) {
	return s.list(`SELECT `+eventCols+` FROM events e WHERE e.created_by = ?
		ORDER BY e.created_on, e.rowid`, userID)
}

// ListByParticipant returns the events the user takes part in, which
// includes every event they created.
func (s *EventStore) ListByParticipant(userID int64) ([]model.Event, error) {
	return s.list(`SELECT `+eventCols+` FROM events e
		JOIN event_participants p ON p.event_id = e.id
		WHERE p.user_id = ?
		ORDER BY e.created_on, e.rowid`, userID)
}

// ListVisible returns every event the user may read: public events and
// events they take part in. Administrators see everything.
func (s *EventStore) ListVisible(userID int64, admin bool) ([]model.Event, error) {
	if admin {
		return s.list(`SELECT ` + eventCols + ` FROM events e ORDER BY e.created_on, e.rowid`)
	}
	return s.list(`SELECT `+eventCols+` FROM events e
		WHERE e.is_public = 1
		   OR EXISTS (SELECT 1 FROM event_participants p WHERE p.event_id = e.id AND p.user_id = ?)
		ORDER BY e.created_on, e.rowid`, userID)
}

func (s *EventStore) list(query string, args ...any) ([]model.Event, error) {
	ptrs, err := s.query(query, args...)
	if err != nil {
		return nil, err
	}
	if err := s.loadParticipants(ptrs); err != nil {
		return nil, err
	}
	events := make([]model.Event, 0, len(ptrs))
	for _, e := range ptrs {
		events = append(events, *e)
	}
	return events, nil
}

func (s *EventStore) query(query string, args ...any) ([]*model.Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *EventStore) loadParticipants(events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}
	byID := make(map[string]*model.Event, len(events))
	args := make([]any, 0, len(events))
	for _, e := range events {
		e.Participants = []int64{}
		byID[e.ID] = e
		args = append(args, e.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := s.db.Query(
		`SELECT event_id, user_id FROM event_participants
		 WHERE event_id IN (`+placeholders+`)
		 ORDER BY event_id, position`, args...)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID string
		var userID int64
		if err := rows.Scan(&eventID, &userID); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		if e, ok := byID[eventID]; ok {
			e.Participants = append(e.Participants, userID)
		}
	}
	return rows.Err()
}

// AddParticipant appends the user to the event's participants. Adding an
// existing participant is a no-op.
func (s *EventStore) AddParticipant(eventID string, userID int64) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO event_participants (event_id, user_id, position)
		 SELECT ?, ?, COALESCE(MAX(position), -1) + 1 FROM event_participants WHERE event_id = ?`,
		eventID, userID, eventID,
	)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (s *EventStore) RemoveParticipant(eventID string, userID int64) error {
	_, err := s.db.Exec(`DELETE FROM event_participants WHERE event_id = ? AND user_id = ?`, eventID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}
