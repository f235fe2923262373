package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/timenest/internal/model"
)

type ContactStore struct {
	db *sql.DB
}

func NewContactStore(db *sql.DB) *ContactStore {
	return &ContactStore{db: db}
}

const contactListCols = `id, owner_id, name, created_at, updated_at`

func scanContactList(scanner interface{ Scan(...any) error }) (*model.ContactList, error) {
	var l model.ContactList
	if err := scanner.Scan(&l.ID, &l.OwnerID, &l.Name, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.MemberIDs = []int64{}
	return &l, nil
}

func (s *ContactStore) Create(ownerID int64, name string) (*model.ContactList, error) {
	result, err := s.db.Exec(`INSERT INTO contact_lists (owner_id, name) VALUES (?, ?)`, ownerID, name)
	if err != nil {
		return nil, fmt.Errorf("insert contact list: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ContactStore) GetByID(id int64) (*model.ContactList, error) {
	l, err := scanContactList(s.db.QueryRow(`SELECT `+contactListCols+` FROM contact_lists WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact list: %w", err)
	}
	l.MemberIDs, err = s.members(l.ID)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *ContactStore) ListByOwner(ownerID int64) ([]model.ContactList, error) {
	rows, err := s.db.Query(`SELECT `+contactListCols+` FROM contact_lists WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list contact lists: %w", err)
	}

	var lists []model.ContactList
	for rows.Next() {
		l, err := scanContactList(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan contact list: %w", err)
		}
		lists = append(lists, *l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range lists {
		lists[i].MemberIDs, err = s.members(lists[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return lists, nil
}

func (s *ContactStore) members(listID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT user_id FROM contact_list_members WHERE list_id = ? ORDER BY added_at, rowid`, listID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *ContactStore) Rename(id int64, name string) (*model.ContactList, error) {
	_, err := s.db.Exec(`UPDATE contact_lists SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("rename contact list: %w", err)
	}
	return s.GetByID(id)
}

func (s *ContactStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM contact_lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete contact list: %w", err)
	}
	return nil
}

// AddMember adds the user to the list. Adding an existing member is a no-op.
func (s *ContactStore) AddMember(listID, userID int64) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO contact_list_members (list_id, user_id) VALUES (?, ?)`, listID, userID)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *ContactStore) RemoveMember(listID, userID int64) error {
	_, err := s.db.Exec(`DELETE FROM contact_list_members WHERE list_id = ? AND user_id = ?`, listID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}
