package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/timenest/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var public int
	err := scanner.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.Role, &public, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.EventsPublic = public != 0
	return &u, nil
}

const userCols = `id, username, email, first_name, last_name, password_hash, role, events_public, created_at, updated_at`

func (s *UserStore) Create(u model.User) (*model.User, error) {
	role := u.Role
	if role == "" {
		role = model.RoleUser
	}
	result, err := s.db.Exec(
		`INSERT INTO users (username, email, first_name, last_name, password_hash, role, events_public)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, role, boolInt(u.EventsPublic),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	return s.getOne(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
}

func (s *UserStore) GetByUsername(username string) (*model.User, error) {
	return s.getOne(`SELECT `+userCols+` FROM users WHERE username = ?`, username)
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	return s.getOne(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
}

// GetByLogin finds a user by username or email, both compared without case.
func (s *UserStore) GetByLogin(login string) (*model.User, error) {
	return s.getOne(`SELECT `+userCols+` FROM users WHERE username = ? OR email = ?`, login, login)
}

func (s *UserStore) getOne(query string, args ...any) (*model.User, error) {
	u, err := scanUser(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) List() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userCols + ` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Exists reports whether every id names a user.
func (s *UserStore) Exists(ids ...int64) (bool, error) {
	for _, id := range ids {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&n); err != nil {
			return false, fmt.Errorf("count user: %w", err)
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

// UpdateProfile changes the editable profile fields.
func (s *UserStore) UpdateProfile(id int64, email, firstName, lastName string, eventsPublic bool) (*model.User, error) {
	_, err := s.db.Exec(
		`UPDATE users SET email = ?, first_name = ?, last_name = ?, events_public = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		email, firstName, lastName, boolInt(eventsPublic), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) UpdatePassword(id int64, hash string) error {
	_, err := s.db.Exec(`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *UserStore) SetRole(id int64, role string) error {
	_, err := s.db.Exec(`UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, role, id)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}

func (s *UserStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
