package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // Postgres driver
	"github.com/mascotdog/ChatServer/internal/models"
	"github.com/mascotdog/ChatServer/internal/store"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLStore struct {
	db         *sql.DB
	driverName string
}

func New(driverName, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		// sqlite allows one writer; this also keeps :memory: databases,
		// which exist per connection, on a single pooled connection.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) createTables() error {
	// Simplified for brevity, ideally use migrations
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'offline'
	);

	CREATE TABLE IF NOT EXISTS friends (
		user_id INTEGER,
		friend_id INTEGER,
		PRIMARY KEY (user_id, friend_id),
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (friend_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS chat_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS group_members (
		group_id INTEGER,
		user_id INTEGER,
		role TEXT NOT NULL DEFAULT 'normal',
		PRIMARY KEY (group_id, user_id),
		FOREIGN KEY (group_id) REFERENCES chat_groups(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS offline_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		payload BLOB NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	`

	if s.driverName == "postgres" {
		// Adjust for Postgres syntax
		query = strings.ReplaceAll(query, "INTEGER PRIMARY KEY AUTOINCREMENT", "SERIAL PRIMARY KEY")
		query = strings.ReplaceAll(query, "BLOB", "BYTEA")
	}

	_, err := s.db.Exec(query)
	return err
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		// Replace ? with $1, $2, etc.
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

func (s *SQLStore) CreateUser(name, password string) (int64, error) {
	var id int64
	query := s.rebind("INSERT INTO users (name, password, state) VALUES (?, ?, 'offline') RETURNING id")
	if err := s.db.QueryRow(query, name, password).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLStore) GetUserByID(id int64) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT id, name, password, state FROM users WHERE id = ?")
	err := s.db.QueryRow(query, id).Scan(&user.ID, &user.Name, &user.Password, &user.State)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) SetPresence(id int64, state models.PresenceState) error {
	query := s.rebind("UPDATE users SET state = ? WHERE id = ?")
	_, err := s.db.Exec(query, state, id)
	return err
}

func (s *SQLStore) ResetAllToOffline() error {
	query := s.rebind("UPDATE users SET state = 'offline' WHERE state = 'online'")
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLStore) AddFriend(userID, friendID int64) error {
	query := s.rebind("INSERT INTO friends (user_id, friend_id) VALUES (?, ?)")
	_, err := s.db.Exec(query, userID, friendID)
	return err
}

func (s *SQLStore) ListFriends(userID int64) ([]models.UserSummary, error) {
	query := s.rebind(`
		SELECT u.id, u.name, u.state
		FROM users u
		JOIN friends f ON u.id = f.friend_id
		WHERE f.user_id = ?
		ORDER BY u.id
	`)
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []models.UserSummary
	for rows.Next() {
		var f models.UserSummary
		if err := rows.Scan(&f.ID, &f.Name, &f.State); err != nil {
			return nil, err
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

func (s *SQLStore) CreateGroup(name, description string) (int64, error) {
	var id int64
	query := s.rebind("INSERT INTO chat_groups (name, description) VALUES (?, ?) RETURNING id")
	if err := s.db.QueryRow(query, name, description).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLStore) AddGroupMember(groupID, userID int64, role models.GroupRole) error {
	query := s.rebind("INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)")
	_, err := s.db.Exec(query, groupID, userID, role)
	return err
}

func (s *SQLStore) ListGroupMemberIDs(groupID int64) ([]int64, error) {
	query := s.rebind("SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id")
	rows, err := s.db.Query(query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) EnqueueOffline(userID int64, payload []byte) error {
	query := s.rebind("INSERT INTO offline_messages (user_id, payload) VALUES (?, ?)")
	_, err := s.db.Exec(query, userID, payload)
	return err
}

// DrainOffline reads and deletes a user's queued messages in one transaction,
// so a payload is handed out at most once even with concurrent drains.
func (s *SQLStore) DrainOffline(userID int64) ([][]byte, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := s.rebind("SELECT payload FROM offline_messages WHERE user_id = ? ORDER BY id")
	rows, err := tx.Query(query, userID)
	if err != nil {
		return nil, err
	}

	var payloads [][]byte
	for rows.Next() {
		var p []byte
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, err
		}
		payloads = append(payloads, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	query = s.rebind("DELETE FROM offline_messages WHERE user_id = ?")
	if _, err := tx.Exec(query, userID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return payloads, nil
}
