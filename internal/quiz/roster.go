package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Roles as carried in tokens and stored on users.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
}

// Roster answers who a user is and whether they belong to a class.
type Roster interface {
	User(ctx context.Context, id string) (User, error)
	Enrolled(ctx context.Context, classID, userID string) (bool, error)
}

// OpenRoster accepts every user as an enrolled student. Used when class
// membership is not enforced.
type OpenRoster struct{}

func (OpenRoster) User(_ context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrStudentNotFound
	}
	return User{ID: id, Username: id, Role: RoleStudent}, nil
}

func (OpenRoster) Enrolled(context.Context, string, string) (bool, error) { return true, nil }

// SQLRoster reads the users and class_members tables.
type SQLRoster struct{ db *sql.DB }

func NewSQLRoster(db *sql.DB) *SQLRoster { return &SQLRoster{db: db} }

func (r *SQLRoster) User(ctx context.Context, id string) (User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id,username,password_hash,role FROM users WHERE id=$1`, id), id)
}

func (r *SQLRoster) UserByName(ctx context.Context, username string) (User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id,username,password_hash,role FROM users WHERE username=$1`, username), username)
}

func (r *SQLRoster) scanUser(row *sql.Row, ref string) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("%w: %s", ErrStudentNotFound, ref)
		}
		return User{}, err
	}
	return u, nil
}

func (r *SQLRoster) Enrolled(ctx context.Context, classID, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM class_members WHERE class_id=$1 AND user_id=$2`, classID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *SQLRoster) PutUser(ctx context.Context, u User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id,username,password_hash,role) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username, password_hash=EXCLUDED.password_hash, role=EXCLUDED.role`,
		u.ID, u.Username, u.PasswordHash, u.Role)
	return err
}

func (r *SQLRoster) Enroll(ctx context.Context, classID, userID string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO class_members (class_id,user_id) VALUES ($1,$2)
		ON CONFLICT (class_id, user_id) DO NOTHING`, classID, userID)
	return err
}

// MemoryRoster is the in-process roster paired with the memory store.
type MemoryRoster struct {
	mu      sync.RWMutex
	users   map[string]User
	members map[string]map[string]bool
}

func NewMemoryRoster() *MemoryRoster {
	return &MemoryRoster{users: map[string]User{}, members: map[string]map[string]bool{}}
}

func (m *MemoryRoster) User(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrStudentNotFound, id)
	}
	return u, nil
}

func (m *MemoryRoster) UserByName(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("%w: %s", ErrStudentNotFound, username)
}

func (m *MemoryRoster) Enrolled(_ context.Context, classID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.members[classID][userID], nil
}

func (m *MemoryRoster) PutUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *MemoryRoster) Enroll(_ context.Context, classID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[classID] == nil {
		m.members[classID] = map[string]bool{}
	}
	m.members[classID][userID] = true
	return nil
}
