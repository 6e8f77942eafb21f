package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openintentos/openintent/internal/vault"
)

// UserRole gates what a transport layer lets an account do. Enforcement is
// the transport's job; the store only records the role.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleUser   UserRole = "user"
	RoleViewer UserRole = "viewer"
)

func validUserRole(r UserRole) bool {
	switch r {
	case RoleAdmin, RoleUser, RoleViewer:
		return true
	}
	return false
}

// User is an account row. PasswordHash is salt:key in base64, see vault.HashPassword.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateUser hashes the password and inserts the account.
func (s *Store) CreateUser(ctx context.Context, username, displayName, password string, role UserRole) (*User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is empty", ErrInvalidArgument)
	}
	if !validUserRole(role) {
		return nil, fmt.Errorf("%w: bad role %q", ErrInvalidArgument, role)
	}
	hash, err := vault.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := nowMilli()
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    milliTime(now),
		UpdatedAt:    milliTime(now),
	}
	err = retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO users (id, username, display_name, password_hash, role, active, created_at, updated_at)
			 VALUES (?, ?, NULLIF(?, ''), ?, ?, 1, ?, ?)`,
			u.ID, u.Username, u.DisplayName, u.PasswordHash, string(u.Role), now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByUsername fetches an account by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, COALESCE(display_name, ''), password_hash, role, active, created_at, updated_at
		 FROM users WHERE username = ?`, username)
	return scanUser(row, username)
}

func scanUser(row *sql.Row, key string) (*User, error) {
	var u User
	var role string
	var active int
	var created, updated int64
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &role, &active, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = UserRole(role)
	u.Active = active != 0
	u.CreatedAt = milliTime(created)
	u.UpdatedAt = milliTime(updated)
	return &u, nil
}

// Authenticate verifies a password against the stored hash. Inactive accounts
// never authenticate.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, fmt.Errorf("user %s is inactive: %w", username, ErrInvalidArgument)
	}
	if !vault.VerifyPassword(password, u.PasswordHash) {
		return nil, fmt.Errorf("user %s: bad credentials: %w", username, ErrInvalidArgument)
	}
	return u, nil
}

// UpdatePassword re-hashes and stores a new password.
func (s *Store) UpdatePassword(ctx context.Context, username, newPassword string) error {
	hash, err := vault.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE users SET password_hash = ?, updated_at = ? WHERE username = ?`,
			hash, nowMilli(), username)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("user %s: %w", username, ErrNotFound)
		}
		return nil
	})
}

// SetActive toggles an account.
func (s *Store) SetActive(ctx context.Context, username string, active bool) error {
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE users SET active = ?, updated_at = ? WHERE username = ?`,
			boolToInt(active), nowMilli(), username)
		if err != nil {
			return fmt.Errorf("set active: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("user %s: %w", username, ErrNotFound)
		}
		return nil
	})
}

// ListUsers returns all accounts ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, COALESCE(display_name, ''), password_hash, role, active, created_at, updated_at
		 FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var role string
		var active int
		var created, updated int64
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &role, &active, &created, &updated); err != nil {
			return nil, err
		}
		u.Role = UserRole(role)
		u.Active = active != 0
		u.CreatedAt = milliTime(created)
		u.UpdatedAt = milliTime(updated)
		out = append(out, u)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
