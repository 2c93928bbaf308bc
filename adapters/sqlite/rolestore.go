package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/roomkit/ports"
)

// RoleStore implements ports.RoleStore using SQLite.
type RoleStore struct {
	db *DB
}

// NewRoleStore creates a role store over a migrated database.
func NewRoleStore(db *DB) *RoleStore {
	return &RoleStore{db: db}
}

// Get retrieves the assignment for an auth identity.
func (s *RoleStore) Get(ctx context.Context, auth string) (ports.RoleAssignment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT auth, name, role, assigned_by, assigned_at
		FROM role_assignments
		WHERE auth = ?
	`, auth)

	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.RoleAssignment{}, ports.ErrNotFound
	}
	return a, err
}

// Put creates or replaces an assignment.
func (s *RoleStore) Put(ctx context.Context, a ports.RoleAssignment) error {
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_assignments (auth, name, role, assigned_by, assigned_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(auth) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			assigned_by = excluded.assigned_by,
			assigned_at = excluded.assigned_at
	`, a.Auth, a.Name, a.Role, a.AssignedBy, a.AssignedAt.UTC())
	return err
}

// Delete removes an assignment.
func (s *RoleStore) Delete(ctx context.Context, auth string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM role_assignments WHERE auth = ?`, auth)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// List returns all assignments ordered by auth.
func (s *RoleStore) List(ctx context.Context) ([]ports.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT auth, name, role, assigned_by, assigned_at
		FROM role_assignments
		ORDER BY auth
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ports.RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row scanner) (ports.RoleAssignment, error) {
	var a ports.RoleAssignment
	if err := row.Scan(&a.Auth, &a.Name, &a.Role, &a.AssignedBy, &a.AssignedAt); err != nil {
		return ports.RoleAssignment{}, err
	}
	return a, nil
}

// Ensure interface compliance.
var _ ports.RoleStore = (*RoleStore)(nil)
