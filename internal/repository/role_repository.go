package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/edusmart-auth/internal/dbx"
	"github.com/iliyamo/edusmart-auth/internal/model"
)

// RoleRepo reads the `roles` reference table.
type RoleRepo struct{ DB dbx.DBTX }

func NewRoleRepo(db dbx.DBTX) *RoleRepo { return &RoleRepo{DB: db} }

// FindByName looks a role up by its normalized name.
func (r *RoleRepo) FindByName(ctx context.Context, name string) (*model.Role, error) {
	return r.queryOne(ctx,
		"SELECT id,name,normalized_name,created_at,updated_at,created_by,updated_by FROM roles WHERE normalized_name=? LIMIT 1",
		strings.ToUpper(strings.TrimSpace(name)))
}

// FindByID resolves an account's role_id.
func (r *RoleRepo) FindByID(ctx context.Context, id string) (*model.Role, error) {
	return r.queryOne(ctx,
		"SELECT id,name,normalized_name,created_at,updated_at,created_by,updated_by FROM roles WHERE id=? LIMIT 1", id)
}

// List returns every role ordered by name.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,name,normalized_name,created_at,updated_at,created_by,updated_by FROM roles ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Role
	for rows.Next() {
		var ro model.Role
		if err := rows.Scan(&ro.ID, &ro.Name, &ro.NormalizedName, &ro.CreatedAt, &ro.UpdatedAt, &ro.CreatedBy, &ro.UpdatedBy); err != nil {
			return nil, err
		}
		out = append(out, ro)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Insert writes a role row.  The caller stamps the audit columns first.
func (r *RoleRepo) Insert(ctx context.Context, ro *model.Role) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO roles (id,name,normalized_name,created_at,updated_at,created_by,updated_by) VALUES (?,?,?,?,?,?,?)",
		ro.ID, ro.Name, ro.NormalizedName, ro.CreatedAt, ro.UpdatedAt, ro.CreatedBy, ro.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert role %s: %w", ro.Name, err)
	}
	return nil
}

// Seed inserts any of model.SeedRoles that is missing.  It is safe to run
// on every startup.
func (r *RoleRepo) Seed(ctx context.Context, by string, at time.Time) (created int, err error) {
	for _, name := range model.SeedRoles {
		_, err := r.FindByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return created, err
		}
		ro := model.NewRole(uuid.NewString(), name)
		ro.StampCreated(by, at)
		if err := r.Insert(ctx, &ro); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (r *RoleRepo) queryOne(ctx context.Context, query string, args ...any) (*model.Role, error) {
	var ro model.Role
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(
		&ro.ID, &ro.Name, &ro.NormalizedName, &ro.CreatedAt, &ro.UpdatedAt, &ro.CreatedBy, &ro.UpdatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ro, nil
}
