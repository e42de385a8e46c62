package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/edusmart-auth/internal/dbx"
	"github.com/iliyamo/edusmart-auth/internal/model"
)

const accountColumns = `account_id, role_id, email, password_hash, email_confirmed, verification_key,
	access_failed_count, lockout_end, is_active, created_at, updated_at, created_by, updated_by`

// AccountRepo reads and writes the `accounts` table.
type AccountRepo struct{ DB dbx.DBTX }

func NewAccountRepo(db dbx.DBTX) *AccountRepo { return &AccountRepo{DB: db} }

// NormalizeEmail trims and lower-cases an address before it is stored or
// compared.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindActiveByEmail returns the active account registered under email.
func (r *AccountRepo) FindActiveByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.queryOne(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email=? AND is_active=? LIMIT 1",
		NormalizeEmail(email), true)
}

// FindActiveByKey returns the active account holding the given
// verification key.
func (r *AccountRepo) FindActiveByKey(ctx context.Context, key string) (*model.Account, error) {
	return r.queryOne(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE verification_key=? AND is_active=? LIMIT 1",
		key, true)
}

// FindByID fetches an account by id regardless of its state.
func (r *AccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.queryOne(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_id=? LIMIT 1", id)
}

// CountActiveByEmail is used by consistency checks and tests.
func (r *AccountRepo) CountActiveByEmail(ctx context.Context, email string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts WHERE email=? AND is_active=?",
		NormalizeEmail(email), true).Scan(&n)
	return n, err
}

// Insert writes a new row.  The caller stamps the audit columns first.
func (r *AccountRepo) Insert(ctx context.Context, a *model.Account) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.AccountID, a.RoleID, NormalizeEmail(a.Email), a.PasswordHash, a.EmailConfirmed, nullString(a.Key),
		a.AccessFailedCount, nullTime(a), a.IsActive, a.CreatedAt, a.UpdatedAt, a.CreatedBy, a.UpdatedBy)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Update persists every mutable column of a.  It returns ErrNotFound when
// the row vanished.
func (r *AccountRepo) Update(ctx context.Context, a *model.Account) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE accounts SET email_confirmed=?, verification_key=?, access_failed_count=?, lockout_end=?,
			is_active=?, updated_at=?, updated_by=? WHERE account_id=?`,
		a.EmailConfirmed, nullString(a.Key), a.AccessFailedCount, nullTime(a),
		a.IsActive, a.UpdatedAt, a.UpdatedBy, a.AccountID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("update account: %w", err)
	}
	return affectedOne(res)
}

// RetireUnconfirmed soft-retires a, but only while it is still active and
// unconfirmed.  ErrNotFound means another request changed the row first.
func (r *AccountRepo) RetireUnconfirmed(ctx context.Context, a *model.Account) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE accounts SET is_active=?, updated_at=?, updated_by=?
			WHERE account_id=? AND is_active=? AND email_confirmed=?`,
		false, a.UpdatedAt, a.UpdatedBy, a.AccountID, true, false)
	if err != nil {
		return fmt.Errorf("retire account: %w", err)
	}
	return affectedOne(res)
}

// RecordFailedLogin bumps the failure counter of an active account in one
// statement and sets lockout_end to lockoutEnd when the new count reaches
// threshold.  Rows still locked at now are not touched; ErrNotFound is
// returned for them and for retired rows.
//
// lockout_end is assigned before the counter: MySQL evaluates SET
// assignments left to right, so both see the old count.
func (r *AccountRepo) RecordFailedLogin(ctx context.Context, id string, threshold int, lockoutEnd, now time.Time, by string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE accounts SET
			lockout_end = CASE WHEN access_failed_count + 1 >= ? THEN ? ELSE lockout_end END,
			access_failed_count = access_failed_count + 1,
			updated_at=?, updated_by=?
			WHERE account_id=? AND is_active=? AND (lockout_end IS NULL OR lockout_end <= ?)`,
		threshold, lockoutEnd.UTC(), now.UTC(), by, id, true, now.UTC())
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}
	return affectedOne(res)
}

// ResetFailedLogins clears the counter and lockout of an active, confirmed
// account that is not locked at now.  ErrNotFound means one of those
// conditions no longer holds.
func (r *AccountRepo) ResetFailedLogins(ctx context.Context, id string, now time.Time, by string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE accounts SET access_failed_count=?, lockout_end=NULL, updated_at=?, updated_by=?
			WHERE account_id=? AND is_active=? AND email_confirmed=? AND (lockout_end IS NULL OR lockout_end <= ?)`,
		0, now.UTC(), by, id, true, true, now.UTC())
	if err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountRepo) queryOne(ctx context.Context, query string, args ...any) (*model.Account, error) {
	var (
		a          model.Account
		key        sql.NullString
		lockoutEnd sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(
		&a.AccountID, &a.RoleID, &a.Email, &a.PasswordHash, &a.EmailConfirmed, &key,
		&a.AccessFailedCount, &lockoutEnd, &a.IsActive, &a.CreatedAt, &a.UpdatedAt, &a.CreatedBy, &a.UpdatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if key.Valid {
		k := key.String
		a.Key = &k
	}
	if lockoutEnd.Valid {
		t := lockoutEnd.Time.UTC()
		a.LockoutEnd = &t
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(a *model.Account) sql.NullTime {
	if a.LockoutEnd == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: a.LockoutEnd.UTC(), Valid: true}
}
