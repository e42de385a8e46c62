package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/edusmart-auth/internal/model"
	"github.com/iliyamo/edusmart-auth/internal/repository"
	"github.com/iliyamo/edusmart-auth/internal/testutil"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seededRole(t *testing.T, roles *repository.RoleRepo) *model.Role {
	t.Helper()
	ctx := context.Background()
	_, err := roles.Seed(ctx, "test", t0)
	require.NoError(t, err)
	role, err := roles.FindByName(ctx, model.RoleStudent)
	require.NoError(t, err)
	return role
}

func newAccount(roleID, email string) *model.Account {
	a := model.NewAccount(uuid.NewString(), roleID, email, "hash", "key-"+email)
	a.StampCreated("test", t0)
	return a
}

func TestAccountRepo_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	role := seededRole(t, repository.NewRoleRepo(db))
	repo := repository.NewAccountRepo(db)

	a := newAccount(role.ID, "  Jane@Example.COM ")
	require.NoError(t, repo.Insert(ctx, a))

	got, err := repo.FindActiveByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.AccountID, got.AccountID)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.True(t, got.IsActive)
	assert.False(t, got.EmailConfirmed)
	require.NotNil(t, got.Key)
	assert.Equal(t, *a.Key, *got.Key)
	assert.Nil(t, got.LockoutEnd)
	assert.True(t, got.CreatedAt.Equal(t0))

	byKey, err := repo.FindActiveByKey(ctx, *a.Key)
	require.NoError(t, err)
	assert.Equal(t, a.AccountID, byKey.AccountID)

	_, err = repo.FindByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAccountRepo_UpdatePersistsMutableColumns(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	role := seededRole(t, repository.NewRoleRepo(db))
	repo := repository.NewAccountRepo(db)

	a := newAccount(role.ID, "a@b.co")
	require.NoError(t, repo.Insert(ctx, a))

	a.AccessFailedCount = model.MaxAccessFailedCount
	end := model.LockoutUntil(t0)
	a.LockoutEnd = &end
	a.Confirm()
	a.StampUpdated("tester", t0.Add(time.Minute))
	require.NoError(t, repo.Update(ctx, a))

	got, err := repo.FindByID(ctx, a.AccountID)
	require.NoError(t, err)
	assert.True(t, got.EmailConfirmed)
	assert.Nil(t, got.Key)
	assert.Equal(t, model.MaxAccessFailedCount, got.AccessFailedCount)
	require.NotNil(t, got.LockoutEnd)
	assert.True(t, got.LockoutEnd.Equal(t0.Add(model.LockoutDuration)))
	assert.Equal(t, "tester", got.UpdatedBy)

	missing := newAccount(role.ID, "ghost@b.co")
	assert.ErrorIs(t, repo.Update(ctx, missing), repository.ErrNotFound)
}

func TestAccountRepo_OneActiveAccountPerEmail(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	role := seededRole(t, repository.NewRoleRepo(db))
	repo := repository.NewAccountRepo(db)

	first := newAccount(role.ID, "dup@b.co")
	require.NoError(t, repo.Insert(ctx, first))

	second := newAccount(role.ID, "DUP@b.co")
	assert.ErrorIs(t, repo.Insert(ctx, second), repository.ErrEmailExists)

	// Retired rows free the email, and any number of them may pile up.
	first.Retire("test", t0)
	require.NoError(t, repo.RetireUnconfirmed(ctx, first))
	require.NoError(t, repo.Insert(ctx, second))

	second.Retire("test", t0)
	require.NoError(t, repo.RetireUnconfirmed(ctx, second))
	third := newAccount(role.ID, "dup@b.co")
	require.NoError(t, repo.Insert(ctx, third))

	n, err := repo.CountActiveByEmail(ctx, "dup@b.co")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAccountRepo_RetireUnconfirmedSkipsConfirmedRows(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	role := seededRole(t, repository.NewRoleRepo(db))
	repo := repository.NewAccountRepo(db)

	a := newAccount(role.ID, "c@b.co")
	require.NoError(t, repo.Insert(ctx, a))
	a.Confirm()
	require.NoError(t, repo.Update(ctx, a))

	stale := *a
	stale.Retire("test", t0)
	assert.ErrorIs(t, repo.RetireUnconfirmed(ctx, &stale), repository.ErrNotFound)

	got, err := repo.FindByID(ctx, a.AccountID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestAccountRepo_RecordFailedLoginLocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	role := seededRole(t, repository.NewRoleRepo(db))
	repo := repository.NewAccountRepo(db)

	a := newAccount(role.ID, "lock@b.co")
	require.NoError(t, repo.Insert(ctx, a))
	end := model.LockoutUntil(t0)

	for i := 1; i < model.MaxAccessFailedCount; i++ {
		require.NoError(t, repo.RecordFailedLogin(ctx, a.AccountID, model.MaxAccessFailedCount, end, t0, "tester"))
		got, err := repo.FindByID(ctx, a.AccountID)
		require.NoError(t, err)
		assert.Equal(t, i, got.AccessFailedCount)
		assert.Nil(t, got.LockoutEnd)
	}
	require.NoError(t, repo.RecordFailedLogin(ctx, a.AccountID, model.MaxAccessFailedCount, end, t0, "tester"))

	got, err := repo.FindByID(ctx, a.AccountID)
	require.NoError(t, err)
	assert.Equal(t, model.MaxAccessFailedCount, got.AccessFailedCount)
	require.NotNil(t, got.LockoutEnd)
	assert.True(t, got.LockoutEnd.Equal(end))
	assert.Equal(t, "tester", got.UpdatedBy)

	// locked rows are left alone
	err = repo.RecordFailedLogin(ctx, a.AccountID, model.MaxAccessFailedCount, end, t0.Add(time.Minute), "tester")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	err = repo.ResetFailedLogins(ctx, a.AccountID, t0.Add(time.Minute), "tester")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err = repo.FindByID(ctx, a.AccountID)
	require.NoError(t, err)
	assert.Equal(t, model.MaxAccessFailedCount, got.AccessFailedCount)
}

func TestAccountRepo_ResetFailedLoginsNeedsConfirmedAccount(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	role := seededRole(t, repository.NewRoleRepo(db))
	repo := repository.NewAccountRepo(db)

	a := newAccount(role.ID, "reset@b.co")
	require.NoError(t, repo.Insert(ctx, a))
	require.NoError(t, repo.RecordFailedLogin(ctx, a.AccountID, model.MaxAccessFailedCount, model.LockoutUntil(t0), t0, "tester"))

	assert.ErrorIs(t, repo.ResetFailedLogins(ctx, a.AccountID, t0, "tester"), repository.ErrNotFound)

	a.Confirm()
	a.AccessFailedCount = 1
	require.NoError(t, repo.Update(ctx, a))
	require.NoError(t, repo.ResetFailedLogins(ctx, a.AccountID, t0, "tester"))

	got, err := repo.FindByID(ctx, a.AccountID)
	require.NoError(t, err)
	assert.Zero(t, got.AccessFailedCount)
	assert.Nil(t, got.LockoutEnd)
}

func TestAccountRepo_ConcurrentFailuresAreAllCounted(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	role := seededRole(t, repository.NewRoleRepo(db))
	repo := repository.NewAccountRepo(db)

	a := newAccount(role.ID, "many@b.co")
	require.NoError(t, repo.Insert(ctx, a))

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.RecordFailedLogin(ctx, a.AccountID, model.MaxAccessFailedCount, model.LockoutUntil(t0), t0, "tester")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	got, err := repo.FindByID(ctx, a.AccountID)
	require.NoError(t, err)
	assert.Equal(t, n, got.AccessFailedCount)
	assert.Nil(t, got.LockoutEnd)
}

func TestRoleRepo_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	roles := repository.NewRoleRepo(db)

	n, err := roles.Seed(ctx, "seeder", t0)
	require.NoError(t, err)
	assert.Equal(t, len(model.SeedRoles), n)

	n, err = roles.Seed(ctx, "seeder", t0)
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := roles.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Admin", "Lecturer", "Student"}, []string{all[0].Name, all[1].Name, all[2].Name})

	student, err := roles.FindByName(ctx, "student")
	require.NoError(t, err)
	assert.Equal(t, "STUDENT", student.NormalizedName)

	byID, err := roles.FindByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleStudent, byID.Name)
}
