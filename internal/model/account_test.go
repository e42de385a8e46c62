package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestRegistrationExpired_Boundary(t *testing.T) {
	a := NewAccount("id", "role", "a@x.com", "hash", "k")
	a.StampCreated("system", t0)

	assert.False(t, a.RegistrationExpired(t0))
	assert.False(t, a.RegistrationExpired(t0.Add(VerificationWindow)))
	assert.True(t, a.RegistrationExpired(t0.Add(VerificationWindow+time.Nanosecond)))
}

func TestCooldownElapsed_Boundary(t *testing.T) {
	a := NewAccount("id", "role", "a@x.com", "hash", "k")
	a.StampCreated("system", t0)

	assert.False(t, a.CooldownElapsed(t0.Add(VerificationWindow-time.Nanosecond)))
	assert.True(t, a.CooldownElapsed(t0.Add(VerificationWindow)))
}

func TestLockout(t *testing.T) {
	a := NewAccount("id", "role", "a@x.com", "hash", "k")
	assert.False(t, a.IsLocked(t0))

	end := LockoutUntil(t0.In(time.FixedZone("X", 3600)))
	assert.Equal(t, time.UTC, end.Location())
	a.LockoutEnd = &end
	assert.True(t, a.IsLocked(t0.Add(LockoutDuration-time.Second)))
	assert.False(t, a.IsLocked(t0.Add(LockoutDuration)))
}

func TestConfirmAndRetire(t *testing.T) {
	a := NewAccount("id", "role", "a@x.com", "hash", "k")
	a.StampCreated("system", t0)
	a.Confirm()
	assert.True(t, a.EmailConfirmed)
	assert.Nil(t, a.Key)

	a.Retire("admin", t0.Add(time.Minute))
	assert.False(t, a.IsActive)
	assert.Equal(t, "admin", a.UpdatedBy)
	assert.Equal(t, "system", a.CreatedBy)
	assert.True(t, a.UpdatedAt.Equal(t0.Add(time.Minute)))
}

func TestStampCreated_UsesUTC(t *testing.T) {
	var a Audit
	a.StampCreated("system", t0.In(time.FixedZone("X", 3600)))
	assert.Equal(t, time.UTC, a.CreatedAt.Location())
	assert.Equal(t, a.CreatedAt, a.UpdatedAt)
}

func TestFromWriteModel(t *testing.T) {
	a := NewAccount("id", "role-1", "a@x.com", "hash", "k")
	a.StampCreated("system", t0)
	role := NewRole("role-1", RoleStudent)

	doc := FromWriteModel(a, UserInformation{FirstName: "Ann", LastName: "Lee"}, &role)
	assert.Equal(t, "id", doc.AccountID)
	assert.Equal(t, "a@x.com", doc.Email)
	assert.Equal(t, "Ann Lee", doc.UserInformation.FullName())
	require.NotNil(t, doc.Role)
	assert.Equal(t, "STUDENT", doc.Role.NormalizedName)

	assert.Nil(t, FromWriteModel(a, UserInformation{}, nil).Role)
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Ann", UserInformation{FirstName: "Ann"}.FullName())
	assert.Equal(t, "Lee", UserInformation{LastName: "Lee"}.FullName())
	assert.Equal(t, "", UserInformation{}.FullName())
}
