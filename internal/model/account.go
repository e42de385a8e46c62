package model

import "time"

const (
	// MaxAccessFailedCount is the number of consecutive password failures
	// that puts an account into lockout.
	MaxAccessFailedCount = 5
	// LockoutDuration is how long a locked account rejects logins.
	LockoutDuration = 5 * time.Minute
	// VerificationWindow bounds both the life of a verification token and
	// the cooldown before an unconfirmed email may be registered again.
	VerificationWindow = 5 * time.Minute
)

// Account mirrors the `accounts` table and is the source of truth for
// every authentication decision.  The projection in AccountCollection is
// derived from it and never written on its own.
//
// Fields:
//  AccountID         – uuid primary key.
//  RoleID            – foreign key into roles.id; resolve with RoleRepo.FindByID.
//  Email             – normalized (trimmed, lower-cased) address.
//  PasswordHash      – bcrypt hash; the plaintext is never stored.
//  EmailConfirmed    – true once the verification token was redeemed.
//  Key               – outstanding verification token, nil once confirmed.
//  AccessFailedCount – consecutive failed password checks.
//  LockoutEnd        – logins are rejected until this instant (nil when unlocked).
//  IsActive          – false once the row was superseded by a re-registration.
type Account struct {
	AccountID         string
	RoleID            string
	Email             string
	PasswordHash      string
	EmailConfirmed    bool
	Key               *string
	AccessFailedCount int
	LockoutEnd        *time.Time
	IsActive          bool
	Audit
}

// NewAccount returns an active, unconfirmed account carrying the given
// verification key.  The caller stamps it before inserting.
func NewAccount(id, roleID, email, passwordHash, key string) *Account {
	k := key
	return &Account{
		AccountID:    id,
		RoleID:       roleID,
		Email:        email,
		PasswordHash: passwordHash,
		Key:          &k,
		IsActive:     true,
	}
}

// IsLocked reports whether a lockout is in effect at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockoutEnd != nil && a.LockoutEnd.After(now)
}

// RegistrationExpired reports whether the account's verification token
// has expired at now.  The instant createdAt+5m still verifies.
func (a *Account) RegistrationExpired(now time.Time) bool {
	return a.CreatedAt.Add(VerificationWindow).Before(now)
}

// CooldownElapsed reports whether an unconfirmed registration may be
// replaced at now, which is from createdAt+5m on.
func (a *Account) CooldownElapsed(now time.Time) bool {
	return !a.CreatedAt.Add(VerificationWindow).After(now)
}

// LockoutUntil is the end of a lockout that starts at now.
func LockoutUntil(now time.Time) time.Time {
	return now.UTC().Add(LockoutDuration)
}

// Confirm marks the email as verified and consumes the key.
func (a *Account) Confirm() {
	a.EmailConfirmed = true
	a.Key = nil
}

// Retire soft-deletes the account so its email can be registered again.
func (a *Account) Retire(by string, at time.Time) {
	a.IsActive = false
	a.StampUpdated(by, at)
}
