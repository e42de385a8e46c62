package model

import "time"

// Auditable is implemented by every persisted entity.  Repositories never
// fill audit columns themselves; callers stamp the entity right before an
// insert or update so the values written are the values the caller chose.
type Auditable interface {
	StampCreated(by string, at time.Time)
	StampUpdated(by string, at time.Time)
}

// Audit holds the bookkeeping columns shared by the accounts and roles
// tables.  Embed it to satisfy Auditable.
type Audit struct {
	CreatedAt time.Time // created_at
	UpdatedAt time.Time // updated_at
	CreatedBy string    // created_by
	UpdatedBy string    // updated_by
}

// StampCreated sets both the created and updated columns, as a freshly
// inserted row has never been modified.
func (a *Audit) StampCreated(by string, at time.Time) {
	at = at.UTC()
	a.CreatedAt = at
	a.CreatedBy = by
	a.UpdatedAt = at
	a.UpdatedBy = by
}

// StampUpdated records who touched the row last and when.
func (a *Audit) StampUpdated(by string, at time.Time) {
	a.UpdatedAt = at.UTC()
	a.UpdatedBy = by
}
