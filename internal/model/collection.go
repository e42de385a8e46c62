package model

import "time"

// UserInformation is the profile part of the projection.  The profile
// service owns it; the auth service only keeps a copy for fast reads.
type UserInformation struct {
	FirstName string `bson:"firstName" json:"first_name"`
	LastName  string `bson:"lastName" json:"last_name"`
}

// FullName joins first and last name the way login responses show it.
func (u UserInformation) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// RoleCollection is the embedded role snapshot inside AccountCollection.
type RoleCollection struct {
	ID             string `bson:"id" json:"id"`
	Name           string `bson:"name" json:"name"`
	NormalizedName string `bson:"normalizedName" json:"normalized_name"`
}

// AccountCollection is the document-store projection of an Account.  It is
// keyed by account id and is eventually consistent with the accounts
// table.  Build it only through FromWriteModel.
type AccountCollection struct {
	AccountID         string          `bson:"_id" json:"account_id"`
	RoleID            string          `bson:"roleId" json:"role_id"`
	Email             string          `bson:"email" json:"email"`
	EmailConfirmed    bool            `bson:"emailConfirmed" json:"email_confirmed"`
	PasswordHash      string          `bson:"passwordHash" json:"-"`
	LockoutEnd        *time.Time      `bson:"lockoutEnd,omitempty" json:"lockout_end,omitempty"`
	CreatedAt         time.Time       `bson:"createdAt" json:"created_at"`
	CreatedBy         string          `bson:"createdBy" json:"created_by"`
	IsActive          bool            `bson:"isActive" json:"is_active"`
	UpdatedAt         time.Time       `bson:"updatedAt" json:"updated_at"`
	UpdatedBy         string          `bson:"updatedBy" json:"updated_by"`
	AccessFailedCount int             `bson:"accessFailedCount" json:"access_failed_count"`
	Key               *string         `bson:"key,omitempty" json:"-"`
	UserInformation   UserInformation `bson:"userInformation" json:"user_information"`
	Role              *RoleCollection `bson:"role,omitempty" json:"role,omitempty"`
}

// FromWriteModel copies the credential fields of a into a projection
// document.  role is optional; pass nil to leave the snapshot out.
func FromWriteModel(a *Account, info UserInformation, role *Role) AccountCollection {
	c := AccountCollection{
		AccountID:         a.AccountID,
		RoleID:            a.RoleID,
		Email:             a.Email,
		EmailConfirmed:    a.EmailConfirmed,
		PasswordHash:      a.PasswordHash,
		LockoutEnd:        a.LockoutEnd,
		CreatedAt:         a.CreatedAt,
		CreatedBy:         a.CreatedBy,
		IsActive:          a.IsActive,
		UpdatedAt:         a.UpdatedAt,
		UpdatedBy:         a.UpdatedBy,
		AccessFailedCount: a.AccessFailedCount,
		Key:               a.Key,
		UserInformation:   info,
	}
	if role != nil {
		c.Role = &RoleCollection{ID: role.ID, Name: role.Name, NormalizedName: role.NormalizedName}
	}
	return c
}
