// Package queue defines message payloads exchanged over the message broker
// and the background consumer that delivers verification emails.
package queue

// Queue names used on the default exchange.
const (
	ProfileCreateQueue = "profile.create"
	ProfileLoginQueue  = "profile.login"
	SendKeyQueue       = "account.send-key"
)

// ProfileCreateRequest asks the profile service to create (or, when
// OldUserID is set, replace) the profile that belongs to a new account.
type ProfileCreateRequest struct {
	UserID    string  `json:"user_id"`
	OldUserID *string `json:"old_user_id,omitempty"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Role      byte    `json:"role"`
	Email     string  `json:"email"`
}

type ProfileCreateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ProfileLoginRequest tells the profile service a user is logging in; the
// reply carries the display name.
type ProfileLoginRequest struct {
	UserID string `json:"user_id"`
}

type ProfileLoginResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// SendKeyEvent is published after a registration commits.  Key is the
// verification token; the consumer decodes it to find the recipient.
type SendKeyEvent struct {
	Key string `json:"key"`
}
