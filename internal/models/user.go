package models

import "github.com/google/uuid"

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	// IsEphemeral marks auto-created guest identities that have not been
	// claimed into a full account.
	IsEphemeral bool `json:"is_ephemeral"`
}
