// Package models holds the persisted entities of the server.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. ID is the store-assigned sequential key;
// UUID is the external identifier used in tokens and API responses so that
// record counts never leak. The password digest is never serialized outward.
type User struct {
	ID             int64     `json:"id"`
	UUID           uuid.UUID `json:"uuid"`
	Email          string    `json:"email"`
	PasswordDigest string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
