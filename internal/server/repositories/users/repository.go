package users

import (
	"context"

	"github.com/dmitrijs2005/heimdallr/internal/server/models"
)

// Repository is the persistence contract for User records.
type Repository interface {
	// Create inserts the user and fills in the store-assigned fields
	// (ID, CreatedAt, UpdatedAt). A uniqueness-constraint violation on
	// email is reported as common.ErrDuplicateEmail.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail returns the user with the given email, or
	// common.ErrorNotFound if absent. Lookup is case-sensitive.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// EmailExists reports whether a user with the given email exists.
	EmailExists(ctx context.Context, email string) (bool, error)
}
