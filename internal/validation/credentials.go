// Package validation checks user-supplied registration input before it
// reaches the store.
package validation

import (
	"fmt"
	"net/mail"

	"github.com/dmitrijs2005/heimdallr/internal/common"
)

// MinPasswordLen is the minimum accepted password length. Deliberately low;
// raising it is a policy decision, not a structural one.
const MinPasswordLen = 4

// ValidateEmail checks that the address is a syntactically valid bare email
// (no display name). The address is validated as given; no case folding is
// applied, emails are stored case-sensitively.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("%w: %q", common.ErrInvalidEmail, email)
	}
	if addr.Address != email {
		return fmt.Errorf("%w: %q", common.ErrInvalidEmail, email)
	}
	return nil
}

// ValidatePassword enforces the minimum length policy on the raw password.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return fmt.Errorf("%w: must be at least %d characters", common.ErrWeakPassword, MinPasswordLen)
	}
	return nil
}
