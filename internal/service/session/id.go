package session

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/google/uuid"
)

// MaxIDLength bounds client supplied session IDs.
const MaxIDLength = 128

// ErrInvalidID is returned by ValidateID.
var ErrInvalidID = errors.New("invalid session id")

// NewID returns a random session ID.
func NewID() string {
	return uuid.NewString()
}

// ValidateID accepts IDs made of letters, digits, '-', '_' and '.', up to
// MaxIDLength bytes.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidID, MaxIDLength)
	}
	for _, r := range id {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.') {
			return fmt.Errorf("%w: unexpected character %q", ErrInvalidID, r)
		}
	}
	return nil
}

// ResolveID returns requested if it is a valid ID, a new ID if requested is
// empty, and an error otherwise.
func ResolveID(requested string) (string, error) {
	if requested == "" {
		return NewID(), nil
	}
	if err := ValidateID(requested); err != nil {
		return "", err
	}
	return requested, nil
}
