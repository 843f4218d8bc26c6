package facility

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds facility names.
const MaxNameLength = 128

// Facility is a named site grouping controllers, with a set of owners.
type Facility struct {
	Name        string   `json:"name"`
	Controllers []int64  `json:"controllers"`
	Owners      []string `json:"owners"`
}

// ValidateName checks a facility name. Names are used verbatim as URL path
// segments, so they may not contain a slash.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLength)
	}
	if strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: must not contain '/'", ErrInvalidName)
	}
	return nil
}

// Op is a set-membership update.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// ParseOp maps a path verb to an Op.
func ParseOp(s string) (Op, error) {
	switch Op(s) {
	case OpAdd, OpRemove:
		return Op(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOp, s)
	}
}
