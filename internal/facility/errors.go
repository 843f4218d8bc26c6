package facility

import "errors"

var (
	// ErrFacilityNotFound is returned when no facility has the given name.
	ErrFacilityNotFound = errors.New("facility not found")

	// ErrFacilityExists is returned when creating a facility whose name is taken.
	ErrFacilityExists = errors.New("facility already exists")

	// ErrInvalidName is returned for an empty or over-long facility name.
	ErrInvalidName = errors.New("invalid facility name")

	// ErrUnknownOp is returned for a membership verb other than add or remove.
	ErrUnknownOp = errors.New("unknown membership operation")

	// ErrOwnerNotFound is returned when adding an owner who is not a registered user.
	ErrOwnerNotFound = errors.New("owner is not a registered user")
)
