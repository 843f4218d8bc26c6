package auth

import (
	"context"
	"fmt"
)

// OwnershipChecker answers facility ownership questions for the Authorizer.
type OwnershipChecker interface {
	// IsControllerOwner reports whether some facility containing controllerID
	// lists username as an owner.
	IsControllerOwner(ctx context.Context, username string, controllerID int64) (bool, error)

	// IsFacilityOwner reports whether the named facility lists username as an owner.
	IsFacilityOwner(ctx context.Context, username, facility string) (bool, error)
}

// Authorizer decides whether an authenticated user may touch a controller or
// facility. Admins pass every check without an ownership lookup.
type Authorizer struct {
	owners OwnershipChecker
}

// NewAuthorizer creates an Authorizer backed by owners.
func NewAuthorizer(owners OwnershipChecker) *Authorizer {
	return &Authorizer{owners: owners}
}

// CheckControllerAccess returns ErrNotOwner unless user is an admin or owns a
// facility containing the controller.
func (z *Authorizer) CheckControllerAccess(ctx context.Context, user *User, controllerID int64) error {
	if user.IsAdmin() {
		return nil
	}
	ok, err := z.owners.IsControllerOwner(ctx, user.Username, controllerID)
	if err != nil {
		return fmt.Errorf("checking controller ownership: %w", err)
	}
	if !ok {
		return ErrNotOwner
	}
	return nil
}

// CheckFacilityAccess returns ErrNotOwner unless user is an admin or an owner
// of the facility.
func (z *Authorizer) CheckFacilityAccess(ctx context.Context, user *User, facility string) error {
	if user.IsAdmin() {
		return nil
	}
	ok, err := z.owners.IsFacilityOwner(ctx, user.Username, facility)
	if err != nil {
		return fmt.Errorf("checking facility ownership: %w", err)
	}
	if !ok {
		return ErrNotOwner
	}
	return nil
}
