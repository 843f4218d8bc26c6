package auth

import (
	"context"
	"errors"
	"testing"
)

type stubOwnership struct {
	controllers map[string][]int64
	facilities  map[string][]string
	calls       int
	err         error
}

func (s *stubOwnership) IsControllerOwner(_ context.Context, username string, controllerID int64) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	for _, id := range s.controllers[username] {
		if id == controllerID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubOwnership) IsFacilityOwner(_ context.Context, username, facility string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	for _, f := range s.facilities[username] {
		if f == facility {
			return true, nil
		}
	}
	return false, nil
}

func TestCheckControllerAccess(t *testing.T) {
	owners := &stubOwnership{controllers: map[string][]int64{"alice": {7}}}
	z := NewAuthorizer(owners)
	ctx := context.Background()

	alice := &User{Username: "alice", AccessLevel: LevelUser}
	bob := &User{Username: "bob", AccessLevel: LevelUser}
	admin := &User{Username: "root", AccessLevel: LevelAdmin}

	if err := z.CheckControllerAccess(ctx, alice, 7); err != nil {
		t.Errorf("owner access error = %v", err)
	}
	if err := z.CheckControllerAccess(ctx, alice, 8); !errors.Is(err, ErrNotOwner) {
		t.Errorf("unowned controller error = %v, want ErrNotOwner", err)
	}
	if err := z.CheckControllerAccess(ctx, bob, 7); !errors.Is(err, ErrNotOwner) {
		t.Errorf("non-owner error = %v, want ErrNotOwner", err)
	}

	before := owners.calls
	if err := z.CheckControllerAccess(ctx, admin, 99); err != nil {
		t.Errorf("admin access error = %v", err)
	}
	if owners.calls != before {
		t.Error("admin check should not consult ownership")
	}
}

func TestCheckFacilityAccess(t *testing.T) {
	z := NewAuthorizer(&stubOwnership{facilities: map[string][]string{"alice": {"Lab A"}}})
	ctx := context.Background()

	alice := &User{Username: "alice", AccessLevel: LevelUser}
	admin := &User{Username: "root", AccessLevel: LevelAdmin}

	if err := z.CheckFacilityAccess(ctx, alice, "Lab A"); err != nil {
		t.Errorf("owner access error = %v", err)
	}
	if err := z.CheckFacilityAccess(ctx, alice, "Lab B"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("unowned facility error = %v, want ErrNotOwner", err)
	}
	if err := z.CheckFacilityAccess(ctx, admin, "Lab B"); err != nil {
		t.Errorf("admin access error = %v", err)
	}
}

func TestAuthorizer_StorageError(t *testing.T) {
	errDB := errors.New("db down")
	z := NewAuthorizer(&stubOwnership{err: errDB})
	user := &User{Username: "alice", AccessLevel: LevelUser}

	err := z.CheckControllerAccess(context.Background(), user, 1)
	if !errors.Is(err, errDB) {
		t.Errorf("error = %v, want wrapped errDB", err)
	}
	if errors.Is(err, ErrNotOwner) {
		t.Error("storage failure should not be reported as ErrNotOwner")
	}
}
