package auth

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &User{
		Username:         "alice",
		CredentialDigest: "abcd",
		CredentialSalt:   "salt",
		CredentialScheme: SchemeHMACSHA256,
		AccessLevel:      LevelUser,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() should set CreatedAt")
	}

	got, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if got.CredentialDigest != "abcd" || got.CredentialSalt != "salt" {
		t.Errorf("credential = (%q, %q), want (abcd, salt)", got.CredentialDigest, got.CredentialSalt)
	}
	if got.AccessLevel != LevelUser {
		t.Errorf("AccessLevel = %v, want %v", got.AccessLevel, LevelUser)
	}
	if got.CredentialScheme != SchemeHMACSHA256 {
		t.Errorf("CredentialScheme = %q, want %q", got.CredentialScheme, SchemeHMACSHA256)
	}
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := &User{Username: "dup", CredentialDigest: "x", CredentialSalt: "y", CredentialScheme: SchemeHMACSHA256, AccessLevel: LevelPublic}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := repo.Create(ctx, &User{Username: "dup", CredentialDigest: "z", CredentialSalt: "w", CredentialScheme: SchemeHMACSHA256, AccessLevel: LevelUser})
	if !errors.Is(err, ErrUsernameExists) {
		t.Errorf("Create() duplicate error = %v, want ErrUsernameExists", err)
	}
}

func TestUserRepository_GetNotFound(t *testing.T) {
	repo := NewUserRepository(testDB(t))

	_, err := repo.GetByUsername(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByUsername() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_ListUsernamesSorted(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		u := &User{Username: name, CredentialDigest: "d", CredentialSalt: "s", CredentialScheme: SchemeHMACSHA256, AccessLevel: LevelUser}
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	got, err := repo.ListUsernames(ctx)
	if err != nil {
		t.Fatalf("ListUsernames() error = %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if !slices.Equal(got, want) {
		t.Errorf("ListUsernames() = %v, want %v", got, want)
	}
}

func TestUserRepository_ListUsernamesEmpty(t *testing.T) {
	got, err := NewUserRepository(testDB(t)).ListUsernames(context.Background())
	if err != nil {
		t.Fatalf("ListUsernames() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ListUsernames() = %#v, want empty non-nil slice", got)
	}
}

func TestUserRepository_DeleteCascadesTicket(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	tickets := NewTicketRepository(db)
	ctx := context.Background()

	u := &User{Username: "gone", CredentialDigest: "d", CredentialSalt: "s", CredentialScheme: SchemeHMACSHA256, AccessLevel: LevelUser}
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := tickets.Replace(ctx, Ticket{Username: "gone", Value: "tkt", ExpiresAt: fixedNow.Add(DefaultSessionTTL)}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if err := users.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := tickets.Find(ctx, "gone", "tkt"); !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("Find() after user delete error = %v, want ErrTicketNotFound", err)
	}

	if err := users.Delete(ctx, "gone"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second Delete() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_CountByLevel(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	levels := map[string]AccessLevel{"a": LevelAdmin, "b": LevelUser, "c": LevelAdmin}
	for name, level := range levels {
		u := &User{Username: name, CredentialDigest: "d", CredentialSalt: "s", CredentialScheme: SchemeHMACSHA256, AccessLevel: level}
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	n, err := repo.CountByLevel(ctx, LevelAdmin)
	if err != nil {
		t.Fatalf("CountByLevel() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountByLevel(admin) = %d, want 2", n)
	}
}

func TestUserRepository_CancelledContext(t *testing.T) {
	repo := NewUserRepository(testDB(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := repo.ListUsernames(ctx); err == nil {
		t.Error("ListUsernames with cancelled context should return error")
	}
	if _, err := repo.GetByUsername(ctx, "x"); err == nil {
		t.Error("GetByUsername with cancelled context should return error")
	}
}
