package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestNewCredentialHasher(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		scheme  string
		wantErr bool
	}{
		{"default scheme", testCredentialKey, "", false},
		{"hmac", testCredentialKey, SchemeHMACSHA256, false},
		{"argon2id", testCredentialKey, SchemeArgon2id, false},
		{"empty key", "", SchemeHMACSHA256, true},
		{"unknown scheme", testCredentialKey, "md5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewCredentialHasher(tt.key, tt.scheme)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCredentialHasher() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.scheme == "" && h.Scheme() != SchemeHMACSHA256 {
				t.Errorf("Scheme() = %q, want %q", h.Scheme(), SchemeHMACSHA256)
			}
		})
	}
}

func TestDigest_HMACIsDeterministic(t *testing.T) {
	h, _ := NewCredentialHasher(testCredentialKey, SchemeHMACSHA256)

	d1, err := h.Digest("alice", "s3cret", "saltsaltsaltsaltsalt")
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	d2, _ := h.Digest("alice", "s3cret", "saltsaltsaltsaltsalt")
	if d1 != d2 {
		t.Error("same inputs should produce the same digest")
	}
	if len(d1) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(d1))
	}

	other, _ := h.Digest("alice", "s3cret", "differentsaltdiffere")
	if other == d1 {
		t.Error("different salt should change the digest")
	}
}

func TestDigest_KeyMatters(t *testing.T) {
	h1, _ := NewCredentialHasher(testCredentialKey, SchemeHMACSHA256)
	h2, _ := NewCredentialHasher(testCredentialKey+"-other", SchemeHMACSHA256)

	d1, _ := h1.Digest("alice", "pw", "salt")
	d2, _ := h2.Digest("alice", "pw", "salt")
	if d1 == d2 {
		t.Error("digests under different keys should differ")
	}
}

func TestVerify(t *testing.T) {
	for _, scheme := range []string{SchemeHMACSHA256, SchemeArgon2id} {
		t.Run(scheme, func(t *testing.T) {
			h, _ := NewCredentialHasher(testCredentialKey, scheme)
			digest, err := h.Digest("alice", "correct", "salt1234")
			if err != nil {
				t.Fatalf("Digest() error = %v", err)
			}
			user := &User{Username: "alice", CredentialDigest: digest, CredentialSalt: "salt1234", CredentialScheme: scheme}

			ok, err := h.Verify(user, "correct")
			if err != nil || !ok {
				t.Errorf("Verify(correct) = %v, %v; want true, nil", ok, err)
			}

			ok, err = h.Verify(user, "wrong")
			if err != nil || ok {
				t.Errorf("Verify(wrong) = %v, %v; want false, nil", ok, err)
			}

			// The salt is part of the digest input.
			user.CredentialSalt = "salt9999"
			if ok, _ := h.Verify(user, "correct"); ok {
				t.Error("Verify() should fail when the stored salt changes")
			}
		})
	}
}

func TestVerify_MixedSchemes(t *testing.T) {
	hmacHasher, _ := NewCredentialHasher(testCredentialKey, SchemeHMACSHA256)
	argonHasher, _ := NewCredentialHasher(testCredentialKey, SchemeArgon2id)

	digest, _ := hmacHasher.Digest("bob", "pw", "s")
	legacy := &User{Username: "bob", CredentialDigest: digest, CredentialSalt: "s", CredentialScheme: SchemeHMACSHA256}

	// A hasher configured for argon2id still verifies older hmac rows.
	ok, err := argonHasher.Verify(legacy, "pw")
	if err != nil || !ok {
		t.Errorf("Verify() of hmac row under argon2id hasher = %v, %v", ok, err)
	}
}

func TestArgon2idDigestFormat(t *testing.T) {
	h, _ := NewCredentialHasher(testCredentialKey, SchemeArgon2id)

	d1, err := h.Digest("alice", "pw", "salt")
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if !strings.HasPrefix(d1, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Errorf("digest = %q, want argon2id PHC prefix", d1)
	}

	d2, _ := h.Digest("alice", "pw", "salt")
	if d1 == d2 {
		t.Error("argon2id digests should differ because of the random salt")
	}
}

func TestVerifyAbsent_UsesConfiguredScheme(t *testing.T) {
	tests := []struct {
		scheme string
		prefix string
	}{
		{SchemeHMACSHA256, ""},
		{SchemeArgon2id, "$argon2id$"},
	}
	for _, tt := range tests {
		t.Run(tt.scheme, func(t *testing.T) {
			h, _ := NewCredentialHasher(testCredentialKey, tt.scheme)

			h.VerifyAbsent("mallory", "guess")
			if h.decoy == nil {
				t.Fatal("decoy credential was not built")
			}
			if h.decoy.CredentialScheme != tt.scheme {
				t.Errorf("decoy scheme = %q, want %q", h.decoy.CredentialScheme, tt.scheme)
			}
			if !strings.HasPrefix(h.decoy.CredentialDigest, tt.prefix) {
				t.Errorf("decoy digest = %q, want prefix %q", h.decoy.CredentialDigest, tt.prefix)
			}

			first := h.decoy
			h.VerifyAbsent("eve", "other")
			if h.decoy != first {
				t.Error("decoy credential should be built once")
			}
		})
	}
}

func TestVerify_Errors(t *testing.T) {
	h, _ := NewCredentialHasher(testCredentialKey, SchemeHMACSHA256)

	tests := []struct {
		name string
		user *User
	}{
		{"bad hex", &User{Username: "a", CredentialDigest: "zz", CredentialScheme: SchemeHMACSHA256}},
		{"bad phc", &User{Username: "a", CredentialDigest: "$argon2id$broken", CredentialScheme: SchemeArgon2id}},
		{"wrong algorithm", &User{Username: "a", CredentialDigest: "$bcrypt$v=19$m=1,t=1,p=1$AA$AA", CredentialScheme: SchemeArgon2id}},
		{"unknown scheme", &User{Username: "a", CredentialDigest: "x", CredentialScheme: "md5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.Verify(tt.user, "pw"); err == nil {
				t.Error("Verify() should return error")
			}
		})
	}

	_, err := h.Verify(&User{CredentialScheme: "md5"}, "pw")
	if !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("Verify() error = %v, want ErrUnknownScheme", err)
	}
}

func TestRandomString(t *testing.T) {
	s, err := randomString(ticketLength)
	if err != nil {
		t.Fatalf("randomString() error = %v", err)
	}
	if len(s) != ticketLength {
		t.Errorf("len = %d, want %d", len(s), ticketLength)
	}
	for _, c := range s {
		if !strings.ContainsRune(alphanumeric, c) {
			t.Errorf("unexpected character %q", c)
		}
	}

	other, _ := randomString(ticketLength)
	if s == other {
		t.Error("two random strings should differ")
	}
}

func TestHashTicket(t *testing.T) {
	if HashTicket("a") == HashTicket("b") {
		t.Error("different tickets should hash differently")
	}
	if HashTicket("a") != HashTicket("a") {
		t.Error("HashTicket should be deterministic")
	}
	if len(HashTicket("a")) != 64 {
		t.Errorf("hash length = %d, want 64", len(HashTicket("a")))
	}
}
