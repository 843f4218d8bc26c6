package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for a generated admin password.
const seedPasswordBytes = 16

// SeedAdmin creates the bootstrap admin account on first boot if no admin exists.
// If password is empty a random one is generated and logged once; it must be
// changed immediately. Returns the password used (empty if seeding was skipped).
func SeedAdmin(ctx context.Context, a *Authenticator, username, password string, logger *slog.Logger) (string, error) {
	if username == "" {
		return "", nil
	}

	count, err := a.users.CountByLevel(ctx, LevelAdmin)
	if err != nil {
		return "", fmt.Errorf("checking admin count: %w", err)
	}
	if count > 0 {
		logger.Info("admin exists, skipping bootstrap admin seed")
		return "", nil
	}

	generated := password == ""
	if generated {
		passwordBytes := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(passwordBytes)
	}

	if _, err := a.Register(ctx, username, password, LevelAdmin); err != nil {
		return "", fmt.Errorf("creating bootstrap admin: %w", err)
	}

	if generated {
		logger.Warn("bootstrap admin account created",
			"username", username,
			"password", password,
			"action_required", "store this password and rotate it",
		)
	} else {
		logger.Info("bootstrap admin account created", "username", username)
	}

	return password, nil
}
