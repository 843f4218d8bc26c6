package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nerrad567/dcsense-core/internal/infrastructure/metrics"
)

// DefaultSessionTTL is how long an issued ticket stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Authenticator registers users, issues session tickets and validates them.
type Authenticator struct {
	users   UserRepository
	tickets TicketRepository
	hasher  *CredentialHasher
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithSessionTTL sets the ticket lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// NewAuthenticator creates an Authenticator over the given stores.
func NewAuthenticator(users UserRepository, tickets TicketRepository, hasher *CredentialHasher, logger *slog.Logger, opts ...Option) *Authenticator {
	a := &Authenticator{
		users:   users,
		tickets: tickets,
		hasher:  hasher,
		logger:  logger,
		ttl:     DefaultSessionTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register creates a new account with a fresh salt.
func (a *Authenticator) Register(ctx context.Context, username, secret string, level AccessLevel) (*User, error) {
	if !IsValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if !level.Valid() {
		return nil, ErrInvalidAccessLevel
	}

	salt, err := randomString(saltLength)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	digest, err := a.hasher.Digest(username, secret, salt)
	if err != nil {
		return nil, fmt.Errorf("computing digest: %w", err)
	}

	user := &User{
		Username:         username,
		CredentialDigest: digest,
		CredentialSalt:   salt,
		CredentialScheme: a.hasher.Scheme(),
		AccessLevel:      level,
	}
	if err := a.users.Create(ctx, user); err != nil {
		return nil, err
	}

	a.logger.Info("user registered", "username", username, "access_level", level.String())
	return user, nil
}

// Login verifies the secret and issues a new ticket, replacing any previous one.
// Unknown users and wrong secrets both yield ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, username, secret string) (Ticket, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			a.hasher.VerifyAbsent(username, secret)
			metrics.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
			return Ticket{}, ErrInvalidCredentials
		}
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return Ticket{}, err
	}

	ok, err := a.hasher.Verify(user, secret)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return Ticket{}, fmt.Errorf("verifying credentials: %w", err)
	}
	if !ok {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
		return Ticket{}, ErrInvalidCredentials
	}

	value, err := randomString(ticketLength)
	if err != nil {
		return Ticket{}, fmt.Errorf("generating ticket: %w", err)
	}
	ticket := Ticket{
		Username:  username,
		Value:     value,
		ExpiresAt: a.now().Add(a.ttl).UTC().Truncate(time.Millisecond),
	}
	if err := a.tickets.Replace(ctx, ticket); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return Ticket{}, err
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	a.logger.Info("user logged in", "username", username)
	return ticket, nil
}

// Logout validates the ticket at user level and deletes it.
func (a *Authenticator) Logout(ctx context.Context, presented Ticket) error {
	user, err := a.ValidateSession(ctx, presented, LevelUser)
	if err != nil {
		return err
	}
	if err := a.tickets.DeleteByUsername(ctx, user.Username); err != nil {
		return err
	}
	a.logger.Info("user logged out", "username", user.Username)
	return nil
}

// ValidateSession returns the ticket's user if the ticket is current and the
// user holds at least the required level.
//
// The ticket must be found by (username, value), must not be past its expiry,
// and its presented expiry must equal the stored one to the millisecond.
func (a *Authenticator) ValidateSession(ctx context.Context, presented Ticket, required AccessLevel) (*User, error) {
	if presented.Username == "" || presented.Value == "" {
		metrics.SessionRejectionsTotal.WithLabelValues("missing").Inc()
		return nil, ErrNotLoggedIn
	}

	stored, err := a.tickets.Find(ctx, presented.Username, presented.Value)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			metrics.SessionRejectionsTotal.WithLabelValues("unknown").Inc()
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}

	if a.now().After(stored.ExpiresAt) {
		metrics.SessionRejectionsTotal.WithLabelValues("expired").Inc()
		return nil, ErrNotLoggedIn
	}
	if !presented.ExpiresAt.Equal(stored.ExpiresAt) {
		metrics.SessionRejectionsTotal.WithLabelValues("expiry_mismatch").Inc()
		return nil, ErrNotLoggedIn
	}

	user, err := a.users.GetByUsername(ctx, presented.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			metrics.SessionRejectionsTotal.WithLabelValues("unknown").Inc()
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}

	if !user.AccessLevel.Satisfies(required) {
		metrics.SessionRejectionsTotal.WithLabelValues("level").Inc()
		return nil, ErrInsufficientAccess
	}
	return user, nil
}

// RemoveUser deletes an account along with its ticket.
func (a *Authenticator) RemoveUser(ctx context.Context, username string) error {
	if err := a.tickets.DeleteByUsername(ctx, username); err != nil {
		return err
	}
	if err := a.users.Delete(ctx, username); err != nil {
		return err
	}
	a.logger.Info("user removed", "username", username)
	return nil
}

// ListUsernames returns all usernames in ascending order.
func (a *Authenticator) ListUsernames(ctx context.Context) ([]string, error) {
	return a.users.ListUsernames(ctx)
}

// PurgeExpired removes tickets that have already expired.
func (a *Authenticator) PurgeExpired(ctx context.Context) (int64, error) {
	return a.tickets.DeleteExpired(ctx, a.now())
}

// RunTicketCleanup purges expired tickets every interval until ctx is done.
func (a *Authenticator) RunTicketCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					a.logger.Warn("expired ticket cleanup failed", "error", err)
				}
				continue
			}
			if n > 0 {
				a.logger.Debug("expired tickets purged", "count", n)
			}
		}
	}
}
