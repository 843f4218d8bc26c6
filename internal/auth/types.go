package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// AccessLevel is an ordinal authorisation tier. A higher level satisfies
// every requirement of a lower one.
type AccessLevel int

const (
	// LevelPublic is a registered account with no data access beyond its own session.
	LevelPublic AccessLevel = 1

	// LevelUser may read data for facilities it owns.
	LevelUser AccessLevel = 2

	// LevelAdmin manages users and facilities and bypasses every ownership check.
	LevelAdmin AccessLevel = 3
)

// Valid reports whether l is one of the defined levels.
func (l AccessLevel) Valid() bool {
	return l >= LevelPublic && l <= LevelAdmin
}

// Satisfies reports whether l meets the required level.
func (l AccessLevel) Satisfies(required AccessLevel) bool {
	return l >= required
}

// UnmarshalJSON accepts a level as a JSON integer or as a string of decimal
// digits such as "2".
func (l *AccessLevel) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*l = AccessLevel(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("access level must be an integer: %s", data)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("access level must be an integer: %q", s)
	}
	*l = AccessLevel(n)
	return nil
}

func (l AccessLevel) String() string {
	switch l {
	case LevelPublic:
		return "public"
	case LevelUser:
		return "user"
	case LevelAdmin:
		return "admin"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// User is a registered account. The credential fields never leave the server.
type User struct {
	Username         string      `json:"username"`
	CredentialDigest string      `json:"-"`
	CredentialSalt   string      `json:"-"`
	CredentialScheme string      `json:"-"`
	AccessLevel      AccessLevel `json:"access_level"`
	CreatedAt        time.Time   `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin level.
func (u *User) IsAdmin() bool {
	return u != nil && u.AccessLevel == LevelAdmin
}

// Ticket is the bearer session credential. Clients hold the whole object and
// present it unchanged; a copy whose expiry differs from the stored one is
// rejected even when the ticket string matches.
type Ticket struct {
	Username  string    `json:"username"`
	Value     string    `json:"ticket"`
	ExpiresAt time.Time `json:"expires"`
}

// ExpiresLayout is the wire format of Ticket.ExpiresAt: RFC 3339 with
// exactly three fractional digits.
const ExpiresLayout = "2006-01-02T15:04:05.000Z07:00"

// MarshalJSON writes expires in ExpiresLayout.
func (t Ticket) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Username string `json:"username"`
		Value    string `json:"ticket"`
		Expires  string `json:"expires"`
	}{t.Username, t.Value, t.ExpiresAt.UTC().Format(ExpiresLayout)})
}

// UnmarshalJSON accepts expires only in the exact form MarshalJSON issues:
// a UTC ExpiresLayout string. A missing or null expires leaves ExpiresAt
// zero, which never validates.
func (t *Ticket) UnmarshalJSON(data []byte) error {
	var raw struct {
		Username string  `json:"username"`
		Value    string  `json:"ticket"`
		Expires  *string `json:"expires"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.Username = raw.Username
	t.Value = raw.Value
	t.ExpiresAt = time.Time{}
	if raw.Expires == nil {
		return nil
	}

	at, err := time.Parse(ExpiresLayout, *raw.Expires)
	if err != nil {
		return fmt.Errorf("ticket expires: %w", err)
	}
	if at.UTC().Format(ExpiresLayout) != *raw.Expires {
		return fmt.Errorf("ticket expires %q: not in issued form %s", *raw.Expires, ExpiresLayout)
	}
	t.ExpiresAt = at.UTC()
	return nil
}

// Sentinel errors for auth operations.
var (
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidAccessLevel = errors.New("invalid access level")
	ErrEmptySecret        = errors.New("secret must not be empty")
	ErrUsernameExists     = errors.New("username already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrTicketNotFound     = errors.New("session ticket not found")

	// ErrInvalidCredentials is returned by Login for an unknown user or a
	// digest mismatch. The two cases are not distinguished.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotLoggedIn covers a missing, expired or mismatched ticket.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrInsufficientAccess means the session is valid but its level is too low.
	ErrInsufficientAccess = errors.New("insufficient access level")

	// ErrNotOwner means the user neither owns the resource nor is an admin.
	ErrNotOwner = errors.New("not an owner of the requested resource")
)
