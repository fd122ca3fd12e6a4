package models

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
)

// PlaceholderName is shown when the profile has no nickname yet
const PlaceholderName = "Usuario"

// Identity is the signed-in user as the application sees it: the auth user
// joined with its "Users" profile row. A nil Nickname means the profile has
// not been joined yet.
type Identity struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Nickname *string `json:"nickname"`
	Role     string  `json:"role,omitempty"`
	Status   string  `json:"status,omitempty"`
}

// Profile is the application-specific user record
type Profile struct {
	Nickname *string `json:"nickname"`
	Role     string  `json:"role"`
	Status   string  `json:"status"`
}

// ProfileColumns is the projection used when loading a Profile
const ProfileColumns = "nickname, role, status"

// Complete reports whether the profile row has been joined
func (i *Identity) Complete() bool {
	return i != nil && i.Nickname != nil
}

// DisplayName returns the nickname or the placeholder
func (i *Identity) DisplayName() string {
	if i == nil || i.Nickname == nil || strings.TrimSpace(*i.Nickname) == "" {
		return PlaceholderName
	}
	return *i.Nickname
}

// Initial returns the upper-cased first letter of DisplayName, used for avatars
func (i *Identity) Initial() string {
	r, _ := utf8.DecodeRuneInString(i.DisplayName())
	return string(unicode.ToUpper(r))
}

// Clone returns a deep copy
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.Nickname != nil {
		nick := *i.Nickname
		c.Nickname = &nick
	}
	return &c
}

// WithProfile merges a fetched profile into the identity
func (i Identity) WithProfile(p Profile) Identity {
	if p.Nickname != nil {
		nick := *p.Nickname
		i.Nickname = &nick
	}
	if p.Role != "" {
		i.Role = p.Role
	}
	if p.Status != "" {
		i.Status = p.Status
	}
	return i
}

// ProvisionalIdentity builds an identity from session data alone. Profile
// fields are carried over from cached only when it belongs to the same user.
func ProvisionalIdentity(user AuthUser, cached *Identity) Identity {
	id := Identity{ID: user.ID, Email: user.Email}
	if cached != nil && cached.ID == user.ID {
		id.Role = cached.Role
		id.Status = cached.Status
		if cached.Nickname != nil {
			nick := *cached.Nickname
			id.Nickname = &nick
		}
	}
	return id
}

// ScanProfile scans a "Users" row selected with ProfileColumns
func ScanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var role, status *string
	if err := row.Scan(&p.Nickname, &role, &status); err != nil {
		return nil, err
	}
	if role != nil {
		p.Role = *role
	}
	if status != nil {
		p.Status = *status
	}
	return &p, nil
}
