package models

import "time"

// AuthUser is the user object returned by the auth service
type AuthUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Role             string     `json:"role,omitempty"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
}

// Session is an issued auth session
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"` // unix seconds
	User         AuthUser `json:"user"`
}

// Expiry returns when the access token stops being valid
func (s *Session) Expiry() time.Time {
	if s == nil || s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// ExpiresWithin reports whether the token expires within margin of now.
// Sessions without an expiry never do.
func (s *Session) ExpiresWithin(margin time.Duration, now time.Time) bool {
	exp := s.Expiry()
	if exp.IsZero() {
		return false
	}
	return !now.Add(margin).Before(exp)
}

// Valid reports whether the session carries tokens and a user
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.User.ID != ""
}
