package domain

import (
	"strings"
	"time"
)

// SessionUser is the raw user record attached to a backend session.
type SessionUser struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is an authenticated backend session.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         SessionUser `json:"user"`
}

// ExpiresWithin reports whether the session expires before now+margin.
// A zero ExpiresAt never expires.
func (s *Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

// Clone returns a deep copy of s. Nil stays nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User.Metadata != nil {
		c.User.Metadata = make(map[string]any, len(s.User.Metadata))
		for k, v := range s.User.Metadata {
			c.User.Metadata[k] = v
		}
	}
	return &c
}

// Identity is the normalized view of the currently authenticated user.
type Identity struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`

	// FullName is the display name as provided upstream, before falling back
	// to the email local part. Empty when the backend had none.
	FullName string `json:"-"`
}

const (
	metaDisplayName = "display_name"
	metaAvatarURL   = "avatar_url"
)

// NewIdentity derives an Identity from a backend session user.
func NewIdentity(u SessionUser) Identity {
	fullName := metaString(u.Metadata, metaDisplayName)
	display := fullName
	if display == "" {
		display = EmailLocalPart(u.Email)
	}

	id := Identity{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: display,
		FullName:    fullName,
	}
	if avatar := metaString(u.Metadata, metaAvatarURL); avatar != "" {
		id.AvatarURL = &avatar
	}
	return id
}

// Equal reports whether i and o describe the same user with the same
// display fields.
func (i Identity) Equal(o Identity) bool {
	if i.ID != o.ID || i.Email != o.Email || i.DisplayName != o.DisplayName || i.FullName != o.FullName {
		return false
	}
	if i.AvatarURL == nil || o.AvatarURL == nil {
		return i.AvatarURL == o.AvatarURL
	}
	return *i.AvatarURL == *o.AvatarURL
}

// WithDisplayName returns u with name as its display_name metadata, unless u
// already carries one or name is blank. u itself is not modified.
func (u SessionUser) WithDisplayName(name string) SessionUser {
	name = strings.TrimSpace(name)
	if name == "" || metaString(u.Metadata, metaDisplayName) != "" {
		return u
	}
	meta := make(map[string]any, len(u.Metadata)+1)
	for k, v := range u.Metadata {
		meta[k] = v
	}
	meta[metaDisplayName] = name
	u.Metadata = meta
	return u
}

// EmailLocalPart returns the part of an email address before the '@'.
func EmailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	v, _ := meta[key].(string)
	return strings.TrimSpace(v)
}
