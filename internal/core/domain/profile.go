package domain

// Profile is the durable per-user row in the profiles table.
type Profile struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
	Bio       *string `json:"bio"`
}

const fallbackIDLen = 8

// DefaultUsername picks a username for an identity: display name, then email
// local part, then "user_" plus a truncated id.
func DefaultUsername(id Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	if local := EmailLocalPart(id.Email); local != "" {
		return local
	}
	short := id.ID
	if len(short) > fallbackIDLen {
		short = short[:fallbackIDLen]
	}
	return "user_" + short
}

// NewProfileFor builds the initial profile row for an identity.
func NewProfileFor(id Identity) Profile {
	p := Profile{
		ID:        id.ID,
		Username:  DefaultUsername(id),
		AvatarURL: id.AvatarURL,
	}
	if id.FullName != "" {
		fullName := id.FullName
		p.FullName = &fullName
	}
	return p
}
