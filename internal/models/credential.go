package models

// AuthUser is the trimmed identity projection returned by the OAuth
// exchange and cached alongside the access token.
type AuthUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	HTMLURL   string `json:"htmlUrl"`
}

// Credential is the session-scoped credential pair: an opaque provider
// access token plus the authenticated identity. It is written and read as
// a whole, never partially updated, and must not be logged.
type Credential struct {
	AccessToken string   `json:"accessToken"`
	User        AuthUser `json:"user"`
}
