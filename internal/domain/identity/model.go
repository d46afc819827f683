// Package identity holds the user-directory model consumed by the wallet
// layer. Identities are owned by the directory collaborator, never by this
// core.
package identity

// Identity is a platform user as known to the user directory.
type Identity struct {
	AccountID   string `json:"id"`
	Handle      string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}
