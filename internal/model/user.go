package model

import "time"

type Preferences struct {
	Theme         string `json:"theme"`
	Notifications bool   `json:"notifications"`
}

func DefaultPreferences() Preferences {
	return Preferences{Theme: "light", Notifications: true}
}

type User struct {
	ID                int64       `json:"id"`
	Name              string      `json:"name"`
	Email             string      `json:"email"`
	PasswordHash      string      `json:"-"`
	Preferences       Preferences `json:"preferences"`
	GmailAccessToken  string      `json:"-"`
	GmailRefreshToken string      `json:"-"`
	GmailEmail        string      `json:"gmailEmail,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// GmailConnected reports whether the user has completed the Gmail OAuth flow.
func (u *User) GmailConnected() bool {
	return u.GmailRefreshToken != ""
}

// PublicUser is the serialized form returned by the auth endpoints.
type PublicUser struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Preferences    *Preferences `json:"preferences,omitempty"`
	GmailConnected *bool        `json:"gmailConnected,omitempty"`
}

// GmailCredentials is the stored OAuth token pair for a connected Gmail account.
type GmailCredentials struct {
	AccessToken  string
	RefreshToken string
}

func (u *User) Credentials() GmailCredentials {
	return GmailCredentials{AccessToken: u.GmailAccessToken, RefreshToken: u.GmailRefreshToken}
}
