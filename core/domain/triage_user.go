package domain

import (
	"time"

	"triage_server/pkg/apperr"
)

// User - 세션 소유자
type User struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Picture        *string         `json:"picture,omitempty"`
	GmailConnected bool            `json:"gmail_connected"`
	Preferences    UserPreferences `json:"preferences"`
	Goals          []Goal          `json:"goals"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (u *User) Validate() error {
	if u.ID == "" {
		return apperr.MissingField("id")
	}
	if err := u.Preferences.Validate(); err != nil {
		return err
	}
	for i := range u.Goals {
		if err := u.Goals[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
