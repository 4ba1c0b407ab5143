package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"       json:"id"`
	Email          string         `gorm:"uniqueIndex;not null"       json:"email"`
	Login          string         `gorm:"uniqueIndex;not null"       json:"login"`
	PasswordHash   string         `gorm:"not null"                   json:"-"`
	FirstName      string         `gorm:"not null"                   json:"firstName"`
	LastName       string         `gorm:"not null"                   json:"lastName"`
	IsActivated    bool           `gorm:"not null;default:false"     json:"isActivated"`
	ActivationLink string         `gorm:"index"                      json:"-"`
	Roles          pq.StringArray `gorm:"type:text[];not null"       json:"roles"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// View is the user as it may leave the service: no digest, no activation link.
func (u *User) View() UserView {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return UserView{
		ID:          u.ID.String(),
		Email:       u.Email,
		LastName:    u.LastName,
		FirstName:   u.FirstName,
		Login:       u.Login,
		Roles:       roles,
		IsActivated: u.IsActivated,
	}
}

type UserView struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	LastName    string   `json:"lastName"`
	FirstName   string   `json:"firstName"`
	Login       string   `json:"login"`
	Roles       []string `json:"roles"`
	IsActivated bool     `json:"isActivated"`
}

// RefreshSession holds the single current refresh token of a user, stored as a SHA-256 digest.
type RefreshSession struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"  json:"user_id"`
	TokenHash string    `gorm:"uniqueIndex;not null"  json:"-"`
	ExpiresAt time.Time `gorm:"not null"              json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
