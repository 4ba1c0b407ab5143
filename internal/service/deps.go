package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/authsvc/internal/events"
	"github.com/Skotchmaster/authsvc/internal/models"
)

// UserStore is the credential store. Lookups return repo.ErrNotFound when nothing matches.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByLogin(ctx context.Context, login string) (*models.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByActivationLink(ctx context.Context, link string) (*models.User, error)
	SaveActivation(ctx context.Context, u *models.User) error
	SaveRoles(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context) ([]models.User, error)
}

// SessionStore keeps at most one refresh token per user.
type SessionStore interface {
	UpsertSession(ctx context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time) error
	RotateSession(ctx context.Context, userID uuid.UUID, oldToken, newToken string, expiresAt time.Time) error
	FindSessionByToken(ctx context.Context, refreshToken string) (*models.RefreshSession, error)
	DeleteSessionByToken(ctx context.Context, refreshToken string) (int64, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

type ActivationMailer interface {
	SendActivationMail(ctx context.Context, to, link string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

type UserDirectory interface {
	Index(ctx context.Context, doc models.UserView) error
	Search(ctx context.Context, query string, from, size int) (int64, []models.UserView, error)
}
