package service

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/authsvc/internal/events"
	"github.com/Skotchmaster/authsvc/internal/logging"
	"github.com/Skotchmaster/authsvc/internal/models"
	"github.com/Skotchmaster/authsvc/internal/repo"
)

var roleName = regexp.MustCompile(`^[A-Z][A-Z_]{1,31}$`)

func NormalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

// UserService covers account administration: listing, search and role assignment.
type UserService struct {
	Users     UserStore
	Hasher    PasswordHasher
	Events    EventPublisher
	Directory UserDirectory
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.UserView, error) {
	users, err := s.Users.ListUsers(ctx)
	if err != nil {
		logging.FromContext(ctx).With("svc", "users.list").Error("list_error", "status", 500, "error", err)
		return nil, infra("list users", err)
	}
	views := make([]models.UserView, len(users))
	for i := range users {
		views[i] = users[i].View()
	}
	return views, nil
}

func (s *UserService) SearchUsers(ctx context.Context, query string, from, size int) (int64, []models.UserView, error) {
	if s.Directory == nil {
		return 0, nil, ErrSearchUnavailable
	}
	if strings.TrimSpace(query) == "" {
		return 0, nil, ErrValidation
	}
	total, users, err := s.Directory.Search(ctx, query, from, size)
	if err != nil {
		logging.FromContext(ctx).With("svc", "users.search").Error("search_error", "status", 500, "error", err)
		return 0, nil, infra("search users", err)
	}
	return total, users, nil
}

func (s *UserService) GrantRole(ctx context.Context, id uuid.UUID, role string) (*models.UserView, error) {
	return s.changeRole(ctx, id, role, true)
}

func (s *UserService) RevokeRole(ctx context.Context, id uuid.UUID, role string) (*models.UserView, error) {
	return s.changeRole(ctx, id, role, false)
}

func (s *UserService) changeRole(ctx context.Context, id uuid.UUID, role string, grant bool) (*models.UserView, error) {
	l := logging.FromContext(ctx).With("svc", "users.role", "user_id", id, "grant", grant)

	role = NormalizeRole(role)
	if !roleName.MatchString(role) {
		l.Warn("role_error", "status", 400, "reason", "bad role name")
		return nil, ErrValidation
	}

	user, err := s.Users.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		l.Error("role_error", "status", 500, "error", err)
		return nil, infra("find user", err)
	}

	has := user.HasRole(role)
	switch {
	case grant && has, !grant && !has:
		view := user.View()
		return &view, nil
	case grant:
		user.Roles = append(user.Roles, role)
	default:
		user.Roles = slices.DeleteFunc(user.Roles, func(r string) bool { return r == role })
	}

	if err := s.Users.SaveRoles(ctx, user); err != nil {
		l.Error("role_error", "status", 500, "error", err)
		return nil, infra("save roles", err)
	}

	typ := events.TypeRoleRevoked
	if grant {
		typ = events.TypeRoleGranted
	}
	publish(ctx, s.Events, typ, user, role)
	index(ctx, s.Directory, user)

	l.Info("role_changed", "role", role)
	view := user.View()
	return &view, nil
}

// CreateAdmin stores an already activated account holding USER and ADMIN.
func (s *UserService) CreateAdmin(ctx context.Context, in RegisterInput) (*models.UserView, error) {
	if in.Email == "" || in.Login == "" || in.Password == "" {
		return nil, ErrValidation
	}

	digest, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, infra("hash password", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        in.Email,
		Login:        in.Login,
		PasswordHash: digest,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActivated:  true,
		Roles:        []string{models.RoleUser, models.RoleAdmin},
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicateEmail):
			return nil, ErrDuplicateEmail
		case errors.Is(err, repo.ErrDuplicateLogin):
			return nil, ErrDuplicateLogin
		}
		return nil, infra("create user", err)
	}

	index(ctx, s.Directory, user)
	view := user.View()
	return &view, nil
}
