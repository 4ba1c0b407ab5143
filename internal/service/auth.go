package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/authsvc/internal/events"
	"github.com/Skotchmaster/authsvc/internal/logging"
	"github.com/Skotchmaster/authsvc/internal/models"
	"github.com/Skotchmaster/authsvc/internal/repo"
	"github.com/Skotchmaster/authsvc/internal/tokens"
)

const WarnActivationMailNotSent = "activation_mail_not_sent"

type Options struct {
	// APIURL prefixes activation links: {APIURL}/api/user/activate/{link}.
	APIURL string
	// ActivationConsume clears the activation link after the first successful use.
	ActivationConsume bool
	// ActivationTTL > 0 rejects links older than this for accounts not yet active.
	ActivationTTL time.Duration
	// RequireActivation refuses login to accounts that were never activated.
	RequireActivation bool
}

// AuthService runs registration, activation, login, refresh and logout.
// Events and Directory are optional.
type AuthService struct {
	Users     UserStore
	Sessions  SessionStore
	Codec     *tokens.Codec
	Hasher    PasswordHasher
	Mailer    ActivationMailer
	Events    EventPublisher
	Directory UserDirectory
	Options   Options

	now func() time.Time
}

type RegisterInput struct {
	LastName  string
	FirstName string
	Email     string
	Login     string
	Password  string
}

type LoginInput struct {
	Email    string
	Login    string
	Password string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	User         models.UserView
	Warnings     []string
}

func (s *AuthService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *AuthService) ActivationURL(link string) string {
	return s.Options.APIURL + "/api/user/activate/" + link
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if in.Email == "" || in.Login == "" || in.Password == "" {
		l.Warn("register_error", "status", 400, "reason", "missing email, login or password")
		return nil, ErrValidation
	}

	if _, err := s.Users.FindUserByEmail(ctx, in.Email); err == nil {
		l.Warn("register_error", "status", 409, "reason", "email taken")
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repo.ErrNotFound) {
		l.Error("register_error", "status", 500, "error", err)
		return nil, infra("find user by email", err)
	}
	if _, err := s.Users.FindUserByLogin(ctx, in.Login); err == nil {
		l.Warn("register_error", "status", 409, "reason", "login taken")
		return nil, ErrDuplicateLogin
	} else if !errors.Is(err, repo.ErrNotFound) {
		l.Error("register_error", "status", 500, "error", err)
		return nil, infra("find user by login", err)
	}

	digest, err := s.Hasher.Hash(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, infra("hash password", err)
	}

	user := &models.User{
		ID:             uuid.New(),
		Email:          in.Email,
		Login:          in.Login,
		PasswordHash:   digest,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		ActivationLink: uuid.NewString(),
		Roles:          []string{models.RoleUser},
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicateEmail):
			l.Warn("register_error", "status", 409, "reason", "email taken")
			return nil, ErrDuplicateEmail
		case errors.Is(err, repo.ErrDuplicateLogin):
			l.Warn("register_error", "status", 409, "reason", "login taken")
			return nil, ErrDuplicateLogin
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, infra("create user", err)
	}

	res, err := s.issue(ctx, user)
	if err != nil {
		// The account must not outlive a failed session write.
		if delErr := s.Users.DeleteUser(ctx, user.ID); delErr != nil {
			l.Error("register_rollback_failed", "user_id", user.ID, "error", delErr)
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, err
	}

	if err := s.Mailer.SendActivationMail(ctx, user.Email, s.ActivationURL(user.ActivationLink)); err != nil {
		l.Warn("activation mail not sent", "user_id", user.ID, "error", err)
		res.Warnings = append(res.Warnings, WarnActivationMailNotSent)
	}

	publish(ctx, s.Events, events.TypeUserRegistered, user, "")
	index(ctx, s.Directory, user)

	l.Info("register_successful", "user_id", user.ID)
	return res, nil
}

func (s *AuthService) Activate(ctx context.Context, link string) error {
	l := logging.FromContext(ctx).With("svc", "auth.activate")

	if link == "" {
		return ErrInvalidActivationLink
	}

	user, err := s.Users.FindUserByActivationLink(ctx, link)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("activate_error", "status", 400, "reason", "unknown link")
			return ErrInvalidActivationLink
		}
		l.Error("activate_error", "status", 500, "error", err)
		return infra("find user by activation link", err)
	}

	wasActive := user.IsActivated
	if !wasActive && s.Options.ActivationTTL > 0 && s.clock().After(user.CreatedAt.Add(s.Options.ActivationTTL)) {
		l.Warn("activate_error", "status", 400, "reason", "link expired", "user_id", user.ID)
		return ErrInvalidActivationLink
	}

	user.IsActivated = true
	if s.Options.ActivationConsume {
		user.ActivationLink = ""
	}
	if err := s.Users.SaveActivation(ctx, user); err != nil {
		l.Error("activate_error", "status", 500, "error", err)
		return infra("save activation", err)
	}

	if !wasActive {
		publish(ctx, s.Events, events.TypeUserActivated, user, "")
		index(ctx, s.Directory, user)
		l.Info("activate_successful", "user_id", user.ID)
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	if in.Password == "" || (in.Email == "" && in.Login == "") {
		l.Warn("login_error", "status", 400, "reason", "missing identity or password")
		return nil, ErrValidation
	}

	var (
		user *models.User
		err  error
	)
	if in.Email != "" {
		user, err = s.Users.FindUserByEmail(ctx, in.Email)
	} else {
		user, err = s.Users.FindUserByLogin(ctx, in.Login)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("login_error", "status", 404, "reason", "user not found")
			return nil, ErrUserNotFound
		}
		l.Error("login_error", "status", 500, "error", err)
		return nil, infra("find user", err)
	}

	if !s.Hasher.Verify(in.Password, user.PasswordHash) {
		l.Warn("login_error", "status", 400, "reason", "invalid password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if s.Options.RequireActivation && !user.IsActivated {
		l.Warn("login_error", "status", 403, "reason", "not activated", "user_id", user.ID)
		return nil, ErrNotActivated
	}

	res, err := s.issue(ctx, user)
	if err != nil {
		l.Error("login_error", "status", 500, "error", err)
		return nil, err
	}

	publish(ctx, s.Events, events.TypeUserLoggedIn, user, "")
	l.Info("login_successful", "user_id", user.ID)
	return res, nil
}

// Refresh trades a refresh token for a new pair. The token has to verify and also still be
// the stored session of its user; a superseded or logged-out token is rejected.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if refreshToken == "" {
		l.Warn("refresh_error", "status", 401, "reason", "missing token")
		return nil, ErrUnauthorized
	}

	claims, err := s.Codec.VerifyRefresh(refreshToken)
	if err != nil {
		l.Warn("refresh_error", "status", 401, "reason", "invalid token", "error", err)
		return nil, errors.Join(ErrUnauthorized, err)
	}

	session, err := s.Sessions.FindSessionByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("refresh_error", "status", 401, "reason", "token not in session store", "user_id", claims.Subject)
			return nil, ErrUnauthorized
		}
		l.Error("refresh_error", "status", 500, "error", err)
		return nil, infra("find session", err)
	}
	if session.UserID.String() != claims.Subject {
		l.Warn("refresh_error", "status", 401, "reason", "subject mismatch", "user_id", claims.Subject)
		return nil, ErrUnauthorized
	}

	user, err := s.Users.FindUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("refresh_error", "status", 401, "reason", "user gone", "user_id", session.UserID)
			return nil, ErrUnauthorized
		}
		l.Error("refresh_error", "status", 500, "error", err)
		return nil, infra("find user", err)
	}

	pair, err := s.Codec.Mint(claimsFor(user))
	if err != nil {
		l.Error("refresh_error", "status", 500, "error", err)
		return nil, infra("mint tokens", err)
	}

	if err := s.Sessions.RotateSession(ctx, user.ID, refreshToken, pair.RefreshToken, pair.RefreshExp); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("refresh_error", "status", 401, "reason", "lost rotation race", "user_id", user.ID)
			return nil, ErrUnauthorized
		}
		l.Error("refresh_error", "status", 500, "error", err)
		return nil, infra("rotate session", err)
	}

	l.Info("refresh_successful", "user_id", user.ID)
	return result(pair, user), nil
}

// Logout drops the session holding refreshToken. Unknown or empty tokens remove nothing.
// The token is matched by digest only, so an expired token still ends its session.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (int64, error) {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if refreshToken == "" {
		return 0, nil
	}

	owner := s.sessionOwner(ctx, refreshToken)

	removed, err := s.Sessions.DeleteSessionByToken(ctx, refreshToken)
	if err != nil {
		l.Error("logout_error", "status", 500, "error", err)
		return 0, infra("delete session", err)
	}

	if removed > 0 && owner != nil {
		publish(ctx, s.Events, events.TypeUserLoggedOut, owner, "")
	}

	l.Info("logout_successful", "removed", removed)
	return removed, nil
}

// sessionOwner resolves the user behind a stored refresh token for the logout event.
// Lookup failures only cost event detail.
func (s *AuthService) sessionOwner(ctx context.Context, refreshToken string) *models.User {
	session, err := s.Sessions.FindSessionByToken(ctx, refreshToken)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			logging.FromContext(ctx).Warn("logout session lookup failed", "error", err)
		}
		return nil
	}

	user, err := s.Users.FindUserByID(ctx, session.UserID)
	if err != nil {
		return &models.User{ID: session.UserID}
	}
	return user
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	pair, err := s.Codec.Mint(claimsFor(user))
	if err != nil {
		return nil, infra("mint tokens", err)
	}
	if err := s.Sessions.UpsertSession(ctx, user.ID, pair.RefreshToken, pair.RefreshExp); err != nil {
		return nil, infra("upsert session", err)
	}
	return result(pair, user), nil
}

func claimsFor(user *models.User) tokens.Claims {
	return tokens.Claims{
		Subject:   user.ID.String(),
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Roles:     append([]string(nil), user.Roles...),
	}
}

func result(pair tokens.Pair, user *models.User) *AuthResult {
	return &AuthResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		AccessExp:    pair.AccessExp,
		RefreshExp:   pair.RefreshExp,
		User:         user.View(),
	}
}

func publish(ctx context.Context, p EventPublisher, typ string, user *models.User, role string) {
	if p == nil {
		return
	}
	err := p.Publish(ctx, events.Event{
		Type:   typ,
		UserID: user.ID.String(),
		Email:  user.Email,
		Login:  user.Login,
		Role:   role,
		At:     time.Now().UTC(),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("event not published", "type", typ, "user_id", user.ID, "error", err)
	}
}

func index(ctx context.Context, d UserDirectory, user *models.User) {
	if d == nil {
		return
	}
	if err := d.Index(ctx, user.View()); err != nil {
		logging.FromContext(ctx).Warn("user not indexed", "user_id", user.ID, "error", err)
	}
}
