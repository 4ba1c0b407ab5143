package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/authsvc/internal/events"
	"github.com/Skotchmaster/authsvc/internal/models"
	"github.com/Skotchmaster/authsvc/internal/repo"
	"github.com/Skotchmaster/authsvc/internal/tokens"
)

func TestAuthService_Register_IssuesSessionAndSendsLink(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Register(ctx, registerInput("ann"))
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	assert.Empty(t, res.Warnings)

	assert.Equal(t, "ann@example.com", res.User.Email)
	assert.Equal(t, "ann", res.User.Login)
	assert.Equal(t, "Ann", res.User.FirstName)
	assert.Equal(t, "Lee", res.User.LastName)
	assert.Equal(t, []string{models.RoleUser}, res.User.Roles)
	assert.False(t, res.User.IsActivated)

	claims, err := env.auth.Codec.VerifyRefresh(res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.Subject)

	assert.Equal(t, int64(1), env.sessionCount(t, res.User.ID))
	session, err := env.repo.FindSessionByToken(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, session.UserID.String())

	stored, err := env.repo.FindUserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123", stored.PasswordHash)
	require.NotEmpty(t, stored.ActivationLink)
	_, err = uuid.Parse(stored.ActivationLink)
	assert.NoError(t, err)

	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, "ann@example.com", env.mailer.sent[0].to)
	assert.Equal(t, "http://localhost:5000/api/user/activate/"+stored.ActivationLink, env.mailer.sent[0].link)

	assert.Equal(t, []string{events.TypeUserRegistered}, env.events.types())
	assert.Contains(t, env.directory.docs, res.User.ID)
}

func TestAuthService_Register_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(in *RegisterInput)
	}{
		{name: "empty email", mutate: func(in *RegisterInput) { in.Email = "" }},
		{name: "empty login", mutate: func(in *RegisterInput) { in.Login = "" }},
		{name: "empty password", mutate: func(in *RegisterInput) { in.Password = "" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			in := registerInput("val")
			tt.mutate(&in)

			res, err := env.auth.Register(ctx, in)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAuthService_Register_Duplicates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "ann")

	sameEmail := registerInput("other")
	sameEmail.Email = "ann@example.com"
	_, err := env.auth.Register(ctx, sameEmail)
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	sameLogin := registerInput("ann")
	sameLogin.Email = "fresh@example.com"
	_, err = env.auth.Register(ctx, sameLogin)
	assert.ErrorIs(t, err, ErrDuplicateLogin)

	users, err := env.repo.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestAuthService_Register_MailFailureIsAWarning(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.mailer.err = errors.New("smtp down")

	res, err := env.auth.Register(context.Background(), registerInput("ann"))
	require.NoError(t, err)
	assert.Equal(t, []string{WarnActivationMailNotSent}, res.Warnings)
	assert.Equal(t, int64(1), env.sessionCount(t, res.User.ID))
}

func TestAuthService_Register_SideEffectFailuresAreIgnored(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.events.err = errors.New("broker down")
	env.directory.err = errors.New("cluster red")

	res, err := env.auth.Register(context.Background(), registerInput("ann"))
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestAuthService_Register_SessionFailureRollsBack(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.auth.Sessions = brokenSessions{SessionStore: env.repo}
	ctx := context.Background()

	res, err := env.auth.Register(ctx, registerInput("ann"))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrInfrastructure)
	assert.ErrorIs(t, err, errStoreDown)

	_, err = env.repo.FindUserByEmail(ctx, "ann@example.com")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.Empty(t, env.mailer.sent)
}

func activationLink(t *testing.T, env *testEnv, email string) string {
	t.Helper()
	u, err := env.repo.FindUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return u.ActivationLink
}

func TestAuthService_Activate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "ann")
	link := activationLink(t, env, "ann@example.com")

	assert.ErrorIs(t, env.auth.Activate(ctx, ""), ErrInvalidActivationLink)
	assert.ErrorIs(t, env.auth.Activate(ctx, uuid.NewString()), ErrInvalidActivationLink)

	require.NoError(t, env.auth.Activate(ctx, link))
	require.NoError(t, env.auth.Activate(ctx, link))

	u, err := env.repo.FindUserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.True(t, u.IsActivated)
	assert.Equal(t, link, u.ActivationLink)

	assert.Equal(t, []string{events.TypeUserRegistered, events.TypeUserActivated}, env.events.types())
}

func TestAuthService_Activate_ConsumeLink(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.auth.Options.ActivationConsume = true
	ctx := context.Background()
	env.register(t, "ann")
	link := activationLink(t, env, "ann@example.com")

	require.NoError(t, env.auth.Activate(ctx, link))
	assert.ErrorIs(t, env.auth.Activate(ctx, link), ErrInvalidActivationLink)

	u, err := env.repo.FindUserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.True(t, u.IsActivated)
}

func TestAuthService_Activate_ExpiredLink(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.auth.Options.ActivationTTL = time.Hour
	ctx := context.Background()
	env.register(t, "ann")
	link := activationLink(t, env, "ann@example.com")

	env.auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.ErrorIs(t, env.auth.Activate(ctx, link), ErrInvalidActivationLink)

	env.auth.now = nil
	require.NoError(t, env.auth.Activate(ctx, link))
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "ann")

	byEmail, err := env.auth.Login(ctx, LoginInput{Email: "ann@example.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, byEmail.User.ID)
	assert.NotEqual(t, reg.RefreshToken, byEmail.RefreshToken)

	byLogin, err := env.auth.Login(ctx, LoginInput{Login: "ann", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, byLogin.User.ID)

	assert.Equal(t, int64(1), env.sessionCount(t, reg.User.ID))

	access, err := env.auth.Codec.VerifyAccess(byLogin.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", access.Email)
	assert.Equal(t, []string{models.RoleUser}, access.Roles)
}

func TestAuthService_Login_Errors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "ann")

	tests := []struct {
		name string
		in   LoginInput
		want error
	}{
		{name: "no identity", in: LoginInput{Password: "Secret123"}, want: ErrValidation},
		{name: "no password", in: LoginInput{Email: "ann@example.com"}, want: ErrValidation},
		{name: "unknown email", in: LoginInput{Email: "bob@example.com", Password: "Secret123"}, want: ErrUserNotFound},
		{name: "unknown login", in: LoginInput{Login: "bob", Password: "Secret123"}, want: ErrUserNotFound},
		{name: "wrong password", in: LoginInput{Email: "ann@example.com", Password: "secret123"}, want: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.auth.Login(ctx, tt.in)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuthService_Login_RequireActivation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.auth.Options.RequireActivation = true
	ctx := context.Background()
	env.register(t, "ann")
	in := LoginInput{Email: "ann@example.com", Password: "Secret123"}

	_, err := env.auth.Login(ctx, in)
	assert.ErrorIs(t, err, ErrNotActivated)

	require.NoError(t, env.auth.Activate(ctx, activationLink(t, env, "ann@example.com")))
	_, err = env.auth.Login(ctx, in)
	assert.NoError(t, err)
}

func TestAuthService_Refresh_Rejects(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "ann")

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "garbage", token: "not-a-valid-jwt"},
		{name: "access token", token: reg.AccessToken},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.auth.Refresh(ctx, tt.token)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestAuthService_Refresh_SupersededTokensFail(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "ann")
	in := LoginInput{Email: "ann@example.com", Password: "Secret123"}

	device1, err := env.auth.Login(ctx, in)
	require.NoError(t, err)
	device2, err := env.auth.Login(ctx, in)
	require.NoError(t, err)

	_, err = env.auth.Refresh(ctx, device1.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	t3, err := env.auth.Refresh(ctx, device2.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, device2.RefreshToken, t3.RefreshToken)
	assert.Equal(t, "ann", t3.User.Login)

	_, err = env.auth.Refresh(ctx, device2.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.auth.Refresh(ctx, t3.RefreshToken)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), env.sessionCount(t, t3.User.ID))
}

func TestAuthService_Refresh_ReloadsUser(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "ann")

	id := uuid.MustParse(reg.User.ID)
	_, err := env.users.GrantRole(ctx, id, models.RoleAdmin)
	require.NoError(t, err)

	res, err := env.auth.Refresh(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{models.RoleUser, models.RoleAdmin}, res.User.Roles)

	access, err := env.auth.Codec.VerifyAccess(res.AccessToken)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{models.RoleUser, models.RoleAdmin}, access.Roles)

	require.NoError(t, env.repo.DeleteUser(ctx, id))
	_, err = env.auth.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthService_Refresh_ConcurrentUseOfOneToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "ann")

	const n = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.auth.Refresh(ctx, reg.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			assert.ErrorIs(t, err, ErrUnauthorized)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, int64(1), env.sessionCount(t, reg.User.ID))
}

func TestAuthService_Logout(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "ann")

	removed, err := env.auth.Logout(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, int64(0), env.sessionCount(t, reg.User.ID))

	removed, err = env.auth.Logout(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	removed, err = env.auth.Logout(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	_, err = env.auth.Refresh(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, []string{events.TypeUserRegistered, events.TypeUserLoggedOut}, env.events.types())
}

func TestAuthService_Logout_EventCarriesAccount(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "ann")

	_, err := env.auth.Logout(ctx, reg.RefreshToken)
	require.NoError(t, err)

	env.events.mu.Lock()
	last := env.events.events[len(env.events.events)-1]
	env.events.mu.Unlock()
	assert.Equal(t, events.TypeUserLoggedOut, last.Type)
	assert.Equal(t, reg.User.ID, last.UserID)
	assert.Equal(t, "ann", last.Login)
	assert.Equal(t, "ann@example.com", last.Email)
}

func TestAuthService_Logout_ExpiredTokenEndsSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "ann")

	// Same keys, refresh tokens born expired.
	stale := tokens.NewCodec([]byte("test-access-secret"), []byte("test-refresh-secret"), time.Minute, -time.Minute)
	pair, err := stale.Mint(tokens.Claims{Subject: reg.User.ID, Email: reg.User.Email})
	require.NoError(t, err)
	_, err = env.auth.Codec.VerifyRefresh(pair.RefreshToken)
	require.ErrorIs(t, err, tokens.ErrTokenExpired)

	userID := uuid.MustParse(reg.User.ID)
	require.NoError(t, env.repo.UpsertSession(ctx, userID, pair.RefreshToken, time.Now().Add(time.Hour)))

	removed, err := env.auth.Logout(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, int64(0), env.sessionCount(t, reg.User.ID))

	env.events.mu.Lock()
	last := env.events.events[len(env.events.events)-1]
	env.events.mu.Unlock()
	assert.Equal(t, events.TypeUserLoggedOut, last.Type)
	assert.Equal(t, "ann", last.Login)
}

func TestAuthService_ActivationURL(t *testing.T) {
	t.Parallel()

	s := &AuthService{Options: Options{APIURL: "https://auth.example.com"}}
	got := s.ActivationURL("abc")
	assert.True(t, strings.HasSuffix(got, "/api/user/activate/abc"))
	assert.Equal(t, "https://auth.example.com/api/user/activate/abc", got)
}
