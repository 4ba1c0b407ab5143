package integration

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Skotchmaster/authsvc/internal/db"
	"github.com/Skotchmaster/authsvc/internal/hash"
	"github.com/Skotchmaster/authsvc/internal/mailer"
	"github.com/Skotchmaster/authsvc/internal/migrations"
	"github.com/Skotchmaster/authsvc/internal/models"
	"github.com/Skotchmaster/authsvc/internal/repo"
	"github.com/Skotchmaster/authsvc/internal/service"
	"github.com/Skotchmaster/authsvc/internal/tokens"
)

type integrationEnv struct {
	db  *gorm.DB
	rp  *repo.GormRepo
	svc *service.AuthService
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	dsn := os.Getenv("AUTH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTH_TEST_DATABASE_URL is required for tests")
	}

	ctx := context.Background()
	gdb, err := db.Open(ctx, "postgres", dsn)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, migrations.Up(ctx, sqlDB, "postgres"))

	rp := repo.NewGormRepo(gdb)
	env := &integrationEnv{
		db: gdb,
		rp: rp,
		svc: &service.AuthService{
			Users:    rp,
			Sessions: rp,
			Codec:    tokens.NewCodec([]byte("test-jwt-secret"), []byte("test-refresh-secret"), 15*time.Minute, time.Hour),
			Hasher:   hash.NewBcrypt(bcrypt.MinCost),
			Mailer:   mailer.Log{},
		},
	}

	t.Cleanup(func() {
		truncateTables(t, gdb)
		_ = sqlDB.Close()
	})

	return env
}

func truncateTables(t *testing.T, gdb *gorm.DB) {
	t.Helper()

	require.NoError(t, gdb.Exec("TRUNCATE TABLE refresh_sessions, users CASCADE").Error)
}

func uniqueLogin() string {
	return "u_" + uuid.NewString()[:8]
}

func register(t *testing.T, env *integrationEnv, login string) *service.AuthResult {
	t.Helper()

	res, err := env.svc.Register(context.Background(), service.RegisterInput{
		Email:    login + "@example.com",
		Login:    login,
		Password: "Secret123",
	})
	require.NoError(t, err)
	return res
}

func TestAuthService_Register_SuccessAndConflict(t *testing.T) {
	env := newIntegrationEnv(t)
	login := uniqueLogin()

	res := register(t, env, login)
	assert.Equal(t, []string{models.RoleUser}, res.User.Roles)

	_, err := env.svc.Register(context.Background(), service.RegisterInput{
		Email:    login + "@example.com",
		Login:    "other_" + login,
		Password: "Secret123",
	})
	assert.ErrorIs(t, err, service.ErrDuplicateEmail)

	// Roles survive the round trip through the text[] column.
	u, err := env.rp.FindUserByLogin(context.Background(), login)
	require.NoError(t, err)
	assert.Equal(t, []string{models.RoleUser}, []string(u.Roles))
}

func TestAuthService_Refresh_RotatesAndRejectsReplay(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()

	first := register(t, env, uniqueLogin())

	second, err := env.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = env.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	var count int64
	require.NoError(t, env.db.Model(&models.RefreshSession{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAuthService_ConcurrentRefresh_OneWinner(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()

	res := register(t, env, uniqueLogin())

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Refresh(ctx, res.RefreshToken); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestAuthService_Logout_Idempotent(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()

	res := register(t, env, uniqueLogin())

	removed, err := env.svc.Logout(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = env.svc.Logout(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.EqualValues(t, 0, removed)
}
