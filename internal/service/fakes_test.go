package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/authsvc/internal/db/dbtest"
	"github.com/Skotchmaster/authsvc/internal/events"
	"github.com/Skotchmaster/authsvc/internal/hash"
	"github.com/Skotchmaster/authsvc/internal/models"
	"github.com/Skotchmaster/authsvc/internal/repo"
	"github.com/Skotchmaster/authsvc/internal/tokens"
)

type sentMail struct {
	to   string
	link string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendActivationMail(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, link: link})
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fakeDirectory struct {
	mu   sync.Mutex
	docs map[string]models.UserView
	err  error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{docs: map[string]models.UserView{}}
}

func (d *fakeDirectory) Index(_ context.Context, doc models.UserView) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.docs[doc.ID] = doc
	return nil
}

func (d *fakeDirectory) Search(_ context.Context, query string, from, size int) (int64, []models.UserView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return 0, nil, d.err
	}
	var out []models.UserView
	for _, doc := range d.docs {
		if doc.Login == query || doc.Email == query {
			out = append(out, doc)
		}
	}
	return int64(len(out)), out, nil
}

// brokenSessions fails every write.
type brokenSessions struct {
	SessionStore
}

var errStoreDown = errors.New("session store down")

func (brokenSessions) UpsertSession(context.Context, uuid.UUID, string, time.Time) error {
	return errStoreDown
}

type testEnv struct {
	repo      *repo.GormRepo
	auth      *AuthService
	users     *UserService
	mailer    *fakeMailer
	events    *fakePublisher
	directory *fakeDirectory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rp := repo.NewGormRepo(dbtest.New(t))
	hasher := hash.NewBcrypt(bcrypt.MinCost)
	env := &testEnv{
		repo:      rp,
		mailer:    &fakeMailer{},
		events:    &fakePublisher{},
		directory: newFakeDirectory(),
	}
	env.auth = &AuthService{
		Users:     rp,
		Sessions:  rp,
		Codec:     tokens.NewCodec([]byte("test-access-secret"), []byte("test-refresh-secret"), 15*time.Minute, 30*24*time.Hour),
		Hasher:    hasher,
		Mailer:    env.mailer,
		Events:    env.events,
		Directory: env.directory,
		Options:   Options{APIURL: "http://localhost:5000"},
	}
	env.users = &UserService{
		Users:     rp,
		Hasher:    hasher,
		Events:    env.events,
		Directory: env.directory,
	}
	return env
}

func registerInput(login string) RegisterInput {
	return RegisterInput{
		LastName:  "Lee",
		FirstName: "Ann",
		Email:     login + "@example.com",
		Login:     login,
		Password:  "Secret123",
	}
}

func (env *testEnv) register(t *testing.T, login string) *AuthResult {
	t.Helper()
	res, err := env.auth.Register(context.Background(), registerInput(login))
	require.NoError(t, err)
	return res
}

func (env *testEnv) sessionCount(t *testing.T, userID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.repo.DB.Model(&models.RefreshSession{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}
