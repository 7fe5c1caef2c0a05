package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"careerpath-api/internal/auth"
	"careerpath-api/internal/domain"
	"careerpath-api/internal/mailer"
	"careerpath-api/internal/repository/sqlite"
	"careerpath-api/internal/service"
)

type noopQueue struct{}

func (noopQueue) Enqueue(context.Context, mailer.Message) error { return nil }

type testEnv struct {
	accounts service.AccountService
	issuer   *auth.Issuer
}

func newTestEnv(t *testing.T, withIssuer bool) *testEnv {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "careerpath.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := sqlite.NewAccountRepository(db)
	require.NoError(t, repo.Init(context.Background()))

	env := &testEnv{
		accounts: service.NewAccountService(service.AccountConfig{
			ClientURL:  "http://localhost:3000",
			BcryptCost: bcrypt.MinCost,
		}, repo, noopQueue{}),
	}
	if withIssuer {
		env.issuer, err = auth.NewIssuer(auth.IssuerConfig{
			Secret:    "cli-test-secret",
			TokenTTL:  time.Hour,
			CookieTTL: time.Hour,
		})
		require.NoError(t, err)
	}
	return env
}

func (e *testEnv) factory(context.Context, *logrus.Logger) (*App, error) {
	return &App{Accounts: e.accounts, Issuer: e.issuer, Close: func() {}}, nil
}

func run(t *testing.T, env *testEnv, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(env.factory)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return strings.TrimSpace(out.String()), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand(nil)
	want := map[string]bool{"create-admin": false, "set-role": false, "deactivate": false, "issue-token": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		assert.True(t, found, "subcommand %q not registered", name)
	}
}

func TestCreateAdmin(t *testing.T) {
	env := newTestEnv(t, false)

	id, err := run(t, env, "create-admin", "--email", "root@example.com", "--password", "supersecret")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	account, err := env.accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, account.Role)
	assert.Equal(t, "root@example.com", account.Email)
	assert.True(t, account.Active)
}

func TestCreateAdminRequiresFlags(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := run(t, env, "create-admin", "--email", "root@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestCreateAdminRejectsShortPassword(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := run(t, env, "create-admin", "--email", "root@example.com", "--password", "short")
	require.Error(t, err)
}

func TestSetRoleAndDeactivate(t *testing.T) {
	env := newTestEnv(t, false)
	id, err := run(t, env, "create-admin", "--email", "ops@example.com", "--password", "supersecret")
	require.NoError(t, err)

	out, err := run(t, env, "set-role", id, "user")
	require.NoError(t, err)
	assert.Equal(t, id+" is now user", out)

	_, err = run(t, env, "set-role", id, "superuser")
	require.ErrorIs(t, err, service.ErrInvalidRole)

	out, err = run(t, env, "deactivate", id)
	require.NoError(t, err)
	assert.Equal(t, id+" deactivated", out)

	_, err = env.accounts.FindActiveByID(context.Background(), id)
	require.Error(t, err)
}

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t, true)
	id, err := run(t, env, "create-admin", "--email", "tok@example.com", "--password", "supersecret")
	require.NoError(t, err)

	token, err := run(t, env, "issue-token", id)
	require.NoError(t, err)

	v, err := env.issuer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeValid, v.Outcome)
	assert.Equal(t, id, v.Claims.Subject)

	_, err = run(t, env, "deactivate", id)
	require.NoError(t, err)
	_, err = run(t, env, "issue-token", id)
	require.Error(t, err)
}

func TestIssueTokenWithoutSecret(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := run(t, env, "issue-token", "anything")
	require.EqualError(t, err, "JWT_SECRET is not configured")
}
