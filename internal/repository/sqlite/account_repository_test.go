package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerpath-api/internal/domain"
	"careerpath-api/internal/repository"
)

func newTestRepo(t *testing.T) *AccountRepository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewAccountRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func newAccount(id, email string) *domain.Account {
	return &domain.Account{
		ID:           id,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        email,
		PasswordHash: "$2a$12$hash",
		Role:         domain.RoleUser,
		Active:       true,
	}
}

func TestAccountRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := newAccount("u1", "  Ada@Example.COM ")
	acc.Skills = []domain.Skill{{Name: "go", Level: domain.SkillAdvanced}}
	require.NoError(t, repo.Create(ctx, acc))
	assert.Equal(t, "ada@example.com", acc.Email)

	got, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, domain.RoleUser, got.Role)
	assert.True(t, got.Active)
	assert.Nil(t, got.PasswordChangedAt)
	assert.Equal(t, []domain.Skill{{Name: "go", Level: domain.SkillAdvanced}}, got.Skills)
	assert.Empty(t, got.Roadmaps)

	byEmail, err := repo.GetByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)
}

func TestAccountRepository_DuplicateEmail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newAccount("u1", "ada@example.com")))
	err := repo.Create(ctx, newAccount("u2", "ADA@example.com"))
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestAccountRepository_GetActiveByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := newAccount("u1", "ada@example.com")
	require.NoError(t, repo.Create(ctx, acc))

	_, err := repo.GetActiveByID(ctx, "u1")
	require.NoError(t, err)

	acc.Active = false
	require.NoError(t, repo.Update(ctx, acc))

	_, err = repo.GetActiveByID(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetByID(ctx, "u1")
	assert.NoError(t, err)
}

func TestAccountRepository_UpdatePersistsPasswordChange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := newAccount("u1", "ada@example.com")
	require.NoError(t, repo.Create(ctx, acc))

	changed := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	acc.PasswordHash = "$2a$12$other"
	acc.PasswordChangedAt = &changed
	acc.Roadmaps = []domain.RoadmapProgress{{RoadmapID: "frontend", Progress: 40, UpdatedAt: changed}}
	require.NoError(t, repo.Update(ctx, acc))

	got, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got.PasswordChangedAt)
	assert.Equal(t, changed.Unix(), got.PasswordChangedAt.Unix())
	assert.Equal(t, "$2a$12$other", got.PasswordHash)
	require.Len(t, got.Roadmaps, 1)
	assert.Equal(t, 40, got.Roadmaps[0].Progress)
}

func TestAccountRepository_ResetTokenLookupHonoursExpiry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(10 * time.Minute)
	acc := newAccount("u1", "ada@example.com")
	acc.PasswordResetTokenHash = "abc"
	acc.PasswordResetExpiresAt = &expires
	require.NoError(t, repo.Create(ctx, acc))

	got, err := repo.GetByPasswordResetToken(ctx, "abc", now)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = repo.GetByPasswordResetToken(ctx, "abc", expires)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetByPasswordResetToken(ctx, "zzz", now)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetByPasswordResetToken(ctx, "", now)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAccountRepository_VerificationTokenLookup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(24 * time.Hour)
	acc := newAccount("u1", "ada@example.com")
	acc.EmailVerificationTokenHash = "verify"
	acc.EmailVerificationExpiresAt = &expires
	require.NoError(t, repo.Create(ctx, acc))

	got, err := repo.GetByEmailVerificationToken(ctx, "verify", now)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = repo.GetByEmailVerificationToken(ctx, "verify", expires.Add(time.Second))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAccountRepository_Delete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newAccount("u1", "ada@example.com")))
	require.NoError(t, repo.Delete(ctx, "u1"))

	_, err := repo.GetByID(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "u1"), repository.ErrNotFound)
}

func newMockRepo(t *testing.T) (*AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAccountRepository(db), mock
}

func TestAccountRepository_GetByIDSurfacesDBError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`(?s)SELECT.*FROM accounts\s+WHERE id = \?`).
		WithArgs("u1").
		WillReturnError(errors.New("disk I/O error"))

	_, err := repo.GetByID(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetActiveByIDNoRows(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`(?s)SELECT.*FROM accounts\s+WHERE id = \? AND active = 1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetActiveByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_UpdateMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`(?s)UPDATE accounts SET.*WHERE id = \? AND version = \?`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM accounts WHERE id = \?`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	err := repo.Update(context.Background(), newAccount("ghost", "ghost@example.com"))
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_UpdateVersionMismatch(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`(?s)UPDATE accounts SET.*WHERE id = \? AND version = \?`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM accounts WHERE id = \?`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	acc := newAccount("u1", "ada@example.com")
	acc.Version = 3
	err := repo.Update(context.Background(), acc)
	assert.ErrorIs(t, err, repository.ErrStale)
	assert.Equal(t, int64(3), acc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_StaleCopyCannotOverwrite(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newAccount("u1", "ada@example.com")))

	first, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, first.Version, second.Version)

	changed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first.PasswordHash = "$2a$12$rotated"
	first.PasswordChangedAt = &changed
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, second.Version+1, first.Version)

	second.Bio = "written from an old copy"
	assert.ErrorIs(t, repo.Update(ctx, second), repository.ErrStale)

	got, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "$2a$12$rotated", got.PasswordHash)
	require.NotNil(t, got.PasswordChangedAt)
	assert.Empty(t, got.Bio)
	assert.Equal(t, first.Version, got.Version)
}
