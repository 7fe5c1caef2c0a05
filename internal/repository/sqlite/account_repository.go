package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"careerpath-api/internal/domain"
	"careerpath-api/internal/repository"
)

const createAccountsTable = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	password_changed_at DATETIME,
	email_verified INTEGER NOT NULL DEFAULT 0,
	email_verification_token TEXT NOT NULL DEFAULT '',
	email_verification_expires DATETIME,
	password_reset_token TEXT NOT NULL DEFAULT '',
	password_reset_expires DATETIME,
	active INTEGER NOT NULL DEFAULT 1,
	bio TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	avatar_key TEXT NOT NULL DEFAULT '',
	skills TEXT NOT NULL DEFAULT '[]',
	roadmaps TEXT NOT NULL DEFAULT '[]',
	assessments TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	version INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_accounts_reset_token ON accounts(password_reset_token);
CREATE INDEX IF NOT EXISTS idx_accounts_verification_token ON accounts(email_verification_token);
`

const selectAccount = `
SELECT id, first_name, last_name, email, password_hash, role, password_changed_at,
	email_verified, email_verification_token, email_verification_expires,
	password_reset_token, password_reset_expires, active,
	bio, location, avatar_key, skills, roadmaps, assessments,
	created_at, updated_at, version
FROM accounts`

type AccountRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

func (r *AccountRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAccountsTable); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	return nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	now := r.now().UTC()
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	account.CreatedAt = now
	account.UpdatedAt = now
	account.Version = 1

	skills, roadmaps, assessments, err := encodeProfile(account)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO accounts (
	id, first_name, last_name, email, password_hash, role, password_changed_at,
	email_verified, email_verification_token, email_verification_expires,
	password_reset_token, password_reset_expires, active,
	bio, location, avatar_key, skills, roadmaps, assessments,
	created_at, updated_at, version
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.FirstName,
		account.LastName,
		account.Email,
		account.PasswordHash,
		string(account.Role),
		utcPtr(account.PasswordChangedAt),
		account.EmailVerified,
		account.EmailVerificationTokenHash,
		utcPtr(account.EmailVerificationExpiresAt),
		account.PasswordResetTokenHash,
		utcPtr(account.PasswordResetExpiresAt),
		account.Active,
		account.Bio,
		account.Location,
		account.AvatarKey,
		skills,
		roadmaps,
		assessments,
		account.CreatedAt,
		account.UpdatedAt,
		account.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert account %s: %w", account.Email, repository.ErrConflict)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, selectAccount+` WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *AccountRepository) GetActiveByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, selectAccount+` WHERE id = ? AND active = 1`, id)
	return scanAccount(row)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, selectAccount+` WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	)
	return scanAccount(row)
}

func (r *AccountRepository) GetByPasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.Account, error) {
	if tokenHash == "" {
		return nil, repository.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, selectAccount+` WHERE password_reset_token = ?`, tokenHash)
	account, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	if account.PasswordResetExpiresAt == nil || !now.Before(*account.PasswordResetExpiresAt) {
		return nil, repository.ErrNotFound
	}
	return account, nil
}

func (r *AccountRepository) GetByEmailVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*domain.Account, error) {
	if tokenHash == "" {
		return nil, repository.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, selectAccount+` WHERE email_verification_token = ?`, tokenHash)
	account, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	if account.EmailVerificationExpiresAt == nil || !now.Before(*account.EmailVerificationExpiresAt) {
		return nil, repository.ErrNotFound
	}
	return account, nil
}

func (r *AccountRepository) Update(ctx context.Context, account *domain.Account) error {
	email := strings.ToLower(strings.TrimSpace(account.Email))
	updatedAt := r.now().UTC()

	skills, roadmaps, assessments, err := encodeProfile(account)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE accounts SET
	first_name = ?, last_name = ?, email = ?, password_hash = ?, role = ?,
	password_changed_at = ?, email_verified = ?,
	email_verification_token = ?, email_verification_expires = ?,
	password_reset_token = ?, password_reset_expires = ?, active = ?,
	bio = ?, location = ?, avatar_key = ?, skills = ?, roadmaps = ?, assessments = ?,
	updated_at = ?, version = version + 1
WHERE id = ? AND version = ?`,
		account.FirstName,
		account.LastName,
		email,
		account.PasswordHash,
		string(account.Role),
		utcPtr(account.PasswordChangedAt),
		account.EmailVerified,
		account.EmailVerificationTokenHash,
		utcPtr(account.EmailVerificationExpiresAt),
		account.PasswordResetTokenHash,
		utcPtr(account.PasswordResetExpiresAt),
		account.Active,
		account.Bio,
		account.Location,
		account.AvatarKey,
		skills,
		roadmaps,
		assessments,
		updatedAt,
		account.ID,
		account.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update account %s: %w", account.ID, repository.ErrConflict)
		}
		return fmt.Errorf("update account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return r.missingOrStale(ctx, account.ID)
	}

	account.Email = email
	account.UpdatedAt = updatedAt
	account.Version++
	return nil
}

// missingOrStale explains an update that matched no row.
func (r *AccountRepository) missingOrStale(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
	case err != nil:
		return fmt.Errorf("check account %s: %w", id, err)
	}
	return fmt.Errorf("account %s: %w", id, repository.ErrStale)
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func scanAccount(row interface {
	Scan(dest ...any) error
}) (*domain.Account, error) {
	var (
		account                                   domain.Account
		role                                      string
		passwordChangedAt, verifyExpires, resetAt sql.NullTime
		skills, roadmaps, assessments             string
	)
	if err := row.Scan(
		&account.ID,
		&account.FirstName,
		&account.LastName,
		&account.Email,
		&account.PasswordHash,
		&role,
		&passwordChangedAt,
		&account.EmailVerified,
		&account.EmailVerificationTokenHash,
		&verifyExpires,
		&account.PasswordResetTokenHash,
		&resetAt,
		&account.Active,
		&account.Bio,
		&account.Location,
		&account.AvatarKey,
		&skills,
		&roadmaps,
		&assessments,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.Version,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.Role = domain.Role(role)
	account.PasswordChangedAt = nullTimePtr(passwordChangedAt)
	account.EmailVerificationExpiresAt = nullTimePtr(verifyExpires)
	account.PasswordResetExpiresAt = nullTimePtr(resetAt)

	if err := json.Unmarshal([]byte(skills), &account.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	if err := json.Unmarshal([]byte(roadmaps), &account.Roadmaps); err != nil {
		return nil, fmt.Errorf("decode roadmaps: %w", err)
	}
	if err := json.Unmarshal([]byte(assessments), &account.Assessments); err != nil {
		return nil, fmt.Errorf("decode assessments: %w", err)
	}
	return &account, nil
}

func encodeProfile(account *domain.Account) (skills, roadmaps, assessments string, err error) {
	encode := func(name string, v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", name, err)
		}
		if string(b) == "null" {
			return "[]", nil
		}
		return string(b), nil
	}
	if skills, err = encode("skills", account.Skills); err != nil {
		return
	}
	if roadmaps, err = encode("roadmaps", account.Roadmaps); err != nil {
		return
	}
	assessments, err = encode("assessments", account.Assessments)
	return
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
