package auth_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerpath-api/internal/auth"
	"careerpath-api/internal/domain"
)

func TestBuildPublicResponse(t *testing.T) {
	changed := epoch.Add(-time.Hour)
	expires := epoch.Add(time.Hour)
	account := &domain.Account{
		ID:                         "u1",
		FirstName:                  "Ada",
		LastName:                   "Lovelace",
		Email:                      "ada@example.com",
		PasswordHash:               "$2a$12$secret-hash",
		Role:                       domain.RoleUser,
		PasswordChangedAt:          &changed,
		PasswordResetTokenHash:     "reset-hash",
		PasswordResetExpiresAt:     &expires,
		EmailVerificationTokenHash: "verify-hash",
		Active:                     true,
		CreatedAt:                  epoch,
		UpdatedAt:                  epoch,
	}

	resp := auth.BuildPublicResponse(account, "jwt-token")
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "jwt-token", resp.Token)
	assert.Equal(t, "u1", resp.Data.User.ID)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	body := string(raw)
	for _, secret := range []string{"secret-hash", "reset-hash", "verify-hash", "password", "active"} {
		assert.NotContains(t, body, secret)
	}

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	user := decoded["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, []any{}, user["skills"])
	assert.Equal(t, "2026-05-01T09:30:00Z", user["created_at"])
}

func TestNewPublicAccount_Nil(t *testing.T) {
	assert.Equal(t, auth.PublicAccount{}, auth.NewPublicAccount(nil))
}
