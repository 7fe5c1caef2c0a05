package auth

import (
	"time"

	"careerpath-api/internal/domain"
)

// PublicAccount is the only shape of an account that leaves the server.
// It has no field for the password hash or the one-time token hashes.
type PublicAccount struct {
	ID            string                    `json:"id"`
	FirstName     string                    `json:"first_name"`
	LastName      string                    `json:"last_name"`
	Email         string                    `json:"email,omitempty"`
	Role          domain.Role               `json:"role"`
	EmailVerified bool                      `json:"email_verified"`
	Bio           string                    `json:"bio"`
	Location      string                    `json:"location"`
	Avatar        string                    `json:"avatar,omitempty"`
	Skills        []domain.Skill            `json:"skills"`
	Roadmaps      []domain.RoadmapProgress  `json:"roadmaps"`
	Assessments   []domain.AssessmentResult `json:"assessments"`
	CreatedAt     string                    `json:"created_at"`
	UpdatedAt     string                    `json:"updated_at"`
}

type PublicData struct {
	User PublicAccount `json:"user"`
}

// PublicResponse accompanies every freshly issued token.
type PublicResponse struct {
	Status string     `json:"status"`
	Token  string     `json:"token"`
	Data   PublicData `json:"data"`
}

// NewPublicAccount copies the presentable fields of account.
func NewPublicAccount(account *domain.Account) PublicAccount {
	if account == nil {
		return PublicAccount{}
	}
	return PublicAccount{
		ID:            account.ID,
		FirstName:     account.FirstName,
		LastName:      account.LastName,
		Email:         account.Email,
		Role:          account.Role,
		EmailVerified: account.EmailVerified,
		Bio:           account.Bio,
		Location:      account.Location,
		Avatar:        account.AvatarKey,
		Skills:        nonNil(account.Skills),
		Roadmaps:      nonNil(account.Roadmaps),
		Assessments:   nonNil(account.Assessments),
		CreatedAt:     account.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     account.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// BuildPublicResponse pairs a token with the sanitized account.
func BuildPublicResponse(account *domain.Account, token string) PublicResponse {
	return PublicResponse{
		Status: "success",
		Token:  token,
		Data:   PublicData{User: NewPublicAccount(account)},
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
