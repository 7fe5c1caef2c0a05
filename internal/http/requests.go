package http

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"careerpath-api/internal/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r forgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.PasswordConfirm, validation.Required, validation.By(sameAs(r.Password))),
	)
}

type updatePasswordRequest struct {
	PasswordCurrent string `json:"password_current"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (r updatePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PasswordCurrent, validation.Required),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.PasswordConfirm, validation.Required, validation.By(sameAs(r.Password))),
	)
}

type skillRequest struct {
	Name  string            `json:"name"`
	Level domain.SkillLevel `json:"level"`
}

type roadmapRequest struct {
	Progress *int `json:"progress"`
}

func (r roadmapRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Progress, validation.NotNil),
	)
}

type assessmentRequest struct {
	AssessmentID string `json:"assessment_id"`
	Score        *int   `json:"score"`
}

func (r assessmentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AssessmentID, validation.Required),
		validation.Field(&r.Score, validation.NotNil),
	)
}

type roleRequest struct {
	Role domain.Role `json:"role"`
}

func (r roleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In(domain.RoleUser, domain.RoleAdmin)),
	)
}

func sameAs(password string) validation.RuleFunc {
	return func(value interface{}) error {
		if s, _ := value.(string); s != password {
			return errors.New("passwords do not match")
		}
		return nil
	}
}
