package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account represents a CareerPath user that can authenticate against the API.
type Account struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         Role

	// PasswordChangedAt is nil until the credential is rotated after signup.
	PasswordChangedAt *time.Time

	EmailVerified              bool
	EmailVerificationTokenHash string
	EmailVerificationExpiresAt *time.Time
	PasswordResetTokenHash     string
	PasswordResetExpiresAt     *time.Time

	Active bool

	Bio         string
	Location    string
	AvatarKey   string
	Skills      []Skill
	Roadmaps    []RoadmapProgress
	Assessments []AssessmentResult

	CreatedAt time.Time
	UpdatedAt time.Time
	// Version is bumped by every successful write; an update carrying an
	// older version is refused.
	Version int64
}

// FullName joins the display name fields.
func (a *Account) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// ChangedPasswordAfter reports whether the credential was rotated after a
// token issued at issuedAt (unix seconds). Second granularity matches the
// token claims, so a token minted in the same second as the change survives.
func (a *Account) ChangedPasswordAfter(issuedAt int64) bool {
	if a.PasswordChangedAt == nil {
		return false
	}
	return a.PasswordChangedAt.Unix() > issuedAt
}

type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillExpert       SkillLevel = "expert"
)

// Skill is a self-reported competency on the profile.
type Skill struct {
	Name  string     `json:"name"`
	Level SkillLevel `json:"level"`
}

// RoadmapProgress tracks how far an account got through a roadmap.
type RoadmapProgress struct {
	RoadmapID string    `json:"roadmap_id"`
	Progress  int       `json:"progress"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssessmentResult is a stored skill assessment score.
type AssessmentResult struct {
	AssessmentID string    `json:"assessment_id"`
	Score        int       `json:"score"`
	TakenAt      time.Time `json:"taken_at"`
}
