package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"careerpath-api/internal/auth"
	"careerpath-api/internal/domain"
	"careerpath-api/internal/mailer"
	"careerpath-api/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	// ErrIncorrectPassword is returned when the current password does not match on change.
	ErrIncorrectPassword = errors.New("your current password is wrong")
	// ErrEmailTaken is returned when attempting to sign up with an existing email.
	ErrEmailTaken = errors.New("email is already registered")
	// ErrTokenInvalid covers unknown, used and expired one-time tokens.
	ErrTokenInvalid    = errors.New("token is invalid or has expired")
	ErrAlreadyVerified = errors.New("email is already verified")
	ErrSkillNotFound   = errors.New("skill not found")
	ErrInvalidRole     = errors.New("invalid role")

	errSkipWrite = errors.New("nothing to write")
)

const (
	DefaultBcryptCost           = 12
	DefaultPasswordResetTTL     = 10 * time.Minute
	DefaultEmailVerificationTTL = 24 * time.Hour

	MailPasswordReset     = "password_reset"
	MailEmailVerification = "email_verification"

	maxWriteAttempts = 5
)

// MailQueue accepts outbound mail for asynchronous delivery.
type MailQueue interface {
	Enqueue(ctx context.Context, msg mailer.Message) error
}

// MailRecorder observes enqueue outcomes.
type MailRecorder interface {
	RecordMail(kind string, err error)
}

// AccountService describes account lifecycle and profile operations.
type AccountService interface {
	Signup(ctx context.Context, in SignupInput) (*domain.Account, error)
	Login(ctx context.Context, email, password string) (*domain.Account, error)
	ChangePassword(ctx context.Context, id, current, next string) (*domain.Account, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, next string) (*domain.Account, error)
	RequestEmailVerification(ctx context.Context, id string) error
	VerifyEmail(ctx context.Context, token string) (*domain.Account, error)

	GetByID(ctx context.Context, id string) (*domain.Account, error)
	FindActiveByID(ctx context.Context, id string) (*domain.Account, error)

	UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (*domain.Account, error)
	AddSkill(ctx context.Context, id string, skill domain.Skill) (*domain.Account, error)
	RemoveSkill(ctx context.Context, id, name string) (*domain.Account, error)
	UpsertRoadmapProgress(ctx context.Context, id, roadmapID string, progress int) (*domain.Account, error)
	RecordAssessment(ctx context.Context, id, assessmentID string, score int) (*domain.Account, error)
	SetAvatar(ctx context.Context, id, key string) (previous string, account *domain.Account, err error)
	Deactivate(ctx context.Context, id string) error
	SetRole(ctx context.Context, id string, role domain.Role) (*domain.Account, error)
}

type AccountConfig struct {
	ClientURL            string
	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration
	BcryptCost           int
	Now                  func() time.Time
	Logger               *logrus.Logger
	Recorder             MailRecorder
}

type accountService struct {
	cfg      AccountConfig
	accounts repository.AccountRepository
	mail     MailQueue
}

func NewAccountService(cfg AccountConfig, accounts repository.AccountRepository, mail MailQueue) AccountService {
	if cfg.PasswordResetTTL <= 0 {
		cfg.PasswordResetTTL = DefaultPasswordResetTTL
	}
	if cfg.EmailVerificationTTL <= 0 {
		cfg.EmailVerificationTTL = DefaultEmailVerificationTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultBcryptCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	cfg.ClientURL = strings.TrimRight(cfg.ClientURL, "/")
	return &accountService{
		cfg:      cfg,
		accounts: accounts,
		mail:     mail,
	}
}

// SignupInput carries the fields accepted at registration.
type SignupInput struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (in SignupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, passwordRules...),
		validation.Field(&in.PasswordConfirm,
			validation.Required,
			validation.By(matches(in.Password, "passwords do not match")),
		),
	)
}

// ProfileUpdate is a partial update; nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
	Location  *string `json:"location"`
}

func (in ProfileUpdate) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FirstName, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&in.LastName, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&in.Bio, validation.Length(0, 1000)),
		validation.Field(&in.Location, validation.Length(0, 200)),
	)
}

// bcrypt ignores input past 72 bytes.
var passwordRules = []validation.Rule{validation.Required, validation.Length(8, 72)}

func matches(want, message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != want {
			return errors.New(message)
		}
		return nil
	}
}

func validatePassword(field, password string) error {
	return validation.Errors{field: validation.Validate(password, passwordRules...)}.Filter()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *accountService) Signup(ctx context.Context, in SignupInput) (*domain.Account, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = normalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	account := &domain.Account{
		ID:           uuid.NewString(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Active:       true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.cfg.Logger.WithField("account_id", account.ID).Info("account created")

	if err := s.sendVerification(ctx, account.ID); err != nil {
		s.cfg.Logger.WithError(err).WithField("account_id", account.ID).
			Warn("could not send verification email after signup")
	}
	return sanitizeAccount(account), nil
}

func (s *accountService) Login(ctx context.Context, email, password string) (*domain.Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !account.Active {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return sanitizeAccount(account), nil
}

func (s *accountService) ChangePassword(ctx context.Context, id, current, next string) (*domain.Account, error) {
	if err := validatePassword("password", next); err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(next)
	if err != nil {
		return nil, err
	}

	account, err := s.mutate(ctx, id, func(a *domain.Account) error {
		if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(current)); err != nil {
			return ErrIncorrectPassword
		}
		s.setPassword(a, hash)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cfg.Logger.WithField("account_id", account.ID).Info("password changed")
	return account, nil
}

func (s *accountService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return validation.Errors{"email": err}
	}

	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		return err
	}
	tokenHash := auth.HashOpaqueToken(token)
	expires := s.cfg.Now().Add(s.cfg.PasswordResetTTL).UTC()

	account, err := s.update(ctx, func() (*domain.Account, error) {
		return s.accounts.GetByEmail(ctx, email)
	}, func(a *domain.Account) error {
		if !a.Active {
			return errSkipWrite
		}
		a.PasswordResetTokenHash = tokenHash
		a.PasswordResetExpiresAt = &expires
		return nil
	})
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, errSkipWrite):
		return nil
	case err != nil:
		return err
	}

	link := fmt.Sprintf("%s/reset-password/%s", s.cfg.ClientURL, token)
	err = s.enqueue(ctx, MailPasswordReset, mailer.Message{
		To:      account.Email,
		Subject: "Your password reset token (valid for " + s.cfg.PasswordResetTTL.String() + ")",
		Body: "Forgot your password? Submit a new password at:\n" + link +
			"\n\nIf you didn't request this, please ignore this email.",
	})
	if err != nil {
		s.clearResetToken(ctx, account.ID, tokenHash)
		return fmt.Errorf("send password reset email: %w", err)
	}
	return nil
}

// clearResetToken withdraws tokenHash unless a newer request replaced it.
func (s *accountService) clearResetToken(ctx context.Context, id, tokenHash string) {
	_, err := s.update(ctx, func() (*domain.Account, error) {
		return s.accounts.GetByID(ctx, id)
	}, func(a *domain.Account) error {
		if a.PasswordResetTokenHash != tokenHash {
			return errSkipWrite
		}
		a.PasswordResetTokenHash = ""
		a.PasswordResetExpiresAt = nil
		return nil
	})
	if err != nil && !errors.Is(err, errSkipWrite) {
		s.cfg.Logger.WithError(err).WithField("account_id", id).Error("clear password reset token")
	}
}

func (s *accountService) ResetPassword(ctx context.Context, token, next string) (*domain.Account, error) {
	if err := validatePassword("password", next); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	hash, err := s.hashPassword(next)
	if err != nil {
		return nil, err
	}

	tokenHash := auth.HashOpaqueToken(token)
	account, err := s.update(ctx, func() (*domain.Account, error) {
		return s.accounts.GetByPasswordResetToken(ctx, tokenHash, s.cfg.Now())
	}, func(a *domain.Account) error {
		if !a.Active {
			return ErrTokenInvalid
		}
		s.setPassword(a, hash)
		a.PasswordResetTokenHash = ""
		a.PasswordResetExpiresAt = nil
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	s.cfg.Logger.WithField("account_id", account.ID).Info("password reset")
	return account, nil
}

func (s *accountService) RequestEmailVerification(ctx context.Context, id string) error {
	return s.sendVerification(ctx, id)
}

func (s *accountService) sendVerification(ctx context.Context, id string) error {
	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		return err
	}
	tokenHash := auth.HashOpaqueToken(token)
	expires := s.cfg.Now().Add(s.cfg.EmailVerificationTTL).UTC()

	account, err := s.mutate(ctx, id, func(a *domain.Account) error {
		if a.EmailVerified {
			return ErrAlreadyVerified
		}
		a.EmailVerificationTokenHash = tokenHash
		a.EmailVerificationExpiresAt = &expires
		return nil
	})
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/verify-email/%s", s.cfg.ClientURL, token)
	return s.enqueue(ctx, MailEmailVerification, mailer.Message{
		To:      account.Email,
		Subject: "Confirm your CareerPath email address",
		Body:    "Welcome to CareerPath, " + account.FirstName + "!\nConfirm your email address at:\n" + link,
	})
}

func (s *accountService) VerifyEmail(ctx context.Context, token string) (*domain.Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	tokenHash := auth.HashOpaqueToken(token)
	account, err := s.update(ctx, func() (*domain.Account, error) {
		return s.accounts.GetByEmailVerificationToken(ctx, tokenHash, s.cfg.Now())
	}, func(a *domain.Account) error {
		a.EmailVerified = true
		a.EmailVerificationTokenHash = ""
		a.EmailVerificationExpiresAt = nil
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	return account, nil
}

func (s *accountService) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.accounts.GetActiveByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeAccount(account), nil
}

// FindActiveByID backs the request authorizer. Inactive accounts are reported
// as repository.ErrNotFound.
func (s *accountService) FindActiveByID(ctx context.Context, id string) (*domain.Account, error) {
	return s.GetByID(ctx, id)
}

func (s *accountService) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (*domain.Account, error) {
	in.FirstName = trimmed(in.FirstName)
	in.LastName = trimmed(in.LastName)
	in.Bio = trimmed(in.Bio)
	in.Location = trimmed(in.Location)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, func(a *domain.Account) error {
		if in.FirstName != nil {
			a.FirstName = *in.FirstName
		}
		if in.LastName != nil {
			a.LastName = *in.LastName
		}
		if in.Bio != nil {
			a.Bio = *in.Bio
		}
		if in.Location != nil {
			a.Location = *in.Location
		}
		return nil
	})
}

func (s *accountService) AddSkill(ctx context.Context, id string, skill domain.Skill) (*domain.Account, error) {
	skill.Name = strings.TrimSpace(skill.Name)
	if skill.Level == "" {
		skill.Level = domain.SkillBeginner
	}
	err := validation.ValidateStruct(&skill,
		validation.Field(&skill.Name, validation.Required, validation.Length(1, 60)),
		validation.Field(&skill.Level, validation.In(
			domain.SkillBeginner, domain.SkillIntermediate, domain.SkillAdvanced, domain.SkillExpert,
		)),
	)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, func(a *domain.Account) error {
		for i := range a.Skills {
			if strings.EqualFold(a.Skills[i].Name, skill.Name) {
				a.Skills[i] = skill
				return nil
			}
		}
		a.Skills = append(a.Skills, skill)
		return nil
	})
}

func (s *accountService) RemoveSkill(ctx context.Context, id, name string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	return s.mutate(ctx, id, func(a *domain.Account) error {
		for i := range a.Skills {
			if strings.EqualFold(a.Skills[i].Name, name) {
				a.Skills = append(a.Skills[:i], a.Skills[i+1:]...)
				return nil
			}
		}
		return ErrSkillNotFound
	})
}

func (s *accountService) UpsertRoadmapProgress(ctx context.Context, id, roadmapID string, progress int) (*domain.Account, error) {
	roadmapID = strings.TrimSpace(roadmapID)
	err := validation.Errors{
		"roadmap_id": validation.Validate(roadmapID, validation.Required, validation.Length(1, 100)),
		"progress":   validation.Validate(progress, validation.Min(0), validation.Max(100)),
	}.Filter()
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now().UTC()
	return s.mutate(ctx, id, func(a *domain.Account) error {
		for i := range a.Roadmaps {
			if a.Roadmaps[i].RoadmapID == roadmapID {
				a.Roadmaps[i].Progress = progress
				a.Roadmaps[i].UpdatedAt = now
				return nil
			}
		}
		a.Roadmaps = append(a.Roadmaps, domain.RoadmapProgress{RoadmapID: roadmapID, Progress: progress, UpdatedAt: now})
		return nil
	})
}

func (s *accountService) RecordAssessment(ctx context.Context, id, assessmentID string, score int) (*domain.Account, error) {
	assessmentID = strings.TrimSpace(assessmentID)
	err := validation.Errors{
		"assessment_id": validation.Validate(assessmentID, validation.Required, validation.Length(1, 100)),
		"score":         validation.Validate(score, validation.Min(0), validation.Max(100)),
	}.Filter()
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now().UTC()
	return s.mutate(ctx, id, func(a *domain.Account) error {
		a.Assessments = append(a.Assessments, domain.AssessmentResult{AssessmentID: assessmentID, Score: score, TakenAt: now})
		return nil
	})
}

// SetAvatar records key as the account avatar and returns the key it replaced.
func (s *accountService) SetAvatar(ctx context.Context, id, key string) (string, *domain.Account, error) {
	var previous string
	account, err := s.mutate(ctx, id, func(a *domain.Account) error {
		previous = a.AvatarKey
		a.AvatarKey = key
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return previous, account, nil
}

func (s *accountService) Deactivate(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, id, func(a *domain.Account) error {
		a.Active = false
		return nil
	})
	if err == nil {
		s.cfg.Logger.WithField("account_id", id).Info("account deactivated")
	}
	return err
}

func (s *accountService) SetRole(ctx context.Context, id string, role domain.Role) (*domain.Account, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	account, err := s.mutate(ctx, id, func(a *domain.Account) error {
		a.Role = role
		return nil
	})
	if err == nil {
		s.cfg.Logger.WithFields(logrus.Fields{"account_id": id, "role": role}).Info("role changed")
	}
	return account, err
}

func (s *accountService) mutate(ctx context.Context, id string, apply func(*domain.Account) error) (*domain.Account, error) {
	return s.update(ctx, func() (*domain.Account, error) {
		return s.accounts.GetActiveByID(ctx, id)
	}, apply)
}

// update reads an account, applies a change and writes it back. When another
// writer got in between, the whole cycle is rerun on a fresh copy so the
// other write is never overwritten.
func (s *accountService) update(ctx context.Context, load func() (*domain.Account, error), apply func(*domain.Account) error) (*domain.Account, error) {
	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		var account *domain.Account
		if account, err = load(); err != nil {
			return nil, err
		}
		if err = apply(account); err != nil {
			return nil, err
		}
		if err = s.accounts.Update(ctx, account); err == nil {
			return sanitizeAccount(account), nil
		}
		if !errors.Is(err, repository.ErrStale) {
			return nil, err
		}
		s.cfg.Logger.WithField("account_id", account.ID).Debug("account changed under write, retrying")
	}
	return nil, err
}

func (s *accountService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *accountService) setPassword(account *domain.Account, hash string) {
	changedAt := s.cfg.Now().UTC()
	account.PasswordHash = hash
	account.PasswordChangedAt = &changedAt
}

func (s *accountService) enqueue(ctx context.Context, kind string, msg mailer.Message) error {
	var err error
	if s.mail == nil {
		err = mailer.ErrStopped
	} else {
		err = s.mail.Enqueue(ctx, msg)
	}
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.RecordMail(kind, err)
	}
	return err
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

// sanitizeAccount returns a copy without credential material. The
// password-changed stamp is kept for the authorizer.
func sanitizeAccount(account *domain.Account) *domain.Account {
	if account == nil {
		return nil
	}
	clean := *account
	clean.PasswordHash = ""
	clean.PasswordResetTokenHash = ""
	clean.PasswordResetExpiresAt = nil
	clean.EmailVerificationTokenHash = ""
	clean.EmailVerificationExpiresAt = nil
	return &clean
}
