package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"careerpath-api/internal/domain"
	"careerpath-api/internal/repository"
)

const (
	ModeProtect  = "protect"
	ModeOptional = "optional"
	ModeRestrict = "restrict"

	bearerPrefix  = "Bearer "
	ginAccountKey = "auth.account"
)

// AccountFinder resolves the subject of a verified token. It must return an
// error wrapping repository.ErrNotFound when no active account matches.
type AccountFinder interface {
	FindActiveByID(ctx context.Context, id string) (*domain.Account, error)
}

// DecisionRecorder observes every authorization outcome.
type DecisionRecorder interface {
	RecordAuthDecision(mode string, reason Reason)
}

// Authorizer gates protected routes. It keeps no per-request state.
type Authorizer struct {
	issuer   *Issuer
	accounts AccountFinder
	logger   *logrus.Logger
	recorder DecisionRecorder
}

func NewAuthorizer(issuer *Issuer, accounts AccountFinder, logger *logrus.Logger, recorder DecisionRecorder) *Authorizer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Authorizer{
		issuer:   issuer,
		accounts: accounts,
		logger:   logger,
		recorder: recorder,
	}
}

// Authenticate runs extract, verify, resolve and the password-change check
// for the raw Authorization header value. Failures are always *Error.
func (a *Authorizer) Authenticate(ctx context.Context, header string) (*domain.Account, error) {
	token, ok := bearerToken(header)
	if !ok {
		return nil, notAuthenticated(ReasonNoToken, nil)
	}

	result, err := a.issuer.Verify(token)
	if err != nil {
		return nil, internal(err)
	}
	switch result.Outcome {
	case OutcomeValid:
	case OutcomeExpired:
		return nil, notAuthenticated(ReasonTokenExpired, nil)
	default:
		return nil, notAuthenticated(ReasonInvalidToken, nil)
	}

	account, err := a.accounts.FindActiveByID(ctx, result.Claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notAuthenticated(ReasonAccountNotFound, nil)
		}
		return nil, internal(err)
	}
	if account == nil {
		return nil, notAuthenticated(ReasonAccountNotFound, nil)
	}

	if account.ChangedPasswordAfter(result.Claims.IssuedAt.Unix()) {
		return nil, notAuthenticated(ReasonPasswordChanged, nil)
	}
	return account, nil
}

// Protect rejects the request unless a valid token resolves to a live account.
func (a *Authorizer) Protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := a.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			a.reject(c, ModeProtect, err)
			return
		}
		a.record(ModeProtect, ReasonAuthenticated)
		attach(c, account)
		c.Next()
	}
}

// Optional attaches the account when every check passes and otherwise lets
// the request through anonymously.
func (a *Authorizer) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := a.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			if authErr, ok := AsError(err); ok && authErr.Kind == KindInternal {
				a.logger.WithError(authErr.Err).WithField("path", c.FullPath()).
					Warn("optional auth failed, continuing anonymously")
			}
			a.record(ModeOptional, ReasonAnonymous)
			c.Next()
			return
		}
		a.record(ModeOptional, ReasonAuthenticated)
		attach(c, account)
		c.Next()
	}
}

// RestrictTo allows only accounts whose role is listed. It expects Protect
// to have run earlier in the chain.
func (a *Authorizer) RestrictTo(roles ...domain.Role) gin.HandlerFunc {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		account, ok := AccountFromGin(c)
		if !ok {
			a.reject(c, ModeRestrict, notAuthenticated(ReasonNoToken, nil))
			return
		}
		if _, ok := allowed[account.Role]; !ok {
			a.reject(c, ModeRestrict, forbidden())
			return
		}
		c.Next()
	}
}

func (a *Authorizer) reject(c *gin.Context, mode string, err error) {
	authErr, ok := AsError(err)
	if !ok {
		authErr = internal(err)
	}
	a.record(mode, authErr.Reason)

	entry := a.logger.WithFields(logrus.Fields{
		"mode":   mode,
		"reason": authErr.Reason,
		"path":   c.FullPath(),
	})
	if authErr.Kind == KindInternal {
		entry.WithError(authErr.Err).Error("authorization failed")
	} else {
		entry.Debug("request rejected")
	}

	c.AbortWithStatusJSON(authErr.StatusCode(), gin.H{
		"status": statusLabel(authErr.StatusCode()),
		"reason": authErr.Reason,
		"error":  authErr.Message,
	})
}

func (a *Authorizer) record(mode string, reason Reason) {
	if a.recorder != nil {
		a.recorder.RecordAuthDecision(mode, reason)
	}
}

func statusLabel(code int) string {
	if code >= http.StatusInternalServerError {
		return "error"
	}
	return "fail"
}

func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type accountContextKey struct{}

// WithAccount stores the authenticated account on ctx.
func WithAccount(ctx context.Context, account *domain.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// AccountFromContext returns the account attached by the authorizer, if any.
func AccountFromContext(ctx context.Context) (*domain.Account, bool) {
	account, ok := ctx.Value(accountContextKey{}).(*domain.Account)
	return account, ok && account != nil
}

// AccountFromGin is AccountFromContext for gin handlers.
func AccountFromGin(c *gin.Context) (*domain.Account, bool) {
	if v, ok := c.Get(ginAccountKey); ok {
		if account, ok := v.(*domain.Account); ok && account != nil {
			return account, true
		}
	}
	return AccountFromContext(c.Request.Context())
}

func attach(c *gin.Context, account *domain.Account) {
	c.Set(ginAccountKey, account)
	c.Request = c.Request.WithContext(WithAccount(c.Request.Context(), account))
}
