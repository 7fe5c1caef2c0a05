package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName is the cookie carrying the session token in cookie delivery mode.
	CookieName = "token"

	DefaultTokenTTL  = 30 * 24 * time.Hour
	DefaultCookieTTL = 30 * 24 * time.Hour
)

// IssuerConfig is read once at startup and injected into the Issuer.
type IssuerConfig struct {
	Secret        string
	Algorithm     string
	TokenTTL      time.Duration
	CookieTTL     time.Duration
	SecureCookies bool
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// Issuer mints and verifies stateless session tokens.
type Issuer struct {
	secret        []byte
	method        jwt.SigningMethod
	ttl           time.Duration
	cookieTTL     time.Duration
	secureCookies bool
	now           func() time.Time
}

func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	var method jwt.SigningMethod
	switch alg {
	case jwt.SigningMethodHS256.Alg():
		method = jwt.SigningMethodHS256
	case jwt.SigningMethodHS384.Alg():
		method = jwt.SigningMethodHS384
	case jwt.SigningMethodHS512.Alg():
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.Algorithm)
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.CookieTTL <= 0 {
		cfg.CookieTTL = DefaultCookieTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Issuer{
		secret:        []byte(cfg.Secret),
		method:        method,
		ttl:           cfg.TokenTTL,
		cookieTTL:     cfg.CookieTTL,
		secureCookies: cfg.SecureCookies,
		now:           cfg.Now,
	}, nil
}

// Claims is the verified payload of a session token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Outcome int

const (
	OutcomeValid Outcome = iota
	OutcomeExpired
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeExpired:
		return "expired"
	default:
		return "malformed"
	}
}

// Verification is the tagged result of checking a token. Claims is set only
// when Outcome is OutcomeValid.
type Verification struct {
	Outcome Outcome
	Claims  *Claims
}

// Issue signs {sub, iat, exp} for accountID.
func (i *Issuer) Issue(accountID string) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrMissingSecret
	}
	if accountID == "" {
		return "", errors.New("account id is required")
	}

	now := i.now()
	token := jwt.NewWithClaims(i.method, jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry. An iat ahead of the local clock is
// accepted so instances with skewed clocks honour each other's tokens. The
// error return is reserved for failures that are not the token's fault.
func (i *Issuer) Verify(tokenString string) (Verification, error) {
	if len(i.secret) == 0 {
		return Verification{}, ErrMissingSecret
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(i.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Verification{Outcome: OutcomeExpired}, nil
	default:
		return Verification{Outcome: OutcomeMalformed}, nil
	}

	if claims.Subject == "" || claims.IssuedAt == nil {
		return Verification{Outcome: OutcomeMalformed}, nil
	}

	return Verification{
		Outcome: OutcomeValid,
		Claims: &Claims{
			Subject:   claims.Subject,
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		},
	}, nil
}

// SessionCookie wraps token for cookie delivery.
func (i *Issuer) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  i.now().Add(i.cookieTTL),
		HttpOnly: true,
		Secure:   i.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearedCookie overwrites the session cookie with a short-lived placeholder.
func (i *Issuer) ClearedCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "loggedout",
		Path:     "/",
		Expires:  i.now().Add(10 * time.Second),
		HttpOnly: true,
		Secure:   i.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}
