package auth_test

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"careerpath-api/internal/auth"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

func newIssuer(t testingT, clock *fakeClock, ttl time.Duration) *auth.Issuer {
	t.Helper()
	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:   "test-secret",
		TokenTTL: ttl,
		Now:      clock.Now,
	})
	require.NoError(t, err)
	return issuer
}

var epoch = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func TestNewIssuer(t *testing.T) {
	t.Run("defaults to HS256", func(t *testing.T) {
		clock := &fakeClock{now: epoch}
		issuer, err := auth.NewIssuer(auth.IssuerConfig{Secret: "k", Now: clock.Now})
		require.NoError(t, err)

		token, err := issuer.Issue("u1")
		require.NoError(t, err)

		parsed, _, err := jwt.NewParser().ParseUnverified(token, &jwt.RegisteredClaims{})
		require.NoError(t, err)
		assert.Equal(t, "HS256", parsed.Method.Alg())
	})

	t.Run("accepts HS512", func(t *testing.T) {
		_, err := auth.NewIssuer(auth.IssuerConfig{Secret: "k", Algorithm: "hs512"})
		assert.NoError(t, err)
	})

	t.Run("rejects asymmetric algorithms", func(t *testing.T) {
		_, err := auth.NewIssuer(auth.IssuerConfig{Secret: "k", Algorithm: "RS256"})
		assert.Error(t, err)
	})
}

func TestIssuer_IssueClaims(t *testing.T) {
	clock := &fakeClock{now: epoch}
	issuer := newIssuer(t, clock, 0)

	token, err := issuer.Issue("u1")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)

	assert.Len(t, claims, 3)
	assert.Equal(t, "u1", claims["sub"])
	assert.EqualValues(t, epoch.Unix(), claims["iat"])
	assert.EqualValues(t, epoch.Add(auth.DefaultTokenTTL).Unix(), claims["exp"])
}

func TestIssuer_MissingSecret(t *testing.T) {
	issuer, err := auth.NewIssuer(auth.IssuerConfig{})
	require.NoError(t, err)

	_, err = issuer.Issue("u1")
	assert.ErrorIs(t, err, auth.ErrMissingSecret)

	_, err = issuer.Verify("a.b.c")
	assert.ErrorIs(t, err, auth.ErrMissingSecret)
}

func TestIssuer_IssueRequiresSubject(t *testing.T) {
	issuer := newIssuer(t, &fakeClock{now: epoch}, time.Hour)
	_, err := issuer.Issue("")
	assert.Error(t, err)
}

func TestIssuer_VerifyOutcomes(t *testing.T) {
	clock := &fakeClock{now: epoch}
	issuer := newIssuer(t, clock, time.Second)

	token, err := issuer.Issue("u1")
	require.NoError(t, err)

	res, err := issuer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeValid, res.Outcome)
	assert.Equal(t, "u1", res.Claims.Subject)
	assert.Equal(t, epoch.Unix(), res.Claims.IssuedAt.Unix())

	clock.Advance(2 * time.Second)
	res, err = issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, auth.OutcomeExpired, res.Outcome)
	assert.Nil(t, res.Claims)

	for _, garbage := range []string{"", "abc", "a.b.c", token + "x"} {
		res, err = issuer.Verify(garbage)
		require.NoError(t, err)
		assert.Equal(t, auth.OutcomeMalformed, res.Outcome, garbage)
	}
}

func TestIssuer_AcceptsTokenFromInstanceWithClockAhead(t *testing.T) {
	local := &fakeClock{now: epoch}
	ahead := &fakeClock{now: epoch.Add(90 * time.Second)}
	verifier := newIssuer(t, local, time.Hour)
	minter := newIssuer(t, ahead, time.Hour)

	token, err := minter.Issue("u1")
	require.NoError(t, err)

	res, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeValid, res.Outcome)
	assert.Equal(t, ahead.now.Unix(), res.Claims.IssuedAt.Unix())
}

func TestIssuer_RejectsOtherSecret(t *testing.T) {
	clock := &fakeClock{now: epoch}
	issuer := newIssuer(t, clock, time.Hour)
	other, err := auth.NewIssuer(auth.IssuerConfig{Secret: "rotated", Now: clock.Now})
	require.NoError(t, err)

	token, err := other.Issue("u1")
	require.NoError(t, err)

	res, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, auth.OutcomeMalformed, res.Outcome)
}

func TestIssuer_RejectsUnsignedToken(t *testing.T) {
	clock := &fakeClock{now: epoch}
	issuer := newIssuer(t, clock, time.Hour)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		IssuedAt:  jwt.NewNumericDate(epoch),
		ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	res, err := issuer.Verify(unsigned)
	require.NoError(t, err)
	assert.Equal(t, auth.OutcomeMalformed, res.Outcome)
}

func TestIssuer_RejectsTokenWithoutExpiry(t *testing.T) {
	clock := &fakeClock{now: epoch}
	issuer := newIssuer(t, clock, time.Hour)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  "u1",
		IssuedAt: jwt.NewNumericDate(epoch),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	res, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, auth.OutcomeMalformed, res.Outcome)
}

func TestIssuer_SessionCookie(t *testing.T) {
	clock := &fakeClock{now: epoch}
	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:        "k",
		CookieTTL:     7 * 24 * time.Hour,
		SecureCookies: true,
		Now:           clock.Now,
	})
	require.NoError(t, err)

	cookie := issuer.SessionCookie("tok")
	assert.Equal(t, auth.CookieName, cookie.Name)
	assert.Equal(t, "tok", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, epoch.Add(7*24*time.Hour), cookie.Expires)

	cleared := issuer.ClearedCookie()
	assert.Equal(t, "loggedout", cleared.Value)
	assert.Equal(t, epoch.Add(10*time.Second), cleared.Expires)
}

func TestIssuerProperty_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.StringMatching(`[A-Za-z0-9-]{1,40}`).Draw(t, "account_id")
		offset := rapid.Int64Range(0, 10*365*24*3600).Draw(t, "offset_seconds")
		nanos := rapid.Int64Range(0, int64(time.Second)-1).Draw(t, "nanos")

		clock := &fakeClock{now: epoch.Add(time.Duration(offset)*time.Second + time.Duration(nanos))}
		issuer := newIssuer(t, clock, time.Hour)

		token, err := issuer.Issue(id)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		res, err := issuer.Verify(token)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if res.Outcome != auth.OutcomeValid || res.Claims.Subject != id {
			t.Fatalf("round trip failed: %+v", res)
		}
	})
}

func TestIssuerProperty_ExpiryBoundary(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ttl := time.Duration(rapid.Int64Range(1, 90*24*3600).Draw(t, "ttl_seconds")) * time.Second
		nanos := time.Duration(rapid.Int64Range(0, int64(time.Second)-1).Draw(t, "issue_nanos"))
		clock := &fakeClock{now: epoch.Add(nanos)}
		issuer := newIssuer(t, clock, ttl)

		token, err := issuer.Issue("u1")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		expiresAt := epoch.Add(ttl)

		delta := time.Duration(rapid.Int64Range(0, int64(2*ttl)).Draw(t, "check_after_issue"))
		clock.now = epoch.Add(delta)

		res, err := issuer.Verify(token)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		want := auth.OutcomeValid
		if !clock.now.Before(expiresAt) {
			want = auth.OutcomeExpired
		}
		if res.Outcome != want {
			t.Fatalf("at %s (exp %s): got %s want %s", clock.now, expiresAt, res.Outcome, want)
		}
	})
}

func TestIssuerProperty_TamperedSignature(t *testing.T) {
	clock := &fakeClock{now: epoch}
	issuer := newIssuer(t, clock, time.Hour)
	token, err := issuer.Issue("u1")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		idx := rapid.IntRange(0, len(sig)-1).Draw(t, "byte")
		mask := rapid.ByteRange(1, 255).Draw(t, "mask")

		tampered := append([]byte(nil), sig...)
		tampered[idx] ^= mask
		forged := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(tampered)

		res, err := issuer.Verify(forged)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if res.Outcome != auth.OutcomeMalformed {
			t.Fatalf("tampered byte %d accepted with outcome %s", idx, res.Outcome)
		}
	})
}

func TestIssuer_TamperedSignatureCharacters(t *testing.T) {
	clock := &fakeClock{now: epoch}
	issuer := newIssuer(t, clock, time.Hour)
	token, err := issuer.Issue("u1")
	require.NoError(t, err)

	sigStart := strings.LastIndex(token, ".") + 1
	for i := sigStart; i < len(token); i++ {
		replacement := byte('A')
		if token[i] == 'A' {
			replacement = 'B'
		}
		forged := token[:i] + string(replacement) + token[i+1:]

		res, err := issuer.Verify(forged)
		require.NoError(t, err)
		assert.Equal(t, auth.OutcomeMalformed, res.Outcome, "position %d", i)
	}
}
