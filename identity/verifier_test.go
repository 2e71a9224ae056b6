package identity_test

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/planningcenter/pco-oauth-bridge/identity"
	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
)

const testSecret = "0a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b"

func signAssertion(t *testing.T, key []byte, data map[string]any) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"data": data})
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func orgPersonData(orgID any, personID any) map[string]any {
	return map[string]any{
		"org":    map[string]any{"id": orgID},
		"person": map[string]any{"id": personID},
	}
}

func TestVerifyValidAssertion(t *testing.T) {
	key := identity.KeyFromSecret(testSecret)
	verifier := identity.New(key)

	claims, err := verifier.Verify(signAssertion(t, key, orgPersonData("42", "123")))
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.OrganizationID)
	require.Equal(t, "123", claims.PersonID)
}

func TestVerifyNumericIDs(t *testing.T) {
	key := identity.KeyFromSecret(testSecret)
	verifier := identity.New(key)

	claims, err := verifier.Verify(signAssertion(t, key, orgPersonData(42, 123)))
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.OrganizationID)
	require.Equal(t, "123", claims.PersonID)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	verifier := identity.New(identity.KeyFromSecret(testSecret))

	// Well-formed payload with a plausible org id, signed with a different
	// key: must be rejected before any claim is trusted.
	forged := signAssertion(t, []byte("attacker-key"), orgPersonData("42", "123"))
	_, err := verifier.Verify(forged)
	require.ErrorIs(t, err, apperrors.ErrVerification)
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	verifier := identity.New(identity.KeyFromSecret(testSecret))

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"data": orgPersonData("42", "123")})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	require.ErrorIs(t, err, apperrors.ErrVerification)
}

func TestVerifyRejectsMalformedAssertion(t *testing.T) {
	verifier := identity.New(identity.KeyFromSecret(testSecret))

	for _, assertion := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := verifier.Verify(assertion)
		require.ErrorIs(t, err, apperrors.ErrVerification)
	}
}

func TestVerifyRejectsMissingOrgClaim(t *testing.T) {
	key := identity.KeyFromSecret(testSecret)
	verifier := identity.New(key)

	_, err := verifier.Verify(signAssertion(t, key, map[string]any{
		"person": map[string]any{"id": "123"},
	}))
	require.ErrorIs(t, err, apperrors.ErrVerification)
}

func TestKeyFromSecretTruncates(t *testing.T) {
	long := strings.Repeat("s", 150)
	require.Len(t, identity.KeyFromSecret(long), 100)

	short := "short-secret"
	require.Equal(t, []byte(short), identity.KeyFromSecret(short))
}
