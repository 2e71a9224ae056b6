// Package identity verifies the signed assertion that authorizes a
// server-to-server caller to act on behalf of an organization without a
// browser session. An assertion is verified and discarded per request,
// never persisted.
package identity

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
)

// secretKeyLength is how many bytes of the OAuth client secret form the
// HMAC key, matching what the upstream platform signs with.
const secretKeyLength = 100

// KeyFromSecret derives the assertion HMAC key from the OAuth client
// secret. Reference default only: production deployments should hand New a
// dedicated, independently rotatable secret instead.
func KeyFromSecret(secret string) []byte {
	if len(secret) > secretKeyLength {
		secret = secret[:secretKeyLength]
	}
	return []byte(secret)
}

// Claims is the verified payload of an identity assertion.
type Claims struct {
	OrganizationID int64
	PersonID       string
}

type Verifier struct {
	key []byte
}

func New(key []byte) *Verifier {
	return &Verifier{key: key}
}

// Verify validates the assertion's HS256 signature and extracts the claimed
// organization. The signature is checked before any claim is read; a
// well-formed payload under a wrong key is rejected the same as garbage.
func (v *Verifier) Verify(assertion string) (*Claims, error) {
	parsed, err := jwt.Parse(assertion, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, apperrors.Wrapf(apperrors.ErrVerification, "parse: %v", err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrVerification, "unexpected claims type")
	}

	data, ok := mapClaims["data"].(map[string]any)
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrVerification, "missing data claim")
	}

	claims := &Claims{}

	org, ok := data["org"].(map[string]any)
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrVerification, "missing org claim")
	}
	claims.OrganizationID, ok = idClaim(org["id"])
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrVerification, "missing org id claim")
	}

	if person, ok := data["person"].(map[string]any); ok {
		claims.PersonID, _ = person["id"].(string)
		if claims.PersonID == "" {
			if id, ok := idClaim(person["id"]); ok {
				claims.PersonID = strconv.FormatInt(id, 10)
			}
		}
	}

	return claims, nil
}

// idClaim normalizes the id representations the platform emits: JSON
// numbers decode as float64, older payloads carry strings.
func idClaim(v any) (int64, bool) {
	switch id := v.(type) {
	case float64:
		return int64(id), true
	case string:
		parsed, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
