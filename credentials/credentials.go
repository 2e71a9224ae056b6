package credentials

import (
	"time"

	"golang.org/x/oauth2"
)

// Record is one persisted provider token. The raw provider payload is kept
// verbatim so that provider-specific extras (e.g. id_token) survive a
// round-trip through the store.
type Record struct {
	ID             int64          // store row id
	OrganizationID int64          // owning organization, unique per record
	Token          map[string]any // raw token payload as issued by the provider
}

// field keys of the stored payload
const (
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
	tokenTypeKey    = "token_type"
	expiresAtKey    = "expires_at"
	idTokenKey      = "id_token"
)

func (r *Record) AccessToken() string {
	return stringField(r.Token, accessTokenKey)
}

func (r *Record) RefreshToken() string {
	return stringField(r.Token, refreshTokenKey)
}

func (r *Record) IDToken() string {
	return stringField(r.Token, idTokenKey)
}

// ExpiresAt returns the absolute expiry of the access token. A missing
// expiry means the token is treated as non-expiring.
func (r *Record) ExpiresAt() (time.Time, bool) {
	unix, ok := int64Field(r.Token, expiresAtKey)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

// OAuth2Token reconstructs the oauth2.Token this record was built from.
func (r *Record) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken(),
		RefreshToken: r.RefreshToken(),
		TokenType:    stringField(r.Token, tokenTypeKey),
	}
	if expiry, ok := r.ExpiresAt(); ok {
		tok.Expiry = expiry
	}
	return tok
}

// FromOAuth2 builds the storable payload for a provider-issued token. The
// expiry is persisted as an absolute unix timestamp; a zero expiry is
// omitted entirely (non-expiring token).
func FromOAuth2(tok *oauth2.Token) map[string]any {
	payload := map[string]any{
		accessTokenKey: tok.AccessToken,
	}
	if tok.TokenType != "" {
		payload[tokenTypeKey] = tok.TokenType
	}
	if tok.RefreshToken != "" {
		payload[refreshTokenKey] = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		payload[expiresAtKey] = tok.Expiry.Unix()
	}
	if idToken, ok := tok.Extra(idTokenKey).(string); ok && idToken != "" {
		payload[idTokenKey] = idToken
	}
	return payload
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// int64Field normalizes the numeric representations a JSON round-trip can
// produce for the same stored value.
func int64Field(payload map[string]any, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
