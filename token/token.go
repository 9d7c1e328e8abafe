package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"golang.org/x/oauth2"
)

// Token is the access/refresh pair held by the client. ExpiresAt is taken
// from the access token's "exp" claim.
type Token struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Decode builds a Token from a raw access/refresh pair. The access token is
// parsed without signature verification: the client never holds the signing
// keys, it only needs the expiry.
func Decode(accessToken, refreshToken string) (Token, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return Token{}, errors.ErrMalformedToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return Token{}, errors.Wrapf(errors.ErrMalformedToken, "parse access token: %v", err)
	}
	if claims.ExpiresAt == nil {
		return Token{}, errors.Wrapf(errors.ErrMalformedToken, "access token has no exp claim")
	}

	return Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// ExpiresWithin reports whether fewer than window remain before expiry at now.
func (t Token) ExpiresWithin(now time.Time, window time.Duration) bool {
	return t.ExpiresAt.Sub(now) < window
}

// OAuth2 converts the token for use with golang.org/x/oauth2 transports.
func (t Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}
