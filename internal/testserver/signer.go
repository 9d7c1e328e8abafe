package testserver

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// AccessClaims are the claims carried by access tokens minted here.
type AccessClaims struct {
	Email      string   `json:"email,omitempty"`
	Role       string   `json:"role,omitempty"`
	Tenants    []string `json:"tenants,omitempty"`
	Generation int64    `json:"gen"`
	jwt.RegisteredClaims
}

// HMACSigner signs and verifies HS256 tokens with a shared secret.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signed, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

// Verify parses and validates an access token against now.
func (h *HMACSigner) Verify(raw string, now func() time.Time) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, h.GetVerificationKey,
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "invalid token")
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// CreateAccessToken mints an access token for user valid for ttl from now.
func (h *HMACSigner) CreateAccessToken(user *User, generation int64, now time.Time, ttl time.Duration) (string, error) {
	claims := AccessClaims{
		Email:      user.Email,
		Role:       user.Role,
		Tenants:    user.tenantIDs(),
		Generation: generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}
	return h.Sign(claims)
}
