package testserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// storedRefreshToken is the server-side record behind an opaque refresh token.
type storedRefreshToken struct {
	Token  string
	UserID int64
	Iat    time.Time
}

// refreshTokens issues single-use refresh tokens: redeeming one deletes it,
// so two clients racing with the same token cannot both succeed.
type refreshTokens struct {
	tokens  map[string]storedRefreshToken
	userIDs map[int64]string
	lock    sync.Mutex
}

func newRefreshTokens() *refreshTokens {
	return &refreshTokens{
		tokens:  make(map[string]storedRefreshToken),
		userIDs: make(map[int64]string),
	}
}

// create replaces any existing refresh token for the user.
func (rt *refreshTokens) create(userID int64, now time.Time) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	tokenStr := hex.EncodeToString(tokenBytes)

	rt.lock.Lock()
	defer rt.lock.Unlock()
	if existing, ok := rt.userIDs[userID]; ok {
		delete(rt.tokens, existing)
	}
	rt.tokens[tokenStr] = storedRefreshToken{Token: tokenStr, UserID: userID, Iat: now}
	rt.userIDs[userID] = tokenStr
	return tokenStr, nil
}

// redeem consumes token and returns its owner.
func (rt *refreshTokens) redeem(token string) (int64, bool) {
	rt.lock.Lock()
	defer rt.lock.Unlock()
	stored, ok := rt.tokens[token]
	if !ok {
		return 0, false
	}
	delete(rt.tokens, token)
	delete(rt.userIDs, stored.UserID)
	return stored.UserID, true
}

func (rt *refreshTokens) revokeUser(userID int64) {
	rt.lock.Lock()
	defer rt.lock.Unlock()
	if existing, ok := rt.userIDs[userID]; ok {
		delete(rt.tokens, existing)
		delete(rt.userIDs, userID)
	}
}
