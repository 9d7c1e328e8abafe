package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	baseURLVar        = "HR_API_BASE_URL"
	refreshWindowVar  = "HR_REFRESH_WINDOW"
	httpTimeoutVar    = "HR_HTTP_TIMEOUT"
	tokenStoreVar     = "HR_TOKEN_STORE"
	tokenFileVar      = "HR_TOKEN_FILE"
	tokenMaxAgeVar    = "HR_TOKEN_MAX_AGE"
	cookieHashKeyVar  = "HR_COOKIE_HASH_KEY"
	cookieBlockKeyVar = "HR_COOKIE_BLOCK_KEY"
	keyringServiceVar = "HR_KEYRING_SERVICE"
	keyringAccountVar = "HR_KEYRING_ACCOUNT"
)

// DefaultRefreshWindow is how long before expiry an access token is renewed.
const DefaultRefreshWindow = 5 * time.Minute

// StoreKind selects the token persistence backend.
type StoreKind string

const (
	StoreMemory  StoreKind = "memory"
	StoreFile    StoreKind = "file"
	StoreKeyring StoreKind = "keyring"
)

type Client struct{}

var _ ClientConfig = Client{}

func (Client) GetBaseURL() string {
	return strings.TrimRight(GetEnv(baseURLVar, "http://localhost:8080"), "/")
}

func (Client) GetRefreshWindow() time.Duration {
	return GetDurationEnv(refreshWindowVar, DefaultRefreshWindow)
}

func (Client) GetHTTPTimeout() time.Duration {
	return GetDurationEnv(httpTimeoutVar, 30*time.Second)
}

type TokenStore struct{}

var _ TokenStoreConfig = TokenStore{}

func (TokenStore) GetTokenStoreKind() StoreKind {
	switch kind := StoreKind(strings.ToLower(GetEnv(tokenStoreVar, string(StoreFile)))); kind {
	case StoreMemory, StoreFile, StoreKeyring:
		return kind
	default:
		return StoreFile
	}
}

func (TokenStore) GetTokenFile() string {
	if path := os.Getenv(tokenFileVar); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".hr-tokens.json"
	}
	return filepath.Join(dir, "hr-access", "tokens.json")
}

// GetTokenMaxAge is the explicit max-age of persisted tokens.
func (TokenStore) GetTokenMaxAge() time.Duration {
	return GetDurationEnv(tokenMaxAgeVar, 7*24*time.Hour)
}

func (TokenStore) GetCookieHashKey() string {
	return GetEnv(cookieHashKeyVar, "")
}

func (TokenStore) GetCookieBlockKey() string {
	return GetEnv(cookieBlockKeyVar, "")
}

func (TokenStore) GetKeyringService() string {
	return GetEnv(keyringServiceVar, "hr-access")
}

func (TokenStore) GetKeyringAccount() string {
	return GetEnv(keyringAccountVar, "default")
}
