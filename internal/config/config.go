package config

import (
	"time"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	ClientConfig
	TokenStoreConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type ClientConfig interface {
	GetBaseURL() string
	GetRefreshWindow() time.Duration
	GetHTTPTimeout() time.Duration
}

type TokenStoreConfig interface {
	GetTokenStoreKind() StoreKind
	GetTokenFile() string
	GetTokenMaxAge() time.Duration
	GetCookieHashKey() string
	GetCookieBlockKey() string
	GetKeyringService() string
	GetKeyringAccount() string
}

type mainConfig struct {
	EnvVars
	Client
	TokenStore
}

// New returns the environment backed configuration. A .env file in the
// working directory is loaded first when present; real environment variables
// take precedence over it.
func New() Config {
	_ = godotenv.Load()
	return mainConfig{}
}
