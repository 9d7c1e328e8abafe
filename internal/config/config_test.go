package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-access/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("HR_API_BASE_URL", "")
	t.Setenv("HR_REFRESH_WINDOW", "")
	t.Setenv("HR_TOKEN_STORE", "")

	c := config.New()
	require.Equal(t, "http://localhost:8080", c.GetBaseURL())
	require.Equal(t, config.DefaultRefreshWindow, c.GetRefreshWindow())
	require.Equal(t, config.StoreFile, c.GetTokenStoreKind())
}

func TestOverrides(t *testing.T) {
	t.Setenv("HR_API_BASE_URL", "https://hr.example.com/api/")
	t.Setenv("HR_REFRESH_WINDOW", "90s")
	t.Setenv("HR_HTTP_TIMEOUT", "12")
	t.Setenv("HR_TOKEN_STORE", "KEYRING")

	c := config.New()
	require.Equal(t, "https://hr.example.com/api", c.GetBaseURL())
	require.Equal(t, 90*time.Second, c.GetRefreshWindow())
	require.Equal(t, 12*time.Second, c.GetHTTPTimeout())
	require.Equal(t, config.StoreKeyring, c.GetTokenStoreKind())
}

func TestUnknownStoreKindFallsBackToFile(t *testing.T) {
	t.Setenv("HR_TOKEN_STORE", "redis")
	require.Equal(t, config.StoreFile, config.New().GetTokenStoreKind())
}

func TestGetDurationEnvInvalid(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	require.Equal(t, time.Minute, config.GetDurationEnv("SOME_DURATION", time.Minute))
}
