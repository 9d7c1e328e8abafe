package authapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-tenant-access/authapi"
	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"github.com/jrsteele09/go-tenant-access/internal/testserver"
	"github.com/jrsteele09/go-tenant-access/users"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "password123"
)

func setupClient(t *testing.T) (*testserver.Server, *authapi.Client) {
	t.Helper()
	s := testserver.New()
	require.NoError(t, s.AddUser(testserver.User{
		ID:        7,
		Email:     testEmail,
		Password:  testPassword,
		FirstName: "Ada",
		Role:      "hr_manager",
		TenantID:  3,
		Tenants:   []int64{3, 4},
	}))
	ts := s.Start()
	t.Cleanup(ts.Close)
	return s, authapi.New(ts.URL, authapi.WithHTTPClient(ts.Client()))
}

func TestLogin(t *testing.T) {
	_, c := setupClient(t)

	res, err := c.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, users.ID("7"), res.User.ID)
	require.Equal(t, users.ID("3"), res.User.TenantID)
	require.Equal(t, []string{"3", "4"}, res.User.TenantIDs())
	require.Equal(t, users.RoleHRManager, res.User.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	_, c := setupClient(t)

	_, err := c.Login(context.Background(), testEmail, "wrong")
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, errors.StatusCode(err))
}

func TestValidateAndRefresh(t *testing.T) {
	s, c := setupClient(t)
	ctx := context.Background()

	res, err := c.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	profile, err := c.Validate(ctx, res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testEmail, profile.Email)

	access, refreshToken, err := c.RefreshToken(ctx, res.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEqual(t, res.RefreshToken, refreshToken)
	require.Equal(t, 1, s.Count("POST "+authapi.PathRefreshToken))

	last, ok := s.LastRequest(authapi.PathRefreshToken)
	require.True(t, ok)
	require.Equal(t, "Bearer "+res.RefreshToken, last.Authorization)

	_, _, err = c.RefreshToken(ctx, res.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, errors.StatusCode(err))
}

func TestValidateAcceptsBareProfile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"7","email":"a@b.com","tenantId":3}`))
	}))
	defer ts.Close()

	profile, err := authapi.New(ts.URL).Validate(context.Background(), "T1")
	require.NoError(t, err)
	require.Equal(t, users.ID("7"), profile.ID)
	require.Equal(t, users.ID("3"), profile.TenantID)
}

func TestNetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := authapi.New(url).Login(context.Background(), testEmail, testPassword)
	require.ErrorIs(t, err, errors.ErrNetwork)
}

func TestPasswordFlows(t *testing.T) {
	s, c := setupClient(t)
	ctx := context.Background()

	require.NoError(t, c.ForgotPassword(ctx, testEmail))
	require.NoError(t, c.ResetPassword(ctx, s.ResetTokenFor(testEmail), "second"))

	res, err := c.Login(ctx, testEmail, "second")
	require.NoError(t, err)

	err = c.ChangePassword(ctx, res.AccessToken, "wrong", "third")
	require.Equal(t, http.StatusBadRequest, errors.StatusCode(err))

	require.NoError(t, c.ChangePassword(ctx, res.AccessToken, "second", "third"))
	require.NoError(t, c.Logout(ctx, res.AccessToken))

	_, _, err = c.RefreshToken(ctx, res.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, errors.StatusCode(err), "logout revokes the refresh token")
}
