package refresh_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"github.com/jrsteele09/go-tenant-access/refresh"
	"github.com/jrsteele09/go-tenant-access/token"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func mintAccessToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

// fakeRefresher hands out sequentially numbered tokens and can be held
// open until release is closed.
type fakeRefresher struct {
	t       *testing.T
	calls   atomic.Int64
	release chan struct{}
	err     error
	seen    chan string
}

func newFakeRefresher(t *testing.T) *fakeRefresher {
	return &fakeRefresher{t: t, seen: make(chan string, 16)}
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	n := f.calls.Add(1)
	f.seen <- refreshToken
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return "", "", f.err
	}
	return mintAccessToken(f.t, fmt.Sprintf("refreshed-%d", n), now.Add(time.Hour)), fmt.Sprintf("R%d", n+1), nil
}

type fixture struct {
	store       *token.Store
	refresher   *fakeRefresher
	coordinator *refresh.Coordinator
	access      string
}

func setupFixture(t *testing.T, expiresIn time.Duration) *fixture {
	t.Helper()
	store := token.NewStore(token.NewMemoryPersister(), token.WithNowFunc(func() time.Time { return now }))
	access := mintAccessToken(t, "login", now.Add(expiresIn))
	_, err := store.SetPair(access, "R1")
	require.NoError(t, err)

	r := newFakeRefresher(t)
	return &fixture{
		store:       store,
		refresher:   r,
		coordinator: refresh.New(store, r),
		access:      access,
	}
}

func TestEnsureFreshSkipsValidToken(t *testing.T) {
	f := setupFixture(t, time.Hour)

	tok, err := f.coordinator.EnsureFresh(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, f.access, tok.AccessToken)
	require.Equal(t, int64(0), f.refresher.calls.Load())
}

func TestEnsureFreshRefreshesBeforeExpiry(t *testing.T) {
	f := setupFixture(t, 2*time.Minute)

	tok, err := f.coordinator.EnsureFresh(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	require.NotEqual(t, f.access, tok.AccessToken)
	require.Equal(t, "R2", tok.RefreshToken)
	require.Equal(t, "R1", <-f.refresher.seen)

	stored, ok := f.store.Get()
	require.True(t, ok)
	require.Equal(t, tok.AccessToken, stored.AccessToken)
	require.Equal(t, int64(1), f.coordinator.Refreshes())
}

func TestEnsureFreshWithoutToken(t *testing.T) {
	store := token.NewStore(nil)
	c := refresh.New(store, newFakeRefresher(t))

	_, err := c.EnsureFresh(context.Background(), time.Minute)
	require.ErrorIs(t, err, errors.ErrNoToken)
}

func TestConcurrentRejectionsShareOneRefresh(t *testing.T) {
	f := setupFixture(t, time.Hour)
	f.refresher.release = make(chan struct{})

	const callers = 20
	var wg sync.WaitGroup
	results := make([]token.Token, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.coordinator.RefreshRejected(context.Background(), f.access)
		}(i)
	}

	// hold the refresh open until it has started, then let everyone through
	<-f.refresher.seen
	time.Sleep(20 * time.Millisecond)
	close(f.refresher.release)
	wg.Wait()

	require.Equal(t, int64(1), f.refresher.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0].AccessToken, results[i].AccessToken)
	}
	require.NotEqual(t, f.access, results[0].AccessToken)
}

func TestRefreshRejectedUsesNewerToken(t *testing.T) {
	f := setupFixture(t, time.Hour)

	first, err := f.coordinator.RefreshRejected(context.Background(), f.access)
	require.NoError(t, err)

	// a late caller still holding the old token must not trigger another refresh
	second, err := f.coordinator.RefreshRejected(context.Background(), f.access)
	require.NoError(t, err)
	require.Equal(t, first.AccessToken, second.AccessToken)
	require.Equal(t, int64(1), f.refresher.calls.Load())
}

func TestRefreshFailureClearsStoreAndFiresHooks(t *testing.T) {
	f := setupFixture(t, time.Hour)
	f.refresher.err = errors.ErrUnauthorized

	var started, expired atomic.Int64
	var doneErr error
	f.coordinator.OnRefreshStart(func() { started.Add(1) })
	f.coordinator.OnRefreshDone(func(err error) { doneErr = err })
	f.coordinator.OnExpired(func(err error) { expired.Add(1) })

	_, err := f.coordinator.Refresh(context.Background())
	require.ErrorIs(t, err, errors.ErrSessionExpired)
	require.ErrorIs(t, err, errors.ErrUnauthorized)
	require.ErrorIs(t, doneErr, errors.ErrSessionExpired)
	require.Equal(t, int64(1), started.Load())
	require.Equal(t, int64(1), expired.Load())

	_, ok := f.store.Get()
	require.False(t, ok)
}

func TestRefreshMalformedResponseEndsSession(t *testing.T) {
	f := setupFixture(t, time.Hour)
	c := refresh.New(f.store, refresh.RefresherFunc(func(ctx context.Context, refreshToken string) (string, string, error) {
		return "opaque", "", nil
	}))

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, errors.ErrSessionExpired)
	require.ErrorIs(t, err, errors.ErrMalformedToken)
	_, ok := f.store.Get()
	require.False(t, ok)
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f := setupFixture(t, time.Hour)
	c := refresh.New(f.store, refresh.RefresherFunc(func(ctx context.Context, refreshToken string) (string, string, error) {
		return mintAccessToken(t, "x", now.Add(time.Hour)), "", nil
	}))

	tok, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "R1", tok.RefreshToken)
}

func TestCancelledWaiterDoesNotCancelSharedRefresh(t *testing.T) {
	f := setupFixture(t, time.Hour)
	f.refresher.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancelledErr := make(chan error, 1)
	go func() {
		_, err := f.coordinator.Refresh(ctx)
		cancelledErr <- err
	}()
	<-f.refresher.seen

	patient := make(chan token.Token, 1)
	go func() {
		tok, _ := f.coordinator.RefreshRejected(context.Background(), f.access)
		patient <- tok
	}()

	cancel()
	require.ErrorIs(t, <-cancelledErr, context.Canceled)

	close(f.refresher.release)
	tok := <-patient
	require.NotEqual(t, f.access, tok.AccessToken)
	require.Equal(t, int64(1), f.refresher.calls.Load())
}

func TestTokenSource(t *testing.T) {
	f := setupFixture(t, time.Hour)

	o, err := f.coordinator.TokenSource(context.Background(), 5*time.Minute).Token()
	require.NoError(t, err)
	require.Equal(t, f.access, o.AccessToken)
	require.Equal(t, "Bearer", o.TokenType)
}

func TestRefreshDoesNotOverwriteNewLogin(t *testing.T) {
	f := setupFixture(t, time.Hour)
	f.refresher.release = make(chan struct{})

	var expired atomic.Int64
	f.coordinator.OnExpired(func(err error) { expired.Add(1) })

	refreshed := make(chan error, 1)
	go func() {
		_, err := f.coordinator.Refresh(context.Background())
		refreshed <- err
	}()
	<-f.refresher.seen

	// another user signs in while the old session's refresh is outstanding
	next := mintAccessToken(t, "next-user", now.Add(time.Hour))
	_, err := f.store.SetPair(next, "N1")
	require.NoError(t, err)
	close(f.refresher.release)

	require.ErrorIs(t, <-refreshed, errors.ErrSessionExpired)
	stored, ok := f.store.Get()
	require.True(t, ok)
	require.Equal(t, next, stored.AccessToken)
	require.Equal(t, "N1", stored.RefreshToken)
	require.Zero(t, expired.Load())
}

func TestFailedRefreshKeepsNewLogin(t *testing.T) {
	f := setupFixture(t, time.Hour)
	f.refresher.release = make(chan struct{})
	f.refresher.err = errors.ErrUnauthorized

	var expired atomic.Int64
	f.coordinator.OnExpired(func(err error) { expired.Add(1) })

	refreshed := make(chan error, 1)
	go func() {
		_, err := f.coordinator.Refresh(context.Background())
		refreshed <- err
	}()
	<-f.refresher.seen

	next := mintAccessToken(t, "next-user", now.Add(time.Hour))
	_, err := f.store.SetPair(next, "N1")
	require.NoError(t, err)
	close(f.refresher.release)

	require.ErrorIs(t, <-refreshed, errors.ErrSessionExpired)
	stored, ok := f.store.Get()
	require.True(t, ok)
	require.Equal(t, next, stored.AccessToken)
	require.Zero(t, expired.Load())
}
