package token_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"github.com/jrsteele09/go-tenant-access/token"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func mintAccessToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

func fixedNow(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func TestDecode(t *testing.T) {
	exp := baseTime.Add(10 * time.Minute)
	tok, err := token.Decode(mintAccessToken(t, exp), "R1")
	require.NoError(t, err)
	require.Equal(t, "R1", tok.RefreshToken)
	require.True(t, tok.ExpiresAt.Equal(exp))

	require.True(t, tok.ExpiresWithin(baseTime, 11*time.Minute))
	require.False(t, tok.ExpiresWithin(baseTime, 5*time.Minute))

	o := tok.OAuth2()
	require.Equal(t, "Bearer", o.TokenType)
	require.Equal(t, tok.AccessToken, o.AccessToken)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := token.Decode("not-a-jwt", "R1")
	require.ErrorIs(t, err, errors.ErrMalformedToken)

	_, err = token.Decode("", "R1")
	require.ErrorIs(t, err, errors.ErrMalformedToken)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "7"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = token.Decode(noExp, "R1")
	require.ErrorIs(t, err, errors.ErrMalformedToken)
}

func TestStoreSetGetClear(t *testing.T) {
	p := token.NewMemoryPersister()
	s := token.NewStore(p, token.WithNowFunc(fixedNow(baseTime)))

	_, ok := s.Get()
	require.False(t, ok)
	require.True(t, s.IsExpiringWithin(5*time.Minute))

	access := mintAccessToken(t, baseTime.Add(time.Hour))
	_, err := s.SetPair(access, "R1")
	require.NoError(t, err)

	got, ok := s.Get()
	require.True(t, ok)
	require.Equal(t, access, got.AccessToken)
	require.False(t, s.IsExpiringWithin(5*time.Minute))
	require.True(t, s.IsExpiringWithin(61*time.Minute))

	rec, err := p.Load()
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "R1", rec.RefreshToken)
	require.True(t, rec.SavedAt.Equal(baseTime))

	require.NoError(t, s.Clear())
	_, ok = s.Get()
	require.False(t, ok)
	rec, err = p.Load()
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestStoreDiscardsMalformedPersistedToken(t *testing.T) {
	p := token.NewMemoryPersister()
	require.NoError(t, p.Save(token.Record{AccessToken: "garbage", RefreshToken: "R1", SavedAt: baseTime}))

	s := token.NewStore(p, token.WithNowFunc(fixedNow(baseTime)))
	_, ok := s.Get()
	require.False(t, ok)

	rec, err := p.Load()
	require.NoError(t, err)
	require.Nil(t, rec, "malformed record should be cleared")
}

func TestStoreGenerations(t *testing.T) {
	s := token.NewStore(token.NewMemoryPersister(), token.WithNowFunc(fixedNow(baseTime)))
	_, err := s.SetPair(mintAccessToken(t, baseTime.Add(time.Hour)), "R1")
	require.NoError(t, err)
	_, gen, ok := s.Snapshot()
	require.True(t, ok)

	refreshed, err := token.Decode(mintAccessToken(t, baseTime.Add(2*time.Hour)), "R2")
	require.NoError(t, err)
	stored, err := s.SetIfCurrent(gen, refreshed)
	require.NoError(t, err)
	require.True(t, stored)
	_, sameGen, _ := s.Snapshot()
	require.Equal(t, gen, sameGen)

	require.NoError(t, s.Clear())
	stored, err = s.SetIfCurrent(gen, refreshed)
	require.NoError(t, err)
	require.False(t, stored)
	_, ok = s.Get()
	require.False(t, ok)

	_, err = s.SetPair(mintAccessToken(t, baseTime.Add(time.Hour)), "R3")
	require.NoError(t, err)
	cleared, err := s.ClearIfCurrent(gen)
	require.NoError(t, err)
	require.False(t, cleared)
	got, ok := s.Get()
	require.True(t, ok)
	require.Equal(t, "R3", got.RefreshToken)
}

// flakyPersister fails Load with err until err is reset.
type flakyPersister struct {
	*token.MemoryPersister
	err    error
	clears int
}

func (f *flakyPersister) Load() (*token.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.MemoryPersister.Load()
}

func (f *flakyPersister) Clear() error {
	f.clears++
	return f.MemoryPersister.Clear()
}

func TestStoreKeepsTokenOnTransientLoadError(t *testing.T) {
	p := &flakyPersister{MemoryPersister: token.NewMemoryPersister()}
	access := mintAccessToken(t, baseTime.Add(time.Hour))
	require.NoError(t, p.Save(token.Record{AccessToken: access, RefreshToken: "R1", SavedAt: baseTime}))
	p.err = fmt.Errorf("keyring get: %w", os.ErrPermission)

	s := token.NewStore(p, token.WithNowFunc(fixedNow(baseTime)))
	_, ok := s.Get()
	require.False(t, ok)
	require.Zero(t, p.clears)

	p.err = nil
	got, ok := s.Get()
	require.True(t, ok)
	require.Equal(t, access, got.AccessToken)
}

func TestStoreMaxAge(t *testing.T) {
	p := token.NewMemoryPersister()
	access := mintAccessToken(t, baseTime.Add(30*24*time.Hour))
	require.NoError(t, p.Save(token.Record{AccessToken: access, RefreshToken: "R1", SavedAt: baseTime}))

	fresh := token.NewStore(p, token.WithNowFunc(fixedNow(baseTime.Add(time.Hour))), token.WithMaxAge(24*time.Hour))
	_, ok := fresh.Get()
	require.True(t, ok)

	stale := token.NewStore(p, token.WithNowFunc(fixedNow(baseTime.Add(48*time.Hour))), token.WithMaxAge(24*time.Hour))
	_, ok = stale.Get()
	require.False(t, ok)
}

func TestFilePersister(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	p := token.NewFilePersister(path)

	rec, err := p.Load()
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, p.Save(token.Record{AccessToken: "A1", RefreshToken: "R1", SavedAt: baseTime}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	rec, err = p.Load()
	require.NoError(t, err)
	require.Equal(t, "A1", rec.AccessToken)
	require.Equal(t, "R1", rec.RefreshToken)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = p.Load()
	require.ErrorIs(t, err, errors.ErrMalformedToken)

	require.NoError(t, p.Clear())
	require.NoError(t, p.Clear())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestFilePersisterSecureCookie(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.cookie")
	hashKey := []byte("0123456789abcdef0123456789abcdef")
	blockKey := []byte("abcdef0123456789")
	p := token.NewFilePersister(path, token.WithSecureCookie(hashKey, blockKey, time.Hour))

	require.NoError(t, p.Save(token.Record{AccessToken: "A1", RefreshToken: "R1", SavedAt: baseTime}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "R1")

	rec, err := p.Load()
	require.NoError(t, err)
	require.Equal(t, "R1", rec.RefreshToken)

	other := token.NewFilePersister(path, token.WithSecureCookie([]byte("another-hash-key-another-hash-ke"), blockKey, time.Hour))
	_, err = other.Load()
	require.ErrorIs(t, err, errors.ErrMalformedToken)

	// a store over a tampered file reports no token rather than failing
	s := token.NewStore(other)
	_, ok := s.Get()
	require.False(t, ok)
}

func TestKeyringPersister(t *testing.T) {
	keyring.MockInit()
	p := token.NewKeyringPersister("hr-access-test", "default")

	rec, err := p.Load()
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, p.Save(token.Record{AccessToken: "A1", RefreshToken: "R1", SavedAt: baseTime}))
	rec, err = p.Load()
	require.NoError(t, err)
	require.Equal(t, "A1", rec.AccessToken)

	require.NoError(t, p.Clear())
	require.NoError(t, p.Clear())
	rec, err = p.Load()
	require.NoError(t, err)
	require.Nil(t, rec)
}
