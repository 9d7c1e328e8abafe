package token

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/jrsteele09/go-tenant-access/internal/errors"
)

const cookieName = "hr_session"

var _ Persister = (*FilePersister)(nil)

// FilePersister stores the record as a file private to the current user.
// With a securecookie codec the file holds a signed (and optionally
// encrypted) cookie value carrying its own max-age, otherwise plain JSON.
type FilePersister struct {
	path  string
	codec *securecookie.SecureCookie
}

type FilePersisterOption func(*FilePersister)

// WithSecureCookie signs the file body with hashKey and, when blockKey is
// 16, 24 or 32 bytes, encrypts it. maxAge bounds how long a saved value is
// accepted.
func WithSecureCookie(hashKey, blockKey []byte, maxAge time.Duration) FilePersisterOption {
	return func(f *FilePersister) {
		if len(hashKey) == 0 {
			return
		}
		if len(blockKey) == 0 {
			blockKey = nil
		}
		codec := securecookie.New(hashKey, blockKey).
			MaxLength(0).
			SetSerializer(securecookie.JSONEncoder{})
		if maxAge > 0 {
			codec = codec.MaxAge(int(maxAge.Seconds()))
		}
		f.codec = codec
	}
}

func NewFilePersister(path string, options ...FilePersisterOption) *FilePersister {
	f := &FilePersister{path: path}
	for _, opt := range options {
		opt(f)
	}
	return f
}

func (f *FilePersister) Load() (*Record, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var rec Record
	if f.codec != nil {
		if err := f.codec.Decode(cookieName, string(data), &rec); err != nil {
			return nil, errors.Wrapf(errors.ErrMalformedToken, "decode token cookie: %v", err)
		}
		return &rec, nil
	}

	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedToken, "unmarshal token file: %v", err)
	}
	return &rec, nil
}

func (f *FilePersister) Save(rec Record) error {
	var data []byte
	if f.codec != nil {
		encoded, err := f.codec.Encode(cookieName, rec)
		if err != nil {
			return fmt.Errorf("encode token cookie: %w", err)
		}
		data = []byte(encoded)
	} else {
		var err error
		if data, err = json.MarshalIndent(rec, "", "  "); err != nil {
			return fmt.Errorf("marshal token file: %w", err)
		}
	}
	return writeFileAtomic(f.path, data)
}

func (f *FilePersister) Clear() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it into place so a crash never leaves a half-written token file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
