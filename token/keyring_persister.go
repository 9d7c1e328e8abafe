package token

import (
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"github.com/zalando/go-keyring"
)

var _ Persister = (*KeyringPersister)(nil)

// KeyringPersister stores the record in the OS credential store
// (Keychain, Secret Service, Windows Credential Manager).
type KeyringPersister struct {
	service string
	account string
}

func NewKeyringPersister(service, account string) *KeyringPersister {
	return &KeyringPersister{service: service, account: account}
}

func (k *KeyringPersister) Load() (*Record, error) {
	secret, err := keyring.Get(k.service, k.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(secret), &rec); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedToken, "unmarshal keyring entry: %v", err)
	}
	return &rec, nil
}

func (k *KeyringPersister) Save(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal keyring entry: %w", err)
	}
	if err := keyring.Set(k.service, k.account, string(data)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

func (k *KeyringPersister) Clear() error {
	if err := keyring.Delete(k.service, k.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}
