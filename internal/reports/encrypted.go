package reports

import (
	"context"
	"fmt"

	"github.com/johnrirwin/skinlens/internal/crypto"
	"github.com/johnrirwin/skinlens/internal/models"
)

// EncryptedStore encrypts report content and filename before they reach the wrapped store.
type EncryptedStore struct {
	inner Store
	enc   *crypto.Encryptor
}

// NewEncryptedStore wraps inner with a 32-byte AES key.
func NewEncryptedStore(inner Store, key []byte) (*EncryptedStore, error) {
	enc, err := crypto.NewEncryptor(key)
	if err != nil {
		return nil, err
	}
	return &EncryptedStore{inner: inner, enc: enc}, nil
}

func (s *EncryptedStore) Put(ctx context.Context, report models.StoredReport) (string, error) {
	content, err := s.enc.Seal(report.Content)
	if err != nil {
		return "", fmt.Errorf("encrypt report: %w", err)
	}
	filename, err := s.enc.Encrypt(report.Filename)
	if err != nil {
		return "", fmt.Errorf("encrypt filename: %w", err)
	}

	report.Content = content
	report.Filename = filename
	return s.inner.Put(ctx, report)
}

func (s *EncryptedStore) Get(ctx context.Context, ownerID, id string) (*models.StoredReport, error) {
	report, err := s.inner.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	content, err := s.enc.Open(report.Content)
	if err != nil {
		return nil, fmt.Errorf("decrypt report: %w", err)
	}
	filename, err := s.enc.Decrypt(report.Filename)
	if err != nil {
		return nil, fmt.Errorf("decrypt filename: %w", err)
	}

	report.Content = content
	report.Filename = filename
	return report, nil
}

func (s *EncryptedStore) Delete(ctx context.Context, id string) error {
	return s.inner.Delete(ctx, id)
}

var _ Store = (*EncryptedStore)(nil)
