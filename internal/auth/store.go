package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
	"github.com/fixxdigital/myob-mcp-server/internal/crypto"
)

// TokenStore defines the contract for persisting the OAuth2 credential.
// Implementations provide different backends (file, memory, Redis) so the
// credential survives restarts and, with Redis, can be shared across hosts.
type TokenStore interface {
	// Save persists the credential, overwriting any previous one
	Save(ctx context.Context, cred *Credential) error
	// Load retrieves the saved credential, returns nil if none exists
	Load(ctx context.Context) (*Credential, error)
	// Delete removes the credential; deleting a missing credential is not an error
	Delete(ctx context.Context) error
}

// FileTokenStore persists the credential as a file on disk, optionally
// encrypted at rest. Writes go through a temp file and rename so a crash
// mid-write never leaves a truncated credential behind.
type FileTokenStore struct {
	path      string
	encryptor *crypto.TokenEncryptor // nil means plaintext JSON
	mu        sync.Mutex
}

// NewFileTokenStore creates a file-backed store at path. When encryptor is
// non-nil the file holds AES-256-GCM ciphertext instead of plaintext JSON.
func NewFileTokenStore(path string, encryptor *crypto.TokenEncryptor) *FileTokenStore {
	return &FileTokenStore{path: path, encryptor: encryptor}
}

// Save writes the credential atomically with owner-only permissions.
func (s *FileTokenStore) Save(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload []byte
	if s.encryptor != nil {
		ciphertext, err := s.encryptor.EncryptJSON(cred)
		if err != nil {
			return err
		}
		payload = []byte(ciphertext)
	} else {
		data, err := json.MarshalIndent(cred, "", "  ")
		if err != nil {
			return errors.InternalError("failed to serialize credential", err)
		}
		payload = data
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.InternalError(fmt.Sprintf("failed to create %s", dir), err)
	}

	// Temp file in the same directory so the rename stays on one filesystem
	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return errors.InternalError("failed to create temp credential file", err)
	}
	tmpName := tmp.Name()

	if err := writeAndClose(tmp, payload); err != nil {
		os.Remove(tmpName)
		return errors.InternalError("failed to write credential file", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.InternalError("failed to replace credential file", err)
	}

	return nil
}

func writeAndClose(f *os.File, payload []byte) error {
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads the credential from disk. A missing file means no credential
// and returns nil without error; an undecryptable file is an auth error so
// the caller can tell the user to re-authenticate or fix the passphrase.
func (s *FileTokenStore) Load(ctx context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.InternalError(fmt.Sprintf("failed to read %s", s.path), err)
	}

	var cred Credential
	if s.encryptor != nil {
		if err := s.encryptor.DecryptJSON(string(data), &cred); err != nil {
			return nil, errors.AuthError("stored credential cannot be decrypted; check MYOB_TOKEN_PASSPHRASE or re-authenticate").WithCause(err)
		}
	} else {
		if err := json.Unmarshal(data, &cred); err != nil {
			return nil, errors.InternalError("credential file is corrupt", err)
		}
	}

	return &cred, nil
}

// Delete removes the credential file. Idempotent.
func (s *FileTokenStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.InternalError(fmt.Sprintf("failed to remove %s", s.path), err)
	}
	return nil
}

// MemoryTokenStore keeps the credential in memory only. Suitable for tests
// and throwaway sessions; everything is lost when the process exits.
type MemoryTokenStore struct {
	mu   sync.RWMutex
	cred *Credential
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Save stores the credential in memory.
func (s *MemoryTokenStore) Save(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	return nil
}

// Load returns the stored credential, nil if none has been saved.
func (s *MemoryTokenStore) Load(ctx context.Context) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, nil
}

// Delete clears the stored credential.
func (s *MemoryTokenStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}
