package kv

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

var sealedMagic = []byte("RSKV1")

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

// ErrBadPassphrase is returned when a sealed store cannot be opened.
var ErrBadPassphrase = errors.New("kv: wrong passphrase or corrupted store")

// FileStore persists all keys in a single file. With a passphrase the file
// is sealed with NaCl secretbox under a scrypt-derived key.
type FileStore struct {
	path string

	mu   sync.Mutex
	data map[string][]byte
	key  *[keySize]byte
	salt []byte
}

// NewFileStore opens (or lazily creates) the store at path.
func NewFileStore(path, passphrase string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("kv: file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	f := &FileStore{path: path, data: make(map[string][]byte)}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if passphrase != "" {
			salt := make([]byte, saltSize)
			if _, err := io.ReadFull(rand.Reader, salt); err != nil {
				return nil, fmt.Errorf("generate salt: %w", err)
			}
			if err := f.deriveKey(passphrase, salt); err != nil {
				return nil, err
			}
		}
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("read store: %w", err)
	}
	if bytes.HasPrefix(raw, sealedMagic) {
		if passphrase == "" {
			return nil, errors.New("kv: store is encrypted, passphrase required")
		}
		raw, err = f.open(raw, passphrase)
		if err != nil {
			return nil, err
		}
	} else if passphrase != "" {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		if err := f.deriveKey(passphrase, salt); err != nil {
			return nil, err
		}
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &f.data); err != nil {
			return nil, fmt.Errorf("parse store: %w", err)
		}
	}
	return f, nil
}

func (f *FileStore) deriveKey(passphrase string, salt []byte) error {
	derived, err := scrypt.Key([]byte(passphrase), salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}
	var key [keySize]byte
	copy(key[:], derived)
	f.key = &key
	f.salt = salt
	return nil
}

func (f *FileStore) open(raw []byte, passphrase string) ([]byte, error) {
	body := raw[len(sealedMagic):]
	if len(body) < saltSize+nonceSize {
		return nil, ErrBadPassphrase
	}
	if err := f.deriveKey(passphrase, body[:saltSize]); err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], body[saltSize:saltSize+nonceSize])
	plain, ok := secretbox.Open(nil, body[saltSize+nonceSize:], &nonce, f.key)
	if !ok {
		return nil, ErrBadPassphrase
	}
	return plain, nil
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	prev, had := f.data[key]
	f.data[key] = v
	if err := f.flushLocked(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.data[key]
	if !had {
		return nil
	}
	delete(f.data, key)
	if err := f.flushLocked(); err != nil {
		f.data[key] = prev
		return err
	}
	return nil
}

func (f *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// flushLocked rewrites the whole file through a temp file and rename.
func (f *FileStore) flushLocked() error {
	payload, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if f.key != nil {
		var nonce [nonceSize]byte
		if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return fmt.Errorf("generate nonce: %w", err)
		}
		sealed := make([]byte, 0, len(sealedMagic)+saltSize+nonceSize+len(payload)+secretbox.Overhead)
		sealed = append(sealed, sealedMagic...)
		sealed = append(sealed, f.salt...)
		sealed = append(sealed, nonce[:]...)
		payload = secretbox.Seal(sealed, payload, &nonce, f.key)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".kv-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod store: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
