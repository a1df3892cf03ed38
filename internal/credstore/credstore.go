// Package credstore persists the session token in an encrypted file,
// standing in for the platform secure-storage facility. A single logical
// key ("jwt_token") holds the token string; nothing else is stored.
package credstore

import (
	"errors"
	"sync"
)

// TokenKey is the fixed name the session token is stored under.
const TokenKey = "jwt_token"

// ErrNotFound is returned by Get when no token is stored.
var ErrNotFound = errors.New("credstore: token not found")

// Store is the secure credential store contract.
type Store interface {
	Get() (string, error)
	Set(token string) error
	Delete() error
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu    sync.Mutex
	token string
	set   bool
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) Get() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return "", ErrNotFound
	}
	return m.token, nil
}

func (m *MemStore) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.set = true
	return nil
}

func (m *MemStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.set = false
	return nil
}
