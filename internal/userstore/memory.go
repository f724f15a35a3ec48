package userstore

import (
	"context"
	"strings"
	"sync"

	"github.com/Mattszczp/kirby-oauth/pkg/auth"
	"github.com/google/uuid"
)

type record struct {
	account      auth.Account
	passwordHash string
}

// Memory is a process-local UserStore.
type Memory struct {
	mu         sync.RWMutex
	byEmail    map[string]*record
	bcryptCost int
}

var _ auth.UserStore = (*Memory)(nil)

func NewMemory(bcryptCost int) *Memory {
	return &Memory{byEmail: make(map[string]*record), bcryptCost: bcryptCost}
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	acct := rec.account
	return &acct, nil
}

func (m *Memory) Create(ctx context.Context, in auth.NewAccount) (*auth.Account, error) {
	if !IsSystem(ctx) {
		return nil, ErrSystemContextRequired
	}
	hash, err := hashPassword(in.Password, m.bcryptCost)
	if err != nil {
		return nil, err
	}
	email := normalizeEmail(in.Email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[email]; ok {
		return nil, auth.ErrAccountExists
	}
	rec := &record{
		account: auth.Account{
			ID:    uuid.NewString(),
			Email: email,
			Name:  in.Name,
			Role:  in.Role,
		},
		passwordHash: hash,
	}
	m.byEmail[email] = rec
	acct := rec.account
	return &acct, nil
}

// Len returns the number of stored accounts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byEmail)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
