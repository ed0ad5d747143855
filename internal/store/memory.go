package store

import (
	"sync"
	"time"

	"github.com/weiki/usercenter-cli/internal/model"
)

// Memory is an in-process Store used by tests and embeddable as a fake for
// the file-backed mirror.
type Memory struct {
	mu sync.Mutex
	st state

	// Err, when set, is returned by every mutating call (failure injection).
	Err error
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.token(time.Now())
}

func (m *Memory) SaveToken(token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.st.Token = token
	m.st.TokenExp = expiresAt
	return nil
}

func (m *Memory) User() (*model.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.User == nil {
		return nil, false
	}
	cpy := *m.st.User
	return &cpy, true
}

func (m *Memory) SaveUser(u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if u == nil {
		m.st.User = nil
		return nil
	}
	cpy := *u
	m.st.User = &cpy
	return nil
}

func (m *Memory) LoginFlag() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.LoginAt == nil {
		return time.Time{}, false
	}
	return *m.st.LoginAt, true
}

func (m *Memory) SetLoginFlag(at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.st.LoginAt = &at
	return nil
}

func (m *Memory) ClearLoginFlag() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.st.LoginAt = nil
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.st = state{}
	return nil
}
