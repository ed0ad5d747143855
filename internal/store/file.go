package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/weiki/usercenter-cli/internal/crypto/statecrypto"
	"github.com/weiki/usercenter-cli/internal/model"
)

const (
	stateFile = "state.bin"
	keyFile   = "state.key"

	// profile binds the sealed blob to its file; multiple profiles are not
	// supported yet, a logout in one process can still race another.
	profile = "default"
)

// DefaultDir returns the per-user config directory for the client state.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "usercenter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "usercenter")
}

// File is the durable mirror backed by a sealed file in dir. All reads come
// from an in-memory copy loaded at open time; every write is persisted via
// temp-file rename so concurrent processes never see a torn state.
type File struct {
	mu  sync.Mutex
	dir string
	key []byte
	st  state
}

var _ Store = (*File)(nil)

// OpenFile loads (or initializes) the sealed state in dir. An unreadable or
// tampered state file is discarded: the cost is one extra login.
func OpenFile(dir string) (*File, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}

	f := &File{dir: dir}
	if err := f.loadKey(); err != nil {
		return nil, err
	}
	f.loadState()
	return f, nil
}

func (f *File) loadKey() error {
	path := filepath.Join(f.dir, keyFile)
	key, err := os.ReadFile(path)
	if err == nil && len(key) == statecrypto.KeyLen {
		f.key = key
		return nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("state key: %w", err)
	}
	key, err = statecrypto.NewKey()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return fmt.Errorf("write state key: %w", err)
	}
	f.key = key
	return nil
}

func (f *File) loadState() {
	sealed, err := os.ReadFile(filepath.Join(f.dir, stateFile))
	if err != nil {
		return
	}
	plain, err := statecrypto.Open(f.key, profile, sealed)
	if err != nil {
		return
	}
	var st state
	if json.Unmarshal(plain, &st) == nil {
		f.st = st
	}
}

func (f *File) persist() error {
	plain, err := json.Marshal(f.st)
	if err != nil {
		return err
	}
	sealed, err := statecrypto.Seal(f.key, profile, plain)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, stateFile+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(sealed); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(f.dir, stateFile))
}

func (f *File) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.token(time.Now())
}

func (f *File) SaveToken(token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.Token = token
	f.st.TokenExp = expiresAt
	return f.persist()
}

func (f *File) User() (*model.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.st.User == nil {
		return nil, false
	}
	cpy := *f.st.User
	return &cpy, true
}

func (f *File) SaveUser(u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u == nil {
		f.st.User = nil
	} else {
		cpy := *u
		f.st.User = &cpy
	}
	return f.persist()
}

func (f *File) LoginFlag() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.st.LoginAt == nil {
		return time.Time{}, false
	}
	return *f.st.LoginAt, true
}

func (f *File) SetLoginFlag(at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.LoginAt = &at
	return f.persist()
}

func (f *File) ClearLoginFlag() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.LoginAt = nil
	return f.persist()
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st = state{}
	if err := os.Remove(filepath.Join(f.dir, stateFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
