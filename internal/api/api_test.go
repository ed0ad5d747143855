package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weiki/usercenter-cli/internal/errs"
	"github.com/weiki/usercenter-cli/internal/model"
	"github.com/weiki/usercenter-cli/internal/rest"
	"github.com/weiki/usercenter-cli/internal/store"
)

// fakeBackend mimics the usercenter REST API closely enough for the client:
// envelope responses, bearer auth, and per-path call counting.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int
	users map[int64]*wireUser
	phone string
}

type wireUser struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Account   string     `json:"userAccount"`
	Gender    int        `json:"gender"`
	Phone     string     `json:"phone"`
	Role      int        `json:"userRole"`
	Status    int        `json:"userStatus"`
	IsBanned  int        `json:"isBanned"`
	BanReason string     `json:"banReason,omitempty"`
	UnbanDate *time.Time `json:"unbanDate,omitempty"`
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls: map[string]int{},
		users: map[int64]*wireUser{
			1: {ID: 1, Username: "Alice", Account: "alice", Role: 1},
			2: {ID: 2, Username: "Bob", Account: "bob", Role: 0},
		},
		phone: "111",
	}
}

func (f *fakeBackend) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// currentUser is called with f.mu held.
func (f *fakeBackend) currentUser() wireUser {
	u := *f.users[1]
	u.Phone = f.phone
	return u
}

func writeEnvelope(w http.ResponseWriter, data any) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": 0, "data": data, "message": "ok", "description": "",
	})
}

func writeError(w http.ResponseWriter, status, code int, desc string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": code, "data": nil, "message": "error", "description": desc,
	})
}

func (f *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// one request at a time keeps the fake trivially consistent
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls[r.URL.Path]++

		switch r.URL.Path {
		case PathLogin:
			var req struct{ UserAccount, UserPassword string }
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.UserPassword != "pw12345678" {
				writeError(w, http.StatusUnauthorized, errs.CodeLoginError, "wrong account or password")
				return
			}
			writeEnvelope(w, f.currentUser())
		case PathCurrent:
			if r.Header.Get("Authorization") == "" {
				writeError(w, http.StatusUnauthorized, errs.CodeNotLogin, "")
				return
			}
			writeEnvelope(w, f.currentUser())
		case PathUpdate:
			var req struct {
				Phone *string `json:"phone"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Phone != nil {
				f.phone = *req.Phone
			}
			writeEnvelope(w, true)
		case PathList:
			recs := []wireUser{*f.users[1], *f.users[2]}
			writeEnvelope(w, map[string]any{
				"records": recs, "total": len(recs),
				"current": 1, "pageSize": 10,
			})
		case PathBan:
			var req struct {
				UserID  int64 `json:"userId"`
				BanDays int   `json:"banDays"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			u, ok := f.users[req.UserID]
			if !ok {
				writeError(w, http.StatusBadRequest, errs.CodeParamsError, "no such user")
				return
			}
			if u.Role == 1 {
				writeError(w, http.StatusBadRequest, errs.CodeOperation, "admins cannot be banned")
				return
			}
			u.IsBanned = 1
			if req.BanDays > 0 {
				until := time.Now().Add(time.Duration(req.BanDays) * 24 * time.Hour)
				u.UnbanDate = &until
			}
			writeEnvelope(w, true)
		case PathUnban:
			var req struct {
				UserID int64 `json:"userId"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if u, ok := f.users[req.UserID]; ok {
				u.IsBanned = 0
				u.UnbanDate = nil
				u.BanReason = ""
			}
			writeEnvelope(w, true)
		case PathBanList:
			recs := []wireUser{}
			for _, u := range f.users {
				if u.IsBanned == 1 {
					recs = append(recs, *u)
				}
			}
			writeEnvelope(w, map[string]any{
				"records": recs, "total": len(recs), "current": 1, "pageSize": 10,
			})
		case PathLogout, PathUpdatePassword, PathDelete, PathRegister:
			if r.URL.Path == PathRegister {
				writeEnvelope(w, *f.users[2])
				return
			}
			writeEnvelope(w, true)
		default:
			writeError(w, http.StatusNotFound, errs.CodeNotFound, "")
		}
	})
}

func newTestAPI(t *testing.T) (*Client, *fakeBackend, store.Store) {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	st := store.NewMemory()
	rc, err := rest.New(rest.Options{
		BaseURL: srv.URL,
		Store:   st,
		Retry:   &rest.RetryPolicy{},
	})
	require.NoError(t, err)
	return New(rc, nil), backend, st
}

func TestLogin_PersistsSession(t *testing.T) {
	t.Parallel()
	c, _, st := newTestAPI(t)

	u, err := c.Login(context.Background(), "alice", "pw12345678")
	require.NoError(t, err)
	require.Equal(t, int64(1), u.ID)
	require.True(t, u.IsAdmin())

	_, ok := st.Token()
	require.True(t, ok, "token must be persisted after login")
	snap, ok := st.User()
	require.True(t, ok)
	require.Equal(t, "alice", snap.Account)
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()
	c, _, st := newTestAPI(t)

	_, err := c.Login(context.Background(), "alice", "nope")
	se, ok := errs.AsServerError(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeLoginError, se.Code)
	require.Equal(t, "wrong account or password", se.Error())

	_, hasTok := st.Token()
	require.False(t, hasTok)
}

func TestLogin_InputGuards(t *testing.T) {
	t.Parallel()
	c, backend, _ := newTestAPI(t)

	_, err := c.Login(context.Background(), "", "pw")
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	require.Zero(t, backend.count(PathLogin), "guard must trip before the network")
}

func TestCurrentUser_CachedWithinTTL(t *testing.T) {
	t.Parallel()
	c, backend, _ := newTestAPI(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "alice", "pw12345678")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		u, err := c.CurrentUser(ctx)
		require.NoError(t, err)
		require.Equal(t, "alice", u.Account)
	}
	require.Equal(t, 1, backend.count(PathCurrent), "repeat reads within TTL must not hit the network")
}

func TestUpdateProfile_InvalidatesCurrentUser(t *testing.T) {
	t.Parallel()
	c, backend, _ := newTestAPI(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "alice", "pw12345678")
	require.NoError(t, err)

	u, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	require.Equal(t, "111", u.Phone)

	phone := "222"
	require.NoError(t, c.UpdateProfile(ctx, UpdateParams{Phone: &phone}))

	u, err = c.CurrentUser(ctx)
	require.NoError(t, err)
	require.Equal(t, "222", u.Phone, "stale cached profile served after update")
	require.Equal(t, 2, backend.count(PathCurrent))
}

func TestUpdateProfile_RejectsEmpty(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestAPI(t)
	err := c.UpdateProfile(context.Background(), UpdateParams{})
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestListUsers_FiltersAndCache(t *testing.T) {
	t.Parallel()
	c, backend, _ := newTestAPI(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "alice", "pw12345678")
	require.NoError(t, err)

	page, err := c.ListUsers(ctx, ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.EqualValues(t, 2, page.Total)

	_, err = c.ListUsers(ctx, ListParams{})
	require.NoError(t, err)
	require.Equal(t, 1, backend.count(PathList))

	role := model.RoleAdmin
	_, err = c.ListUsers(ctx, ListParams{Account: "ali", Role: &role})
	require.NoError(t, err)
	require.Equal(t, 2, backend.count(PathList), "different filters must be a different cache key")
}

func TestBanUnban_Flow(t *testing.T) {
	t.Parallel()
	c, backend, _ := newTestAPI(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "alice", "pw12345678")
	require.NoError(t, err)

	// listing before the ban primes the cache
	_, err = c.ListBanned(ctx, 1, 10)
	require.NoError(t, err)

	require.NoError(t, c.BanUser(ctx, BanParams{UserID: 2, BanDays: 5, Reason: "spam"}))

	banned, err := c.ListBanned(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, banned.Records, 1, "ban must invalidate the banned listing cache")
	require.Equal(t, "bob", banned.Records[0].Account)
	st := model.ClassifyBan(&banned.Records[0], time.Now())
	require.Equal(t, model.BanTemporary, st.Kind)

	require.NoError(t, c.UnbanUser(ctx, 2))
	banned, err = c.ListBanned(ctx, 1, 10)
	require.NoError(t, err)
	require.Empty(t, banned.Records)
	require.Equal(t, 3, backend.count(PathBanList))
}

func TestBanUser_Guards(t *testing.T) {
	t.Parallel()
	c, backend, _ := newTestAPI(t)
	ctx := context.Background()

	require.ErrorIs(t, c.BanUser(ctx, BanParams{UserID: 0, Reason: "x"}), errs.ErrInvalidInput)
	require.ErrorIs(t, c.BanUser(ctx, BanParams{UserID: 2, Reason: "  "}), errs.ErrInvalidInput)
	require.ErrorIs(t, c.BanUser(ctx, BanParams{UserID: 2, BanDays: -1, Reason: "x"}), errs.ErrInvalidInput)
	require.Zero(t, backend.count(PathBan))

	// admins cannot be banned: backend decides, client surfaces the description
	err := c.BanUser(ctx, BanParams{UserID: 1, Reason: "nope"})
	require.EqualError(t, err, "admins cannot be banned")
}

func TestLogout_ClearsLocalStateEvenOnBackendFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError, errs.CodeSystemError, "backend down")
	}))
	t.Cleanup(srv.Close)

	st := store.NewMemory()
	_ = st.SaveToken("tok", time.Now().Add(time.Hour))
	_ = st.SaveUser(&model.User{ID: 1, Account: "alice"})
	rc, err := rest.New(rest.Options{BaseURL: srv.URL, Store: st, Retry: &rest.RetryPolicy{}})
	require.NoError(t, err)
	c := New(rc, nil)

	err = c.Logout(context.Background())
	require.Error(t, err, "backend failure still surfaces")

	_, hasTok := st.Token()
	require.False(t, hasTok, "token must be wiped regardless")
	_, hasUser := st.User()
	require.False(t, hasUser)
}

func TestDeleteAccount_WipesMirror(t *testing.T) {
	t.Parallel()
	c, _, st := newTestAPI(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "alice", "pw12345678")
	require.NoError(t, err)

	require.NoError(t, c.DeleteAccount(ctx, "alice", "pw12345678"))
	_, hasTok := st.Token()
	require.False(t, hasTok)
	_, hasUser := st.User()
	require.False(t, hasUser)
}

func TestUpdatePassword_Guards(t *testing.T) {
	t.Parallel()
	c, backend, _ := newTestAPI(t)
	ctx := context.Background()

	require.ErrorIs(t, c.UpdatePassword(ctx, "", "new", "new"), errs.ErrInvalidInput)
	require.ErrorIs(t, c.UpdatePassword(ctx, "old", "new", "other"), errs.ErrInvalidInput)
	require.Zero(t, backend.count(PathUpdatePassword))

	require.NoError(t, c.UpdatePassword(ctx, "old12345", "new12345", "new12345"))
}
