// Package api exposes typed wrappers over the usercenter REST endpoints.
// Every mutation invalidates the cache entries it can affect.
package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/weiki/usercenter-cli/internal/convert"
	"github.com/weiki/usercenter-cli/internal/errs"
	"github.com/weiki/usercenter-cli/internal/model"
	"github.com/weiki/usercenter-cli/internal/rest"
)

// Backend endpoint paths.
const (
	PathLogin          = "/user/login"
	PathRegister       = "/user/register"
	PathLogout         = "/user/logout"
	PathCurrent        = "/user/current"
	PathUpdate         = "/user/update"
	PathUpdatePassword = "/user/update-password"
	PathDelete         = "/user/delete"
	PathList           = "/user/list/page"
	PathBan            = "/user/ban/ban"
	PathUnban          = "/user/ban/unban"
	PathBanList        = "/user/ban/list"
)

// Client is the typed API surface used by the session store and the CLI.
type Client struct {
	rest *rest.Client
	log  *zap.Logger
}

// New wraps a REST client.
func New(rc *rest.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{rest: rc, log: log}
}

// InvalidateCurrentUser drops the cached /user/current entry.
func (c *Client) InvalidateCurrentUser() { c.rest.Invalidate(PathCurrent) }

// InvalidateUserLists drops every cached listing page (admin and ban lists).
func (c *Client) InvalidateUserLists() {
	c.rest.Invalidate(PathList)
	c.rest.Invalidate(PathBanList)
}

// Login authenticates and persists the issued token. The caches from the
// previous session are dropped so nothing leaks across users.
func (c *Client) Login(ctx context.Context, account, password string) (*model.User, error) {
	if account == "" || password == "" {
		return nil, fmt.Errorf("%w: account and password required", errs.ErrInvalidInput)
	}
	c.InvalidateCurrentUser()
	c.InvalidateUserLists()
	data, err := c.rest.PostAuth(ctx, PathLogin, map[string]string{
		"userAccount":  account,
		"userPassword": password,
	})
	if err != nil {
		return nil, err
	}
	u, err := convert.UserFromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := c.rest.Store().SaveUser(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Register creates an account and, like the backend, leaves the caller
// authenticated.
func (c *Client) Register(ctx context.Context, account, password, checkPassword string) (*model.User, error) {
	if account == "" || password == "" {
		return nil, fmt.Errorf("%w: account and password required", errs.ErrInvalidInput)
	}
	if password != checkPassword {
		return nil, fmt.Errorf("%w: passwords do not match", errs.ErrInvalidInput)
	}
	data, err := c.rest.PostAuth(ctx, PathRegister, map[string]string{
		"userAccount":   account,
		"userPassword":  password,
		"checkPassword": checkPassword,
	})
	if err != nil {
		return nil, err
	}
	u, err := convert.UserFromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := c.rest.Store().SaveUser(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Logout invalidates the backend session and wipes local state. Local state
// goes away even when the backend call fails: the next user must never see
// the previous session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.rest.Post(ctx, PathLogout, struct{}{})
	if err != nil {
		c.log.Warn("backend logout failed, clearing local session anyway", zap.Error(err))
	}
	c.InvalidateCurrentUser()
	c.InvalidateUserLists()
	if cerr := c.rest.Store().Clear(); cerr != nil {
		return cerr
	}
	if err != nil && !errs.IsNotAuthenticated(err) {
		return err
	}
	return nil
}

// CurrentUser fetches the authenticated user, served from cache within the TTL.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	data, err := c.rest.GetCached(ctx, PathCurrent, nil)
	if err != nil {
		return nil, err
	}
	return convert.UserFromJSON(data)
}

// UpdateParams carries the mutable profile fields; nil means "leave as is".
// ID is only honored for admin edits of another account.
type UpdateParams struct {
	ID        *int64        `json:"id,omitempty"`
	Username  *string       `json:"username,omitempty"`
	AvatarURL *string       `json:"avatarUrl,omitempty"`
	Gender    *model.Gender `json:"gender,omitempty"`
	Phone     *string       `json:"phone,omitempty"`
	Email     *string       `json:"email,omitempty"`
}

func (p UpdateParams) empty() bool {
	return p.Username == nil && p.AvatarURL == nil && p.Gender == nil && p.Phone == nil && p.Email == nil
}

// UpdateProfile mutates profile fields and invalidates the reads that could
// serve the stale record.
func (c *Client) UpdateProfile(ctx context.Context, p UpdateParams) error {
	if p.empty() {
		return fmt.Errorf("%w: nothing to update", errs.ErrInvalidInput)
	}
	if _, err := c.rest.Post(ctx, PathUpdate, p); err != nil {
		return err
	}
	c.InvalidateCurrentUser()
	c.InvalidateUserLists()
	return nil
}

// UpdatePassword changes the password of the authenticated user.
func (c *Client) UpdatePassword(ctx context.Context, oldPassword, newPassword, checkPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: old and new password required", errs.ErrInvalidInput)
	}
	if newPassword != checkPassword {
		return fmt.Errorf("%w: passwords do not match", errs.ErrInvalidInput)
	}
	_, err := c.rest.Post(ctx, PathUpdatePassword, map[string]string{
		"oldPassword":   oldPassword,
		"newPassword":   newPassword,
		"checkPassword": checkPassword,
	})
	return err
}

// DeleteAccount removes the authenticated account and wipes local state.
func (c *Client) DeleteAccount(ctx context.Context, account, password string) error {
	if account == "" || password == "" {
		return fmt.Errorf("%w: account and password required", errs.ErrInvalidInput)
	}
	if _, err := c.rest.Post(ctx, PathDelete, map[string]string{
		"userAccount":  account,
		"userPassword": password,
	}); err != nil {
		return err
	}
	c.InvalidateCurrentUser()
	c.InvalidateUserLists()
	return c.rest.Store().Clear()
}

// ListParams filters the admin user listing.
type ListParams struct {
	Current  int64
	PageSize int64
	Username string
	Account  string
	Role     *model.Role
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	current, size := p.Current, p.PageSize
	if current <= 0 {
		current = 1
	}
	if size <= 0 {
		size = 10
	}
	v.Set("current", strconv.FormatInt(current, 10))
	v.Set("pageSize", strconv.FormatInt(size, 10))
	if p.Username != "" {
		v.Set("username", p.Username)
	}
	if p.Account != "" {
		v.Set("userAccount", p.Account)
	}
	if p.Role != nil {
		v.Set("userRole", strconv.Itoa(int(*p.Role)))
	}
	return v
}

// ListUsers returns one page of the admin user listing, served from cache
// within the TTL.
func (c *Client) ListUsers(ctx context.Context, p ListParams) (model.Page[model.User], error) {
	data, err := c.rest.GetCached(ctx, PathList, p.values())
	if err != nil {
		return model.Page[model.User]{}, err
	}
	return convert.UserPageFromJSON(data)
}

// BanParams describes an admin ban request. BanDays == 0 or IsPermanent
// means a permanent ban; the backend then stores no unban timestamp.
type BanParams struct {
	UserID      int64
	BanDays     int
	Reason      string
	IsPermanent bool
}

// BanUser bans an account and invalidates every listing that may show it.
func (c *Client) BanUser(ctx context.Context, p BanParams) error {
	if p.UserID <= 0 {
		return fmt.Errorf("%w: user id must be positive", errs.ErrInvalidInput)
	}
	if strings.TrimSpace(p.Reason) == "" {
		return fmt.Errorf("%w: ban reason required", errs.ErrInvalidInput)
	}
	if p.BanDays < 0 {
		return fmt.Errorf("%w: ban days must not be negative", errs.ErrInvalidInput)
	}
	days := p.BanDays
	if p.IsPermanent {
		days = 0
	}
	body := map[string]any{
		"userId":  p.UserID,
		"banDays": days,
		"reason":  p.Reason,
	}
	if p.IsPermanent || days == 0 {
		body["isPermanent"] = true
	}
	if _, err := c.rest.Post(ctx, PathBan, body); err != nil {
		return err
	}
	c.InvalidateUserLists()
	return nil
}

// UnbanUser lifts a ban; the backend clears reason and unban date together.
func (c *Client) UnbanUser(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user id must be positive", errs.ErrInvalidInput)
	}
	if _, err := c.rest.Post(ctx, PathUnban, map[string]int64{"userId": userID}); err != nil {
		return err
	}
	c.InvalidateUserLists()
	return nil
}

// ListBanned returns one page of banned accounts.
func (c *Client) ListBanned(ctx context.Context, current, pageSize int64) (model.Page[model.User], error) {
	if current <= 0 {
		current = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	v := url.Values{}
	v.Set("current", strconv.FormatInt(current, 10))
	v.Set("pageSize", strconv.FormatInt(pageSize, 10))
	data, err := c.rest.GetCached(ctx, PathBanList, v)
	if err != nil {
		return model.Page[model.User]{}, err
	}
	return convert.UserPageFromJSON(data)
}
