// Package model defines domain records shared by the REST client, the session
// store, and the CLI.
package model

import (
	"fmt"
	"time"

	"github.com/weiki/usercenter-cli/internal/errs"
)

// Gender of a user profile.
type Gender int

const (
	GenderUnspecified Gender = 0
	GenderMale        Gender = 1
	GenderFemale      Gender = 2
)

// Role of an account. Only admin actions may change it.
type Role int

const (
	RoleStandard Role = 0
	RoleAdmin    Role = 1
)

// Status of an account.
type Status int

const (
	StatusActive   Status = 0
	StatusDisabled Status = 1
)

// User is the session record: identity, profile, authorization and ban state.
// ID and Account are immutable once the account exists.
type User struct {
	ID        int64      `json:"id"`
	Account   string     `json:"account"`
	Username  string     `json:"username,omitempty"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	Gender    Gender     `json:"gender"`
	Phone     string     `json:"phone,omitempty"`
	Email     string     `json:"email,omitempty"`
	Role      Role       `json:"role"`
	Status    Status     `json:"status"`
	IsBanned  bool       `json:"isBanned"`
	BanReason string     `json:"banReason,omitempty"`
	UnbanDate *time.Time `json:"unbanDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Validate checks the session-record shape: a positive numeric id, a non-empty
// account name and a non-negative role. Session refresh refuses payloads that
// fail this check instead of logging the user out.
func (u *User) Validate() error {
	if u == nil {
		return fmt.Errorf("%w: nil user", errs.ErrInvalidInput)
	}
	if u.ID <= 0 {
		return fmt.Errorf("%w: user id must be positive", errs.ErrInvalidInput)
	}
	if u.Account == "" {
		return fmt.Errorf("%w: empty account", errs.ErrInvalidInput)
	}
	if u.Role < 0 {
		return fmt.Errorf("%w: negative role", errs.ErrInvalidInput)
	}
	return nil
}

// IsAdmin reports whether the user may call the admin endpoints.
func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// ClearBan removes the ban flag together with its metadata. A record must
// never be "not banned" while still carrying a reason or an unban date.
func (u *User) ClearBan() {
	u.IsBanned = false
	u.BanReason = ""
	u.UnbanDate = nil
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Records  []T   `json:"records"`
	Total    int64 `json:"total"`
	Current  int64 `json:"current"`
	PageSize int64 `json:"pageSize"`
}

// BanKind classifies the ban sub-state of a record.
type BanKind int

const (
	BanNone      BanKind = iota // not banned
	BanPermanent                // banned with no unban timestamp
	BanTemporary                // banned until a future timestamp
	BanExpired                  // unban timestamp already passed, cleanup pending
)

func (k BanKind) String() string {
	switch k {
	case BanNone:
		return "none"
	case BanPermanent:
		return "permanent"
	case BanTemporary:
		return "temporary"
	case BanExpired:
		return "expired"
	default:
		return fmt.Sprintf("BanKind(%d)", int(k))
	}
}

// BanState is the classified ban status of a user at a point in time.
type BanState struct {
	Kind      BanKind
	Reason    string
	Until     *time.Time    // nil unless Kind is BanTemporary or BanExpired
	Remaining time.Duration // > 0 only for BanTemporary
}

// ClassifyBan derives the ban state of u at now. The canonical rule: a banned
// record without an unban timestamp is permanently banned; with a future
// timestamp it is temporary; with a past one the ban is expired and awaits
// server-side cleanup.
func ClassifyBan(u *User, now time.Time) BanState {
	if u == nil || !u.IsBanned {
		return BanState{Kind: BanNone}
	}
	if u.UnbanDate == nil {
		return BanState{Kind: BanPermanent, Reason: u.BanReason}
	}
	until := *u.UnbanDate
	if until.After(now) {
		return BanState{
			Kind:      BanTemporary,
			Reason:    u.BanReason,
			Until:     &until,
			Remaining: until.Sub(now),
		}
	}
	return BanState{Kind: BanExpired, Reason: u.BanReason, Until: &until}
}
