// Package convert maps the backend wire format onto domain records.
package convert

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/weiki/usercenter-cli/internal/model"
)

// WireTime tolerates the two date encodings the backend has been seen to emit:
// RFC 3339 strings and epoch milliseconds.
type WireTime struct {
	time.Time
}

func (t *WireTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("wire time %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("wire time %s: %w", b, err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (t WireTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// WireUser is the user payload as the backend serializes it.
type WireUser struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Account    string    `json:"userAccount"`
	AvatarURL  string    `json:"avatarUrl"`
	Gender     int       `json:"gender"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	Role       int       `json:"userRole"`
	Status     int       `json:"userStatus"`
	IsBanned   int       `json:"isBanned"`
	BanReason  string    `json:"banReason"`
	UnbanDate  *WireTime `json:"unbanDate"`
	CreateTime WireTime  `json:"createTime"`
}

// FromWireUser converts a wire user into a validated domain record.
func FromWireUser(in WireUser) (*model.User, error) {
	u := &model.User{
		ID:        in.ID,
		Account:   in.Account,
		Username:  in.Username,
		AvatarURL: in.AvatarURL,
		Gender:    model.Gender(in.Gender),
		Phone:     in.Phone,
		Email:     in.Email,
		Role:      model.Role(in.Role),
		Status:    model.Status(in.Status),
		IsBanned:  in.IsBanned == 1,
		BanReason: in.BanReason,
		CreatedAt: in.CreateTime.Time,
	}
	if in.UnbanDate != nil && !in.UnbanDate.IsZero() {
		d := in.UnbanDate.Time
		u.UnbanDate = &d
	}
	if !u.IsBanned {
		// never carry ban metadata on an unbanned record
		u.ClearBan()
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// UserFromJSON decodes and validates a user payload.
func UserFromJSON(raw json.RawMessage) (*model.User, error) {
	var w WireUser
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return FromWireUser(w)
}

// UserPageFromJSON decodes one page of a user listing. Records that fail the
// shape check are dropped rather than failing the whole page.
func UserPageFromJSON(raw json.RawMessage) (model.Page[model.User], error) {
	var w struct {
		Records  []WireUser `json:"records"`
		Total    int64      `json:"total"`
		Current  int64      `json:"current"`
		PageSize int64      `json:"pageSize"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Page[model.User]{}, fmt.Errorf("decode user page: %w", err)
	}
	page := model.Page[model.User]{
		Records:  make([]model.User, 0, len(w.Records)),
		Total:    w.Total,
		Current:  w.Current,
		PageSize: w.PageSize,
	}
	for _, rec := range w.Records {
		u, err := FromWireUser(rec)
		if err != nil {
			continue
		}
		page.Records = append(page.Records, *u)
	}
	return page, nil
}
