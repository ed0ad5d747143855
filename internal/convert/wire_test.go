package convert

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/weiki/usercenter-cli/internal/errs"
	"github.com/weiki/usercenter-cli/internal/model"
)

func TestUserFromJSON_Full(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"id": 42,
		"username": "Alice",
		"userAccount": "alice",
		"avatarUrl": "https://img.example/a.png",
		"gender": 2,
		"phone": "123",
		"email": "a@example.com",
		"userRole": 1,
		"userStatus": 0,
		"isBanned": 1,
		"banReason": "spam",
		"unbanDate": "2026-09-06T00:00:00Z",
		"createTime": "2024-01-02T03:04:05Z"
	}`)

	u, err := UserFromJSON(raw)
	if err != nil {
		t.Fatalf("UserFromJSON: %v", err)
	}
	if u.ID != 42 || u.Account != "alice" || u.Gender != model.GenderFemale || !u.IsAdmin() {
		t.Fatalf("bad user: %+v", u)
	}
	if !u.IsBanned || u.BanReason != "spam" || u.UnbanDate == nil {
		t.Fatalf("ban fields lost: %+v", u)
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !u.CreatedAt.Equal(want) {
		t.Fatalf("createTime: got %v want %v", u.CreatedAt, want)
	}
}

func TestUserFromJSON_EpochMillisDates(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"id":1,"userAccount":"bob","userRole":0,"createTime":1700000000000}`)
	u, err := UserFromJSON(raw)
	if err != nil {
		t.Fatalf("UserFromJSON: %v", err)
	}
	if u.CreatedAt.Unix() != 1700000000 {
		t.Fatalf("epoch millis not parsed: %v", u.CreatedAt)
	}
}

func TestUserFromJSON_ShapeRejected(t *testing.T) {
	t.Parallel()

	for name, raw := range map[string]string{
		"zero id":       `{"id":0,"userAccount":"x","userRole":0}`,
		"empty account": `{"id":3,"userAccount":"","userRole":0}`,
		"negative role": `{"id":3,"userAccount":"x","userRole":-1}`,
	} {
		if _, err := UserFromJSON([]byte(raw)); !errors.Is(err, errs.ErrInvalidInput) {
			t.Fatalf("%s: want ErrInvalidInput, got %v", name, err)
		}
	}

	if _, err := UserFromJSON([]byte(`not json`)); err == nil {
		t.Fatalf("want decode error")
	}
}

func TestFromWireUser_StaleBanMetadataCleared(t *testing.T) {
	t.Parallel()

	// backend row unbanned but still carrying old reason/date
	until := WireTime{Time: time.Now().Add(time.Hour)}
	u, err := FromWireUser(WireUser{ID: 5, Account: "carol", IsBanned: 0, BanReason: "old", UnbanDate: &until})
	if err != nil {
		t.Fatalf("FromWireUser: %v", err)
	}
	if u.IsBanned || u.BanReason != "" || u.UnbanDate != nil {
		t.Fatalf("stale ban metadata must be cleared: %+v", u)
	}
}

func TestUserPageFromJSON(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"records": [
			{"id":1,"userAccount":"a","userRole":0},
			{"id":0,"userAccount":"broken","userRole":0},
			{"id":2,"userAccount":"b","userRole":1}
		],
		"total": 3, "current": 1, "pageSize": 10
	}`)
	page, err := UserPageFromJSON(raw)
	if err != nil {
		t.Fatalf("UserPageFromJSON: %v", err)
	}
	if len(page.Records) != 2 || page.Total != 3 || page.PageSize != 10 {
		t.Fatalf("bad page: %+v", page)
	}
	if page.Records[0].Account != "a" || page.Records[1].Account != "b" {
		t.Fatalf("records mangled: %+v", page.Records)
	}
}

func TestWireTime_Roundtrip(t *testing.T) {
	t.Parallel()

	var wt WireTime
	if err := json.Unmarshal([]byte(`null`), &wt); err != nil || !wt.IsZero() {
		t.Fatalf("null: %v %v", wt, err)
	}
	b, err := json.Marshal(WireTime{})
	if err != nil || string(b) != "null" {
		t.Fatalf("zero marshals as %s (%v), want null", b, err)
	}
	if err := json.Unmarshal([]byte(`"bogus"`), &wt); err == nil {
		t.Fatalf("want parse error for bad string")
	}
}
