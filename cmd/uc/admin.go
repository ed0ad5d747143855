// cmd/uc/admin.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/weiki/usercenter-cli/internal/api"
	"github.com/weiki/usercenter-cli/internal/model"
)

// ------- render helpers -------

func roleLabel(r model.Role) string {
	switch r {
	case model.RoleAdmin:
		return "admin"
	case model.RoleStandard:
		return "user"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// banLabel renders the ban state of u at now for listings.
func banLabel(u *model.User, now time.Time) string {
	st := model.ClassifyBan(u, now)
	switch st.Kind {
	case model.BanNone:
		return ""
	case model.BanPermanent:
		return "banned permanently"
	case model.BanTemporary:
		return fmt.Sprintf("banned until %s", st.Until.UTC().Format(time.RFC3339))
	case model.BanExpired:
		return "ban expired"
	default:
		return st.Kind.String()
	}
}

type userRow struct {
	ID      int64  `json:"id"`
	Account string `json:"account"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role"`
	Ban     string `json:"ban,omitempty"`
}

func rows(users []model.User, now time.Time) []userRow {
	out := make([]userRow, 0, len(users))
	for i := range users {
		u := &users[i]
		out = append(out, userRow{
			ID:      u.ID,
			Account: u.Account,
			Name:    u.Username,
			Role:    roleLabel(u.Role),
			Ban:     banLabel(u, now),
		})
	}
	return out
}

// updateParams converts flag values into the sparse update request. A
// negative gender means "not set" so 0 can still clear the field.
func updateParams(name, avatar string, gender int, phone, email string) api.UpdateParams {
	var p api.UpdateParams
	if name != "" {
		p.Username = &name
	}
	if avatar != "" {
		p.AvatarURL = &avatar
	}
	if gender >= 0 {
		g := model.Gender(gender)
		p.Gender = &g
	}
	if phone != "" {
		p.Phone = &phone
	}
	if email != "" {
		p.Email = &email
	}
	return p
}

// ------- admin commands -------

func cmdUsers(ctx context.Context, app *app, args []string) {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	page := fs.Int64("page", 1, "page number")
	size := fs.Int64("size", 10, "page size")
	name := fs.String("name", "", "filter by name (fuzzy)")
	account := fs.String("account", "", "filter by account")
	role := fs.Int("role", -1, "filter by role")
	_ = fs.Parse(args)

	p := api.ListParams{Current: *page, PageSize: *size, Username: *name, Account: *account}
	if *role >= 0 {
		r := model.Role(*role)
		p.Role = &r
	}
	out, err := app.api.ListUsers(ctx, p)
	if err != nil {
		fail(err)
	}
	printJSON(struct {
		Total int64     `json:"total"`
		Page  int64     `json:"page"`
		Users []userRow `json:"users"`
	}{out.Total, out.Current, rows(out.Records, time.Now())})
}

func cmdBan(ctx context.Context, app *app, args []string) {
	fs := flag.NewFlagSet("ban", flag.ExitOnError)
	id := fs.Int64("id", 0, "user id")
	days := fs.Int("days", 0, "ban duration in days (0 = permanent)")
	reason := fs.String("reason", "", "ban reason")
	perm := fs.Bool("permanent", false, "permanent ban")
	_ = fs.Parse(args)
	if *id <= 0 || *reason == "" {
		fmt.Fprintln(os.Stderr, "need -id and -reason")
		os.Exit(1)
	}

	err := app.api.BanUser(ctx, api.BanParams{
		UserID:      *id,
		BanDays:     *days,
		Reason:      *reason,
		IsPermanent: *perm,
	})
	if err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdUnban(ctx context.Context, app *app, args []string) {
	fs := flag.NewFlagSet("unban", flag.ExitOnError)
	id := fs.Int64("id", 0, "user id")
	_ = fs.Parse(args)
	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "need -id")
		os.Exit(1)
	}
	if err := app.api.UnbanUser(ctx, *id); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdBanned(ctx context.Context, app *app, args []string) {
	fs := flag.NewFlagSet("banned", flag.ExitOnError)
	page := fs.Int64("page", 1, "page number")
	size := fs.Int64("size", 10, "page size")
	_ = fs.Parse(args)

	out, err := app.api.ListBanned(ctx, *page, *size)
	if err != nil {
		fail(err)
	}
	now := time.Now()
	type bannedRow struct {
		userRow
		Reason string `json:"reason,omitempty"`
	}
	brs := make([]bannedRow, 0, len(out.Records))
	for i := range out.Records {
		u := &out.Records[i]
		brs = append(brs, bannedRow{
			userRow: userRow{ID: u.ID, Account: u.Account, Name: u.Username, Role: roleLabel(u.Role), Ban: banLabel(u, now)},
			Reason:  u.BanReason,
		})
	}
	printJSON(struct {
		Total int64       `json:"total"`
		Page  int64       `json:"page"`
		Users []bannedRow `json:"users"`
	}{out.Total, out.Current, brs})
}
