// Command uc is a CLI client for the usercenter service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/weiki/usercenter-cli/internal/api"
	"github.com/weiki/usercenter-cli/internal/config"
	"github.com/weiki/usercenter-cli/internal/errs"
	"github.com/weiki/usercenter-cli/internal/rest"
	"github.com/weiki/usercenter-cli/internal/session"
	"github.com/weiki/usercenter-cli/internal/store"
)

// ---- app wiring ----

type app struct {
	api  *api.Client
	sess *session.Store
	log  *zap.Logger
}

func newApp(baseURL string, verbose bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		cfg.Server.BaseURL = baseURL
	}

	log := zap.NewNop()
	if verbose {
		log, err = zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
	}

	st, err := store.OpenFile(cfg.Session.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	pol := rest.DefaultRetryPolicy()
	pol.MaxRetries = cfg.Retry.MaxRetries
	pol.BaseDelay = cfg.Retry.BaseDelay

	rc, err := rest.New(rest.Options{
		BaseURL:          cfg.Server.BaseURL,
		Timeout:          cfg.Server.Timeout,
		CacheTTL:         cfg.Cache.TTL,
		Retry:            &pol,
		Store:            st,
		Logger:           log,
		FallbackTokenTTL: cfg.Session.TokenTTL,
	})
	if err != nil {
		return nil, err
	}

	a := api.New(rc, log)
	return &app{
		api:  a,
		sess: session.New(a, st, log),
		log:  log,
	}, nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	if se, ok := errs.AsServerError(err); ok {
		fmt.Fprintf(os.Stderr, "server error: code=%d msg=%s\n", se.Code, se.Error())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `uc CLI
Usage:
  uc [-base URL] [-v] <cmd> [args]

Commands:
  version
  register  -u <account> -p <password>
  login     -u <account> -p <password>          (saves session)
  logout
  whoami    [-remote]                           (-remote forces a live fetch)
  update    [-name s] [-avatar url] [-gender n] [-phone s] [-email s]
  passwd    -old <password> -new <password>
  delete    -u <account> -p <password>          (removes the account)

Admin commands:
  users     [-page n] [-size n] [-name s] [-account s] [-role n]
  ban       -id <userId> [-days n] [-reason s] [-permanent]
  unban     -id <userId>
  banned    [-page n] [-size n]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands over the shared client wiring.
func main() {
	base := flag.String("base", "", "backend base URL (overrides config)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	if cmd == "version" {
		fmt.Printf("uc %s (%s)\n", version, buildDate)
		return
	}

	app, err := newApp(*base, *verbose)
	if err != nil {
		fail(err)
	}
	defer func() { _ = app.log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		u := fs.String("u", "", "account")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		user, err := app.api.Register(ctx, *u, *p, *p)
		if err != nil {
			fail(err)
		}
		fmt.Println(user.ID)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "account")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		user, err := app.api.Login(ctx, *u, *p)
		if err != nil {
			fail(err)
		}
		fmt.Printf("ok %s (%s)\n", user.Account, roleLabel(user.Role))

	case "logout":
		if err := app.api.Logout(ctx); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "whoami":
		fs := flag.NewFlagSet("whoami", flag.ExitOnError)
		remote := fs.Bool("remote", false, "skip the cache and the local mirror")
		_ = fs.Parse(flag.Args()[1:])
		cmdWhoami(ctx, app, *remote)

	case "update":
		cmdUpdate(ctx, app, flag.Args()[1:])

	case "passwd":
		fs := flag.NewFlagSet("passwd", flag.ExitOnError)
		oldPwd := fs.String("old", "", "current password")
		newPwd := fs.String("new", "", "new password")
		_ = fs.Parse(flag.Args()[1:])
		if *oldPwd == "" || *newPwd == "" {
			fmt.Fprintln(os.Stderr, "need -old and -new")
			os.Exit(1)
		}
		if err := app.api.UpdatePassword(ctx, *oldPwd, *newPwd, *newPwd); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "delete":
		fs := flag.NewFlagSet("delete", flag.ExitOnError)
		u := fs.String("u", "", "account")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		if err := app.api.DeleteAccount(ctx, *u, *p); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "users":
		cmdUsers(ctx, app, flag.Args()[1:])
	case "ban":
		cmdBan(ctx, app, flag.Args()[1:])
	case "unban":
		cmdUnban(ctx, app, flag.Args()[1:])
	case "banned":
		cmdBanned(ctx, app, flag.Args()[1:])

	default:
		usage()
	}
}

// cmdWhoami prints the session user. The default path answers from the local
// mirror instantly and then reconciles; -remote goes straight to the backend.
func cmdWhoami(ctx context.Context, app *app, remote bool) {
	if !remote {
		if app.sess.Restore() {
			if u, ok := app.sess.Current(); ok {
				printJSON(u)
			}
			// reconcile in the same process so the mirror never goes stale
			if _, err := app.sess.Refresh(ctx, true); err != nil {
				fail(err)
			}
			return
		}
	}
	u, err := app.sess.Refresh(ctx, false)
	if err != nil {
		fail(err)
	}
	if u == nil {
		fmt.Fprintln(os.Stderr, "not logged in")
		os.Exit(1)
	}
	printJSON(u)
}

func cmdUpdate(ctx context.Context, app *app, args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	avatar := fs.String("avatar", "", "avatar URL")
	gender := fs.Int("gender", -1, "gender (0 unspecified, 1 male, 2 female)")
	phone := fs.String("phone", "", "phone")
	email := fs.String("email", "", "email")
	_ = fs.Parse(args)

	p := updateParams(*name, *avatar, *gender, *phone, *email)
	if err := app.api.UpdateProfile(ctx, p); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}
