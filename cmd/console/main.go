package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"scratcha-console/client/internal/config"
	"scratcha-console/client/internal/gateway"
	"scratcha-console/client/internal/resource"
	resourcedomain "scratcha-console/client/internal/resource/domain"
	"scratcha-console/client/internal/session"
	sessiondomain "scratcha-console/client/internal/session/domain"
	"scratcha-console/client/internal/state"
	telemetryotel "scratcha-console/client/internal/telemetry/otel"
)

const usage = `usage: console <command> [flags]

session:
  login        -email -password        authenticate and persist the session
  signup       -email -password -name  register a new account
  logout                               end the session
  whoami                               show the current session
  rename       -name                   change the display name
  delete-account                       delete the account and log out
  watch                                keep the session fresh until interrupted

applications:
  apps                                 list applications and their keys
  create-app   -name -description [-expires-policy N]
  delete-app   -id

api keys:
  keys         [-app]                  list keys, optionally for one application
  create-key   -app -name
  delete-key   -id
  activate-key -id
  deactivate-key -id
`

// app bundles the wired components behind the subcommands.
type app struct {
	cfg       *config.Config
	manager   *session.Manager
	resources *resource.Store
	cleanup   func()
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if cmd == "watch" {
		// watch runs until interrupted; everything else is one-shot.
		ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	} else {
		ctx, cancel = context.WithTimeout(context.Background(), 60*time.Second)
	}
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		log.Fatalf("console: %v", err)
	}
	defer a.cleanup()

	if err := run(ctx, a, cmd, args); err != nil {
		log.Fatalf("console: %v", err)
	}
}

// setup wires config, persisted state, gateway, telemetry, and the session
// manager, then reconciles any restored session before the command runs.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := state.OpenSQLite(cfg.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	provider, err := telemetryotel.NewProvider(ctx, cfg.OTLPEndpoint, "scratcha-console", cfg.OTLPInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	emitter := telemetryotel.NewEmitter(provider.LoggerProvider)

	var mgr *session.Manager
	gw := gateway.New(cfg.APIBaseURL, cfg.RequestTimeoutDuration(), func() string {
		if mgr == nil {
			return ""
		}
		return mgr.Token()
	})
	mgr = session.NewManager(gw, store, emitter, cfg.SessionMaxIdleDuration())

	if err := mgr.Initialize(ctx); err != nil {
		log.Printf("session restore: %v", err)
	}
	if mgr.CheckSessionExpiry(ctx) {
		log.Printf("%v: please log in again", session.ErrSessionExpired)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
		if err := store.Close(); err != nil {
			log.Printf("close state db: %v", err)
		}
	}

	return &app{
		cfg:       cfg,
		manager:   mgr,
		resources: resource.NewStore(gw, emitter),
		cleanup:   cleanup,
	}, nil
}

func run(ctx context.Context, a *app, cmd string, args []string) error {
	switch cmd {
	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		fs.Parse(args)
		if err := a.manager.Login(ctx, *email, *password); err != nil {
			return err
		}
		return printWhoami(a.manager)

	case "signup":
		fs := flag.NewFlagSet("signup", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		name := fs.String("name", "", "display name")
		fs.Parse(args)
		if err := a.manager.Signup(ctx, *email, *password, *name); err != nil {
			return err
		}
		return printWhoami(a.manager)

	case "logout":
		a.manager.Logout(ctx)
		fmt.Println("logged out")
		return nil

	case "whoami":
		return printWhoami(a.manager)

	case "rename":
		fs := flag.NewFlagSet("rename", flag.ExitOnError)
		name := fs.String("name", "", "new display name")
		fs.Parse(args)
		if err := a.manager.UpdateUserName(ctx, *name); err != nil {
			return err
		}
		return printWhoami(a.manager)

	case "delete-account":
		if err := a.manager.DeleteAccount(ctx); err != nil {
			return err
		}
		fmt.Println("account deleted")
		return nil

	case "watch":
		if err := printWhoami(a.manager); err != nil {
			return err
		}
		log.Printf("maintaining session (ping %s, expiry check %s); ctrl-c to stop",
			a.cfg.ActivityPingDuration(), a.cfg.ExpiryCheckDuration())
		a.manager.Run(ctx, a.cfg.ActivityPingDuration(), a.cfg.ExpiryCheckDuration())
		return nil

	case "apps":
		if err := a.resources.LoadAll(ctx); err != nil {
			return err
		}
		return printApps(a.resources)

	case "create-app":
		fs := flag.NewFlagSet("create-app", flag.ExitOnError)
		name := fs.String("name", "", "application name")
		description := fs.String("description", "", "application description")
		expiresPolicy := fs.Int("expires-policy", 0, "key expiry policy in days (0 = never)")
		fs.Parse(args)
		if err := a.resources.CreateApp(ctx, *name, *description, *expiresPolicy); err != nil {
			return err
		}
		return printApps(a.resources)

	case "delete-app":
		fs := flag.NewFlagSet("delete-app", flag.ExitOnError)
		id := fs.String("id", "", "application id")
		fs.Parse(args)
		if err := a.resources.DeleteApp(ctx, *id); err != nil {
			return err
		}
		fmt.Println("application deleted")
		return nil

	case "keys":
		fs := flag.NewFlagSet("keys", flag.ExitOnError)
		appID := fs.String("app", "", "filter by application id")
		fs.Parse(args)
		if err := a.resources.LoadAll(ctx); err != nil {
			return err
		}
		keys := a.resources.Keys()
		if *appID != "" {
			keys = a.resources.KeysForApp(*appID)
		}
		return printKeys(keys)

	case "create-key":
		fs := flag.NewFlagSet("create-key", flag.ExitOnError)
		appID := fs.String("app", "", "application id")
		name := fs.String("name", "", "key name")
		fs.Parse(args)
		if err := a.resources.CreateAPIKey(ctx, *appID, *name); err != nil {
			return err
		}
		return printKeys(a.resources.KeysForApp(*appID))

	case "delete-key":
		fs := flag.NewFlagSet("delete-key", flag.ExitOnError)
		id := fs.String("id", "", "key id")
		fs.Parse(args)
		if err := a.resources.DeleteAPIKey(ctx, *id); err != nil {
			return err
		}
		fmt.Println("key deleted")
		return nil

	case "activate-key", "deactivate-key":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "key id")
		fs.Parse(args)
		if err := a.resources.ToggleAPIKeyStatus(ctx, *id, cmd == "activate-key"); err != nil {
			return err
		}
		return printKeys(a.resources.Keys())

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printWhoami(mgr *session.Manager) error {
	snap := mgr.Snapshot()
	fmt.Printf("state: %s\n", snap.State())
	if snap.User != nil {
		fmt.Printf("user:  %s <%s>\n", snap.User.UserName, snap.User.Email)
		if len(snap.User.Roles) > 0 {
			fmt.Printf("roles: %v\n", snap.User.Roles)
		}
	}
	if exp, ok := mgr.TokenExpiry(); ok {
		fmt.Printf("token expires: %s\n", exp.Format(time.RFC3339))
	}
	if snap.State() == sessiondomain.StateAnonymous {
		fmt.Println("not logged in")
	}
	return nil
}

func printApps(s *resource.Store) error {
	apps := s.Apps()
	if len(apps) == 0 {
		fmt.Println("no applications")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tKEYS\tDESCRIPTION")
	for _, app := range apps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			app.ID, app.Name, app.Status, len(s.KeysForApp(app.ID)), app.Description)
	}
	return w.Flush()
}

func printKeys(keys []resourcedomain.APIKey) error {
	if len(keys) == 0 {
		fmt.Println("no API keys")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAPP\tNAME\tSTATUS\tKEY")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			k.ID, k.AppID, k.Name, k.Status, resourcedomain.MaskKey(k.Key))
	}
	return w.Flush()
}
