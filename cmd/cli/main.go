// Command grovi is a CLI client for the Grovi crop-monitoring backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/grovi/internal/api"
	"github.com/and161185/grovi/internal/app"
	"github.com/and161185/grovi/internal/config"
	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/session"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const usageText = `grovi CLI
Usage:
  grovi [-config file] [-url URL] [-v] <cmd> [args]

Commands:
  version
  login       -u <username|email> -p <password>       (saves token)
  register    -name <name> -u <username> -email <email> -p <password> [-dob YYYY-MM-DD]
  logout
  whoami
  fields      [-thumbs]
  field       -id <uuid>
  field-add   -name <name> -geom <file|-> [-crop c] [-variety v] [-season s] [-planted YYYY-MM-DD] [-address a]
  field-edit  -id <uuid> [-name n] [-crop c] [-variety v] [-season s] [-planted YYYY-MM-DD] [-address a]
  field-rm    -id <uuid>
  thumb       -id <uuid>
  thumb-set   -id <uuid> -file <image|->
  export      -id <uuid> -format <kml|geojson|csv|shp|gpkg> [-o dir]
  snapshots   -id <uuid> [-vi NDVI] [-limit 4]
  snapshots-clear -id <uuid> [-vi NDVI]
  analyze     -id <uuid> [-vi NDVI] [-count 4]
  health      -id <uuid> [-vi NDVI]
  timeseries  -id <uuid> [-vi NDVI] [-kind monthly_range|full_year|ten_year_avg] [-year Y] [-from M] [-to M] [-o file.csv|file.xlsx]
  search      -q <text>
  status      [-watch]
`

func usage() {
	fmt.Fprint(os.Stderr, usageText)
	os.Exit(2)
}

// errUsage marks a bad invocation; main prints usage for it.
var errUsage = errors.New("usage")

// main loads configuration, builds the client container and dispatches a subcommand.
func main() {
	cfgPath := flag.String("config", "", "config file (default ./grovi.yaml if present)")
	baseURL := flag.String("url", "", "backend base URL")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}

	config.LoadDotenv()
	cfg, err := config.LoadClient(*cfgPath)
	if err != nil {
		fail(err)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
	log := newLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, log, app.WithNavigator(api.NavigatorFunc(func() {
		fmt.Fprintln(os.Stderr, "session expired, please login again")
	})))
	defer a.Close()

	if err := run(ctx, a, flag.Args(), os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			usage()
		}
		fail(err)
	}
}

// newLogger is a console logger on stderr; unknown levels mean info.
func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	log, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// run executes one command. Commands that need the stored session start the
// container first; status and version never touch the REST backend.
func run(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("no command: %w", errUsage)
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "version":
		fmt.Fprintf(out, "grovi %s (%s)\n", version, buildDate)
		return nil
	case "status":
		return cmdStatus(ctx, a, rest, out)
	}

	// the field cache keeps ctx for refreshes after a later sign in
	a.Start(ctx)

	switch cmd {
	case "login":
		return cmdLogin(ctx, a, rest, out)
	case "register":
		return cmdRegister(ctx, a, rest, out)
	case "logout":
		a.Session.Logout()
		fmt.Fprintln(out, "ok")
		return nil
	case "whoami":
		u, ok := a.Session.User()
		if !ok {
			return errs.ErrNotAuthenticated
		}
		printJSON(out, u)
		return nil
	case "fields":
		return cmdFields(ctx, a, rest, out)
	case "field":
		return cmdField(ctx, a, rest, out)
	case "field-add":
		return cmdFieldAdd(ctx, a, rest, out)
	case "field-edit":
		return cmdFieldEdit(ctx, a, rest, out)
	case "field-rm":
		return cmdFieldRm(ctx, a, rest, out)
	case "thumb":
		return cmdThumb(ctx, a, rest, out)
	case "thumb-set":
		return cmdThumbSet(ctx, a, rest, out)
	case "export":
		return cmdExport(ctx, a, rest, out)
	case "snapshots":
		return cmdSnapshots(ctx, a, rest, out)
	case "snapshots-clear":
		return cmdSnapshotsClear(ctx, a, rest, out)
	case "analyze":
		return cmdAnalyze(ctx, a, rest, out)
	case "health":
		return cmdHealth(ctx, a, rest, out)
	case "timeseries":
		return cmdTimeSeries(ctx, a, rest, out)
	case "search":
		return cmdSearch(ctx, a, rest, out)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func cmdLogin(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	u := fs.String("u", "", "username or e-mail")
	p := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *u == "" || *p == "" {
		return fmt.Errorf("need -u and -p: %w", errUsage)
	}
	user, err := a.Session.Login(ctx, *u, *p)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "logged in as %s\n", user.Username)
	return nil
}

func cmdRegister(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	u := fs.String("u", "", "username")
	email := fs.String("email", "", "e-mail")
	p := fs.String("p", "", "password")
	dob := fs.String("dob", "", "date of birth YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	prof := session.Profile{Name: *name, Username: *u, Email: *email, Password: *p}
	if *dob != "" {
		d, err := time.Parse("2006-01-02", *dob)
		if err != nil {
			return fmt.Errorf("-dob must be YYYY-MM-DD: %w", errs.ErrValidation)
		}
		prof.DateOfBirth = &d
	}
	user, err := a.Session.Register(ctx, prof)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "registered %s\n", user.Username)
	return nil
}

func cmdSearch(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	q := fs.String("q", "", "place name")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *q == "" && fs.NArg() > 0 {
		*q = strings.Join(fs.Args(), " ")
	}
	places, err := a.Search.Search(ctx, *q)
	if err != nil {
		return err
	}
	printJSON(out, places)
	return nil
}

// ---- helpers ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, api.Message(err))
	os.Exit(1)
}
