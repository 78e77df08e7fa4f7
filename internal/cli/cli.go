package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ZetoOfficial/bluewave/internal/app"
	"github.com/ZetoOfficial/bluewave/internal/config"
	"github.com/ZetoOfficial/bluewave/internal/logger"
	"github.com/ZetoOfficial/bluewave/internal/models"
	"github.com/ZetoOfficial/bluewave/internal/storage"
)

var engineFlags = []cli.Flag{
	&cli.IntFlag{Name: "page-size", Usage: "accounts requested per listing page"},
	&cli.IntFlag{Name: "max-pages", Usage: "upper bound on listing pages"},
	&cli.IntFlag{Name: "max-per-run", Usage: "most mutations attempted in one batch (0 = no limit)"},
	&cli.DurationFlag{Name: "delay", Usage: "pause after each mutation before the next one"},
	&cli.IntFlag{Name: "daily-cap", Usage: "most succeeded mutations per action in 24h (0 = no cap)"},
}

var selectionFlags = []cli.Flag{
	&cli.StringFlag{Name: "filter", Usage: "case-insensitive text matched against display name and description"},
	&cli.BoolFlag{Name: "all", Usage: "mark every account matching --filter"},
	&cli.StringSliceFlag{Name: "did", Usage: "mark this account (repeatable)"},
}

type runner struct {
	out io.Writer

	cfg     *config.Config
	app     *app.App
	closers []func(context.Context) error
}

// New builds the command line application. Results are written to out.
func New(out io.Writer) *cli.App {
	r := &runner{out: out}

	return &cli.App{
		Name:  "bluewave",
		Usage: "bulk follow and unfollow for Bluesky accounts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "identifier", Usage: "handle or email of the account"},
			&cli.StringFlag{Name: "app-password", Usage: "app password (xxxx-xxxx-xxxx-xxxx)"},
			&cli.StringFlag{Name: "service", Usage: "PDS host"},
			&cli.StringFlag{Name: "log-level", Value: "INFO", Usage: "logging level (DEBUG, INFO, WARN, ERROR)"},
			&cli.StringFlag{Name: "log-file", Usage: "log file path; logs go to stderr when unset"},
			&cli.StringFlag{Name: "config", Usage: "TOML file with engine defaults"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
		},
		Before: r.before,
		After:  r.after,
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list the follows or followers of an account",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "actor", Usage: "account to list; defaults to the authenticated one"},
					&cli.BoolFlag{Name: "followers", Usage: "list followers instead of follows"},
					&cli.StringFlag{Name: "filter", Usage: "case-insensitive text matched against display name and description"},
				}, engineFlags...),
				Action: r.list,
			},
			{
				Name:   "unfollow",
				Usage:  "unfollow marked accounts among your follows",
				Flags:  append(append([]cli.Flag{}, selectionFlags...), engineFlags...),
				Action: r.unfollow,
			},
			{
				Name:  "follow-back",
				Usage: "follow every follower you do not follow yet",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "filter", Usage: "only follow back accounts matching this text"},
				}, engineFlags...),
				Action: r.followBack,
			},
			{
				Name:      "query",
				Usage:     "run a journal query: " + strings.Join(storage.QueryNames(), ", "),
				ArgsUsage: "<name>",
				Action:    r.query,
			},
		},
	}
}

func (r *runner) before(cctx *cli.Context) error {
	if err := config.LoadEnvFile(config.DefaultEnvFile); err != nil {
		return err
	}

	closer, err := logger.Setup(cctx.String("log-level"), cctx.String("log-file"))
	if err != nil {
		return err
	}
	r.closers = append(r.closers, func(context.Context) error { return closer.Close() })

	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cctx.IsSet("identifier") {
		cfg.Identifier = cctx.String("identifier")
	}
	if cctx.IsSet("app-password") {
		cfg.AppPassword = cctx.String("app-password")
	}
	if cctx.IsSet("service") {
		cfg.Service = cctx.String("service")
	}
	r.cfg = cfg

	if addr := cctx.String("metrics-addr"); addr != "" {
		r.closers = append(r.closers, serveMetrics(addr))
	}
	return nil
}

// after logs out and releases resources in reverse order of acquisition.
func (r *runner) after(cctx *cli.Context) error {
	ctx := context.WithoutCancel(cctx.Context)
	if r.app != nil {
		if err := r.app.Logout(ctx); err != nil {
			logrus.Warnf("logout: %v", err)
		}
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			logrus.Warnf("close: %v", err)
		}
	}
	return nil
}

// applyEngineFlags overrides cfg with the engine flags set on the command line.
func applyEngineFlags(cctx *cli.Context, cfg *config.Config) error {
	if cctx.IsSet("page-size") {
		cfg.Engine.PageSize = cctx.Int("page-size")
	}
	if cctx.IsSet("max-pages") {
		cfg.Engine.MaxPages = cctx.Int("max-pages")
	}
	if cctx.IsSet("max-per-run") {
		cfg.Engine.MaxPerRun = cctx.Int("max-per-run")
	}
	if cctx.IsSet("delay") {
		cfg.Engine.InterItemDelay = cctx.Duration("delay")
	}
	if cctx.IsSet("daily-cap") {
		cfg.Engine.DailyCap = cctx.Int("daily-cap")
	}
	return cfg.Validate()
}

func (r *runner) open(cctx *cli.Context) (*app.App, error) {
	if err := applyEngineFlags(cctx, r.cfg); err != nil {
		return nil, err
	}
	a, closeJournal, err := build(cctx.Context, r.cfg)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, closeJournal)
	r.app = a
	return a, nil
}

func (r *runner) list(cctx *cli.Context) error {
	a, err := r.open(cctx)
	if err != nil {
		return err
	}
	kind := models.ListFollows
	if cctx.Bool("followers") {
		kind = models.ListFollowers
	}
	if _, err := a.Fetch(cctx.Context, cctx.String("actor"), kind); err != nil {
		return err
	}
	return renderEdges(r.out, a.Selection.Filter(cctx.String("filter")))
}

func (r *runner) unfollow(cctx *cli.Context) error {
	if !cctx.Bool("all") && len(cctx.StringSlice("did")) == 0 {
		return fmt.Errorf("%w: nothing to unfollow, use --all or --did", models.ErrInvalidArgument)
	}
	a, err := r.open(cctx)
	if err != nil {
		return err
	}
	if _, err := a.Fetch(cctx.Context, "", models.ListFollows); err != nil {
		return err
	}
	a.Mark(models.FlagUnfollow, cctx.String("filter"), cctx.Bool("all"), cctx.StringSlice("did")...)

	run, runErr := a.Unfollow(cctx.Context)
	return r.finish(run, runErr)
}

func (r *runner) followBack(cctx *cli.Context) error {
	a, err := r.open(cctx)
	if err != nil {
		return err
	}
	run, runErr := a.FollowBack(cctx.Context, cctx.String("filter"))
	return r.finish(run, runErr)
}

func (r *runner) finish(run *models.Run, runErr error) error {
	if run != nil {
		if err := renderLedger(r.out, run.Ledger); err != nil {
			return err
		}
	}
	return runErr
}

func (r *runner) query(cctx *cli.Context) error {
	name := cctx.Args().First()
	if !storage.IsQuery(name) {
		return fmt.Errorf("%w: query %q not found, expected one of %s",
			models.ErrInvalidArgument, name, strings.Join(storage.QueryNames(), ", "))
	}
	a, err := r.open(cctx)
	if err != nil {
		return err
	}
	rows, err := a.Query(cctx.Context, name)
	if err != nil {
		return err
	}
	return renderRows(r.out, rows)
}

// ExitCode maps an error returned by the application to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, models.ErrInvalidArgument):
		return 2
	case errors.Is(err, models.ErrAuthenticationFailed), errors.Is(err, models.ErrAuthenticationLost):
		return 3
	default:
		return 1
	}
}

// Main runs the application with args and returns the exit code.
func Main(ctx context.Context, args []string) int {
	err := New(os.Stdout).RunContext(ctx, args)
	if err != nil {
		logrus.Error(err)
		fmt.Fprintln(os.Stderr, "bluewave:", err)
	}
	return ExitCode(err)
}
