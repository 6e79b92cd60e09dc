// Package cli implements the ytarchive command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ytarchive/internal/auth"
	"ytarchive/internal/config"
	"ytarchive/internal/di"
	"ytarchive/internal/logging"
	"ytarchive/internal/storage"
)

// Options supplies I/O streams and the assembly functions. Zero fields get
// the process streams and the di injectors.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	NewApp   func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*di.App, func(), error)
	NewOAuth func(cfg *config.Config) (*auth.OAuth, error)
}

func (o *Options) defaults() {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.NewApp == nil {
		o.NewApp = di.InitializeApp
	}
	if o.NewOAuth == nil {
		o.NewOAuth = di.InitializeOAuth
	}
}

// root holds per-invocation state shared by every command.
type root struct {
	opts Options

	configPath string
	statePath  string
	format     string
	verbose    bool

	cfg   *config.Config
	log   zerolog.Logger
	out   *printer
	runID string

	app     *di.App
	cleanup func()
}

// Run executes the command line args and releases everything it opened.
func Run(ctx context.Context, args []string, opts Options) error {
	r := newRoot(opts)
	cmd := r.command()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, r.finish())
}

// NewRootCommand returns the command tree. Resources are released after a
// successful command; use Run to also release them on failure.
func NewRootCommand(opts Options) *cobra.Command {
	return newRoot(opts).command()
}

func newRoot(opts Options) *root {
	opts.defaults()
	return &root{opts: opts, log: zerolog.Nop()}
}

func (r *root) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ytarchive",
		Short: "Keep a local record of watched and archived YouTube videos in sync with your playlists",
		Long: `ytarchive tracks channels, remembers which videos you played and files
videos into numbered archive playlists on your account. The local record is
reconciled against those playlists at the start of every session.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: r.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return r.finish()
		},
	}
	cmd.SetIn(r.opts.Stdin)
	cmd.SetOut(r.opts.Stdout)
	cmd.SetErr(r.opts.Stderr)

	f := cmd.PersistentFlags()
	f.StringVar(&r.configPath, "config", "", "config file (default: config.yaml in the user config dir or working dir)")
	f.StringVar(&r.statePath, "state", "", "state file; .db or .sqlite selects the sqlite backend")
	f.StringVarP(&r.format, "format", "o", FormatText, "output format: text, json, yaml or toml")
	f.BoolVarP(&r.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(
		r.authCommand(),
		r.syncCommand(),
		r.trackCommand(),
		r.untrackCommand(),
		r.channelsCommand(),
		r.subscriptionsCommand(),
		r.subscribeCommand(),
		r.unsubscribeCommand(),
		r.videosCommand(),
		r.pickCommand(),
		r.playCommand(true),
		r.playCommand(false),
		r.archiveCommand(),
		r.unarchiveCommand(),
		r.archivesCommand(),
		r.renameArchiveCommand(),
		r.importCommand(),
		r.rateCommand(),
		r.playlistsCommand(),
		r.commentsCommand(),
		r.stateCommand(),
	)
	return cmd
}

func (r *root) setup(cmd *cobra.Command, _ []string) error {
	if err := validFormat(r.format); err != nil {
		return err
	}

	cfg, err := config.Load(r.configPath)
	if err != nil {
		return err
	}
	if r.statePath != "" {
		cfg.Storage.Path = r.statePath
		switch strings.ToLower(filepath.Ext(r.statePath)) {
		case ".db", ".sqlite", ".sqlite3":
			cfg.Storage.Driver = storage.DriverSQLite
		default:
			cfg.Storage.Driver = storage.DriverJSON
		}
	}
	if r.verbose {
		cfg.Log.Level = "debug"
	}

	log, err := logging.New(cfg.Log, r.opts.Stderr)
	if err != nil {
		return err
	}
	r.runID = uuid.NewString()
	r.log = log.With().Str("run_id", r.runID).Logger()
	r.cfg = cfg
	r.out = &printer{out: r.opts.Stdout, format: r.format}

	r.log.Debug().Str("command", cmd.CommandPath()).Str("config", cfg.File).Msg("starting")
	return nil
}

// session assembles the application and identifies the user.
func (r *root) session(ctx context.Context) (*di.App, auth.User, error) {
	if r.app == nil {
		app, cleanup, err := r.opts.NewApp(ctx, r.cfg, r.log)
		if err != nil {
			if errors.Is(err, auth.ErrNotAuthenticated) {
				return nil, auth.User{}, fmt.Errorf("%w: run 'ytarchive auth login' first", err)
			}
			return nil, auth.User{}, err
		}
		r.app, r.cleanup = app, cleanup
	}

	user, err := r.app.Auth.CurrentUser(ctx)
	if err != nil {
		return nil, auth.User{}, fmt.Errorf("identify user: %w", err)
	}
	r.log = r.log.With().Str("user", user.ID).Logger()
	return r.app, user, nil
}

// finish flushes metrics and closes the application. It is safe to call
// more than once.
func (r *root) finish() error {
	if r.app == nil {
		return nil
	}
	app := r.app
	r.app = nil

	var err error
	if path := r.cfg.Metrics.Textfile; path != "" {
		if werr := app.Metrics.WriteTextfile(path); werr != nil {
			err = fmt.Errorf("write metrics: %w", werr)
		}
	}
	if app.Quota != nil {
		r.log.Debug().Int64("quota_units", app.Quota.QuotaUsed()).Msg("done")
	}
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
	return err
}
