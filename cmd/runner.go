package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tfx/internal/metadata"
	"github.com/desertthunder/tfx/internal/repositories"
	"github.com/desertthunder/tfx/internal/services"
	"github.com/desertthunder/tfx/internal/shared"
	"github.com/desertthunder/tfx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database and the remote are opened on first use so commands that need neither start
// without credentials or a migrated database.
type Runner struct {
	config     *shared.Config
	configPath string
	remote     services.Remote
	db         *sql.DB
	store      *store
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Remote     services.Remote // Replaces the Drive client built from [shared.RemoteConfig]
	DB         *sql.DB
	Logger     *log.Logger
	Output     io.Writer
}

// store groups the repositories a command works with.
type store struct {
	archives *repositories.ArchiveRepository
	files    *repositories.FileEntryRepository
	records  *repositories.MediaRecordRepository
}

// report loads the current pipeline status.
func (s *store) report() (*repositories.StatusReport, error) {
	return repositories.LoadStatusReport(s.archives, s.files, s.records)
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		remote:     opts.Remote,
		db:         opts.DB,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, archivesCommand, runCommand, statusCommand, exportCommand, watchCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// configure runs before every command: it loads --config when the file exists and applies --verbose.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	r.configPath = cmd.String("config")
	if _, err := os.Stat(r.configPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return ctx, fmt.Errorf("failed to stat config: %w", err)
		}
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return ctx, nil
	}

	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		return ctx, err
	}
	r.config = config
	r.logger.Debug("config loaded", "path", r.configPath)
	return ctx, nil
}

// SetLogger replaces the logger, used when the TUI takes over the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// connect opens the configured database without touching its schema.
func (r *Runner) connect() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(r.config.Database.Path, r.config.Database.BusyTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.db = db
	return db, nil
}

// openDB opens the configured database and applies pending migrations.
func (r *Runner) openDB() (*sql.DB, error) {
	db, err := r.connect()
	if err != nil {
		return nil, err
	}

	if err := shared.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func (r *Runner) openStore() (*store, error) {
	if r.store != nil {
		return r.store, nil
	}

	db, err := r.openDB()
	if err != nil {
		return nil, err
	}

	r.store = &store{
		archives: repositories.NewArchiveRepository(db),
		files:    repositories.NewFileEntryRepository(db),
		records:  repositories.NewMediaRecordRepository(db),
	}
	return r.store, nil
}

// openRemote authenticates against Google Drive with the persisted token.
func (r *Runner) openRemote(ctx context.Context) (services.Remote, error) {
	if r.remote != nil {
		return r.remote, nil
	}

	drive, err := services.NewDriveService(r.config.Remote)
	if err != nil {
		return nil, err
	}
	if err := drive.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("%w (run `tfx auth login` first)", err)
	}

	r.remote = drive
	return drive, nil
}

// newScheduler wires a scheduler to the store, the remote and the EXIF date reader.
func (r *Runner) newScheduler(s *store, remote services.Remote, sink tasks.ProgressSink) *tasks.Scheduler {
	return tasks.NewScheduler(tasks.SchedulerOpts{
		Archives: s.archives,
		Files:    s.files,
		Records:  s.records,
		Remote:   remote,
		Dates:    metadata.NewExifReader(),
		Paths:    r.config.Paths,
		Pipeline: r.config.Pipeline,
		Sink:     sink,
		Logger:   shared.WithLogger(r.logger, "component", "scheduler"),
	})
}

// Close releases the database handle.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.store = nil
	return err
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
