package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/replica/internal/config"
	"github.com/roach88/replica/internal/engine"
	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/logging"
	"github.com/roach88/replica/internal/remote"
	"github.com/roach88/replica/internal/store"
)

// app is everything a command needs: the loaded config, the open store
// and one controller per configured entity type.
type app struct {
	cfg         *config.Config
	store       *store.Store
	logger      *slog.Logger
	types       []entity.Type
	controllers map[entity.Type]*engine.Controller[entity.Record]
	runner      *engine.Runner

	logCloser io.Closer
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// openApp loads the config, opens the store and builds the controllers.
// Logs go to logOut unless the config names a log file.
func openApp(ctx context.Context, opts *RootOptions, logOut io.Writer, recorder engine.Recorder) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if opts.Verbose {
		level = "debug"
	}
	logger, logCloser := logging.NewLogger(logging.Options{
		Level:      level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Writer:     logOut,
	})

	a := &app{
		cfg:         cfg,
		logger:      logger,
		controllers: make(map[entity.Type]*engine.Controller[entity.Record]),
		logCloser:   logCloser,
	}

	if err := a.init(ctx, opts, recorder); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, opts *RootOptions, recorder engine.Recorder) error {
	types, err := a.cfg.Sync.Types()
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeConfig, "invalid entity types", err)
	}
	a.types = types

	a.logger.Debug("Opening database", "path", a.cfg.Database)
	st, err := openStore(a.cfg.Database)
	if err != nil {
		return err
	}
	a.store = st

	ctrlOpts := []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithRecorder(recorder),
		engine.WithIDGenerator(opts.IDs),
		engine.WithClock(opts.Now),
	}

	codec := entity.JSONCodec[entity.Record]{}
	cyclers := make([]engine.Cycler, 0, len(types))
	for _, typ := range types {
		coll, err := store.OpenCollection(ctx, st, typ, codec)
		if err != nil {
			return WrapExitError(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to open collection %s", typ), err)
		}
		src, err := newSource(a.cfg, typ, codec, a.logger)
		if err != nil {
			return WrapExitError(ExitCommandError, ErrCodeConfig, fmt.Sprintf("failed to configure remote for %s", typ), err)
		}
		ctrl := engine.NewController(typ, src, coll, st, codec, ctrlOpts...)
		a.controllers[typ] = ctrl
		cyclers = append(cyclers, ctrl)
	}

	runner, err := engine.NewRunner(a.cfg.Sync.Concurrency, cyclers...)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeConfig, "failed to build runner", err)
	}
	a.runner = runner.WithLogger(a.logger)
	return nil
}

// openStore opens the database at path, creating its directory.
func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeStore, "failed to create database directory", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	return st, nil
}

// newSource builds the remote source for typ from the remote config.
func newSource(cfg *config.Config, typ entity.Type, codec entity.Codec[entity.Record], logger *slog.Logger) (engine.Source[entity.Record], error) {
	switch cfg.Remote.Kind {
	case config.RemoteHTTP:
		return remote.NewHTTPSource(typ, remote.HTTPConfig{
			BaseURL:  cfg.Remote.BaseURL,
			Token:    cfg.Remote.Token(),
			PageSize: cfg.Remote.PageSize,
			Timeout:  cfg.Remote.Timeout,
			Logger:   logger,
		}, codec)
	case config.RemoteDir:
		return remote.NewDirSource(typ, cfg.Remote.Dir, codec)
	default:
		return nil, fmt.Errorf("unknown remote kind %q", cfg.Remote.Kind)
	}
}

// controller returns the controller for a type named on the command line.
func (a *app) controller(name string) (*engine.Controller[entity.Record], error) {
	typ := entity.Type(name)
	if err := typ.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeUsage, "invalid entity type", err)
	}
	ctrl, ok := a.controllers[typ]
	if !ok {
		return nil, NewExitError(ExitCommandError, ErrCodeUsage, fmt.Sprintf("entity type %q is not configured", name))
	}
	return ctrl, nil
}

// Close releases the store and the log file.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log: %w", err))
		}
	}
	return errors.Join(errs...)
}
