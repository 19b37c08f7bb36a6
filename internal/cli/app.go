package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/formulary/internal/catalog"
	"github.com/roach88/formulary/internal/config"
	"github.com/roach88/formulary/internal/engine"
	"github.com/roach88/formulary/internal/expr"
	"github.com/roach88/formulary/internal/redisstore"
	"github.com/roach88/formulary/internal/registry"
	"github.com/roach88/formulary/internal/store"
)

// App is the set of components a command operates on.
type App struct {
	Config   *config.Config
	Formulas *store.Store
	Records  catalog.RecordStore
	Catalog  *catalog.Catalog

	closers []func() error
}

// openApp loads the configuration and wires the stores, registry, and
// catalog. Formulas always live in the SQLite database; records live in
// SQLite or Redis depending on store.backend.
func openApp(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Store.Path = opts.Database
	}

	logger := slog.Default()

	slog.Debug("opening database", "path", cfg.Store.Path)
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	app := &App{Config: cfg, Formulas: st, Records: st}
	app.closers = append(app.closers, st.Close)

	if cfg.Store.Backend == config.BackendRedis {
		rs, err := redisstore.New(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}, cfg.Store.Redis.Namespace)
		if err != nil {
			app.Close()
			return nil, WrapExitError(ExitCommandError, "failed to create redis store", err)
		}
		app.closers = append(app.closers, rs.Close)
		if err := rs.Ping(ctx); err != nil {
			app.Close()
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to connect to redis at %s", cfg.Store.Redis.Addr), err)
		}
		app.Records = rs
		slog.Debug("records stored in redis", "addr", cfg.Store.Redis.Addr, "namespace", cfg.Store.Redis.Namespace)
	}

	regOpts := []registry.Option{registry.WithLogger(logger)}
	if cfg.Registry.DuplicateCheck {
		regOpts = append(regOpts, registry.WithDuplicateCheck())
	}

	pipeline := engine.NewPipeline(
		engine.WithEvaluator(engine.NewEvaluator(expr.New(expr.WithPrecision(cfg.Precision)))),
		engine.WithPipelineLogger(logger),
	)
	coordinator := engine.NewCoordinator(app.Records,
		engine.WithPipeline(pipeline),
		engine.WithConcurrency(cfg.Recompute.Concurrency),
		engine.WithWriteTimeout(cfg.Recompute.WriteTimeout),
		engine.WithLogger(logger),
	)

	app.Catalog = catalog.New(registry.New(st, regOpts...), app.Records,
		catalog.WithPipeline(pipeline),
		catalog.WithCoordinator(coordinator),
		catalog.WithLogger(logger),
	)
	return app, nil
}

// Close releases every store, in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp opens the app for the duration of fn.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			slog.Error("error closing stores", "error", closeErr)
		}
	}()

	return fn(ctx, app)
}

// newFormatter builds the output formatter for cmd.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// registryFailure reports a rejected registry operation. Invalid input and
// unknown ids are command errors (exit 2).
func registryFailure(f *OutputFormatter, err error) error {
	var regErr *registry.RegistryError
	if errors.As(err, &regErr) {
		_ = f.Error(string(regErr.Code), regErr.Message, nil)
		code := ExitCommandError
		if regErr.Code == registry.CodeStore {
			code = ExitFailure
		}
		return WrapExitError(code, string(regErr.Code), err)
	}
	_ = f.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitFailure, "operation failed", err)
}
