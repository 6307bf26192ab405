package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"deckstream/internal/adapter/auth"
	"deckstream/internal/adapter/layouts"
	"deckstream/internal/adapter/store"
	"deckstream/internal/adapter/transport"
	"deckstream/internal/domain"
	"deckstream/internal/infra/config"
	"deckstream/internal/infra/logger"
	"deckstream/internal/infra/tracer"
	"deckstream/internal/usecase/eventbus"
	"deckstream/internal/usecase/layout"
	"deckstream/internal/usecase/session"
)

// appOptions are per-command overrides of the loaded config.
type appOptions struct {
	replayPath string
	paceBytes  int
	paceDelay  time.Duration
}

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      *eventbus.Bus
	resolver *layout.Resolver
	store    domain.PresentationStore
	saver    *session.Saver
	manager  *session.Manager
}

// loadConfig reads .env files and the config file named by --config.
func loadConfig(args []string) (*config.Config, error) {
	config.LoadEnvFiles(".env.local", ".env")
	cfg, err := config.Load(configPath(args))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// newResolver builds the built-in registry and a resolver tuned by cfg.
func newResolver(cfg config.LayoutsConfig, log *slog.Logger, bus domain.EventBus) (*layout.Resolver, error) {
	reg, err := layouts.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("layouts: %w", err)
	}
	opts := []layout.ResolverOption{
		layout.WithSynonyms(cfg.Synonyms),
		layout.WithGenericFallbacks(cfg.GenericFallbacks),
	}
	if bus != nil {
		opts = append(opts, layout.WithEventBus(bus))
	}
	return layout.NewResolver(reg, log, opts...), nil
}

// newStore opens the presentation store selected by cfg.Type. A nil store
// means results are not persisted.
func newStore(cfg *config.Config, creds domain.CredentialProvider, log *slog.Logger) (domain.PresentationStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store.Type {
	case "http":
		base := cfg.Store.BaseURL
		if base == "" {
			base = cfg.Stream.BaseURL
		}
		client := transport.NewHTTPClient(cfg.Stream)
		return store.NewHTTPStore(base, client, creds, cfg.Store.Timeout, log), noop, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("store: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, noop, nil
	}
}

// newTransport returns a replay transport when a path is given, otherwise
// the HTTP stream client.
func newTransport(cfg *config.Config, opts appOptions, log *slog.Logger) domain.StreamTransport {
	if opts.replayPath != "" {
		var fopts []transport.FileOption
		if opts.paceBytes > 0 {
			fopts = append(fopts, transport.WithPacing(opts.paceBytes, opts.paceDelay))
		}
		return transport.NewFileTransport(opts.replayPath, fopts...)
	}
	return transport.NewHTTPTransport(cfg.Stream, log)
}

// newApp wires everything a session needs. The returned cleanup closes the
// manager, the bus, the store, the tracer and the log output, in that order.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, func(), error) {
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		_ = logCloser()
		return nil, nil, fmt.Errorf("tracer: %w", err)
	}

	bus := eventbus.New(log)
	creds := auth.FromConfig(cfg.Auth)

	resolver, err := newResolver(cfg.Layouts, log, bus)
	if err != nil {
		bus.Close()
		_ = tracerShutdown(ctx)
		_ = logCloser()
		return nil, nil, err
	}

	st, storeCloser, err := newStore(cfg, creds, log)
	if err != nil {
		bus.Close()
		_ = tracerShutdown(ctx)
		_ = logCloser()
		return nil, nil, err
	}

	var saver *session.Saver
	if st != nil {
		saver = session.NewSaver(st, bus, log)
	}

	tr := newTransport(cfg, opts, log)
	factory := func(extra ...session.Option) *session.Controller {
		base := []session.Option{
			session.WithInactivityTimeout(cfg.Stream.InactivityTimeout),
			session.WithReadSize(cfg.Stream.ReadBufferSize),
			session.WithMaxLineBytes(cfg.Stream.MaxLineBytes),
			session.WithEventBus(bus),
			session.WithResolver(resolver),
		}
		return session.NewController(tr, creds, log, append(base, extra...)...)
	}
	manager := session.NewManager(ctx, factory, saver, log)

	a := &app{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		resolver: resolver,
		store:    st,
		saver:    saver,
		manager:  manager,
	}
	cleanup := func() {
		manager.Close()
		bus.Close()
		if err := storeCloser(); err != nil {
			log.Warn("store close failed", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerShutdown(shutdownCtx)
		_ = logCloser()
	}
	return a, cleanup, nil
}
