package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"deckstream/internal/adapter/gateway"
	"deckstream/internal/domain"
	"deckstream/internal/infra/middleware"
)

func runServe(args []string) error {
	c := parseArgs(args)
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	cfg.Gateway.Addr = c.str("addr", cfg.Gateway.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := newApp(ctx, cfg, appOptions{replayPath: c.str("replay", "")})
	if err != nil {
		return err
	}
	defer cleanup()

	return serve(ctx, a)
}

// serve runs the gateway until ctx is done or the listener fails.
func serve(ctx context.Context, a *app) error {
	cfg := a.cfg.Gateway
	g, gctx := errgroup.WithContext(ctx)

	srv := gateway.NewServer(a.bus, gateway.AuthFromConfig(cfg.Auth), cfg.Addr, a.log,
		gateway.WithRPCRateLimit(cfg.RateLimit, cfg.RateBurst),
		gateway.WithMiddleware(
			middleware.SecurityHeaders,
			middleware.RateLimit(gctx, middleware.RateLimitConfig{
				PerSecond: cfg.RateLimit,
				Burst:     cfg.RateBurst,
			}),
		),
	)
	deps := gateway.HandlerDeps{
		Sessions: a.manager,
		Resolver: a.resolver,
		Bus:      a.bus,
		Logger:   a.log,
	}
	gateway.RegisterDefaultHandlers(srv, deps)
	gateway.RegisterRESTHandlers(srv, deps)

	unsub := a.bus.Subscribe(domain.EventSessionCompleted, func(_ context.Context, e domain.Event) {
		a.log.Info("session finished", "session_id", e.SessionID)
	})
	defer unsub()

	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop(context.Background())
	})

	a.log.Info("deckstream serving",
		"addr", cfg.Addr,
		"auth", cfg.Auth.Type,
		"stream", a.cfg.Stream.BaseURL,
		"store", a.cfg.Store.Type,
		"layouts", a.resolver.Registry().Len(),
	)
	return g.Wait()
}
