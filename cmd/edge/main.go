package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"agentdesk.io/internal/activity"
	"agentdesk.io/internal/config"
	"agentdesk.io/internal/grpchealth"
	"agentdesk.io/internal/httpapi"
	"agentdesk.io/internal/obs"
	"agentdesk.io/internal/session"
	"agentdesk.io/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load configuration")
	}
	obs.ConfigureLogging(obs.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	obs.Init()
	obs.InitBuildInfo(version, commit, cfg.Provider.Kind)
	log := obs.Logger()

	upstream, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("parse upstream url")
	}

	store, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: pg.DefaultPool.ConnMaxLifetime,
		ConnMaxIdleTime: pg.DefaultPool.ConnMaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer store.Close()

	provider := session.NewBreakerProvider(newProvider(cfg), session.BreakerConfig{
		Name:             cfg.Provider.Kind,
		FailureThreshold: cfg.Provider.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Provider.Breaker.OpenTimeout,
	})
	resolver := session.NewResolver(provider, store, session.WithTimeout(cfg.Provider.ResolveTimeout))

	sinks, closeSinks := newSinks(cfg, store)
	defer closeSinks()
	recorder := activity.NewRecorder(sinks,
		activity.WithQueueSize(cfg.Activity.QueueSize),
		activity.WithWriteTimeout(cfg.Activity.WriteTimeout),
	)

	ready := httpapi.ReadyProbe{DB: store, Provider: provider}
	api, err := httpapi.New(httpapi.Options{
		Resolver:           resolver,
		Provider:           provider,
		Activity:           recorder,
		Upstream:           upstream,
		Ready:              ready,
		Version:            version,
		SecureCookies:      cfg.Server.SecureCookies,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		TrustedProxies:     cfg.Server.TrustedProxies,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build http api")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	adminSrv := &http.Server{
		Addr:              cfg.Server.AdminAddr,
		Handler:           api.AdminHandler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// The recorder outlives gctx so requests finishing during shutdown are still recorded;
	// Close below ends it.
	g.Go(func() error { return recorder.Run(context.Background()) })

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Str("upstream", upstream.String()).
			Str("provider", cfg.Provider.Kind).Msg("edge listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", adminSrv.Addr).Msg("admin listening")
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if addr := cfg.Server.GRPCHealthAddr; addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", addr).Msg("listen grpc health")
		}
		health := grpchealth.New(ready, 5*time.Second)
		g.Go(func() error {
			log.Info().Str("addr", addr).Msg("grpc health listening")
			return health.Serve(gctx, lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if aerr := adminSrv.Shutdown(shutdownCtx); aerr != nil && err == nil {
			err = aerr
		}
		if cerr := recorder.Close(shutdownCtx); cerr != nil {
			log.Warn().Err(cerr).Msg("activity flush incomplete")
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("edge stopped with error")
		closeSinks()
		store.Close()
		os.Exit(1)
	}
	log.Info().Msg("stopped")
}

func newProvider(cfg *config.Config) session.Provider {
	switch cfg.Provider.Kind {
	case config.ProviderKratos:
		return session.NewKratosProvider(session.KratosConfig{
			PublicURL:  cfg.Provider.Kratos.PublicURL,
			CookieName: cfg.Provider.Kratos.CookieName,
			Timeout:    cfg.Provider.ResolveTimeout,
		})
	default:
		gt := cfg.Provider.GoTrue
		return session.NewGoTrueProvider(session.GoTrueConfig{
			URL:           gt.URL,
			AnonKey:       gt.AnonKey,
			JWTSecret:     gt.JWTSecret,
			AccessCookie:  gt.AccessCookie,
			RefreshCookie: gt.RefreshCookie,
			CookieDomain:  gt.CookieDomain,
			SecureCookies: cfg.Server.SecureCookies,
			Timeout:       cfg.Provider.ResolveTimeout,
		})
	}
}

func newSinks(cfg *config.Config, store *pg.Store) ([]activity.Sink, func()) {
	var (
		sinks   []activity.Sink
		closers []func() error
	)
	for _, name := range cfg.Activity.Sinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, activity.LogSink{})
		case config.SinkPostgres:
			sinks = append(sinks, store.Activity())
		case config.SinkRedis:
			rs, err := activity.NewRedisSinkWithURL(cfg.Redis.URL, cfg.Redis.Stream, cfg.Redis.MaxLen)
			if err != nil {
				obs.Logger().Fatal().Err(err).Msg("configure redis activity sink")
			}
			sinks = append(sinks, rs)
			closers = append(closers, rs.Close)
		}
	}
	closed := false
	return sinks, func() {
		if closed {
			return
		}
		closed = true
		for _, c := range closers {
			_ = c()
		}
	}
}
