package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"connector/internal/binance"
	"connector/internal/candle"
	"connector/internal/catalog"
	"connector/internal/obs"
	"connector/internal/ops"
	"connector/internal/reconcile"
	"connector/internal/store/memory"
	"connector/internal/store/pebble"
	"connector/internal/store/postgres"
	"connector/internal/store/redis"
	"connector/internal/stream"
	"connector/pkg/conn"
	"connector/pkg/rest"
	"connector/pkg/throttle"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("load config, err: %+v", err)
		os.Exit(1)
	}

	if cfg.Profiling.Address != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.AppName,
			ServerAddress:   cfg.Profiling.Address,
			Tags:            map[string]string{"market": string(cfg.Market)},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("start profiler, err: %+v", err)
			os.Exit(1)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sys.Shutdown()
		logs.Infof("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logs.Errorf("connector stopped, err: %+v", err)
		cancel()
		os.Exit(1)
	}
	cancel()
	logs.Infof("connector stopped")
}

func run(ctx context.Context, cfg ops.Config) error {
	venue, err := binance.New(cfg.Market, cfg.Endpoints)
	if err != nil {
		return err
	}

	restOpt := cfg.Rest
	restOpt.Throttler = throttle.New()
	client := rest.New(restOpt)

	cat := catalog.New(venue, client)
	if err := cat.Init(ctx); err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := store.Init(ctx); err != nil {
		return err
	}

	candles, err := candle.New(candle.Option{
		Store:         store,
		Source:        binance.NewKlines(venue, client),
		MaxCandles:    cfg.MaxCandles,
		MaxIterations: cfg.MaxIterations,
	})
	if err != nil {
		return err
	}

	metrics := obs.NewMetrics()
	public, err := stream.NewPublic(stream.PublicOption{
		Catalog:     cat,
		Candles:     candles,
		IdleTimeout: cfg.IdleTimeout,
		Metrics:     metrics,
	})
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return public.Run(ctx) })
	eg.Go(func() error { return public.Subscribe(ctx, cfg.Symbols, cfg.Feeds) })
	eg.Go(func() error {
		metrics.Report(ctx, cfg.MetricsInterval)
		return nil
	})

	if cfg.Private {
		engine := reconcile.New(reconcile.Option{Client: client, Catalog: cat})
		if err := engine.LoadAllOrders(ctx, cfg.Symbols); err != nil {
			return err
		}
		private, err := stream.NewPrivate(stream.PrivateOption{
			Venue:     venue,
			Client:    client,
			Engine:    engine,
			KeepAlive: cfg.KeepAlive,
			Metrics:   metrics,
		})
		if err != nil {
			return err
		}
		eg.Go(func() error { return private.Run(ctx) })
	}

	logs.Infof("connector running, market: %s, symbols: %v, feeds: %v", cfg.Market, cfg.Symbols, cfg.Feeds)
	return eg.Wait()
}

func openStore(ctx context.Context, spec ops.StoreSpec) (candle.Store, func(), error) {
	switch spec.Driver {
	case ops.StorePostgres:
		db, err := conn.OpenPostgres(ctx, spec.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(db, spec.PostgresRows), func() { _ = conn.ClosePostgres(db) }, nil
	case ops.StorePebble:
		s, err := pebble.Open(spec.PebbleDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case ops.StoreRedis:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, err := conn.OpenRedis(dialCtx, spec.Redis)
		if err != nil {
			return nil, nil, err
		}
		return redis.New(client, spec.RedisPrefix), func() { _ = client.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}
