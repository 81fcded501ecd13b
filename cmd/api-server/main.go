package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/api"
	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/clinical"
	"github.com/hackgods/clinic-scheduling-engine/internal/clock"
	"github.com/hackgods/clinic-scheduling-engine/internal/config"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/logger"
	"github.com/hackgods/clinic-scheduling-engine/internal/memstore"
	"github.com/hackgods/clinic-scheduling-engine/internal/metrics"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
	redisclient "github.com/hackgods/clinic-scheduling-engine/internal/redis"
	"github.com/hackgods/clinic-scheduling-engine/internal/seed"
)

type stores struct {
	appointments appointment.Repository
	directory    appointment.Directory
	medicines    pharmacy.Repository
	clinical     clinical.Repository
	tx           appointment.TxRunner
	ping         api.Pinger
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	zl.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
		zap.String("timezone", cfg.ClinicTimezone.String()),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.New(cfg.ClinicTimezone)

	st, err := openStore(rootCtx, cfg, clk, zl)
	if err != nil {
		zl.Fatal("store init error", zap.Error(err))
	}
	defer st.close()

	m := metrics.NewCollector("clinic")
	opts := []appointment.Option{appointment.WithMetrics(m)}

	var redisPing api.Pinger
	if cfg.RedisEnabled {
		rdb, err := redisclient.NewRedisClient(redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			// Bookings stay correct on the database lock alone.
			zl.Warn("redis unavailable, running without lock and slot cache", zap.Error(err))
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					zl.Warn("error closing redis", zap.Error(err))
				}
			}()
			zl.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

			breaker := redisclient.NewBreaker("redis", zl)
			opts = append(opts,
				appointment.WithLocker(redisclient.NewLocker(rdb, cfg.LockTTL, cfg.LockWait, breaker, zl)),
				appointment.WithSlotCache(redisclient.NewCache(rdb, cfg.SlotCacheTTL, breaker)),
			)
			redisPing = redisPinger(rdb)
		}
	}

	appts := appointment.NewService(st.appointments, st.directory, st.tx, clk, zl, opts...)
	ledger := pharmacy.NewLedger(st.medicines, st.tx, zl, m)
	coord := clinical.NewCoordinator(st.clinical, appts, ledger, st.tx, clk, zl, m)

	router := api.NewRouter(api.RouterConfig{
		Appointments: appts,
		Ledger:       ledger,
		Clinical:     coord,
		Logger:       zl,
		Metrics:      m,
		Store:        st.ping,
		Redis:        redisPing,
		PublicRate: api.RateLimitConfig{
			RequestsPerSecond: cfg.PublicRateRPS,
			Burst:             cfg.PublicRateBurst,
		},
		Env:     cfg.Env,
		Version: cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zl.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	zl.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config, clk clock.Clock, zl *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		mem := memstore.New()
		ds := seed.Generate(seed.Options{Doctors: 5, Patients: 50, Days: 14, Start: clk.Now()})
		mem.Load(ds)
		for _, d := range ds.Doctors {
			zl.Info("seeded doctor", zap.String("doctor_id", d.ID.String()), zap.String("name", d.Name))
		}
		return &stores{
			appointments: mem,
			directory:    mem,
			medicines:    mem,
			clinical:     mem,
			tx:           mem,
			ping:         mem,
			close:        func() {},
		}, nil
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, db.PoolOptions{
		DSN:      cfg.PostgresDSN,
		MaxConns: cfg.PostgresMaxConn,
		TimeZone: cfg.ClinicTimezone,
	})
	cancelPg()
	if err != nil {
		return nil, err
	}
	zl.Info("connected to Postgres")

	return &stores{
		appointments: appointment.NewPgRepository(pool),
		directory:    appointment.NewPgDirectory(pool),
		medicines:    pharmacy.NewPgRepository(pool),
		clinical:     clinical.NewPgRepository(pool),
		tx:           db.NewTxManager(pool),
		ping:         pool,
		close:        pool.Close,
	}, nil
}

func redisPinger(rdb *redis.Client) api.Pinger {
	return api.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
}
