package cmd

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/jjenkins/billtracker/internal/auth"
	"github.com/jjenkins/billtracker/internal/lock"
	"github.com/jjenkins/billtracker/internal/service"
	"github.com/jjenkins/billtracker/internal/store"
)

// deps holds everything a command needs, wired from cfg
type deps struct {
	db        *sql.DB
	rdb       *redis.Client
	bills     *store.BillStore
	users     *store.UserStore
	refresher *service.Refresher
	tracker   *service.Tracker
	metrics   *service.MetricsService
	issuer    *auth.Issuer
}

// openDeps connects to the database (and Redis when configured) and builds the
// services. Pages come from cacheDir when it is set, otherwise from the website.
func openDeps(ctx context.Context, cacheDir string) (*deps, error) {
	slog.Debug("connecting to database", "driver", cfg.DBDriver)
	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	d := &deps{db: db}

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		d.rdb, err = lock.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			db.Close()
			return nil, err
		}
		locker = lock.NewRedisLocker(d.rdb, "billtracker:lock:", cfg.LockTTL)
		slog.Info("using redis for refresh locks", "addr", cfg.RedisAddr)
	}

	var fetcher service.Fetcher
	if cacheDir != "" {
		fetcher = &service.DirFetcher{Dir: cacheDir, BaseURL: cfg.LegisBaseURL}
		slog.Info("serving pages from cache", "dir", cacheDir)
	} else {
		fetcher = service.NewLegisClient(cfg.LegisBaseURL, cfg.FetchTimeout)
	}

	d.bills = store.NewBillStore(db)
	d.users = store.NewUserStore(db)
	d.refresher = service.NewRefresher(fetcher, service.NewParser(cfg.LegisBaseURL), d.bills, locker).
		WithConcurrency(cfg.RefreshConcurrency)
	d.tracker = service.NewTracker(d.bills, d.users, d.refresher)
	d.metrics = service.NewMetricsService(db)
	d.issuer = auth.NewIssuer(cfg.JWTSecret, cfg.JWTExp)

	return d, nil
}

func (d *deps) Close() {
	if d.rdb != nil {
		if err := d.rdb.Close(); err != nil {
			slog.Warn("failed to close redis", "err", err)
		}
	}
	if err := d.db.Close(); err != nil {
		slog.Warn("failed to close database", "err", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
