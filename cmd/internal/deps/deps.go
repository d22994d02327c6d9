// Package deps builds the long lived clients shared by every command.
package deps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/paysync/paysync/pkg/config"
	"github.com/paysync/paysync/pkg/drainer"
	"github.com/paysync/paysync/pkg/kv"
	"github.com/paysync/paysync/pkg/lock"
	"github.com/paysync/paysync/pkg/logger"
	schedmetrics "github.com/paysync/paysync/pkg/metrics"
	"github.com/paysync/paysync/pkg/redisconn"
	"github.com/paysync/paysync/pkg/scheduler"
	"github.com/paysync/paysync/pkg/storage"
	"github.com/paysync/paysync/pkg/storage/sqlstore"
	"github.com/paysync/paysync/pkg/streams"
	"github.com/paysync/paysync/pkg/telemetry/metrics"
	"github.com/redis/rueidis"
)

// Deps holds the clients of one process.  Close releases all of them.
type Deps struct {
	Config  *config.Config
	Clock   clockwork.Clock
	Redis   rueidis.Client
	DB      *sqlstore.Store
	Streams *streams.Client
	Locker  *lock.RedisLocker
	KV      *kv.Store
	Drainer *drainer.Enqueuer
	Storage *storage.Store
	Sched   *scheduler.Scheduler

	metrics *metrics.Provider
	server  *http.Server
}

// New connects to redis and the relational store, applying migrations, and
// serves metrics when configured.
func New(ctx context.Context, c *config.Config, name string) (*Deps, error) {
	d := &Deps{Config: c, Clock: clockwork.NewRealClock()}

	rc, err := redisconn.New(ctx, c.Redis, "paysync-"+name)
	if err != nil {
		return nil, err
	}
	d.Redis = rc

	db, err := sqlstore.Open(ctx, sqlstore.Options{
		PostgresURI: c.Database.PostgresURI,
		InMemory:    c.Database.InMemory,
		Dir:         c.Database.Dir,
		MaxOpen:     c.Database.MaxOpen,
		Clock:       d.Clock,
	})
	if err != nil {
		rc.Close()
		return nil, err
	}
	d.DB = db

	d.Streams = streams.New(rc)
	d.Locker = lock.NewRedisLocker(rc, c.Redis.KeyPrefix)
	d.KV = kv.New(rc, c.Redis.KeyPrefix, kv.WithCluster(c.Redis.Cluster), kv.WithTTL(c.Redis.KVTTL))
	d.Drainer = drainer.NewEnqueuer(d.Streams, c.Redis.KeyPrefix,
		drainer.WithPartitions(c.Drainer.Partitions),
		drainer.WithEnqueueTimeout(c.Drainer.EnqueueTimeout),
		drainer.WithClock(d.Clock),
	)
	d.Storage = storage.New(storage.Opts{
		Cache:      d.KV,
		Relational: db,
		Drainer:    d.Drainer,
		Schemes:    c.Storage,
		Clock:      d.Clock,
	})
	d.Sched = scheduler.New(db, scheduler.NewRetryResolver(c.Retry), d.Clock)

	if err := d.serveMetrics(ctx); err != nil {
		_ = d.Close(ctx)
		return nil, err
	}
	return d, nil
}

func (d *Deps) serveMetrics(ctx context.Context) error {
	if d.Config.Metrics.Addr == "" {
		return nil
	}

	p, err := metrics.Setup()
	if err != nil {
		return err
	}
	d.metrics = p

	api, err := schedmetrics.NewMetricsAPI(schedmetrics.Opts{
		Streams: d.Streams,
		Stream:  d.Config.Scheduler.Stream,
		Group:   d.Config.Scheduler.Group,
	})
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", p.Handler)
	r.Mount("/metrics/scheduler", api.Router)
	r.Get("/healthz", d.health)

	d.server = &http.Server{
		Addr:              d.Config.Metrics.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	l := logger.StdlibLogger(ctx)
	go func() {
		l.Info("serving metrics", "addr", d.Config.Metrics.Addr)
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics server stopped", "error", err)
		}
	}()
	return nil
}

func (d *Deps) health(w http.ResponseWriter, r *http.Request) {
	if err := d.Redis.Do(r.Context(), d.Redis.B().Ping().Build()).Error(); err != nil {
		http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := d.DB.DB().PingContext(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Close shuts down the metrics server and closes every client.
func (d *Deps) Close(ctx context.Context) error {
	var result error
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("error stopping metrics server: %w", err))
		}
	}
	if d.metrics != nil {
		if err := d.metrics.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("error stopping meter provider: %w", err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("error closing database: %w", err))
		}
	}
	if d.Redis != nil {
		d.Redis.Close()
	}
	return result
}
