package tally

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/sadopc/tally/internal/config"
	"github.com/sadopc/tally/internal/counter"
	"github.com/sadopc/tally/internal/history"
	"github.com/sadopc/tally/internal/logging"
	"github.com/sadopc/tally/internal/metrics"
	"github.com/sadopc/tally/internal/progress"
	"github.com/sadopc/tally/internal/remote"
	"github.com/sadopc/tally/internal/remote/surreal"
	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/supervisor"
	"github.com/sadopc/tally/internal/syncq"
)

// App owns every long-lived component of a running tally process.
type App struct {
	Config  *config.Config
	Store   *store.Store
	Counter *counter.Manager
	History *history.Log
	Charts  *history.Aggregator
	Remote  *remote.Client
	Queue   *syncq.Queue
	Service *Service

	sup *suture.Supervisor
}

// Open builds the component graph from cfg. The backend is dialled here;
// an unreachable remote is an error only for the surreal backend's first
// connection, later outages are absorbed by the sync queue.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	backend, err := dialBackend(ctx, cfg.Remote)
	if err != nil {
		s.Close()
		return nil, err
	}
	return New(cfg, s, backend), nil
}

// New wires already-open dependencies together.
func New(cfg *config.Config, s *store.Store, backend remote.Backend) *App {
	client := remote.NewClient(backend)
	c := counter.New(s)
	c.Load()

	log := history.NewLog(s, cfg.History.MaxEntries)
	q := syncq.New(client, s, syncq.Config{
		FlushInterval:   cfg.Sync.FlushInterval,
		RemoteTimeout:   cfg.Sync.RemoteTimeout,
		BreakerFailures: cfg.Sync.BreakerFailures,
		BreakerTimeout:  cfg.Sync.BreakerTimeout,
	})

	sup := supervisor.New("tally", supervisor.Config{})
	sup.Add(q)
	sup.Add(client)

	return &App{
		Config:  cfg,
		Store:   s,
		Counter: c,
		History: log,
		Charts:  history.NewAggregator(log, c, client),
		Remote:  client,
		Queue:   q,
		Service: NewService(c, log, q),
		sup:     sup,
	}
}

func dialBackend(ctx context.Context, rc config.RemoteConfig) (remote.Backend, error) {
	switch rc.Backend {
	case "surreal":
		dctx, cancel := context.WithTimeout(ctx, rc.Timeout)
		defer cancel()
		b, err := surreal.Dial(dctx, surreal.Config{
			URL:       rc.URL,
			Namespace: rc.Namespace,
			Database:  rc.Database,
			Username:  rc.Username,
			Password:  rc.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("dial remote: %w", err)
		}
		return b, nil
	case "memory", "":
		return remote.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", rc.Backend)
	}
}

// Start runs the sync queue and remote subscriptions until ctx is done.
// When a metrics address is configured it also serves /metrics.
// Remote initialization runs in the background and never delays local use.
func (a *App) Start(ctx context.Context) <-chan error {
	go a.initializeRemote(ctx)
	if addr := a.Config.Metrics.Addr; addr != "" {
		go a.serveMetrics(ctx, addr)
	}
	return a.sup.ServeBackground(ctx)
}

func (a *App) initializeRemote(ctx context.Context) {
	ictx, cancel := context.WithTimeout(ctx, a.Config.Remote.Timeout)
	defer cancel()
	if err := a.Remote.Initialize(ictx); err != nil {
		logging.Warn().Err(err).Msg("initialize remote aggregate")
	}
}

func (a *App) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error().Err(err).Str("addr", addr).Msg("metrics server")
	}
}

// Snapshot is a point-in-time view for the status screens.
type Snapshot struct {
	Personal  int64
	Global    int64
	GlobalErr error
	// GlobalUpdated is when any device last added to the global count.
	GlobalUpdated time.Time
	Percent       float64
	Countdown     progress.Countdown
	Sync          syncq.Stats
}

// Snapshot reads the current state. The global count comes from the remote
// and may fail while offline; everything else is local.
func (a *App) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		Personal:  a.Counter.Count(),
		Countdown: progress.Until(time.Now(), a.Config.Goal.TargetDate()),
		Sync:      a.Queue.Stats(),
	}
	rctx, cancel := context.WithTimeout(ctx, a.Config.Remote.Timeout)
	defer cancel()
	snap.Global, snap.GlobalErr = a.Remote.GlobalCount(rctx)
	if snap.GlobalErr == nil {
		updated, err := a.Remote.LastUpdated(rctx)
		if err != nil {
			logging.Debug().Err(err).Msg("read global last updated")
		}
		snap.GlobalUpdated = updated
	}
	snap.Percent = progress.Percent(snap.Global, a.Config.Goal.Target)
	return snap
}

// FormatNumber formats n in the configured locale.
func (a *App) FormatNumber(n int64) string {
	return progress.FormatNumber(n, a.Config.Goal.Locale)
}

// Close waits for in-flight tap syncs, flushes the counter and releases
// the remote and the store. The supervisor must already be stopped.
func (a *App) Close() error {
	a.Service.Wait()
	var errs []error
	if err := a.Counter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close counter: %w", err))
	}
	if err := a.Remote.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close remote: %w", err))
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
