// Command kontrold is the pod-coordination daemon: depending on
// $KONTROL_MODE it runs the slave-side keepalive emitter, the master-side
// sequence actor / leader elector / callback driver, or both (debug mode).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wisbric/kontrol/internal/audit"
	"github.com/wisbric/kontrol/internal/config"
	"github.com/wisbric/kontrol/internal/httpserver"
	"github.com/wisbric/kontrol/internal/kvstore"
	"github.com/wisbric/kontrol/internal/platform"
	"github.com/wisbric/kontrol/internal/rpcserver"
	"github.com/wisbric/kontrol/internal/supervisor"
	"github.com/wisbric/kontrol/internal/telemetry"
	"github.com/wisbric/kontrol/pkg/callback"
	"github.com/wisbric/kontrol/pkg/keepalive"
	"github.com/wisbric/kontrol/pkg/leader"
	"github.com/wisbric/kontrol/pkg/notify"
	"github.com/wisbric/kontrol/pkg/pod"
	"github.com/wisbric/kontrol/pkg/script"
	"github.com/wisbric/kontrol/pkg/sequence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// actorComponent adapts a long-running actor's Run(ctx) error method into a
// supervisor.Component: Start launches it in the background against the
// shared runtime context, logging a non-nil exit; Stop is a no-op because
// cancelling that shared context is what actually tears every actor down.
func actorComponent(name string, run func(ctx context.Context) error) supervisor.Component {
	return supervisor.Component{
		Name: name,
		Start: func(ctx context.Context) error {
			go func() {
				if err := run(ctx); err != nil && ctx.Err() == nil {
					slog.Error("actor exited", "name", name, "error", err)
				}
			}()
			return nil
		},
		Stop: func(context.Context) error { return nil },
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPTarget, "kontrold", "dev")
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	rdb, err := kvstore.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()
	store := kvstore.NewRedisStore(rdb)

	metricsReg := telemetry.NewRegistry(telemetry.All()...)

	var auditWriter *audit.Writer
	if cfg.AuditDSN != "" {
		if err := platform.RunMigrations(cfg.AuditDSN, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running audit migrations: %w", err)
		}
		pool, err := platform.NewPostgresPool(ctx, cfg.AuditDSN)
		if err != nil {
			return fmt.Errorf("connecting to audit database: %w", err)
		}
		defer pool.Close()
		auditWriter = audit.NewWriter(pool, logger)
	}

	notifier := notify.New(cfg.SlackToken, cfg.SlackChan, logger)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	sup := supervisor.New(logger)

	if auditWriter != nil {
		sup.Add(supervisor.Component{
			Name:  "audit",
			Start: func(ctx context.Context) error { auditWriter.Start(ctx); return nil },
			Stop:  func(context.Context) error { auditWriter.Close(); return nil },
		})
	}

	base := pod.Record{App: cfg.Labels.App, Role: cfg.Labels.Role, ID: cfg.ID, IP: cfg.IP}
	fover := time.Duration(cfg.Fover) * time.Second
	ttl := time.Duration(cfg.TTL) * time.Second
	damper := time.Duration(cfg.Damper) * time.Second

	if cfg.Modes["slave"] {
		// Keepalive period is ttl*0.75 (spec.md §4.1/§5), not fover-derived:
		// fover governs the leader lock's refresh/watch cadence, a separate
		// timer entirely.
		period := time.Duration(float64(ttl) * 0.75)
		emitter := keepalive.New(cfg.Annotations.Masters(), period, cfg.Payload, base, logger)
		sup.Add(actorComponent("keepalive", emitter.Run))
	}

	// The script actor serves PUT /script and RPC Invoke unconditionally:
	// a slave node runs it locally even without the master-only sequence/
	// leader/callback actors (spec.md §4.5).
	scriptActor := script.New(logger)
	sup.Add(actorComponent("script", scriptActor.Run))

	var driver *callback.Driver
	var seqActor *sequence.Actor

	if cfg.Modes["master"] {
		seqActor = sequence.New(store, cfg.Prefix(), ttl, logger)
		sup.Add(actorComponent("sequence", seqActor.Run))

		driver = callback.New(store, cfg.Prefix(), cfg.Callback, logger)
		sup.Add(actorComponent("callback", driver.Run))

		elector := leader.New(store, cfg.Prefix(), fover, damper, driver, logger)
		elector.OnElected(func(lockKey string) {
			notifier.LeaderElected(runCtx, lockKey)
		})
		elector.OnDigestChange(func(digest string, pods []pod.Record) {
			notifier.MembershipChanged(runCtx, digest, pods)
			if auditWriter != nil {
				auditWriter.Log(audit.Entry{
					EventType: "membership_changed",
					Detail:    audit.MarshalDetail(map[string]any{"digest": digest, "pod_count": len(pods)}),
				})
			}
		})
		sup.Add(actorComponent("leader", elector.Run))
	}

	if err := sup.Start(runCtx); err != nil {
		return err
	}
	logger.Info("actors started", "components", sup.Names())

	// HTTP and RPC listen unconditionally, mirroring the original
	// endpoint.py's gunicorn worker, which registers /down, /ping, /state,
	// and /script regardless of $KONTROL_MODE; routes that need the
	// master-only actors error per-request when they are absent instead of
	// the listener itself being conditional.
	httpSrv := httpserver.NewServer(httpserver.Deps{
		OnPing: func(ctx context.Context, body []byte) error {
			if seqActor == nil {
				return fmt.Errorf("kontrold: not running in master mode, cannot accept /ping")
			}
			rec, err := pod.Parse(body)
			if err != nil {
				return fmt.Errorf("parsing pod record: %w", err)
			}
			return seqActor.Update(ctx, rec)
		},
		GetState: func(ctx context.Context) (string, error) {
			if seqActor == nil {
				return "", fmt.Errorf("kontrold: not running in master mode, cannot serve /state")
			}
			state, err := store.Get(ctx, cfg.Prefix()+"/state")
			if err == kvstore.ErrNotFound {
				return "", nil
			}
			return state, err
		},
		RunScript: func(ctx context.Context, body []byte) (string, error) {
			return scriptActor.Invoke(ctx, body)
		},
		Shutdown: func(context.Context) error {
			cancelRun()
			return nil
		},
	}, logger, metricsReg)

	httpListener := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      httpSrv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr())
		if err := httpListener.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpListener.Shutdown(shutdownCtx)
	}()

	rpcSrv, err := rpcserver.Listen(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), rpcserver.Deps{
		OnPing: func(ctx context.Context, raw []byte) error {
			if seqActor == nil {
				return fmt.Errorf("kontrold: not running in master mode, cannot accept ping")
			}
			rec, err := pod.Parse(raw)
			if err != nil {
				return fmt.Errorf("parsing pod record: %w", err)
			}
			return seqActor.Update(ctx, rec)
		},
		RunScript: func(ctx context.Context, raw []byte) (string, error) {
			return scriptActor.Invoke(ctx, raw)
		},
	}, logger)
	if err != nil {
		cancelRun()
		return fmt.Errorf("starting rpc server: %w", err)
	}
	defer rpcSrv.Close()
	logger.Info("rpc server listening", "addr", rpcSrv.Addr().String())

	<-runCtx.Done()
	logger.Info("shutting down")

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	return sup.Stop(stopCtx)
}
