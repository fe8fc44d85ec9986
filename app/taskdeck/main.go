package main

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jrazmi/taskdeck/bridge/repositories/authbridge"
	"github.com/jrazmi/taskdeck/bridge/repositories/tasksbridge"
	"github.com/jrazmi/taskdeck/bridge/scaffolding/mid"
	"github.com/jrazmi/taskdeck/core/authn"
	"github.com/jrazmi/taskdeck/core/reminders"
	"github.com/jrazmi/taskdeck/core/repositories/tasksrepo"
	"github.com/jrazmi/taskdeck/core/repositories/tasksrepo/stores/tasksdocstore"
	"github.com/jrazmi/taskdeck/core/repositories/usersessionsrepo"
	"github.com/jrazmi/taskdeck/core/repositories/usersessionsrepo/stores/usersessionspgxstore"
	"github.com/jrazmi/taskdeck/core/repositories/usersrepo"
	"github.com/jrazmi/taskdeck/core/repositories/usersrepo/stores/userspgxstore"
	"github.com/jrazmi/taskdeck/core/tasksession"
	"github.com/jrazmi/taskdeck/infrastructure/docstore/pgxdocstore"
	"github.com/jrazmi/taskdeck/infrastructure/identitycache"
	"github.com/jrazmi/taskdeck/infrastructure/postgresdb"
	"github.com/jrazmi/taskdeck/infrastructure/web"
	"github.com/jrazmi/taskdeck/sdk/logger"
	"github.com/jrazmi/taskdeck/sdk/telemetry"
)

var build = "develop"

const appName = "TASKDECK"

func main() {
	godotenv.Load()
	ctx := context.Background()

	log, err := logger.NewFromEnv(appName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuring logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, log); err != nil {
		log.ErrorContext(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	log.InfoContext(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// ---------------------------------------------------------------------
	// Database

	pool, err := postgresdb.NewFromEnv(appName, postgresdb.WithLogger(log.Logger))
	if err != nil {
		return fmt.Errorf("configuring postgres support: %w", err)
	}
	defer func() {
		log.InfoContext(ctx, "shutdown", "status", "closing database connection")
		pool.Close()
	}()

	if err := postgresdb.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// ---------------------------------------------------------------------
	// Stores and repositories

	log.InfoContext(ctx, "startup", "status", "initializing repository support")

	documents := pgxdocstore.NewStore(ctx, log, pool)
	defer documents.Close()

	tasks := tasksrepo.NewRepository(log, tasksdocstore.NewStore(log, documents))
	users := usersrepo.NewRepository(log, userspgxstore.NewStore(log, pool))
	userSessions := usersessionsrepo.NewRepository(log, usersessionspgxstore.NewStore(log, pool))

	pruner, err := usersessionsrepo.NewPrunerFromEnv(appName, log, userSessions)
	if err != nil {
		return fmt.Errorf("configuring session pruner: %w", err)
	}
	defer func() {
		log.InfoContext(ctx, "shutdown", "status", "stopping session pruner")
		pruner.Stop()
	}()

	// ---------------------------------------------------------------------
	// Auth

	cache, err := identitycache.NewFromEnv(appName, log)
	if err != nil {
		return fmt.Errorf("configuring identity cache: %w", err)
	}
	defer cache.Close()

	auth, err := authn.NewFromEnv(appName, log, users, userSessions, cache)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	// ---------------------------------------------------------------------
	// Reminders and sessions

	// The manager is both consumer and target of the scheduler: fired
	// notifications fan out to the log and to the owning user's session,
	// which relays them over any open websocket.
	var sessions *tasksession.Manager
	notifier := reminders.Fanout{
		reminders.NewLogNotifier(log),
		reminders.NotifierFunc(func(ctx context.Context, n reminders.Notification) error {
			return sessions.Send(ctx, n)
		}),
	}

	scheduler, err := reminders.NewFromEnv(appName, notifier, reminders.WithLogger(log))
	if err != nil {
		return fmt.Errorf("configuring reminder scheduler: %w", err)
	}
	defer func() {
		log.InfoContext(ctx, "shutdown", "status", "stopping reminder scheduler")
		scheduler.Stop()
	}()

	sessions = tasksession.NewManager(log, tasks, scheduler)
	defer func() {
		log.InfoContext(ctx, "shutdown", "status", "closing task sessions")
		sessions.CloseAll()
	}()

	// ---------------------------------------------------------------------
	// Web server

	handler, err := webHandler(log, auth, sessions)
	if err != nil {
		return fmt.Errorf("configuring web handler: %w", err)
	}

	server, err := web.NewServerFromEnv(appName,
		web.WithHandler(handler),
		web.WithErrorLog(logger.NewStdLogger(log, slog.LevelError)),
	)
	if err != nil {
		return fmt.Errorf("configuring web server: %w", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "startup", "status", "api router started", "host", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.InfoContext(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.InfoContext(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(ctx, server.Config.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

func webHandler(log *logger.Logger, auth *authn.Service, sessions *tasksession.Manager) (http.Handler, error) {
	tel := telemetry.NewTelemetry()

	handler, err := web.NewWebHandlerFromEnv(appName,
		web.WithLogging(log.Logger),
		web.WithTelemetry(tel),
		web.WithGlobalMiddleware(
			mid.Logger(log, tel),
			mid.Errors(log),
			mid.Metrics(),
			mid.Panics(),
		),
	)
	if err != nil {
		return nil, err
	}

	api := handler.Group("/api/v1")

	authbridge.AddHttpRoutes(api, authbridge.Config{
		Log:      log,
		Auth:     auth,
		Sessions: sessions,
	})

	tasksbridge.AddHttpRoutes(api, tasksbridge.Config{
		Log:      log,
		Sessions: sessions,
		Auth:     auth,
	})

	handler.HandleRaw("GET /debug/vars", expvar.Handler())

	return handler, nil
}
