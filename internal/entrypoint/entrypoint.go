package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/syncserver/internal/audit"
	"github.com/mrlokans/syncserver/internal/auth"
	"github.com/mrlokans/syncserver/internal/config"
	"github.com/mrlokans/syncserver/internal/crypto"
	"github.com/mrlokans/syncserver/internal/database"
	http_controllers "github.com/mrlokans/syncserver/internal/http"
	"github.com/mrlokans/syncserver/internal/openid"
	"github.com/mrlokans/syncserver/internal/scheduler"
	"github.com/mrlokans/syncserver/internal/secrets"
	"github.com/mrlokans/syncserver/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown on SIGINT and SIGTERM. SIGKILL cannot be caught, so
	// there is no point registering it.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Call shutdown callback first (e.g., to stop task queue)
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting sync server v%s", version)

	// Make sure the data directory exists before sqlite tries to create the
	// database file inside it.
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create data directory %s: %v", dir, err)
		}
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Identity core
	sessions := auth.NewSessionManager(db, cfg.Auth)
	service := auth.NewService(db, sessions, cfg.Auth)
	handshake := openid.NewHandshake(db, sessions, cfg.Auth)
	bootstrapper := auth.NewBootstrapper(db, service, handshake)
	permissions := auth.NewPermissionResolver(db)
	middleware := auth.NewMiddleware(sessions)

	proxyTrust, err := auth.NewProxyTrust(cfg.Auth.TrustedAuthProxies)
	if err != nil {
		log.Fatalf("Invalid trusted proxy configuration: %v", err)
	}

	auditor := audit.NewService(db)

	accountController := auth.NewController(
		service,
		sessions,
		middleware,
		bootstrapper,
		permissions,
		handshake,
		proxyTrust,
		auditor,
	)

	// Secrets are stored in the clear unless an encryption key is configured
	var encryptor *crypto.Encryptor
	if cfg.Secrets.EncryptionKey != "" {
		encryptor, err = crypto.NewEncryptorFromBase64(cfg.Secrets.EncryptionKey)
		if err != nil {
			log.Fatalf("Invalid secrets encryption key: %v", err)
		}
	}

	secretsService := secrets.NewService(db, encryptor)
	secretsController := secrets.NewController(secretsService, db, middleware, permissions, auditor)

	// Background hygiene: the task queue runs the work, cron enqueues it
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	var hygiene *scheduler.HygieneScheduler
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:         cfg.Tasks.Workers,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewSweepSessionsQueue(sessions),
			tasks.NewCleanupPendingStatesQueue(handshake),
			tasks.NewCleanupAuditEventsQueue(db),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		if cfg.Sweep.Enabled {
			hygiene = scheduler.NewHygieneScheduler(taskClient, cfg.Sweep.Schedule, cfg.Audit.RetentionDays)
			if err := hygiene.Start(); err != nil {
				log.Fatalf("Failed to start hygiene scheduler: %v", err)
			}
		}
	}

	routerCfg := http_controllers.RouterConfig{
		Database:          db,
		AccountController: accountController,
		SecretsController: secretsController,
		Version:           version,
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if hygiene != nil {
			hygiene.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
