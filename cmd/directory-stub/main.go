package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WailSalutem-Health-Care/user-directory/internal/auth"
	"github.com/WailSalutem-Health-Care/user-directory/internal/config"
	httpserver "github.com/WailSalutem-Health-Care/user-directory/internal/http"
	"github.com/WailSalutem-Health-Care/user-directory/internal/notification"
	"github.com/WailSalutem-Health-Care/user-directory/internal/stub"
	"github.com/WailSalutem-Health-Care/user-directory/internal/telemetry"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	configPath := flag.String("config", os.Getenv("USERDIRECTORY_CONFIG"), "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Telemetry.ServiceName = envOr("OTEL_SERVICE_NAME", httpserver.ServiceName)
	provider, err := telemetry.InitProvider(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Printf("Warning: failed to initialize metrics: %v", err)
	}

	perms, err := auth.LoadPermissions(cfg.Stub.PermissionsFile)
	if err != nil {
		log.Fatalf("Failed to load permissions: %v", err)
	}
	log.Printf("✓ Loaded permissions for %d roles", len(perms))

	authority := auth.NewHMACAuthority(cfg.Auth)

	var publisher notification.PublisherInterface
	if cfg.Notify.Backend == config.NotifyRabbitMQ {
		p, err := notification.NewPublisher(cfg.Notify.RabbitMQURL, cfg.Notify.Exchange)
		if err != nil {
			log.Printf("Warning: RabbitMQ unavailable, user events will not be published: %v", err)
		} else {
			publisher = p
			defer p.Close()
		}
	}

	baseURL := envOr("STUB_PUBLIC_URL", cfg.Directory.BaseURL)
	service := stub.NewService(stub.NewMemoryRepository(), authority, publisher, baseURL)
	if err := service.SeedAdmin(stub.Seed{
		Username:  envOr("STUB_ADMIN_USERNAME", "admin"),
		Password:  envOr("STUB_ADMIN_PASSWORD", "admin"),
		FirstName: envOr("STUB_ADMIN_FIRSTNAME", "Super"),
		LastName:  envOr("STUB_ADMIN_LASTNAME", "Admin"),
		Email:     envOr("STUB_ADMIN_EMAIL", "admin@localhost"),
	}); err != nil {
		log.Fatalf("Failed to seed administrator: %v", err)
	}

	router := httpserver.SetupRouter(stub.NewHandler(service, perms), authority, perms, metrics, cfg.Stub.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.Stub.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("user directory stub listening on %s", cfg.Stub.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
