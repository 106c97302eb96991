package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cloudward/saas-identity/domains/system/be/handler"
	"github.com/cloudward/saas-identity/domains/system/be/service"
	platformlogging "github.com/cloudward/saas-identity/platform/go/logging"
	platformmiddleware "github.com/cloudward/saas-identity/platform/go/middleware"
	"github.com/cloudward/saas-identity/platform/go/records"
	"github.com/cloudward/saas-identity/platform/go/usermanager"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3003"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	AWSRegion       string        `env:"AWS_REGION" envDefault:"us-east-1"`
	TenantTable     string        `env:"TENANT_TABLE" envDefault:"Tenant"`
	UserManagerURL  string        `env:"USER_MANAGER_URL,required"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Service: "system-registration",
		Level:   cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatal("load aws config", zap.Error(err))
	}

	tenantStore, err := records.NewDynamoTenantStore(ctx, dynamodb.NewFromConfig(awsCfg), cfg.TenantTable)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}

	userManager := usermanager.New(cfg.UserManagerURL, nil)
	systemService := service.New(userManager, tenantStore, logger)

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.PermissiveCORS(),
	)
	router.Use(platformlogging.RequestLogger(logger))

	handler.New(systemService, logger).Register(router)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting system-registration server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
