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

	"github.com/cloudward/saas-identity/domains/users/be/handler"
	"github.com/cloudward/saas-identity/domains/users/be/provisioning"
	"github.com/cloudward/saas-identity/domains/users/be/service"
	platformauth "github.com/cloudward/saas-identity/platform/go/auth"
	"github.com/cloudward/saas-identity/platform/go/identity"
	platformlogging "github.com/cloudward/saas-identity/platform/go/logging"
	platformmiddleware "github.com/cloudward/saas-identity/platform/go/middleware"
	"github.com/cloudward/saas-identity/platform/go/records"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3001"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	AWSRegion       string        `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccountID    string        `env:"AWS_ACCOUNT_ID,required"`
	UserTable       string        `env:"USER_TABLE" envDefault:"User"`
	TenantTable     string        `env:"TENANT_TABLE" envDefault:"Tenant"`
	ProductTable    string        `env:"PRODUCT_TABLE" envDefault:"Product"`
	OrderTable      string        `env:"ORDER_TABLE" envDefault:"Order"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Service: "user-manager",
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

	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	userStore, err := records.NewDynamoUserStore(ctx, dynamoClient, cfg.UserTable)
	if err != nil {
		logger.Fatal("init user store", zap.Error(err))
	}

	tenantStore, err := records.NewDynamoTenantStore(ctx, dynamoClient, cfg.TenantTable)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}

	identityClient := identity.NewAWSClient(awsCfg)
	resolver := platformauth.NewChainResolver(awsCfg)

	workflow := provisioning.NewWorkflow(identityClient, userStore, tenantStore, provisioning.Config{
		AccountID:    cfg.AWSAccountID,
		Region:       cfg.AWSRegion,
		TenantTable:  cfg.TenantTable,
		UserTable:    cfg.UserTable,
		ProductTable: cfg.ProductTable,
		OrderTable:   cfg.OrderTable,
	}, logger)

	userService := service.New(workflow, identityClient, userStore, records.NewDynamoTableAdmin(dynamoClient), resolver, service.TableNames{
		User:    cfg.UserTable,
		Tenant:  cfg.TenantTable,
		Product: cfg.ProductTable,
		Order:   cfg.OrderTable,
	}, logger)

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.PermissiveCORS(),
	)
	router.Use(platformlogging.RequestLogger(logger))
	router.Use(platformauth.CallerContext())

	handler.New(userService, logger).Register(router)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting user-manager server", zap.String("port", cfg.Port))
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
