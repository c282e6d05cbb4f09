package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"vasp-offchain.backend/internal/address"
	"vasp-offchain.backend/internal/config"
	"vasp-offchain.backend/internal/processor/defaultbusiness"
	"vasp-offchain.backend/internal/storage"
	"vasp-offchain.backend/internal/storage/gormkv"
	transporthttp "vasp-offchain.backend/internal/transport/http"
	"vasp-offchain.backend/internal/vasp"
	"vasp-offchain.backend/pkg/jwt"
	"vasp-offchain.backend/pkg/logger"
	"vasp-offchain.backend/pkg/metrics"
	"vasp-offchain.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	newSessionStore = redis.NewSessionStore
	runServer       = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB        = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	// Load .env file
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := loadCfg()

	// Initialize Logger
	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	// Initialize Redis
	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "Redis initialized")

	// Set Gin mode
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database using GORM — this backs the off-chain protocol's
	// durable object storage (internal/storage/gormkv), not a CRUD schema.
	dsn := cfg.Database.URL()
	db, err := openDB(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Printf("⚠️ Database not available: %v (protocol endpoint will return errors)", err)
	} else {
		log.Println("✅ Connected to PostgreSQL via GORM")
		if err := gormkv.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate kv storage: %w", err)
		}
	}

	factory, err := storage.NewFactory(gormkv.New(db))
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	// Initialize JWT service, securing the admin introspection API.
	jwtService := jwt.NewJWTService(
		cfg.JWT.Secret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)

	// Initialize Session Store
	sessionStore, err := newSessionStore(cfg.Security.SessionEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}

	myAddress, err := address.Parse(cfg.VASP.OwnAddress)
	if err != nil {
		return fmt.Errorf("failed to parse VASP_OWN_ADDRESS: %w", err)
	}

	reg := metrics.New()
	peerClient := transporthttp.NewHTTPPeerClient(cfg.VASP.PeerBaseURLs, cfg.VASP.RequestTimeout).
		WithSelf(myAddress).
		WithSigningKey(cfg.VASP.SigningKey)

	business := defaultbusiness.New(defaultbusiness.Context{
		MyAddress:  myAddress.String(),
		SigningKey: cfg.VASP.SigningKey,
	})

	node := vasp.New(myAddress, factory, business, peerClient)

	r := transporthttp.Router(node, jwtService, sessionStore, reg, cfg.VASP.PeerComplianceKeys)

	// Graceful shutdown: nothing currently listens on this signal beyond
	// logging it, since the off-chain protocol keeps no background job
	// that needs draining before the process exits.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down server...")
	}()

	log.Println("📋 Registered Routes:")
	for _, route := range r.Routes() {
		log.Printf("   %s %s", route.Method, route.Path)
	}

	log.Printf("🚀 VASP off-chain backend starting on port %s", cfg.Server.Port)
	log.Printf("🔗 Own address: %s", myAddress.String())
	log.Printf("❤️ Health: http://localhost:%s/healthz", cfg.Server.Port)

	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
