package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/deluge-fund/backend/docs"
	"github.com/deluge-fund/backend/internal/audit"
	"github.com/deluge-fund/backend/internal/config"
	"github.com/deluge-fund/backend/internal/database"
	"github.com/deluge-fund/backend/internal/handlers"
	mW "github.com/deluge-fund/backend/internal/middleware"
	"github.com/deluge-fund/backend/internal/services"
)

// @title Deluge Ledger API
// @version 1.0
// @description Community giving and micro-lending ledger backend
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Deluge Ledger API"
	docs.SwaggerInfo.Description = "Community giving and micro-lending ledger backend"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	ledgerCfg := config.LoadLedgerConfig()

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditLogger := audit.NewLogger(1024)
	defer auditLogger.Close()

	authService := services.NewAuthService(db, redisClient)
	watershedService := services.NewWatershedService(db)
	reserveService := services.NewReserveService(db, ledgerCfg)
	loanService := services.NewLoanService(db, watershedService, ledgerCfg)
	settlementService := services.NewSettlementService(db, reserveService, auditLogger)
	reportService := services.NewSettlementReportService()
	qrService := services.NewQRService(db, redisClient, ledgerCfg)

	watershedHandler := handlers.NewWatershedHandler(watershedService)
	loanHandler := handlers.NewLoanHandler(loanService)
	reserveHandler := handlers.NewReserveHandler(reserveService, auditLogger)
	settlementHandler := handlers.NewSettlementHandler(settlementService, reportService, ledgerCfg)
	qrHandler := handlers.NewQRHandler(qrService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for badge assets
	r.Handle("/static/badges/*", http.StripPrefix("/static/badges/",
		mW.StaticFileServer("./static/badges")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Get("/loans/{id}", loanHandler.GetLoan)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			// Watershed endpoints
			r.Get("/watershed", watershedHandler.GetWatershed)
			r.Get("/watershed/transactions", watershedHandler.ListTransactions)

			// Loan endpoints
			r.Post("/loans", loanHandler.CreateLoan)
			r.Post("/loans/{id}/fund", loanHandler.FundLoan)
			r.Post("/loans/{id}/repayments", loanHandler.RecordRepayment)

			// Reserve health is visible to all members
			r.Get("/reserve/health", reserveHandler.GetHealth)

			// QR endpoints
			r.Post("/qr/funding", qrHandler.GenerateFunding)
			r.Post("/qr/resolve", qrHandler.Resolve)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly)

				r.Post("/reserve/adjust", reserveHandler.Adjust)
				r.Post("/settlements", settlementHandler.Create)
				r.Post("/settlements/{id}/clear", settlementHandler.Clear)
				r.Post("/settlements/{id}/fail", settlementHandler.Fail)
				r.Get("/settlements/{id}/report", settlementHandler.Report)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
