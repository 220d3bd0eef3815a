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
	"github.com/eventure/backend/docs"
	"github.com/eventure/backend/internal/config"
	"github.com/eventure/backend/internal/database"
	mW "github.com/eventure/backend/internal/middleware"
	"github.com/eventure/backend/internal/scheduler"
	"github.com/eventure/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Eventure Payments API
// @version 1.0
// @description Bank-transfer reconciliation, wallets and withdrawals for the Eventure platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
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

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Eventure Payments API"
	docs.SwaggerInfo.Description = "Bank-transfer reconciliation, wallets and withdrawals for the Eventure platform"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	paymentConfig := config.LoadPaymentConfig()
	if !paymentConfig.Configured() {
		log.Println("Warning: payment account not configured, deposits and upgrades will be rejected")
	}

	walletService := services.NewWalletService(db)
	effectService := services.NewEffectService(db, walletService)
	qrService := services.NewQRService(redisClient)
	intentService := services.NewIntentService(db, effectService, qrService, paymentConfig)
	reconcileService := services.NewReconcileService(db, redisClient, intentService, effectService, paymentConfig)
	bankService := services.NewBankService(paymentConfig, reconcileService)
	sweeperService := services.NewSweeperService(db)
	payoutService := services.NewPayoutAccountService(db)
	iso20022Service := services.NewISO20022Service()
	withdrawalService := services.NewWithdrawalService(db, walletService, payoutService, iso20022Service)
	registrationService := services.NewRegistrationService(db, intentService)

	// Background jobs: bank poller and stale-intent sweeper
	sched := scheduler.New()
	sched.Register("bank-sync", services.SyncInterval, bankService.SyncTransactions)
	sched.Register("intent-sweeper", services.SweepInterval, sweeperService.SweepExpiredIntents)
	sched.Start(context.Background())

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin", "Secure-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/webhooks/bank", reconcileService.HandleWebhook)
		r.Get("/transactions/status/{orderCode}", intentService.GetStatusByOrderCode)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/wallet/me", walletService.GetMyWallet)

			r.Post("/transactions/upgrade", intentService.CreateUpgrade)

			r.Post("/withdrawals", withdrawalService.CreateWithdrawal)
			r.Get("/withdrawals", withdrawalService.GetWithdrawalHistory)

			r.Get("/payout-accounts/me", payoutService.GetPayoutAccount)
			r.Put("/payout-accounts/me", payoutService.UpsertPayoutAccount)

			r.Post("/events/{eventId}/deposit", registrationService.InitiateEventDeposit)
			r.Post("/events/{eventId}/register", registrationService.Register)
			r.Delete("/events/{eventId}/register", registrationService.Unregister)
			r.Get("/events/{eventId}/registration", registrationService.GetRegistrationStatus)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireRole("ADMIN"))

				r.Get("/admin/transactions", intentService.ListIntents)
				r.Post("/admin/transactions/{id}/confirm", intentService.ManuallyConfirm)
				r.Get("/admin/withdrawals", withdrawalService.ListWithdrawals)
				r.Post("/admin/withdrawals/{id}/approve", withdrawalService.ApproveWithdrawal)
				r.Post("/admin/withdrawals/{id}/reject", withdrawalService.RejectWithdrawal)
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
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
