package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"sweeps-casino/internal/auth"
	"sweeps-casino/internal/cache"
	"sweeps-casino/internal/config"
	"sweeps-casino/internal/database"
	"sweeps-casino/internal/handlers"
	"sweeps-casino/internal/jobs"
	"sweeps-casino/internal/models"
	"sweeps-casino/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	loc := cfg.Location()

	// Initialize services
	userService := services.NewUserService(database.GetDB())
	auditService := services.NewAuditService(database.GetDB())
	walletService := services.NewWalletService(database.GetDB())
	withdrawalService := services.NewWithdrawalService(database.GetDB(), walletService, auditService)
	leaderboardService := services.NewLeaderboardService(database.GetDB(), walletService, loc)

	// Optional standings cache (disabled when REDIS_ADDR is empty)
	standingsCache := cache.NewStandingsCache(cfg.Redis.Addr, cfg.Redis.Password)
	if standingsCache != nil {
		log.Printf("Standings cache enabled (redis %s)", cfg.Redis.Addr)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	walletHandler := handlers.NewWalletHandler(walletService)
	withdrawalHandler := handlers.NewWithdrawalHandler(withdrawalService)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService, standingsCache, loc)
	adminHandler := handlers.NewAdminHandler(userService, walletService, withdrawalService,
		leaderboardService, auditService, standingsCache, loc)

	// Start week closer job
	weekCloser := jobs.NewWeekCloser(leaderboardService, cfg.Leaderboard.CloseInterval)
	go weekCloser.Start()
	log.Println("Week closer job started")

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
	}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Token issuance (session management itself lives with the identity provider)
	router.POST("/api/auth/token", authHandler.Token)

	// Public leaderboard standings
	router.GET("/api/leaderboard", leaderboardHandler.Standings)

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		// Wallet endpoints
		api.GET("/wallet/:currency/balance", walletHandler.GetBalance)
		api.GET("/wallet/:currency/transactions", walletHandler.GetTransactions)

		// Withdrawal endpoints
		api.POST("/withdrawals", withdrawalHandler.Submit)
		api.GET("/withdrawals", withdrawalHandler.List)
		api.GET("/withdrawals/:id", withdrawalHandler.Get)
		api.POST("/withdrawals/:id/cancel", withdrawalHandler.Cancel)

		// Leaderboard endpoints
		api.GET("/leaderboard/me", leaderboardHandler.MyRank)
	}

	// Internal routes: game/store collaborators reporting monetary events
	internalAPI := router.Group("/api/internal")
	internalAPI.Use(auth.AuthMiddleware())
	internalAPI.Use(auth.RequireRole(models.RoleAdmin))
	{
		internalAPI.POST("/wallet/credit", walletHandler.Credit)
		internalAPI.POST("/wallet/debit", walletHandler.Debit)
		internalAPI.POST("/games/result", leaderboardHandler.RecordGameResult)
	}

	// Staff routes: withdrawal review queue and decisions
	staff := router.Group("/api/admin")
	staff.Use(auth.AuthMiddleware())
	staff.Use(auth.RequireRole(models.RoleStaff, models.RoleAdmin))
	{
		staff.GET("/withdrawals", adminHandler.WithdrawalQueue)
		staff.POST("/withdrawals/:id/decide", adminHandler.DecideWithdrawal)
	}

	// Admin routes
	admin := router.Group("/api/admin")
	admin.Use(auth.AuthMiddleware())
	admin.Use(auth.RequireRole(models.RoleAdmin))
	{
		admin.POST("/users", adminHandler.CreateUser)
		admin.POST("/users/:id/kyc", adminHandler.SetKYCStatus)
		admin.POST("/wallet/adjust", adminHandler.Adjust)
		admin.POST("/prizes", adminHandler.ConfigurePrize)
		admin.GET("/prizes", adminHandler.ListPrizes)
		admin.POST("/leaderboard/close", adminHandler.CloseWeek)
		admin.GET("/ledger/:id/:currency/verify", adminHandler.VerifyLedger)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	weekCloser.Stop()

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
