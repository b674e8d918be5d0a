package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/admission-tracker-api/api/swagger"
	"github.com/noah-isme/admission-tracker-api/internal/handler"
	"github.com/noah-isme/admission-tracker-api/internal/middleware"
	"github.com/noah-isme/admission-tracker-api/internal/models"
	"github.com/noah-isme/admission-tracker-api/internal/repository"
	"github.com/noah-isme/admission-tracker-api/internal/service"
	"github.com/noah-isme/admission-tracker-api/pkg/cache"
	"github.com/noah-isme/admission-tracker-api/pkg/config"
	"github.com/noah-isme/admission-tracker-api/pkg/database"
	"github.com/noah-isme/admission-tracker-api/pkg/export"
	"github.com/noah-isme/admission-tracker-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/admission-tracker-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/admission-tracker-api/pkg/middleware/requestid"
	"github.com/noah-isme/admission-tracker-api/pkg/storage"
)

// @title Admission Tracker API
// @version 1.0.0
// @description Student admission tracking with staged approvals and agent incentives
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	ruleRepo := repository.NewIncentiveRuleRepository(db)
	incentiveRepo := repository.NewIncentiveRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.Enabled)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "admission-tracker-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	tokenGen := service.NewTokenNumberGenerator(applicationRepo)
	applicationSvc := service.NewApplicationService(applicationRepo, tokenGen, userRepo, store, signer, validate, logr)
	workflowSvc := service.NewWorkflowService(applicationRepo, ruleRepo, incentiveRepo, userRepo, cacheSvc, metricsSvc, validate, logr)
	incentiveSvc := service.NewIncentiveService(ruleRepo, incentiveRepo, userRepo, validate, logr)
	reconcileSvc := service.NewReconcileService(applicationRepo, incentiveRepo, ruleRepo, userRepo, cfg.Incentives.DefaultRuleAmount, logr)
	dashboardSvc := service.NewDashboardService(applicationRepo, userRepo, incentiveRepo, cacheSvc, cfg.Dashboard.CacheTTL, logr)
	exportSvc := service.NewExportService(applicationRepo, incentiveRepo, userRepo, export.NewPDFExporter(), export.NewCSVExporter(), logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	applicationHandler := handler.NewApplicationHandler(applicationSvc, workflowSvc)
	incentiveHandler := handler.NewIncentiveHandler(incentiveSvc, reconcileSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.MaxMultipartMemory = cfg.Documents.MaxFileSizeBytes

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	students := protected.Group("/students")
	{
		students.POST("", middleware.RequireRoles(models.RoleAgent), applicationHandler.Submit)
		students.GET("", applicationHandler.List)
		students.GET("/:id", applicationHandler.Get)
		students.PUT("/:id/status", middleware.RequireRoles(models.RoleCoordinator, models.RoleAdmin), applicationHandler.UpdateStatus)
		students.POST("/:id/documents", middleware.RequireRoles(models.RoleAgent), applicationHandler.UploadDocument)
		students.GET("/:id/documents/:type/link", applicationHandler.DocumentLink)
		students.GET("/:id/receipt", middleware.Audit(userRepo, models.AuditActionExport, "student_applications"), exportHandler.Receipt)
	}

	// Document downloads authenticate with the signed token alone so links
	// can be opened outside an API client.
	api.GET("/documents/download", applicationHandler.DownloadDocument)

	incentives := protected.Group("/incentives")
	{
		incentives.GET("", incentiveHandler.Ledger)
		incentives.PUT("/:id/status", middleware.RequireRoles(models.RoleAdmin), incentiveHandler.SetStatus)
	}

	rules := protected.Group("/incentive-rules")
	rules.Use(middleware.RequireRoles(models.RoleAdmin))
	{
		rules.GET("", incentiveHandler.ListRules)
		rules.POST("", incentiveHandler.CreateRule)
		rules.PUT("/:id", incentiveHandler.UpdateRule)
		rules.DELETE("/:id", incentiveHandler.DeactivateRule)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/approve-student/:id", applicationHandler.AdminApprove)
		admin.POST("/reject-student/:id", applicationHandler.AdminReject)
		admin.POST("/reconcile-incentives", incentiveHandler.Reconcile)
		admin.GET("/dashboard", dashboardHandler.Admin)
		admin.GET("/export/applications", middleware.Audit(userRepo, models.AuditActionExport, "student_applications"), exportHandler.Applications)
	}

	users := protected.Group("/users")
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Deactivate)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
