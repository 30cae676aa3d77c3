package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"digidost/config"
	"digidost/handlers"
	"digidost/middleware"
	"digidost/models"
	"digidost/services"
	"digidost/utils"
	"digidost/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.UserProgress{},
		&models.UserBadge{},
		&models.UserAchievement{},
		&models.ProgressEvent{},
		&models.Tournament{},
		&models.TournamentPrize{},
		&models.TournamentParticipation{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// --- Catalog: embedded default, local file or R2 object ---
	var r2 *utils.R2
	if cfg.R2.Configured() {
		if r2, err = utils.NewR2(ctx, cfg.R2); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	}

	var source services.CatalogSource
	switch cfg.CatalogSource {
	case config.CatalogSourceFile:
		source = services.FileCatalogSource{Path: cfg.CatalogPath}
	case config.CatalogSourceR2:
		source = services.R2CatalogSource{Store: r2, Key: cfg.CatalogKey}
	default:
		source = services.EmbeddedCatalogSource{}
	}

	clock := clockwork.NewRealClock()
	catalog := services.NewCatalogHolder(services.DefaultCatalog())
	syncer := workers.NewCatalogSyncer(source, catalog, clock)
	if _, err := syncer.SyncOnce(ctx); err != nil {
		log.Printf("⚠️  Catalog from %s unavailable, serving the embedded default: %v", source.Name(), err)
	}
	if cfg.CatalogSource != config.CatalogSourceEmbedded {
		go workers.PollCatalog(ctx, syncer, cfg.CatalogRefreshInterval)
	}

	progressionService := services.NewProgressionService(db, catalog, clock, cfg.Location())
	badgeService := services.NewBadgeService(progressionService)
	tournamentService := services.NewTournamentService(db, progressionService)

	sched, err := progressionService.StartProgressScheduler(ctx, cfg.RankRefreshInterval)
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	// 🔐❗ GLOBAL: Only Gateway requests allowed, no exceptions
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken))

	allowedOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	var authClient middleware.TokenValidator
	if cfg.AuthServiceURL != "" {
		authClient = services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.AuthServiceToken)
	}
	var store services.ObjectStore
	if r2 != nil {
		store = r2
	}

	handlers.SetupProgressionRoutes(app, progressionService, badgeService, authClient)
	handlers.SetupTournamentRoutes(app, tournamentService)
	handlers.SetupCatalogRoutes(app, catalog, progressionService, store, cfg.CatalogKey)

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on %s", cfg.HTTPAddr)
	log.Printf("✅ Catalog source: %s", source.Name())
	log.Printf("✅ Scheduler running in %s (ranks every %s)", cfg.Location(), cfg.RankRefreshInterval)
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
