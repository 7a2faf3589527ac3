package main

import (
	"log"

	"coursehub/config"
	controllers "coursehub/controllers/course"
	"coursehub/database"
	courseRoutes "coursehub/routers/courseRoutes"
	"coursehub/services/enrollment"
	"coursehub/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

func main() {
	config.LoadConfig()
	database.ConnectDb()
	cfg := config.AppConfig

	var catalog enrollment.Catalog = database.NewCatalog(database.Database.Db)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		catalog = database.NewCachedCatalog(catalog, database.NewRedisCatalogCache(rdb, cfg.CatalogTTL))
		log.Printf("Catalog cache enabled at %s", cfg.RedisAddr)
	}

	engine := enrollment.NewService(database.NewEnrollmentStore(database.Database.Db), catalog, enrollment.Options{
		LockTimeout:     cfg.LockTimeout,
		ConflictRetries: cfg.ConflictRetries,
		StorageBackoff:  cfg.StorageRetryBackoff,
		DefaultIssuerID: cfg.CertificateIssuerID,
	})

	var docs *utils.CertificateDocuments
	if cfg.CertificateServiceURL != "" {
		docs = utils.NewCertificateDocuments(cfg.CertificateServiceURL, cfg.CertificateServiceKey, engine)
		engine.SetCertificateHook(docs.OnIssued)
	}
	controllers.SetEngine(engine)

	scheduler, err := utils.InitializeCourseScheduler(cfg.ReconcileSchedule, engine, docs)
	if err != nil {
		log.Fatalf("Invalid RECONCILE_SCHEDULE: %v", err)
	}
	defer scheduler.Stop()

	app := fiber.New()

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE",        // Allowed HTTP methods
		AllowHeaders: "Content-Type,Authorization", // Allowed headers
	}))

	// Enable the built-in logger middleware to log all requests
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	courseRoutes.SetupCourseRoutes(app)
	courseRoutes.SetupAdminCourseRoutes(app)

	log.Printf("Server is running on port %s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
