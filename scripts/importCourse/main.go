package main

import (
	"context"
	"log"
	"os"

	"coursehub/config"
	"coursehub/database"

	"github.com/redis/go-redis/v9"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: importCourse <course.yaml>")
	}

	// Load config and connect to database
	config.LoadConfig()
	database.ConnectDb()

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read course file: %v", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		log.Fatalf("Invalid course file: %v", err)
	}

	crs, quizIDs, err := Import(database.Database.Db, def)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	log.Printf("Imported course %d %q with %d module(s) and %d quiz(zes)", crs.ID, crs.Title, len(def.Modules), len(quizIDs))

	// Drop stale catalog entries so running servers see the new definition
	if config.AppConfig.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.RedisAddr,
			Password: config.AppConfig.RedisPassword,
			DB:       config.AppConfig.RedisDB,
		})
		defer rdb.Close()
		cache := database.NewCachedCatalog(database.NewCatalog(database.Database.Db), database.NewRedisCatalogCache(rdb, config.AppConfig.CatalogTTL))
		if err := cache.Invalidate(context.Background(), crs.ID, quizIDs...); err != nil {
			log.Printf("Warning: failed to invalidate catalog cache: %v", err)
		}
	}
}
