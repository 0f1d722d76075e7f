package main

import (
	"context"
	"database/sql"
	"delivery-coordination-service/internal/adapters/cache"
	"delivery-coordination-service/internal/adapters/geocoding"
	"delivery-coordination-service/internal/adapters/repositories"
	"delivery-coordination-service/internal/config"
	"delivery-coordination-service/internal/platform/db"
	"delivery-coordination-service/internal/services"
	"flag"
	"log"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	schemaOnly := flag.Bool("schema-only", false, "create the schema without seeding demo rows")
	geocode := flag.Bool("geocode", false, "resolve coordinates for orders that only have an address (needs ORS_API_KEY)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()

	db, err := db.Open(ctx, databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	seedPath := config.Get("SEED_PATH", "data/seeds/demo.json")
	if *schemaOnly {
		seedPath = ""
	}
	initAndSeed(ctx, db, seedPath)

	if *geocode {
		geocodeOrders(ctx, db)
	}
}

// An empty seedPath only creates the schema.
func initAndSeed(ctx context.Context, db *sql.DB, seedPath string) {
	log.Println("Initializing database schema...")
	if err := repositories.InitSchema(ctx, db); err != nil {
		log.Fatalf("schema initialization failed: %v", err)
	}
	log.Println("Schema ready.")

	if seedPath == "" {
		return
	}

	log.Printf("Seeding database from %s...", seedPath)
	if err := repositories.SeedFromJSON(ctx, db, seedPath); err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
	log.Println("Seeding complete.")
}

func geocodeOrders(ctx context.Context, db *sql.DB) {
	geocoder, err := geocoding.NewORSGeocoder(
		config.Get("ORS_API_KEY", ""),
		config.Get("ORS_BASE_URL", geocoding.DefaultBaseURL),
		cache.NewPostgresGeocodeCache(db),
	)
	if err != nil {
		log.Fatalf("geocoding unavailable: %v", err)
	}

	log.Println("Geocoding orders without coordinates...")
	report, err := services.GeocodeMissingOrders(ctx, repositories.NewPostgresOrderRepository(db), geocoder)
	if err != nil {
		log.Fatalf("geocoding failed: %v", err)
	}
	log.Printf("Geocoding complete. updated=%d unresolved=%v", len(report.Updated), report.Unresolved)
}
