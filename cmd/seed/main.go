package main

import (
	"context"
	"log"
	"os"
	"time"

	"ai-docquery-be/internal/entity"
	"ai-docquery-be/internal/repository/unitofwork"
	"ai-docquery-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Seeds a demo tenant with structured records so classification and
// pipeline execution can be exercised before any documents exist.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	userIdStr := os.Getenv("SEED_USER_ID")
	if userIdStr == "" {
		log.Fatal("Error: SEED_USER_ID is not set")
	}
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		log.Fatalf("Error: SEED_USER_ID is not a UUID: %v", err)
	}

	ctx := context.Background()
	uowFactory := unitofwork.NewRepositoryFactory(db)
	uow := uowFactory.NewUnitOfWork(ctx)

	regions := []string{"north", "south", "east", "west"}
	quarters := []string{"2024-01-15", "2024-02-20", "2024-04-10", "2024-05-05", "2024-07-12", "2024-08-30"}
	amounts := []float64{120.5, 340.0, 89.99, 410.25, 55.0, 980.75}

	var records []*entity.Record
	for i, date := range quarters {
		records = append(records, &entity.Record{
			UserId:     userId,
			Collection: "sales",
			Payload: map[string]interface{}{
				"date":    date,
				"region":  regions[i%len(regions)],
				"amount":  amounts[i],
				"product": "subscription",
			},
		})
	}

	if err := uow.RecordRepository().CreateBulk(ctx, records); err != nil {
		log.Fatalf("Error: Failed to seed records: %v", err)
	}

	log.Printf("✅ Seeded %d sales records for user %s at %s", len(records), userId, time.Now().Format(time.RFC3339))
}
