package main

import (
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"otc-backend/internal/config"
	"otc-backend/internal/db"
)

// Verifies the database connection and the quotes schema.
func main() {
	fmt.Println("🔍 Verifying database connection...")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db.InitDB()
	defer db.CloseDB()

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	var count int64
	if err := sqlDB.QueryRow("SELECT count(*) FROM quotes").Scan(&count); err != nil {
		log.Fatalf("Failed to query quotes table: %v", err)
	}
	fmt.Printf("📋 quotes table reachable, %d rows\n", count)

	rows, err := sqlDB.Query(`
		SELECT status, count(*)
		FROM quotes
		GROUP BY status
		ORDER BY status`)
	if err != nil {
		log.Fatalf("Failed to query status breakdown: %v", err)
	}
	defer rows.Close()

	fmt.Println("📊 Quotes by status:")
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			log.Fatalf("Failed to scan row: %v", err)
		}
		fmt.Printf("   %-10s %d\n", status, n)
	}

	fmt.Println("✅ Database verification completed")
}
