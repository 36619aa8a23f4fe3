package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"

	"pairchat/internal/migrations"
)

// migrate provisions or upgrades a pairchat store file without starting the
// relay. The schema is idempotent, so re-running it is safe.
func main() {
	dbPath := flag.String("db", "./pairchat.db", "Path to the store file")
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping store: %v", err)
	}

	fmt.Printf("Applying schema to %s...\n", *dbPath)
	if _, err := db.Exec(migrations.GetInitialSchema()); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	fmt.Println("Schema applied successfully")
}
