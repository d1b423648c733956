package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"qmark.app/internal/migrate"
	"qmark.app/internal/store"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()
	var (
		dsn            = flag.String("dsn", os.Getenv("DATABASE_URL"), "database DSN (postgres://, file:, libsql://)")
		migrationsPath = flag.String("migrations", "", "directory of SQL migrations; defaults to the embedded schema")
		seedsPath      = flag.String("seeds", "", "directory of SQL seed files")
		timeout        = flag.Duration("timeout", 30*time.Second, "overall deadline")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DATABASE_URL")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	dialect, driver, normalized, err := store.ParseDSN(*dsn)
	if err != nil {
		log.Fatalf("parse dsn: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open(driver, normalized)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var migrations fs.FS
	if *migrationsPath != "" {
		migrations = os.DirFS(*migrationsPath)
	} else if migrations, err = store.Migrations(dialect); err != nil {
		log.Fatalf("embedded migrations: %v", err)
	}
	var opts []migrate.Option
	if *seedsPath != "" {
		opts = append(opts, migrate.WithSeeds(os.DirFS(*seedsPath)))
	}
	mgr := migrate.NewManager(db, migrations, opts...)

	var applied []string
	switch flag.Arg(0) {
	case "up":
		applied, err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		applied, err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
	for _, name := range applied {
		fmt.Println("applied", name)
	}
}
