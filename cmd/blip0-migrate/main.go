// Command blip0-migrate applies the control-plane schema migrations.
//
// The migration files are embedded in the binary, so it needs nothing
// but a database to point at:
//
//	blip0-migrate -dsn postgres://... up
//	blip0-migrate -dsn postgres://... down 1
//	blip0-migrate -dsn postgres://... version
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/blip0/blip0/pkg/storage"
)

var dsn = flag.String("dsn", os.Getenv("BLIP0_DATABASE_DSN"), "PostgreSQL DSN (defaults to BLIP0_DATABASE_DSN)")

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags)

	if *dsn == "" {
		log.Fatal("no DSN: pass -dsn or set BLIP0_DATABASE_DSN")
	}
	if flag.NArg() < 1 {
		log.Fatal("usage: blip0-migrate -dsn DSN [up|down N|version|force N]")
	}

	src, err := iofs.New(storage.Migrations, "migrations")
	if err != nil {
		log.Fatalf("Failed to load embedded migrations: %v", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer m.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		report(m.Up())
	case "down":
		report(m.Steps(-steps(flag.Arg(1))))
	case "force":
		v, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			log.Fatalf("force needs a version number: %v", err)
		}
		report(m.Force(v))
	case "version":
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatalf("Failed to read version: %v", err)
		}
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return
		}
		fmt.Printf("version %d (dirty: %v)\n", v, dirty)
	default:
		log.Fatalf("Unknown command %q", cmd)
	}
}

func steps(arg string) int {
	if arg == "" {
		return 1
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		log.Fatalf("down takes a positive step count, got %q", arg)
	}
	return n
}

func report(err error) {
	switch {
	case err == nil:
		log.Println("Migration completed")
	case errors.Is(err, migrate.ErrNoChange):
		log.Println("Already up to date")
	default:
		log.Fatalf("Migration failed: %v", err)
	}
}
