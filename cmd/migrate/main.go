package main

import (
	"database/sql"
	"errors"
	"flag"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rbroggi/slotcast/internal/config"
	log "github.com/sirupsen/logrus"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
}

var (
	down          = flag.Bool("down", false, "run migration down")
	envFile       = flag.String("env-file", "", "optional dotenv file loaded before reading the environment")
	migrationsDir = flag.String("dir", "db/migrations", "directory holding the migration files")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.WithError(err).Fatal("error loading configuration")
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.WithError(err).Fatal("error opening db connection")
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.WithError(err).Fatal("error creating migration driver")
	}

	dir, err := filepath.Abs(*migrationsDir)
	if err != nil {
		log.WithError(err).Fatal("error resolving migrations directory")
	}
	source := "file://" + filepath.ToSlash(dir)
	log.WithField("source", source).Info("using migrations")

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		log.WithError(err).Fatal("error creating migrate instance")
	}

	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("schema already up to date")
	case err != nil:
		log.WithError(err).WithField("down", *down).Fatal("error running migrations")
	default:
		log.WithField("down", *down).Info("migrations applied")
	}
}
