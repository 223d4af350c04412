package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// UserDB wraps the primary connection and an optional read replica. Read
// paths go through reader(); writes always use the primary.
type UserDB struct {
	DB      *sql.DB
	Replica *sql.DB
	Log     *zerolog.Logger
}

// NewUserDB is a constructor that initializes UserDB with DB and Log
func NewUserDB(replicaSource string, log *zerolog.Logger) (*UserDB, error) {
	// Get the database connection string from the environment
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		log.Error().Msg("DATABASE_URL environment variable is not set")
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	// Open the database connection
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open database connection")
		return nil, err
	}

	// Check we are actually connected
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Database connection failed during ping")
		return nil, err
	}

	udb := &UserDB{
		DB:  db,
		Log: log,
	}

	// A replica is a performance optimization only; read paths fall back
	// to the primary when none is configured.
	if replicaSource != "" {
		replica, err := sql.Open("postgres", replicaSource)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open read replica connection")
			return nil, err
		}
		if err := replica.PingContext(ctx); err != nil {
			log.Error().Err(err).Msg("Read replica connection failed during ping")
			return nil, err
		}
		udb.Replica = replica
	}

	return udb, nil
}

func (u *UserDB) Close() error {
	if err := u.DB.Close(); err != nil {
		return err
	}
	if u.Replica != nil {
		if err := u.Replica.Close(); err != nil {
			return err
		}
	}
	u.Log.Info().Msg("database connection closed")

	return nil
}

// reader returns the connection read-only queries should use.
func (u *UserDB) reader() *sql.DB {
	if u.Replica != nil {
		return u.Replica
	}
	return u.DB
}

// Migrate runs the embedded goose migrations against the primary.
func (u *UserDB) Migrate() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("error setting goose dialect: %w", err)
	}

	if err := goose.Up(u.DB, "migrations"); err != nil {
		return fmt.Errorf("error running migrations: %w", err)
	}

	u.Log.Info().Msg("Migrations applied successfully")
	return nil
}

func (u *UserDB) execQuery(tx *sql.Tx, query string, args ...interface{}) error {

	if u.DB == nil {
		return fmt.Errorf("database connection is not established")
	}

	_, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to execute query: %v", err)
	}
	return nil
}

// CommitTransaction commits a transaction, rolling back on failure.
func (u *UserDB) CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}
