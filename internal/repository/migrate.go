package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migrate applies all pending schema migrations.
func Migrate(ctx context.Context, databaseURL string) error {
	return withMigrator(databaseURL, func(db *sql.DB) error {
		if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

// ResetSchema rolls every migration back and re-applies it.
// Only tests should call this.
func ResetSchema(ctx context.Context, databaseURL string) error {
	return withMigrator(databaseURL, func(db *sql.DB) error {
		if err := goose.ResetContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("reset migrations: %w", err)
		}
		if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

func withMigrator(databaseURL string, fn func(db *sql.DB) error) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	return fn(db)
}
