package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/keygate/keygate/internal/model"
)

// Common errors for app repository operations.
var (
	ErrAppNotFound = errors.New("app not found")
	ErrAppExists   = errors.New("app already exists")
)

// CreateApp registers a new App.
func (r *Repository) CreateApp(ctx context.Context, app *model.App) error {
	query := `
		INSERT INTO apps (app_id, owner_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query,
		app.AppID,
		app.OwnerID,
		app.Name,
		app.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrAppExists
		}
		return fmt.Errorf("failed to create app: %w", err)
	}

	return nil
}

// GetAppByID retrieves an App by its identifier.
func (r *Repository) GetAppByID(ctx context.Context, appID string) (*model.App, error) {
	query := `
		SELECT app_id, owner_id, name, created_at
		FROM apps
		WHERE app_id = $1
	`

	var app model.App
	err := r.pool.QueryRow(ctx, query, appID).Scan(
		&app.AppID,
		&app.OwnerID,
		&app.Name,
		&app.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppNotFound
		}
		return nil, fmt.Errorf("failed to get app by ID: %w", err)
	}

	return &app, nil
}
