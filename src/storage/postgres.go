package storage

import (
	"database/sql"
	"fmt"
	"time"

	"finboard/src/helpers"
	"finboard/src/logger"
	"finboard/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	return &PostgresDB{
		Config: cfg,
		Schema: cfg.Name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return helpers.WrapDatabaseError("failed to open postgres", err)
	}

	if err := db.Ping(); err != nil {
		return helpers.WrapDatabaseError("postgres unreachable", err)
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."dashboards" (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			theme TEXT,
			layout TEXT,
			updated_at TIMESTAMPTZ
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create dashboards: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveDashboard(dash models.MDashboard) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."dashboards" (id, name, theme, layout, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			theme = excluded.theme,
			layout = excluded.layout,
			updated_at = excluded.updated_at
	`, d.Schema)
	_, err := d.DB.Exec(query, dash.ID, dash.Name, dash.Theme, dash.Layout, time.Now().UTC())
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetDashboard(id string) (*models.MDashboard, error) {
	query := fmt.Sprintf(`
		SELECT id, name, theme, layout, updated_at FROM "%s"."dashboards" WHERE id = $1
	`, d.Schema)

	var dash models.MDashboard
	err := d.DB.QueryRow(query, id).Scan(&dash.ID, &dash.Name, &dash.Theme, &dash.Layout, &dash.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dash, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) ListDashboards() ([]models.MDashboard, error) {
	query := fmt.Sprintf(`
		SELECT id, name, theme, layout, updated_at FROM "%s"."dashboards" ORDER BY updated_at DESC
	`, d.Schema)

	rows, err := d.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dashboards []models.MDashboard
	for rows.Next() {
		var dash models.MDashboard
		if err := rows.Scan(&dash.ID, &dash.Name, &dash.Theme, &dash.Layout, &dash.UpdatedAt); err != nil {
			return nil, err
		}
		dashboards = append(dashboards, dash)
	}
	return dashboards, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) DeleteDashboard(id string) error {
	query := fmt.Sprintf(`DELETE FROM "%s"."dashboards" WHERE id = $1`, d.Schema)
	_, err := d.DB.Exec(query, id)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
