package storage

import (
	"database/sql"
	"fmt"
	"time"

	"finboard/src/helpers"
	"finboard/src/logger"
	"finboard/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*SQLiteDB, error) {
	return &SQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return helpers.WrapDatabaseError("failed to open sqlite", err)
	}

	if err := db.Ping(); err != nil {
		return helpers.WrapDatabaseError("sqlite unreachable", err)
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) createTables() error {
	// Layouts survive restarts, so never drop-and-recreate here.
	query := `
		CREATE TABLE IF NOT EXISTS dashboards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			theme TEXT,
			layout TEXT,
			updated_at TIMESTAMP
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create dashboards: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) SaveDashboard(dash models.MDashboard) error {
	query := `
		INSERT INTO dashboards (id, name, theme, layout, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			theme = excluded.theme,
			layout = excluded.layout,
			updated_at = excluded.updated_at
	`
	_, err := d.DB.Exec(query, dash.ID, dash.Name, dash.Theme, dash.Layout, time.Now().UTC())
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) GetDashboard(id string) (*models.MDashboard, error) {
	row := d.DB.QueryRow(`
		SELECT id, name, theme, layout, updated_at FROM dashboards WHERE id = ?
	`, id)

	var dash models.MDashboard
	err := row.Scan(&dash.ID, &dash.Name, &dash.Theme, &dash.Layout, &dash.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dash, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) ListDashboards() ([]models.MDashboard, error) {
	rows, err := d.DB.Query(`
		SELECT id, name, theme, layout, updated_at FROM dashboards ORDER BY updated_at DESC
	`)
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

func (d *SQLiteDB) DeleteDashboard(id string) error {
	_, err := d.DB.Exec("DELETE FROM dashboards WHERE id = ?", id)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
