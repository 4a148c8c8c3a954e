package interfaces

import "finboard/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for dashboard layout persistence.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize opens the connection and sets up the schema.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveDashboard inserts or updates a dashboard layout.
	SaveDashboard(dash models.MDashboard) error

	// -----------------------------------------------------------------------------

	// GetDashboard fetches one dashboard by id; (nil, nil) when absent.
	GetDashboard(id string) (*models.MDashboard, error)

	// -----------------------------------------------------------------------------

	// ListDashboards returns all saved dashboards, most recently updated first.
	ListDashboards() ([]models.MDashboard, error)

	// -----------------------------------------------------------------------------

	// DeleteDashboard removes a dashboard by id. Unknown ids are a no-op.
	DeleteDashboard(id string) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
