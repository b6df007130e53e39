// Package database provides test helpers that wrap an isolated PostgreSQL
// schema in the production client type.
package database

import (
	"testing"

	"github.com/STPDevteam/awesome-server/pkg/database"
	"github.com/STPDevteam/awesome-server/test/util"
)

// NewTestClient creates a test database client.
// In CI (when CI_DATABASE_URL is set): connects to the external PostgreSQL
// service container. In local dev: spins up a testcontainer.
// The schema and connection are cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	db := util.SetupTestDatabase(t)
	return database.NewClientFromDB(db)
}
