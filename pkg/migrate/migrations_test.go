package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matching %s", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestToolsMigrationEnforcesQuantityInvariant(t *testing.T) {
	content := readMigration(t, "create_tools")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS tools",
		"CHECK (total_qty >= 0)",
		"CHECK (available_qty >= 0)",
		"CHECK (available_qty <= total_qty)",
		"DROP TABLE IF EXISTS tools",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestToolRequestsMigrationStampsTransitions(t *testing.T) {
	content := readMigration(t, "create_tool_requests")
	for _, sub := range []string{
		"FOREIGN KEY (tool_id) REFERENCES tools(id) ON DELETE RESTRICT",
		"CHECK (quantity >= 1)",
		"approval_date IS NOT NULL",
		"status <> 'completed' OR return_date IS NOT NULL",
		"WHERE status IN ('approved', 'returning')",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestNotificationsMigrationHasRecipientShapeAndDedupe(t *testing.T) {
	content := readMigration(t, "create_notifications")
	assert.Contains(t, content, "notifications_recipient_shape")
	assert.Contains(t, content, "CREATE UNIQUE INDEX IF NOT EXISTS ux_notifications_dedupe_key")
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	err := migrate.ValidateDir(dir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid migration filename"))
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Tool Barcode")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_tool_barcode.sql"))
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestAutoMigrateModelsOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrate.AutoMigrateModels(conn))
	for _, table := range []string{"tools", "tool_requests", "notifications", "outbox_events", "outbox_dlq"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}
