package engine

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/mirajehossain/evolvex/internal/checksum"
)

// Tampered history plus must_erase_on_validation_error: the engine erases the
// schema it created, rebuilds it and replays every script from scratch.
func TestMigrateErasesOnValidationError(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"V1__init.sql":      bodyV1,
		"V2__add_users.sql": bodyV2,
	})
	cfg := testConfig(dir)
	cfg.MustEraseOnValidationError = true
	eng, mock, buf := newTestEngine(t, cfg)

	expectInitialize(mock)
	// validate: recorded checksum no longer matches disk
	expectTableExists(mock, true)
	mock.ExpectQuery("SELECT id, type, version").
		WillReturnRows(sqlmock.NewRows(appliedColumns()).
			AddRow(1, 10, "1", "init", "V1__init.sql", "stale-checksum", sampleTime, "tester", true))
	mock.ExpectQuery("SELECT version FROM").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	// erase: consent is read before the drop; the engine created the schema
	expectTableExists(mock, true)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("DROP SCHEMA `app`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	// manageSchemas: schema is gone, recreate it and re-record consent
	mock.ExpectQuery("FROM information_schema.schemata").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE SCHEMA `app`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS `app`.`changelog`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec("INSERT INTO `app`.`changelog`").WillReturnResult(sqlmock.NewResult(1, 1))
	// replay both scripts
	mock.ExpectQuery("SELECT id, type, version").WillReturnRows(sqlmock.NewRows(appliedColumns()))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE t1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO `app`.`changelog`").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE t2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO `app`.`changelog`").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	require.NoError(t, eng.Migrate(context.Background()))
	require.Equal(t, 2, eng.NbMigration())
	require.Contains(t, buf.String(), "dropped schema")
	require.Contains(t, buf.String(), "Database migrated to version 2. 2 migration(s) applied.")
	require.NoError(t, mock.ExpectationsWereMet())
}

// A declared baseline makes versions below it exempt from metadata checks.
func TestMigrateRespectsStartVersion(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"V1__init.sql":      bodyV1,
		"V2__add_users.sql": bodyV2,
	})
	eng, mock, buf := newTestEngine(t, testConfig(dir))

	appliedRows := func() *sqlmock.Rows {
		return sqlmock.NewRows(appliedColumns()).
			AddRow(2, 10, "2", "add users", "V2__add_users.sql", checksum.SHA256String(bodyV2), sampleTime, "tester", true)
	}

	expectInitialize(mock)
	// validate: only V2 is recorded, but the baseline covers V1
	expectTableExists(mock, true)
	mock.ExpectQuery("SELECT id, type, version").WillReturnRows(appliedRows())
	mock.ExpectQuery("SELECT version FROM").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("2"))
	// manageSchemas
	mock.ExpectQuery("FROM information_schema.schemata").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery("FROM information_schema.tables WHERE table_schema = \\?.").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(4))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS `app`.`changelog`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// plan: everything at or below the last applied version is skipped
	mock.ExpectQuery("SELECT id, type, version").WillReturnRows(appliedRows())

	require.NoError(t, eng.Migrate(context.Background()))
	require.Equal(t, 0, eng.NbMigration())
	require.Contains(t, buf.String(), "Nothing to migrate.")
	require.NoError(t, mock.ExpectationsWereMet())
}
