package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementsSplitsSchema(t *testing.T) {
	stmts := statements(schema)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS users")
	assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS images")
}

func TestStatementsSkipsBlanks(t *testing.T) {
	assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, statements(" SELECT 1;\n\n; SELECT 2 ;  "))
	assert.Empty(t, statements("  \n "))
}

func TestMigrateExecutesEveryStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS images").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
