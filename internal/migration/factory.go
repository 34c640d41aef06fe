package migration

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/persistence"
)

// ErrNotSQLStore is returned for checkpoint backends without a SQL schema.
var ErrNotSQLStore = errors.New("checkpoint store has no SQL schema")

// DatabaseTypeFromStore maps a checkpoint store type to its dialect.
func DatabaseTypeFromStore(t persistence.StoreType) (DatabaseType, error) {
	switch t {
	case persistence.StoreTypePostgres:
		return DatabaseTypePostgres, nil
	case persistence.StoreTypeMySQL:
		return DatabaseTypeMySQL, nil
	case persistence.StoreTypeSQLite, persistence.StoreTypeSQLite3:
		return DatabaseTypeSQLite, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrNotSQLStore, t)
	}
}

// NewMigratorFromStoreConfig creates a migrator for the SQL checkpoint store
// described by cfg.
func NewMigratorFromStoreConfig(cfg persistence.StoreConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := DatabaseTypeFromStore(cfg.Type)
	if err != nil {
		return nil, err
	}
	if cfg.SQL.DSN == "" {
		return nil, errors.New("database URL is required")
	}
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  MigrationURL(dbType, cfg.SQL.DSN),
		Logger:       logger,
	})
}

// NewMigratorFromURL creates a migrator from a dialect name and URL
func NewMigratorFromURL(dbType, dbURL string, logger *zap.Logger) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		Logger:       logger,
	})
}

// MigrationURL adapts a store DSN for the migration drivers. MySQL needs
// multiStatements to run a migration file in one exec.
func MigrationURL(dbType DatabaseType, dsn string) string {
	if dbType != DatabaseTypeMySQL || strings.Contains(dsn, "multiStatements=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&multiStatements=true"
	}
	return dsn + "?multiStatements=true"
}

// BuildDatabaseURL builds a database URL from components
func BuildDatabaseURL(dbType DatabaseType, host string, port int, database, username, password, sslMode string) string {
	switch dbType {
	case DatabaseTypePostgres:
		if sslMode == "" {
			sslMode = "require"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			username, password, host, port, database, sslMode)
	case DatabaseTypeMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			username, password, host, port, database)
	case DatabaseTypeSQLite:
		return fmt.Sprintf("file:%s?mode=rwc", database)
	default:
		return ""
	}
}
