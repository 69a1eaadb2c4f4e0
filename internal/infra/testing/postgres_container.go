// Package testing provides integration-test scaffolding: a disposable
// Postgres instance per test run via testcontainers-go, with the schema
// migrations applied automatically. Adapted from the teacher's BadgerDB
// testcontainers helper (container lifecycle + db handle + cleanup func),
// generalized from an embedded KV store to a real RDBMS.
package testing

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andrey/allowlist-attestor/internal/allowlist/store"
)

// PostgresContainer wraps a running Postgres instance with its migrated
// *sql.DB handle.
type PostgresContainer struct {
	container *postgres.PostgresContainer
	db        *sql.DB
	dsn       string
}

// NewPostgresContainer starts a Postgres container, opens a connection pool
// against it, and applies every migration in store.Migrations.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("allowlist_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
		postgres.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("getting connection string: %w", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := applyMigrations(dsn); err != nil {
		db.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return &PostgresContainer{container: container, db: db, dsn: dsn}, nil
}

func applyMigrations(dsn string) error {
	sourceDriver, err := iofs.New(store.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	dbDriver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx", dbDriver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// DB returns the migrated database handle.
func (c *PostgresContainer) DB() *sql.DB {
	return c.db
}

// DSN returns the connection string used to open DB.
func (c *PostgresContainer) DSN() string {
	return c.dsn
}

// Clear truncates every table, leaving the schema intact, for test isolation
// between subtests that share a single container.
func (c *PostgresContainer) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "TRUNCATE accounts, proposals RESTART IDENTITY CASCADE")
	return err
}

// Close closes the database handle and terminates the container.
func (c *PostgresContainer) Close(ctx context.Context) error {
	var errs []error
	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing db: %w", err))
	}
	if err := c.container.Terminate(ctx); err != nil {
		errs = append(errs, fmt.Errorf("terminating container: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

// SetupTestDB starts a Postgres testcontainer, migrates it, and returns the
// db handle with a cleanup function — a simplified entry point for tests that
// need only the db handle, mirroring the teacher's SetupTestDB(ctx) shape.
// The store integration test uses NewPostgresContainer directly.
func SetupTestDB(ctx context.Context) (*sql.DB, func(), error) {
	c, err := NewPostgresContainer(ctx)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = c.Close(ctx)
	}
	return c.db, cleanup, nil
}
