// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents an applied database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migration is a schema step compiled into the binary. A POS terminal
// has no migrations directory on disk; the schema ships with the app.
type migration struct {
	version     int
	description string
	sql         string
}

var migrations = []migration{
	{1, "initial schema", schemaV1},
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS products (
	item_code TEXT PRIMARY KEY,
	item_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	actual_qty REAL NOT NULL DEFAULT 0,
	rate REAL NOT NULL DEFAULT 0,
	stock_uom TEXT NOT NULL DEFAULT 'Nos',
	image TEXT NOT NULL DEFAULT '',
	item_tax_template TEXT NOT NULL DEFAULT '',
	tax_category TEXT NOT NULL DEFAULT '',
	last_synced INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_item_name ON products(item_name);

CREATE TABLE IF NOT EXISTS customers (
	name TEXT PRIMARY KEY,
	customer_name TEXT NOT NULL,
	customer_type TEXT NOT NULL DEFAULT 'Individual',
	territory TEXT NOT NULL DEFAULT '',
	tax_category TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	default_price_list TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	last_synced INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_customers_customer_name ON customers(customer_name);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sales_invoices (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id TEXT NOT NULL DEFAULT '',
	customer_name TEXT NOT NULL,
	company TEXT NOT NULL DEFAULT '',
	items TEXT NOT NULL,
	subtotal REAL NOT NULL DEFAULT 0,
	total_tax REAL NOT NULL DEFAULT 0,
	grand_total REAL NOT NULL DEFAULT 0,
	mode_of_payment TEXT NOT NULL DEFAULT '',
	remote_name TEXT NOT NULL DEFAULT '',
	synced INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sales_invoices_synced ON sales_invoices(synced);

CREATE TABLE IF NOT EXISTS sync_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	action TEXT NOT NULL,
	payload TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending','processing','completed','failed')),
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	token TEXT NOT NULL,
	enqueued_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status);

CREATE TABLE IF NOT EXISTS pending_checkout_links (
	order_id TEXT PRIMARY KEY,
	remote_invoice_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations in version order, each inside its
// own transaction.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	current, err := m.CurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, mig := range migrations {
		if mig.version <= current {
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", mig.version, err)
		}

		if _, err := tx.Exec(mig.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", mig.version, mig.description, err)
		}

		sum := sha256.Sum256([]byte(mig.sql))
		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			mig.version, time.Now().Unix(), mig.description, hex.EncodeToString(sum[:]),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", mig.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", mig.version, err)
		}
	}

	return nil
}
