package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a
// fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS accounts (
					id TEXT PRIMARY KEY,
					code TEXT UNIQUE NOT NULL,
					name TEXT NOT NULL,
					type TEXT NOT NULL,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_accounts_code ON accounts(code)`,

				`CREATE TABLE IF NOT EXISTS accounting_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					pattern TEXT NOT NULL,
					is_regex INTEGER NOT NULL DEFAULT 0,
					priority INTEGER NOT NULL DEFAULT 0,
					confidence REAL NOT NULL DEFAULT 0.95,
					account_id TEXT NOT NULL,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (account_id) REFERENCES accounts(id)
				)`,

				`CREATE TABLE IF NOT EXISTS requisitions (
					id TEXT PRIMARY KEY,
					requestor_id TEXT NOT NULL,
					purpose TEXT,
					type TEXT NOT NULL,
					status TEXT NOT NULL,
					estimated_total TEXT NOT NULL,
					actual_total TEXT NOT NULL DEFAULT '0',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_requisitions_status ON requisitions(status)`,

				`CREATE TABLE IF NOT EXISTS line_items (
					requisition_id TEXT NOT NULL,
					idx INTEGER NOT NULL,
					description TEXT NOT NULL,
					quantity TEXT NOT NULL,
					unit_price TEXT NOT NULL,
					estimated_amount TEXT NOT NULL,
					actual_amount TEXT,
					receipt_ref TEXT,
					account_id TEXT,
					PRIMARY KEY (requisition_id, idx),
					FOREIGN KEY (requisition_id) REFERENCES requisitions(id)
				)`,

				`CREATE TABLE IF NOT EXISTS disbursements (
					id TEXT PRIMARY KEY,
					requisition_id TEXT UNIQUE NOT NULL,
					payment_method TEXT NOT NULL,
					denominations TEXT,
					total_prepared TEXT NOT NULL,
					proof_ref TEXT,
					receipt_signature TEXT,
					returned_denominations TEXT,
					actual_change_amount TEXT,
					confirmed_denominations TEXT,
					confirmed_change_amount TEXT,
					discrepancy_amount TEXT,
					disbursed_by TEXT NOT NULL,
					disbursed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (requisition_id) REFERENCES requisitions(id)
				)`,

				`CREATE TABLE IF NOT EXISTS cashbook_entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					account_type TEXT NOT NULL,
					entry_date DATETIME NOT NULL,
					description TEXT NOT NULL,
					entry_type TEXT NOT NULL,
					debit TEXT NOT NULL,
					credit TEXT NOT NULL,
					balance_after TEXT NOT NULL,
					requisition_id TEXT,
					status TEXT NOT NULL DEFAULT 'POSTED',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_cashbook_account ON cashbook_entries(account_type, id)`,

				`CREATE TABLE IF NOT EXISTS cashbook_baselines (
					account_type TEXT PRIMARY KEY,
					opening_balance TEXT NOT NULL,
					opening_date DATETIME NOT NULL
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Classification memory and logs",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS classification_memory (
					description_signature TEXT PRIMARY KEY,
					intent TEXT NOT NULL,
					system_account_id TEXT NOT NULL,
					confidence REAL NOT NULL,
					usage_count INTEGER NOT NULL DEFAULT 1,
					accuracy_score REAL NOT NULL DEFAULT 0,
					last_used_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS classification_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					requisition_id TEXT NOT NULL,
					line_item_index INTEGER NOT NULL,
					suggested_account_id TEXT,
					suggested_code TEXT NOT NULL,
					ai_intent TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					was_overridden INTEGER NOT NULL DEFAULT 0,
					final_account_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_classification_logs_req ON classification_logs(requisition_id, line_item_index)`,

				`CREATE TABLE IF NOT EXISTS posted_vouchers (
					requisition_id TEXT PRIMARY KEY,
					external_ref TEXT NOT NULL,
					posted_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Seed default chart of accounts and keyword rules",
		Up: func(tx *sql.Tx) error {
			for _, acct := range defaultAccounts {
				if _, err := tx.Exec(
					`INSERT OR IGNORE INTO accounts (id, code, name, type) VALUES (?, ?, ?, ?)`,
					acct.id, acct.code, acct.name, acct.accountType,
				); err != nil {
					return fmt.Errorf("failed to seed account %s: %w", acct.code, err)
				}
			}
			for _, rule := range defaultRules {
				if _, err := tx.Exec(
					`INSERT INTO accounting_rules (name, pattern, is_regex, priority, confidence, account_id)
					 VALUES (?, ?, ?, ?, ?, ?)`,
					rule.name, rule.pattern, rule.isRegex, rule.priority, rule.confidence, rule.accountID,
				); err != nil {
					return fmt.Errorf("failed to seed rule %s: %w", rule.name, err)
				}
			}
			return nil
		},
	},
}

// Migrate brings the database schema up to the expected version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
			migration.Version, migration.Description); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	return nil
}

type seedAccount struct {
	id          string
	code        string
	name        string
	accountType string
}

type seedRule struct {
	name       string
	pattern    string
	accountID  string
	priority   int
	confidence float64
	isRegex    bool
}

var defaultAccounts = []seedAccount{
	{"acct-6001", "6001", "Office Supplies", "EXPENSE"},
	{"acct-6002", "6002", "Fuel & Generator", "EXPENSE"},
	{"acct-6003", "6003", "Transport & Travel", "EXPENSE"},
	{"acct-6004", "6004", "Utilities", "EXPENSE"},
	{"acct-6005", "6005", "Repairs & Maintenance", "EXPENSE"},
	{"acct-6006", "6006", "Meals & Entertainment", "EXPENSE"},
	{"acct-6007", "6007", "Communication & Internet", "EXPENSE"},
	{"acct-1201", "1201", "Staff Advances", "ASSET"},
	{"acct-1202", "1202", "Staff Loans", "ASSET"},
}

var defaultRules = []seedRule{
	{"fuel and petrol", `\b(fuel|petrol|diesel|generator)\b`, "acct-6002", 100, 0.95, true},
	{"transport", `\b(taxi|transport|bus fare|uber|travel)\b`, "acct-6003", 90, 0.95, true},
	{"utilities", `\b(electricity|water bill|power|nepa)\b`, "acct-6004", 90, 0.95, true},
	{"stationery", "stationery", "acct-6001", 80, 0.95, false},
	{"internet and airtime", `\b(airtime|internet|data bundle|wifi)\b`, "acct-6007", 80, 0.95, true},
	{"repairs", `\b(repair|maintenance|servicing)\b`, "acct-6005", 70, 0.95, true},
}
