// Package ledger keeps a local record of generated accounts in SQLite. It
// stores addresses and key references only, never key material.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/account-generator/interfaces"
	_ "modernc.org/sqlite"
)

const DefaultListLimit = 100

// timestampLayout is fixed width so created_at sorts chronologically as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		address       TEXT PRIMARY KEY,
		key_reference TEXT NOT NULL,
		backend       TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		metadata      TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS accounts_created_at ON accounts (created_at)`,
}

type Ledger struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string, log *slog.Logger) (*Ledger, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, log: log}
	if err := l.migrate(); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	for _, stmt := range migrations {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}
	return nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) Record(ctx context.Context, a *interfaces.Account) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO accounts (address, key_reference, backend, created_at, metadata) VALUES (?, ?, ?, ?, ?)`,
		a.Address.Hex(), a.KeyReference, a.Backend, a.CreatedAt.UTC().Format(timestampLayout), string(metadata),
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// AccountGenerated records a on behalf of the generator. Failures are
// logged; the account exists regardless of the ledger.
func (l *Ledger) AccountGenerated(a *interfaces.Account) {
	if err := l.Record(context.Background(), a); err != nil {
		l.log.Error("Failed to record generated account", "address", a.Address.Hex(), "err", err)
	}
}

// List returns up to limit accounts, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]*interfaces.Account, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT address, key_reference, backend, created_at, metadata FROM accounts ORDER BY created_at DESC, address LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*interfaces.Account{}
	for rows.Next() {
		var (
			address, createdAt, metadata string
			a                            interfaces.Account
		)
		if err := rows.Scan(&address, &a.KeyReference, &a.Backend, &createdAt, &metadata); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Address = common.HexToAddress(address)
		a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", address, err)
		}
		if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", address, err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}
