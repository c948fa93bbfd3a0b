package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id               TEXT PRIMARY KEY,
		full_name        TEXT NOT NULL DEFAULT '',
		email            TEXT NOT NULL DEFAULT '',
		referral_code    TEXT UNIQUE,
		is_active        BOOLEAN NOT NULL DEFAULT TRUE,
		last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS mlm_nodes (
		node_id                 TEXT PRIMARY KEY,
		participant_id          TEXT NOT NULL CONSTRAINT mlm_nodes_participant_key UNIQUE,
		parent_node_id          TEXT REFERENCES mlm_nodes (node_id),
		referrer_participant_id TEXT NOT NULL DEFAULT '',
		level                   INTEGER NOT NULL CHECK (level >= 1),
		position                TEXT CHECK (position IN ('left', 'right')),
		left_child_count        INTEGER NOT NULL DEFAULT 0 CHECK (left_child_count >= 0),
		right_child_count       INTEGER NOT NULL DEFAULT 0 CHECK (right_child_count >= 0),
		created_at              TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS mlm_nodes_single_root ON mlm_nodes ((parent_node_id IS NULL)) WHERE parent_node_id IS NULL`,
	`CREATE INDEX IF NOT EXISTS mlm_nodes_parent_idx ON mlm_nodes (parent_node_id, position, created_at)`,
	`CREATE TABLE IF NOT EXISTS mlm_commissions (
		entry_id              TEXT PRIMARY KEY,
		beneficiary_id        TEXT NOT NULL,
		source_participant_id TEXT NOT NULL,
		amount                NUMERIC(20,2) NOT NULL CHECK (amount >= 0),
		rate                  NUMERIC(10,6) NOT NULL,
		level                 INTEGER NOT NULL CHECK (level >= 1),
		commission_type       TEXT NOT NULL,
		transaction_ref       TEXT,
		created_at            TIMESTAMPTZ NOT NULL,
		CONSTRAINT mlm_commissions_beneficiary_tx_key UNIQUE (beneficiary_id, transaction_ref)
	)`,
	`CREATE INDEX IF NOT EXISTS mlm_commissions_beneficiary_created_idx ON mlm_commissions (beneficiary_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS mlm_commissions_created_idx ON mlm_commissions (created_at DESC)`,
}

// ApplyPostgresSchema creates the tables and indexes used by the Postgres
// stores. Every statement is idempotent.
func ApplyPostgresSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range postgresSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return sqlError("apply schema", err)
		}
	}
	return nil
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isConnError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return true
		}
	}
	return false
}

// uniqueViolation reports the constraint name of a unique violation, if err is one.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

// whereBuilder accumulates AND-ed conditions with numbered placeholders.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) placeholder(arg interface{}) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	out := " WHERE " + w.conds[0]
	for _, c := range w.conds[1:] {
		out += " AND " + c
	}
	return out
}
