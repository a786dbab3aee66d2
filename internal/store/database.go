package store

import (
	"context"
	"database/sql"
	"fmt"

	"studentbot-web/internal/db"
)

// DatabaseStore stores statements in SQLite or PostgreSQL
type DatabaseStore struct {
	db *db.DB
}

// NewDatabaseStore creates a new database store
func NewDatabaseStore(database *db.DB) *DatabaseStore {
	return &DatabaseStore{db: database}
}

// Create saves a single statement and returns it with its ID set.
func (ds *DatabaseStore) Create(ctx context.Context, st Statement) (Statement, error) {
	if st.Text == "" {
		return Statement{}, fmt.Errorf("statement text is required")
	}

	res, err := ds.db.ExecContext(ctx,
		ds.db.Rebind(`INSERT INTO statements (text, in_response_to, conversation) VALUES (?, ?, ?)`),
		st.Text, nullString(st.InResponseTo), st.Conversation,
	)
	if err != nil {
		return Statement{}, fmt.Errorf("failed to save statement: %w", err)
	}
	// lib/pq does not support LastInsertId; the ID is informational only.
	if id, err := res.LastInsertId(); err == nil {
		st.ID = id
	}
	return st, nil
}

// CreateMany saves statements in a single transaction.
func (ds *DatabaseStore) CreateMany(ctx context.Context, sts []Statement) error {
	if len(sts) == 0 {
		return nil
	}
	return ds.withTx(ctx, func(tx *sql.Tx) error {
		return ds.insertStatements(ctx, tx, sts)
	})
}

// CreateCorpus saves the statements of a corpus and marks it trained in the
// same transaction.
func (ds *DatabaseStore) CreateCorpus(ctx context.Context, corpus string, sts []Statement) error {
	if corpus == "" {
		return fmt.Errorf("corpus name is required")
	}
	return ds.withTx(ctx, func(tx *sql.Tx) error {
		if err := ds.insertStatements(ctx, tx, sts); err != nil {
			return err
		}
		return ds.markTrained(ctx, tx, corpus, len(sts))
	})
}

func (ds *DatabaseStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit statements: %w", err)
	}
	return nil
}

func (ds *DatabaseStore) insertStatements(ctx context.Context, tx *sql.Tx, sts []Statement) error {
	stmt, err := tx.PrepareContext(ctx,
		ds.db.Rebind(`INSERT INTO statements (text, in_response_to, conversation) VALUES (?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, st := range sts {
		if st.Text == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, st.Text, nullString(st.InResponseTo), st.Conversation); err != nil {
			return fmt.Errorf("failed to save statement: %w", err)
		}
	}
	return nil
}

// Prompts are returned in the order they were first stored.
func (ds *DatabaseStore) Prompts(ctx context.Context) ([]string, error) {
	rows, err := ds.db.QueryContext(ctx, `
		SELECT in_response_to
		FROM statements
		WHERE in_response_to IS NOT NULL
		GROUP BY in_response_to
		ORDER BY MIN(id)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer rows.Close()

	var prompts []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

func (ds *DatabaseStore) Responses(ctx context.Context, prompt string) ([]Statement, error) {
	rows, err := ds.db.QueryContext(ctx, ds.db.Rebind(`
		SELECT id, text, in_response_to, conversation, created_at
		FROM statements
		WHERE in_response_to = ?
		ORDER BY id
	`), prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to get responses: %w", err)
	}
	defer rows.Close()

	var out []Statement
	for rows.Next() {
		var st Statement
		var inResponseTo sql.NullString
		if err := rows.Scan(&st.ID, &st.Text, &inResponseTo, &st.Conversation, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		st.InResponseTo = inResponseTo.String
		out = append(out, st)
	}
	return out, rows.Err()
}

func (ds *DatabaseStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := ds.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM statements`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count statements: %w", err)
	}
	return n, nil
}

func (ds *DatabaseStore) IsTrained(ctx context.Context, corpus string) (bool, error) {
	var n int
	err := ds.db.QueryRowContext(ctx,
		ds.db.Rebind(`SELECT COUNT(*) FROM trained_corpora WHERE name = ?`), corpus,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check corpus %s: %w", corpus, err)
	}
	return n > 0, nil
}

func (ds *DatabaseStore) MarkTrained(ctx context.Context, corpus string, statements int) error {
	if corpus == "" {
		return fmt.Errorf("corpus name is required")
	}
	return ds.markTrained(ctx, ds.db, corpus, statements)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (ds *DatabaseStore) markTrained(ctx context.Context, ex execer, corpus string, statements int) error {
	_, err := ex.ExecContext(ctx, ds.db.Rebind(`
		INSERT INTO trained_corpora (name, statements)
		VALUES (?, ?)
		ON CONFLICT (name)
		DO UPDATE SET statements = EXCLUDED.statements
	`), corpus, statements)
	if err != nil {
		return fmt.Errorf("failed to mark corpus %s trained: %w", corpus, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
