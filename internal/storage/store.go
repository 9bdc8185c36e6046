package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"teamassist/internal/query"
)

// ErrQueryFailed is the typed result surfaced when the underlying database
// rejects a structured query. Raw driver errors never reach callers' users.
var ErrQueryFailed = errors.New("query failed")

// Store is the tabular access layer: rows are addressed by table name,
// predicate, and limit. Table and column names are validated before they are
// spliced into a statement.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for services that manage their own
// statements and transactions.
func (s *Store) DB() *sql.DB { return s.db }

// Select fetches up to limit rows matching the predicate. An empty field list
// selects every column. Rows come back as column-keyed maps.
func (s *Store) Select(ctx context.Context, table string, fields []string, pred query.Predicate, orderBy string, limit int) ([]map[string]any, error) {
	if !query.ValidColumn(table) {
		return nil, fmt.Errorf("%w: invalid table %q", ErrQueryFailed, table)
	}
	cols := "*"
	if len(fields) > 0 {
		for _, f := range fields {
			if !query.ValidColumn(f) {
				return nil, fmt.Errorf("%w: invalid column %q", ErrQueryFailed, f)
			}
		}
		cols = strings.Join(fields, ", ")
	}
	stmt := "SELECT " + cols + " FROM " + table + pred.Where()
	if orderBy != "" {
		clause, ok := orderClause(orderBy)
		if !ok {
			return nil, fmt.Errorf("%w: invalid order %q", ErrQueryFailed, orderBy)
		}
		stmt += " ORDER BY " + clause
	}
	args := pred.Args()
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Insert adds one row and returns its generated id, if any.
func (s *Store) Insert(ctx context.Context, table string, row map[string]any) (int64, error) {
	if !query.ValidColumn(table) || len(row) == 0 {
		return 0, fmt.Errorf("%w: invalid insert into %q", ErrQueryFailed, table)
	}
	cols := make([]string, 0, len(row))
	for col := range row {
		if !query.ValidColumn(col) {
			return 0, fmt.Errorf("%w: invalid column %q", ErrQueryFailed, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		args = append(args, row[col])
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, nil
	}
	return id, nil
}

// Delete removes the rows matching the predicate. An unrestricted predicate
// is rejected so a malformed filter can never empty a table.
func (s *Store) Delete(ctx context.Context, table string, pred query.Predicate) error {
	if !query.ValidColumn(table) {
		return fmt.Errorf("%w: invalid table %q", ErrQueryFailed, table)
	}
	if pred.IsZero() {
		return fmt.Errorf("%w: refusing unrestricted delete on %s", ErrQueryFailed, table)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+pred.Where(), pred.Args()...); err != nil {
		return fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return nil
}

// Update patches the rows matching the predicate.
func (s *Store) Update(ctx context.Context, table string, pred query.Predicate, patch map[string]any) error {
	if !query.ValidColumn(table) || len(patch) == 0 {
		return fmt.Errorf("%w: invalid update on %q", ErrQueryFailed, table)
	}
	if pred.IsZero() {
		return fmt.Errorf("%w: refusing unrestricted update on %s", ErrQueryFailed, table)
	}
	cols := make([]string, 0, len(patch))
	for col := range patch {
		if !query.ValidColumn(col) {
			return fmt.Errorf("%w: invalid column %q", ErrQueryFailed, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+len(pred.Args()))
	for _, col := range cols {
		sets = append(sets, col+" = ?")
		args = append(args, patch[col])
	}
	args = append(args, pred.Args()...)
	stmt := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + pred.Where()
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return nil
}

// Tx runs fn inside a transaction, rolling back on error.
func (s *Store) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// orderClause validates an "column" or "column DESC" ordering request.
func orderClause(orderBy string) (string, bool) {
	parts := strings.Fields(orderBy)
	switch len(parts) {
	case 1:
		return parts[0], query.ValidColumn(parts[0])
	case 2:
		dir := strings.ToUpper(parts[1])
		if dir != "ASC" && dir != "DESC" {
			return "", false
		}
		return parts[0] + " " + dir, query.ValidColumn(parts[0])
	}
	return "", false
}
