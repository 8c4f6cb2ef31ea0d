package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	sessionsTableName = "sessions"
	sessionColumn     = "session_id"
)

// ErrNoRows is returned by ExportSession when the session does not exist.
var ErrNoRows = errors.New("no rows")

// sessionTable is a table holding rows of a session and the column that identifies the session.
type sessionTable struct {
	name   string
	column string
}

// ExportSession copies a session and every row belonging to it into a standalone SQLite database file in dir.
//
// Tables belong to a session when they reference sessions(id) through a foreign key or carry a session_id column.
// The schema of each exported table is copied so the file can be opened with any SQLite client.
func (db *Database) ExportSession(ctx context.Context, sessionID, dir string) (_ string, err error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\.`) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	exportPath := filepath.Join(dir, fmt.Sprintf("session-%s.sqlite3", sessionID))
	exportDsn := fmt.Sprintf("file:%s?mode=rwc", exportPath)

	// Attaching a writable database needs a read-write connection.
	conn, err := db.ReadWrite.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("get db connection: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close db connection: %w", closeErr)
		}
	}()

	var exists bool
	if err = conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = ?)`,
		sessionID).Scan(&exists); err != nil {
		return "", fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return "", fmt.Errorf("session %s: %w", sessionID, ErrNoRows)
	}
	if err = os.Remove(exportPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("remove previous export: %w", err)
	}

	if _, err = conn.ExecContext(ctx, `ATTACH DATABASE ? AS export`, exportDsn); err != nil {
		return "", fmt.Errorf("attach export database: %w", err)
	}
	defer func() {
		if _, detachErr := conn.ExecContext(context.WithoutCancel(ctx), `DETACH DATABASE export`); detachErr != nil &&
			err == nil {
			err = fmt.Errorf("detach export database: %w", detachErr)
		}
	}()

	if err = exportSession(ctx, conn, sessionID); err != nil {
		return "", err
	}
	db.logger.LogAttrs(ctx, slog.LevelInfo, "exported session",
		slog.String("session_id", sessionID), slog.String("path", exportPath))
	return exportPath, nil
}

func exportSession(ctx context.Context, conn *sql.Conn, sessionID string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	tables, err := findSessionTables(ctx, tx)
	if err != nil {
		return fmt.Errorf("find session tables: %w", err)
	}

	for _, table := range tables {
		if err = copyTableSchema(ctx, tx, table.name); err != nil {
			return fmt.Errorf("copy schema of %s: %w", table.name, err)
		}
		query := fmt.Sprintf(`INSERT INTO export.%s SELECT * FROM main.%s WHERE %s = ?`,
			table.name, table.name, table.column)
		if _, err = tx.ExecContext(ctx, query, sessionID); err != nil {
			return fmt.Errorf("copy rows of %s: %w", table.name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}

// findSessionTables returns the sessions table followed by the tables that belong to a session, sorted by name.
func findSessionTables(ctx context.Context, tx *sql.Tx) ([]sessionTable, error) {
	names, err := queryStrings(ctx, tx,
		`SELECT name FROM sqlite_schema WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != ? ORDER BY name`,
		sessionsTableName)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := []sessionTable{{name: sessionsTableName, column: "id"}}
	for _, name := range names {
		column, err := sessionColumnOf(ctx, tx, name)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", name, err)
		}
		if column != "" {
			tables = append(tables, sessionTable{name: name, column: column})
		}
	}
	return tables, nil
}

// sessionColumnOf returns the column of table that holds a session ID or "" when the table is unrelated.
func sessionColumnOf(ctx context.Context, tx *sql.Tx, table string) (string, error) {
	var column string
	err := tx.QueryRowContext(ctx,
		`SELECT "from" FROM pragma_foreign_key_list(?) WHERE "table" = ? AND "to" = 'id' LIMIT 1`,
		table, sessionsTableName).Scan(&column)
	switch {
	case err == nil:
		return column, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("query foreign keys: %w", err)
	}

	columns, err := queryStrings(ctx, tx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return "", fmt.Errorf("query columns: %w", err)
	}
	if slices.Contains(columns, sessionColumn) {
		return sessionColumn, nil
	}
	return "", nil
}

func queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) (_ []string, err error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	var values []string
	for rows.Next() {
		var v string
		if err = rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		values = append(values, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return values, nil
}

// copyTableSchema creates table in the export database with the same definition as in the main database.
func copyTableSchema(ctx context.Context, tx *sql.Tx, table string) error {
	var createSQL string
	if err := tx.QueryRowContext(ctx, `SELECT sql FROM sqlite_schema WHERE type = 'table' AND name = ?`,
		table).Scan(&createSQL); err != nil {
		return fmt.Errorf("get schema: %w", err)
	}
	prefix := "CREATE TABLE " + table
	if !strings.HasPrefix(createSQL, prefix) {
		return fmt.Errorf("unexpected table definition %q", createSQL)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE export."+table+createSQL[len(prefix):]); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}
