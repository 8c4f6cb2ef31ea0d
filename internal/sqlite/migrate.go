package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"strings"
	"time"
)

type schemaType string

const (
	schemaTypeTable   schemaType = "table"
	schemaTypeTrigger schemaType = "trigger"
	schemaTypeIndex   schemaType = "index"
)

// schemaObject is a table, index or trigger as it appears in the live and/or target sqlite_schema.
type schemaObject struct {
	name      string
	liveSQL   string
	targetSQL string
}

// schemaDiff lists the objects of one type that differ between the live and the target schema.
type schemaDiff struct {
	removed []schemaObject
	added   []schemaObject
	changed []schemaObject
}

func (d schemaDiff) empty() bool {
	return len(d.removed) == 0 && len(d.added) == 0 && len(d.changed) == 0
}

// schemaFingerprint identifies a schema definition. It is stored in PRAGMA user_version so that an unchanged schema
// skips the migration entirely on startup.
func schemaFingerprint(schemaDefinition string) int32 {
	return int32(crc32.ChecksumIEEE([]byte(schemaDefinition))) //nolint:gosec // wrapping is fine for a fingerprint.
}

// migrateTo ensures that the db schema matches the target schema definition.
//
// The migration is declarative. The target schema is created in an attached in-memory database and diffed against
// the live schema. Removed tables are dropped, added tables are created, and changed tables are rebuilt following the
// 12-step procedure in https://www.sqlite.org/lang_altertable.html#otheralter. Indexes and triggers are synchronised
// afterwards.
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) (err error) {
	start := time.Now()
	fingerprint := schemaFingerprint(schemaDefinition)

	var current int32
	if err = db.ReadWrite.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema fingerprint: %w", err)
	}
	if current == fingerprint && fingerprint != 0 {
		db.logger.LogAttrs(ctx, slog.LevelDebug, "schema up to date", slog.Int64("fingerprint", int64(fingerprint)))
		return nil
	}

	detach, err := db.attachSchemaTarget(ctx, schemaDefinition)
	if err != nil {
		return fmt.Errorf("attach schema target: %w", err)
	}
	defer detach()

	// Foreign keys cannot be toggled inside a transaction.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if _, fkErr := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			err = errors.Join(err, fmt.Errorf("re-enable foreign keys: %w", fkErr))
		}
	}()

	err = db.Transact(ctx, func(tx *sql.Tx) error {
		if err = db.migrateTables(ctx, tx); err != nil {
			return fmt.Errorf("migrate tables: %w", err)
		}
		for _, typ := range []schemaType{schemaTypeTrigger, schemaTypeIndex} {
			if err = db.migrateObjects(ctx, tx, typ); err != nil {
				return fmt.Errorf("migrate %ss: %w", typ, err)
			}
		}
		if _, err = tx.ExecContext(ctx, "PRAGMA foreign_key_check"); err != nil {
			return fmt.Errorf("foreign key check: %w", err)
		}
		// PRAGMA statements do not accept bound parameters.
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", fingerprint)); err != nil {
			return fmt.Errorf("store schema fingerprint: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrated database", slog.Duration("duration", time.Since(start)))
	return nil
}

// attachSchemaTarget attaches an in-memory database initialised with the target schema as "schemaTarget".
// The returned function detaches it.
func (db *Database) attachSchemaTarget(ctx context.Context, schemaDefinition string) (func(), error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", rand.Text())
	target, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open schema target: %w", err)
	}
	// The shared in-memory database lives as long as one connection is open, so keep the handle open until the
	// live database has attached it.
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close schema target",
				slog.Any("error", closeErr))
		}
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return nil, fmt.Errorf("create schema target: %w", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", dsn); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	return func() {
		if _, detachErr := db.ReadWrite.ExecContext(ctx, "DETACH DATABASE schemaTarget"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach schema target", slog.Any("error", detachErr))
		}
	}, nil
}

// diffSchema compares the live and target schema for objects of typ.
func (db *Database) diffSchema(ctx context.Context, tx *sql.Tx, typ schemaType) (schemaDiff, error) {
	var (
		diff schemaDiff
		err  error
	)
	// The table rename in the rebuild adds double quotes around the name, so quotes are ignored in the comparison.
	const filter = ` AND name NOT LIKE 'sqlite_%'`
	if diff.removed, err = db.querySchemaObjects(ctx, tx, `
SELECT live.name, live.sql, ''
FROM (SELECT name, type, sql FROM main.sqlite_schema WHERE type = :type`+filter+`) AS live
LEFT JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
WHERE target.type IS NULL`, typ); err != nil {
		return schemaDiff{}, fmt.Errorf("query removed: %w", err)
	}
	if diff.added, err = db.querySchemaObjects(ctx, tx, `
SELECT target.name, '', target.sql
FROM (SELECT name, type, sql FROM schemaTarget.sqlite_schema WHERE type = :type`+filter+`) AS target
LEFT JOIN main.sqlite_schema AS live ON live.name = target.name AND live.type = target.type
WHERE live.type IS NULL`, typ); err != nil {
		return schemaDiff{}, fmt.Errorf("query added: %w", err)
	}
	if diff.changed, err = db.querySchemaObjects(ctx, tx, `
SELECT live.name, live.sql, target.sql
FROM main.sqlite_schema AS live
JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
WHERE live.type = :type AND live.name NOT LIKE 'sqlite_%'
  AND REPLACE(live.sql, '"', '') <> REPLACE(target.sql, '"', '')`, typ); err != nil {
		return schemaDiff{}, fmt.Errorf("query changed: %w", err)
	}
	return diff, nil
}

func (db *Database) querySchemaObjects(
	ctx context.Context,
	tx *sql.Tx,
	query string,
	typ schemaType,
) (_ []schemaObject, err error) {
	rows, err := tx.QueryContext(ctx, query, sql.Named("type", string(typ)))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()
	var objects []schemaObject
	for rows.Next() {
		var (
			o                  schemaObject
			liveSQL, targetSQL sql.NullString
		)
		if err = rows.Scan(&o.name, &liveSQL, &targetSQL); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		o.liveSQL, o.targetSQL = liveSQL.String, targetSQL.String
		objects = append(objects, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return objects, nil
}

// migrateTables drops removed tables, creates added ones and rebuilds changed ones preserving common columns.
func (db *Database) migrateTables(ctx context.Context, tx *sql.Tx) error {
	diff, err := db.diffSchema(ctx, tx, schemaTypeTable)
	if err != nil {
		return fmt.Errorf("diff tables: %w", err)
	}
	if diff.empty() {
		return nil
	}

	for _, t := range diff.removed {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", t.name))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", t.name)); err != nil {
			return fmt.Errorf("drop table %s: %w", t.name, err)
		}
	}
	for _, t := range diff.added {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("table", t.name))
		if _, err = tx.ExecContext(ctx, t.targetSQL); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
	}
	for _, t := range diff.changed {
		if err = db.rebuildTable(ctx, tx, t); err != nil {
			return fmt.Errorf("rebuild table %s: %w", t.name, err)
		}
	}
	return nil
}

// rebuildTable creates the new table definition under a temporary name, copies the columns both definitions share,
// drops the old table and renames the new one into place.
func (db *Database) rebuildTable(ctx context.Context, tx *sql.Tx, t schemaObject) error {
	db.logger.LogAttrs(ctx, slog.LevelInfo, "rebuilding table",
		slog.String("table", t.name),
		slog.String("live_sql", t.liveSQL),
		slog.String("new_sql", t.targetSQL))

	tempName := t.name + "_migration_temp"
	statements := []string{strings.Replace(t.targetSQL, t.name, tempName, 1)}

	var columns []string
	rows, err := tx.QueryContext(ctx, `SELECT '"' || target.name || '"'
FROM PRAGMA_TABLE_INFO(:table_name) AS live
JOIN PRAGMA_TABLE_INFO(:table_name, 'schemaTarget') AS target ON target.name = live.name`,
		sql.Named("table_name", t.name))
	if err != nil {
		return fmt.Errorf("query common columns: %w", err)
	}
	for rows.Next() {
		var column string
		if err = rows.Scan(&column); err != nil {
			return errors.Join(fmt.Errorf("scan column: %w", err), rows.Close())
		}
		columns = append(columns, column)
	}
	if err = errors.Join(rows.Err(), rows.Close()); err != nil {
		return fmt.Errorf("common columns: %w", err)
	}

	if len(columns) > 0 {
		common := strings.Join(columns, ", ")
		statements = append(statements, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			tempName, common, common, t.name))
	}
	statements = append(statements,
		fmt.Sprintf("DROP TABLE %s", t.name),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tempName, t.name),
	)
	for _, stmt := range statements {
		db.logger.LogAttrs(ctx, slog.LevelDebug, "executing migration statement", slog.String("query", stmt))
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// migrateObjects synchronises indexes or triggers. Changed objects are dropped and recreated.
func (db *Database) migrateObjects(ctx context.Context, tx *sql.Tx, typ schemaType) error {
	diff, err := db.diffSchema(ctx, tx, typ)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	logger := db.logger.With(slog.String("schema_type", string(typ)))
	keyword := strings.ToUpper(string(typ))

	drop := func(name string) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "dropping", slog.String("name", name))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP %s IF EXISTS %s", keyword, name)); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
		return nil
	}
	create := func(o schemaObject) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "creating", slog.String("name", o.name))
		if _, err = tx.ExecContext(ctx, o.targetSQL); err != nil {
			return fmt.Errorf("create %s: %w", o.name, err)
		}
		return nil
	}

	for _, o := range diff.removed {
		if err = drop(o.name); err != nil {
			return err
		}
	}
	for _, o := range diff.changed {
		if err = drop(o.name); err != nil {
			return err
		}
		if err = create(o); err != nil {
			return err
		}
	}
	for _, o := range diff.added {
		if err = create(o); err != nil {
			return err
		}
	}
	return nil
}
