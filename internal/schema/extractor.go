package schema

import (
	"context"
	"database/sql"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/querymind/querymind/internal/errors"
	"github.com/querymind/querymind/internal/logging"
)

// Extractor reads the structural metadata of a live PostgreSQL database.
type Extractor struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// NewExtractor opens a connection to the database described by dsn and
// verifies it is reachable.
func NewExtractor(ctx context.Context, dsn string, logger *logging.Logger) (*Extractor, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeIntrospection, "failed to parse connection string")
	}

	db := sqlx.NewDb(stdlib.OpenDB(*config), "pgx")

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeIntrospection, "failed to reach database").
			WithSuggestion("Check that the database is running and the credentials are valid")
	}

	return &Extractor{db: db, logger: logger}, nil
}

// Close releases the underlying database connection.
func (e *Extractor) Close() error {
	return e.db.Close()
}

// Extract builds a Model of every base table visible in the public schema.
// All reads happen inside a single read-only transaction so the snapshot
// is consistent even while the database is being modified.
func (e *Extractor) Extract(ctx context.Context, connectionID string) (*Model, error) {
	tx, err := e.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeIntrospection, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	tableNames, err := e.loadTableNames(ctx, tx)
	if err != nil {
		return nil, err
	}

	model := &Model{
		ConnectionID: connectionID,
		Tables:       make([]TableDescriptor, 0, len(tableNames)),
	}

	for _, name := range tableNames {
		columns, err := e.loadColumns(ctx, tx, name)
		if err != nil {
			return nil, err
		}

		primaryKeys, err := e.loadPrimaryKeys(ctx, tx, name)
		if err != nil {
			return nil, err
		}

		for i := range columns {
			if primaryKeys[columns[i].Name] {
				columns[i].IsPrimaryKey = true
			}
		}

		foreignKeys, err := e.loadForeignKeys(ctx, tx, name)
		if err != nil {
			return nil, err
		}

		model.Tables = append(model.Tables, TableDescriptor{
			Name:        name,
			Columns:     columns,
			ForeignKeys: foreignKeys,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeIntrospection, "failed to commit snapshot transaction")
	}

	if e.logger != nil {
		e.logger.WithFields(map[string]interface{}{
			"connection": connectionID,
			"tables":     len(model.Tables),
		}).Info("extracted schema snapshot")
	}

	return model, nil
}

func (e *Extractor) loadTableNames(ctx context.Context, tx *sqlx.Tx) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
	`

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeIntrospection, "failed to list tables")
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeIntrospection, "failed to scan table name")
		}

		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeIntrospection, "failed to iterate tables")
	}

	sort.Strings(names)

	return names, nil
}

func (e *Extractor) loadColumns(ctx context.Context, tx *sqlx.Tx, tableName string) ([]ColumnDescriptor, error) {
	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := tx.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeIntrospection, "failed to query columns of %s", tableName)
	}
	defer rows.Close()

	var columns []ColumnDescriptor

	for rows.Next() {
		var name, dataType, isNullable string
		if err := rows.Scan(&name, &dataType, &isNullable); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIntrospection, "failed to scan column of %s", tableName)
		}

		columns = append(columns, ColumnDescriptor{
			Name:         name,
			DeclaredType: dataType,
			Nullable:     isNullable == "YES",
		})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeIntrospection, "failed to iterate columns of %s", tableName)
	}

	return columns, nil
}

func (e *Extractor) loadPrimaryKeys(ctx context.Context, tx *sqlx.Tx, tableName string) (map[string]bool, error) {
	query := `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = 'public'
			AND tc.table_name = $1
			AND tc.constraint_type = 'PRIMARY KEY'
	`

	rows, err := tx.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeIntrospection, "failed to query primary keys of %s", tableName)
	}
	defer rows.Close()

	keys := make(map[string]bool)

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIntrospection, "failed to scan primary key of %s", tableName)
		}

		keys[name] = true
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeIntrospection, "failed to iterate primary keys of %s", tableName)
	}

	return keys, nil
}

func (e *Extractor) loadForeignKeys(ctx context.Context, tx *sqlx.Tx, tableName string) ([]ForeignKeyRef, error) {
	query := `
		SELECT kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = 'public'
			AND tc.table_name = $1
			AND tc.constraint_type = 'FOREIGN KEY'
		ORDER BY kcu.column_name
	`

	rows, err := tx.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeIntrospection, "failed to query foreign keys of %s", tableName)
	}
	defer rows.Close()

	var refs []ForeignKeyRef

	for rows.Next() {
		var ref ForeignKeyRef
		if err := rows.Scan(&ref.Column, &ref.RefTable, &ref.RefColumn); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIntrospection, "failed to scan foreign key of %s", tableName)
		}

		refs = append(refs, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeIntrospection, "failed to iterate foreign keys of %s", tableName)
	}

	return refs, nil
}
