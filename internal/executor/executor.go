// Package executor runs validated SQL against Postgres through a
// read-only, capped gateway.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/errors"
	"github.com/querymind/querymind/internal/guardrail"
	"github.com/querymind/querymind/internal/logging"
)

// Result is the outcome of executing one query.
type Result struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	RowCount  int             `json:"row_count"`
	Truncated bool            `json:"truncated"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

// Gateway executes SQL that passed validation.
type Gateway interface {
	Execute(ctx context.Context, dsn string, verdict guardrail.Verdict) (*Result, error)
}

// PostgresGateway executes queries over a fresh connection per call with
// a server-side statement timeout and a hard row cap.
type PostgresGateway struct {
	statementTimeoutMS int
	maxRows            int
	logger             *logging.Logger
}

// NewPostgresGateway creates a gateway with the configured policy limits.
func NewPostgresGateway(cfg config.PolicyConfig, logger *logging.Logger) *PostgresGateway {
	return &PostgresGateway{
		statementTimeoutMS: cfg.StatementTimeoutMS,
		maxRows:            cfg.MaxRows,
		logger:             logger,
	}
}

// Execute runs the normalized SQL of an accepted verdict. A rejected
// verdict is refused here regardless of what the caller did upstream.
func (g *PostgresGateway) Execute(ctx context.Context, dsn string, verdict guardrail.Verdict) (*Result, error) {
	if !verdict.Accepted {
		return nil, errors.Newf(errors.ErrTypeValidation,
			"refusing to execute rejected SQL (%s)", verdict.Reason)
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to parse connection string")
	}

	db := sqlx.NewDb(stdlib.OpenDB(*connConfig), "pgx")
	defer func() { _ = db.Close() }()

	// The timeout is set on our own session, never interpolated from
	// model output.
	if _, err := db.ExecContext(ctx,
		fmt.Sprintf("SET statement_timeout = %d", g.statementTimeoutMS)); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to set statement timeout")
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to begin read-only transaction")
	}

	defer func() { _ = tx.Rollback() }()

	start := time.Now()

	rows, err := tx.QueryContext(ctx, verdict.Normalized)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "query failed")
	}

	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to read result columns")
	}

	result := &Result{Columns: columns}

	for rows.Next() {
		if len(result.Rows) >= g.maxRows {
			result.Truncated = true
			break
		}

		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to scan result row")
		}

		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to iterate result rows")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to close transaction")
	}

	result.RowCount = len(result.Rows)
	result.ElapsedMS = time.Since(start).Milliseconds()

	if g.logger != nil {
		g.logger.WithFields(map[string]interface{}{
			"rows":       result.RowCount,
			"elapsed_ms": result.ElapsedMS,
			"truncated":  result.Truncated,
		}).Debug("query executed")
	}

	return result, nil
}
