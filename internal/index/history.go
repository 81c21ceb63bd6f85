package index

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/querymind/querymind/internal/errors"
)

// QueryRecord is one entry in the query history log.
type QueryRecord struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	Question     string    `json:"question"`
	GeneratedSQL string    `json:"generated_sql"`
	Accepted     bool      `json:"accepted"`
	RejectReason string    `json:"reject_reason,omitempty"`
	RowCount     int       `json:"row_count"`
	ElapsedMS    int64     `json:"elapsed_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// RecordQuery appends a record to the query history. The record's ID and
// timestamp are assigned here.
func (s *Store) RecordQuery(ctx context.Context, record *QueryRecord) error {
	record.ID = uuid.New().String()
	record.CreatedAt = time.Now().UTC()

	insertSQL := `
		INSERT INTO query_history (
			id, connection_id, question, generated_sql,
			accepted, reject_reason, row_count, elapsed_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, insertSQL,
		record.ID,
		record.ConnectionID,
		record.Question,
		record.GeneratedSQL,
		record.Accepted,
		record.RejectReason,
		record.RowCount,
		record.ElapsedMS,
		record.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to record query")
	}

	return nil
}

// ListHistory returns the most recent query records for a connection,
// newest first.
func (s *Store) ListHistory(ctx context.Context, connectionID string, limit int) ([]QueryRecord, error) {
	query := `
		SELECT id, connection_id, question, generated_sql,
			accepted, reject_reason, row_count, elapsed_ms, created_at
		FROM query_history
		WHERE connection_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, connectionID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to query history")
	}

	defer rows.Close()

	var records []QueryRecord

	for rows.Next() {
		var record QueryRecord
		var rejectReason sql.NullString

		if err := rows.Scan(
			&record.ID,
			&record.ConnectionID,
			&record.Question,
			&record.GeneratedSQL,
			&record.Accepted,
			&rejectReason,
			&record.RowCount,
			&record.ElapsedMS,
			&record.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan history row")
		}

		record.RejectReason = rejectReason.String
		records = append(records, record)
	}

	return records, rows.Err()
}
