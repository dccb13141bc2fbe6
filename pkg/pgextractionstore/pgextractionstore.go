package pgextractionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/lib/pq"

	"github.com/weberc2/halfmarathon/pkg/halfmarathon"
)

var ErrTraceExists = errors.New("extraction trace exists")

// PGExtractionStore keeps extraction traces in the `extraction_traces`
// table.
type PGExtractionStore sql.DB

var _ halfmarathon.ExtractionRecorder = (*PGExtractionStore)(nil)

func OpenEnv() (*PGExtractionStore, error) {
	db, err := sql.Open(
		"postgres",
		fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("PG_HOST", "localhost"),
			getEnv("PG_PORT", "5432"),
			getEnv("PG_USER", "postgres"),
			getEnv("PG_PASS", ""),
			getEnv("PG_DB_NAME", "postgres"),
			getEnv("PG_SSL_MODE", "disable"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres database: %w", err)
	}

	return (*PGExtractionStore)(db), nil
}

func getEnv(env, def string) string {
	x := os.Getenv(env)
	if x == "" {
		return def
	}
	return x
}

func (s *PGExtractionStore) Close() error { return (*sql.DB)(s).Close() }

func (s *PGExtractionStore) EnsureTable() error {
	if _, err := (*sql.DB)(s).Exec(
		"CREATE TABLE IF NOT EXISTS extraction_traces (" +
			"id UUID NOT NULL PRIMARY KEY, " +
			"time TIMESTAMPTZ NOT NULL, " +
			"description TEXT NOT NULL, " +
			"prompt TEXT NOT NULL, " +
			"model TEXT NOT NULL, " +
			"temperature DOUBLE PRECISION NOT NULL, " +
			"structured BOOLEAN NOT NULL, " +
			"response TEXT NOT NULL, " +
			"extracted JSONB, " +
			"duration_ms BIGINT NOT NULL, " +
			"error TEXT NOT NULL)",
	); err != nil {
		return fmt.Errorf("creating `extraction_traces` postgres table: %w", err)
	}
	return nil
}

func (s *PGExtractionStore) DropTable() error {
	if _, err := (*sql.DB)(s).Exec(
		"DROP TABLE IF EXISTS extraction_traces",
	); err != nil {
		return fmt.Errorf("dropping table `extraction_traces`: %w", err)
	}
	return nil
}

func (s *PGExtractionStore) ClearTable() error {
	if _, err := (*sql.DB)(s).Exec(
		"DELETE FROM extraction_traces",
	); err != nil {
		return fmt.Errorf("clearing `extraction_traces` postgres table: %w", err)
	}
	return nil
}

func (s *PGExtractionStore) ResetTable() error {
	if err := s.DropTable(); err != nil {
		return err
	}
	return s.EnsureTable()
}

func (s *PGExtractionStore) RecordExtraction(
	ctx context.Context,
	trace *halfmarathon.ExtractionTrace,
) error {
	var extracted any
	if len(trace.Extracted) > 0 {
		extracted = string(trace.Extracted)
	}
	if _, err := (*sql.DB)(s).ExecContext(
		ctx,
		"INSERT INTO extraction_traces (id, time, description, prompt, "+
			"model, temperature, structured, response, extracted, "+
			"duration_ms, error) "+
			"VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		trace.ID,
		trace.Time,
		trace.Description,
		trace.Prompt,
		trace.Model,
		trace.Temperature,
		trace.Structured,
		trace.Response,
		extracted,
		trace.DurationMS,
		trace.Error,
	); err != nil {
		const errUniqueViolation = "23505"
		if err, ok := err.(*pq.Error); ok && err.Code == errUniqueViolation {
			return fmt.Errorf("recording extraction `%s`: %w", trace.ID, ErrTraceExists)
		}
		return fmt.Errorf("inserting extraction trace into postgres: %w", err)
	}
	return nil
}

// List returns up to `limit` traces, newest first.
func (s *PGExtractionStore) List(
	ctx context.Context,
	limit int,
) ([]halfmarathon.ExtractionTrace, error) {
	// we don't want to return a `nil` slice because that gets JSON-marshaled
	// to `null` instead of `[]`.
	traces := []halfmarathon.ExtractionTrace{}

	rows, err := (*sql.DB)(s).QueryContext(
		ctx,
		"SELECT id, time, description, prompt, model, temperature, "+
			"structured, response, extracted, duration_ms, error "+
			"FROM extraction_traces ORDER BY time DESC, id LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying extraction traces from postgres: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var trace halfmarathon.ExtractionTrace
		var extracted sql.NullString
		if err := rows.Scan(
			&trace.ID,
			&trace.Time,
			&trace.Description,
			&trace.Prompt,
			&trace.Model,
			&trace.Temperature,
			&trace.Structured,
			&trace.Response,
			&extracted,
			&trace.DurationMS,
			&trace.Error,
		); err != nil {
			return nil, fmt.Errorf(
				"querying extraction traces from postgres: %w",
				err,
			)
		}
		if extracted.Valid {
			trace.Extracted = json.RawMessage(extracted.String)
		}
		traces = append(traces, trace)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying extraction traces from postgres: %w", err)
	}
	return traces, nil
}
