package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"switchyard/internal/constants"
	"switchyard/internal/node"
	"switchyard/pkg/circuitbreaker"
	"switchyard/pkg/metrics"
	"switchyard/pkg/models"
	"switchyard/pkg/retry"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// postgresWriter inserts one row per message. Rows are keyed by message id
// so a retried insert is a no-op.
type postgresWriter struct {
	db         *sql.DB
	query      string
	pipelineID string
	nodeID     string
	breaker    *circuitbreaker.Wrapper
	policy     retry.Policy
}

func newPostgresWriter(p node.Params, deps Deps) (Writer, error) {
	if deps.Postgres == nil {
		return nil, fmt.Errorf("postgres is not configured")
	}
	table := p.SettingOr("table", constants.DefaultPostgresTable)
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("setting table: invalid identifier %q", table)
	}
	policy, err := retryPolicy(p, deps.Retry)
	if err != nil {
		return nil, err
	}
	return &postgresWriter{
		db:         deps.Postgres,
		query:      insertQuery(table),
		pipelineID: p.PipelineID,
		nodeID:     p.NodeID(),
		breaker:    deps.breaker(TypePostgres, p),
		policy:     policy,
	}, nil
}

func insertQuery(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (id, source_id, collector_id, occurred_at, content, fields, error_stack, trace_id, pipeline_id, node_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, pq.QuoteIdentifier(table))
}

func (w *postgresWriter) Write(ctx context.Context, msg *models.EventMessage) error {
	fields, err := json.Marshal(fieldsOrEmpty(msg.Fields))
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}
	stack, err := json.Marshal(stackOrEmpty(msg.ErrorStack))
	if err != nil {
		return fmt.Errorf("failed to marshal error stack: %w", err)
	}

	return retry.Retry(ctx, w.policy, func() error {
		start := time.Now()
		_, err := circuitbreaker.Do(ctx, w.breaker, func() (sql.Result, error) {
			return w.db.ExecContext(ctx, w.query,
				msg.ID,
				msg.SourceID,
				msg.CollectorID,
				msg.Timestamp,
				msg.Content,
				string(fields),
				string(stack),
				sql.NullString{String: msg.Metadata.TraceID, Valid: msg.Metadata.TraceID != ""},
				w.pipelineID,
				w.nodeID,
			)
		})
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.IncDatabaseQuery("switchyard", "postgres", "insert", status)
		metrics.ObserveDatabaseQueryDuration("switchyard", "postgres", "insert", time.Since(start))
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		return nil
	})
}

func (w *postgresWriter) Close() error {
	return nil
}

func fieldsOrEmpty(fields map[string]string) map[string]string {
	if fields == nil {
		return map[string]string{}
	}
	return fields
}

func stackOrEmpty(stack []models.Error) []models.Error {
	if stack == nil {
		return []models.Error{}
	}
	return stack
}
