package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// JobAnalyticsRepo implementa la interfaz JobAnalyticsRepository para ClickHouse.
type JobAnalyticsRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewJobAnalyticsRepo abre la conexión y comprueba que ClickHouse responde.
func NewJobAnalyticsRepo(ctx context.Context, addr string, dbName string) (*JobAnalyticsRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	})

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}
	return NewJobAnalyticsRepoFromDB(conn), nil
}

// NewJobAnalyticsRepoFromDB reutiliza una conexión ya abierta.
func NewJobAnalyticsRepoFromDB(db *sql.DB) *JobAnalyticsRepo {
	return &JobAnalyticsRepo{db: db, now: time.Now}
}

// InitSchema crea la tabla en ClickHouse si no existe.
// Se particiona por mes y se ordena por los campos de consulta habituales.
func (r *JobAnalyticsRepo) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS jobs_log (
			id           UUID,
			cep          String,
			priority     LowCardinality(String),
			status       LowCardinality(String),
			created_at   DateTime64(3),
			completed_at DateTime64(3),
			event_time   DateTime64(3)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(event_time)
		ORDER BY (status, event_time);
	`)
	return err
}

// LogBatch inserta un lote de jobs terminados. ClickHouse funciona mejor con inserciones en lotes.
func (r *JobAnalyticsRepo) LogBatch(ctx context.Context, jobs []*jobDomain.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO jobs_log (id, cep, priority, status, created_at, completed_at, event_time)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	eventTime := r.now().UTC()
	for _, job := range jobs {
		if job.CompletedAt == nil {
			continue // solo se registran jobs en estado terminal
		}
		if _, err := stmt.ExecContext(ctx,
			job.ID,
			job.Cep,
			string(job.Priority),
			string(job.Status),
			job.CreatedAt,
			*job.CompletedAt,
			eventTime,
		); err != nil {
			// Si un registro falla, se descarta el lote entero.
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for job %s: %w", job.ID, err)
		}
	}

	return tx.Commit()
}

// GetDailyTrend agrupa por día los jobs que terminaron en el intervalo.
func (r *JobAnalyticsRepo) GetDailyTrend(ctx context.Context, start, end time.Time) ([]jobDomain.DailyJobTrend, error) {
	query := `
		SELECT
			toStartOfDay(completed_at) AS day,
			countIf(status = 'Finished')  AS finished,
			countIf(status = 'Error')     AS failed,
			countIf(status = 'Cancelled') AS cancelled
		FROM jobs_log
		WHERE completed_at BETWEEN ? AND ?
		GROUP BY day
		ORDER BY day
	`
	rows, err := r.db.QueryContext(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trends := []jobDomain.DailyJobTrend{}
	for rows.Next() {
		var (
			trend                       jobDomain.DailyJobTrend
			finished, failed, cancelled uint64
		)
		if err := rows.Scan(&trend.Day, &finished, &failed, &cancelled); err != nil {
			return nil, err
		}
		trend.FinishedCount = int(finished)
		trend.ErrorCount = int(failed)
		trend.CancelledCount = int(cancelled)
		trends = append(trends, trend)
	}
	return trends, rows.Err()
}

// GetAverageCompletionTime calcula la media de completed_at - created_at de los jobs Finished.
// Un job puede aparecer varias veces si se registró más de una vez: se toma la primera fila por id.
func (r *JobAnalyticsRepo) GetAverageCompletionTime(ctx context.Context, start, end time.Time) (time.Duration, error) {
	query := `
		SELECT avg(dateDiff('millisecond', created, completed)) AS avg_ms
		FROM (
			SELECT
				id,
				any(created_at)   AS created,
				any(completed_at) AS completed
			FROM jobs_log
			WHERE status = 'Finished' AND completed_at BETWEEN ? AND ?
			GROUP BY id
		)
	`
	var avgMs sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, query, start.UTC(), end.UTC()).Scan(&avgMs); err != nil {
		return 0, err
	}
	if !avgMs.Valid {
		return 0, nil // No hay datos para calcular
	}
	return time.Duration(avgMs.Float64 * float64(time.Millisecond)), nil
}

// Verificación estática de la interfaz.
var _ jobDomain.JobAnalyticsRepository = (*JobAnalyticsRepo)(nil)
