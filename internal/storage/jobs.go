package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ftmgraph/internal/etl"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned when no export job has the given id.
var ErrJobNotFound = errors.New("export job not found")

// JobStore implements persistence for export jobs and run logs.
type JobStore struct {
	db *DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

// ── ExportJob CRUD ─────────────────────────────────────────

const jobColumns = `id, name, source_type, source_config, transforms, options,
	trigger_type, trigger_config, enabled, last_run_at, last_status, last_error,
	created_at, updated_at`

type jobJSON struct {
	srcCfg, transforms, options []byte
}

func encodeJob(job *etl.ExportJob) (jobJSON, error) {
	var (
		enc jobJSON
		err error
	)
	if enc.srcCfg, err = json.Marshal(job.SourceCfg); err != nil {
		return enc, fmt.Errorf("encode source config: %w", err)
	}
	if enc.transforms, err = json.Marshal(job.Transforms); err != nil {
		return enc, fmt.Errorf("encode transforms: %w", err)
	}
	if enc.options, err = json.Marshal(job.Options); err != nil {
		return enc, fmt.Errorf("encode options: %w", err)
	}
	return enc, nil
}

func (s *JobStore) CreateJob(job *etl.ExportJob) error {
	now := time.Now().UTC()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.TriggerType == "" {
		job.TriggerType = etl.TriggerManual
	}

	enc, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = s.db.conn.Exec(
		`INSERT INTO export_jobs (id, name, source_type, source_config, transforms, options,
		 trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.SourceType, string(enc.srcCfg), string(enc.transforms), string(enc.options),
		job.TriggerType, job.TriggerConfig, job.Enabled,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *JobStore) GetJob(id string) (*etl.ExportJob, error) {
	row := s.db.conn.QueryRow(`SELECT `+jobColumns+` FROM export_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStore) UpdateJob(job *etl.ExportJob) error {
	job.UpdatedAt = time.Now().UTC()
	enc, err := encodeJob(job)
	if err != nil {
		return err
	}

	res, err := s.db.conn.Exec(
		`UPDATE export_jobs SET name=?, source_type=?, source_config=?, transforms=?, options=?,
		 trigger_type=?, trigger_config=?, enabled=?, updated_at=? WHERE id=?`,
		job.Name, job.SourceType, string(enc.srcCfg), string(enc.transforms), string(enc.options),
		job.TriggerType, job.TriggerConfig, job.Enabled,
		job.UpdatedAt, job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	return nil
}

func (s *JobStore) UpdateJobStatus(id, status, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.conn.Exec(
		`UPDATE export_jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	return err
}

func (s *JobStore) DeleteJob(id string) error {
	tx, err := s.db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Delete run logs first.
	if _, err := tx.Exec(`DELETE FROM export_run_logs WHERE job_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM export_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return tx.Commit()
}

func (s *JobStore) ListJobs() ([]etl.ExportJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM export_jobs ORDER BY created_at ASC`)
}

// ListEnabledTriggeredJobs returns enabled jobs with a schedule or file watch trigger.
func (s *JobStore) ListEnabledTriggeredJobs() ([]etl.ExportJob, error) {
	return s.queryJobs(
		`SELECT `+jobColumns+` FROM export_jobs
		 WHERE enabled = 1 AND trigger_type IN (?, ?)
		 ORDER BY created_at ASC`,
		etl.TriggerSchedule, etl.TriggerFileWatch,
	)
}

func (s *JobStore) queryJobs(query string, args ...any) ([]etl.ExportJob, error) {
	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []etl.ExportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*etl.ExportJob, error) {
	var (
		job                         etl.ExportJob
		srcCfg, transforms, options string
		lastRun                     sql.NullTime
	)
	if err := row.Scan(
		&job.ID, &job.Name, &job.SourceType, &srcCfg, &transforms, &options,
		&job.TriggerType, &job.TriggerConfig, &job.Enabled,
		&lastRun, &job.LastStatus, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		job.LastRunAt = lastRun.Time
	}
	if err := json.Unmarshal([]byte(srcCfg), &job.SourceCfg); err != nil {
		return nil, fmt.Errorf("job %s: decode source config: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(transforms), &job.Transforms); err != nil {
		return nil, fmt.Errorf("job %s: decode transforms: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(options), &job.Options); err != nil {
		return nil, fmt.Errorf("job %s: decode options: %w", job.ID, err)
	}
	return &job, nil
}

// ── Run Logs ───────────────────────────────────────────────

func (s *JobStore) CreateRunLog(log *etl.RunLog) error {
	log.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO export_run_logs (id, job_id, started_at, finished_at, status,
		 entities_read, entities_skipped, rows_written, labels, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.JobID, log.StartedAt, log.FinishedAt, log.Status,
		log.EntitiesRead, log.EntitiesSkipped, log.RowsWritten, log.Labels, log.Error,
	)
	return err
}

func (s *JobStore) ListRunLogs(jobID string, limit int) ([]etl.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT id, job_id, started_at, finished_at, status,
		 entities_read, entities_skipped, rows_written, labels, error
		 FROM export_run_logs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []etl.RunLog
	for rows.Next() {
		var l etl.RunLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.StartedAt, &l.FinishedAt, &l.Status,
			&l.EntitiesRead, &l.EntitiesSkipped, &l.RowsWritten, &l.Labels, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
