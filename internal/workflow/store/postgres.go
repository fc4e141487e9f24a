package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"gatekeeper/internal/workflow/models"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

// PostgresStore persists workflows and decisions in PostgreSQL.
// Bound to a transaction (NewPostgresTx), FindByID takes a row lock.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to tx.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const pgForeignKeyViolation = "23503"

const workflowColumns = `
	id, operation_id, operation_type, security_level, requested_by,
	required_approvers, current_approvers, require_all_approvers, status,
	metadata, cancel_reason, expires_at, created_at, updated_at,
	completed_at, last_reminder_at`

func (s *PostgresStore) Create(ctx context.Context, w *models.Workflow) error {
	query := `
		INSERT INTO approval_workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.execer().ExecContext(ctx, query,
		uuid.UUID(w.ID),
		w.OperationID,
		w.OperationType,
		string(w.SecurityLevel),
		w.RequestedBy,
		pq.Array(w.RequiredApprovers),
		pq.Array(nonNil(w.CurrentApprovers)),
		w.RequireAllApprovers,
		string(w.Status),
		nullJSON(w.Metadata),
		w.CancelReason,
		w.ExpiresAt,
		w.CreatedAt,
		w.UpdatedAt,
		w.CompletedAt,
		w.LastReminderAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return expectOneRow(res, sentinel.ErrConflict)
}

func (s *PostgresStore) FindByID(ctx context.Context, workflowID id.WorkflowID) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE id = $1`
	if s.tx != nil {
		query += ` FOR UPDATE`
	}
	w, err := scanWorkflow(s.execer().QueryRowContext(ctx, query, uuid.UUID(workflowID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find workflow: %w", err)
	}
	return w, nil
}

// Update is guarded by status = 'pending'; a row that already left pending
// is reported as a conflict.
func (s *PostgresStore) Update(ctx context.Context, w *models.Workflow) error {
	query := `
		UPDATE approval_workflows
		SET current_approvers = $2, status = $3, cancel_reason = $4, updated_at = $5,
		    completed_at = $6, last_reminder_at = $7
		WHERE id = $1 AND status = 'pending'
	`
	res, err := s.execer().ExecContext(ctx, query,
		uuid.UUID(w.ID),
		pq.Array(nonNil(w.CurrentApprovers)),
		string(w.Status),
		w.CancelReason,
		w.UpdatedAt,
		w.CompletedAt,
		w.LastReminderAt,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workflow rows: %w", err)
	}
	if rows == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, w.ID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

func (s *PostgresStore) SaveDecision(ctx context.Context, d *models.Decision) error {
	query := `
		INSERT INTO approval_decisions (workflow_id, approver_id, decision, conditions, feedback, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workflow_id, approver_id) DO UPDATE
		SET decision = EXCLUDED.decision, conditions = EXCLUDED.conditions,
		    feedback = EXCLUDED.feedback, decided_at = EXCLUDED.decided_at
	`
	_, err := s.execer().ExecContext(ctx, query,
		uuid.UUID(d.WorkflowID),
		d.ApproverID,
		string(d.Verdict),
		pq.Array(nonNil(d.Conditions)),
		d.Feedback,
		d.DecidedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, workflowID id.WorkflowID) ([]models.Decision, error) {
	query := `
		SELECT workflow_id, approver_id, decision, conditions, feedback, decided_at
		FROM approval_decisions
		WHERE workflow_id = $1
		ORDER BY decided_at, approver_id
	`
	rows, err := s.execer().QueryContext(ctx, query, uuid.UUID(workflowID))
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	decisions := []models.Decision{}
	for rows.Next() {
		var (
			d          models.Decision
			wfID       uuid.UUID
			verdict    string
			conditions pq.StringArray
		)
		if err := rows.Scan(&wfID, &d.ApproverID, &verdict, &conditions, &d.Feedback, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.WorkflowID = id.WorkflowID(wfID)
		d.Verdict = models.Verdict(verdict)
		if len(conditions) > 0 {
			d.Conditions = []string(conditions)
		}
		d.DecidedAt = d.DecidedAt.UTC()
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return decisions, nil
}

func (s *PostgresStore) ListByParticipant(ctx context.Context, userID string, statuses []models.Status) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE (requested_by = $1 OR $1 = ANY(required_approvers))
	`
	args := []any{userID}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(statusStrings(statuses)))
	}
	query += ` ORDER BY created_at DESC`
	return s.queryWorkflows(ctx, query, args...)
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`
	return s.queryWorkflows(ctx, query, now, limit)
}

func (s *PostgresStore) ListReminderDue(ctx context.Context, now, cutoff time.Time, limit int) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE status = 'pending' AND expires_at > $1
		  AND COALESCE(last_reminder_at, created_at) <= $2
		ORDER BY expires_at
		LIMIT $3
	`
	return s.queryWorkflows(ctx, query, now, cutoff, limit)
}

func (s *PostgresStore) queryWorkflows(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return workflows, nil
}

type workflowRow interface {
	Scan(dest ...any) error
}

func scanWorkflow(row workflowRow) (*models.Workflow, error) {
	var (
		w              models.Workflow
		wfID           uuid.UUID
		securityLevel  string
		status         string
		required       pq.StringArray
		current        pq.StringArray
		metadata       []byte
		completedAt    sql.NullTime
		lastReminderAt sql.NullTime
	)
	err := row.Scan(
		&wfID, &w.OperationID, &w.OperationType, &securityLevel, &w.RequestedBy,
		&required, &current, &w.RequireAllApprovers, &status,
		&metadata, &w.CancelReason, &w.ExpiresAt, &w.CreatedAt, &w.UpdatedAt,
		&completedAt, &lastReminderAt,
	)
	if err != nil {
		return nil, err
	}
	w.ID = id.WorkflowID(wfID)
	w.SecurityLevel = models.SecurityLevel(securityLevel)
	w.Status = models.Status(status)
	w.RequiredApprovers = []string(required)
	w.CurrentApprovers = nonNil([]string(current))
	if len(metadata) > 0 {
		w.Metadata = json.RawMessage(metadata)
	}
	w.ExpiresAt = w.ExpiresAt.UTC()
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		w.CompletedAt = &t
	}
	if lastReminderAt.Valid {
		t := lastReminderAt.Time.UTC()
		w.LastReminderAt = &t
	}
	return &w, nil
}

func expectOneRow(res sql.Result, none error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return none
	}
	return nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}
