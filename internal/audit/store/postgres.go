package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gatekeeper/internal/audit/models"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

// PostgresStore persists audit events in the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `
	id, event_type, user_id, agent_id, resource_type, resource_id, details,
	risk_level, ip_address, user_agent, timestamp, archived, archived_at`

// Append inserts e. An event id that was already recorded reports sentinel.ErrConflict.
func (s *PostgresStore) Append(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO audit_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(e.ID),
		string(e.EventType),
		e.UserID,
		e.AgentID,
		e.ResourceType,
		e.ResourceID,
		nullJSON(e.Details),
		string(e.RiskLevel),
		e.IPAddress,
		e.UserAgent,
		e.Timestamp,
		e.Archived,
		e.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, f models.Filter) ([]*models.Event, int, error) {
	where, args := buildWhere(&f)

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_events` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	query := `SELECT ` + eventColumns + ` FROM audit_events` + where + ` ORDER BY timestamp DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}
	events, err := s.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Get returns the event with the given id, or sentinel.ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM audit_events WHERE id = $1`
	events, err := s.queryEvents(ctx, query, uuid.UUID(eventID))
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return events[0], nil
}

// ListRange returns every event in [start, end), archived or not, oldest first.
func (s *PostgresStore) ListRange(ctx context.Context, start, end time.Time) ([]*models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM audit_events
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp, id
	`
	return s.queryEvents(ctx, query, start, end)
}

func (s *PostgresStore) MarkArchived(ctx context.Context, olderThan, at time.Time) (int, error) {
	query := `
		UPDATE audit_events
		SET archived = TRUE, archived_at = $2
		WHERE archived = FALSE AND timestamp < $1
	`
	res, err := s.db.ExecContext(ctx, query, olderThan, at)
	if err != nil {
		return 0, fmt.Errorf("archive audit events: %w", err)
	}
	return affected(res)
}

func (s *PostgresStore) DeleteArchived(ctx context.Context, olderThan time.Time) (int, error) {
	query := `DELETE FROM audit_events WHERE archived = TRUE AND timestamp < $1`
	res, err := s.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete archived audit events: %w", err)
	}
	return affected(res)
}

func buildWhere(f *models.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if !f.IncludeArchived {
		conds = append(conds, "archived = FALSE")
	}
	if len(f.EventTypes) > 0 {
		types := make([]string, len(f.EventTypes))
		for i, t := range f.EventTypes {
			types[i] = string(t)
		}
		add("event_type = ANY(?)", pq.Array(types))
	}
	if len(f.RiskLevels) > 0 {
		levels := make([]string, len(f.RiskLevels))
		for i, r := range f.RiskLevels {
			levels[i] = string(r)
		}
		add("risk_level = ANY(?)", pq.Array(levels))
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.AgentID != "" {
		add("agent_id = ?", f.AgentID)
	}
	if f.ResourceType != "" {
		add("resource_type = ?", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = ?", f.ResourceID)
	}
	if f.Start != nil {
		add("timestamp >= ?", *f.Start)
	}
	if f.End != nil {
		add("timestamp < ?", *f.End)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) queryEvents(ctx context.Context, query string, args ...any) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (*models.Event, error) {
	var (
		e          models.Event
		eventID    uuid.UUID
		eventType  string
		risk       string
		details    []byte
		archivedAt sql.NullTime
	)
	err := rows.Scan(
		&eventID, &eventType, &e.UserID, &e.AgentID, &e.ResourceType, &e.ResourceID, &details,
		&risk, &e.IPAddress, &e.UserAgent, &e.Timestamp, &e.Archived, &archivedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ID = id.EventID(eventID)
	e.EventType = models.EventType(eventType)
	e.RiskLevel = models.RiskLevel(risk)
	if len(details) > 0 {
		e.Details = json.RawMessage(details)
	}
	e.Timestamp = e.Timestamp.UTC()
	if archivedAt.Valid {
		t := archivedAt.Time.UTC()
		e.ArchivedAt = &t
	}
	return &e, nil
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
