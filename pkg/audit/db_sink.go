package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Store reads audit entries back. It never mutates the log.
type Store interface {
	Query(ctx context.Context, filter Filter) ([]*Entry, error)
}

// DBSink appends entries to the audit_log table and queries them
type DBSink struct {
	db *sql.DB
}

// NewDBSink creates a database-backed sink
func NewDBSink(db *sql.DB) (*DBSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBSink{db: db}, nil
}

var (
	_ Sink  = (*DBSink)(nil)
	_ Store = (*DBSink)(nil)
)

// Write inserts one entry and sets its ID
func (s *DBSink) Write(ctx context.Context, entry *Entry) error {
	var details interface{}
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
		details = string(raw)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audit_log (
			actor_id, organization_id, action, resource, resource_id,
			details, result, reason, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		entry.ActorID, entry.OrganizationID, entry.Action, entry.Resource, entry.ResourceID,
		details, string(entry.Result), entry.Reason, entry.RequestID, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching the filter, newest first
func (s *DBSink) Query(ctx context.Context, filter Filter) ([]*Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ActorID != nil {
		where = append(where, "actor_id = "+arg(*filter.ActorID))
	}
	if filter.OrganizationID != nil {
		where = append(where, "organization_id = "+arg(*filter.OrganizationID))
	}
	if filter.Action != "" {
		where = append(where, "action = "+arg(filter.Action))
	}
	if filter.Result != "" {
		where = append(where, "result = "+arg(string(filter.Result)))
	}
	if filter.StartTime != nil {
		where = append(where, "created_at >= "+arg(filter.StartTime.UTC()))
	}
	if filter.EndTime != nil {
		where = append(where, "created_at <= "+arg(filter.EndTime.UTC()))
	}
	if filter.BeforeID > 0 {
		where = append(where, "id < "+arg(filter.BeforeID))
	}

	query := `
		SELECT id, actor_id, organization_id, action, resource, resource_id,
		       details, result, reason, request_id, created_at
		FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	query += " ORDER BY id DESC LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		e := &Entry{}
		var actorID, orgID sql.NullInt64
		var details []byte
		var result string
		if err := rows.Scan(&e.ID, &actorID, &orgID, &e.Action, &e.Resource, &e.ResourceID,
			&details, &result, &e.Reason, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if actorID.Valid {
			v := actorID.Int64
			e.ActorID = &v
		}
		if orgID.Valid {
			v := orgID.Int64
			e.OrganizationID = &v
		}
		e.Result = Result(result)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}
	return entries, nil
}
