package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/andino-labs/andino/internal/platform/database"
)

// Store handles audit event persistence.
type Store struct{}

// NewStore creates an audit Store.
func NewStore() *Store {
	return &Store{}
}

// InsertBatch writes a batch of events to the database.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	_, err = db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("inserting audit events: %w", err)
	}
	return nil
}

// buildBatchInsert constructs a multi-row INSERT statement.
func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(company_id, actor_guard, actor_id, action, resource_type, resource_id, metadata, ip)"
	var placeholders []string
	var args []any

	for i, e := range events {
		base := i * 8
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))

		var metaJSON []byte
		var err error
		if e.Metadata != nil {
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}

		args = append(args, e.CompanyID, e.ActorGuard, e.ActorID, e.Action,
			e.ResourceType, e.ResourceID, metaJSON, e.IP)
	}

	sql := fmt.Sprintf("INSERT INTO audit_events %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}

// ListParams defines filters for querying audit events.
type ListParams struct {
	CompanyID *int64
	Action    string
	Guard     string
	ActorID   *int64
	After     *time.Time
	Before    *time.Time
	Limit     int
}

// StoredEvent is an audit event as read back from the database.
type StoredEvent struct {
	ID           int64           `json:"id"`
	CompanyID    *int64          `json:"company_id"`
	ActorGuard   *string         `json:"actor_guard"`
	ActorID      *int64          `json:"actor_id"`
	Action       string          `json:"action"`
	ResourceType *string         `json:"resource_type"`
	ResourceID   *int64          `json:"resource_id"`
	Metadata     json.RawMessage `json:"metadata"`
	IP           *string         `json:"ip"`
	CreatedAt    time.Time       `json:"created_at"`
}

// List returns matching events, newest first.
func (s *Store) List(ctx context.Context, db database.Querier, p ListParams) ([]StoredEvent, error) {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	sql, args := buildListQuery(p)

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.ActorGuard, &e.ActorID, &e.Action,
			&e.ResourceType, &e.ResourceID, &e.Metadata, &e.IP, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// buildListQuery constructs a parameterized SELECT for audit events.
func buildListQuery(p ListParams) (string, []any) {
	var conditions []string
	var args []any
	argN := 1

	add := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argN))
		args = append(args, val)
		argN++
	}

	conditions = append(conditions, "TRUE")
	if p.CompanyID != nil {
		add("company_id = $%d", *p.CompanyID)
	}
	if p.Action != "" {
		add("action = $%d", p.Action)
	}
	if p.Guard != "" {
		add("actor_guard = $%d", p.Guard)
	}
	if p.ActorID != nil {
		add("actor_id = $%d", *p.ActorID)
	}
	if p.After != nil {
		add("created_at > $%d", *p.After)
	}
	if p.Before != nil {
		add("created_at < $%d", *p.Before)
	}

	sql := fmt.Sprintf(
		`SELECT id, company_id, actor_guard, actor_id, action, resource_type, resource_id, metadata, ip, created_at
		FROM audit_events
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d`,
		strings.Join(conditions, " AND "), argN,
	)
	args = append(args, p.Limit)

	return sql, args
}
