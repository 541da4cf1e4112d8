// ./internal/state/event_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/parkside-labs/apm/internal/types"
)

// EventRecorder journals position events to the position_events table. Write
// failures are logged and swallowed so a journaling outage never aborts the
// operation that produced the event.
type EventRecorder struct{}

// NewEventRecorder returns a recorder over the global database pool.
func NewEventRecorder() *EventRecorder { return &EventRecorder{} }

// Record inserts one event row.
func (r *EventRecorder) Record(ev types.Event) {
	if DB == nil {
		log.Warn().Str("kind", string(ev.Kind)).Msg("Database not initialized, dropping event")
		return
	}

	amount := "0"
	if !ev.Amount.IsNil() {
		amount = ev.Amount.String()
	}
	requested := "0"
	if !ev.Requested.IsNil() {
		requested = ev.Requested.String()
	}

	_, err := DB.Exec(`
		INSERT INTO position_events (position_id, kind, actor, amount, requested, recipient, event_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`, ev.PositionID, string(ev.Kind), ev.Actor, amount, requested, ev.Recipient, ev.Timestamp)
	if err != nil {
		log.Error().Err(err).
			Str("position_id", ev.PositionID).
			Str("kind", string(ev.Kind)).
			Msg("Failed to journal position event")
	}
}

var _ types.Recorder = (*EventRecorder)(nil)

// LoadEvents returns the most recent events, newest first, optionally
// filtered to one position. limit caps the result size.
func LoadEvents(positionID string, limit int) ([]types.Event, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if positionID != "" {
		rows, err = DB.Query(`
			SELECT position_id, kind, actor, amount, requested, recipient, event_timestamp
			FROM position_events
			WHERE position_id = $1
			ORDER BY event_timestamp DESC
			LIMIT $2;
		`, positionID, limit)
	} else {
		rows, err = DB.Query(`
			SELECT position_id, kind, actor, amount, requested, recipient, event_timestamp
			FROM position_events
			ORDER BY event_timestamp DESC
			LIMIT $1;
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var ev types.Event
		var kind, amount, requested string
		var recipient sql.NullString
		var ts time.Time
		if err := rows.Scan(&ev.PositionID, &kind, &ev.Actor, &amount, &requested, &recipient, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.Kind = types.EventKind(kind)
		amt, ok := sdkmath.NewIntFromString(amount)
		if !ok {
			return nil, fmt.Errorf("malformed event amount %q", amount)
		}
		ev.Amount = amt
		req, ok := sdkmath.NewIntFromString(requested)
		if !ok {
			return nil, fmt.Errorf("malformed event requested amount %q", requested)
		}
		ev.Requested = req
		if recipient.Valid {
			ev.Recipient = recipient.String
		}
		ev.Timestamp = ts
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating event rows: %w", err)
	}
	return events, nil
}
