// ./internal/state/position_store.go
package state

import (
	"database/sql"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/parkside-labs/apm/internal/types"
)

// PositionStore persists position records in the positions table. It
// satisfies the factory's Store interface.
type PositionStore struct{}

// NewPositionStore returns a store over the global database pool.
func NewPositionStore() *PositionStore { return &PositionStore{} }

// SavePosition upserts a position record keyed by position_id.
func (s *PositionStore) SavePosition(rec types.PositionRecord) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	var maxRate sql.NullString
	if !rec.Config.MaxBorrowingRate.IsNil() {
		maxRate = sql.NullString{String: rec.Config.MaxBorrowingRate.String(), Valid: true}
	}

	query := `
		INSERT INTO positions (position_id, variant, manager, recipient, threshold, target_asset, max_borrowing_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (position_id) DO UPDATE SET
			manager = EXCLUDED.manager,
			recipient = EXCLUDED.recipient,
			threshold = EXCLUDED.threshold,
			target_asset = EXCLUDED.target_asset,
			max_borrowing_rate = EXCLUDED.max_borrowing_rate,
			updated_at = CURRENT_TIMESTAMP;
	`
	_, err := DB.Exec(query,
		rec.ID, string(rec.Variant), rec.Config.Manager, rec.Config.Recipient,
		rec.Config.Threshold.String(), rec.Config.TargetAsset, maxRate,
	)
	if err != nil {
		return fmt.Errorf("failed to save position %s: %w", rec.ID, err)
	}

	log.Debug().Str("position_id", rec.ID).Msg("Position record saved to database")
	return nil
}

// LoadPositions returns every persisted position record.
func (s *PositionStore) LoadPositions() ([]types.PositionRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`
		SELECT position_id, variant, manager, recipient, threshold, target_asset, max_borrowing_rate
		FROM positions
		ORDER BY created_at ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var records []types.PositionRecord
	for rows.Next() {
		var rec types.PositionRecord
		var variant, threshold string
		var maxRate sql.NullString
		if err := rows.Scan(&rec.ID, &variant, &rec.Config.Manager, &rec.Config.Recipient,
			&threshold, &rec.Config.TargetAsset, &maxRate); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		rec.Variant = types.Variant(variant)
		thr, ok := sdkmath.NewIntFromString(threshold)
		if !ok {
			return nil, fmt.Errorf("malformed threshold %q for position %s", threshold, rec.ID)
		}
		rec.Config.Threshold = thr
		if maxRate.Valid {
			rate, err := sdkmath.LegacyNewDecFromStr(maxRate.String)
			if err != nil {
				return nil, fmt.Errorf("malformed max borrowing rate for position %s: %w", rec.ID, err)
			}
			rec.Config.MaxBorrowingRate = rate
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating position rows: %w", err)
	}
	return records, nil
}
