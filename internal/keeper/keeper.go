package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parkside-labs/apm/internal/logger"
	"github.com/parkside-labs/apm/internal/metrics"
	"github.com/parkside-labs/apm/internal/position"
	"github.com/parkside-labs/apm/internal/types"
)

// Keeper drives permissionless rebalances across the position registry on a
// fixed interval. Rebalancing is idempotent and open to anyone, so the
// keeper holds no special authority; it is just the account that pays the
// gas.
type Keeper struct {
	logger  zerolog.Logger
	factory *position.Factory
	account string

	cycleCount int
}

// Config holds the configuration for creating a new Keeper instance.
type Config struct {
	Factory *position.Factory
	Account string
}

// NewKeeper creates a keeper with dependency injection.
func NewKeeper(cfg Config) (*Keeper, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("position factory cannot be nil")
	}
	if cfg.Account == "" {
		return nil, fmt.Errorf("keeper account cannot be empty")
	}
	return &Keeper{
		logger:  logger.GetForComponent("keeper"),
		factory: cfg.Factory,
		account: cfg.Account,
	}, nil
}

// RunLoop starts the main keeper loop with the specified interval.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().
		Dur("interval", interval).
		Msg("Starting keeper main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	k.cycleCount++
	k.logger.Info().Int("cycle", k.cycleCount).Msg("Initiating keeper cycle")
	k.RunCycle(ctx)
	k.logger.Info().Int("cycle", k.cycleCount).Msg("Keeper cycle completed")

	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.cycleCount++
			k.logger.Info().Int("cycle", k.cycleCount).Msg("Initiating keeper cycle")
			k.RunCycle(ctx)
			k.logger.Info().Int("cycle", k.cycleCount).Msg("Keeper cycle completed")
		}
	}
}

// RunCycle walks every registered position once, rebalancing those whose
// trigger fires. A failing position is logged and skipped; it never stalls
// the rest of the cycle and is retried naturally on the next tick.
func (k *Keeper) RunCycle(ctx context.Context) {
	cycleStartTime := time.Now()

	// Generate unique cycle ID for tracing logs across the entire cycle
	cycleID := uuid.New().String()
	cycleLogger := k.logger.With().Str("cycle_id", cycleID).Logger()

	positions := k.factory.List()
	metrics.PositionsTracked.Set(float64(len(positions)))
	cycleLogger.Info().Int("positions", len(positions)).Msg("--- Starting keeper cycle ---")

	for _, pos := range positions {
		if ctx.Err() != nil {
			cycleLogger.Warn().Msg("Cycle interrupted by context cancellation")
			return
		}
		posLogger := cycleLogger.With().
			Str("position_id", pos.ID()).
			Str("variant", string(pos.Variant())).
			Logger()

		triggered, err := pos.RebalanceTrigger()
		if err != nil {
			posLogger.Error().Err(err).Msg("Trigger check failed, skipping position")
			metrics.RebalanceFailures.WithLabelValues(string(pos.Variant())).Inc()
			continue
		}
		if !triggered {
			posLogger.Debug().Msg("Trigger not met")
			continue
		}

		posLogger.Info().Msg("Trigger met, executing rebalance")
		if err := pos.Rebalance(k.account); err != nil {
			// A competing keeper may have rebalanced first; that is a
			// success from the recipient's point of view.
			if types.ErrTriggerNotMet.Is(err) {
				posLogger.Info().Msg("Trigger already satisfied by another actor")
				continue
			}
			posLogger.Error().Err(err).Msg("Rebalance failed")
			metrics.RebalanceFailures.WithLabelValues(string(pos.Variant())).Inc()
			continue
		}
		metrics.RebalancesTotal.WithLabelValues(string(pos.Variant())).Inc()
	}

	metrics.KeeperCycles.Inc()
	metrics.KeeperCycleDuration.Observe(time.Since(cycleStartTime).Seconds())
	cycleLogger.Info().
		Dur("duration", time.Since(cycleStartTime)).
		Msg("--- Keeper cycle finished ---")
}
