/*

Position engine: the shared base both rebalancer variants specialize. A
position owns nothing but its configuration; balances, capacity and debt are
re-derived from live adapter queries on every call. All mutating entry
points are mutually exclusive per position (reentrant calls fail
immediately) and atomic: every collaborator supporting snapshots is captured
on entry and restored when any sub-step fails.

*/

package position

import (
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/parkside-labs/apm/internal/logger"
	"github.com/parkside-labs/apm/internal/transfer"
	"github.com/parkside-labs/apm/internal/types"
	"github.com/parkside-labs/apm/internal/vault"
)

// Position is the operation surface shared by both variants. Rebalance and
// (on the leveraged variant) RepayDebt are permissionless; every other
// mutating operation requires the caller to be the stored manager.
type Position interface {
	ID() string
	Address() string
	Variant() types.Variant
	Initialized() bool
	Config() types.PositionConfig

	Initialize(cfg types.PositionConfig) error
	Deposit(caller string, amount sdkmath.Int) error
	Withdraw(caller string, amount sdkmath.Int) error
	WithdrawAll(caller string) error
	SetThreshold(caller string, value sdkmath.Int) error
	SetRecipient(caller, recipient string) error
	Sweep(caller string, denoms []string, amounts []sdkmath.Int) error

	RebalanceTrigger() (bool, error)
	Rebalance(caller string) error
	BalanceOfUnderlying() (sdkmath.Int, error)
}

// strategy is the variant-specific half of the engine.
type strategy interface {
	// validate runs variant-specific configuration checks at initialization.
	validate(cfg types.PositionConfig) error

	// approve grants the variant's collaborators their spending approvals.
	approve() error

	// afterSupply runs after a deposit's vault supply (the leveraged
	// variant pledges the freshly issued shares).
	afterSupply(shares sdkmath.Int) error

	// capacity is the variant's realizable top-up capacity right now.
	capacity() (sdkmath.Int, error)

	// triggerExtra reports any additional variant trigger condition.
	triggerExtra() (bool, error)

	// topUp moves amount of the target asset to the recipient.
	topUp(amount sdkmath.Int) error

	// withdrawTo removes amount of underlying value from the position and
	// sends it to the given account.
	withdrawTo(amount sdkmath.Int, to string) error

	// unwind releases everything held outside the vault before a full
	// withdrawal (the leveraged variant repays debt and pulls collateral).
	unwind() error
}

// base carries the state and shared operations of a position.
type base struct {
	id      string
	addr    string
	variant types.Variant

	bank     transfer.Bank
	vault    vault.Vault
	recorder types.Recorder
	log      zerolog.Logger
	strat    strategy

	// opMu serializes mutating entry points; TryLock failure is surfaced as
	// a reentrancy error rather than queueing.
	opMu  sync.Mutex
	cfgMu sync.RWMutex

	cfg         types.PositionConfig
	initialized bool

	snapshotters []types.Snapshotter
}

func newBase(id, addr string, variant types.Variant, bank transfer.Bank, v vault.Vault, recorder types.Recorder) *base {
	b := &base{
		id:       id,
		addr:     addr,
		variant:  variant,
		bank:     bank,
		vault:    v,
		recorder: recorder,
		log: logger.GetForComponent("position").With().
			Str("position_id", id).
			Str("variant", string(variant)).
			Logger(),
	}
	if s, ok := bank.(types.Snapshotter); ok {
		b.snapshotters = append(b.snapshotters, s)
	}
	if s, ok := v.(types.Snapshotter); ok {
		b.snapshotters = append(b.snapshotters, s)
	}
	return b
}

// addSnapshotter registers an additional rollback-capable collaborator.
func (b *base) addSnapshotter(s any) {
	if snap, ok := s.(types.Snapshotter); ok {
		b.snapshotters = append(b.snapshotters, snap)
	}
}

func (b *base) ID() string             { return b.id }
func (b *base) Address() string        { return b.addr }
func (b *base) Variant() types.Variant { return b.variant }

func (b *base) Initialized() bool {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.initialized
}

func (b *base) Config() types.PositionConfig {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.cfg
}

// enter acquires the per-position mutual-exclusion lock. A call arriving
// while another mutating operation is in flight fails immediately.
func (b *base) enter() error {
	if !b.opMu.TryLock() {
		return errorsmod.Wrapf(types.ErrReentrancy, "position %s", b.id)
	}
	return nil
}

func (b *base) exit() {
	b.opMu.Unlock()
}

// atomically snapshots every rollback-capable collaborator, runs fn, and
// restores all snapshots when fn fails, leaving no partial effect.
func (b *base) atomically(fn func() error) error {
	snaps := make([]any, len(b.snapshotters))
	for i, s := range b.snapshotters {
		snaps[i] = s.Snapshot()
	}
	if err := fn(); err != nil {
		for i, s := range b.snapshotters {
			s.Restore(snaps[i])
		}
		return err
	}
	return nil
}

func (b *base) requireManager(caller string) error {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	if !b.initialized || caller != b.cfg.Manager {
		return errorsmod.Wrapf(types.ErrUnauthorized, "caller %s", caller)
	}
	return nil
}

func (b *base) requireInitialized() error {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	if !b.initialized {
		return errorsmod.Wrap(types.ErrInvalidArgument, "position not initialized")
	}
	return nil
}

func (b *base) emit(ev types.Event) {
	ev.PositionID = b.id
	ev.Timestamp = time.Now()
	if ev.Amount.IsNil() {
		ev.Amount = sdkmath.ZeroInt()
	}
	if ev.Requested.IsNil() {
		ev.Requested = sdkmath.ZeroInt()
	}
	if b.recorder != nil {
		b.recorder.Record(ev)
	}
}

// Initialize performs the position's one-time setup: configuration
// validation, target-asset derivation from the vault, and the unlimited
// spending approvals that let later operations skip per-call approval.
func (b *base) Initialize(cfg types.PositionConfig) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.exit()

	b.cfgMu.RLock()
	initialized := b.initialized
	b.cfgMu.RUnlock()
	if initialized {
		return errorsmod.Wrapf(types.ErrAlreadyInitialized, "position %s", b.id)
	}

	if cfg.Manager == "" {
		return errorsmod.Wrap(types.ErrInvalidArgument, "manager must be set")
	}
	if cfg.Recipient == "" {
		return errorsmod.Wrap(types.ErrInvalidArgument, "recipient must be set")
	}
	if cfg.Threshold.IsNil() || !cfg.Threshold.IsPositive() {
		return errorsmod.Wrap(types.ErrInvalidArgument, "threshold must be positive")
	}
	if err := b.strat.validate(cfg); err != nil {
		return err
	}

	asset, err := b.vault.UnderlyingAsset()
	if err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	cfg.TargetAsset = asset

	err = b.atomically(func() error {
		if err := b.bank.Approve(b.addr, b.vault.Address(), asset); err != nil {
			return errorsmod.Wrap(types.ErrExternalCall, err.Error())
		}
		return b.strat.approve()
	})
	if err != nil {
		return err
	}

	b.cfgMu.Lock()
	b.cfg = cfg
	b.initialized = true
	b.cfgMu.Unlock()

	b.log.Info().
		Str("manager", cfg.Manager).
		Str("recipient", cfg.Recipient).
		Str("threshold", cfg.Threshold.String()).
		Str("target_asset", cfg.TargetAsset).
		Msg("Position initialized")
	return nil
}

// Deposit pulls amount of the target asset from the caller and supplies it
// to the vault, leaving no residual balance at the position.
func (b *base) Deposit(caller string, amount sdkmath.Int) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.exit()

	if err := b.requireInitialized(); err != nil {
		return err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrap(types.ErrInvalidArgument, "deposit amount must be positive")
	}
	cfg := b.Config()

	err := b.atomically(func() error {
		if err := b.bank.Pull(cfg.TargetAsset, caller, b.addr, amount); err != nil {
			return errorsmod.Wrap(types.ErrExternalCall, err.Error())
		}
		shares, err := b.vault.Supply(b.addr, amount)
		if err != nil {
			return errorsmod.Wrap(types.ErrExternalCall, err.Error())
		}
		return b.strat.afterSupply(shares)
	})
	if err != nil {
		return err
	}

	b.emit(types.Event{Kind: types.EventDeposit, Actor: caller, Amount: amount})
	b.log.Info().Str("depositor", caller).Str("amount", amount.String()).Msg("Deposit supplied to vault")
	return nil
}

// Withdraw removes amount of underlying value and sends it to the manager.
func (b *base) Withdraw(caller string, amount sdkmath.Int) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.exit()

	if err := b.requireManager(caller); err != nil {
		return err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrap(types.ErrInvalidArgument, "withdraw amount must be positive")
	}
	shares, err := b.vault.ShareBalance(b.addr)
	if err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	if b.leveragedCollateral().Add(shares).IsZero() {
		return errorsmod.Wrap(types.ErrInvalidArgument, "position holds no vault balance")
	}
	cfg := b.Config()

	err = b.atomically(func() error {
		return b.strat.withdrawTo(amount, cfg.Manager)
	})
	if err != nil {
		return err
	}

	b.emit(types.Event{Kind: types.EventWithdraw, Actor: caller, Amount: amount, Recipient: cfg.Manager})
	b.log.Info().Str("amount", amount.String()).Msg("Withdrawal sent to manager")
	return nil
}

// WithdrawAll fully unwinds the position and sends the proceeds to the
// manager. A no-op transfer of zero on an already-empty position.
func (b *base) WithdrawAll(caller string) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.exit()

	if err := b.requireManager(caller); err != nil {
		return err
	}
	cfg := b.Config()

	moved := sdkmath.ZeroInt()
	err := b.atomically(func() error {
		if err := b.strat.unwind(); err != nil {
			return err
		}
		shares, err := b.vault.ShareBalance(b.addr)
		if err != nil {
			return errorsmod.Wrap(types.ErrExternalCall, err.Error())
		}
		if shares.IsPositive() {
			if _, err := b.vault.Redeem(shares, b.addr, b.addr); err != nil {
				return errorsmod.Wrap(types.ErrExternalCall, err.Error())
			}
		}
		bal, err := b.bank.BalanceOf(b.addr, cfg.TargetAsset)
		if err != nil {
			return errorsmod.Wrap(types.ErrExternalCall, err.Error())
		}
		if bal.IsPositive() {
			if err := b.bank.Send(cfg.TargetAsset, b.addr, cfg.Manager, bal); err != nil {
				return errorsmod.Wrap(types.ErrExternalCall, err.Error())
			}
		}
		moved = bal
		return nil
	})
	if err != nil {
		return err
	}

	b.emit(types.Event{Kind: types.EventWithdrawAll, Actor: caller, Amount: moved, Recipient: cfg.Manager})
	b.log.Info().Str("amount", moved.String()).Msg("Position fully withdrawn")
	return nil
}

// SetThreshold replaces the top-up threshold.
func (b *base) SetThreshold(caller string, value sdkmath.Int) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.exit()

	if err := b.requireManager(caller); err != nil {
		return err
	}
	if value.IsNil() || !value.IsPositive() {
		return errorsmod.Wrap(types.ErrInvalidArgument, "threshold must be positive")
	}

	b.cfgMu.Lock()
	b.cfg.Threshold = value
	b.cfgMu.Unlock()

	b.emit(types.Event{Kind: types.EventThresholdUpdated, Actor: caller, Amount: value})
	return nil
}

// SetRecipient replaces the monitored recipient account.
func (b *base) SetRecipient(caller, recipient string) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.exit()

	if err := b.requireManager(caller); err != nil {
		return err
	}
	if recipient == "" {
		return errorsmod.Wrap(types.ErrInvalidArgument, "recipient must be set")
	}

	b.cfgMu.Lock()
	b.cfg.Recipient = recipient
	b.cfgMu.Unlock()

	b.emit(types.Event{Kind: types.EventRecipientUpdated, Actor: caller, Recipient: recipient})
	return nil
}

// Sweep rescues tokens (empty denom selects the native currency) sent to
// the position by mistake, transferring the caller-specified amounts to the
// manager. One failing transfer aborts the entire batch.
func (b *base) Sweep(caller string, denoms []string, amounts []sdkmath.Int) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.exit()

	if err := b.requireManager(caller); err != nil {
		return err
	}
	if len(denoms) != len(amounts) {
		return errorsmod.Wrapf(types.ErrInvalidArgument, "%d tokens but %d amounts", len(denoms), len(amounts))
	}
	cfg := b.Config()

	return b.atomically(func() error {
		for i, denom := range denoms {
			var err error
			if denom == "" {
				err = b.bank.SendNative(b.addr, cfg.Manager, amounts[i])
			} else {
				err = b.bank.Send(denom, b.addr, cfg.Manager, amounts[i])
			}
			if err != nil {
				return errorsmod.Wrap(types.ErrExternalCall, err.Error())
			}
		}
		return nil
	})
}

// RebalanceTrigger reports whether a rebalance would act right now: the
// recipient is below threshold, the position has realizable capacity, and
// any variant-specific condition holds. Read-only.
func (b *base) RebalanceTrigger() (bool, error) {
	ok, _, _, err := b.evaluateTrigger()
	return ok, err
}

// evaluateTrigger returns the trigger verdict along with the shortfall and
// capacity it was computed from.
func (b *base) evaluateTrigger() (bool, sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	b.cfgMu.RLock()
	initialized := b.initialized
	cfg := b.cfg
	b.cfgMu.RUnlock()
	if !initialized {
		return false, zero, zero, nil
	}

	balance, err := b.bank.BalanceOf(cfg.Recipient, cfg.TargetAsset)
	if err != nil {
		return false, zero, zero, errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	if balance.GTE(cfg.Threshold) {
		return false, zero, zero, nil
	}
	needed := cfg.Threshold.Sub(balance)

	capacity, err := b.strat.capacity()
	if err != nil {
		return false, zero, zero, errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	if !capacity.IsPositive() {
		return false, needed, zero, nil
	}

	extra, err := b.strat.triggerExtra()
	if err != nil {
		return false, needed, capacity, errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	return extra, needed, capacity, nil
}

// Rebalance closes the gap between the recipient's balance and the
// threshold, up to the position's capacity. Permissionless.
func (b *base) Rebalance(caller string) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.exit()

	ok, needed, capacity, err := b.evaluateTrigger()
	if err != nil {
		return err
	}
	if !ok {
		return errorsmod.Wrapf(types.ErrTriggerNotMet, "position %s", b.id)
	}

	amount := sdkmath.MinInt(needed, capacity)
	err = b.atomically(func() error {
		return b.strat.topUp(amount)
	})
	if err != nil {
		return err
	}

	cfg := b.Config()
	b.emit(types.Event{
		Kind:      types.EventRebalance,
		Actor:     caller,
		Amount:    amount,
		Requested: needed,
		Recipient: cfg.Recipient,
	})
	b.log.Info().
		Str("needed", needed.String()).
		Str("transferred", amount.String()).
		Str("recipient", cfg.Recipient).
		Msg("Rebalance executed")
	return nil
}

// BalanceOfUnderlying values the position's vault holdings, loose and
// pledged shares alike, in units of the target asset.
func (b *base) BalanceOfUnderlying() (sdkmath.Int, error) {
	shares, err := b.vault.ShareBalance(b.addr)
	if err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	total := shares.Add(b.leveragedCollateral())
	assets, err := b.vault.ConvertToAssets(total)
	if err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	return assets, nil
}

// leveragedCollateral is overridden behavior for the leveraged variant via
// the strategy; the base sees only loose vault shares.
func (b *base) leveragedCollateral() sdkmath.Int {
	type collateralized interface {
		pledgedCollateral() sdkmath.Int
	}
	if c, ok := b.strat.(collateralized); ok {
		return c.pledgedCollateral()
	}
	return sdkmath.ZeroInt()
}
