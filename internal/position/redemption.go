package position

import (
	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/parkside-labs/apm/internal/transfer"
	"github.com/parkside-labs/apm/internal/types"
	"github.com/parkside-labs/apm/internal/vault"
)

// Redemption tops the recipient up by redeeming vault principal. Capacity is
// whatever the vault can pay out for this position right now, so partial
// vault liquidity yields a partial top-up rather than a failure.
type Redemption struct {
	*base
}

// NewRedemption wires a redemption-variant position.
func NewRedemption(id, addr string, bank transfer.Bank, v vault.Vault, recorder types.Recorder) *Redemption {
	r := &Redemption{}
	r.base = newBase(id, addr, types.VariantRedemption, bank, v, recorder)
	r.base.strat = r
	return r
}

func (r *Redemption) validate(cfg types.PositionConfig) error {
	if !cfg.MaxBorrowingRate.IsNil() && !cfg.MaxBorrowingRate.IsZero() {
		return errorsmod.Wrap(types.ErrInvalidArgument, "borrowing rate ceiling does not apply to the redemption variant")
	}
	return nil
}

// approve needs nothing beyond the base's vault approval.
func (r *Redemption) approve() error { return nil }

// afterSupply leaves the freshly issued shares loose at the position.
func (r *Redemption) afterSupply(shares sdkmath.Int) error { return nil }

func (r *Redemption) capacity() (sdkmath.Int, error) {
	return r.vault.MaxWithdraw(r.addr)
}

func (r *Redemption) triggerExtra() (bool, error) { return true, nil }

func (r *Redemption) topUp(amount sdkmath.Int) error {
	if _, err := r.vault.Withdraw(amount, r.Config().Recipient, r.addr); err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	return nil
}

func (r *Redemption) withdrawTo(amount sdkmath.Int, to string) error {
	if _, err := r.vault.Withdraw(amount, to, r.addr); err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	return nil
}

// unwind is a no-op: the base redeems the loose share balance itself.
func (r *Redemption) unwind() error { return nil }

var _ Position = (*Redemption)(nil)
