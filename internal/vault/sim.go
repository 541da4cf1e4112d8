/*

Deterministic in-process vault used in sim mode and by the test suite.
Share accounting follows the standard tokenized-vault model: share price is
totalAssets/totalShares, yield accrues by crediting the custody account, and
withdrawable capacity is capped by the vault's non-deployed balance.

*/

package vault

import (
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/parkside-labs/apm/internal/ledger"
)

// Sim is a simulated yield vault backed by the in-process ledger. Its share
// token is an ordinary ledger denom so shares can be approved and pulled by
// other collaborators (e.g. pledged to a lending pool).
type Sim struct {
	mu         sync.Mutex
	lg         *ledger.Ledger
	account    string // custody account holding the underlying
	asset      string
	shareDenom string

	totalShares sdkmath.Int
	deployed    sdkmath.Int // assets invested and not currently withdrawable
}

type simSnapshot struct {
	totalShares sdkmath.Int
	deployed    sdkmath.Int
}

// NewSim creates a simulated vault over the given ledger.
func NewSim(lg *ledger.Ledger, account, asset, shareDenom string) *Sim {
	return &Sim{
		lg:          lg,
		account:     account,
		asset:       asset,
		shareDenom:  shareDenom,
		totalShares: sdkmath.ZeroInt(),
		deployed:    sdkmath.ZeroInt(),
	}
}

// Address returns the vault's custody account.
func (v *Sim) Address() string { return v.account }

func (v *Sim) UnderlyingAsset() (string, error) { return v.asset, nil }

func (v *Sim) ShareAsset() (string, error) { return v.shareDenom, nil }

func (v *Sim) totalAssets() sdkmath.Int {
	bal, _ := v.lg.BalanceOf(v.account, v.asset)
	return bal
}

func (v *Sim) Supply(from string, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("supply amount must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	shares := v.toShares(amount)
	if err := v.lg.Pull(v.asset, from, v.account, amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("vault pull failed: %w", err)
	}
	v.totalShares = v.totalShares.Add(shares)
	v.lg.Mint(from, v.shareDenom, shares)
	return shares, nil
}

func (v *Sim) Withdraw(amount sdkmath.Int, to, from string) (sdkmath.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("withdraw amount must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	liquid := v.totalAssets().Sub(v.deployed)
	if amount.GT(liquid) {
		return sdkmath.ZeroInt(), fmt.Errorf("withdraw exceeds vault liquidity: %s > %s", amount, liquid)
	}
	shares := v.toSharesUp(amount)
	if err := v.lg.Burn(from, v.shareDenom, shares); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("share burn failed: %w", err)
	}
	v.totalShares = v.totalShares.Sub(shares)
	if err := v.lg.Send(v.asset, v.account, to, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

func (v *Sim) Redeem(shares sdkmath.Int, to, from string) (sdkmath.Int, error) {
	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("redeem shares must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	assets := v.toAssets(shares)
	liquid := v.totalAssets().Sub(v.deployed)
	if assets.GT(liquid) {
		return sdkmath.ZeroInt(), fmt.Errorf("redeem exceeds vault liquidity: %s > %s", assets, liquid)
	}
	if err := v.lg.Burn(from, v.shareDenom, shares); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("share burn failed: %w", err)
	}
	v.totalShares = v.totalShares.Sub(shares)
	if err := v.lg.Send(v.asset, v.account, to, assets); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return assets, nil
}

func (v *Sim) ConvertToAssets(shares sdkmath.Int) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.toAssets(shares), nil
}

func (v *Sim) ConvertToShares(assets sdkmath.Int) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.toShares(assets), nil
}

func (v *Sim) MaxWithdraw(holder string) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	bal, err := v.lg.BalanceOf(holder, v.shareDenom)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	value := v.toAssets(bal)
	liquid := v.totalAssets().Sub(v.deployed)
	if liquid.IsNegative() {
		liquid = sdkmath.ZeroInt()
	}
	return sdkmath.MinInt(value, liquid), nil
}

func (v *Sim) ShareBalance(holder string) (sdkmath.Int, error) {
	return v.lg.BalanceOf(holder, v.shareDenom)
}

// AccrueYield credits amount of the underlying to the vault's custody
// account, raising the share price.
func (v *Sim) AccrueYield(amount sdkmath.Int) {
	v.lg.Mint(v.account, v.asset, amount)
}

// SetDeployed marks amount of the vault's assets as invested and not
// withdrawable, constraining MaxWithdraw.
func (v *Sim) SetDeployed(amount sdkmath.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deployed = amount
}

// Snapshot captures the vault's internal counters. Ledger-held balances are
// snapshotted separately by the caller.
func (v *Sim) Snapshot() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return simSnapshot{totalShares: v.totalShares, deployed: v.deployed}
}

// Restore replaces the vault counters with a previously captured snapshot.
func (v *Sim) Restore(snap any) {
	s, ok := snap.(simSnapshot)
	if !ok {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.totalShares = s.totalShares
	v.deployed = s.deployed
}

// toShares assumes the lock is held. Rounds down, as the vault does on
// deposit.
func (v *Sim) toShares(assets sdkmath.Int) sdkmath.Int {
	if v.totalShares.IsZero() {
		return assets
	}
	total := v.totalAssets()
	if total.IsZero() {
		return assets
	}
	return assets.Mul(v.totalShares).Quo(total)
}

// toSharesUp rounds up, as the vault does when burning shares for an exact
// asset withdrawal.
func (v *Sim) toSharesUp(assets sdkmath.Int) sdkmath.Int {
	if v.totalShares.IsZero() {
		return assets
	}
	total := v.totalAssets()
	if total.IsZero() {
		return assets
	}
	num := assets.Mul(v.totalShares)
	out := num.Quo(total)
	if !num.Mod(total).IsZero() {
		out = out.Add(sdkmath.OneInt())
	}
	return out
}

// toAssets assumes the lock is held.
func (v *Sim) toAssets(shares sdkmath.Int) sdkmath.Int {
	if v.totalShares.IsZero() || shares.IsNil() || shares.IsZero() {
		return sdkmath.ZeroInt()
	}
	return shares.Mul(v.totalAssets()).Quo(v.totalShares)
}

var _ Vault = (*Sim)(nil)
