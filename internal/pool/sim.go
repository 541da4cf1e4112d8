/*

Deterministic in-process lending pool used in sim mode and by the test
suite. Quote liquidity and pledged collateral live in the shared ledger;
borrower debt is kept normalized (t0) and inflated with the accrual math in
this package. Interest state is only written on mutating calls, as the real
pool does; reads report the last-recorded inflator.

*/

package pool

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/parkside-labs/apm/internal/ledger"
)

// DefaultNpTpRatio is the neutral-to-threshold ratio published for new
// borrowers.
var DefaultNpTpRatio = sdkmath.LegacyMustNewDecFromStr("1.04")

type borrowerState struct {
	t0Debt     sdkmath.Int
	collateral sdkmath.Int
	npTpRatio  sdkmath.LegacyDec
}

// Sim is a simulated lending pool backed by the in-process ledger.
type Sim struct {
	mu      sync.Mutex
	lg      *ledger.Ledger
	account string // custody account for quote liquidity and pledged collateral

	collateralDenom string
	quoteDenom      string

	rate            sdkmath.LegacyDec
	inflator        sdkmath.LegacyDec
	inflatorUpdated time.Time

	borrowers map[string]*borrowerState
	deposits  map[string]sdkmath.Int // lender quote deposits

	bondEscrow        sdkmath.Int
	unclaimedReserves sdkmath.Int

	// collateralPrice values pledged collateral in quote terms for the
	// collateralization check on pulls.
	collateralPrice sdkmath.LegacyDec

	priceIndex uint64 // bucket index at which new debt currently prices

	now func() time.Time
}

type simSnapshot struct {
	rate              sdkmath.LegacyDec
	inflator          sdkmath.LegacyDec
	inflatorUpdated   time.Time
	borrowers         map[string]*borrowerState
	deposits          map[string]sdkmath.Int
	bondEscrow        sdkmath.Int
	unclaimedReserves sdkmath.Int
	collateralPrice   sdkmath.LegacyDec
	priceIndex        uint64
}

// NewSim creates a simulated pool over the given ledger.
func NewSim(lg *ledger.Ledger, account, collateralDenom, quoteDenom string) *Sim {
	return &Sim{
		lg:                lg,
		account:           account,
		collateralDenom:   collateralDenom,
		quoteDenom:        quoteDenom,
		rate:              sdkmath.LegacyMustNewDecFromStr("0.05"),
		inflator:          sdkmath.LegacyOneDec(),
		inflatorUpdated:   time.Now(),
		borrowers:         make(map[string]*borrowerState),
		deposits:          make(map[string]sdkmath.Int),
		bondEscrow:        sdkmath.ZeroInt(),
		unclaimedReserves: sdkmath.ZeroInt(),
		collateralPrice:   sdkmath.LegacyOneDec(),
		priceIndex:        2550,
		now:               time.Now,
	}
}

// Address returns the pool's custody account.
func (p *Sim) Address() string { return p.account }

// WithClock overrides the pool's time source.
func (p *Sim) WithClock(now func() time.Time) *Sim {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
	p.inflatorUpdated = now()
	return p
}

// SetRate sets the annualized borrow rate.
func (p *Sim) SetRate(rate sdkmath.LegacyDec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accrue()
	p.rate = rate
}

// SetReserves sets the bond escrow and unclaimed reserve amounts.
func (p *Sim) SetReserves(bondEscrow, unclaimedReserves sdkmath.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bondEscrow = bondEscrow
	p.unclaimedReserves = unclaimedReserves
}

// SetCollateralPrice sets the quote-terms price used for collateralization
// checks on collateral pulls.
func (p *Sim) SetCollateralPrice(price sdkmath.LegacyDec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collateralPrice = price
}

// SetPriceIndex sets the bucket index at which new debt prices.
func (p *Sim) SetPriceIndex(index uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceIndex = index
}

// AddQuote seeds lender liquidity: mints amount of the quote asset into the
// pool and records it as owner's deposit.
func (p *Sim) AddQuote(owner string, amount sdkmath.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lg.Mint(p.account, p.quoteDenom, amount)
	if dep, ok := p.deposits[owner]; ok {
		p.deposits[owner] = dep.Add(amount)
	} else {
		p.deposits[owner] = amount
	}
}

// accrue folds pending interest into the recorded inflator. Assumes the
// lock is held.
func (p *Sim) accrue() {
	now := p.now()
	p.inflator = PendingInflator(p.inflator, p.inflatorUpdated, p.rate, now)
	p.inflatorUpdated = now
}

func (p *Sim) borrower(addr string) *borrowerState {
	b, ok := p.borrowers[addr]
	if !ok {
		b = &borrowerState{
			t0Debt:     sdkmath.ZeroInt(),
			collateral: sdkmath.ZeroInt(),
			npTpRatio:  DefaultNpTpRatio,
		}
		p.borrowers[addr] = b
	}
	return b
}

// availableToBorrow assumes the lock is held.
func (p *Sim) availableToBorrow() sdkmath.Int {
	bal, _ := p.lg.BalanceOf(p.account, p.quoteDenom)
	out := bal.Sub(p.bondEscrow).Sub(p.unclaimedReserves)
	if out.IsNegative() {
		return sdkmath.ZeroInt()
	}
	return out
}

func (p *Sim) DrawDebt(borrower string, amount sdkmath.Int, limitIndex uint64, collateralToPledge sdkmath.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accrue()
	b := p.borrower(borrower)

	if !collateralToPledge.IsNil() && collateralToPledge.IsPositive() {
		if err := p.lg.Pull(p.collateralDenom, borrower, p.account, collateralToPledge); err != nil {
			return fmt.Errorf("collateral pledge failed: %w", err)
		}
		b.collateral = b.collateral.Add(collateralToPledge)
	}

	if amount.IsNil() || amount.IsZero() {
		return nil
	}
	if amount.IsNegative() {
		return fmt.Errorf("borrow amount must be non-negative")
	}
	if p.priceIndex > limitIndex {
		return fmt.Errorf("draw priced at index %d, above limit %d", p.priceIndex, limitIndex)
	}
	if available := p.availableToBorrow(); amount.GT(available) {
		return fmt.Errorf("insufficient pool liquidity: %s > %s", amount, available)
	}

	b.t0Debt = b.t0Debt.Add(T0FromDebt(amount, p.inflator))
	newDebt := DebtFromT0(b.t0Debt, p.inflator)
	if err := p.checkCollateralized(newDebt, b.collateral); err != nil {
		return err
	}
	return p.lg.Send(p.quoteDenom, p.account, borrower, amount)
}

func (p *Sim) RepayDebt(borrower string, maxRepay, collateralToPull sdkmath.Int, recipient string, limitIndex uint64) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accrue()
	b := p.borrower(borrower)

	debt := DebtFromT0(b.t0Debt, p.inflator)
	repaid := sdkmath.ZeroInt()
	if !maxRepay.IsNil() && maxRepay.IsPositive() && debt.IsPositive() {
		repaid = sdkmath.MinInt(maxRepay, debt)
		if err := p.lg.Pull(p.quoteDenom, borrower, p.account, repaid); err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("repayment pull failed: %w", err)
		}
		if repaid.Equal(debt) {
			b.t0Debt = sdkmath.ZeroInt()
		} else {
			// Round the repaid t0 portion down so the remaining obligation
			// is never understated.
			t0Repaid := sdkmath.LegacyNewDecFromInt(repaid).Quo(p.inflator).TruncateInt()
			b.t0Debt = b.t0Debt.Sub(t0Repaid)
		}
	}

	if !collateralToPull.IsNil() && collateralToPull.IsPositive() {
		if collateralToPull.GT(b.collateral) {
			return sdkmath.ZeroInt(), fmt.Errorf("collateral pull %s exceeds pledged %s", collateralToPull, b.collateral)
		}
		remaining := DebtFromT0(b.t0Debt, p.inflator)
		if err := p.checkCollateralized(remaining, b.collateral.Sub(collateralToPull)); err != nil {
			return sdkmath.ZeroInt(), err
		}
		b.collateral = b.collateral.Sub(collateralToPull)
		if err := p.lg.Send(p.collateralDenom, p.account, recipient, collateralToPull); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	return repaid, nil
}

func (p *Sim) RemoveCollateral(owner string, amount sdkmath.Int, index uint64) (sdkmath.Int, error) {
	_, err := p.RepayDebt(owner, sdkmath.ZeroInt(), amount, owner, index)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

func (p *Sim) RemoveQuote(owner string, amount sdkmath.Int, index uint64) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accrue()

	dep, ok := p.deposits[owner]
	if !ok || dep.LT(amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("quote removal %s exceeds deposit", amount)
	}
	if available := p.availableToBorrow(); amount.GT(available) {
		return sdkmath.ZeroInt(), fmt.Errorf("quote removal %s exceeds available liquidity %s", amount, available)
	}
	p.deposits[owner] = dep.Sub(amount)
	if err := p.lg.Send(p.quoteDenom, p.account, owner, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

func (p *Sim) Borrower(borrower string) (BorrowerInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.borrowers[borrower]
	if !ok {
		return BorrowerInfo{
			T0Debt:     sdkmath.ZeroInt(),
			Collateral: sdkmath.ZeroInt(),
			NpTpRatio:  DefaultNpTpRatio,
		}, nil
	}
	return BorrowerInfo{T0Debt: b.t0Debt, Collateral: b.collateral, NpTpRatio: b.npTpRatio}, nil
}

func (p *Sim) TotalDebt() (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending := PendingInflator(p.inflator, p.inflatorUpdated, p.rate, p.now())
	total := sdkmath.ZeroInt()
	for _, b := range p.borrowers {
		total = total.Add(DebtFromT0(b.t0Debt, pending))
	}
	return total, nil
}

func (p *Sim) BorrowRate() (sdkmath.LegacyDec, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate, nil
}

func (p *Sim) Reserves() (sdkmath.Int, sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bondEscrow, p.unclaimedReserves, nil
}

func (p *Sim) Inflator() (sdkmath.LegacyDec, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflator, p.inflatorUpdated, nil
}

func (p *Sim) PriceIndexForDebt(debt sdkmath.Int) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.priceIndex, nil
}

func (p *Sim) QuoteBalance() (sdkmath.Int, error) {
	return p.lg.BalanceOf(p.account, p.quoteDenom)
}

func (p *Sim) CollateralAsset() (string, error) { return p.collateralDenom, nil }

func (p *Sim) QuoteAsset() (string, error) { return p.quoteDenom, nil }

// checkCollateralized assumes the lock is held.
func (p *Sim) checkCollateralized(debt, collateral sdkmath.Int) error {
	if debt.IsZero() {
		return nil
	}
	value := p.collateralPrice.MulInt(collateral).TruncateInt()
	if value.LT(debt) {
		return fmt.Errorf("position undercollateralized: %s collateral value against %s debt", value, debt)
	}
	return nil
}

// Snapshot captures the pool's internal state. Ledger-held balances are
// snapshotted separately by the caller.
func (p *Sim) Snapshot() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := simSnapshot{
		rate:              p.rate,
		inflator:          p.inflator,
		inflatorUpdated:   p.inflatorUpdated,
		borrowers:         make(map[string]*borrowerState, len(p.borrowers)),
		deposits:          make(map[string]sdkmath.Int, len(p.deposits)),
		bondEscrow:        p.bondEscrow,
		unclaimedReserves: p.unclaimedReserves,
		collateralPrice:   p.collateralPrice,
		priceIndex:        p.priceIndex,
	}
	for addr, b := range p.borrowers {
		cp := *b
		s.borrowers[addr] = &cp
	}
	for addr, d := range p.deposits {
		s.deposits[addr] = d
	}
	return s
}

// Restore replaces the pool state with a previously captured snapshot.
func (p *Sim) Restore(snap any) {
	s, ok := snap.(simSnapshot)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = s.rate
	p.inflator = s.inflator
	p.inflatorUpdated = s.inflatorUpdated
	// Copy rather than alias, so the same snapshot can be restored again.
	p.borrowers = make(map[string]*borrowerState, len(s.borrowers))
	for addr, b := range s.borrowers {
		cp := *b
		p.borrowers[addr] = &cp
	}
	p.deposits = make(map[string]sdkmath.Int, len(s.deposits))
	for addr, d := range s.deposits {
		p.deposits[addr] = d
	}
	p.bondEscrow = s.bondEscrow
	p.unclaimedReserves = s.unclaimedReserves
	p.collateralPrice = s.collateralPrice
	p.priceIndex = s.priceIndex
}

var _ Pool = (*Sim)(nil)
