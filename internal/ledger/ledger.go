/*

In-process asset ledger backing sim mode. Holds per-account balances for
fungible denoms and the native currency, plus unlimited-allowance grants.
Implements transfer.Bank for the position engine and types.Snapshotter so
engine operations can roll the ledger back on a failed sub-step.

*/

package ledger

import (
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/parkside-labs/apm/internal/transfer"
)

// Ledger is a thread-safe in-memory bank.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[string]map[string]sdkmath.Int // account -> denom -> amount
	allowances map[string]map[string]bool        // owner|denom -> spender -> unlimited
}

// snapshot is the opaque state captured by Snapshot.
type snapshot struct {
	balances   map[string]map[string]sdkmath.Int
	allowances map[string]map[string]bool
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:   make(map[string]map[string]sdkmath.Int),
		allowances: make(map[string]map[string]bool),
	}
}

func allowanceKey(owner, denom string) string {
	return owner + "|" + denom
}

// Mint credits amount of denom to account. Used to seed sim scenarios and by
// the sim vault to issue share tokens.
func (l *Ledger) Mint(account, denom string, amount sdkmath.Int) {
	if amount.IsNil() || !amount.IsPositive() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(account, denom, amount)
}

// Burn debits amount of denom from account. Returns an error if the balance
// is insufficient.
func (l *Ledger) Burn(account, denom string, amount sdkmath.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debit(account, denom, amount)
}

// BalanceOf returns the balance of denom held by account.
func (l *Ledger) BalanceOf(account, denom string) (sdkmath.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if denoms, ok := l.balances[account]; ok {
		if bal, ok := denoms[denom]; ok {
			return bal, nil
		}
	}
	return sdkmath.ZeroInt(), nil
}

// Send transfers amount of denom between accounts.
func (l *Ledger) Send(denom, from, to string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("transfer amount must be non-negative")
	}
	if amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(from, denom, amount); err != nil {
		return err
	}
	l.credit(to, denom, amount)
	return nil
}

// SendNative transfers amount of the native currency.
func (l *Ledger) SendNative(from, to string, amount sdkmath.Int) error {
	return l.Send(transfer.NativeDenom, from, to, amount)
}

// Pull moves amount of denom from owner to spender. Requires a prior Approve
// grant from owner to spender for denom.
func (l *Ledger) Pull(denom, owner, spender string, amount sdkmath.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.allowances[allowanceKey(owner, denom)][spender] {
		return fmt.Errorf("no allowance from %s to %s for %s", owner, spender, denom)
	}
	if err := l.debit(owner, denom, amount); err != nil {
		return err
	}
	l.credit(spender, denom, amount)
	return nil
}

// Approve grants spender an unlimited allowance over owner's denom balance.
func (l *Ledger) Approve(owner, spender, denom string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := allowanceKey(owner, denom)
	if l.allowances[key] == nil {
		l.allowances[key] = make(map[string]bool)
	}
	l.allowances[key][spender] = true
	return nil
}

// Snapshot captures the full ledger state.
func (l *Ledger) Snapshot() any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := snapshot{
		balances:   make(map[string]map[string]sdkmath.Int, len(l.balances)),
		allowances: make(map[string]map[string]bool, len(l.allowances)),
	}
	for acct, denoms := range l.balances {
		cp := make(map[string]sdkmath.Int, len(denoms))
		for d, b := range denoms {
			cp[d] = b
		}
		s.balances[acct] = cp
	}
	for key, spenders := range l.allowances {
		cp := make(map[string]bool, len(spenders))
		for sp, ok := range spenders {
			cp[sp] = ok
		}
		s.allowances[key] = cp
	}
	return s
}

// Restore replaces the ledger state with a previously captured snapshot.
func (l *Ledger) Restore(snap any) {
	s, ok := snap.(snapshot)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Copy rather than alias, so the same snapshot can be restored again.
	l.balances = make(map[string]map[string]sdkmath.Int, len(s.balances))
	for acct, denoms := range s.balances {
		cp := make(map[string]sdkmath.Int, len(denoms))
		for d, b := range denoms {
			cp[d] = b
		}
		l.balances[acct] = cp
	}
	l.allowances = make(map[string]map[string]bool, len(s.allowances))
	for key, spenders := range s.allowances {
		cp := make(map[string]bool, len(spenders))
		for sp, ok := range spenders {
			cp[sp] = ok
		}
		l.allowances[key] = cp
	}
}

// debit assumes the lock is held.
func (l *Ledger) debit(account, denom string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("debit amount must be non-negative")
	}
	if amount.IsZero() {
		return nil
	}
	denoms := l.balances[account]
	bal := sdkmath.ZeroInt()
	if denoms != nil {
		if b, ok := denoms[denom]; ok {
			bal = b
		}
	}
	if bal.LT(amount) {
		return fmt.Errorf("insufficient %s balance at %s: have %s, need %s", denom, account, bal, amount)
	}
	denoms[denom] = bal.Sub(amount)
	return nil
}

// credit assumes the lock is held.
func (l *Ledger) credit(account, denom string, amount sdkmath.Int) {
	if l.balances[account] == nil {
		l.balances[account] = make(map[string]sdkmath.Int)
	}
	if bal, ok := l.balances[account][denom]; ok {
		l.balances[account][denom] = bal.Add(amount)
	} else {
		l.balances[account][denom] = amount
	}
}

var _ transfer.Bank = (*Ledger)(nil)
