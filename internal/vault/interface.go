package vault

import (
	sdkmath "cosmossdk.io/math"
)

// Vault defines the interface for the yield-bearing vault a position parks
// its capital in. It abstracts away the specific implementation (sim, live
// gateway), mirroring the published interface of the external vault: deposit,
// withdraw, redeem, conversions and withdrawable-capacity queries.
type Vault interface {
	// Address identifies the vault's account, the spender approved during
	// position initialization.
	Address() string

	// Supply deposits amount of the underlying asset from the given account
	// and returns the shares issued. The vault pulls the assets itself and
	// relies on a prior unlimited approval from the supplier.
	Supply(from string, amount sdkmath.Int) (sdkmath.Int, error)

	// Withdraw sends amount of the underlying asset to `to`, burning shares
	// held by `from`. Returns the shares burned.
	Withdraw(amount sdkmath.Int, to, from string) (sdkmath.Int, error)

	// Redeem burns exactly `shares` held by `from` and sends the resulting
	// assets to `to`. Returns the assets paid out.
	Redeem(shares sdkmath.Int, to, from string) (sdkmath.Int, error)

	// ConvertToAssets values shares in underlying-asset terms.
	ConvertToAssets(shares sdkmath.Int) (sdkmath.Int, error)

	// ConvertToShares values assets in share terms.
	ConvertToShares(assets sdkmath.Int) (sdkmath.Int, error)

	// MaxWithdraw returns the maximum underlying amount holder could
	// withdraw right now, bounded by the vault's liquid balance.
	MaxWithdraw(holder string) (sdkmath.Int, error)

	// ShareBalance returns holder's share balance.
	ShareBalance(holder string) (sdkmath.Int, error)

	// UnderlyingAsset returns the denom of the vault's underlying asset.
	UnderlyingAsset() (string, error)

	// ShareAsset returns the denom of the vault's share token. Shares are
	// themselves fungible and can be pledged as lending-pool collateral.
	ShareAsset() (string, error)
}
