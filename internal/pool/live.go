/*

Live lending-pool adapter over the protocol REST gateway. Amounts travel as
decimal strings; rates and inflators as fixed-point decimal strings.

*/

package pool

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-resty/resty/v2"
)

// Gateway is a Pool implementation backed by the protocol REST gateway.
type Gateway struct {
	http    *resty.Client
	id      string
	address string
}

// NewGateway creates a live pool client for the pool with the given id and
// on-chain address.
func NewGateway(baseURL, poolID, address string) *Gateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(0) // failures must surface to the caller, never be retried here
	return &Gateway{http: client, id: poolID, address: address}
}

// Address returns the pool's on-chain address.
func (g *Gateway) Address() string { return g.address }

type drawDebtPayload struct {
	Borrower           string `json:"borrower"`
	Amount             string `json:"amount"`
	LimitIndex         uint64 `json:"limit_index"`
	CollateralToPledge string `json:"collateral_to_pledge"`
}

type repayDebtPayload struct {
	Borrower         string `json:"borrower"`
	MaxRepay         string `json:"max_repay"`
	CollateralToPull string `json:"collateral_to_pull"`
	Recipient        string `json:"recipient"`
	LimitIndex       uint64 `json:"limit_index"`
}

type removePayload struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
	Index  uint64 `json:"index"`
}

type amountResult struct {
	Amount string `json:"amount"`
}

type borrowerResult struct {
	T0Debt     string `json:"t0_debt"`
	Collateral string `json:"collateral"`
	NpTpRatio  string `json:"np_tp_ratio"`
}

type reservesResult struct {
	BondEscrow        string `json:"bond_escrow"`
	UnclaimedReserves string `json:"unclaimed_reserves"`
}

type inflatorResult struct {
	Inflator   string `json:"inflator"`
	LastUpdate int64  `json:"last_update"` // unix seconds
}

type indexResult struct {
	Index uint64 `json:"index"`
}

type rateResult struct {
	Rate string `json:"rate"`
}

type assetPairResult struct {
	Collateral string `json:"collateral"`
	Quote      string `json:"quote"`
}

func (g *Gateway) call(method, path string, body, out any) error {
	req := g.http.R()
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	var resp *resty.Response
	var err error
	if method == "POST" {
		resp, err = req.Post(path)
	} else {
		resp, err = req.Get(path)
	}
	if err != nil {
		return fmt.Errorf("pool gateway call %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("pool gateway call %s: %s: %s", path, resp.Status(), resp.String())
	}
	return nil
}

func parseInt(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("gateway returned malformed amount %q", s)
	}
	return v, nil
}

func parseDec(s string) (sdkmath.LegacyDec, error) {
	v, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("gateway returned malformed decimal %q: %w", s, err)
	}
	return v, nil
}

func (g *Gateway) DrawDebt(borrower string, amount sdkmath.Int, limitIndex uint64, collateralToPledge sdkmath.Int) error {
	return g.call("POST", fmt.Sprintf("/pools/%s/draw-debt", g.id), drawDebtPayload{
		Borrower:           borrower,
		Amount:             amount.String(),
		LimitIndex:         limitIndex,
		CollateralToPledge: collateralToPledge.String(),
	}, nil)
}

func (g *Gateway) RepayDebt(borrower string, maxRepay, collateralToPull sdkmath.Int, recipient string, limitIndex uint64) (sdkmath.Int, error) {
	var out amountResult
	err := g.call("POST", fmt.Sprintf("/pools/%s/repay-debt", g.id), repayDebtPayload{
		Borrower:         borrower,
		MaxRepay:         maxRepay.String(),
		CollateralToPull: collateralToPull.String(),
		Recipient:        recipient,
		LimitIndex:       limitIndex,
	}, &out)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return parseInt(out.Amount)
}

func (g *Gateway) RemoveCollateral(owner string, amount sdkmath.Int, index uint64) (sdkmath.Int, error) {
	var out amountResult
	err := g.call("POST", fmt.Sprintf("/pools/%s/remove-collateral", g.id), removePayload{
		Owner: owner, Amount: amount.String(), Index: index,
	}, &out)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return parseInt(out.Amount)
}

func (g *Gateway) RemoveQuote(owner string, amount sdkmath.Int, index uint64) (sdkmath.Int, error) {
	var out amountResult
	err := g.call("POST", fmt.Sprintf("/pools/%s/remove-quote", g.id), removePayload{
		Owner: owner, Amount: amount.String(), Index: index,
	}, &out)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return parseInt(out.Amount)
}

func (g *Gateway) Borrower(borrower string) (BorrowerInfo, error) {
	var out borrowerResult
	if err := g.call("GET", fmt.Sprintf("/pools/%s/borrowers/%s", g.id, borrower), nil, &out); err != nil {
		return BorrowerInfo{}, err
	}
	t0, err := parseInt(out.T0Debt)
	if err != nil {
		return BorrowerInfo{}, err
	}
	collateral, err := parseInt(out.Collateral)
	if err != nil {
		return BorrowerInfo{}, err
	}
	ratio, err := parseDec(out.NpTpRatio)
	if err != nil {
		return BorrowerInfo{}, err
	}
	return BorrowerInfo{T0Debt: t0, Collateral: collateral, NpTpRatio: ratio}, nil
}

func (g *Gateway) TotalDebt() (sdkmath.Int, error) {
	var out amountResult
	if err := g.call("GET", fmt.Sprintf("/pools/%s/debt", g.id), nil, &out); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return parseInt(out.Amount)
}

func (g *Gateway) BorrowRate() (sdkmath.LegacyDec, error) {
	var out rateResult
	if err := g.call("GET", fmt.Sprintf("/pools/%s/rate", g.id), nil, &out); err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return parseDec(out.Rate)
}

func (g *Gateway) Reserves() (sdkmath.Int, sdkmath.Int, error) {
	var out reservesResult
	if err := g.call("GET", fmt.Sprintf("/pools/%s/reserves", g.id), nil, &out); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	escrow, err := parseInt(out.BondEscrow)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	unclaimed, err := parseInt(out.UnclaimedReserves)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return escrow, unclaimed, nil
}

func (g *Gateway) Inflator() (sdkmath.LegacyDec, time.Time, error) {
	var out inflatorResult
	if err := g.call("GET", fmt.Sprintf("/pools/%s/inflator", g.id), nil, &out); err != nil {
		return sdkmath.LegacyZeroDec(), time.Time{}, err
	}
	inflator, err := parseDec(out.Inflator)
	if err != nil {
		return sdkmath.LegacyZeroDec(), time.Time{}, err
	}
	return inflator, time.Unix(out.LastUpdate, 0), nil
}

func (g *Gateway) PriceIndexForDebt(debt sdkmath.Int) (uint64, error) {
	var out indexResult
	err := g.call("GET", fmt.Sprintf("/pools/%s/price-index", g.id)+"?debt="+debt.String(), nil, &out)
	if err != nil {
		return 0, err
	}
	return out.Index, nil
}

func (g *Gateway) QuoteBalance() (sdkmath.Int, error) {
	var out amountResult
	if err := g.call("GET", fmt.Sprintf("/pools/%s/quote-balance", g.id), nil, &out); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return parseInt(out.Amount)
}

func (g *Gateway) assetPair() (assetPairResult, error) {
	var out assetPairResult
	if err := g.call("GET", fmt.Sprintf("/pools/%s/assets", g.id), nil, &out); err != nil {
		return assetPairResult{}, err
	}
	return out, nil
}

func (g *Gateway) CollateralAsset() (string, error) {
	out, err := g.assetPair()
	if err != nil {
		return "", err
	}
	return out.Collateral, nil
}

func (g *Gateway) QuoteAsset() (string, error) {
	out, err := g.assetPair()
	if err != nil {
		return "", err
	}
	return out.Quote, nil
}

var _ Pool = (*Gateway)(nil)
