/*

Live Bank implementation over the protocol REST gateway. The gateway fronts
the raw transfer primitive on-chain, including legacy tokens whose transfers
return no value (success inferred from call success); this client only sees
a uniform success/failure answer.

*/

package transfer

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-resty/resty/v2"
)

// Gateway is a Bank backed by the protocol REST gateway.
type Gateway struct {
	http *resty.Client
}

// NewGateway creates a live transfer client.
func NewGateway(baseURL string) *Gateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(0) // failures must surface to the caller, never be retried here
	return &Gateway{http: client}
}

type transferPayload struct {
	Denom   string `json:"denom,omitempty"`
	From    string `json:"from"`
	To      string `json:"to"`
	Owner   string `json:"owner,omitempty"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

type balanceResult struct {
	Amount string `json:"amount"`
}

func (g *Gateway) post(path string, body any) error {
	resp, err := g.http.R().SetBody(body).Post(path)
	if err != nil {
		return fmt.Errorf("transfer gateway call %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("transfer gateway call %s: %s: %s", path, resp.Status(), resp.String())
	}
	return nil
}

func (g *Gateway) BalanceOf(account, denom string) (sdkmath.Int, error) {
	var out balanceResult
	resp, err := g.http.R().
		SetResult(&out).
		SetQueryParam("denom", denom).
		Get("/accounts/" + account + "/balance")
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("transfer gateway balance query: %w", err)
	}
	if resp.IsError() {
		return sdkmath.ZeroInt(), fmt.Errorf("transfer gateway balance query: %s", resp.Status())
	}
	v, ok := sdkmath.NewIntFromString(out.Amount)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("gateway returned malformed amount %q", out.Amount)
	}
	return v, nil
}

func (g *Gateway) Send(denom, from, to string, amount sdkmath.Int) error {
	return g.post("/transfers", transferPayload{Denom: denom, From: from, To: to, Amount: amount.String()})
}

func (g *Gateway) SendNative(from, to string, amount sdkmath.Int) error {
	return g.post("/transfers/native", transferPayload{From: from, To: to, Amount: amount.String()})
}

func (g *Gateway) Pull(denom, owner, spender string, amount sdkmath.Int) error {
	return g.post("/transfers/pull", transferPayload{Denom: denom, Owner: owner, Spender: spender, To: spender, From: owner, Amount: amount.String()})
}

func (g *Gateway) Approve(owner, spender, denom string) error {
	return g.post("/approvals", transferPayload{Denom: denom, Owner: owner, Spender: spender})
}

var _ Bank = (*Gateway)(nil)
