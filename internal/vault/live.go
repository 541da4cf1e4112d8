/*

Live vault adapter. Talks to the protocol's REST gateway, which fronts the
actual vault contract (including its legacy token-transfer compatibility);
this client only moves JSON. Amounts travel as decimal strings to avoid
precision loss.

*/

package vault

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-resty/resty/v2"
)

// Gateway is a Vault implementation backed by the protocol REST gateway.
type Gateway struct {
	http    *resty.Client
	id      string
	address string
}

// NewGateway creates a live vault client for the vault with the given id
// and on-chain address.
func NewGateway(baseURL, vaultID, address string) *Gateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(0) // failures must surface to the caller, never be retried here
	return &Gateway{http: client, id: vaultID, address: address}
}

// Address returns the vault's on-chain address.
func (g *Gateway) Address() string { return g.address }

type amountPayload struct {
	Amount string `json:"amount"`
}

type assetsPayload struct {
	Underlying string `json:"underlying"`
	Share      string `json:"share"`
}

type movePayload struct {
	Amount string `json:"amount"`
	To     string `json:"to,omitempty"`
	From   string `json:"from,omitempty"`
}

func parseAmount(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("gateway returned malformed amount %q", s)
	}
	return v, nil
}

func (g *Gateway) post(path string, body any) (sdkmath.Int, error) {
	var out amountPayload
	resp, err := g.http.R().SetBody(body).SetResult(&out).Post(path)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("vault gateway call %s: %w", path, err)
	}
	if resp.IsError() {
		return sdkmath.ZeroInt(), fmt.Errorf("vault gateway call %s: %s: %s", path, resp.Status(), resp.String())
	}
	return parseAmount(out.Amount)
}

func (g *Gateway) get(path string, params map[string]string) (sdkmath.Int, error) {
	var out amountPayload
	req := g.http.R().SetResult(&out)
	if params != nil {
		req.SetQueryParams(params)
	}
	resp, err := req.Get(path)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("vault gateway call %s: %w", path, err)
	}
	if resp.IsError() {
		return sdkmath.ZeroInt(), fmt.Errorf("vault gateway call %s: %s: %s", path, resp.Status(), resp.String())
	}
	return parseAmount(out.Amount)
}

func (g *Gateway) Supply(from string, amount sdkmath.Int) (sdkmath.Int, error) {
	return g.post(fmt.Sprintf("/vaults/%s/supply", g.id), movePayload{Amount: amount.String(), From: from})
}

func (g *Gateway) Withdraw(amount sdkmath.Int, to, from string) (sdkmath.Int, error) {
	return g.post(fmt.Sprintf("/vaults/%s/withdraw", g.id), movePayload{Amount: amount.String(), To: to, From: from})
}

func (g *Gateway) Redeem(shares sdkmath.Int, to, from string) (sdkmath.Int, error) {
	return g.post(fmt.Sprintf("/vaults/%s/redeem", g.id), movePayload{Amount: shares.String(), To: to, From: from})
}

func (g *Gateway) ConvertToAssets(shares sdkmath.Int) (sdkmath.Int, error) {
	return g.get(fmt.Sprintf("/vaults/%s/convert-to-assets", g.id), map[string]string{"shares": shares.String()})
}

func (g *Gateway) ConvertToShares(assets sdkmath.Int) (sdkmath.Int, error) {
	return g.get(fmt.Sprintf("/vaults/%s/convert-to-shares", g.id), map[string]string{"assets": assets.String()})
}

func (g *Gateway) MaxWithdraw(holder string) (sdkmath.Int, error) {
	return g.get(fmt.Sprintf("/vaults/%s/max-withdraw/%s", g.id, holder), nil)
}

func (g *Gateway) ShareBalance(holder string) (sdkmath.Int, error) {
	return g.get(fmt.Sprintf("/vaults/%s/share-balance/%s", g.id, holder), nil)
}

func (g *Gateway) assets() (assetsPayload, error) {
	var out assetsPayload
	resp, err := g.http.R().SetResult(&out).Get(fmt.Sprintf("/vaults/%s/assets", g.id))
	if err != nil {
		return assetsPayload{}, fmt.Errorf("vault gateway assets query: %w", err)
	}
	if resp.IsError() {
		return assetsPayload{}, fmt.Errorf("vault gateway assets query: %s", resp.Status())
	}
	return out, nil
}

func (g *Gateway) UnderlyingAsset() (string, error) {
	out, err := g.assets()
	if err != nil {
		return "", err
	}
	return out.Underlying, nil
}

func (g *Gateway) ShareAsset() (string, error) {
	out, err := g.assets()
	if err != nil {
		return "", err
	}
	return out.Share, nil
}

var _ Vault = (*Gateway)(nil)
