package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
)

type lnbitsInvoiceRequest struct {
	Out    bool   `json:"out"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
}

type lnbitsInvoiceResponse struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
}

type lnbitsPaymentStatus struct {
	Paid     bool   `json:"paid"`
	Preimage string `json:"preimage"`
}

// createInvoice fetches a bolt11 invoice from whichever payment backend is
// configured: an LNbits-style wallet, or a bare lightning address via the
// lnurl-pay flow.
func createInvoice(amount int64, memo string) (string, error) {
	conf := actors.MakeOrGetConfig()
	if conf == nil {
		return "", fmt.Errorf("no configuration loaded")
	}
	if endpoint := conf.GetString("walletEndpoint"); len(endpoint) > 0 {
		return lnbitsCreateInvoice(endpoint, conf.GetString("walletKey"), amount, memo)
	}
	if address := conf.GetString("lightningAddress"); len(address) > 0 {
		return getInvoice(address, amount, memo)
	}
	return "", fmt.Errorf("no wallet endpoint or lightning address configured")
}

func lnbitsCreateInvoice(endpoint, key string, amount int64, memo string) (string, error) {
	body, err := json.Marshal(lnbitsInvoiceRequest{Out: false, Amount: amount, Memo: memo})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequest(http.MethodPost, endpoint+"/api/v1/payments", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Api-Key", key)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode > 299 {
		return "", fmt.Errorf("wallet returned %d: %s", resp.StatusCode, raw)
	}
	var response lnbitsInvoiceResponse
	err = json.Unmarshal(raw, &response)
	if err != nil {
		return "", err
	}
	if len(response.PaymentRequest) == 0 {
		return "", fmt.Errorf("wallet returned an empty payment request")
	}
	return response.PaymentRequest, nil
}

// checkPayment asks the wallet whether an invoice settled. Only possible with
// a wallet endpoint; lightning-address deployments rely on the receipt
// subscription instead.
func checkPayment(hash library.Sha256) (paid bool, preimage string, e error) {
	conf := actors.MakeOrGetConfig()
	if conf == nil {
		return false, "", fmt.Errorf("no configuration loaded")
	}
	endpoint := conf.GetString("walletEndpoint")
	if len(endpoint) == 0 {
		return false, "", fmt.Errorf("no wallet endpoint configured")
	}
	req, err := http.NewRequest(http.MethodGet, endpoint+"/api/v1/payments/"+hash, nil)
	if err != nil {
		return false, "", err
	}
	req.Header.Set("X-Api-Key", conf.GetString("walletKey"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, "", err
	}
	if resp.StatusCode > 299 {
		return false, "", fmt.Errorf("wallet returned %d: %s", resp.StatusCode, raw)
	}
	var status lnbitsPaymentStatus
	err = json.Unmarshal(raw, &status)
	if err != nil {
		return false, "", err
	}
	return status.Paid, status.Preimage, nil
}
