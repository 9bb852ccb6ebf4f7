package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/anbibu/bookstore/internal/config"
)

// ChapaClient talks to the Chapa API (https://api.chapa.co/v1).
type ChapaClient struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewChapaClient(cfg *config.GatewayConfig) *ChapaClient {
	return &ChapaClient{
		baseURL: cfg.BaseURL,
		secret:  cfg.Secret,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type chapaInitPayload struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email,omitempty"`
	TxRef       string `json:"tx_ref"`
	CallbackURL string `json:"callback_url"`
	ReturnURL   string `json:"return_url"`
}

type chapaInitResponse struct {
	Status string `json:"status"`
	Data   struct {
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
	Message string `json:"message"`
}

func (c *ChapaClient) Initialize(ctx context.Context, req InitializeRequest) (string, error) {
	payload := chapaInitPayload{
		Amount:      req.Amount.String(),
		Currency:    req.Currency,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.Phone,
		Email:       req.Email,
		TxRef:       req.TxRef,
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
	}

	var resp chapaInitResponse
	if err := c.post(ctx, "/transaction/initialize", payload, &resp); err != nil {
		return "", err
	}

	if resp.Status != "success" || resp.Data.CheckoutURL == "" {
		return "", fmt.Errorf("initialize rejected: %s", resp.Message)
	}

	return resp.Data.CheckoutURL, nil
}

type chapaVerifyResponse struct {
	Status string `json:"status"`
	Data   struct {
		Status   string          `json:"status"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	} `json:"data"`
	Message string `json:"message"`
}

func (c *ChapaClient) Verify(ctx context.Context, txRef string) (*VerifyResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/transaction/verify/"+txRef, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)

	var resp chapaVerifyResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}

	return &VerifyResult{
		Paid:     resp.Status == "success" && resp.Data.Status == "success",
		Amount:   resp.Data.Amount,
		Currency: resp.Data.Currency,
	}, nil
}

type chapaTransferPayload struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
	BankCode      int    `json:"bank_code"`
}

type chapaTransferResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *ChapaClient) Transfer(ctx context.Context, req TransferRequest) error {
	payload := chapaTransferPayload{
		AccountName:   req.AccountName,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount.String(),
		Currency:      req.Currency,
		Reference:     req.Reference,
		BankCode:      req.BankCode,
	}

	var resp chapaTransferResponse
	if err := c.post(ctx, "/transfers", payload, &resp); err != nil {
		return err
	}

	if resp.Status != "success" {
		return fmt.Errorf("transfer rejected: %s", resp.Message)
	}

	return nil
}

func (c *ChapaClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq, out)
}

func (c *ChapaClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		// A transport error after the request left the client means the
		// gateway may have processed it anyway.
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
		}
		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
		}
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: gateway returned %d", ErrOutcomeUnknown, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}

	return nil
}
