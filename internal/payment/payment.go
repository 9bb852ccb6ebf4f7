// Package payment defines the contract with the hosted payment gateway and
// the HTTP client that implements it.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrOutcomeUnknown means the call may or may not have reached the gateway
// (timeout, 5xx). Callers must not treat it as a definite failure; the
// outcome has to be settled by a later Verify, not a blind retry.
var ErrOutcomeUnknown = errors.New("payment gateway outcome unknown")

type InitializeRequest struct {
	Amount      decimal.Decimal
	Currency    string
	FirstName   string
	LastName    string
	Phone       string
	Email       string
	TxRef       string
	CallbackURL string
	ReturnURL   string
}

type VerifyResult struct {
	Paid     bool
	Amount   decimal.Decimal
	Currency string
}

type TransferRequest struct {
	AccountName   string
	AccountNumber string
	BankCode      int
	Amount        decimal.Decimal
	Currency      string
	Reference     string
}

// Gateway is the payment provider as seen by the settlement coordinator.
type Gateway interface {
	// Initialize starts a hosted checkout session and returns the URL the
	// buyer must be redirected to.
	Initialize(ctx context.Context, req InitializeRequest) (checkoutURL string, err error)

	// Verify queries the gateway's own record for a transaction reference.
	// Confirmation callbacks are never trusted without this.
	Verify(ctx context.Context, txRef string) (*VerifyResult, error)

	// Transfer disburses a seller payout.
	Transfer(ctx context.Context, req TransferRequest) error
}
