package outbox

import "github.com/shopspring/decimal"

// PayoutPayload is the durable instruction for one seller disbursement.
type PayoutPayload struct {
	OrderID       int64           `json:"order_id"`
	TxRef         string          `json:"tx_ref"`
	AccountName   string          `json:"account_name"`
	AccountNumber string          `json:"account_number"`
	BankCode      int             `json:"bank_code"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reference     string          `json:"reference"`
}

// EmailPayload is a fully composed message; the dispatcher only delivers it.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
