package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Seller struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	Phone       string    `json:"phone"`
	Location    string    `json:"location,omitempty"`
	BankAccount string    `json:"bank_account"`
	BankCode    int       `json:"bank_code"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int       `json:"version"`
}

type Book struct {
	ID          int64           `json:"id"`
	SellerID    int64           `json:"seller_id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	PublishYear int             `json:"publish_year"`
	Genre       []string        `json:"genre,omitempty"`
	BookType    string          `json:"book_type"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	ImageID     string          `json:"image_id,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	PDFID       string          `json:"pdf_id,omitempty"`
	PDFURL      string          `json:"pdf_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

const (
	BookTypePhysical = "physical"
	BookTypeDigital  = "digital"
)

// Order is one purchase attempt. Rows are never hard-deleted; the orders
// table is the ledger that reconciliation runs against.
type Order struct {
	ID          int64           `json:"id"`
	TxRef       string          `json:"tx_ref"`
	BuyerName   string          `json:"buyer_name"`
	BuyerPhone  string          `json:"buyer_phone"`
	BuyerEmail  string          `json:"buyer_email"`
	SellerID    int64           `json:"seller_id"`
	BookID      int64           `json:"book_id"`
	Title       string          `json:"title"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Status      string          `json:"status"`
	Verified    bool            `json:"verified"`
	ImageURL    string          `json:"image_url,omitempty"`
	OrderedAt   time.Time       `json:"ordered_at"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

// Total is the amount the buyer was charged.
func (o *Order) Total() decimal.Decimal {
	return o.UnitPrice.Mul(decimal.NewFromInt(int64(o.Quantity)))
}

const (
	OrderStatusPending   = "Pending"
	OrderStatusDelivered = "Delivered"
	OrderStatusCancelled = "Cancelled"
)

type OutboxJob struct {
	ID            int64     `json:"id"`
	Kind          string    `json:"kind"`
	Payload       []byte    `json:"payload"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	JobKindPayout = "payout"
	JobKindEmail  = "email"

	JobStatusPending = "pending"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)
