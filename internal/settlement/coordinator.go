// Package settlement orchestrates the purchase workflow: create a pending
// order, hand the buyer to the gateway's checkout, and on the gateway's
// confirmation callback settle inventory, payout and notification exactly
// once per transaction reference.
package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anbibu/bookstore/internal/database"
	"github.com/anbibu/bookstore/internal/models"
	"github.com/anbibu/bookstore/internal/outbox"
	"github.com/anbibu/bookstore/internal/payment"
	"github.com/anbibu/bookstore/internal/storage"
	"github.com/anbibu/bookstore/internal/store"
)

type Options struct {
	// Currency for charges and payouts, e.g. "ETB".
	Currency string

	// FeeRate is the platform's cut of each sale, in [0, 1).
	FeeRate float64

	// CallbackBaseURL is this server's public base URL; the gateway calls
	// back on <base>/order/verify-payment/<tx_ref>.
	CallbackBaseURL string

	// FallbackBankCode is used for payouts when the seller has no bank code
	// on record.
	FallbackBankCode int
}

type Coordinator struct {
	db      *sql.DB
	gateway payment.Gateway
	remover storage.Remover
	opts    Options
}

func NewCoordinator(db *sql.DB, gateway payment.Gateway, remover storage.Remover, opts Options) *Coordinator {
	return &Coordinator{
		db:      db,
		gateway: gateway,
		remover: remover,
		opts:    opts,
	}
}

type PurchaseRequest struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
	BookID    int64
	Quantity  int
	ReturnURL string
}

type PurchaseResult struct {
	CheckoutURL string `json:"checkout_url"`
	TxRef       string `json:"tx_ref"`
}

func (r *PurchaseRequest) validate() error {
	switch {
	case strings.TrimSpace(r.FirstName) == "":
		return fmt.Errorf("%w: first name is required", ErrValidation)
	case strings.TrimSpace(r.LastName) == "":
		return fmt.Errorf("%w: last name is required", ErrValidation)
	case strings.TrimSpace(r.Phone) == "":
		return fmt.Errorf("%w: phone is required", ErrValidation)
	case strings.TrimSpace(r.Email) == "":
		return fmt.Errorf("%w: email is required", ErrValidation)
	case r.BookID <= 0:
		return fmt.Errorf("%w: invalid book id", ErrValidation)
	case r.Quantity < 1:
		return fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	case strings.TrimSpace(r.ReturnURL) == "":
		return fmt.Errorf("%w: return URL is required", ErrValidation)
	}
	return nil
}

// InitiatePurchase checks availability, opens a checkout session with the
// gateway and then persists the pending order. The order row must be durable
// before the gateway's callback can act on it, so a persistence failure after
// a successful Initialize is alert-level: money can be collected with no
// local record.
func (c *Coordinator) InitiatePurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	book, err := store.GetBook(ctx, c.db, req.BookID)
	if err != nil {
		return nil, err
	}

	// Optimistic check only. The authoritative guard is the conditional
	// decrement at confirmation time.
	if book.Quantity < req.Quantity {
		return nil, database.ErrInsufficientStock
	}

	txRef := "tx-bookbuy-" + uuid.NewString()
	total := book.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))

	checkoutURL, err := c.gateway.Initialize(ctx, payment.InitializeRequest{
		Amount:      total,
		Currency:    c.opts.Currency,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Email:       req.Email,
		TxRef:       txRef,
		CallbackURL: c.opts.CallbackBaseURL + "/order/verify-payment/" + txRef,
		ReturnURL:   req.ReturnURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentInit, err)
	}

	_, err = store.CreateOrder(ctx, c.db, store.CreateOrderRequest{
		TxRef:      txRef,
		BuyerName:  req.FirstName + " " + req.LastName,
		BuyerPhone: req.Phone,
		BuyerEmail: req.Email,
		SellerID:   book.SellerID,
		BookID:     book.ID,
		Title:      book.Title,
		UnitPrice:  book.Price,
		Quantity:   req.Quantity,
		ImageURL:   book.ImageURL,
	})
	if err != nil {
		// Checkout is live but we have no ledger row for it.
		log.Printf("ALERT [settlement] checkout initialized but order not persisted, tx_ref=%s: %v", txRef, err)
		return nil, fmt.Errorf("persist order for tx_ref %s: %w", txRef, err)
	}

	return &PurchaseResult{CheckoutURL: checkoutURL, TxRef: txRef}, nil
}

type ConfirmStatus string

const (
	ConfirmProcessed        ConfirmStatus = "processed"
	ConfirmAlreadyProcessed ConfirmStatus = "already processed"
)

// ConfirmPayment handles the gateway's payment callback. Delivery is
// at-least-once, so the verified flag on the order is the idempotency gate:
// only the caller that flips it runs the inventory, payout and notification
// side effects.
func (c *Coordinator) ConfirmPayment(ctx context.Context, txRef string) (ConfirmStatus, error) {
	order, err := store.GetOrderByTxRef(ctx, c.db, txRef)
	if err != nil {
		return "", err
	}

	if order.Verified {
		return ConfirmAlreadyProcessed, nil
	}

	// The seller cancelled before the payment settled. Money may have been
	// collected for a dead order; that is an operator problem, not a
	// duplicate callback.
	if order.Status != models.OrderStatusPending {
		log.Printf("ALERT [settlement] tx_ref=%s callback for unverified %s order; refund needed", txRef, order.Status)
		return "", fmt.Errorf("%w: tx_ref %s is %s but unverified", ErrReconciliationRequired, txRef, order.Status)
	}

	// Never trust the callback itself; ask the gateway what it recorded.
	result, err := c.gateway.Verify(ctx, txRef)
	if err != nil {
		if errors.Is(err, payment.ErrOutcomeUnknown) {
			return "", fmt.Errorf("%w: verify tx_ref %s: %v", ErrReconciliationRequired, txRef, err)
		}
		return "", fmt.Errorf("verify tx_ref %s: %w", txRef, err)
	}
	if !result.Paid {
		return "", fmt.Errorf("tx_ref %s not paid according to gateway", txRef)
	}

	if !strings.EqualFold(result.Currency, c.opts.Currency) {
		return "", fmt.Errorf("tx_ref %s paid in %s but order is in %s", txRef, result.Currency, c.opts.Currency)
	}

	total := order.Total()
	if result.Amount.LessThan(total) {
		return "", fmt.Errorf("tx_ref %s paid %s but order total is %s", txRef, result.Amount, total)
	}

	// The book may be retired below; snapshot what the buyer email needs
	// first. A missing book means it was already retired by another order.
	book, err := store.GetBook(ctx, c.db, order.BookID)
	if err != nil && !errors.Is(err, database.ErrBookNotFound) {
		return "", err
	}

	seller, err := store.GetSeller(ctx, c.db, order.SellerID)
	if err != nil {
		return "", err
	}

	// Retried on serialization and deadlock failures; the verified CAS keeps
	// a replayed attempt from settling twice.
	var imageID, pdfID string
	err = database.WithRetry(ctx, c.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.MarkOrderVerified(ctx, tx, txRef); err != nil {
			return err
		}

		remaining, err := store.DecrementStock(ctx, tx, order.BookID, order.Quantity)
		if err != nil {
			return err
		}

		if remaining == 0 {
			imageID, pdfID, err = store.RetireBook(ctx, tx, order.BookID)
			if err != nil {
				return err
			}
		}

		if err := c.enqueuePayout(ctx, tx, order, seller); err != nil {
			return err
		}

		return c.enqueueConfirmationEmail(ctx, tx, order, seller, book)
	})
	if err != nil {
		if errors.Is(err, database.ErrAlreadyVerified) {
			// Lost a race with a duplicate callback; the winner handles
			// the side effects.
			return ConfirmAlreadyProcessed, nil
		}
		if errors.Is(err, database.ErrInvalidTransition) {
			// Cancelled between the fast-path check and the CAS.
			log.Printf("ALERT [settlement] tx_ref=%s callback for cancelled order; refund needed", txRef)
			return "", fmt.Errorf("%w: tx_ref %s settled after cancellation", ErrReconciliationRequired, txRef)
		}
		if errors.Is(err, database.ErrInsufficientStock) {
			log.Printf("ALERT [settlement] tx_ref=%s paid but stock is gone; refund needed", txRef)
		}
		return "", fmt.Errorf("settle tx_ref %s: %w", txRef, err)
	}

	// Best effort outside the transaction; a dangling stored object is a
	// cleanup problem, not a settlement problem.
	c.releaseAssets(ctx, imageID, pdfID)

	return ConfirmProcessed, nil
}

func (c *Coordinator) enqueuePayout(ctx context.Context, tx *sql.Tx, order *models.Order, seller *models.Seller) error {
	feeRate := decimal.NewFromFloat(c.opts.FeeRate)
	net := order.Total().Mul(decimal.NewFromInt(1).Sub(feeRate)).Round(2)

	bankCode := seller.BankCode
	if bankCode == 0 {
		bankCode = c.opts.FallbackBankCode
	}

	payload, err := json.Marshal(outbox.PayoutPayload{
		OrderID:       order.ID,
		TxRef:         order.TxRef,
		AccountName:   seller.Name,
		AccountNumber: seller.BankAccount,
		BankCode:      bankCode,
		Amount:        net,
		Currency:      c.opts.Currency,
		Reference:     "tx-booktransfer-" + uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("marshal payout payload: %w", err)
	}

	_, err = store.EnqueueJob(ctx, tx, models.JobKindPayout, payload)
	return err
}

func (c *Coordinator) enqueueConfirmationEmail(ctx context.Context, tx *sql.Tx, order *models.Order, seller *models.Seller, book *models.Book) error {
	var body strings.Builder
	fmt.Fprintf(&body, "Your order details are stated below:\n\n")
	fmt.Fprintf(&body, "Book name: %s\n", order.Title)
	fmt.Fprintf(&body, "Quantity: %d\n", order.Quantity)
	fmt.Fprintf(&body, "Total price: %s\n", order.Total())
	fmt.Fprintf(&body, "Order date: %s\n", order.OrderedAt.Format("2006-01-02"))
	fmt.Fprintf(&body, "Seller name: %s\n", seller.Name)
	fmt.Fprintf(&body, "Seller phone: %s\n", seller.Phone)
	if book != nil && book.BookType == models.BookTypeDigital && book.PDFURL != "" {
		fmt.Fprintf(&body, "Book PDF: %s\n", book.PDFURL)
	}

	payload, err := json.Marshal(outbox.EmailPayload{
		To:      order.BuyerEmail,
		Subject: "Your order has been created successfully",
		Body:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	_, err = store.EnqueueJob(ctx, tx, models.JobKindEmail, payload)
	return err
}

func (c *Coordinator) releaseAssets(ctx context.Context, ids ...string) {
	if c.remover == nil {
		return
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := c.remover.Remove(ctx, id); err != nil {
			log.Printf("[settlement] release stored asset %s: %v", id, err)
		}
	}
}

// FinishOrder marks a pending order Delivered. Only the order's seller may
// call it; terminal orders are not re-transitionable.
func (c *Coordinator) FinishOrder(ctx context.Context, orderID, sellerID int64) (*models.Order, error) {
	return c.transition(ctx, orderID, sellerID, models.OrderStatusDelivered,
		"Your order has been fulfilled successfully")
}

// CancelOrder marks a pending order Cancelled, under the same ownership and
// transition rules as FinishOrder.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID, sellerID int64) (*models.Order, error) {
	return c.transition(ctx, orderID, sellerID, models.OrderStatusCancelled,
		"Your order has been cancelled")
}

func (c *Coordinator) transition(ctx context.Context, orderID, sellerID int64, status, subject string) (*models.Order, error) {
	order, err := store.GetOrder(ctx, c.db, orderID)
	if err != nil {
		return nil, err
	}

	if order.SellerID != sellerID {
		return nil, ErrUnauthorized
	}

	updated, err := store.UpdateOrderStatus(ctx, c.db, orderID, status)
	if err != nil {
		return nil, err
	}

	// Notification is secondary to the committed transition; a failure here
	// is logged, never surfaced.
	if err := c.enqueueStatusEmail(ctx, updated, subject); err != nil {
		log.Printf("[settlement] enqueue %s notification for order %d: %v", status, orderID, err)
	}

	return updated, nil
}

func (c *Coordinator) enqueueStatusEmail(ctx context.Context, order *models.Order, subject string) error {
	seller, err := store.GetSeller(ctx, c.db, order.SellerID)
	if err != nil {
		return err
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Your order details are stated below:\n\n")
	fmt.Fprintf(&body, "Book name: %s\n", order.Title)
	fmt.Fprintf(&body, "Quantity: %d\n", order.Quantity)
	fmt.Fprintf(&body, "Order date: %s\n", order.OrderedAt.Format("2006-01-02"))
	fmt.Fprintf(&body, "Seller name: %s\n", seller.Name)
	fmt.Fprintf(&body, "Seller phone: %s\n", seller.Phone)

	payload, err := json.Marshal(outbox.EmailPayload{
		To:      order.BuyerEmail,
		Subject: subject,
		Body:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	return database.WithTransaction(ctx, c.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		_, err := store.EnqueueJob(ctx, tx, models.JobKindEmail, payload)
		return err
	})
}
