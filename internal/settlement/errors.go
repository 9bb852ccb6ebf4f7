package settlement

import "errors"

var (
	// ErrValidation marks bad caller input; nothing was persisted and no
	// gateway call was made.
	ErrValidation = errors.New("invalid purchase request")

	// ErrPaymentInit means the gateway rejected or failed the checkout
	// initialization; no order was created.
	ErrPaymentInit = errors.New("payment initialization failed")

	// ErrUnauthorized means the actor does not own the order.
	ErrUnauthorized = errors.New("not the seller of this order")

	// ErrReconciliationRequired means an operation's outcome is unknown and
	// automation must stop; the reconciliation sweep or an operator settles it.
	ErrReconciliationRequired = errors.New("outcome unknown, reconciliation required")
)
