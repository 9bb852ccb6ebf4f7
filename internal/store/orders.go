package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/anbibu/bookstore/internal/database"
	"github.com/anbibu/bookstore/internal/models"
)

type CreateOrderRequest struct {
	TxRef      string
	BuyerName  string
	BuyerPhone string
	BuyerEmail string
	SellerID   int64
	BookID     int64
	Title      string
	UnitPrice  decimal.Decimal
	Quantity   int
	ImageURL   string
}

const orderColumns = `id, tx_ref, buyer_name, buyer_phone, buyer_email, seller_id, book_id,
	 title, unit_price, quantity, status, verified, image_url,
	 ordered_at, delivered_at, created_at, updated_at, version`

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.TxRef,
		&order.BuyerName,
		&order.BuyerPhone,
		&order.BuyerEmail,
		&order.SellerID,
		&order.BookID,
		&order.Title,
		&order.UnitPrice,
		&order.Quantity,
		&order.Status,
		&order.Verified,
		&order.ImageURL,
		&order.OrderedAt,
		&order.DeliveredAt,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CreateOrder inserts a Pending, unverified order row. The tx_ref unique
// constraint rejects duplicate references.
func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	query := `
		INSERT INTO orders (tx_ref, buyer_name, buyer_phone, buyer_email, seller_id, book_id,
		                    title, unit_price, quantity, status, verified, image_url,
		                    ordered_at, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, NOW(), NOW(), NOW(), 1)
		RETURNING ` + orderColumns

	order, err := scanOrder(db.QueryRowContext(ctx, query,
		req.TxRef, req.BuyerName, req.BuyerPhone, req.BuyerEmail,
		req.SellerID, req.BookID, req.Title, req.UnitPrice, req.Quantity,
		models.OrderStatusPending, req.ImageURL))
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return order, nil
}

func GetOrderByTxRef(ctx context.Context, db *sql.DB, txRef string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE tx_ref = $1`

	order, err := scanOrder(db.QueryRowContext(ctx, query, txRef))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by tx_ref: %w", err)
	}

	return order, nil
}

// MarkOrderVerified flips the verified flag from false to true in a single
// conditional update. Exactly one caller wins when duplicate payment
// callbacks race; losers get ErrAlreadyVerified. The status guard keeps a
// late callback from verifying an order the seller already cancelled; that
// case reports ErrInvalidTransition so the caller can route it to
// reconciliation instead of treating it as a duplicate.
func MarkOrderVerified(ctx context.Context, tx *sql.Tx, txRef string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET verified = TRUE, updated_at = NOW(), version = version + 1
		 WHERE tx_ref = $1
		   AND verified = FALSE
		   AND status = '`+models.OrderStatusPending+`'`,
		txRef)
	if err != nil {
		return fmt.Errorf("mark order verified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var verified bool
		err := tx.QueryRowContext(ctx,
			`SELECT verified FROM orders WHERE tx_ref = $1`, txRef).Scan(&verified)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("check order verification: %w", err)
		}
		if verified {
			return database.ErrAlreadyVerified
		}
		return database.ErrInvalidTransition
	}

	return nil
}

// UpdateOrderStatus moves a Pending order to a terminal status. Terminal
// orders are never re-transitioned, so the update is guarded on the current
// status rather than read-then-write.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id int64, status string) (*models.Order, error) {
	query := `
		UPDATE orders
		SET status = $1,
		    delivered_at = CASE WHEN $1 = '` + models.OrderStatusDelivered + `' THEN NOW() ELSE delivered_at END,
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $2
		  AND status = '` + models.OrderStatusPending + `'
		RETURNING ` + orderColumns

	order, err := scanOrder(db.QueryRowContext(ctx, query, status, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrInvalidTransition
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return order, nil
}

// ListPendingUnverified returns unverified Pending orders placed before the
// cutoff, oldest first. The reconciliation sweep uses this to re-query the
// gateway for orders whose confirmation callback never landed.
func ListPendingUnverified(ctx context.Context, db *sql.DB, olderThan time.Time, limit int) ([]models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		  AND verified = FALSE
		  AND ordered_at < $2
		ORDER BY ordered_at
		LIMIT $3`

	rows, err := db.QueryContext(ctx, query, models.OrderStatusPending, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending unverified orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

func ListOrdersBySeller(ctx context.Context, db *sql.DB, sellerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE seller_id = $1
		  AND (ordered_at, id) < ($2, $3)
		ORDER BY ordered_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, sellerID, cursorData.OrderedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			OrderedAt: lastOrder.OrderedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
