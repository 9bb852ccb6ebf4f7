package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/anbibu/bookstore/internal/database"
	"github.com/anbibu/bookstore/internal/models"
	"github.com/anbibu/bookstore/internal/store"
	"github.com/anbibu/bookstore/internal/testutil"
)

func createTestSeller(t *testing.T, db *sql.DB, email, username, phone string) *models.Seller {
	t.Helper()
	seller, err := store.CreateSeller(context.Background(), db, store.CreateSellerRequest{
		Name:        "Test Seller",
		Email:       email,
		Username:    username,
		Phone:       phone,
		Location:    "Addis Ababa",
		BankAccount: "1000123456789",
		BankCode:    946,
	})
	if err != nil {
		t.Fatalf("Create seller: %v", err)
	}
	return seller
}

func createTestBook(t *testing.T, db *sql.DB, sellerID int64, price int64, quantity int) *models.Book {
	t.Helper()
	book, err := store.CreateBook(context.Background(), db, store.CreateBookRequest{
		SellerID: sellerID,
		Title:    "Test Book",
		Author:   "Test Author",
		Price:    decimal.NewFromInt(price),
		Quantity: quantity,
		ImageID:  "img-1",
		ImageURL: "https://images.example/img-1",
	})
	if err != nil {
		t.Fatalf("Create book: %v", err)
	}
	return book
}

func createTestOrder(t *testing.T, db *sql.DB, seller *models.Seller, book *models.Book, txRef string, quantity int) *models.Order {
	t.Helper()
	order, err := store.CreateOrder(context.Background(), db, store.CreateOrderRequest{
		TxRef:      txRef,
		BuyerName:  "Abebe Bikila",
		BuyerPhone: "+251911000000",
		BuyerEmail: "buyer@example.com",
		SellerID:   seller.ID,
		BookID:     book.ID,
		Title:      book.Title,
		UnitPrice:  book.Price,
		Quantity:   quantity,
		ImageURL:   book.ImageURL,
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}
	return order
}

func TestCreateOrder(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seller := createTestSeller(t, db, "s1@example.com", "seller1", "+251911111111")
	book := createTestBook(t, db, seller.ID, 100, 5)

	order := createTestOrder(t, db, seller, book, "tx-bookbuy-create-1", 2)

	if order.ID == 0 {
		t.Error("Order ID should not be 0")
	}
	if order.Status != models.OrderStatusPending {
		t.Errorf("Expected status Pending, got %s", order.Status)
	}
	if order.Verified {
		t.Error("New order must not be verified")
	}

	fetched, err := store.GetOrderByTxRef(ctx, db, "tx-bookbuy-create-1")
	if err != nil {
		t.Fatalf("Get order by tx_ref: %v", err)
	}
	if fetched.ID != order.ID {
		t.Errorf("Expected order %d, got %d", order.ID, fetched.ID)
	}

	// tx_ref is unique.
	_, err = store.CreateOrder(ctx, db, store.CreateOrderRequest{
		TxRef:      "tx-bookbuy-create-1",
		BuyerName:  "Other Buyer",
		BuyerPhone: "+251911000001",
		BuyerEmail: "other@example.com",
		SellerID:   seller.ID,
		BookID:     book.ID,
		Title:      book.Title,
		UnitPrice:  book.Price,
		Quantity:   1,
	})
	if !database.IsUniqueViolation(err) {
		t.Errorf("Expected unique violation for duplicate tx_ref, got: %v", err)
	}
}

func TestMarkOrderVerifiedOnce(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seller := createTestSeller(t, db, "s2@example.com", "seller2", "+251911111112")
	book := createTestBook(t, db, seller.ID, 100, 5)
	createTestOrder(t, db, seller, book, "tx-bookbuy-verify-1", 1)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.MarkOrderVerified(ctx, tx, "tx-bookbuy-verify-1")
	})
	if err != nil {
		t.Fatalf("First verification should succeed: %v", err)
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.MarkOrderVerified(ctx, tx, "tx-bookbuy-verify-1")
	})
	if err != database.ErrAlreadyVerified {
		t.Errorf("Expected ErrAlreadyVerified, got: %v", err)
	}
}

func TestMarkOrderVerifiedRejectsCancelledOrder(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seller := createTestSeller(t, db, "s8@example.com", "seller8", "+251911111118")
	book := createTestBook(t, db, seller.ID, 100, 5)
	order := createTestOrder(t, db, seller, book, "tx-bookbuy-cancelled-1", 1)

	if _, err := store.UpdateOrderStatus(ctx, db, order.ID, models.OrderStatusCancelled); err != nil {
		t.Fatalf("Cancel should succeed: %v", err)
	}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.MarkOrderVerified(ctx, tx, "tx-bookbuy-cancelled-1")
	})
	if err != database.ErrInvalidTransition {
		t.Errorf("Expected ErrInvalidTransition for cancelled order, got: %v", err)
	}

	got, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.Verified {
		t.Error("Cancelled order must not become verified")
	}
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seller := createTestSeller(t, db, "s3@example.com", "seller3", "+251911111113")
	book := createTestBook(t, db, seller.ID, 100, 5)
	order := createTestOrder(t, db, seller, book, "tx-bookbuy-status-1", 1)

	delivered, err := store.UpdateOrderStatus(ctx, db, order.ID, models.OrderStatusDelivered)
	if err != nil {
		t.Fatalf("Pending -> Delivered should succeed: %v", err)
	}
	if delivered.Status != models.OrderStatusDelivered {
		t.Errorf("Expected Delivered, got %s", delivered.Status)
	}
	if delivered.DeliveredAt == nil {
		t.Error("Delivered order should have a delivery timestamp")
	}

	_, err = store.UpdateOrderStatus(ctx, db, order.ID, models.OrderStatusCancelled)
	if err != database.ErrInvalidTransition {
		t.Errorf("Terminal order must not re-transition, got: %v", err)
	}

	after, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.Status != models.OrderStatusDelivered {
		t.Errorf("Status changed by rejected transition: %s", after.Status)
	}
}

func TestDecrementStockConcurrent(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seller := createTestSeller(t, db, "s4@example.com", "seller4", "+251911111114")
	book := createTestBook(t, db, seller.ID, 100, 5)

	// 4 decrements of 2 against stock of 5: exactly 2 can win.
	concurrency := 4
	results := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			results <- database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
				_, err := store.DecrementStock(ctx, tx, book.ID, 2)
				return err
			})
		}()
	}

	successCount := 0
	for i := 0; i < concurrency; i++ {
		if err := <-results; err == nil {
			successCount++
		} else if err != database.ErrInsufficientStock {
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount != 2 {
		t.Errorf("Expected 2 successful decrements, got %d", successCount)
	}

	after, err := store.GetBook(ctx, db, book.ID)
	if err != nil {
		t.Fatalf("Get book: %v", err)
	}
	if after.Quantity != 1 {
		t.Errorf("Expected quantity 1, got %d", after.Quantity)
	}
}

func TestRetireBook(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seller := createTestSeller(t, db, "s5@example.com", "seller5", "+251911111115")
	book := createTestBook(t, db, seller.ID, 100, 1)

	var imageID, pdfID string
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := store.DecrementStock(ctx, tx, book.ID, 1); err != nil {
			return err
		}
		var err error
		imageID, pdfID, err = store.RetireBook(ctx, tx, book.ID)
		return err
	})
	if err != nil {
		t.Fatalf("Retire book: %v", err)
	}

	if imageID != "img-1" {
		t.Errorf("Expected image id img-1, got %q", imageID)
	}
	if pdfID != "" {
		t.Errorf("Expected empty pdf id, got %q", pdfID)
	}

	if _, err := store.GetBook(ctx, db, book.ID); err != database.ErrBookNotFound {
		t.Errorf("Expected ErrBookNotFound after retirement, got: %v", err)
	}
}

func TestListOrdersBySellerCursor(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seller := createTestSeller(t, db, "s6@example.com", "seller6", "+251911111116")
	book := createTestBook(t, db, seller.ID, 100, 100)

	for i := 0; i < 15; i++ {
		createTestOrder(t, db, seller, book, "tx-bookbuy-cursor-"+string(rune('a'+i)), 1)
	}

	page1, err := store.ListOrdersBySeller(ctx, db, seller.ID, "", 10)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}
	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}
	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}

	page2, err := store.ListOrdersBySeller(ctx, db, seller.ID, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}
	if page2.HasMore {
		t.Error("Page 2 should not have more results")
	}
}

func TestListPendingUnverified(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seller := createTestSeller(t, db, "s7@example.com", "seller7", "+251911111117")
	book := createTestBook(t, db, seller.ID, 100, 10)

	createTestOrder(t, db, seller, book, "tx-bookbuy-sweep-1", 1)
	verified := createTestOrder(t, db, seller, book, "tx-bookbuy-sweep-2", 1)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.MarkOrderVerified(ctx, tx, verified.TxRef)
	})
	if err != nil {
		t.Fatalf("Mark verified: %v", err)
	}

	// Cutoff in the future so both rows are old enough.
	cutoff := verified.OrderedAt.Add(time.Hour)
	orders, err := store.ListPendingUnverified(ctx, db, cutoff, 10)
	if err != nil {
		t.Fatalf("List pending unverified: %v", err)
	}

	if len(orders) != 1 {
		t.Fatalf("Expected 1 pending unverified order, got %d", len(orders))
	}
	if orders[0].TxRef != "tx-bookbuy-sweep-1" {
		t.Errorf("Expected tx-bookbuy-sweep-1, got %s", orders[0].TxRef)
	}
}
