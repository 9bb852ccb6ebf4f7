package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/anbibu/bookstore/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) (*ChapaClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewChapaClient(&config.GatewayConfig{
		BaseURL: server.URL,
		Secret:  "test-secret",
		Timeout: timeout,
	})
	return client, server
}

func TestInitialize(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-secret" {
			t.Errorf("Unexpected auth header %q", got)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("Decode payload: %v", err)
		}
		if payload["amount"] != "200" {
			t.Errorf("Expected amount 200, got %v", payload["amount"])
		}
		if payload["tx_ref"] != "tx-bookbuy-abc" {
			t.Errorf("Unexpected tx_ref %v", payload["tx_ref"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]string{"checkout_url": "https://checkout.chapa.co/abc"},
		})
	}, 5*time.Second)

	url, err := client.Initialize(context.Background(), InitializeRequest{
		Amount:    decimal.NewFromInt(200),
		Currency:  "ETB",
		FirstName: "Abebe",
		LastName:  "Bikila",
		Phone:     "+251911000000",
		TxRef:     "tx-bookbuy-abc",
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if url != "https://checkout.chapa.co/abc" {
		t.Errorf("Unexpected checkout URL %q", url)
	}
}

func TestInitializeRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "failed",
			"message": "invalid currency",
		})
	}, 5*time.Second)

	_, err := client.Initialize(context.Background(), InitializeRequest{Amount: decimal.NewFromInt(1)})
	if err == nil {
		t.Fatal("Expected error for rejected initialization")
	}
	if errors.Is(err, ErrOutcomeUnknown) {
		t.Error("A definite rejection must not be classified as unknown")
	}
}

func TestVerifyPaid(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/tx-bookbuy-abc" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"status":   "success",
				"amount":   200,
				"currency": "ETB",
			},
		})
	}, 5*time.Second)

	result, err := client.Verify(context.Background(), "tx-bookbuy-abc")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Paid {
		t.Error("Expected paid")
	}
	if !result.Amount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected amount 200, got %s", result.Amount)
	}
}

func TestVerifyUnpaid(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"status": "pending"},
		})
	}, 5*time.Second)

	result, err := client.Verify(context.Background(), "tx-bookbuy-abc")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Paid {
		t.Error("Pending transaction must not be paid")
	}
}

func TestServerErrorIsOutcomeUnknown(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, 5*time.Second)

	_, err := client.Verify(context.Background(), "tx-bookbuy-abc")
	if !errors.Is(err, ErrOutcomeUnknown) {
		t.Errorf("Expected ErrOutcomeUnknown for 5xx, got: %v", err)
	}
}

func TestTimeoutIsOutcomeUnknown(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, 50*time.Millisecond)

	err := client.Transfer(context.Background(), TransferRequest{
		AccountName:   "Almaz Ayana",
		AccountNumber: "1000987654321",
		Amount:        decimal.NewFromInt(190),
		Currency:      "ETB",
		Reference:     "tx-booktransfer-xyz",
	})
	if !errors.Is(err, ErrOutcomeUnknown) {
		t.Errorf("Expected ErrOutcomeUnknown for timeout, got: %v", err)
	}
}

func TestClientErrorIsDefiniteFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, 5*time.Second)

	_, err := client.Verify(context.Background(), "tx-bookbuy-abc")
	if err == nil {
		t.Fatal("Expected error for 401")
	}
	if errors.Is(err, ErrOutcomeUnknown) {
		t.Error("4xx is a definite failure, not unknown")
	}
}
