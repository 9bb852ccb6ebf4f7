package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/anbibu/bookstore/internal/database"
	"github.com/anbibu/bookstore/internal/models"
	"github.com/anbibu/bookstore/internal/settlement"
	"github.com/anbibu/bookstore/internal/store"
)

type Handlers struct {
	db          *sql.DB
	coordinator *settlement.Coordinator
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps settlement and store errors onto status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settlement.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, settlement.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, settlement.ErrPaymentInit):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, settlement.ErrReconciliationRequired):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, database.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrBookNotFound),
		errors.Is(err, database.ErrSellerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// sellerID reads the authenticated seller from the request. Session
// verification lives in front of this service; here the header is trusted.
func sellerID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-Seller-ID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func urlID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// --- orders ---

func (h *Handlers) BuyBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
		Email     string `json:"email"`
		BookID    int64  `json:"book_id"`
		Quantity  int    `json:"quantity"`
		ReturnURL string `json:"return_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	result, err := h.coordinator.InitiatePurchase(r.Context(), settlement.PurchaseRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Email:     req.Email,
		BookID:    req.BookID,
		Quantity:  req.Quantity,
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	txRef := chi.URLParam(r, "txRef")
	if txRef == "" {
		writeError(w, http.StatusBadRequest, "missing transaction reference")
		return
	}

	status, err := h.coordinator.ConfirmPayment(r.Context(), txRef)
	if err != nil {
		// Non-2xx tells the gateway to retry per its own policy.
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *Handlers) FinishOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, h.coordinator.FinishOrder)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, h.coordinator.CancelOrder)
}

func (h *Handlers) transitionOrder(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) (*models.Order, error)) {
	seller, ok := sellerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing seller identity")
		return
	}

	id, ok := urlID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := fn(r.Context(), id, seller)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) OrderHistory(w http.ResponseWriter, r *http.Request) {
	seller, ok := sellerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing seller identity")
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v >= 1 && v <= 100 {
		limit = v
	}

	page, err := store.ListOrdersBySeller(r.Context(), h.db, seller, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// --- books ---

func (h *Handlers) CreateBook(w http.ResponseWriter, r *http.Request) {
	seller, ok := sellerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing seller identity")
		return
	}

	var req struct {
		Title       string   `json:"title"`
		Author      string   `json:"author"`
		PublishYear int      `json:"publish_year"`
		Genre       []string `json:"genre"`
		BookType    string   `json:"book_type"`
		Description string   `json:"description"`
		Price       float64  `json:"price"`
		Quantity    int      `json:"quantity"`
		ImageID     string   `json:"image_id"`
		ImageURL    string   `json:"image_url"`
		PDFID       string   `json:"pdf_id"`
		PDFURL      string   `json:"pdf_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.Author == "" {
		writeError(w, http.StatusBadRequest, "title and author are required")
		return
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	book, err := store.CreateBook(r.Context(), h.db, store.CreateBookRequest{
		SellerID:    seller,
		Title:       req.Title,
		Author:      req.Author,
		PublishYear: req.PublishYear,
		Genre:       req.Genre,
		BookType:    req.BookType,
		Description: req.Description,
		Price:       decimal.NewFromFloat(req.Price),
		Quantity:    req.Quantity,
		ImageID:     req.ImageID,
		ImageURL:    req.ImageURL,
		PDFID:       req.PDFID,
		PDFURL:      req.PDFURL,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, book)
}

func (h *Handlers) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	book, err := store.GetBook(r.Context(), h.db, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

func (h *Handlers) ListBooks(w http.ResponseWriter, r *http.Request) {
	page := parseIntDefault(r.URL.Query().Get("page"), 1)
	pageSize := parseIntDefault(r.URL.Query().Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 20
	}

	result, err := store.ListBooks(r.Context(), h.db, page, pageSize)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- sellers ---

func (h *Handlers) CreateSeller(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		Username    string `json:"username"`
		Phone       string `json:"phone"`
		Location    string `json:"location"`
		BankAccount string `json:"bank_account"`
		BankCode    int    `json:"bank_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Username == "" || req.Phone == "" || req.BankAccount == "" {
		writeError(w, http.StatusBadRequest, "name, email, username, phone and bank_account are required")
		return
	}

	seller, err := store.CreateSeller(r.Context(), h.db, store.CreateSellerRequest{
		Name:        req.Name,
		Email:       req.Email,
		Username:    req.Username,
		Phone:       req.Phone,
		Location:    req.Location,
		BankAccount: req.BankAccount,
		BankCode:    req.BankCode,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, seller)
}

func (h *Handlers) GetSeller(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid seller id")
		return
	}

	seller, err := store.GetSeller(r.Context(), h.db, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, seller)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}
