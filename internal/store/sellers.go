package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anbibu/bookstore/internal/database"
	"github.com/anbibu/bookstore/internal/models"
)

type CreateSellerRequest struct {
	Name        string
	Email       string
	Username    string
	Phone       string
	Location    string
	BankAccount string
	BankCode    int
}

const sellerColumns = `id, name, email, username, phone, location, bank_account, bank_code,
	 created_at, updated_at, version`

func scanSeller(row interface{ Scan(...any) error }) (*models.Seller, error) {
	seller := &models.Seller{}
	err := row.Scan(
		&seller.ID,
		&seller.Name,
		&seller.Email,
		&seller.Username,
		&seller.Phone,
		&seller.Location,
		&seller.BankAccount,
		&seller.BankCode,
		&seller.CreatedAt,
		&seller.UpdatedAt,
		&seller.Version,
	)
	if err != nil {
		return nil, err
	}
	return seller, nil
}

func CreateSeller(ctx context.Context, db *sql.DB, req CreateSellerRequest) (*models.Seller, error) {
	query := `
		INSERT INTO sellers (name, email, username, phone, location, bank_account, bank_code,
		                     created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		RETURNING ` + sellerColumns

	seller, err := scanSeller(db.QueryRowContext(ctx, query,
		req.Name, req.Email, req.Username, req.Phone, req.Location,
		req.BankAccount, req.BankCode))
	if err != nil {
		return nil, fmt.Errorf("create seller: %w", err)
	}

	return seller, nil
}

func GetSeller(ctx context.Context, db *sql.DB, id int64) (*models.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE id = $1`

	seller, err := scanSeller(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrSellerNotFound
		}
		return nil, fmt.Errorf("get seller: %w", err)
	}

	return seller, nil
}
