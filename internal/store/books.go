package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/anbibu/bookstore/internal/database"
	"github.com/anbibu/bookstore/internal/models"
)

type CreateBookRequest struct {
	SellerID    int64
	Title       string
	Author      string
	PublishYear int
	Genre       []string
	BookType    string
	Description string
	Price       decimal.Decimal
	Quantity    int
	ImageID     string
	ImageURL    string
	PDFID       string
	PDFURL      string
}

const bookColumns = `id, seller_id, title, author, publish_year, genre, book_type, description,
	 price, quantity, image_id, image_url, pdf_id, pdf_url,
	 created_at, updated_at, version`

func scanBook(row interface{ Scan(...any) error }) (*models.Book, error) {
	book := &models.Book{}
	err := row.Scan(
		&book.ID,
		&book.SellerID,
		&book.Title,
		&book.Author,
		&book.PublishYear,
		pq.Array(&book.Genre),
		&book.BookType,
		&book.Description,
		&book.Price,
		&book.Quantity,
		&book.ImageID,
		&book.ImageURL,
		&book.PDFID,
		&book.PDFURL,
		&book.CreatedAt,
		&book.UpdatedAt,
		&book.Version,
	)
	if err != nil {
		return nil, err
	}
	return book, nil
}

func CreateBook(ctx context.Context, db *sql.DB, req CreateBookRequest) (*models.Book, error) {
	if req.BookType == "" {
		req.BookType = models.BookTypePhysical
	}

	query := `
		INSERT INTO books (seller_id, title, author, publish_year, genre, book_type, description,
		                   price, quantity, image_id, image_url, pdf_id, pdf_url,
		                   created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW(), 1)
		RETURNING ` + bookColumns

	book, err := scanBook(db.QueryRowContext(ctx, query,
		req.SellerID, req.Title, req.Author, req.PublishYear, pq.Array(req.Genre),
		req.BookType, req.Description, req.Price, req.Quantity,
		req.ImageID, req.ImageURL, req.PDFID, req.PDFURL))
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}

	return book, nil
}

func GetBook(ctx context.Context, db *sql.DB, id int64) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	book, err := scanBook(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}

	return book, nil
}

// DecrementStock subtracts quantity from a book's stock in a single
// conditional update. The quantity >= $1 guard keeps stock non-negative when
// concurrent confirmations race; losers get ErrInsufficientStock.
func DecrementStock(ctx context.Context, tx *sql.Tx, bookID int64, quantity int) (remaining int, err error) {
	err = tx.QueryRowContext(ctx,
		`UPDATE books
		 SET quantity = quantity - $1,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		   AND quantity >= $1
		 RETURNING quantity`,
		quantity, bookID).Scan(&remaining)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, database.ErrInsufficientStock
		}
		return 0, fmt.Errorf("decrement stock: %w", err)
	}

	return remaining, nil
}

// RetireBook deletes an exhausted listing and returns the storage object ids
// that back it, so the caller can release the stored image and PDF.
func RetireBook(ctx context.Context, tx *sql.Tx, bookID int64) (imageID, pdfID string, err error) {
	err = tx.QueryRowContext(ctx,
		`DELETE FROM books WHERE id = $1 RETURNING image_id, pdf_id`,
		bookID).Scan(&imageID, &pdfID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", "", database.ErrBookNotFound
		}
		return "", "", fmt.Errorf("retire book: %w", err)
	}

	return imageID, pdfID, nil
}

func ListBooks(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + bookColumns + `
		FROM books
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, *book)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      books,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}
