// Package storage wraps the hosted object store holding book images and PDFs.
// Uploads happen elsewhere; settlement only needs to release assets when a
// listing is retired.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/anbibu/bookstore/internal/config"
)

// Remover deletes a stored object by its public id.
type Remover interface {
	Remove(ctx context.Context, publicID string) error
}

type HTTPRemover struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPRemover(cfg *config.StorageConfig) *HTTPRemover {
	return &HTTPRemover{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (r *HTTPRemover) Remove(ctx context.Context, publicID string) error {
	form := url.Values{"public_id": {publicID}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/destroy", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build destroy request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("destroy %s: %w", publicID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("destroy %s: storage returned %d", publicID, resp.StatusCode)
	}

	return nil
}
