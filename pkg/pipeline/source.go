package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// SourceStore fetches and removes uploaded export files.
type SourceStore interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
	Delete(ctx context.Context, location string) error
}

// maxSourceBytes caps how much of an export we will read.
const maxSourceBytes = 256 << 20

// LocalSourceStore reads exports from the local filesystem.
type LocalSourceStore struct{}

func (LocalSourceStore) Fetch(_ context.Context, location string) ([]byte, error) {
	raw, err := os.ReadFile(localPath(location))
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}
	return raw, nil
}

func (LocalSourceStore) Delete(_ context.Context, location string) error {
	if err := os.Remove(localPath(location)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing source file: %w", err)
	}
	return nil
}

func localPath(location string) string {
	return strings.TrimPrefix(location, "file://")
}

// HTTPSourceStore fetches exports over HTTP and deletes them with an HTTP
// DELETE, matching blob-store upload endpoints.
type HTTPSourceStore struct {
	client *http.Client
}

// NewHTTPSourceStore creates a store with a 5 minute fetch timeout.
func NewHTTPSourceStore() *HTTPSourceStore {
	return &HTTPSourceStore{
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (h *HTTPSourceStore) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("creating fetch request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source fetch returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("reading source body: %w", err)
	}
	return raw, nil
}

func (h *HTTPSourceStore) Delete(ctx context.Context, location string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, location, nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("source delete returned status %d", resp.StatusCode)
	}
	return nil
}

// StoreFor picks the store matching the location scheme.
func StoreFor(location string) SourceStore {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTPSourceStore()
	}
	return LocalSourceStore{}
}
