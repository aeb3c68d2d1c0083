package trust

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ListFetcher retrieves the signed trust-list document from the distribution
// backend.
type ListFetcher interface {
	FetchTrustList(ctx context.Context) (string, error)
}

// SnapshotStore persists the last accepted signed document so the service can
// restore the trust list across restarts without a network round trip.
type SnapshotStore interface {
	SaveTrustList(ctx context.Context, signedDoc string) error
	LoadTrustList(ctx context.Context) (string, bool, error)
}

// Service keeps the trust store synchronized with the distribution backend.
// One Run invocation fetches, verifies and atomically swaps the list.
type Service struct {
	fetcher   ListFetcher
	decoder   *ListDecoder
	store     *Store
	snapshots SnapshotStore
	logger    *slog.Logger
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func WithSnapshotStore(snapshots SnapshotStore) ServiceOption {
	return func(s *Service) { s.snapshots = snapshots }
}

func NewService(fetcher ListFetcher, decoder *ListDecoder, store *Store, opts ...ServiceOption) (*Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("trust list fetcher is required")
	}
	if decoder == nil {
		return nil, fmt.Errorf("trust list decoder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("trust store is required")
	}

	svc := &Service{fetcher: fetcher, decoder: decoder, store: store}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Run refreshes the trust list once. A fetch or verification failure leaves
// the current list untouched; the caller retries on its own schedule.
func (s *Service) Run(ctx context.Context) error {
	doc, err := s.fetcher.FetchTrustList(ctx)
	if err != nil {
		return fmt.Errorf("fetch trust list: %w", err)
	}

	list, err := s.decoder.Decode(doc)
	if err != nil {
		return fmt.Errorf("decode trust list: %w", err)
	}

	s.store.Replace(list)

	if s.snapshots != nil {
		if err := s.snapshots.SaveTrustList(ctx, doc); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "trust list snapshot not persisted", "error", err)
		}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "trust list replaced", "entries", len(list.Certificates))
	}
	return nil
}

// Restore loads the persisted snapshot into the store, verifying it against
// the pinned key the same way a fresh download is verified.
func (s *Service) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	doc, ok, err := s.snapshots.LoadTrustList(ctx)
	if err != nil {
		return fmt.Errorf("load trust list snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	list, err := s.decoder.Decode(doc)
	if err != nil {
		return fmt.Errorf("decode trust list snapshot: %w", err)
	}
	s.store.Replace(list)
	return nil
}

// HTTPFetcher downloads the signed trust list over plain GET.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func (f *HTTPFetcher) FetchTrustList(ctx context.Context) (string, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/trustList", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("trust list endpoint returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
