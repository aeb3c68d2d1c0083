package trust_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpass/internal/trust"
)

type fakeFetcher struct {
	doc string
	err error
}

func (f *fakeFetcher) FetchTrustList(context.Context) (string, error) {
	return f.doc, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunReplacesStoreAndSavesSnapshot(t *testing.T) {
	anchor := newAnchor(t)
	doc := signDoc(t, anchor, listPayload(t, dscEntry(t, "DE", "kid-1")))
	store := trust.NewStore(trust.DscList{})
	snapshots := trust.NewMemorySnapshotStore()

	svc, err := trust.NewService(&fakeFetcher{doc: doc}, trust.NewListDecoder(&anchor.PublicKey), store,
		trust.WithLogger(discardLogger()),
		trust.WithSnapshotStore(snapshots),
	)
	require.NoError(t, err)

	require.NoError(t, svc.Run(context.Background()))

	_, err = store.Resolve("DE", []byte("kid-1"))
	require.NoError(t, err)

	saved, ok, err := snapshots.LoadTrustList(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc, saved)
}

func TestRunFetchFailureLeavesStoreUntouched(t *testing.T) {
	anchor := newAnchor(t)
	store := trust.NewStore(parsedList(t, dscEntry(t, "DE", "kid-1")))

	svc, err := trust.NewService(&fakeFetcher{err: fmt.Errorf("connection refused")},
		trust.NewListDecoder(&anchor.PublicKey), store)
	require.NoError(t, err)

	require.Error(t, svc.Run(context.Background()))

	_, err = store.Resolve("DE", []byte("kid-1"))
	assert.NoError(t, err)
}

func TestRunRejectsTamperedDocument(t *testing.T) {
	anchor := newAnchor(t)
	doc := signDoc(t, anchor, listPayload(t, dscEntry(t, "FR", "kid-3"))) + "tampered"
	store := trust.NewStore(parsedList(t, dscEntry(t, "DE", "kid-1")))

	svc, err := trust.NewService(&fakeFetcher{doc: doc}, trust.NewListDecoder(&anchor.PublicKey), store)
	require.NoError(t, err)

	require.Error(t, svc.Run(context.Background()))

	// Previous list stays in effect.
	_, err = store.Resolve("DE", []byte("kid-1"))
	assert.NoError(t, err)
	_, err = store.Resolve("FR", []byte("kid-3"))
	assert.Error(t, err)
}

func TestRestoreVerifiesSnapshot(t *testing.T) {
	anchor := newAnchor(t)
	doc := signDoc(t, anchor, listPayload(t, dscEntry(t, "DE", "kid-1")))
	snapshots := trust.NewMemorySnapshotStore()
	require.NoError(t, snapshots.SaveTrustList(context.Background(), doc))

	store := trust.NewStore(trust.DscList{})
	svc, err := trust.NewService(&fakeFetcher{}, trust.NewListDecoder(&anchor.PublicKey), store,
		trust.WithSnapshotStore(snapshots))
	require.NoError(t, err)

	require.NoError(t, svc.Restore(context.Background()))
	_, err = store.Resolve("DE", []byte("kid-1"))
	assert.NoError(t, err)
}

func TestRestoreRejectsTamperedSnapshot(t *testing.T) {
	anchor := newAnchor(t)
	doc := signDoc(t, anchor, listPayload(t, dscEntry(t, "DE", "kid-1"))) + "tampered"
	snapshots := trust.NewMemorySnapshotStore()
	require.NoError(t, snapshots.SaveTrustList(context.Background(), doc))

	store := trust.NewStore(trust.DscList{})
	svc, err := trust.NewService(&fakeFetcher{}, trust.NewListDecoder(&anchor.PublicKey), store,
		trust.WithSnapshotStore(snapshots))
	require.NoError(t, err)

	require.Error(t, svc.Restore(context.Background()))
	assert.Equal(t, 0, store.Len())
}

func TestRestoreWithoutSnapshotIsNoop(t *testing.T) {
	anchor := newAnchor(t)
	store := trust.NewStore(trust.DscList{})
	svc, err := trust.NewService(&fakeFetcher{}, trust.NewListDecoder(&anchor.PublicKey), store,
		trust.WithSnapshotStore(trust.NewMemorySnapshotStore()))
	require.NoError(t, err)

	require.NoError(t, svc.Restore(context.Background()))
	assert.Equal(t, 0, store.Len())
}

func TestNewServiceValidation(t *testing.T) {
	anchor := newAnchor(t)
	decoder := trust.NewListDecoder(&anchor.PublicKey)
	store := trust.NewStore(trust.DscList{})

	_, err := trust.NewService(nil, decoder, store)
	assert.Error(t, err)
	_, err = trust.NewService(&fakeFetcher{}, nil, store)
	assert.Error(t, err)
	_, err = trust.NewService(&fakeFetcher{}, decoder, nil)
	assert.Error(t, err)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trustList", r.URL.Path)
		fmt.Fprint(w, "signed-document-body")
	}))
	defer srv.Close()

	fetcher := &trust.HTTPFetcher{BaseURL: srv.URL, Client: srv.Client()}
	doc, err := fetcher.FetchTrustList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "signed-document-body", doc)
}

func TestHTTPFetcherRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	fetcher := &trust.HTTPFetcher{BaseURL: srv.URL, Client: srv.Client()}
	_, err := fetcher.FetchTrustList(context.Background())
	require.Error(t, err)
}
