package trust_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpass/internal/trust"
	"certpass/pkg/dgcerrors"
)

func parsedList(t *testing.T, entries ...map[string]string) trust.DscList {
	t.Helper()
	list, err := trust.ParseDscList([]byte(listPayload(t, entries...)))
	require.NoError(t, err)
	return list
}

func TestResolveExactMatch(t *testing.T) {
	store := trust.NewStore(parsedList(t,
		dscEntry(t, "DE", "kid-1"),
		dscEntry(t, "AT", "kid-2"),
	))

	key, err := store.Resolve("DE", []byte("kid-1"))
	require.NoError(t, err)
	assert.NotNil(t, key)
	assert.Equal(t, 2, store.Len())
}

func TestResolveNeverCrossesCountries(t *testing.T) {
	store := trust.NewStore(parsedList(t, dscEntry(t, "DE", "kid-1")))

	_, err := store.Resolve("AT", []byte("kid-1"))
	require.Error(t, err)
	assert.Equal(t, dgcerrors.CodeNotFound, dgcerrors.GetCode(err))

	_, err = store.Resolve("DE", []byte("kid-9"))
	require.Error(t, err)
	assert.Equal(t, dgcerrors.CodeNotFound, dgcerrors.GetCode(err))
}

func TestResolveAmbiguousPairFails(t *testing.T) {
	// Two distinct certificates registered under the same pair must never
	// resolve to a first match.
	store := trust.NewStore(parsedList(t,
		dscEntry(t, "DE", "kid-1"),
		dscEntry(t, "DE", "kid-1"),
	))

	_, err := store.Resolve("DE", []byte("kid-1"))
	require.Error(t, err)
	assert.Equal(t, dgcerrors.CodeInternal, dgcerrors.GetCode(err))
}

func TestReplaceSwapsWholeList(t *testing.T) {
	store := trust.NewStore(parsedList(t, dscEntry(t, "DE", "kid-1")))

	store.Replace(parsedList(t, dscEntry(t, "FR", "kid-3")))

	_, err := store.Resolve("DE", []byte("kid-1"))
	require.Error(t, err)
	_, err = store.Resolve("FR", []byte("kid-3"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestEmptyStoreResolvesNothing(t *testing.T) {
	store := trust.NewStore(trust.DscList{})
	_, err := store.Resolve("DE", []byte("kid-1"))
	require.Error(t, err)
	assert.Equal(t, 0, store.Len())
}
