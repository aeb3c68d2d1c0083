package booster_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpass/internal/booster"
	"certpass/pkg/dgcerrors"
)

func TestMemoryGroupStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := booster.NewMemoryGroupStore()

	group := booster.Group{ID: uuid.New(), PersonKey: "MUSTERMANN<<ERIKA<<1964-08-12"}
	require.NoError(t, s.Save(ctx, group))

	got, err := s.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, group.PersonKey, got.PersonKey)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.Delete(ctx, group.ID))
	_, err = s.Get(ctx, group.ID)
	require.Error(t, err)
	assert.Equal(t, dgcerrors.CodeNotFound, dgcerrors.GetCode(err))
}

func TestMemoryGroupStoreUpdateState(t *testing.T) {
	ctx := context.Background()
	s := booster.NewMemoryGroupStore()

	group := booster.Group{ID: uuid.New()}
	require.NoError(t, s.Save(ctx, group))

	require.NoError(t, s.UpdateState(ctx, group.ID, func(g *booster.Group) {
		g.SeenRuleIDs = append(g.SeenRuleIDs, "BNR-DE-0416")
		g.HasSeenNotification = true
	}))

	got, err := s.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"BNR-DE-0416"}, got.SeenRuleIDs)
	assert.True(t, got.HasSeenNotification)
}

func TestMemoryGroupStoreUpdateStateUnknownGroup(t *testing.T) {
	s := booster.NewMemoryGroupStore()
	err := s.UpdateState(context.Background(), uuid.New(), func(*booster.Group) {})
	require.Error(t, err)
	assert.Equal(t, dgcerrors.CodeNotFound, dgcerrors.GetCode(err))
}
