package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blip0/blip0/pkg/types"
)

func TestMatchRecordAndCounts(t *testing.T) {
	store := newStubStore()
	svc := NewMatchService(store)
	ctx := context.Background()
	tenantID := uuid.New()

	match, err := svc.RecordMatch(ctx, &types.MonitorMatch{
		TenantID:    tenantID,
		MonitorID:   uuid.New(),
		NetworkID:   uuid.New(),
		BlockNumber: 123,
		MatchData:   types.JSONMap{"event": "Transfer"},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, match.ID)

	require.NoError(t, svc.UpdateTriggerCounts(ctx, tenantID, match.ID, 2, 1))
	require.NoError(t, svc.UpdateTriggerCounts(ctx, tenantID, match.ID, 1, 0))

	got, err := svc.Get(ctx, tenantID, match.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TriggersExecuted)
	assert.Equal(t, 1, got.TriggersFailed)

	// Counts only grow; negatives are rejected before the database.
	assert.Error(t, svc.UpdateTriggerCounts(ctx, tenantID, match.ID, -1, 0))
	// A no-op delta never touches the store.
	require.NoError(t, svc.UpdateTriggerCounts(ctx, tenantID, uuid.New(), 0, 0))

	// Another tenant cannot read or grow the match.
	other := uuid.New()
	_, err = svc.Get(ctx, other, match.ID)
	assert.Error(t, err)
	assert.Error(t, svc.UpdateTriggerCounts(ctx, other, match.ID, 1, 0))
	assert.Equal(t, 3, store.matches[match.ID].TriggersExecuted)
}

func TestMatchRecordRejectsBadInput(t *testing.T) {
	svc := NewMatchService(newStubStore())
	ctx := context.Background()

	_, err := svc.RecordMatch(ctx, &types.MonitorMatch{
		TenantID:  uuid.New(),
		NetworkID: uuid.New(),
	})
	assert.Error(t, err)

	_, err = svc.RecordMatch(ctx, &types.MonitorMatch{
		TenantID:    uuid.New(),
		MonitorID:   uuid.New(),
		NetworkID:   uuid.New(),
		BlockNumber: -1,
	})
	assert.Error(t, err)
}

func TestGetRecentMatchesDefaults(t *testing.T) {
	store := newStubStore()
	svc := NewMatchService(store)
	ctx := context.Background()
	tenantID := uuid.New()
	monitorID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := svc.RecordMatch(ctx, &types.MonitorMatch{
			TenantID:    tenantID,
			MonitorID:   monitorID,
			NetworkID:   uuid.New(),
			BlockNumber: int64(i),
		})
		require.NoError(t, err)
	}
	_, err := svc.RecordMatch(ctx, &types.MonitorMatch{
		TenantID:    tenantID,
		MonitorID:   uuid.New(),
		NetworkID:   uuid.New(),
		BlockNumber: 99,
	})
	require.NoError(t, err)

	all, err := svc.GetRecentMatches(ctx, tenantID, nil, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, defaultMatchLimit, store.lastLimit)
	assert.WithinDuration(t, time.Now().UTC().Add(-defaultMatchWindowHours*time.Hour), store.lastSince, 5*time.Second)

	scoped, err := svc.GetRecentMatches(ctx, tenantID, &monitorID, 1, 2000)
	require.NoError(t, err)
	assert.Len(t, scoped, 3)
	assert.Equal(t, maxMatchLimit, store.lastLimit)
}
