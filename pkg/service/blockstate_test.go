package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blip0/blip0/pkg/types"
)

func TestBlockStateGetOrCreate(t *testing.T) {
	store := newStubStore()
	svc := NewBlockStateService(store)
	ctx := context.Background()
	tenantID, networkID := uuid.New(), uuid.New()

	state, err := svc.GetOrCreate(ctx, tenantID, networkID)
	require.NoError(t, err)
	assert.Equal(t, types.ProcessingStatusIdle, state.ProcessingStatus)
	assert.Nil(t, state.LastProcessedBlock)

	again, err := svc.GetOrCreate(ctx, tenantID, networkID)
	require.NoError(t, err)
	assert.Equal(t, state.ID, again.ID)
}

func TestBlockStateStatusTransitions(t *testing.T) {
	store := newStubStore()
	svc := NewBlockStateService(store)
	ctx := context.Background()
	tenantID, networkID := uuid.New(), uuid.New()

	msg := "rpc unreachable"
	state, err := svc.UpdateStatus(ctx, tenantID, networkID, types.ProcessingStatusError, &msg)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ErrorCount)
	require.NotNil(t, state.LastError)
	assert.Equal(t, msg, *state.LastError)
	require.NotNil(t, state.LastErrorAt)

	state, err = svc.UpdateStatus(ctx, tenantID, networkID, types.ProcessingStatusError, &msg)
	require.NoError(t, err)
	assert.Equal(t, 2, state.ErrorCount)

	// Pausing leaves the error run exactly as it stands.
	state, err = svc.UpdateStatus(ctx, tenantID, networkID, types.ProcessingStatusPaused, nil)
	require.NoError(t, err)
	assert.Equal(t, types.ProcessingStatusPaused, state.ProcessingStatus)
	assert.Equal(t, 2, state.ErrorCount)
	require.NotNil(t, state.LastError)
	assert.Equal(t, msg, *state.LastError)

	// Processing stamps progress and does not touch error fields.
	state, err = svc.UpdateStatus(ctx, tenantID, networkID, types.ProcessingStatusProcessing, nil)
	require.NoError(t, err)
	require.NotNil(t, state.LastProcessedAt)
	assert.Equal(t, 2, state.ErrorCount)
	assert.NotNil(t, state.LastError)

	// Idle clears the run and the last error.
	state, err = svc.UpdateStatus(ctx, tenantID, networkID, types.ProcessingStatusIdle, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, state.ErrorCount)
	assert.Nil(t, state.LastError)
	assert.NotNil(t, state.LastErrorAt)
}

func TestBlockStateProgressIsMonotonic(t *testing.T) {
	store := newStubStore()
	svc := NewBlockStateService(store)
	ctx := context.Background()
	tenantID, networkID := uuid.New(), uuid.New()

	state, err := svc.RecordProcessed(ctx, tenantID, networkID, 100)
	require.NoError(t, err)
	require.NotNil(t, state.LastProcessedBlock)
	assert.Equal(t, int64(100), *state.LastProcessedBlock)

	// An out-of-order report never moves the mark backwards.
	state, err = svc.RecordProcessed(ctx, tenantID, networkID, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(100), *state.LastProcessedBlock)

	state, err = svc.RecordProcessed(ctx, tenantID, networkID, 101)
	require.NoError(t, err)
	assert.Equal(t, int64(101), *state.LastProcessedBlock)
	assert.Equal(t, types.ProcessingStatusIdle, state.ProcessingStatus)
}

func TestBlockStateMetricsUpdate(t *testing.T) {
	store := newStubStore()
	svc := NewBlockStateService(store)
	ctx := context.Background()
	tenantID, networkID := uuid.New(), uuid.New()

	bpm := decimal.NewFromInt(30)

	state, err := svc.UpdateMetrics(ctx, tenantID, networkID, 500, bpm, 1000)
	require.NoError(t, err)
	require.NotNil(t, state.AverageProcessingTimeMS)
	assert.Equal(t, int64(1000), *state.AverageProcessingTimeMS)
	require.NotNil(t, state.LastProcessedBlock)
	assert.Equal(t, int64(500), *state.LastProcessedBlock)
	assert.NotNil(t, state.LastProcessedAt)

	state, err = svc.UpdateMetrics(ctx, tenantID, networkID, 501, bpm, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(950), *state.AverageProcessingTimeMS)
	assert.Equal(t, int64(501), *state.LastProcessedBlock)

	state, err = svc.UpdateMetrics(ctx, tenantID, networkID, 502, bpm, 950)
	require.NoError(t, err)
	assert.Equal(t, int64(950), *state.AverageProcessingTimeMS)

	_, err = svc.UpdateMetrics(ctx, tenantID, networkID, 503, bpm, -1)
	assert.Error(t, err)
	_, err = svc.UpdateMetrics(ctx, tenantID, networkID, -1, bpm, 100)
	assert.Error(t, err)
}

func TestBlockStateProcessingStats(t *testing.T) {
	store := newStubStore()
	svc := NewBlockStateService(store)
	missed := NewMissedBlockService(store)
	ctx := context.Background()
	tenantID, networkID := uuid.New(), uuid.New()

	_, err := svc.UpdateMetrics(ctx, tenantID, networkID, 500, decimal.NewFromInt(10), 100)
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		_, err := missed.Record(ctx, tenantID, networkID, 1000+i, "worker crash")
		require.NoError(t, err)
	}

	stats, err := svc.GetProcessingStats(ctx, tenantID, networkID, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(500), stats.TotalBlocksProcessed)
	assert.Equal(t, int64(5), stats.TotalMissedBlocks)
	// No errors yet: the rate is zero and uptime is full.
	assert.Zero(t, stats.ErrorRate)
	assert.InDelta(t, 100, stats.UptimePercentage, 0.001)

	msg := "rpc unreachable"
	_, err = svc.UpdateStatus(ctx, tenantID, networkID, types.ProcessingStatusError, &msg)
	require.NoError(t, err)

	stats, err = svc.GetProcessingStats(ctx, tenantID, networkID, time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, 100*1.0/500.0, stats.ErrorRate, 0.001)
	// The error landed moments after the last processed stamp, so the gap
	// eats almost nothing of the window.
	assert.InDelta(t, 100, stats.UptimePercentage, 1)
	assert.Less(t, stats.UptimePercentage, 100.0)
}

func TestBlockStateStatsEmptyState(t *testing.T) {
	store := newStubStore()
	svc := NewBlockStateService(store)
	ctx := context.Background()
	tenantID, networkID := uuid.New(), uuid.New()

	_, err := svc.GetOrCreate(ctx, tenantID, networkID)
	require.NoError(t, err)

	stats, err := svc.GetProcessingStats(ctx, tenantID, networkID, 0)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalBlocksProcessed)
	assert.Zero(t, stats.ErrorRate)
	assert.Equal(t, 100.0, stats.UptimePercentage)
	assert.Equal(t, 24*time.Hour, stats.PeriodEnd.Sub(stats.PeriodStart))
}
