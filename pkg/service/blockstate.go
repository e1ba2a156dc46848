package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/log"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/types"
)

// BlockStateService tracks block-processing progress per (tenant, network)
// pair: status transitions, progress stamps, and throughput metrics.
type BlockStateService struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewBlockStateService wires a block-state service over the store.
func NewBlockStateService(store storage.Store) *BlockStateService {
	return &BlockStateService{
		store:  store,
		logger: log.WithComponent("blockstate-service"),
	}
}

// GetOrCreate returns the pair's state row, creating an idle one on first
// contact. A concurrent create losing the race re-reads the winner's row.
func (s *BlockStateService) GetOrCreate(ctx context.Context, tenantID, networkID uuid.UUID) (*types.BlockState, error) {
	state, err := s.store.GetBlockState(ctx, tenantID, networkID)
	if err == nil {
		return state, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	state = &types.BlockState{
		TenantID:         tenantID,
		NetworkID:        networkID,
		ProcessingStatus: types.ProcessingStatusIdle,
		BlocksPerMinute:  decimal.Zero,
	}
	if err := s.store.CreateBlockState(ctx, state); err != nil {
		if apperr.Is(err, apperr.KindDuplicate) {
			return s.store.GetBlockState(ctx, tenantID, networkID)
		}
		return nil, err
	}
	return state, nil
}

// UpdateStatus moves the pair to a new processing status. Entering error
// records the message and grows the error count; entering processing stamps
// progress without touching error fields; entering idle clears the error
// run; pausing leaves every metric as it stands.
func (s *BlockStateService) UpdateStatus(ctx context.Context, tenantID, networkID uuid.UUID, status types.ProcessingStatus, errMsg *string) (*types.BlockState, error) {
	state, err := s.GetOrCreate(ctx, tenantID, networkID)
	if err != nil {
		return nil, err
	}

	state.ProcessingStatus = status
	now := time.Now().UTC()
	switch status {
	case types.ProcessingStatusError:
		state.LastError = errMsg
		state.LastErrorAt = &now
		state.ErrorCount++
	case types.ProcessingStatusProcessing:
		state.LastProcessedAt = &now
	case types.ProcessingStatusIdle:
		state.ErrorCount = 0
		state.LastError = nil
	case types.ProcessingStatusPaused:
	}

	if err := s.store.UpdateBlockState(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// RecordProcessed stamps a successfully processed block. Progress is
// monotonic: an out-of-order worker report never moves the high-water
// mark backwards.
func (s *BlockStateService) RecordProcessed(ctx context.Context, tenantID, networkID uuid.UUID, blockNumber int64) (*types.BlockState, error) {
	state, err := s.GetOrCreate(ctx, tenantID, networkID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if state.LastProcessedBlock == nil || blockNumber > *state.LastProcessedBlock {
		state.LastProcessedBlock = &blockNumber
	}
	state.LastProcessedAt = &now
	state.ProcessingStatus = types.ProcessingStatusIdle
	state.ErrorCount = 0

	if err := s.store.UpdateBlockState(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// UpdateMetrics records a processed block and folds its processing-time
// sample into the running average, an exponentially weighted moving
// average with integer truncation. The reported throughput rides along.
func (s *BlockStateService) UpdateMetrics(ctx context.Context, tenantID, networkID uuid.UUID, blockNumber int64, blocksPerMinute decimal.Decimal, sampleMS int64) (*types.BlockState, error) {
	if sampleMS < 0 {
		return nil, apperr.E(apperr.KindBadRequest, "processing time sample must be non-negative")
	}
	if blockNumber < 0 {
		return nil, apperr.E(apperr.KindBadRequest, "block number must be non-negative")
	}
	state, err := s.GetOrCreate(ctx, tenantID, networkID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state.LastProcessedBlock = &blockNumber
	state.LastProcessedAt = &now
	avg := foldProcessingTime(state.AverageProcessingTimeMS, sampleMS)
	state.AverageProcessingTimeMS = &avg
	state.BlocksPerMinute = blocksPerMinute

	if err := s.store.UpdateBlockState(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// foldProcessingTime computes trunc(0.9*avg + 0.1*sample); the first
// sample becomes the average.
func foldProcessingTime(avg *int64, sample int64) int64 {
	if avg == nil {
		return sample
	}
	return int64(float64(*avg)*0.9 + float64(sample)*0.1)
}

// GetProcessingStats aggregates the pair's health over a trailing window.
// Processed volume is the high-water mark; the error rate relates the
// current error run to it; uptime shrinks by the gap between the last
// error and the last processed block relative to the window.
func (s *BlockStateService) GetProcessingStats(ctx context.Context, tenantID, networkID uuid.UUID, window time.Duration) (*types.BlockProcessingStats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	state, err := s.store.GetBlockState(ctx, tenantID, networkID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	since := now.Add(-window)

	missed, err := s.store.CountMissedBlocksSince(ctx, tenantID, networkID, since)
	if err != nil {
		return nil, err
	}

	var processed int64
	if state.LastProcessedBlock != nil {
		processed = *state.LastProcessedBlock
	}

	stats := &types.BlockProcessingStats{
		TenantID:             tenantID,
		NetworkID:            networkID,
		PeriodStart:          since,
		PeriodEnd:            now,
		TotalBlocksProcessed: processed,
		TotalMissedBlocks:    missed,
		UptimePercentage:     100,
	}
	if processed > 0 {
		stats.ErrorRate = 100 * float64(state.ErrorCount) / float64(processed)
	}
	if state.LastErrorAt != nil && state.LastProcessedAt != nil {
		period := window.Seconds()
		gap := state.LastErrorAt.Sub(*state.LastProcessedAt).Seconds()
		stats.UptimePercentage = 100 * (period - gap) / period
	}
	return stats, nil
}

// List returns one page of the tenant's block states.
func (s *BlockStateService) List(ctx context.Context, tenantID uuid.UUID, opts storage.ListOptions) (*storage.Page[*types.BlockState], error) {
	return s.store.ListBlockStates(ctx, tenantID, opts)
}
