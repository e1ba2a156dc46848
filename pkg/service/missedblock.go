package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/log"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/types"
)

const (
	// missedBlockMaxRetries bounds bulk retry; a block that failed this
	// many times needs operator attention, not another pass.
	missedBlockMaxRetries = 3

	defaultUnprocessedLimit = 100
)

// MissedBlockService records blocks workers failed to process and drives
// their retry lifecycle.
type MissedBlockService struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewMissedBlockService wires a missed-block service over the store.
func NewMissedBlockService(store storage.Store) *MissedBlockService {
	return &MissedBlockService{
		store:  store,
		logger: log.WithComponent("missedblock-service"),
	}
}

// Record stores a missed block. Reporting the same block again bumps the
// retry count and refreshes the reason instead of duplicating the row.
func (s *MissedBlockService) Record(ctx context.Context, tenantID, networkID uuid.UUID, blockNumber int64, reason string) (*types.MissedBlock, error) {
	if blockNumber < 0 {
		return nil, apperr.E(apperr.KindBadRequest, "block number must be non-negative")
	}

	mb := &types.MissedBlock{
		TenantID:    tenantID,
		NetworkID:   networkID,
		BlockNumber: blockNumber,
		Reason:      reason,
	}
	err := s.store.CreateMissedBlock(ctx, mb)
	if err == nil {
		return mb, nil
	}
	if !apperr.Is(err, apperr.KindDuplicate) {
		return nil, err
	}

	existing, err := s.store.GetMissedBlockByNumber(ctx, tenantID, networkID, blockNumber)
	if err != nil {
		return nil, err
	}
	existing.RetryCount++
	existing.Reason = reason
	existing.Processed = false
	existing.ProcessedAt = nil
	if err := s.store.UpdateMissedBlock(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// MarkProcessed closes out a missed block after a successful retry.
func (s *MissedBlockService) MarkProcessed(ctx context.Context, tenantID, id uuid.UUID) (*types.MissedBlock, error) {
	mb, err := s.store.GetMissedBlock(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if mb.Processed {
		return mb, nil
	}
	now := time.Now().UTC()
	mb.Processed = true
	mb.ProcessedAt = &now
	if err := s.store.UpdateMissedBlock(ctx, mb); err != nil {
		return nil, err
	}
	return mb, nil
}

// GetUnprocessed returns the pair's open missed blocks in block order,
// oldest first, up to limit (default 100).
func (s *MissedBlockService) GetUnprocessed(ctx context.Context, tenantID, networkID uuid.UUID, limit int) ([]*types.MissedBlock, error) {
	if limit <= 0 {
		limit = defaultUnprocessedLimit
	}
	return s.store.ListUnprocessedMissedBlocks(ctx, tenantID, networkID, limit)
}

// BulkRetry queues the given missed blocks for another pass. Rows already
// processed or past the retry cap are left alone; returns how many were
// reset.
func (s *MissedBlockService) BulkRetry(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.store.BulkResetMissedBlocks(ctx, tenantID, ids, missedBlockMaxRetries, "Marked for retry")
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int("requested", len(ids)).Int64("reset", n).Msg("missed blocks queued for retry")
	return n, nil
}
